package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"paycore/internal/platform/querier"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// IdempotencyWindow is how long a stored key replays its response. Older keys
// may be reused for a new request.
const IdempotencyWindow = 24 * time.Hour

// IdempotencyStore replays the stored response of a repeated run creation
// that carries the same Idempotency-Key and payload.
type IdempotencyStore struct {
	db     querier.Querier
	window time.Duration
}

func NewIdempotencyStore(db querier.Querier) *IdempotencyStore {
	return &IdempotencyStore{db: db, window: IdempotencyWindow}
}

// RequestHash fingerprints a JSON payload. Insignificant whitespace does not
// change the hash.
func RequestHash(payload []byte) string {
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err == nil {
		payload = compact.Bytes()
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *IdempotencyStore) Check(ctx context.Context, tenantID, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, nil
	}
	var storedHash string
	var stored json.RawMessage
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE tenant_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4
      AND created_at > now() - make_interval(secs => $5)
  `, tenantID, userID, key, endpoint, s.window.Seconds()).Scan(&storedHash, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if storedHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return stored, true, nil
}

// Save stores the response for key. An expired row is replaced; a live row
// with a different payload hash is a conflict.
func (s *IdempotencyStore) Save(ctx context.Context, tenantID, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	if s == nil || s.db == nil {
		return nil
	}
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (tenant_id, user_id, key, endpoint, request_hash, response_json)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (tenant_id, user_id, key, endpoint)
    DO UPDATE SET request_hash = EXCLUDED.request_hash, response_json = EXCLUDED.response_json, created_at = now()
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
       OR idempotency_keys.created_at <= now() - make_interval(secs => $7)
  `, tenantID, userID, key, endpoint, requestHash, response, s.window.Seconds())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}
