package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paycore/internal/domain/auth"
)

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Fatal("expected request id in context")
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("expected caller request id, got %s", rec.Header().Get("X-Request-ID"))
	}
}

func TestAuthMiddlewareSetsUser(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, auth.Claims{UserID: "u1", TenantID: "t1", RoleName: auth.RoleApprover}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	called := false
	handler := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		user, ok := GetUser(r.Context())
		if !ok {
			t.Fatal("expected user in context")
		}
		if user.UserID != "u1" || user.TenantID != "t1" || user.RoleName != auth.RoleApprover {
			t.Fatalf("unexpected user: %+v", user)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatal("expected handler to run")
	}
}

func TestRequireUserRejectsAnonymous(t *testing.T) {
	handler := Auth("secret")(RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("did not expect handler to run")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RequirePermission(auth.PermPayrollApprove, auth.RoleStore{})(ok)

	cases := []struct {
		role string
		want int
	}{
		{auth.RoleApprover, http.StatusNoContent},
		{auth.RolePreparer, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithUser(req.Context(), auth.UserContext{UserID: "u1", TenantID: "t1", RoleName: tc.role}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("role %s: expected %d, got %d", tc.role, tc.want, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user, got %d", rec.Code)
	}
}

func TestRateLimitUsesUserKeyBeforeIPFallback(t *testing.T) {
	limited := RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	user := auth.UserContext{TenantID: "tenant-1", UserID: "user-1"}

	first := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/runs", nil)
	first = first.WithContext(WithUser(first.Context(), user))
	first.RemoteAddr = "198.51.100.11:2222"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", firstRec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/runs", nil)
	second = second.WithContext(WithUser(second.Context(), user))
	second.RemoteAddr = "198.51.100.12:3333"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled by user key, got %d", secondRec.Code)
	}
	if secondRec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRateLimitWindowReset(t *testing.T) {
	limited := RateLimit(1, 40*time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payroll/runs/r1", nil)
		req.RemoteAddr = "192.0.2.20:1111"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := send(); code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", code)
	}
	time.Sleep(60 * time.Millisecond)
	if code := send(); code != http.StatusNoContent {
		t.Fatalf("expected request after window reset to pass, got %d", code)
	}
}

func TestRunMutationRateLimitOnlyThrottlesRunActions(t *testing.T) {
	limited := RunMutationRateLimit(4, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	send := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "192.0.2.30:1111"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < 3; i++ {
		if code := send(http.MethodGet, "/api/v1/payroll/runs/r1"); code != http.StatusNoContent {
			t.Fatalf("expected reads to pass, got %d", code)
		}
	}
	if code := send(http.MethodPost, "/api/v1/payroll/runs/r1/process"); code != http.StatusNoContent {
		t.Fatalf("expected first process to pass, got %d", code)
	}
	if code := send(http.MethodPost, "/api/v1/payroll/runs/r1/reverse"); code != http.StatusTooManyRequests {
		t.Fatalf("expected second run mutation to be throttled, got %d", code)
	}
}

func TestRecovererReturns500(t *testing.T) {
	handler := RequestID(Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

type countingRecorder struct {
	statuses []int
}

func (c *countingRecorder) Record(status int, _ time.Duration) {
	c.statuses = append(c.statuses, status)
}

func TestLoggerRecordsStatus(t *testing.T) {
	rec := &countingRecorder{}
	handler := Logger(rec)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rec.statuses) != 1 || rec.statuses[0] != http.StatusConflict {
		t.Fatalf("expected recorded 409, got %v", rec.statuses)
	}
}

func TestBodyLimit(t *testing.T) {
	handler := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		var err error
		for err == nil {
			_, err = r.Body.Read(buf)
		}
		var maxErr *http.MaxBytesError
		if !errors.As(err, &maxErr) {
			t.Fatalf("expected MaxBytesError, got %v", err)
		}
	}))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789abcdef"))
	req.ContentLength = -1
	handler.ServeHTTP(httptest.NewRecorder(), req)

	declared := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789abcdef"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, declared)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestRequestHashDeterministic(t *testing.T) {
	if RequestHash([]byte("payload")) != RequestHash([]byte("payload")) {
		t.Fatal("expected deterministic hash")
	}
	if RequestHash([]byte("payload")) == RequestHash([]byte("other")) {
		t.Fatal("expected different hash for different payload")
	}
}

func TestRequestHashIgnoresWhitespace(t *testing.T) {
	a := RequestHash([]byte(`{"period": {"start": "2024-06-01"}}`))
	b := RequestHash([]byte("{\"period\":{\"start\":\"2024-06-01\"}}\n"))
	if a != b {
		t.Fatal("expected whitespace-insensitive hash")
	}
}

func TestIdempotencyStoreWithoutDatabase(t *testing.T) {
	var store *IdempotencyStore
	if _, found, err := store.Check(t.Context(), "t1", "u1", "payroll.runs.create", "k", "h"); found || err != nil {
		t.Fatalf("expected no replay without a store, got %v %v", found, err)
	}
	if err := store.Save(t.Context(), "t1", "u1", "payroll.runs.create", "k", "h", []byte(`{}`)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
