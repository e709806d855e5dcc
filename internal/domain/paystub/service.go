package paystub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"paycore/internal/domain/payroll"
	"paycore/internal/platform/crypto"
)

var (
	ErrNotIssued = errors.New("paystub is only issued for committed paychecks")
	ErrInvalidID = errors.New("invalid paystub identifier")
)

// RunSource loads a run with its paychecks. payroll.Service satisfies it.
type RunSource interface {
	GetRun(ctx context.Context, tenantID, runID string) (payroll.PayrollRun, error)
}

// Archive keeps rendered paystubs on disk, encrypted when the cipher is
// configured. An empty Dir disables archiving.
type Archive struct {
	Dir    string
	Cipher *crypto.Service
}

func (a Archive) enabled() bool {
	return a.Dir != ""
}

func (a Archive) path(tenantID, runID, employeeID string) (string, error) {
	for _, id := range []string{tenantID, runID, employeeID} {
		if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return filepath.Join(a.Dir, tenantID, runID, employeeID+".pdf"), nil
}

func (a Archive) Save(tenantID, runID, employeeID string, doc []byte) error {
	path, err := a.path(tenantID, runID, employeeID)
	if err != nil {
		return err
	}
	sealed, err := a.Cipher.Encrypt(doc)
	if err != nil {
		return fmt.Errorf("encrypt paystub: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, sealed, 0o600)
}

// Load returns the archived paystub, or false when none is stored.
func (a Archive) Load(tenantID, runID, employeeID string) ([]byte, bool, error) {
	path, err := a.path(tenantID, runID, employeeID)
	if err != nil {
		return nil, false, err
	}
	sealed, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	doc, err := a.Cipher.Decrypt(sealed)
	if err != nil {
		return nil, false, fmt.Errorf("decrypt paystub: %w", err)
	}
	return doc, true, nil
}

type Service struct {
	runs    RunSource
	archive Archive
}

func NewService(runs RunSource, archive Archive) *Service {
	return &Service{runs: runs, archive: archive}
}

// Paystub returns the PDF for an employee's paycheck in a run, rendering and
// archiving it on first request.
func (s *Service) Paystub(ctx context.Context, tenantID, runID, employeeID string) ([]byte, error) {
	if s.archive.enabled() {
		doc, ok, err := s.archive.Load(tenantID, runID, employeeID)
		if err != nil {
			return nil, err
		}
		if ok {
			return doc, nil
		}
	}

	run, err := s.runs.GetRun(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	p, ok := run.Paycheck(employeeID)
	if !ok {
		return nil, payroll.ErrPaycheckNotFound
	}
	if p.Status != payroll.PaycheckCommitted {
		return nil, fmt.Errorf("%w: paycheck is %s", ErrNotIssued, p.Status)
	}

	doc, err := Render(run, *p)
	if err != nil {
		return nil, fmt.Errorf("render paystub: %w", err)
	}
	if s.archive.enabled() {
		if err := s.archive.Save(tenantID, runID, employeeID, doc); err != nil {
			slog.Warn("paystub archive failed", "runId", runID, "employeeId", employeeID, "err", err)
		}
	}
	return doc, nil
}
