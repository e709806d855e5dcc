package payroll

import (
	"context"

	"paycore/internal/domain/garnishment"
	"paycore/internal/domain/wagebase"
)

// YTDSnapshot is a stored year-to-date record and its optimistic version.
type YTDSnapshot struct {
	Record  wagebase.YTD `json:"record"`
	Version int64        `json:"version"`
}

type StoreAPI interface {
	CreateRun(ctx context.Context, run PayrollRun) error
	GetRun(ctx context.Context, tenantID, runID string) (PayrollRun, error)
	// UpdateRun persists status and run fields only if the stored status is
	// still from. A mismatch returns ErrInvalidTransition.
	UpdateRun(ctx context.Context, run PayrollRun, from RunStatus) error
	SavePaychecks(ctx context.Context, tenantID, runID string, paychecks []Paycheck) error
	LoadYTD(ctx context.Context, tenantID, employeeID string, taxYear int) (YTDSnapshot, bool, error)
	LoadOrders(ctx context.Context, tenantID, employeeID string) ([]garnishment.Order, error)
	// CommitPaycheck writes the paycheck's YTD record, order balances and
	// committed status in one transaction. A YTD version mismatch returns
	// ErrYTDConflict and writes nothing.
	CommitPaycheck(ctx context.Context, tenantID, runID string, p Paycheck) error
	// ReversePaycheck subtracts the paycheck's YTD delta and restores order
	// balances in one transaction.
	ReversePaycheck(ctx context.Context, tenantID, runID string, p Paycheck) error
	YTDSnapshots(ctx context.Context, tenantID string, taxYear int) ([]YTDSnapshot, error)
}
