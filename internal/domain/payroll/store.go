package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"paycore/internal/domain/garnishment"
	"paycore/internal/domain/money"
	"paycore/internal/domain/taxrules"
	"paycore/internal/domain/wagebase"
	"paycore/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateRun(ctx context.Context, run PayrollRun) error {
	inputsJSON, err := json.Marshal(run.Inputs)
	if err != nil {
		return err
	}
	totalsJSON, err := json.Marshal(run.Totals)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO payroll_runs (id, tenant_id, status, policy, period_start, period_end, pay_date, frequency,
                              rule_version, inputs_json, totals_json, created_by, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
  `, run.ID, run.TenantID, run.Status, run.Policy, run.Period.Start, run.Period.End, run.Period.PayDate, run.Period.Frequency,
		run.RuleVersion, inputsJSON, totalsJSON, run.CreatedBy, run.CreatedAt, run.UpdatedAt)
	return err
}

func (s *Store) GetRun(ctx context.Context, tenantID, runID string) (PayrollRun, error) {
	var run PayrollRun
	var inputsJSON, totalsJSON []byte
	var frequency string
	err := s.DB.QueryRow(ctx, `
    SELECT id, tenant_id, status, policy, period_start, period_end, pay_date, frequency,
           rule_version, inputs_json, totals_json, created_by, COALESCE(approved_by, ''), COALESCE(error, ''),
           created_at, updated_at
    FROM payroll_runs
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, runID).Scan(&run.ID, &run.TenantID, &run.Status, &run.Policy, &run.Period.Start, &run.Period.End, &run.Period.PayDate, &frequency,
		&run.RuleVersion, &inputsJSON, &totalsJSON, &run.CreatedBy, &run.ApprovedBy, &run.Error,
		&run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PayrollRun{}, ErrRunNotFound
	}
	if err != nil {
		return PayrollRun{}, err
	}
	run.Period.Frequency = taxrules.Frequency(frequency)
	if err := json.Unmarshal(inputsJSON, &run.Inputs); err != nil {
		return PayrollRun{}, fmt.Errorf("decode run inputs: %w", err)
	}
	if err := json.Unmarshal(totalsJSON, &run.Totals); err != nil {
		return PayrollRun{}, fmt.Errorf("decode run totals: %w", err)
	}

	rows, err := s.DB.Query(ctx, `
    SELECT paycheck_json
    FROM payroll_paychecks
    WHERE tenant_id = $1 AND run_id = $2
    ORDER BY seq
  `, tenantID, runID)
	if err != nil {
		return PayrollRun{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return PayrollRun{}, err
		}
		var p Paycheck
		if err := json.Unmarshal(payload, &p); err != nil {
			return PayrollRun{}, fmt.Errorf("decode paycheck: %w", err)
		}
		run.Paychecks = append(run.Paychecks, p)
	}
	return run, rows.Err()
}

func (s *Store) UpdateRun(ctx context.Context, run PayrollRun, from RunStatus) error {
	inputsJSON, err := json.Marshal(run.Inputs)
	if err != nil {
		return err
	}
	totalsJSON, err := json.Marshal(run.Totals)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_runs
    SET status = $1, rule_version = $2, inputs_json = $3, totals_json = $4,
        approved_by = NULLIF($5, ''), error = NULLIF($6, ''), updated_at = $7
    WHERE tenant_id = $8 AND id = $9 AND status = $10
  `, run.Status, run.RuleVersion, inputsJSON, totalsJSON, run.ApprovedBy, run.Error, run.UpdatedAt, run.TenantID, run.ID, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.DB.QueryRow(ctx, `
      SELECT EXISTS (SELECT 1 FROM payroll_runs WHERE tenant_id = $1 AND id = $2)
    `, run.TenantID, run.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrRunNotFound
		}
		return fmt.Errorf("%w: run %s is no longer %s", ErrInvalidTransition, run.ID, from)
	}
	return nil
}

func (s *Store) SavePaychecks(ctx context.Context, tenantID, runID string, paychecks []Paycheck) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i, p := range paychecks {
		if err := upsertPaycheck(ctx, tx, tenantID, runID, i, p); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func upsertPaycheck(ctx context.Context, tx pgx.Tx, tenantID, runID string, seq int, p Paycheck) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
    INSERT INTO payroll_paychecks (tenant_id, run_id, employee_id, seq, status, gross_cents, net_cents, paycheck_json, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())
    ON CONFLICT (run_id, employee_id) DO UPDATE
    SET seq = EXCLUDED.seq, status = EXCLUDED.status, gross_cents = EXCLUDED.gross_cents,
        net_cents = EXCLUDED.net_cents, paycheck_json = EXCLUDED.paycheck_json, updated_at = now()
    WHERE payroll_paychecks.status NOT IN ('committed', 'reversed') OR EXCLUDED.status = 'reversed'
  `, tenantID, runID, p.EmployeeID, seq, p.Status, p.Gross.Int64(), p.Net.Int64(), payload)
	return err
}

func (s *Store) LoadYTD(ctx context.Context, tenantID, employeeID string, taxYear int) (YTDSnapshot, bool, error) {
	var payload []byte
	var snap YTDSnapshot
	err := s.DB.QueryRow(ctx, `
    SELECT record_json, version
    FROM ytd_wage_records
    WHERE tenant_id = $1 AND employee_id = $2 AND tax_year = $3
  `, tenantID, employeeID, taxYear).Scan(&payload, &snap.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return YTDSnapshot{}, false, nil
	}
	if err != nil {
		return YTDSnapshot{}, false, err
	}
	if err := json.Unmarshal(payload, &snap.Record); err != nil {
		return YTDSnapshot{}, false, fmt.Errorf("decode ytd record: %w", err)
	}
	return snap, true, nil
}

func (s *Store) LoadOrders(ctx context.Context, tenantID, employeeID string) ([]garnishment.Order, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT order_json
    FROM garnishment_orders
    WHERE tenant_id = $1 AND employee_id = $2
    ORDER BY id
  `, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []garnishment.Order
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var o garnishment.Order
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, fmt.Errorf("decode garnishment order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) CommitPaycheck(ctx context.Context, tenantID, runID string, p Paycheck) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	record, err := json.Marshal(p.YTDAfter)
	if err != nil {
		return err
	}
	var tag pgconn.CommandTag
	if p.YTDVersion == 0 {
		tag, err = tx.Exec(ctx, `
      INSERT INTO ytd_wage_records (tenant_id, employee_id, tax_year, record_json, version, updated_at)
      VALUES ($1,$2,$3,$4,1, now())
      ON CONFLICT (tenant_id, employee_id, tax_year) DO NOTHING
    `, tenantID, p.EmployeeID, p.TaxYear, record)
	} else {
		tag, err = tx.Exec(ctx, `
      UPDATE ytd_wage_records
      SET record_json = $1, version = version + 1, updated_at = now()
      WHERE tenant_id = $2 AND employee_id = $3 AND tax_year = $4 AND version = $5
    `, record, tenantID, p.EmployeeID, p.TaxYear, p.YTDVersion)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: employee %s version %d", ErrYTDConflict, p.EmployeeID, p.YTDVersion)
	}

	for _, o := range p.Orders {
		if err := upsertOrder(ctx, tx, tenantID, p.EmployeeID, o); err != nil {
			return err
		}
	}

	p.Status = PaycheckCommitted
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    UPDATE payroll_paychecks
    SET status = $1, paycheck_json = $2, updated_at = now()
    WHERE tenant_id = $3 AND run_id = $4 AND employee_id = $5
  `, p.Status, payload, tenantID, runID, p.EmployeeID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ReversePaycheck(ctx context.Context, tenantID, runID string, p Paycheck) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var payload []byte
	err = tx.QueryRow(ctx, `
    SELECT record_json
    FROM ytd_wage_records
    WHERE tenant_id = $1 AND employee_id = $2 AND tax_year = $3
    FOR UPDATE
  `, tenantID, p.EmployeeID, p.TaxYear).Scan(&payload)
	if err != nil {
		return fmt.Errorf("load ytd for reversal of %s: %w", p.EmployeeID, err)
	}
	var current wagebase.YTD
	if err := json.Unmarshal(payload, &current); err != nil {
		return fmt.Errorf("decode ytd record: %w", err)
	}
	record, err := json.Marshal(current.Sub(p.YTDDelta))
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    UPDATE ytd_wage_records
    SET record_json = $1, version = version + 1, updated_at = now()
    WHERE tenant_id = $2 AND employee_id = $3 AND tax_year = $4
  `, record, tenantID, p.EmployeeID, p.TaxYear); err != nil {
		return err
	}

	for _, w := range p.Garnishments {
		if w.Amount == 0 || w.BalanceBefore == w.BalanceAfter {
			continue
		}
		if err := restoreOrder(ctx, tx, tenantID, w.OrderID, w.Amount); err != nil {
			return err
		}
	}

	p.Status = PaycheckReversed
	checkJSON, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    UPDATE payroll_paychecks
    SET status = $1, paycheck_json = $2, updated_at = now()
    WHERE tenant_id = $3 AND run_id = $4 AND employee_id = $5
  `, p.Status, checkJSON, tenantID, runID, p.EmployeeID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) YTDSnapshots(ctx context.Context, tenantID string, taxYear int) ([]YTDSnapshot, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT record_json, version
    FROM ytd_wage_records
    WHERE tenant_id = $1 AND tax_year = $2
    ORDER BY employee_id
  `, tenantID, taxYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []YTDSnapshot
	for rows.Next() {
		var payload []byte
		var snap YTDSnapshot
		if err := rows.Scan(&payload, &snap.Version); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &snap.Record); err != nil {
			return nil, fmt.Errorf("decode ytd record: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func upsertOrder(ctx context.Context, tx pgx.Tx, tenantID, employeeID string, o garnishment.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
    INSERT INTO garnishment_orders (tenant_id, id, employee_id, kind, status, balance_cents, order_json, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7, now())
    ON CONFLICT (tenant_id, id) DO UPDATE
    SET status = EXCLUDED.status, balance_cents = EXCLUDED.balance_cents,
        order_json = EXCLUDED.order_json, updated_at = now()
  `, tenantID, o.ID, employeeID, o.Kind, o.Status, o.Balance.Int64(), payload)
	return err
}

// restoreOrder gives back a reversed withholding. An order satisfied by that
// withholding becomes active again.
func restoreOrder(ctx context.Context, tx pgx.Tx, tenantID, orderID string, amount money.Money) error {
	var payload []byte
	err := tx.QueryRow(ctx, `
    SELECT order_json
    FROM garnishment_orders
    WHERE tenant_id = $1 AND id = $2
    FOR UPDATE
  `, tenantID, orderID).Scan(&payload)
	if err != nil {
		return fmt.Errorf("load garnishment order %s: %w", orderID, err)
	}
	var o garnishment.Order
	if err := json.Unmarshal(payload, &o); err != nil {
		return fmt.Errorf("decode garnishment order: %w", err)
	}
	o.Balance += amount
	if o.Status == garnishment.StatusSatisfied && o.Balance > 0 {
		o.Status = garnishment.StatusActive
	}
	updated, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
    UPDATE garnishment_orders
    SET status = $1, balance_cents = $2, order_json = $3, updated_at = now()
    WHERE tenant_id = $4 AND id = $5
  `, o.Status, o.Balance.Int64(), updated, tenantID, orderID)
	return err
}
