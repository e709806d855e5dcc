package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"paycore/internal/domain/garnishment"
)

// AuditRecorder stores an audit event. audit.Service satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

// RunMetrics counts run outcomes. metrics.Collector satisfies it.
type RunMetrics interface {
	RecordRun(status string, committed, review, failed int, duration time.Duration)
}

type Service struct {
	store     StoreAPI
	assembler *Assembler
	audit     AuditRecorder
	metrics   RunMetrics
	workers   int
	policy    RunPolicy
	now       func() time.Time
}

// NewService builds the run service. audit and metrics may be nil.
func NewService(store StoreAPI, assembler *Assembler, audit AuditRecorder, metrics RunMetrics, workers int, policy RunPolicy) *Service {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if policy == "" {
		policy = PolicyContinue
	}
	return &Service{
		store:     store,
		assembler: assembler,
		audit:     audit,
		metrics:   metrics,
		workers:   workers,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Preview calculates one paycheck without touching the store.
func (s *Service) Preview(period PayPeriodContext, in EmployeeCalculationInput) (Paycheck, error) {
	return s.assembler.Calculate(period, in)
}

// CreateRun stores a DRAFT run. Every input is validated first and nothing is
// stored when any of them is rejected.
func (s *Service) CreateRun(ctx context.Context, tenantID string, actor Actor, period PayPeriodContext, policy RunPolicy, inputs []EmployeeCalculationInput) (PayrollRun, error) {
	verr := &ValidationError{}
	validatePeriod(verr, period)
	if policy == "" {
		policy = s.policy
	}
	if policy != PolicyContinue && policy != PolicyAllOrNothing {
		verr.add("policy", "is not supported")
	}
	if len(inputs) == 0 {
		verr.add("employees", "at least one employee is required")
	}
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.EmployeeID] {
			verr.add("employees", fmt.Sprintf("employee %s appears more than once", in.EmployeeID))
		}
		seen[in.EmployeeID] = true
	}
	if err := verr.orNil(); err != nil {
		return PayrollRun{}, err
	}
	for _, in := range inputs {
		if err := ValidateInput(period, in); err != nil {
			return PayrollRun{}, err
		}
	}

	now := s.now()
	run := PayrollRun{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Period:    period,
		Status:    RunStatusDraft,
		Policy:    policy,
		Inputs:    inputs,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return PayrollRun{}, err
	}
	s.recordAudit(ctx, run.TenantID, actor, AuditActionCreate, AuditEntityRun, run.ID, nil, map[string]any{
		"status":    run.Status,
		"employees": len(run.Inputs),
		"payDate":   run.Period.PayDate.Format("2006-01-02"),
	})
	return run, nil
}

func (s *Service) GetRun(ctx context.Context, tenantID, runID string) (PayrollRun, error) {
	return s.store.GetRun(ctx, tenantID, runID)
}

func (s *Service) Submit(ctx context.Context, tenantID, runID string, actor Actor) (PayrollRun, error) {
	run, err := s.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		return PayrollRun{}, err
	}
	if err := s.transition(ctx, &run, RunStatusPendingApproval, actor); err != nil {
		return PayrollRun{}, err
	}
	return run, nil
}

func (s *Service) Approve(ctx context.Context, tenantID, runID string, actor Actor) (PayrollRun, error) {
	run, err := s.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		return PayrollRun{}, err
	}
	run.ApprovedBy = actor.UserID
	if err := s.transition(ctx, &run, RunStatusApproved, actor); err != nil {
		return PayrollRun{}, err
	}
	return run, nil
}

// Cancel aborts a run that has not started processing.
func (s *Service) Cancel(ctx context.Context, tenantID, runID string, actor Actor) (PayrollRun, error) {
	run, err := s.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		return PayrollRun{}, err
	}
	if !Cancellable(run.Status) {
		return PayrollRun{}, fmt.Errorf("%w: run %s is %s, reverse it instead", ErrInvalidTransition, run.ID, run.Status)
	}
	if err := s.transition(ctx, &run, RunStatusCancelled, actor); err != nil {
		return PayrollRun{}, err
	}
	return run, nil
}

// Process calculates every employee in parallel, then commits each paycheck
// atomically. A missing tax table fails the run before anything is written.
// Calling Process on a run already in PROCESSING resumes it: employees with
// no stored paycheck are calculated, then pending commits are retried.
func (s *Service) Process(ctx context.Context, tenantID, runID string, actor Actor) (PayrollRun, error) {
	start := s.now()
	run, err := s.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		return PayrollRun{}, err
	}
	resuming := run.Status == RunStatusProcessing

	pipeline, lookupErr := s.assembler.Pipeline(run.Period)
	if !resuming {
		if err := s.transition(ctx, &run, RunStatusProcessing, actor); err != nil {
			return PayrollRun{}, err
		}
	}
	if lookupErr != nil {
		if countStatus(run.Paychecks, PaycheckCommitted) > 0 {
			return PayrollRun{}, fmt.Errorf("%w: %w", ErrRunAborted, lookupErr)
		}
		slog.Warn("payroll run aborted", "runId", run.ID, "err", lookupErr)
		run.Error = lookupErr.Error()
		if err := s.transition(ctx, &run, RunStatusFailed, actor); err != nil {
			return PayrollRun{}, err
		}
		s.recordMetrics(run, start)
		return run, fmt.Errorf("%w: %w", ErrRunAborted, lookupErr)
	}
	if run.RuleVersion == "" {
		run.RuleVersion = pipeline.RuleVersion()
	}

	pending := uncalculated(run)
	if len(pending) == 0 {
		return s.finalize(ctx, &run, actor, start)
	}
	if resuming {
		slog.Info("payroll run resumed", "runId", run.ID, "status", run.Status, "pending", len(pending))
	}
	paychecks, err := s.calculateAll(ctx, run, pipeline, pending)
	if err != nil {
		slog.Warn("payroll run calculation failed", "runId", run.ID, "err", err)
		if countStatus(run.Paychecks, PaycheckCommitted) > 0 {
			return PayrollRun{}, err
		}
		run.Error = err.Error()
		if terr := s.transition(ctx, &run, RunStatusFailed, actor); terr != nil {
			return PayrollRun{}, terr
		}
		s.recordMetrics(run, start)
		return run, err
	}
	run.Paychecks = mergePaychecks(run, paychecks)

	if err := s.store.SavePaychecks(ctx, run.TenantID, run.ID, run.Paychecks); err != nil {
		return PayrollRun{}, err
	}
	return s.finalize(ctx, &run, actor, start)
}

// uncalculated returns the inputs that have no stored paycheck.
func uncalculated(run PayrollRun) []EmployeeCalculationInput {
	var out []EmployeeCalculationInput
	for _, in := range run.Inputs {
		if _, ok := run.Paycheck(in.EmployeeID); !ok {
			out = append(out, in)
		}
	}
	return out
}

// mergePaychecks combines stored and newly calculated paychecks in input order.
func mergePaychecks(run PayrollRun, calculated []Paycheck) []Paycheck {
	byEmployee := make(map[string]Paycheck, len(run.Paychecks)+len(calculated))
	for _, p := range run.Paychecks {
		byEmployee[p.EmployeeID] = p
	}
	for _, p := range calculated {
		byEmployee[p.EmployeeID] = p
	}
	out := make([]Paycheck, 0, len(run.Inputs))
	for _, in := range run.Inputs {
		if p, ok := byEmployee[in.EmployeeID]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ResolveReview settles one paycheck held in review, then finalizes the run.
func (s *Service) ResolveReview(ctx context.Context, tenantID, runID, employeeID string, res Resolution, actor Actor) (PayrollRun, error) {
	start := s.now()
	run, err := s.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		return PayrollRun{}, err
	}
	if run.Status != RunStatusProcessing {
		return PayrollRun{}, fmt.Errorf("%w: run %s is %s", ErrInvalidTransition, run.ID, run.Status)
	}
	check, ok := run.Paycheck(employeeID)
	if !ok {
		return PayrollRun{}, ErrPaycheckNotFound
	}
	if check.Status != PaycheckNeedsReview {
		return PayrollRun{}, fmt.Errorf("%w: employee %s is %s", ErrNotInReview, employeeID, check.Status)
	}
	before := check.Status

	switch res.Action {
	case ReviewExclude:
		check.Status = PaycheckExcluded
	case ReviewRecalculate:
		in, ok := run.Input(employeeID)
		if res.Input != nil {
			in = *res.Input
			ok = true
		}
		if !ok {
			return PayrollRun{}, ErrPaycheckNotFound
		}
		if in.EmployeeID != employeeID {
			verr := &ValidationError{EmployeeID: employeeID}
			verr.add("employeeId", "does not match the paycheck")
			return PayrollRun{}, verr
		}
		if err := ValidateInput(run.Period, in); err != nil {
			return PayrollRun{}, err
		}
		pipeline, err := s.assembler.Pipeline(run.Period)
		if err != nil {
			return PayrollRun{}, fmt.Errorf("%w: %w", ErrRunAborted, err)
		}
		recalculated, err := s.calculateOne(ctx, run, pipeline, in)
		if err != nil {
			return PayrollRun{}, err
		}
		*check = recalculated
		replaceInput(&run, in)
	default:
		verr := &ValidationError{EmployeeID: employeeID}
		verr.add("action", "is not supported")
		return PayrollRun{}, verr
	}

	slog.Info("payroll paycheck resolved", "runId", run.ID, "employeeId", employeeID, "status", check.Status)
	s.recordAudit(ctx, run.TenantID, actor, AuditActionResolve, AuditEntityPaycheck, run.ID+":"+employeeID,
		map[string]any{"status": before},
		map[string]any{"status": check.Status, "action": res.Action, "note": res.Note})

	if err := s.store.SavePaychecks(ctx, run.TenantID, run.ID, run.Paychecks); err != nil {
		return PayrollRun{}, err
	}
	return s.finalize(ctx, &run, actor, start)
}

// Reverse undoes a finished run: each committed paycheck's YTD delta and
// garnishment withholding is restored. Paychecks already reversed are
// skipped, so a partially reversed run can be retried.
func (s *Service) Reverse(ctx context.Context, tenantID, runID string, actor Actor) (PayrollRun, error) {
	run, err := s.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		return PayrollRun{}, err
	}
	if !isAllowedTransition(run.Status, RunStatusReversed) {
		return PayrollRun{}, fmt.Errorf("%w: run %s is %s", ErrInvalidTransition, run.ID, run.Status)
	}

	before := run.Totals
	for i := range run.Paychecks {
		p := &run.Paychecks[i]
		if p.Status != PaycheckCommitted {
			continue
		}
		if err := s.store.ReversePaycheck(ctx, run.TenantID, run.ID, *p); err != nil {
			slog.Warn("paycheck reversal failed", "runId", run.ID, "employeeId", p.EmployeeID, "err", err)
			return PayrollRun{}, err
		}
		p.Status = PaycheckReversed
	}
	run.Totals = ComputeTotals(run.Paychecks)
	if err := s.store.SavePaychecks(ctx, run.TenantID, run.ID, run.Paychecks); err != nil {
		return PayrollRun{}, err
	}
	if err := s.transition(ctx, &run, RunStatusReversed, actor); err != nil {
		return PayrollRun{}, err
	}
	s.recordAudit(ctx, run.TenantID, actor, AuditActionReverse, AuditEntityRun, run.ID, before, run.Totals)
	return run, nil
}

// YTDSnapshots returns the stored year-to-date records for year-end filing.
func (s *Service) YTDSnapshots(ctx context.Context, tenantID string, taxYear int) ([]YTDSnapshot, error) {
	return s.store.YTDSnapshots(ctx, tenantID, taxYear)
}

// finalize commits calculated paychecks and moves the run out of PROCESSING
// once no paycheck is held in review.
func (s *Service) finalize(ctx context.Context, run *PayrollRun, actor Actor, start time.Time) (PayrollRun, error) {
	if len(run.Paychecks) < len(run.Inputs) {
		return PayrollRun{}, fmt.Errorf("%w: run %s has %d paychecks for %d employees", ErrIncompleteRun, run.ID, len(run.Paychecks), len(run.Inputs))
	}
	inReview := countStatus(run.Paychecks, PaycheckNeedsReview)
	if run.Policy == PolicyAllOrNothing && inReview == 0 && countStatus(run.Paychecks, PaycheckCommitted) == 0 {
		if err := s.checkVersions(ctx, run); err != nil {
			return PayrollRun{}, err
		}
	}
	if run.Policy == PolicyAllOrNothing {
		if failed := countStatus(run.Paychecks, PaycheckError); failed > 0 && countStatus(run.Paychecks, PaycheckCommitted) == 0 {
			run.Error = fmt.Sprintf("%d of %d paychecks failed", failed, len(run.Paychecks))
			if err := s.store.SavePaychecks(ctx, run.TenantID, run.ID, run.Paychecks); err != nil {
				return PayrollRun{}, err
			}
			if err := s.transition(ctx, run, RunStatusFailed, actor); err != nil {
				return PayrollRun{}, err
			}
			s.recordMetrics(*run, start)
			return *run, nil
		}
	}
	if inReview == 0 || run.Policy != PolicyAllOrNothing {
		for i := range run.Paychecks {
			p := &run.Paychecks[i]
			if p.Status != PaycheckCalculated {
				continue
			}
			if err := Verify(*p); err != nil {
				s.markFailed(run.ID, p, err)
				continue
			}
			if err := s.store.CommitPaycheck(ctx, run.TenantID, run.ID, *p); err != nil {
				if errors.Is(err, ErrYTDConflict) {
					s.markFailed(run.ID, p, err)
					continue
				}
				slog.Warn("paycheck commit failed", "runId", run.ID, "employeeId", p.EmployeeID, "err", err)
				return PayrollRun{}, err
			}
			p.Status = PaycheckCommitted
		}
	}
	run.Totals = ComputeTotals(run.Paychecks)
	if err := s.store.SavePaychecks(ctx, run.TenantID, run.ID, run.Paychecks); err != nil {
		return PayrollRun{}, err
	}

	if inReview > 0 {
		slog.Info("payroll run awaiting review", "runId", run.ID, "status", run.Status, "inReview", inReview)
		run.UpdatedAt = s.now()
		if err := s.store.UpdateRun(ctx, *run, RunStatusProcessing); err != nil {
			return PayrollRun{}, err
		}
		return *run, nil
	}

	failed := countStatus(run.Paychecks, PaycheckError)
	committed := countStatus(run.Paychecks, PaycheckCommitted)
	next := RunStatusCompleted
	switch {
	case failed > 0 && committed == 0:
		next = RunStatusFailed
		run.Error = fmt.Sprintf("all %d paychecks failed", failed)
	case failed > 0:
		next = RunStatusCompletedWithErrors
	}
	if err := s.transition(ctx, run, next, actor); err != nil {
		return PayrollRun{}, err
	}
	s.recordMetrics(*run, start)
	return *run, nil
}

// checkVersions fails every calculated paycheck whose stored YTD record has
// moved since calculation, so all-or-nothing runs fail before any commit.
func (s *Service) checkVersions(ctx context.Context, run *PayrollRun) error {
	for i := range run.Paychecks {
		p := &run.Paychecks[i]
		if p.Status != PaycheckCalculated {
			continue
		}
		snap, _, err := s.store.LoadYTD(ctx, run.TenantID, p.EmployeeID, p.TaxYear)
		if err != nil {
			return fmt.Errorf("load ytd for %s: %w", p.EmployeeID, err)
		}
		if snap.Version != p.YTDVersion {
			s.markFailed(run.ID, p, fmt.Errorf("%w: employee %s", ErrYTDConflict, p.EmployeeID))
		}
	}
	return nil
}

// calculateAll computes the inputs concurrently. Results keep input order.
func (s *Service) calculateAll(ctx context.Context, run PayrollRun, pipeline *Pipeline, inputs []EmployeeCalculationInput) ([]Paycheck, error) {
	results := make([]Paycheck, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, in := range inputs {
		g.Go(func() error {
			p, err := s.calculateOne(gctx, run, pipeline, in)
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// calculateOne loads the employee's stored state and calculates. Only store
// failures are returned; calculation failures come back as error paychecks.
func (s *Service) calculateOne(ctx context.Context, run PayrollRun, pipeline *Pipeline, in EmployeeCalculationInput) (Paycheck, error) {
	in, version, err := s.hydrate(ctx, run.TenantID, run.Period.TaxYear(), in)
	if err != nil {
		return Paycheck{}, err
	}

	var p Paycheck
	if verr := ValidateInput(run.Period, in); verr != nil {
		p = errorPaycheck(in, verr)
	} else if calculated, cerr := pipeline.Calculate(run.Period, in); cerr != nil {
		p = errorPaycheck(in, cerr)
	} else if aerr := Verify(calculated); aerr != nil && !errors.Is(aerr, ErrNegativeNetPay) {
		p = errorPaycheck(in, aerr)
	} else {
		p = calculated
	}
	p.RunID = run.ID
	p.YTDVersion = version
	if p.TaxYear == 0 {
		p.TaxYear = run.Period.TaxYear()
	}

	switch p.Status {
	case PaycheckError:
		slog.Warn("paycheck calculation failed", "runId", run.ID, "employeeId", in.EmployeeID, "err", p.Error)
	case PaycheckNeedsReview:
		slog.Info("paycheck held for review", "runId", run.ID, "employeeId", in.EmployeeID, "status", p.Status)
	}
	return p, nil
}

// hydrate replaces the input's YTD record and garnishment balances with the
// stored ones when the store has them.
func (s *Service) hydrate(ctx context.Context, tenantID string, taxYear int, in EmployeeCalculationInput) (EmployeeCalculationInput, int64, error) {
	var version int64
	snap, ok, err := s.store.LoadYTD(ctx, tenantID, in.EmployeeID, taxYear)
	if err != nil {
		return in, 0, fmt.Errorf("load ytd for %s: %w", in.EmployeeID, err)
	}
	if ok {
		in.YTD = snap.Record
		version = snap.Version
	}
	stored, err := s.store.LoadOrders(ctx, tenantID, in.EmployeeID)
	if err != nil {
		return in, 0, fmt.Errorf("load garnishment orders for %s: %w", in.EmployeeID, err)
	}
	in.ActiveGarnishments = mergeOrders(in.ActiveGarnishments, stored)
	return in, version, nil
}

func mergeOrders(orders, stored []garnishment.Order) []garnishment.Order {
	if len(stored) == 0 {
		return orders
	}
	byID := make(map[string]garnishment.Order, len(stored))
	for _, o := range stored {
		byID[o.ID] = o
	}
	out := make([]garnishment.Order, len(orders))
	for i, o := range orders {
		if current, ok := byID[o.ID]; ok {
			o.Balance = current.Balance
			o.Status = current.Status
		}
		out[i] = o
	}
	return out
}

func errorPaycheck(in EmployeeCalculationInput, err error) Paycheck {
	return Paycheck{
		EmployeeID: in.EmployeeID,
		Status:     PaycheckError,
		BankSplits: in.BankSplits,
		Error:      err.Error(),
	}
}

func (s *Service) markFailed(runID string, p *Paycheck, err error) {
	slog.Warn("paycheck not committed", "runId", runID, "employeeId", p.EmployeeID, "err", err)
	p.Status = PaycheckError
	p.Error = err.Error()
}

func replaceInput(run *PayrollRun, in EmployeeCalculationInput) {
	for i := range run.Inputs {
		if run.Inputs[i].EmployeeID == in.EmployeeID {
			run.Inputs[i] = in
			return
		}
	}
	run.Inputs = append(run.Inputs, in)
}

func countStatus(paychecks []Paycheck, status PaycheckStatus) int {
	n := 0
	for _, p := range paychecks {
		if p.Status == status {
			n++
		}
	}
	return n
}

func (s *Service) transition(ctx context.Context, run *PayrollRun, to RunStatus, actor Actor) error {
	from := run.Status
	if err := Transition(run, from, to); err != nil {
		return err
	}
	run.UpdatedAt = s.now()
	if err := s.store.UpdateRun(ctx, *run, from); err != nil {
		run.Status = from
		return err
	}
	slog.Info("payroll run transition", "runId", run.ID, "from", from, "status", to)
	s.recordAudit(ctx, run.TenantID, actor, AuditActionStatus, AuditEntityRun, run.ID,
		map[string]any{"status": from},
		map[string]any{"status": to})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID string, actor Actor, action, entityType, entityID string, before, after any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, tenantID, actor.UserID, action, entityType, entityID, actor.RequestID, actor.IP, before, after); err != nil {
		slog.Warn("audit "+action+" failed", "runId", entityID, "err", err)
	}
}

func (s *Service) recordMetrics(run PayrollRun, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordRun(string(run.Status),
		countStatus(run.Paychecks, PaycheckCommitted),
		countStatus(run.Paychecks, PaycheckNeedsReview),
		countStatus(run.Paychecks, PaycheckError),
		s.now().Sub(start))
}
