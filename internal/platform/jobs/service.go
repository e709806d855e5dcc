package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"paycore/internal/platform/querier"
)

const JobPayrollRun = "payroll_run"

var ErrQueueFull = errors.New("job queue full")

type RunFunc func(context.Context) (any, error)

type Service struct {
	DB    querier.Querier
	queue chan job
	wg    sync.WaitGroup
}

type job struct {
	Type      string
	TenantID  string
	SubjectID string
	Run       RunFunc
}

// New builds the job service. db may be nil, in which case job outcomes are
// only logged.
func New(db querier.Querier, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Service{
		DB:    db,
		queue: make(chan job, queueSize),
	}
}

// Start runs a single worker until ctx is done. Payroll runs for a tenant are
// processed one at a time in enqueue order.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
}

// Wait blocks until the worker has exited.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Enqueue(jobType, tenantID, subjectID string, run RunFunc) error {
	select {
	case s.queue <- job{Type: jobType, TenantID: tenantID, SubjectID: subjectID, Run: run}:
		return nil
	default:
		slog.Warn("job queue full", "jobType", jobType, "tenantId", tenantID, "subjectId", subjectID)
		return ErrQueueFull
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, tenantID, subjectID string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, TenantID: tenantID, SubjectID: subjectID, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "tenantId", j.TenantID, "subjectId", j.SubjectID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := s.insertRun(ctx, j)

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailsJSON, marshalErr := json.Marshal(map[string]any{"result": details, "error": errString(err)})
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) insertRun(ctx context.Context, j job) string {
	if s.DB == nil {
		return ""
	}
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (tenant_id, job_type, subject_id, status)
    VALUES ($1,$2,$3,$4)
    RETURNING id
  `, j.TenantID, j.Type, j.SubjectID, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}
	return runID
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
