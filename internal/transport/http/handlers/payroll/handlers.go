package payrollhandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paycore/internal/domain/audit"
	"paycore/internal/domain/auth"
	"paycore/internal/domain/payroll"
	"paycore/internal/domain/paystub"
	"paycore/internal/platform/jobs"
	"paycore/internal/transport/http/api"
	"paycore/internal/transport/http/middleware"
	"paycore/internal/transport/http/shared"
)

// JobQueue runs work in the background. jobs.Service satisfies it.
type JobQueue interface {
	Enqueue(jobType, tenantID, subjectID string, run jobs.RunFunc) error
}

// AuditLog lists recorded audit events. audit.Service satisfies it.
type AuditLog interface {
	List(ctx context.Context, tenantID string, filter audit.Filter, limit, offset int) ([]audit.Event, error)
}

type Handler struct {
	Runs        *payroll.Service
	Paystubs    *paystub.Service
	Jobs        JobQueue
	Audit       AuditLog
	Idempotency *middleware.IdempotencyStore
	Perms       middleware.PermissionStore
}

func NewHandler(runs *payroll.Service, paystubs *paystub.Service, queue JobQueue, auditLog AuditLog, idem *middleware.IdempotencyStore, perms middleware.PermissionStore) *Handler {
	return &Handler{
		Runs:        runs,
		Paystubs:    paystubs,
		Jobs:        queue,
		Audit:       auditLog,
		Idempotency: idem,
		Perms:       perms,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	perm := func(p string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(p, h.Perms)
	}
	r.Route("/payroll", func(r chi.Router) {
		r.With(perm(auth.PermPayrollPrepare)).Post("/preview", h.handlePreview)
		r.With(perm(auth.PermPayrollPrepare)).Post("/runs", h.handleCreateRun)
		r.With(perm(auth.PermPayrollRead)).Get("/runs/{runID}", h.handleGetRun)
		r.With(perm(auth.PermPayrollPrepare)).Post("/runs/{runID}/submit", h.handleSubmit)
		r.With(perm(auth.PermPayrollApprove)).Post("/runs/{runID}/approve", h.handleApprove)
		r.With(perm(auth.PermPayrollPrepare)).Post("/runs/{runID}/cancel", h.handleCancel)
		r.With(perm(auth.PermPayrollProcess)).Post("/runs/{runID}/process", h.handleProcess)
		r.With(perm(auth.PermPayrollReverse)).Post("/runs/{runID}/reverse", h.handleReverse)
		r.With(perm(auth.PermPayrollApprove)).Post("/runs/{runID}/paychecks/{employeeID}/resolve", h.handleResolve)
		r.With(perm(auth.PermPayrollRead)).Get("/runs/{runID}/register", h.handleRegister)
		r.With(perm(auth.PermPayrollRead)).Get("/runs/{runID}/disbursements", h.handleDisbursements)
		r.With(perm(auth.PermPayrollRead)).Get("/runs/{runID}/audit", h.handleRunAudit)
		r.With(perm(auth.PermPaystubRead)).Get("/runs/{runID}/paychecks/{employeeID}/paystub", h.handlePaystub)
		r.With(perm(auth.PermPayrollRead)).Get("/ytd/{taxYear}", h.handleYTD)
	})
}

func actorFrom(r *http.Request, user auth.UserContext) payroll.Actor {
	return payroll.Actor{
		UserID:    user.UserID,
		RequestID: middleware.GetRequestID(r.Context()),
		IP:        shared.ClientIP(r),
	}
}

// decode reads a JSON body. A false return means a response was written.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", middleware.GetRequestID(r.Context()))
			return false
		}
		api.Fail(w, http.StatusBadRequest, "invalid_request", "could not read request body", middleware.GetRequestID(r.Context()))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON: "+err.Error(), middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

// writeError maps domain errors onto the response envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r.Context())
	var verr *payroll.ValidationError
	var cerr *payroll.CalculationError
	switch {
	case errors.As(err, &verr):
		api.FailWithDetails(w, http.StatusBadRequest, "validation_error", "payload validation failed",
			map[string]any{"employeeId": verr.EmployeeID, "fields": verr.Issues}, reqID)
	case errors.Is(err, payroll.ErrRunNotFound), errors.Is(err, payroll.ErrPaycheckNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, payroll.ErrRunAborted):
		api.Fail(w, http.StatusUnprocessableEntity, "run_aborted", err.Error(), reqID)
	case errors.As(err, &cerr):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "calculation_error", err.Error(),
			map[string]any{"employeeId": cerr.EmployeeID, "stage": cerr.Stage}, reqID)
	case errors.Is(err, payroll.ErrInvalidTransition), errors.Is(err, payroll.ErrNotInReview), errors.Is(err, payroll.ErrIncompleteRun),
		errors.Is(err, paystub.ErrNotIssued), errors.Is(err, middleware.ErrIdempotencyConflict):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), reqID)
	case errors.Is(err, paystub.ErrInvalidID):
		api.Fail(w, http.StatusBadRequest, "invalid_request", err.Error(), reqID)
	case errors.Is(err, jobs.ErrQueueFull):
		api.Fail(w, http.StatusServiceUnavailable, "busy", "job queue is full, retry later", reqID)
	default:
		slog.Error("payroll request failed", "path", r.URL.Path, "requestId", reqID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", reqID)
	}
}
