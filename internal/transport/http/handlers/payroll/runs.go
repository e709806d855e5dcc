package payrollhandler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paycore/internal/domain/payroll"
	"paycore/internal/domain/taxrules"
	"paycore/internal/platform/jobs"
	"paycore/internal/transport/http/api"
	"paycore/internal/transport/http/middleware"
	"paycore/internal/transport/http/shared"
)

const endpointCreateRun = "payroll.runs.create"

type periodPayload struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	PayDate   string `json:"payDate"`
	Frequency string `json:"frequency"`
}

func (p periodPayload) parse(v *shared.Validator) payroll.PayPeriodContext {
	start, _ := v.Date("period.start", p.Start)
	end, _ := v.Date("period.end", p.End)
	payDate, _ := v.Date("period.payDate", p.PayDate)
	v.DateOrder("period.start", start, "period.end", end)
	frequency := taxrules.Frequency(p.Frequency)
	if !frequency.Valid() {
		v.Add("period.frequency", "is not a supported pay frequency")
	}
	return payroll.PayPeriodContext{Start: start, End: end, PayDate: payDate, Frequency: frequency}
}

type previewPayload struct {
	Period   periodPayload                    `json:"period"`
	Employee payroll.EmployeeCalculationInput `json:"employee"`
}

type createRunPayload struct {
	Period    periodPayload                      `json:"period"`
	Policy    payroll.RunPolicy                  `json:"policy"`
	Employees []payroll.EmployeeCalculationInput `json:"employees"`
}

type processResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var payload previewPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	period := payload.Period.parse(v)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	paycheck, err := h.Runs.Preview(period, payload.Employee)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, paycheck, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	var raw json.RawMessage
	if !decode(w, r, &raw) {
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	requestHash := middleware.RequestHash(raw)
	if idempotencyKey != "" {
		stored, found, err := h.Idempotency.Check(r.Context(), user.TenantID, user.UserID, endpointCreateRun, idempotencyKey, requestHash)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if found {
			api.Created(w, stored, middleware.GetRequestID(r.Context()))
			return
		}
	}

	var payload createRunPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON: "+err.Error(), middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	period := payload.Period.parse(v)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	run, err := h.Runs.CreateRun(r.Context(), user.TenantID, actorFrom(r, user), period, payload.Policy, payload.Employees)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if idempotencyKey != "" {
		response, err := json.Marshal(run)
		if err != nil {
			slog.Warn("create run response marshal failed", "runId", run.ID, "err", err)
		} else if err := h.Idempotency.Save(r.Context(), user.TenantID, user.UserID, endpointCreateRun, idempotencyKey, requestHash, response); err != nil {
			slog.Warn("idempotency save failed", "runId", run.ID, "err", err)
		}
	}
	api.Created(w, run, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	run, err := h.Runs.GetRun(r.Context(), user.TenantID, chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, run, middleware.GetRequestID(r.Context()))
}

type runAction func(ctx context.Context, tenantID, runID string, actor payroll.Actor) (payroll.PayrollRun, error)

func (h *Handler) transition(action runAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.GetUser(r.Context())
		run, err := action(r.Context(), user.TenantID, chi.URLParam(r, "runID"), actorFrom(r, user))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.Success(w, run, middleware.GetRequestID(r.Context()))
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(h.Runs.Submit)(w, r)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(h.Runs.Approve)(w, r)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(h.Runs.Cancel)(w, r)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	h.transition(h.Runs.Reverse)(w, r)
}

// handleProcess queues an approved run for the background worker.
func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	runID := chi.URLParam(r, "runID")
	run, err := h.Runs.GetRun(r.Context(), user.TenantID, runID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if run.Status != payroll.RunStatusApproved && run.Status != payroll.RunStatusProcessing {
		api.Fail(w, http.StatusConflict, "invalid_state", "run must be APPROVED before processing, it is "+string(run.Status), middleware.GetRequestID(r.Context()))
		return
	}

	actor := actorFrom(r, user)
	tenantID := user.TenantID
	err = h.Jobs.Enqueue(jobs.JobPayrollRun, tenantID, runID, func(ctx context.Context) (any, error) {
		done, err := h.Runs.Process(ctx, tenantID, runID, actor)
		if err != nil {
			return map[string]any{"status": done.Status}, err
		}
		return map[string]any{"status": done.Status, "totals": done.Totals}, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Accepted(w, processResponse{RunID: runID, Status: "queued"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var res payroll.Resolution
	if !decode(w, r, &res) {
		return
	}
	v := shared.NewValidator()
	switch res.Action {
	case payroll.ReviewExclude, payroll.ReviewRecalculate:
	default:
		v.Add("action", "must be exclude or recalculate")
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	run, err := h.Runs.ResolveReview(r.Context(), user.TenantID, chi.URLParam(r, "runID"), chi.URLParam(r, "employeeID"), res, actorFrom(r, user))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, run, middleware.GetRequestID(r.Context()))
}
