package payrollhandler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"paycore/internal/domain/audit"
	"paycore/internal/domain/payroll"
	"paycore/internal/transport/http/api"
	"paycore/internal/transport/http/middleware"
	"paycore/internal/transport/http/shared"
)

type disbursementsResponse struct {
	RunID         string                 `json:"runId"`
	PayDate       string                 `json:"payDate"`
	Disbursements []payroll.Disbursement `json:"disbursements"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	runID := chi.URLParam(r, "runID")
	var buf bytes.Buffer
	if err := h.Runs.WriteRegister(r.Context(), user.TenantID, runID, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=payroll-register-%s.csv", runID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleDisbursements(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	runID := chi.URLParam(r, "runID")
	run, err := h.Runs.GetRun(r.Context(), user.TenantID, runID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Runs.Disbursements(r.Context(), user.TenantID, runID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, disbursementsResponse{
		RunID:         runID,
		PayDate:       run.Period.PayDate.Format("2006-01-02"),
		Disbursements: out,
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePaystub(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	runID := chi.URLParam(r, "runID")
	employeeID := chi.URLParam(r, "employeeID")
	doc, err := h.Paystubs.Paystub(r.Context(), user.TenantID, runID, employeeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=paystub-%s-%s.pdf", runID, employeeID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) handleRunAudit(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 50, 200)
	events, err := h.Audit.List(r.Context(), user.TenantID, audit.Filter{EntityID: chi.URLParam(r, "runID")}, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, shared.Wrap(page, events), middleware.GetRequestID(r.Context()))
}

// handleYTD returns every employee's year-to-date record for the year-end
// tax forms.
func (h *Handler) handleYTD(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	year, err := strconv.Atoi(chi.URLParam(r, "taxYear"))
	if err != nil || year < 1900 || year > 9999 {
		v := shared.NewValidator()
		v.Add("taxYear", "must be a four digit year")
		v.Reject(w, middleware.GetRequestID(r.Context()))
		return
	}
	snapshots, err := h.Runs.YTDSnapshots(r.Context(), user.TenantID, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, snapshots, middleware.GetRequestID(r.Context()))
}
