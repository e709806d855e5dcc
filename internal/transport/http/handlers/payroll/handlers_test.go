package payrollhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"paycore/internal/domain/audit"
	"paycore/internal/domain/auth"
	"paycore/internal/domain/garnishment"
	"paycore/internal/domain/money"
	"paycore/internal/domain/payroll"
	"paycore/internal/domain/paystub"
	"paycore/internal/domain/taxrules"
	"paycore/internal/platform/jobs"
	"paycore/internal/transport/http/api"
	"paycore/internal/transport/http/middleware"
)

const testSecret = "handler-secret"

type memStore struct {
	mu   sync.Mutex
	runs map[string]payroll.PayrollRun
	ytd  map[string]payroll.YTDSnapshot
}

func newMemStore() *memStore {
	return &memStore{runs: map[string]payroll.PayrollRun{}, ytd: map[string]payroll.YTDSnapshot{}}
}

func (m *memStore) CreateRun(_ context.Context, run payroll.PayrollRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *memStore) GetRun(_ context.Context, tenantID, runID string) (payroll.PayrollRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.TenantID != tenantID {
		return payroll.PayrollRun{}, payroll.ErrRunNotFound
	}
	run.Paychecks = append([]payroll.Paycheck(nil), run.Paychecks...)
	run.Inputs = append([]payroll.EmployeeCalculationInput(nil), run.Inputs...)
	return run, nil
}

func (m *memStore) UpdateRun(_ context.Context, run payroll.PayrollRun, from payroll.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.runs[run.ID]
	if stored.Status != from {
		return fmt.Errorf("%w: run %s is no longer %s", payroll.ErrInvalidTransition, run.ID, from)
	}
	run.Paychecks = stored.Paychecks
	m.runs[run.ID] = run
	return nil
}

func (m *memStore) SavePaychecks(_ context.Context, _, runID string, paychecks []payroll.Paycheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.runs[runID]
	run.Paychecks = append([]payroll.Paycheck(nil), paychecks...)
	m.runs[runID] = run
	return nil
}

func (m *memStore) LoadYTD(_ context.Context, _, employeeID string, taxYear int) (payroll.YTDSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.ytd[fmt.Sprintf("%s/%d", employeeID, taxYear)]
	return snap, ok, nil
}

func (m *memStore) LoadOrders(context.Context, string, string) ([]garnishment.Order, error) {
	return nil, nil
}

func (m *memStore) CommitPaycheck(_ context.Context, _, _ string, p payroll.Paycheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s/%d", p.EmployeeID, p.TaxYear)
	current := m.ytd[key]
	if current.Version != p.YTDVersion {
		return payroll.ErrYTDConflict
	}
	m.ytd[key] = payroll.YTDSnapshot{Record: p.YTDAfter, Version: current.Version + 1}
	return nil
}

func (m *memStore) ReversePaycheck(_ context.Context, _, _ string, p payroll.Paycheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s/%d", p.EmployeeID, p.TaxYear)
	current := m.ytd[key]
	m.ytd[key] = payroll.YTDSnapshot{Record: current.Record.Sub(p.YTDDelta), Version: current.Version + 1}
	return nil
}

func (m *memStore) YTDSnapshots(_ context.Context, _ string, taxYear int) ([]payroll.YTDSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []payroll.YTDSnapshot
	for _, snap := range m.ytd {
		if snap.Record.TaxYear == taxYear {
			out = append(out, snap)
		}
	}
	return out, nil
}

// inlineQueue runs jobs immediately so responses can be checked afterwards.
type inlineQueue struct {
	jobs []string
	errs []error
}

func (q *inlineQueue) Enqueue(jobType, _, subjectID string, run jobs.RunFunc) error {
	q.jobs = append(q.jobs, jobType+":"+subjectID)
	_, err := run(context.Background())
	q.errs = append(q.errs, err)
	return nil
}

type staticAudit struct {
	filters []audit.Filter
}

func (a *staticAudit) List(_ context.Context, _ string, filter audit.Filter, _, _ int) ([]audit.Event, error) {
	a.filters = append(a.filters, filter)
	return []audit.Event{{ID: "evt-1", Action: payroll.AuditActionStatus, EntityID: filter.EntityID}}, nil
}

type testEnv struct {
	router http.Handler
	queue  *inlineQueue
	audit  *staticAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	runs := payroll.NewService(newMemStore(), payroll.NewAssembler(taxrules.DefaultRegistry(), money.HalfUp), nil, nil, 2, payroll.PolicyContinue)
	env := &testEnv{queue: &inlineQueue{}, audit: &staticAudit{}}
	h := NewHandler(runs, paystub.NewService(runs, paystub.Archive{}), env.queue, env.audit, nil, auth.RoleStore{})

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Auth(testSecret))
	router.Route("/api/v1", h.RegisterRoutes)
	env.router = router
	return env
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, auth.Claims{UserID: "user-" + role, TenantID: "t1", RoleName: role}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, role))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeRun(t *testing.T, rec *httptest.ResponseRecorder) payroll.PayrollRun {
	t.Helper()
	var env struct {
		Success bool               `json:"success"`
		Data    payroll.PayrollRun `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	if !env.Success {
		t.Fatalf("expected success, got %s", rec.Body.String())
	}
	return env.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env api.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Error == nil {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	return env.Error.Code
}

const employeeJSON = `{
  "employeeId": "e1",
  "payType": "hourly",
  "payRate": "62.50",
  "hoursByType": {"regular": "80"},
  "taxProfile": {"filingStatus": "single", "workState": "TX", "residenceState": "TX"},
  "bankAccountSplitRules": [
    {"accountRef": "savings", "kind": "fixed", "amount": "500.00"},
    {"accountRef": "checking", "kind": "remainder"}
  ]
}`

const periodJSON = `{"start": "2024-06-01", "end": "2024-06-14", "payDate": "2024-06-21", "frequency": "biweekly"}`

func TestRunLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, auth.RolePreparer, http.MethodPost, "/api/v1/payroll/runs",
		`{"period": `+periodJSON+`, "employees": [`+employeeJSON+`]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	run := decodeRun(t, rec)
	if run.Status != payroll.RunStatusDraft {
		t.Fatalf("expected DRAFT, got %s", run.Status)
	}
	base := "/api/v1/payroll/runs/" + run.ID

	if rec := env.do(t, auth.RolePreparer, http.MethodPost, base+"/submit", ""); rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, auth.RolePreparer, http.MethodPost, base+"/approve", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected preparer approve to be forbidden, got %d", rec.Code)
	}
	if rec := env.do(t, auth.RoleApprover, http.MethodPost, base+"/approve", ""); rec.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, auth.RoleApprover, http.MethodPost, base+"/process", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("process: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.queue.jobs) != 1 || env.queue.jobs[0] != jobs.JobPayrollRun+":"+run.ID || env.queue.errs[0] != nil {
		t.Fatalf("unexpected job activity %v %v", env.queue.jobs, env.queue.errs)
	}

	run = decodeRun(t, env.do(t, auth.RoleViewer, http.MethodGet, base, ""))
	if run.Status != payroll.RunStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", run.Status)
	}
	if run.Totals.Net != money.MustParse("3819.87") || run.Totals.EmployeeCount != 1 {
		t.Fatalf("unexpected totals %+v", run.Totals)
	}

	rec = env.do(t, auth.RoleViewer, http.MethodGet, base+"/register", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "e1,committed,2024-06-21,5000.00") {
		t.Fatalf("unexpected register %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv, got %s", ct)
	}

	rec = env.do(t, auth.RoleViewer, http.MethodGet, base+"/disbursements", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("disbursements: expected 200, got %d", rec.Code)
	}
	var disb struct {
		Data disbursementsResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &disb); err != nil {
		t.Fatalf("decode disbursements: %v", err)
	}
	allocs := disb.Data.Disbursements[0].Allocations
	if len(allocs) != 2 || allocs[0].Amount != money.Dollars(500) || allocs[1].Amount != money.MustParse("3319.87") {
		t.Fatalf("unexpected allocations %+v", allocs)
	}

	rec = env.do(t, auth.RolePreparer, http.MethodGet, base+"/paychecks/e1/paystub", "")
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected paystub PDF, got %d", rec.Code)
	}

	rec = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/payroll/ytd/2024", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"socialSecurityWages":"5000.00"`) {
		t.Fatalf("unexpected ytd response %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, auth.RoleViewer, http.MethodGet, base+"/audit?limit=10", "")
	if rec.Code != http.StatusOK || env.audit.filters[0].EntityID != run.ID {
		t.Fatalf("unexpected audit response %d %+v", rec.Code, env.audit.filters)
	}

	if rec := env.do(t, auth.RoleApprover, http.MethodPost, base+"/reverse", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected approver reverse to be forbidden, got %d", rec.Code)
	}
	run = decodeRun(t, env.do(t, auth.RoleAdmin, http.MethodPost, base+"/reverse", ""))
	if run.Status != payroll.RunStatusReversed {
		t.Fatalf("expected REVERSED, got %s", run.Status)
	}
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, auth.RolePreparer, http.MethodPost, "/api/v1/payroll/preview",
		`{"period": `+periodJSON+`, "employee": `+employeeJSON+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var env2 struct {
		Data payroll.Paycheck `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env2.Data.Net != money.MustParse("3819.87") {
		t.Fatalf("expected net 3819.87, got %s", env2.Data.Net)
	}
}

func TestPreviewUnknownStateIsCalculationError(t *testing.T) {
	env := newTestEnv(t)
	body := strings.Replace(employeeJSON, `"workState": "TX", "residenceState": "TX"`, `"workState": "ZZ", "residenceState": "ZZ"`, 1)
	rec := env.do(t, auth.RolePreparer, http.MethodPost, "/api/v1/payroll/preview", `{"period": `+periodJSON+`, "employee": `+body+`}`)
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != "calculation_error" {
		t.Fatalf("expected 422 calculation_error, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateRunValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, auth.RolePreparer, http.MethodPost, "/api/v1/payroll/runs",
		`{"period": {"start": "2024-06-14", "end": "2024-06-01", "payDate": "soon", "frequency": "hourly"}, "employees": []}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "validation_error" {
		t.Fatalf("expected 400 validation_error, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, auth.RolePreparer, http.MethodPost, "/api/v1/payroll/runs", `{"period": `+periodJSON+`, "employees": []}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "validation_error" {
		t.Fatalf("expected 400 for empty employee list, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, auth.RolePreparer, http.MethodPost, "/api/v1/payroll/runs", `{"period": `)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_json" {
		t.Fatalf("expected 400 invalid_json, got %d", rec.Code)
	}
}

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, "", http.MethodGet, "/api/v1/payroll/runs/r1", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := env.do(t, auth.RoleViewer, http.MethodPost, "/api/v1/payroll/runs", "{}"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/payroll/runs/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestProcessRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	run := decodeRun(t, env.do(t, auth.RolePreparer, http.MethodPost, "/api/v1/payroll/runs",
		`{"period": `+periodJSON+`, "employees": [`+employeeJSON+`]}`))

	rec := env.do(t, auth.RoleApprover, http.MethodPost, "/api/v1/payroll/runs/"+run.ID+"/process", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if len(env.queue.jobs) != 0 {
		t.Fatalf("expected no job, got %v", env.queue.jobs)
	}

	rec = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/payroll/runs/"+run.ID+"/disbursements", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected disbursements of a draft run to conflict, got %d", rec.Code)
	}

	rec = env.do(t, auth.RolePreparer, http.MethodPost, "/api/v1/payroll/runs/"+run.ID+"/cancel", "")
	if rec.Code != http.StatusOK || decodeRun(t, rec).Status != payroll.RunStatusCancelled {
		t.Fatalf("expected cancel to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestResolveRejectsUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, auth.RoleApprover, http.MethodPost, "/api/v1/payroll/runs/r1/paychecks/e1/resolve", `{"action": "ignore"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
