package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"decision-copilot/internal/agents"
	"decision-copilot/internal/database"
	"decision-copilot/internal/llm"
	"decision-copilot/internal/models"
	"decision-copilot/internal/orchestrator"
	"decision-copilot/internal/queue"
	"decision-copilot/internal/services"

	"github.com/gin-gonic/gin"
)

type testServer struct {
	router   *gin.Engine
	queue    *queue.MemoryQueue
	executor *services.TaskExecutor
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)

	store := database.NewMemoryStore()
	q := queue.NewMemoryQueue()
	orch := orchestrator.New(store, q)
	mock := llm.NewMockClient()
	executor := services.NewTaskExecutor(store, orch, func(name models.TaskName) (agents.Agent, error) {
		return agents.Build(name, mock)
	}, nil)

	handlers := NewHandlers(
		services.NewDecisionService(store, orch),
		services.NewExportService(store, services.NewPDFService()),
	)
	return &testServer{router: SetupRoutes(handlers), queue: q, executor: executor}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for s.queue.Len() > 0 {
		job, err := s.queue.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if err := s.executor.Execute(ctx, job.RunID, job.Task); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
}

func (s *testServer) createDecision(t *testing.T, question string) string {
	t.Helper()
	w := s.do(http.MethodPost, "/api/decisions", `{"question":"`+question+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp models.CreateDecisionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	return resp.DecisionID
}

func TestHealth(t *testing.T) {
	s := newTestServer()
	w := s.do(http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("GET /health = %d %s", w.Code, w.Body.String())
	}
}

func TestCreateDecision_Validation(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing question", `{"context":"x"}`, http.StatusBadRequest},
		{"blank question", `{"question":"   "}`, http.StatusBadRequest},
		{"invalid email", `{"question":"q","notifyEmail":"nope"}`, http.StatusBadRequest},
		{"not json", `question=q`, http.StatusBadRequest},
		{"valid", `{"question":"q","notifyEmail":"a@example.com"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(http.MethodPost, "/api/decisions", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestDecisionLifecycle(t *testing.T) {
	s := newTestServer()
	id := s.createDecision(t, "Move to a monorepo?")

	w := s.do(http.MethodPost, "/api/decisions/"+id+"/runs", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("start run status = %d, body = %s", w.Code, w.Body.String())
	}
	var started models.StartRunResponse
	_ = json.Unmarshal(w.Body.Bytes(), &started)
	if started.RunID == "" || started.Status != models.RunStatusRunning {
		t.Errorf("start run response = %+v", started)
	}

	s.drain(t)

	w = s.do(http.MethodGet, "/api/decisions/"+id, "")
	var snapshot models.StatusSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snapshot.Decision.Status != models.DecisionStatusDone || snapshot.LatestRun == nil || snapshot.LatestRun.ID != started.RunID {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if len(snapshot.Tasks) != 6 {
		t.Errorf("snapshot tasks = %d, want 6", len(snapshot.Tasks))
	}

	w = s.do(http.MethodGet, "/api/decisions/"+id+"/report", "")
	var report models.ReportResponse
	_ = json.Unmarshal(w.Body.Bytes(), &report)
	if report.Status != models.DecisionStatusDone || !bytes.Contains(report.FinalReport, []byte("conditional_go")) {
		t.Errorf("report = %+v", report)
	}

	w = s.do(http.MethodGet, "/api/decisions/"+id+"/explain", "")
	var explanation models.Explanation
	_ = json.Unmarshal(w.Body.Bytes(), &explanation)
	if explanation.RunID != started.RunID || len(explanation.Tasks) != 6 {
		t.Errorf("explanation = run %s with %d tasks", explanation.RunID, len(explanation.Tasks))
	}

	w = s.do(http.MethodGet, "/api/decisions/"+id+"/export", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "# Decision Report") {
		t.Errorf("markdown export = %d %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("markdown Content-Type = %q", ct)
	}

	w = s.do(http.MethodGet, "/api/decisions/"+id+"/export?format=pdf", "")
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("pdf export status = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "decision-"+id+".pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	if w = s.do(http.MethodGet, "/api/decisions/"+id+"/export?format=docx", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown export format status = %d, want 400", w.Code)
	}

	if w = s.do(http.MethodDelete, "/api/decisions/"+id, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w = s.do(http.MethodGet, "/api/decisions/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestStartRun_WithMode(t *testing.T) {
	s := newTestServer()
	id := s.createDecision(t, "q")

	if w := s.do(http.MethodPost, "/api/decisions/"+id+"/runs", `{"mode":"quick"}`); w.Code != http.StatusAccepted {
		t.Fatalf("start run status = %d", w.Code)
	}
	w := s.do(http.MethodGet, "/api/decisions/"+id, "")
	var snapshot models.StatusSnapshot
	_ = json.Unmarshal(w.Body.Bytes(), &snapshot)
	if snapshot.LatestRun == nil || snapshot.LatestRun.Mode != "quick" {
		t.Errorf("LatestRun = %+v, want mode quick", snapshot.LatestRun)
	}

	if w := s.do(http.MethodPost, "/api/decisions/"+id+"/runs", `{"mode":`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	s := newTestServer()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/decisions/missing"},
		{http.MethodDelete, "/api/decisions/missing"},
		{http.MethodPost, "/api/decisions/missing/runs"},
		{http.MethodGet, "/api/decisions/missing/report"},
		{http.MethodGet, "/api/decisions/missing/explain"},
		{http.MethodGet, "/api/decisions/missing/export"},
	} {
		if w := s.do(tc.method, tc.path, ""); w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, w.Code)
		}
	}

	// A decision that was never run has nothing to export
	id := s.createDecision(t, "q")
	if w := s.do(http.MethodGet, "/api/decisions/"+id+"/export", ""); w.Code != http.StatusNotFound {
		t.Errorf("export without run = %d, want 404", w.Code)
	}
}

func TestListDecisions(t *testing.T) {
	s := newTestServer()
	first := s.createDecision(t, "first")
	second := s.createDecision(t, "second")
	s.do(http.MethodPost, "/api/decisions/"+first+"/runs", "")

	w := s.do(http.MethodGet, "/api/decisions", "")
	var resp struct {
		Decisions []models.DecisionSummary `json:"decisions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(resp.Decisions) != 2 || resp.Decisions[0].ID != second {
		t.Errorf("decisions = %+v, want newest first", resp.Decisions)
	}

	w = s.do(http.MethodGet, "/api/decisions?status=running&limit=5", "")
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Decisions) != 1 || resp.Decisions[0].ID != first {
		t.Errorf("running decisions = %+v, want only %s", resp.Decisions, first)
	}

	if w := s.do(http.MethodGet, "/api/decisions?status=paused", ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid status = %d, want 400", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/decisions?limit=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid limit = %d, want 400", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer()
	w := s.do(http.MethodOptions, "/api/decisions", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
