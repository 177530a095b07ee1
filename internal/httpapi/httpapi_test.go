package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aristath/researcher/internal/research"
	"github.com/aristath/researcher/internal/store"
)

type fakeService struct {
	tasks      map[string]research.Task
	submitted  []string
	lastFactor []string
	resumed    map[string]string
	limit      int
	failWith   error
}

func newFakeService() *fakeService {
	return &fakeService{tasks: make(map[string]research.Task), resumed: make(map[string]string)}
}

func (f *fakeService) Submit(query string, factors []string) (research.Task, error) {
	if f.failWith != nil {
		return research.Task{}, f.failWith
	}
	if strings.TrimSpace(query) == "" {
		return research.Task{}, research.ErrEmptyQuery
	}
	task := research.Task{
		ID:            fmt.Sprintf("task-%d", len(f.submitted)+1),
		OriginalQuery: query,
		WorkingQuery:  query,
		Factors:       factors,
		State:         research.StateCreated,
	}
	f.submitted = append(f.submitted, query)
	f.lastFactor = factors
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeService) Status(id string) (store.View, error) {
	task, ok := f.tasks[id]
	if !ok {
		return store.View{}, fmt.Errorf("%w: %s", research.ErrNotFound, id)
	}
	return store.ViewOf(task), nil
}

func (f *fakeService) Resume(id, query string) (store.View, error) {
	task, ok := f.tasks[id]
	if !ok {
		return store.View{}, fmt.Errorf("%w: %s", research.ErrNotFound, id)
	}
	if task.State != research.StateAwaitingClarification {
		return store.View{}, fmt.Errorf("%w: task is %s", research.ErrInvalidState, store.StatusOf(task.State))
	}
	f.resumed[id] = query
	task.State = research.StateClarifying
	task.WorkingQuery = query
	task.PendingQuestion = ""
	f.tasks[id] = task
	return store.ViewOf(task), nil
}

func (f *fakeService) List(limit int) []store.View {
	f.limit = limit
	var views []store.View
	for _, t := range f.tasks {
		views = append(views, store.ViewOf(t))
	}
	return views
}

func (f *fakeService) Result(id string) (string, error) {
	task, ok := f.tasks[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", research.ErrNotFound, id)
	}
	if task.State != research.StateCompleted {
		return "", fmt.Errorf("%w: task is %s", research.ErrInvalidState, store.StatusOf(task.State))
	}
	return task.RenderedOutput, nil
}

func newTestHandler(t *testing.T, svc TaskService, cfg Config) *Handler {
	t.Helper()
	return NewHandler(svc, cfg, zaptest.NewLogger(t))
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestWelcome(t *testing.T) {
	h := newTestHandler(t, newFakeService(), Config{APIKey: "secret"})

	rec := do(t, h, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, WelcomeMessage, decodeBody[map[string]string](t, rec)["message"])

	rec = do(t, h, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyze(t *testing.T) {
	svc := newFakeService()
	h := newTestHandler(t, svc, Config{})

	rec := do(t, h, http.MethodPost, "/analyze",
		`{"query":"CRM software","comparison_factors":["pricing","integrations"]}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decodeBody[AnalyzeResponse](t, rec)
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, store.StatusRunning, resp.Status)
	assert.Equal(t, "/status/task-1", resp.StatusURL)
	assert.Equal(t, "/status/task-1", rec.Header().Get("Location"))
	assert.Equal(t, []string{"pricing", "integrations"}, svc.lastFactor)
}

func TestAnalyze_ProductCategoryAlias(t *testing.T) {
	svc := newFakeService()
	h := newTestHandler(t, svc, Config{})

	rec := do(t, h, http.MethodPost, "/analyze", `{"product_category":"HR software"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"HR software"}, svc.submitted)
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		failWith error
		want     int
	}{
		{"malformed body", `{"query":`, nil, http.StatusBadRequest},
		{"empty query", `{"query":"  "}`, nil, http.StatusBadRequest},
		{"service failure", `{"query":"CRM"}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.failWith = tt.failWith
			h := newTestHandler(t, svc, Config{})

			rec := do(t, h, http.MethodPost, "/analyze", tt.body, nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Error)
		})
	}
}

func TestAPIKey(t *testing.T) {
	h := newTestHandler(t, newFakeService(), Config{APIKey: "secret"})

	rec := do(t, h, http.MethodPost, "/analyze", `{"query":"CRM"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid API Key", decodeBody[ErrorResponse](t, rec).Error)

	rec = do(t, h, http.MethodPost, "/analyze", `{"query":"CRM"}`, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/analyze", `{"query":"CRM"}`, map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	svc := newFakeService()
	svc.tasks["t1"] = research.Task{
		ID:              "t1",
		OriginalQuery:   "software",
		WorkingQuery:    "software",
		State:           research.StateAwaitingClarification,
		PendingQuestion: "What kind of software?",
	}
	h := newTestHandler(t, svc, Config{})

	rec := do(t, h, http.MethodGet, "/status/t1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[store.View](t, rec)
	assert.Equal(t, store.StatusPaused, view.Status)
	assert.Equal(t, "What kind of software?", view.Question)

	rec = do(t, h, http.MethodGet, "/status/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResume(t *testing.T) {
	svc := newFakeService()
	svc.tasks["paused"] = research.Task{ID: "paused", State: research.StateAwaitingClarification, PendingQuestion: "Which?"}
	svc.tasks["done"] = research.Task{ID: "done", State: research.StateCompleted}
	h := newTestHandler(t, svc, Config{})

	rec := do(t, h, http.MethodPost, "/tasks/paused/resume", `{"query":"CI/CD platforms"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	view := decodeBody[store.View](t, rec)
	assert.Equal(t, store.StatusRunning, view.Status)
	assert.Empty(t, view.Question)
	assert.Equal(t, "CI/CD platforms", svc.resumed["paused"])

	rec = do(t, h, http.MethodPost, "/tasks/done/resume", `{"query":"x"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/tasks/missing/resume", `{"query":"x"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestList(t *testing.T) {
	svc := newFakeService()
	svc.tasks["t1"] = research.Task{ID: "t1", State: research.StateSearching}
	h := newTestHandler(t, svc, Config{DefaultLimit: 20})

	rec := do(t, h, http.MethodGet, "/tasks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, svc.limit)
	body := decodeBody[map[string][]store.View](t, rec)
	require.Len(t, body["tasks"], 1)
	assert.Equal(t, "searching", body["tasks"][0].Stage)

	rec = do(t, h, http.MethodGet, "/tasks?limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.limit)

	rec = do(t, h, http.MethodGet, "/tasks?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResult(t *testing.T) {
	svc := newFakeService()
	svc.tasks["done"] = research.Task{ID: "done", State: research.StateCompleted, RenderedOutput: "Name,pricing\nAcme,$10\n"}
	svc.tasks["running"] = research.Task{ID: "running", State: research.StateExtracting}
	h := newTestHandler(t, svc, Config{})

	rec := do(t, h, http.MethodGet, "/results/done.csv", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="done.csv"`)
	assert.Equal(t, "Name,pricing\nAcme,$10\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/results/running.csv", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/results/done", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/results/missing.csv", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, newFakeService(), Config{APIKey: "secret"})

	rec := do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
