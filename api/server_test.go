package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"newsbot/orchestrator"
	"newsbot/runstate"
	"newsbot/types"

	"github.com/gin-gonic/gin"
)

type fakeRunner struct {
	dates chan string
}

func (f *fakeRunner) Run(ctx context.Context, runDate string) (*orchestrator.Result, error) {
	f.dates <- runDate
	return &orchestrator.Result{RunDate: runDate}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeRunner, *orchestrator.Manager, *runstate.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	runner := &fakeRunner{dates: make(chan string, 1)}
	manager := orchestrator.NewManager()
	store := runstate.NewMemoryStore()
	r := NewRouter(Deps{
		Runner:  runner,
		Manager: manager,
		Store:   store,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return r, runner, manager, store
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	w := do(r, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

type downStore struct {
	*runstate.MemoryStore
}

func (downStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestHealthReportsUnavailableStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(Deps{
		Runner:  &fakeRunner{dates: make(chan string, 1)},
		Manager: orchestrator.NewManager(),
		Store:   downStore{runstate.NewMemoryStore()},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	w := do(r, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	r, _, manager, _ := newTestRouter(t)
	manager.TryStart("2025-01-06")
	manager.SetState(orchestrator.StateGenerating)

	w := do(r, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	var got orchestrator.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.State != orchestrator.StateGenerating || got.RunDate != "2025-01-06" || len(got.Logs) == 0 {
		t.Errorf("status = %+v", got)
	}
}

func TestRunTrigger(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantDate string
	}{
		{"today", "/api/run", "", http.StatusAccepted, ""},
		{"body date", "/api/run", `{"run_date":"2025-01-04"}`, http.StatusAccepted, "2025-01-04"},
		{"query date", "/api/run?date=2025-01-05", "", http.StatusAccepted, "2025-01-05"},
		{"bad date", "/api/run", `{"run_date":"04/01/2025"}`, http.StatusBadRequest, ""},
		{"bad json", "/api/run", `{"run_date":`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, runner, _, _ := newTestRouter(t)
			w := do(r, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode != http.StatusAccepted {
				return
			}
			select {
			case got := <-runner.dates:
				if got != tt.wantDate {
					t.Errorf("run date = %q, want %q", got, tt.wantDate)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("runner not called")
			}
		})
	}
}

func TestRunTriggerConflict(t *testing.T) {
	r, runner, manager, _ := newTestRouter(t)
	manager.TryStart("2025-01-06")

	w := do(r, http.MethodPost, "/api/run", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409", w.Code)
	}
	select {
	case <-runner.dates:
		t.Error("runner called while busy")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunsEndpoints(t *testing.T) {
	r, _, _, store := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/runs", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"runs":[]`) {
		t.Errorf("empty list = %d %s", w.Code, w.Body.String())
	}

	state := &types.RunState{
		RunDate: "2025-01-06",
		RunID:   "run-1",
		Threads: []types.ThreadRecord{{Index: 0, Status: types.ThreadPublished, Posts: []types.PostRecord{{Text: "index", ID: "42"}}}},
	}
	if err := store.Save(context.Background(), state); err != nil {
		t.Fatal(err)
	}

	w = do(r, http.MethodGet, "/api/runs", "")
	if !strings.Contains(w.Body.String(), "2025-01-06") {
		t.Errorf("list = %s", w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/runs/2025-01-06", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get code = %d", w.Code)
	}
	var got types.RunState
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.RunID != "run-1" || got.Threads[0].Posts[0].ID != "42" {
		t.Errorf("state = %+v", got)
	}

	w = do(r, http.MethodGet, "/api/runs/2025-01-07", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing run code = %d", w.Code)
	}
}
