package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/hangar/internal/api"
	"github.com/seantiz/hangar/internal/backend"
	"github.com/seantiz/hangar/internal/launcher"
	"github.com/seantiz/hangar/internal/model"
	"github.com/seantiz/hangar/internal/project"
	"github.com/seantiz/hangar/internal/store"
)

// stubResolver accepts any URI without touching the filesystem.
type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, uri, _, _, version, entryPoint string, parameters map[string]string) (*project.Project, error) {
	return &project.Project{
		URI:        uri,
		EntryPoint: entryPoint,
		Version:    version,
		Parameters: parameters,
		Env:        make(map[string]string),
	}, nil
}

type stubSettings struct{}

func (stubSettings) Setting(string) string { return "" }

// stubBackend finishes every run with the configured status after a short delay.
type stubBackend struct {
	status string
	delay  time.Duration
}

func (b *stubBackend) Dispatch(_ context.Context, _ *project.Project, _ backend.RunConfig) (backend.SubmittedRun, error) {
	h := backend.NewHandle(model.NewID(), nil)
	status := b.status
	go func() {
		time.Sleep(b.delay)
		h.Finish(status)
	}()
	return h, nil
}

func (b *stubBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Name: "stub", Description: "test backend"}
}

func newTestServer(t *testing.T) (*api.Server, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := backend.NewRegistry()
	reg.Register("stub", &stubBackend{status: model.StatusSucceeded, delay: 5 * time.Millisecond})

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	l := launcher.New(stubResolver{}, stubSettings{}, reg, logger)
	return api.NewServer(":0", s, reg, l, logger), s
}

func doRequest(t *testing.T, srv *api.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doRequest(t, srv, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestListBackends(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doRequest(t, srv, http.MethodGet, "/v1/backends", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var infos []backend.Info
	if err := json.Unmarshal(rr.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "stub" {
		t.Errorf("backends = %v", infos)
	}
}

func TestLaunchAndGetRun(t *testing.T) {
	srv, s := newTestServer(t)

	rr := doRequest(t, srv, http.MethodPost, "/v1/launch",
		`{"uri": "/src/project", "resource": "stub", "entity": "team", "project": "demo"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rr.Code, rr.Body.String())
	}

	var rec model.Run
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != model.StatusRunning {
		t.Errorf("initial status = %q, want running", rec.Status)
	}

	// The watcher records the terminal status once the stub run finishes.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := s.GetRun(context.Background(), rec.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.Status == model.StatusSucceeded {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run record never reached succeeded")
}

func TestLaunchUnknownBackend(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodPost, "/v1/launch",
		`{"uri": "/src/project", "resource": "slurm"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "unavailable backend") {
		t.Errorf("body = %s, want backend-not-found diagnostic", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "stub") {
		t.Errorf("body = %s, want known backend names listed", rr.Body.String())
	}
}

func TestLaunchValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing uri", `{"resource": "stub"}`},
		{"missing resource", `{"uri": "/src/project"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, srv, http.MethodPost, "/v1/launch", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestPushRequest(t *testing.T) {
	srv, s := newTestServer(t)

	rr := doRequest(t, srv, http.MethodPost, "/v1/queues/gpu/requests",
		`{"entity": "team", "project": "demo", "run_spec": {"uri": "/src/project", "resource": "stub"}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}

	var req model.RunRequest
	if err := json.Unmarshal(rr.Body.Bytes(), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Queue != "gpu" || req.State != model.RequestPending {
		t.Errorf("request = %+v", req)
	}

	// The pushed request is pollable.
	got, err := s.PollNextRequest(context.Background(), "team", "demo", "agent-1", []string{"gpu"})
	if err != nil {
		t.Fatalf("PollNextRequest: %v", err)
	}
	if got.ID != req.ID {
		t.Errorf("polled %q, want %q", got.ID, req.ID)
	}
}

func TestPushRequestValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing scope", `{"run_spec": {"uri": "/p"}}`},
		{"missing spec", `{"entity": "team", "project": "demo"}`},
		{"spec not an object", `{"entity": "team", "project": "demo", "run_spec": "nope"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, srv, http.MethodPost, "/v1/queues/gpu/requests", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doRequest(t, srv, http.MethodGet, "/v1/runs/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestListRunsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doRequest(t, srv, http.MethodGet, "/v1/runs", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"runs":[]`) {
		t.Errorf("body = %s, want empty runs array", rr.Body.String())
	}
}

func TestCancelUntrackedRun(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doRequest(t, srv, http.MethodDelete, "/v1/runs/not-tracked", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
