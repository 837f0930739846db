package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/hangar/internal/backend"
	"github.com/seantiz/hangar/internal/launcher"
	"github.com/seantiz/hangar/internal/model"
	"github.com/seantiz/hangar/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// launchRequest is the JSON body for POST /v1/launch.
type launchRequest struct {
	URI            string            `json:"uri"`
	EntryPoint     string            `json:"entry_point"`
	Version        string            `json:"version"`
	Parameters     map[string]string `json:"parameters"`
	DockerArgs     map[string]string `json:"docker_args"`
	ExperimentName string            `json:"experiment_name"`
	Resource       string            `json:"resource"`
	Entity         string            `json:"entity"`
	Project        string            `json:"project"`
	DockerImage    string            `json:"docker_image"`
	RunnerConfig   map[string]any    `json:"runner_config"`
	StorageDir     string            `json:"storage_dir"`
}

// listRunsResponse wraps the paginated list response.
type listRunsResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// handleLaunch dispatches a run asynchronously and returns its record. The
// run's terminal status lands in the store once the watcher observes it.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.URI == "" {
		s.writeError(w, http.StatusBadRequest, "uri is required")
		return
	}
	if req.Resource == "" {
		s.writeError(w, http.StatusBadRequest, "resource is required")
		return
	}

	run, err := s.launcher.Run(r.Context(), launcher.Options{
		URI:            req.URI,
		EntryPoint:     req.EntryPoint,
		Version:        req.Version,
		Parameters:     req.Parameters,
		DockerArgs:     req.DockerArgs,
		ExperimentName: req.ExperimentName,
		Resource:       req.Resource,
		Entity:         req.Entity,
		Project:        req.Project,
		DockerImage:    req.DockerImage,
		RunnerConfig:   req.RunnerConfig,
		StorageDir:     req.StorageDir,
		Synchronous:    false,
	})
	if err != nil {
		var nf *backend.NotFoundError
		if errors.As(err, &nf) {
			s.writeError(w, http.StatusBadRequest, nf.Error())
			return
		}
		s.logger.Error("launch", "error", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := &model.Run{
		ID:        run.ID(),
		Entity:    req.Entity,
		Project:   req.Project,
		Runner:    req.Resource,
		Status:    model.StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRun(r.Context(), rec); err != nil {
		s.logger.Error("create run record", "run_id", run.ID(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to record run")
		return
	}

	s.trackRun(run)
	go s.watchRun(run)

	s.writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// handleCancelRun requests best-effort cancellation of a run launched through
// this server. Runs owned by an agent or another process cannot be cancelled
// here.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, ok := s.lookupRun(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not tracked by this server")
		return
	}

	if err := run.Cancel(); err != nil {
		s.logger.Error("cancel run", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to cancel run")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": run.Status()})
}

func (s *Server) trackRun(run backend.SubmittedRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[run.ID()] = run
}

func (s *Server) lookupRun(id string) (backend.SubmittedRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.inflight[id]
	return run, ok
}

// watchRun records the terminal status of one run launched via the API.
func (s *Server) watchRun(run backend.SubmittedRun) {
	ok, _ := run.Wait(context.Background())
	status := run.Status()

	s.mu.Lock()
	delete(s.inflight, run.ID())
	s.mu.Unlock()

	var errMsg string
	if !ok {
		errMsg = "submitted run did not succeed"
	}
	if err := s.store.UpdateRunStatus(context.Background(), run.ID(), status, errMsg); err != nil {
		s.logger.Error("update run record", "run_id", run.ID(), "error", err)
	}
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
