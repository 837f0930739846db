package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/hangar/internal/model"
)

// pushRequest is the JSON body for POST /v1/queues/{queue}/requests.
type pushRequest struct {
	Entity  string          `json:"entity"`
	Project string          `json:"project"`
	RunSpec json.RawMessage `json:"run_spec"`
}

// handlePushRequest enqueues one run request. Push failures stop at this
// boundary: they are logged and surfaced as an HTTP error, never re-thrown.
func (s *Server) handlePushRequest(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")

	var req pushRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Entity == "" || req.Project == "" {
		s.writeError(w, http.StatusBadRequest, "entity and project are required")
		return
	}
	if len(req.RunSpec) == 0 {
		s.writeError(w, http.StatusBadRequest, "run_spec is required")
		return
	}
	var spec model.RunSpec
	if err := json.Unmarshal(req.RunSpec, &spec); err != nil {
		s.writeError(w, http.StatusBadRequest, "run_spec is not a valid run spec")
		return
	}

	item := &model.RunRequest{
		ID:        model.NewID(),
		Queue:     queue,
		Entity:    req.Entity,
		Project:   req.Project,
		Payload:   req.RunSpec,
		State:     model.RequestPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.EnqueueRequest(r.Context(), item); err != nil {
		s.logger.Error("enqueue request", "queue", queue, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to enqueue request")
		return
	}

	s.writeJSON(w, http.StatusCreated, item)
}
