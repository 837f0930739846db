package model

import (
	"encoding/json"
	"time"
)

// Run status constants.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run request state constants for queued requests.
const (
	RequestPending = "pending"
	RequestClaimed = "claimed"
	RequestDone    = "done"
	RequestFailed  = "failed"
)

// DefaultQueue is the queue name used when an enqueuer does not name one.
const DefaultQueue = "default"

// validTransitions maps each run status to the set of statuses it may transition to.
// Terminal statuses have no outgoing transitions.
var validTransitions = map[string]map[string]bool{
	StatusRunning: {
		StatusSucceeded: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one run status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether a run status is terminal.
func Terminal(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Run is the persisted lifecycle record of one dispatched execution.
type Run struct {
	ID         string     `json:"id"`
	RequestID  string     `json:"request_id,omitempty"`
	Entity     string     `json:"entity"`
	Project    string     `json:"project"`
	Runner     string     `json:"runner"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunRequest is one queued unit of work awaiting dispatch. The payload is an
// opaque RunSpec document; the queue never interprets it.
type RunRequest struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Entity    string          `json:"entity"`
	Project   string          `json:"project"`
	Payload   json.RawMessage `json:"payload"`
	State     string          `json:"state"`
	Error     string          `json:"error,omitempty"`
	ClaimedBy string          `json:"claimed_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	ClaimedAt *time.Time      `json:"claimed_at,omitempty"`
}

// RunSpec is the document an enqueuer pushes onto a run queue. It carries
// everything the dispatcher needs to launch the run.
type RunSpec struct {
	URI            string            `json:"uri"`
	EntryPoint     string            `json:"entry_point,omitempty"`
	Version        string            `json:"version,omitempty"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	DockerArgs     map[string]string `json:"docker_args,omitempty"`
	ExperimentName string            `json:"experiment_name,omitempty"`
	Resource       string            `json:"resource,omitempty"`
	DockerImage    string            `json:"docker_image,omitempty"`
	RunnerConfig   map[string]any    `json:"runner_config,omitempty"`
	StorageDir     string            `json:"storage_dir,omitempty"`
}
