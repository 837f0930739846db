package backend

import (
	"context"

	"github.com/seantiz/hangar/internal/project"
)

// Reserved RunConfig keys. The dispatcher always sets these; values supplied
// by callers under the same keys are overwritten.
const (
	KeySynchronous = "SYNCHRONOUS"
	KeyDockerArgs  = "DOCKER_ARGS"
	KeyStorageDir  = "STORAGE_DIR"
	KeyDockerImage = "DOCKER_IMAGE"
)

// Backend is the interface that all execution backends must implement.
// Each backend (local process, container, cluster scheduler) provides its own
// implementation behind this one contract.
type Backend interface {
	// Dispatch starts executing the project under the given run configuration
	// and returns a handle to the in-flight execution. Dispatch must not block
	// for the duration of the run.
	Dispatch(ctx context.Context, proj *project.Project, cfg RunConfig) (SubmittedRun, error)

	// Capabilities reports what this backend supports.
	Capabilities() Capabilities
}

// SubmittedRun is a handle to one in-flight execution. A run starts in the
// running status and reaches exactly one terminal status: succeeded, failed,
// or cancelled. There are no transitions out of a terminal status.
type SubmittedRun interface {
	// ID returns the backend-assigned identifier for this run.
	ID() string

	// Status returns the current run status.
	Status() string

	// Wait blocks until the run reaches a terminal status and reports whether
	// it succeeded. It is idempotent: calling it again after the run is
	// terminal returns immediately with the same result. Cancelling ctx
	// returns ctx's error without affecting the run.
	Wait(ctx context.Context) (bool, error)

	// Cancel requests best-effort termination of the underlying execution.
	// Calling Cancel on an already-terminal run is a no-op.
	Cancel() error
}

// RunConfig carries backend-specific options for one dispatch. Keys other
// than the reserved ones pass through to the backend opaquely. A RunConfig is
// built fresh per run and is read-only once handed to a backend.
type RunConfig map[string]any

// Synchronous reports the dispatcher-injected synchronous flag.
func (c RunConfig) Synchronous() bool {
	v, _ := c[KeySynchronous].(bool)
	return v
}

// DockerArgs returns the dispatcher-injected docker argument mapping, or nil.
func (c RunConfig) DockerArgs() map[string]string {
	v, _ := c[KeyDockerArgs].(map[string]string)
	return v
}

// StorageDir returns the dispatcher-injected storage directory, or "".
func (c RunConfig) StorageDir() string {
	v, _ := c[KeyStorageDir].(string)
	return v
}

// DockerImage returns the container image for this run, or "" when none was set.
func (c RunConfig) DockerImage() string {
	v, _ := c[KeyDockerImage].(string)
	return v
}

// Capabilities describes what a backend supports.
type Capabilities struct {
	Name           string `json:"name"`
	SupportsDocker bool   `json:"supports_docker"`
	Description    string `json:"description,omitempty"`
}
