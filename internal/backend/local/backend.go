// Package local implements the "local" execution backend: it runs a project's
// entry point as a child process on the same host.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/seantiz/hangar/internal/backend"
	"github.com/seantiz/hangar/internal/model"
	"github.com/seantiz/hangar/internal/project"
)

// BackendName is the name used when registering with the backend registry.
const BackendName = "local"

// storageDirEnv is exported to the child process when a storage directory is
// configured for the run.
const storageDirEnv = "HANGAR_STORAGE_DIR"

// Backend runs projects as local child processes.
type Backend struct {
	logger *slog.Logger
}

// New creates a local backend.
func New(logger *slog.Logger) *Backend {
	return &Backend{logger: logger}
}

// Capabilities reports what the local backend supports.
func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:           BackendName,
		SupportsDocker: false,
		Description:    "runs the project entry point as a child process on this host",
	}
}

// Run wraps one child process execution.
type Run struct {
	*backend.Handle
	cmd *exec.Cmd
}

// Dispatch starts the project's entry point as a child process and returns a
// handle to it. The process runs in its own process group so cancellation can
// terminate the whole tree.
func (b *Backend) Dispatch(_ context.Context, proj *project.Project, cfg backend.RunConfig) (backend.SubmittedRun, error) {
	cmd := buildCommand(proj)
	cmd.Dir = proj.URI
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Env = os.Environ()
	for k, v := range proj.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if dir := cfg.StorageDir(); dir != "" {
		cmd.Env = append(cmd.Env, storageDirEnv+"="+dir)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", proj.EntryPoint, err)
	}

	id := model.NewID()
	pgid := cmd.Process.Pid
	h := backend.NewHandle(id, func() error {
		// Negative pid signals the whole process group.
		return syscall.Kill(-pgid, syscall.SIGTERM)
	})

	b.logger.Info("local run started",
		"run_id", id,
		"entry_point", proj.EntryPoint,
		"pid", cmd.Process.Pid,
	)

	run := &Run{Handle: h, cmd: cmd}
	go b.monitor(run)
	return run, nil
}

// monitor waits for the child process to exit and drives the handle to its
// terminal status.
func (b *Backend) monitor(run *Run) {
	err := run.cmd.Wait()
	switch {
	case run.CancelRequested():
		run.Finish(model.StatusCancelled)
	case err != nil:
		b.logger.Warn("local run failed", "run_id", run.ID(), "error", err)
		run.Finish(model.StatusFailed)
	default:
		run.Finish(model.StatusSucceeded)
	}
}

// buildCommand assembles the child command for a project's entry point.
// Shell and python scripts run under their interpreters; anything else is
// executed directly. Parameters are appended as --key value pairs in sorted
// key order so the command line is deterministic.
func buildCommand(proj *project.Project) *exec.Cmd {
	args := paramArgs(proj.Parameters)
	switch filepath.Ext(proj.EntryPoint) {
	case ".sh":
		return exec.Command("sh", append([]string{proj.EntryPoint}, args...)...)
	case ".py":
		return exec.Command("python3", append([]string{proj.EntryPoint}, args...)...)
	default:
		return exec.Command("./"+proj.EntryPoint, args...)
	}
}

func paramArgs(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, "--"+k, params[k])
	}
	return args
}
