// Package launcher implements the run dispatcher: it resolves a project
// descriptor, assembles the run configuration, selects a backend from the
// registry, and hands the descriptor to the backend for execution.
package launcher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/seantiz/hangar/internal/backend"
	"github.com/seantiz/hangar/internal/project"
)

// Environment keys the dispatcher injects into every project descriptor.
// Injection is last-writer-wins: any prior value at these keys is overwritten.
const (
	EnvProject = "HANGAR_PROJECT"
	EnvEntity  = "HANGAR_ENTITY"
)

// Settings keys consulted when the caller leaves entity/project unset.
const (
	SettingEntity  = "entity"
	SettingProject = "project"
)

// ErrRunFailed is returned by a synchronous Run whose submitted run reached
// the failed or cancelled status.
var ErrRunFailed = errors.New("submitted run failed")

// Settings provides ambient defaults for the target entity and project.
type Settings interface {
	Setting(key string) string
}

// Options are the parameters of one launch. Resource names the backend to
// dispatch to; RunnerConfig passes through to the backend opaquely except for
// the reserved keys, which the dispatcher always overwrites.
type Options struct {
	URI            string
	EntryPoint     string
	Version        string
	Parameters     map[string]string
	DockerArgs     map[string]string
	ExperimentName string
	Resource       string
	Entity         string
	Project        string
	DockerImage    string
	RunnerConfig   map[string]any
	StorageDir     string
	Synchronous    bool
}

// Launcher dispatches runs to backends. It owns the project descriptor and
// run configuration for the duration of a single dispatch; neither is shared
// across concurrent dispatches.
type Launcher struct {
	resolver project.Resolver
	settings Settings
	registry *backend.Registry
	logger   *slog.Logger
}

// New creates a launcher.
func New(resolver project.Resolver, settings Settings, registry *backend.Registry, logger *slog.Logger) *Launcher {
	return &Launcher{
		resolver: resolver,
		settings: settings,
		registry: registry,
		logger:   logger,
	}
}

// Launch resolves the project, builds the run configuration, and dispatches
// to the backend named by opts.Resource. Resolution errors propagate
// unchanged. An unregistered resource fails with *backend.NotFoundError; the
// condition is terminal and never retried here.
func (l *Launcher) Launch(ctx context.Context, opts Options) (backend.SubmittedRun, error) {
	proj, err := l.resolver.Resolve(ctx, opts.URI, opts.ExperimentName, opts.Resource, opts.Version, opts.EntryPoint, opts.Parameters)
	if err != nil {
		return nil, err
	}

	entity, projName := opts.Entity, opts.Project
	if projName == "" {
		projName = l.settings.Setting(SettingProject)
	}
	if entity == "" {
		entity = l.settings.Setting(SettingEntity)
	}

	proj.TargetEntity = entity
	proj.TargetProject = projName
	if proj.Env == nil {
		proj.Env = make(map[string]string, 2)
	}
	proj.Env[EnvProject] = projName
	proj.Env[EnvEntity] = entity

	cfg := make(backend.RunConfig, len(opts.RunnerConfig)+4)
	for k, v := range opts.RunnerConfig {
		cfg[k] = v
	}
	// Reserved keys always win over caller-supplied values.
	cfg[backend.KeySynchronous] = opts.Synchronous
	cfg[backend.KeyDockerArgs] = opts.DockerArgs
	cfg[backend.KeyStorageDir] = opts.StorageDir
	if opts.DockerImage != "" {
		cfg[backend.KeyDockerImage] = opts.DockerImage
	}

	b, err := l.registry.Resolve(opts.Resource)
	if err != nil {
		return nil, err
	}
	return b.Dispatch(ctx, proj, cfg)
}

// Run launches a project, forcing host networking for same-host sources, and
// when opts.Synchronous is set blocks until the run is terminal. The
// submitted run is returned even when the synchronous wait fails, so the
// caller can still cancel it or re-check its status.
func (l *Launcher) Run(ctx context.Context, opts Options) (backend.SubmittedRun, error) {
	if project.IsLocalURI(opts.URI) {
		if opts.DockerArgs == nil {
			opts.DockerArgs = make(map[string]string, 1)
		}
		opts.DockerArgs["network"] = "host"
	}

	run, err := l.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	if opts.Synchronous {
		if err := l.WaitFor(ctx, run); err != nil {
			return run, err
		}
	}
	return run, nil
}

// WaitFor blocks until the submitted run is terminal. A failed or cancelled
// run yields ErrRunFailed. If ctx is cancelled before the run finishes,
// WaitFor cancels the run first and then returns ctx's error unchanged;
// cancelling before propagating the interrupt is what keeps the backend from
// leaking the execution.
func (l *Launcher) WaitFor(ctx context.Context, run backend.SubmittedRun) error {
	ok, err := run.Wait(ctx)
	if err != nil {
		l.logger.Error("run interrupted, cancelling", "run_id", run.ID(), "error", err)
		if cerr := run.Cancel(); cerr != nil {
			l.logger.Error("cancel after interrupt", "run_id", run.ID(), "error", cerr)
		}
		return err
	}
	if !ok {
		return ErrRunFailed
	}
	l.logger.Info("run succeeded", "run_id", run.ID())
	return nil
}
