// Package agent implements the launch agent: a long-lived loop that polls a
// run request queue scoped to one entity/project pair and dispatches each
// request to a backend, tracking many in-flight runs concurrently.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/seantiz/hangar/internal/backend"
	"github.com/seantiz/hangar/internal/launcher"
	"github.com/seantiz/hangar/internal/model"
	"github.com/seantiz/hangar/internal/store"
)

// Defaults for the polling loop.
const (
	DefaultMaxInFlight     = 4
	DefaultPollInterval    = time.Second
	DefaultMaxPollInterval = 30 * time.Second
)

// defaultResource is the runner used when a run spec names none.
const defaultResource = "local"

// Queue is the subset of queue operations the agent consumes.
type Queue interface {
	PollNextRequest(ctx context.Context, entity, project, claimedBy string, queues []string) (*model.RunRequest, error)
	AckRequest(ctx context.Context, id string) error
	FailRequest(ctx context.Context, id, reason string) error
}

// RunRecorder persists run lifecycle records for dispatched requests.
type RunRecorder interface {
	CreateRun(ctx context.Context, r *model.Run) error
	UpdateRunStatus(ctx context.Context, id, status, errMsg string) error
}

// Dispatcher launches one run request. Satisfied by *launcher.Launcher.
type Dispatcher interface {
	Launch(ctx context.Context, opts launcher.Options) (backend.SubmittedRun, error)
}

// Config scopes an agent to one entity/project pair and bounds its loop.
type Config struct {
	Entity  string
	Project string
	// Queues restricts polling to the named sub-queues; empty means all.
	Queues []string
	// MaxInFlight caps concurrently tracked runs. Zero means DefaultMaxInFlight.
	MaxInFlight int
	// PollInterval is the initial idle-poll backoff. Zero means DefaultPollInterval.
	PollInterval time.Duration
	// MaxPollInterval caps the idle-poll backoff. Zero means DefaultMaxPollInterval.
	MaxPollInterval time.Duration
}

// ParseSpec splits an "entity/project" agent specifier. Anything other than
// exactly one slash with non-empty halves is a configuration error.
func ParseSpec(spec string) (entity, project string, err error) {
	parts := strings.Split(spec, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("agent spec must be of the form 'entity/project', got %q", spec)
	}
	return parts[0], parts[1], nil
}

// Agent polls a run request queue and dispatches requests to backends. An
// agent has no natural terminal state; Run loops until ctx is cancelled, then
// cancels every tracked in-flight run before returning. Failures of a single
// request never stop the loop.
type Agent struct {
	cfg        Config
	id         string
	queue      Queue
	runs       RunRecorder
	dispatcher Dispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	tracked map[string]backend.SubmittedRun
	wg      sync.WaitGroup
}

// New creates an agent bound to the entity/project scope in cfg.
func New(cfg Config, queue Queue, runs RunRecorder, dispatcher Dispatcher, logger *slog.Logger) *Agent {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = DefaultMaxPollInterval
	}
	return &Agent{
		cfg:        cfg,
		id:         model.NewID(),
		queue:      queue,
		runs:       runs,
		dispatcher: dispatcher,
		logger:     logger,
		tracked:    make(map[string]backend.SubmittedRun),
	}
}

// ID returns the agent's claim identifier.
func (a *Agent) ID() string { return a.id }

// InFlight returns the number of currently tracked runs.
func (a *Agent) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tracked)
}

// Run executes the polling loop until ctx is cancelled. On shutdown it
// fans out cancellation to every tracked run, waits for their watchers to
// observe a terminal status, and returns ctx's error.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent started",
		"agent_id", a.id,
		"entity", a.cfg.Entity,
		"project", a.cfg.Project,
		"queues", a.cfg.Queues,
		"max_in_flight", a.cfg.MaxInFlight,
	)

	a.loop(ctx)

	a.cancelAll()
	a.wg.Wait()
	a.logger.Info("agent stopped", "agent_id", a.id)
	return ctx.Err()
}

func (a *Agent) loop(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.cfg.PollInterval
	bo.MaxInterval = a.cfg.MaxPollInterval
	bo.MaxElapsedTime = 0

	sem := make(chan struct{}, a.cfg.MaxInFlight)

	for {
		// Take an in-flight slot before claiming a request, so a claimed
		// request is never left waiting on capacity.
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}

		req, err := a.queue.PollNextRequest(ctx, a.cfg.Entity, a.cfg.Project, a.id, a.cfg.Queues)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, store.ErrEmptyQueue) {
				pollsTotal.WithLabelValues("empty").Inc()
			} else {
				pollsTotal.WithLabelValues("error").Inc()
				a.logger.Error("queue poll failed", "error", err)
			}
			if !sleepCtx(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}

		pollsTotal.WithLabelValues("ok").Inc()
		bo.Reset()
		a.dispatch(req, sem)
	}
}

// dispatch hands one claimed request to the dispatcher. Dispatch and
// resolution errors are that one request's terminal failure: logged,
// recorded, and never allowed to escape the loop.
func (a *Agent) dispatch(req *model.RunRequest, sem chan struct{}) {
	ctx := context.Background()

	var spec model.RunSpec
	if err := json.Unmarshal(req.Payload, &spec); err != nil {
		a.failRequest(ctx, req, fmt.Errorf("decode run spec: %w", err))
		<-sem
		return
	}

	resource := spec.Resource
	if resource == "" {
		resource = defaultResource
	}

	run, err := a.dispatcher.Launch(ctx, launcher.Options{
		URI:            spec.URI,
		EntryPoint:     spec.EntryPoint,
		Version:        spec.Version,
		Parameters:     spec.Parameters,
		DockerArgs:     spec.DockerArgs,
		ExperimentName: spec.ExperimentName,
		Resource:       resource,
		Entity:         a.cfg.Entity,
		Project:        a.cfg.Project,
		DockerImage:    spec.DockerImage,
		RunnerConfig:   spec.RunnerConfig,
		StorageDir:     spec.StorageDir,
		Synchronous:    false,
	})
	if err != nil {
		a.failRequest(ctx, req, err)
		<-sem
		return
	}

	// Ack after a successful dispatch; the run record carries the outcome
	// from here on.
	if err := a.queue.AckRequest(ctx, req.ID); err != nil {
		a.logger.Error("ack request", "request_id", req.ID, "error", err)
	}

	rec := &model.Run{
		ID:        run.ID(),
		RequestID: req.ID,
		Entity:    a.cfg.Entity,
		Project:   a.cfg.Project,
		Runner:    resource,
		Status:    model.StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.runs.CreateRun(ctx, rec); err != nil {
		a.logger.Error("create run record", "run_id", run.ID(), "error", err)
	}

	a.mu.Lock()
	a.tracked[run.ID()] = run
	a.mu.Unlock()
	inFlight.Inc()

	a.logger.Info("request dispatched", "request_id", req.ID, "run_id", run.ID(), "runner", resource)

	a.wg.Add(1)
	go a.watch(run, sem)
}

// watch waits for one tracked run to reach a terminal status, records the
// outcome, and releases the run's in-flight slot. It waits on a background
// context: shutdown reaches it through the fan-out Cancel, which drives the
// run terminal.
func (a *Agent) watch(run backend.SubmittedRun, sem chan struct{}) {
	defer a.wg.Done()
	defer func() { <-sem }()

	ok, _ := run.Wait(context.Background())
	status := run.Status()

	a.mu.Lock()
	delete(a.tracked, run.ID())
	a.mu.Unlock()
	inFlight.Dec()
	dispatchesTotal.WithLabelValues(status).Inc()

	var errMsg string
	if !ok {
		errMsg = "submitted run did not succeed"
	}
	if err := a.runs.UpdateRunStatus(context.Background(), run.ID(), status, errMsg); err != nil {
		a.logger.Error("update run record", "run_id", run.ID(), "error", err)
	}

	if ok {
		a.logger.Info("run finished", "run_id", run.ID(), "status", status)
	} else {
		a.logger.Warn("run finished", "run_id", run.ID(), "status", status)
	}
}

func (a *Agent) failRequest(ctx context.Context, req *model.RunRequest, err error) {
	dispatchesTotal.WithLabelValues("dispatch_error").Inc()
	a.logger.Error("request dispatch failed", "request_id", req.ID, "error", err)
	if ferr := a.queue.FailRequest(ctx, req.ID, err.Error()); ferr != nil {
		a.logger.Error("fail request", "request_id", req.ID, "error", ferr)
	}
}

// cancelAll fans out best-effort cancellation to every tracked run. The agent
// is the sole owner of these handles, so nobody else will cancel them.
func (a *Agent) cancelAll() {
	a.mu.Lock()
	runs := make([]backend.SubmittedRun, 0, len(a.tracked))
	for _, run := range a.tracked {
		runs = append(runs, run)
	}
	a.mu.Unlock()

	for _, run := range runs {
		if err := run.Cancel(); err != nil {
			a.logger.Error("cancel run", "run_id", run.ID(), "error", err)
		}
	}
}

// sleepCtx sleeps for d or until ctx is cancelled, reporting whether the full
// sleep elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
