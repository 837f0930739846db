package backend

import (
	"context"
	"sync"

	"github.com/seantiz/hangar/internal/model"
)

// Handle implements the SubmittedRun state machine shared by backend
// implementations. A Handle starts running; the first Finish call records the
// terminal status and releases all waiters. Backends embed a Handle and drive
// it to a terminal status from their own monitoring code.
type Handle struct {
	id     string
	killFn func() error

	mu        sync.Mutex
	status    string
	cancelled bool
	done      chan struct{}
}

// NewHandle creates a running Handle. killFn, if non-nil, is invoked at most
// once by Cancel to request termination of the underlying execution; the
// backend's monitor is still responsible for calling Finish once the
// execution actually stops. A nil killFn makes Cancel finish the handle as
// cancelled directly.
func NewHandle(id string, killFn func() error) *Handle {
	return &Handle{
		id:     id,
		killFn: killFn,
		status: model.StatusRunning,
		done:   make(chan struct{}),
	}
}

// ID returns the run identifier.
func (h *Handle) ID() string { return h.id }

// Status returns the current run status.
func (h *Handle) Status() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// CancelRequested reports whether Cancel has been called on this handle.
// Backend monitors use it to distinguish a cancelled run from a failed one.
func (h *Handle) CancelRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Finish records the terminal status and releases all waiters. The first
// terminal status wins; calls after the handle is terminal, or with a
// non-terminal status, are ignored.
func (h *Handle) Finish(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !model.ValidTransition(h.status, status) {
		return
	}
	h.status = status
	close(h.done)
}

// Wait blocks until the run reaches a terminal status and reports whether it
// succeeded. A terminal handle returns immediately with the same result on
// every call. Cancelling ctx returns ctx's error without touching the run.
func (h *Handle) Wait(ctx context.Context) (bool, error) {
	// Terminal handles must not race against an already-cancelled context.
	select {
	case <-h.done:
		return h.Status() == model.StatusSucceeded, nil
	default:
	}
	select {
	case <-h.done:
		return h.Status() == model.StatusSucceeded, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Cancel requests best-effort termination. On a running handle the kill
// function runs at most once across all Cancel calls; on a terminal handle
// Cancel is a no-op.
func (h *Handle) Cancel() error {
	h.mu.Lock()
	if h.status != model.StatusRunning || h.cancelled {
		h.mu.Unlock()
		return nil
	}
	h.cancelled = true
	killFn := h.killFn
	h.mu.Unlock()

	if killFn == nil {
		h.Finish(model.StatusCancelled)
		return nil
	}
	return killFn()
}
