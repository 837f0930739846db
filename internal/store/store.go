package store

import (
	"context"
	"errors"

	"github.com/seantiz/hangar/internal/model"
)

// ErrNotFound is returned when a run or request is not found.
var ErrNotFound = errors.New("not found")

// ErrEmptyQueue is returned by PollNextRequest when no pending request
// matches the poll scope. It is not a failure; pollers back off and retry.
var ErrEmptyQueue = errors.New("queue is empty")

// ErrInvalidTransition is returned when a run status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store defines persistence for run lifecycle records and the run request
// queue. Poll claims are atomic: a request claimed by one poll is never
// handed out again by a later poll.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunStatus(ctx context.Context, id, status, errMsg string) error

	EnqueueRequest(ctx context.Context, req *model.RunRequest) error
	PollNextRequest(ctx context.Context, entity, project, claimedBy string, queues []string) (*model.RunRequest, error)
	AckRequest(ctx context.Context, id string) error
	FailRequest(ctx context.Context, id, reason string) error

	Close() error
}
