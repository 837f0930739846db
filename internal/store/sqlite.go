package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seantiz/hangar/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    request_id  TEXT,
    entity      TEXT NOT NULL,
    project     TEXT NOT NULL,
    runner      TEXT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const createRequestsTable = `
CREATE TABLE IF NOT EXISTS run_requests (
    id         TEXT PRIMARY KEY,
    queue      TEXT NOT NULL,
    entity     TEXT NOT NULL,
    project    TEXT NOT NULL,
    payload    BLOB NOT NULL,
    state      TEXT NOT NULL,
    error      TEXT,
    claimed_by TEXT,
    created_at DATETIME NOT NULL,
    claimed_at DATETIME
)`

// claimAttempts bounds the retry loop when concurrent pollers race for the
// same pending request.
const claimAttempts = 3

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports one writer; a single pooled connection also keeps
	// in-memory databases coherent across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createRunsTable, createRequestsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migration: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, request_id, entity, project, runner, status, error, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequestID, r.Entity, r.Project, r.Runner, r.Status, r.Error, r.CreatedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run record by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r := &model.Run{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, request_id, entity, project, runner, status, error, created_at, finished_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.RequestID, &r.Entity, &r.Project, &r.Runner, &r.Status, &r.Error, &r.CreatedAt, &r.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of run records ordered by created_at DESC,
// along with the total count.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, entity, project, runner, status, error, created_at, finished_at
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r := &model.Run{}
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Entity, &r.Project, &r.Runner, &r.Status, &r.Error, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, total, nil
}

// UpdateRunStatus transitions a run to a new status, validating the
// transition against the run state machine. Terminal statuses also record
// finished_at.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status, errMsg string) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read run status: %w", err)
	}
	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	var finishedAt *time.Time
	if model.Terminal(status) {
		now := time.Now().UTC()
		finishedAt = &now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ? AND status = ?`,
		status, errMsg, finishedAt, id, current,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s changed concurrently", ErrInvalidTransition, id)
	}
	return nil
}

// EnqueueRequest inserts a pending run request.
func (s *SQLiteStore) EnqueueRequest(ctx context.Context, req *model.RunRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_requests (id, queue, entity, project, payload, state, error, claimed_by, created_at, claimed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Queue, req.Entity, req.Project, []byte(req.Payload), req.State, req.Error, req.ClaimedBy, req.CreatedAt, req.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue request: %w", err)
	}
	return nil
}

// PollNextRequest atomically claims the oldest pending request scoped to the
// given entity/project, optionally restricted to the named queues. A claimed
// request transitions pending -> claimed and is never returned by a later
// poll. Returns ErrEmptyQueue when nothing is pending.
func (s *SQLiteStore) PollNextRequest(ctx context.Context, entity, project, claimedBy string, queues []string) (*model.RunRequest, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		req, err := s.oldestPending(ctx, entity, project, queues)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		res, err := s.db.ExecContext(ctx,
			`UPDATE run_requests SET state = ?, claimed_by = ?, claimed_at = ?
			 WHERE id = ? AND state = ?`,
			model.RequestClaimed, claimedBy, now, req.ID, model.RequestPending,
		)
		if err != nil {
			return nil, fmt.Errorf("claim request: %w", err)
		}
		// Zero rows means another poller claimed it first; try the next one.
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		req.State = model.RequestClaimed
		req.ClaimedBy = claimedBy
		req.ClaimedAt = &now
		return req, nil
	}
	return nil, ErrEmptyQueue
}

func (s *SQLiteStore) oldestPending(ctx context.Context, entity, project string, queues []string) (*model.RunRequest, error) {
	query := `SELECT id, queue, entity, project, payload, state, created_at
		 FROM run_requests WHERE state = ? AND entity = ? AND project = ?`
	args := []any{model.RequestPending, entity, project}

	if len(queues) > 0 {
		query += ` AND queue IN (?` + strings.Repeat(",?", len(queues)-1) + `)`
		for _, q := range queues {
			args = append(args, q)
		}
	}
	query += ` ORDER BY created_at, id LIMIT 1`

	req := &model.RunRequest{}
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&req.ID, &req.Queue, &req.Entity, &req.Project, &payload, &req.State, &req.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmptyQueue
	}
	if err != nil {
		return nil, fmt.Errorf("select pending request: %w", err)
	}
	req.Payload = payload
	return req, nil
}

// AckRequest marks a claimed request as done.
func (s *SQLiteStore) AckRequest(ctx context.Context, id string) error {
	return s.finishRequest(ctx, id, model.RequestDone, "")
}

// FailRequest marks a claimed request as failed with the given reason.
func (s *SQLiteStore) FailRequest(ctx context.Context, id, reason string) error {
	return s.finishRequest(ctx, id, model.RequestFailed, reason)
}

func (s *SQLiteStore) finishRequest(ctx context.Context, id, state, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_requests SET state = ?, error = ? WHERE id = ? AND state = ?`,
		state, reason, id, model.RequestClaimed,
	)
	if err != nil {
		return fmt.Errorf("finish request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
