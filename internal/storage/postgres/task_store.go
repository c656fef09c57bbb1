// Package postgres provides a Postgres-backed task store.
//
// Schema:
//
//	CREATE TABLE tasks (
//	    id           uuid PRIMARY KEY,
//	    status       text NOT NULL,
//	    sites        text[] NOT NULL,
//	    result_file  text NOT NULL DEFAULT '',
//	    error_detail text NOT NULL DEFAULT '',
//	    summary      text NOT NULL DEFAULT '',
//	    submitted_at timestamptz NOT NULL,
//	    finished_at  timestamptz
//	);
//	CREATE TABLE task_log (
//	    task_id uuid REFERENCES tasks (id),
//	    idx     int NOT NULL,
//	    line    text NOT NULL,
//	    PRIMARY KEY (task_id, idx)
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/email-harvester/internal/scraper"
)

const initiationLine = "Task initiated."

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// TaskStore implements scraper.TaskStore on Postgres. Log lines carry an
// explicit index so snapshots always read a prefix-consistent log.
type TaskStore struct {
	db     DB
	idGen  scraper.IDGenerator
	clock  scraper.Clock
	logger *zap.Logger
}

// NewTaskStore connects a pool and wraps it in a store.
func NewTaskStore(
	ctx context.Context,
	dsn string,
	idGen scraper.IDGenerator,
	clock scraper.Clock,
	logger *zap.Logger,
) (*TaskStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return NewTaskStoreWithDB(pool, idGen, clock, logger), nil
}

// NewTaskStoreWithDB wraps an existing connection; used by tests.
func NewTaskStoreWithDB(db DB, idGen scraper.IDGenerator, clock scraper.Clock, logger *zap.Logger) *TaskStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskStore{db: db, idGen: idGen, clock: clock, logger: logger}
}

// Close releases the underlying pool.
func (s *TaskStore) Close() {
	s.db.Close()
}

// Create inserts a pending task plus the initiation log line in one
// transaction.
func (s *TaskStore) Create(ctx context.Context, sites []string) (scraper.Task, error) {
	id, err := s.idGen.NewID()
	if err != nil {
		return scraper.Task{}, fmt.Errorf("generate task id: %w", err)
	}
	submitted := s.clock.Now()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return scraper.Task{}, fmt.Errorf("begin create task: %w", err)
	}
	defer rollback(ctx, tx, s.logger)

	_, err = tx.Exec(ctx,
		`INSERT INTO tasks (id, status, sites, submitted_at) VALUES ($1, $2, $3, $4);`,
		id, scraper.TaskStatusPending, sites, submitted,
	)
	if err != nil {
		return scraper.Task{}, fmt.Errorf("insert task: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO task_log (task_id, idx, line) VALUES ($1, 0, $2);`,
		id, initiationLine,
	)
	if err != nil {
		return scraper.Task{}, fmt.Errorf("seed task log: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return scraper.Task{}, fmt.Errorf("commit create task: %w", err)
	}

	return scraper.Task{
		ID:        id,
		Status:    scraper.TaskStatusPending,
		Sites:     append([]string(nil), sites...),
		Log:       []string{initiationLine},
		Submitted: submitted,
	}, nil
}

// AppendLog appends one line at the next index. The task's runner is the only
// writer, so the computed index cannot race. An unknown id logs a warning and
// is a no-op.
func (s *TaskStore) AppendLog(ctx context.Context, id, line string) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO task_log (task_id, idx, line)
		 SELECT t.id, COALESCE((SELECT MAX(l.idx) + 1 FROM task_log l WHERE l.task_id = t.id), 0), $2
		 FROM tasks t WHERE t.id = $1;`,
		id, line,
	)
	if err != nil {
		return fmt.Errorf("append task log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn("append log for unknown task", zap.String("task_id", id))
	}
	return nil
}

// Transition updates the status guarded by the required prior state.
func (s *TaskStore) Transition(
	ctx context.Context,
	id string,
	status scraper.TaskStatus,
	detail scraper.TransitionDetail,
) error {
	prior, ok := requiredPrior(status)
	if !ok {
		return fmt.Errorf("%w: -> %s", scraper.ErrInvalidTransition, status)
	}
	var finished *time.Time
	if status.Terminal() {
		now := s.clock.Now()
		finished = &now
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE tasks
		 SET status = $2, result_file = $3, error_detail = $4, summary = $5, finished_at = $6
		 WHERE id = $1 AND status = $7;`,
		id, status, detail.ResultFile, detail.ErrorDetail, detail.Summary, finished, prior,
	)
	if err != nil {
		return fmt.Errorf("transition task: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1;`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("check task status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", scraper.ErrInvalidTransition, current, status)
}

// Snapshot reads the record and its full log in one transaction.
func (s *TaskStore) Snapshot(ctx context.Context, id string) (scraper.Task, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return scraper.Task{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer rollback(ctx, tx, s.logger)

	var task scraper.Task
	var status string
	err = tx.QueryRow(ctx,
		`SELECT id, status, sites, result_file, error_detail, summary, submitted_at, finished_at
		 FROM tasks WHERE id = $1;`,
		id,
	).Scan(
		&task.ID,
		&status,
		&task.Sites,
		&task.ResultFile,
		&task.ErrorDetail,
		&task.Summary,
		&task.Submitted,
		&task.Finished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.Task{}, scraper.ErrTaskNotFound
	}
	if err != nil {
		return scraper.Task{}, fmt.Errorf("load task: %w", err)
	}
	task.Status = scraper.TaskStatus(status)

	rows, err := tx.Query(ctx,
		`SELECT line FROM task_log WHERE task_id = $1 ORDER BY idx;`,
		id,
	)
	if err != nil {
		return scraper.Task{}, fmt.Errorf("load task log: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return scraper.Task{}, fmt.Errorf("scan log line: %w", err)
		}
		task.Log = append(task.Log, line)
	}
	if err := rows.Err(); err != nil {
		return scraper.Task{}, fmt.Errorf("iterate task log: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return scraper.Task{}, fmt.Errorf("commit snapshot: %w", err)
	}
	return task, nil
}

func requiredPrior(to scraper.TaskStatus) (scraper.TaskStatus, bool) {
	switch to {
	case scraper.TaskStatusProcessing:
		return scraper.TaskStatusPending, true
	case scraper.TaskStatusComplete, scraper.TaskStatusError:
		return scraper.TaskStatusProcessing, true
	default:
		return "", false
	}
}

func rollback(ctx context.Context, tx pgx.Tx, logger *zap.Logger) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Warn("transaction rollback failed", zap.Error(err))
	}
}

var _ scraper.TaskStore = (*TaskStore)(nil)
