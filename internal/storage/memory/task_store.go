// Package memory provides an in-memory task store implementation.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/email-harvester/internal/scraper"
)

// initiationLine seeds every new task's log.
const initiationLine = "Task initiated."

// TaskStore keeps all task records behind one coarse mutex. The lock is held
// only for the brief append/transition/snapshot operations, never across a
// crawl or a stream wait.
type TaskStore struct {
	mu     sync.Mutex
	tasks  map[string]*scraper.Task
	idGen  scraper.IDGenerator
	clock  scraper.Clock
	logger *zap.Logger
}

// NewTaskStore constructs a TaskStore.
func NewTaskStore(idGen scraper.IDGenerator, clock scraper.Clock, logger *zap.Logger) *TaskStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskStore{
		tasks:  make(map[string]*scraper.Task),
		idGen:  idGen,
		clock:  clock,
		logger: logger,
	}
}

// Create allocates a fresh pending task for the site batch.
func (s *TaskStore) Create(_ context.Context, sites []string) (scraper.Task, error) {
	id, err := s.idGen.NewID()
	if err != nil {
		return scraper.Task{}, fmt.Errorf("generate task id: %w", err)
	}
	task := &scraper.Task{
		ID:        id,
		Status:    scraper.TaskStatusPending,
		Sites:     append([]string(nil), sites...),
		Log:       []string{initiationLine},
		Submitted: s.clock.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = task
	return copyTask(task), nil
}

// AppendLog appends one line to the task's log. An unknown id logs a warning
// and is otherwise a no-op.
func (s *TaskStore) AppendLog(_ context.Context, id, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		s.logger.Warn("append log for unknown task", zap.String("task_id", id))
		return nil
	}
	task.Log = append(task.Log, line)
	return nil
}

// Transition moves the task through its lifecycle, recording the terminal
// detail fields and the finish timestamp.
func (s *TaskStore) Transition(
	_ context.Context,
	id string,
	status scraper.TaskStatus,
	detail scraper.TransitionDetail,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return scraper.ErrTaskNotFound
	}
	if !transitionAllowed(task.Status, status) {
		return fmt.Errorf("%w: %s -> %s", scraper.ErrInvalidTransition, task.Status, status)
	}
	task.Status = status
	switch status {
	case scraper.TaskStatusComplete:
		task.ResultFile = detail.ResultFile
		task.Summary = detail.Summary
	case scraper.TaskStatusError:
		task.ErrorDetail = detail.ErrorDetail
	}
	if status.Terminal() {
		now := s.clock.Now()
		task.Finished = &now
	}
	return nil
}

// Snapshot returns a deep copy of the record so readers never observe a torn
// or later-mutated state.
func (s *TaskStore) Snapshot(_ context.Context, id string) (scraper.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return scraper.Task{}, scraper.ErrTaskNotFound
	}
	return copyTask(task), nil
}

func transitionAllowed(from, to scraper.TaskStatus) bool {
	switch to {
	case scraper.TaskStatusProcessing:
		return from == scraper.TaskStatusPending
	case scraper.TaskStatusComplete, scraper.TaskStatusError:
		return from == scraper.TaskStatusProcessing
	default:
		return false
	}
}

func copyTask(task *scraper.Task) scraper.Task {
	cp := *task
	cp.Sites = append([]string(nil), task.Sites...)
	cp.Log = append([]string(nil), task.Log...)
	if task.Finished != nil {
		finished := *task.Finished
		cp.Finished = &finished
	}
	return cp
}

var _ scraper.TaskStore = (*TaskStore)(nil)
