// Package runner executes scrape tasks in the background, one goroutine per
// submitted batch.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/email-harvester/internal/metrics"
	"github.com/JakeFAU/email-harvester/internal/report"
	"github.com/JakeFAU/email-harvester/internal/scraper"
)

// CompletionEvent is the payload published when a task reaches a terminal
// status.
type CompletionEvent struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Artifact   string `json:"artifact,omitempty"`
	Error      string `json:"error,omitempty"`
	Sites      int    `json:"sites"`
	FinishedAt string `json:"finished_at"`
}

// Runner drives a task through its lifecycle: processing, per-site scraping,
// artifact rendering, and the terminal transition.
type Runner struct {
	store     scraper.TaskStore
	artifacts scraper.ArtifactStore
	engine    scraper.SiteScraper
	publisher scraper.Publisher
	topic     string
	clock     scraper.Clock
	logger    *zap.Logger
}

// New builds a Runner.
func New(store scraper.TaskStore, artifacts scraper.ArtifactStore, engine scraper.SiteScraper, publisher scraper.Publisher, topic string, clock scraper.Clock, logger *zap.Logger) *Runner {
	return &Runner{
		store:     store,
		artifacts: artifacts,
		engine:    engine,
		publisher: publisher,
		topic:     topic,
		clock:     clock,
		logger:    logger,
	}
}

// Start launches the background goroutine for the task and returns
// immediately. The goroutine is deliberately detached from the submitting
// request's context: a client disconnect must not abort the batch.
func (r *Runner) Start(task scraper.Task) {
	go r.run(context.Background(), task)
}

// Run executes the task synchronously. Exposed for tests.
func (r *Runner) Run(ctx context.Context, task scraper.Task) {
	r.run(ctx, task)
}

func (r *Runner) run(ctx context.Context, task scraper.Task) {
	metrics.IncActiveTasks()
	defer metrics.DecActiveTasks()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task panicked", zap.String("task_id", task.ID), zap.Any("panic", rec))
			r.fail(ctx, task, fmt.Sprintf("%v", rec))
		}
	}()

	if err := r.store.Transition(ctx, task.ID, scraper.TaskStatusProcessing, scraper.TransitionDetail{}); err != nil {
		r.logger.Error("transition to processing failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}

	sink := &storeSink{ctx: ctx, store: r.store, taskID: task.ID, logger: r.logger}

	rows := make([]scraper.ResultRow, 0, len(task.Sites))
	for i, site := range task.Sites {
		sink.Log(fmt.Sprintf("--- Processing website %d/%d: %s ---", i+1, len(task.Sites), site))

		start := r.clock.Now()
		emails := r.engine.ScrapeSite(ctx, site, sink)
		metrics.ObserveSiteScrape(r.clock.Now().Sub(start))

		if len(emails) > 0 {
			joined := scraper.JoinEmails(emails)
			sink.Log(fmt.Sprintf("  Successfully scraped %d email(s) from %s: %s", len(emails), site, joined))
			rows = append(rows, scraper.ResultRow{Website: site, Emails: joined})
		} else {
			sink.Log(fmt.Sprintf("  No emails found for %s (or an error occurred).", site))
			rows = append(rows, scraper.ResultRow{Website: site, Emails: scraper.SentinelNoEmails})
		}
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, rows); err != nil {
		sink.Log(fmt.Sprintf("A critical error occurred: %s", err))
		r.fail(ctx, task, err.Error())
		return
	}

	name := report.ArtifactName(task.ID)
	if _, err := r.artifacts.Put(ctx, name, buf.Bytes()); err != nil {
		sink.Log(fmt.Sprintf("A critical error occurred: %s", err))
		r.fail(ctx, task, err.Error())
		return
	}
	sink.Log(fmt.Sprintf("Scraping complete. Results saved to server: %s", name))

	detail := scraper.TransitionDetail{
		ResultFile: name,
		Summary:    fmt.Sprintf("%d websites processed.", len(task.Sites)),
	}
	if err := r.store.Transition(ctx, task.ID, scraper.TaskStatusComplete, detail); err != nil {
		r.logger.Error("transition to complete failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	metrics.ObserveTask(string(scraper.TaskStatusComplete))

	r.publish(ctx, CompletionEvent{
		TaskID:     task.ID,
		Status:     string(scraper.TaskStatusComplete),
		Artifact:   name,
		Sites:      len(task.Sites),
		FinishedAt: r.clock.Now().Format(time.RFC3339),
	})
}

// fail records a terminal error status. The append of the critical-error log
// line happens before this so stream observers see the message ahead of the
// ERROR event.
func (r *Runner) fail(ctx context.Context, task scraper.Task, msg string) {
	detail := scraper.TransitionDetail{ErrorDetail: msg}
	if err := r.store.Transition(ctx, task.ID, scraper.TaskStatusError, detail); err != nil {
		r.logger.Error("transition to error failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	metrics.ObserveTask(string(scraper.TaskStatusError))

	r.publish(ctx, CompletionEvent{
		TaskID:     task.ID,
		Status:     string(scraper.TaskStatusError),
		Error:      msg,
		Sites:      len(task.Sites),
		FinishedAt: r.clock.Now().Format(time.RFC3339),
	})
}

// publish pushes the completion event; delivery failures are logged but never
// affect the task's recorded outcome.
func (r *Runner) publish(ctx context.Context, event CompletionEvent) {
	if r.publisher == nil {
		return
	}
	if _, err := r.publisher.Publish(ctx, r.topic, event); err != nil {
		r.logger.Warn("completion publish failed", zap.String("task_id", event.TaskID), zap.Error(err))
	}
}

// storeSink forwards crawl progress lines into the task log.
type storeSink struct {
	ctx    context.Context
	store  scraper.TaskStore
	taskID string
	logger *zap.Logger
}

func (s *storeSink) Log(line string) {
	if err := s.store.AppendLog(s.ctx, s.taskID, line); err != nil {
		s.logger.Warn("log append failed", zap.String("task_id", s.taskID), zap.Error(err))
	}
}

var _ scraper.Sink = (*storeSink)(nil)
