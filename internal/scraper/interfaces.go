package scraper

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrTaskNotFound signals that the requested task does not exist.
var ErrTaskNotFound = errors.New("task not found")

// ErrInvalidTransition signals a status change that would violate the
// pending -> processing -> terminal lifecycle.
var ErrInvalidTransition = errors.New("invalid task status transition")

// TaskStore persists task records. Implementations must guarantee that a log
// append and a concurrent snapshot never interleave partially.
type TaskStore interface {
	// Create allocates a fresh task in pending status with the log seeded
	// with one initiation line.
	Create(ctx context.Context, sites []string) (Task, error)
	// AppendLog appends one line to the task's log. An unknown id is a
	// no-op; implementations report it through their diagnostic logger.
	AppendLog(ctx context.Context, id, line string) error
	// Transition moves the task to status and records the accompanying
	// detail fields.
	Transition(ctx context.Context, id string, status TaskStatus, detail TransitionDetail) error
	// Snapshot returns a copy of the record safe to read without locking.
	Snapshot(ctx context.Context, id string) (Task, error)
}

// ArtifactStore writes result artifacts and serves them back for download.
type ArtifactStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher retrieves and parses a single page. It must follow redirects and
// bound each request with a timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Sink receives human-readable progress lines emitted during a crawl.
type Sink interface {
	Log(line string)
}

// SiteScraper crawls one site and returns the set of emails collected for it.
// Per-page failures are absorbed and reported through the sink.
type SiteScraper interface {
	ScrapeSite(ctx context.Context, baseURL string, sink Sink) map[string]struct{}
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
