// Package scraper defines core types shared across subsystems.
package scraper

import "time"

// TaskStatus represents the lifecycle state of a scrape task.
type TaskStatus string

// Task status values persisted in the task store. Transitions are strictly
// pending -> processing -> complete|error; a task never reverts.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusComplete   TaskStatus = "complete"
	TaskStatusError      TaskStatus = "error"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusComplete || s == TaskStatusError
}

// SentinelNoEmails is recorded for a site that yielded no usable emails,
// whether because none were found or because the site failed entirely.
const SentinelNoEmails = "NO_EMAILS_FOUND_OR_ERROR"

// Task is the per-batch record tracked by the task store. The log is
// append-only: lines are only ever added, never rewritten or reordered, so
// stream observers can address it by integer cursor.
type Task struct {
	ID          string     `json:"id"`
	Status      TaskStatus `json:"status"`
	Sites       []string   `json:"sites"`
	Log         []string   `json:"log"`
	ResultFile  string     `json:"result_file,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Submitted   time.Time  `json:"submitted_at"`
	Finished    *time.Time `json:"finished_at,omitempty"`
}

// TransitionDetail carries the fields set alongside a status change.
// ResultFile and Summary accompany TaskStatusComplete, ErrorDetail
// accompanies TaskStatusError.
type TransitionDetail struct {
	ResultFile  string
	ErrorDetail string
	Summary     string
}

// ResultRow is one line of the result artifact: the submitted site and either
// a comma-joined sorted email list or SentinelNoEmails.
type ResultRow struct {
	Website string
	Emails  string
}

// Anchor is one <a href> element found on a fetched page.
type Anchor struct {
	Href string
	Text string
}

// Page is the parsed content of one fetched page.
type Page struct {
	// FinalURL is the address after redirects.
	FinalURL string
	// Text is the document's visible text with element boundaries collapsed
	// to single spaces.
	Text string
	// Anchors lists every anchor element carrying an href attribute.
	Anchors []Anchor
}
