package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/email-harvester/internal/scraper"
)

// streamProgress handles GET /api/progress/{task_id} as a server-sent event
// stream. Each connection tails the task log independently: the cursor starts
// before the first line, so late subscribers replay the backlog, then the
// handler polls for new lines until the task reaches a terminal status.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", s.logger)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	interval := s.pollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cursor := -1
	for {
		task, err := s.store.Snapshot(r.Context(), taskID)
		if err != nil {
			if errors.Is(err, scraper.ErrTaskNotFound) {
				s.sendEvent(w, flusher, fmt.Sprintf("Error: Task ID %s not found.", taskID))
			} else {
				s.logger.Error("snapshot failed", zap.String("task_id", taskID), zap.Error(err))
				s.sendEvent(w, flusher, fmt.Sprintf("Error: Task ID %s not found.", taskID))
			}
			return
		}

		for cursor+1 < len(task.Log) {
			cursor++
			s.sendEvent(w, flusher, task.Log[cursor])
		}

		if task.Status.Terminal() {
			switch task.Status {
			case scraper.TaskStatusComplete:
				s.sendEvent(w, flusher, "COMPLETE:"+task.ResultFile)
			case scraper.TaskStatusError:
				s.sendEvent(w, flusher, "ERROR:"+task.ErrorDetail)
			}
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) sendEvent(w http.ResponseWriter, flusher http.Flusher, line string) {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
		s.logger.Debug("stream write failed", zap.Error(err))
		return
	}
	flusher.Flush()
}
