// Package api exposes the HTTP interface for the harvester service.
package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/email-harvester/internal/metrics"
	"github.com/JakeFAU/email-harvester/internal/scraper"
)

// TaskLauncher starts the background execution of a freshly created task.
type TaskLauncher interface {
	Start(task scraper.Task)
}

// Server wires HTTP handlers to the task store, runner, and artifact store.
type Server struct {
	router       chi.Router
	store        scraper.TaskStore
	launcher     TaskLauncher
	artifacts    scraper.ArtifactStore
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The progress
// stream route is registered outside the timeout group: a tail over a running
// task legitimately outlives any per-request deadline.
func NewServer(
	store scraper.TaskStore,
	launcher TaskLauncher,
	artifacts scraper.ArtifactStore,
	pollInterval time.Duration,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:        store,
		launcher:     launcher,
		artifacts:    artifacts,
		pollInterval: pollInterval,
		logger:       logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(60 * time.Second))
		r.Post("/api/scrape", s.submitScrape)
		r.Get("/api/download/{filename}", s.download)
	})
	r.Get("/api/progress/{task_id}", s.streamProgress)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The task store is the only hard dependency; probe it with a lookup that
	// is expected to miss.
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.store.Snapshot(ctx, "readyz-probe"); err != nil && err != scraper.ErrTaskNotFound {
		writeError(w, http.StatusServiceUnavailable, "task store unavailable", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, s.logger)
}

// submitScrape handles POST /api/scrape. It accepts the site list either as
// the form field "urls" or as the raw request body, one site per line.
func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	raw, err := readURLsInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body", s.logger)
		return
	}
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Please provide some URLs.", s.logger)
		return
	}
	sites := parseSites(raw)
	if len(sites) == 0 {
		writeError(w, http.StatusBadRequest, "No valid URLs to process.", s.logger)
		return
	}

	task, err := s.store.Create(r.Context(), sites)
	if err != nil {
		s.logger.Error("task create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create task", s.logger)
		return
	}
	s.launcher.Start(task)
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID}, s.logger)
}

// download handles GET /api/download/{filename}. The filename check runs
// before any storage access so traversal attempts never reach the filesystem.
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if !safeArtifactName(name) {
		writeError(w, http.StatusBadRequest, "Invalid filename.", s.logger)
		return
	}
	rc, err := s.artifacts.Open(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found.", s.logger)
		return
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			s.logger.Warn("artifact close failed", zap.String("name", name), zap.Error(cerr))
		}
	}()
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("artifact stream interrupted", zap.String("name", name), zap.Error(err))
	}
}

// readURLsInput extracts the submitted site list. Form submissions carry it in
// the "urls" field; plain-text clients may send the list as the body.
func readURLsInput(r *http.Request) (string, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return "", err
		}
		return r.FormValue("urls"), nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// parseSites splits the input into lines, normalizes each, and drops blanks.
func parseSites(raw string) []string {
	var sites []string
	for _, line := range strings.Split(raw, "\n") {
		site := scraper.NormalizeSite(line)
		if site == "" {
			continue
		}
		sites = append(sites, site)
	}
	return sites
}

// safeArtifactName accepts only bare filenames: no empty names, no parent
// references, no path separators of either flavor.
func safeArtifactName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			duration := time.Since(start)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			metrics.ObserveHTTPRequest(r.Method, route, ww.status, duration)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error", logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
