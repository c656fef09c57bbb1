package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/email-harvester/internal/scraper"
	memorystorage "github.com/JakeFAU/email-harvester/internal/storage/memory"
)

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("task-%d", g.n), nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type recordingLauncher struct {
	mu      sync.Mutex
	started []scraper.Task
}

func (l *recordingLauncher) Start(task scraper.Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, task)
}

func (l *recordingLauncher) all() []scraper.Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]scraper.Task, len(l.started))
	copy(out, l.started)
	return out
}

type memoryArtifacts struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemoryArtifacts() *memoryArtifacts {
	return &memoryArtifacts{files: make(map[string][]byte)}
}

func (a *memoryArtifacts) Put(_ context.Context, name string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files[name] = append([]byte(nil), data...)
	return "mem://" + name, nil
}

func (a *memoryArtifacts) Open(_ context.Context, name string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.files[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestServer(t *testing.T) (*Server, *memorystorage.TaskStore, *recordingLauncher, *memoryArtifacts) {
	t.Helper()
	store := memorystorage.NewTaskStore(&seqIDGen{}, fixedClock{now: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}, nil)
	launcher := &recordingLauncher{}
	artifacts := newMemoryArtifacts()
	srv := NewServer(store, launcher, artifacts, 10*time.Millisecond, nil)
	return srv, store, launcher, artifacts
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestSubmitScrapeFormInput(t *testing.T) {
	t.Parallel()
	srv, store, launcher, _ := newTestServer(t)

	form := url.Values{"urls": {"example.org\n  \nhttps://shop.test\n"}}
	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp["task_id"])

	started := launcher.all()
	require.Len(t, started, 1)
	assert.Equal(t, []string{"http://example.org", "https://shop.test"}, started[0].Sites)

	task, err := store.Snapshot(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, scraper.TaskStatusPending, task.Status)
}

func TestSubmitScrapePlainBody(t *testing.T) {
	t.Parallel()
	srv, _, launcher, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader("one.test\ntwo.test"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	started := launcher.all()
	require.Len(t, started, 1)
	assert.Equal(t, []string{"http://one.test", "http://two.test"}, started[0].Sites)
}

func TestSubmitScrapeEmptyBody(t *testing.T) {
	t.Parallel()
	srv, _, launcher, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(""))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please provide some URLs.")
	assert.Empty(t, launcher.all())
}

func TestSubmitScrapeWhitespaceOnly(t *testing.T) {
	t.Parallel()
	srv, _, launcher, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader("   \n  "))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No valid URLs to process.")
	assert.Empty(t, launcher.all())
}

func TestSubmitScrapeMissingFormField(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(url.Values{"other": {"x"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please provide some URLs.")
}

func TestDownloadServesArtifact(t *testing.T) {
	t.Parallel()
	srv, _, _, artifacts := newTestServer(t)
	_, err := artifacts.Put(context.Background(), "scraped_emails_task-1.csv", []byte("Website,Emails Found\n"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/scraped_emails_task-1.csv", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "scraped_emails_task-1.csv")
	assert.Equal(t, "Website,Emails Found\n", rec.Body.String())
}

func TestDownloadRejectsTraversal(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/download/..%2F..%2Fetc%2Fpasswd", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid filename.")
}

func TestDownloadMissingArtifact(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/nope.csv", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "File not found.")
}

func TestSafeArtifactName(t *testing.T) {
	t.Parallel()

	assert.True(t, safeArtifactName("scraped_emails_x.csv"))
	assert.False(t, safeArtifactName(""))
	assert.False(t, safeArtifactName("."))
	assert.False(t, safeArtifactName(".."))
	assert.False(t, safeArtifactName("a/../b.csv"))
	assert.False(t, safeArtifactName("dir/file.csv"))
	assert.False(t, safeArtifactName(`dir\file.csv`))
}

func TestRequestIDHeaderSet(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
