package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/email-harvester/internal/scraper"
)

// readEvents consumes SSE data lines from the response until the stream ends.
func readEvents(t *testing.T, body *bufio.Scanner) []string {
	t.Helper()
	var events []string
	for body.Scan() {
		line := body.Text()
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	return events
}

func TestStreamUnknownTask(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/progress/missing")
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	events := readEvents(t, bufio.NewScanner(resp.Body))
	require.Len(t, events, 1)
	assert.Equal(t, "Error: Task ID missing not found.", events[0])
}

func TestStreamReplaysBacklogThenTerminal(t *testing.T) {
	t.Parallel()
	srv, store, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	task, err := store.Create(context.Background(), []string{"http://a.test"})
	require.NoError(t, err)
	require.NoError(t, store.Transition(context.Background(), task.ID, scraper.TaskStatusProcessing, scraper.TransitionDetail{}))
	require.NoError(t, store.AppendLog(context.Background(), task.ID, "Scraping (Homepage): http://a.test"))
	require.NoError(t, store.Transition(context.Background(), task.ID, scraper.TaskStatusComplete, scraper.TransitionDetail{
		ResultFile: "scraped_emails_" + task.ID + ".csv",
		Summary:    "1 websites processed.",
	}))

	resp, err := http.Get(ts.URL + "/api/progress/" + task.ID)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	events := readEvents(t, bufio.NewScanner(resp.Body))
	require.Equal(t, []string{
		"Task initiated.",
		"Scraping (Homepage): http://a.test",
		"COMPLETE:scraped_emails_" + task.ID + ".csv",
	}, events)
}

func TestStreamTailsLiveTask(t *testing.T) {
	t.Parallel()
	srv, store, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	task, err := store.Create(context.Background(), []string{"http://a.test"})
	require.NoError(t, err)
	require.NoError(t, store.Transition(context.Background(), task.ID, scraper.TaskStatusProcessing, scraper.TransitionDetail{}))

	resp, err := http.Get(ts.URL + "/api/progress/" + task.ID)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	// Feed the task while the stream is attached.
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = store.AppendLog(context.Background(), task.ID, "line after connect")
		time.Sleep(30 * time.Millisecond)
		_ = store.Transition(context.Background(), task.ID, scraper.TaskStatusError, scraper.TransitionDetail{
			ErrorDetail: "boom",
		})
	}()

	events := readEvents(t, bufio.NewScanner(resp.Body))
	require.Equal(t, []string{
		"Task initiated.",
		"line after connect",
		"ERROR:boom",
	}, events)
}

func TestStreamDoesNotDuplicateLines(t *testing.T) {
	t.Parallel()
	srv, store, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	task, err := store.Create(context.Background(), []string{"http://a.test"})
	require.NoError(t, err)
	require.NoError(t, store.Transition(context.Background(), task.ID, scraper.TaskStatusProcessing, scraper.TransitionDetail{}))

	resp, err := http.Get(ts.URL + "/api/progress/" + task.ID)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	go func() {
		// Several poll intervals pass with no new lines before the finish.
		time.Sleep(80 * time.Millisecond)
		_ = store.Transition(context.Background(), task.ID, scraper.TaskStatusComplete, scraper.TransitionDetail{
			ResultFile: "scraped_emails_" + task.ID + ".csv",
		})
	}()

	events := readEvents(t, bufio.NewScanner(resp.Body))
	counts := make(map[string]int)
	for _, e := range events {
		counts[e]++
	}
	assert.Equal(t, 1, counts["Task initiated."])
	assert.Equal(t, 1, counts["COMPLETE:scraped_emails_"+task.ID+".csv"])
}

func TestStreamIndependentCursors(t *testing.T) {
	t.Parallel()
	srv, store, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	task, err := store.Create(context.Background(), []string{"http://a.test"})
	require.NoError(t, err)
	require.NoError(t, store.Transition(context.Background(), task.ID, scraper.TaskStatusProcessing, scraper.TransitionDetail{}))
	require.NoError(t, store.AppendLog(context.Background(), task.ID, "early line"))
	require.NoError(t, store.Transition(context.Background(), task.ID, scraper.TaskStatusComplete, scraper.TransitionDetail{
		ResultFile: "scraped_emails_" + task.ID + ".csv",
	}))

	// Both connections see the full backlog even though the task finished
	// before either of them attached.
	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL + "/api/progress/" + task.ID)
		require.NoError(t, err)
		events := readEvents(t, bufio.NewScanner(resp.Body))
		require.NoError(t, resp.Body.Close())
		require.Equal(t, []string{
			"Task initiated.",
			"early line",
			"COMPLETE:scraped_emails_" + task.ID + ".csv",
		}, events)
	}
}
