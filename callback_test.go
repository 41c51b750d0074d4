package streampoll

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newGitHubServer answers every issue search with a single issue.
func newGitHubServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/issues" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_count":1,"items":[{
			"id": 101,
			"number": 7,
			"title": "Flaky test",
			"html_url": "https://github.com/octo-org/api/issues/7",
			"state": "open",
			"updated_at": "2026-01-02T03:04:05Z",
			"repository_url": "https://api.github.com/repos/octo-org/api"
		}]}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

// runUntil starts p and cancels it once done is closed or the timeout
// expires.
func runUntil(t *testing.T, p *Poller, done <-chan struct{}, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Start(ctx)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Error("timed out waiting for callback")
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestWithEventCallback_InvokedOnPoll(t *testing.T) {
	var callCount atomic.Int32
	done := make(chan struct{})
	var once sync.Once

	p, err := New(
		WithEventCallback(func(e Event) {
			if e.Type == EventStreamPolled {
				callCount.Add(1)
				once.Do(func() { close(done) })
			}
		}),
		WithPort(19200),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	runUntil(t, p, done, 3*time.Second)

	if callCount.Load() == 0 {
		t.Error("callback should have been invoked at least once")
	}
}

func TestWithEventCallback_NewIssues(t *testing.T) {
	gh := newGitHubServer(t)

	var (
		mu     sync.Mutex
		result Event
	)
	done := make(chan struct{})

	p, err := New(
		WithGitHub(gh.URL, "", time.Second),
		WithAccount(Account{Login: "octocat", Teams: []string{"octo-org/core"}}),
		WithEventCallback(func(e Event) {
			mu.Lock()
			defer mu.Unlock()
			if e.Type == EventNewIssues && result.Type == "" {
				result = e
				close(done)
			}
		}),
		WithPort(19201),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	runUntil(t, p, done, 3*time.Second)

	mu.Lock()
	defer mu.Unlock()
	if result.StreamName != "Team" {
		t.Errorf("StreamName = %q, want %q", result.StreamName, "Team")
	}
	if result.NewIssues != 1 {
		t.Errorf("NewIssues = %d, want 1", result.NewIssues)
	}
	if result.At.IsZero() {
		t.Error("At should be set")
	}
}

func TestWithEventCallback_StreamFailed(t *testing.T) {
	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
	}))
	defer gh.Close()

	var (
		mu     sync.Mutex
		result Event
	)
	done := make(chan struct{})

	p, err := New(
		WithGitHub(gh.URL, "", time.Second),
		WithAccount(Account{Teams: []string{"octo-org/core"}}),
		WithEventCallback(func(e Event) {
			mu.Lock()
			defer mu.Unlock()
			if e.Type == EventStreamFailed && result.Type == "" {
				result = e
				close(done)
			}
		}),
		WithPort(19202),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	runUntil(t, p, done, 3*time.Second)

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(result.Error, "rate limit") {
		t.Errorf("Error = %q, want it to contain the API message", result.Error)
	}
}

func TestWithEventCallback_PanicRecovery(t *testing.T) {
	var normalCalled atomic.Bool
	done := make(chan struct{})
	var once sync.Once

	var logBuf syncBuffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	p, err := New(
		WithEventCallback(func(Event) {
			panic("intentional test panic")
		}),
		WithEventCallback(func(Event) {
			normalCalled.Store(true)
			once.Do(func() { close(done) })
		}),
		WithLogger(logger),
		WithPort(19203),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	runUntil(t, p, done, 3*time.Second)

	if !normalCalled.Load() {
		t.Error("subsequent callbacks should still run after panic")
	}
	if !strings.Contains(logBuf.String(), "event callback panicked") {
		t.Error("panic should have been logged")
	}
}

func TestWithEventCallback_ExecutionOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []int
	)
	done := make(chan struct{})
	var once sync.Once

	record := func(n int) func(Event) {
		return func(Event) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, n)
			if len(order) >= 3 {
				once.Do(func() { close(done) })
			}
		}
	}

	p, err := New(
		WithEventCallback(record(1)),
		WithEventCallback(record(2)),
		WithEventCallback(record(3)),
		WithPort(19204),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	runUntil(t, p, done, 3*time.Second)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i+2 < len(order); i += 3 {
		if order[i] != 1 || order[i+1] != 2 || order[i+2] != 3 {
			t.Fatalf("callback order = %v, want repeating 1,2,3", order)
		}
	}
}

// TestWithControl_Restart verifies a restart signal rebuilds the schedule and
// publishes a reload event.
func TestWithControl_Restart(t *testing.T) {
	control := make(chan Signal, 1)
	control <- SignalRestart

	done := make(chan struct{})
	var once sync.Once

	p, err := New(
		WithControl(control),
		WithEventCallback(func(e Event) {
			if e.Type == EventReloadAllStreams {
				once.Do(func() { close(done) })
			}
		}),
		WithPort(19205),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	runUntil(t, p, done, 3*time.Second)
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a logger.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
