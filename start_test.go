package streampoll

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/streampoll/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStart_BlocksUntilContextCancelled verifies that Start blocks until the
// provided context is cancelled.
func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	p, err := New(
		WithPort(19001),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		close(started)
		done <- p.Start(ctx)
	}()

	<-started
	time.Sleep(50 * time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
		// expected: still blocking
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

// TestStart_ReturnsImmediatelyIfContextAlreadyCancelled verifies that Start
// returns immediately if the context is already cancelled.
func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	p, err := New(
		WithPort(19002),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.Start(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return with already-cancelled context")
	}
}

// TestStart_MultipleSequentialRuns verifies that a new Poller can be started
// after the previous one shuts down.
func TestStart_MultipleSequentialRuns(t *testing.T) {
	for i := 0; i < 3; i++ {
		p, err := New(
			WithPort(19004+i),
			WithLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("iteration %d: New() error = %v", i, err)
		}

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- p.Start(ctx)
		}()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("iteration %d: Start() returned error: %v", i, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("iteration %d: Start() did not return", i)
		}
	}
}

// TestStart_ConcurrentAccess verifies the accessors are safe while Start
// runs.
func TestStart_ConcurrentAccess(t *testing.T) {
	s, _ := NewStream("Mine", []string{"is:open"})
	p, err := New(
		WithPort(19010),
		WithStreams(s),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Streams()
			_ = p.Port()
			_ = p.PollingInterval()
		}()
	}

	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("goroutines did not complete")
	}
}

// TestStart_WithTimeoutContext verifies Start respects deadline contexts.
func TestStart_WithTimeoutContext(t *testing.T) {
	p, err := New(
		WithPort(19011),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = p.Start(ctx)
	elapsed := time.Since(start)

	if elapsed < 150*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("Start() ran for %v, expected ~200ms", elapsed)
	}
	if err != nil {
		t.Errorf("Start() error = %v, want nil", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	first, _ := New(WithPort(19012), WithLogger(testLogger()))
	second, _ := New(WithPort(19012), WithLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- first.Start(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	errCh := make(chan error, 1)
	go func() {
		errCh <- second.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("Start() on a bound port expected error, got nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() on a bound port did not return")
	}

	cancel()
	<-done
}

// TestStart_SQLitePersistsSeededStreams verifies configured streams are
// written once and survive a second start.
func TestStart_SQLitePersistsSeededStreams(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "streampoll.db")
	s, _ := NewStream("Mine", []string{"is:open author:octocat"})

	for i := 0; i < 2; i++ {
		p, err := New(
			WithDatabase(dbPath),
			WithPort(19020+i),
			WithPollingInterval(5*time.Second),
			WithStreams(s),
			WithLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("iteration %d: New() error = %v", i, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		err = p.Start(ctx)
		cancel()
		if err != nil {
			t.Fatalf("iteration %d: Start() error = %v", i, err)
		}
	}

	ctx := context.Background()
	st, err := store.NewSQLiteStore(ctx, dbPath, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer st.Close()

	streams, err := st.GetAllStreams(ctx, store.KindUser)
	if err != nil {
		t.Fatalf("GetAllStreams() error = %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("len(streams) = %d, want 1", len(streams))
	}
	if streams[0].Name != "Mine" {
		t.Errorf("streams[0].Name = %q, want %q", streams[0].Name, "Mine")
	}

	interval, err := st.PollingInterval(ctx)
	if err != nil {
		t.Fatalf("PollingInterval() error = %v", err)
	}
	if interval != 5*time.Second {
		t.Errorf("PollingInterval() = %v, want %v", interval, 5*time.Second)
	}
}

func TestSeed_SkipsExistingNames(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	if _, err := st.CreateStream(ctx, store.Stream{Name: "Mine", Kind: store.KindUser, Queries: []string{"old"}}); err != nil {
		t.Fatalf("CreateStream() error = %v", err)
	}

	mine, _ := NewStream("Mine", []string{"new"})
	board, _ := NewStream("Board", []string{"project:1"}, WithKind(KindProject))
	p, _ := New(WithStreams(mine, board), WithLogger(testLogger()))

	if err := p.seed(ctx, st); err != nil {
		t.Fatalf("seed() error = %v", err)
	}

	streams, _ := st.GetAllStreams(ctx, store.KindUser, store.KindProject)
	if len(streams) != 2 {
		t.Fatalf("len(streams) = %d, want 2", len(streams))
	}
	if streams[0].Name != "Mine" || streams[0].Queries[0] != "old" {
		t.Errorf("existing stream = %+v, want it left unchanged", streams[0])
	}
	if streams[1].Name != "Board" || streams[1].Kind != store.KindProject || streams[1].Position != 1 {
		t.Errorf("seeded stream = %+v, want Board project stream at position 1", streams[1])
	}

	interval, _ := st.PollingInterval(ctx)
	if interval != store.DefaultPollingInterval {
		t.Errorf("PollingInterval() = %v, want default %v when no interval configured", interval, store.DefaultPollingInterval)
	}
}
