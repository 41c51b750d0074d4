package streampoll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/streampoll/internal/events"
	"github.com/jpalmerr/streampoll/internal/github"
	"github.com/jpalmerr/streampoll/internal/poller"
	"github.com/jpalmerr/streampoll/internal/schedule"
	"github.com/jpalmerr/streampoll/internal/server"
	"github.com/jpalmerr/streampoll/internal/store"
	"github.com/jpalmerr/streampoll/internal/stream"
)

const defaultPort = 8080

// Poller is the main orchestrator for stream polling and the control API.
//
// Poller loads stream definitions from the store, polls them one at a time
// in priority order and serves the HTTP control API. It is created using
// [New] with functional options and started with [Poller.Start].
//
// The typical lifecycle is:
//
//	p, err := streampoll.New(streampoll.WithDatabase("streampoll.db"))
//	if err != nil {
//	    slog.Error("failed to create poller", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	p.Start(ctx) // blocks until context cancelled
type Poller struct {
	database        string
	port            int
	pollingInterval time.Duration
	baseURL         string
	token           string
	timeout         time.Duration
	account         Account
	streams         []Stream
	logger          *slog.Logger
	eventCallbacks  []func(Event)
	control         <-chan Signal
}

// New creates a new [Poller] instance with the given options.
//
// Defaults:
//   - Store: in-memory
//   - Port: 8080
//   - Polling interval: the stored preference, 10 seconds on a fresh store
//
// Returns an error if any option is invalid or two seeded streams share a
// name.
func New(opts ...Option) (*Poller, error) {
	cfg := &spConfig{
		port: defaultPort,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// seeding matches existing streams by name
	seen := make(map[string]bool, len(cfg.streams))
	for _, s := range cfg.streams {
		if seen[s.name] {
			return nil, fmt.Errorf("duplicate stream name: %q", s.name)
		}
		seen[s.name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		database:        cfg.database,
		port:            cfg.port,
		pollingInterval: cfg.pollingInterval,
		baseURL:         cfg.baseURL,
		token:           cfg.token,
		timeout:         cfg.timeout,
		account:         cfg.account,
		streams:         cfg.streams,
		logger:          logger,
		eventCallbacks:  cfg.eventCallbacks,
		control:         cfg.control,
	}, nil
}

// Start opens the store, begins polling and serves the control API.
//
// Start is a blocking call that runs until the provided context is
// cancelled. On the way out it stops the polling loop, waits for an
// executing stream to finish and closes the store.
//
// Returns nil on graceful shutdown. Returns an error if the store cannot be
// opened or seeded, or the HTTP server fails to start.
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("streampoll starting", "stream_count", len(p.streams), "database", p.databaseName())
	p.logger.Info("control api available", "url", fmt.Sprintf("http://localhost:%d/api", p.port))

	if ctx.Err() != nil {
		return nil
	}

	st, err := p.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			p.logger.Error("failed to close store", "error", err)
		}
	}()

	if err := p.seed(ctx, st); err != nil {
		return err
	}

	// listeners exit on cancellation, which also covers a failed start
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := events.NewBus()

	client := github.NewClient(p.baseURL, p.token, p.timeout)
	defer client.Close()

	factory := stream.NewFactory(p.account.toStream(), client, st, bus, p.logger)
	queue := schedule.NewQueue()
	loop := poller.NewLoop(queue, st, bus, p.logger)
	controller := poller.NewController(st, factory, queue, loop, p.logger)

	// track the listener goroutines to ensure clean shutdown
	var wg sync.WaitGroup

	if len(p.eventCallbacks) > 0 {
		ch := bus.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer bus.Unsubscribe(ch)
			p.dispatchEvents(ctx, ch)
		}()
	}

	control := make(chan poller.Signal)

	// cleanup stops polling and waits for the listener goroutines
	cleanup := func() {
		controller.Stop()
		controller.Wait()
		wg.Wait()
	}

	httpServer := server.NewServer(st, controller, bus, control, p.port, p.logger)
	if err := httpServer.Start(ctx); err != nil {
		cancel()
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := controller.Start(ctx); err != nil {
		cancel()
		cleanup()
		return fmt.Errorf("failed to load streams: %w", err)
	}

	// signals are only applied once the initial load is done
	wg.Add(1)
	go func() {
		defer wg.Done()
		controller.Listen(ctx, control)
	}()

	if p.control != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			forwardSignals(ctx, p.control, control)
		}()
	}

	<-ctx.Done()
	cleanup()
	p.logger.Info("streampoll stopped")
	return nil
}

// Port returns the configured HTTP port of the control API.
func (p *Poller) Port() int {
	return p.port
}

// PollingInterval returns the configured polling interval, or zero when the
// stored preference is used.
func (p *Poller) PollingInterval() time.Duration {
	return p.pollingInterval
}

// Streams returns a copy of the streams seeded on start.
func (p *Poller) Streams() []Stream {
	cp := make([]Stream, len(p.streams))
	copy(cp, p.streams)
	return cp
}

func (p *Poller) databaseName() string {
	if p.database == "" {
		return "memory"
	}
	return p.database
}

func (p *Poller) openStore(ctx context.Context) (store.Store, error) {
	if p.database == "" {
		return store.NewMemoryStore(), nil
	}
	st, err := store.NewSQLiteStore(ctx, p.database, p.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

// seed writes the configured polling interval and creates every configured
// stream whose name is not in the store yet.
func (p *Poller) seed(ctx context.Context, st store.Store) error {
	if p.pollingInterval > 0 {
		if err := st.SetPollingInterval(ctx, p.pollingInterval); err != nil {
			return fmt.Errorf("failed to set polling interval: %w", err)
		}
	}

	existing, err := st.GetAllStreams(ctx, store.KindUser, store.KindProject)
	if err != nil {
		return fmt.Errorf("failed to read streams: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, s := range existing {
		names[s.Name] = true
	}

	position := len(existing)
	for _, s := range p.streams {
		if names[s.name] {
			p.logger.Debug("stream already stored", "stream", s.name)
			continue
		}
		def := s.toStore()
		def.Position = position
		position++

		id, err := st.CreateStream(ctx, def)
		if err != nil {
			return fmt.Errorf("failed to seed stream %q: %w", s.name, err)
		}
		p.logger.Info("stream seeded", "stream_id", id, "stream", s.name, "kind", def.Kind)
	}
	return nil
}

// dispatchEvents invokes the event callbacks for every bus event until ctx
// is done.
func (p *Poller) dispatchEvents(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			public := eventFromBus(e)
			for _, cb := range p.eventCallbacks {
				invokeCallbackSafe(cb, public, p.logger)
			}
		}
	}
}

// forwardSignals translates public signals into controller signals until ctx
// is done or in is closed.
func forwardSignals(ctx context.Context, in <-chan Signal, out chan<- poller.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- sig.toPoller():
			case <-ctx.Done():
				return
			}
		}
	}
}

// invokeCallbackSafe calls an event callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Event), e Event, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event callback panicked",
				"panic", r,
				"event", string(e.Type),
				"stream", e.StreamName,
			)
		}
	}()
	cb(e)
}
