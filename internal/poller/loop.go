package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/streampoll/internal/events"
	"github.com/jpalmerr/streampoll/internal/schedule"
	"github.com/jpalmerr/streampoll/internal/store"
	"github.com/jpalmerr/streampoll/internal/stream"
)

// State is the lifecycle state of a [Loop].
type State int

const (
	// StateIdle means no generation is running.
	StateIdle State = iota

	// StateRunning means the current generation is polling.
	StateRunning

	// StateDraining means the loop was stopped while a unit was still
	// executing; that generation exits once the unit returns.
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "running":
		*s = StateRunning
	case "draining":
		*s = StateDraining
	default:
		return fmt.Errorf("unknown loop state %q", text)
	}
	return nil
}

// Loop executes the head of a [schedule.Queue] one task at a time, puts it
// back at the default priority and sleeps for the polling interval.
//
// Every Start begins a new generation identified by an epoch token and owns
// a context cancelled by Stop. A generation only checks whether it is still
// current at fixed points: before popping, after a unit returns and while
// sleeping. Units are never interrupted; they run with a context Stop does
// not cancel.
//
// All methods are safe for concurrent use.
type Loop struct {
	queue  *schedule.Queue
	prefs  store.Preferences
	events events.Publisher
	logger *slog.Logger

	mu      sync.Mutex
	epoch   string
	cancel  context.CancelFunc
	parent  context.Context
	stopped bool
	live    map[string]struct{}
	wg      sync.WaitGroup

	restartMu sync.Mutex
}

// NewLoop creates a [Loop] over queue. The polling interval is read from
// prefs before every sleep so changes apply on the next cycle. A nil pub
// drops events.
func NewLoop(queue *schedule.Queue, prefs store.Preferences, pub events.Publisher, logger *slog.Logger) *Loop {
	if pub == nil {
		pub = discardPublisher{}
	}
	return &Loop{
		queue:   queue,
		prefs:   prefs,
		events:  pub,
		logger:  logger.With("component", "poller"),
		stopped: true,
		live:    make(map[string]struct{}),
	}
}

// Start begins a new generation that polls until the queue drains, ctx is
// cancelled or [Loop.Stop] is called.
//
// Start is a no-op while the current generation is running. A generation
// still draining after Stop does not block Start; the two may overlap but
// only the new one puts tasks back.
func (l *Loop) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopped = false
	if _, alive := l.live[l.epoch]; alive && l.epoch != "" {
		return
	}
	l.startLocked(ctx)
}

// Wake starts a new generation if the previous one exited because the queue
// ran dry. It does nothing after Stop, while a generation is running, or once
// the context given to Start is done. Reports whether a generation was
// started.
func (l *Loop) Wake() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || l.parent == nil || l.parent.Err() != nil {
		return false
	}
	if _, alive := l.live[l.epoch]; alive {
		return false
	}
	l.startLocked(l.parent)
	return true
}

func (l *Loop) startLocked(ctx context.Context) {
	if l.cancel != nil {
		l.cancel()
	}

	epoch := uuid.NewString()
	genCtx, cancel := context.WithCancel(ctx)

	l.epoch = epoch
	l.cancel = cancel
	l.parent = ctx
	l.live[epoch] = struct{}{}
	l.wg.Add(1)

	l.logger.Debug("polling loop started", "epoch", epoch)
	go l.run(genCtx, epoch)
}

// Stop invalidates the current generation, aborts its sleep and clears the
// queue. A unit that is executing runs to completion and is not put back.
// Stop is idempotent and safe to call before Start.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	if l.epoch != "" {
		l.logger.Debug("polling loop stopped", "epoch", l.epoch)
	}
	l.epoch = ""
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.mu.Unlock()

	l.queue.Clear()
}

// Restart stops the loop, rebuilds the queue with reload and starts a new
// generation. Exactly one [events.TypeReloadAllStreams] event is published
// on success. If reload fails the loop stays stopped.
func (l *Loop) Restart(ctx context.Context, reload func(context.Context) error) error {
	l.restartMu.Lock()
	defer l.restartMu.Unlock()

	l.Stop()
	if reload != nil {
		if err := reload(ctx); err != nil {
			return err
		}
	}
	l.Start(ctx)

	l.events.Publish(events.Event{Type: events.TypeReloadAllStreams})
	return nil
}

// State reports whether the loop is idle, running or draining.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, alive := l.live[l.epoch]; alive && l.epoch != "" {
		return StateRunning
	}
	if len(l.live) > 0 {
		return StateDraining
	}
	return StateIdle
}

// Wait blocks until every generation has exited.
func (l *Loop) Wait() {
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context, epoch string) {
	defer l.wg.Done()
	defer l.exit(epoch)

	for {
		if !l.isCurrent(epoch) || ctx.Err() != nil {
			return
		}

		task, ok := l.queue.PopFront()
		if !ok {
			if l.retire(epoch) {
				return
			}
			continue
		}

		l.execute(context.WithoutCancel(ctx), task.Unit)

		if !l.isCurrent(epoch) {
			return
		}
		l.queue.Reinsert(task, schedule.DefaultPriority)

		timer := time.NewTimer(l.interval(ctx))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (l *Loop) execute(ctx context.Context, unit stream.Unit) {
	start := time.Now()
	err := unit.Execute(ctx)
	elapsed := time.Since(start)

	if err != nil {
		l.logger.Warn("stream poll failed",
			"stream_id", unit.ID(),
			"stream", unit.Name(),
			"duration", elapsed,
			"error", err,
		)
		e := events.Event{
			Type:       events.TypeStreamFailed,
			StreamID:   unit.ID(),
			StreamName: unit.Name(),
			Error:      err.Error(),
		}
		var fe *stream.FetchError
		if errors.As(err, &fe) && fe.CorrelationID != "" {
			e.Error = "internal error (correlation_id: " + fe.CorrelationID + ")"
		}
		l.events.Publish(e)
		return
	}

	l.logger.Debug("stream poll finished",
		"stream_id", unit.ID(),
		"stream", unit.Name(),
		"duration", elapsed,
	)
	l.events.Publish(events.Event{
		Type:       events.TypeStreamPolled,
		StreamID:   unit.ID(),
		StreamName: unit.Name(),
	})
}

// interval reads the polling interval, falling back to the default when the
// preference cannot be read.
func (l *Loop) interval(ctx context.Context) time.Duration {
	d, err := l.prefs.PollingInterval(ctx)
	if err != nil {
		l.logger.Warn("failed to read polling interval", "error", err)
		return store.DefaultPollingInterval
	}
	if d < 0 {
		return 0
	}
	return d
}

func (l *Loop) isCurrent(epoch string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch == epoch
}

// retire marks the generation as exited when the queue is empty. The check
// runs under the loop lock so a concurrent Wake either sees the generation
// alive and the task is picked up here, or sees it gone and starts a new one.
func (l *Loop) retire(epoch string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.epoch == epoch && l.queue.Len() > 0 {
		return false
	}
	delete(l.live, epoch)
	l.logger.Debug("polling loop drained", "epoch", epoch)
	return true
}

func (l *Loop) exit(epoch string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.live, epoch)
}

type discardPublisher struct{}

func (discardPublisher) Publish(events.Event) {}
