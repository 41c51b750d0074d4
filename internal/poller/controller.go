package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jpalmerr/streampoll/internal/schedule"
	"github.com/jpalmerr/streampoll/internal/store"
	"github.com/jpalmerr/streampoll/internal/stream"
)

// LookupError is returned by [Controller.RefreshStream] when the stream
// cannot be scheduled.
type LookupError struct {
	StreamID int64
	Reason   string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("stream %d: %s", e.StreamID, e.Reason)
}

// UnitBuilder turns a stream definition into a schedulable unit.
// *stream.Factory satisfies it.
type UnitBuilder interface {
	Build(def store.Stream) (stream.Unit, error)
}

// Signal is a control message for [Controller.Listen].
type Signal int

const (
	// SignalStopAll stops polling and clears the schedule.
	SignalStopAll Signal = iota + 1

	// SignalRestartAll rebuilds the schedule from storage.
	SignalRestartAll
)

func (s Signal) String() string {
	switch s {
	case SignalStopAll:
		return "stop_all"
	case SignalRestartAll:
		return "restart_all"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// TaskInfo describes one scheduled stream.
type TaskInfo struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Priority int      `json:"priority"`
	Queries  []string `json:"queries"`
}

// Controller is the entry point for everything that changes the schedule:
// startup, user edits, refresh requests and control signals.
type Controller struct {
	repo    store.StreamRepository
	builder UnitBuilder
	queue   *schedule.Queue
	loop    *Loop
	logger  *slog.Logger
}

// NewController creates a [Controller] that schedules streams from repo on
// queue and drives them with loop.
func NewController(repo store.StreamRepository, builder UnitBuilder, queue *schedule.Queue, loop *Loop, logger *slog.Logger) *Controller {
	return &Controller{
		repo:    repo,
		builder: builder,
		queue:   queue,
		loop:    loop,
		logger:  logger.With("component", "controller"),
	}
}

// Start loads every enabled stream, system streams first, queues them at
// the default priority and starts the loop. Streams that cannot be built are
// logged and skipped.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.load(ctx); err != nil {
		return err
	}
	c.loop.Start(ctx)
	return nil
}

// Stop halts polling and clears the schedule.
func (c *Controller) Stop() {
	c.loop.Stop()
}

// Restart is Stop followed by Start and publishes a single reload event.
func (c *Controller) Restart(ctx context.Context) error {
	return c.loop.Restart(ctx, c.load)
}

// State reports the loop state.
func (c *Controller) State() State {
	return c.loop.State()
}

// Wait blocks until the loop has fully exited.
func (c *Controller) Wait() {
	c.loop.Wait()
}

func (c *Controller) load(ctx context.Context) error {
	system, err := c.repo.GetAllStreams(ctx, store.KindSystem)
	if err != nil {
		return fmt.Errorf("load system streams: %w", err)
	}
	user, err := c.repo.GetAllStreams(ctx, store.KindUser, store.KindProject)
	if err != nil {
		return fmt.Errorf("load user streams: %w", err)
	}

	scheduled := 0
	for _, def := range append(system, user...) {
		if !def.Enabled {
			continue
		}
		unit, err := c.builder.Build(def)
		if err != nil {
			c.logger.Warn("skipping stream", "stream_id", def.ID, "stream", def.Name, "error", err)
			continue
		}
		if err := c.queue.Insert(unit, schedule.DefaultPriority); err != nil {
			c.logger.Debug("stream already scheduled", "stream_id", def.ID)
			continue
		}
		scheduled++
	}

	c.logger.Info("streams scheduled", "count", scheduled)
	return nil
}

// RefreshStream re-reads a stream definition and, if it is enabled, queues
// it ahead of every default-priority task and wakes the loop.
//
// The existing task is removed first, so a failed refresh or a disabled
// stream leaves the stream unscheduled. Unknown ids and unsupported kinds
// return a *LookupError; a definition that cannot be built returns the
// builder's error.
func (c *Controller) RefreshStream(ctx context.Context, id int64) error {
	c.queue.Remove(id)

	def, err := c.repo.GetStream(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &LookupError{StreamID: id, Reason: "stream not found"}
	}
	if err != nil {
		return fmt.Errorf("refresh stream %d: %w", id, err)
	}

	switch def.Kind {
	case store.KindUser, store.KindProject, store.KindSystem:
	default:
		return &LookupError{StreamID: id, Reason: fmt.Sprintf("unsupported kind %q", def.Kind)}
	}

	if !def.Enabled {
		c.logger.Debug("stream disabled, not scheduled", "stream_id", id)
		return nil
	}

	unit, err := c.builder.Build(def)
	if err != nil {
		return err
	}
	if err := c.queue.Insert(unit, schedule.RefreshPriority); err != nil {
		return fmt.Errorf("refresh stream %d: %w", id, err)
	}

	c.logger.Debug("stream refreshed", "stream_id", id, "stream", def.Name)
	c.loop.Wake()
	return nil
}

// DeleteStream drops a stream from the schedule, including a pending
// re-insertion while it executes. Reports whether anything was removed.
func (c *Controller) DeleteStream(id int64) bool {
	return c.queue.Remove(id)
}

// QueriesFor returns the queries of the queued task for id, or an empty
// slice if the stream is not queued.
func (c *Controller) QueriesFor(id int64) []string {
	task, ok := c.queue.Find(id)
	if !ok {
		return []string{}
	}
	return task.Unit.Queries()
}

// Snapshot returns the schedule in execution order.
func (c *Controller) Snapshot() []TaskInfo {
	tasks := c.queue.Snapshot()
	out := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskInfo{
			ID:       t.Unit.ID(),
			Name:     t.Unit.Name(),
			Priority: t.Priority,
			Queries:  t.Unit.Queries(),
		})
	}
	return out
}

// Listen applies signals received on ch until ctx is done or ch is closed.
func (c *Controller) Listen(ctx context.Context, ch <-chan Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			c.logger.Info("control signal received", "signal", sig.String())
			switch sig {
			case SignalStopAll:
				c.Stop()
			case SignalRestartAll:
				if err := c.Restart(ctx); err != nil {
					c.logger.Error("restart failed", "error", err)
				}
			default:
				c.logger.Warn("unknown control signal", "signal", int(sig))
			}
		}
	}
}
