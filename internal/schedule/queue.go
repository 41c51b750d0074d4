// Package schedule holds the ordered queue of streams waiting to be polled.
//
// Tasks are grouped by priority tier, higher tiers first, and kept in
// insertion order within a tier. The task most recently handed out by
// [Queue.PopFront] is tracked as in flight so that removing or clearing it
// while it executes prevents it from being put back.
package schedule

import (
	"errors"
	"sync"

	"github.com/jpalmerr/streampoll/internal/stream"
)

// Priority tiers used by the poller.
const (
	DefaultPriority = 0
	RefreshPriority = 1
)

// ErrDuplicateUnit is returned by [Queue.Insert] when a task for the same
// unit id is already queued.
var ErrDuplicateUnit = errors.New("unit already scheduled")

// Task is a queue entry: a unit and the tier it waits in.
type Task struct {
	Unit     stream.Unit
	Priority int

	ticket uint64
}

// Queue is the schedule of future executions. All methods are safe for
// concurrent use.
type Queue struct {
	mu    sync.Mutex
	tasks []Task

	// in-flight bookkeeping for the last popped task
	inflight   uint64
	inflightID int64
	cancelled  bool
	next       uint64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Insert queues unit at the end of its priority tier: after every task of
// the same or higher priority and before the first task of lower priority.
//
// Returns [ErrDuplicateUnit] if the unit id is already queued. Inserting the
// id of the in-flight unit cancels that unit's pending re-insertion.
func (q *Queue) Insert(unit stream.Unit, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := unit.ID()
	if q.indexLocked(id) >= 0 {
		return ErrDuplicateUnit
	}
	if q.inflight != 0 && q.inflightID == id {
		q.cancelled = true
	}
	q.insertLocked(Task{Unit: unit, Priority: priority})
	return nil
}

// Remove deletes the task for id and cancels the pending re-insertion of
// the in-flight task with that id. Reports whether anything was removed.
func (q *Queue) Remove(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := false
	if i := q.indexLocked(id); i >= 0 {
		q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
		removed = true
	}
	if q.inflight != 0 && q.inflightID == id && !q.cancelled {
		q.cancelled = true
		removed = true
	}
	return removed
}

// PopFront removes and returns the highest-priority, earliest-inserted
// task. The returned task is in flight until it is passed to
// [Queue.Reinsert] or the next PopFront.
func (q *Queue) PopFront() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return Task{}, false
	}

	task := q.tasks[0]
	q.tasks[0] = Task{}
	q.tasks = q.tasks[1:]

	q.next++
	task.ticket = q.next
	q.inflight = task.ticket
	q.inflightID = task.Unit.ID()
	q.cancelled = false
	return task, true
}

// Reinsert puts a task obtained from PopFront back at the given priority.
//
// The task is dropped instead when it was removed or the queue was cleared
// while it was in flight, when another task was popped since, or when a task
// with the same unit id has been queued in the meantime. Reports whether the
// task was queued.
func (q *Queue) Reinsert(task Task, priority int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task.ticket == 0 || task.ticket != q.inflight {
		return false
	}
	cancelled := q.cancelled
	q.inflight = 0
	q.cancelled = false

	if cancelled || q.indexLocked(task.Unit.ID()) >= 0 {
		return false
	}
	q.insertLocked(Task{Unit: task.Unit, Priority: priority})
	return true
}

// Find returns the queued task for id, if any. The in-flight task is not
// considered queued.
func (q *Queue) Find(id int64) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexLocked(id); i >= 0 {
		return q.tasks[i], true
	}
	return Task{}, false
}

// Clear empties the queue and cancels any pending re-insertion.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = nil
	if q.inflight != 0 {
		q.cancelled = true
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Snapshot returns a copy of the queued tasks in execution order.
func (q *Queue) Snapshot() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}

func (q *Queue) insertLocked(task Task) {
	i := len(q.tasks)
	for j, t := range q.tasks {
		if t.Priority < task.Priority {
			i = j
			break
		}
	}
	q.tasks = append(q.tasks, Task{})
	copy(q.tasks[i+1:], q.tasks[i:])
	q.tasks[i] = task
}

func (q *Queue) indexLocked(id int64) int {
	for i, t := range q.tasks {
		if t.Unit.ID() == id {
			return i
		}
	}
	return -1
}
