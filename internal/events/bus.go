// Package events is the notification bus that tells the rest of the
// application that stream data changed.
//
// Subscribers receive events via buffered channels with non-blocking sends:
// a slow subscriber misses events rather than stalling the poller.
package events

import (
	"sync"
	"time"
)

// subscriberBuffer is the channel capacity given to each subscriber.
const subscriberBuffer = 100

// Type identifies what happened.
type Type string

const (
	// TypeReloadAllStreams fires once after the whole schedule was rebuilt.
	TypeReloadAllStreams Type = "reload_all_streams"

	// TypeNewIssues fires when a poll stored issues not seen before.
	TypeNewIssues Type = "new_issues"

	// TypeStreamPolled fires after every successful poll.
	TypeStreamPolled Type = "stream_polled"

	// TypeStreamFailed fires after a poll returned an error.
	TypeStreamFailed Type = "stream_failed"
)

// Event is a single notification.
type Event struct {
	Type       Type      `json:"type"`
	StreamID   int64     `json:"stream_id,omitempty"`
	StreamName string    `json:"stream_name,omitempty"`
	NewIssues  int       `json:"new_issues,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher is the sending half of the bus.
type Publisher interface {
	Publish(e Event)
}

// Bus is an in-process publish/subscribe hub for [Event] values.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Publish delivers e to every subscriber whose buffer has room. A zero At
// is set to the current time.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// subscriber is slow, drop the event
		}
	}
}

// Subscribe returns a new buffered channel receiving every later event.
// Callers must call [Bus.Unsubscribe] when done.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subCh := range b.subscribers {
		if subCh == ch {
			delete(b.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
