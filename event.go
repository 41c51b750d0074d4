package streampoll

import (
	"time"

	"github.com/jpalmerr/streampoll/internal/events"
	"github.com/jpalmerr/streampoll/internal/poller"
	"github.com/jpalmerr/streampoll/internal/stream"
)

// EventType identifies what an [Event] reports.
type EventType string

const (
	// EventReloadAllStreams fires once after the whole schedule was rebuilt
	// by a restart.
	EventReloadAllStreams EventType = "reload_all_streams"

	// EventNewIssues fires when a poll stored issues not seen before.
	EventNewIssues EventType = "new_issues"

	// EventStreamPolled fires after every successful poll.
	EventStreamPolled EventType = "stream_polled"

	// EventStreamFailed fires after a poll returned an error.
	EventStreamFailed EventType = "stream_failed"
)

// Event is a notification delivered to callbacks registered with
// [WithEventCallback].
type Event struct {
	Type       EventType
	StreamID   int64
	StreamName string

	// NewIssues is the number of issues stored for the first time. Only set
	// for [EventNewIssues].
	NewIssues int

	// Error describes the failure for [EventStreamFailed]. Panics inside a
	// stream are reported with a correlation id instead of the panic value.
	Error string

	At time.Time
}

func eventFromBus(e events.Event) Event {
	return Event{
		Type:       EventType(e.Type),
		StreamID:   e.StreamID,
		StreamName: e.StreamName,
		NewIssues:  e.NewIssues,
		Error:      e.Error,
		At:         e.At,
	}
}

// Signal is a control command delivered on the channel given to
// [WithControl].
type Signal int

const (
	// SignalStop stops polling and empties the schedule.
	SignalStop Signal = iota + 1

	// SignalRestart rebuilds the schedule from the store and resumes polling.
	SignalRestart
)

// String returns the name of the signal.
func (s Signal) String() string {
	switch s {
	case SignalStop:
		return "stop"
	case SignalRestart:
		return "restart"
	default:
		return "unknown"
	}
}

func (s Signal) toPoller() poller.Signal {
	switch s {
	case SignalStop:
		return poller.SignalStopAll
	case SignalRestart:
		return poller.SignalRestartAll
	default:
		return poller.Signal(0)
	}
}

// Account is the GitHub identity the built-in Team, Watching and
// Subscription streams derive their queries from.
type Account struct {
	// Login is the GitHub user name.
	Login string

	// Teams are "org/team" slugs.
	Teams []string

	// Watching are "owner/name" repositories.
	Watching []string

	// Subscriptions are issue references of the form "owner/name#number".
	Subscriptions []string
}

func (a Account) toStream() stream.Account {
	return stream.Account{
		Login:         a.Login,
		Teams:         append([]string(nil), a.Teams...),
		Watching:      append([]string(nil), a.Watching...),
		Subscriptions: append([]string(nil), a.Subscriptions...),
	}
}
