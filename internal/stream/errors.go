package stream

import (
	"fmt"

	"github.com/jpalmerr/streampoll/internal/store"
)

// ConfigurationError reports a stream definition no unit can be built for.
// The stream is not scheduled.
type ConfigurationError struct {
	StreamID int64
	Kind     store.Kind
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("stream %d (kind %q): %s", e.StreamID, e.Kind, e.Reason)
}

// FetchError reports a failed poll. The stream stays scheduled and is
// retried on its next turn.
type FetchError struct {
	StreamID   int64
	StreamName string
	Err        error

	// CorrelationID is set when the error was produced by a recovered panic;
	// the full stack trace is logged under the same id.
	CorrelationID string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("poll stream %d (%s): %v", e.StreamID, e.StreamName, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
