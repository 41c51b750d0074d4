package streampoll

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jpalmerr/streampoll/internal/store"
)

// Kind is the type of a user-defined stream.
type Kind string

const (
	// KindUser is a stream of free-form issue search queries.
	KindUser Kind = "user"

	// KindProject is a stream whose results belong to a project board.
	KindProject Kind = "project"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Stream is a user-defined stream seeded into the store when the poller
// starts.
//
// Stream is immutable after creation via [NewStream]. A stream whose name
// already exists in the store is not seeded again, so edits made through
// the control API survive a restart.
type Stream struct {
	name    string
	kind    Kind
	queries []string
	enabled bool
}

// Name returns the stream's display name.
func (s Stream) Name() string {
	return s.name
}

// Kind returns the stream's kind. Defaults to [KindUser].
func (s Stream) Kind() Kind {
	return s.kind
}

// Queries returns a copy of the stream's search queries.
func (s Stream) Queries() []string {
	return append([]string(nil), s.queries...)
}

// Enabled reports whether the stream is scheduled.
func (s Stream) Enabled() bool {
	return s.enabled
}

// streamConfig holds mutable state during stream construction.
type streamConfig struct {
	kind    Kind
	enabled bool
}

// StreamOption configures a [Stream] during construction.
type StreamOption func(*streamConfig) error

// WithKind sets the stream's kind.
//
// Returns an error for anything other than [KindUser] or [KindProject].
func WithKind(k Kind) StreamOption {
	return func(cfg *streamConfig) error {
		switch k {
		case KindUser, KindProject:
			cfg.kind = k
			return nil
		default:
			return fmt.Errorf("invalid stream kind %q", k)
		}
	}
}

// WithEnabled sets whether the stream is scheduled. Streams are enabled by
// default.
func WithEnabled(enabled bool) StreamOption {
	return func(cfg *streamConfig) error {
		cfg.enabled = enabled
		return nil
	}
}

// NewStream creates a [Stream] with the given name and search queries.
//
// Blank queries are dropped. Returns an error if the name is empty.
//
// Example:
//
//	s, err := streampoll.NewStream("Reviews", []string{"is:pr is:open review-requested:octocat"},
//	    streampoll.WithKind(streampoll.KindProject),
//	)
func NewStream(name string, queries []string, opts ...StreamOption) (Stream, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Stream{}, errors.New("stream name cannot be empty")
	}

	cfg := &streamConfig{
		kind:    KindUser,
		enabled: true,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Stream{}, err
		}
	}

	cleaned := make([]string, 0, len(queries))
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}

	return Stream{
		name:    name,
		kind:    cfg.kind,
		queries: cleaned,
		enabled: cfg.enabled,
	}, nil
}

// toStore converts the stream to its storage definition.
func (s Stream) toStore() store.Stream {
	kind := store.KindUser
	if s.kind == KindProject {
		kind = store.KindProject
	}
	return store.Stream{
		Name:    s.name,
		Kind:    kind,
		Enabled: s.enabled,
		Queries: s.Queries(),
	}
}
