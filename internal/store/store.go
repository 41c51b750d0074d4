package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a stream id does not exist.
var ErrNotFound = errors.New("not found")

// MinPollingInterval is the smallest interval persistent stores will hand
// back. In-memory stores used by tests may go below it.
const MinPollingInterval = time.Second

// DefaultPollingInterval is used when no interval preference has been set.
const DefaultPollingInterval = 10 * time.Second

// Kind is the declared type of a stream definition.
type Kind string

const (
	// KindUser is a stream whose queries are written by the user.
	KindUser Kind = "UserStream"

	// KindProject is a user stream scoped to a project board.
	KindProject Kind = "ProjectStream"

	// KindSystem is one of the built-in streams whose queries are derived
	// from the account.
	KindSystem Kind = "SystemStream"
)

// ParseKind maps "user" and "project", or the stored names of those kinds,
// to a [Kind]. An empty string means [KindUser]. System streams cannot be
// named this way.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user", "userstream":
		return KindUser, nil
	case "project", "projectstream":
		return KindProject, nil
	default:
		return "", fmt.Errorf("invalid kind %q: must be user or project", s)
	}
}

// Fixed ids of the built-in system streams.
const (
	TeamStreamID         int64 = -1
	WatchingStreamID     int64 = -2
	SubscriptionStreamID int64 = -3
)

// Stream is the persisted definition of a pollable stream.
type Stream struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Kind       Kind      `json:"kind"`
	Enabled    bool      `json:"enabled"`
	Queries    []string  `json:"queries"`
	SearchedAt time.Time `json:"searched_at"`
	Position   int       `json:"position"`
}

// Target records which kind of stream found an issue.
type Target string

const (
	TargetStream  Target = "stream"
	TargetProject Target = "project"
	TargetSystem  Target = "system"
)

// Issue is the storage representation of a GitHub issue or pull request.
//
// Issue is decoupled from the transport's types so the two can evolve
// independently.
type Issue struct {
	ID        int64     `json:"id"`
	Repo      string    `json:"repo"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
	Target    Target    `json:"target"`
}

// StreamRepository reads stream definitions.
type StreamRepository interface {
	// GetAllStreams returns every stream whose kind is in kinds, ordered by
	// position then id. An empty kinds list returns all streams.
	GetAllStreams(ctx context.Context, kinds ...Kind) ([]Stream, error)

	// GetStream returns a single stream or ErrNotFound.
	GetStream(ctx context.Context, id int64) (Stream, error)
}

// StreamWriter mutates stream definitions.
type StreamWriter interface {
	// CreateStream stores a new stream and returns its id.
	CreateStream(ctx context.Context, s Stream) (int64, error)

	// UpdateStream replaces name, queries, enabled and position of an
	// existing stream. Returns ErrNotFound for unknown ids.
	UpdateStream(ctx context.Context, s Stream) error

	// DeleteStream removes a stream and its issues. Returns ErrNotFound for
	// unknown ids.
	DeleteStream(ctx context.Context, id int64) error
}

// Preferences exposes user settings that the poller reads on every cycle.
type Preferences interface {
	PollingInterval(ctx context.Context) (time.Duration, error)
	SetPollingInterval(ctx context.Context, d time.Duration) error
}

// IssueSink receives the results of a poll.
type IssueSink interface {
	// SaveIssues stores issues for a stream, ignoring ones already stored
	// with the same id. Returns how many were new.
	SaveIssues(ctx context.Context, streamID int64, issues []Issue) (int, error)

	// UpdateSearchedAt records when a stream was last searched.
	UpdateSearchedAt(ctx context.Context, streamID int64, t time.Time) error
}

// IssueReader lists stored issues.
type IssueReader interface {
	// ListIssues returns up to limit issues of a stream, most recently
	// updated first.
	ListIssues(ctx context.Context, streamID int64, limit int) ([]Issue, error)
}

// Store bundles everything the application needs from persistence.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	StreamRepository
	StreamWriter
	Preferences
	IssueSink
	IssueReader
	Close() error
}

// SystemStreams returns the definitions of the built-in streams as they are
// seeded into a fresh store.
func SystemStreams() []Stream {
	return []Stream{
		{ID: TeamStreamID, Name: "Team", Kind: KindSystem, Enabled: true, Position: -3},
		{ID: WatchingStreamID, Name: "Watching", Kind: KindSystem, Enabled: true, Position: -2},
		{ID: SubscriptionStreamID, Name: "Subscription", Kind: KindSystem, Enabled: true, Position: -1},
	}
}

func containsKind(kinds []Kind, k Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
