// Package stream builds the pollable units the scheduler executes.
//
// Every stream definition maps to exactly one [Unit]. User and project
// streams search with the queries the user wrote; the three system streams
// derive their queries from the [Account]. A unit owns its last-searched
// timestamp and reports a failed poll as a [FetchError].
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/streampoll/internal/events"
	"github.com/jpalmerr/streampoll/internal/github"
	"github.com/jpalmerr/streampoll/internal/store"
)

// Unit is one pollable stream.
type Unit interface {
	// ID is unique among units; system streams use negative ids.
	ID() int64

	// Name is a display label.
	Name() string

	// Queries returns the search queries this unit issues, in order.
	Queries() []string

	// Execute performs one poll. It returns a *FetchError on failure.
	Execute(ctx context.Context) error
}

// Fetcher is the transport a unit searches with. *github.Client satisfies
// it.
type Fetcher interface {
	SearchIssues(ctx context.Context, query string, since time.Time) ([]github.Issue, error)
	GetIssue(ctx context.Context, repo string, number int) (github.Issue, error)
}

// Variant is the closed set of unit behaviours.
type Variant int

const (
	VariantUser Variant = iota
	VariantProject
	VariantTeam
	VariantWatching
	VariantSubscription
)

func (v Variant) String() string {
	switch v {
	case VariantUser:
		return "user"
	case VariantProject:
		return "project"
	case VariantTeam:
		return "team"
	case VariantWatching:
		return "watching"
	case VariantSubscription:
		return "subscription"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// StreamUnit is the [Unit] built for a stored stream definition.
type StreamUnit struct {
	id      int64
	name    string
	variant Variant
	queries []string
	target  store.Target

	fetcher Fetcher
	sink    store.IssueSink
	events  events.Publisher
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	searchedAt time.Time
}

// ID implements [Unit].
func (u *StreamUnit) ID() int64 { return u.id }

// Name implements [Unit].
func (u *StreamUnit) Name() string { return u.name }

// Variant returns the behaviour the unit was built with.
func (u *StreamUnit) Variant() Variant { return u.variant }

// Queries implements [Unit]. The returned slice is a copy.
func (u *StreamUnit) Queries() []string {
	out := make([]string, len(u.queries))
	copy(out, u.queries)
	return out
}

// SearchedAt returns the start time of the last successful poll.
func (u *StreamUnit) SearchedAt() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.searchedAt
}

// Execute searches for issues updated since the last successful poll,
// stores them and advances the searched-at timestamp to the time the poll
// started. A panic in the transport is recovered and reported as a
// [FetchError] carrying a correlation id.
func (u *StreamUnit) Execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.New().String()
			u.logger.Error("stream poll panicked",
				"stream_id", u.id,
				"stream", u.name,
				"correlation_id", correlationID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = &FetchError{
				StreamID:      u.id,
				StreamName:    u.name,
				Err:           fmt.Errorf("panic: %v", r),
				CorrelationID: correlationID,
			}
		}
	}()

	start := u.now()
	since := u.SearchedAt()

	found, err := u.collect(ctx, since)
	if err != nil {
		return u.fail(err)
	}

	issues := make([]store.Issue, 0, len(found))
	for _, gi := range found {
		issues = append(issues, store.Issue{
			ID:        gi.ID,
			Repo:      gi.Repo(),
			Number:    gi.Number,
			Title:     gi.Title,
			URL:       gi.HTMLURL,
			State:     gi.State,
			UpdatedAt: gi.UpdatedAt,
			Target:    u.target,
		})
	}

	newCount, err := u.sink.SaveIssues(ctx, u.id, issues)
	if err != nil {
		return u.fail(fmt.Errorf("save issues: %w", err))
	}
	if err := u.sink.UpdateSearchedAt(ctx, u.id, start); err != nil {
		return u.fail(fmt.Errorf("update searched at: %w", err))
	}

	u.mu.Lock()
	u.searchedAt = start
	u.mu.Unlock()

	u.logger.Debug("stream polled",
		"stream_id", u.id,
		"stream", u.name,
		"found", len(issues),
		"new", newCount,
	)

	if newCount > 0 {
		u.events.Publish(events.Event{
			Type:       events.TypeNewIssues,
			StreamID:   u.id,
			StreamName: u.name,
			NewIssues:  newCount,
		})
	}
	return nil
}

func (u *StreamUnit) fail(err error) error {
	return &FetchError{StreamID: u.id, StreamName: u.name, Err: err}
}

func (u *StreamUnit) collect(ctx context.Context, since time.Time) ([]github.Issue, error) {
	if u.variant == VariantSubscription {
		return u.collectSubscriptions(ctx, since)
	}

	seen := make(map[int64]struct{})
	var out []github.Issue
	for _, q := range u.queries {
		found, err := u.fetcher.SearchIssues(ctx, q, since)
		if err != nil {
			return nil, err
		}
		for _, issue := range found {
			if _, dup := seen[issue.ID]; dup {
				continue
			}
			seen[issue.ID] = struct{}{}
			out = append(out, issue)
		}
	}
	return out, nil
}

func (u *StreamUnit) collectSubscriptions(ctx context.Context, since time.Time) ([]github.Issue, error) {
	var out []github.Issue
	for _, q := range u.queries {
		ref, err := ParseIssueRef(q)
		if err != nil {
			return nil, err
		}
		issue, err := u.fetcher.GetIssue(ctx, ref.Repo, ref.Number)
		if github.IsNotFound(err) {
			u.logger.Warn("subscribed issue not found", "stream_id", u.id, "ref", ref.String())
			continue
		}
		if err != nil {
			return nil, err
		}
		if !since.IsZero() && issue.UpdatedAt.Before(since) {
			continue
		}
		out = append(out, issue)
	}
	return out, nil
}
