package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore is used when no database path is configured and by tests.
// It is seeded with the built-in system streams. Issues are keyed by
// (stream id, issue id) so re-saving an issue is not counted as new.
//
// Unlike [SQLiteStore], MemoryStore accepts any non-negative polling
// interval, including zero.
type MemoryStore struct {
	mu       sync.RWMutex
	streams  map[int64]Stream
	issues   map[int64]map[int64]Issue
	interval time.Duration
	nextID   int64
}

// NewMemoryStore creates a new in-memory [Store] seeded with the system
// streams.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		streams:  make(map[int64]Stream),
		issues:   make(map[int64]map[int64]Issue),
		interval: DefaultPollingInterval,
		nextID:   1,
	}
	for _, s := range SystemStreams() {
		m.streams[s.ID] = s
	}
	return m
}

// GetAllStreams returns a snapshot of the matching streams ordered by
// position, then id.
func (m *MemoryStore) GetAllStreams(_ context.Context, kinds ...Kind) ([]Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	streams := make([]Stream, 0, len(m.streams))
	for _, s := range m.streams {
		if containsKind(kinds, s.Kind) {
			streams = append(streams, copyStream(s))
		}
	}
	sort.Slice(streams, func(i, j int) bool {
		if streams[i].Position != streams[j].Position {
			return streams[i].Position < streams[j].Position
		}
		return streams[i].ID < streams[j].ID
	})
	return streams, nil
}

// GetStream returns one stream or [ErrNotFound].
func (m *MemoryStore) GetStream(_ context.Context, id int64) (Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.streams[id]
	if !ok {
		return Stream{}, ErrNotFound
	}
	return copyStream(s), nil
}

// CreateStream stores s under a freshly allocated id. Any id set on s is
// ignored.
func (m *MemoryStore) CreateStream(_ context.Context, s Stream) (int64, error) {
	if s.Kind == KindSystem {
		return 0, errors.New("system streams cannot be created")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = m.nextID
	m.nextID++
	m.streams[s.ID] = copyStream(s)
	return s.ID, nil
}

// UpdateStream replaces the mutable fields of an existing stream.
func (m *MemoryStore) UpdateStream(_ context.Context, s Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.streams[s.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Name = s.Name
	existing.Queries = append([]string(nil), s.Queries...)
	existing.Enabled = s.Enabled
	existing.Position = s.Position
	m.streams[s.ID] = existing
	return nil
}

// DeleteStream removes a stream and its issues.
func (m *MemoryStore) DeleteStream(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[id]; !ok {
		return ErrNotFound
	}
	delete(m.streams, id)
	delete(m.issues, id)
	return nil
}

// PollingInterval returns the current interval preference.
func (m *MemoryStore) PollingInterval(_ context.Context) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.interval, nil
}

// SetPollingInterval changes the interval preference.
func (m *MemoryStore) SetPollingInterval(_ context.Context, d time.Duration) error {
	if d < 0 {
		return errors.New("polling interval cannot be negative")
	}
	m.mu.Lock()
	m.interval = d
	m.mu.Unlock()
	return nil
}

// SaveIssues stores issues, returning how many were not stored before.
func (m *MemoryStore) SaveIssues(_ context.Context, streamID int64, issues []Issue) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[streamID]; !ok {
		return 0, ErrNotFound
	}

	byID, ok := m.issues[streamID]
	if !ok {
		byID = make(map[int64]Issue)
		m.issues[streamID] = byID
	}

	newCount := 0
	for _, issue := range issues {
		if _, exists := byID[issue.ID]; !exists {
			newCount++
		}
		byID[issue.ID] = issue
	}
	return newCount, nil
}

// UpdateSearchedAt records the last search time of a stream.
func (m *MemoryStore) UpdateSearchedAt(_ context.Context, streamID int64, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.streams[streamID]
	if !ok {
		return ErrNotFound
	}
	s.SearchedAt = t
	m.streams[streamID] = s
	return nil
}

// ListIssues returns up to limit issues of a stream, newest update first.
// A limit of zero or less returns every issue.
func (m *MemoryStore) ListIssues(_ context.Context, streamID int64, limit int) ([]Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	issues := make([]Issue, 0, len(m.issues[streamID]))
	for _, issue := range m.issues[streamID] {
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool {
		return issues[i].UpdatedAt.After(issues[j].UpdatedAt)
	})
	if limit > 0 && len(issues) > limit {
		issues = issues[:limit]
	}
	return issues, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

func copyStream(s Stream) Stream {
	s.Queries = append([]string(nil), s.Queries...)
	return s
}
