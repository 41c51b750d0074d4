package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func testSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(context.Background(), ":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStore_SeedsSystemStreams(t *testing.T) {
	st := testSQLiteStore(t)

	streams, err := st.GetAllStreams(context.Background(), KindSystem)
	if err != nil {
		t.Fatalf("GetAllStreams() error = %v", err)
	}
	if len(streams) != 3 {
		t.Fatalf("GetAllStreams(system) = %d, want 3", len(streams))
	}
	if streams[0].ID != TeamStreamID || streams[0].Name != "Team" {
		t.Errorf("streams[0] = %+v, want Team", streams[0])
	}
	if !streams[0].Enabled {
		t.Error("system streams should be enabled by default")
	}
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streams.db")
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := context.Background()

	first, err := NewSQLiteStore(ctx, path, logger)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := first.CreateStream(ctx, Stream{Name: "A", Kind: KindUser, Enabled: true}); err != nil {
		t.Fatalf("CreateStream() error = %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(ctx, path, logger)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	all, err := second.GetAllStreams(ctx)
	if err != nil {
		t.Fatalf("GetAllStreams() error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("GetAllStreams() = %d streams after reopen, want 4", len(all))
	}
}

func TestSQLiteStore_StreamCRUD(t *testing.T) {
	st := testSQLiteStore(t)
	ctx := context.Background()

	id, err := st.CreateStream(ctx, Stream{
		Name:    "Open",
		Kind:    KindUser,
		Enabled: true,
		Queries: []string{"is:open", "is:pr"},
	})
	if err != nil {
		t.Fatalf("CreateStream() error = %v", err)
	}
	if id <= 0 {
		t.Errorf("CreateStream() id = %d, want positive", id)
	}

	got, err := st.GetStream(ctx, id)
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if got.Name != "Open" || got.Kind != KindUser || !got.Enabled || len(got.Queries) != 2 {
		t.Errorf("GetStream() = %+v", got)
	}

	got.Name = "Closed"
	got.Enabled = false
	got.Queries = []string{"is:closed"}
	if err := st.UpdateStream(ctx, got); err != nil {
		t.Fatalf("UpdateStream() error = %v", err)
	}
	updated, _ := st.GetStream(ctx, id)
	if updated.Name != "Closed" || updated.Enabled || updated.Queries[0] != "is:closed" {
		t.Errorf("after update = %+v", updated)
	}

	if err := st.DeleteStream(ctx, id); err != nil {
		t.Fatalf("DeleteStream() error = %v", err)
	}
	if _, err := st.GetStream(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStream() after delete error = %v, want ErrNotFound", err)
	}
	if err := st.DeleteStream(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteStream(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_CreateSystemStreamRejected(t *testing.T) {
	st := testSQLiteStore(t)
	if _, err := st.CreateStream(context.Background(), Stream{Name: "X", Kind: KindSystem}); err == nil {
		t.Error("CreateStream(system) error = nil, want error")
	}
}

func TestSQLiteStore_PollingInterval(t *testing.T) {
	st := testSQLiteStore(t)
	ctx := context.Background()

	d, err := st.PollingInterval(ctx)
	if err != nil {
		t.Fatalf("PollingInterval() error = %v", err)
	}
	if d != DefaultPollingInterval {
		t.Errorf("default = %v, want %v", d, DefaultPollingInterval)
	}

	if err := st.SetPollingInterval(ctx, 45*time.Second); err != nil {
		t.Fatalf("SetPollingInterval() error = %v", err)
	}
	d, _ = st.PollingInterval(ctx)
	if d != 45*time.Second {
		t.Errorf("interval = %v, want 45s", d)
	}

	if err := st.SetPollingInterval(ctx, 10*time.Millisecond); err == nil {
		t.Error("SetPollingInterval(10ms) error = nil, want error")
	}
}

func TestSQLiteStore_IssuesAndSearchedAt(t *testing.T) {
	st := testSQLiteStore(t)
	ctx := context.Background()

	id, _ := st.CreateStream(ctx, Stream{Name: "A", Kind: KindUser, Enabled: true})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	n, err := st.SaveIssues(ctx, id, []Issue{
		{ID: 10, Repo: "octo/api", Number: 1, Title: "first", URL: "u1", UpdatedAt: base, Target: TargetStream},
		{ID: 11, Repo: "octo/api", Number: 2, Title: "second", URL: "u2", UpdatedAt: base.Add(time.Hour), Target: TargetStream},
	})
	if err != nil {
		t.Fatalf("SaveIssues() error = %v", err)
	}
	if n != 2 {
		t.Errorf("SaveIssues() new = %d, want 2", n)
	}

	n, _ = st.SaveIssues(ctx, id, []Issue{
		{ID: 10, Repo: "octo/api", Number: 1, Title: "first (edited)", URL: "u1", UpdatedAt: base.Add(2 * time.Hour), Target: TargetStream},
	})
	if n != 0 {
		t.Errorf("re-save new = %d, want 0", n)
	}

	issues, err := st.ListIssues(ctx, id, 0)
	if err != nil {
		t.Fatalf("ListIssues() error = %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("ListIssues() = %d, want 2", len(issues))
	}
	if issues[0].ID != 10 || issues[0].Title != "first (edited)" {
		t.Errorf("ListIssues()[0] = %+v, want refreshed issue 10 first", issues[0])
	}
	if issues[0].Target != TargetStream {
		t.Errorf("Target = %q, want %q", issues[0].Target, TargetStream)
	}

	at := base.Add(3 * time.Hour)
	if err := st.UpdateSearchedAt(ctx, id, at); err != nil {
		t.Fatalf("UpdateSearchedAt() error = %v", err)
	}
	got, _ := st.GetStream(ctx, id)
	if !got.SearchedAt.Equal(at) {
		t.Errorf("SearchedAt = %v, want %v", got.SearchedAt, at)
	}

	// deleting the stream cascades to its issues
	if err := st.DeleteStream(ctx, id); err != nil {
		t.Fatalf("DeleteStream() error = %v", err)
	}
	issues, _ = st.ListIssues(ctx, id, 0)
	if len(issues) != 0 {
		t.Errorf("ListIssues() after delete = %d, want 0", len(issues))
	}
}
