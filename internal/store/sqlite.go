package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements [Store] using SQLite.
//
// The connection pool is limited to a single connection: the poller writes
// from one goroutine at a time and SQLite serialises writers anyway. This
// also makes ":memory:" databases behave as a single database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs the
// migrations. Use ":memory:" for an in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Streams ---

const streamColumns = `id, name, kind, enabled, queries, searched_at, position`

// GetAllStreams returns the streams of the given kinds ordered by position,
// then id.
func (s *SQLiteStore) GetAllStreams(ctx context.Context, kinds ...Kind) ([]Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams`
	args := make([]any, 0, len(kinds))
	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, k := range kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		query += ` WHERE kind IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY position, id`

	s.logger.Debug("sql", "op", "select", "table", "streams", "kinds", kinds)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	var streams []Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, st)
	}
	return streams, rows.Err()
}

// GetStream returns one stream or [ErrNotFound].
func (s *SQLiteStore) GetStream(ctx context.Context, id int64) (Stream, error) {
	s.logger.Debug("sql", "op", "select", "table", "streams", "id", id)
	row := s.db.QueryRowContext(ctx, `SELECT `+streamColumns+` FROM streams WHERE id = ?`, id)
	st, err := scanStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Stream{}, ErrNotFound
	}
	return st, err
}

// CreateStream inserts a user or project stream and returns its id.
func (s *SQLiteStore) CreateStream(ctx context.Context, st Stream) (int64, error) {
	if st.Kind == KindSystem {
		return 0, errors.New("system streams cannot be created")
	}
	queries, err := json.Marshal(nonNil(st.Queries))
	if err != nil {
		return 0, fmt.Errorf("marshal queries: %w", err)
	}

	s.logger.Debug("sql", "op", "insert", "table", "streams", "name", st.Name)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO streams (name, kind, enabled, queries, position) VALUES (?, ?, ?, ?, ?)`,
		st.Name, string(st.Kind), boolToInt(st.Enabled), string(queries), st.Position)
	if err != nil {
		return 0, fmt.Errorf("insert stream: %w", err)
	}
	return res.LastInsertId()
}

// UpdateStream replaces name, queries, enabled and position.
func (s *SQLiteStore) UpdateStream(ctx context.Context, st Stream) error {
	queries, err := json.Marshal(nonNil(st.Queries))
	if err != nil {
		return fmt.Errorf("marshal queries: %w", err)
	}

	s.logger.Debug("sql", "op", "update", "table", "streams", "id", st.ID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE streams SET name = ?, enabled = ?, queries = ?, position = ? WHERE id = ?`,
		st.Name, boolToInt(st.Enabled), string(queries), st.Position, st.ID)
	if err != nil {
		return fmt.Errorf("update stream %d: %w", st.ID, err)
	}
	return expectAffected(res)
}

// DeleteStream removes a stream; its issues go with it through the foreign
// key cascade.
func (s *SQLiteStore) DeleteStream(ctx context.Context, id int64) error {
	s.logger.Debug("sql", "op", "delete", "table", "streams", "id", id)
	res, err := s.db.ExecContext(ctx, `DELETE FROM streams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete stream %d: %w", id, err)
	}
	return expectAffected(res)
}

// UpdateSearchedAt records when a stream was last searched.
func (s *SQLiteStore) UpdateSearchedAt(ctx context.Context, streamID int64, t time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE streams SET searched_at = ? WHERE id = ?`, formatTime(t), streamID)
	if err != nil {
		return fmt.Errorf("update searched_at %d: %w", streamID, err)
	}
	return expectAffected(res)
}

// --- Settings ---

// PollingInterval returns the interval preference, never below
// [MinPollingInterval].
func (s *SQLiteStore) PollingInterval(ctx context.Context) (time.Duration, error) {
	var val string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, settingPollingInterval).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultPollingInterval, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select setting: %w", err)
	}

	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", settingPollingInterval, val, err)
	}
	d := time.Duration(secs) * time.Second
	if d < MinPollingInterval {
		d = MinPollingInterval
	}
	return d, nil
}

// SetPollingInterval stores the interval preference with second precision.
func (s *SQLiteStore) SetPollingInterval(ctx context.Context, d time.Duration) error {
	if d < MinPollingInterval {
		return fmt.Errorf("polling interval must be at least %s, got %s", MinPollingInterval, d)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingPollingInterval, strconv.Itoa(int(d/time.Second)))
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

// --- Issues ---

// SaveIssues inserts issues in one transaction. Issues already stored for
// the stream are refreshed but not counted as new.
func (s *SQLiteStore) SaveIssues(ctx context.Context, streamID int64, issues []Issue) (int, error) {
	if len(issues) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	newCount := 0
	for _, issue := range issues {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO issues (stream_id, issue_id, repo, number, title, url, state, updated_at, target)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(stream_id, issue_id) DO NOTHING`,
			streamID, issue.ID, issue.Repo, issue.Number, issue.Title, issue.URL, issue.State,
			formatTime(issue.UpdatedAt), string(issue.Target))
		if err != nil {
			return 0, fmt.Errorf("insert issue %d: %w", issue.ID, err)
		}
		affected, _ := res.RowsAffected()
		if affected > 0 {
			newCount++
			continue
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE issues SET title = ?, state = ?, updated_at = ?
			WHERE stream_id = ? AND issue_id = ?`,
			issue.Title, issue.State, formatTime(issue.UpdatedAt), streamID, issue.ID)
		if err != nil {
			return 0, fmt.Errorf("update issue %d: %w", issue.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("sql", "op", "insert", "table", "issues", "stream_id", streamID,
		"count", len(issues), "new", newCount)
	return newCount, nil
}

// ListIssues returns up to limit issues, most recently updated first. A
// limit of zero or less returns every issue.
func (s *SQLiteStore) ListIssues(ctx context.Context, streamID int64, limit int) ([]Issue, error) {
	query := `SELECT issue_id, repo, number, title, url, state, updated_at, target
		FROM issues WHERE stream_id = ? ORDER BY updated_at DESC, issue_id DESC`
	args := []any{streamID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		var (
			issue     Issue
			updatedAt string
			target    string
		)
		if err := rows.Scan(&issue.ID, &issue.Repo, &issue.Number, &issue.Title, &issue.URL,
			&issue.State, &updatedAt, &target); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issue.UpdatedAt = parseTime(updatedAt)
		issue.Target = Target(target)
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanStream(row scanner) (Stream, error) {
	var (
		st         Stream
		kind       string
		enabled    int
		queries    string
		searchedAt string
	)
	if err := row.Scan(&st.ID, &st.Name, &kind, &enabled, &queries, &searchedAt, &st.Position); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Stream{}, err
		}
		return Stream{}, fmt.Errorf("scan stream: %w", err)
	}
	st.Kind = Kind(kind)
	st.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(queries), &st.Queries); err != nil {
		return Stream{}, fmt.Errorf("unmarshal queries of stream %d: %w", st.ID, err)
	}
	st.SearchedAt = parseTime(searchedAt)
	return st, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(queries []string) []string {
	if queries == nil {
		return []string{}
	}
	return queries
}
