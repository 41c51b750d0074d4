package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// settingPollingInterval is the settings key of the polling interval, in
// seconds.
const settingPollingInterval = "polling_interval_seconds"

// schema contains the DDL for all tables. Each statement uses IF NOT EXISTS
// so migrate can run on every open.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS streams (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		enabled     INTEGER NOT NULL DEFAULT 1,
		queries     TEXT NOT NULL DEFAULT '[]',
		searched_at TEXT NOT NULL DEFAULT '',
		position    INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS issues (
		stream_id  INTEGER NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
		issue_id   INTEGER NOT NULL,
		repo       TEXT NOT NULL,
		number     INTEGER NOT NULL,
		title      TEXT NOT NULL,
		url        TEXT NOT NULL,
		state      TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		target     TEXT NOT NULL,
		PRIMARY KEY (stream_id, issue_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_issues_stream_updated ON issues(stream_id, updated_at)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}

	// system streams keep their fixed negative ids
	for _, s := range SystemStreams() {
		queries, err := json.Marshal(nonNil(s.Queries))
		if err != nil {
			return fmt.Errorf("marshal queries: %w", err)
		}
		_, err = db.ExecContext(ctx,
			`INSERT OR IGNORE INTO streams (id, name, kind, enabled, queries, position) VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, s.Name, string(s.Kind), boolToInt(s.Enabled), string(queries), s.Position)
		if err != nil {
			return fmt.Errorf("seed stream %d: %w", s.ID, err)
		}
	}

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		settingPollingInterval, fmt.Sprintf("%d", int(DefaultPollingInterval.Seconds())))
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
