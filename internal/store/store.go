// Package store is the embedded single-file relational store: an opened
// sqlite database, its forward-only migrations, and typed query helpers for
// every table the sync and summarization subsystems touch.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps a pooled sqlite connection. All concurrent use goes through
// this pool; the schema has no need for nested transactions.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the database file at dataDir/dbFile and
// applies all forward-only migrations. The pool is capped at 5 connections,
// matching the spec's bound on concurrent sqlite handles.
func Open(ctx context.Context, dataDir, dbFile string) (*Store, error) {
	path := filepath.Join(dataDir, dbFile)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(5)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrating: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for call sites that need ad-hoc queries; prefer
// the typed helpers elsewhere in this package.
func (s *Store) DB() *sql.DB { return s.db }

// migrate applies the schema. Every statement is idempotent (connection
// pragmas and CREATE ... IF NOT EXISTS) so migrate can run unconditionally on
// every startup; no schema version is recorded.
func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA foreign_keys=ON`,
		`CREATE TABLE IF NOT EXISTS content_items (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			source_id TEXT NOT NULL,
			source_url TEXT,
			content_type TEXT NOT NULL,
			title TEXT,
			body TEXT,
			author_id TEXT,
			channel_or_project TEXT,
			parent_id TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			synced_at INTEGER NOT NULL,
			metadata TEXT,
			UNIQUE(source, source_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_content_items_created_at ON content_items(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_content_items_parent ON content_items(parent_id)`,

		`CREATE TABLE IF NOT EXISTS sync_state (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			last_sync_at INTEGER,
			cursor TEXT,
			status TEXT,
			error_message TEXT,
			UNIQUE(source, resource_type, resource_id)
		)`,

		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			service TEXT NOT NULL,
			encrypted_data TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ai_summaries (
			id TEXT PRIMARY KEY,
			content_item_id TEXT,
			summary_type TEXT NOT NULL,
			summary TEXT NOT NULL,
			highlights TEXT,
			category TEXT,
			category_confidence REAL,
			importance_score REAL,
			entities TEXT,
			generated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_summaries_content_item ON ai_summaries(content_item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_summaries_type_generated ON ai_summaries(summary_type, generated_at)`,

		`CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS slack_selected_channels (
			channel_id TEXT PRIMARY KEY,
			channel_name TEXT NOT NULL,
			team_id TEXT,
			is_private INTEGER NOT NULL DEFAULT 0,
			is_im INTEGER NOT NULL DEFAULT 0,
			is_mpim INTEGER NOT NULL DEFAULT 0,
			member_count INTEGER,
			purpose TEXT,
			enabled INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS slack_users (
			user_id TEXT PRIMARY KEY,
			team_id TEXT,
			username TEXT,
			real_name TEXT,
			display_name TEXT,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS analytics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			event_data TEXT,
			created_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w\n%s", err, stmt)
		}
	}
	return nil
}
