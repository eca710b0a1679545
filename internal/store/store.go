// Package store provides SQLite-backed persistence for Drover.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store provides access to the Drover SQLite database.
type Store struct {
	db *sqlx.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sqlx.Connect("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		connected INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		username TEXT NOT NULL UNIQUE,
		credentials TEXT NOT NULL DEFAULT '',
		window_start INTEGER NOT NULL DEFAULT 0,
		window_end INTEGER NOT NULL DEFAULT 0,
		tag TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		warmup_until DATETIME,
		settings TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (device_id) REFERENCES devices(id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		actions_done INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		error_summary TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		FOREIGN KEY (device_id) REFERENCES devices(id),
		FOREIGN KEY (account_id) REFERENCES accounts(id)
	);

	CREATE TABLE IF NOT EXISTS action_records (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		target_id TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS job_definitions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		target_count INTEGER NOT NULL DEFAULT 0,
		daily_limit INTEGER NOT NULL DEFAULT 0,
		hourly_limit INTEGER NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		completed_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS job_assignments (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		completed_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'assigned',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (job_id, account_id),
		FOREIGN KEY (job_id) REFERENCES job_definitions(id),
		FOREIGN KEY (account_id) REFERENCES accounts(id)
	);

	CREATE TABLE IF NOT EXISTS dead_sources (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		source TEXT NOT NULL,
		fail_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'suspect',
		last_failed_at DATETIME NOT NULL,
		UNIQUE (account_id, source)
	);

	CREATE TABLE IF NOT EXISTS health_events (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		resolved_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS scheduled_posts (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		caption TEXT NOT NULL DEFAULT '',
		media_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		due_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (account_id) REFERENCES accounts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_device_id ON accounts(device_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_pair ON sessions(device_id, account_id);
	CREATE INDEX IF NOT EXISTS idx_action_records_counter ON action_records(account_id, kind, created_at);
	CREATE INDEX IF NOT EXISTS idx_action_records_target ON action_records(account_id, kind, target_id);
	CREATE INDEX IF NOT EXISTS idx_job_assignments_account ON job_assignments(account_id);
	CREATE INDEX IF NOT EXISTS idx_health_events_open ON health_events(account_id, event_type);
	CREATE INDEX IF NOT EXISTS idx_scheduled_posts_due ON scheduled_posts(account_id, status, due_at);
	`

	_, err := s.db.Exec(schema)
	return err
}
