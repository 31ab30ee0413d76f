// journal_sqlite.go: SQLite backend for the change journal
//
// SQLite provides a queryable mutation trail without external dependencies.
// WAL mode keeps writers from blocking concurrent readers of the journal
// database.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

const journalSchemaSQL = `
CREATE TABLE IF NOT EXISTS journal_records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp_ns INTEGER NOT NULL,
	event        TEXT NOT NULL,
	key          TEXT NOT NULL,
	old_value    TEXT,
	new_value    TEXT
);
CREATE INDEX IF NOT EXISTS idx_journal_key ON journal_records(key);
CREATE INDEX IF NOT EXISTS idx_journal_timestamp ON journal_records(timestamp_ns);
`

// sqliteJournalBackend persists journal records to a SQLite database.
type sqliteJournalBackend struct {
	db *sql.DB
	mu sync.Mutex
}

func newSQLiteJournalBackend(config JournalConfig) (*sqliteJournalBackend, error) {
	if dir := filepath.Dir(config.OutputFile); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", config.OutputFile)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if _, err := db.Exec(journalSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return &sqliteJournalBackend{db: db}, nil
}

func (b *sqliteJournalBackend) Write(records []JournalRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO journal_records (timestamp_ns, event, key, old_value, new_value)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare journal insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, record := range records {
		oldJSON, err := marshalJournalValue(record.OldValue)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		newJSON, err := marshalJournalValue(record.NewValue)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.Exec(record.Timestamp.UnixNano(), record.Event, record.Key, oldJSON, newJSON); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert journal record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal transaction: %w", err)
	}
	return nil
}

func (b *sqliteJournalBackend) Flush() error {
	// SQLite commits on transaction boundaries; nothing buffered here
	return nil
}

func (b *sqliteJournalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Close()
}

// marshalJournalValue encodes a record value as JSON text, NULL for nil.
func marshalJournalValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal journal value: %w", err)
	}
	return string(data), nil
}
