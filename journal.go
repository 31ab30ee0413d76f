// journal.go: Change journal for configuration mutations
//
// Every mutation (Set, SetSilent, LoadBase, LoadLocal) can be recorded as a
// journal record with the value before and after the write, giving full
// traceability of how a configuration reached its current state.
//
// The journal buffers records and flushes in the background for minimal
// impact on the mutation hot path. Storage is pluggable: JSONL files for
// grep-able trails, SQLite for queryable ones. Backend selection follows
// the output file extension.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// JournalConfig configures the change journal.
type JournalConfig struct {
	// Enabled turns the journal on. Default: disabled.
	Enabled bool `json:"enabled"`

	// OutputFile selects the backend by extension:
	// .jsonl/.log for JSONL, .db/.sqlite/.sqlite3 for SQLite.
	OutputFile string `json:"output_file"`

	// BufferSize is the number of records buffered before a forced flush.
	BufferSize int `json:"buffer_size"`

	// FlushInterval is the background flush period.
	FlushInterval time.Duration `json:"flush_interval"`
}

// JournalRecord is a single recorded configuration mutation.
type JournalRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Key       string    `json:"key"`
	OldValue  any       `json:"old_value,omitempty"`
	NewValue  any       `json:"new_value,omitempty"`
}

// journalBackend abstracts the storage mechanism so JSONL files and SQLite
// databases can be swapped without changing the public API.
type journalBackend interface {
	// Write persists a batch of records.
	Write(records []JournalRecord) error

	// Flush commits pending writes to storage.
	Flush() error

	// Close releases all resources. The backend must not be used after.
	Close() error
}

// Journal buffers configuration mutation records and flushes them to a
// backend, either when the buffer fills or on the background flush tick.
type Journal struct {
	config      JournalConfig
	backend     journalBackend
	buffer      []JournalRecord
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewJournal creates a journal with the backend selected by the configured
// output file extension.
func NewJournal(config JournalConfig) (*Journal, error) {
	backend, err := createJournalBackend(config)
	if err != nil {
		return nil, err
	}

	journal := &Journal{
		config:  config,
		backend: backend,
		buffer:  make([]JournalRecord, 0, config.BufferSize),
		stopCh:  make(chan struct{}),
	}

	if config.FlushInterval > 0 {
		journal.flushTicker = time.NewTicker(config.FlushInterval)
		go journal.flushLoop()
	}

	return journal, nil
}

// createJournalBackend selects the storage backend from the output path.
func createJournalBackend(config JournalConfig) (journalBackend, error) {
	if config.OutputFile == "" {
		return nil, errors.New(ErrCodeInvalidJournal, "journal requires an output file")
	}

	switch ext := strings.ToLower(filepath.Ext(config.OutputFile)); ext {
	case ".jsonl", ".log":
		return newJSONLJournalBackend(config)
	case ".db", ".sqlite", ".sqlite3":
		return newSQLiteJournalBackend(config)
	default:
		return nil, errors.New(ErrCodeInvalidJournal, "unsupported journal output format: "+ext).
			WithContext("output_file", config.OutputFile)
	}
}

// Record buffers one mutation record. Uses the cached timestamp to keep the
// mutation hot path free of clock syscalls.
func (j *Journal) Record(event, key string, oldVal, newVal any) {
	if j == nil || j.backend == nil {
		return
	}

	record := JournalRecord{
		Timestamp: timecache.CachedTime(),
		Event:     event,
		Key:       key,
		OldValue:  sanitizeJournalValue(oldVal),
		NewValue:  sanitizeJournalValue(newVal),
	}

	j.bufferMu.Lock()
	if j.closed {
		j.bufferMu.Unlock()
		return
	}
	j.buffer = append(j.buffer, record)
	if len(j.buffer) >= j.config.BufferSize {
		_ = j.flushBufferUnsafe() // Ignore flush errors while buffering to keep mutations fast
	}
	j.bufferMu.Unlock()
}

// Flush immediately writes all buffered records to the backend.
func (j *Journal) Flush() error {
	j.bufferMu.Lock()
	defer j.bufferMu.Unlock()
	if err := j.flushBufferUnsafe(); err != nil {
		return err
	}
	return j.backend.Flush()
}

// Close gracefully shuts the journal down, flushing any remaining records.
// Closing twice is a no-op.
func (j *Journal) Close() error {
	j.bufferMu.Lock()
	if j.closed {
		j.bufferMu.Unlock()
		return nil
	}
	j.closed = true
	j.bufferMu.Unlock()

	close(j.stopCh)
	if j.flushTicker != nil {
		j.flushTicker.Stop()
	}

	if err := j.Flush(); err != nil {
		return errors.Wrap(err, ErrCodeJournalClosed, "failed to flush journal during close")
	}
	if err := j.backend.Close(); err != nil {
		return errors.Wrap(err, ErrCodeJournalClosed, "failed to close journal backend")
	}
	return nil
}

// flushLoop runs the background flush process.
func (j *Journal) flushLoop() {
	for {
		select {
		case <-j.flushTicker.C:
			_ = j.Flush() // Ignore background flush errors; Close surfaces the final one
		case <-j.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes the buffer to the backend. Caller holds bufferMu.
func (j *Journal) flushBufferUnsafe() error {
	if len(j.buffer) == 0 {
		return nil
	}
	if err := j.backend.Write(j.buffer); err != nil {
		return err
	}
	j.buffer = j.buffer[:0]
	return nil
}

// sanitizeJournalValue replaces values the backends cannot serialize.
// Function values are recorded as an opaque marker; nested trees are
// sanitized leaf by leaf.
func sanitizeJournalValue(v any) any {
	if v == nil {
		return nil
	}
	if _, ok := asFunc(v); ok {
		return "<func>"
	}
	if tree, ok := asTree(v); ok {
		out := make(map[string]any, len(tree))
		for k, child := range tree {
			out[k] = sanitizeJournalValue(child)
		}
		return out
	}
	return v
}

// jsonlJournalBackend appends one JSON document per record to a file.
type jsonlJournalBackend struct {
	file *os.File
	mu   sync.Mutex
}

func newJSONLJournalBackend(config JournalConfig) (*jsonlJournalBackend, error) {
	if dir := filepath.Dir(config.OutputFile); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	// Owner read/write only: journals can carry sensitive config values
	file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	return &jsonlJournalBackend{file: file}, nil
}

func (b *jsonlJournalBackend) Write(records []JournalRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal journal record: %w", err)
		}
		if _, err := b.file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write journal record: %w", err)
		}
	}
	return nil
}

func (b *jsonlJournalBackend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Sync()
}

func (b *jsonlJournalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.file.Sync(); err != nil {
		return err
	}
	return b.file.Close()
}
