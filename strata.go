// strata.go: Layered configuration engine with compiled accessor cache
//
// Philosophy:
// - Minimal dependencies (AGILira ecosystem only: go-errors, go-timecache)
// - Schema-validated writes: a key is only ever stored if the schema knows it
// - Precise cache eviction: a mutation drops one accessor, never the cache
// - Lock released before any listener callback runs (re-entrancy safe)
//
// Example Usage:
//   cfg, err := strata.New(schema, strata.Options{Base: parsedTree})
//   if err != nil {
//       log.Fatal(err)
//   }
//
//   color := cfg.Get("style.bg_color")
//   sub, _ := cfg.Watch("style.bg_color", func(key string, old, new any) {
//       repaint(new)
//   })
//   defer sub.Remove()
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"fmt"
	"log"
	"sync"

	"github.com/agilira/go-errors"
)

// Error codes for Strata operations
const (
	ErrCodeNilSchema        = "STRATA_NIL_SCHEMA"
	ErrCodeUnknownKey       = "STRATA_UNKNOWN_KEY"
	ErrCodeValidationFailed = "STRATA_VALIDATION_FAILED"
	ErrCodeInvalidCallback  = "STRATA_INVALID_CALLBACK"
	ErrCodeCallbackPanic    = "STRATA_CALLBACK_PANIC"
	ErrCodeInvalidJournal   = "STRATA_INVALID_JOURNAL"
	ErrCodeJournalClosed    = "STRATA_JOURNAL_CLOSED"
)

// Func is a computed configuration value, evaluated lazily with the
// arguments supplied at Get time.
type Func func(args ...any) any

// Accessor returns the resolved value for a compiled key. Accessors compiled
// from a Func forward their arguments; accessors compiled from a constant
// ignore them.
type Accessor func(args ...any) any

// DiagnosticHandler receives non-fatal diagnostics (unknown keys, dropped
// leaves, listener panics) together with the key path they concern.
// If nil, diagnostics are logged to stderr (backward compatible).
// Example: func(err error, key string) { metrics.Increment("config.warnings") }
type DiagnosticHandler func(err error, key string)

// entry is a stored raw value in one layer. original is non-nil exactly when
// value is a normalization wrapper around a caller-supplied Func; exports use
// it to recover the function the caller actually provided.
type entry struct {
	value    any
	original Func
}

// Config is a layered configuration instance bound to a Schema.
//
// Resolution order for every key: local layer, then base layer, then the
// schema default for that slot. Each instance exclusively owns its layers,
// accessor cache, and listener table; the Schema is shared and read-only.
type Config struct {
	schema Schema
	opts   Options

	mu        sync.RWMutex
	base      map[string]entry
	local     map[string]entry
	accessors map[string]Accessor
	watchers  map[string][]*watchEntry

	journal *Journal
}

// New creates a configuration instance bound to schema.
//
// The schema is mandatory; New fails fast with ErrCodeNilSchema otherwise.
// If opts carries a Base tree it is loaded through the merger before the
// instance is returned, so a returned *Config is always fully populated.
func New(schema Schema, opts ...Options) (*Config, error) {
	if schema == nil {
		return nil, errors.New(ErrCodeNilSchema, "schema cannot be nil")
	}

	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	cfg := o.WithDefaults()

	c := &Config{
		schema:    schema,
		opts:      *cfg,
		base:      make(map[string]entry),
		local:     make(map[string]entry),
		accessors: make(map[string]Accessor),
		watchers:  make(map[string][]*watchEntry),
	}

	if cfg.Journal.Enabled {
		journal, err := NewJournal(cfg.Journal)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidJournal, "failed to initialize change journal")
		}
		c.journal = journal
	}

	if cfg.Base != nil {
		if err := c.LoadBase(cfg.Base); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	return c, nil
}

// Schema returns the schema this configuration is bound to.
func (c *Config) Schema() Schema {
	return c.schema
}

// Close flushes and releases the change journal, if one is configured.
// Implements the common Close() interface for easy integration with defer.
func (c *Config) Close() error {
	if c.journal != nil {
		return c.journal.Close()
	}
	return nil
}

// Accessor compiles key into an accessor, memoized per key.
//
// On a cache miss the raw value is resolved through the layers; a Func raw
// value becomes the accessor itself (arguments forward), any other value
// becomes a constant closure. Unknown keys compile to a nil-returning
// accessor and emit an ErrCodeUnknownKey diagnostic once per compilation.
func (c *Config) Accessor(key string) Accessor {
	c.mu.RLock()
	if a, ok := c.accessors[key]; ok {
		c.mu.RUnlock()
		return a
	}
	c.mu.RUnlock()

	c.mu.Lock()
	if a, ok := c.accessors[key]; ok {
		c.mu.Unlock()
		return a
	}
	a, diag := c.compileLocked(key)
	c.accessors[key] = a
	c.mu.Unlock()

	// Diagnostics run outside the lock: the handler is user code
	if diag != nil {
		c.diagnose(diag, key)
	}
	return a
}

// Get resolves key and evaluates it with args.
// Equivalent to c.Accessor(key)(args...).
func (c *Config) Get(key string, args ...any) any {
	return c.Accessor(key)(args...)
}

// compileLocked builds the accessor for key. Caller must hold the write lock.
// The returned diagnostic, if any, must be emitted after the lock is released.
func (c *Config) compileLocked(key string) (Accessor, error) {
	if c.schema.Slot(key) == nil {
		diag := errors.New(ErrCodeUnknownKey, "undefined configuration key").
			WithContext("key", key)
		return func(...any) any { return nil }, diag
	}

	e, _ := c.resolveRawLocked(key)
	if fn, ok := asFunc(e.value); ok {
		return Accessor(fn), nil
	}
	v := e.value
	return func(...any) any { return v }, nil
}

// resolveRawLocked resolves the effective raw entry for key by layer
// priority: local, then base, then schema default. The second return is
// false only when the schema does not recognize key as a slot.
// Caller must hold at least the read lock.
func (c *Config) resolveRawLocked(key string) (entry, bool) {
	if e, ok := c.local[key]; ok {
		return e, true
	}
	if e, ok := c.base[key]; ok {
		return e, true
	}
	slot := c.schema.Slot(key)
	if slot == nil {
		return entry{}, false
	}
	if slot.HasDefault {
		return entry{value: c.schema.DefaultValue(key)}, true
	}
	return entry{}, true
}

// peek returns the current resolved value for key without emitting
// diagnostics. Used to capture the previous value before a mutation; the
// prior value may legitimately not exist yet.
func (c *Config) peek(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.resolveRawLocked(key)
	return e.value, ok
}

// Set normalizes value through the schema's setting normalization, stores it
// into the local layer, evicts the key's compiled accessor, and notifies
// listeners registered on key with the previous and new resolved values.
// Returns the normalized value as stored.
func (c *Config) Set(key string, value any) (any, error) {
	return c.set(key, value, true)
}

// SetSilent is Set without listener notification. The accessor cache is
// still evicted and the journal still records the mutation.
func (c *Config) SetSilent(key string, value any) (any, error) {
	return c.set(key, value, false)
}

func (c *Config) set(key string, value any, notify bool) (any, error) {
	normalized, err := c.schema.NormalizeSetting(key, value, c)
	if err != nil {
		return nil, coerceValidationError(err, key)
	}

	e := entry{value: normalized}
	if fn, ok := asFunc(value); ok {
		if _, stillFunc := asFunc(normalized); stillFunc {
			e.original = fn
		}
	}

	// The previous value may not exist yet; that is not an error here
	old, _ := c.peek(key)

	c.mu.Lock()
	c.local[key] = e
	delete(c.accessors, key)
	var snapshot []*watchEntry
	if notify {
		snapshot = c.snapshotWatchersLocked(key)
	}
	c.mu.Unlock()

	event := "set"
	if !notify {
		event = "set_silent"
	}
	c.journalRecord(event, key, old, normalized)

	if notify {
		c.dispatch(key, old, normalized, snapshot)
	}
	return normalized, nil
}

// NormalizeSetting exposes the schema's setting normalization for this
// configuration, without storing the result.
func (c *Config) NormalizeSetting(key string, value any) (any, error) {
	return c.schema.NormalizeSetting(key, value, c)
}

// MissingRequired reports the names of every required slot that has no
// schema default and no value in either layer. Intended for fail-fast
// startup validation; the caller decides how to react.
func (c *Config) MissingRequired() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var missing []string
	for _, slot := range c.schema.Slots() {
		if !slot.Required || slot.HasDefault {
			continue
		}
		if _, ok := c.local[slot.Name]; ok {
			continue
		}
		if _, ok := c.base[slot.Name]; ok {
			continue
		}
		missing = append(missing, slot.Name)
	}
	return missing
}

// diagnose routes a non-fatal diagnostic to the configured handler.
// Never called with a lock held.
func (c *Config) diagnose(err error, key string) {
	if c.opts.Diagnostics != nil {
		c.opts.Diagnostics(err, key)
	}
}

// journalRecord forwards a mutation to the change journal, if configured.
func (c *Config) journalRecord(event, key string, oldVal, newVal any) {
	if c.journal != nil {
		c.journal.Record(event, key, oldVal, newVal)
	}
}

// asFunc reports whether v is a computed configuration value.
// Both the named Func type and its underlying shape are accepted.
func asFunc(v any) (Func, bool) {
	switch fn := v.(type) {
	case Func:
		return fn, true
	case func(args ...any) any:
		return fn, true
	}
	return nil, false
}

// defaultDiagnosticHandler logs diagnostics to the standard logger.
func defaultDiagnosticHandler(err error, key string) {
	log.Printf("strata: %s: %v", key, err)
}

// coerceValidationError keeps coded schema errors intact and wraps uncoded
// ones with the validation failure code, so callers can always dispatch on
// errors.ErrorCoder regardless of the schema implementation behind the
// interface.
func coerceValidationError(err error, key string) error {
	if _, ok := err.(errors.ErrorCoder); ok {
		return err
	}
	return errors.Wrap(err, ErrCodeValidationFailed, "configuration value failed validation").
		WithContext("key", key)
}

// callbackPanicError builds the diagnostic for a recovered listener panic.
func callbackPanicError(key string, recovered any) error {
	return errors.New(ErrCodeCallbackPanic, fmt.Sprintf("watch callback panicked: %v", recovered)).
		WithContext("key", key)
}
