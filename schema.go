// schema.go: Schema capability contract and static reference implementation
//
// The engine does not define a schema language; it depends on the small
// capability surface below. StaticSchema is the in-memory reference
// implementation used by applications with a fixed slot table and by the
// test suite. Any type satisfying Schema can replace it.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"github.com/agilira/go-errors"
)

// Slot describes one legal configuration key path and its metadata.
// Slots are owned by the schema and read-only to the engine.
type Slot struct {
	// Name is the full dot-separated key path, e.g. "style.bg_color".
	Name string

	// Default is the schema-supplied default value. Only meaningful when
	// HasDefault is true; a nil default is legal.
	Default any

	// HasDefault distinguishes "default is nil" from "no default".
	HasDefault bool

	// Required marks slots that must have a value from some layer or a
	// default before the surrounding system considers itself startable.
	Required bool

	// Normalize validates and transforms a plain value before storage.
	// Nil means pass-through. Errors abort the write that triggered it.
	Normalize func(value any, cfg *Config) (any, error)

	// WrapFunc normalizes a function-valued setting, returning the form to
	// store. Nil means the function is stored as supplied. The engine keeps
	// the caller's original alongside the wrapped form for export.
	WrapFunc func(fn Func, cfg *Config) (Func, error)
}

// Schema is the capability contract the engine requires from a slot
// provider. Implementations must be safe for concurrent use; the engine
// treats the schema as shared, immutable state.
type Schema interface {
	// Slot looks up slot metadata by full dot path, nil if unknown.
	Slot(key string) *Slot

	// Slots returns every declared slot.
	Slots() []*Slot

	// DefaultValue returns the schema default for key, nil if none.
	DefaultValue(key string) any

	// NormalizeValue validates and transforms a plain value for key.
	NormalizeValue(key string, value any, cfg *Config) (any, error)

	// NormalizeFunc normalizes a function-valued setting for key.
	NormalizeFunc(key string, fn Func, cfg *Config) (Func, error)

	// NormalizeSetting is the single-key write path used by Config.Set,
	// dispatching to value or function normalization as appropriate.
	NormalizeSetting(key string, value any, cfg *Config) (any, error)
}

// StaticSchema is a Schema backed by a fixed slot table, populated once
// through the fluent Define chain before use. It preserves definition order
// in Slots(), which keeps MissingRequired output deterministic.
type StaticSchema struct {
	slots map[string]*Slot
	order []string
}

// NewStaticSchema creates an empty static schema.
func NewStaticSchema() *StaticSchema {
	return &StaticSchema{slots: make(map[string]*Slot)}
}

// Define declares a slot and returns the schema for chaining.
// Redefining a name replaces the earlier slot in place.
func (s *StaticSchema) Define(slot Slot) *StaticSchema {
	if _, exists := s.slots[slot.Name]; !exists {
		s.order = append(s.order, slot.Name)
	}
	stored := slot
	s.slots[slot.Name] = &stored
	return s
}

// Slot implements Schema.
func (s *StaticSchema) Slot(key string) *Slot {
	return s.slots[key]
}

// Slots implements Schema, returning slots in definition order.
func (s *StaticSchema) Slots() []*Slot {
	out := make([]*Slot, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.slots[name])
	}
	return out
}

// DefaultValue implements Schema.
func (s *StaticSchema) DefaultValue(key string) any {
	if slot := s.slots[key]; slot != nil && slot.HasDefault {
		return slot.Default
	}
	return nil
}

// NormalizeValue implements Schema. Unknown keys fail with
// ErrCodeUnknownKey; slot validation failures carry ErrCodeValidationFailed.
func (s *StaticSchema) NormalizeValue(key string, value any, cfg *Config) (any, error) {
	slot := s.slots[key]
	if slot == nil {
		return nil, errors.New(ErrCodeUnknownKey, "undefined configuration key").
			WithContext("key", key)
	}
	if slot.Normalize == nil {
		return value, nil
	}
	normalized, err := slot.Normalize(value, cfg)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeValidationFailed, "value rejected by slot normalization").
			WithContext("key", key)
	}
	return normalized, nil
}

// NormalizeFunc implements Schema.
func (s *StaticSchema) NormalizeFunc(key string, fn Func, cfg *Config) (Func, error) {
	slot := s.slots[key]
	if slot == nil {
		return nil, errors.New(ErrCodeUnknownKey, "undefined configuration key").
			WithContext("key", key)
	}
	if slot.WrapFunc == nil {
		return fn, nil
	}
	wrapped, err := slot.WrapFunc(fn, cfg)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeValidationFailed, "function rejected by slot normalization").
			WithContext("key", key)
	}
	return wrapped, nil
}

// NormalizeSetting implements Schema, dispatching on the value kind.
func (s *StaticSchema) NormalizeSetting(key string, value any, cfg *Config) (any, error) {
	if fn, ok := asFunc(value); ok {
		wrapped, err := s.NormalizeFunc(key, fn, cfg)
		if err != nil {
			return nil, err
		}
		return wrapped, nil
	}
	return s.NormalizeValue(key, value, cfg)
}

// IsValidationError reports whether err carries the validation failure code,
// regardless of which schema implementation produced it.
func IsValidationError(err error) bool {
	coder, ok := err.(errors.ErrorCoder)
	return ok && string(coder.ErrorCode()) == ErrCodeValidationFailed
}

// IsUnknownKeyError reports whether err carries the unknown-key code.
func IsUnknownKeyError(err error) bool {
	coder, ok := err.(errors.ErrorCoder)
	return ok && string(coder.ErrorCode()) == ErrCodeUnknownKey
}
