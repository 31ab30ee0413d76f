// loader.go: Bulk ingestion of nested configuration trees into layers
//
// The loader walks an already-parsed nested tree, validates every leaf
// against the schema, and merges the normalized results into one layer.
// The walk stages its writes and commits only when every leaf normalized
// cleanly, so a failed load never leaves a partially-normalized layer.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"reflect"
	"sort"

	"github.com/agilira/go-errors"
)

type layerID uint8

const (
	layerBase layerID = iota
	layerLocal
)

func (l layerID) String() string {
	if l == layerLocal {
		return "local"
	}
	return "base"
}

// keyChange is a committed load mutation pending notification.
type keyChange struct {
	key      string
	oldValue any
	newValue any
	watchers []*watchEntry
}

// LoadBase merges a nested tree into the base layer. Keys present in input
// replace their stored values; keys absent from input are left untouched.
// Unknown leaves are dropped with a diagnostic; a validation failure aborts
// the whole load without modifying the layer.
func (c *Config) LoadBase(input map[string]any) error {
	return c.load(input, layerBase)
}

// LoadLocal merges a nested tree into the local layer with the same
// semantics as LoadBase.
func (c *Config) LoadLocal(input map[string]any) error {
	return c.load(input, layerLocal)
}

func (c *Config) load(input map[string]any, target layerID) error {
	if input == nil {
		return nil
	}

	staged := make(map[string]entry)
	var unknown []string
	if err := c.mergeTree("", input, staged, &unknown); err != nil {
		return err
	}

	// Deterministic commit order keeps journal and notification order stable
	keys := make([]string, 0, len(staged))
	for k := range staged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var changes []keyChange
	c.mu.Lock()
	layer := c.base
	if target == layerLocal {
		layer = c.local
	}
	for _, k := range keys {
		oldEntry, _ := c.resolveRawLocked(k)
		layer[k] = staged[k]
		delete(c.accessors, k)
		newEntry, _ := c.resolveRawLocked(k)
		if sameValue(oldEntry.value, newEntry.value) {
			continue
		}
		changes = append(changes, keyChange{
			key:      k,
			oldValue: oldEntry.value,
			newValue: newEntry.value,
			watchers: c.snapshotWatchersLocked(k),
		})
	}
	c.mu.Unlock()

	for _, key := range unknown {
		c.diagnose(errors.New(ErrCodeUnknownKey, "unknown configuration key dropped during load").
			WithContext("key", key).
			WithContext("layer", target.String()), key)
	}

	event := "load_" + target.String()
	for _, k := range keys {
		c.journalRecord(event, k, nil, staged[k].value)
	}

	for _, ch := range changes {
		c.dispatch(ch.key, ch.oldValue, ch.newValue, ch.watchers)
	}
	return nil
}

// mergeTree recursively walks node, building full dot paths from prefix.
// Recognized leaves are normalized and staged; unrecognized containers are
// descended into; everything else is collected as an unknown key. Only a
// normalization failure yields an error.
func (c *Config) mergeTree(prefix string, node map[string]any, staged map[string]entry, unknown *[]string) error {
	for k, v := range node {
		if v == nil {
			continue
		}
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if slot := c.schema.Slot(key); slot != nil {
			if fn, ok := asFunc(v); ok {
				wrapped, err := c.schema.NormalizeFunc(key, fn, c)
				if err != nil {
					return coerceValidationError(err, key)
				}
				staged[key] = entry{value: wrapped, original: fn}
			} else {
				normalized, err := c.schema.NormalizeValue(key, v, c)
				if err != nil {
					return coerceValidationError(err, key)
				}
				staged[key] = entry{value: normalized}
			}
			continue
		}

		if child, ok := asTree(v); ok {
			if err := c.mergeTree(key, child, staged, unknown); err != nil {
				return err
			}
			continue
		}

		// Not a slot, not a container: tolerate and drop. Partial or
		// forward-incompatible config trees must not crash startup.
		*unknown = append(*unknown, key)
	}
	return nil
}

// asTree reports whether v is a plain nested object the walk can descend
// into. Arrays and slices are values, never containers.
func asTree(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	}
	return nil, false
}

// sameValue compares resolved values for change detection. Function values
// are never considered equal: a freshly loaded Func always counts as a
// change even when it wraps identical behavior.
func sameValue(a, b any) bool {
	if _, ok := asFunc(a); ok {
		return false
	}
	if _, ok := asFunc(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}
