// export.go: Flatten/nest serializer and layer export views
//
// The engine stores layers as flat dot-path maps; callers exchange nested
// trees. Flatten and Nest convert between the two representations, and the
// Export methods rebuild nested views of the base, local, and merged layers.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"reflect"
	"strings"
)

// Flatten converts a nested tree into a flat dot-path map. Nested maps
// become path prefixes; every other value, arrays included, is a leaf.
func Flatten(nested map[string]any) map[string]any {
	flat := make(map[string]any)
	flattenInto("", nested, flat)
	return flat
}

func flattenInto(prefix string, node map[string]any, flat map[string]any) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := asTree(v); ok {
			flattenInto(key, child, flat)
			continue
		}
		flat[key] = v
	}
}

// Nest converts a flat dot-path map into a nested tree, splitting each key
// on "." and materializing intermediate containers on demand. An already
// materialized intermediate container is never overwritten: if a leaf key
// collides with an existing container, the container wins.
func Nest(flat map[string]any) map[string]any {
	nested := make(map[string]any)
	for key, value := range flat {
		parts := strings.Split(key, ".")
		node := nested
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		leaf := parts[len(parts)-1]
		if _, isContainer := node[leaf].(map[string]any); isContainer {
			continue
		}
		node[leaf] = value
	}
	return nested
}

// ExportBase returns the base layer as a nested tree.
func (c *Config) ExportBase() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	flat := make(map[string]any, len(c.base))
	for k, e := range c.base {
		flat[k] = e.value
	}
	return Nest(flat)
}

// ExportLocal returns the local layer as a nested tree.
func (c *Config) ExportLocal() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	flat := make(map[string]any, len(c.local))
	for k, e := range c.local {
		flat[k] = e.value
	}
	return Nest(flat)
}

// ExportMerged returns the key-wise union of local over base as a nested
// tree. Before nesting, any normalization-introduced function wrapper is
// unwrapped back to the caller's original function; values with no tracked
// original pass through unchanged.
func (c *Config) ExportMerged() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	flat := make(map[string]any, len(c.base)+len(c.local))
	for k, e := range c.base {
		flat[k] = unwrapOriginal(e)
	}
	for k, e := range c.local {
		flat[k] = unwrapOriginal(e)
	}
	return Nest(flat)
}

// unwrapOriginal recovers the caller-supplied function from a normalized
// entry where the engine tracked one.
func unwrapOriginal(e entry) any {
	if e.original != nil {
		return e.original
	}
	return e.value
}

// ConfigEquals compares two nested configuration trees structurally.
//
// Note: function-valued leaves never compare equal, matching Go's function
// comparison semantics. For trees of plain values this is a full deep
// equality over the nested structure.
func ConfigEquals(a, b map[string]any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if len(a) != len(b) {
		return false
	}

	for key, av := range a {
		bv, exists := b[key]
		if !exists {
			return false
		}
		am, aTree := asTree(av)
		bm, bTree := asTree(bv)
		if aTree != bTree {
			return false
		}
		if aTree {
			if !ConfigEquals(am, bm) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}
