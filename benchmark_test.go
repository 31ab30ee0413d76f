// benchmark_test.go: Performance benchmarks for Strata hot paths
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"fmt"
	"testing"
)

func benchConfig(b *testing.B) *Config {
	b.Helper()
	schema := NewStaticSchema().
		Define(Slot{Name: "server.port", Default: 8080, HasDefault: true}).
		Define(Slot{Name: "style.bg_color", Default: "white", HasDefault: true}).
		Define(Slot{Name: "track.label"})
	cfg, err := New(schema)
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	return cfg
}

// BenchmarkGet_CachedConstant measures the steady-state read path: the
// accessor is compiled once, every further Get is a cache hit.
func BenchmarkGet_CachedConstant(b *testing.B) {
	cfg := benchConfig(b)
	cfg.Get("server.port") // warm the accessor cache
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.Get("server.port")
	}
}

// BenchmarkGet_FunctionValue measures argument forwarding through a
// compiled Func accessor.
func BenchmarkGet_FunctionValue(b *testing.B) {
	cfg := benchConfig(b)
	if _, err := cfg.Set("track.label", Func(func(args ...any) any {
		return args[0]
	})); err != nil {
		b.Fatalf("Set failed: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.Get("track.label", i)
	}
}

// BenchmarkSet measures the full mutation path: normalization, store,
// precise accessor eviction, and notification with no listeners.
func BenchmarkSet(b *testing.B) {
	cfg := benchConfig(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cfg.Set("server.port", i); err != nil {
			b.Fatalf("Set failed: %v", err)
		}
	}
}

// BenchmarkSetThenGet measures the evict-recompile cycle that targeted
// updates pay on large configuration trees.
func BenchmarkSetThenGet(b *testing.B) {
	cfg := benchConfig(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cfg.Set("server.port", i); err != nil {
			b.Fatalf("Set failed: %v", err)
		}
		_ = cfg.Get("server.port")
	}
}

// BenchmarkNotifyDispatch measures Set with listeners attached.
func BenchmarkNotifyDispatch(b *testing.B) {
	cfg := benchConfig(b)
	for i := 0; i < 4; i++ {
		if _, err := cfg.Watch("server.port", func(key string, old, new any) {}); err != nil {
			b.Fatalf("Watch failed: %v", err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cfg.Set("server.port", i); err != nil {
			b.Fatalf("Set failed: %v", err)
		}
	}
}

// BenchmarkLoadBase measures bulk ingestion of a mid-sized tree.
func BenchmarkLoadBase(b *testing.B) {
	schema := NewStaticSchema()
	tree := make(map[string]any)
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("section%d.value", i)
		schema.Define(Slot{Name: key})
		tree[fmt.Sprintf("section%d", i)] = map[string]any{"value": i}
	}
	cfg, err := New(schema)
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cfg.LoadBase(tree); err != nil {
			b.Fatalf("LoadBase failed: %v", err)
		}
	}
}

// BenchmarkFlattenNest measures the serializer round trip.
func BenchmarkFlattenNest(b *testing.B) {
	flat := make(map[string]any)
	for i := 0; i < 100; i++ {
		flat[fmt.Sprintf("group%d.item%d.value", i/10, i%10)] = i
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Flatten(Nest(flat))
	}
}
