// Package strata provides a layered, schema-validated configuration engine
// for Go applications, combining priority-ordered value resolution, compiled
// per-key accessors, and change notification in a single, cohesive system.
//
// # Philosophy: Configuration as Layers
//
// Strata is built on the principle that an effective configuration value is
// the product of several priority tiers, not a single source. Every key path
// (e.g. "style.bg_color") resolves through three layers, highest priority
// first:
//  1. The local layer - explicit overrides written through Set or LoadLocal
//  2. The base layer - values bulk-loaded from an already-parsed config tree
//  3. The schema default - the slot's declared default value
//
// # Architecture Overview
//
// Strata consists of five integrated subsystems:
//  1. **Accessor Compiler & Cache**: Per-key compiled accessors with precise,
//     per-key eviction on mutation
//  2. **Layered Value Store**: Flat dot-path base and local layers with
//     schema-default fallback
//  3. **Loader/Merger**: Recursive ingestion of nested trees with schema
//     validation and unknown-key tolerance
//  4. **Watch/Notify Bus**: Exact-path change listeners with snapshot
//     iteration and idempotent removal
//  5. **Change Journal**: Optional mutation trail with JSONL and SQLite
//     backends
//
// # Quick Start
//
// Define a schema, create a configuration, and read values:
//
//	schema := strata.NewStaticSchema().
//		Define(strata.Slot{Name: "style.bg_color", Default: "white", HasDefault: true}).
//		Define(strata.Slot{Name: "server.port", Default: 8080, HasDefault: true})
//
//	cfg, err := strata.New(schema, strata.Options{
//		Base: map[string]any{"style": map[string]any{"bg_color": "blue"}},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	color := cfg.Get("style.bg_color") // "blue" (base layer over default)
//	cfg.Set("style.bg_color", "red")
//	color = cfg.Get("style.bg_color") // "red" (local layer wins)
//
// # Function-Valued Settings
//
// A configuration value may itself be a strata.Func, evaluated lazily with
// call-time arguments. The compiled accessor forwards arguments to the
// function; constant values ignore them:
//
//	cfg.Set("track.label", strata.Func(func(args ...any) any {
//		return fmt.Sprintf("track %v", args[0])
//	}))
//	label := cfg.Get("track.label", 7) // "track 7"
//
// Exports recover the caller-supplied function even when the schema's
// normalization wrapped it.
//
// # Change Notification
//
// Listeners observe exact key paths. Removal is idempotent and safe during
// an in-progress notification for the same key:
//
//	sub, _ := cfg.Watch("style.bg_color", func(key string, old, new any) {
//		repaint(new.(string))
//	})
//	defer sub.Remove()
//
// # What Strata Does Not Do
//
// Strata consumes already-parsed nested maps; it does not parse file formats,
// perform network I/O, or persist the local layer. Those remain caller
// responsibilities, keeping the engine free of I/O on its hot paths.
package strata
