// watch_test.go: Testing the per-key change notification bus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"testing"
)

func watchSchema() *StaticSchema {
	return NewStaticSchema().
		Define(Slot{Name: "a.b", Default: 0, HasDefault: true}).
		Define(Slot{Name: "a.c", Default: 0, HasDefault: true})
}

func TestWatch_ExactPathOnly(t *testing.T) {
	cfg, err := New(watchSchema())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	type call struct{ old, new any }
	var calls []call
	if _, err := cfg.Watch("a.b", func(key string, old, new any) {
		calls = append(calls, call{old, new})
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if _, err := cfg.Set("a.b", 5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("Expected exactly 1 call, got %d", len(calls))
	}
	if calls[0].old != 0 || calls[0].new != 5 {
		t.Errorf("Expected (0, 5), got (%v, %v)", calls[0].old, calls[0].new)
	}

	// A sibling key must not reach this listener
	if _, err := cfg.Set("a.c", 5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("Sibling set leaked to listener: %d calls", len(calls))
	}

	// No ancestor propagation: watching "a" does not observe "a.b"
	fired := 0
	if _, err := cfg.Watch("a", func(key string, old, new any) { fired++ }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if _, err := cfg.Set("a.b", 6); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if fired != 0 {
		t.Errorf("Ancestor listener fired %d times", fired)
	}
}

func TestWatch_RemoveStopsNotifications(t *testing.T) {
	cfg, err := New(watchSchema())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	fired := 0
	sub, err := cfg.Watch("a.b", func(key string, old, new any) { fired++ })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if _, err := cfg.Set("a.b", 5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	sub.Remove()
	if _, err := cfg.Set("a.b", 6); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if fired != 1 {
		t.Errorf("Expected 1 call before removal, got %d", fired)
	}
}

func TestWatch_RemoveIsIdempotent(t *testing.T) {
	cfg, err := New(watchSchema())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sub, err := cfg.Watch("a.b", func(key string, old, new any) {})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	sub.Remove()
	sub.Remove() // second removal is a no-op

	if n := cfg.Watchers("a.b"); n != 0 {
		t.Errorf("Expected 0 live watchers, got %d", n)
	}
}

func TestWatch_NilCallbackRejected(t *testing.T) {
	cfg, err := New(watchSchema())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := cfg.Watch("a.b", nil); err == nil {
		t.Fatal("Expected error for nil callback")
	}
}

func TestWatch_MultipleListeners(t *testing.T) {
	cfg, err := New(watchSchema())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		if _, err := cfg.Watch("a.b", func(key string, old, new any) {
			order = append(order, i)
		}); err != nil {
			t.Fatalf("Watch failed: %v", err)
		}
	}

	if _, err := cfg.Set("a.b", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("Expected all 3 listeners called, got %d", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Errorf("Listeners out of registration order: %v", order)
			break
		}
	}
}

func TestWatch_RemovalDuringNotification(t *testing.T) {
	cfg, err := New(watchSchema())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var subs [3]*Subscription
	counts := [3]int{}
	for i := 0; i < 3; i++ {
		i := i
		sub, err := cfg.Watch("a.b", func(key string, old, new any) {
			counts[i]++
			if i == 0 {
				// Removing a later listener mid-notification must keep
				// this notification's snapshot intact
				subs[1].Remove()
			}
		})
		if err != nil {
			t.Fatalf("Watch failed: %v", err)
		}
		subs[i] = sub
	}

	if _, err := cfg.Set("a.b", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	// Listener 1 was removed during the same notification: removal affects
	// only future notifications, so it still ran this time
	if counts != [3]int{1, 1, 1} {
		t.Fatalf("First notification counts: %v", counts)
	}

	if _, err := cfg.Set("a.b", 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if counts != [3]int{2, 1, 2} {
		t.Errorf("Second notification counts: %v", counts)
	}
}

func TestWatch_SelfRemovalDuringNotification(t *testing.T) {
	cfg, err := New(watchSchema())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	fired := 0
	var sub *Subscription
	sub, err = cfg.Watch("a.b", func(key string, old, new any) {
		fired++
		sub.Remove()
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if _, err := cfg.Set("a.b", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := cfg.Set("a.b", 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if fired != 1 {
		t.Errorf("Self-removing listener fired %d times", fired)
	}
}

func TestWatch_ReentrantSetFromCallback(t *testing.T) {
	cfg, err := New(watchSchema())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var bValues []any
	if _, err := cfg.Watch("a.b", func(key string, old, new any) {
		// Cascade: every change to a.b mirrors into a.c
		if _, err := cfg.Set("a.c", new); err != nil {
			t.Errorf("Re-entrant Set failed: %v", err)
		}
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if _, err := cfg.Watch("a.c", func(key string, old, new any) {
		bValues = append(bValues, new)
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if _, err := cfg.Set("a.b", 7); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if len(bValues) != 1 || bValues[0] != 7 {
		t.Errorf("Expected cascaded [7], got %v", bValues)
	}
	if got := cfg.Get("a.c"); got != 7 {
		t.Errorf("Expected a.c == 7, got %v", got)
	}
}

func TestWatch_ReentrantWatchFromCallback(t *testing.T) {
	cfg, err := New(watchSchema())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	lateFired := 0
	if _, err := cfg.Watch("a.b", func(key string, old, new any) {
		if cfg.Watchers("a.b") == 1 {
			if _, err := cfg.Watch("a.b", func(key string, old, new any) {
				lateFired++
			}); err != nil {
				t.Errorf("Re-entrant Watch failed: %v", err)
			}
		}
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// The listener registered mid-notification sees only future changes
	if _, err := cfg.Set("a.b", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if lateFired != 0 {
		t.Errorf("Late listener fired during its registering notification")
	}
	if _, err := cfg.Set("a.b", 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if lateFired != 1 {
		t.Errorf("Late listener fired %d times, expected 1", lateFired)
	}
}

func TestWatch_PanicIsolation(t *testing.T) {
	var diags []error
	cfg, err := New(watchSchema(), Options{
		Diagnostics: func(err error, key string) { diags = append(diags, err) },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	secondFired := 0
	if _, err := cfg.Watch("a.b", func(key string, old, new any) {
		panic("listener blew up")
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if _, err := cfg.Watch("a.b", func(key string, old, new any) {
		secondFired++
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if _, err := cfg.Set("a.b", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if secondFired != 1 {
		t.Errorf("Panicking listener prevented later listener (fired=%d)", secondFired)
	}
	if len(diags) != 1 {
		t.Errorf("Expected 1 panic diagnostic, got %d", len(diags))
	}
}

func TestWatch_PruningKeepsLiveListeners(t *testing.T) {
	cfg, err := New(watchSchema())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	keep, err := cfg.Watch("a.b", func(key string, old, new any) {})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	drop, err := cfg.Watch("a.b", func(key string, old, new any) {})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	drop.Remove()

	// Registering again prunes the inert placeholder
	if _, err := cfg.Watch("a.b", func(key string, old, new any) {}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if n := cfg.Watchers("a.b"); n != 2 {
		t.Errorf("Expected 2 live watchers after pruning, got %d", n)
	}
	if keep.Key() != "a.b" {
		t.Errorf("Subscription key mismatch: %s", keep.Key())
	}
}
