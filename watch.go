// watch.go: Per-key change notification bus
//
// Listeners are registered per exact key path; there is no prefix or
// ancestor propagation. Removal marks the entry inert instead of splicing
// it out, and dispatch iterates a snapshot taken at notification time, so a
// callback may remove itself, register new listeners, or call Set again
// without corrupting an in-progress notification.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"github.com/agilira/go-errors"
)

// WatchFunc is called when the watched key's value changes, with the value
// before and after the mutation.
type WatchFunc func(key string, oldValue, newValue any)

// watchEntry is one listener registration. removed entries stay in the
// registry as inert placeholders until the next Watch on the same key
// prunes them; in-flight snapshots may still hold them.
type watchEntry struct {
	fn      WatchFunc
	removed bool
}

// Subscription is the removal handle returned by Watch.
type Subscription struct {
	c     *Config
	key   string
	entry *watchEntry
}

// Remove unregisters the listener. Removing twice is a no-op, and removal
// during an in-progress notification for the same key affects only future
// notifications.
func (s *Subscription) Remove() {
	if s == nil {
		return
	}
	s.c.mu.Lock()
	s.entry.removed = true
	s.c.mu.Unlock()
}

// Key returns the key path this subscription observes.
func (s *Subscription) Key() string {
	return s.key
}

// Watch registers fn to be called whenever key's value changes through Set
// or a bulk load. Multiple listeners per key are allowed, each independently
// removable.
func (c *Config) Watch(key string, fn WatchFunc) (*Subscription, error) {
	if fn == nil {
		return nil, errors.New(ErrCodeInvalidCallback, "watch callback cannot be nil").
			WithContext("key", key)
	}

	e := &watchEntry{fn: fn}

	c.mu.Lock()
	// Prune inert placeholders into a fresh slice: in-flight dispatch
	// snapshots may alias the old backing array.
	old := c.watchers[key]
	pruned := make([]*watchEntry, 0, len(old)+1)
	for _, w := range old {
		if !w.removed {
			pruned = append(pruned, w)
		}
	}
	c.watchers[key] = append(pruned, e)
	c.mu.Unlock()

	return &Subscription{c: c, key: key, entry: e}, nil
}

// Watchers returns the number of live listeners registered on key.
func (c *Config) Watchers(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, w := range c.watchers[key] {
		if !w.removed {
			n++
		}
	}
	return n
}

// snapshotWatchersLocked copies the live listener sequence for key so
// dispatch can run without the lock. Removed-state is captured here, at
// notification time: a removal that happens during the dispatch affects
// only future notifications. Caller must hold the lock.
func (c *Config) snapshotWatchersLocked(key string) []*watchEntry {
	list := c.watchers[key]
	if len(list) == 0 {
		return nil
	}
	snap := make([]*watchEntry, 0, len(list))
	for _, w := range list {
		if !w.removed {
			snap = append(snap, w)
		}
	}
	return snap
}

// dispatch invokes every listener from the snapshot.
// Runs with no lock held; a callback may re-enter Set, Watch, or Remove.
func (c *Config) dispatch(key string, oldValue, newValue any, snapshot []*watchEntry) {
	for _, e := range snapshot {
		c.invoke(key, oldValue, newValue, e)
	}
}

// invoke runs one callback with panic isolation, so one failing listener
// cannot prevent the remaining listeners from being notified.
func (c *Config) invoke(key string, oldValue, newValue any, e *watchEntry) {
	defer func() {
		if r := recover(); r != nil {
			c.diagnose(callbackPanicError(key, r), key)
		}
	}()
	e.fn(key, oldValue, newValue)
}
