// Package liveness detects sessions that stopped sending anything. Every
// received frame refreshes a per-slot TTL entry; when an entry expires the
// idle callback fires with the generation that was last seen.
package liveness

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// IdleFunc is called from the cache janitor goroutine when a slot has been
// silent for the timeout. generation identifies the connection that went
// idle; a slot reused since then carries a different generation.
type IdleFunc func(id int, generation uint64)

// Tracker records the last activity of each session slot.
type Tracker struct {
	timeout time.Duration

	mu    sync.RWMutex
	cache *cache.Cache
}

// New creates a Tracker.
//
// Parameters:
//   - timeout: Silence after which onIdle fires; zero or negative disables tracking
//   - onIdle: Callback for expired slots
//
// Returns:
//   - A Tracker; with tracking disabled every method is a no-op
func New(timeout time.Duration, onIdle IdleFunc) *Tracker {
	if timeout <= 0 {
		return &Tracker{}
	}

	interval := timeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}

	t := &Tracker{timeout: timeout}

	c := cache.New(timeout, interval)
	c.OnEvicted(func(key string, value interface{}) {
		if !t.Enabled() {
			return
		}

		id, err := strconv.Atoi(key)
		if err != nil {
			return
		}

		generation, ok := value.(uint64)
		if !ok || onIdle == nil {
			return
		}

		onIdle(id, generation)
	})

	t.cache = c
	return t
}

// Enabled reports whether idle detection is active. It turns false after
// Close.
func (t *Tracker) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cache != nil
}

// Timeout returns the configured idle timeout.
func (t *Tracker) Timeout() time.Duration {
	return t.timeout
}

// Touch marks slot id as active for the given connection generation and
// restarts its timeout. Safe for concurrent use.
//
// Entries are never deleted explicitly: go-cache reports deletions through
// the eviction callback too, which would race with a new occupant of the
// slot. A stale entry simply expires and its old generation is ignored by
// the caller.
func (t *Tracker) Touch(id int, generation uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.cache == nil {
		return
	}

	t.cache.SetDefault(strconv.Itoa(id), generation)
}

// Tracked returns the number of slots with a live entry.
func (t *Tracker) Tracked() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.cache == nil {
		return 0
	}

	return t.cache.ItemCount()
}

// Close drops every entry without firing the idle callback. Later Touch
// calls are ignored and the cache janitor is released. Safe to call more
// than once.
func (t *Tracker) Close() {
	t.mu.Lock()
	c := t.cache
	t.cache = nil
	t.mu.Unlock()

	if c != nil {
		c.Flush()
	}
}
