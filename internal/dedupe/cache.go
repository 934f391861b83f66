// ABOUTME: Keyed suppression window for repeated events.
// ABOUTME: The reconciliation loop uses it to log a failing session loudly once per window.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key   string
	first time.Time
	count int
	elem  *list.Element
}

// Window reports the first occurrence of a key within a TTL and counts the
// repeats it suppresses. It holds at most maxSize keys, evicting the oldest.
type Window struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a Window. A maxSize <= 0 means unbounded.
func New(ttl time.Duration, maxSize int) *Window {
	return &Window{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// SetClock replaces the time source. Call before first use.
func (w *Window) SetClock(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
}

// Allow returns true when key has not been seen within the TTL, starting a new
// window for it. Otherwise it records a suppressed repeat and returns false.
func (w *Window) Allow(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if e, ok := w.entries[key]; ok {
		if now.Sub(e.first) < w.ttl {
			e.count++
			return false
		}
		w.removeLocked(e)
	}

	if w.maxSize > 0 && len(w.entries) >= w.maxSize {
		if front := w.order.Front(); front != nil {
			w.removeLocked(w.entries[front.Value.(string)])
		}
	}

	e := &entry{key: key, first: now}
	e.elem = w.order.PushBack(key)
	w.entries[key] = e
	return true
}

// Suppressed returns how many repeats of key were swallowed in its current window.
func (w *Window) Suppressed(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.entries[key]; ok {
		return e.count
	}
	return 0
}

// Forget clears key, so its next occurrence is allowed. Returns the number of
// repeats that were suppressed, or -1 if the key was not tracked.
func (w *Window) Forget(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[key]
	if !ok {
		return -1
	}
	count := e.count
	w.removeLocked(e)
	return count
}

// Len returns the number of tracked keys.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// removeLocked must be called with mu held.
func (w *Window) removeLocked(e *entry) {
	if e == nil {
		return
	}
	w.order.Remove(e.elem)
	delete(w.entries, e.key)
}
