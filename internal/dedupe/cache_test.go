// ABOUTME: Tests for the suppression window.
// ABOUTME: Validates TTL expiry, repeat counting, eviction, and concurrency safety.

package dedupe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeNow struct {
	t time.Time
}

func (f *fakeNow) now() time.Time { return f.t }

func newTestWindow(ttl time.Duration, size int) (*Window, *fakeNow) {
	clk := &fakeNow{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := New(ttl, size)
	w.SetClock(clk.now)
	return w, clk
}

func TestWindow_FirstAllowedRepeatsSuppressed(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 10)

	assert.True(t, w.Allow("session-a"))
	assert.False(t, w.Allow("session-a"))
	assert.False(t, w.Allow("session-a"))
	assert.Equal(t, 2, w.Suppressed("session-a"))

	// Other keys are independent
	assert.True(t, w.Allow("session-b"))
}

func TestWindow_ExpiresAfterTTL(t *testing.T) {
	w, clk := newTestWindow(time.Minute, 10)

	assert.True(t, w.Allow("k"))
	clk.t = clk.t.Add(59 * time.Second)
	assert.False(t, w.Allow("k"))

	clk.t = clk.t.Add(2 * time.Second)
	assert.True(t, w.Allow("k"))
	assert.Equal(t, 0, w.Suppressed("k"))
}

func TestWindow_Forget(t *testing.T) {
	w, _ := newTestWindow(time.Hour, 10)

	assert.Equal(t, -1, w.Forget("missing"))

	w.Allow("k")
	w.Allow("k")
	assert.Equal(t, 1, w.Forget("k"))
	assert.True(t, w.Allow("k"))
}

func TestWindow_EvictsOldest(t *testing.T) {
	w, _ := newTestWindow(time.Hour, 2)

	w.Allow("a")
	w.Allow("b")
	w.Allow("c")

	assert.Equal(t, 2, w.Len())
	assert.Equal(t, -1, w.Forget("a"))
	assert.True(t, w.Allow("a"), "evicted key starts a new window")
}

func TestWindow_Concurrent(t *testing.T) {
	w := New(time.Hour, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, allowed)
	assert.Equal(t, 49, w.Suppressed("shared"))
}
