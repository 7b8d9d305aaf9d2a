// ABOUTME: Tests for the log line dedupe cache
// ABOUTME: Uses a manual clock for TTL behaviour and checks eviction and concurrency safety

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (m *manualClock) now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *manualClock) advance(d time.Duration) {
	m.mu.Lock()
	m.t = m.t.Add(d)
	m.mu.Unlock()
}

func newTestCache(ttl time.Duration, size int) (*Cache, *manualClock) {
	clock := &manualClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return newCache(ttl, size, clock.now), clock
}

func TestCache_SeenAndMark(t *testing.T) {
	c, _ := newTestCache(5*time.Minute, 100)

	assert.False(t, c.Seen("never-seen"))
	c.Mark("line")
	assert.True(t, c.Seen("line"))
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(5*time.Minute, 100)

	c.Mark("line")
	clock.advance(4 * time.Minute)
	assert.True(t, c.Seen("line"))

	clock.advance(time.Minute)
	assert.False(t, c.Seen("line"), "exactly ttl later the entry has expired")
}

func TestCache_MarkRefreshes(t *testing.T) {
	c, clock := newTestCache(5*time.Minute, 100)

	c.Mark("line")
	clock.advance(3 * time.Minute)
	c.Mark("line")
	clock.advance(3 * time.Minute)

	assert.True(t, c.Seen("line"))
}

func TestCache_CheckAndMark(t *testing.T) {
	c, clock := newTestCache(time.Minute, 100)

	assert.False(t, c.CheckAndMark("k"), "first sighting is not a duplicate")
	assert.True(t, c.CheckAndMark("k"))

	clock.advance(2 * time.Minute)
	assert.False(t, c.CheckAndMark("k"), "expired keys are new again")
}

func TestCache_Fresh(t *testing.T) {
	c, clock := newTestCache(5*time.Minute, 100)

	got := c.Fresh([]string{"a", "b", "a", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)

	got = c.Fresh([]string{"c", "d", "b"})
	assert.Equal(t, []string{"d"}, got)

	clock.advance(10 * time.Minute)
	got = c.Fresh([]string{"a", "d"})
	assert.Equal(t, []string{"a", "d"}, got)

	assert.Empty(t, c.Fresh(nil))
}

func TestCache_EvictsOldest(t *testing.T) {
	c, _ := newTestCache(time.Hour, 3)

	c.Mark("k1")
	c.Mark("k2")
	c.Mark("k3")
	c.Mark("k1") // refresh k1 so k2 becomes the oldest
	c.Mark("k4")

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("k2"))
	assert.True(t, c.Seen("k1"))
	assert.True(t, c.Seen("k3"))
	assert.True(t, c.Seen("k4"))
}

func TestCache_RemoveExpired(t *testing.T) {
	c, clock := newTestCache(time.Minute, 100)

	c.Mark("old-1")
	c.Mark("old-2")
	clock.advance(90 * time.Second)
	c.Mark("new")

	c.removeExpired()

	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("new"))
}

func TestCache_DefaultSize(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	assert.Equal(t, DefaultMaxEntries, c.maxSize)
}

func TestCache_Concurrent(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if !c.CheckAndMark(fmt.Sprintf("line-%d", i)) {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 100, fresh, "each line is new exactly once across goroutines")
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
