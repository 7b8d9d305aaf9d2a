// ABOUTME: Thread-safe TTL cache that suppresses repeated device log lines
// ABOUTME: Wallet clients resend the same diagnostics; only the first copy in a window is kept

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultMaxEntries caps memory when no size is given.
const DefaultMaxEntries = 10000

type cacheEntry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers keys for a TTL and evicts the oldest key when full.
// A doubly-linked list keeps insertion order so eviction is O(1).
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and capacity and starts the
// background sweep. Call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	c := newCache(ttl, maxSize, time.Now)
	go c.sweep(sweepInterval(ttl))
	return c
}

func newCache(ttl time.Duration, maxSize int, now func() time.Time) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	return &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

// Seen reports whether key was marked within the TTL.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key)
}

// Mark records key as seen now, refreshing it if already present.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// CheckAndMark returns true if key is a duplicate. Otherwise it marks key
// and returns false, in one critical section.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(key) {
		return true
	}
	c.markLocked(key)
	return false
}

// Fresh returns the lines not seen within the TTL, in their original order,
// and marks them. Duplicates inside one batch are collapsed too.
func (c *Cache) Fresh(lines []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, line := range lines {
		if c.liveLocked(line) {
			continue
		}
		c.markLocked(line)
		out = append(out, line)
	}
	return out
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) liveLocked(key string) bool {
	entry, ok := c.seen[key]
	return ok && c.now().Sub(entry.seenAt) < c.ttl
}

func (c *Cache) markLocked(key string) {
	now := c.now()

	if entry, ok := c.seen[key]; ok {
		entry.seenAt = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	c.seen[key] = &cacheEntry{seenAt: now, element: c.order.PushBack(key)}
}

func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

// removeExpired drops entries past the TTL. Entries are refreshed by
// moving to the back, so the list is ordered by seenAt and the walk can
// stop at the first live entry.
func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		entry := c.seen[key]
		if now.Sub(entry.seenAt) < c.ttl {
			return
		}
		next := e.Next()
		c.order.Remove(e)
		delete(c.seen, key)
		e = next
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
