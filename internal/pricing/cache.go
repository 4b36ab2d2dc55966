// Package pricing resolves USD token prices from an external price API.
package pricing

import (
	"sync"
	"time"
)

// DefaultTTL is how long a fetched quote stays fresh.
const DefaultTTL = 60 * time.Second

// Quote is a USD price observation for a price id.
type Quote struct {
	ID        string    `json:"id"`
	USD       float64   `json:"usd"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Cache is an in-memory TTL map of quotes. Construct one per process and share it with the
// Fetcher; Close stops the background sweeper.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]Quote
	clock   func() time.Time

	sweepEvery time.Duration
	shutdown   chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides the cache clock, primarily for testing.
func WithClock(clock func() time.Time) CacheOption {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithSweepInterval sets how often expired entries are dropped. Zero disables the sweeper;
// expired entries are then only skipped on read and removed by Prune.
func WithSweepInterval(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.sweepEvery = d
	}
}

// NewCache creates a quote cache. A non-positive ttl selects DefaultTTL.
func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:        ttl,
		entries:    make(map[string]Quote),
		clock:      time.Now,
		sweepEvery: ttl,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.sweepEvery > 0 {
		go c.sweepExpired()
	} else {
		close(c.done)
	}
	return c
}

// Get returns a fresh quote for id.
func (c *Cache) Get(id string) (Quote, bool) {
	c.mu.RLock()
	q, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || c.isExpired(q, c.clock()) {
		return Quote{}, false
	}
	return q, true
}

// Set stores a quote, stamping FetchedAt when it is zero.
func (c *Cache) Set(q Quote) {
	if q.FetchedAt.IsZero() {
		q.FetchedAt = c.clock()
	}
	c.mu.Lock()
	c.entries[q.ID] = q
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Quote)
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included until pruned.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune removes expired entries and reports how many were dropped.
func (c *Cache) Prune() int {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, q := range c.entries {
		if c.isExpired(q, now) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Close stops the sweeper and waits for it to exit. It is safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.shutdown)
	})
	<-c.done
}

func (c *Cache) isExpired(q Quote, now time.Time) bool {
	return now.Sub(q.FetchedAt) >= c.ttl
}

func (c *Cache) sweepExpired() {
	defer close(c.done)
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}
