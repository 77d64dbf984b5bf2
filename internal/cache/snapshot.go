// Package cache keeps recently fetched snapshots and propagates invalidations
// between processes.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"example.com/mileage/internal/domain"
)

const (
	defaultMaxSize = 64
	defaultTTL     = time.Minute
)

// Config configures the snapshot cache.
type Config struct {
	// MaxSize is the maximum number of snapshots kept.
	MaxSize int
	// TTL is how long a snapshot stays fresh.
	TTL time.Duration
}

type entry struct {
	snapshot domain.Snapshot
	storedAt time.Time
}

// SnapshotCache is an LRU of snapshots keyed by tenant and date range.
type SnapshotCache struct {
	entries *lru.Cache[string, entry]
	ttl     time.Duration
	now     func() time.Time
}

// NewSnapshotCache builds a cache. Zero config values fall back to defaults.
func NewSnapshotCache(cfg Config) (*SnapshotCache, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	entries, err := lru.New[string, entry](cfg.MaxSize)
	if err != nil {
		return nil, err
	}
	return &SnapshotCache{entries: entries, ttl: cfg.TTL, now: time.Now}, nil
}

func key(tenantID string, from, to time.Time) string {
	return fmt.Sprintf("%s|%d|%d", tenantID, from.UnixNano(), to.UnixNano())
}

// Get implements domain.SnapshotCache. Expired entries are evicted on read.
func (c *SnapshotCache) Get(tenantID string, from, to time.Time) (domain.Snapshot, bool) {
	k := key(tenantID, from, to)
	e, ok := c.entries.Get(k)
	if !ok {
		return domain.Snapshot{}, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.entries.Remove(k)
		return domain.Snapshot{}, false
	}
	return e.snapshot, true
}

// Put implements domain.SnapshotCache.
func (c *SnapshotCache) Put(snapshot domain.Snapshot) {
	c.entries.Add(key(snapshot.TenantID, snapshot.From, snapshot.To), entry{snapshot: snapshot, storedAt: c.now()})
}

// Invalidate implements domain.SnapshotCache.
func (c *SnapshotCache) Invalidate(tenantID string) {
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && e.snapshot.TenantID == tenantID {
			c.entries.Remove(k)
		}
	}
}

// Len reports the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	return c.entries.Len()
}
