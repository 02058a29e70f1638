package jit

import (
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/logger"
)

// DefaultCacheCapacity bounds the number of compiled loops kept at once.
const DefaultCacheCapacity = 256

// CacheStats is a snapshot of cache counters
type CacheStats struct {
	Entries    int
	Capacity   int
	Hits       int64
	Misses     int64
	Insertions int64
	Evictions  int64
}

// HitRate returns hits / lookups, or 0 before the first lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	loop     *CompiledLoop
	hits     atomic.Int64
	lastUsed atomic.Int64 // logical tick of the last hit or insert
	inserted int64
}

// score favours entries hit often and used recently.
func (e *entry) score(now int64) float64 {
	idle := now - e.lastUsed.Load()
	return float64(e.hits.Load()+1) / float64(1+idle)
}

// Cache holds compiled loops by fingerprint. Lookups share the lock, inserts
// and evictions take it exclusively. Compiled loops are immutable and may be
// handed to any number of readers.
type Cache struct {
	mu       sync.RWMutex
	entries  map[Fingerprint]*entry
	capacity int

	ticks      atomic.Int64 // one per lookup
	hits       atomic.Int64
	misses     atomic.Int64
	insertions atomic.Int64
	evictions  atomic.Int64

	group singleflight.Group
}

// NewCache creates a cache holding at most capacity entries.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		entries:  make(map[Fingerprint]*entry, capacity),
		capacity: capacity,
	}
}

var (
	sharedOnce  sync.Once
	sharedCache *Cache
)

// SharedCache returns the process-wide cache, created on first use.
func SharedCache() *Cache {
	sharedOnce.Do(func() {
		sharedCache = NewCache(DefaultCacheCapacity)
	})
	return sharedCache
}

// Lookup returns the compiled loop for fp.
func (c *Cache) Lookup(fp Fingerprint) (*CompiledLoop, bool) {
	now := c.ticks.Add(1)
	c.mu.RLock()
	e, ok := c.entries[fp]
	c.mu.RUnlock()
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	e.lastUsed.Store(now)
	e.hits.Add(1)
	c.hits.Add(1)
	return e.loop, true
}

// Contains reports whether fp is cached without counting a lookup.
func (c *Cache) Contains(fp Fingerprint) bool {
	c.mu.RLock()
	_, ok := c.entries[fp]
	c.mu.RUnlock()
	return ok
}

// Insert stores cl under fp. When the cache is full the entry with the lowest
// score is evicted first. Re-inserting a fingerprint replaces its loop.
func (c *Cache) Insert(fp Fingerprint, cl *CompiledLoop) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.ticks.Load()
	if e, ok := c.entries[fp]; ok {
		e.loop = cl
		e.inserted = now
		e.lastUsed.Store(now)
		return
	}
	if len(c.entries) >= c.capacity {
		c.evictLocked(now)
	}
	e := &entry{loop: cl, inserted: now}
	e.lastUsed.Store(now)
	c.entries[fp] = e
	c.insertions.Add(1)
}

func (c *Cache) evictLocked(now int64) {
	var (
		victim Fingerprint
		worst  *entry
		low    float64
	)
	for fp, e := range c.entries {
		s := e.score(now)
		if worst == nil || s < low || (s == low && older(fp, e, victim, worst)) {
			victim, worst, low = fp, e, s
		}
	}
	if worst == nil {
		return
	}
	delete(c.entries, victim)
	c.evictions.Add(1)
	logger.Trace(logger.JIT, "evicted compiled loop", "fingerprint", victim, "score", low)
}

// older breaks score ties by insertion tick, then by hash, so eviction is
// deterministic.
func older(a Fingerprint, ea *entry, b Fingerprint, eb *entry) bool {
	if ea.inserted != eb.inserted {
		return ea.inserted < eb.inserted
	}
	return a.String() < b.String()
}

// GetOrCompile returns the cached loop for fp or runs compile and caches its
// result. Concurrent callers with the same fingerprint share one compile.
// hit reports whether the loop came from the cache.
func (c *Cache) GetOrCompile(fp Fingerprint, compile func() (*CompiledLoop, error)) (cl *CompiledLoop, hit bool, err error) {
	if cl, ok := c.Lookup(fp); ok {
		return cl, true, nil
	}
	v, err, _ := c.group.Do(fp.String(), func() (interface{}, error) {
		if cl, ok := c.peek(fp); ok {
			return cl, nil
		}
		cl, err := compile()
		if err != nil {
			return nil, err
		}
		c.Insert(fp, cl)
		return cl, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*CompiledLoop), false, nil
}

// peek is Lookup without statistics
func (c *Cache) peek(fp Fingerprint) (*CompiledLoop, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[fp]; ok {
		return e.loop, true
	}
	return nil, false
}

// Loops returns the cached loops ordered by fingerprint.
func (c *Cache) Loops() []*CompiledLoop {
	c.mu.RLock()
	loops := make([]*CompiledLoop, 0, len(c.entries))
	for _, e := range c.entries {
		loops = append(loops, e.loop)
	}
	c.mu.RUnlock()
	sort.Slice(loops, func(i, j int) bool {
		return loops[i].Fingerprint.String() < loops[j].Fingerprint.String()
	})
	return loops
}

// Len returns the number of cached loops.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int { return c.capacity }

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Entries:    c.Len(),
		Capacity:   c.capacity,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Insertions: c.insertions.Load(),
		Evictions:  c.evictions.Load(),
	}
}

// Purge drops every entry. Counters are kept.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
