// Package deckcache caches loaded deck snapshots keyed by file path.
//
// Entries are revalidated on every lookup against the file's current size
// and modification time, so an archive swapped on disk is never served
// stale: a fingerprint mismatch is a forced miss, not an error. A TTL
// backstops files whose mtime granularity hides rapid rewrites. The cache
// is explicitly constructed and injected; there is no package-level
// instance.
package deckcache

import (
	"container/list"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/souffleur/pptx"
)

// Config sizes the cache.
type Config struct {
	MaxEntries int           // evict least-recently-used beyond this
	TTL        time.Duration // age after which an entry is reloaded
	Logger     *slog.Logger
}

func (c Config) defaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 16
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Stats are cumulative counters since construction.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	Invalidations int64 `json:"invalidations"`
}

// Cache is a mutex-guarded LRU of immutable deck snapshots. Callers must
// treat returned decks as read-only; the same pointer is handed to every
// hit.
type Cache struct {
	cfg Config
	now func() time.Time

	mu    sync.Mutex
	ll    *list.List // front = most recently used
	items map[string]*list.Element

	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	invalidations atomic.Int64
}

type entry struct {
	deck     *pptx.Deck
	loadedAt time.Time
}

// New builds a cache with the given configuration.
func New(cfg Config) *Cache {
	return &Cache{
		cfg:   cfg.defaults(),
		now:   time.Now,
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached snapshot for path if it is still current. The
// entry must exist, be younger than the TTL, and match the file's present
// size and mtime; anything else is a miss and the entry is dropped.
func (c *Cache) Get(path string) (*pptx.Deck, bool) {
	st, statErr := os.Stat(path) // outside the lock

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[path]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	ent := el.Value.(*entry)
	if statErr != nil || c.now().Sub(ent.loadedAt) > c.cfg.TTL ||
		st.Size() != ent.deck.Size || !st.ModTime().Equal(ent.deck.ModTime) {
		c.cfg.Logger.Debug("deckcache: entry stale", "path", path)
		c.removeLocked(el)
		c.misses.Add(1)
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return ent.deck, true
}

// Put stores a snapshot under its own path, replacing any previous entry
// and evicting the least-recently-used one beyond capacity.
func (c *Cache) Put(d *pptx.Deck) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[d.Path]; ok {
		el.Value = &entry{deck: d, loadedAt: c.now()}
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&entry{deck: d, loadedAt: c.now()})
	c.items[d.Path] = el
	for c.ll.Len() > c.cfg.MaxEntries {
		oldest := c.ll.Back()
		c.cfg.Logger.Debug("deckcache: evict", "path", oldest.Value.(*entry).deck.Path)
		c.removeLocked(oldest)
		c.evictions.Add(1)
	}
}

// Invalidate drops the entry for path. It reports whether one was cached.
func (c *Cache) Invalidate(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[path]
	if !ok {
		return false
	}
	c.removeLocked(el)
	c.invalidations.Add(1)
	return true
}

// Clear drops every entry without touching the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.items)
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns a snapshot of the cumulative counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).deck.Path)
}
