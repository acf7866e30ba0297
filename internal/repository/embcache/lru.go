package embcache

import (
	"container/list"
	"sync"
	"time"
)

// entry is one cached vector with its insertion time.
type entry struct {
	key      string
	vec      []float32
	storedAt time.Time
}

// LRU is an in-process embedding cache with a capacity bound and a TTL.
// Eviction is least-recently-used; expiry is lazy, checked on read. A Get
// refreshes recency, a Put of an existing key overwrites the vector and
// restarts its TTL.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	items    map[string]*list.Element
	now      func() time.Time
}

// NewLRU creates a cache holding at most capacity vectors for at most ttl.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LRU{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// WithClock overrides the time source (tests).
func (c *LRU) WithClock(now func() time.Time) *LRU {
	c.now = now
	return c
}

// Get returns the cached vector for key, or false when absent or expired.
// Expired entries are dropped on the spot.
func (c *LRU) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}

	e := el.Value.(*entry)
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.removeLocked(el)
		return nil, false
	}

	c.order.MoveToFront(el)
	return e.vec, true
}

// Put stores a vector, evicting the least recently used entry when full.
func (c *LRU) Put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.vec = vec
		e.storedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}

	el := c.order.PushFront(&entry{key: key, vec: vec, storedAt: c.now()})
	c.items[key] = el
}

// Len returns the number of entries, including not-yet-collected expired ones.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRU) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, e.key)
}
