package bus

import (
	"container/list"
	"sync"
	"time"
)

// DefaultDedupCacheSize and DefaultDedupTTL implement the EXACTLY_ONCE
// deduplication window: the last N event IDs a subscription has seen,
// each forgotten after TTL.
const (
	DefaultDedupCacheSize = 10000
	DefaultDedupTTL       = 10 * time.Minute
)

type dedupEntry struct {
	id   string
	seen time.Time
}

// dedupCache is a size-bounded, TTL-evicting set of recently seen event
// IDs, used to give EXACTLY_ONCE subscriptions idempotent handler
// invocation under AT_LEAST_ONCE-style retried redelivery.
type dedupCache struct {
	mu       sync.Mutex
	size     int
	ttl      time.Duration
	order    *list.List
	elements map[string]*list.Element
}

func newDedupCache(size int, ttl time.Duration) *dedupCache {
	if size <= 0 {
		size = DefaultDedupCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &dedupCache{
		size:     size,
		ttl:      ttl,
		order:    list.New(),
		elements: make(map[string]*list.Element),
	}
}

// SeenAndRecord reports whether id was already recorded (and not
// expired), and records/refreshes it either way. A true result means the
// caller should treat this delivery as a duplicate and skip the handler.
func (c *dedupCache) SeenAndRecord(id string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked(now)

	if el, ok := c.elements[id]; ok {
		c.order.MoveToFront(el)
		el.Value.(*dedupEntry).seen = now
		return true
	}

	el := c.order.PushFront(&dedupEntry{id: id, seen: now})
	c.elements[id] = el

	for c.order.Len() > c.size {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.elements, oldest.Value.(*dedupEntry).id)
	}
	return false
}

func (c *dedupCache) evictExpiredLocked(now time.Time) {
	for {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		entry := oldest.Value.(*dedupEntry)
		if now.Sub(entry.seen) <= c.ttl {
			return
		}
		c.order.Remove(oldest)
		delete(c.elements, entry.id)
	}
}
