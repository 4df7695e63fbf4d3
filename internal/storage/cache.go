package storage

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedStore wraps an ObjectStore with an in-memory LRU of hot object
// states. Entries expire after ttl because a lifecycle rule can move an
// object to the cold tier at any time.
type CachedStore struct {
	inner   ObjectStore
	states  *stateCache
	metrics *observability.Metrics
}

// NewCachedStore creates a cache decorator around a store. A nil clock
// uses the wall clock; a non-positive ttl keeps entries until evicted.
func NewCachedStore(inner ObjectStore, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedStore{
		inner:   inner,
		states:  newStateCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedStore) Status(ctx context.Context, key string) (State, error) {
	if c.states.hot(key) {
		c.metrics.StorageCache.WithLabelValues("hit").Inc()
		return StateHot, nil
	}
	c.metrics.StorageCache.WithLabelValues("miss").Inc()

	state, err := c.inner.Status(ctx, key)
	if err != nil {
		return state, err
	}
	if state == StateHot {
		c.states.markHot(key)
	} else {
		c.states.forget(key)
	}
	return state, nil
}

func (c *CachedStore) RequestRestore(ctx context.Context, key string) error {
	c.states.forget(key)
	return c.inner.RequestRestore(ctx, key)
}

// Fetch drops the cached state when the download fails so the next Status
// asks the backend again.
func (c *CachedStore) Fetch(ctx context.Context, key, dir string) (string, error) {
	local, err := c.inner.Fetch(ctx, key, dir)
	if err != nil {
		c.states.forget(key)
	}
	return local, err
}

// stateCache remembers which keys were hot, least recently used first out.
type stateCache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	order      *list.List // front is most recently used
	byKey      map[string]*list.Element
}

type hotEntry struct {
	key     string
	expires time.Time
}

func newStateCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *stateCache {
	return &stateCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		order:      list.New(),
		byKey:      make(map[string]*list.Element),
	}
}

func (c *stateCache) hot(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byKey[key]
	if !ok {
		return false
	}
	if c.ttl > 0 && !c.clock.Now().Before(el.Value.(*hotEntry).expires) {
		c.drop(el)
		return false
	}
	c.order.MoveToFront(el)
	return true
}

func (c *stateCache) markHot(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.clock.Now().Add(c.ttl)
	if el, ok := c.byKey[key]; ok {
		el.Value.(*hotEntry).expires = expires
		c.order.MoveToFront(el)
		return
	}
	c.byKey[key] = c.order.PushFront(&hotEntry{key: key, expires: expires})
	for c.order.Len() > c.maxEntries {
		c.drop(c.order.Back())
	}
}

func (c *stateCache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[key]; ok {
		c.drop(el)
	}
}

func (c *stateCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *stateCache) drop(el *list.Element) {
	delete(c.byKey, el.Value.(*hotEntry).key)
	c.order.Remove(el)
}
