package playback

import (
	"sync"

	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/metrics"
)

// entityCache holds decoded entities by recording name. gen counts
// invalidations so a load that raced one is not cached.
type entityCache struct {
	mu    sync.RWMutex
	items map[string]entity.Entity
	gen   uint64
}

func newEntityCache() *entityCache {
	return &entityCache{items: make(map[string]entity.Entity)}
}

func (c *entityCache) get(name string) (entity.Entity, bool) {
	c.mu.RLock()
	e, ok := c.items[name]
	c.mu.RUnlock()
	if ok {
		metrics.PlaybackCacheTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.PlaybackCacheTotal.WithLabelValues("miss").Inc()
	}
	return e, ok
}

func (c *entityCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// putIfCurrent stores e unless the cache was invalidated since gen was read.
func (c *entityCache) putIfCurrent(name string, e entity.Entity, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.items[name] = e
	return true
}

func (c *entityCache) invalidate(name string) {
	c.mu.Lock()
	delete(c.items, name)
	c.gen++
	c.mu.Unlock()
}

func (c *entityCache) clear() {
	c.mu.Lock()
	c.items = make(map[string]entity.Entity)
	c.gen++
	c.mu.Unlock()
}

func (c *entityCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
