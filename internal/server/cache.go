package server

import (
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/mTatsuro/llm-data-visualizer/internal/executor"
)

// resultCache holds executed payloads keyed by plan fingerprint. The dataset
// is read-only for the life of the process, so a fingerprint fully
// determines the payload apart from its viz id.
type resultCache struct {
	mu  sync.Mutex
	lru *lru.Cache // nil when disabled
}

func newResultCache(size int) *resultCache {
	c := &resultCache{}
	if size > 0 {
		c.lru = lru.New(size)
	}
	return c
}

func (c *resultCache) get(fp string) (executor.Payload, bool) {
	if c.lru == nil {
		return executor.Payload{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(fp)
	if !ok {
		return executor.Payload{}, false
	}
	return v.(executor.Payload), true
}

// put stores pl. Payloads carrying errors are not cached.
func (c *resultCache) put(fp string, pl executor.Payload) {
	if c.lru == nil || len(pl.Errors) > 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(fp, pl)
}

func (c *resultCache) len() int {
	if c.lru == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
