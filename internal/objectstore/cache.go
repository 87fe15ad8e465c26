package objectstore

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const maxCachedBlobs = 1 << 16

// blobCache keeps decompressed blobs under a byte budget.
type blobCache struct {
	mu     sync.Mutex
	budget int64
	size   int64
	lru    *lru.Cache[string, []byte]
}

func newBlobCache(budget int64) *blobCache {
	c := &blobCache{budget: budget}
	if budget <= 0 {
		return c
	}
	cache, err := lru.NewWithEvict[string, []byte](maxCachedBlobs, func(_ string, value []byte) {
		c.size -= int64(len(value))
	})
	if err != nil {
		return &blobCache{}
	}
	c.lru = cache
	return c
}

func (c *blobCache) get(key string) ([]byte, bool) {
	if c == nil || c.lru == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

func (c *blobCache) add(key string, value []byte) {
	if c == nil || c.lru == nil || int64(len(value)) > c.budget {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Contains(key) {
		return
	}
	c.size += int64(len(value))
	c.lru.Add(key, value)
	for c.size > c.budget && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

func (c *blobCache) stats() (int, int64) {
	if c == nil || c.lru == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len(), c.size
}
