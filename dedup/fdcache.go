package dedup

import (
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zhangboyang/blockdedup/kernel"
)

// fdCache bounds the number of concurrently open file descriptors to
// ref_limit, closing the least-recently-used file whenever a new open
// would exceed that. This is the same shape as the LRU the original
// tool keeps via a splice-to-front std::list, expressed here as an
// eviction-aware cache rather than hand-rolled list bookkeeping.
type fdCache struct {
	cache *lru.Cache[*fileItem, *os.File]
}

func newFDCache(refLimit uint64) *fdCache {
	size := int(refLimit)
	if size < 1 {
		size = 1
	}
	c, _ := lru.NewWithEvict[*fileItem, *os.File](size, func(_ *fileItem, f *os.File) {
		f.Close()
	})
	return &fdCache{cache: c}
}

// get returns an open R/W handle for f, opening (and caching) it if
// necessary. ok is false if the open failed; callers must treat that
// as a skip-this-target warning, not a fatal error.
func (c *fdCache) get(f *fileItem) (file *os.File, ok bool) {
	if v, found := c.cache.Get(f); found {
		return v, true
	}
	opened, err := kernel.OpenRW(f.name)
	if err != nil {
		return nil, false
	}
	c.cache.Add(f, opened)
	return opened, true
}

// closeAll evicts every cached descriptor, closing each via the
// eviction callback.
func (c *fdCache) closeAll() {
	c.cache.Purge()
}
