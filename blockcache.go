package sstable

// blockcache.go implements the reader's bounded, LRU, offset-keyed cache
// of decoded data blocks: optional (nil disables it), sized by entry count
// rather than bytes, and guarded by a mutex since it is the one piece of
// reader-owned mutable state touched by concurrent Get/iterator calls.

import (
	"container/list"
	"sync"

	"github.com/tidesdb/sstable/internal/block"
)

type blockCacheEntry struct {
	offset int64
	blk    *block.Block
}

type blockCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[int64]*list.Element
}

func newBlockCache(capacity int) *blockCache {
	return &blockCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[int64]*list.Element),
	}
}

func (c *blockCache) get(offset int64) (*block.Block, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[offset]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*blockCacheEntry).blk, true
}

func (c *blockCache) put(offset int64, blk *block.Block) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[offset]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*blockCacheEntry).blk = blk
		return
	}
	el := c.ll.PushFront(&blockCacheEntry{offset: offset, blk: blk})
	c.items[offset] = el
	if c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back != nil {
			c.ll.Remove(back)
			delete(c.items, back.Value.(*blockCacheEntry).offset)
		}
	}
}
