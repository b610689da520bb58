// Package cache keeps recent compilation results with LRU eviction by size
// and a TTL. Concurrent requests for the same key share one compilation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/templc/internal/pipeline"
)

// ResultCache caches pipeline results keyed by their inputs.
type ResultCache struct {
	entries     map[string]*entry
	mutex       sync.Mutex
	maxSize     int64
	currentSize int64
	ttl         time.Duration
	// LRU list with sentinel head and tail
	head *entry
	tail *entry

	group singleflight.Group

	hits      int64
	misses    int64
	evictions int64

	now func() time.Time
}

type entry struct {
	key       string
	result    *pipeline.Result
	size      int64
	createdAt time.Time
	prev      *entry
	next      *entry
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Size      int64 `json:"size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// New creates a cache holding at most maxSize bytes of results, each for
// at most ttl.
func New(maxSize int64, ttl time.Duration) *ResultCache {
	c := &ResultCache{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		ttl:     ttl,
		head:    &entry{},
		tail:    &entry{},
		now:     time.Now,
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Key hashes a batch and any options that change its result. Identical
// inputs give identical keys.
func Key(files []pipeline.File, options ...string) string {
	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write([]byte(f.Text))
		h.Write([]byte{0})
	}
	h.Write([]byte{1})
	for _, opt := range options {
		h.Write([]byte(opt))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key.
func (c *ResultCache) Get(key string) (*pipeline.Result, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if c.now().Sub(e.createdAt) > c.ttl {
		c.remove(e)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	c.moveToFront(e)
	atomic.AddInt64(&c.hits, 1)
	return e.result, true
}

// Set stores res under key. Results larger than the whole cache are not
// stored.
func (c *ResultCache) Set(key string, res *pipeline.Result) {
	size := resultSize(res)
	if size > c.maxSize {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if old, ok := c.entries[key]; ok {
		c.remove(old)
	}
	c.evictIfNeeded(size)

	e := &entry{key: key, result: res, size: size, createdAt: c.now()}
	c.entries[key] = e
	c.currentSize += size
	c.addToFront(e)
}

// Do returns the cached result for key, or runs compile once for all
// concurrent callers and caches what it returns. cached reports a hit.
// Errors are never cached. The shared compilation outlives a caller that
// gives up; compile sees ctx's values but not its cancellation.
func (c *ResultCache) Do(ctx context.Context, key string, compile func(context.Context) (*pipeline.Result, error)) (res *pipeline.Result, cached bool, err error) {
	if res, ok := c.Get(key); ok {
		return res, true, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		res, err := compile(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.Set(key, res)
		return res, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		return r.Val.(*pipeline.Result), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Stats returns the current counters.
func (c *ResultCache) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return Stats{
		Entries:   len(c.entries),
		Size:      c.currentSize,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

func (c *ResultCache) evictIfNeeded(newSize int64) {
	for c.currentSize+newSize > c.maxSize && c.tail.prev != c.head {
		c.remove(c.tail.prev)
		atomic.AddInt64(&c.evictions, 1)
	}
}

func (c *ResultCache) remove(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(c.entries, e.key)
	c.currentSize -= e.size
}

func (c *ResultCache) addToFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *ResultCache) moveToFront(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	c.addToFront(e)
}

// resultSize approximates the memory a result holds.
func resultSize(res *pipeline.Result) int64 {
	size := int64(len(res.Module))
	for _, d := range res.Diagnostics {
		size += int64(len(d.Code) + len(d.Message) + len(d.File) + 32)
	}
	return size
}
