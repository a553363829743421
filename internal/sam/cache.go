package sam

import (
	"container/list"
	"context"
	"image"
	"log/slog"
)

const DefaultCacheSize = 10

// Session is an inference context bound to one decoded image. It is not safe
// for concurrent use.
type Session interface {
	// Predict returns one raw mask per prompt at the image resolution.
	Predict(prompts []Prompt) ([]Mask, error)

	Release()
}

type CacheEntry struct {
	Key     string
	Image   image.Image
	Session Session

	// LastMasks are the refined masks of the last successful prediction.
	LastMasks []Mask
}

// SessionLoader resolves and decodes the image behind key and binds a new
// session to it.
type SessionLoader func(ctx context.Context, key string) (*CacheEntry, error)

// SessionCache is a strict LRU of image bound sessions. It does no locking of
// its own, callers serialize access together with inference.
type SessionCache struct {
	maxSize int
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	load    SessionLoader
}

func NewSessionCache(maxSize int, load SessionLoader) *SessionCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &SessionCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element, maxSize),
		order:   list.New(),
		load:    load,
	}
}

// GetOrCreate returns the entry for key, loading it on a miss. A failed load
// leaves the cache untouched.
func (c *SessionCache) GetOrCreate(ctx context.Context, key string) (*CacheEntry, error) {
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*CacheEntry), nil
	}

	entry, err := c.load(ctx, key)
	if err != nil {
		return nil, err
	}
	entry.Key = key

	if c.order.Len() >= c.maxSize {
		c.evictElement(c.order.Back())
	}

	c.entries[key] = c.order.PushFront(entry)
	return entry, nil
}

func (c *SessionCache) evictElement(elem *list.Element) {
	entry := c.order.Remove(elem).(*CacheEntry)
	delete(c.entries, entry.Key)
	if entry.Session != nil {
		entry.Session.Release()
	}
	slog.Debug("evicted sam session", "key", entry.Key)
}

// Evict drops key and releases its session. It reports whether key was cached.
func (c *SessionCache) Evict(key string) bool {
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.evictElement(elem)
	return true
}

func (c *SessionCache) Len() int {
	return c.order.Len()
}

// Keys lists cached keys from least to most recently used.
func (c *SessionCache) Keys() []string {
	keys := make([]string, 0, c.order.Len())
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		keys = append(keys, elem.Value.(*CacheEntry).Key)
	}
	return keys
}

func (c *SessionCache) Close() {
	for c.order.Len() > 0 {
		c.evictElement(c.order.Back())
	}
}
