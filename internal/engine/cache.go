package engine

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Cache keeps a bounded number of open Sessions alive, keyed by the
// on-disk path they were opened from, so repeated calls against the same
// model don't pay the runtime's load cost every time. Entries age out
// after ttl of inactivity; when the cache is full the least-recently-used
// entry is evicted to make room, per spec.md §4.8's "age+weight eviction."
//
// This is intentionally a small stdlib LRU rather than a pack dependency:
// see DESIGN.md.
type Cache struct {
	mu       sync.Mutex
	eng      Engine
	ttl      time.Duration
	maxSize  int
	ll       *list.List // front: most recently used
	elements map[string]*list.Element
}

type cacheEntry struct {
	path     string
	session  Session
	lastUsed time.Time
}

func NewCache(eng Engine, ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		eng:      eng,
		ttl:      ttl,
		maxSize:  maxSize,
		ll:       list.New(),
		elements: make(map[string]*list.Element),
	}
}

// Get returns a live session for path, opening it via the underlying
// Engine on a cache miss or after its entry has expired.
func (c *Cache) Get(ctx context.Context, path string) (Session, error) {
	c.mu.Lock()
	if el, ok := c.elements[path]; ok {
		entry := el.Value.(*cacheEntry)
		if time.Since(entry.lastUsed) <= c.ttl {
			entry.lastUsed = time.Now()
			c.ll.MoveToFront(el)
			sess := entry.session
			c.mu.Unlock()
			return sess, nil
		}
		c.removeElement(el)
	}
	c.mu.Unlock()

	sess, err := c.eng.OpenSession(ctx, path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elements[path]; ok {
		// Lost a race to open the same path twice; keep the winner that's
		// already installed and close the one we just opened.
		c.ll.MoveToFront(el)
		dup := sess
		c.mu.Unlock()
		_ = dup.Close()
		c.mu.Lock()
		return el.Value.(*cacheEntry).session, nil
	}
	entry := &cacheEntry{path: path, session: sess, lastUsed: time.Now()}
	el := c.ll.PushFront(entry)
	c.elements[path] = el
	c.evictIfNeeded()
	return sess, nil
}

// evictIfNeeded drops least-recently-used entries until the cache is back
// within maxSize. Caller must hold c.mu.
func (c *Cache) evictIfNeeded() {
	for c.ll.Len() > c.maxSize {
		back := c.ll.Back()
		if back == nil {
			return
		}
		c.removeElement(back)
	}
}

// removeElement evicts one entry and closes its session. Caller must hold
// c.mu.
func (c *Cache) removeElement(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	c.ll.Remove(el)
	delete(c.elements, entry.path)
	_ = entry.session.Close()
}

// Invalidate evicts path's cached session, if any, closing it. Used when a
// package is deactivated or removed and its model file may no longer be
// valid to run.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elements[path]; ok {
		c.removeElement(el)
	}
}

// Close evicts and closes every cached session.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.ll.Len() > 0 {
		c.removeElement(c.ll.Back())
	}
}
