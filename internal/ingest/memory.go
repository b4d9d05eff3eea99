package ingest

import (
	"context"
	"sync"
)

// defaultMaxSeen bounds the fallback cache; at roughly one fragment per
// player per day this covers months of chat history.
const defaultMaxSeen = 50000

// MemoryCache is the fallback when no Redis is configured. Seen keys are
// held in two map generations: once the current generation fills, it becomes
// the previous one and the oldest generation is discarded wholesale.
type MemoryCache struct {
	mu      sync.Mutex
	maxSize int
	cur     map[string]struct{}
	prev    map[string]struct{}
	cursors map[int]string
}

func NewMemory(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = defaultMaxSeen
	}
	return &MemoryCache{
		maxSize: maxSize,
		cur:     make(map[string]struct{}, maxSize),
		prev:    map[string]struct{}{},
		cursors: map[int]string{},
	}
}

func (c *MemoryCache) SeenAndRecord(_ context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cur[id]; ok {
		return true
	}
	if _, ok := c.prev[id]; ok {
		return true
	}
	if len(c.cur) >= c.maxSize {
		c.prev = c.cur
		c.cur = make(map[string]struct{}, c.maxSize)
	}
	c.cur[id] = struct{}{}
	return false
}

func (c *MemoryCache) Unrecord(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cur, id)
	delete(c.prev, id)
}

// Size reports how many keys are currently remembered.
func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cur) + len(c.prev)
}

func (c *MemoryCache) Cursor(_ context.Context, leagueID int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors[leagueID], nil
}

func (c *MemoryCache) SetCursor(_ context.Context, leagueID int, cursor string) error {
	if cursor == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[leagueID] = cursor
	return nil
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = map[string]struct{}{}
	c.prev = map[string]struct{}{}
	return nil
}
