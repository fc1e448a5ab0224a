// Package cache holds verification result caches placed in front of the auth id store.
package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// shardCount determines the number of internal shards to reduce lock contention.
const shardCount = 64

type entry struct {
	valid     bool
	expiresAt time.Time
}

type shard struct {
	mu    sync.RWMutex
	items map[string]entry
}

// Memory is a sharded, thread-safe, in-process verification cache with a fixed TTL.
type Memory struct {
	shards [shardCount]*shard
	ttl    time.Duration
	stop   chan struct{}
	once   sync.Once
}

// NewMemory creates the cache and starts the background expiry loop; call Close to stop it.
func NewMemory(ttl time.Duration) *Memory {
	c := &Memory{ttl: ttl, stop: make(chan struct{})}
	for i := range c.shards {
		c.shards[i] = &shard{items: make(map[string]entry)}
	}
	go c.cleanupLoop(cleanupInterval(ttl))
	return c
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > 5*time.Minute {
		return 5 * time.Minute
	}
	return ttl
}

func (c *Memory) getShard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key)) // #nosec G104
	return c.shards[h.Sum32()%shardCount]
}

func (c *Memory) Get(_ context.Context, id string) (bool, bool) {
	s := c.getShard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, found := s.items[id]
	if !found || time.Now().After(item.expiresAt) {
		return false, false
	}
	return item.valid, true
}

func (c *Memory) Set(_ context.Context, id string, valid bool) {
	s := c.getShard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[id] = entry{valid: valid, expiresAt: time.Now().Add(c.ttl)}
}

func (c *Memory) Invalidate(_ context.Context, id string) error {
	s := c.getShard(id)
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}

func (c *Memory) Ping(_ context.Context) error { return nil }

// Follow evicts every id received on invalidations until ctx is done or the channel closes.
func (c *Memory) Follow(ctx context.Context, invalidations <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-invalidations:
			if !ok {
				return
			}
			_ = c.Invalidate(ctx, id)
		}
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *Memory) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Cleanup deletes expired entries from all shards.
func (c *Memory) Cleanup() {
	now := time.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if now.After(v.expiresAt) {
				delete(s.items, k)
			}
		}
		s.mu.Unlock()
	}
}

func (c *Memory) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Memory) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}
