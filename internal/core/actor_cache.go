package core

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// actorCache holds recently resolved actors so authenticated requests do
// not hit the user table every time. Entries are dropped on permission
// changes and deletions; the TTL bounds staleness for other writers.
//
// A lookup that raced with an invalidation must not repopulate the cache
// with what it read before the change, so fills carry the generation
// observed before the store read and are dropped once it has moved on.
type actorCache struct {
	lru *expirable.LRU[string, Actor]

	mu  sync.Mutex
	gen uint64
}

func newActorCache(size int, ttl time.Duration) *actorCache {
	if size <= 0 {
		size = 1024
	}
	return &actorCache{lru: expirable.NewLRU[string, Actor](size, nil, ttl)}
}

func (c *actorCache) get(userID string) (Actor, bool) {
	a, ok := c.lru.Get(userID)
	if ok {
		actorCacheLookups.WithLabelValues("hit").Inc()
	} else {
		actorCacheLookups.WithLabelValues("miss").Inc()
	}
	return a, ok
}

// generation is taken before reading the user from the store.
func (c *actorCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// put caches a unless an invalidation happened since gen was taken.
func (c *actorCache) put(a Actor, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.lru.Add(a.UserID, a)
	return true
}

func (c *actorCache) invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Remove(userID)
}
