package auth

import (
	"container/list"
	"sync"
	"time"
)

// DefaultReplayCacheSize bounds the number of remembered token ids.
const DefaultReplayCacheSize = 50000

type seenToken struct {
	id  string
	exp time.Time
}

// replayCache remembers the ids of accepted tokens until they expire. Once
// full it forgets the oldest id; maxSize <= 0 never forgets early.
type replayCache struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front is oldest
	maxSize int
}

func newReplayCache(maxSize int) *replayCache {
	return &replayCache{
		maxSize: maxSize,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
}

// claim records id as used until exp. It reports false when id is already
// held by an unexpired token.
func (c *replayCache) claim(id string, exp, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expire(now)
	if _, ok := c.seen[id]; ok {
		return false
	}
	if c.maxSize > 0 && c.order.Len() >= c.maxSize {
		c.drop(c.order.Front())
	}
	c.seen[id] = c.order.PushBack(seenToken{id: id, exp: exp})
	return true
}

// expire drops expired ids from the front. Token lifetimes are capped, so
// insertion order is close to expiry order; a straggler is dropped later.
func (c *replayCache) expire(now time.Time) {
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if el.Value.(seenToken).exp.After(now) {
			return
		}
		c.drop(el)
	}
}

func (c *replayCache) drop(el *list.Element) {
	c.order.Remove(el)
	delete(c.seen, el.Value.(seenToken).id)
}

func (c *replayCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
