package limiter

import (
	"container/list"
	"sync"

	"github.com/tobenna/request-limiter/pkg/limits"
)

const parseCacheSize = 512

type cacheEntry struct {
	input string
	specs []limits.Limit
}

// parseCache memoizes ParseMany results for dynamic limit strings. Parsing
// is pure, so the same input always maps to the same specs; an LRU bound
// keeps adversarial dynamic values from growing the cache without limit.
type parseCache struct {
	mu    sync.Mutex
	max   int
	items map[string]*list.Element
	order *list.List
}

func newParseCache(max int) *parseCache {
	if max <= 0 {
		max = parseCacheSize
	}
	return &parseCache{
		max:   max,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

func (c *parseCache) parse(s string) ([]limits.Limit, error) {
	c.mu.Lock()
	if elem, ok := c.items[s]; ok {
		c.order.MoveToFront(elem)
		specs := elem.Value.(*cacheEntry).specs
		c.mu.Unlock()
		return specs, nil
	}
	c.mu.Unlock()

	specs, err := limits.ParseMany(s)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[s]; !ok {
		c.items[s] = c.order.PushFront(&cacheEntry{input: s, specs: specs})
		for len(c.items) > c.max {
			back := c.order.Back()
			if back == nil {
				break
			}
			delete(c.items, back.Value.(*cacheEntry).input)
			c.order.Remove(back)
		}
	}
	return specs, nil
}
