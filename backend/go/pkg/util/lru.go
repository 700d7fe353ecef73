package util

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheConfig 用于配置LRU缓存的行为。
type CacheConfig struct {
	// Capacity 是缓存的最大元素数量，必须大于0。
	Capacity int
	// TTL 是元素的存活时间。如果为0，则元素永不过期。
	TTL time.Duration
	// Now 返回当前时间，为空时使用 time.Now。
	Now func() time.Time
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	expiration time.Time
}

// LRUCache 是一个支持泛型、线程安全、带过期时间的LRU缓存。
type LRUCache[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
	ll       *list.List
	cache    map[K]*list.Element
	lock     sync.Mutex
}

// NewLRU 使用指定的配置创建一个LRU缓存实例。
func NewLRU[K comparable, V any](cfg CacheConfig) (*LRUCache[K, V], error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("LRU capacity must be positive, got %d", cfg.Capacity)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &LRUCache[K, V]{
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		now:      now,
		ll:       list.New(),
		cache:    make(map[K]*list.Element),
	}, nil
}

// Get 根据键获取一个值，过期的元素会被惰性删除。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var zero V
	element, ok := c.cache[key]
	if !ok {
		return zero, false
	}
	e := element.Value.(*entry[K, V])
	if c.ttl > 0 && !c.now().Before(e.expiration) {
		c.removeElement(element)
		return zero, false
	}
	c.ll.MoveToFront(element)
	return e.value, true
}

// Put 添加或更新一个键值对，超出容量时淘汰最久未使用的元素。
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var expiration time.Time
	if c.ttl > 0 {
		expiration = c.now().Add(c.ttl)
	}
	if element, ok := c.cache[key]; ok {
		e := element.Value.(*entry[K, V])
		e.value = value
		e.expiration = expiration
		c.ll.MoveToFront(element)
		return
	}
	c.cache[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value, expiration: expiration})
	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Back())
	}
}

// Delete 删除一个键。
func (c *LRUCache[K, V]) Delete(key K) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if element, ok := c.cache[key]; ok {
		c.removeElement(element)
	}
}

// Len 返回当前缓存中的条目数量（包含尚未被惰性删除的过期条目）。
func (c *LRUCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ll.Len()
}

// Values 按从新到旧的顺序返回未过期的值，不改变使用顺序。
func (c *LRUCache[K, V]) Values() []V {
	c.lock.Lock()
	defer c.lock.Unlock()
	now := c.now()
	out := make([]V, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[K, V])
		if c.ttl > 0 && !now.Before(e.expiration) {
			continue
		}
		out = append(out, e.value)
	}
	return out
}

// removeElement 假设已持有锁。
func (c *LRUCache[K, V]) removeElement(e *list.Element) {
	c.ll.Remove(e)
	delete(c.cache, e.Value.(*entry[K, V]).key)
}
