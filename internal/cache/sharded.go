package cache

import (
	"sync"
	"sync/atomic"
)

const (
	// ShardCount is the number of shards. Must be a power of 2.
	ShardCount = 16

	shardMask = ShardCount - 1
)

// Hasher computes the hash used for shard selection.
type Hasher[K any] func(K) uint64

// Uint64Hasher mixes a uint64 key so sequential keys spread across shards.
func Uint64Hasher(u uint64) uint64 {
	// splitmix64 finalizer
	u ^= u >> 30
	u *= 0xbf58476d1ce4e5b9
	u ^= u >> 27
	u *= 0x94d049bb133111eb
	u ^= u >> 31
	return u
}

// Stats is a snapshot of map counters.
type Stats struct {
	Len       int
	Capacity  int // per shard, 0 means unbounded
	Hits      uint64
	Misses    uint64
	Failures  uint64 // create calls that returned an error
	Evictions uint64
	HitRate   float64
}

// Map is a concurrent, sharded get-or-create map.
type Map[K comparable, V any] struct {
	shards   [ShardCount]*shard[K, V]
	hasher   Hasher[K]
	capacity int
	onEvict  func(K, V)

	hits      atomic.Uint64
	misses    atomic.Uint64
	failures  atomic.Uint64
	evictions atomic.Uint64
}

type shard[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]*entry[K, V]
	lru     recency[K]
}

type entry[K comparable, V any] struct {
	value V
	node  *node[K]
}

// New creates a map. A capacity <= 0 means shards never evict. onEvict may be
// nil; it is called without any shard lock held.
func New[K comparable, V any](capacity int, hasher Hasher[K], onEvict func(K, V)) *Map[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	m := &Map[K, V]{hasher: hasher, capacity: capacity, onEvict: onEvict}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{entries: make(map[K]*entry[K, V])}
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return m.shards[m.hasher(key)&shardMask]
}

// Get returns the cached value for key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		m.misses.Add(1)
		var zero V
		return zero, false
	}
	s.lru.touch(e.node)
	v := e.value
	s.mu.Unlock()
	m.hits.Add(1)
	return v, true
}

// GetOrCreate returns the cached value for key, or calls create and caches
// its result. created reports whether create ran. A failed create caches
// nothing, so a later call retries.
//
// create runs with the shard lock held; concurrent callers for keys in the
// same shard wait for it.
func (m *Map[K, V]) GetOrCreate(key K, create func() (V, error)) (v V, created bool, err error) {
	s := m.shardFor(key)

	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.lru.touch(e.node)
		v = e.value
		s.mu.Unlock()
		m.hits.Add(1)
		return v, false, nil
	}
	m.misses.Add(1)

	v, err = create()
	if err != nil {
		s.mu.Unlock()
		m.failures.Add(1)
		var zero V
		return zero, false, err
	}

	type victim struct {
		key   K
		value V
	}
	var evicted []victim
	for m.capacity > 0 && s.lru.len() >= m.capacity {
		k, ok := s.lru.popBack()
		if !ok {
			break
		}
		evicted = append(evicted, victim{key: k, value: s.entries[k].value})
		delete(s.entries, k)
	}
	s.entries[key] = &entry[K, V]{value: v, node: s.lru.pushFront(key)}
	s.mu.Unlock()

	for _, e := range evicted {
		m.evictions.Add(1)
		if m.onEvict != nil {
			m.onEvict(e.key, e.value)
		}
	}
	return v, true, nil
}

// Delete removes key and returns its value.
func (m *Map[K, V]) Delete(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	s.lru.remove(e.node)
	delete(s.entries, key)
	return e.value, true
}

// Drain removes every entry, calling fn for each after its shard is unlocked.
func (m *Map[K, V]) Drain(fn func(K, V)) {
	for _, s := range m.shards {
		s.mu.Lock()
		old := s.entries
		s.entries = make(map[K]*entry[K, V])
		s.lru.reset()
		s.mu.Unlock()

		if fn == nil {
			continue
		}
		for k, e := range old {
			fn(k, e.value)
		}
	}
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Stats returns a snapshot of the counters.
func (m *Map[K, V]) Stats() Stats {
	hits, misses := m.hits.Load(), m.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Len:       m.Len(),
		Capacity:  m.capacity,
		Hits:      hits,
		Misses:    misses,
		Failures:  m.failures.Load(),
		Evictions: m.evictions.Load(),
		HitRate:   rate,
	}
}
