package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/dispatch/internal/cache"
	"github.com/gogpu/dispatch/internal/parallel"
	"github.com/gogpu/dispatch/lease"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/rootsig"
	"github.com/gogpu/dispatch/shader"
)

// Stats reports cache activity.
type Stats struct {
	Len       int
	Hits      uint64
	Misses    uint64
	Failures  uint64
	Evictions uint64
}

// Cache memoizes pipeline states for one device, keyed by shader identity.
//
// Cache is safe for concurrent use. For a given shader identity the state is
// created once; failed creations are not cached.
type Cache struct {
	dev    native.Device
	states *cache.Map[uint64, *State]
	closed atomic.Bool
}

// NewCache creates a cache for dev. capacity bounds entries per shard and
// 0 means unbounded. Evicted states are released; states still leased by
// recorded commands stay alive until those leases are released.
func NewCache(dev native.Device, capacity int) *Cache {
	c := &Cache{dev: dev}
	c.states = cache.New[uint64, *State](capacity, cache.Uint64Hasher, func(id uint64, st *State) {
		slogger().Debug("pipeline: evict", "device", dev.Label(), "shader", fmt.Sprintf("%016x", id))
		st.Release()
	})
	return c
}

// Device returns the cache's device.
func (c *Cache) Device() native.Device { return c.dev }

// GetOrCreate returns the pipeline state for s, creating its root signature
// and pipeline on first use.
func (c *Cache) GetOrCreate(s *shader.Shader) (*State, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}
	if s == nil {
		return nil, rootsig.ErrNilShader
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	id := s.ID()
	st, created, err := c.states.GetOrCreate(id, func() (*State, error) {
		slogger().Debug("pipeline: cache miss", "device", c.dev.Label(), "shader", s.String())
		sig, err := rootsig.ForShader(c.dev, s)
		if err != nil {
			return nil, err
		}
		st, err := Create(c.dev, sig, s.Bytecode)
		if err != nil {
			sig.Release()
			return nil, err
		}
		st.shader = s
		st.ownsSig = true
		return st, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %s: %w", s, err)
	}
	if created {
		slogger().Info("pipeline: created",
			"device", c.dev.Label(),
			"shader", s.String(),
			"params", st.sig.Parameters())
	}
	return st, nil
}

// acquireAttempts bounds how often Acquire looks a state up again after it
// was evicted between lookup and lease.
const acquireAttempts = 4

// Acquire is GetOrCreate followed by a lease on the returned state. The
// lease keeps the native pipeline alive after the state is evicted or the
// cache is closed; release it once the commands referencing the state have
// executed.
func (c *Cache) Acquire(s *shader.Shader) (*State, *lease.Lease, error) {
	var err error
	for range acquireAttempts {
		var st *State
		st, err = c.GetOrCreate(s)
		if err != nil {
			return nil, nil, err
		}
		var l *lease.Lease
		l, err = st.Acquire()
		if err == nil {
			return st, l, nil
		}
		if !errors.Is(err, lease.ErrDisposed) {
			return nil, nil, err
		}
		// Evicted after lookup; the next lookup creates a fresh state.
	}
	return nil, nil, fmt.Errorf("pipeline: %s: %w", s, err)
}

// Warm creates the pipeline states of shaders ahead of their first
// dispatch, compiling up to workers at a time (GOMAXPROCS if workers <= 0).
// Every shader is attempted; the error joins the individual failures.
func (c *Cache) Warm(ctx context.Context, workers int, shaders ...*shader.Shader) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	pool := parallel.NewPool(min(max(workers, 0), len(shaders)))
	defer pool.Close()

	tasks := make([]parallel.Task, len(shaders))
	for i, s := range shaders {
		tasks[i] = func(context.Context) error {
			_, err := c.GetOrCreate(s)
			return err
		}
	}
	err := pool.Run(ctx, tasks)
	slogger().Debug("pipeline: warmed", "device", c.dev.Label(), "shaders", len(shaders), "cached", c.Len())
	return err
}

// Len returns the number of cached states.
func (c *Cache) Len() int { return c.states.Len() }

// Stats returns cache counters.
func (c *Cache) Stats() Stats {
	st := c.states.Stats()
	return Stats{
		Len:       st.Len,
		Hits:      st.Hits,
		Misses:    st.Misses,
		Failures:  st.Failures,
		Evictions: st.Evictions,
	}
}

// Close releases every cached state; leased states are destroyed when their
// last lease is released. Further GetOrCreate calls fail with
// ErrCacheClosed. Close is idempotent.
func (c *Cache) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	n := 0
	c.states.Drain(func(_ uint64, st *State) {
		st.Release()
		n++
	})
	slogger().Debug("pipeline: cache closed", "device", c.dev.Label(), "released", n)
}

var (
	registryMu sync.Mutex
	registry   = make(map[native.Device]*Cache)
)

// CacheFor returns the process-wide cache for dev, creating it on first use.
// Native objects are device scoped, so caches never cross devices.
func CacheFor(dev native.Device) *Cache {
	registryMu.Lock()
	defer registryMu.Unlock()

	if c, ok := registry[dev]; ok {
		return c
	}
	c := NewCache(dev, 0)
	registry[dev] = c
	return c
}

// Forget closes and drops the registered cache for dev. Call it before
// destroying the device.
func Forget(dev native.Device) {
	registryMu.Lock()
	c, ok := registry[dev]
	delete(registry, dev)
	registryMu.Unlock()

	if ok {
		c.Close()
	}
}
