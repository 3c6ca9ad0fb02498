// Package cache provides the sharded get-or-create map behind pipeline
// memoization.
//
// Map spreads keys over 16 independently locked shards. GetOrCreate runs the
// create function at most once per key at a time, under the shard lock, and
// caches only successful results. An optional per-shard capacity evicts the
// least recently used entry through an eviction callback so owners can
// release native objects.
//
//	m := cache.New[uint64, *State](0, cache.Uint64Hasher, nil)
//	st, created, err := m.GetOrCreate(id, func() (*State, error) {
//	    return build(id)
//	})
package cache
