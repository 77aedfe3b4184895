// Package store provides a sharded in-memory byte store. Shards are
// selected by xxhash so unrelated keys contend on different locks, which
// keeps concurrent reads from blocking each other under load.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/gaaliciA1990/Distributed-Systems/pkg"
)

const defaultShardCount = 16

type shard struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// Store is a thread-safe map from string keys to byte values.
type Store struct {
	shards []*shard
	mask   uint64
	closed atomic.Bool

	// Metrics for monitoring
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// New creates a store with shardCount shards. shardCount is rounded up to
// the next power of two; zero or negative selects the default.
func New(shardCount int) *Store {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}

	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{data: make(map[string][]byte)}
	}

	return &Store{
		shards: shards,
		mask:   uint64(n - 1),
	}
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)&s.mask]
}

// Get returns a copy of the value stored under key, or ErrKeyNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, pkg.ErrStorageClosed
	}

	sh := s.shardFor(key)
	sh.mu.RLock()
	value, ok := sh.data[key]
	sh.mu.RUnlock()

	if !ok {
		s.misses.Add(1)
		return nil, pkg.ErrKeyNotFound
	}

	s.hits.Add(1)
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores a copy of value under key, replacing any previous value.
func (s *Store) Set(key string, value []byte) error {
	if s.closed.Load() {
		return pkg.ErrStorageClosed
	}

	cp := make([]byte, len(value))
	copy(cp, value)

	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.data[key] = cp
	sh.mu.Unlock()

	s.sets.Add(1)
	return nil
}

// Delete removes key. Absent keys are not an error.
func (s *Store) Delete(key string) error {
	if s.closed.Load() {
		return pkg.ErrStorageClosed
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.data, key)
	sh.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.data)
		sh.mu.RUnlock()
	}
	return total
}

// Keys returns a snapshot of all stored keys.
func (s *Store) Keys() []string {
	keys := make([]string, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.data {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
	}
	return keys
}

// Stats reports store counters.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
	Sets    int64
}

// GetStats returns current counters.
func (s *Store) GetStats() Stats {
	return Stats{
		Entries: s.Len(),
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Sets:    s.sets.Load(),
	}
}

// Clear removes all entries but keeps the store usable.
func (s *Store) Clear() error {
	if s.closed.Load() {
		return pkg.ErrStorageClosed
	}
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.data = make(map[string][]byte)
		sh.mu.Unlock()
	}
	return nil
}

// Close marks the store unusable. Idempotent.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.data = nil
		sh.mu.Unlock()
	}
	return nil
}
