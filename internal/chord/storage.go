package chord

import (
	"math/big"
	"sync"

	"github.com/emirpasic/gods/trees/avltree"

	"github.com/gaaliciA1990/Distributed-Systems/pkg/ring"
	"github.com/gaaliciA1990/Distributed-Systems/pkg/store"
)

// Storage is the node-local key store plus a ring-ordered index over the
// key identifiers. The index makes ownership-range extraction during a
// handoff proportional to the keys involved instead of a full scan.
//
// Identifiers are indexed by their fixed-width big-endian encoding, so
// the tree's lexicographic order matches numeric ring order.
type Storage struct {
	mu    sync.Mutex
	data  *store.Store
	index *avltree.Tree // encoded id -> []string keys with that id
}

// NewStorage creates storage backed by a sharded store.
func NewStorage(shards int) *Storage {
	return &Storage{
		data:  store.New(shards),
		index: avltree.NewWithStringComparator(),
	}
}

// Get returns the value for key, or pkg.ErrKeyNotFound.
func (s *Storage) Get(key string) ([]byte, error) {
	return s.data.Get(key)
}

// Put stores key=value and records the key's ring position in the index.
func (s *Storage) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.data.Set(key, value); err != nil {
		return err
	}
	s.indexAdd(key)
	return nil
}

// ImportKeys stores a batch received from a handoff.
func (s *Storage) ImportKeys(keys map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range keys {
		if err := s.data.Set(key, value); err != nil {
			return err
		}
		s.indexAdd(key)
	}
	return nil
}

// ExtractRange removes and returns every key whose identifier falls in
// (start, end]. It is the donor side of a handoff.
func (s *Storage) ExtractRange(start, end *big.Int) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	it := s.index.Iterator()
	for it.Next() {
		encoded := it.Key().(string)
		if ring.InRange(ring.Decode([]byte(encoded)), start, end) {
			ids = append(ids, encoded)
		}
	}

	out := make(map[string][]byte)
	for _, encoded := range ids {
		value, ok := s.index.Get(encoded)
		if !ok {
			continue
		}
		for _, key := range value.([]string) {
			v, err := s.data.Get(key)
			if err != nil {
				return nil, err
			}
			out[key] = v
			if err := s.data.Delete(key); err != nil {
				return nil, err
			}
		}
		s.index.Remove(encoded)
	}
	return out, nil
}

// KeysInRange returns the keys whose identifiers fall in (start, end]
// without removing them.
func (s *Storage) KeysInRange(start, end *big.Int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	it := s.index.Iterator()
	for it.Next() {
		encoded := it.Key().(string)
		if ring.InRange(ring.Decode([]byte(encoded)), start, end) {
			keys = append(keys, it.Value().([]string)...)
		}
	}
	return keys
}

// KeyCount returns the number of stored keys.
func (s *Storage) KeyCount() int {
	return s.data.Len()
}

// Keys returns a snapshot of all stored keys.
func (s *Storage) Keys() []string {
	return s.data.Keys()
}

// Stats exposes the underlying store counters.
func (s *Storage) Stats() store.Stats {
	return s.data.GetStats()
}

// Close shuts the storage down.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Clear()
	return s.data.Close()
}

// indexAdd records key under its ring identifier. Caller holds mu.
func (s *Storage) indexAdd(key string) {
	encoded := string(ring.Encode(ring.HashString(key)))
	if existing, ok := s.index.Get(encoded); ok {
		keys := existing.([]string)
		for _, k := range keys {
			if k == key {
				return
			}
		}
		s.index.Put(encoded, append(keys, key))
		return
	}
	s.index.Put(encoded, []string{key})
}
