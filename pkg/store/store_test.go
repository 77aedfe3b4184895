package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaaliciA1990/Distributed-Systems/pkg"
)

func TestStoreSetGet(t *testing.T) {
	s := New(0)

	require.NoError(t, s.Set("alpha", []byte("one")))

	got, err := s.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	// Overwrite replaces the value.
	require.NoError(t, s.Set("alpha", []byte("two")))
	got, err = s.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, pkg.ErrKeyNotFound)
}

func TestStoreDefensiveCopies(t *testing.T) {
	s := New(4)

	value := []byte("mutable")
	require.NoError(t, s.Set("k", value))
	value[0] = 'X'

	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), got)

	// Mutating a returned value must not affect the stored copy.
	got[0] = 'Y'
	again, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), again)
}

func TestStoreDelete(t *testing.T) {
	s := New(4)

	require.NoError(t, s.Set("k", []byte("v")))
	require.NoError(t, s.Delete("k"))

	_, err := s.Get("k")
	assert.ErrorIs(t, err, pkg.ErrKeyNotFound)

	// Deleting an absent key is fine.
	assert.NoError(t, s.Delete("k"))
}

func TestStoreLenAndKeys(t *testing.T) {
	s := New(8)

	want := map[string]bool{}
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("key-%d", i)
		require.NoError(t, s.Set(key, []byte{byte(i)}))
		want[key] = true
	}

	assert.Equal(t, 50, s.Len())

	keys := s.Keys()
	assert.Len(t, keys, 50)
	for _, k := range keys {
		assert.True(t, want[k], "unexpected key %q", k)
	}
}

func TestStoreStats(t *testing.T) {
	s := New(4)

	require.NoError(t, s.Set("a", []byte("1")))
	_, _ = s.Get("a")
	_, _ = s.Get("a")
	_, _ = s.Get("nope")

	stats := s.GetStats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestStoreClear(t *testing.T) {
	s := New(4)
	require.NoError(t, s.Set("a", []byte("1")))
	require.NoError(t, s.Clear())

	assert.Equal(t, 0, s.Len())

	// Still usable after Clear.
	require.NoError(t, s.Set("b", []byte("2")))
	got, err := s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
}

func TestStoreClose(t *testing.T) {
	s := New(4)
	require.NoError(t, s.Set("a", []byte("1")))
	require.NoError(t, s.Close())

	_, err := s.Get("a")
	assert.ErrorIs(t, err, pkg.ErrStorageClosed)
	assert.ErrorIs(t, s.Set("b", []byte("2")), pkg.ErrStorageClosed)
	assert.ErrorIs(t, s.Delete("a"), pkg.ErrStorageClosed)
	assert.ErrorIs(t, s.Clear(), pkg.ErrStorageClosed)

	// Idempotent.
	assert.NoError(t, s.Close())
}

func TestStoreShardRounding(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{requested: -1, want: defaultShardCount},
		{requested: 0, want: defaultShardCount},
		{requested: 1, want: 1},
		{requested: 3, want: 4},
		{requested: 16, want: 16},
		{requested: 17, want: 32},
	}

	for _, tt := range tests {
		s := New(tt.requested)
		assert.Len(t, s.shards, tt.want, "requested %d shards", tt.requested)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New(16)
	const goroutines = 16
	const perGoroutine = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i)
				if err := s.Set(key, []byte(key)); err != nil {
					t.Error(err)
					return
				}
				got, err := s.Get(key)
				if err != nil {
					t.Error(err)
					return
				}
				if string(got) != key {
					t.Errorf("got %q, want %q", got, key)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, goroutines*perGoroutine, s.Len())
}
