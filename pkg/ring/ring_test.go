package ring

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		check func(*testing.T, *big.Int)
	}{
		{
			name: "deterministic",
			data: []byte("alpha"),
			check: func(t *testing.T, id *big.Int) {
				assert.Equal(t, id, Hash([]byte("alpha")))
			},
		},
		{
			name: "distinct inputs diverge",
			data: []byte("alpha"),
			check: func(t *testing.T, id *big.Int) {
				assert.NotEqual(t, id, Hash([]byte("beta")))
			},
		},
		{
			name: "empty input",
			data: nil,
			check: func(t *testing.T, id *big.Int) {
				assert.True(t, IsValid(id))
			},
		},
		{
			name: "within ring",
			data: []byte("gamma"),
			check: func(t *testing.T, id *big.Int) {
				assert.True(t, IsValid(id))
				assert.True(t, id.Cmp(RingSize()) < 0)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Hash(tt.data)
			require.NotNil(t, id)
			tt.check(t, id)
		})
	}
}

func TestHashAddress(t *testing.T) {
	id := HashAddress("127.0.0.1", 7000)
	require.NotNil(t, id)
	assert.True(t, IsValid(id))

	assert.Equal(t, id, HashString("127.0.0.1:7000"))
	assert.NotEqual(t, id, HashAddress("127.0.0.1", 7001))
	assert.NotEqual(t, id, HashAddress("10.0.0.1", 7000))
}

func TestInRange(t *testing.T) {
	tests := []struct {
		name     string
		id       int64
		start    int64
		end      int64
		expected bool
	}{
		{name: "inside plain interval", id: 5, start: 3, end: 7, expected: true},
		{name: "equals start is excluded", id: 3, start: 3, end: 7, expected: false},
		{name: "equals end is included", id: 7, start: 3, end: 7, expected: true},
		{name: "just after start", id: 4, start: 3, end: 7, expected: true},
		{name: "just before start", id: 2, start: 3, end: 7, expected: false},
		{name: "just past end", id: 8, start: 3, end: 7, expected: false},
		{name: "wraparound low side", id: 1, start: 8, end: 3, expected: true},
		{name: "wraparound high side", id: 9, start: 8, end: 3, expected: true},
		{name: "wraparound end included", id: 3, start: 8, end: 3, expected: true},
		{name: "wraparound start excluded", id: 8, start: 8, end: 3, expected: false},
		{name: "wraparound outside gap", id: 5, start: 8, end: 3, expected: false},
		{name: "degenerate full ring", id: 4, start: 6, end: 6, expected: true},
		{name: "degenerate includes its bound", id: 6, start: 6, end: 6, expected: true},
		{name: "zero inside wrap", id: 0, start: 8, end: 3, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InRange(big.NewInt(tt.id), big.NewInt(tt.start), big.NewInt(tt.end))
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("nil arguments", func(t *testing.T) {
		assert.False(t, InRange(nil, big.NewInt(1), big.NewInt(2)))
		assert.False(t, InRange(big.NewInt(1), nil, big.NewInt(2)))
		assert.False(t, InRange(big.NewInt(1), big.NewInt(2), nil))
	})
}

func TestBetween(t *testing.T) {
	tests := []struct {
		name     string
		id       int64
		start    int64
		end      int64
		expected bool
	}{
		{name: "inside plain interval", id: 5, start: 3, end: 7, expected: true},
		{name: "equals start excluded", id: 3, start: 3, end: 7, expected: false},
		{name: "equals end excluded", id: 7, start: 3, end: 7, expected: false},
		{name: "wraparound inside", id: 1, start: 8, end: 3, expected: true},
		{name: "wraparound end excluded", id: 3, start: 8, end: 3, expected: false},
		{name: "degenerate full ring", id: 2, start: 6, end: 6, expected: true},
		{name: "degenerate excludes start", id: 6, start: 6, end: 6, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Between(big.NewInt(tt.id), big.NewInt(tt.start), big.NewInt(tt.end))
			assert.Equal(t, tt.expected, got)
		})
	}
}

// Interval membership must be a property of circular order alone: rotating
// every operand by the same offset, including offsets that force wraparound,
// must never change the answer.
func TestIntervalRotationInvariance(t *testing.T) {
	max := MaxID()
	samples := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(2),
		big.NewInt(1000),
		new(big.Int).Rsh(RingSize(), 1),            // midpoint
		new(big.Int).Sub(max, big.NewInt(1)),       // max-1
		new(big.Int).Set(max),                      // max
		HashString("rotation-sample-a"),
		HashString("rotation-sample-b"),
	}
	offsets := []*big.Int{
		big.NewInt(1),
		big.NewInt(12345),
		new(big.Int).Rsh(RingSize(), 1),
		new(big.Int).Sub(max, big.NewInt(7)), // pushes most samples across zero
	}

	rotate := func(x, off *big.Int) *big.Int {
		return Normalize(new(big.Int).Add(x, off))
	}

	for _, id := range samples {
		for _, start := range samples {
			for _, end := range samples {
				inBase := InRange(id, start, end)
				btBase := Between(id, start, end)
				for _, off := range offsets {
					rid, rs, re := rotate(id, off), rotate(start, off), rotate(end, off)
					require.Equal(t, inBase, InRange(rid, rs, re),
						"InRange not rotation invariant: id=%v start=%v end=%v off=%v", id, start, end, off)
					require.Equal(t, btBase, Between(rid, rs, re),
						"Between not rotation invariant: id=%v start=%v end=%v off=%v", id, start, end, off)
				}
			}
		}
	}
}

func TestAddPowerOfTwo(t *testing.T) {
	t.Run("plain addition", func(t *testing.T) {
		got := AddPowerOfTwo(big.NewInt(10), 3)
		assert.Equal(t, big.NewInt(18), got)
	})

	t.Run("wraps at ring size", func(t *testing.T) {
		got := AddPowerOfTwo(MaxID(), 0)
		assert.Equal(t, int64(0), got.Int64())
	})

	t.Run("largest finger offset", func(t *testing.T) {
		got := AddPowerOfTwo(big.NewInt(0), M-1)
		assert.Equal(t, new(big.Int).Rsh(RingSize(), 1), got)
	})

	t.Run("nil input", func(t *testing.T) {
		assert.Equal(t, int64(0), AddPowerOfTwo(nil, 5).Int64())
	})
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name  string
		start int64
		end   int64
		want  func() *big.Int
	}{
		{name: "forward", start: 3, end: 10, want: func() *big.Int { return big.NewInt(7) }},
		{name: "zero", start: 9, end: 9, want: func() *big.Int { return big.NewInt(0) }},
		{name: "wraparound", start: 10, end: 3, want: func() *big.Int {
			return new(big.Int).Sub(RingSize(), big.NewInt(7))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(big.NewInt(tt.start), big.NewInt(tt.end))
			assert.Equal(t, tt.want(), got)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	ids := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		MaxID(),
		HashString("encode-roundtrip"),
	}

	for _, id := range ids {
		enc := Encode(id)
		require.Len(t, enc, IDBytes)
		assert.Equal(t, 0, Decode(enc).Cmp(id))
	}

	t.Run("encoding preserves order", func(t *testing.T) {
		a, b := Encode(big.NewInt(500)), Encode(big.NewInt(501))
		assert.Equal(t, -1, bytes.Compare(a, b))
	})
}
