package chord

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaaliciA1990/Distributed-Systems/pkg/ring"
)

func TestNodeAddress(t *testing.T) {
	t.Run("id derived from endpoint", func(t *testing.T) {
		a := NewNodeAddress("127.0.0.1", 7000)
		require.NotNil(t, a.ID)
		assert.Equal(t, ring.HashAddress("127.0.0.1", 7000), a.ID)
		assert.Equal(t, "127.0.0.1:7000", a.Address())
	})

	t.Run("equals compares identifiers", func(t *testing.T) {
		a := NewNodeAddress("127.0.0.1", 7000)
		same := NewNodeAddress("127.0.0.1", 7000)
		other := NewNodeAddress("127.0.0.1", 7001)

		assert.True(t, a.Equals(same))
		assert.False(t, a.Equals(other))
		assert.False(t, a.Equals(nil))

		var nilAddr *NodeAddress
		assert.True(t, nilAddr.Equals(nil))
	})

	t.Run("copy is deep", func(t *testing.T) {
		a := NewNodeAddress("127.0.0.1", 7000)
		cp := a.Copy()

		cp.ID.Add(cp.ID, big.NewInt(1))
		cp.Port = 9999

		assert.Equal(t, ring.HashAddress("127.0.0.1", 7000), a.ID)
		assert.Equal(t, 7000, a.Port)
	})

	t.Run("nil handling", func(t *testing.T) {
		var a *NodeAddress
		assert.True(t, a.IsNil())
		assert.Nil(t, a.Copy())
		assert.Equal(t, "<nil>", a.String())
		assert.True(t, (&NodeAddress{}).IsNil())
	})

	t.Run("string shortens the id", func(t *testing.T) {
		a := NewNodeAddress("127.0.0.1", 7000)
		assert.Contains(t, a.String(), "@127.0.0.1:7000")
		assert.LessOrEqual(t, len(a.String()), 8+1+len("127.0.0.1:7000"))
	})
}

func TestFingerEntry(t *testing.T) {
	ownerID := ring.HashString("finger-owner")

	t.Run("start is owner plus power of two", func(t *testing.T) {
		for _, i := range []int{0, 1, 63, ring.M - 1} {
			entry := NewFingerEntry(ownerID, i)
			assert.Equal(t, ring.AddPowerOfTwo(ownerID, i), entry.Start)
			assert.True(t, entry.IsNil())
		}
	})

	t.Run("copy is deep", func(t *testing.T) {
		entry := NewFingerEntry(ownerID, 3)
		entry.Node = NewNodeAddress("127.0.0.1", 7000)

		cp := entry.Copy()
		cp.Start.Add(cp.Start, big.NewInt(1))
		cp.Node.Port = 1

		assert.Equal(t, ring.AddPowerOfTwo(ownerID, 3), entry.Start)
		assert.Equal(t, 7000, entry.Node.Port)
	})

	t.Run("nil handling", func(t *testing.T) {
		var entry *FingerEntry
		assert.True(t, entry.IsNil())
		assert.Nil(t, entry.Copy())
	})
}
