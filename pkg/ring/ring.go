// Package ring implements the modular identifier space of the Chord ring:
// hashing of keys and node addresses onto the ring, and the circular
// interval arithmetic every ownership and routing decision is built on.
package ring

import (
	"crypto/sha256"
	"fmt"
	"math/big"
)

// M is the size of the identifier space in bits. Identifiers live in
// [0, 2^M); node ids and key ids share the same space.
const M = 160

// IDBytes is the width of an identifier in bytes, used for fixed-width
// big-endian encodings (wire format, ordered storage index).
const IDBytes = M / 8

var (
	// size is 2^M, the modulus of the ring.
	size = new(big.Int).Lsh(big.NewInt(1), M)

	zero = big.NewInt(0)
	one  = big.NewInt(1)
)

// Hash maps arbitrary data to an identifier by truncating its SHA-256
// digest to the first IDBytes bytes.
func Hash(data []byte) *big.Int {
	sum := sha256.Sum256(data)
	return new(big.Int).SetBytes(sum[:IDBytes])
}

// HashString maps a string key to an identifier.
func HashString(s string) *big.Int {
	return Hash([]byte(s))
}

// HashAddress maps a node's network address to its identifier.
func HashAddress(host string, port int) *big.Int {
	return HashString(fmt.Sprintf("%s:%d", host, port))
}

// InRange reports whether id lies in (start, end] walking clockwise.
// The interval wraps when end <= start numerically; when start == end it
// covers the whole ring, end included.
func InRange(id, start, end *big.Int) bool {
	if id == nil || start == nil || end == nil {
		return false
	}

	id = Normalize(id)
	start = Normalize(start)
	end = Normalize(end)

	switch start.Cmp(end) {
	case -1:
		return id.Cmp(start) > 0 && id.Cmp(end) <= 0
	case 1:
		return id.Cmp(start) > 0 || id.Cmp(end) <= 0
	default:
		return true
	}
}

// Between reports whether id lies in the open interval (start, end)
// walking clockwise, with the same wraparound rules as InRange.
func Between(id, start, end *big.Int) bool {
	if id == nil || start == nil || end == nil {
		return false
	}

	id = Normalize(id)
	start = Normalize(start)
	end = Normalize(end)

	switch start.Cmp(end) {
	case -1:
		return id.Cmp(start) > 0 && id.Cmp(end) < 0
	case 1:
		return id.Cmp(start) > 0 || id.Cmp(end) < 0
	default:
		return id.Cmp(start) != 0
	}
}

// Distance returns the clockwise distance from start to end,
// (end - start) mod 2^M.
func Distance(start, end *big.Int) *big.Int {
	if start == nil || end == nil {
		return new(big.Int)
	}
	d := new(big.Int).Sub(Normalize(end), Normalize(start))
	return Normalize(d)
}

// PowerOfTwo returns 2^exp, or zero for a negative exponent.
func PowerOfTwo(exp int) *big.Int {
	if exp < 0 {
		return new(big.Int)
	}
	return new(big.Int).Lsh(one, uint(exp))
}

// AddPowerOfTwo computes (n + 2^exp) mod 2^M. Finger table targets are
// AddPowerOfTwo(nodeID, i) for i in [0, M).
func AddPowerOfTwo(n *big.Int, exp int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	sum := new(big.Int).Add(Normalize(n), PowerOfTwo(exp))
	return Normalize(sum)
}

// Normalize returns x mod 2^M in [0, 2^M).
func Normalize(x *big.Int) *big.Int {
	r := new(big.Int).Mod(x, size)
	if r.Sign() < 0 {
		r.Add(r, size)
	}
	return r
}

// RingSize returns 2^M.
func RingSize() *big.Int {
	return new(big.Int).Set(size)
}

// MaxID returns 2^M - 1, the largest valid identifier.
func MaxID() *big.Int {
	return new(big.Int).Sub(size, one)
}

// IsValid reports whether id is a normalized ring identifier.
func IsValid(id *big.Int) bool {
	return id != nil && id.Cmp(zero) >= 0 && id.Cmp(size) < 0
}

// Encode renders id as a fixed-width big-endian byte string. The encoding
// is order-preserving: lexicographic comparison of encoded ids matches
// numeric comparison, which the storage index relies on.
func Encode(id *big.Int) []byte {
	buf := make([]byte, IDBytes)
	Normalize(id).FillBytes(buf)
	return buf
}

// Decode parses a fixed-width big-endian identifier produced by Encode.
func Decode(b []byte) *big.Int {
	return Normalize(new(big.Int).SetBytes(b))
}
