package chord

import (
	"fmt"
	"math/big"
	"net"

	"github.com/gaaliciA1990/Distributed-Systems/pkg/ring"
)

// NodeAddress identifies a ring member: its position on the identifier
// circle plus the endpoint peers dial to reach it.
type NodeAddress struct {
	ID   *big.Int
	Host string
	Port int
}

// NewNodeAddress builds a NodeAddress for the given endpoint. The ID is
// derived from the advertised host:port, so the same endpoint always maps
// to the same ring position.
func NewNodeAddress(host string, port int) *NodeAddress {
	return &NodeAddress{
		ID:   ring.HashAddress(host, port),
		Host: host,
		Port: port,
	}
}

// Address returns the dialable host:port.
func (n *NodeAddress) Address() string {
	return net.JoinHostPort(n.Host, fmt.Sprintf("%d", n.Port))
}

// String renders the node for logs: a short ID prefix plus the endpoint.
func (n *NodeAddress) String() string {
	if n == nil {
		return "<nil>"
	}
	id := n.ID.Text(16)
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s@%s", id, n.Address())
}

// Equals reports whether two addresses name the same node.
func (n *NodeAddress) Equals(other *NodeAddress) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.ID.Cmp(other.ID) == 0
}

// IsNil reports whether the address is unusable.
func (n *NodeAddress) IsNil() bool {
	return n == nil || n.ID == nil
}

// Copy returns a deep copy so callers can hold the result without
// racing against pointer updates.
func (n *NodeAddress) Copy() *NodeAddress {
	if n == nil {
		return nil
	}
	cp := &NodeAddress{
		Host: n.Host,
		Port: n.Port,
	}
	if n.ID != nil {
		cp.ID = new(big.Int).Set(n.ID)
	}
	return cp
}

// FingerEntry is one routing table slot. Start is the slot's target
// identifier (owner position plus 2^i) and Node is the current best known
// successor of Start.
type FingerEntry struct {
	Start *big.Int
	Node  *NodeAddress
}

// NewFingerEntry computes the slot target for finger index i of the node
// at ownerID.
func NewFingerEntry(ownerID *big.Int, i int) *FingerEntry {
	return &FingerEntry{
		Start: ring.AddPowerOfTwo(ownerID, i),
	}
}

// IsNil reports whether the slot has no usable node yet.
func (f *FingerEntry) IsNil() bool {
	return f == nil || f.Node.IsNil()
}

// Copy returns a deep copy of the entry.
func (f *FingerEntry) Copy() *FingerEntry {
	if f == nil {
		return nil
	}
	cp := &FingerEntry{
		Node: f.Node.Copy(),
	}
	if f.Start != nil {
		cp.Start = new(big.Int).Set(f.Start)
	}
	return cp
}
