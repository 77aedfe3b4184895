package chord

import (
	"context"
	"math/big"
)

// HandoffResult is what a joiner receives from its successor: the ring
// position to adopt as predecessor and the keys it now owns.
type HandoffResult struct {
	Predecessor *NodeAddress
	Keys        map[string][]byte
}

// NodeInfo is a point-in-time snapshot of a remote node's state, used by
// the monitoring surface and the CLI.
type NodeInfo struct {
	Node        *NodeAddress
	Predecessor *NodeAddress
	Successor   *NodeAddress
	KeyCount    int
}

// RemoteClient is how a node talks to its peers. The transport package
// provides the wire implementation; tests substitute an in-process one.
type RemoteClient interface {
	// Join asks the node at address to locate the successor of newNode's
	// identifier. It is the first RPC of the join protocol.
	Join(ctx context.Context, address string, newNode *NodeAddress) (*NodeAddress, error)

	// FindSuccessor resolves the owner of id, starting from the node at
	// address. hops is the budget already consumed; the returned int is
	// the total after this resolution.
	FindSuccessor(ctx context.Context, address string, id *big.Int, hops int) (*NodeAddress, int, error)

	// GetPredecessor returns the remote node's predecessor, which may be
	// nil while the ring is forming.
	GetPredecessor(ctx context.Context, address string) (*NodeAddress, error)

	// Notify tells the node at address that candidate might be its
	// predecessor.
	Notify(ctx context.Context, address string, candidate *NodeAddress) error

	// Handoff asks the node at address to adopt joiner as its predecessor
	// and surrender the keys joiner now owns. The donor performs the
	// pointer flip and the key extraction as one serialized step.
	Handoff(ctx context.Context, address string, joiner *NodeAddress) (*HandoffResult, error)

	// AckHandoff confirms to the donor at address that joiner imported
	// its handoff batch, releasing the copy the donor retains for
	// retries.
	AckHandoff(ctx context.Context, address string, joiner *NodeAddress) error

	// Get fetches key from the node at address, routing onward if that
	// node is not the owner. found distinguishes an absent key from an
	// empty value; hint, when non-nil, names the node the caller should
	// retry against.
	Get(ctx context.Context, address string, key string, hops int) (value []byte, found bool, hint *NodeAddress, err error)

	// Put stores key=value at the node at address, routing onward if that
	// node is not the owner.
	Put(ctx context.Context, address string, key string, value []byte, hops int) (hint *NodeAddress, err error)

	// Ping checks liveness of the node at address.
	Ping(ctx context.Context, address string) error

	// Info returns a state snapshot of the node at address.
	Info(ctx context.Context, address string) (*NodeInfo, error)
}
