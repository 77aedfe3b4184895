package pkg

import "errors"

var (
	// ErrKeyNotFound is returned when a key is absent on its owning node.
	// It is a normal lookup result, not a failure.
	ErrKeyNotFound = errors.New("key not found")

	// ErrPeerUnreachable is returned when a connection to a specific peer
	// is refused or times out.
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrRoutingLoopDetected is returned when a lookup exceeds its hop
	// budget, usually because of stale finger entries.
	ErrRoutingLoopDetected = errors.New("routing loop detected")

	// ErrBootstrapUnreachable is returned when the bootstrap contact of a
	// join attempt cannot be reached. Fatal to that join only.
	ErrBootstrapUnreachable = errors.New("bootstrap node unreachable")

	// ErrOwnershipConflict indicates two nodes claim overlapping key
	// ranges. It signals a protocol violation and is treated as a fatal
	// consistency fault.
	ErrOwnershipConflict = errors.New("ownership conflict")

	// ErrNotOwner is returned when a node is asked for a key it no longer
	// owns, typically mid-handoff. It carries a redirect hint rather than
	// a wrong not-found answer.
	ErrNotOwner = errors.New("not the key owner")

	// ErrStaleRoute is returned by a handoff donor when the joiner does
	// not fall in the donor's ownership interval, meaning the joiner was
	// routed with stale pointers and should retry.
	ErrStaleRoute = errors.New("stale route")

	// ErrStorageClosed is returned by storage operations after shutdown.
	ErrStorageClosed = errors.New("storage closed")
)
