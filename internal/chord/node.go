package chord

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gaaliciA1990/Distributed-Systems/internal/config"
	"github.com/gaaliciA1990/Distributed-Systems/pkg"
	"github.com/gaaliciA1990/Distributed-Systems/pkg/ring"
)

// truncateHex shortens a hex identifier for log output.
func truncateHex(hexStr string, maxLen int) string {
	if len(hexStr) > maxLen {
		return hexStr[:maxLen]
	}
	return hexStr
}

// ChordNode is one member of the ring. All pointer fields are guarded by
// their own mutex and every accessor returns a copy, so protocol handlers
// never observe a pointer mid-update.
type ChordNode struct {
	// Node identity
	id      *big.Int
	address *NodeAddress

	config *config.Config

	storage *Storage

	logger *pkg.Logger

	// Remote client for RPC calls to other nodes
	remote RemoteClient

	// Event sink for the monitoring surface
	events EventSink

	// finger[i] points to the successor of (n + 2^i) mod 2^M
	fingerTable []*FingerEntry
	fingerMu    sync.RWMutex

	successorNode *NodeAddress
	successorMu   sync.RWMutex

	predecessor   *NodeAddress
	predecessorMu sync.RWMutex

	// Next finger to refresh
	nextFingerToFix int
	nextFingerMu    sync.Mutex

	// Serializes handoffs served by this node. A handoff flips the
	// predecessor pointer and extracts the surrendered keys as one step;
	// concurrent joiners must observe either all of it or none.
	// Guards pendingHandoffs as well.
	joinMu sync.Mutex

	// Batches extracted for a joiner, keyed by its address, retained
	// until the joiner acknowledges the import. A retry after a lost
	// response gets the same batch back instead of an empty range.
	pendingHandoffs map[string]*HandoffResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdown   bool
	shutdownMu sync.RWMutex
}

// NewChordNode creates a node from the given configuration.
func NewChordNode(cfg *config.Config, logger *pkg.Logger) (*ChordNode, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	address := NewNodeAddress(cfg.Host, cfg.Port)
	ctx, cancel := context.WithCancel(context.Background())

	node := &ChordNode{
		id:              address.ID,
		address:         address,
		config:          cfg,
		storage:         NewStorage(cfg.StoreShards),
		logger:          logger.WithFields(pkg.Fields{"node_id": truncateHex(address.ID.Text(16), 8)}),
		events:          NopSink{},
		fingerTable:     make([]*FingerEntry, ring.M),
		pendingHandoffs: make(map[string]*HandoffResult),
		ctx:             ctx,
		cancel:          cancel,
	}

	node.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Msg("node created")

	return node, nil
}

// ID returns the node's identifier.
func (n *ChordNode) ID() *big.Int {
	return new(big.Int).Set(n.id)
}

// Address returns the node's network address.
func (n *ChordNode) Address() *NodeAddress {
	return n.address.Copy()
}

// SetRemote sets the client used for RPC calls to other nodes. It must be
// called before Create or Join.
func (n *ChordNode) SetRemote(remote RemoteClient) {
	n.remote = remote
}

// SetEvents sets the sink for ring events.
func (n *ChordNode) SetEvents(sink EventSink) {
	if sink != nil {
		n.events = sink
	}
}

func (n *ChordNode) successor() *NodeAddress {
	n.successorMu.RLock()
	defer n.successorMu.RUnlock()
	return n.successorNode.Copy()
}

func (n *ChordNode) setSuccessor(node *NodeAddress) {
	n.successorMu.Lock()
	changed := !n.successorNode.Equals(node)
	n.successorNode = node.Copy()
	n.successorMu.Unlock()

	// finger[0] is the successor by definition
	if node != nil {
		n.fingerMu.Lock()
		if n.fingerTable[0] == nil {
			n.fingerTable[0] = NewFingerEntry(n.id, 0)
		}
		n.fingerTable[0].Node = node.Copy()
		n.fingerMu.Unlock()
	}

	if changed && node != nil {
		n.publish(RingEvent{
			Type: EventSuccessorChange,
			Peer: node.String(),
		})
	}
}

// GetPredecessor returns a copy of the predecessor, nil while unknown.
func (n *ChordNode) GetPredecessor() *NodeAddress {
	n.predecessorMu.RLock()
	defer n.predecessorMu.RUnlock()
	return n.predecessor.Copy()
}

func (n *ChordNode) setPredecessor(node *NodeAddress) {
	n.predecessorMu.Lock()
	changed := !n.predecessor.Equals(node)
	n.predecessor = node.Copy()
	n.predecessorMu.Unlock()

	if changed {
		n.logger.Debug().
			Str("predecessor", node.String()).
			Msg("predecessor updated")
		n.publish(RingEvent{
			Type: EventPredecessorChange,
			Peer: node.String(),
		})
	}
}

func (n *ChordNode) setFinger(index int, node *NodeAddress) {
	if index < 0 || index >= ring.M {
		return
	}
	n.fingerMu.Lock()
	defer n.fingerMu.Unlock()

	if n.fingerTable[index] == nil {
		n.fingerTable[index] = NewFingerEntry(n.id, index)
	}
	n.fingerTable[index].Node = node.Copy()
}

// initFingerTable points every slot at the given node. Slots are refined
// afterwards by populateFingers and the fix-fingers loop.
func (n *ChordNode) initFingerTable(node *NodeAddress) {
	n.fingerMu.Lock()
	defer n.fingerMu.Unlock()

	for i := 0; i < ring.M; i++ {
		entry := NewFingerEntry(n.id, i)
		entry.Node = node.Copy()
		n.fingerTable[i] = entry
	}
}

// FingerTable returns a copy of the routing table for the monitoring API.
func (n *ChordNode) FingerTable() []*FingerEntry {
	n.fingerMu.RLock()
	defer n.fingerMu.RUnlock()

	out := make([]*FingerEntry, len(n.fingerTable))
	for i, entry := range n.fingerTable {
		out[i] = entry.Copy()
	}
	return out
}

// Create starts a new ring with this node as the only member.
func (n *ChordNode) Create() error {
	if n.remote == nil {
		return fmt.Errorf("remote client not set")
	}

	n.logger.Info().Msg("creating new ring")

	n.setPredecessor(nil)
	n.setSuccessor(n.address)
	n.initFingerTable(n.address)

	n.startBackgroundTasks()

	n.publish(RingEvent{Type: EventRingCreated})
	return nil
}

// Join enters an existing ring through the bootstrap node at the given
// host:port. On return the node owns its key range and its successor
// already treats it as predecessor; the caller may start serving.
func (n *ChordNode) Join(ctx context.Context, bootstrap string) error {
	if bootstrap == "" {
		return fmt.Errorf("bootstrap address cannot be empty")
	}
	if n.remote == nil {
		return fmt.Errorf("remote client not set")
	}

	n.logger.Info().
		Str("bootstrap", bootstrap).
		Msg("joining ring")
	n.publish(RingEvent{Type: EventJoinStarted, Detail: map[string]string{"bootstrap": bootstrap}})

	var lastErr error
	var donor *NodeAddress
	for attempt := 0; attempt < n.config.JoinRetryLimit; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.config.StabilizeInterval):
			}
		}

		attemptDonor, err := n.joinOnce(ctx, bootstrap, donor)
		if attemptDonor != nil {
			donor = attemptDonor
		}
		if err == nil {
			n.startBackgroundTasks()
			n.publish(RingEvent{Type: EventJoinCompleted, KeyCount: n.storage.KeyCount()})
			n.logger.Info().Msg("joined ring")
			return nil
		}
		if errors.Is(err, pkg.ErrBootstrapUnreachable) || errors.Is(err, pkg.ErrOwnershipConflict) {
			return err
		}

		n.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("join attempt failed, retrying")
		lastErr = err
	}
	return fmt.Errorf("join failed after %d attempts: %w", n.config.JoinRetryLimit, lastErr)
}

// joinOnce runs one join attempt. It returns the donor it negotiated
// with, so a retry after a lost handoff response goes back to the same
// node instead of re-resolving an id the ring now routes to us.
func (n *ChordNode) joinOnce(ctx context.Context, bootstrap string, lastDonor *NodeAddress) (*NodeAddress, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, n.config.RelayTimeout())
	defer cancel()

	successor, err := n.remote.Join(rpcCtx, bootstrap, n.address)
	if err != nil {
		if errors.Is(err, pkg.ErrPeerUnreachable) {
			return nil, fmt.Errorf("%w: %s", pkg.ErrBootstrapUnreachable, bootstrap)
		}
		return nil, fmt.Errorf("locate successor via bootstrap: %w", err)
	}
	if successor.IsNil() {
		return nil, fmt.Errorf("bootstrap returned no successor")
	}
	if successor.ID.Cmp(n.id) == 0 {
		if successor.Address() != n.address.Address() {
			return nil, fmt.Errorf("%w: identifier already taken by %s", pkg.ErrOwnershipConflict, successor.Address())
		}
		// The ring already routes our id to this address: a previous
		// handoff committed on the donor but its response was lost. Ask
		// that donor again; it recognizes its current predecessor and
		// re-sends the retained batch.
		if lastDonor == nil {
			return nil, fmt.Errorf("%w: ring already routes this identifier here", pkg.ErrOwnershipConflict)
		}
		successor = lastDonor
	}

	n.logger.Info().
		Str("successor", successor.String()).
		Msg("found successor")

	// The handoff flips the successor's predecessor pointer to us and
	// returns the keys we now own, as one serialized step on the donor.
	handoffCtx, cancelHandoff := context.WithTimeout(ctx, n.config.RPCTimeout)
	defer cancelHandoff()

	result, err := n.remote.Handoff(handoffCtx, successor.Address(), n.address)
	if err != nil {
		return successor, fmt.Errorf("handoff from %s: %w", successor.String(), err)
	}

	n.setPredecessor(result.Predecessor)
	n.setSuccessor(successor)
	n.initFingerTable(successor)

	if err := n.storage.ImportKeys(result.Keys); err != nil {
		return successor, fmt.Errorf("import %d handoff keys: %w", len(result.Keys), err)
	}
	n.logger.Info().
		Int("key_count", len(result.Keys)).
		Str("predecessor", result.Predecessor.String()).
		Msg("handoff complete")

	// The keys are imported; let the donor drop its retained copy. A
	// lost ack only means the donor keeps the batch around.
	ackCtx, cancelAck := context.WithTimeout(ctx, n.config.RPCTimeout)
	defer cancelAck()
	if err := n.remote.AckHandoff(ackCtx, successor.Address(), n.address); err != nil {
		n.logger.Debug().Err(err).Msg("handoff ack failed")
	}

	// Best effort: proper fingers now instead of waiting for the
	// fix-fingers loop to converge.
	n.populateFingers(ctx)

	return successor, nil
}

// HandoffKeys serves the donor side of a join: adopt joiner as
// predecessor, then hand over every key in the interval the joiner now
// owns. The pointer flip happens before the extraction, so a concurrent
// read for a surrendered key gets a redirect rather than a wrong
// not-found.
func (n *ChordNode) HandoffKeys(joiner *NodeAddress) (*HandoffResult, error) {
	if joiner.IsNil() {
		return nil, fmt.Errorf("joiner cannot be nil")
	}

	n.joinMu.Lock()
	defer n.joinMu.Unlock()

	// A joiner whose handoff committed here but whose response was lost
	// retries the same RPC. The extracted keys are no longer in the
	// store, so re-send the retained batch.
	if pending, ok := n.pendingHandoffs[joiner.Address()]; ok {
		n.logger.Info().
			Str("joiner", joiner.String()).
			Int("key_count", len(pending.Keys)).
			Msg("re-sending retained handoff batch")
		return pending, nil
	}

	if joiner.ID.Cmp(n.id) == 0 {
		return nil, fmt.Errorf("%w: joiner hashes to this node's identifier", pkg.ErrOwnershipConflict)
	}

	oldPred := n.GetPredecessor()
	if oldPred != nil {
		if oldPred.ID.Cmp(joiner.ID) == 0 {
			if oldPred.Address() == joiner.Address() {
				// Already our predecessor with nothing retained: the
				// batch was acknowledged, nothing is left to hand over.
				return nil, fmt.Errorf("%w: handoff to %s already acknowledged", pkg.ErrStaleRoute, joiner.String())
			}
			return nil, fmt.Errorf("%w: joiner hashes to predecessor %s", pkg.ErrOwnershipConflict, oldPred.String())
		}
		if !ring.InRange(joiner.ID, oldPred.ID, n.id) {
			// Routed here with pointers that predate a newer member.
			return nil, fmt.Errorf("%w: joiner %s not in (%s, %s]", pkg.ErrStaleRoute,
				truncateHex(joiner.ID.Text(16), 8),
				truncateHex(oldPred.ID.Text(16), 8),
				truncateHex(n.id.Text(16), 8))
		}
	}

	n.setPredecessor(joiner)

	// Keys in (oldPred, joiner] move to the joiner. With no predecessor
	// this node owned the whole ring, so the joiner takes (self, joiner].
	lower := n.id
	if oldPred != nil {
		lower = oldPred.ID
	}
	keys, err := n.storage.ExtractRange(lower, joiner.ID)
	if err != nil {
		return nil, fmt.Errorf("extract handoff range: %w", err)
	}

	// Sole member: the joiner is also our successor. Setting it directly
	// closes the two-node ring without waiting for stabilization.
	if succ := n.successor(); succ == nil || succ.Equals(n.address) {
		n.setSuccessor(joiner)
	}

	n.logger.Info().
		Str("joiner", joiner.String()).
		Int("key_count", len(keys)).
		Msg("handoff served")
	n.publish(RingEvent{
		Type:     EventHandoffServed,
		Peer:     joiner.String(),
		KeyCount: len(keys),
	})

	// A sole member reports itself: the joiner's interval is (donor, joiner].
	reportedPred := oldPred
	if reportedPred == nil {
		reportedPred = n.address
	}

	result := &HandoffResult{
		Predecessor: reportedPred,
		Keys:        keys,
	}

	// Retain the batch until the joiner confirms the import. If this
	// response is lost the retry gets the same keys back.
	n.pendingHandoffs[joiner.Address()] = result

	return result, nil
}

// AckHandoff records that joiner imported its handoff batch, releasing
// the copy retained for retries.
func (n *ChordNode) AckHandoff(joiner *NodeAddress) {
	if joiner.IsNil() {
		return
	}

	n.joinMu.Lock()
	defer n.joinMu.Unlock()

	if _, ok := n.pendingHandoffs[joiner.Address()]; ok {
		delete(n.pendingHandoffs, joiner.Address())
		n.logger.Debug().
			Str("joiner", joiner.String()).
			Msg("handoff acknowledged")
	}
}

// populateFingers fills the finger table after a join. Consecutive slots
// usually share an owner, so a slot whose target still falls before the
// previous slot's node reuses that node without an RPC.
func (n *ChordNode) populateFingers(ctx context.Context) {
	prev := n.successor()
	if prev == nil {
		return
	}

	for i := 1; i < ring.M; i++ {
		target := ring.AddPowerOfTwo(n.id, i)

		if prev != nil && ring.InRange(target, n.id, prev.ID) {
			n.setFinger(i, prev)
			continue
		}

		node, _, err := n.findSuccessor(ctx, target, 0)
		if err != nil {
			n.logger.Debug().
				Err(err).
				Int("finger_index", i).
				Msg("finger population stopped early, fix-fingers loop will finish")
			return
		}
		n.setFinger(i, node)
		prev = node
	}
}

func (n *ChordNode) startBackgroundTasks() {
	n.wg.Add(2)
	go n.stabilizeLoop()
	go n.fixFingersLoop()
}

func (n *ChordNode) stabilizeLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.StabilizeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if err := n.stabilize(); err != nil {
				n.logger.Debug().Err(err).Msg("stabilize round failed")
			}
		}
	}
}

func (n *ChordNode) fixFingersLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.FixFingersInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if err := n.fixFingers(); err != nil {
				n.logger.Debug().Err(err).Msg("fix fingers round failed")
			}
		}
	}
}

// stabilize verifies the successor pointer and notifies the successor of
// this node's existence.
func (n *ChordNode) stabilize() error {
	succ := n.successor()
	if succ == nil {
		return nil
	}

	// A node whose successor is still itself but which has gained a
	// predecessor is mid ring-formation: the predecessor is the only
	// other member, hence also the successor.
	if succ.Equals(n.address) {
		pred := n.GetPredecessor()
		if pred == nil {
			return nil
		}
		n.setSuccessor(pred)
		succ = pred
	}

	ctx, cancel := context.WithTimeout(n.ctx, n.config.RPCTimeout)
	defer cancel()

	x, err := n.remote.GetPredecessor(ctx, succ.Address())
	if err != nil {
		// Unreachable successor is not fatal to the round.
		return nil
	}

	if x != nil && ring.Between(x.ID, n.id, succ.ID) {
		n.setSuccessor(x)
		succ = x
	}

	if err := n.remote.Notify(ctx, succ.Address(), n.address); err != nil {
		return nil
	}
	return nil
}

// Notify handles a peer's claim that it might be this node's predecessor.
func (n *ChordNode) Notify(candidate *NodeAddress) {
	if candidate.IsNil() || candidate.Equals(n.address) {
		return
	}

	pred := n.GetPredecessor()
	if pred == nil || ring.Between(candidate.ID, pred.ID, n.id) {
		n.setPredecessor(candidate)
	}
}

// fixFingers refreshes one finger slot per round.
func (n *ChordNode) fixFingers() error {
	n.nextFingerMu.Lock()
	next := n.nextFingerToFix
	n.nextFingerToFix = (next + 1) % ring.M
	n.nextFingerMu.Unlock()

	target := ring.AddPowerOfTwo(n.id, next)

	// A lookup may cross several hops; budget the whole chain, not one RPC.
	ctx, cancel := context.WithTimeout(n.ctx, n.config.RelayTimeout())
	defer cancel()

	node, _, err := n.findSuccessor(ctx, target, 0)
	if err != nil {
		return err
	}
	if node != nil {
		n.setFinger(next, node)
	}
	return nil
}

// FindSuccessor resolves the owner of id. hops is the forwarding budget
// already consumed by the caller; the returned count includes the hops
// spent here, so tests can assert the O(log n) bound end to end.
func (n *ChordNode) FindSuccessor(ctx context.Context, id *big.Int, hops int) (*NodeAddress, int, error) {
	if id == nil {
		return nil, hops, fmt.Errorf("id cannot be nil")
	}
	return n.findSuccessor(ctx, ring.Normalize(id), hops)
}

func (n *ChordNode) findSuccessor(ctx context.Context, id *big.Int, hops int) (*NodeAddress, int, error) {
	if hops > n.config.LookupHopLimit {
		return nil, hops, fmt.Errorf("%w: exceeded %d hops resolving %s",
			pkg.ErrRoutingLoopDetected, n.config.LookupHopLimit, truncateHex(id.Text(16), 8))
	}

	succ := n.successor()
	if succ == nil || succ.Equals(n.address) {
		return n.address.Copy(), hops, nil
	}
	if ring.InRange(id, n.id, succ.ID) {
		return succ, hops, nil
	}

	// Forward through the best preceding finger; on an unreachable peer
	// fall back to the next-best candidate, with the successor as the
	// final resort.
	candidates := n.precedingCandidates(id)
	tried := 0
	for _, candidate := range candidates {
		if tried > n.config.RouteRetryLimit {
			break
		}
		tried++

		node, totalHops, err := n.remote.FindSuccessor(ctx, candidate.Address(), id, hops+1)
		if err == nil {
			return node, totalHops, nil
		}
		if errors.Is(err, pkg.ErrPeerUnreachable) {
			n.logger.Debug().
				Str("peer", candidate.String()).
				Msg("next hop unreachable, trying alternate finger")
			continue
		}
		return nil, hops, err
	}

	return nil, hops, fmt.Errorf("%w: no reachable next hop for %s",
		pkg.ErrPeerUnreachable, truncateHex(id.Text(16), 8))
}

// precedingCandidates lists forwarding targets for id, best first:
// fingers in (self, id) from the highest slot down, then the successor.
func (n *ChordNode) precedingCandidates(id *big.Int) []*NodeAddress {
	var out []*NodeAddress
	seen := make(map[string]bool)

	n.fingerMu.RLock()
	for i := ring.M - 1; i >= 0; i-- {
		finger := n.fingerTable[i]
		if finger.IsNil() || finger.Node.Equals(n.address) {
			continue
		}
		if !ring.Between(finger.Node.ID, n.id, id) {
			continue
		}
		addr := finger.Node.Address()
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, finger.Node.Copy())
	}
	n.fingerMu.RUnlock()

	if succ := n.successor(); succ != nil && !succ.Equals(n.address) && !seen[succ.Address()] {
		out = append(out, succ)
	}
	return out
}

// ClosestPrecedingNode returns the finger closest to id without passing
// it, or this node when no finger qualifies.
func (n *ChordNode) ClosestPrecedingNode(id *big.Int) *NodeAddress {
	n.fingerMu.RLock()
	defer n.fingerMu.RUnlock()

	for i := ring.M - 1; i >= 0; i-- {
		finger := n.fingerTable[i]
		if finger.IsNil() {
			continue
		}
		if ring.Between(finger.Node.ID, n.id, id) {
			return finger.Node.Copy()
		}
	}
	return n.address.Copy()
}

// ownsKey reports whether keyID falls in this node's ownership interval
// (predecessor, self]. A node with no predecessor owns the whole ring.
func (n *ChordNode) ownsKey(keyID *big.Int) bool {
	pred := n.GetPredecessor()
	if pred == nil {
		return true
	}
	return ring.InRange(keyID, pred.ID, n.id)
}

// HandleGet serves a GET that arrived at this node. If the node owns the
// key it answers from local storage; otherwise it resolves the owner and
// relays. A non-nil hint names the node the caller should ask instead.
func (n *ChordNode) HandleGet(ctx context.Context, key string, hops int) (value []byte, found bool, hint *NodeAddress, err error) {
	if key == "" {
		return nil, false, nil, fmt.Errorf("key cannot be empty")
	}

	keyID := ring.HashString(key)

	if n.ownsKey(keyID) {
		v, err := n.storage.Get(key)
		if errors.Is(err, pkg.ErrKeyNotFound) {
			return nil, false, nil, nil
		}
		if err != nil {
			return nil, false, nil, err
		}
		return v, true, nil, nil
	}

	owner, totalHops, err := n.findSuccessor(ctx, keyID, hops)
	if err != nil {
		return nil, false, nil, err
	}

	if owner.Equals(n.address) {
		// Routing still points here but the predecessor says otherwise:
		// the key moved in a handoff this node just served. Redirect
		// instead of answering not-found for a key that exists elsewhere.
		return nil, false, n.GetPredecessor(), pkg.ErrNotOwner
	}

	n.logger.Debug().
		Str("key", key).
		Str("owner", owner.String()).
		Msg("relaying get to owner")

	return n.remote.Get(ctx, owner.Address(), key, totalHops)
}

// HandlePut serves a PUT that arrived at this node, storing locally or
// relaying to the owner.
func (n *ChordNode) HandlePut(ctx context.Context, key string, value []byte, hops int) (hint *NodeAddress, err error) {
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	keyID := ring.HashString(key)

	if n.ownsKey(keyID) {
		return nil, n.storage.Put(key, value)
	}

	owner, totalHops, err := n.findSuccessor(ctx, keyID, hops)
	if err != nil {
		return nil, err
	}

	if owner.Equals(n.address) {
		return n.GetPredecessor(), pkg.ErrNotOwner
	}

	n.logger.Debug().
		Str("key", key).
		Str("owner", owner.String()).
		Msg("relaying put to owner")

	return n.remote.Put(ctx, owner.Address(), key, value, totalHops)
}

// Get retrieves a value from the ring, following redirect hints while a
// handoff is settling.
func (n *ChordNode) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, found, hint, err := n.HandleGet(ctx, key, 0)
	for attempt := 0; errors.Is(err, pkg.ErrNotOwner) && hint != nil && attempt < n.config.RouteRetryLimit; attempt++ {
		value, found, hint, err = n.remote.Get(ctx, hint.Address(), key, 0)
	}
	return value, found, err
}

// Put stores a value in the ring, following redirect hints while a
// handoff is settling.
func (n *ChordNode) Put(ctx context.Context, key string, value []byte) error {
	hint, err := n.HandlePut(ctx, key, value, 0)
	for attempt := 0; errors.Is(err, pkg.ErrNotOwner) && hint != nil && attempt < n.config.RouteRetryLimit; attempt++ {
		hint, err = n.remote.Put(ctx, hint.Address(), key, value, 0)
	}
	return err
}

// Snapshot returns a point-in-time view of the node's pointers and store.
func (n *ChordNode) Snapshot() *NodeInfo {
	return &NodeInfo{
		Node:        n.Address(),
		Predecessor: n.GetPredecessor(),
		Successor:   n.successor(),
		KeyCount:    n.storage.KeyCount(),
	}
}

// KeyCount returns the number of locally stored keys.
func (n *ChordNode) KeyCount() int {
	return n.storage.KeyCount()
}

// Keys returns the locally stored keys.
func (n *ChordNode) Keys() []string {
	return n.storage.Keys()
}

// Shutdown stops background loops and closes storage. Idempotent.
func (n *ChordNode) Shutdown() error {
	n.shutdownMu.Lock()
	if n.shutdown {
		n.shutdownMu.Unlock()
		return nil
	}
	n.shutdown = true
	n.shutdownMu.Unlock()

	n.logger.Info().Msg("shutting down")
	n.publish(RingEvent{Type: EventShutdown})

	n.cancel()
	n.wg.Wait()

	if err := n.storage.Close(); err != nil {
		n.logger.Error().Err(err).Msg("storage close failed")
	}
	return nil
}

// IsShutdown reports whether Shutdown has run.
func (n *ChordNode) IsShutdown() bool {
	n.shutdownMu.RLock()
	defer n.shutdownMu.RUnlock()
	return n.shutdown
}

func (n *ChordNode) publish(event RingEvent) {
	event.Node = n.address.String()
	event.Timestamp = time.Now().UTC()
	n.events.Publish(event)
}
