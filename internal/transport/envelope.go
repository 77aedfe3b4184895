// Package transport carries ring RPCs as CBOR envelopes over TCP. Each
// request is one length-prefixed frame on a fresh connection, answered by
// one response frame.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/gaaliciA1990/Distributed-Systems/internal/chord"
	"github.com/gaaliciA1990/Distributed-Systems/pkg/ring"
)

// Kind identifies the requested operation.
type Kind uint8

const (
	KindJoin Kind = iota + 1
	KindFindSuccessor
	KindGetPredecessor
	KindNotify
	KindGet
	KindPut
	KindHandoff
	KindPing
	KindInfo
	KindAckHandoff
)

// routed reports whether the operation may be forwarded through further
// nodes before it can be answered. Routed requests get a deadline sized
// for the whole relay chain rather than a single exchange.
func (k Kind) routed() bool {
	switch k {
	case KindJoin, KindFindSuccessor, KindGet, KindPut:
		return true
	default:
		return false
	}
}

// Status classifies a response.
type Status uint8

const (
	StatusOK Status = iota + 1
	StatusNotFound
	StatusNotOwner
	StatusError
)

// Error codes carried in Response.Code when Status is StatusError.
const (
	CodeRoutingLoop       = "routing_loop"
	CodePeerUnreachable   = "peer_unreachable"
	CodeOwnershipConflict = "ownership_conflict"
	CodeStaleRoute        = "stale_route"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

// NodeRef is a node identity on the wire. The identifier travels in its
// fixed-width big-endian encoding.
type NodeRef struct {
	ID   []byte `cbor:"1,keyasint"`
	Host string `cbor:"2,keyasint"`
	Port int    `cbor:"3,keyasint"`
}

// Envelope is one request frame.
type Envelope struct {
	Kind   Kind     `cbor:"1,keyasint"`
	Target []byte   `cbor:"2,keyasint,omitempty"`
	Key    string   `cbor:"3,keyasint,omitempty"`
	Value  []byte   `cbor:"4,keyasint,omitempty"`
	Node   *NodeRef `cbor:"5,keyasint,omitempty"`
	Hops   int      `cbor:"6,keyasint,omitempty"`
}

// Response is one reply frame.
type Response struct {
	Status      Status            `cbor:"1,keyasint"`
	Code        string            `cbor:"2,keyasint,omitempty"`
	Err         string            `cbor:"3,keyasint,omitempty"`
	Value       []byte            `cbor:"4,keyasint,omitempty"`
	Node        *NodeRef          `cbor:"5,keyasint,omitempty"`
	Predecessor *NodeRef          `cbor:"6,keyasint,omitempty"`
	Successor   *NodeRef          `cbor:"7,keyasint,omitempty"`
	Keys        map[string][]byte `cbor:"8,keyasint,omitempty"`
	Hops        int               `cbor:"9,keyasint,omitempty"`
	KeyCount    int               `cbor:"10,keyasint,omitempty"`
}

// maxFrameSize bounds a single frame. Handoff frames carry key batches,
// everything else is tiny.
const maxFrameSize = 4 << 20

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("transport: cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("transport: cbor decoder: %v", err))
	}
}

// writeFrame writes one length-prefixed CBOR frame.
func writeFrame(w io.Writer, v any) error {
	payload, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds %d byte limit", len(payload), maxFrameSize)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// readFrame reads one length-prefixed CBOR frame into v.
func readFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds %d byte limit", size, maxFrameSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	if err := decMode.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}

func toNodeRef(node *chord.NodeAddress) *NodeRef {
	if node.IsNil() {
		return nil
	}
	return &NodeRef{
		ID:   ring.Encode(node.ID),
		Host: node.Host,
		Port: node.Port,
	}
}

func toNodeAddress(ref *NodeRef) *chord.NodeAddress {
	if ref == nil {
		return nil
	}
	return &chord.NodeAddress{
		ID:   ring.Decode(ref.ID),
		Host: ref.Host,
		Port: ref.Port,
	}
}
