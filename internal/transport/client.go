package transport

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/gaaliciA1990/Distributed-Systems/internal/chord"
	"github.com/gaaliciA1990/Distributed-Systems/internal/config"
	"github.com/gaaliciA1990/Distributed-Systems/pkg"
	"github.com/gaaliciA1990/Distributed-Systems/pkg/ring"
)

// Client implements chord.RemoteClient over the framed TCP protocol. Each
// call dials a fresh connection; peers come and go too often for pooling
// to pay for its invalidation logic at ring scale.
type Client struct {
	timeout      time.Duration
	relayTimeout time.Duration
	logger       *pkg.Logger
}

var _ chord.RemoteClient = (*Client)(nil)

// NewClient creates a client with timeouts from the config.
func NewClient(cfg *config.Config, logger *pkg.Logger) *Client {
	return &Client{
		timeout:      cfg.RPCTimeout,
		relayTimeout: cfg.RelayTimeout(),
		logger:       logger.WithFields(pkg.Fields{"component": "transport"}),
	}
}

// call performs one request/response exchange with the node at address.
// Dial and I/O failures surface as ErrPeerUnreachable. The dial is always
// bounded by one RPC timeout so a dead peer is detected quickly, but a
// routed request may wait out the remote's whole relay chain.
func (c *Client) call(ctx context.Context, address string, env *Envelope) (*Response, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", pkg.ErrPeerUnreachable, address, err)
	}
	defer conn.Close()

	budget := c.timeout
	if env.Kind.routed() {
		budget = c.relayTimeout
	}
	deadline := time.Now().Add(budget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pkg.ErrPeerUnreachable, address, err)
	}

	if err := writeFrame(conn, env); err != nil {
		return nil, fmt.Errorf("%w: write to %s: %v", pkg.ErrPeerUnreachable, address, err)
	}

	var resp Response
	if err := readFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("%w: read from %s: %v", pkg.ErrPeerUnreachable, address, err)
	}
	return &resp, nil
}

// responseError converts an error response back into the sentinel the
// remote node reported.
func responseError(resp *Response) error {
	switch resp.Code {
	case CodeRoutingLoop:
		return fmt.Errorf("%w: %s", pkg.ErrRoutingLoopDetected, resp.Err)
	case CodeOwnershipConflict:
		return fmt.Errorf("%w: %s", pkg.ErrOwnershipConflict, resp.Err)
	case CodeStaleRoute:
		return fmt.Errorf("%w: %s", pkg.ErrStaleRoute, resp.Err)
	case CodePeerUnreachable:
		return fmt.Errorf("%w: %s", pkg.ErrPeerUnreachable, resp.Err)
	default:
		return fmt.Errorf("remote error: %s", resp.Err)
	}
}

// Join asks the node at address to locate newNode's successor.
func (c *Client) Join(ctx context.Context, address string, newNode *chord.NodeAddress) (*chord.NodeAddress, error) {
	resp, err := c.call(ctx, address, &Envelope{
		Kind: KindJoin,
		Node: toNodeRef(newNode),
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, responseError(resp)
	}
	return toNodeAddress(resp.Node), nil
}

// FindSuccessor resolves the owner of id via the node at address.
func (c *Client) FindSuccessor(ctx context.Context, address string, id *big.Int, hops int) (*chord.NodeAddress, int, error) {
	resp, err := c.call(ctx, address, &Envelope{
		Kind:   KindFindSuccessor,
		Target: ring.Encode(id),
		Hops:   hops,
	})
	if err != nil {
		return nil, hops, err
	}
	if resp.Status != StatusOK {
		return nil, hops, responseError(resp)
	}
	return toNodeAddress(resp.Node), resp.Hops, nil
}

// GetPredecessor fetches the predecessor of the node at address.
func (c *Client) GetPredecessor(ctx context.Context, address string) (*chord.NodeAddress, error) {
	resp, err := c.call(ctx, address, &Envelope{Kind: KindGetPredecessor})
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, responseError(resp)
	}
	return toNodeAddress(resp.Node), nil
}

// Notify tells the node at address about a predecessor candidate.
func (c *Client) Notify(ctx context.Context, address string, candidate *chord.NodeAddress) error {
	resp, err := c.call(ctx, address, &Envelope{
		Kind: KindNotify,
		Node: toNodeRef(candidate),
	})
	if err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return responseError(resp)
	}
	return nil
}

// Handoff runs the donor-side join step on the node at address.
func (c *Client) Handoff(ctx context.Context, address string, joiner *chord.NodeAddress) (*chord.HandoffResult, error) {
	resp, err := c.call(ctx, address, &Envelope{
		Kind: KindHandoff,
		Node: toNodeRef(joiner),
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, responseError(resp)
	}
	return &chord.HandoffResult{
		Predecessor: toNodeAddress(resp.Predecessor),
		Keys:        resp.Keys,
	}, nil
}

// AckHandoff confirms a completed handoff import to the donor at address.
func (c *Client) AckHandoff(ctx context.Context, address string, joiner *chord.NodeAddress) error {
	resp, err := c.call(ctx, address, &Envelope{
		Kind: KindAckHandoff,
		Node: toNodeRef(joiner),
	})
	if err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return responseError(resp)
	}
	return nil
}

// Get fetches key from the node at address.
func (c *Client) Get(ctx context.Context, address string, key string, hops int) ([]byte, bool, *chord.NodeAddress, error) {
	resp, err := c.call(ctx, address, &Envelope{
		Kind: KindGet,
		Key:  key,
		Hops: hops,
	})
	if err != nil {
		return nil, false, nil, err
	}
	switch resp.Status {
	case StatusOK:
		return resp.Value, true, nil, nil
	case StatusNotFound:
		return nil, false, nil, nil
	case StatusNotOwner:
		return nil, false, toNodeAddress(resp.Node), pkg.ErrNotOwner
	default:
		return nil, false, nil, responseError(resp)
	}
}

// Put stores key=value at the node at address.
func (c *Client) Put(ctx context.Context, address string, key string, value []byte, hops int) (*chord.NodeAddress, error) {
	resp, err := c.call(ctx, address, &Envelope{
		Kind:  KindPut,
		Key:   key,
		Value: value,
		Hops:  hops,
	})
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case StatusOK:
		return nil, nil
	case StatusNotOwner:
		return toNodeAddress(resp.Node), pkg.ErrNotOwner
	default:
		return nil, responseError(resp)
	}
}

// Ping checks that the node at address answers.
func (c *Client) Ping(ctx context.Context, address string) error {
	resp, err := c.call(ctx, address, &Envelope{Kind: KindPing})
	if err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return responseError(resp)
	}
	return nil
}

// Info fetches a state snapshot from the node at address.
func (c *Client) Info(ctx context.Context, address string) (*chord.NodeInfo, error) {
	resp, err := c.call(ctx, address, &Envelope{Kind: KindInfo})
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, responseError(resp)
	}
	return &chord.NodeInfo{
		Node:        toNodeAddress(resp.Node),
		Predecessor: toNodeAddress(resp.Predecessor),
		Successor:   toNodeAddress(resp.Successor),
		KeyCount:    resp.KeyCount,
	}, nil
}
