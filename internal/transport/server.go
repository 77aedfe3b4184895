package transport

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/gaaliciA1990/Distributed-Systems/internal/chord"
	"github.com/gaaliciA1990/Distributed-Systems/internal/config"
	"github.com/gaaliciA1990/Distributed-Systems/pkg"
	"github.com/gaaliciA1990/Distributed-Systems/pkg/ring"
)

// NodeHandler is the part of the node the server dispatches into.
type NodeHandler interface {
	Address() *chord.NodeAddress
	FindSuccessor(ctx context.Context, id *big.Int, hops int) (*chord.NodeAddress, int, error)
	GetPredecessor() *chord.NodeAddress
	Notify(candidate *chord.NodeAddress)
	HandoffKeys(joiner *chord.NodeAddress) (*chord.HandoffResult, error)
	AckHandoff(joiner *chord.NodeAddress)
	HandleGet(ctx context.Context, key string, hops int) ([]byte, bool, *chord.NodeAddress, error)
	HandlePut(ctx context.Context, key string, value []byte, hops int) (*chord.NodeAddress, error)
	Snapshot() *chord.NodeInfo
}

// Server accepts ring RPC connections and dispatches them to the node.
type Server struct {
	node         NodeHandler
	logger       *pkg.Logger
	timeout      time.Duration
	relayTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	wg sync.WaitGroup
}

// NewServer creates a server for the given node.
func NewServer(node NodeHandler, cfg *config.Config, logger *pkg.Logger) *Server {
	return &Server{
		node:         node,
		logger:       logger.WithFields(pkg.Fields{"component": "transport"}),
		timeout:      cfg.RPCTimeout,
		relayTimeout: cfg.RelayTimeout(),
	}
}

// Start listens on address and serves until Stop. It returns once the
// listener is bound, so callers can rely on the port being open.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return fmt.Errorf("server already stopped")
	}
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().
		Str("address", listener.Addr().String()).
		Msg("transport listening")

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// Addr returns the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and waits for in-flight requests.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return
	}

	var env Envelope
	if err := readFrame(conn, &env); err != nil {
		s.logger.Debug().
			Err(err).
			Str("remote", conn.RemoteAddr().String()).
			Msg("bad request frame")
		return
	}

	// A routed request may spend close to a full client budget on each
	// downstream hop; the reply write must outlive the whole chain.
	deadline := time.Now().Add(s.timeout)
	if env.Kind.routed() {
		deadline = time.Now().Add(s.relayTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return
	}

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	resp := s.dispatch(ctx, &env)
	if err := writeFrame(conn, resp); err != nil {
		s.logger.Debug().
			Err(err).
			Str("remote", conn.RemoteAddr().String()).
			Msg("write response failed")
	}
}

func (s *Server) dispatch(ctx context.Context, env *Envelope) *Response {
	switch env.Kind {
	case KindJoin:
		joiner := toNodeAddress(env.Node)
		if joiner.IsNil() {
			return badRequest("join requires a node")
		}
		successor, hops, err := s.node.FindSuccessor(ctx, joiner.ID, env.Hops)
		if err != nil {
			return errorResponse(err, nil)
		}
		return &Response{Status: StatusOK, Node: toNodeRef(successor), Hops: hops}

	case KindFindSuccessor:
		if len(env.Target) != ring.IDBytes {
			return badRequest("find_successor requires a target id")
		}
		successor, hops, err := s.node.FindSuccessor(ctx, ring.Decode(env.Target), env.Hops)
		if err != nil {
			return errorResponse(err, nil)
		}
		return &Response{Status: StatusOK, Node: toNodeRef(successor), Hops: hops}

	case KindGetPredecessor:
		return &Response{Status: StatusOK, Node: toNodeRef(s.node.GetPredecessor())}

	case KindNotify:
		candidate := toNodeAddress(env.Node)
		if candidate.IsNil() {
			return badRequest("notify requires a node")
		}
		s.node.Notify(candidate)
		return &Response{Status: StatusOK}

	case KindHandoff:
		joiner := toNodeAddress(env.Node)
		if joiner.IsNil() {
			return badRequest("handoff requires a node")
		}
		result, err := s.node.HandoffKeys(joiner)
		if err != nil {
			return errorResponse(err, nil)
		}
		return &Response{
			Status:      StatusOK,
			Predecessor: toNodeRef(result.Predecessor),
			Keys:        result.Keys,
		}

	case KindGet:
		if env.Key == "" {
			return badRequest("get requires a key")
		}
		value, found, hint, err := s.node.HandleGet(ctx, env.Key, env.Hops)
		if err != nil {
			return errorResponse(err, hint)
		}
		if !found {
			return &Response{Status: StatusNotFound}
		}
		return &Response{Status: StatusOK, Value: value}

	case KindPut:
		if env.Key == "" {
			return badRequest("put requires a key")
		}
		hint, err := s.node.HandlePut(ctx, env.Key, env.Value, env.Hops)
		if err != nil {
			return errorResponse(err, hint)
		}
		return &Response{Status: StatusOK}

	case KindAckHandoff:
		joiner := toNodeAddress(env.Node)
		if joiner.IsNil() {
			return badRequest("handoff ack requires a node")
		}
		s.node.AckHandoff(joiner)
		return &Response{Status: StatusOK}

	case KindPing:
		return &Response{Status: StatusOK, Node: toNodeRef(s.node.Address())}

	case KindInfo:
		info := s.node.Snapshot()
		return &Response{
			Status:      StatusOK,
			Node:        toNodeRef(info.Node),
			Predecessor: toNodeRef(info.Predecessor),
			Successor:   toNodeRef(info.Successor),
			KeyCount:    info.KeyCount,
		}

	default:
		return badRequest(fmt.Sprintf("unknown operation %d", env.Kind))
	}
}

func badRequest(msg string) *Response {
	return &Response{Status: StatusError, Code: CodeBadRequest, Err: msg}
}

// errorResponse maps node errors onto wire statuses and codes.
func errorResponse(err error, hint *chord.NodeAddress) *Response {
	switch {
	case errors.Is(err, pkg.ErrNotOwner):
		return &Response{Status: StatusNotOwner, Node: toNodeRef(hint), Err: err.Error()}
	case errors.Is(err, pkg.ErrRoutingLoopDetected):
		return &Response{Status: StatusError, Code: CodeRoutingLoop, Err: err.Error()}
	case errors.Is(err, pkg.ErrOwnershipConflict):
		return &Response{Status: StatusError, Code: CodeOwnershipConflict, Err: err.Error()}
	case errors.Is(err, pkg.ErrStaleRoute):
		return &Response{Status: StatusError, Code: CodeStaleRoute, Err: err.Error()}
	case errors.Is(err, pkg.ErrPeerUnreachable):
		return &Response{Status: StatusError, Code: CodePeerUnreachable, Err: err.Error()}
	default:
		return &Response{Status: StatusError, Code: CodeInternal, Err: err.Error()}
	}
}
