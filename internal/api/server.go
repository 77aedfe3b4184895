// Package api exposes a node's state over HTTP for monitoring and
// manual inspection, plus a WebSocket feed of ring events.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gaaliciA1990/Distributed-Systems/internal/chord"
	"github.com/gaaliciA1990/Distributed-Systems/pkg"
)

// NodeView is the read/write surface the API exposes.
type NodeView interface {
	Address() *chord.NodeAddress
	Snapshot() *chord.NodeInfo
	FingerTable() []*chord.FingerEntry
	Keys() []string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Server is the HTTP monitoring server.
type Server struct {
	node       NodeView
	remote     chord.RemoteClient
	hub        *WebSocketHub
	logger     *pkg.Logger
	httpServer *http.Server
}

// NewServer creates an API server for the given node. The hub may be nil
// when no event feed is wanted.
func NewServer(node NodeView, remote chord.RemoteClient, hub *WebSocketHub, logger *pkg.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("node cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Server{
		node:   node,
		remote: remote,
		hub:    hub,
		logger: logger.WithFields(pkg.Fields{"component": "http_api"}),
	}, nil
}

// Start serves the API on the given port.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/node", s.handleNode)
	mux.HandleFunc("/api/fingers", s.handleFingers)
	mux.HandleFunc("/api/ring", s.handleRing)
	mux.HandleFunc("/api/keys", s.handleKeyList)
	mux.HandleFunc("/api/keys/", s.handleKey)

	if s.hub != nil {
		go s.hub.Run()
		mux.HandleFunc("/api/ws", s.hub.HandleWebSocket)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      corsMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Int("port", port).Msg("http api starting")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("http server error")
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
	}
	return nil
}

type nodeJSON struct {
	ID      string `json:"id"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Address string `json:"address"`
}

func toNodeJSON(node *chord.NodeAddress) *nodeJSON {
	if node.IsNil() {
		return nil
	}
	return &nodeJSON{
		ID:      node.ID.Text(16),
		Host:    node.Host,
		Port:    node.Port,
		Address: node.Address(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	info := s.node.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"node":        toNodeJSON(info.Node),
		"predecessor": toNodeJSON(info.Predecessor),
		"successor":   toNodeJSON(info.Successor),
		"key_count":   info.KeyCount,
	})
}

func (s *Server) handleFingers(w http.ResponseWriter, r *http.Request) {
	type fingerJSON struct {
		Index int       `json:"index"`
		Start string    `json:"start"`
		Node  *nodeJSON `json:"node"`
	}

	fingers := s.node.FingerTable()
	out := make([]fingerJSON, 0, len(fingers))
	for i, entry := range fingers {
		if entry == nil {
			continue
		}
		out = append(out, fingerJSON{
			Index: i,
			Start: entry.Start.Text(16),
			Node:  toNodeJSON(entry.Node),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRing walks successor pointers and reports every reachable member.
func (s *Server) handleRing(w http.ResponseWriter, r *http.Request) {
	if s.remote == nil {
		http.Error(w, "ring walk unavailable", http.StatusServiceUnavailable)
		return
	}

	type memberJSON struct {
		Node     *nodeJSON `json:"node"`
		KeyCount int       `json:"key_count"`
	}

	self := s.node.Address()
	members := []memberJSON{{Node: toNodeJSON(self), KeyCount: s.node.Snapshot().KeyCount}}

	current := s.node.Snapshot().Successor
	// Bounded walk so a broken ring cannot pin the handler.
	for i := 0; i < 1024 && !current.IsNil() && !current.Equals(self); i++ {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		info, err := s.remote.Info(ctx, current.Address())
		cancel()
		if err != nil {
			s.logger.Debug().Err(err).Str("peer", current.String()).Msg("ring walk stopped")
			break
		}
		members = append(members, memberJSON{Node: toNodeJSON(info.Node), KeyCount: info.KeyCount})
		current = info.Successor
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"size":    len(members),
		"members": members,
	})
}

func (s *Server) handleKeyList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"keys": s.node.Keys()})
}

// handleKey serves GET and PUT on /api/keys/{key}, routed through the
// ring like any other request.
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/keys/")
	if key == "" {
		http.Error(w, "key required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		value, found, err := s.node.Get(r.Context(), key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if !found {
			http.Error(w, "key not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(value)

	case http.MethodPut, http.MethodPost:
		value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}
		if err := s.node.Put(r.Context(), key, value); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// corsMiddleware allows browser-based dashboards to call the API.
func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}
