package integration

import (
	"context"
	"fmt"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaaliciA1990/Distributed-Systems/internal/chord"
	"github.com/gaaliciA1990/Distributed-Systems/internal/config"
	"github.com/gaaliciA1990/Distributed-Systems/internal/transport"
	"github.com/gaaliciA1990/Distributed-Systems/pkg"
	"github.com/gaaliciA1990/Distributed-Systems/pkg/ring"
)

// testCluster is a set of real nodes talking TCP on loopback.
type testCluster struct {
	nodes   []*chord.ChordNode
	servers []*transport.Server
	logger  *pkg.Logger
}

func newTestCluster(t *testing.T) *testCluster {
	t.Helper()

	logger, err := pkg.NewLogger(&pkg.LoggerConfig{Level: "error"})
	require.NoError(t, err)

	return &testCluster{logger: logger}
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

// addNode brings up one node. An empty bootstrap creates the ring.
func (tc *testCluster) addNode(t *testing.T, bootstrap string) *chord.ChordNode {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.StabilizeInterval = 100 * time.Millisecond
	cfg.FixFingersInterval = 50 * time.Millisecond
	cfg.RPCTimeout = 5 * time.Second

	node, err := chord.NewChordNode(cfg, tc.logger)
	require.NoError(t, err)

	node.SetRemote(transport.NewClient(cfg, tc.logger))
	server := transport.NewServer(node, cfg, tc.logger)

	if bootstrap == "" {
		require.NoError(t, node.Create())
	} else {
		require.NoError(t, node.Join(context.Background(), bootstrap))
	}
	require.NoError(t, server.Start(cfg.Address()))

	tc.nodes = append(tc.nodes, node)
	tc.servers = append(tc.servers, server)
	return node
}

func (tc *testCluster) shutdown(t *testing.T) {
	t.Helper()
	for _, server := range tc.servers {
		assert.NoError(t, server.Stop())
	}
	for _, node := range tc.nodes {
		assert.NoError(t, node.Shutdown())
	}
}

// waitForStableRing polls until the successor walk from the first node
// closes through every member.
func (tc *testCluster) waitForStableRing(t *testing.T) {
	t.Helper()

	byAddr := make(map[string]*chord.ChordNode, len(tc.nodes))
	for _, node := range tc.nodes {
		byAddr[node.Address().Address()] = node
	}

	require.Eventually(t, func() bool {
		visited := make(map[string]bool)
		current := tc.nodes[0].Address()
		for i := 0; i < len(tc.nodes); i++ {
			node, ok := byAddr[current.Address()]
			if !ok || visited[current.Address()] {
				return false
			}
			visited[current.Address()] = true

			// Each member must also be pointed back at by its successor.
			succ := node.Snapshot().Successor
			if succ.IsNil() {
				return false
			}
			succNode, ok := byAddr[succ.Address()]
			if !ok {
				return false
			}
			pred := succNode.GetPredecessor()
			if pred == nil || !pred.Equals(node.Address()) {
				return false
			}
			current = succ
		}
		return current.Equals(tc.nodes[0].Address()) && len(visited) == len(tc.nodes)
	}, 15*time.Second, 100*time.Millisecond, "ring never stabilized")
}

func TestFiveNodeRing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := newTestCluster(t)
	defer tc.shutdown(t)

	first := tc.addNode(t, "")
	bootstrap := first.Address().Address()
	for i := 0; i < 4; i++ {
		tc.addNode(t, bootstrap)
	}

	tc.waitForStableRing(t)

	ctx := context.Background()

	t.Run("writes and reads from every entry point", func(t *testing.T) {
		const total = 50
		for i := 0; i < total; i++ {
			writer := tc.nodes[i%len(tc.nodes)]
			require.NoError(t, writer.Put(ctx, fmt.Sprintf("cluster-%d", i), []byte(fmt.Sprintf("value-%d", i))))
		}

		for i := 0; i < total; i++ {
			reader := tc.nodes[(i+2)%len(tc.nodes)]
			value, found, err := reader.Get(ctx, fmt.Sprintf("cluster-%d", i))
			require.NoError(t, err)
			require.True(t, found, "key cluster-%d not found", i)
			assert.Equal(t, []byte(fmt.Sprintf("value-%d", i)), value)
		}
	})

	t.Run("keys distributed across members", func(t *testing.T) {
		holders := 0
		total := 0
		for _, node := range tc.nodes {
			count := node.KeyCount()
			total += count
			if count > 0 {
				holders++
			}
		}
		assert.Equal(t, 50, total, "keys lost or duplicated")
		assert.GreaterOrEqual(t, holders, 2, "all keys landed on one node")
	})

	t.Run("lookups agree and stay within hop budget", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			keyID := ring.HashString(fmt.Sprintf("probe-%d", i))

			var owner *chord.NodeAddress
			for _, node := range tc.nodes {
				got, hops, err := node.FindSuccessor(ctx, keyID, 0)
				require.NoError(t, err)
				if owner == nil {
					owner = got
				} else {
					assert.True(t, got.Equals(owner), "probe %d resolved inconsistently", i)
				}
				assert.LessOrEqual(t, hops, 2*ring.M)
			}
		}
	})

	t.Run("lookup hops are logarithmic once fingers settle", func(t *testing.T) {
		// Let the fix-fingers loops converge, then check the average.
		time.Sleep(2 * time.Second)

		totalHops := 0
		const probes = 40
		for i := 0; i < probes; i++ {
			_, hops, err := tc.nodes[0].FindSuccessor(ctx, ring.HashString(fmt.Sprintf("hop-%d", i)), 0)
			require.NoError(t, err)
			totalHops += hops
		}
		avg := float64(totalHops) / probes
		bound := 2 * math.Log2(float64(len(tc.nodes)))
		assert.LessOrEqual(t, avg, bound+1,
			"average hops %.2f exceeds expected O(log n) bound %.2f", avg, bound+1)
	})
}

func TestJoinMovesOnlyOwnedKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := newTestCluster(t)
	defer tc.shutdown(t)

	first := tc.addNode(t, "")
	second := tc.addNode(t, first.Address().Address())
	tc.waitForStableRing(t)

	ctx := context.Background()
	const total = 60
	for i := 0; i < total; i++ {
		require.NoError(t, first.Put(ctx, fmt.Sprintf("mv-%d", i), []byte("v")))
	}

	third := tc.addNode(t, first.Address().Address())
	tc.waitForStableRing(t)

	t.Run("conservation", func(t *testing.T) {
		sum := 0
		for _, node := range tc.nodes {
			sum += node.KeyCount()
		}
		assert.Equal(t, total, sum)
	})

	t.Run("third node only holds its interval", func(t *testing.T) {
		pred := third.GetPredecessor()
		require.NotNil(t, pred)
		for _, key := range third.Keys() {
			assert.True(t, ring.InRange(ring.HashString(key), pred.ID, third.ID()),
				"key %q outside the new node's interval", key)
		}
	})

	t.Run("all keys reachable after the move", func(t *testing.T) {
		for i := 0; i < total; i++ {
			key := fmt.Sprintf("mv-%d", i)
			value, found, err := second.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, found, "key %q lost in handoff", key)
			assert.Equal(t, []byte("v"), value)
		}
	})
}
