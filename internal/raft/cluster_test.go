package raft_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/elbarbary/stegoraft/internal/raft"
	"github.com/elbarbary/stegoraft/internal/store"
	"github.com/elbarbary/stegoraft/internal/transport"
)

type testCluster struct {
	nodes   []*raft.Node
	servers []*httptest.Server
	stores  []*store.BoltStore
}

func newTestCluster(t *testing.T, size int) *testCluster {
	t.Helper()
	ctx := context.Background()

	muxes := make([]*http.ServeMux, size)
	servers := make([]*httptest.Server, size)
	addrs := make([]string, size)
	for i := 0; i < size; i++ {
		muxes[i] = http.NewServeMux()
		servers[i] = httptest.NewServer(muxes[i])
		addrs[i] = servers[i].Listener.Addr().String()
	}

	c := &testCluster{servers: servers}
	for i := 0; i < size; i++ {
		var peers []raft.PeerInfo
		for j := 0; j < size; j++ {
			if j == i {
				continue
			}
			peers = append(peers, raft.PeerInfo{ID: raft.NodeID(j + 1), Addr: addrs[j]})
		}

		dbPath := filepath.Join(t.TempDir(), "node.db")
		st, err := store.Open(dbPath)
		if err != nil {
			t.Fatalf("store.Open: %v", err)
		}
		c.stores = append(c.stores, st)

		cfg := raft.DefaultConfig(raft.NodeID(i+1), addrs[i], peers)
		logger := raft.NewLogger(raft.NodeID(i+1), raft.LogError)
		node, err := raft.NewNode(ctx, cfg, st, transport.New(), logger)
		if err != nil {
			t.Fatalf("NewNode: %v", err)
		}
		c.nodes = append(c.nodes, node)

		handlers := transport.NewHandlers(node)
		handlers.Register(muxes[i])
	}

	for _, n := range c.nodes {
		if err := n.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	return c
}

func (c *testCluster) stop() {
	for _, n := range c.nodes {
		n.Stop()
	}
	for _, s := range c.stores {
		s.Close()
	}
	for _, srv := range c.servers {
		srv.Close()
	}
}

// leader polls the cluster until exactly one node reports itself Leader, or
// deadline elapses, returning that node (or nil on timeout).
func (c *testCluster) leader(deadline time.Duration) *raft.Node {
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		var leaders []*raft.Node
		for _, n := range c.nodes {
			if n.IsLeader() {
				leaders = append(leaders, n)
			}
		}
		if len(leaders) == 1 {
			return leaders[0]
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

func TestClusterElectsOneLeaderFromColdStart(t *testing.T) {
	c := newTestCluster(t, 3)
	defer c.stop()

	leader := c.leader(3 * time.Second)
	if leader == nil {
		t.Fatalf("no single leader elected within deadline")
	}
}

func TestClusterFailsOverWhenLeaderPauses(t *testing.T) {
	c := newTestCluster(t, 3)
	defer c.stop()

	firstLeader := c.leader(3 * time.Second)
	if firstLeader == nil {
		t.Fatalf("no leader elected before failover attempt")
	}
	firstLeader.SetHealthy(false)

	end := time.Now().Add(4 * time.Second)
	var newLeader *raft.Node
	for time.Now().Before(end) {
		for _, n := range c.nodes {
			if n.ID() != firstLeader.ID() && n.IsLeader() {
				newLeader = n
				break
			}
		}
		if newLeader != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if newLeader == nil {
		t.Fatalf("no new leader elected after the original leader paused")
	}
}
