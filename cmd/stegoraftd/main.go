// Command stegoraftd runs one node of a stegoraft cluster: the Raft-flavored
// control plane (leader election, heartbeats, the HTTP+JSON peer protocol)
// backed by a durable bbolt store. It does not serve the stego codec's data
// plane itself (§1, §9) - that belongs to a facade built on this package.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/elbarbary/stegoraft/internal/raft"
	"github.com/elbarbary/stegoraft/internal/store"
	"github.com/elbarbary/stegoraft/internal/transport"
)

func main() {
	id := flag.Uint64("id", 0, "this node's numeric id")
	addr := flag.String("addr", "", "this node's listen address (host:port)")
	peers := flag.String("peers", "", "comma-separated peer list: id1=addr1,id2=addr2,...")
	dataDir := flag.String("data", "", "directory holding this node's bbolt store")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	strictLog := flag.Bool("strict-log-comparison", false, "enable the optional last-log-term/index vote check")
	flag.Parse()

	if *id == 0 || *addr == "" {
		flag.Usage()
		os.Exit(1)
	}

	peerList, err := parsePeers(*peers, *id)
	if err != nil {
		log.Fatalf("parse -peers: %v", err)
	}

	dbPath := *dataDir
	if dbPath == "" {
		dbPath = fmt.Sprintf("/tmp/stegoraft-node-%d", *id)
	}
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		log.Fatalf("create data dir %s: %v", dbPath, err)
	}

	logger := raft.NewLogger(raft.NodeID(*id), parseLevel(*logLevel))
	logger.Info("starting stegoraft node %d at %s, peers=%v", *id, *addr, peerList)

	st, err := store.Open(dbPath + "/node.db")
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	cfg := raft.DefaultConfig(raft.NodeID(*id), *addr, peerList)
	cfg.StrictLogComparison = *strictLog

	ctx := context.Background()
	node, err := raft.NewNode(ctx, cfg, st, transport.New(), logger)
	if err != nil {
		log.Fatalf("construct node: %v", err)
	}

	mux := http.NewServeMux()
	transport.NewHandlers(node).Register(mux)

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: mux,
	}

	if err := node.Start(); err != nil {
		log.Fatalf("start node: %v", err)
	}

	go func() {
		logger.Info("listening on %s", *addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	httpServer.Shutdown(shutdownCtx)
	node.Stop()
	st.Close()

	logger.Info("shutdown complete")
}

// parsePeers parses "id1=addr1,id2=addr2" into PeerInfo, excluding selfID.
func parsePeers(spec string, selfID uint64) ([]raft.PeerInfo, error) {
	if spec == "" {
		return nil, nil
	}
	var peers []raft.PeerInfo
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid peer entry %q: want id=addr", entry)
		}
		id, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid peer id %q: %w", parts[0], err)
		}
		if id == selfID {
			continue
		}
		peers = append(peers, raft.PeerInfo{ID: raft.NodeID(id), Addr: parts[1]})
	}
	return peers, nil
}

func parseLevel(s string) raft.LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return raft.LogDebug
	case "warn":
		return raft.LogWarn
	case "error":
		return raft.LogError
	default:
		return raft.LogInfo
	}
}
