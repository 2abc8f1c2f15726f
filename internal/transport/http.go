// Package transport implements the peer-transport contract (C2) over plain
// HTTP and JSON, per §6: POST /raft/append-entries, POST /raft/request-vote,
// GET /healthz.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/elbarbary/stegoraft/internal/raft"
)

// requestIDHeader carries a per-RPC correlation id so a request's log lines
// on the sending and receiving node can be matched up by hand.
const requestIDHeader = "X-Request-Id"

// HTTPTransport is a raft.Transport implementation using a shared
// *http.Client for connection pooling.
type HTTPTransport struct {
	client *http.Client
}

// New constructs an HTTPTransport. The client itself carries no timeout;
// every call scopes its own deadline via context, since different RPCs
// (5s) and health checks (2s) and probes (100ms) need different bounds.
func New() *HTTPTransport {
	return &HTTPTransport{client: &http.Client{}}
}

func postJSON(ctx context.Context, client *http.Client, url string, body, out interface{}) error {
	requestID := uuid.NewString()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("transport: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, requestID)

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("transport: [%s] %s: %v", requestID, url, err)
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("transport: %s: %w", url, raft.ErrTimeout)
		}
		return fmt.Errorf("transport: %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("transport: [%s] %s: status %d", requestID, url, resp.StatusCode)
		return fmt.Errorf("transport: %s: status %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("transport: decode response from %s: %w", url, err)
	}
	return nil
}

// SendRequestVote POSTs to /raft/request-vote with a 5s hard timeout.
func (t *HTTPTransport) SendRequestVote(ctx context.Context, peer raft.PeerInfo, req raft.RequestVoteRequest) (raft.RequestVoteResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var reply raft.RequestVoteResponse
	url := fmt.Sprintf("http://%s/raft/request-vote", peer.Addr)
	err := postJSON(ctx, t.client, url, req, &reply)
	return reply, err
}

// SendAppendEntries POSTs to /raft/append-entries with a 5s hard timeout.
func (t *HTTPTransport) SendAppendEntries(ctx context.Context, peer raft.PeerInfo, req raft.AppendEntriesRequest) (raft.AppendEntriesResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var reply raft.AppendEntriesResponse
	url := fmt.Sprintf("http://%s/raft/append-entries", peer.Addr)
	err := postJSON(ctx, t.client, url, req, &reply)
	return reply, err
}

// HealthCheck GETs /healthz with a 2s timeout, succeeding only on 2xx.
func (t *HTTPTransport) HealthCheck(ctx context.Context, addr string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	url := fmt.Sprintf("http://%s/healthz", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// BroadcastRequestVote fans the call out to every peer concurrently via
// errgroup, preserving one peer-ordered result slot per peer so a partial
// failure never fails the whole call (§4.2).
func (t *HTTPTransport) BroadcastRequestVote(ctx context.Context, peers []raft.PeerInfo, req raft.RequestVoteRequest) []raft.PeerResult[raft.RequestVoteResponse] {
	results := make([]raft.PeerResult[raft.RequestVoteResponse], len(peers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range peers {
		i, p := i, p
		g.Go(func() error {
			reply, err := t.SendRequestVote(gctx, p, req)
			results[i] = raft.PeerResult[raft.RequestVoteResponse]{PeerID: p.ID, Reply: reply, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// BroadcastAppendEntries fans the call out to every peer concurrently, same
// discipline as BroadcastRequestVote.
func (t *HTTPTransport) BroadcastAppendEntries(ctx context.Context, peers []raft.PeerInfo, req raft.AppendEntriesRequest) []raft.PeerResult[raft.AppendEntriesResponse] {
	results := make([]raft.PeerResult[raft.AppendEntriesResponse], len(peers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range peers {
		i, p := i, p
		g.Go(func() error {
			reply, err := t.SendAppendEntries(gctx, p, req)
			results[i] = raft.PeerResult[raft.AppendEntriesResponse]{PeerID: p.ID, Reply: reply, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

var _ raft.Transport = (*HTTPTransport)(nil)

// handlerTimeout bounds how long an inbound handler waits on the node
// before giving up; kept well under the RPC timeout peers use to call us.
const handlerTimeout = time.Second
