package transport

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/elbarbary/stegoraft/internal/raft"
)

// node is the subset of *raft.Node the inbound RPC handlers need. Defined
// as an interface here so this package does not require the concrete raft
// type for anything beyond the two handler calls and the health gate.
type node interface {
	HandleAppendEntries(ctx context.Context, req raft.AppendEntriesRequest) raft.AppendEntriesResponse
	HandleRequestVote(ctx context.Context, req raft.RequestVoteRequest) raft.RequestVoteResponse
	State() *raft.NodeState
}

// Handlers wires the core-owned wire format (§6) into stdlib
// http.HandlerFuncs, suitable for registration on any *http.ServeMux a
// facade constructs.
type Handlers struct {
	n node
}

// NewHandlers builds the three inbound RPC handlers for n.
func NewHandlers(n node) *Handlers {
	return &Handlers{n: n}
}

// requestID returns the caller's correlation id, or mints one if the peer
// didn't send one (e.g. a manually-crafted request).
func requestID(r *http.Request) string {
	if id := r.Header.Get(requestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

// AppendEntries handles POST /raft/append-entries.
func (h *Handlers) AppendEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := requestID(r)
	var req raft.AppendEntriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("transport: [%s] bad append-entries body: %v", id, err)
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()
	resp := h.n.HandleAppendEntries(ctx, req)
	w.Header().Set(requestIDHeader, id)
	writeJSON(w, resp)
}

// RequestVote handles POST /raft/request-vote.
func (h *Handlers) RequestVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := requestID(r)
	var req raft.RequestVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("transport: [%s] bad request-vote body: %v", id, err)
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()
	resp := h.n.HandleRequestVote(ctx, req)
	w.Header().Set(requestIDHeader, id)
	writeJSON(w, resp)
}

// Healthz handles GET /healthz: 2xx iff the node is not paused.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if !h.n.State().IsHealthy() {
		http.Error(w, "paused", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Register mounts all three handlers on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/raft/append-entries", h.AppendEntries)
	mux.HandleFunc("/raft/request-vote", h.RequestVote)
	mux.HandleFunc("/healthz", h.Healthz)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
