package raft

import (
	"context"
	"sync"
	"time"
)

// Node ties together the node state (C3), the durable store (C1), the peer
// transport (C2), and the background tasks (C4) into one running instance.
type Node struct {
	id     NodeID
	config Config
	state  *NodeState
	store  Store
	trans  Transport
	log    *Logger

	peers   []PeerInfo
	peersMu sync.RWMutex

	probeFailures int
	probeMu       sync.Mutex

	lastElectionAttempt time.Time
	electionAttemptMu   sync.Mutex

	startedAt time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewNode constructs a Node, restoring term/voted_for from the durable
// store and always starting as Follower with no leader hint (§3, §4.3).
func NewNode(ctx context.Context, config Config, store Store, trans Transport, logger *Logger) (*Node, error) {
	if config.ElectionTimeoutRange == 0 && config.ElectionTimeoutBase == 0 {
		config = DefaultConfig(config.NodeID, config.Addr, config.Peers)
	}
	if logger == nil {
		logger = NewLogger(config.NodeID, LogInfo)
	}

	state := NewNodeState(config.NodeID, config.electionTimeout())

	n := &Node{
		id:        config.NodeID,
		config:    config,
		state:     state,
		store:     store,
		trans:     trans,
		log:       logger,
		peers:     append([]PeerInfo(nil), config.Peers...),
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
	}

	if err := n.restoreState(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) restoreState(ctx context.Context) error {
	saved, ok, err := n.store.LoadState(ctx)
	if err != nil {
		return err
	}
	if ok {
		n.state.Restore(saved.CurrentTerm, saved.VotedFor, saved.HasVote)
	}
	return n.persistState(ctx)
}

// persistState writes the current (term, voted_for, commit=0,
// last_applied=0) to the state key, per §4.3.
func (n *Node) persistState(ctx context.Context) error {
	snap := n.state.Snapshot()
	return n.store.SaveState(ctx, snap)
}

// Peers returns a copy of the current peer registry.
func (n *Node) Peers() []PeerInfo {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()
	return append([]PeerInfo(nil), n.peers...)
}

// ClusterSize is the number of voting members including self.
func (n *Node) ClusterSize() int {
	return len(n.Peers()) + 1
}

func (n *Node) peerAddr(id NodeID) (string, error) {
	for _, p := range n.Peers() {
		if p.ID == id {
			return p.Addr, nil
		}
	}
	return "", ErrNodeNotFound
}

// ID returns this node's identity.
func (n *Node) ID() NodeID { return n.id }

// State exposes the underlying NodeState for callers (tasks, handlers,
// status queries) that need direct access without re-deriving it.
func (n *Node) State() *NodeState { return n.state }

// IsLeader reports whether this node currently believes itself Leader.
func (n *Node) IsLeader() bool { return n.state.IsLeader() }

// SetHealthy flips the admin health gate.
func (n *Node) SetHealthy(healthy bool) { n.state.SetHealthy(healthy) }

// Status is a snapshot suitable for a facade's /cluster/status rendering.
type Status struct {
	ID          NodeID
	Term        uint64
	Role        Role
	LeaderID    NodeID
	HasLeader   bool
	Healthy     bool
	CommitIndex uint64
}

// Status returns a consistent snapshot of this node's externally relevant
// state. Store access (commit index) is best-effort: on error it reports 0
// rather than failing the whole status call, since this is a read-only
// introspection primitive, not part of the protocol.
func (n *Node) Status(ctx context.Context) Status {
	leader, hasLeader := n.state.GetCurrentLeader()
	commit, err := n.store.GetCommitIndex(ctx)
	if err != nil {
		commit = 0
	}
	return Status{
		ID:          n.id,
		Term:        n.state.GetTerm(),
		Role:        n.state.GetRole(),
		LeaderID:    leader,
		HasLeader:   hasLeader,
		Healthy:     n.state.IsHealthy(),
		CommitIndex: commit,
	}
}

// LeaderAddr returns the address a write-oriented facade should redirect a
// client to (§6's not-leader 307 body), or ErrNotLeader if this node has no
// leader hint at all. Grounded on the not-leader redirect shape described
// by the original control plane's redirect handling.
func (n *Node) LeaderAddr() (string, error) {
	leaderID, hasLeader := n.state.GetCurrentLeader()
	if !hasLeader {
		return "", ErrNotLeader
	}
	if leaderID == n.id {
		return n.config.Addr, nil
	}
	return n.peerAddr(leaderID)
}

// PeerHealth concurrently probes every peer's /healthz endpoint, bounding
// each probe to HealthCheckTimeout, for a facade's cluster-status view.
func (n *Node) PeerHealth(ctx context.Context) map[NodeID]bool {
	peers := n.Peers()
	result := make(map[NodeID]bool, len(peers))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range peers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, n.config.HealthCheckTimeout)
			defer cancel()
			healthy := n.trans.HealthCheck(probeCtx, p.Addr)
			mu.Lock()
			result[p.ID] = healthy
			mu.Unlock()
		}()
	}
	wg.Wait()
	return result
}

// Start launches the dispatcher (§4.4.3), which after a short settle delay
// spawns the election monitor or the heartbeat sender depending on the
// node's initial role (a Learner spawns neither). Returns ErrNodeStopped if this Node has
// already been Stop()-ped; a Node is not restartable.
func (n *Node) Start() error {
	select {
	case <-n.stopCh:
		return ErrNodeStopped
	default:
	}
	n.wg.Add(1)
	go n.dispatcher()
	return nil
}

// Stop signals all background tasks to exit and waits for them to return.
// In-flight RPCs are not cancelled: a task in the middle of one returns
// only after that RPC completes or its own timeout expires.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
	})
	n.wg.Wait()
}

func (n *Node) dispatcher() {
	defer n.wg.Done()

	select {
	case <-time.After(100 * time.Millisecond):
	case <-n.stopCh:
		return
	}

	switch n.state.GetRole() {
	case Leader:
		n.wg.Add(1)
		go n.runHeartbeatSender()
	case Follower, Candidate:
		n.wg.Add(1)
		go n.runElectionMonitor()
	case Learner:
		// Learners spawn nothing (§4.4.3).
	}
}

// HandleAppendEntries implements the inbound AppendEntries semantics of
// §4.4.4. The HTTP facade decodes the request and calls this method.
func (n *Node) HandleAppendEntries(ctx context.Context, req AppendEntriesRequest) AppendEntriesResponse {
	myTerm := n.state.GetTerm()
	if req.Term > myTerm {
		n.state.AdvanceTerm(req.Term)
		myTerm = req.Term
	}

	if req.Term >= myTerm {
		n.state.SetCurrentLeader(req.LeaderID, true)
	}

	if req.Term >= myTerm && n.state.IsLeader() && req.LeaderID != n.id {
		// Split-brain resolution: a leader seeing another leader's
		// AppendEntries at term >= its own steps down immediately.
		n.state.SetFollower()
		n.log.LogStepDown(myTerm, req.Term, "observed concurrent leader")
	} else if req.Term >= myTerm && n.state.GetRole() != Leader {
		n.state.SetRole(Follower)
	}

	n.state.RecordHeartbeat()
	n.log.LogHeartbeatReceived(req.LeaderID, req.Term)

	return AppendEntriesResponse{
		Term:        n.state.GetTerm(),
		Success:     true,
		ConflictOpt: nil,
	}
}

// HandleRequestVote implements the inbound RequestVote semantics of §4.4.4.
func (n *Node) HandleRequestVote(ctx context.Context, req RequestVoteRequest) RequestVoteResponse {
	granted, term := n.state.GrantVote(req.CandidateID, req.Term, n.logUpToDateCheck(req))
	if granted {
		n.log.LogVoteGranted(req.CandidateID, req.Term)
	} else {
		n.log.LogVoteDenied(req.CandidateID, req.Term, "already voted or stale term")
	}
	return RequestVoteResponse{Term: term, VoteGranted: granted}
}

// logUpToDateCheck returns nil unless StrictLogComparison is enabled, in
// which case it compares the candidate's last log term/index against this
// node's own log tail, lexicographically, before granting.
func (n *Node) logUpToDateCheck(req RequestVoteRequest) func() bool {
	if !n.config.StrictLogComparison {
		return nil
	}
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), n.config.RPCTimeout)
		defer cancel()
		myIndex, myTerm, err := n.store.LastLogInfo(ctx)
		if err != nil {
			return false
		}
		if req.LastLogTerm != myTerm {
			return req.LastLogTerm > myTerm
		}
		return req.LastLogIndex >= myIndex
	}
}
