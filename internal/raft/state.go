package raft

import (
	"sync"
	"time"
)

// NodeState holds every field in the data model behind one logical lock
// (Design Note §9: "a reimplementation may consolidate into one lock
// guarding a plain record"). Every exported method takes the lock for its
// whole critical section and never performs I/O while holding it.
type NodeState struct {
	mu sync.RWMutex

	self NodeID

	role            Role
	currentTerm     uint64
	votedFor        NodeID
	hasVote         bool
	votesReceived   map[NodeID]bool
	currentLeader   NodeID
	hasLeader       bool
	lastHeartbeat   time.Time
	electionTimeout time.Duration
	isHealthy       bool

	electionStart time.Time
}

// NewNodeState constructs a NodeState that starts as Follower with no
// leader hint, matching "on restart the node... always starts as Follower
// regardless of prior role" (§3).
func NewNodeState(self NodeID, electionTimeout time.Duration) *NodeState {
	return &NodeState{
		self:            self,
		role:            Follower,
		votesReceived:   make(map[NodeID]bool),
		isHealthy:       true,
		lastHeartbeat:   time.Now(),
		electionTimeout: electionTimeout,
	}
}

// GetTerm returns the current term.
func (ns *NodeState) GetTerm() uint64 {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.currentTerm
}

// AdvanceTerm writes newTerm only if it is strictly greater than the
// current term (idempotence: advance_term(t) with t <= current is a
// no-op, per §8). Advancing the term resets voted_for, per §3's invariant.
func (ns *NodeState) AdvanceTerm(newTerm uint64) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.advanceTermLocked(newTerm)
}

func (ns *NodeState) advanceTermLocked(newTerm uint64) {
	if newTerm > ns.currentTerm {
		ns.currentTerm = newTerm
		ns.hasVote = false
		ns.votedFor = 0
		ns.votesReceived = make(map[NodeID]bool)
	}
}

// GetRole returns the current role.
func (ns *NodeState) GetRole() Role {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.role
}

// SetRole sets the current role directly.
func (ns *NodeState) SetRole(r Role) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.role = r
}

// IsLeader reports whether this node currently believes itself to be Leader.
func (ns *NodeState) IsLeader() bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.role == Leader
}

// SetLeader promotes this node to Leader and sets current_leader = self.
func (ns *NodeState) SetLeader() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.role = Leader
	ns.currentLeader = ns.self
	ns.hasLeader = true
}

// SetFollower demotes this node to Follower, leaving the leader hint
// untouched (callers that also need to clear it call SetCurrentLeader).
func (ns *NodeState) SetFollower() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.role = Follower
}

// GetCurrentLeader returns the leader hint, if any.
func (ns *NodeState) GetCurrentLeader() (NodeID, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.currentLeader, ns.hasLeader
}

// SetCurrentLeader sets or clears the leader hint.
func (ns *NodeState) SetCurrentLeader(id NodeID, known bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.currentLeader = id
	ns.hasLeader = known
}

// IsHealthy reports the health gate: when false, the election monitor and
// heartbeat sender skip their ticks and /healthz reports unavailable.
// Inbound AppendEntries and RequestVote calls are still processed.
func (ns *NodeState) IsHealthy() bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.isHealthy
}

// SetHealthy flips the health gate (admin pause/restore, crash simulation).
func (ns *NodeState) SetHealthy(healthy bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.isHealthy = healthy
}

// RecordHeartbeat stamps "now" as the last time a valid heartbeat was seen.
func (ns *NodeState) RecordHeartbeat() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.lastHeartbeat = time.Now()
}

// ShouldStartElection reports whether this node should begin a new
// election: role != Leader and now - last_heartbeat > election_timeout.
func (ns *NodeState) ShouldStartElection() bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if ns.role == Leader {
		return false
	}
	return time.Since(ns.lastHeartbeat) > ns.electionTimeout
}

// StartElection atomically advances the term, becomes Candidate, votes for
// self, and clears the leader hint, returning the new term.
func (ns *NodeState) StartElection() uint64 {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.currentTerm++
	ns.role = Candidate
	ns.votedFor = ns.self
	ns.hasVote = true
	ns.votesReceived = map[NodeID]bool{ns.self: true}
	ns.hasLeader = false
	ns.electionStart = time.Now()
	return ns.currentTerm
}

// RecordVote records a granted vote from peer "from" and reports whether
// this call is the first to bring the tally to quorum, where quorum is
// floor(clusterSize/2)+1 counting self.
func (ns *NodeState) RecordVote(from NodeID, clusterSize int) bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	alreadyHadQuorum := len(ns.votesReceived) >= quorumSize(clusterSize)
	ns.votesReceived[from] = true
	nowHasQuorum := len(ns.votesReceived) >= quorumSize(clusterSize)
	return nowHasQuorum && !alreadyHadQuorum
}

// VoteCount returns the number of votes received in the current term.
func (ns *NodeState) VoteCount() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.votesReceived)
}

// ElectionElapsed returns how long it has been since StartElection was last
// called. The single-node grace check does not use it; it measures from the
// election monitor's start instead.
func (ns *NodeState) ElectionElapsed() time.Duration {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return time.Since(ns.electionStart)
}

func quorumSize(clusterSize int) int {
	return clusterSize/2 + 1
}

// GrantVote applies the exact vote-granting policy from §4.3:
//  1. If candidateTerm > currentTerm: advance term, clear voted_for, step
//     down to Follower.
//  2. Grant iff candidateTerm >= currentTerm AND (voted_for is none OR
//     voted_for == candidateID). On grant, set voted_for := candidateID.
//
// Log-recency comparison is intentionally omitted to match the observed
// protocol (§4.3, §9), unless StrictLogComparison is enabled by the caller,
// in which case lastLogTerm/lastLogIndex are compared lexicographically
// against this node's own log tail before granting.
func (ns *NodeState) GrantVote(candidateID NodeID, candidateTerm uint64, logUpToDate func() bool) (granted bool, replyTerm uint64) {
	// The log check may read the durable store, so it runs before the lock
	// is taken.
	logOK := logUpToDate == nil || logUpToDate()

	ns.mu.Lock()
	defer ns.mu.Unlock()

	if candidateTerm > ns.currentTerm {
		ns.advanceTermLocked(candidateTerm)
		ns.role = Follower
	}

	if candidateTerm < ns.currentTerm {
		return false, ns.currentTerm
	}

	canVote := !ns.hasVote || ns.votedFor == candidateID
	if canVote && !logOK {
		canVote = false
	}
	if canVote {
		ns.votedFor = candidateID
		ns.hasVote = true
		return true, ns.currentTerm
	}
	return false, ns.currentTerm
}

// ObserveTerm applies the general step-down rule: any valid RPC carrying a
// term greater than ours causes us to advance and become Follower.
func (ns *NodeState) ObserveTerm(term uint64) (steppedDown bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if term > ns.currentTerm {
		ns.advanceTermLocked(term)
		ns.role = Follower
		return true
	}
	return false
}

// Snapshot returns a consistent point-in-time copy of the fields needed to
// persist state and to answer status queries.
func (ns *NodeState) Snapshot() PersistentState {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return PersistentState{
		CurrentTerm: ns.currentTerm,
		VotedFor:    ns.votedFor,
		HasVote:     ns.hasVote,
	}
}

// Restore loads a persisted term/vote pair, used once at construction.
func (ns *NodeState) Restore(term uint64, votedFor NodeID, hasVote bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.currentTerm = term
	ns.votedFor = votedFor
	ns.hasVote = hasVote
}
