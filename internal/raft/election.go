package raft

import (
	"context"
	"time"
)

// runElectionMonitor implements §4.4.1. It ticks every 50ms and, per tick,
// in order: sends a proactive leader-liveness probe, enforces the election
// throttle, checks the election timeout, tallies an in-flight vote round,
// and applies the single-node grace promotion. It exits the moment this
// node is promoted to Leader.
func (n *Node) runElectionMonitor() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.HeartbeatInterval)
	defer ticker.Stop()

	monitorStart := time.Now()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
		}

		if !n.state.IsHealthy() {
			continue
		}
		if n.state.GetRole() == Leader {
			return
		}

		n.proactiveProbe()

		if !n.electionThrottleAllows() {
			continue
		}

		if n.state.ShouldStartElection() {
			if n.runElectionRound(monitorStart) {
				return
			}
		}
	}
}

// proactiveProbe implements §4.4.1 step 1: a short liveness probe against
// the believed leader, purely to convert network-unreachability into an
// election trigger without waiting out the full timeout. The probe body is
// a RequestVote, but its response is discarded and never counted as a real
// vote (Design Note §9).
func (n *Node) proactiveProbe() {
	if n.state.GetRole() == Leader {
		return
	}
	leaderID, hasLeader := n.state.GetCurrentLeader()
	if !hasLeader {
		return
	}
	addr, err := n.peerAddr(leaderID)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.config.ProbeOverallTimeout)
	defer cancel()

	probeCtx, probeCancel := context.WithTimeout(ctx, n.config.ProbeClientTimeout)
	defer probeCancel()

	_, err = n.trans.SendRequestVote(probeCtx, PeerInfo{ID: leaderID, Addr: addr}, RequestVoteRequest{
		Term:        n.state.GetTerm(),
		CandidateID: n.id,
	})

	n.probeMu.Lock()
	defer n.probeMu.Unlock()
	if err != nil {
		n.probeFailures++
		n.log.LogProbeFailure(leaderID, n.probeFailures)
		if n.probeFailures >= 3 && n.timeSinceLastAttempt() >= 100*time.Millisecond {
			// Force the next step to proceed by backdating the
			// election-throttle timestamp (§4.4.1 step 1).
			n.electionAttemptMu.Lock()
			n.lastElectionAttempt = time.Now().Add(-n.config.ElectionThrottle)
			n.electionAttemptMu.Unlock()
		}
	} else {
		if n.probeFailures != 0 {
			n.log.LogProbeRecovered(leaderID)
		}
		n.probeFailures = 0
	}
}

func (n *Node) timeSinceLastAttempt() time.Duration {
	n.electionAttemptMu.Lock()
	defer n.electionAttemptMu.Unlock()
	if n.lastElectionAttempt.IsZero() {
		return time.Hour
	}
	return time.Since(n.lastElectionAttempt)
}

// electionThrottleAllows enforces §4.4.1 step 2: no new election may start
// within ElectionThrottle of the previous attempt, irrespective of timeout
// expiry.
func (n *Node) electionThrottleAllows() bool {
	n.electionAttemptMu.Lock()
	defer n.electionAttemptMu.Unlock()
	return n.lastElectionAttempt.IsZero() || time.Since(n.lastElectionAttempt) >= n.config.ElectionThrottle
}

func (n *Node) markElectionAttempt() {
	n.electionAttemptMu.Lock()
	n.lastElectionAttempt = time.Now()
	n.electionAttemptMu.Unlock()
}

// runElectionRound implements §4.4.1 steps 3-5: starts an election, casts
// the broadcast, tallies votes, and applies the single-node grace
// promotion if the round closed with only this node's own vote. Returns
// true iff this node was promoted to Leader during this round (having
// spawned the heartbeat sender already).
func (n *Node) runElectionRound(monitorStart time.Time) bool {
	n.markElectionAttempt()

	term := n.state.StartElection()
	n.log.LogElectionStart(term)

	ctx, cancel := context.WithTimeout(context.Background(), n.config.RPCTimeout)
	defer cancel()

	req := RequestVoteRequest{
		Term:         term,
		CandidateID:  n.id,
		LastLogIndex: 0,
		LastLogTerm:  0,
	}
	results := n.trans.BroadcastRequestVote(ctx, n.Peers(), req)

	clusterSize := n.ClusterSize()
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if r.Reply.Term > term {
			n.state.ObserveTerm(r.Reply.Term)
			n.log.LogStepDown(term, r.Reply.Term, "higher term observed during election")
			return false
		}
		if r.Reply.VoteGranted {
			if n.state.RecordVote(r.PeerID, clusterSize) {
				n.promoteToLeader(term)
				return true
			}
		}
	}

	votes := n.state.VoteCount()
	needed := quorumSize(clusterSize)
	if n.shouldSoloPromote(monitorStart) {
		n.soloPromote()
		return true
	}
	n.log.LogElectionLost(term, votes, needed)
	return false
}

// shouldSoloPromote implements §4.4.1 step 5: a lone node that has
// received only its own vote may promote itself unilaterally once
// SingleNodeGrace has elapsed since task startup.
func (n *Node) shouldSoloPromote(monitorStart time.Time) bool {
	if n.state.VoteCount() > 1 {
		return false
	}
	if n.state.GetRole() == Leader {
		return false
	}
	return time.Since(monitorStart) >= n.config.SingleNodeGrace
}

func (n *Node) soloPromote() {
	term := n.state.GetTerm()
	n.log.LogSoloPromotion(term, time.Since(n.startedAt))
	n.promoteToLeader(term)
}

func (n *Node) promoteToLeader(term uint64) {
	n.state.SetLeader()
	votes := n.state.VoteCount()
	needed := quorumSize(n.ClusterSize())
	n.log.LogElectionWon(term, votes, needed)
	n.log.LogRoleChange(Candidate, Leader, term)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.persistState(ctx); err != nil {
		n.log.Error("failed to persist state after election win: %v", err)
	}

	n.wg.Add(1)
	go n.runHeartbeatSender()
}
