package raft

import (
	"context"
	"time"
)

// runHeartbeatSender implements §4.4.2. It ticks every 50ms, broadcasting
// an empty AppendEntries (log replication is a stub per §9: entries is
// always empty, prev_log_* is unused). If any peer's reply carries a
// higher term, this node steps down and the sender exits.
func (n *Node) runHeartbeatSender() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
		}

		if n.state.GetRole() != Leader {
			return
		}
		if !n.state.IsHealthy() {
			continue
		}

		term := n.state.GetTerm()
		req := AppendEntriesRequest{
			Term:         term,
			LeaderID:     n.id,
			PrevLogIndex: 0,
			PrevLogTerm:  0,
			Entries:      nil,
			LeaderCommit: 0,
		}

		ctx, cancel := context.WithTimeout(context.Background(), n.config.RPCTimeout)
		results := n.trans.BroadcastAppendEntries(ctx, n.Peers(), req)
		cancel()

		n.log.LogHeartbeatSent(term, len(results))

		for _, r := range results {
			if r.Err != nil {
				continue
			}
			if r.Reply.Term > term {
				n.state.ObserveTerm(r.Reply.Term)
				n.state.SetFollower()
				n.state.SetCurrentLeader(0, false)
				n.log.LogStepDown(term, r.Reply.Term, "higher term observed on heartbeat reply")
				return
			}
		}
	}
}
