package raft

import (
	"testing"
	"time"
)

func TestAdvanceTermIsMonotonicAndIdempotent(t *testing.T) {
	ns := NewNodeState(1, 50*time.Millisecond)

	ns.AdvanceTerm(5)
	if got := ns.GetTerm(); got != 5 {
		t.Fatalf("term = %d, want 5", got)
	}

	ns.AdvanceTerm(3)
	if got := ns.GetTerm(); got != 5 {
		t.Fatalf("advancing to a lower term changed it: term = %d, want 5", got)
	}

	ns.AdvanceTerm(5)
	if got := ns.GetTerm(); got != 5 {
		t.Fatalf("advancing to the same term changed it: term = %d, want 5", got)
	}
}

func TestAdvanceTermClearsVote(t *testing.T) {
	ns := NewNodeState(1, 50*time.Millisecond)
	granted, _ := ns.GrantVote(2, 1, nil)
	if !granted {
		t.Fatalf("expected vote granted")
	}

	ns.AdvanceTerm(2)

	granted, _ = ns.GrantVote(3, 2, nil)
	if !granted {
		t.Fatalf("expected vote granted to a new candidate after term advanced and vote cleared")
	}
}

func TestGrantVotePolicy(t *testing.T) {
	cases := []struct {
		name          string
		setupTerm     uint64
		priorVote     NodeID
		hasPriorVote  bool
		candidate     NodeID
		candidateTerm uint64
		wantGranted   bool
	}{
		{"fresh node grants first request", 0, 0, false, 7, 1, true},
		{"denies stale term", 5, 0, false, 7, 3, false},
		{"denies already voted for someone else", 3, 9, true, 7, 3, false},
		{"grants repeat request from same candidate", 3, 7, true, 7, 3, true},
		{"higher term resets vote and grants", 3, 9, true, 7, 4, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ns := NewNodeState(1, 50*time.Millisecond)
			if tc.setupTerm > 0 {
				ns.AdvanceTerm(tc.setupTerm)
			}
			if tc.hasPriorVote {
				ns.mu.Lock()
				ns.votedFor = tc.priorVote
				ns.hasVote = true
				ns.mu.Unlock()
			}

			granted, _ := ns.GrantVote(tc.candidate, tc.candidateTerm, nil)
			if granted != tc.wantGranted {
				t.Fatalf("GrantVote(%d, %d) = %v, want %v", tc.candidate, tc.candidateTerm, granted, tc.wantGranted)
			}
		})
	}
}

func TestGrantVoteAdvancesTermOnHigherCandidateTerm(t *testing.T) {
	ns := NewNodeState(1, 50*time.Millisecond)
	ns.SetRole(Leader)

	granted, replyTerm := ns.GrantVote(2, 10, nil)
	if !granted {
		t.Fatalf("expected vote granted")
	}
	if replyTerm != 10 {
		t.Fatalf("replyTerm = %d, want 10", replyTerm)
	}
	if role := ns.GetRole(); role != Follower {
		t.Fatalf("role after observing higher term = %v, want Follower", role)
	}
}

func TestRecordVoteReachesQuorumExactlyOnce(t *testing.T) {
	ns := NewNodeState(1, 50*time.Millisecond)
	ns.StartElection() // self-vote counted, clusterSize=5 -> quorum=3

	if ns.RecordVote(2, 5) {
		t.Fatalf("1 additional vote (2 total) should not reach quorum of 3")
	}
	if !ns.RecordVote(3, 5) {
		t.Fatalf("2 additional votes (3 total) should reach quorum of 3")
	}
	if ns.RecordVote(4, 5) {
		t.Fatalf("quorum already reached; a further vote must not report newly-reached quorum again")
	}
	if got := ns.VoteCount(); got != 4 {
		t.Fatalf("VoteCount = %d, want 4", got)
	}
}

func TestShouldStartElection(t *testing.T) {
	ns := NewNodeState(1, 10*time.Millisecond)
	if ns.ShouldStartElection() {
		t.Fatalf("freshly created state should not need an election yet")
	}
	time.Sleep(20 * time.Millisecond)
	if !ns.ShouldStartElection() {
		t.Fatalf("state should need an election after the timeout elapses")
	}

	ns.SetRole(Leader)
	if ns.ShouldStartElection() {
		t.Fatalf("a leader must never report needing an election")
	}
}

func TestObserveTermStepsDown(t *testing.T) {
	ns := NewNodeState(1, 50*time.Millisecond)
	ns.SetRole(Leader)
	ns.AdvanceTerm(3)

	if steppedDown := ns.ObserveTerm(2); steppedDown {
		t.Fatalf("observing a lower term must not step down")
	}
	if ns.GetRole() != Leader {
		t.Fatalf("role changed on a stale term observation")
	}

	if steppedDown := ns.ObserveTerm(4); !steppedDown {
		t.Fatalf("observing a higher term must step down")
	}
	if ns.GetRole() != Follower {
		t.Fatalf("role after stepping down = %v, want Follower", ns.GetRole())
	}
	if ns.GetTerm() != 4 {
		t.Fatalf("term after stepping down = %d, want 4", ns.GetTerm())
	}
}
