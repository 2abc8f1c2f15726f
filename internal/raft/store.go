package raft

import "context"

// Store is the durable-store contract (C1): an ordered key-value store with
// atomic single-key writes and durable flush. Implementations must not
// assume the log keyspace is contiguous.
type Store interface {
	AppendEntry(ctx context.Context, e LogEntry) error
	GetEntry(ctx context.Context, index uint64) (LogEntry, bool, error)
	// GetEntries returns entries in the half-open range [lo, hi); missing
	// indices are skipped, a short result indicates a gap.
	GetEntries(ctx context.Context, lo, hi uint64) ([]LogEntry, error)
	// LastLogInfo returns the highest present index and its term, or
	// (0, 0) if the log is empty.
	LastLogInfo(ctx context.Context) (index uint64, term uint64, err error)
	// DeleteFrom removes every entry with index >= i.
	DeleteFrom(ctx context.Context, i uint64) error

	SaveState(ctx context.Context, s PersistentState) error
	LoadState(ctx context.Context) (PersistentState, bool, error)

	SetCommitIndex(ctx context.Context, n uint64) error
	GetCommitIndex(ctx context.Context) (uint64, error)
	SetLastApplied(ctx context.Context, n uint64) error
	GetLastApplied(ctx context.Context) (uint64, error)

	// Snapshot guarantees durability of all previously acknowledged writes.
	Snapshot(ctx context.Context) error
	// Flush returns only after writes are safe on durable media.
	Flush(ctx context.Context) error

	Close() error
}

// Transport is the peer-transport contract (C2).
type Transport interface {
	SendRequestVote(ctx context.Context, peer PeerInfo, req RequestVoteRequest) (RequestVoteResponse, error)
	SendAppendEntries(ctx context.Context, peer PeerInfo, req AppendEntriesRequest) (AppendEntriesResponse, error)
	BroadcastRequestVote(ctx context.Context, peers []PeerInfo, req RequestVoteRequest) []PeerResult[RequestVoteResponse]
	BroadcastAppendEntries(ctx context.Context, peers []PeerInfo, req AppendEntriesRequest) []PeerResult[AppendEntriesResponse]
	HealthCheck(ctx context.Context, addr string) bool
}
