package raft

import "errors"

var (
	// ErrNotLeader is returned by operations that require leadership.
	ErrNotLeader = errors.New("raft: not the leader")
	// ErrTimeout is returned when an RPC or internal wait exceeds its deadline.
	ErrTimeout = errors.New("raft: operation timed out")
	// ErrNodeNotFound is returned when a peer id has no registered address.
	ErrNodeNotFound = errors.New("raft: node not found")
	// ErrNodeStopped is returned by operations attempted after Stop.
	ErrNodeStopped = errors.New("raft: node has been stopped")
	// ErrCorruptState is returned when the durable state record fails to
	// decode on load; this is a fatal bootstrap error.
	ErrCorruptState = errors.New("raft: corrupt persistent state")
)
