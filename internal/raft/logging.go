package raft

import (
	"fmt"
	"log"
	"time"
)

// LogLevel controls which messages a Logger emits.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

// Logger is a small structured logger, one instance per node, tagged with
// the node id and a severity level, wrapping the standard log package.
type Logger struct {
	nodeID NodeID
	level  LogLevel
}

// NewLogger creates a Logger for the given node at the given minimum level.
func NewLogger(nodeID NodeID, level LogLevel) *Logger {
	return &Logger{nodeID: nodeID, level: level}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level <= LogDebug {
		l.log("DEBUG", format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.level <= LogInfo {
		l.log("INFO", format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level <= LogWarn {
		l.log("WARN", format, args...)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.level <= LogError {
		l.log("ERROR", format, args...)
	}
}

func (l *Logger) log(level, format string, args ...interface{}) {
	timestamp := time.Now().Format("15:04:05.000")
	prefix := fmt.Sprintf("[%s] [n%d] [%s] ", timestamp, l.nodeID, level)
	log.Printf(prefix+format, args...)
}

// Specialized helpers for Raft events, mirroring the density of logging the
// rest of this codebase's role transitions warrant.

var roleEmoji = map[Role]string{
	Follower:  "👤",
	Candidate: "🗳️",
	Leader:    "👑",
	Learner:   "🎓",
}

func (l *Logger) LogRoleChange(old, new Role, term uint64) {
	l.Info("%s %s -> %s %s (term=%d)", roleEmoji[old], old, roleEmoji[new], new, term)
}

func (l *Logger) LogElectionStart(term uint64) {
	l.Info("🗳️  starting election for term %d", term)
}

func (l *Logger) LogElectionWon(term uint64, votes, needed int) {
	l.Info("👑 won election for term %d (votes=%d/%d)", term, votes, needed)
}

func (l *Logger) LogElectionLost(term uint64, votes, needed int) {
	l.Debug("❌ election round closed for term %d without quorum (votes=%d/%d)", term, votes, needed)
}

func (l *Logger) LogSoloPromotion(term uint64, elapsed time.Duration) {
	l.Warn("🏝️  solo-promoting to leader for term %d after %s isolated", term, elapsed)
}

func (l *Logger) LogVoteGranted(candidate NodeID, term uint64) {
	l.Info("✅ granted vote to n%d for term %d", candidate, term)
}

func (l *Logger) LogVoteDenied(candidate NodeID, term uint64, reason string) {
	l.Info("❌ denied vote to n%d for term %d: %s", candidate, term, reason)
}

func (l *Logger) LogHeartbeatSent(term uint64, peerCount int) {
	l.Debug("💓 sent heartbeat to %d peers (term=%d)", peerCount, term)
}

func (l *Logger) LogHeartbeatReceived(leader NodeID, term uint64) {
	l.Debug("💓 received heartbeat from n%d (term=%d)", leader, term)
}

func (l *Logger) LogStepDown(oldTerm, newTerm uint64, reason string) {
	l.Info("⬇️  stepping down: term %d -> %d (%s)", oldTerm, newTerm, reason)
}

func (l *Logger) LogProbeFailure(leader NodeID, failures int) {
	l.Debug("🔍 leader probe to n%d failed (%d consecutive)", leader, failures)
}

func (l *Logger) LogProbeRecovered(leader NodeID) {
	l.Debug("🔍 leader probe to n%d recovered", leader)
}
