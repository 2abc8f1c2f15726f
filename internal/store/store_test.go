package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/elbarbary/stegoraft/internal/raft"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndGetEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry := raft.LogEntry{Term: 2, Index: 5, Data: []byte("hello")}
	if err := s.AppendEntry(ctx, entry); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	got, ok, err := s.GetEntry(ctx, 5)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if !ok {
		t.Fatalf("GetEntry: entry 5 not found")
	}
	if got.Term != 2 || string(got.Data) != "hello" {
		t.Fatalf("GetEntry returned %+v", got)
	}

	_, ok, err = s.GetEntry(ctx, 99)
	if err != nil {
		t.Fatalf("GetEntry(99): %v", err)
	}
	if ok {
		t.Fatalf("GetEntry(99) should not be found")
	}
}

func TestGetEntriesRangeSkipsGaps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, idx := range []uint64{1, 2, 5, 7} {
		if err := s.AppendEntry(ctx, raft.LogEntry{Term: 1, Index: idx}); err != nil {
			t.Fatalf("AppendEntry(%d): %v", idx, err)
		}
	}

	entries, err := s.GetEntries(ctx, 2, 7)
	if err != nil {
		t.Fatalf("GetEntries: %v", err)
	}
	var indices []uint64
	for _, e := range entries {
		indices = append(indices, e.Index)
	}
	want := []uint64{2, 5}
	if len(indices) != len(want) {
		t.Fatalf("GetEntries(2,7) = %v, want %v", indices, want)
	}
	for i := range want {
		if indices[i] != want[i] {
			t.Fatalf("GetEntries(2,7) = %v, want %v", indices, want)
		}
	}
}

func TestLastLogInfo(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	index, term, err := s.LastLogInfo(ctx)
	if err != nil {
		t.Fatalf("LastLogInfo on empty store: %v", err)
	}
	if index != 0 || term != 0 {
		t.Fatalf("LastLogInfo on empty store = (%d, %d), want (0, 0)", index, term)
	}

	for _, e := range []raft.LogEntry{{Term: 1, Index: 1}, {Term: 2, Index: 4}} {
		if err := s.AppendEntry(ctx, e); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}

	index, term, err = s.LastLogInfo(ctx)
	if err != nil {
		t.Fatalf("LastLogInfo: %v", err)
	}
	if index != 4 || term != 2 {
		t.Fatalf("LastLogInfo = (%d, %d), want (4, 2)", index, term)
	}
}

func TestDeleteFrom(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, idx := range []uint64{1, 2, 3, 4, 5} {
		if err := s.AppendEntry(ctx, raft.LogEntry{Term: 1, Index: idx}); err != nil {
			t.Fatalf("AppendEntry(%d): %v", idx, err)
		}
	}

	if err := s.DeleteFrom(ctx, 3); err != nil {
		t.Fatalf("DeleteFrom: %v", err)
	}

	entries, err := s.GetEntries(ctx, 0, 10)
	if err != nil {
		t.Fatalf("GetEntries: %v", err)
	}
	if len(entries) != 2 || entries[0].Index != 1 || entries[1].Index != 2 {
		t.Fatalf("entries after DeleteFrom(3) = %+v, want indices [1 2]", entries)
	}
}

func TestSaveAndLoadState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState on empty store: %v", err)
	}
	if found {
		t.Fatalf("LoadState on empty store should report not found")
	}

	want := raft.PersistentState{CurrentTerm: 7, VotedFor: 3, HasVote: true}
	if err := s.SaveState(ctx, want); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	got, found, err := s.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !found {
		t.Fatalf("LoadState should report found after SaveState")
	}
	if got != want {
		t.Fatalf("LoadState = %+v, want %+v", got, want)
	}
}

func TestCommitIndexAndLastApplied(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetCommitIndex(ctx, 42); err != nil {
		t.Fatalf("SetCommitIndex: %v", err)
	}
	got, err := s.GetCommitIndex(ctx)
	if err != nil {
		t.Fatalf("GetCommitIndex: %v", err)
	}
	if got != 42 {
		t.Fatalf("GetCommitIndex = %d, want 42", got)
	}

	if err := s.SetLastApplied(ctx, 17); err != nil {
		t.Fatalf("SetLastApplied: %v", err)
	}
	got, err = s.GetLastApplied(ctx)
	if err != nil {
		t.Fatalf("GetLastApplied: %v", err)
	}
	if got != 17 {
		t.Fatalf("GetLastApplied = %d, want 17", got)
	}
}

func TestSnapshotAndFlush(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
