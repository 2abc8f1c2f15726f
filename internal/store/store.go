// Package store implements the durable-store contract (C1) over an
// embedded bbolt database: one bucket of log entries keyed by big-endian
// index, and a meta bucket holding the whole-record state plus the
// commit-index/last-applied scalars in their own little-endian keys.
package store

import (
	"context"
	"encoding/binary"
	"encoding/gob"
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/elbarbary/stegoraft/internal/raft"
)

var (
	logBucket  = []byte("log")
	metaBucket = []byte("meta")

	stateKey       = []byte("state")
	commitIndexKey = []byte("commit_index")
	lastAppliedKey = []byte("last_applied")
)

// BoltStore is a raft.Store backed by go.etcd.io/bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// Open creates or opens a bbolt database at path and ensures both buckets
// exist.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(logBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func indexKey(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}

func encodeEntry(e raft.LogEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (raft.LogEntry, error) {
	var e raft.LogEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return raft.LogEntry{}, err
	}
	return e, nil
}

// AppendEntry writes e into the log bucket under its 8-byte big-endian
// index (not a "log:<index>" string key); overwrite is permitted, used
// during truncation-and-rewrite.
func (s *BoltStore) AppendEntry(ctx context.Context, e raft.LogEntry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return fmt.Errorf("store: encode entry %d: %w", e.Index, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(logBucket).Put(indexKey(e.Index), data)
	})
}

func (s *BoltStore) GetEntry(ctx context.Context, index uint64) (raft.LogEntry, bool, error) {
	var entry raft.LogEntry
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(logBucket).Get(indexKey(index))
		if data == nil {
			return nil
		}
		e, err := decodeEntry(data)
		if err != nil {
			return fmt.Errorf("store: decode entry %d: %w", index, err)
		}
		entry, found = e, true
		return nil
	})
	return entry, found, err
}

// GetEntries returns entries in the half-open range [lo, hi); missing
// indices are skipped rather than treated as an error.
func (s *BoltStore) GetEntries(ctx context.Context, lo, hi uint64) ([]raft.LogEntry, error) {
	var entries []raft.LogEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(logBucket).Cursor()
		for k, v := c.Seek(indexKey(lo)); k != nil; k, v = c.Next() {
			idx := binary.BigEndian.Uint64(k)
			if idx >= hi {
				break
			}
			e, err := decodeEntry(v)
			if err != nil {
				return fmt.Errorf("store: decode entry %d: %w", idx, err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// LastLogInfo returns the highest present index and its term by walking
// the bucket's cursor from the end, never assuming the keyspace is dense.
func (s *BoltStore) LastLogInfo(ctx context.Context) (uint64, uint64, error) {
	var index, term uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(logBucket).Cursor()
		k, v := c.Last()
		if k == nil {
			return nil
		}
		e, err := decodeEntry(v)
		if err != nil {
			return fmt.Errorf("store: decode last entry: %w", err)
		}
		index, term = binary.BigEndian.Uint64(k), e.Term
		return nil
	})
	return index, term, err
}

// DeleteFrom removes every entry with index >= i in one write transaction.
func (s *BoltStore) DeleteFrom(ctx context.Context, i uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(logBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(indexKey(i)); k != nil; k, _ = c.Next() {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) SaveState(ctx context.Context, state raft.PersistentState) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return fmt.Errorf("store: encode state: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metaBucket).Put(stateKey, buf.Bytes())
	})
}

func (s *BoltStore) LoadState(ctx context.Context) (raft.PersistentState, bool, error) {
	var state raft.PersistentState
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(metaBucket).Get(stateKey)
		if data == nil {
			return nil
		}
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
			return fmt.Errorf("%w: %v", raft.ErrCorruptState, err)
		}
		found = true
		return nil
	})
	return state, found, err
}

func putUint64(s *BoltStore, key []byte, n uint64) error {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, n)
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metaBucket).Put(key, b)
	})
}

func getUint64(s *BoltStore, key []byte) (uint64, error) {
	var n uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(metaBucket).Get(key)
		if data == nil {
			return nil
		}
		if len(data) != 8 {
			return fmt.Errorf("store: invalid %s data: expected 8 bytes, got %d", key, len(data))
		}
		n = binary.LittleEndian.Uint64(data)
		return nil
	})
	return n, err
}

func (s *BoltStore) SetCommitIndex(ctx context.Context, n uint64) error {
	return putUint64(s, commitIndexKey, n)
}

func (s *BoltStore) GetCommitIndex(ctx context.Context) (uint64, error) {
	return getUint64(s, commitIndexKey)
}

func (s *BoltStore) SetLastApplied(ctx context.Context, n uint64) error {
	return putUint64(s, lastAppliedKey, n)
}

func (s *BoltStore) GetLastApplied(ctx context.Context) (uint64, error) {
	return getUint64(s, lastAppliedKey)
}

// Snapshot guarantees durability of all previously acknowledged writes.
// Restore is a no-op elsewhere because data already lives in the store.
func (s *BoltStore) Snapshot(ctx context.Context) error {
	return s.db.Sync()
}

// Flush returns only after writes are safe on durable media.
func (s *BoltStore) Flush(ctx context.Context) error {
	return s.db.Sync()
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
