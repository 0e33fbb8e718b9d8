// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package store persists history buffer snapshots in badger so a daemon can
// resume its plots after a restart.
package store

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/antimetal/historybuffer/pkg/errors"
	"github.com/antimetal/historybuffer/pkg/history"
)

type keyPart = []byte

var snapshotKey = keyPart("snap")

// Store keeps one Snapshot per buffer name.
type Store struct {
	mu sync.RWMutex

	store *badger.DB
}

// New opens a store in dir. An empty dir keeps everything in memory.
func New(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	return &Store{store: db}, nil
}

// Save writes snap under name, replacing any previous snapshot.
func (s *Store) Save(name string, snap history.Snapshot) error {
	return s.SaveAll(map[string]history.Snapshot{name: snap})
}

// SaveAll writes every snapshot in one transaction.
func (s *Store) SaveAll(snaps map[string]history.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Update(func(txn *badger.Txn) error {
		for name, snap := range snaps {
			if name == "" {
				return fmt.Errorf("snapshot name must not be empty")
			}
			data, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("failed to marshal snapshot %q: %w", name, err)
			}
			if err := txn.Set(buildKey(snapshotKey, keyPart(name)), data); err != nil {
				return fmt.Errorf("failed to write snapshot %q: %w", name, err)
			}
		}
		return nil
	})
}

// Load returns the snapshot stored under name.
// If there is none, it will return ErrSnapshotNotFound.
func (s *Store) Load(name string) (history.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var val []byte
	err := s.store.View(func(txn *badger.Txn) error {
		item, err := txn.Get(buildKey(snapshotKey, keyPart(name)))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(val)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return history.Snapshot{}, fmt.Errorf("%w: %q", errors.ErrSnapshotNotFound, name)
	}
	if err != nil {
		return history.Snapshot{}, fmt.Errorf("failed to read snapshot %q: %w", name, err)
	}

	var snap history.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return history.Snapshot{}, fmt.Errorf("failed to unmarshal snapshot %q: %w", name, err)
	}
	return snap, nil
}

// Restore loads the snapshot stored under name and rebuilds a buffer from it.
func (s *Store) Restore(name string, opts history.Options) (*history.Buffer, error) {
	snap, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	return history.FromSnapshot(snap, opts)
}

// Delete removes the snapshot stored under name.
// If there is none, it will return ErrSnapshotNotFound.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := buildKey(snapshotKey, keyPart(name))
	return s.store.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %q", errors.ErrSnapshotNotFound, name)
			}
			return fmt.Errorf("failed to read snapshot %q: %w", name, err)
		}
		return txn.Delete(key)
	})
}

// List returns the names of all stored snapshots in sorted order.
func (s *Store) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := buildKey(snapshotKey)
	prefix = append(prefix, '/')
	names := make([]string, 0)
	err := s.store.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			names = append(names, string(bytes.TrimPrefix(it.Item().KeyCopy(nil), prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.store.Close()
}

func buildKey(parts ...keyPart) []byte {
	b := bytes.Buffer{}
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		b.WriteByte('/')
		b.Write(p)
	}
	return b.Bytes()
}
