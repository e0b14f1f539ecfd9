package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is a Backend on an embedded Badger database. Keys are stored
// under the "marker:" prefix.
type BadgerStore struct {
	db       *badger.DB
	inMemory bool
}

var _ Backend = (*BadgerStore)(nil)

// OpenBadgerStore opens (or creates) a Badger database in dir. An empty dir
// opens an in-memory database.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	return &BadgerStore{db: db, inMemory: dir == ""}, nil
}

func badgerKey(key string) []byte {
	return []byte("marker:" + key)
}

func (s *BadgerStore) Get(_ context.Context, key string) (string, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("badger get %s: %w", key, err)
	}
	return string(out), nil
}

func (s *BadgerStore) Set(_ context.Context, key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

// Sync flushes pending writes to disk.
func (s *BadgerStore) Sync() error {
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

func (s *BadgerStore) Close() error { return s.db.Close() }
