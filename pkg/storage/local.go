package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by LocalStore.Get for absent keys.
var ErrNotFound = errors.New("storage: key not found in local store")

// LocalStore is a small badger-backed key/value store for data that should
// survive the process: fetched share plaintext and cached profile metadata.
// It is local-only state, never the source of truth; the broadcast medium
// and blob store are.
type LocalStore struct {
	db *badger.DB
}

// OpenLocalStore opens (or creates) a badger database at path.
func OpenLocalStore(path string) (*LocalStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return &LocalStore{db: db}, nil
}

// Put stores a value, overwriting any previous one.
func (s *LocalStore) Put(key, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("local store put: %w", err)
	}
	return nil
}

// Get returns the stored value or ErrNotFound.
func (s *LocalStore) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("local store get: %w", err)
	}
	return value, nil
}

// Close releases the underlying database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}
