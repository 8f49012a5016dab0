// Package bbolt provides a BBolt-backed durable storage.Store.
package bbolt

import (
	"fmt"

	"github.com/jmcleod/bucketvault/storage"
	"go.etcd.io/bbolt"
)

// DefaultScope is the bucket used when no origin scope is given.
const DefaultScope = "bucketvault"

// Store implements storage.Store backed by one bucket of a BBolt database.
// The bucket name scopes entries to one application origin.
type Store struct {
	db     *bbolt.DB
	bucket []byte
	owned  bool
}

var _ storage.Store = (*Store)(nil)

// NewStore returns a Store that keeps its entries in the scope bucket of db.
func NewStore(db *bbolt.DB, scope string) (*Store, error) {
	if scope == "" {
		scope = DefaultScope
	}
	s := &Store{db: db, bucket: []byte(scope)}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating scope bucket %q: %w", scope, err)
	}
	return s, nil
}

// NewStoreFromFile opens a BBolt database at the given path and returns a new Store.
// The returned Store owns the database and closes it on Close.
func NewStoreFromFile(path, scope string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewStore(db, scope)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close closes the underlying BBolt database if the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Put(key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), value)
	})
}

func (s *Store) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(s.bucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		// bbolt values are only valid for the lifetime of the transaction.
		value = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

type boltTx struct {
	bucket *bbolt.Bucket
}

func (tx *boltTx) Put(key string, value []byte) error {
	return tx.bucket.Put([]byte(key), value)
}

func (tx *boltTx) Delete(key string) error {
	return tx.bucket.Delete([]byte(key))
}

func (s *Store) Batch(fn func(tx storage.Tx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{bucket: tx.Bucket(s.bucket)})
	})
}
