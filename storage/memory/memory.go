// Package memory provides a thread-safe in-memory implementation of storage.Store.
package memory

import (
	"sort"
	"sync"

	"github.com/jmcleod/bucketvault/storage"
)

// Store is a thread-safe in-memory implementation of storage.Store.
// It backs the transient surface, whose contents must not outlive the
// owning session, and doubles as a durable store in tests.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

func cloneValue(v []byte) []byte {
	return append([]byte(nil), v...)
}

func (s *Store) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(key, value)
}

func (s *Store) putLocked(key string, value []byte) error {
	s.data[key] = cloneValue(value)
	return nil
}

func (s *Store) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneValue(v), nil
}

func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(key)
}

func (s *Store) deleteLocked(key string) error {
	if v, ok := s.data[key]; ok {
		for i := range v {
			v[i] = 0
		}
		delete(s.data, key)
	}
	return nil
}

// Wipe zeroes and removes every value, as if the owning session ended.
func (s *Store) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.data {
		_ = s.deleteLocked(k)
	}
}

// Batch executes fn within a batch transaction. On error, all writes are rolled back.
func (s *Store) Batch(fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		snapshot[k] = cloneValue(v)
	}

	if err := fn(&memoryTx{store: s}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

type memoryTx struct {
	store *Store
}

func (tx *memoryTx) Put(key string, value []byte) error {
	return tx.store.putLocked(key, value)
}

func (tx *memoryTx) Delete(key string) error {
	return tx.store.deleteLocked(key)
}
