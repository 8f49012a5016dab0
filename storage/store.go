// Package storage defines the key/value surfaces the vault persists to.
//
// A vault is given two stores: a transient one whose contents end with the
// owning session (the key and in-process session token live there) and a
// durable one that survives restarts and holds only ciphertext, signatures
// and non-sensitive configuration.
package storage

import "errors"

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("not found")

// Tx provides Put and Delete within an atomic transaction.
type Tx interface {
	Put(key string, value []byte) error
	Delete(key string) error
}

// Store is a flat namespace of byte values addressed by string keys.
// Delete of a missing key is not an error so purge paths stay idempotent.
// Implementations copy values on the way in and out.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)
	Batch(fn func(tx Tx) error) error
}
