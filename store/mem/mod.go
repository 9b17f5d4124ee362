// Package mem implements an in-memory key/value database that follows the
// semantic of the bbolt implementation. It is used by tests and by ephemeral
// ledgers that do not need to survive a restart.
package mem

import (
	"sync"

	"go.dedis.ch/ballot/store/kv"
	"golang.org/x/xerrors"
)

// DB is an in-memory database.
//
// - implements kv.DB
type DB struct {
	sync.RWMutex

	buckets map[string]map[string][]byte
	closed  bool
}

// NewDB returns a new empty in-memory database.
func NewDB() *DB {
	return &DB{
		buckets: make(map[string]map[string][]byte),
	}
}

// View implements kv.DB. It returns an error if the bucket does not exist.
func (db *DB) View(name []byte, fn func(kv.Bucket) error) error {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return xerrors.New("database is closed")
	}

	values, found := db.buckets[string(name)]
	if !found {
		return xerrors.Errorf("bucket '%x' not found", name)
	}

	return fn(&bucket{values: values, readonly: true})
}

// Update implements kv.DB. The changes are applied only when the callback
// returns without error.
func (db *DB) Update(name []byte, fn func(kv.Bucket) error) error {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return xerrors.New("database is closed")
	}

	if len(name) == 0 {
		return xerrors.New("failed to create bucket: bucket name required")
	}

	values := make(map[string][]byte)
	for k, v := range db.buckets[string(name)] {
		values[k] = v
	}

	err := fn(&bucket{values: values})
	if err != nil {
		return err
	}

	db.buckets[string(name)] = values

	return nil
}

// Close implements kv.DB.
func (db *DB) Close() error {
	db.Lock()
	db.closed = true
	db.Unlock()

	return nil
}

// bucket is the in-memory implementation of a bucket.
//
// - implements kv.Bucket
type bucket struct {
	values   map[string][]byte
	readonly bool
}

// Get implements kv.Bucket.
func (b *bucket) Get(key []byte) []byte {
	value, found := b.values[string(key)]
	if !found {
		return nil
	}

	return append([]byte{}, value...)
}

// Set implements kv.Bucket.
func (b *bucket) Set(key, value []byte) error {
	if b.readonly {
		return xerrors.New("tx not writable")
	}

	if len(key) == 0 {
		return xerrors.New("key required")
	}

	b.values[string(key)] = append([]byte{}, value...)

	return nil
}

// Delete implements kv.Bucket.
func (b *bucket) Delete(key []byte) error {
	if b.readonly {
		return xerrors.New("tx not writable")
	}

	delete(b.values, string(key))

	return nil
}
