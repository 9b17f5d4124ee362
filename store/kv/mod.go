// Package kv defines the key/value database that holds the state of the dev
// ledger, so that accounts, polls and ballots survive a restart of ballotd.
// The default implementation is a bbolt file.
//
// Documentation Last Review: 14.10.2026
//
package kv

// Bucket gives access to the entries of one bucket inside a transaction.
type Bucket interface {
	// Get returns a copy of the value of the key, or nil when it is missing.
	Get(key []byte) []byte

	// Set writes the value of the key.
	Set(key, value []byte) error

	// Delete removes the key. A missing key is not an error.
	Delete(key []byte) error
}

// DB runs transactions over the buckets of the database.
type DB interface {
	// View runs a read-only transaction on the bucket, which must exist.
	View(bucket []byte, fn func(Bucket) error) error

	// Update runs a writable transaction on the bucket and creates it when
	// needed. Nothing is written when the callback fails.
	Update(bucket []byte, fn func(Bucket) error) error

	// Close releases the database. Later transactions fail.
	Close() error
}
