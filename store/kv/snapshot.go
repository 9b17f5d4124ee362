package kv

import (
	"golang.org/x/xerrors"
)

// BucketStore is a store.Snapshot where every operation runs in its own
// transaction over a single bucket of the database.
//
// - implements store.Snapshot
type BucketStore struct {
	db     DB
	bucket []byte
}

// NewBucketStore returns a store over the bucket of the database.
func NewBucketStore(db DB, bucket []byte) BucketStore {
	return BucketStore{
		db:     db,
		bucket: bucket,
	}
}

// Get implements store.Readable. It returns nil when the key does not exist.
// The bucket is created on first access.
func (s BucketStore) Get(key []byte) ([]byte, error) {
	var value []byte

	err := s.db.Update(s.bucket, func(b Bucket) error {
		value = b.Get(key)
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to read db: %v", err)
	}

	return value, nil
}

// Set implements store.Writable.
func (s BucketStore) Set(key, value []byte) error {
	err := s.db.Update(s.bucket, func(b Bucket) error {
		return b.Set(key, value)
	})
	if err != nil {
		return xerrors.Errorf("failed to write db: %v", err)
	}

	return nil
}

// Delete implements store.Writable.
func (s BucketStore) Delete(key []byte) error {
	err := s.db.Update(s.bucket, func(b Bucket) error {
		return b.Delete(key)
	})
	if err != nil {
		return xerrors.Errorf("failed to write db: %v", err)
	}

	return nil
}
