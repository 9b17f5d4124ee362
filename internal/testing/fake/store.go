package fake

import (
	"sync"

	"golang.org/x/xerrors"
)

// InMemorySnapshot is a fake implementation of a store snapshot.
//
// - implements store.Snapshot
type InMemorySnapshot struct {
	sync.Mutex

	values    map[string][]byte
	ErrRead   error
	ErrWrite  error
	ErrDelete error
}

// NewSnapshot creates a new empty snapshot.
func NewSnapshot() *InMemorySnapshot {
	return &InMemorySnapshot{
		values: make(map[string][]byte),
	}
}

// NewBadSnapshot creates a new empty snapshot that will always return an error.
func NewBadSnapshot() *InMemorySnapshot {
	return &InMemorySnapshot{
		values:    make(map[string][]byte),
		ErrRead:   xerrors.Errorf("read: %v", fakeErr),
		ErrWrite:  xerrors.Errorf("write: %v", fakeErr),
		ErrDelete: xerrors.Errorf("delete: %v", fakeErr),
	}
}

// Get implements store.Readable.
func (snap *InMemorySnapshot) Get(key []byte) ([]byte, error) {
	snap.Lock()
	defer snap.Unlock()

	return snap.values[string(key)], snap.ErrRead
}

// Set implements store.Writable.
func (snap *InMemorySnapshot) Set(key, value []byte) error {
	snap.Lock()
	defer snap.Unlock()

	snap.values[string(key)] = value

	return snap.ErrWrite
}

// Delete implements store.Writable.
func (snap *InMemorySnapshot) Delete(key []byte) error {
	snap.Lock()
	defer snap.Unlock()

	delete(snap.values, string(key))

	return snap.ErrDelete
}
