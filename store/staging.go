package store

import (
	"sort"

	"golang.org/x/xerrors"
)

type write struct {
	value   []byte
	deleted bool
}

// Staging is a snapshot that records the writes on top of a readable parent
// without touching it. The writes can be discarded, which is what a
// simulation does, or applied to a writable store.
//
// - implements store.Snapshot
type Staging struct {
	parent Readable
	writes map[string]write
}

// NewStaging returns a new empty staging snapshot over the parent.
func NewStaging(parent Readable) *Staging {
	return &Staging{
		parent: parent,
		writes: make(map[string]write),
	}
}

// Get implements store.Readable. It returns the staged value of the key if any,
// otherwise the value of the parent.
func (s *Staging) Get(key []byte) ([]byte, error) {
	w, found := s.writes[string(key)]
	if found {
		if w.deleted {
			return nil, nil
		}

		return w.value, nil
	}

	if s.parent == nil {
		return nil, nil
	}

	value, err := s.parent.Get(key)
	if err != nil {
		return nil, xerrors.Errorf("parent: %v", err)
	}

	return value, nil
}

// Set implements store.Writable. It stages the value for the key.
func (s *Staging) Set(key, value []byte) error {
	s.writes[string(key)] = write{value: append([]byte{}, value...)}

	return nil
}

// Delete implements store.Writable. It stages the deletion of the key.
func (s *Staging) Delete(key []byte) error {
	s.writes[string(key)] = write{deleted: true}

	return nil
}

// Len returns the number of staged writes.
func (s *Staging) Len() int {
	return len(s.writes)
}

// Apply writes the staged changes into the store, in the lexicographic order
// of the keys.
func (s *Staging) Apply(w Writable) error {
	keys := make([]string, 0, len(s.writes))
	for key := range s.writes {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		var err error

		if s.writes[key].deleted {
			err = w.Delete([]byte(key))
		} else {
			err = w.Set([]byte(key), s.writes[key].value)
		}

		if err != nil {
			return xerrors.Errorf("failed to apply key '%x': %v", key, err)
		}
	}

	return nil
}
