// Package debugsync provides synchronization primitives that report the locks
// held, or waited for, longer than expected.
package debugsync

import (
	"runtime/debug"
	"sync"
)

// Mutex is a mutual exclusion lock that logs an error with the stack of the
// caller when it takes too long to be acquired or released. The zero value
// is an unlocked mutex.
//
// A Mutex must not be copied after first use.
type Mutex struct {
	mutex     sync.Mutex
	unlocking chan struct{}
}

// Lock locks m. If the lock is already in use, the calling goroutine blocks
// until the mutex is available.
func (m *Mutex) Lock() {
	locking := startLockTimer("Mutex timed out when acquiring lock", debug.Stack())
	m.mutex.Lock()
	close(locking)

	m.unlocking = startLockTimer("Mutex timed out before releasing lock", debug.Stack())
}

// TryLock tries to lock m and reports whether it succeeded.
func (m *Mutex) TryLock() bool {
	locked := m.mutex.TryLock()

	if locked {
		m.unlocking = startLockTimer("Mutex timed out before releasing lock", debug.Stack())
	}

	return locked
}

// Unlock unlocks m. It is a run-time error if m is not locked on entry to
// Unlock.
func (m *Mutex) Unlock() {
	close(m.unlocking)
	m.mutex.Unlock()
}
