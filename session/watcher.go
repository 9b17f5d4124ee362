package session

import (
	"sync"

	"go.dedis.ch/ballot/classify"
	"go.dedis.ch/ballot/poll"
)

// PhaseEvent is notified when the phase of the transaction changes.
type PhaseEvent struct {
	Phase   poll.TxPhase
	Pending *poll.PendingVote
}

// TallyEvent is notified when the tally is replaced or provisionally updated.
type TallyEvent struct {
	Tally       poll.Tally
	Provisional bool
}

// StatusEvent is notified when the voting status of the identity changes.
type StatusEvent struct {
	Identity    poll.Identity
	Voted       bool
	Provisional bool
}

// FailureEvent is notified when a submission fails.
type FailureEvent struct {
	Failure *classify.Failure
}

// Observer is the interface to implement to watch the events of a session.
type Observer interface {
	NotifyCallback(event interface{})
}

// watcher keeps the observers of a session.
type watcher struct {
	sync.RWMutex

	observers map[Observer]struct{}
}

func newWatcher() *watcher {
	return &watcher{
		observers: make(map[Observer]struct{}),
	}
}

func (w *watcher) add(observer Observer) {
	w.Lock()
	w.observers[observer] = struct{}{}
	w.Unlock()
}

func (w *watcher) remove(observer Observer) {
	w.Lock()
	delete(w.observers, observer)
	w.Unlock()
}

// notify notifies the observers of the events, in order.
func (w *watcher) notify(events ...interface{}) {
	w.RLock()
	defer w.RUnlock()

	for _, event := range events {
		for obs := range w.observers {
			obs.NotifyCallback(event)
		}
	}
}
