// Package session implements the single owner of the state of a poll.
//
// A session holds the tally, the voting status of its identity, the phase of
// the vote transaction, the pending vote and the current selection. The
// periodic refresh and the submitter both go through its methods, which are
// serialized by a mutex. A refresh replaces the tally and the voting status
// but never the pending vote nor the selection.
//
// The voting status is provisional when it comes from an accepted submission,
// and authoritative when it comes from the ledger. An authoritative true is
// final for the session, whereas a provisional value is replaced by the next
// authoritative read.
//
// Documentation Last Review: 14.10.2026
//
package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/ballot"
	"go.dedis.ch/ballot/classify"
	"go.dedis.ch/ballot/internal/debugsync"
	"go.dedis.ch/ballot/poll"
	"go.dedis.ch/ballot/submitter"
)

const (
	// DefaultRefreshInterval is the default interval between two refreshes.
	DefaultRefreshInterval = 5 * time.Second

	// DefaultReadTimeout is the default timeout of a refresh.
	DefaultReadTimeout = 10 * time.Second
)

// Reader is the interface of the reader of the state of the poll.
type Reader interface {
	ReadTally(ctx context.Context) (poll.Tally, bool)
	ReadVoterStatus(ctx context.Context, id poll.Identity) (bool, bool)
}

// Submitter is the interface of the submitter of votes.
type Submitter interface {
	Submit(ctx context.Context, state submitter.State, id poll.Identity, option string) error
}

// View is a copy of the state of a session.
type View struct {
	Identity          poll.Identity
	Tally             poll.Tally
	TallyAvailable    bool
	TallyProvisional  bool
	Voted             bool
	StatusProvisional bool
	Phase             poll.TxPhase
	Pending           *poll.PendingVote
	Selection         string
	LastFailure       *classify.Failure
}

// Session is the owner of the state of a poll.
//
// - implements submitter.State
type Session struct {
	sync debugsync.Mutex

	logger    zerolog.Logger
	reader    Reader
	submitter Submitter
	catalog   poll.Catalog
	watcher   *watcher

	interval    time.Duration
	readTimeout time.Duration

	identity          poll.Identity
	tally             poll.Tally
	tallyAvailable    bool
	tallyProvisional  bool
	voted             bool
	statusProvisional bool
	phase             poll.TxPhase
	pending           *poll.PendingVote
	selection         string
	lastFailure       *classify.Failure

	// generation changes each time a submission alters the state, so that a
	// read issued before cannot overwrite it.
	generation uint64

	timers    map[int]*time.Timer
	nextTimer int
	closed    bool
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option is the type of options to create a session.
type Option func(*Session)

// WithIdentity is an option to set the identity of the session.
func WithIdentity(id poll.Identity) Option {
	return func(s *Session) {
		s.identity = id
	}
}

// WithRefreshInterval is an option to set the interval of the refresh loop.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Session) {
		s.interval = d
	}
}

// WithReadTimeout is an option to set the timeout of a refresh.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.readTimeout = d
	}
}

// NewSession creates a new session of the poll. The tally is empty until the
// first refresh.
func NewSession(r Reader, sub Submitter, catalog poll.Catalog, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		logger:      ballot.Logger.With().Str("module", "session").Logger(),
		reader:      r,
		submitter:   sub,
		catalog:     catalog,
		watcher:     newWatcher(),
		interval:    DefaultRefreshInterval,
		readTimeout: DefaultReadTimeout,
		tally:       catalog.EmptyTally(),
		timers:      make(map[int]*time.Timer),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Watch adds the observer to the list of observers of the session.
func (s *Session) Watch(obs Observer) {
	s.watcher.add(obs)
}

// Unwatch removes the observer.
func (s *Session) Unwatch(obs Observer) {
	s.watcher.remove(obs)
}

// Start starts the refresh loop. The first refresh happens immediately.
func (s *Session) Start() {
	s.sync.Lock()
	defer s.sync.Unlock()

	if s.started || s.closed {
		return
	}

	s.started = true

	go s.refreshLoop()
}

// Close stops the refresh loop and the scheduled timers. The session cannot
// be used afterwards.
func (s *Session) Close() {
	s.sync.Lock()

	if s.closed {
		s.sync.Unlock()
		return
	}

	s.closed = true

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}

	started := s.started
	s.cancel()

	s.sync.Unlock()

	if started {
		<-s.done
	}
}

// SetIdentity changes the identity of the session. The voting status is
// unknown until the next refresh.
func (s *Session) SetIdentity(id poll.Identity) {
	s.sync.Lock()

	if s.identity == id {
		s.sync.Unlock()
		return
	}

	s.identity = id
	s.voted = false
	s.statusProvisional = false

	event := StatusEvent{Identity: id}

	s.sync.Unlock()

	s.watcher.notify(event)
}

// Snapshot returns a copy of the state of the session.
func (s *Session) Snapshot() View {
	s.sync.Lock()
	defer s.sync.Unlock()

	view := View{
		Identity:          s.identity,
		Tally:             s.tally.Clone(),
		TallyAvailable:    s.tallyAvailable,
		TallyProvisional:  s.tallyProvisional,
		Voted:             s.voted,
		StatusProvisional: s.statusProvisional,
		Phase:             s.phase,
		Selection:         s.selection,
		LastFailure:       s.lastFailure,
	}

	if s.pending != nil {
		pending := *s.pending
		view.Pending = &pending
	}

	return view
}

// Select sets the option of the next commit. It is only possible while no
// submission is in flight and the identity has not voted.
func (s *Session) Select(option string) error {
	s.sync.Lock()
	defer s.sync.Unlock()

	if s.phase != poll.Idle {
		return poll.NewValidationError("a submission is in flight")
	}

	if s.voted {
		return poll.NewValidationError("identity %v has already voted", s.identity)
	}

	if !s.catalog.Contains(option) {
		return poll.NewValidationError("option '%s' is not in the catalog", option)
	}

	s.selection = option

	return nil
}

// Commit submits the vote for the selected option. It returns
// submitter.ErrInFlight when a submission is in flight, or a
// *classify.Failure when the vote fails.
func (s *Session) Commit(ctx context.Context) error {
	s.sync.Lock()
	id := s.identity
	option := s.selection
	s.sync.Unlock()

	if option == "" {
		return classify.NewFailure(poll.NewValidationError("no option is selected"))
	}

	return s.submitter.Submit(ctx, s, id, option)
}

// Refresh reads the tally and the voting status from the ledger and replaces
// the state of the session with them. A read that fails leaves the previous
// value untouched, and so does a read that was issued before a submission
// changed the state.
func (s *Session) Refresh(ctx context.Context) {
	s.refresh(ctx, false)
}

func (s *Session) refresh(ctx context.Context, force bool) {
	s.sync.Lock()
	id := s.identity
	closed := s.closed
	generation := s.generation
	s.sync.Unlock()

	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	tally, tallyOK := s.reader.ReadTally(ctx)
	voted, statusOK := s.reader.ReadVoterStatus(ctx, id)

	events := []interface{}{}

	s.sync.Lock()

	if !force && generation != s.generation {
		s.sync.Unlock()

		s.logger.Debug().Msg("stale read discarded")

		return
	}

	if tallyOK {
		s.tally = tally.Clone()
		s.tallyAvailable = true
		s.tallyProvisional = false

		events = append(events, TallyEvent{Tally: tally.Clone()})
	}

	if statusOK && id == s.identity {
		event, changed := s.mergeStatus(voted)
		if changed {
			events = append(events, event)
		}
	}

	s.sync.Unlock()

	s.watcher.notify(events...)
}

// mergeStatus applies an authoritative voting status. It must be called while
// holding the lock.
func (s *Session) mergeStatus(voted bool) (StatusEvent, bool) {
	prev, prevProvisional := s.voted, s.statusProvisional

	switch {
	case voted:
		s.voted = true
		s.statusProvisional = false
	case s.voted && !s.statusProvisional:
		s.logger.Warn().Stringer("identity", s.identity).Msg("ledger lost a recorded vote")
	default:
		s.voted = false
		s.statusProvisional = false
	}

	event := StatusEvent{
		Identity:    s.identity,
		Voted:       s.voted,
		Provisional: s.statusProvisional,
	}

	return event, prev != s.voted || prevProvisional != s.statusProvisional
}

func (s *Session) refreshLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Refresh(s.ctx)

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// HasVoted implements submitter.State. It returns true when the identity is
// the one of the session and has voted.
func (s *Session) HasVoted(id poll.Identity) bool {
	s.sync.Lock()
	defer s.sync.Unlock()

	return id == s.identity && s.voted
}

// Begin implements submitter.State.
func (s *Session) Begin(pending poll.PendingVote) bool {
	s.sync.Lock()

	if s.phase != poll.Idle || s.closed {
		s.sync.Unlock()
		return false
	}

	s.pending = &pending
	s.phase = poll.AwaitingSignature
	s.lastFailure = nil
	s.generation++

	event := PhaseEvent{Phase: s.phase, Pending: &pending}

	s.sync.Unlock()

	s.watcher.notify(event)

	return true
}

// SetPhase implements submitter.State.
func (s *Session) SetPhase(phase poll.TxPhase) {
	s.sync.Lock()

	s.phase = phase
	event := PhaseEvent{Phase: phase, Pending: s.copyPending()}

	s.sync.Unlock()

	s.logger.Debug().Stringer("phase", phase).Msg("phase changed")

	s.watcher.notify(event)
}

// ApplyProvisional implements submitter.State. The identity is marked as
// voted and the option gets one more vote until the next authoritative read.
func (s *Session) ApplyProvisional(pending poll.PendingVote) {
	s.sync.Lock()

	s.generation++

	events := []interface{}{}

	if pending.Identity == s.identity && !s.voted {
		s.voted = true
		s.statusProvisional = true

		events = append(events, StatusEvent{Identity: s.identity, Voted: true, Provisional: true})
	}

	tally := s.tally.Clone()
	tally[pending.Option]++

	s.tally = tally
	s.tallyProvisional = true

	events = append(events, TallyEvent{Tally: tally.Clone(), Provisional: true})

	s.sync.Unlock()

	s.watcher.notify(events...)
}

// Fail implements submitter.State.
func (s *Session) Fail(failure *classify.Failure) {
	s.sync.Lock()

	s.phase = poll.Failed
	s.lastFailure = failure

	events := []interface{}{
		PhaseEvent{Phase: poll.Failed, Pending: s.copyPending()},
		FailureEvent{Failure: failure},
	}

	s.sync.Unlock()

	s.watcher.notify(events...)
}

// End implements submitter.State. The pending vote is dropped and the phase
// returns to Idle. The selection is cleared once the identity has voted.
func (s *Session) End() {
	s.sync.Lock()

	s.phase = poll.Idle
	s.pending = nil

	if s.voted {
		s.selection = ""
	}

	s.sync.Unlock()

	s.watcher.notify(PhaseEvent{Phase: poll.Idle})
}

// Reconcile implements submitter.State. It refreshes the state from the
// ledger, replacing the provisional values in any case.
func (s *Session) Reconcile() {
	s.refresh(s.ctx, true)
}

// After implements submitter.State. The function is not run if the session is
// closed before the delay elapses.
func (s *Session) After(delay time.Duration, fn func()) {
	s.sync.Lock()
	defer s.sync.Unlock()

	if s.closed {
		return
	}

	id := s.nextTimer
	s.nextTimer++

	s.timers[id] = time.AfterFunc(delay, func() {
		s.sync.Lock()
		_, found := s.timers[id]
		delete(s.timers, id)
		s.sync.Unlock()

		if found {
			fn()
		}
	})
}

func (s *Session) copyPending() *poll.PendingVote {
	if s.pending == nil {
		return nil
	}

	pending := *s.pending

	return &pending
}
