// Package submitter implements the submission of a vote.
//
// A submission goes through the phases of the session that owns it:
//
//	Idle -> AwaitingSignature -> Submitted -> Confirmed -> Idle
//
// and to Failed from AwaitingSignature or Submitted, then back to Idle after a
// cool-down. The steps are strictly sequential: the account sequence is
// fetched, the vote is simulated to estimate its resources, the proposal is
// assembled and signed by the external signer, then sent to the ledger. A
// rejection during the simulation is handled as a rejection of the ledger.
//
// Every failure is classified and returned. A submission is never retried.
//
// Documentation Last Review: 14.10.2026
//
package submitter

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/ballot"
	"go.dedis.ch/ballot/classify"
	"go.dedis.ch/ballot/contract"
	"go.dedis.ch/ballot/crypto"
	"go.dedis.ch/ballot/ledger"
	"go.dedis.ch/ballot/ledger/result"
	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/poll"
	"go.dedis.ch/ballot/rejection"
	"go.dedis.ch/ballot/serde"
	sjson "go.dedis.ch/ballot/serde/json"
	"go.dedis.ch/ballot/signer"
	"golang.org/x/xerrors"
)

const (
	// DefaultFee is the default inclusion fee offered by a vote.
	DefaultFee = 100

	// DefaultResetDelay is the delay before a confirmed submission returns to
	// idle.
	DefaultResetDelay = 1500 * time.Millisecond

	// DefaultReconcileDelay is the delay before the authoritative read that
	// follows a confirmed submission.
	DefaultReconcileDelay = 2 * time.Second

	// DefaultCooldown is the delay before a failed submission returns to
	// idle.
	DefaultCooldown = 1500 * time.Millisecond
)

// ErrInFlight is returned when a submission is already in flight. Nothing is
// done in that case.
var ErrInFlight = xerrors.New("a submission is already in flight")

var (
	promSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ballot_submitter_submissions_total",
		Help: "total number of vote submissions, by outcome",
	}, []string{"outcome"})

	promDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ballot_submitter_duration_seconds",
		Help:    "duration of the vote submissions",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

func init() {
	ballot.PromCollectors = append(ballot.PromCollectors, promSubmissions, promDuration)
}

// State is the interface of the owner of the state of a poll session. The
// submitter only mutates the state through it.
type State interface {
	// HasVoted returns true if the identity is known to have voted.
	HasVoted(id poll.Identity) bool

	// Begin sets the pending vote and moves to AwaitingSignature. It returns
	// false without any change if the phase is not Idle.
	Begin(pending poll.PendingVote) bool

	// SetPhase moves to the phase.
	SetPhase(phase poll.TxPhase)

	// ApplyProvisional marks the identity of the pending vote as voted and
	// increments the count of its option, until the next authoritative read.
	ApplyProvisional(pending poll.PendingVote)

	// Fail moves to Failed and reports the failure.
	Fail(failure *classify.Failure)

	// End drops the pending vote and moves back to Idle.
	End()

	// Reconcile replaces the provisional values with an authoritative read.
	Reconcile()

	// After runs the function once the delay has elapsed, unless the state is
	// closed in the meantime.
	After(delay time.Duration, fn func())
}

// Submitter submits votes to the poll contract.
type Submitter struct {
	logger      zerolog.Logger
	client      ledger.Client
	signer      signer.Signer
	contractID  string
	network     string
	catalog     poll.Catalog
	decoder     rejection.Decoder
	context     serde.Context
	hashFactory crypto.HashFactory

	fee            uint64
	resetDelay     time.Duration
	reconcileDelay time.Duration
	cooldown       time.Duration

	confirm         bool
	confirmInterval time.Duration
	confirmTimeout  time.Duration
}

// Option is the type of options to create a submitter.
type Option func(*Submitter)

// WithFee is an option to set the inclusion fee of the votes.
func WithFee(fee uint64) Option {
	return func(s *Submitter) {
		s.fee = fee
	}
}

// WithDecoder is an option to set the decoder of the rejections.
func WithDecoder(d rejection.Decoder) Option {
	return func(s *Submitter) {
		s.decoder = d
	}
}

// WithDelays is an option to set the delay before going back to idle after a
// confirmation, the delay of the authoritative read after a confirmation, and
// the cool-down after a failure.
func WithDelays(reset, reconcile, cooldown time.Duration) Option {
	return func(s *Submitter) {
		s.resetDelay = reset
		s.reconcileDelay = reconcile
		s.cooldown = cooldown
	}
}

// WithConfirmation is an option to wait for the inclusion of the transaction
// before confirming a vote. The ledger is polled on the interval until the
// timeout.
func WithConfirmation(interval, timeout time.Duration) Option {
	return func(s *Submitter) {
		s.confirm = true
		s.confirmInterval = interval
		s.confirmTimeout = timeout
	}
}

// NewSubmitter creates a submitter of votes for the contract on the network.
func NewSubmitter(client ledger.Client, sig signer.Signer, contractID, network string,
	catalog poll.Catalog, opts ...Option) *Submitter {

	s := &Submitter{
		logger:         ballot.Logger.With().Str("module", "submitter").Logger(),
		client:         client,
		signer:         sig,
		contractID:     contractID,
		network:        network,
		catalog:        catalog,
		decoder:        rejection.NewDecoder(),
		context:        sjson.NewContext(),
		hashFactory:    crypto.NewSha256Factory(),
		fee:            DefaultFee,
		resetDelay:     DefaultResetDelay,
		reconcileDelay: DefaultReconcileDelay,
		cooldown:       DefaultCooldown,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Submit submits the vote of the identity for the option. It returns
// ErrInFlight when another submission holds the state, or a *classify.Failure
// when the vote fails.
func (s *Submitter) Submit(ctx context.Context, state State, id poll.Identity, option string) error {
	err := s.validate(state, id, option)
	if err != nil {
		promSubmissions.WithLabelValues(classify.InvalidRequest.String()).Inc()
		return classify.NewFailure(err)
	}

	pending := poll.PendingVote{
		ID:       uuid.NewString(),
		Option:   option,
		Identity: id,
	}

	if !state.Begin(pending) {
		return ErrInFlight
	}

	logger := s.logger.With().Str("attempt", pending.ID).Logger()
	logger.Info().Stringer("identity", id).Str("option", option).Msg("submitting vote")

	start := time.Now()

	hash, err := s.run(ctx, state, pending, logger)

	promDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		failure := classify.NewFailure(err)

		logger.Warn().Err(err).Stringer("category", failure.Category).Msg("vote failed")
		promSubmissions.WithLabelValues(failure.Category.String()).Inc()

		state.Fail(failure)
		state.After(s.cooldown, state.End)

		return failure
	}

	logger.Info().Str("hash", hash).Msg("vote accepted")
	promSubmissions.WithLabelValues("Confirmed").Inc()

	state.ApplyProvisional(pending)
	state.SetPhase(poll.Confirmed)
	state.After(s.reconcileDelay, state.Reconcile)
	state.After(s.resetDelay, state.End)

	return nil
}

func (s *Submitter) validate(state State, id poll.Identity, option string) error {
	if id.IsZero() {
		return poll.NewValidationError("no identity is connected")
	}

	if !s.catalog.Contains(option) {
		return poll.NewValidationError("option '%s' is not in the catalog", option)
	}

	if state.HasVoted(id) {
		return poll.NewValidationError("identity %v has already voted", id)
	}

	return nil
}

// run executes the steps of the submission and returns the hash of the
// accepted transaction.
func (s *Submitter) run(ctx context.Context, state State, pending poll.PendingVote,
	logger zerolog.Logger) (string, error) {

	source := string(pending.Identity)

	account, err := s.client.GetAccount(ctx, source)
	if err != nil {
		return "", xerrors.Errorf("failed to fetch account: %w", err)
	}

	inv := types.Invocation{
		Contract: s.contractID,
		Function: contract.FnVote,
		Args:     []types.Value{types.Address(source), types.Symbol(pending.Option)},
	}

	proposal := types.NewProposal(source,
		types.WithSequence(account.Sequence+1),
		types.WithFee(s.fee),
		types.WithInvocation(inv))

	sim, err := s.client.Simulate(ctx, proposal)
	if err != nil {
		return "", xerrors.Errorf("failed to simulate: %w", err)
	}

	if sim.Failed() {
		logger.Debug().Str("error", sim.Error).Msg("simulation rejected")
		return "", s.simulationError(sim)
	}

	proposal, err = ledger.Assemble(proposal, sim)
	if err != nil {
		return "", xerrors.Errorf("failed to assemble: %v", err)
	}

	payload, err := proposal.Serialize(s.context)
	if err != nil {
		return "", xerrors.Errorf("failed to serialize proposal: %v", err)
	}

	logger.Debug().Uint64("fee", proposal.GetTotalFee()).Msg("requesting signature")

	signed, err := s.signer.SignPayload(ctx, payload, s.network)
	if err != nil {
		return "", xerrors.Errorf("failed to sign: %w", err)
	}

	err = s.checkEnvelope(proposal, signed)
	if err != nil {
		return "", xerrors.Errorf("invalid signed payload: %v", err)
	}

	state.SetPhase(poll.Submitted)

	res, err := s.client.Send(ctx, signed)
	if err != nil {
		return "", xerrors.Errorf("failed to send: %w", err)
	}

	switch res.Status {
	case ledger.StatusPending, ledger.StatusDuplicate:
	case ledger.StatusError:
		return "", s.interpret(res.ErrorResult)
	default:
		return "", xerrors.Errorf("transaction not accepted: status %s", res.Status)
	}

	if s.confirm {
		err = s.waitConfirmation(ctx, res.Hash)
		if err != nil {
			return "", err
		}
	}

	return res.Hash, nil
}

// checkEnvelope verifies that the signer signed the proposal it was given.
func (s *Submitter) checkEnvelope(proposal types.Proposal, data []byte) error {
	envelope, err := types.EnvelopeFactory{}.EnvelopeOf(s.context, data)
	if err != nil {
		return xerrors.Errorf("malformed envelope: %v", err)
	}

	expected, err := proposal.Hash(s.network, s.hashFactory)
	if err != nil {
		return xerrors.Errorf("failed to hash: %v", err)
	}

	actual, err := envelope.GetProposal().Hash(s.network, s.hashFactory)
	if err != nil {
		return xerrors.Errorf("failed to hash envelope: %v", err)
	}

	if !bytes.Equal(expected, actual) {
		return xerrors.New("signed proposal does not match")
	}

	return nil
}

// simulationError returns the rejection of a failed simulation. The code is
// read from the diagnostic, or from the outcome when there is one.
func (s *Submitter) simulationError(sim ledger.Simulation) error {
	code, found := rejection.FromMessage(sim.Error)
	if found {
		return rejection.NewError(code)
	}

	if len(sim.ErrorResult) > 0 {
		return s.interpret(sim.ErrorResult)
	}

	return rejection.NewUnknownError(sim.Error)
}

// interpret returns the error of the outcome of a rejected transaction. An
// outcome that parses is trusted as is, and only an unparsable blob goes
// through the decoder.
func (s *Submitter) interpret(blob []byte) error {
	outcome, err := result.Decode(blob)
	if err != nil {
		code, found := s.decoder.Decode(blob)
		if found {
			return rejection.NewError(code)
		}

		return rejection.NewUnknownError(xerrors.Errorf("undecodable outcome: %v", err).Error())
	}

	if !outcome.Code.HasOperations() {
		return ledger.TxError{Code: outcome.Code}
	}

	code, found := outcome.ContractError()
	if found && poll.Rejection(code).Valid() {
		return rejection.NewError(poll.Rejection(code))
	}

	desc := new(bytes.Buffer)
	outcome.Describe(desc)

	return rejection.NewUnknownError(desc.String())
}

// waitConfirmation polls the ledger until the transaction is included.
func (s *Submitter) waitConfirmation(ctx context.Context, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(s.confirmInterval)
	defer ticker.Stop()

	for {
		info, err := s.client.GetTransaction(ctx, hash)
		if err != nil && !ledger.IsTransport(err) {
			return xerrors.Errorf("failed to get transaction: %w", err)
		}

		if err == nil {
			switch info.Status {
			case ledger.TxSuccess:
				return nil
			case ledger.TxFailed:
				return s.interpret(info.ResultBlob)
			}
		}

		select {
		case <-ctx.Done():
			return xerrors.Errorf("transaction %s not confirmed: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}
