// Package reader implements the read-only queries of the poll.
//
// Every read is a simulation of a contract function from an ephemeral
// identity: nothing is signed, no fee is paid and the state of the ledger is
// left untouched. The failures are logged and reported as the absence of a
// result so that the caller can keep its previous state.
//
// Documentation Last Review: 14.10.2026
//
package reader

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/ballot"
	"go.dedis.ch/ballot/contract"
	"go.dedis.ch/ballot/crypto/ed25519"
	"go.dedis.ch/ballot/ledger"
	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/poll"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// DefaultConcurrency is the default number of options queried concurrently.
const DefaultConcurrency = 4

var promReads = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "ballot_reader_queries_total",
	Help: "total number of read queries, by function and outcome",
}, []string{"function", "outcome"})

func init() {
	ballot.PromCollectors = append(ballot.PromCollectors, promReads)
}

// Reader reads the state of the poll.
type Reader struct {
	logger      zerolog.Logger
	client      ledger.Client
	contractID  string
	catalog     poll.Catalog
	concurrency int
}

// Option is the type of options to create a reader.
type Option func(*Reader)

// WithConcurrency is an option to set the number of options queried
// concurrently by a tally read.
func WithConcurrency(n int) Option {
	return func(r *Reader) {
		r.concurrency = n
	}
}

// NewReader creates a reader of the poll of the contract.
func NewReader(client ledger.Client, contractID string, catalog poll.Catalog, opts ...Option) *Reader {
	r := &Reader{
		logger:      ballot.Logger.With().Str("module", "reader").Logger(),
		client:      client,
		contractID:  contractID,
		catalog:     catalog,
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Catalog returns the catalog of the reader.
func (r *Reader) Catalog() poll.Catalog {
	return r.catalog
}

// ReadTally returns the count of every option of the catalog. An option that
// cannot be read counts zero. When every read fails to reach the ledger, the
// tally is reported as not available.
func (r *Reader) ReadTally(ctx context.Context) (poll.Tally, bool) {
	ids := r.catalog.IDs()
	counts := make([]uint32, len(ids))
	errs := make([]error, len(ids))

	source := ephemeral()

	group := errgroup.Group{}
	if r.concurrency > 0 {
		group.SetLimit(r.concurrency)
	}

	for i := range ids {
		i := i

		group.Go(func() error {
			counts[i], errs[i] = r.readCount(ctx, source, ids[i])
			return nil
		})
	}

	group.Wait()

	tally := r.catalog.EmptyTally()
	unreachable := 0

	for i, id := range ids {
		if errs[i] != nil {
			r.logger.Warn().Err(errs[i]).Str("option", id).Msg("failed to read count")

			if ledger.IsTransport(errs[i]) {
				unreachable++
			}

			continue
		}

		tally[id] = counts[i]
	}

	if len(ids) > 0 && unreachable == len(ids) {
		r.logger.Warn().Msg("ledger unreachable, tally not available")
		return nil, false
	}

	return tally, true
}

// ReadVoterStatus returns true if the identity has voted. The second value is
// false when the status is not available, including when no identity is
// given.
func (r *Reader) ReadVoterStatus(ctx context.Context, id poll.Identity) (bool, bool) {
	if id.IsZero() {
		return false, false
	}

	value, err := r.simulate(ctx, ephemeral(), contract.FnHasVoted, types.Address(string(id)))
	if err != nil {
		r.logger.Warn().Err(err).Stringer("identity", id).Msg("failed to read voter status")
		return false, false
	}

	voted, err := value.AsBool()
	if err != nil {
		r.logger.Warn().Err(err).Msg("unexpected voter status")
		return false, false
	}

	return voted, true
}

// ReadOptions returns the options accepted by the contract.
func (r *Reader) ReadOptions(ctx context.Context) ([]string, error) {
	value, err := r.simulate(ctx, ephemeral(), contract.FnGetOptions)
	if err != nil {
		return nil, xerrors.Errorf("failed to read options: %w", err)
	}

	items, err := value.AsVec()
	if err != nil {
		return nil, xerrors.Errorf("unexpected options: %v", err)
	}

	options := make([]string, len(items))
	for i, item := range items {
		options[i], err = item.AsSymbol()
		if err != nil {
			return nil, xerrors.Errorf("option #%d: %v", i, err)
		}
	}

	return options, nil
}

// VerifyCatalog returns an error if the options accepted by the contract are
// not exactly the options of the catalog.
func (r *Reader) VerifyCatalog(ctx context.Context) error {
	options, err := r.ReadOptions(ctx)
	if err != nil {
		return err
	}

	return r.catalog.Verify(options)
}

func (r *Reader) readCount(ctx context.Context, source, option string) (uint32, error) {
	value, err := r.simulate(ctx, source, contract.FnGetVoteCount, types.Symbol(option))
	if err != nil {
		return 0, err
	}

	count, err := value.AsU32()
	if err != nil {
		return 0, xerrors.Errorf("unexpected count: %v", err)
	}

	return count, nil
}

func (r *Reader) simulate(ctx context.Context, source, fn string, args ...types.Value) (types.Value, error) {
	inv := types.Invocation{
		Contract: r.contractID,
		Function: fn,
		Args:     args,
	}

	sim, err := r.client.Simulate(ctx, types.NewProposal(source, types.WithInvocation(inv)))
	if err != nil {
		promReads.WithLabelValues(fn, "unreachable").Inc()
		return types.Value{}, xerrors.Errorf("failed to simulate: %w", err)
	}

	if sim.Failed() {
		promReads.WithLabelValues(fn, "failed").Inc()
		return types.Value{}, xerrors.Errorf("simulation failed: %s", sim.Error)
	}

	promReads.WithLabelValues(fn, "ok").Inc()

	return sim.Result, nil
}

// ephemeral returns the address of a throwaway identity. It never holds an
// account on the ledger.
func ephemeral() string {
	return ed25519.NewSigner().Address()
}
