// Package memory implements an in-process ledger hosting the poll contract.
//
// It is the ledger of the development node and of the tests: it keeps the
// accounts and the contract state in a key/value database, verifies the
// signatures and the fees of the transactions, and closes a new ledger on a
// fixed interval to include the pending transactions. When the interval is
// zero, the transactions are included synchronously when they are sent.
//
// Documentation Last Review: 14.10.2026
//
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/ballot"
	"go.dedis.ch/ballot/contract"
	"go.dedis.ch/ballot/crypto"
	"go.dedis.ch/ballot/crypto/ed25519"
	"go.dedis.ch/ballot/internal/debugsync"
	"go.dedis.ch/ballot/ledger"
	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/serde"
	sjson "go.dedis.ch/ballot/serde/json"
	"go.dedis.ch/ballot/store"
	"go.dedis.ch/ballot/store/kv"
	"go.dedis.ch/ballot/store/mem"
	"golang.org/x/xerrors"
)

const (
	// DefaultPassphrase is the network identifier of the development network.
	DefaultPassphrase = "Ballot Development Network ; October 2026"

	// DefaultBaseFee is the minimum inclusion fee of a transaction.
	DefaultBaseFee = 100

	// DefaultFaucetAmount is the amount given to an account by the faucet.
	DefaultFaucetAmount = 10_000_000

	// ProtocolVersion is the version of the protocol of the ledger.
	ProtocolVersion = 21

	defaultHistorySize = 1024
)

var (
	bucketAccounts = []byte("accounts")
	bucketState    = []byte("state")
)

var (
	promLedgers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ballot_ledger_height",
		Help: "sequence of the latest closed ledger",
	})

	promTxs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ballot_ledger_transactions_total",
		Help: "total number of transactions sent, by status",
	}, []string{"status"})

	promSimulations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ballot_ledger_simulations_total",
		Help: "total number of simulations, by function",
	}, []string{"function"})
)

func init() {
	ballot.PromCollectors = append(ballot.PromCollectors, promLedgers, promTxs, promSimulations)
}

type accountRecord struct {
	Sequence uint64
	Balance  uint64
}

type pendingTx struct {
	hash     string
	envelope types.Envelope
}

// Ledger is an in-process ledger.
//
// - implements ledger.Client
// - implements ledger.Faucet
type Ledger struct {
	sync debugsync.Mutex

	logger      zerolog.Logger
	db          kv.DB
	contractID  string
	contract    contract.Contract
	hashFactory crypto.HashFactory
	context     serde.Context
	passphrase  string
	baseFee     uint64
	faucet      uint64
	interval    time.Duration

	height  uint64
	pending []pendingTx
	history *lru.Cache
	closing chan struct{}
	done    chan struct{}
}

type options struct {
	db          kv.DB
	passphrase  string
	contractID  string
	baseFee     uint64
	faucet      uint64
	interval    time.Duration
	historySize int
}

// Option is the type of options to create a ledger.
type Option func(*options)

// WithDB is an option to set the database of the ledger. By default, the
// ledger lives in memory.
func WithDB(db kv.DB) Option {
	return func(opts *options) {
		opts.db = db
	}
}

// WithPassphrase is an option to set the network identifier.
func WithPassphrase(passphrase string) Option {
	return func(opts *options) {
		opts.passphrase = passphrase
	}
}

// WithContractID is an option to set the address of the poll contract.
func WithContractID(id string) Option {
	return func(opts *options) {
		opts.contractID = id
	}
}

// WithBaseFee is an option to set the minimum inclusion fee.
func WithBaseFee(fee uint64) Option {
	return func(opts *options) {
		opts.baseFee = fee
	}
}

// WithFaucetAmount is an option to set the amount given by the faucet.
func WithFaucetAmount(amount uint64) Option {
	return func(opts *options) {
		opts.faucet = amount
	}
}

// WithCloseInterval is an option to set the interval between two ledger
// closes. Zero means the transactions are included when they are sent.
func WithCloseInterval(d time.Duration) Option {
	return func(opts *options) {
		opts.interval = d
	}
}

// WithHistorySize is an option to set how many transactions are remembered.
func WithHistorySize(size int) Option {
	return func(opts *options) {
		opts.historySize = size
	}
}

// NewLedger creates a new ledger. The close loop is started when the close
// interval is not zero, and stopped by Close.
func NewLedger(opts ...Option) (*Ledger, error) {
	tmpl := options{
		passphrase:  DefaultPassphrase,
		contractID:  DefaultContractID(),
		baseFee:     DefaultBaseFee,
		faucet:      DefaultFaucetAmount,
		historySize: defaultHistorySize,
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	if tmpl.db == nil {
		tmpl.db = mem.NewDB()
	}

	history, err := lru.New(tmpl.historySize)
	if err != nil {
		return nil, xerrors.Errorf("failed to create history: %v", err)
	}

	l := &Ledger{
		logger:      ballot.Logger.With().Str("module", "ledger").Logger(),
		db:          tmpl.db,
		contractID:  tmpl.contractID,
		contract:    contract.NewContract(),
		hashFactory: crypto.NewSha256Factory(),
		context:     sjson.NewContext(),
		passphrase:  tmpl.passphrase,
		baseFee:     tmpl.baseFee,
		faucet:      tmpl.faucet,
		interval:    tmpl.interval,
		history:     history,
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}

	if l.interval > 0 {
		go l.closeLoop()
	} else {
		close(l.done)
	}

	return l, nil
}

// DefaultContractID returns the address of the poll contract on the
// development network.
func DefaultContractID() string {
	digest := sha256.Sum256([]byte("ballot:poll"))
	return hex.EncodeToString(digest[:])
}

// ContractID returns the address of the poll contract.
func (l *Ledger) ContractID() string {
	return l.contractID
}

// Passphrase returns the network identifier.
func (l *Ledger) Passphrase() string {
	return l.passphrase
}

// Genesis initializes the poll contract with the administrator and the
// options, outside of any transaction.
func (l *Ledger) Genesis(admin string, options []string) error {
	l.sync.Lock()
	defer l.sync.Unlock()

	values := make([]types.Value, len(options))
	for i, opt := range options {
		values[i] = types.Symbol(opt)
	}

	inv := types.Invocation{
		Contract: l.contractID,
		Function: contract.FnInitialize,
		Args:     []types.Value{types.Address(admin), types.Vec(values...)},
	}

	staging := store.NewStaging(kv.NewBucketStore(l.db, bucketState))

	_, err := l.contract.Invoke(contract.NewEnv(l.contractID, staging, genesisAuth(admin)), inv)
	if err != nil {
		return xerrors.Errorf("failed to initialize: %w", err)
	}

	err = l.db.Update(bucketState, func(b kv.Bucket) error {
		return staging.Apply(b)
	})
	if err != nil {
		return xerrors.Errorf("failed to store state: %v", err)
	}

	l.logger.Info().Str("admin", admin).Strs("options", options).Msg("poll initialized")

	return nil
}

// GetNetwork implements ledger.Client.
func (l *Ledger) GetNetwork(ctx context.Context) (ledger.Network, error) {
	l.sync.Lock()
	defer l.sync.Unlock()

	network := ledger.Network{
		Passphrase:      l.passphrase,
		ProtocolVersion: ProtocolVersion,
		LatestLedger:    l.height,
		BaseFee:         l.baseFee,
	}

	return network, nil
}

// GetAccount implements ledger.Client.
func (l *Ledger) GetAccount(ctx context.Context, addr string) (ledger.Account, error) {
	l.sync.Lock()
	defer l.sync.Unlock()

	record, found, err := l.readAccount(addr)
	if err != nil {
		return ledger.Account{}, err
	}

	if !found {
		return ledger.Account{}, ledger.AccountNotFoundError{Address: addr}
	}

	return ledger.Account{Address: addr, Sequence: record.Sequence, Balance: record.Balance}, nil
}

// Fund implements ledger.Faucet. It creates the account if necessary and
// credits the faucet amount.
func (l *Ledger) Fund(ctx context.Context, addr string) (ledger.Account, error) {
	_, err := ed25519.NewPublicKeyFromAddress(addr)
	if err != nil {
		return ledger.Account{}, xerrors.Errorf("invalid account: %v", err)
	}

	l.sync.Lock()
	defer l.sync.Unlock()

	record, _, err := l.readAccount(addr)
	if err != nil {
		return ledger.Account{}, err
	}

	record.Balance += l.faucet

	err = l.writeAccounts(map[string]accountRecord{addr: record})
	if err != nil {
		return ledger.Account{}, err
	}

	l.logger.Info().Str("account", addr).Uint64("balance", record.Balance).Msg("account funded")

	return ledger.Account{Address: addr, Sequence: record.Sequence, Balance: record.Balance}, nil
}

// Simulate implements ledger.Client. It executes the invocation of the
// proposal on a staging copy of the state, recording the authorizations
// required instead of checking them.
func (l *Ledger) Simulate(ctx context.Context, proposal types.Proposal) (ledger.Simulation, error) {
	l.sync.Lock()
	defer l.sync.Unlock()

	inv := proposal.GetInvocation()
	promSimulations.WithLabelValues(inv.Function).Inc()

	if inv.Contract != l.contractID {
		return ledger.Simulation{
			LatestLedger: l.height,
			Error:        "HostError: Error(Storage, MissingValue): contract not found",
		}, nil
	}

	auth := &recordingAuth{}
	staging := store.NewStaging(kv.NewBucketStore(l.db, bucketState))
	env := contract.NewEnv(l.contractID, staging, auth)

	value, err := l.contract.Invoke(env, inv)
	if err != nil {
		l.logger.Debug().Err(err).Stringer("invocation", inv).Msg("simulation failed")

		return ledger.Simulation{
			LatestLedger: l.height,
			Error:        "HostError: " + err.Error(),
		}, nil
	}

	usage := env.Usage()

	sim := ledger.Simulation{
		LatestLedger:   l.height,
		MinResourceFee: resourceFee(usage),
		Resources:      usage,
		Auth:           auth.entries,
		Result:         value,
		Events:         env.Events(),
	}

	return sim, nil
}

// Send implements ledger.Client. The envelope is verified and executed against
// the current state before being accepted, so that a rejection is reported
// immediately with the outcome.
func (l *Ledger) Send(ctx context.Context, data []byte) (ledger.SendResult, error) {
	envelope, err := types.EnvelopeFactory{}.EnvelopeOf(l.context, data)
	if err != nil {
		return ledger.SendResult{}, xerrors.Errorf("malformed envelope: %v", err)
	}

	hash, err := envelope.Hash(l.passphrase, l.hashFactory)
	if err != nil {
		return ledger.SendResult{}, xerrors.Errorf("failed to hash: %v", err)
	}

	l.sync.Lock()
	defer l.sync.Unlock()

	res := ledger.SendResult{
		Hash:         hash,
		LatestLedger: l.height,
	}

	if l.history.Contains(hash) || l.isPending(hash) {
		res.Status = ledger.StatusDuplicate
		promTxs.WithLabelValues(string(res.Status)).Inc()

		return res, nil
	}

	outcome := l.check(envelope, hash)
	if outcome != nil {
		blob, err := outcome.MarshalBinary()
		if err != nil {
			return ledger.SendResult{}, xerrors.Errorf("failed to encode outcome: %v", err)
		}

		res.Status = ledger.StatusError
		res.ErrorResult = blob
		promTxs.WithLabelValues(string(res.Status)).Inc()

		l.logger.Info().Str("hash", hash).Stringer("code", outcome.Code).Msg("transaction rejected")

		return res, nil
	}

	l.pending = append(l.pending, pendingTx{hash: hash, envelope: envelope})

	res.Status = ledger.StatusPending
	promTxs.WithLabelValues(string(res.Status)).Inc()

	l.logger.Debug().Str("hash", hash).Msg("transaction accepted")

	if l.interval == 0 {
		l.closeLedger()
	}

	return res, nil
}

// GetTransaction implements ledger.Client.
func (l *Ledger) GetTransaction(ctx context.Context, hash string) (ledger.TxInfo, error) {
	l.sync.Lock()
	defer l.sync.Unlock()

	info, found := l.history.Get(hash)
	if !found {
		return ledger.TxInfo{Status: ledger.TxNotFound, Hash: hash}, nil
	}

	return info.(ledger.TxInfo), nil
}

// Close stops the close loop. The pending transactions are dropped.
func (l *Ledger) Close() error {
	l.sync.Lock()
	select {
	case <-l.closing:
	default:
		close(l.closing)
	}
	l.sync.Unlock()

	<-l.done

	return nil
}

func (l *Ledger) closeLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.closing:
			return
		case <-ticker.C:
			l.sync.Lock()
			l.closeLedger()
			l.sync.Unlock()
		}
	}
}

// closeLedger includes the pending transactions in a new ledger. It must be
// called while holding the lock.
func (l *Ledger) closeLedger() {
	l.height++
	promLedgers.Set(float64(l.height))

	pending := l.pending
	l.pending = nil

	for _, tx := range pending {
		info := l.apply(tx)
		info.Ledger = l.height

		l.history.Add(tx.hash, info)
	}

	if len(pending) > 0 {
		l.logger.Info().Uint64("ledger", l.height).Int("txs", len(pending)).Msg("ledger closed")
	}
}

func (l *Ledger) isPending(hash string) bool {
	for _, tx := range l.pending {
		if tx.hash == hash {
			return true
		}
	}

	return false
}

func (l *Ledger) readAccount(addr string) (accountRecord, bool, error) {
	var record accountRecord
	var data []byte

	err := l.db.Update(bucketAccounts, func(b kv.Bucket) error {
		data = b.Get([]byte(addr))
		return nil
	})
	if err != nil {
		return record, false, xerrors.Errorf("failed to read account: %v", err)
	}

	if data == nil {
		return record, false, nil
	}

	err = json.Unmarshal(data, &record)
	if err != nil {
		return record, false, xerrors.Errorf("malformed account: %v", err)
	}

	return record, true, nil
}

func (l *Ledger) writeAccounts(records map[string]accountRecord) error {
	err := l.db.Update(bucketAccounts, func(b kv.Bucket) error {
		for addr, record := range records {
			data, err := json.Marshal(record)
			if err != nil {
				return err
			}

			err = b.Set([]byte(addr), data)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return xerrors.Errorf("failed to write account: %v", err)
	}

	return nil
}

func resourceFee(res types.Resources) uint64 {
	return uint64(res.Instructions)/100 + uint64(res.ReadBytes) + 2*uint64(res.WriteBytes)
}

// recordingAuth records the authorizations required by a simulation.
//
// - implements contract.Authorizer
type recordingAuth struct {
	entries []types.AuthEntry
}

func (a *recordingAuth) RequireAuth(addr string, inv types.Invocation) error {
	a.entries = append(a.entries, types.AuthEntry{Address: addr, Invocation: inv})
	return nil
}

// genesisAuth authorizes the administrator only.
//
// - implements contract.Authorizer
type genesisAuth string

func (a genesisAuth) RequireAuth(addr string, inv types.Invocation) error {
	if addr != string(a) {
		return xerrors.Errorf("'%s' is not the administrator", addr)
	}

	return nil
}
