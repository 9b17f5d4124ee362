package fake

import (
	"context"
	"fmt"
	"sync"

	"go.dedis.ch/ballot/ledger"
	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/poll"
	sjson "go.dedis.ch/ballot/serde/json"
	"golang.org/x/xerrors"
)

// Ledger is a fake implementation of a ledger client that hosts a poll. It
// records the calls and applies the accepted votes when they are sent.
//
// - implements ledger.Client
type Ledger struct {
	sync.Mutex

	Calls *Call

	Network ledger.Network
	Account ledger.Account
	Counts  map[string]uint32
	Voted   map[string]bool
	Options []string

	// FailOptions makes the reads of the count of those options fail at the
	// transport level.
	FailOptions map[string]bool
	// Rejection is returned by the simulations of a vote when set.
	Rejection poll.Rejection

	SendResult ledger.SendResult
	TxInfo     ledger.TxInfo

	ErrAccount  error
	ErrSimulate error
	ErrSend     error
	ErrTx       error
}

// NewLedger returns a fake ledger hosting a poll with the options.
func NewLedger(options ...string) *Ledger {
	counts := make(map[string]uint32)
	for _, opt := range options {
		counts[opt] = 0
	}

	return &Ledger{
		Calls:      &Call{},
		Network:    ledger.Network{Passphrase: "Fake Network", BaseFee: 100},
		Counts:     counts,
		Voted:      make(map[string]bool),
		Options:    options,
		SendResult: ledger.SendResult{Status: ledger.StatusPending, Hash: "deadbeef"},
		TxInfo:     ledger.TxInfo{Status: ledger.TxSuccess, Hash: "deadbeef"},
	}
}

// NewBadLedger returns a fake ledger that cannot be reached.
func NewBadLedger() *Ledger {
	l := NewLedger()
	l.ErrAccount = ledger.NewTransportError("getAccount", fakeErr)
	l.ErrSimulate = ledger.NewTransportError("simulateTransaction", fakeErr)
	l.ErrSend = ledger.NewTransportError("sendTransaction", fakeErr)
	l.ErrTx = ledger.NewTransportError("getTransaction", fakeErr)

	return l
}

// GetNetwork implements ledger.Client.
func (l *Ledger) GetNetwork(context.Context) (ledger.Network, error) {
	l.Calls.Add("getNetwork")

	return l.Network, nil
}

// GetAccount implements ledger.Client.
func (l *Ledger) GetAccount(ctx context.Context, addr string) (ledger.Account, error) {
	l.Calls.Add("getAccount", addr)

	if l.ErrAccount != nil {
		return ledger.Account{}, l.ErrAccount
	}

	account := l.Account
	account.Address = addr

	return account, nil
}

// Simulate implements ledger.Client.
func (l *Ledger) Simulate(ctx context.Context, p types.Proposal) (ledger.Simulation, error) {
	inv := p.GetInvocation()

	l.Calls.Add("simulate", inv.Function)

	if l.ErrSimulate != nil {
		return ledger.Simulation{}, l.ErrSimulate
	}

	l.Lock()
	defer l.Unlock()

	sim := ledger.Simulation{}

	switch inv.Function {
	case "get_vote_count":
		option, _ := inv.Args[0].AsSymbol()
		if l.FailOptions[option] {
			return sim, ledger.NewTransportError("simulateTransaction", fakeErr)
		}

		sim.Result = types.U32(l.Counts[option])
	case "has_voted":
		voter, _ := inv.Args[0].AsAddress()
		sim.Result = types.Bool(l.Voted[voter])
	case "get_options":
		values := make([]types.Value, len(l.Options))
		for i, opt := range l.Options {
			values[i] = types.Symbol(opt)
		}

		sim.Result = types.Vec(values...)
	case "vote":
		if l.Rejection != 0 {
			sim.Error = fmt.Sprintf("HostError: Error(Contract, #%d)", uint32(l.Rejection))
			return sim, nil
		}

		voter, _ := inv.Args[0].AsAddress()

		sim.MinResourceFee = 42
		sim.Resources = types.Resources{Instructions: 1000, ReadBytes: 10, WriteBytes: 10}
		sim.Auth = []types.AuthEntry{{Address: voter, Invocation: inv}}
		sim.Result = types.U32(1)
	default:
		sim.Error = fmt.Sprintf("HostError: unknown function '%s'", inv.Function)
	}

	return sim, nil
}

// Send implements ledger.Client. The vote of the envelope is applied to the
// poll when the status is pending.
func (l *Ledger) Send(ctx context.Context, data []byte) (ledger.SendResult, error) {
	l.Calls.Add("send", data)

	if l.ErrSend != nil {
		return ledger.SendResult{}, l.ErrSend
	}

	envelope, err := types.EnvelopeFactory{}.EnvelopeOf(sjson.NewContext(), data)
	if err != nil {
		return ledger.SendResult{}, xerrors.Errorf("malformed envelope: %v", err)
	}

	l.Lock()
	defer l.Unlock()

	if l.SendResult.Status == ledger.StatusPending {
		args := envelope.GetProposal().GetInvocation().Args

		voter, _ := args[0].AsAddress()
		option, _ := args[1].AsSymbol()

		l.Counts[option]++
		l.Voted[voter] = true
	}

	return l.SendResult, nil
}

// GetTransaction implements ledger.Client.
func (l *Ledger) GetTransaction(ctx context.Context, hash string) (ledger.TxInfo, error) {
	l.Calls.Add("getTransaction", hash)

	if l.ErrTx != nil {
		return ledger.TxInfo{}, l.ErrTx
	}

	return l.TxInfo, nil
}

// SetCount sets the count of an option.
func (l *Ledger) SetCount(option string, count uint32) {
	l.Lock()
	l.Counts[option] = count
	l.Unlock()
}

// SetVoted sets the voting status of an identity.
func (l *Ledger) SetVoted(voter string, voted bool) {
	l.Lock()
	l.Voted[voter] = voted
	l.Unlock()
}

// CountCalls returns the number of calls of the operation.
func (l *Ledger) CountCalls(op string) int {
	n := 0
	for i := 0; i < l.Calls.Len(); i++ {
		if l.Calls.Get(i, 0) == op {
			n++
		}
	}

	return n
}
