package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/ballot/contract"
	"go.dedis.ch/ballot/crypto"
	"go.dedis.ch/ballot/crypto/ed25519"
	"go.dedis.ch/ballot/ledger"
	"go.dedis.ch/ballot/ledger/result"
	"go.dedis.ch/ballot/ledger/types"
	sjson "go.dedis.ch/ballot/serde/json"
	"go.dedis.ch/ballot/store/kv"
)

func TestLedger_Genesis(t *testing.T) {
	l := makeLedger(t)

	err := l.Genesis("admin", []string{"A", "B"})
	require.NoError(t, err)

	err = l.Genesis("admin", []string{"A", "B"})
	require.EqualError(t, err, "failed to initialize: Error(Contract, #4)")

	sim, err := l.Simulate(context.Background(), read(l, contract.FnGetOptions))
	require.NoError(t, err)
	require.False(t, sim.Failed())
	require.True(t, types.Vec(types.Symbol("A"), types.Symbol("B")).Equal(sim.Result))
}

func TestLedger_Simulate(t *testing.T) {
	l := makeLedger(t)
	ctx := context.Background()

	sim, err := l.Simulate(ctx, read(l, contract.FnGetVoteCount, types.Symbol("A")))
	require.NoError(t, err)
	require.Equal(t, "HostError: Error(Contract, #1)", sim.Error)

	require.NoError(t, l.Genesis("admin", []string{"A", "B"}))

	sim, err = l.Simulate(ctx, read(l, contract.FnGetVoteCount, types.Symbol("A")))
	require.NoError(t, err)
	require.Equal(t, types.U32(0), sim.Result)

	voter := ed25519.NewSigner()

	sim, err = l.Simulate(ctx, votingProposal(l, voter.Address(), "B", 1))
	require.NoError(t, err)
	require.False(t, sim.Failed())
	require.Equal(t, types.U32(1), sim.Result)
	require.Len(t, sim.Auth, 1)
	require.Equal(t, voter.Address(), sim.Auth[0].Address)
	require.NotZero(t, sim.MinResourceFee)
	require.Len(t, sim.Events, 1)

	// A simulation never changes the state.
	sim, err = l.Simulate(ctx, read(l, contract.FnGetVoteCount, types.Symbol("B")))
	require.NoError(t, err)
	require.Equal(t, types.U32(0), sim.Result)

	sim, err = l.Simulate(ctx, votingProposal(l, voter.Address(), "C", 1))
	require.NoError(t, err)
	require.Equal(t, "HostError: Error(Contract, #3)", sim.Error)
	require.Empty(t, sim.ErrorResult)

	proposal := types.NewProposal("x", types.WithInvocation(types.Invocation{Contract: "unknown"}))
	sim, err = l.Simulate(ctx, proposal)
	require.NoError(t, err)
	require.True(t, sim.Failed())
}

func TestLedger_VoteLifecycle(t *testing.T) {
	l := makeLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Genesis("admin", []string{"A", "B"}))

	voter := ed25519.NewSigner()

	_, err := l.GetAccount(ctx, voter.Address())
	require.Equal(t, ledger.AccountNotFoundError{Address: voter.Address()}, err)

	account, err := l.Fund(ctx, voter.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(DefaultFaucetAmount), account.Balance)

	data := signedVote(t, l, voter, "A", 1)

	res, err := l.Send(ctx, data)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, res.Status)
	require.Len(t, res.Hash, 64)

	info, err := l.GetTransaction(ctx, res.Hash)
	require.NoError(t, err)
	require.Equal(t, ledger.TxSuccess, info.Status)
	require.Equal(t, types.U32(1), info.Result)
	require.Len(t, info.Events, 1)
	require.True(t, info.Events[0].Is(contract.TopicPoll, contract.TopicVoted))

	outcome, err := result.Decode(info.ResultBlob)
	require.NoError(t, err)
	require.Equal(t, result.TxSuccess, outcome.Code)

	account, err = l.GetAccount(ctx, voter.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(1), account.Sequence)
	require.Less(t, account.Balance, uint64(DefaultFaucetAmount))

	res, err = l.Send(ctx, data)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusDuplicate, res.Status)

	// A second vote is rejected by the contract.
	res, err = l.Send(ctx, signedVote(t, l, voter, "B", 2))
	require.NoError(t, err)
	require.Equal(t, ledger.StatusError, res.Status)

	outcome, err = result.Decode(res.ErrorResult)
	require.NoError(t, err)

	code, found := outcome.ContractError()
	require.True(t, found)
	require.Equal(t, uint32(2), code)

	sim, err := l.Simulate(ctx, read(l, contract.FnHasVoted, types.Address(voter.Address())))
	require.NoError(t, err)
	require.Equal(t, types.Bool(true), sim.Result)

	info, err = l.GetTransaction(ctx, "unknown")
	require.NoError(t, err)
	require.Equal(t, ledger.TxNotFound, info.Status)
}

func TestLedger_Send_Rejections(t *testing.T) {
	l := makeLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Genesis("admin", []string{"A"}))

	voter := ed25519.NewSigner()

	// Unknown account.
	requireRejected(t, l, signedVote(t, l, voter, "A", 1), result.TxNoAccount)

	_, err := l.Fund(ctx, voter.Address())
	require.NoError(t, err)

	// Wrong sequence.
	requireRejected(t, l, signedVote(t, l, voter, "A", 5), result.TxBadSeq)

	// Signature of another key.
	other := ed25519.NewSigner()
	proposal := assembled(t, l, votingProposal(l, voter.Address(), "A", 1))
	requireRejected(t, l, sign(t, l, other, proposal), result.TxBadAuth)

	// Fee under the minimum.
	requireRejected(t, l, sign(t, l, voter, proposal.With(types.WithFee(1))), result.TxInsufficientFee)

	// Not assembled.
	requireRejected(t, l, sign(t, l, voter, votingProposal(l, voter.Address(), "A", 1)), result.TxMalformed)

	// Resources lower than the execution.
	small := proposal.With(types.WithResources(types.Resources{}, 0))
	res, err := l.Send(ctx, sign(t, l, voter, small))
	require.NoError(t, err)
	require.Equal(t, ledger.StatusError, res.Status)

	outcome, err := result.Decode(res.ErrorResult)
	require.NoError(t, err)
	require.Equal(t, result.InvokeResourceLimitExceeded, outcome.Ops[0].InvokeCode)

	// Authorization entry removed.
	requireRejectedCode(t, l, sign(t, l, voter, proposal.With(types.WithAuth())), 5)

	// Vote on behalf of another address.
	stranger := ed25519.NewSigner()
	_, err = l.Fund(ctx, stranger.Address())
	require.NoError(t, err)

	forged := assembled(t, l, votingProposal(l, voter.Address(), "A", 1))
	forged = types.NewProposal(stranger.Address(),
		types.WithSequence(1),
		types.WithFee(DefaultBaseFee),
		types.WithInvocation(forged.GetInvocation()),
		types.WithResources(*forged.GetResources(), forged.GetResourceFee()),
		types.WithAuth(forged.GetAuth()...),
	)
	requireRejectedCode(t, l, sign(t, l, stranger, forged), 5)

	_, err = l.Send(ctx, []byte("{"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed envelope: ")
}

func TestLedger_InsufficientBalance(t *testing.T) {
	l, err := NewLedger(WithFaucetAmount(10))
	require.NoError(t, err)

	defer l.Close()

	require.NoError(t, l.Genesis("admin", []string{"A"}))

	voter := ed25519.NewSigner()
	_, err = l.Fund(context.Background(), voter.Address())
	require.NoError(t, err)

	requireRejected(t, l, signedVote(t, l, voter, "A", 1), result.TxInsufficientBalance)
}

func TestLedger_CloseLoop(t *testing.T) {
	l, err := NewLedger(WithCloseInterval(10 * time.Millisecond))
	require.NoError(t, err)

	defer l.Close()

	ctx := context.Background()

	require.NoError(t, l.Genesis("admin", []string{"A"}))

	voter := ed25519.NewSigner()
	_, err = l.Fund(ctx, voter.Address())
	require.NoError(t, err)

	res, err := l.Send(ctx, signedVote(t, l, voter, "A", 1))
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, res.Status)

	require.Eventually(t, func() bool {
		info, err := l.GetTransaction(ctx, res.Hash)
		return err == nil && info.Status == ledger.TxSuccess
	}, time.Second, 5*time.Millisecond)

	network, err := l.GetNetwork(ctx)
	require.NoError(t, err)
	require.NotZero(t, network.LatestLedger)
	require.Equal(t, DefaultPassphrase, network.Passphrase)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}

func TestLedger_Persistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := kv.New(path)
	require.NoError(t, err)

	l, err := NewLedger(WithDB(db))
	require.NoError(t, err)

	require.NoError(t, l.Genesis("admin", []string{"A"}))
	require.NoError(t, db.Close())

	db, err = kv.New(path)
	require.NoError(t, err)

	defer db.Close()

	l, err = NewLedger(WithDB(db))
	require.NoError(t, err)

	err = l.Genesis("admin", []string{"A"})
	require.EqualError(t, err, "failed to initialize: Error(Contract, #4)")
}

func TestLedger_Fund_InvalidAddress(t *testing.T) {
	l := makeLedger(t)

	_, err := l.Fund(context.Background(), "abc")
	require.EqualError(t, err, "invalid account: address 'abc' has invalid length 3")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeLedger(t *testing.T) *Ledger {
	l, err := NewLedger()
	require.NoError(t, err)

	t.Cleanup(func() { l.Close() })

	return l
}

func read(l *Ledger, fn string, args ...types.Value) types.Proposal {
	inv := types.Invocation{Contract: l.ContractID(), Function: fn, Args: args}

	return types.NewProposal(ed25519.NewSigner().Address(), types.WithInvocation(inv))
}

func votingProposal(l *Ledger, voter, option string, seq uint64) types.Proposal {
	inv := types.Invocation{
		Contract: l.ContractID(),
		Function: contract.FnVote,
		Args:     []types.Value{types.Address(voter), types.Symbol(option)},
	}

	return types.NewProposal(voter,
		types.WithSequence(seq),
		types.WithFee(DefaultBaseFee),
		types.WithInvocation(inv))
}

func assembled(t *testing.T, l *Ledger, p types.Proposal) types.Proposal {
	sim, err := l.Simulate(context.Background(), p)
	require.NoError(t, err)

	// Simulations run against the current state: a vote that would be
	// rejected still gets resources so that the rejection is observed when
	// sending.
	if sim.Failed() {
		return p.With(types.WithResources(types.Resources{Instructions: 1 << 20, ReadBytes: 1 << 20, WriteBytes: 1 << 20}, 100),
			types.WithAuth(types.AuthEntry{Address: p.GetSource(), Invocation: p.GetInvocation()}))
	}

	res, err := ledger.Assemble(p, sim)
	require.NoError(t, err)

	return res
}

func sign(t *testing.T, l *Ledger, signer ed25519.Signer, p types.Proposal) []byte {
	digest, err := p.Hash(l.Passphrase(), crypto.NewSha256Factory())
	require.NoError(t, err)

	sig, err := signer.Sign(digest)
	require.NoError(t, err)

	raw, err := sig.MarshalBinary()
	require.NoError(t, err)

	data, err := types.NewEnvelope(p, raw).Serialize(sjson.NewContext())
	require.NoError(t, err)

	return data
}

func signedVote(t *testing.T, l *Ledger, signer ed25519.Signer, option string, seq uint64) []byte {
	return sign(t, l, signer, assembled(t, l, votingProposal(l, signer.Address(), option, seq)))
}

func requireRejected(t *testing.T, l *Ledger, data []byte, code result.TxCode) {
	res, err := l.Send(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusError, res.Status)

	outcome, err := result.Decode(res.ErrorResult)
	require.NoError(t, err)
	require.Equal(t, code, outcome.Code)
}

func requireRejectedCode(t *testing.T, l *Ledger, data []byte, code uint32) {
	res, err := l.Send(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusError, res.Status)

	outcome, err := result.Decode(res.ErrorResult)
	require.NoError(t, err)

	actual, found := outcome.ContractError()
	require.True(t, found)
	require.Equal(t, code, actual)
}
