package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/ballot/ledger/result"
	"go.dedis.ch/ballot/ledger/types"
	"golang.org/x/xerrors"
)

func TestSendStatus_Accepted(t *testing.T) {
	require.True(t, StatusPending.Accepted())
	require.True(t, StatusDuplicate.Accepted())
	require.False(t, StatusTryAgainLater.Accepted())
	require.False(t, StatusError.Accepted())
}

func TestTransportError(t *testing.T) {
	cause := xerrors.New("connection refused")
	err := NewTransportError("getAccount", cause)

	require.EqualError(t, err, "network error during getAccount: connection refused")
	require.True(t, IsTransport(xerrors.Errorf("read: %w", err)))
	require.True(t, xerrors.Is(err, cause))
	require.False(t, IsTransport(cause))
}

func TestTxError(t *testing.T) {
	err := TxError{Code: result.TxInsufficientBalance}
	require.EqualError(t, err, "transaction rejected: insufficient balance to pay the fee")
	require.True(t, err.InsufficientFunds())

	err = TxError{Code: result.TxBadSeq}
	require.EqualError(t, err, "transaction rejected: bad sequence number")
	require.False(t, err.InsufficientFunds())

	require.EqualError(t, TxError{Code: result.TxMalformed}, "transaction rejected: txMALFORMED")
	require.EqualError(t, TxError{Code: result.TxInsufficientFee}, "transaction rejected: insufficient fee")
	require.EqualError(t, TxError{Code: result.TxNoAccount}, "transaction rejected: source account not found")
	require.EqualError(t, TxError{Code: result.TxBadAuth}, "transaction rejected: bad authorization")

	require.EqualError(t, AccountNotFoundError{Address: "abc"}, "account 'abc' not found")
}

func TestAssemble(t *testing.T) {
	proposal := types.NewProposal("voter", types.WithSequence(1), types.WithFee(100))

	sim := Simulation{
		MinResourceFee: 50,
		Resources:      types.Resources{Instructions: 10},
		Auth:           []types.AuthEntry{{Address: "voter"}},
	}

	assembled, err := Assemble(proposal, sim)
	require.NoError(t, err)
	require.True(t, assembled.IsAssembled())
	require.Equal(t, uint64(150), assembled.GetTotalFee())
	require.Len(t, assembled.GetAuth(), 1)
	require.False(t, proposal.IsAssembled())

	_, err = Assemble(proposal, Simulation{Error: "HostError: Error(Contract, #3)"})
	require.EqualError(t, err, "cannot assemble a failed simulation: HostError: Error(Contract, #3)")
}
