package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/ballot/internal/testing/fake"
	"go.dedis.ch/ballot/ledger"
	"go.dedis.ch/ballot/ledger/result"
	"go.dedis.ch/ballot/poll"
	"go.dedis.ch/ballot/rejection"
	"go.dedis.ch/ballot/signer"
	"golang.org/x/xerrors"
)

func TestClassify_Typed(t *testing.T) {
	var testCases = []struct {
		err      error
		category Category
	}{
		{poll.NewValidationError("option '%s' is not in the catalog", "Z"), InvalidRequest},
		{signer.ErrUnavailable, SignerUnavailable},
		{xerrors.Errorf("signing: %w", signer.ErrUnavailable), SignerUnavailable},
		{signer.ErrDeclined, UserDeclined},
		{signer.RefusalError{Reason: "network mismatch"}, UserDeclined},
		{ledger.TxError{Code: result.TxInsufficientBalance}, InsufficientFunds},
		{ledger.AccountNotFoundError{Address: "abc"}, InsufficientFunds},
		{rejection.NewError(poll.AlreadyVoted), ContractRejected},
		{rejection.NewUnknownError("txFAILED"), Undecodable},
		{ledger.NewTransportError("send", fake.GetError()), Network},
		{xerrors.Errorf("poll: %w", context.DeadlineExceeded), Network},
		{xerrors.Errorf("failed to fetch account: %w", context.Canceled), Network},
	}

	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			res := Classify(tc.err)
			require.Equal(t, tc.category, res.Category)
			require.NotEmpty(t, res.Message)
		})
	}
}

func TestClassify_ContractRejected(t *testing.T) {
	res := Classify(rejection.NewError(poll.InvalidOption))
	require.Equal(t, ContractRejected, res.Category)
	require.Equal(t, poll.InvalidOption, res.Code)
	require.Contains(t, res.Message, "code 3")

	res = Classify(xerrors.Errorf("send: %w", rejection.NewError(poll.AlreadyVoted)))
	require.Equal(t, poll.AlreadyVoted, res.Code)
	require.Contains(t, res.Message, "code 2")
}

func TestClassify_InvalidRequest(t *testing.T) {
	res := Classify(poll.NewValidationError("identity already voted"))
	require.Equal(t, InvalidRequest, res.Category)
	require.Equal(t, "Identity already voted.", res.Message)
}

func TestClassify_Canceled(t *testing.T) {
	res := Classify(xerrors.Errorf("failed to simulate: %w", context.Canceled))
	require.Equal(t, Network, res.Category)
	require.Equal(t, msgCanceled, res.Message)

	// A signer reporting a cancellation in text is still a user decision.
	res = Classify(xerrors.New("Request cancelled"))
	require.Equal(t, UserDeclined, res.Category)
}

func TestClassify_OtherTxError(t *testing.T) {
	res := Classify(ledger.TxError{Code: result.TxBadSeq})
	require.Equal(t, Unknown, res.Category)
	require.Equal(t, "Unexpected error: transaction rejected: bad sequence number", res.Message)
}

func TestClassify_Text(t *testing.T) {
	var testCases = []struct {
		text     string
		category Category
	}{
		{"Freighter is not installed", SignerUnavailable},
		{"window.freighter is undefined", SignerUnavailable},
		{"No wallet detected", SignerUnavailable},
		{"User rejected the request", UserDeclined},
		{"Request cancelled", UserDeclined},
		{"access denied", UserDeclined},
		{"Insufficient balance", InsufficientFunds},
		{"account underfunded", InsufficientFunds},
		{"HostError: Error(Contract, #1)", ContractRejected},
		{"something odd", Unknown},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			res := Classify(xerrors.New(tc.text))
			require.Equal(t, tc.category, res.Category)
		})
	}

	// The signer categories come before the funds one.
	res := Classify(xerrors.New("declined: insufficient balance"))
	require.Equal(t, UserDeclined, res.Category)

	res = Classify(xerrors.New("something odd"))
	require.Equal(t, "Unexpected error: something odd", res.Message)
}

func TestClassify_Nil(t *testing.T) {
	res := Classify(nil)
	require.Equal(t, Unknown, res.Category)
}

func TestClassify_Pure(t *testing.T) {
	err := xerrors.New("User rejected the request")
	require.Equal(t, Classify(err), Classify(err))
}

func TestCategory_String(t *testing.T) {
	require.Equal(t, "ContractRejected", ContractRejected.String())
	require.Equal(t, "Category(99)", Category(99).String())
}

func TestFailure(t *testing.T) {
	err := NewFailure(signer.ErrDeclined)
	require.Equal(t, UserDeclined, err.Category)
	require.True(t, xerrors.Is(err, signer.ErrDeclined))
	require.EqualError(t, err, "UserDeclined: "+msgUserDeclined)

	var failure *Failure
	require.True(t, xerrors.As(xerrors.Errorf("vote: %w", err), &failure))
}
