package local

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/ballot/crypto"
	"go.dedis.ch/ballot/crypto/ed25519"
	"go.dedis.ch/ballot/internal/testing/fake"
	"go.dedis.ch/ballot/ledger/types"
	sjson "go.dedis.ch/ballot/serde/json"
	"go.dedis.ch/ballot/signer"
	"golang.org/x/xerrors"
)

const testNetwork = "Test Network"

func TestSigner_GetIdentity(t *testing.T) {
	key := ed25519.NewSigner()
	s := NewSigner(key)

	id, err := s.GetIdentity(context.Background())
	require.NoError(t, err)
	require.Equal(t, key.Address(), string(id))
}

func TestSigner_SignPayload(t *testing.T) {
	key := ed25519.NewSigner()
	s := NewSigner(key, WithNetwork(testNetwork))

	proposal := makeProposal(key.Address())

	data, err := s.SignPayload(context.Background(), serialize(t, proposal), testNetwork)
	require.NoError(t, err)

	envelope, err := types.EnvelopeFactory{}.EnvelopeOf(sjson.NewContext(), data)
	require.NoError(t, err)
	require.Equal(t, proposal.GetSequence(), envelope.GetProposal().GetSequence())

	digest, err := proposal.Hash(testNetwork, crypto.NewSha256Factory())
	require.NoError(t, err)

	err = key.GetPublicKey().Verify(digest, ed25519.NewSignature(envelope.GetSignature()))
	require.NoError(t, err)
}

func TestSigner_SignPayload_Refused(t *testing.T) {
	key := ed25519.NewSigner()
	s := NewSigner(key, WithNetwork(testNetwork))

	ctx := context.Background()

	_, err := s.SignPayload(ctx, serialize(t, makeProposal(key.Address())), "Other")
	require.EqualError(t, err, "signer refused: network 'Other' is not 'Test Network'")

	_, err = s.SignPayload(ctx, serialize(t, makeProposal("someone")), testNetwork)
	require.Equal(t, signer.RefusalError{Reason: "source of the transaction is not the signer"}, err)

	_, err = s.SignPayload(ctx, []byte("{"), testNetwork)
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "malformed payload: "))

	canceled, cancel := context.WithCancel(ctx)
	cancel()

	_, err = s.SignPayload(canceled, nil, testNetwork)
	require.Equal(t, context.Canceled, err)
}

func TestSigner_SignPayload_Prompt(t *testing.T) {
	key := ed25519.NewSigner()
	payload := serialize(t, makeProposal(key.Address()))

	out := new(bytes.Buffer)
	s := NewSigner(key, WithPrompt(NewTermPrompt(strings.NewReader("n\n"), out)))

	_, err := s.SignPayload(context.Background(), payload, testNetwork)
	require.True(t, xerrors.Is(err, signer.ErrDeclined))
	require.Contains(t, out.String(), "[y/N]")
	require.Contains(t, out.String(), ".vote(")

	s = NewSigner(key, WithPrompt(NewTermPrompt(strings.NewReader("yes"), out)))

	_, err = s.SignPayload(context.Background(), payload, testNetwork)
	require.NoError(t, err)

	s = NewSigner(key, WithPrompt(badPrompt{}))

	_, err = s.SignPayload(context.Background(), payload, testNetwork)
	require.EqualError(t, err, fake.Err("prompt failed"))
}

func TestTermPrompt_Confirm(t *testing.T) {
	out := new(bytes.Buffer)

	ok, err := NewTermPrompt(strings.NewReader("Y\n"), out).Confirm("sign?")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sign? [y/N] ", out.String())

	ok, err = NewTermPrompt(strings.NewReader("\n"), out).Confirm("sign?")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = NewTermPrompt(strings.NewReader(""), out).Confirm("sign?")
	require.EqualError(t, err, "failed to read answer: EOF")
}

func TestLoadSigner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "private.key")

	s1, err := LoadSigner(path)
	require.NoError(t, err)

	s2, err := LoadSigner(path)
	require.NoError(t, err)
	require.Equal(t, s1.key.Address(), s2.key.Address())

	_, err = LoadSigner(filepath.Join(t.TempDir(), "unknown", "private.key"))
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "failed to load key: "))
}

// -----------------------------------------------------------------------------
// Utility functions

func makeProposal(source string) types.Proposal {
	inv := types.Invocation{
		Contract: strings.Repeat("c", 64),
		Function: "vote",
		Args:     []types.Value{types.Address(source), types.Symbol("A")},
	}

	return types.NewProposal(source,
		types.WithSequence(1),
		types.WithFee(100),
		types.WithInvocation(inv),
		types.WithResources(types.Resources{Instructions: 1000}, 10))
}

func serialize(t *testing.T, p types.Proposal) []byte {
	data, err := p.Serialize(sjson.NewContext())
	require.NoError(t, err)

	return data
}

type badPrompt struct{}

func (badPrompt) Confirm(string) (bool, error) {
	return false, fake.GetError()
}
