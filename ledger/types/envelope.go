package types

import (
	"encoding/hex"

	"go.dedis.ch/ballot/crypto"
	"go.dedis.ch/ballot/serde"
	"golang.org/x/xerrors"
)

// Envelope is a proposal signed by its source.
//
// - implements serde.Message
type Envelope struct {
	proposal  Proposal
	signature []byte
}

// NewEnvelope creates a new envelope from the proposal and the signature of
// its digest.
func NewEnvelope(p Proposal, signature []byte) Envelope {
	return Envelope{
		proposal:  p,
		signature: signature,
	}
}

// GetProposal returns the proposal.
func (e Envelope) GetProposal() Proposal {
	return e.proposal
}

// GetSignature returns the signature of the proposal digest.
func (e Envelope) GetSignature() []byte {
	return append([]byte{}, e.signature...)
}

// Hash returns the hexadecimal digest of the proposal for the network, which
// identifies the transaction.
func (e Envelope) Hash(network string, f crypto.HashFactory) (string, error) {
	digest, err := e.proposal.Hash(network, f)
	if err != nil {
		return "", xerrors.Errorf("couldn't hash proposal: %v", err)
	}

	return hex.EncodeToString(digest), nil
}

// Serialize implements serde.Message.
func (e Envelope) Serialize(ctx serde.Context) ([]byte, error) {
	format := envelopeFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, e)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode envelope: %v", err)
	}

	return data, nil
}
