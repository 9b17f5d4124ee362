// Package types defines the messages exchanged with the ledger: the contract
// values, the invocations, the transaction proposals and the signed
// envelopes.
//
// Proposals and envelopes are serialized with the format engines registered
// for the format of the serde context, and fingerprinted deterministically so
// that the digest signed by the voter does not depend on the format.
//
// Documentation Last Review: 14.10.2026
//
package types

import (
	"go.dedis.ch/ballot/serde"
	"go.dedis.ch/ballot/serde/registry"
	"golang.org/x/xerrors"
)

var (
	valueFormats    = registry.NewSimpleRegistry()
	proposalFormats = registry.NewSimpleRegistry()
	envelopeFormats = registry.NewSimpleRegistry()
)

// RegisterValueFormat registers the engine for the provided format.
func RegisterValueFormat(f serde.Format, e serde.FormatEngine) {
	valueFormats.Register(f, e)
}

// RegisterProposalFormat registers the engine for the provided format.
func RegisterProposalFormat(f serde.Format, e serde.FormatEngine) {
	proposalFormats.Register(f, e)
}

// RegisterEnvelopeFormat registers the engine for the provided format.
func RegisterEnvelopeFormat(f serde.Format, e serde.FormatEngine) {
	envelopeFormats.Register(f, e)
}

// ValueFactory is the factory to deserialize contract values.
//
// - implements serde.Factory
type ValueFactory struct{}

// Deserialize implements serde.Factory.
func (f ValueFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.ValueOf(ctx, data)
}

// ValueOf returns the value decoded from the data.
func (ValueFactory) ValueOf(ctx serde.Context, data []byte) (Value, error) {
	format := valueFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return Value{}, xerrors.Errorf("couldn't decode value: %v", err)
	}

	value, ok := msg.(Value)
	if !ok {
		return Value{}, xerrors.Errorf("invalid value of type '%T'", msg)
	}

	return value, nil
}

// ProposalFactory is the factory to deserialize proposals.
//
// - implements serde.Factory
type ProposalFactory struct{}

// Deserialize implements serde.Factory.
func (f ProposalFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.ProposalOf(ctx, data)
}

// ProposalOf returns the proposal decoded from the data.
func (ProposalFactory) ProposalOf(ctx serde.Context, data []byte) (Proposal, error) {
	format := proposalFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return Proposal{}, xerrors.Errorf("couldn't decode proposal: %v", err)
	}

	proposal, ok := msg.(Proposal)
	if !ok {
		return Proposal{}, xerrors.Errorf("invalid proposal of type '%T'", msg)
	}

	return proposal, nil
}

// EnvelopeFactory is the factory to deserialize signed envelopes.
//
// - implements serde.Factory
type EnvelopeFactory struct{}

// Deserialize implements serde.Factory.
func (f EnvelopeFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.EnvelopeOf(ctx, data)
}

// EnvelopeOf returns the envelope decoded from the data.
func (EnvelopeFactory) EnvelopeOf(ctx serde.Context, data []byte) (Envelope, error) {
	format := envelopeFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return Envelope{}, xerrors.Errorf("couldn't decode envelope: %v", err)
	}

	envelope, ok := msg.(Envelope)
	if !ok {
		return Envelope{}, xerrors.Errorf("invalid envelope of type '%T'", msg)
	}

	return envelope, nil
}
