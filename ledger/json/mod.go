// Package json defines the JSON format of the ledger messages.
package json

import (
	"encoding/base64"

	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/serde"
	"golang.org/x/xerrors"
)

func init() {
	types.RegisterValueFormat(serde.FormatJSON, valueFormat{})
	types.RegisterProposalFormat(serde.FormatJSON, proposalFormat{})
	types.RegisterEnvelopeFormat(serde.FormatJSON, envelopeFormat{})
}

// ValueJSON is the JSON message of a contract value.
type ValueJSON struct {
	Type    string
	Bool    bool        `json:",omitempty"`
	U32     uint32      `json:",omitempty"`
	Symbol  string      `json:",omitempty"`
	Address string      `json:",omitempty"`
	Vec     []ValueJSON `json:",omitempty"`
}

// InvocationJSON is the JSON message of a contract invocation.
type InvocationJSON struct {
	Contract string
	Function string
	Args     []ValueJSON
}

// ResourcesJSON is the JSON message of the resources of a proposal.
type ResourcesJSON struct {
	Instructions uint32
	ReadBytes    uint32
	WriteBytes   uint32
	Footprint    []string
}

// AuthEntryJSON is the JSON message of an authorization entry.
type AuthEntryJSON struct {
	Address    string
	Invocation InvocationJSON
}

// ProposalJSON is the JSON message of a proposal.
type ProposalJSON struct {
	Source      string
	Sequence    uint64
	Fee         uint64
	ResourceFee uint64 `json:",omitempty"`
	Invocation  InvocationJSON
	Resources   *ResourcesJSON  `json:",omitempty"`
	Auth        []AuthEntryJSON `json:",omitempty"`
}

// EnvelopeJSON is the JSON message of a signed envelope.
type EnvelopeJSON struct {
	Proposal  ProposalJSON
	Signature string
}

// valueFormat is the engine to encode and decode contract values in JSON.
//
// - implements serde.FormatEngine
type valueFormat struct{}

// Encode implements serde.FormatEngine.
func (valueFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	value, ok := msg.(types.Value)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	data, err := ctx.Marshal(EncodeValue(value))
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (valueFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := ValueJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	value, err := DecodeValue(m)
	if err != nil {
		return nil, xerrors.Errorf("invalid value: %v", err)
	}

	return value, nil
}

// proposalFormat is the engine to encode and decode proposals in JSON.
//
// - implements serde.FormatEngine
type proposalFormat struct{}

// Encode implements serde.FormatEngine.
func (proposalFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	proposal, ok := msg.(types.Proposal)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	data, err := ctx.Marshal(encodeProposal(proposal))
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (proposalFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := ProposalJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	proposal, err := decodeProposal(m)
	if err != nil {
		return nil, xerrors.Errorf("invalid proposal: %v", err)
	}

	return proposal, nil
}

// envelopeFormat is the engine to encode and decode envelopes in JSON.
//
// - implements serde.FormatEngine
type envelopeFormat struct{}

// Encode implements serde.FormatEngine.
func (envelopeFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	env, ok := msg.(types.Envelope)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	m := EnvelopeJSON{
		Proposal:  encodeProposal(env.GetProposal()),
		Signature: base64.StdEncoding.EncodeToString(env.GetSignature()),
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (envelopeFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := EnvelopeJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	proposal, err := decodeProposal(m.Proposal)
	if err != nil {
		return nil, xerrors.Errorf("invalid proposal: %v", err)
	}

	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return nil, xerrors.Errorf("invalid signature: %v", err)
	}

	return types.NewEnvelope(proposal, sig), nil
}

// EncodeValue returns the JSON message of the value.
func EncodeValue(v types.Value) ValueJSON {
	m := ValueJSON{Type: v.Kind().String()}

	switch v.Kind() {
	case types.KindBool:
		m.Bool, _ = v.AsBool()
	case types.KindU32:
		m.U32, _ = v.AsU32()
	case types.KindSymbol:
		m.Symbol, _ = v.AsSymbol()
	case types.KindAddress:
		m.Address, _ = v.AsAddress()
	case types.KindVec:
		items, _ := v.AsVec()

		m.Vec = make([]ValueJSON, len(items))
		for i, item := range items {
			m.Vec[i] = EncodeValue(item)
		}
	}

	return m
}

// DecodeValue returns the value of the JSON message.
func DecodeValue(m ValueJSON) (types.Value, error) {
	kind, found := types.KindOf(m.Type)
	if !found {
		return types.Value{}, xerrors.Errorf("unknown type '%s'", m.Type)
	}

	switch kind {
	case types.KindBool:
		return types.Bool(m.Bool), nil
	case types.KindU32:
		return types.U32(m.U32), nil
	case types.KindSymbol:
		return types.Symbol(m.Symbol), nil
	case types.KindAddress:
		return types.Address(m.Address), nil
	case types.KindVec:
		items := make([]types.Value, len(m.Vec))
		for i, item := range m.Vec {
			value, err := DecodeValue(item)
			if err != nil {
				return types.Value{}, xerrors.Errorf("item #%d: %v", i, err)
			}

			items[i] = value
		}

		return types.Vec(items...), nil
	default:
		return types.Void(), nil
	}
}

// EncodeInvocation returns the JSON message of the invocation.
func EncodeInvocation(inv types.Invocation) InvocationJSON {
	args := make([]ValueJSON, len(inv.Args))
	for i, arg := range inv.Args {
		args[i] = EncodeValue(arg)
	}

	return InvocationJSON{
		Contract: inv.Contract,
		Function: inv.Function,
		Args:     args,
	}
}

// DecodeInvocation returns the invocation of the JSON message.
func DecodeInvocation(m InvocationJSON) (types.Invocation, error) {
	args := make([]types.Value, len(m.Args))
	for i, arg := range m.Args {
		value, err := DecodeValue(arg)
		if err != nil {
			return types.Invocation{}, xerrors.Errorf("arg #%d: %v", i, err)
		}

		args[i] = value
	}

	inv := types.Invocation{
		Contract: m.Contract,
		Function: m.Function,
		Args:     args,
	}

	return inv, nil
}

func encodeProposal(p types.Proposal) ProposalJSON {
	m := ProposalJSON{
		Source:      p.GetSource(),
		Sequence:    p.GetSequence(),
		Fee:         p.GetFee(),
		ResourceFee: p.GetResourceFee(),
		Invocation:  EncodeInvocation(p.GetInvocation()),
	}

	res := p.GetResources()
	if res != nil {
		m.Resources = &ResourcesJSON{
			Instructions: res.Instructions,
			ReadBytes:    res.ReadBytes,
			WriteBytes:   res.WriteBytes,
			Footprint:    res.Footprint,
		}
	}

	for _, entry := range p.GetAuth() {
		m.Auth = append(m.Auth, AuthEntryJSON{
			Address:    entry.Address,
			Invocation: EncodeInvocation(entry.Invocation),
		})
	}

	return m
}

func decodeProposal(m ProposalJSON) (types.Proposal, error) {
	inv, err := DecodeInvocation(m.Invocation)
	if err != nil {
		return types.Proposal{}, xerrors.Errorf("invocation: %v", err)
	}

	opts := []types.ProposalOption{
		types.WithSequence(m.Sequence),
		types.WithFee(m.Fee),
		types.WithInvocation(inv),
	}

	if m.Resources != nil {
		res := types.Resources{
			Instructions: m.Resources.Instructions,
			ReadBytes:    m.Resources.ReadBytes,
			WriteBytes:   m.Resources.WriteBytes,
			Footprint:    m.Resources.Footprint,
		}

		opts = append(opts, types.WithResources(res, m.ResourceFee))
	}

	if len(m.Auth) > 0 {
		entries := make([]types.AuthEntry, len(m.Auth))
		for i, e := range m.Auth {
			inv, err := DecodeInvocation(e.Invocation)
			if err != nil {
				return types.Proposal{}, xerrors.Errorf("auth #%d: %v", i, err)
			}

			entries[i] = types.AuthEntry{Address: e.Address, Invocation: inv}
		}

		opts = append(opts, types.WithAuth(entries...))
	}

	return types.NewProposal(m.Source, opts...), nil
}
