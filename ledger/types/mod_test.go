package types

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/ballot/crypto"
	"go.dedis.ch/ballot/serde"
	"golang.org/x/xerrors"
)

const testFormat = serde.Format("TEST")

func init() {
	RegisterValueFormat(testFormat, testEngine{})
	RegisterProposalFormat(testFormat, testEngine{})
	RegisterEnvelopeFormat(testFormat, testEngine{})
}

func TestValue_Accessors(t *testing.T) {
	b, err := Bool(true).AsBool()
	require.NoError(t, err)
	require.True(t, b)

	n, err := U32(42).AsU32()
	require.NoError(t, err)
	require.Equal(t, uint32(42), n)

	sym, err := Symbol("AI_AGI").AsSymbol()
	require.NoError(t, err)
	require.Equal(t, "AI_AGI", sym)

	addr, err := Address("abc").AsAddress()
	require.NoError(t, err)
	require.Equal(t, "abc", addr)

	items, err := Vec(U32(1), U32(2)).AsVec()
	require.NoError(t, err)
	require.Len(t, items, 2)

	_, err = Symbol("A").AsU32()
	require.EqualError(t, err, "expected u32 but got symbol")

	_, err = U32(1).AsBool()
	require.EqualError(t, err, "expected bool but got u32")

	_, err = Address("a").AsSymbol()
	require.EqualError(t, err, "expected symbol but got address")

	_, err = Symbol("a").AsAddress()
	require.EqualError(t, err, "expected address but got symbol")

	_, err = Void().AsVec()
	require.EqualError(t, err, "expected vec but got void")

	require.Equal(t, "Kind(99)", Kind(99).String())

	kind, found := KindOf("vec")
	require.True(t, found)
	require.Equal(t, KindVec, kind)

	_, found = KindOf("i128")
	require.False(t, found)
}

func TestValue_Equal(t *testing.T) {
	require.True(t, Vec(Symbol("A"), U32(1)).Equal(Vec(Symbol("A"), U32(1))))
	require.False(t, Vec(Symbol("A")).Equal(Vec(Symbol("A"), U32(1))))
	require.False(t, Vec(Symbol("A")).Equal(Vec(Symbol("B"))))
	require.False(t, Symbol("A").Equal(Address("A")))
}

func TestValue_String(t *testing.T) {
	require.Equal(t, "[A,@abc,3,true,void]",
		Vec(Symbol("A"), Address("abc"), U32(3), Bool(true), Void()).String())
}

func TestValue_Fingerprint(t *testing.T) {
	buffer := new(bytes.Buffer)

	err := Vec(Symbol("A"), U32(1), Bool(true)).Fingerprint(buffer)
	require.NoError(t, err)
	require.Equal(t, []byte{
		byte(KindVec), 0, 0, 0, 3,
		byte(KindSymbol), 0, 0, 0, 1, 'A',
		byte(KindU32), 0, 0, 0, 1,
		byte(KindBool), 1,
	}, buffer.Bytes())

	err = U32(1).Fingerprint(&badWriter{})
	require.EqualError(t, err, "couldn't write kind: oops")

	err = Symbol("A").Fingerprint(&badWriter{after: 1})
	require.EqualError(t, err, "couldn't write symbol: oops")
}

func TestValue_Serialize(t *testing.T) {
	ctx := serde.NewContext(testContext{})

	data, err := Symbol("A").Serialize(ctx)
	require.NoError(t, err)

	value, err := ValueFactory{}.Deserialize(ctx, data)
	require.NoError(t, err)
	require.Equal(t, Symbol("A"), value)

	_, err = Symbol("A").Serialize(serde.NewContext(badContext{}))
	require.EqualError(t, err, "couldn't encode value: format 'BAD' is not implemented")

	_, err = ValueFactory{}.ValueOf(serde.NewContext(badContext{}), nil)
	require.EqualError(t, err, "couldn't decode value: format 'BAD' is not implemented")

	_, err = ValueFactory{}.ValueOf(ctx, []byte("proposal"))
	require.EqualError(t, err, "invalid value of type 'types.Proposal'")
}

func TestProposal_Options(t *testing.T) {
	inv := makeInvocation()

	p := NewProposal("source", WithSequence(2), WithFee(100), WithInvocation(inv))
	require.Equal(t, "source", p.GetSource())
	require.Equal(t, uint64(2), p.GetSequence())
	require.Equal(t, uint64(100), p.GetFee())
	require.True(t, inv.Equal(p.GetInvocation()))
	require.False(t, p.IsAssembled())
	require.Nil(t, p.GetResources())

	entry := AuthEntry{Address: "voter", Invocation: inv}
	assembled := p.With(WithResources(Resources{Instructions: 10}, 50), WithAuth(entry))
	require.True(t, assembled.IsAssembled())
	require.Equal(t, uint32(10), assembled.GetResources().Instructions)
	require.Equal(t, uint64(50), assembled.GetResourceFee())
	require.Equal(t, uint64(150), assembled.GetTotalFee())
	require.Equal(t, []AuthEntry{entry}, assembled.GetAuth())

	// The original proposal is left untouched.
	require.False(t, p.IsAssembled())
}

func TestProposal_Hash(t *testing.T) {
	p := NewProposal("source", WithSequence(2), WithInvocation(makeInvocation()))

	h1, err := p.Hash("testnet", crypto.NewSha256Factory())
	require.NoError(t, err)
	require.Len(t, h1, 32)

	h2, err := p.Hash("testnet", crypto.NewSha256Factory())
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	h3, err := p.Hash("mainnet", crypto.NewSha256Factory())
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)

	h4, err := p.With(WithSequence(3)).Hash("testnet", crypto.NewSha256Factory())
	require.NoError(t, err)
	require.NotEqual(t, h1, h4)

	h5, err := p.With(WithResources(Resources{}, 0)).Hash("testnet", crypto.NewSha256Factory())
	require.NoError(t, err)
	require.NotEqual(t, h1, h5)

	err = p.Fingerprint(&badWriter{})
	require.EqualError(t, err, "couldn't write source: oops")
}

func TestProposal_Serialize(t *testing.T) {
	ctx := serde.NewContext(testContext{})

	data, err := NewProposal("source").Serialize(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("proposal"), data)

	_, err = NewProposal("source").Serialize(serde.NewContext(badContext{}))
	require.EqualError(t, err, "couldn't encode proposal: format 'BAD' is not implemented")

	msg, err := ProposalFactory{}.Deserialize(ctx, data)
	require.NoError(t, err)
	require.IsType(t, Proposal{}, msg)

	_, err = ProposalFactory{}.ProposalOf(ctx, []byte("envelope"))
	require.EqualError(t, err, "invalid proposal of type 'types.Envelope'")

	_, err = ProposalFactory{}.ProposalOf(serde.NewContext(badContext{}), data)
	require.EqualError(t, err, "couldn't decode proposal: format 'BAD' is not implemented")
}

func TestEnvelope_Hash(t *testing.T) {
	p := NewProposal("source", WithSequence(2))
	env := NewEnvelope(p, []byte{1, 2})

	require.Equal(t, []byte{1, 2}, env.GetSignature())
	require.Equal(t, p, env.GetProposal())

	hash, err := env.Hash("testnet", crypto.NewSha256Factory())
	require.NoError(t, err)
	require.Len(t, hash, 64)

	ctx := serde.NewContext(testContext{})

	data, err := env.Serialize(ctx)
	require.NoError(t, err)

	msg, err := EnvelopeFactory{}.Deserialize(ctx, data)
	require.NoError(t, err)
	require.IsType(t, Envelope{}, msg)

	_, err = EnvelopeFactory{}.EnvelopeOf(ctx, []byte("proposal"))
	require.EqualError(t, err, "invalid envelope of type 'types.Proposal'")

	_, err = env.Serialize(serde.NewContext(badContext{}))
	require.EqualError(t, err, "couldn't encode envelope: format 'BAD' is not implemented")
}

func TestResources_Covers(t *testing.T) {
	res := Resources{Instructions: 10, ReadBytes: 10, WriteBytes: 10, Footprint: []string{"a", "b"}}

	require.True(t, res.Covers(Resources{Instructions: 10, Footprint: []string{"b"}}))
	require.False(t, res.Covers(Resources{Instructions: 11}))
	require.False(t, res.Covers(Resources{Footprint: []string{"c"}}))
}

func TestInvocation_String(t *testing.T) {
	inv := Invocation{
		Contract: "0123456789abcdef",
		Function: "vote",
		Args:     []Value{Address("voter"), Symbol("A")},
	}

	require.Equal(t, "0123...cdef.vote(@voter,A)", inv.String())
}

func TestEvent_Is(t *testing.T) {
	event := Event{Topics: []Value{Symbol("poll"), Symbol("voted")}}

	require.True(t, event.Is("poll", "voted"))
	require.False(t, event.Is("poll"))
	require.False(t, event.Is("poll", "initialized"))
	require.False(t, Event{Topics: []Value{U32(1)}}.Is("poll"))
}

// -----------------------------------------------------------------------------
// Utility functions

func makeInvocation() Invocation {
	return Invocation{
		Contract: "contract",
		Function: "vote",
		Args:     []Value{Address("voter"), Symbol("A")},
	}
}

type testContext struct {
	serde.ContextEngine
}

func (testContext) GetFormat() serde.Format {
	return testFormat
}

type badContext struct {
	serde.ContextEngine
}

func (badContext) GetFormat() serde.Format {
	return serde.Format("BAD")
}

// testEngine encodes only the type of the message, and decodes a value as a
// symbol "A".
type testEngine struct{}

func (testEngine) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	switch msg.(type) {
	case Value:
		return []byte("value"), nil
	case Proposal:
		return []byte("proposal"), nil
	case Envelope:
		return []byte("envelope"), nil
	default:
		return nil, xerrors.Errorf("unsupported message '%T'", msg)
	}
}

func (testEngine) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	switch string(data) {
	case "value":
		return Symbol("A"), nil
	case "proposal":
		return Proposal{}, nil
	case "envelope":
		return Envelope{}, nil
	default:
		return nil, xerrors.Errorf("unsupported data '%s'", data)
	}
}

type badWriter struct {
	after int
}

func (w *badWriter) Write(p []byte) (int, error) {
	if w.after > 0 {
		w.after--
		return len(p), nil
	}

	return 0, xerrors.New("oops")
}
