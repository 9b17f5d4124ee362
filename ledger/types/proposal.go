package types

import (
	"fmt"
	"io"
	"strings"

	"go.dedis.ch/ballot/crypto"
	"go.dedis.ch/ballot/serde"
	"golang.org/x/xerrors"
)

// Invocation is the call of a contract function with its arguments.
type Invocation struct {
	Contract string
	Function string
	Args     []Value
}

// Fingerprint implements serde.Fingerprinter.
func (inv Invocation) Fingerprint(w io.Writer) error {
	err := writeString(w, inv.Contract)
	if err != nil {
		return xerrors.Errorf("couldn't write contract: %v", err)
	}

	err = writeString(w, inv.Function)
	if err != nil {
		return xerrors.Errorf("couldn't write function: %v", err)
	}

	err = Vec(inv.Args...).Fingerprint(w)
	if err != nil {
		return xerrors.Errorf("couldn't write args: %v", err)
	}

	return nil
}

// Equal returns true when both invocations are the same.
func (inv Invocation) Equal(o Invocation) bool {
	return inv.Contract == o.Contract && inv.Function == o.Function &&
		Vec(inv.Args...).Equal(Vec(o.Args...))
}

// String implements fmt.Stringer.
func (inv Invocation) String() string {
	args := make([]string, len(inv.Args))
	for i, arg := range inv.Args {
		args[i] = arg.String()
	}

	return fmt.Sprintf("%s.%s(%s)", shorten(inv.Contract), inv.Function, strings.Join(args, ","))
}

// Resources are the execution limits of a transaction, estimated by a
// simulation.
type Resources struct {
	Instructions uint32
	ReadBytes    uint32
	WriteBytes   uint32
	// Footprint is the list of keys the transaction reads or writes.
	Footprint []string
}

// Fingerprint implements serde.Fingerprinter.
func (r Resources) Fingerprint(w io.Writer) error {
	for _, n := range []uint32{r.Instructions, r.ReadBytes, r.WriteBytes, uint32(len(r.Footprint))} {
		err := writeUint32(w, n)
		if err != nil {
			return xerrors.Errorf("couldn't write limit: %v", err)
		}
	}

	for _, key := range r.Footprint {
		err := writeString(w, key)
		if err != nil {
			return xerrors.Errorf("couldn't write footprint: %v", err)
		}
	}

	return nil
}

// Covers returns true if the resources are at least the ones of the other.
func (r Resources) Covers(o Resources) bool {
	if r.Instructions < o.Instructions || r.ReadBytes < o.ReadBytes || r.WriteBytes < o.WriteBytes {
		return false
	}

	keys := make(map[string]struct{}, len(r.Footprint))
	for _, key := range r.Footprint {
		keys[key] = struct{}{}
	}

	for _, key := range o.Footprint {
		_, found := keys[key]
		if !found {
			return false
		}
	}

	return true
}

// AuthEntry is an authorization required by the invocation: the address must
// approve it, which it does by signing the transaction when it is the source.
type AuthEntry struct {
	Address    string
	Invocation Invocation
}

// Fingerprint implements serde.Fingerprinter.
func (a AuthEntry) Fingerprint(w io.Writer) error {
	err := writeString(w, a.Address)
	if err != nil {
		return xerrors.Errorf("couldn't write address: %v", err)
	}

	return a.Invocation.Fingerprint(w)
}

// Proposal is an unsigned transaction. It is built by the client, completed
// with the resources and the fee estimated by a simulation, and finally
// signed by its source.
//
// - implements serde.Message
// - implements serde.Fingerprinter
type Proposal struct {
	source      string
	sequence    uint64
	fee         uint64
	invocation  Invocation
	resources   *Resources
	resourceFee uint64
	auth        []AuthEntry
}

// ProposalOption is the type of options to create a proposal.
type ProposalOption func(*Proposal)

// WithSequence is an option to set the sequence number of the proposal. It
// must be exactly the next sequence of the source account.
func WithSequence(seq uint64) ProposalOption {
	return func(p *Proposal) {
		p.sequence = seq
	}
}

// WithFee is an option to set the inclusion fee of the proposal.
func WithFee(fee uint64) ProposalOption {
	return func(p *Proposal) {
		p.fee = fee
	}
}

// WithInvocation is an option to set the contract invocation.
func WithInvocation(inv Invocation) ProposalOption {
	return func(p *Proposal) {
		p.invocation = inv
	}
}

// WithResources is an option to set the resources and the resource fee
// estimated by a simulation.
func WithResources(res Resources, fee uint64) ProposalOption {
	return func(p *Proposal) {
		p.resources = &res
		p.resourceFee = fee
	}
}

// WithAuth is an option to set the authorizations required by the invocation.
func WithAuth(entries ...AuthEntry) ProposalOption {
	return func(p *Proposal) {
		p.auth = entries
	}
}

// NewProposal creates a new proposal for the source account.
func NewProposal(source string, opts ...ProposalOption) Proposal {
	p := Proposal{
		source: source,
	}

	for _, opt := range opts {
		opt(&p)
	}

	return p
}

// GetSource returns the address of the account paying and signing.
func (p Proposal) GetSource() string {
	return p.source
}

// GetSequence returns the sequence number.
func (p Proposal) GetSequence() uint64 {
	return p.sequence
}

// GetFee returns the inclusion fee, without the resource fee.
func (p Proposal) GetFee() uint64 {
	return p.fee
}

// GetResourceFee returns the fee paid for the resources.
func (p Proposal) GetResourceFee() uint64 {
	return p.resourceFee
}

// GetTotalFee returns the maximum amount the source pays for the
// transaction.
func (p Proposal) GetTotalFee() uint64 {
	return p.fee + p.resourceFee
}

// GetInvocation returns the contract invocation.
func (p Proposal) GetInvocation() Invocation {
	return p.invocation
}

// GetResources returns the resources, or nil if the proposal is not
// assembled.
func (p Proposal) GetResources() *Resources {
	return p.resources
}

// GetAuth returns the required authorizations.
func (p Proposal) GetAuth() []AuthEntry {
	return append([]AuthEntry{}, p.auth...)
}

// IsAssembled returns true when the proposal carries the resources of a
// simulation. A proposal that is not assembled cannot be executed.
func (p Proposal) IsAssembled() bool {
	return p.resources != nil
}

// With returns a copy of the proposal with the options applied.
func (p Proposal) With(opts ...ProposalOption) Proposal {
	for _, opt := range opts {
		opt(&p)
	}

	return p
}

// Serialize implements serde.Message.
func (p Proposal) Serialize(ctx serde.Context) ([]byte, error) {
	format := proposalFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, p)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode proposal: %v", err)
	}

	return data, nil
}

// Fingerprint implements serde.Fingerprinter. It writes a deterministic binary
// representation of the proposal.
func (p Proposal) Fingerprint(w io.Writer) error {
	err := writeString(w, p.source)
	if err != nil {
		return xerrors.Errorf("couldn't write source: %v", err)
	}

	for _, n := range []uint64{p.sequence, p.fee, p.resourceFee} {
		err = writeUint64(w, n)
		if err != nil {
			return xerrors.Errorf("couldn't write number: %v", err)
		}
	}

	err = p.invocation.Fingerprint(w)
	if err != nil {
		return xerrors.Errorf("couldn't write invocation: %v", err)
	}

	if p.resources == nil {
		_, err = w.Write([]byte{0})
	} else {
		_, err = w.Write([]byte{1})
		if err == nil {
			err = p.resources.Fingerprint(w)
		}
	}

	if err != nil {
		return xerrors.Errorf("couldn't write resources: %v", err)
	}

	err = writeUint32(w, uint32(len(p.auth)))
	if err != nil {
		return xerrors.Errorf("couldn't write auth: %v", err)
	}

	for _, entry := range p.auth {
		err = entry.Fingerprint(w)
		if err != nil {
			return xerrors.Errorf("couldn't write auth: %v", err)
		}
	}

	return nil
}

// Hash returns the digest of the proposal for the network. The network
// identifier is part of the digest so that a signature for one network is
// never valid on another one.
func (p Proposal) Hash(network string, f crypto.HashFactory) ([]byte, error) {
	h := f.New()

	err := writeString(h, network)
	if err != nil {
		return nil, xerrors.Errorf("couldn't write network: %v", err)
	}

	err = p.Fingerprint(h)
	if err != nil {
		return nil, xerrors.Errorf("couldn't fingerprint: %v", err)
	}

	return h.Sum(nil), nil
}

func shorten(addr string) string {
	if len(addr) <= 12 {
		return addr
	}

	return addr[:4] + "..." + addr[len(addr)-4:]
}
