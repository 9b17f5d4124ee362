// Package local implements a signer that holds the private key of an identity
// in a file.
//
// The signer only signs proposals whose source is its own identity, and it
// can be restricted to a single network. An optional prompt asks the user to
// confirm every signature, in which case the user can decline.
//
// Documentation Last Review: 14.10.2026
//
package local

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"go.dedis.ch/ballot"
	"go.dedis.ch/ballot/crypto"
	"go.dedis.ch/ballot/crypto/ed25519"
	"go.dedis.ch/ballot/crypto/loader"
	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/poll"
	"go.dedis.ch/ballot/serde"
	sjson "go.dedis.ch/ballot/serde/json"
	"go.dedis.ch/ballot/signer"
	"golang.org/x/xerrors"
)

// Prompt is the interface to implement to ask the user to confirm a
// signature.
type Prompt interface {
	// Confirm returns true if the user approves the summary.
	Confirm(summary string) (bool, error)
}

// Signer is a signer using a private key kept locally.
//
// - implements signer.Signer
type Signer struct {
	logger      zerolog.Logger
	key         ed25519.Signer
	network     string
	prompt      Prompt
	context     serde.Context
	hashFactory crypto.HashFactory
}

type options struct {
	network string
	prompt  Prompt
}

// Option is the type of options to create a signer.
type Option func(*options)

// WithNetwork is an option to restrict the signer to one network. The
// requests for any other network are refused.
func WithNetwork(passphrase string) Option {
	return func(opts *options) {
		opts.network = passphrase
	}
}

// WithPrompt is an option to ask the user to confirm each signature.
func WithPrompt(p Prompt) Option {
	return func(opts *options) {
		opts.prompt = p
	}
}

// NewSigner returns a signer using the key.
func NewSigner(key ed25519.Signer, opts ...Option) *Signer {
	tmpl := options{}
	for _, opt := range opts {
		opt(&tmpl)
	}

	return &Signer{
		logger:      ballot.Logger.With().Str("module", "signer").Logger(),
		key:         key,
		network:     tmpl.network,
		prompt:      tmpl.prompt,
		context:     sjson.NewContext(),
		hashFactory: crypto.NewSha256Factory(),
	}
}

// LoadSigner returns a signer using the key stored in the file. A new key is
// generated and stored when the file does not exist.
func LoadSigner(path string, opts ...Option) (*Signer, error) {
	data, err := loader.NewFileLoader(path).LoadOrCreate(generator{})
	if err != nil {
		return nil, xerrors.Errorf("failed to load key: %v", err)
	}

	key, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return nil, xerrors.Errorf("invalid key: %v", err)
	}

	return NewSigner(key, opts...), nil
}

// GetIdentity implements signer.Signer. It returns the address of the key.
func (s *Signer) GetIdentity(context.Context) (poll.Identity, error) {
	return poll.Identity(s.key.Address()), nil
}

// SignPayload implements signer.Signer. It decodes the proposal, checks it
// against the policy of the signer and returns the serialized envelope.
func (s *Signer) SignPayload(ctx context.Context, payload []byte, network string) ([]byte, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	if s.network != "" && network != s.network {
		return nil, signer.RefusalError{
			Reason: fmt.Sprintf("network '%s' is not '%s'", network, s.network),
		}
	}

	proposal, err := types.ProposalFactory{}.ProposalOf(s.context, payload)
	if err != nil {
		return nil, xerrors.Errorf("malformed payload: %v", err)
	}

	if proposal.GetSource() != s.key.Address() {
		return nil, signer.RefusalError{Reason: "source of the transaction is not the signer"}
	}

	if s.prompt != nil {
		summary := fmt.Sprintf("Sign %v with fee %d on '%s'?",
			proposal.GetInvocation(), proposal.GetTotalFee(), network)

		ok, err := s.prompt.Confirm(summary)
		if err != nil {
			return nil, xerrors.Errorf("prompt failed: %v", err)
		}

		if !ok {
			s.logger.Info().Msg("signature declined")
			return nil, signer.ErrDeclined
		}
	}

	digest, err := proposal.Hash(network, s.hashFactory)
	if err != nil {
		return nil, xerrors.Errorf("failed to hash: %v", err)
	}

	sig, err := s.key.Sign(digest)
	if err != nil {
		return nil, xerrors.Errorf("failed to sign: %v", err)
	}

	raw, err := sig.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal signature: %v", err)
	}

	data, err := types.NewEnvelope(proposal, raw).Serialize(s.context)
	if err != nil {
		return nil, xerrors.Errorf("failed to serialize envelope: %v", err)
	}

	s.logger.Debug().
		Stringer("invocation", proposal.GetInvocation()).
		Uint64("sequence", proposal.GetSequence()).
		Msg("proposal signed")

	return data, nil
}

// TermPrompt is a prompt reading the answer from an input, such as the
// terminal. Only "y" and "yes" approve.
//
// - implements local.Prompt
type TermPrompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTermPrompt returns a prompt writing the question to the output and
// reading the answer from the input.
func NewTermPrompt(in io.Reader, out io.Writer) TermPrompt {
	return TermPrompt{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Confirm implements local.Prompt.
func (p TermPrompt) Confirm(summary string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N] ", summary)

	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return false, xerrors.Errorf("failed to read answer: %v", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))

	return answer == "y" || answer == "yes", nil
}

type generator struct{}

func (generator) Generate() ([]byte, error) {
	return ed25519.NewSigner().MarshalBinary()
}
