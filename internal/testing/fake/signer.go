package fake

import (
	"context"

	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/poll"
	sjson "go.dedis.ch/ballot/serde/json"
	"golang.org/x/xerrors"
)

// Signer is a fake implementation of an external signer. It wraps the
// proposal into an envelope with a dummy signature.
//
// - implements signer.Signer
type Signer struct {
	Identity poll.Identity
	Calls    *Call
	Err      error
	// Wait is closed by the test to let the signature proceed, when set.
	Wait chan struct{}
}

// NewSigner returns a fake signer of the identity.
func NewSigner(id poll.Identity) *Signer {
	return &Signer{
		Identity: id,
		Calls:    &Call{},
	}
}

// NewBadSigner returns a fake signer that refuses every request with the
// error.
func NewBadSigner(id poll.Identity, err error) *Signer {
	s := NewSigner(id)
	s.Err = err

	return s
}

// GetIdentity implements signer.Signer.
func (s *Signer) GetIdentity(context.Context) (poll.Identity, error) {
	return s.Identity, nil
}

// SignPayload implements signer.Signer.
func (s *Signer) SignPayload(ctx context.Context, payload []byte, network string) ([]byte, error) {
	s.Calls.Add(payload, network)

	if s.Wait != nil {
		select {
		case <-s.Wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.Err != nil {
		return nil, s.Err
	}

	proposal, err := types.ProposalFactory{}.ProposalOf(sjson.NewContext(), payload)
	if err != nil {
		return nil, xerrors.Errorf("malformed payload: %v", err)
	}

	return types.NewEnvelope(proposal, []byte{0xfa, 0xce}).Serialize(sjson.NewContext())
}
