// Package signer defines the external signer that authorizes the vote
// transactions.
//
// A signer holds the key of an identity. It receives the serialized proposal
// to authorize and the network it is meant for, and returns the signed
// envelope, or refuses. A refusal is either a user decision, a policy of the
// signer, or the absence of a signer altogether.
//
// Documentation Last Review: 14.10.2026
//
package signer

import (
	"context"
	"fmt"

	"go.dedis.ch/ballot/poll"
	"golang.org/x/xerrors"
)

// ErrUnavailable is returned when no signer is installed or connected.
var ErrUnavailable = xerrors.New("signer not found")

// ErrDeclined is returned when the user cancelled the signature request.
var ErrDeclined = xerrors.New("user declined the signature request")

// RefusalError is returned when the signer refuses to sign because of its
// policy, for instance when the network does not match its configuration.
type RefusalError struct {
	Reason string
}

// Error implements error.
func (e RefusalError) Error() string {
	return fmt.Sprintf("signer refused: %s", e.Reason)
}

// Signer is the interface of an external signer.
type Signer interface {
	// GetIdentity returns the identity of the signer.
	GetIdentity(ctx context.Context) (poll.Identity, error)

	// SignPayload returns the signed envelope of the serialized proposal for
	// the network.
	SignPayload(ctx context.Context, payload []byte, network string) ([]byte, error)
}

// Missing is the signer used when none is configured. Every request fails
// with ErrUnavailable.
//
// - implements signer.Signer
type Missing struct{}

// GetIdentity implements signer.Signer. It always returns an error.
func (Missing) GetIdentity(context.Context) (poll.Identity, error) {
	return "", ErrUnavailable
}

// SignPayload implements signer.Signer. It always returns an error.
func (Missing) SignPayload(context.Context, []byte, string) ([]byte, error) {
	return nil, ErrUnavailable
}
