package signer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestRefusalError_Error(t *testing.T) {
	err := RefusalError{Reason: "wrong network"}
	require.EqualError(t, err, "signer refused: wrong network")
}

func TestMissing(t *testing.T) {
	signer := Missing{}

	_, err := signer.GetIdentity(context.Background())
	require.True(t, xerrors.Is(err, ErrUnavailable))

	_, err = signer.SignPayload(context.Background(), []byte{1}, "net")
	require.True(t, xerrors.Is(err, ErrUnavailable))
}
