package ledger

import (
	"fmt"

	"go.dedis.ch/ballot/ledger/result"
	"golang.org/x/xerrors"
)

// TransportError is returned when the ledger could not be reached or did not
// answer properly. It never means the ledger rejected a request.
type TransportError struct {
	Op  string
	Err error
}

// NewTransportError returns a transport error for the operation.
func NewTransportError(op string, err error) TransportError {
	return TransportError{Op: op, Err: err}
}

// Error implements error.
func (e TransportError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the cause of the error.
func (e TransportError) Unwrap() error {
	return e.Err
}

// IsTransport returns true if the error or one of its causes is a transport
// error.
func IsTransport(err error) bool {
	return xerrors.As(err, &TransportError{})
}

// TxError is returned when the ledger rejects a transaction before any
// operation is executed, such as a bad sequence or an insufficient balance.
type TxError struct {
	Code result.TxCode
}

// Error implements error.
func (e TxError) Error() string {
	switch e.Code {
	case result.TxInsufficientBalance:
		return "transaction rejected: insufficient balance to pay the fee"
	case result.TxInsufficientFee:
		return "transaction rejected: insufficient fee"
	case result.TxNoAccount:
		return "transaction rejected: source account not found"
	case result.TxBadSeq:
		return "transaction rejected: bad sequence number"
	case result.TxBadAuth:
		return "transaction rejected: bad authorization"
	default:
		return fmt.Sprintf("transaction rejected: %v", e.Code)
	}
}

// InsufficientFunds returns true when the source cannot pay the fee.
func (e TxError) InsufficientFunds() bool {
	return e.Code == result.TxInsufficientBalance || e.Code == result.TxNoAccount
}

// AccountNotFoundError is returned when the account does not exist.
type AccountNotFoundError struct {
	Address string
}

// Error implements error.
func (e AccountNotFoundError) Error() string {
	return fmt.Sprintf("account '%s' not found", e.Address)
}
