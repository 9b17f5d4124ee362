// Package ledger defines the client of the ledger hosting the poll contract.
//
// Reads are simulations: they are executed against the current state without
// any signature, fee or state change. The single write is a signed envelope
// sent to the ledger, whose acknowledgment only means the transaction was
// accepted for inclusion.
//
// Documentation Last Review: 14.10.2026
//
package ledger

import (
	"context"

	"go.dedis.ch/ballot/ledger/types"
)

// SendStatus is the immediate acknowledgment of a sent transaction.
type SendStatus string

const (
	// StatusPending means the transaction was accepted for inclusion.
	StatusPending SendStatus = "PENDING"
	// StatusDuplicate means the transaction was already received.
	StatusDuplicate SendStatus = "DUPLICATE"
	// StatusTryAgainLater means the ledger cannot accept the transaction at
	// the moment.
	StatusTryAgainLater SendStatus = "TRY_AGAIN_LATER"
	// StatusError means the transaction was rejected. The result carries the
	// outcome blob.
	StatusError SendStatus = "ERROR"
)

// Accepted returns true for the statuses that acknowledge the transaction.
func (s SendStatus) Accepted() bool {
	return s == StatusPending || s == StatusDuplicate
}

// TxStatus is the status of a transaction known by the ledger.
type TxStatus string

const (
	// TxNotFound means the transaction is not, or not yet, included.
	TxNotFound TxStatus = "NOT_FOUND"
	// TxSuccess means the transaction was included and succeeded.
	TxSuccess TxStatus = "SUCCESS"
	// TxFailed means the transaction was included and failed.
	TxFailed TxStatus = "FAILED"
)

// Network is the description of the network of the ledger.
type Network struct {
	Passphrase      string
	ProtocolVersion uint32
	LatestLedger    uint64
	BaseFee         uint64
}

// Account is the state of an account of the ledger.
type Account struct {
	Address  string
	Sequence uint64
	Balance  uint64
}

// Simulation is the result of the dry run of a proposal.
type Simulation struct {
	LatestLedger   uint64
	MinResourceFee uint64
	Resources      types.Resources
	Auth           []types.AuthEntry
	Result         types.Value
	Events         []types.Event
	// Error is the diagnostic of a failed simulation, empty on success.
	Error string
	// ErrorResult is the outcome blob of a failed simulation, if any.
	ErrorResult []byte
}

// Failed returns true when the simulation did not succeed.
func (s Simulation) Failed() bool {
	return s.Error != ""
}

// SendResult is the acknowledgment of a sent transaction.
type SendResult struct {
	Status       SendStatus
	Hash         string
	LatestLedger uint64
	// ErrorResult is the outcome blob when the status is ERROR.
	ErrorResult []byte
}

// TxInfo is the information about a transaction known by the ledger.
type TxInfo struct {
	Status TxStatus
	Hash   string
	Ledger uint64
	Result types.Value
	Events []types.Event
	// ResultBlob is the outcome of the transaction once included.
	ResultBlob []byte
}

// Client is the interface of a ledger client.
type Client interface {
	// GetNetwork returns the description of the network.
	GetNetwork(ctx context.Context) (Network, error)

	// GetAccount returns the state of the account.
	GetAccount(ctx context.Context, addr string) (Account, error)

	// Simulate executes the proposal against the current state without any
	// side effect. A rejection of the contract is not an error but a failed
	// simulation.
	Simulate(ctx context.Context, proposal types.Proposal) (Simulation, error)

	// Send submits the serialized signed envelope.
	Send(ctx context.Context, envelope []byte) (SendResult, error)

	// GetTransaction returns what the ledger knows about the transaction.
	GetTransaction(ctx context.Context, hash string) (TxInfo, error)
}

// Faucet is implemented by ledgers that can fund accounts, which is the case
// of development networks.
type Faucet interface {
	Fund(ctx context.Context, addr string) (Account, error)
}
