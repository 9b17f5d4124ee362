// Package classify maps the failures of a vote to a category and a message
// that can be shown to the user.
//
// The classification is a pure function. Typed errors are inspected first, in
// the order of the categories. The text of the error is then matched against
// known fragments, for the failures that come from collaborators which only
// report text. Anything else is unknown and keeps the raw text.
//
// Documentation Last Review: 14.10.2026
//
package classify

import (
	"context"
	"fmt"
	"strings"

	"go.dedis.ch/ballot/ledger"
	"go.dedis.ch/ballot/poll"
	"go.dedis.ch/ballot/rejection"
	"go.dedis.ch/ballot/signer"
	"golang.org/x/xerrors"
)

// Category is the category of a failure.
type Category int

const (
	// Unknown is the category of the failures that are not recognized.
	Unknown Category = iota
	// InvalidRequest is a request rejected locally before any network call.
	InvalidRequest
	// SignerUnavailable means no signer is installed or connected.
	SignerUnavailable
	// UserDeclined means the signer refused to sign.
	UserDeclined
	// InsufficientFunds means the identity cannot pay the fee.
	InsufficientFunds
	// ContractRejected means the contract rejected the vote with a known code.
	ContractRejected
	// Undecodable means the ledger rejected the vote but the reason could not
	// be recovered.
	Undecodable
	// Network means the ledger could not be reached.
	Network
)

var categoryNames = map[Category]string{
	Unknown:           "Unknown",
	InvalidRequest:    "InvalidRequest",
	SignerUnavailable: "SignerUnavailable",
	UserDeclined:      "UserDeclined",
	InsufficientFunds: "InsufficientFunds",
	ContractRejected:  "ContractRejected",
	Undecodable:       "Undecodable",
	Network:           "Network",
}

// String implements fmt.Stringer.
func (c Category) String() string {
	name, found := categoryNames[c]
	if !found {
		return fmt.Sprintf("Category(%d)", int(c))
	}

	return name
}

const (
	msgSignerUnavailable = "No signer found. Install or connect a signer to vote."
	msgUserDeclined      = "The signature request was declined. Approve it in your signer to vote."
	msgInsufficientFunds = "Insufficient balance to pay the network fee. Fund the account and try again."
	msgUndecodable       = "The ledger rejected the vote but the reason could not be recovered."
	msgNetwork           = "The ledger could not be reached. Try again in a moment."
	msgCanceled          = "The vote was interrupted before the ledger answered."
)

var (
	unavailableFragments = []string{"not installed", "not found", "undefined", "no wallet", "no signer"}
	declinedFragments    = []string{"reject", "cancel", "denied", "declined"}
	fundsFragments       = []string{"insufficient", "balance", "underfunded"}
)

// Result is the classification of a failure. The code is only set for the
// ContractRejected category.
type Result struct {
	Category Category
	Message  string
	Code     poll.Rejection
}

// Classify returns the classification of the error.
func Classify(err error) Result {
	if err == nil {
		return Result{Category: Unknown, Message: "Unknown error."}
	}

	res, found := classifyType(err)
	if found {
		return res
	}

	return classifyText(err.Error())
}

func classifyType(err error) (Result, bool) {
	var verr poll.ValidationError
	if xerrors.As(err, &verr) {
		return Result{Category: InvalidRequest, Message: capitalize(verr.Reason) + "."}, true
	}

	if xerrors.Is(err, signer.ErrUnavailable) {
		return Result{Category: SignerUnavailable, Message: msgSignerUnavailable}, true
	}

	if xerrors.Is(err, signer.ErrDeclined) {
		return Result{Category: UserDeclined, Message: msgUserDeclined}, true
	}

	var refusal signer.RefusalError
	if xerrors.As(err, &refusal) {
		msg := fmt.Sprintf("The signer refused to sign: %s.", refusal.Reason)
		return Result{Category: UserDeclined, Message: msg}, true
	}

	var txErr ledger.TxError
	if xerrors.As(err, &txErr) {
		if txErr.InsufficientFunds() {
			return Result{Category: InsufficientFunds, Message: msgInsufficientFunds}, true
		}

		return unknown(err.Error()), true
	}

	if xerrors.As(err, &ledger.AccountNotFoundError{}) {
		return Result{Category: InsufficientFunds, Message: msgInsufficientFunds}, true
	}

	var rej rejection.Error
	if xerrors.As(err, &rej) {
		if !rej.Known {
			return Result{Category: Undecodable, Message: msgUndecodable}, true
		}

		msg := fmt.Sprintf("The poll rejected the vote: %s (code %d).",
			rej.Code.Describe(), uint32(rej.Code))

		return Result{Category: ContractRejected, Message: msg, Code: rej.Code}, true
	}

	if xerrors.Is(err, context.Canceled) {
		return Result{Category: Network, Message: msgCanceled}, true
	}

	if ledger.IsTransport(err) || xerrors.Is(err, context.DeadlineExceeded) {
		return Result{Category: Network, Message: msgNetwork}, true
	}

	return Result{}, false
}

func classifyText(text string) Result {
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, unavailableFragments):
		return Result{Category: SignerUnavailable, Message: msgSignerUnavailable}
	case containsAny(lower, declinedFragments):
		return Result{Category: UserDeclined, Message: msgUserDeclined}
	case containsAny(lower, fundsFragments):
		return Result{Category: InsufficientFunds, Message: msgInsufficientFunds}
	}

	code, found := rejection.FromMessage(text)
	if found {
		msg := fmt.Sprintf("The poll rejected the vote: %s (code %d).", code.Describe(), uint32(code))
		return Result{Category: ContractRejected, Message: msg, Code: code}
	}

	return unknown(text)
}

func unknown(text string) Result {
	return Result{Category: Unknown, Message: fmt.Sprintf("Unexpected error: %s", text)}
}

func containsAny(text string, fragments []string) bool {
	for _, fragment := range fragments {
		if strings.Contains(text, fragment) {
			return true
		}
	}

	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}

// Failure is the error returned when a vote fails. It carries the
// classification and the cause.
type Failure struct {
	Result
	Err error
}

// NewFailure returns the failure of the error with its classification.
func NewFailure(err error) *Failure {
	return &Failure{
		Result: Classify(err),
		Err:    err,
	}
}

// Error implements error.
func (f *Failure) Error() string {
	return fmt.Sprintf("%v: %s", f.Category, f.Message)
}

// Unwrap returns the cause of the failure.
func (f *Failure) Unwrap() error {
	return f.Err
}
