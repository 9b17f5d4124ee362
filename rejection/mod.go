// Package rejection recovers the code of a contract rejection from the outcome
// returned by the ledger.
//
// The outcome of a failed transaction is an opaque blob. The structured
// decoder parses it as an outcome tree; the tail scan is a heuristic that
// looks for the code near the end of the blob when the structured parse is
// not possible. Both return the same contract: a code in the taxonomy, or
// false when the code cannot be recovered. A rejection without a code is a
// valid outcome and never a failure of the decoder.
//
// Documentation Last Review: 14.10.2026
//
package rejection

import (
	"fmt"
	"regexp"
	"strconv"

	"go.dedis.ch/ballot/poll"
)

// Decoder is the interface to implement to recover a rejection code from an
// outcome blob.
type Decoder interface {
	// Decode returns the rejection code found in the blob, or false.
	Decode(blob []byte) (poll.Rejection, bool)
}

// Error is returned when the ledger rejected a transaction. The code is only
// meaningful when known.
type Error struct {
	Code    poll.Rejection
	Known   bool
	Message string
}

// NewError returns the error of a rejection with a known code.
func NewError(code poll.Rejection) Error {
	return Error{Code: code, Known: true}
}

// NewUnknownError returns the error of a rejection whose code could not be
// recovered. The message describes what the ledger returned.
func NewUnknownError(msg string) Error {
	return Error{Message: msg}
}

// Error implements error.
func (e Error) Error() string {
	if !e.Known {
		if e.Message == "" {
			return "transaction rejected with an unknown reason"
		}

		return fmt.Sprintf("transaction rejected with an unknown reason: %s", e.Message)
	}

	return fmt.Sprintf("transaction rejected: %v", e.Code)
}

var messageCode = regexp.MustCompile(`Error\(Contract, #(\d+)\)`)

// FromMessage extracts the rejection code from the diagnostic text of a
// failed simulation, such as "HostError: Error(Contract, #3)".
func FromMessage(text string) (poll.Rejection, bool) {
	match := messageCode.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}

	code, err := strconv.ParseUint(match[1], 10, 32)
	if err != nil {
		return 0, false
	}

	rejection := poll.Rejection(code)
	if !rejection.Valid() {
		return 0, false
	}

	return rejection, true
}
