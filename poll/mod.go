// Package poll defines the data model of a single-choice poll: the closed
// catalog of options, the tally, the transaction phase of a vote and the
// taxonomy of the contract rejections.
//
// The types are shared by the reader, the submitter and the session, and by
// the contract implementation that the development ledger runs.
package poll

import (
	"fmt"
	"sort"
)

// Identity is the public address of the party performing an action. The empty
// identity means that no signer is connected.
type Identity string

// IsZero returns true when no identity is set.
func (id Identity) IsZero() bool {
	return id == ""
}

// String implements fmt.Stringer. It returns a shortened version of the
// identity suitable for logs.
func (id Identity) String() string {
	if len(id) <= 12 {
		return string(id)
	}

	return fmt.Sprintf("%s...%s", id[:4], id[len(id)-4:])
}

// Tally maps an option identifier to its number of votes. It is always
// replaced as a whole by the value read from the ledger.
type Tally map[string]uint32

// Count returns the number of votes of the option, or zero if unknown.
func (t Tally) Count(option string) uint32 {
	return t[option]
}

// Total returns the sum of the counts.
func (t Tally) Total() uint64 {
	total := uint64(0)
	for _, count := range t {
		total += uint64(count)
	}

	return total
}

// Percent returns the share of the option, rounded to the closest integer
// percent. It returns zero when there is no vote.
func (t Tally) Percent(option string) int {
	total := t.Total()
	if total == 0 {
		return 0
	}

	return int((uint64(t[option])*200 + total) / (2 * total))
}

// Leaders returns the sorted list of options with the highest count, or nil
// when there is no vote.
func (t Tally) Leaders() []string {
	max := uint32(0)
	for _, count := range t {
		if count > max {
			max = count
		}
	}

	if max == 0 {
		return nil
	}

	leaders := []string{}
	for option, count := range t {
		if count == max {
			leaders = append(leaders, option)
		}
	}

	sort.Strings(leaders)

	return leaders
}

// Clone returns a deep copy of the tally.
func (t Tally) Clone() Tally {
	clone := make(Tally, len(t))
	for option, count := range t {
		clone[option] = count
	}

	return clone
}

// TxPhase is the phase of the vote transaction of a session.
type TxPhase int

const (
	// Idle means no submission is in flight.
	Idle TxPhase = iota

	// AwaitingSignature covers the preparation of the transaction up to the
	// signature of the external signer.
	AwaitingSignature

	// Submitted means the signed transaction has been sent to the ledger.
	Submitted

	// Confirmed means the ledger accepted the transaction.
	Confirmed

	// Failed means the submission failed at any step.
	Failed
)

var phaseNames = map[TxPhase]string{
	Idle:              "Idle",
	AwaitingSignature: "AwaitingSignature",
	Submitted:         "Submitted",
	Confirmed:         "Confirmed",
	Failed:            "Failed",
}

// String implements fmt.Stringer.
func (p TxPhase) String() string {
	name, found := phaseNames[p]
	if !found {
		return fmt.Sprintf("TxPhase(%d)", int(p))
	}

	return name
}

// InFlight returns true when a submission holds the phase.
func (p TxPhase) InFlight() bool {
	return p == AwaitingSignature || p == Submitted
}

// PendingVote is the vote being submitted. It only lives during a submission.
type PendingVote struct {
	ID       string
	Option   string
	Identity Identity
}

// ValidationError is returned when a request is rejected locally, before any
// network call.
type ValidationError struct {
	Reason string
}

// NewValidationError creates a new validation error with a formatted reason.
func NewValidationError(format string, args ...interface{}) ValidationError {
	return ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e ValidationError) Error() string {
	return "invalid request: " + e.Reason
}
