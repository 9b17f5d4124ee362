package poll

import "fmt"

// Rejection is the code returned by the contract when it refuses an
// operation.
type Rejection uint32

const (
	// PollNotInitialized means the contract has no active poll.
	PollNotInitialized Rejection = 1

	// AlreadyVoted means the identity has a prior recorded vote.
	AlreadyVoted Rejection = 2

	// InvalidOption means the option token is not accepted by the contract.
	InvalidOption Rejection = 3

	// AlreadyInitialized means the poll has already been initialized.
	AlreadyInitialized Rejection = 4

	// Unauthorized means the authorization check failed.
	Unauthorized Rejection = 5
)

const (
	// MinRejection is the lowest valid rejection code.
	MinRejection = PollNotInitialized

	// MaxRejection is the highest valid rejection code.
	MaxRejection = Unauthorized
)

var rejectionNames = map[Rejection]string{
	PollNotInitialized: "PollNotInitialized",
	AlreadyVoted:       "AlreadyVoted",
	InvalidOption:      "InvalidOption",
	AlreadyInitialized: "AlreadyInitialized",
	Unauthorized:       "Unauthorized",
}

var rejectionDescriptions = map[Rejection]string{
	PollNotInitialized: "the poll has not been initialized yet",
	AlreadyVoted:       "this identity has already voted, each identity can only vote once",
	InvalidOption:      "the option is not accepted by the contract",
	AlreadyInitialized: "the poll has already been initialized",
	Unauthorized:       "the authorization check failed",
}

// Valid returns true if the code belongs to the taxonomy.
func (r Rejection) Valid() bool {
	return r >= MinRejection && r <= MaxRejection
}

// Name returns the name of the rejection.
func (r Rejection) Name() string {
	name, found := rejectionNames[r]
	if !found {
		return "UnknownRejection"
	}

	return name
}

// Describe returns a human-readable explanation of the rejection.
func (r Rejection) Describe() string {
	desc, found := rejectionDescriptions[r]
	if !found {
		return "the contract rejected the operation"
	}

	return desc
}

// String implements fmt.Stringer.
func (r Rejection) String() string {
	return fmt.Sprintf("%s (code %d)", r.Name(), uint32(r))
}
