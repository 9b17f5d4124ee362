// Package contract implements the poll contract: a single-choice ballot where
// every address can vote once for one of the options set at initialization.
//
// The state is made of the following keys:
//
//	admin          address of the administrator
//	options        JSON list of the option symbols
//	initialized    present once the poll is initialized
//	tally:<option> big-endian u32 count of the option
//	voter:<addr>   present once the address voted
//
// Documentation Last Review: 14.10.2026
//
package contract

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"go.dedis.ch/ballot"
	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/poll"
	"golang.org/x/xerrors"
)

const (
	// FnInitialize is the function that sets the administrator and the
	// options. It can be called only once.
	FnInitialize = "initialize"
	// FnVote is the function that records the vote of an address.
	FnVote = "vote"
	// FnGetVoteCount is the function that returns the count of an option.
	FnGetVoteCount = "get_vote_count"
	// FnGetOptions is the function that returns the options.
	FnGetOptions = "get_options"
	// FnHasVoted is the function that returns whether an address voted.
	FnHasVoted = "has_voted"

	// TopicPoll and TopicVoted are the topics of the event emitted for each
	// vote, whose data is the list (voter, option, new count).
	TopicPoll  = "poll"
	TopicVoted = "voted"

	keyAdmin       = "admin"
	keyOptions     = "options"
	keyInitialized = "initialized"
	prefixTally    = "tally:"
	prefixVoter    = "voter:"

	instructionsPerAccess = 1_000
	instructionsPerAuth   = 5_000
)

// Error is the error returned when the contract rejects an invocation with
// one of the rejection codes.
type Error struct {
	Rejection poll.Rejection
}

// Error implements error.
func (e Error) Error() string {
	return fmt.Sprintf("Error(Contract, #%d)", uint32(e.Rejection))
}

// Contract is the poll contract.
type Contract struct {
	logger zerolog.Logger
}

// NewContract returns a new poll contract.
func NewContract() Contract {
	return Contract{
		logger: ballot.Logger.With().Str("module", "contract").Logger(),
	}
}

// Invoke executes the function of the contract in the environment. A
// rejection of the contract is returned as an Error, any other error means
// the invocation is malformed or the state is not reachable.
func (c Contract) Invoke(env *Env, inv types.Invocation) (types.Value, error) {
	env.inv = inv
	args := inv.Args

	switch inv.Function {
	case FnInitialize:
		if len(args) != 2 {
			return types.Value{}, argsError(inv.Function, 2, len(args))
		}

		admin, err := args[0].AsAddress()
		if err != nil {
			return types.Value{}, xerrors.Errorf("admin: %v", err)
		}

		items, err := args[1].AsVec()
		if err != nil {
			return types.Value{}, xerrors.Errorf("options: %v", err)
		}

		options := make([]string, len(items))
		for i, item := range items {
			options[i], err = item.AsSymbol()
			if err != nil {
				return types.Value{}, xerrors.Errorf("option #%d: %v", i, err)
			}
		}

		return types.Void(), c.initialize(env, admin, options)
	case FnVote:
		if len(args) != 2 {
			return types.Value{}, argsError(inv.Function, 2, len(args))
		}

		voter, err := args[0].AsAddress()
		if err != nil {
			return types.Value{}, xerrors.Errorf("voter: %v", err)
		}

		option, err := args[1].AsSymbol()
		if err != nil {
			return types.Value{}, xerrors.Errorf("option: %v", err)
		}

		count, err := c.vote(env, voter, option)
		if err != nil {
			return types.Value{}, err
		}

		return types.U32(count), nil
	case FnGetVoteCount:
		if len(args) != 1 {
			return types.Value{}, argsError(inv.Function, 1, len(args))
		}

		option, err := args[0].AsSymbol()
		if err != nil {
			return types.Value{}, xerrors.Errorf("option: %v", err)
		}

		count, err := c.getVoteCount(env, option)
		if err != nil {
			return types.Value{}, err
		}

		return types.U32(count), nil
	case FnGetOptions:
		options, err := c.getOptions(env)
		if err != nil {
			return types.Value{}, err
		}

		values := make([]types.Value, len(options))
		for i, opt := range options {
			values[i] = types.Symbol(opt)
		}

		return types.Vec(values...), nil
	case FnHasVoted:
		if len(args) != 1 {
			return types.Value{}, argsError(inv.Function, 1, len(args))
		}

		voter, err := args[0].AsAddress()
		if err != nil {
			return types.Value{}, xerrors.Errorf("voter: %v", err)
		}

		voted, err := c.hasVoted(env, voter)
		if err != nil {
			return types.Value{}, err
		}

		return types.Bool(voted), nil
	default:
		return types.Value{}, xerrors.Errorf("unknown function '%s'", inv.Function)
	}
}

func (c Contract) initialize(env *Env, admin string, options []string) error {
	initialized, err := env.has(keyInitialized)
	if err != nil {
		return err
	}

	if initialized {
		return Error{Rejection: poll.AlreadyInitialized}
	}

	err = env.requireAuth(admin)
	if err != nil {
		c.logger.Debug().Err(err).Str("admin", admin).Msg("initialization not authorized")
		return Error{Rejection: poll.Unauthorized}
	}

	for _, opt := range options {
		err = poll.ValidateSymbol(opt)
		if err != nil {
			return xerrors.Errorf("invalid option: %v", err)
		}
	}

	data, err := json.Marshal(options)
	if err != nil {
		return xerrors.Errorf("failed to encode options: %v", err)
	}

	err = env.set(keyAdmin, []byte(admin))
	if err != nil {
		return err
	}

	err = env.set(keyOptions, data)
	if err != nil {
		return err
	}

	for _, opt := range options {
		err = env.set(prefixTally+opt, encodeCount(0))
		if err != nil {
			return err
		}
	}

	return env.set(keyInitialized, []byte{1})
}

func (c Contract) vote(env *Env, voter, option string) (uint32, error) {
	initialized, err := env.has(keyInitialized)
	if err != nil {
		return 0, err
	}

	if !initialized {
		return 0, Error{Rejection: poll.PollNotInitialized}
	}

	err = env.requireAuth(voter)
	if err != nil {
		c.logger.Debug().Err(err).Str("voter", voter).Msg("vote not authorized")
		return 0, Error{Rejection: poll.Unauthorized}
	}

	voted, err := env.has(prefixVoter + voter)
	if err != nil {
		return 0, err
	}

	if voted {
		return 0, Error{Rejection: poll.AlreadyVoted}
	}

	current, err := env.get(prefixTally + option)
	if err != nil {
		return 0, err
	}

	if current == nil {
		return 0, Error{Rejection: poll.InvalidOption}
	}

	count := decodeCount(current) + 1

	err = env.set(prefixTally+option, encodeCount(count))
	if err != nil {
		return 0, err
	}

	err = env.set(prefixVoter+voter, []byte{1})
	if err != nil {
		return 0, err
	}

	env.emit(types.Vec(types.Address(voter), types.Symbol(option), types.U32(count)), TopicPoll, TopicVoted)

	return count, nil
}

func (c Contract) getVoteCount(env *Env, option string) (uint32, error) {
	initialized, err := env.has(keyInitialized)
	if err != nil {
		return 0, err
	}

	if !initialized {
		return 0, Error{Rejection: poll.PollNotInitialized}
	}

	value, err := env.get(prefixTally + option)
	if err != nil {
		return 0, err
	}

	return decodeCount(value), nil
}

func (c Contract) getOptions(env *Env) ([]string, error) {
	initialized, err := env.has(keyInitialized)
	if err != nil {
		return nil, err
	}

	if !initialized {
		return nil, Error{Rejection: poll.PollNotInitialized}
	}

	data, err := env.get(keyOptions)
	if err != nil {
		return nil, err
	}

	var options []string

	err = json.Unmarshal(data, &options)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode options: %v", err)
	}

	return options, nil
}

func (c Contract) hasVoted(env *Env, voter string) (bool, error) {
	initialized, err := env.has(keyInitialized)
	if err != nil || !initialized {
		return false, err
	}

	return env.has(prefixVoter + voter)
}

func argsError(fn string, expected, actual int) error {
	return xerrors.Errorf("%s expects %d arguments but got %d", fn, expected, actual)
}

func encodeCount(n uint32) []byte {
	buffer := make([]byte, 4)
	binary.BigEndian.PutUint32(buffer, n)

	return buffer
}

func decodeCount(data []byte) uint32 {
	if len(data) != 4 {
		return 0
	}

	return binary.BigEndian.Uint32(data)
}
