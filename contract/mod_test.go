package contract

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/ballot/internal/testing/fake"
	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/poll"
	"golang.org/x/xerrors"
)

const testContract = "poll"

func TestContract_Initialize(t *testing.T) {
	snap := fake.NewSnapshot()
	c := NewContract()

	env := NewEnv(testContract, snap, allowAuth{})
	_, err := c.Invoke(env, initialize("admin", "A", "B"))
	require.NoError(t, err)

	value, _ := snap.Get([]byte("tally:A"))
	require.Equal(t, []byte{0, 0, 0, 0}, value)

	value, _ = snap.Get([]byte("admin"))
	require.Equal(t, []byte("admin"), value)

	_, err = c.Invoke(NewEnv(testContract, snap, allowAuth{}), initialize("admin", "A"))
	require.Equal(t, Error{Rejection: poll.AlreadyInitialized}, err)
	require.EqualError(t, err, "Error(Contract, #4)")

	_, err = c.Invoke(NewEnv(testContract, fake.NewSnapshot(), denyAuth{}), initialize("admin", "A"))
	require.Equal(t, Error{Rejection: poll.Unauthorized}, err)

	_, err = c.Invoke(NewEnv(testContract, fake.NewSnapshot(), allowAuth{}), initialize("admin", "a-b"))
	require.EqualError(t, err, "invalid option: symbol 'a-b' has invalid character '-'")

	_, err = c.Invoke(NewEnv(testContract, fake.NewBadSnapshot(), allowAuth{}), initialize("admin", "A"))
	require.EqualError(t, err, fake.Err("failed to read 'initialized': read"))

	_, err = c.Invoke(env, types.Invocation{Function: FnInitialize})
	require.EqualError(t, err, "initialize expects 2 arguments but got 0")

	_, err = c.Invoke(env, types.Invocation{
		Function: FnInitialize,
		Args:     []types.Value{types.Symbol("admin"), types.Vec()},
	})
	require.EqualError(t, err, "admin: expected address but got symbol")

	_, err = c.Invoke(env, types.Invocation{
		Function: FnInitialize,
		Args:     []types.Value{types.Address("admin"), types.Vec(types.U32(1))},
	})
	require.EqualError(t, err, "option #0: expected symbol but got u32")
}

func TestContract_Vote(t *testing.T) {
	snap := fake.NewSnapshot()
	c := NewContract()

	_, err := c.Invoke(NewEnv(testContract, snap, allowAuth{}), vote("voter", "A"))
	require.Equal(t, Error{Rejection: poll.PollNotInitialized}, err)

	_, err = c.Invoke(NewEnv(testContract, snap, allowAuth{}), initialize("admin", "A", "B"))
	require.NoError(t, err)

	env := NewEnv(testContract, snap, allowAuth{})
	value, err := c.Invoke(env, vote("voter", "A"))
	require.NoError(t, err)
	require.Equal(t, types.U32(1), value)

	events := env.Events()
	require.Len(t, events, 1)
	require.True(t, events[0].Is(TopicPoll, TopicVoted))
	require.Equal(t, testContract, events[0].Contract)
	require.True(t, types.Vec(types.Address("voter"), types.Symbol("A"), types.U32(1)).Equal(events[0].Data))

	usage := env.Usage()
	require.Equal(t, []string{"initialized", "tally:A", "voter:voter"}, usage.Footprint)
	require.NotZero(t, usage.Instructions)
	require.NotZero(t, usage.WriteBytes)

	_, err = c.Invoke(NewEnv(testContract, snap, allowAuth{}), vote("voter", "B"))
	require.Equal(t, Error{Rejection: poll.AlreadyVoted}, err)

	_, err = c.Invoke(NewEnv(testContract, snap, allowAuth{}), vote("other", "C"))
	require.Equal(t, Error{Rejection: poll.InvalidOption}, err)

	// Options are case-sensitive.
	_, err = c.Invoke(NewEnv(testContract, snap, allowAuth{}), vote("other", "a"))
	require.Equal(t, Error{Rejection: poll.InvalidOption}, err)

	_, err = c.Invoke(NewEnv(testContract, snap, denyAuth{}), vote("other", "A"))
	require.Equal(t, Error{Rejection: poll.Unauthorized}, err)

	_, err = c.Invoke(NewEnv(testContract, snap, nil), vote("other", "A"))
	require.Equal(t, Error{Rejection: poll.Unauthorized}, err)

	value, err = c.Invoke(NewEnv(testContract, snap, allowAuth{}), vote("other", "A"))
	require.NoError(t, err)
	require.Equal(t, types.U32(2), value)

	_, err = c.Invoke(NewEnv(testContract, snap, allowAuth{}), types.Invocation{
		Function: FnVote,
		Args:     []types.Value{types.Address("voter"), types.U32(1)},
	})
	require.EqualError(t, err, "option: expected symbol but got u32")

	_, err = c.Invoke(NewEnv(testContract, snap, allowAuth{}), types.Invocation{
		Function: FnVote,
		Args:     []types.Value{types.Symbol("voter"), types.Symbol("A")},
	})
	require.EqualError(t, err, "voter: expected address but got symbol")

	_, err = c.Invoke(NewEnv(testContract, snap, allowAuth{}), types.Invocation{Function: FnVote})
	require.EqualError(t, err, "vote expects 2 arguments but got 0")
}

func TestContract_Reads(t *testing.T) {
	snap := fake.NewSnapshot()
	c := NewContract()

	_, err := c.Invoke(NewEnv(testContract, snap, nil), getVoteCount("A"))
	require.Equal(t, Error{Rejection: poll.PollNotInitialized}, err)

	_, err = c.Invoke(NewEnv(testContract, snap, nil), types.Invocation{Function: FnGetOptions})
	require.Equal(t, Error{Rejection: poll.PollNotInitialized}, err)

	value, err := c.Invoke(NewEnv(testContract, snap, nil), hasVoted("voter"))
	require.NoError(t, err)
	require.Equal(t, types.Bool(false), value)

	_, err = c.Invoke(NewEnv(testContract, snap, allowAuth{}), initialize("admin", "A", "B"))
	require.NoError(t, err)

	_, err = c.Invoke(NewEnv(testContract, snap, allowAuth{}), vote("voter", "B"))
	require.NoError(t, err)

	value, err = c.Invoke(NewEnv(testContract, snap, nil), getVoteCount("B"))
	require.NoError(t, err)
	require.Equal(t, types.U32(1), value)

	value, err = c.Invoke(NewEnv(testContract, snap, nil), getVoteCount("Z"))
	require.NoError(t, err)
	require.Equal(t, types.U32(0), value)

	value, err = c.Invoke(NewEnv(testContract, snap, nil), types.Invocation{Function: FnGetOptions})
	require.NoError(t, err)
	require.True(t, types.Vec(types.Symbol("A"), types.Symbol("B")).Equal(value))

	value, err = c.Invoke(NewEnv(testContract, snap, nil), hasVoted("voter"))
	require.NoError(t, err)
	require.Equal(t, types.Bool(true), value)

	_, err = c.Invoke(NewEnv(testContract, snap, nil), types.Invocation{Function: "close"})
	require.EqualError(t, err, "unknown function 'close'")

	_, err = c.Invoke(NewEnv(testContract, snap, nil), types.Invocation{Function: FnGetVoteCount})
	require.EqualError(t, err, "get_vote_count expects 1 arguments but got 0")

	_, err = c.Invoke(NewEnv(testContract, snap, nil), types.Invocation{Function: FnHasVoted})
	require.EqualError(t, err, "has_voted expects 1 arguments but got 0")

	snap.Set([]byte("options"), []byte("{"))
	_, err = c.Invoke(NewEnv(testContract, snap, nil), types.Invocation{Function: FnGetOptions})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode options: ")
}

// -----------------------------------------------------------------------------
// Utility functions

func initialize(admin string, options ...string) types.Invocation {
	values := make([]types.Value, len(options))
	for i, opt := range options {
		values[i] = types.Symbol(opt)
	}

	return types.Invocation{
		Contract: testContract,
		Function: FnInitialize,
		Args:     []types.Value{types.Address(admin), types.Vec(values...)},
	}
}

func vote(voter, option string) types.Invocation {
	return types.Invocation{
		Contract: testContract,
		Function: FnVote,
		Args:     []types.Value{types.Address(voter), types.Symbol(option)},
	}
}

func getVoteCount(option string) types.Invocation {
	return types.Invocation{
		Contract: testContract,
		Function: FnGetVoteCount,
		Args:     []types.Value{types.Symbol(option)},
	}
}

func hasVoted(voter string) types.Invocation {
	return types.Invocation{
		Contract: testContract,
		Function: FnHasVoted,
		Args:     []types.Value{types.Address(voter)},
	}
}

type allowAuth struct{}

func (allowAuth) RequireAuth(string, types.Invocation) error {
	return nil
}

type denyAuth struct{}

func (denyAuth) RequireAuth(string, types.Invocation) error {
	return xerrors.New("missing signature")
}
