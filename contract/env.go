package contract

import (
	"sort"

	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/store"
	"golang.org/x/xerrors"
)

// Authorizer is the interface to implement to check the authorizations of an
// invocation.
type Authorizer interface {
	// RequireAuth returns nil if the address authorized the invocation.
	RequireAuth(addr string, inv types.Invocation) error
}

// Env is the environment of an invocation. It meters the accesses to the
// state so that the resources of the invocation can be estimated, and
// collects the events.
type Env struct {
	id     string
	snap   store.Snapshot
	auth   Authorizer
	events []types.Event
	inv    types.Invocation

	instructions uint32
	readBytes    uint32
	writeBytes   uint32
	footprint    map[string]struct{}
}

// NewEnv creates a new environment for the contract over the snapshot.
func NewEnv(id string, snap store.Snapshot, auth Authorizer) *Env {
	return &Env{
		id:        id,
		snap:      snap,
		auth:      auth,
		footprint: make(map[string]struct{}),
	}
}

// Events returns the events emitted during the invocation.
func (env *Env) Events() []types.Event {
	return append([]types.Event{}, env.events...)
}

// Usage returns the resources consumed so far.
func (env *Env) Usage() types.Resources {
	keys := make([]string, 0, len(env.footprint))
	for key := range env.footprint {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return types.Resources{
		Instructions: env.instructions,
		ReadBytes:    env.readBytes,
		WriteBytes:   env.writeBytes,
		Footprint:    keys,
	}
}

func (env *Env) get(key string) ([]byte, error) {
	env.instructions += instructionsPerAccess
	env.footprint[key] = struct{}{}

	value, err := env.snap.Get([]byte(key))
	if err != nil {
		return nil, xerrors.Errorf("failed to read '%s': %v", key, err)
	}

	env.readBytes += uint32(len(key) + len(value))

	return value, nil
}

func (env *Env) has(key string) (bool, error) {
	value, err := env.get(key)
	if err != nil {
		return false, err
	}

	return value != nil, nil
}

func (env *Env) set(key string, value []byte) error {
	env.instructions += instructionsPerAccess
	env.footprint[key] = struct{}{}
	env.writeBytes += uint32(len(key) + len(value))

	err := env.snap.Set([]byte(key), value)
	if err != nil {
		return xerrors.Errorf("failed to write '%s': %v", key, err)
	}

	return nil
}

func (env *Env) requireAuth(addr string) error {
	env.instructions += instructionsPerAuth

	if env.auth == nil {
		return xerrors.New("no authorizer")
	}

	return env.auth.RequireAuth(addr, env.inv)
}

func (env *Env) emit(data types.Value, topics ...string) {
	values := make([]types.Value, len(topics))
	for i, topic := range topics {
		values[i] = types.Symbol(topic)
	}

	env.events = append(env.events, types.Event{
		Contract: env.id,
		Topics:   values,
		Data:     data,
	})
}
