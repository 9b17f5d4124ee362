package ledger

import (
	"go.dedis.ch/ballot/ledger/types"
	"golang.org/x/xerrors"
)

// Assemble returns the proposal completed with the resources, the resource fee
// and the authorizations estimated by the simulation. It fails when the
// simulation failed, as such a proposal would never execute.
func Assemble(proposal types.Proposal, sim Simulation) (types.Proposal, error) {
	if sim.Failed() {
		return types.Proposal{}, xerrors.Errorf("cannot assemble a failed simulation: %s", sim.Error)
	}

	assembled := proposal.With(
		types.WithResources(sim.Resources, sim.MinResourceFee),
		types.WithAuth(sim.Auth...),
	)

	return assembled, nil
}
