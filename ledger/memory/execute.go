package memory

import (
	"crypto/sha256"

	"go.dedis.ch/ballot/contract"
	"go.dedis.ch/ballot/crypto/ed25519"
	"go.dedis.ch/ballot/ledger"
	"go.dedis.ch/ballot/ledger/result"
	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/store"
	"go.dedis.ch/ballot/store/kv"
	"golang.org/x/xerrors"
)

// enforcingAuth authorizes an address only when it is the source of the
// transaction, which signed it, and when the authorization is part of the
// transaction.
//
// - implements contract.Authorizer
type enforcingAuth struct {
	source  string
	entries []types.AuthEntry
}

func (a enforcingAuth) RequireAuth(addr string, inv types.Invocation) error {
	if addr != a.source {
		return xerrors.Errorf("'%s' did not sign the transaction", addr)
	}

	for _, entry := range a.entries {
		if entry.Address == addr && entry.Invocation.Equal(inv) {
			return nil
		}
	}

	return xerrors.Errorf("authorization of '%s' is missing", addr)
}

// execution is the result of the execution of an invocation on a staging
// state.
type execution struct {
	staging *store.Staging
	env     *contract.Env
	value   types.Value
	outcome *result.Outcome
}

// check verifies the envelope and executes it against the current state. It
// returns the outcome of the rejection, or nil if the transaction can be
// accepted. It must be called while holding the lock.
func (l *Ledger) check(envelope types.Envelope, hash string) *result.Outcome {
	proposal := envelope.GetProposal()

	record, found, err := l.readAccount(proposal.GetSource())
	if err != nil {
		l.logger.Warn().Err(err).Msg("failed to read account")
		return rejected(result.TxInternalError)
	}

	if !found {
		return rejected(result.TxNoAccount)
	}

	expected := record.Sequence + 1
	for _, tx := range l.pending {
		if tx.envelope.GetProposal().GetSource() == proposal.GetSource() {
			expected++
		}
	}

	if proposal.GetSequence() != expected {
		return rejected(result.TxBadSeq)
	}

	err = l.verifySignature(envelope)
	if err != nil {
		l.logger.Debug().Err(err).Str("hash", hash).Msg("invalid signature")
		return rejected(result.TxBadAuth)
	}

	if proposal.GetFee() < l.baseFee {
		return rejected(result.TxInsufficientFee)
	}

	if !proposal.IsAssembled() || proposal.GetInvocation().Contract != l.contractID {
		return rejected(result.TxMalformed)
	}

	if record.Balance < proposal.GetTotalFee() {
		return rejected(result.TxInsufficientBalance)
	}

	exec := l.execute(proposal)

	return exec.outcome
}

func (l *Ledger) verifySignature(envelope types.Envelope) error {
	pubkey, err := ed25519.NewPublicKeyFromAddress(envelope.GetProposal().GetSource())
	if err != nil {
		return xerrors.Errorf("invalid source: %v", err)
	}

	digest, err := envelope.GetProposal().Hash(l.passphrase, l.hashFactory)
	if err != nil {
		return xerrors.Errorf("failed to hash: %v", err)
	}

	err = pubkey.Verify(digest, ed25519.NewSignature(envelope.GetSignature()))
	if err != nil {
		return xerrors.Errorf("failed to verify: %v", err)
	}

	return nil
}

// execute runs the invocation of the proposal on a staging state with the
// authorizations enforced and the resources checked.
func (l *Ledger) execute(proposal types.Proposal) execution {
	auth := enforcingAuth{
		source:  proposal.GetSource(),
		entries: proposal.GetAuth(),
	}

	staging := store.NewStaging(kv.NewBucketStore(l.db, bucketState))
	env := contract.NewEnv(l.contractID, staging, auth)
	fee := int64(proposal.GetFee())

	exec := execution{
		staging: staging,
		env:     env,
	}

	value, err := l.contract.Invoke(env, proposal.GetInvocation())
	if err != nil {
		var outcome result.Outcome

		var cerr contract.Error
		if xerrors.As(err, &cerr) {
			outcome = result.Trapped(fee, result.ErrorContract, uint32(cerr.Rejection))
		} else {
			l.logger.Debug().Err(err).Msg("malformed invocation")

			outcome = result.Outcome{
				FeeCharged: fee,
				Code:       result.TxFailed,
				Ops: []result.OpResult{{
					Code:       result.OpInner,
					Type:       result.OpTypeInvoke,
					InvokeCode: result.InvokeMalformed,
				}},
			}
		}

		exec.outcome = &outcome

		return exec
	}

	res := proposal.GetResources()
	if res == nil || !res.Covers(env.Usage()) {
		outcome := result.Outcome{
			FeeCharged: fee,
			Code:       result.TxFailed,
			Ops: []result.OpResult{{
				Code:       result.OpInner,
				Type:       result.OpTypeInvoke,
				InvokeCode: result.InvokeResourceLimitExceeded,
			}},
		}

		exec.outcome = &outcome

		return exec
	}

	exec.value = value

	return exec
}

// apply includes the transaction in the ledger being closed. The fee is
// charged and the sequence consumed even when the execution fails.
func (l *Ledger) apply(tx pendingTx) ledger.TxInfo {
	proposal := tx.envelope.GetProposal()

	info := ledger.TxInfo{
		Status: ledger.TxFailed,
		Hash:   tx.hash,
	}

	record, found, err := l.readAccount(proposal.GetSource())
	if err != nil || !found || proposal.GetSequence() != record.Sequence+1 {
		info.ResultBlob = encode(result.Rejected(result.TxBadSeq))
		return info
	}

	exec := l.execute(proposal)

	fee := proposal.GetFee()
	if exec.outcome == nil {
		fee += resourceFee(exec.env.Usage())
	}

	if fee > proposal.GetTotalFee() {
		fee = proposal.GetTotalFee()
	}

	if fee > record.Balance {
		fee = record.Balance
	}

	record.Sequence++
	record.Balance -= fee

	err = l.writeAccounts(map[string]accountRecord{proposal.GetSource(): record})
	if err != nil {
		l.logger.Error().Err(err).Str("hash", tx.hash).Msg("failed to charge fee")
	}

	if exec.outcome != nil {
		exec.outcome.FeeCharged = int64(fee)
		info.ResultBlob = encode(*exec.outcome)

		l.logger.Info().Str("hash", tx.hash).Msg("transaction failed")

		return info
	}

	err = l.db.Update(bucketState, func(b kv.Bucket) error {
		return exec.staging.Apply(b)
	})
	if err != nil {
		l.logger.Error().Err(err).Str("hash", tx.hash).Msg("failed to store state")

		info.ResultBlob = encode(result.Rejected(result.TxInternalError))

		return info
	}

	h := sha256.New()
	exec.value.Fingerprint(h)

	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	info.Status = ledger.TxSuccess
	info.Result = exec.value
	info.Events = exec.env.Events()
	info.ResultBlob = encode(result.Success(int64(fee), digest))

	l.logger.Info().
		Str("hash", tx.hash).
		Stringer("invocation", proposal.GetInvocation()).
		Stringer("result", exec.value).
		Msg("transaction applied")

	return info
}

func rejected(code result.TxCode) *result.Outcome {
	outcome := result.Rejected(code)
	return &outcome
}

func encode(outcome result.Outcome) []byte {
	data, err := outcome.MarshalBinary()
	if err != nil {
		return nil
	}

	return data
}
