package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/ballot/contract"
	"go.dedis.ch/ballot/crypto"
	"go.dedis.ch/ballot/crypto/ed25519"
	"go.dedis.ch/ballot/ledger"
	"go.dedis.ch/ballot/ledger/memory"
	"go.dedis.ch/ballot/ledger/result"
	"go.dedis.ch/ballot/ledger/types"
	sjson "go.dedis.ch/ballot/serde/json"
)

func TestClient_VoteLifecycle(t *testing.T) {
	backend, client := makeClient(t)
	ctx := context.Background()

	network, err := client.GetNetwork(ctx)
	require.NoError(t, err)
	require.Equal(t, backend.Passphrase(), network.Passphrase)
	require.Equal(t, uint64(memory.DefaultBaseFee), network.BaseFee)

	voter := ed25519.NewSigner()

	_, err = client.GetAccount(ctx, voter.Address())
	require.Equal(t, ledger.AccountNotFoundError{Address: voter.Address()}, err)

	account, err := client.Fund(ctx, voter.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(memory.DefaultFaucetAmount), account.Balance)

	account, err = client.GetAccount(ctx, voter.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(0), account.Sequence)

	proposal := vote(backend, voter.Address(), "A", account.Sequence+1)

	sim, err := client.Simulate(ctx, proposal)
	require.NoError(t, err)
	require.False(t, sim.Failed())
	require.Equal(t, types.U32(1), sim.Result)
	require.Len(t, sim.Auth, 1)
	require.Equal(t, voter.Address(), sim.Auth[0].Address)
	require.True(t, proposal.GetInvocation().Equal(sim.Auth[0].Invocation))
	require.NotZero(t, sim.MinResourceFee)
	require.Len(t, sim.Events, 1)
	require.True(t, sim.Events[0].Is(contract.TopicPoll, contract.TopicVoted))

	assembled, err := ledger.Assemble(proposal, sim)
	require.NoError(t, err)

	envelope := sign(t, backend, voter, assembled)

	res, err := client.Send(ctx, envelope)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, res.Status)

	info, err := client.GetTransaction(ctx, res.Hash)
	require.NoError(t, err)
	require.Equal(t, ledger.TxSuccess, info.Status)
	require.Equal(t, types.U32(1), info.Result)
	require.Len(t, info.Events, 1)

	outcome, err := result.Decode(info.ResultBlob)
	require.NoError(t, err)
	require.Equal(t, result.TxSuccess, outcome.Code)

	res, err = client.Send(ctx, envelope)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusDuplicate, res.Status)

	info, err = client.GetTransaction(ctx, "unknown")
	require.NoError(t, err)
	require.Equal(t, ledger.TxNotFound, info.Status)
}

func TestClient_Rejections(t *testing.T) {
	backend, client := makeClient(t)
	ctx := context.Background()

	voter := ed25519.NewSigner()

	_, err := client.Fund(ctx, voter.Address())
	require.NoError(t, err)

	sim, err := client.Simulate(ctx, vote(backend, voter.Address(), "C", 1))
	require.NoError(t, err)
	require.True(t, sim.Failed())
	require.Equal(t, "HostError: Error(Contract, #3)", sim.Error)
	require.Equal(t, types.Value{}, sim.Result)

	// The resources of a valid vote are used so that the rejection happens
	// when the envelope is executed.
	valid, err := client.Simulate(ctx, vote(backend, voter.Address(), "A", 1))
	require.NoError(t, err)

	p, err := ledger.Assemble(vote(backend, voter.Address(), "A", 1), valid)
	require.NoError(t, err)

	res, err := client.Send(ctx, sign(t, backend, voter, p.With(types.WithSequence(5))))
	require.NoError(t, err)
	require.Equal(t, ledger.StatusError, res.Status)

	outcome, err := result.Decode(res.ErrorResult)
	require.NoError(t, err)
	require.Equal(t, result.TxBadSeq, outcome.Code)

	_, err = client.Send(ctx, []byte("abc"))
	require.True(t, ledger.IsTransport(err))
	require.Contains(t, err.Error(), "malformed envelope")

	_, err = client.Fund(ctx, "abc")
	require.True(t, ledger.IsTransport(err))
	require.Contains(t, err.Error(), "rpc error -32603: invalid account")
}

func TestClient_NoFaucet(t *testing.T) {
	backend, err := memory.NewLedger()
	require.NoError(t, err)

	t.Cleanup(func() { backend.Close() })

	srv := httptest.NewServer(NewHandler(readOnly{Client: backend}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)

	_, err = client.Fund(context.Background(), ed25519.NewSigner().Address())
	require.True(t, ledger.IsTransport(err))
	require.EqualError(t, err, "network error during fundAccount: "+
		"rpc error -32601: method 'fundAccount' not found")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url)

	_, err := client.GetNetwork(context.Background())
	require.True(t, ledger.IsTransport(err))

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	t.Cleanup(srv.Close)

	client = NewClient(srv.URL)

	_, err = client.GetAccount(context.Background(), "abc")
	require.True(t, ledger.IsTransport(err))
	require.Contains(t, err.Error(), "malformed response (HTTP 502)")
}

func TestClient_MismatchedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(response{JSONRPC: Version, ID: "other"})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)

	_, err := client.GetNetwork(context.Background())
	require.True(t, ledger.IsTransport(err))
	require.Contains(t, err.Error(), "response id 'other' does not match")
}

func TestHandler_InvalidRequests(t *testing.T) {
	backend, err := memory.NewLedger()
	require.NoError(t, err)

	t.Cleanup(func() { backend.Close() })

	handler := NewHandler(backend)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	resp := serve(t, handler, []byte("{"))
	require.Equal(t, CodeParseError, resp.Error.Code)

	resp = serve(t, handler, []byte(`{"jsonrpc":"1.0","id":"a","method":"getNetwork"}`))
	require.Equal(t, CodeInvalidRequest, resp.Error.Code)
	require.Equal(t, "a", resp.ID)

	resp = serve(t, handler, []byte(`{"jsonrpc":"2.0","id":"a","method":"getAccount"}`))
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
	require.Equal(t, "missing params", resp.Error.Message)

	resp = serve(t, handler, []byte(`{"jsonrpc":"2.0","id":"a","method":"getAccount","params":[]}`))
	require.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = serve(t, handler,
		[]byte(`{"jsonrpc":"2.0","id":"a","method":"simulateTransaction","params":{"transaction":"YWJj"}}`))
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
	require.Contains(t, resp.Error.Message, "malformed transaction")

	resp = serve(t, handler, []byte(`{"jsonrpc":"2.0","id":"b","method":"getNetwork"}`))
	require.Nil(t, resp.Error)
	require.Equal(t, "b", resp.ID)
	require.Equal(t, Version, resp.JSONRPC)
}

func TestError_String(t *testing.T) {
	err := &Error{Code: CodeInternal, Message: "oops"}
	require.EqualError(t, err, "rpc error -32603: oops")
}

// -----------------------------------------------------------------------------
// Utility functions

type readOnly struct {
	ledger.Client
}

func makeClient(t *testing.T) (*memory.Ledger, *Client) {
	backend, err := memory.NewLedger()
	require.NoError(t, err)

	t.Cleanup(func() { backend.Close() })

	require.NoError(t, backend.Genesis("admin", []string{"A", "B"}))

	srv := httptest.NewServer(NewHandler(backend))
	t.Cleanup(srv.Close)

	return backend, NewClient(srv.URL)
}

func vote(l *memory.Ledger, voter, option string, seq uint64) types.Proposal {
	inv := types.Invocation{
		Contract: l.ContractID(),
		Function: contract.FnVote,
		Args:     []types.Value{types.Address(voter), types.Symbol(option)},
	}

	return types.NewProposal(voter,
		types.WithSequence(seq),
		types.WithFee(memory.DefaultBaseFee),
		types.WithInvocation(inv))
}

func sign(t *testing.T, l *memory.Ledger, signer ed25519.Signer, p types.Proposal) []byte {
	digest, err := p.Hash(l.Passphrase(), crypto.NewSha256Factory())
	require.NoError(t, err)

	sig, err := signer.Sign(digest)
	require.NoError(t, err)

	raw, err := sig.MarshalBinary()
	require.NoError(t, err)

	data, err := types.NewEnvelope(p, raw).Serialize(sjson.NewContext())
	require.NoError(t, err)

	return data
}

func serve(t *testing.T, h http.Handler, body []byte) response {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return resp
}
