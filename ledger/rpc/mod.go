// Package rpc implements a JSON-RPC 2.0 client of the ledger over HTTP, and
// the handler serving a ledger with the same protocol.
//
// The transactions are exchanged as base64 strings of their serialized form,
// and so are the outcome blobs. The contract values use their JSON message.
//
// Documentation Last Review: 14.10.2026
//
package rpc

import (
	"encoding/json"
	"fmt"

	"go.dedis.ch/ballot/ledger"
	ljson "go.dedis.ch/ballot/ledger/json"
	"go.dedis.ch/ballot/ledger/types"
	"golang.org/x/xerrors"
)

// Version is the version of the JSON-RPC protocol.
const Version = "2.0"

const (
	// MethodGetNetwork returns the description of the network.
	MethodGetNetwork = "getNetwork"
	// MethodGetAccount returns the state of an account.
	MethodGetAccount = "getAccount"
	// MethodSimulate simulates a transaction.
	MethodSimulate = "simulateTransaction"
	// MethodSend sends a signed transaction.
	MethodSend = "sendTransaction"
	// MethodGetTransaction returns the status of a transaction.
	MethodGetTransaction = "getTransaction"
	// MethodFund funds an account on a development network.
	MethodFund = "fundAccount"
)

const (
	// CodeParseError is returned when the request is not valid JSON.
	CodeParseError = -32700
	// CodeInvalidRequest is returned when the request is not a valid request.
	CodeInvalidRequest = -32600
	// CodeMethodNotFound is returned for an unknown method.
	CodeMethodNotFound = -32601
	// CodeInvalidParams is returned when the parameters are invalid.
	CodeInvalidParams = -32602
	// CodeInternal is returned when the ledger failed to process the request.
	CodeInternal = -32603
	// CodeAccountNotFound is returned when the account does not exist.
	CodeAccountNotFound = -32001
)

// Error is the error of a JSON-RPC response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type addressParams struct {
	Address string `json:"address"`
}

type transactionParams struct {
	Transaction []byte `json:"transaction"`
}

type hashParams struct {
	Hash string `json:"hash"`
}

type networkResult struct {
	Passphrase      string `json:"passphrase"`
	ProtocolVersion uint32 `json:"protocolVersion"`
	LatestLedger    uint64 `json:"latestLedger"`
	BaseFee         uint64 `json:"baseFee"`
}

type accountResult struct {
	Address  string `json:"address"`
	Sequence uint64 `json:"sequence,string"`
	Balance  uint64 `json:"balance,string"`
}

type eventResult struct {
	Contract string            `json:"contract"`
	Topics   []ljson.ValueJSON `json:"topics"`
	Data     ljson.ValueJSON   `json:"data"`
}

type authResult struct {
	Address    string               `json:"address"`
	Invocation ljson.InvocationJSON `json:"invocation"`
}

type simulateResult struct {
	LatestLedger   uint64              `json:"latestLedger"`
	MinResourceFee uint64              `json:"minResourceFee,string"`
	Resources      ljson.ResourcesJSON `json:"resources"`
	Auth           []authResult        `json:"auth,omitempty"`
	Result         *ljson.ValueJSON    `json:"result,omitempty"`
	Events         []eventResult       `json:"events,omitempty"`
	Error          string              `json:"error,omitempty"`
	ErrorResult    []byte              `json:"errorResultXdr,omitempty"`
}

type sendResult struct {
	Status       string `json:"status"`
	Hash         string `json:"hash"`
	LatestLedger uint64 `json:"latestLedger"`
	ErrorResult  []byte `json:"errorResultXdr,omitempty"`
}

type transactionResult struct {
	Status     string           `json:"status"`
	Hash       string           `json:"hash"`
	Ledger     uint64           `json:"ledger,omitempty"`
	Result     *ljson.ValueJSON `json:"returnValue,omitempty"`
	Events     []eventResult    `json:"events,omitempty"`
	ResultBlob []byte           `json:"resultXdr,omitempty"`
}

func encodeNetwork(n ledger.Network) networkResult {
	return networkResult{
		Passphrase:      n.Passphrase,
		ProtocolVersion: n.ProtocolVersion,
		LatestLedger:    n.LatestLedger,
		BaseFee:         n.BaseFee,
	}
}

func decodeNetwork(m networkResult) ledger.Network {
	return ledger.Network{
		Passphrase:      m.Passphrase,
		ProtocolVersion: m.ProtocolVersion,
		LatestLedger:    m.LatestLedger,
		BaseFee:         m.BaseFee,
	}
}

func encodeAccount(a ledger.Account) accountResult {
	return accountResult{Address: a.Address, Sequence: a.Sequence, Balance: a.Balance}
}

func decodeAccount(m accountResult) ledger.Account {
	return ledger.Account{Address: m.Address, Sequence: m.Sequence, Balance: m.Balance}
}

func encodeEvents(events []types.Event) []eventResult {
	if len(events) == 0 {
		return nil
	}

	res := make([]eventResult, len(events))
	for i, event := range events {
		topics := make([]ljson.ValueJSON, len(event.Topics))
		for j, topic := range event.Topics {
			topics[j] = ljson.EncodeValue(topic)
		}

		res[i] = eventResult{
			Contract: event.Contract,
			Topics:   topics,
			Data:     ljson.EncodeValue(event.Data),
		}
	}

	return res
}

func decodeEvents(events []eventResult) ([]types.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	res := make([]types.Event, len(events))
	for i, event := range events {
		topics := make([]types.Value, len(event.Topics))
		for j, topic := range event.Topics {
			value, err := ljson.DecodeValue(topic)
			if err != nil {
				return nil, xerrors.Errorf("event #%d: topic #%d: %v", i, j, err)
			}

			topics[j] = value
		}

		data, err := ljson.DecodeValue(event.Data)
		if err != nil {
			return nil, xerrors.Errorf("event #%d: data: %v", i, err)
		}

		res[i] = types.Event{Contract: event.Contract, Topics: topics, Data: data}
	}

	return res, nil
}

func encodeSimulation(sim ledger.Simulation) simulateResult {
	m := simulateResult{
		LatestLedger:   sim.LatestLedger,
		MinResourceFee: sim.MinResourceFee,
		Resources: ljson.ResourcesJSON{
			Instructions: sim.Resources.Instructions,
			ReadBytes:    sim.Resources.ReadBytes,
			WriteBytes:   sim.Resources.WriteBytes,
			Footprint:    sim.Resources.Footprint,
		},
		Events:      encodeEvents(sim.Events),
		Error:       sim.Error,
		ErrorResult: sim.ErrorResult,
	}

	for _, entry := range sim.Auth {
		m.Auth = append(m.Auth, authResult{
			Address:    entry.Address,
			Invocation: ljson.EncodeInvocation(entry.Invocation),
		})
	}

	if !sim.Failed() {
		value := ljson.EncodeValue(sim.Result)
		m.Result = &value
	}

	return m
}

func decodeSimulation(m simulateResult) (ledger.Simulation, error) {
	sim := ledger.Simulation{
		LatestLedger:   m.LatestLedger,
		MinResourceFee: m.MinResourceFee,
		Resources: types.Resources{
			Instructions: m.Resources.Instructions,
			ReadBytes:    m.Resources.ReadBytes,
			WriteBytes:   m.Resources.WriteBytes,
			Footprint:    m.Resources.Footprint,
		},
		Error:       m.Error,
		ErrorResult: m.ErrorResult,
	}

	for i, entry := range m.Auth {
		inv, err := ljson.DecodeInvocation(entry.Invocation)
		if err != nil {
			return sim, xerrors.Errorf("auth #%d: %v", i, err)
		}

		sim.Auth = append(sim.Auth, types.AuthEntry{Address: entry.Address, Invocation: inv})
	}

	if m.Result != nil {
		value, err := ljson.DecodeValue(*m.Result)
		if err != nil {
			return sim, xerrors.Errorf("result: %v", err)
		}

		sim.Result = value
	}

	events, err := decodeEvents(m.Events)
	if err != nil {
		return sim, err
	}

	sim.Events = events

	return sim, nil
}

func encodeTransaction(info ledger.TxInfo) transactionResult {
	m := transactionResult{
		Status:     string(info.Status),
		Hash:       info.Hash,
		Ledger:     info.Ledger,
		Events:     encodeEvents(info.Events),
		ResultBlob: info.ResultBlob,
	}

	if info.Status == ledger.TxSuccess {
		value := ljson.EncodeValue(info.Result)
		m.Result = &value
	}

	return m
}

func decodeTransaction(m transactionResult) (ledger.TxInfo, error) {
	info := ledger.TxInfo{
		Status:     ledger.TxStatus(m.Status),
		Hash:       m.Hash,
		Ledger:     m.Ledger,
		ResultBlob: m.ResultBlob,
	}

	if m.Result != nil {
		value, err := ljson.DecodeValue(*m.Result)
		if err != nil {
			return info, xerrors.Errorf("result: %v", err)
		}

		info.Result = value
	}

	events, err := decodeEvents(m.Events)
	if err != nil {
		return info, err
	}

	info.Events = events

	return info, nil
}
