// Package result implements the binary codec of the execution outcome of a
// transaction.
//
// The outcome is a tree serialized in big-endian with fixed-size integers:
//
//	int64  fee charged
//	int32  transaction code
//	uint32 number of operations    (only for Success and Failed)
//	  int32  operation code
//	  int32  operation type        (only for OpInner)
//	  int32  invoke code           (only for OpInner)
//	    [32]byte result digest     (only for InvokeSuccess)
//	    uint32 error type          (only for InvokeTrapped)
//	    uint32 error code          (only for InvokeTrapped)
//	int32  extension, always zero
//
// The contract error code of a trapped invocation is therefore located close
// to the end of the buffer, which the tail scan of the rejection decoder
// relies upon.
package result

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/xerrors"
)

// TxCode is the result code of a transaction.
type TxCode int32

const (
	// TxSuccess is returned when every operation succeeded.
	TxSuccess TxCode = 0
	// TxFailed is returned when at least one operation failed.
	TxFailed TxCode = -1
	// TxMissingOperation is returned when the transaction has no operation.
	TxMissingOperation TxCode = -4
	// TxBadSeq is returned when the sequence number is not the next one.
	TxBadSeq TxCode = -5
	// TxBadAuth is returned when the signature is missing or invalid.
	TxBadAuth TxCode = -6
	// TxInsufficientBalance is returned when the fee would bring the balance
	// of the source under the minimum.
	TxInsufficientBalance TxCode = -7
	// TxNoAccount is returned when the source account does not exist.
	TxNoAccount TxCode = -8
	// TxInsufficientFee is returned when the fee is lower than the network
	// minimum.
	TxInsufficientFee TxCode = -9
	// TxInternalError is returned on an unexpected failure of the ledger.
	TxInternalError TxCode = -11
	// TxMalformed is returned when the transaction is not assembled or its
	// resources do not cover the execution.
	TxMalformed TxCode = -16
)

var txCodeNames = map[TxCode]string{
	TxSuccess:             "txSUCCESS",
	TxFailed:              "txFAILED",
	TxMissingOperation:    "txMISSING_OPERATION",
	TxBadSeq:              "txBAD_SEQ",
	TxBadAuth:             "txBAD_AUTH",
	TxInsufficientBalance: "txINSUFFICIENT_BALANCE",
	TxNoAccount:           "txNO_ACCOUNT",
	TxInsufficientFee:     "txINSUFFICIENT_FEE",
	TxInternalError:       "txINTERNAL_ERROR",
	TxMalformed:           "txMALFORMED",
}

// String implements fmt.Stringer.
func (c TxCode) String() string {
	name, found := txCodeNames[c]
	if !found {
		return fmt.Sprintf("TxCode(%d)", int32(c))
	}

	return name
}

// HasOperations returns true when the outcome of this code carries the
// results of the operations.
func (c TxCode) HasOperations() bool {
	return c == TxSuccess || c == TxFailed
}

const (
	// OpInner is the code of an operation that was executed.
	OpInner int32 = 0
	// OpBadAuth is the code of an operation missing an authorization.
	OpBadAuth int32 = -1

	// OpTypeInvoke is the type of a contract invocation.
	OpTypeInvoke int32 = 24
)

// InvokeCode is the result code of a contract invocation.
type InvokeCode int32

const (
	// InvokeSuccess is returned when the contract returned a value.
	InvokeSuccess InvokeCode = 0
	// InvokeMalformed is returned when the invocation is not valid.
	InvokeMalformed InvokeCode = -1
	// InvokeTrapped is returned when the contract failed with an error.
	InvokeTrapped InvokeCode = -2
	// InvokeResourceLimitExceeded is returned when the execution exceeds the
	// declared resources.
	InvokeResourceLimitExceeded InvokeCode = -3
)

// ErrorType is the origin of an execution error.
type ErrorType uint32

const (
	// ErrorContract is the type of an error returned by the contract itself.
	ErrorContract ErrorType = 0
	// ErrorStorage is the type of an error of the state storage.
	ErrorStorage ErrorType = 3
	// ErrorAuth is the type of an authorization failure.
	ErrorAuth ErrorType = 9
	// ErrorBudget is the type of a resource exhaustion.
	ErrorBudget ErrorType = 7
)

// ExecError is the error of a trapped invocation.
type ExecError struct {
	Type ErrorType
	Code uint32
}

// OpResult is the result of an operation.
type OpResult struct {
	Code       int32
	Type       int32
	InvokeCode InvokeCode
	Digest     [32]byte
	Error      *ExecError
}

// Outcome is the result of a transaction.
type Outcome struct {
	FeeCharged int64
	Code       TxCode
	Ops        []OpResult
}

// Success returns the outcome of a successful invocation.
func Success(fee int64, digest [32]byte) Outcome {
	return Outcome{
		FeeCharged: fee,
		Code:       TxSuccess,
		Ops: []OpResult{{
			Code:       OpInner,
			Type:       OpTypeInvoke,
			InvokeCode: InvokeSuccess,
			Digest:     digest,
		}},
	}
}

// Trapped returns the outcome of an invocation that failed with the error.
func Trapped(fee int64, typ ErrorType, code uint32) Outcome {
	return Outcome{
		FeeCharged: fee,
		Code:       TxFailed,
		Ops: []OpResult{{
			Code:       OpInner,
			Type:       OpTypeInvoke,
			InvokeCode: InvokeTrapped,
			Error:      &ExecError{Type: typ, Code: code},
		}},
	}
}

// Rejected returns the outcome of a transaction rejected before any
// operation was executed.
func Rejected(code TxCode) Outcome {
	return Outcome{Code: code}
}

// ContractError returns the code of the first operation trapped by a contract
// error, or false if there is none.
func (o Outcome) ContractError() (uint32, bool) {
	for _, op := range o.Ops {
		if op.InvokeCode == InvokeTrapped && op.Error != nil && op.Error.Type == ErrorContract {
			return op.Error.Code, true
		}
	}

	return 0, false
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (o Outcome) MarshalBinary() ([]byte, error) {
	buffer := new(bytes.Buffer)

	write := func(v interface{}) {
		// Writes to a bytes.Buffer never fail.
		binary.Write(buffer, binary.BigEndian, v)
	}

	write(o.FeeCharged)
	write(int32(o.Code))

	if o.Code.HasOperations() {
		write(uint32(len(o.Ops)))

		for _, op := range o.Ops {
			write(op.Code)

			if op.Code != OpInner {
				continue
			}

			write(op.Type)
			write(int32(op.InvokeCode))

			switch op.InvokeCode {
			case InvokeSuccess:
				write(op.Digest)
			case InvokeTrapped:
				if op.Error == nil {
					return nil, xerrors.New("trapped operation without error")
				}

				write(uint32(op.Error.Type))
				write(op.Error.Code)
			}
		}
	}

	write(int32(0))

	return buffer.Bytes(), nil
}

// Decode parses the outcome of the binary data. Trailing bytes are rejected.
func Decode(data []byte) (Outcome, error) {
	reader := bytes.NewReader(data)

	read := func(field string, v interface{}) error {
		err := binary.Read(reader, binary.BigEndian, v)
		if err != nil {
			return xerrors.Errorf("couldn't read %s: %v", field, err)
		}

		return nil
	}

	var o Outcome
	var code int32

	err := read("fee", &o.FeeCharged)
	if err != nil {
		return o, err
	}

	err = read("code", &code)
	if err != nil {
		return o, err
	}

	o.Code = TxCode(code)

	if o.Code.HasOperations() {
		var count uint32

		err = read("count", &count)
		if err != nil {
			return o, err
		}

		// Each operation takes at least four bytes.
		if int(count) > reader.Len()/4 {
			return o, xerrors.Errorf("invalid count %d for %d bytes", count, reader.Len())
		}

		o.Ops = make([]OpResult, count)

		for i := range o.Ops {
			err = decodeOp(read, &o.Ops[i])
			if err != nil {
				return o, xerrors.Errorf("op #%d: %v", i, err)
			}
		}
	}

	var ext int32

	err = read("ext", &ext)
	if err != nil {
		return o, err
	}

	if ext != 0 {
		return o, xerrors.Errorf("unknown extension %d", ext)
	}

	if reader.Len() > 0 {
		return o, xerrors.Errorf("%d trailing bytes", reader.Len())
	}

	return o, nil
}

func decodeOp(read func(string, interface{}) error, op *OpResult) error {
	err := read("code", &op.Code)
	if err != nil || op.Code != OpInner {
		return err
	}

	err = read("type", &op.Type)
	if err != nil {
		return err
	}

	var code int32

	err = read("invoke code", &code)
	if err != nil {
		return err
	}

	op.InvokeCode = InvokeCode(code)

	switch op.InvokeCode {
	case InvokeSuccess:
		return read("digest", &op.Digest)
	case InvokeTrapped:
		var typ, errCode uint32

		err = read("error type", &typ)
		if err != nil {
			return err
		}

		err = read("error code", &errCode)
		if err != nil {
			return err
		}

		op.Error = &ExecError{Type: ErrorType(typ), Code: errCode}
	}

	return nil
}

// Describe writes a human readable summary of the outcome.
func (o Outcome) Describe(w io.Writer) {
	fmt.Fprintf(w, "%v fee=%d", o.Code, o.FeeCharged)

	for i, op := range o.Ops {
		if op.Error != nil {
			fmt.Fprintf(w, " op#%d=trapped(type=%d,code=%d)", i, op.Error.Type, op.Error.Code)
		} else {
			fmt.Fprintf(w, " op#%d=%d", i, op.InvokeCode)
		}
	}
}
