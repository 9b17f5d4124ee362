package rejection

import (
	"encoding/binary"

	"github.com/rs/zerolog"
	"go.dedis.ch/ballot"
	"go.dedis.ch/ballot/ledger/result"
	"go.dedis.ch/ballot/poll"
)

// TailWindow is the number of bytes scanned at the end of a blob by the tail
// scan.
const TailWindow = 16

// Structured is a decoder that parses the blob as an outcome tree and returns
// the contract error of the first trapped operation.
//
// - implements rejection.Decoder
type Structured struct{}

// Decode implements rejection.Decoder.
func (Structured) Decode(blob []byte) (poll.Rejection, bool) {
	outcome, err := result.Decode(blob)
	if err != nil {
		return 0, false
	}

	code, found := outcome.ContractError()
	if !found {
		return 0, false
	}

	rejection := poll.Rejection(code)
	if !rejection.Valid() {
		return 0, false
	}

	return rejection, true
}

// Recognizes implements rejection.Recognizer. It returns true when the blob
// parses as an outcome tree, whether or not it holds a contract error.
func (Structured) Recognizes(blob []byte) bool {
	_, err := result.Decode(blob)
	return err == nil
}

// TailScan is a heuristic decoder. It reads every big-endian 32-bit integer
// starting in the last bytes of the blob, from the end, and returns the first
// one that is a valid rejection code.
//
// - implements rejection.Decoder
type TailScan struct{}

// Decode implements rejection.Decoder.
func (TailScan) Decode(blob []byte) (poll.Rejection, bool) {
	start := len(blob) - TailWindow
	if start < 0 {
		start = 0
	}

	for i := len(blob) - 4; i >= start; i-- {
		rejection := poll.Rejection(binary.BigEndian.Uint32(blob[i : i+4]))
		if rejection.Valid() {
			return rejection, true
		}
	}

	return 0, false
}

// Recognizer is implemented by the decoders that can tell whether a blob is
// in their format.
type Recognizer interface {
	Recognizes(blob []byte) bool
}

// Chain is a decoder that tries each decoder in order and returns the first
// code found. The chain stops at a decoder that recognizes the blob without
// finding a code, so that a heuristic never reads the fields of a well-formed
// outcome.
//
// - implements rejection.Decoder
type Chain struct {
	logger   zerolog.Logger
	decoders []Decoder
}

// NewChain returns a chain of the decoders.
func NewChain(decoders ...Decoder) Chain {
	return Chain{
		logger:   ballot.Logger.With().Str("module", "rejection").Logger(),
		decoders: decoders,
	}
}

// NewDecoder returns the default decoder, which prefers the structured parse
// and falls back to the tail scan.
func NewDecoder() Chain {
	return NewChain(Structured{}, TailScan{})
}

// Decode implements rejection.Decoder.
func (c Chain) Decode(blob []byte) (poll.Rejection, bool) {
	if len(blob) == 0 {
		c.logger.Debug().Msg("empty outcome")
		return 0, false
	}

	for i, decoder := range c.decoders {
		code, found := decoder.Decode(blob)
		if found {
			c.logger.Debug().
				Int("step", i).
				Str("decoder", decoderName(decoder)).
				Stringer("code", code).
				Msg("rejection decoded")

			return code, true
		}

		c.logger.Debug().
			Int("step", i).
			Str("decoder", decoderName(decoder)).
			Msg("no rejection code")

		rec, ok := decoder.(Recognizer)
		if ok && rec.Recognizes(blob) {
			c.logger.Info().
				Str("decoder", decoderName(decoder)).
				Msg("outcome without contract error")

			return 0, false
		}
	}

	c.logger.Warn().Int("size", len(blob)).Hex("tail", tail(blob)).Msg("undecodable rejection")

	return 0, false
}

func decoderName(d Decoder) string {
	switch d.(type) {
	case Structured:
		return "structured"
	case TailScan:
		return "tail"
	case Chain:
		return "chain"
	default:
		return "custom"
	}
}

func tail(blob []byte) []byte {
	if len(blob) > TailWindow {
		return blob[len(blob)-TailWindow:]
	}

	return blob
}
