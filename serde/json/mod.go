// Package json implements the JSON engine used to exchange ledger messages.
package json

import (
	"bytes"
	"encoding/json"
	"io"

	// Registers the JSON formats of the ledger messages.
	_ "go.dedis.ch/ballot/ledger/json"
	"go.dedis.ch/ballot/serde"
	"golang.org/x/xerrors"
)

// jsonEngine reads and writes ledger messages in JSON. Decoding is strict: an
// unknown field or trailing data makes the message invalid.
//
// - implements serde.ContextEngine
type jsonEngine struct{}

// NewContext returns a JSON context.
func NewContext() serde.Context {
	return serde.NewContext(jsonEngine{})
}

// GetFormat implements serde.ContextEngine.
func (jsonEngine) GetFormat() serde.Format {
	return serde.FormatJSON
}

// Marshal implements serde.ContextEngine.
func (jsonEngine) Marshal(m interface{}) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal implements serde.ContextEngine.
func (jsonEngine) Unmarshal(data []byte, m interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	err := dec.Decode(m)
	if err != nil {
		return err
	}

	_, err = dec.Token()
	if err != io.EOF {
		return xerrors.New("trailing data after message")
	}

	return nil
}
