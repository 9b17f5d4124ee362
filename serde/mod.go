// Package serde defines the primitives to serialize and deserialize (serde)
// the messages exchanged with the ledger and the signer.
//
// A message is encoded by the format engine registered for the format of the
// context, which keeps the data model independent of the wire format.
package serde

import "io"

// Format is the identifier of a serialization format.
type Format string

const (
	// FormatJSON is the identifier of the JSON format.
	FormatJSON Format = "JSON"
)

// Message is the interface a data model should implement to be serialized.
type Message interface {
	// Serialize returns the bytes of the message for the format of the
	// context.
	Serialize(ctx Context) ([]byte, error)
}

// Fingerprinter is an interface to implement so that a message can be written
// deterministically, in order to be hashed or signed.
type Fingerprinter interface {
	// Fingerprint writes a deterministic binary representation of the object
	// into the writer.
	Fingerprint(writer io.Writer) error
}

// Factory is the interface to implement to instantiate a message from its
// serialized form.
type Factory interface {
	// Deserialize returns the message decoded from the data, or an error.
	Deserialize(ctx Context, data []byte) (Message, error)
}

// FormatEngine is the interface to implement to support a format for a given
// message type.
type FormatEngine interface {
	// Encode returns the bytes of the message.
	Encode(ctx Context, message Message) ([]byte, error)

	// Decode returns the message populated from the data.
	Decode(ctx Context, data []byte) (Message, error)
}
