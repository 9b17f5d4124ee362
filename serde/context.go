package serde

// ContextEngine encodes and decodes the raw messages of a format.
type ContextEngine interface {
	// GetFormat returns the format the engine reads and writes.
	GetFormat() Format

	// Marshal returns the encoding of the message.
	Marshal(message interface{}) ([]byte, error)

	// Unmarshal decodes the data into the message.
	Unmarshal(data []byte, message interface{}) error
}

// Context is given to every Serialize and Deserialize call, and selects the
// format engine of the ledger messages through its engine.
type Context struct {
	ContextEngine
}

// NewContext returns a context around the engine.
func NewContext(engine ContextEngine) Context {
	return Context{ContextEngine: engine}
}
