// Package loader reads the private key of a voter from the disk, and creates
// it on first use.
//
// Documentation Last Review: 14.10.2026
//
package loader

// Generator produces the bytes of a fresh key.
type Generator interface {
	Generate() ([]byte, error)
}

// Loader gives access to the key of a voter.
type Loader interface {
	// LoadOrCreate returns the stored key, or stores and returns a new one
	// made by the generator when none exists yet.
	LoadOrCreate(Generator) ([]byte, error)

	// Load returns the stored key, or an error when it is missing or empty.
	Load() ([]byte, error)
}
