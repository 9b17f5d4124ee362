package poll

import (
	"strings"

	"golang.org/x/xerrors"
)

// MaxSymbolLength is the maximum length of an option token accepted by the
// contract.
const MaxSymbolLength = 32

// Option is a choice of the ballot. The identifier is the exact token sent to
// the contract whereas the label is only used for display.
type Option struct {
	ID    string
	Label string
}

// DisplayLabel returns the label, or the identifier when no label is set.
func (o Option) DisplayLabel() string {
	if o.Label == "" {
		return o.ID
	}

	return o.Label
}

// Catalog is the closed and ordered set of options accepted by the contract.
type Catalog struct {
	options []Option
	index   map[string]int
}

// NewCatalog creates a catalog from the options. It returns an error if an
// identifier is empty, malformed or duplicated.
func NewCatalog(options ...Option) (Catalog, error) {
	if len(options) == 0 {
		return Catalog{}, xerrors.New("catalog is empty")
	}

	catalog := Catalog{
		options: make([]Option, len(options)),
		index:   make(map[string]int, len(options)),
	}

	for i, opt := range options {
		err := ValidateSymbol(opt.ID)
		if err != nil {
			return Catalog{}, xerrors.Errorf("option #%d: %v", i, err)
		}

		_, found := catalog.index[opt.ID]
		if found {
			return Catalog{}, xerrors.Errorf("option '%s' is duplicated", opt.ID)
		}

		catalog.options[i] = opt
		catalog.index[opt.ID] = i
	}

	return catalog, nil
}

// MustCatalog creates a catalog from a list of identifiers and panics if they
// are invalid. It is meant for tests and static declarations.
func MustCatalog(ids ...string) Catalog {
	options := make([]Option, len(ids))
	for i, id := range ids {
		options[i] = Option{ID: id}
	}

	catalog, err := NewCatalog(options...)
	if err != nil {
		panic(err)
	}

	return catalog
}

// Len returns the number of options.
func (c Catalog) Len() int {
	return len(c.options)
}

// Options returns a copy of the options in order.
func (c Catalog) Options() []Option {
	options := make([]Option, len(c.options))
	copy(options, c.options)

	return options
}

// IDs returns the identifiers in order.
func (c Catalog) IDs() []string {
	ids := make([]string, len(c.options))
	for i, opt := range c.options {
		ids[i] = opt.ID
	}

	return ids
}

// Contains returns true if the identifier exactly matches an option. The
// comparison is case-sensitive.
func (c Catalog) Contains(id string) bool {
	_, found := c.index[id]
	return found
}

// Get returns the option of the identifier if it exists.
func (c Catalog) Get(id string) (Option, bool) {
	i, found := c.index[id]
	if !found {
		return Option{}, false
	}

	return c.options[i], true
}

// EmptyTally returns a tally with a zero count for every option.
func (c Catalog) EmptyTally() Tally {
	tally := make(Tally, len(c.options))
	for _, opt := range c.options {
		tally[opt.ID] = 0
	}

	return tally
}

// Verify compares the catalog with the set of options accepted by the
// contract. Both must contain exactly the same tokens, byte for byte. A
// mismatch is a deployment defect.
func (c Catalog) Verify(remote []string) error {
	seen := make(map[string]struct{}, len(remote))

	var missing []string
	for _, id := range remote {
		seen[id] = struct{}{}

		if !c.Contains(id) {
			missing = append(missing, id)
		}
	}

	var unknown []string
	for _, opt := range c.options {
		_, found := seen[opt.ID]
		if !found {
			unknown = append(unknown, opt.ID)
		}
	}

	if len(missing) > 0 || len(unknown) > 0 {
		return xerrors.Errorf("catalog mismatch: not configured [%s], not accepted by contract [%s]",
			strings.Join(missing, ","), strings.Join(unknown, ","))
	}

	return nil
}

// ValidateSymbol returns an error if the token cannot be used as a contract
// symbol: 1 to 32 characters among [a-zA-Z0-9_].
func ValidateSymbol(s string) error {
	if len(s) == 0 {
		return xerrors.New("symbol is empty")
	}

	if len(s) > MaxSymbolLength {
		return xerrors.Errorf("symbol '%s' is longer than %d", s, MaxSymbolLength)
	}

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return xerrors.Errorf("symbol '%s' has invalid character %q", s, r)
		}
	}

	return nil
}
