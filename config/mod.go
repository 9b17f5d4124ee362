// Package config defines the configuration of the poll client.
//
// The configuration is read from a YAML file, then the BALLOT_* environment
// variables override the values of the file. A .env file is loaded into the
// environment beforehand when present. The command flags finally override
// both.
//
// Example of a file:
//
//	network: ballot development network
//	rpc: http://127.0.0.1:8000/rpc
//	contract: 6c6f...
//	key: ./private.key
//	options:
//	  - id: A
//	    label: Alpha
//	  - id: B
//	refresh_interval: 5s
//
// Documentation Last Review: 14.10.2026
//
package config

import (
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.dedis.ch/ballot/poll"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

const (
	// EnvNetwork is the environment variable of the network identifier.
	EnvNetwork = "BALLOT_NETWORK"
	// EnvRPC is the environment variable of the ledger endpoint.
	EnvRPC = "BALLOT_RPC"
	// EnvContract is the environment variable of the contract address.
	EnvContract = "BALLOT_CONTRACT"
	// EnvKey is the environment variable of the path to the key file.
	EnvKey = "BALLOT_KEY"
	// EnvOptions is the environment variable of the catalog, as a comma
	// separated list of ID[:Label].
	EnvOptions = "BALLOT_OPTIONS"
	// EnvFee is the environment variable of the base fee of a vote.
	EnvFee = "BALLOT_FEE"
	// EnvRefreshInterval is the environment variable of the refresh interval.
	EnvRefreshInterval = "BALLOT_REFRESH_INTERVAL"
	// EnvReadTimeout is the environment variable of the timeout of a refresh.
	EnvReadTimeout = "BALLOT_READ_TIMEOUT"
	// EnvConfirmTimeout is the environment variable of the time to wait for a
	// vote to be included in the ledger.
	EnvConfirmTimeout = "BALLOT_CONFIRM_TIMEOUT"
)

const (
	defaultFee             = 100
	defaultRefreshInterval = 5 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultConfirmTimeout  = 30 * time.Second
	defaultConcurrency     = 4
)

// Option is the configuration of an option of the catalog.
type Option struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label,omitempty"`
}

// Config is the configuration of the client.
type Config struct {
	Network         string        `yaml:"network"`
	RPC             string        `yaml:"rpc"`
	Contract        string        `yaml:"contract"`
	Key             string        `yaml:"key,omitempty"`
	Options         []Option      `yaml:"options"`
	Fee             uint64        `yaml:"fee,omitempty"`
	Concurrency     int           `yaml:"concurrency,omitempty"`
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`
	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	ConfirmTimeout  time.Duration `yaml:"confirm_timeout,omitempty"`
	Tracing         bool          `yaml:"tracing,omitempty"`
}

// Default returns the configuration with the default values. The network, the
// endpoint, the contract and the catalog have no default.
func Default() Config {
	return Config{
		Fee:             defaultFee,
		Concurrency:     defaultConcurrency,
		RefreshInterval: defaultRefreshInterval,
		ReadTimeout:     defaultReadTimeout,
		ConfirmTimeout:  defaultConfirmTimeout,
	}
}

// Load returns the configuration of the file, overridden by the environment.
// An empty path skips the file. The .env file of the working directory is
// loaded first if it exists.
func Load(path string) (Config, error) {
	err := LoadDotEnv()
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, xerrors.Errorf("failed to open config: %v", err)
		}

		defer file.Close()

		cfg, err = Read(file)
		if err != nil {
			return cfg, xerrors.Errorf("failed to read '%s': %v", path, err)
		}
	}

	err = cfg.ApplyEnv(os.LookupEnv)
	if err != nil {
		return cfg, xerrors.Errorf("invalid environment: %v", err)
	}

	return cfg, nil
}

// LoadDotEnv loads the files into the environment, without overriding the
// variables already set. The .env file is used when no file is given. A
// missing file is ignored.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}

	for _, filename := range filenames {
		_, err := os.Stat(filename)
		if os.IsNotExist(err) {
			continue
		}

		err = godotenv.Load(filename)
		if err != nil {
			return xerrors.Errorf("failed to load '%s': %v", filename, err)
		}
	}

	return nil
}

// Read returns the configuration of the YAML document, with the default
// values for the missing fields.
func Read(r io.Reader) (Config, error) {
	cfg := Default()

	data, err := io.ReadAll(r)
	if err != nil {
		return cfg, xerrors.Errorf("failed to read: %v", err)
	}

	err = yaml.UnmarshalStrict(data, &cfg)
	if err != nil {
		return cfg, xerrors.Errorf("failed to decode: %v", err)
	}

	return cfg, nil
}

// Write writes the configuration as a YAML document.
func (c Config) Write(w io.Writer) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return xerrors.Errorf("failed to encode: %v", err)
	}

	_, err = w.Write(data)
	if err != nil {
		return xerrors.Errorf("failed to write: %v", err)
	}

	return nil
}

// ApplyEnv overrides the fields with the variables found by the lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvNetwork:  &c.Network,
		EnvRPC:      &c.RPC,
		EnvContract: &c.Contract,
		EnvKey:      &c.Key,
	}

	for name, field := range strs {
		value, found := lookup(name)
		if found {
			*field = value
		}
	}

	value, found := lookup(EnvOptions)
	if found {
		c.Options = ParseOptions(value)
	}

	value, found = lookup(EnvFee)
	if found {
		fee, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return xerrors.Errorf("%s: %v", EnvFee, err)
		}

		c.Fee = fee
	}

	durations := []struct {
		name  string
		field *time.Duration
	}{
		{EnvRefreshInterval, &c.RefreshInterval},
		{EnvReadTimeout, &c.ReadTimeout},
		{EnvConfirmTimeout, &c.ConfirmTimeout},
	}

	for _, d := range durations {
		value, found := lookup(d.name)
		if !found {
			continue
		}

		duration, err := time.ParseDuration(value)
		if err != nil {
			return xerrors.Errorf("%s: %v", d.name, err)
		}

		*d.field = duration
	}

	return nil
}

// ParseOptions returns the options of a comma separated list of ID[:Label].
func ParseOptions(value string) []Option {
	var options []Option

	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		parts := strings.SplitN(item, ":", 2)

		opt := Option{ID: parts[0]}
		if len(parts) == 2 {
			opt.Label = parts[1]
		}

		options = append(options, opt)
	}

	return options
}

// Validate returns an error if a required field is missing or if the catalog
// is invalid.
func (c Config) Validate() error {
	if c.Network == "" {
		return xerrors.New("network is missing")
	}

	if c.RPC == "" {
		return xerrors.New("rpc endpoint is missing")
	}

	u, err := url.Parse(c.RPC)
	if err != nil {
		return xerrors.Errorf("invalid rpc endpoint: %v", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return xerrors.Errorf("invalid rpc endpoint: scheme '%s' is not supported", u.Scheme)
	}

	if c.Contract == "" {
		return xerrors.New("contract is missing")
	}

	if c.RefreshInterval <= 0 || c.ReadTimeout <= 0 || c.ConfirmTimeout < 0 {
		return xerrors.New("intervals must be positive")
	}

	if c.Concurrency <= 0 {
		return xerrors.Errorf("concurrency must be positive but is %d", c.Concurrency)
	}

	_, err = c.Catalog()
	if err != nil {
		return err
	}

	return nil
}

// Catalog returns the catalog of the options.
func (c Config) Catalog() (poll.Catalog, error) {
	options := make([]poll.Option, len(c.Options))
	for i, opt := range c.Options {
		options[i] = poll.Option{ID: opt.ID, Label: opt.Label}
	}

	catalog, err := poll.NewCatalog(options...)
	if err != nil {
		return catalog, xerrors.Errorf("invalid catalog: %v", err)
	}

	return catalog, nil
}
