package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const document = `
network: test network
rpc: http://127.0.0.1:8000/rpc
contract: abc
key: ./private.key
options:
  - id: A
    label: Alpha
  - id: B
refresh_interval: 2s
`

func TestRead(t *testing.T) {
	cfg, err := Read(strings.NewReader(document))
	require.NoError(t, err)
	require.Equal(t, "test network", cfg.Network)
	require.Equal(t, "http://127.0.0.1:8000/rpc", cfg.RPC)
	require.Equal(t, []Option{{ID: "A", Label: "Alpha"}, {ID: "B"}}, cfg.Options)
	require.Equal(t, 2*time.Second, cfg.RefreshInterval)
	require.Equal(t, defaultReadTimeout, cfg.ReadTimeout)
	require.Equal(t, uint64(defaultFee), cfg.Fee)
	require.NoError(t, cfg.Validate())

	catalog, err := cfg.Catalog()
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, catalog.IDs())

	_, err = Read(strings.NewReader("unknown: field"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode: ")

	_, err = Read(strings.NewReader("refresh_interval: abc"))
	require.Error(t, err)
}

func TestConfig_Write(t *testing.T) {
	cfg, err := Read(strings.NewReader(document))
	require.NoError(t, err)

	buffer := new(bytes.Buffer)
	require.NoError(t, cfg.Write(buffer))

	again, err := Read(buffer)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestConfig_ApplyEnv(t *testing.T) {
	cfg := Default()

	env := map[string]string{
		EnvNetwork:         "net",
		EnvRPC:             "https://example.com",
		EnvContract:        "xyz",
		EnvKey:             "/tmp/key",
		EnvOptions:         "A:Alpha, B ,,C:",
		EnvFee:             "250",
		EnvRefreshInterval: "1m",
		EnvConfirmTimeout:  "0s",
	}

	err := cfg.ApplyEnv(lookup(env))
	require.NoError(t, err)
	require.Equal(t, "net", cfg.Network)
	require.Equal(t, "https://example.com", cfg.RPC)
	require.Equal(t, "xyz", cfg.Contract)
	require.Equal(t, "/tmp/key", cfg.Key)
	require.Equal(t, []Option{{ID: "A", Label: "Alpha"}, {ID: "B"}, {ID: "C"}}, cfg.Options)
	require.Equal(t, uint64(250), cfg.Fee)
	require.Equal(t, time.Minute, cfg.RefreshInterval)
	require.Equal(t, time.Duration(0), cfg.ConfirmTimeout)
	require.NoError(t, cfg.Validate())

	err = cfg.ApplyEnv(lookup(map[string]string{EnvFee: "-1"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "BALLOT_FEE: ")

	err = cfg.ApplyEnv(lookup(map[string]string{EnvReadTimeout: "abc"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "BALLOT_READ_TIMEOUT: ")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Network = "net"
		cfg.RPC = "http://localhost/rpc"
		cfg.Contract = "abc"
		cfg.Options = []Option{{ID: "A"}, {ID: "B"}}

		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Network = ""
	require.EqualError(t, cfg.Validate(), "network is missing")

	cfg = valid()
	cfg.RPC = ""
	require.EqualError(t, cfg.Validate(), "rpc endpoint is missing")

	cfg = valid()
	cfg.RPC = "ftp://localhost"
	require.EqualError(t, cfg.Validate(), "invalid rpc endpoint: scheme 'ftp' is not supported")

	cfg = valid()
	cfg.Contract = ""
	require.EqualError(t, cfg.Validate(), "contract is missing")

	cfg = valid()
	cfg.RefreshInterval = 0
	require.EqualError(t, cfg.Validate(), "intervals must be positive")

	cfg = valid()
	cfg.Concurrency = 0
	require.EqualError(t, cfg.Validate(), "concurrency must be positive but is 0")

	cfg = valid()
	cfg.Options = nil
	require.EqualError(t, cfg.Validate(), "invalid catalog: catalog is empty")

	cfg = valid()
	cfg.Options = []Option{{ID: "A"}, {ID: "A"}}
	require.EqualError(t, cfg.Validate(), "invalid catalog: option 'A' is duplicated")

	cfg = valid()
	cfg.Options = []Option{{ID: "a b"}}
	require.Error(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ballot.yml")

	require.NoError(t, os.WriteFile(path, []byte(document), 0600))

	t.Setenv(EnvContract, "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Contract)
	require.Equal(t, "test network", cfg.Network)

	_, err = Load(filepath.Join(dir, "unknown.yml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to open config: ")

	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Contract)
	require.Empty(t, cfg.Network)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")

	require.NoError(t, os.WriteFile(path, []byte("BALLOT_TEST_DOTENV=abc\n"), 0600))

	t.Setenv("BALLOT_TEST_DOTENV", "")
	os.Unsetenv("BALLOT_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	require.Equal(t, "abc", os.Getenv("BALLOT_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

// -----------------------------------------------------------------------------
// Utility functions

func lookup(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		value, found := env[name]
		return value, found
	}
}
