package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/ballot/config"
	"go.dedis.ch/ballot/ledger/rpc"
	"go.dedis.ch/ballot/reader"
)

func TestBallotd_Start(t *testing.T) {
	dir := t.TempDir()
	clientPath := filepath.Join(dir, "ballot.yml")
	dbPath := filepath.Join(dir, "ledger.db")

	args := []string{"ballotd", "start",
		"--listen", "127.0.0.1:0",
		"--options", "A,B", "--options", "C",
		"--db", dbPath,
		"--client-config", clientPath,
	}

	// Two runs on the same database, the second one must find the poll
	// already initialized.
	for i := 0; i < 2; i++ {
		stop, done := startDaemon(t, args)

		cfg := waitConfig(t, clientPath)
		require.Equal(t, []config.Option{{ID: "A"}, {ID: "B"}, {ID: "C"}}, cfg.Options)
		require.NoError(t, cfg.Validate())

		catalog, err := cfg.Catalog()
		require.NoError(t, err)

		r := reader.NewReader(rpc.NewClient(cfg.RPC), cfg.Contract, catalog)

		require.NoError(t, r.VerifyCatalog(context.Background()))

		tally, ok := r.ReadTally(context.Background())
		require.True(t, ok)
		require.Equal(t, uint64(0), tally.Total())

		close(stop)
		require.NoError(t, <-done)

		require.NoError(t, os.Remove(clientPath))
	}
}

func TestBallotd_MissingOptions(t *testing.T) {
	err := runWithCfg([]string{"ballotd", "start"}, runConfig{Writer: io.Discard})
	require.Error(t, err)
	require.Contains(t, err.Error(), "options")
}

func TestBallotd_BadAddress(t *testing.T) {
	err := runWithCfg([]string{"ballotd", "start", "--listen", "bad://xx", "--options", "A"},
		runConfig{Writer: io.Discard})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to start server: failed to create conn 'bad://xx'")
}

func TestBallotd_BadGenesis(t *testing.T) {
	err := runWithCfg([]string{"ballotd", "start", "--options", "a b"},
		runConfig{Writer: io.Discard})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid options: option #0: symbol 'a b' has invalid character")
}

func TestSplitOptions(t *testing.T) {
	require.Equal(t, []string{"A", "B", "C"}, splitOptions([]string{"A, B", "", "C,"}))
	require.Nil(t, splitOptions(nil))
}

// -----------------------------------------------------------------------------
// Utility functions

func startDaemon(t *testing.T, args []string) (chan os.Signal, chan error) {
	stop := make(chan os.Signal)
	done := make(chan error, 1)

	go func() {
		done <- runWithCfg(args, runConfig{Channel: stop, Writer: io.Discard})
	}()

	return stop, done
}

func waitConfig(t *testing.T, path string) config.Config {
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	var cfg config.Config

	require.Eventually(t, func() bool {
		file, err := os.Open(path)
		if err != nil {
			return false
		}

		defer file.Close()

		cfg, err = config.Read(file)

		return err == nil && cfg.Contract != ""
	}, 5*time.Second, 10*time.Millisecond)

	return cfg
}
