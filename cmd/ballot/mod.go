// Package main implements the command line client of the poll.
//
//	ballot --config ballot.yml tally
//	ballot --config ballot.yml keygen --out private.key
//	ballot --config ballot.yml fund
//	ballot --config ballot.yml vote --option A
//	ballot --config ballot.yml watch
//
// The configuration is read from the file, the BALLOT_* environment
// variables and finally the global flags.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.dedis.ch/ballot/cli"
	"go.dedis.ch/ballot/cli/ucli"
)

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type runConfig struct {
	Channel chan os.Signal
	Reader  io.Reader
	Writer  io.Writer
}

func run(args []string) error {
	cfg := runConfig{
		Channel: make(chan os.Signal, 1),
		Reader:  os.Stdin,
		Writer:  os.Stdout,
	}

	signal.Notify(cfg.Channel, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(cfg.Channel)

	return runWithCfg(args, cfg)
}

func runWithCfg(args []string, cfg runConfig) error {
	builder := ucli.NewBuilder("ballot", nil,
		cli.StringFlag{
			Name:    "config",
			Usage:   "path to the configuration file",
			EnvVars: []string{"BALLOT_CONFIG"},
		},
		cli.StringFlag{
			Name:  "rpc",
			Usage: "endpoint of the ledger",
		},
		cli.StringFlag{
			Name:  "network",
			Usage: "identifier of the network",
		},
		cli.StringFlag{
			Name:  "contract",
			Usage: "address of the poll contract",
		},
		cli.StringFlag{
			Name:  "key",
			Usage: "path to the private key of the voter",
		},
		cli.BoolFlag{
			Name:  "tracing",
			Usage: "send the traces to the jaeger agent configured by the environment",
		},
	)

	builder.SetUsage("client of a single-choice poll")
	builder.SetWriter(cfg.Writer)

	client{
		signals: cfg.Channel,
		in:      cfg.Reader,
		out:     cfg.Writer,
	}.SetCommands(builder)

	return builder.Build().Run(args)
}
