// Package main implements the daemon of a development ledger hosting the poll
// contract. The ledger is served over JSON-RPC with its metrics.
//
//	go run ./cmd/ballotd start --options A --options B --listen 127.0.0.1:8000\
//	  --db ./ledger.db --client-config ./ballot.yml
//
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/ballot"
	"go.dedis.ch/ballot/cli"
	"go.dedis.ch/ballot/cli/ucli"
	"go.dedis.ch/ballot/config"
	"go.dedis.ch/ballot/contract"
	"go.dedis.ch/ballot/crypto/ed25519"
	"go.dedis.ch/ballot/internal/tracing"
	"go.dedis.ch/ballot/ledger/memory"
	"go.dedis.ch/ballot/ledger/rpc"
	"go.dedis.ch/ballot/poll"
	phttp "go.dedis.ch/ballot/proxy/http"
	"go.dedis.ch/ballot/store/kv"
	"golang.org/x/xerrors"
)

const (
	defaultListen = "127.0.0.1:8000"
	rpcPath       = "/rpc"
	metricsPath   = "/metrics"
	startTimeout  = 10 * time.Second
)

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

type runConfig struct {
	Channel chan os.Signal
	Writer  io.Writer
}

func run(args []string) error {
	cfg := runConfig{
		Channel: make(chan os.Signal, 1),
		Writer:  os.Stdout,
	}

	signal.Notify(cfg.Channel, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(cfg.Channel)

	return runWithCfg(args, cfg)
}

func runWithCfg(args []string, cfg runConfig) error {
	builder := ucli.NewBuilder("ballotd", nil)
	builder.SetUsage("development ledger hosting the poll contract")
	builder.SetWriter(cfg.Writer)

	daemon{signals: cfg.Channel, out: cfg.Writer}.SetCommands(builder)

	return builder.Build().Run(args)
}

// daemon provides the commands of the development ledger.
//
// - implements cli.Initializer
type daemon struct {
	signals <-chan os.Signal
	out     io.Writer
}

// SetCommands implements cli.Initializer.
func (d daemon) SetCommands(builder cli.Builder) {
	cmd := builder.SetCommand("start")
	cmd.SetDescription("start the ledger and serve it until interrupted")
	cmd.SetFlags(
		cli.StringFlag{
			Name:  "listen",
			Usage: "address of the server, an empty port picks a free one",
			Value: defaultListen,
		},
		cli.StringSliceFlag{
			Name:     "options",
			Usage:    "options of the poll",
			Required: true,
		},
		cli.StringFlag{
			Name:  "db",
			Usage: "path to the database file, the state is kept in memory if empty",
		},
		cli.StringFlag{
			Name:  "admin",
			Usage: "address of the administrator of the poll, random if empty",
		},
		cli.StringFlag{
			Name:  "passphrase",
			Usage: "identifier of the network",
			Value: memory.DefaultPassphrase,
		},
		cli.DurationFlag{
			Name:  "close-interval",
			Usage: "interval between two ledger closes, zero closes on each transaction",
			Value: time.Second,
		},
		cli.Uint64Flag{
			Name:  "faucet",
			Usage: "amount given by the faucet",
			Value: memory.DefaultFaucetAmount,
		},
		cli.StringFlag{
			Name:  "client-config",
			Usage: "path where the configuration of the clients is written",
		},
		cli.BoolFlag{
			Name:  "tracing",
			Usage: "send the traces to the jaeger agent configured by the environment",
		},
	)
	cmd.SetAction(d.start)
}

func (d daemon) start(flags cli.Flags) error {
	opts := []memory.Option{
		memory.WithPassphrase(flags.String("passphrase")),
		memory.WithCloseInterval(flags.Duration("close-interval")),
		memory.WithFaucetAmount(flags.Uint64("faucet")),
	}

	path := flags.String("db")
	if path != "" {
		db, err := kv.New(path)
		if err != nil {
			return xerrors.Errorf("failed to open database: %v", err)
		}

		defer db.Close()

		opts = append(opts, memory.WithDB(db))
	}

	l, err := memory.NewLedger(opts...)
	if err != nil {
		return xerrors.Errorf("failed to create ledger: %v", err)
	}

	defer l.Close()

	options := splitOptions(flags.StringSlice("options"))

	err = d.genesis(l, flags.String("admin"), options)
	if err != nil {
		return err
	}

	tracer := opentracing.GlobalTracer()

	if flags.Bool("tracing") {
		tracer, err = tracing.GetTracer("ballotd")
		if err != nil {
			return xerrors.Errorf("failed to create tracer: %v", err)
		}

		defer tracing.CloseAll()
	}

	srv := phttp.NewHTTP(flags.String("listen"), phttp.WithTracer(tracer))
	srv.RegisterHandler(rpcPath, rpc.NewHandler(l))
	srv.RegisterMetrics(metricsPath, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)

	errs := make(chan error, 1)

	go func() {
		errs <- srv.Listen()
	}()

	err = waitListen(srv, errs)
	if err != nil {
		return err
	}

	addr := srv.GetAddr().String()

	clientPath := flags.String("client-config")
	if clientPath != "" {
		err = writeClientConfig(clientPath, l, "http://"+addr+rpcPath, options)
		if err != nil {
			srv.Stop()
			return err
		}
	}

	fmt.Fprintf(d.out, "ledger '%s' listening on %s\n", l.Passphrase(), addr)
	fmt.Fprintf(d.out, "poll contract: %s\n", l.ContractID())

	select {
	case <-d.signals:
	case err := <-errs:
		return xerrors.Errorf("server failed: %v", err)
	}

	ballot.Logger.Info().Msg("stopping the ledger")

	srv.Stop()

	return <-errs
}

// genesis initializes the poll, unless the state of the database already has
// one.
func (d daemon) genesis(l *memory.Ledger, admin string, options []string) error {
	catalog := make([]poll.Option, len(options))
	for i, id := range options {
		catalog[i] = poll.Option{ID: id}
	}

	_, err := poll.NewCatalog(catalog...)
	if err != nil {
		return xerrors.Errorf("invalid options: %v", err)
	}

	if admin == "" {
		admin = ed25519.NewSigner().Address()
	}

	err = l.Genesis(admin, options)

	var cerr contract.Error
	if xerrors.As(err, &cerr) && cerr.Rejection == poll.AlreadyInitialized {
		ballot.Logger.Info().Msg("poll already initialized")
		return nil
	}

	if err != nil {
		return xerrors.Errorf("genesis failed: %v", err)
	}

	return nil
}

// splitOptions accepts both repeated flags and comma separated lists.
func splitOptions(values []string) []string {
	var options []string

	for _, value := range values {
		for _, id := range strings.Split(value, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				options = append(options, id)
			}
		}
	}

	return options
}

func waitListen(srv *phttp.HTTP, errs <-chan error) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.After(startTimeout)

	for srv.GetAddr() == nil {
		select {
		case err := <-errs:
			return xerrors.Errorf("failed to start server: %v", err)
		case <-timeout:
			return xerrors.New("server did not start in time")
		case <-ticker.C:
		}
	}

	return nil
}

func writeClientConfig(path string, l *memory.Ledger, url string, options []string) error {
	cfg := config.Default()
	cfg.Network = l.Passphrase()
	cfg.RPC = url
	cfg.Contract = l.ContractID()

	for _, id := range options {
		cfg.Options = append(cfg.Options, config.Option{ID: id})
	}

	file, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("failed to create client config: %v", err)
	}

	defer file.Close()

	err = cfg.Write(file)
	if err != nil {
		return xerrors.Errorf("failed to write client config: %v", err)
	}

	return nil
}
