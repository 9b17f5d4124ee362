package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.dedis.ch/ballot/classify"
	"go.dedis.ch/ballot/cli"
	"go.dedis.ch/ballot/config"
	"go.dedis.ch/ballot/crypto/ed25519"
	"go.dedis.ch/ballot/crypto/loader"
	"go.dedis.ch/ballot/internal/tracing"
	"go.dedis.ch/ballot/ledger/rpc"
	"go.dedis.ch/ballot/poll"
	"go.dedis.ch/ballot/reader"
	"go.dedis.ch/ballot/session"
	"go.dedis.ch/ballot/signer"
	"go.dedis.ch/ballot/signer/local"
	"go.dedis.ch/ballot/submitter"
	"golang.org/x/xerrors"
)

const (
	defaultKeyPath  = "private.key"
	confirmInterval = 500 * time.Millisecond
)

// client provides the commands of the poll client.
//
// - implements cli.Initializer
type client struct {
	signals <-chan os.Signal
	in      io.Reader
	out     io.Writer
}

// SetCommands implements cli.Initializer.
func (c client) SetCommands(builder cli.Builder) {
	identityFlag := cli.StringFlag{
		Name:  "identity",
		Usage: "address of the identity, the one of the key by default",
	}

	cmd := builder.SetCommand("tally")
	cmd.SetDescription("print the count of each option")
	cmd.SetAction(c.tally)

	cmd = builder.SetCommand("status")
	cmd.SetDescription("print whether an identity has voted")
	cmd.SetFlags(identityFlag)
	cmd.SetAction(c.status)

	cmd = builder.SetCommand("options")
	cmd.SetDescription("print the options accepted by the contract")
	cmd.SetFlags(cli.BoolFlag{
		Name:  "verify",
		Usage: "fail if the catalog of the configuration is not the one of the contract",
	})
	cmd.SetAction(c.options)

	cmd = builder.SetCommand("vote")
	cmd.SetDescription("vote for an option with the key")
	cmd.SetFlags(
		cli.StringFlag{
			Name:     "option",
			Usage:    "identifier of the option",
			Required: true,
		},
		cli.Uint64Flag{
			Name:  "fee",
			Usage: "inclusion fee, the one of the configuration by default",
		},
		cli.BoolFlag{
			Name:  "yes",
			Usage: "sign without asking for a confirmation",
		},
		cli.BoolFlag{
			Name:  "wait",
			Usage: "wait for the vote to be included in the ledger",
		},
	)
	cmd.SetAction(c.vote)

	cmd = builder.SetCommand("watch")
	cmd.SetDescription("print the state of the poll on each refresh")
	cmd.SetFlags(
		identityFlag,
		cli.DurationFlag{
			Name:  "duration",
			Usage: "stop after the duration, zero watches until interrupted",
		},
	)
	cmd.SetAction(c.watch)

	cmd = builder.SetCommand("keygen")
	cmd.SetDescription("generate a new key")
	cmd.SetFlags(cli.StringFlag{
		Name:  "out",
		Usage: "path of the new key, the key of the configuration by default",
	})
	cmd.SetAction(c.keygen)

	cmd = builder.SetCommand("fund")
	cmd.SetDescription("fund an account on a development network")
	cmd.SetFlags(identityFlag)
	cmd.SetAction(c.fund)
}

func (c client) tally(flags cli.Flags) error {
	env, err := newEnvironment(flags)
	if err != nil {
		return err
	}

	defer env.close()

	ctx, cancel := env.readContext()
	defer cancel()

	tally, ok := env.reader.ReadTally(ctx)
	if !ok {
		return xerrors.New("tally unavailable: the ledger could not be reached")
	}

	printTally(c.out, env.catalog, tally)

	return nil
}

func (c client) status(flags cli.Flags) error {
	env, err := newEnvironment(flags)
	if err != nil {
		return err
	}

	defer env.close()

	id, err := env.identity(flags)
	if err != nil {
		return err
	}

	ctx, cancel := env.readContext()
	defer cancel()

	voted, ok := env.reader.ReadVoterStatus(ctx, id)
	if !ok {
		return xerrors.New("status unavailable: the ledger could not be reached")
	}

	if voted {
		fmt.Fprintf(c.out, "%s has voted\n", string(id))
	} else {
		fmt.Fprintf(c.out, "%s has not voted\n", string(id))
	}

	return nil
}

func (c client) options(flags cli.Flags) error {
	env, err := newEnvironment(flags)
	if err != nil {
		return err
	}

	defer env.close()

	ctx, cancel := env.readContext()
	defer cancel()

	remote, err := env.reader.ReadOptions(ctx)
	if err != nil {
		return err
	}

	for _, id := range remote {
		label := "(not configured)"

		opt, found := env.catalog.Get(id)
		if found {
			label = opt.DisplayLabel()
		}

		fmt.Fprintf(c.out, "%-32s %s\n", id, label)
	}

	if flags.Bool("verify") {
		err = env.catalog.Verify(remote)
		if err != nil {
			return xerrors.Errorf("verification failed: %v", err)
		}

		fmt.Fprintln(c.out, "catalog verified")
	}

	return nil
}

func (c client) vote(flags cli.Flags) error {
	env, err := newEnvironment(flags)
	if err != nil {
		return err
	}

	defer env.close()

	sig, err := c.signer(env.cfg, !flags.Bool("yes"))
	if err != nil {
		return err
	}

	fee := env.cfg.Fee
	if flags.IsSet("fee") {
		fee = flags.Uint64("fee")
	}

	opts := []submitter.Option{submitter.WithFee(fee)}
	if flags.Bool("wait") {
		opts = append(opts, submitter.WithConfirmation(confirmInterval, env.cfg.ConfirmTimeout))
	}

	sub := submitter.NewSubmitter(env.ledger, sig, env.cfg.Contract, env.cfg.Network, env.catalog, opts...)

	ctx := context.Background()

	readCtx, cancel := env.readContext()
	err = env.reader.VerifyCatalog(readCtx)
	cancel()

	if err != nil {
		return xerrors.Errorf("failed to verify catalog: %v", err)
	}

	id, err := sig.GetIdentity(ctx)
	if err != nil {
		return c.fail(classify.NewFailure(err))
	}

	sess := session.NewSession(env.reader, sub, env.catalog,
		session.WithIdentity(id),
		session.WithReadTimeout(env.cfg.ReadTimeout))

	defer sess.Close()

	sess.Refresh(ctx)

	option := flags.String("option")

	err = sess.Select(option)
	if err != nil {
		return c.fail(classify.NewFailure(err))
	}

	err = sess.Commit(ctx)
	if err != nil {
		var failure *classify.Failure
		if xerrors.As(err, &failure) {
			return c.fail(failure)
		}

		return err
	}

	opt, _ := env.catalog.Get(option)
	fmt.Fprintf(c.out, "vote for %s accepted\n", opt.DisplayLabel())

	sess.Refresh(ctx)

	view := sess.Snapshot()
	if view.TallyAvailable {
		printTally(c.out, env.catalog, view.Tally)
	}

	return nil
}

func (c client) watch(flags cli.Flags) error {
	env, err := newEnvironment(flags)
	if err != nil {
		return err
	}

	defer env.close()

	var id poll.Identity

	if flags.String("identity") != "" || env.cfg.Key != "" {
		id, err = env.identity(flags)
		if err != nil {
			return err
		}
	}

	sess := session.NewSession(env.reader, nil, env.catalog,
		session.WithIdentity(id),
		session.WithRefreshInterval(env.cfg.RefreshInterval),
		session.WithReadTimeout(env.cfg.ReadTimeout))

	sess.Watch(&printer{out: c.out, catalog: env.catalog})
	sess.Start()

	var timeout <-chan time.Time

	duration := flags.Duration("duration")
	if duration > 0 {
		timeout = time.After(duration)
	}

	select {
	case <-c.signals:
	case <-timeout:
	}

	sess.Close()

	return nil
}

func (c client) keygen(flags cli.Flags) error {
	path := flags.String("out")
	if path == "" {
		path = flags.String("key")
	}

	if path == "" {
		// The rest of the configuration is not required to create a key.
		cfg, err := config.Load(flags.String("config"))
		if err != nil {
			return xerrors.Errorf("failed to load config: %v", err)
		}

		path = cfg.Key
	}

	if path == "" {
		path = defaultKeyPath
	}

	_, err := os.Stat(path)
	if err == nil {
		return xerrors.Errorf("key '%s' already exists", path)
	}

	key, err := local.LoadSigner(path)
	if err != nil {
		return err
	}

	id, err := key.GetIdentity(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s\n", string(id))

	return nil
}

func (c client) fund(flags cli.Flags) error {
	env, err := newEnvironment(flags)
	if err != nil {
		return err
	}

	defer env.close()

	id, err := env.identity(flags)
	if err != nil {
		return err
	}

	ctx, cancel := env.readContext()
	defer cancel()

	account, err := env.ledger.Fund(ctx, string(id))
	if err != nil {
		return xerrors.Errorf("failed to fund: %v", err)
	}

	fmt.Fprintf(c.out, "account %s funded, balance is %d\n", string(id), account.Balance)

	return nil
}

// signer returns the signer of the key of the configuration, or a missing
// signer when there is no key.
func (c client) signer(cfg config.Config, confirm bool) (signer.Signer, error) {
	if cfg.Key == "" {
		return signer.Missing{}, nil
	}

	_, err := os.Stat(cfg.Key)
	if os.IsNotExist(err) {
		return signer.Missing{}, nil
	}

	opts := []local.Option{local.WithNetwork(cfg.Network)}
	if confirm {
		opts = append(opts, local.WithPrompt(local.NewTermPrompt(c.in, c.out)))
	}

	return local.LoadSigner(cfg.Key, opts...)
}

func (c client) fail(failure *classify.Failure) error {
	fmt.Fprintf(c.out, "vote failed: %s\n", failure.Message)

	return failure
}

type environment struct {
	cfg     config.Config
	catalog poll.Catalog
	ledger  *rpc.Client
	reader  *reader.Reader
	close   func()
}

func newEnvironment(flags cli.Flags) (*environment, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	env := &environment{
		cfg:     cfg,
		catalog: catalog,
		close:   func() {},
	}

	var opts []rpc.ClientOption

	if cfg.Tracing {
		tracer, err := tracing.GetTracer("ballot")
		if err != nil {
			return nil, xerrors.Errorf("failed to create tracer: %v", err)
		}

		opts = append(opts, rpc.WithTracer(tracer))
		env.close = func() { tracing.CloseAll() }
	}

	env.ledger = rpc.NewClient(cfg.RPC, opts...)
	env.reader = reader.NewReader(env.ledger, cfg.Contract, catalog,
		reader.WithConcurrency(cfg.Concurrency))

	return env, nil
}

func (e *environment) readContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.cfg.ReadTimeout)
}

// identity returns the identity of the flag, or the one of the key.
func (e *environment) identity(flags cli.Flags) (poll.Identity, error) {
	addr := flags.String("identity")
	if addr != "" {
		_, err := ed25519.NewPublicKeyFromAddress(addr)
		if err != nil {
			return "", xerrors.Errorf("invalid identity: %v", err)
		}

		return poll.Identity(addr), nil
	}

	if e.cfg.Key == "" {
		return "", xerrors.New("no identity: set --identity or a key")
	}

	data, err := loader.NewFileLoader(e.cfg.Key).Load()
	if err != nil {
		return "", xerrors.Errorf("failed to load key: %v", err)
	}

	key, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return "", xerrors.Errorf("invalid key: %v", err)
	}

	return poll.Identity(key.Address()), nil
}

func loadConfig(flags cli.Flags) (config.Config, error) {
	cfg, err := config.Load(flags.String("config"))
	if err != nil {
		return cfg, xerrors.Errorf("failed to load config: %v", err)
	}

	overrides := map[string]*string{
		"rpc":      &cfg.RPC,
		"network":  &cfg.Network,
		"contract": &cfg.Contract,
		"key":      &cfg.Key,
	}

	for name, field := range overrides {
		value := flags.String(name)
		if value != "" {
			*field = value
		}
	}

	if flags.Bool("tracing") {
		cfg.Tracing = true
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, xerrors.Errorf("invalid config: %v", err)
	}

	return cfg, nil
}

func printTally(w io.Writer, catalog poll.Catalog, tally poll.Tally) {
	leaders := make(map[string]bool)
	for _, id := range tally.Leaders() {
		leaders[id] = true
	}

	for _, opt := range catalog.Options() {
		mark := ""
		if leaders[opt.ID] {
			mark = " *"
		}

		fmt.Fprintf(w, "%-24s %8d %4d%%%s\n", opt.DisplayLabel(),
			tally.Count(opt.ID), tally.Percent(opt.ID), mark)
	}

	fmt.Fprintf(w, "total: %d\n", tally.Total())
}

// printer prints the events of a session.
//
// - implements session.Observer
type printer struct {
	sync.Mutex

	out     io.Writer
	catalog poll.Catalog
}

// NotifyCallback implements session.Observer.
func (p *printer) NotifyCallback(event interface{}) {
	p.Lock()
	defer p.Unlock()

	switch e := event.(type) {
	case session.TallyEvent:
		fmt.Fprintf(p.out, "--- %s\n", time.Now().Format(time.RFC3339))
		printTally(p.out, p.catalog, e.Tally)
	case session.StatusEvent:
		if e.Identity.IsZero() {
			return
		}

		fmt.Fprintf(p.out, "%s voted: %t\n", string(e.Identity), e.Voted)
	case session.PhaseEvent:
		fmt.Fprintf(p.out, "phase: %v\n", e.Phase)
	case session.FailureEvent:
		fmt.Fprintf(p.out, "failure: %s\n", e.Failure.Message)
	}
}
