package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/kubesec-bank/invest-ledger/internal/app"
	"github.com/kubesec-bank/invest-ledger/internal/config"
	"github.com/kubesec-bank/invest-ledger/internal/logging"
	"github.com/kubesec-bank/invest-ledger/internal/models"
	"github.com/kubesec-bank/invest-ledger/internal/money"
	"github.com/kubesec-bank/invest-ledger/internal/oracle"
	"github.com/kubesec-bank/invest-ledger/internal/repository"
)

var commands = []subcommands.Command{
	&migrateCmd{},
	&searchCmd{},
	&quoteCmd{},
	&statementCmd{},
	&confirmCmd{},
}

func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Config{Level: "warn", Format: "console"})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newOracle(ctx context.Context) (oracle.PriceOracle, *config.Config, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rdb, err := app.NewRedis(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	o, err := app.NewOracle(cfg, rdb, nil, logger)
	return o, cfg, err
}

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or update the database schema" }
func (*migrateCmd) Usage() string {
	return `ledgerctl migrate

  Applies the schema to the database named by DB_DRIVER and its settings.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer store.Close()
	fmt.Printf("schema up to date (%s)\n", store.Dialect())
	return subcommands.ExitSuccess
}

type searchCmd struct{}

func (*searchCmd) Name() string     { return "search" }
func (*searchCmd) Synopsis() string { return "search the asset catalog" }
func (*searchCmd) Usage() string {
	return `ledgerctl search <query>
`
}
func (*searchCmd) SetFlags(*flag.FlagSet) {}

func (*searchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "search takes exactly one query")
		return subcommands.ExitUsageError
	}
	o, _, err := newOracle(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	assets, err := o.SearchAssets(ctx, f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	printAssets(os.Stdout, assets)
	return subcommands.ExitSuccess
}

type quoteCmd struct{}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "print the latest price of a ticker" }
func (*quoteCmd) Usage() string {
	return `ledgerctl quote <ticker>...
`
}
func (*quoteCmd) SetFlags(*flag.FlagSet) {}

func (*quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "quote needs at least one ticker")
		return subcommands.ExitUsageError
	}
	o, cfg, err := newOracle(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	status := subcommands.ExitSuccess
	for _, ticker := range f.Args() {
		q, err := o.TickerInfo(ctx, ticker)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", ticker, err)
			status = subcommands.ExitFailure
			continue
		}
		line := fmt.Sprintf("%s\t%s", q.Ticker, money.Format(q.Price, q.Currency))
		if !strings.EqualFold(q.Currency, cfg.Currency.Base) {
			if rate, err := o.FXRate(ctx, q.Currency); err == nil {
				line += "\t" + money.Format(money.Round(q.Price.Mul(rate)), cfg.Currency.Base)
			}
		}
		fmt.Println(line)
	}
	return status
}

type statementCmd struct {
	email  string
	limit  int
	offset int
}

func (*statementCmd) Name() string     { return "statement" }
func (*statementCmd) Synopsis() string { return "print the movements of an identity's account" }
func (*statementCmd) Usage() string {
	return `ledgerctl statement -email <email> [-limit n] [-offset n]
`
}

func (c *statementCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.email, "email", "", "Email of the account holder.")
	f.IntVar(&c.limit, "limit", 0, "Maximum number of movements, 0 for all.")
	f.IntVar(&c.offset, "offset", 0, "Movements to skip.")
}

func (c *statementCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.email == "" {
		fmt.Fprintln(os.Stderr, "-email is required")
		return subcommands.ExitUsageError
	}
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	if err := statement(ctx, os.Stdout, store.Queries(), cfg.Currency.Base, c.email, c.limit, c.offset); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type confirmCmd struct {
	email string
}

func (*confirmCmd) Name() string     { return "confirm" }
func (*confirmCmd) Synopsis() string { return "confirm an identity without its emailed code" }
func (*confirmCmd) Usage() string {
	return `ledgerctl confirm -email <email>

  For operators, when the identity.registered event never reached the holder.
`
}

func (c *confirmCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.email, "email", "", "Email of the identity to confirm.")
}

func (c *confirmCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.email == "" {
		fmt.Fprintln(os.Stderr, "-email is required")
		return subcommands.ExitUsageError
	}
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	if err := confirm(ctx, os.Stdout, store.Queries(), c.email); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func confirm(ctx context.Context, w io.Writer, q repository.Queries, email string) error {
	identity, err := q.GetIdentityByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return err
	}
	if identity == nil {
		return fmt.Errorf("no identity with email %s", email)
	}
	if identity.Confirmed {
		fmt.Fprintf(w, "%s already confirmed\n", identity.Email)
		return nil
	}
	if err := q.ConfirmIdentity(ctx, identity.ID); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s confirmed\n", identity.Email)
	return nil
}

func statement(ctx context.Context, w io.Writer, q repository.Queries, currency, email string, limit, offset int) error {
	identity, err := q.GetIdentityByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return err
	}
	if identity == nil {
		return fmt.Errorf("no identity with email %s", email)
	}
	account, err := q.GetAccountByIdentity(ctx, identity.ID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("%s has no account", email)
	}
	movements, err := q.ListMovements(ctx, account.ID, limit, offset)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s  %s-%s  balance %s\n", identity.Name, account.Branch, account.Number, money.Format(account.Balance, currency))
	printMovements(w, movements, currency)
	return nil
}

func printMovements(w io.Writer, movements []models.Movement, currency string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tKIND\tAMOUNT")
	for _, m := range movements {
		amount := money.Format(m.Amount, currency)
		if m.Kind == models.MovementDebit {
			amount = "-" + amount
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.CreatedAt.Format("2006-01-02 15:04:05"), m.Kind, amount)
	}
	tw.Flush()
}

func printAssets(w io.Writer, assets []oracle.Asset) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tCATEGORY\tNAME")
	for _, a := range assets {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Ticker, a.Category, a.Name)
	}
	tw.Flush()
}
