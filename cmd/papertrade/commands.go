package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/format"
	"github.com/papertrade/papertrade/internal/quote"
)

// withApp opens the application, runs fn and closes it again.
func withApp(ctx context.Context, fn func(*app) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer a.Close()
	if err := fn(a); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// --- register ---

type registerCmd struct{}

func (*registerCmd) Name() string     { return "register" }
func (*registerCmd) Synopsis() string { return "create an account holding the starting cash" }
func (*registerCmd) Usage() string {
	return `papertrade register <username> <password>

  Creates a new account. The password must be at least 6 characters long and
  contain at least one letter, one digit and one of @$!%*#?&.
`
}
func (*registerCmd) SetFlags(*flag.FlagSet) {}

func (*registerCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		u, err := a.accounts.Register(ctx, f.Arg(0), f.Arg(1))
		if err != nil {
			return err
		}
		fmt.Printf("registered %s with %s\n", u.Username, format.USD(u.Cash))
		return nil
	})
}

// --- deposit ---

type depositCmd struct{}

func (*depositCmd) Name() string     { return "deposit" }
func (*depositCmd) Synopsis() string { return "add cash to the account" }
func (*depositCmd) Usage() string {
	return `papertrade -user <name> deposit <amount>
`
}
func (*depositCmd) SetFlags(*flag.FlagSet) {}

func (*depositCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	amount, err := decimal.NewFromString(f.Arg(0))
	if err != nil {
		fail(apperrors.Reject(apperrors.ErrInvalidAmount, "%q is not a number", f.Arg(0)))
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		userID, err := a.userID(ctx)
		if err != nil {
			return err
		}
		conf, err := a.engine.Deposit(ctx, userID, amount)
		if err != nil {
			return err
		}
		fmt.Printf("deposited %s, cash %s\n", format.USD(conf.Total), format.USD(conf.Cash))
		return nil
	})
}

// --- buy / sell ---

type buyCmd struct{}

func (*buyCmd) Name() string     { return "buy" }
func (*buyCmd) Synopsis() string { return "buy shares at the current quote" }
func (*buyCmd) Usage() string {
	return `papertrade -user <name> buy <symbol> <shares>
`
}
func (*buyCmd) SetFlags(*flag.FlagSet) {}

func (*buyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return executeTrade(ctx, f, true)
}

type sellCmd struct{}

func (*sellCmd) Name() string     { return "sell" }
func (*sellCmd) Synopsis() string { return "sell held shares at the current quote" }
func (*sellCmd) Usage() string {
	return `papertrade -user <name> sell <symbol> <shares>
`
}
func (*sellCmd) SetFlags(*flag.FlagSet) {}

func (*sellCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return executeTrade(ctx, f, false)
}

func executeTrade(ctx context.Context, f *flag.FlagSet, buy bool) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	shares, err := strconv.ParseInt(f.Arg(1), 10, 64)
	if err != nil {
		fail(apperrors.Reject(apperrors.ErrInvalidQuantity, "shares must be a whole number, got %q", f.Arg(1)))
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		userID, err := a.userID(ctx)
		if err != nil {
			return err
		}
		run := a.engine.Sell
		if buy {
			run = a.engine.Buy
		}
		conf, err := run(ctx, userID, f.Arg(0), shares)
		if err != nil {
			return err
		}
		fmt.Printf("%s %d %s (%s) at %s = %s, cash %s\n",
			conf.Kind, conf.Shares, conf.Symbol, conf.Name,
			format.USD(conf.Price), format.USD(conf.Total), format.USD(conf.Cash))
		return nil
	})
}

// --- portfolio ---

type portfolioCmd struct {
	raw bool
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "value every open position at current quotes" }
func (*portfolioCmd) Usage() string {
	return `papertrade -user <name> portfolio [-raw]
`
}
func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.raw, "raw", false, "print the markdown without terminal styling")
}

func (c *portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		userID, err := a.userID(ctx)
		if err != nil {
			return err
		}
		p, err := a.valuator.GetPortfolio(ctx, userID)
		if err != nil {
			return err
		}
		md := portfolioMarkdown(*username, p, a.valuator.Method())
		if c.raw {
			fmt.Print(md)
		} else {
			printMarkdown(md)
		}
		return nil
	})
}

// --- history ---

type historyCmd struct{}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list transactions, newest first" }
func (*historyCmd) Usage() string {
	return `papertrade -user <name> history
`
}
func (*historyCmd) SetFlags(*flag.FlagSet) {}

func (*historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		userID, err := a.userID(ctx)
		if err != nil {
			return err
		}
		txns, err := a.engine.History(ctx, userID)
		if err != nil {
			return err
		}
		printMarkdown(historyMarkdown(txns))
		return nil
	})
}

// --- quote ---

type quoteCmd struct{}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "look up the current price of a symbol" }
func (*quoteCmd) Usage() string {
	return `papertrade quote <symbol>
`
}
func (*quoteCmd) SetFlags(*flag.FlagSet) {}

func (*quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		sym, err := quote.NormalizeSymbol(f.Arg(0))
		if err != nil {
			return err
		}
		q, err := quote.Resolve(ctx, a.quotes, sym, apperrors.ErrInvalidSymbol)
		if err != nil {
			return err
		}
		fmt.Printf("A share of %s (%s) costs %s. Market cap %s.\n",
			q.Name, q.Symbol, format.USD(q.Price), format.Human(q.MarketCap))
		return nil
	})
}

