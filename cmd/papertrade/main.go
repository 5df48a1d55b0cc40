// Command papertrade operates the trading ledger from the terminal, directly
// against the configured store.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

var username = flag.String("user", os.Getenv("PAPERTRADE_USER"), "username to act as (defaults to $PAPERTRADE_USER)")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&registerCmd{}, "accounts")
	commander.Register(&depositCmd{}, "accounts")
	commander.Register(&buyCmd{}, "trading")
	commander.Register(&sellCmd{}, "trading")
	commander.Register(&portfolioCmd{}, "reports")
	commander.Register(&historyCmd{}, "reports")
	commander.Register(&quoteCmd{}, "reports")

	flag.Parse()

	os.Exit(int(commander.Execute(context.Background())))
}
