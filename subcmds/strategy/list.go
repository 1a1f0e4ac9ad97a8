// Copyright (c) 2025 BVK Chaitanya

package strategy

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/kvutil"
	"github.com/bvk/syncbot/server"
	"github.com/bvk/syncbot/strategy"
	"github.com/bvk/syncbot/subcmds/cmdutil"
	"github.com/bvkgo/kv"
	"github.com/visvasity/cli"
)

type List struct {
	cmdutil.DBFlags
}

func (c *List) Purpose() string {
	return "Prints strategies and their accounting state"
}

func (c *List) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	return "list", fset, cli.CmdFunc(c.run)
}

func (c *List) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	sstate, err := kvutil.GetDB[gobs.ServerState](ctx, db, server.ServerStateKey)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	var enabled []string
	if sstate != nil {
		enabled = sstate.EnabledStrategyIDs
	}

	tw := tabwriter.NewWriter(cli.Stdout(ctx), 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "UID\tEXCHANGE\tPRODUCT\tCASH\tASSET\tENABLED\n")

	begin, end := kvutil.PathRange(strategy.Keyspace)
	printer := func(ctx context.Context, r kv.Reader, key string, state *gobs.StrategyState) error {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
			state.UID, state.ExchangeName, state.ProductID,
			state.CashBalance.StringFixed(5), state.AssetSize.StringFixed(5),
			slices.Contains(enabled, state.UID))
		return nil
	}
	if err := kvutil.AscendDB(ctx, db, begin, end, printer); err != nil {
		return err
	}
	return tw.Flush()
}
