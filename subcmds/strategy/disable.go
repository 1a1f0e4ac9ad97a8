// Copyright (c) 2025 BVK Chaitanya

package strategy

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/kvutil"
	"github.com/bvk/syncbot/server"
	"github.com/bvk/syncbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Disable struct {
	cmdutil.DBFlags
}

func (c *Disable) Purpose() string {
	return "Removes a strategy from the daemon's resume list"
}

func (c *Disable) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("disable", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	return "disable", fset, cli.CmdFunc(c.run)
}

func (c *Disable) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("needs one (strategy uid) argument")
	}
	uid := args[0]

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	tx, err := db.NewTransaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	state, err := kvutil.Get[gobs.ServerState](ctx, tx, server.ServerStateKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if !slices.Contains(state.EnabledStrategyIDs, uid) {
		return nil
	}
	state.EnabledStrategyIDs = slices.DeleteFunc(state.EnabledStrategyIDs, func(v string) bool {
		return v == uid
	})

	if err := kvutil.Set(ctx, tx, server.ServerStateKey, state); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
