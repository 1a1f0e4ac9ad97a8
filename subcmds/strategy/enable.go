// Copyright (c) 2025 BVK Chaitanya

package strategy

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"slices"

	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/kvutil"
	"github.com/bvk/syncbot/server"
	"github.com/bvk/syncbot/strategy"
	"github.com/bvk/syncbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Enable struct {
	cmdutil.DBFlags
}

func (c *Enable) Purpose() string {
	return "Marks a strategy to be resumed by the daemon"
}

func (c *Enable) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("enable", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	return "enable", fset, cli.CmdFunc(c.run)
}

func (c *Enable) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("needs one (strategy uid) argument")
	}
	uid := args[0]

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	if _, err := kvutil.GetDB[gobs.StrategyState](ctx, db, path.Join(strategy.Keyspace, uid)); err != nil {
		return fmt.Errorf("could not load strategy %q: %w", uid, err)
	}

	tx, err := db.NewTransaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	state, err := kvutil.Get[gobs.ServerState](ctx, tx, server.ServerStateKey)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		state = new(gobs.ServerState)
	}
	if slices.Contains(state.EnabledStrategyIDs, uid) {
		return nil
	}
	state.EnabledStrategyIDs = append(state.EnabledStrategyIDs, uid)

	if err := kvutil.Set(ctx, tx, server.ServerStateKey, state); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
