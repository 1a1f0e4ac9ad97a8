// Copyright (c) 2025 BVK Chaitanya

package alerts

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/kvutil"
	"github.com/bvk/syncbot/server"
	"github.com/bvk/syncbot/subcmds/cmdutil"
	"github.com/shopspring/decimal"
	"github.com/visvasity/cli"
)

type LowBalanceLimits struct {
	cmdutil.DBFlags

	exchangeName string
}

func (c *LowBalanceLimits) Purpose() string {
	return "Adds or updates lower-limits to raise alert on asset balance"
}

func (c *LowBalanceLimits) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := new(flag.FlagSet)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.exchangeName, "exchange", "", "sets exchange specific limits instead of the defaults")
	return "low-balance-limits", fset, cli.CmdFunc(c.run)
}

// Example: syncbot configure alerts low-balance-limits BTC=100 USDT=200
func (c *LowBalanceLimits) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("this command takes one or more arguments")
	}

	limitsMap := make(map[string]decimal.Decimal)
	for _, arg := range args {
		vs := strings.SplitN(arg, "=", 2)
		if len(vs) != 2 {
			return fmt.Errorf("invalid SYMBOL=LIMIT argument %q", arg)
		}

		// We expect all crypto symbol names be all-capitals with at least two
		// letters.
		if matched, err := regexp.MatchString("^[A-Z][A-Z]+$", vs[0]); err != nil {
			return err
		} else if !matched {
			return fmt.Errorf("unsupported/invalid symbol name in %q", arg)
		}

		limit, err := decimal.NewFromString(vs[1])
		if err != nil {
			return fmt.Errorf("invalid limit value in %q", arg)
		}
		limitsMap[vs[0]] = limit
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return fmt.Errorf("could not create database client: %w", err)
	}
	defer closer()

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
	if state.AlertsConfig == nil {
		state.AlertsConfig = new(gobs.AlertsConfig)
	}

	config := state.AlertsConfig
	if len(c.exchangeName) != 0 {
		exchange := strings.ToLower(c.exchangeName)
		if config.PerExchangeConfig == nil {
			config.PerExchangeConfig = make(map[string]*gobs.AlertsConfig)
		}
		if config.PerExchangeConfig[exchange] == nil {
			config.PerExchangeConfig[exchange] = new(gobs.AlertsConfig)
		}
		config = config.PerExchangeConfig[exchange]
	}
	if config.LowBalanceLimits == nil {
		config.LowBalanceLimits = make(map[string]decimal.Decimal)
	}
	// Update or add SYMBOL=LIMIT entries.
	for k, v := range limitsMap {
		config.LowBalanceLimits[k] = v
	}

	if err := kvutil.Set[gobs.ServerState](ctx, tx, server.ServerStateKey, state); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	return nil
}
