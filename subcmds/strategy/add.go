// Copyright (c) 2025 BVK Chaitanya

package strategy

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/bvk/syncbot/exchange"
	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/kvutil"
	"github.com/bvk/syncbot/strategy"
	"github.com/bvk/syncbot/subcmds/cmdutil"
	"github.com/google/uuid"
	"github.com/visvasity/cli"
)

type Add struct {
	cmdutil.DBFlags

	uid string

	exchangeName string
	productID    string
	baseAsset    string
	quoteAsset   string
	marginMode   string
}

func (c *Add) Purpose() string {
	return "Creates a new strategy accounting record in the database"
}

func (c *Add) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("add", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.uid, "uid", "", "unique id for the strategy (default is a new uuid)")
	fset.StringVar(&c.exchangeName, "exchange", "coinex", "name of the exchange")
	fset.StringVar(&c.productID, "product", "", "exchange market id (e.g. BTCUSDT)")
	fset.StringVar(&c.baseAsset, "base", "", "base asset symbol (e.g. BTC)")
	fset.StringVar(&c.quoteAsset, "quote", "", "quote asset symbol (e.g. USDT)")
	fset.StringVar(&c.marginMode, "margin-mode", "", `margin mode "cross" or "isolated" (empty for spot)`)
	return "add", fset, cli.CmdFunc(c.run)
}

func (c *Add) Description() string {
	return `

Command "add" creates a new strategy record. The new strategy is not started
automatically; use the "enable" command and restart the daemon to start
syncing its account state.

  $ syncbot strategy add --product=BTCUSDT --base=BTC --quote=USDT

`
}

func (c *Add) run(ctx context.Context, args []string) error {
	if len(c.productID) == 0 || len(c.baseAsset) == 0 || len(c.quoteAsset) == 0 {
		return fmt.Errorf("--product, --base and --quote flags are required")
	}
	switch c.marginMode {
	case "", exchange.MarginCross, exchange.MarginIsolated:
	default:
		return fmt.Errorf("invalid margin mode %q", c.marginMode)
	}
	if len(c.uid) == 0 {
		c.uid = uuid.New().String()
	}
	if strings.ContainsRune(c.uid, '/') {
		return fmt.Errorf("strategy uid cannot contain path separators")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	key := path.Join(strategy.Keyspace, c.uid)
	if _, err := kvutil.GetDB[gobs.StrategyState](ctx, db, key); err == nil {
		return fmt.Errorf("strategy %q already exists: %w", c.uid, os.ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	state := &gobs.StrategyState{
		UID:          c.uid,
		ExchangeName: strings.ToLower(c.exchangeName),
		ProductID:    c.productID,
		BaseAsset:    c.baseAsset,
		QuoteAsset:   c.quoteAsset,
		MarginMode:   c.marginMode,
	}
	if err := kvutil.SetDB(ctx, db, key, state); err != nil {
		return err
	}

	fmt.Fprintln(cli.Stdout(ctx), c.uid)
	return nil
}
