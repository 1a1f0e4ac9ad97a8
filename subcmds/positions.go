// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bvk/syncbot/api"
	"github.com/bvk/syncbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Positions struct {
	cmdutil.ClientFlags

	exchangeName  string
	includeClosed bool
}

func (c *Positions) Purpose() string {
	return "Positions prints the reconciled derivative positions"
}

func (c *Positions) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("positions", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.StringVar(&c.exchangeName, "exchange", "", "limits the output to one exchange")
	fset.BoolVar(&c.includeClosed, "include-closed", false, "also prints closed out positions")
	return "positions", fset, cli.CmdFunc(c.run)
}

func (c *Positions) run(ctx context.Context, args []string) error {
	req := &api.PositionsRequest{
		ExchangeName:  c.exchangeName,
		IncludeClosed: c.includeClosed,
	}
	resp, err := cmdutil.Post[api.PositionsResponse](ctx, &c.ClientFlags, api.PositionsPath, req)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cli.Stdout(ctx), 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "EXCHANGE\tSYMBOL\tSIDE\tCONTRACTS\tENTRY\tLEVERAGE\tPNL\tMARGIN\tCLOSED\tUPDATED\n")
	for _, p := range resp.Positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			p.ExchangeName, p.Symbol, p.Side,
			p.Contracts.StringFixed(5), p.EntryPrice.StringFixed(5),
			p.Leverage.StringFixed(1), p.UnrealizedPNL.StringFixed(5),
			p.MarginMode, p.Closed,
			p.EffectiveTime.Format(time.RFC3339))
	}
	return tw.Flush()
}
