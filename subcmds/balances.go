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

type Balances struct {
	cmdutil.ClientFlags

	exchangeName string
}

func (c *Balances) Purpose() string {
	return "Balances prints the reconciled account balances"
}

func (c *Balances) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("balances", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.StringVar(&c.exchangeName, "exchange", "", "limits the output to one exchange")
	return "balances", fset, cli.CmdFunc(c.run)
}

func (c *Balances) run(ctx context.Context, args []string) error {
	req := &api.BalancesRequest{
		ExchangeName: c.exchangeName,
	}
	resp, err := cmdutil.Post[api.BalancesResponse](ctx, &c.ClientFlags, api.BalancesPath, req)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cli.Stdout(ctx), 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "EXCHANGE\tSYMBOL\tTOTAL\tFREE\tUSED\tUPDATED\n")
	for _, b := range resp.Balances {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ExchangeName, b.Symbol,
			b.Total.StringFixed(8), b.Free.StringFixed(8), b.Used.StringFixed(8),
			b.UpdateTime.Format(time.RFC3339))
	}
	return tw.Flush()
}
