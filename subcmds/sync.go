// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/syncbot/api"
	"github.com/bvk/syncbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Sync struct {
	cmdutil.ClientFlags

	exchangeName string
	kind         string
}

func (c *Sync) Purpose() string {
	return "Sync refetches account state snapshots from the exchanges"
}

func (c *Sync) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("sync", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.StringVar(&c.exchangeName, "exchange", "", "limits the resync to one exchange")
	fset.StringVar(&c.kind, "kind", "", `limits the resync to "balance" or "position" watchers`)
	return "sync", fset, cli.CmdFunc(c.run)
}

func (c *Sync) Description() string {
	return `

Command "sync" forces an out-of-band snapshot fetch on the daemon's account
watchers, which brings the local state up to date without waiting for the
next poll cycle or websocket update.

`
}

func (c *Sync) run(ctx context.Context, args []string) error {
	req := &api.ResyncRequest{
		ExchangeName: c.exchangeName,
		Kind:         c.kind,
	}
	if err := req.Check(); err != nil {
		return err
	}
	resp, err := cmdutil.Post[api.ResyncResponse](ctx, &c.ClientFlags, api.ResyncPath, req)
	if err != nil {
		return err
	}

	stdout := cli.Stdout(ctx)
	for _, r := range resp.Results {
		if r.Error != "" {
			fmt.Fprintf(stdout, "%s: %s\n", r.WatcherName, r.Error)
			continue
		}
		fmt.Fprintf(stdout, "%s: processed %t\n", r.WatcherName, r.Processed)
	}
	return nil
}
