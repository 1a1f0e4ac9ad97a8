// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/bvk/syncbot/api"
	"github.com/bvk/syncbot/subcmds/cmdutil"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/visvasity/cli"
)

type Status struct {
	cmdutil.ClientFlags

	noProcessInfo bool
}

func (c *Status) Purpose() string {
	return "Status prints the daemon and strategy sync state"
}

func (c *Status) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.BoolVar(&c.noProcessInfo, "no-process-info", false, "skips daemon process cpu/memory information")
	return "status", fset, cli.CmdFunc(c.run)
}

func (c *Status) run(ctx context.Context, args []string) error {
	resp, err := cmdutil.Post[api.StatusResponse](ctx, &c.ClientFlags, api.StatusPath, &api.StatusRequest{})
	if err != nil {
		return err
	}

	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "uptime: %s\n", resp.Uptime.Truncate(time.Second))

	if !c.noProcessInfo {
		if pid, err := c.daemonPid(ctx); err == nil {
			if p, err := process.NewProcessWithContext(ctx, int32(pid)); err == nil {
				if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
					fmt.Fprintf(stdout, "cpu: %.2f%%\n", cpu)
				}
				if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
					fmt.Fprintf(stdout, "memory: %d MiB\n", mem.RSS/(1024*1024))
				}
			}
		}
	}

	if len(resp.Strategies) == 0 {
		fmt.Fprintf(stdout, "no strategies are running\n")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "UID\tPRODUCT\tEXCHANGE\tCASH\tASSET\tPOSITION\tORDERS\n")
	for _, s := range resp.Strategies {
		position := "-"
		if s.PositionSide != "" {
			position = fmt.Sprintf("%s %s", s.PositionSide, s.PositionContracts.StringFixed(5))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			s.UID, s.ProductID, s.ExchangeName,
			s.CashBalance.StringFixed(5), s.AssetSize.StringFixed(5),
			position, s.NumOpenOrders)
	}
	tw.Flush()

	tw = tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "WATCHER\tMODE\tRUNNING\tLAST-PROCESSED\n")
	for _, s := range resp.Strategies {
		for _, w := range s.Watchers {
			last := "-"
			if !w.LastProcessed.IsZero() {
				last = w.LastProcessed.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", w.Name, w.Mode, w.Running, last)
		}
	}
	return tw.Flush()
}

func (c *Status) daemonPid(ctx context.Context) (int, error) {
	addrURL := c.ClientFlags.AddressURL()
	addrURL.Path = path.Join(addrURL.Path, "pid")
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, addrURL.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.ClientFlags.HttpClient().Do(r)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("http status code %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}
