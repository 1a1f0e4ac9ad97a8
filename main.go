// Copyright (c) 2025 BVK Chaitanya

package main

import (
	"context"
	"log"
	"os"

	"github.com/bvk/syncbot/envfile"
	"github.com/bvk/syncbot/subcmds"
	"github.com/bvk/syncbot/subcmds/configure/alerts"
	"github.com/bvk/syncbot/subcmds/db"
	"github.com/bvk/syncbot/subcmds/setup"
	"github.com/bvk/syncbot/subcmds/strategy"
	"github.com/visvasity/cli"
)

func main() {
	// Optional per-user defaults, like SYNCBOT_SERVER_PORT.
	if err := envfile.UpdateEnv(".syncbot.env", envfile.SearchCurrentDir(true)); err != nil {
		log.Printf("could not read env file (ignored): %v", err)
	}

	dbCmds := []cli.Command{
		new(db.Get),
		new(db.Set),
		new(db.Delete),
		new(db.List),
		new(db.Backup),
		new(db.Restore),
	}

	setupCmds := []cli.Command{
		new(setup.CoinEx),
		new(setup.Telegram),
		new(setup.PushOver),
	}

	strategyCmds := []cli.Command{
		new(strategy.Add),
		new(strategy.Enable),
		new(strategy.Disable),
		new(strategy.List),
	}

	alertsCmds := []cli.Command{
		new(alerts.LowBalanceLimits),
	}

	cmds := []cli.Command{
		new(subcmds.Run),
		new(subcmds.Status),
		new(subcmds.Balances),
		new(subcmds.Positions),
		new(subcmds.Sync),
		cli.NewGroup("setup", "Configure exchange and messaging credentials", setupCmds...),
		cli.NewGroup("strategy", "Manage strategy accounting records", strategyCmds...),
		cli.NewGroup("db", "View/update database directly", dbCmds...),
		cli.NewGroup("configure", "Adjust daemon runtime configuration",
			cli.NewGroup("alerts", "Adjust alerting thresholds", alertsCmds...)),
	}
	if err := cli.Run(context.Background(), cmds, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
