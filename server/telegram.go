// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/syncbot/statesync"
	"github.com/bvk/syncbot/telegram"
	"github.com/visvasity/cli"
)

func (s *Server) AddTelegramCommand(ctx context.Context, name, purpose string, handler telegram.CmdFunc) error {
	if s.telegramClient != nil {
		return s.telegramClient.AddCommand(ctx, name, purpose, handler)
	}
	return nil // Ignored
}

func (s *Server) registerTelegramCommands(ctx context.Context) error {
	if err := s.AddTelegramCommand(ctx, "status", "Prints running strategies and their watchers", s.statusTelegramCmd); err != nil {
		return err
	}
	if err := s.AddTelegramCommand(ctx, "sync", "Refetches account state from the exchanges", s.syncTelegramCmd); err != nil {
		return err
	}
	return nil
}

// SendMessage delivers an alert over all configured messaging services.
// Delivery failures are logged and not returned; alerts are best effort.
func (s *Server) SendMessage(ctx context.Context, at time.Time, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	if s.telegramClient == nil && s.pushoverClient == nil {
		slog.Warn("no messaging service is configured (alert is dropped)", "message", msg)
		return
	}
	if s.telegramClient != nil {
		if err := s.telegramClient.SendMessage(ctx, at, msg); err != nil {
			slog.Error("could not send telegram message", "error", err)
		}
	}
	if s.pushoverClient != nil {
		if err := s.pushoverClient.SendMessage(ctx, at, msg); err != nil {
			slog.Error("could not send pushover message", "error", err)
		}
	}
}

func (s *Server) statusTelegramCmd(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)

	rts := s.runtimes()
	if len(rts) == 0 {
		fmt.Fprintf(stdout, "no strategies are running\n")
		return nil
	}
	for _, rt := range rts {
		side, contracts := rt.strategy.Position()
		fmt.Fprintf(stdout, "%s: product %s cash %s asset %s",
			rt.uid, rt.strategy.ProductID(),
			rt.strategy.CashBalance().StringFixed(5),
			rt.strategy.AssetSize().StringFixed(5))
		if side != "" {
			fmt.Fprintf(stdout, " position %s %s", side, contracts.StringFixed(5))
		}
		fmt.Fprintf(stdout, "\n")
		for _, w := range []*statesync.Watcher{rt.balanceWatcher, rt.positionWatcher} {
			fmt.Fprintf(stdout, "  %s: mode %s running %t last-processed %s\n",
				w.Name(), w.Mode(), w.IsRunning(), w.LastProcessed().Format(time.RFC3339))
		}
	}
	return nil
}

func (s *Server) syncTelegramCmd(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)

	for _, rt := range s.runtimes() {
		for _, w := range []*statesync.Watcher{rt.balanceWatcher, rt.positionWatcher} {
			processed, err := w.Fetch(ctx)
			if err != nil {
				fmt.Fprintf(stdout, "%s: %v\n", w.Name(), err)
				continue
			}
			fmt.Fprintf(stdout, "%s: processed %t\n", w.Name(), processed)
		}
	}
	return nil
}
