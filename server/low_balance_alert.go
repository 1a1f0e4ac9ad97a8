// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/kvutil"
	"github.com/bvk/syncbot/statesync"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

func (s *Server) watchForLowBalance(ctx context.Context, view *statesync.View) error {
	updates, err := view.BalanceUpdates()
	if err != nil {
		return err
	}
	defer updates.Close()

	updatesCh, err := topic.ReceiveCh(updates)
	if err != nil {
		return err
	}

	exname := view.ExchangeName()

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)

		case update, ok := <-updatesCh:
			if !ok {
				return nil
			}
			if err := s.alertOnLowBalance(ctx, exname, update.Symbol, update.Free); err != nil {
				slog.Warn("could not send low balance alert", "exchange", exname, "currency", update.Symbol, "amount", update.Free)
			}
		}
	}
}

func (s *Server) alertOnLowBalance(ctx context.Context, exchangeName, currency string, amount decimal.Decimal) error {
	now := time.Now()
	ccy := strings.ToUpper(currency)
	exchange := strings.ToLower(exchangeName)

	key := fmt.Sprintf("alerts/low-balance-alert/%s/%s", exchange, ccy)
	if frozen := s.checkAlertFreeze(key, now); frozen {
		return nil
	}

	state, err := kvutil.GetDB[gobs.ServerState](ctx, s.db, ServerStateKey)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	// No alerts config is not an error.
	if state.AlertsConfig == nil {
		return nil
	}
	// Per exchange alerts config takes higher precedence if it exists.
	if cfg, ok := state.AlertsConfig.PerExchangeConfig[exchange]; ok && cfg != nil && cfg.LowBalanceLimits != nil {
		if limit, ok := cfg.LowBalanceLimits[ccy]; ok {
			if amount.LessThanOrEqual(limit) {
				s.SendMessage(ctx, now,
					"Available balance %s for %q in exchange %s is below the exchange specific limit %s.",
					amount.StringFixed(5), ccy, exchange, limit)
				s.freezeAlert(key, now.Add(time.Hour))
			}
			return nil
		}
		// This asset doesn't have per-exchange limits, so fallback to check the default limits.
	}

	if limit, ok := state.AlertsConfig.LowBalanceLimits[ccy]; ok {
		if amount.LessThanOrEqual(limit) {
			s.SendMessage(ctx, now,
				"Available balance %s for %q in exchange %s is below the default limit %s.",
				amount.StringFixed(5), ccy, exchange, limit)
			s.freezeAlert(key, now.Add(time.Hour))
		}
	}
	return nil
}

func (s *Server) checkAlertFreeze(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deadline, ok := s.alertFreezeDeadlineMap[key]; ok {
		if now.Before(deadline) {
			return true
		}
		delete(s.alertFreezeDeadlineMap, key)
	}
	return false
}

func (s *Server) freezeAlert(key string, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertFreezeDeadlineMap[key] = deadline
}
