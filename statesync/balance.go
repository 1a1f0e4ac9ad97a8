// Copyright (c) 2025 BVK Chaitanya

package statesync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/syncbot/exchange"
	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/jobqueue"
	"github.com/shopspring/decimal"
)

// Accounting is the narrow strategy-side interface the reconcilers call
// into. All Apply and Sync methods are invoked from within job queue jobs,
// never directly from the ingestion path.
type Accounting interface {
	// Name identifies the strategy and serves as the owner key for
	// strategy-wide jobs.
	Name() string

	// QuoteCurrency returns the strategy's cash currency symbol.
	QuoteCurrency() string

	// HasAsset reports whether the currency is a base asset tracked by
	// the strategy.
	HasAsset(currency string) bool

	// ResolveSymbol maps an exchange market symbol to the strategy's
	// asset key. Unknown symbols report false.
	ResolveSymbol(symbol string) (string, bool)

	// NonCashValue returns the quote-currency valuation of the
	// strategy's non-cash holdings.
	NonCashValue() decimal.Decimal

	// OpenIncreaseValue returns the total quote amount held against open
	// orders that would increase holdings.
	OpenIncreaseValue() decimal.Decimal

	// OpenReduceSize returns the total base size of open orders that
	// would reduce holdings of the given asset.
	OpenReduceSize(asset string) decimal.Decimal

	// MarginMode returns "cross" or "isolated" for derivative
	// strategies and empty for spot.
	MarginMode() string

	ApplyBalance(ctx context.Context, state *gobs.BalanceState) error
	ApplyPosition(ctx context.Context, asset string, state *gobs.PositionState) error

	// SyncCash recomputes the strategy's cash accounting from the
	// reconciled view.
	SyncCash(ctx context.Context) error
}

// BalanceReconciler folds balance snapshots into the view's balance cells
// and schedules per-currency apply jobs.
type BalanceReconciler struct {
	view *View

	acct Accounting

	jobs *jobqueue.Queue
}

var _ Reconciler = &BalanceReconciler{}

func NewBalanceReconciler(view *View, acct Accounting, jobs *jobqueue.Queue) *BalanceReconciler {
	return &BalanceReconciler{
		view: view,
		acct: acct,
		jobs: jobs,
	}
}

func (r *BalanceReconciler) EventName() string {
	return "balance"
}

// Reconcile processes one balance snapshot. Malformed payloads are skipped
// with the watermark advancing; only job scheduling failures are returned
// as errors.
func (r *BalanceReconciler) Reconcile(ctx context.Context, at time.Time, ev exchange.Event, watch bool) error {
	event, ok := ev.(*exchange.BalanceEvent)
	if !ok {
		slog.Debug("skipping balance sample with unexpected payload type", "strategy", r.acct.Name(), "type", fmt.Sprintf("%T", ev))
		return nil
	}

	eventTime := event.ServerTime.Time
	if eventTime.IsZero() {
		eventTime = at
	}

	quote := r.acct.QuoteCurrency()
	for _, entry := range event.Balances {
		if entry == nil || entry.Symbol == "" {
			slog.Debug("skipping malformed balance entry", "strategy", r.acct.Name())
			continue
		}

		free := entry.Free
		if free.IsZero() {
			// Conservative fallback when the exchange omits the
			// free balance.
			free = entry.Total.Sub(r.acct.NonCashValue())
			if free.IsNegative() {
				free = decimal.Zero
			}
		}

		used := entry.Used
		if used.IsZero() {
			if entry.Symbol == quote {
				used = r.acct.OpenIncreaseValue()
			} else if r.acct.HasAsset(entry.Symbol) {
				used = r.acct.OpenReduceSize(entry.Symbol)
			}
		}

		state, ok := r.view.updateBalance(entry.Symbol, eventTime, entry.Total, free, used)
		if !ok {
			// Stale relative to the cell; expected under replays.
			continue
		}

		// Quote currency updates target the strategy as a whole;
		// asset updates are serialized per asset.
		owner := r.acct.Name()
		if entry.Symbol != quote {
			owner = entry.Symbol
		}
		if _, err := r.jobs.Add(owner, func(ctx context.Context) error {
			return r.acct.ApplyBalance(ctx, state)
		}); err != nil {
			return fmt.Errorf("could not schedule balance apply job for %q: %w", entry.Symbol, err)
		}
	}
	return nil
}
