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
)

// FinalizeWaitUnit scales the bounded wait for a poll batch's scheduled
// jobs; the total wait is this unit times the job count.
const FinalizeWaitUnit = 15 * time.Second

// PositionReconciler folds position events into the view's position cells
// and schedules per-asset apply jobs. In poll mode it additionally infers
// closed positions from their absence in a full snapshot.
type PositionReconciler struct {
	view *View

	acct Accounting

	jobs *jobqueue.Queue
}

var _ Reconciler = &PositionReconciler{}

func NewPositionReconciler(view *View, acct Accounting, jobs *jobqueue.Queue) *PositionReconciler {
	return &PositionReconciler{
		view: view,
		acct: acct,
		jobs: jobs,
	}
}

func (r *PositionReconciler) EventName() string {
	return "position"
}

func (r *PositionReconciler) Reconcile(ctx context.Context, at time.Time, ev exchange.Event, watch bool) error {
	event, ok := ev.(*exchange.PositionEvent)
	if !ok {
		slog.Debug("skipping position sample with unexpected payload type", "strategy", r.acct.Name(), "type", fmt.Sprintf("%T", ev))
		return nil
	}

	batchTime := event.ServerTime.Time
	if batchTime.IsZero() {
		batchTime = at
	}

	var scheduled []*jobqueue.Job

	// seen records (symbol, side) keys present in this batch for the
	// closed inference below.
	seen := make(map[string]bool)

	for _, entry := range event.Positions {
		job, key, err := r.reconcileEntry(ctx, batchTime, entry, watch)
		if err != nil {
			return err
		}
		if key != "" {
			seen[key] = true
		}
		if job != nil {
			scheduled = append(scheduled, job)
		}
	}

	// Pushed events are incremental; only full poll snapshots allow
	// inferring that an absent position is closed.
	if !watch && event.Complete {
		jobs, err := r.closeAbsent(batchTime, seen)
		if err != nil {
			return err
		}
		scheduled = append(scheduled, jobs...)
		return r.finalize(ctx, batchTime, scheduled)
	}
	return nil
}

// reconcileEntry applies the per-entry staleness rules and schedules the
// cell update job. Returns the scheduled job, if any, and the entry's
// "symbol/side" key, or an empty key when the entry was dropped.
func (r *PositionReconciler) reconcileEntry(ctx context.Context, batchTime time.Time, entry *exchange.PositionEntry, watch bool) (*jobqueue.Job, string, error) {
	if entry == nil || entry.Symbol == "" {
		slog.Debug("skipping malformed position entry", "strategy", r.acct.Name())
		return nil, "", nil
	}

	asset, ok := r.acct.ResolveSymbol(entry.Symbol)
	if !ok {
		slog.Debug("skipping position for unresolved symbol", "strategy", r.acct.Name(), "symbol", entry.Symbol)
		return nil, "", nil
	}

	side := entry.Side
	if side == "" {
		side = r.view.lastUpdatedSide(entry.Symbol)
	}

	cell := r.view.position(entry.Symbol, side)

	cell.mu.Lock()
	prevTime := cell.state.EffectiveTime.Time
	prevPayload := cell.lastPayload
	cell.mu.Unlock()

	// Exchanges replay the same position list across responses; a payload
	// already folded into the cell is recognized by pointer identity.
	if prevPayload == entry {
		slog.Debug("skipping duplicate position payload", "strategy", r.acct.Name(), "symbol", entry.Symbol, "side", side)
		return nil, entry.Symbol + "/" + side, nil
	}

	// The position's own update time is preferred, unless it matches the
	// previous sync exactly, in which case the batch time tells newer
	// data apart.
	effective := entry.UpdateTime.Time
	if effective.IsZero() || effective.Equal(prevTime) {
		effective = batchTime
	}

	if !prevTime.IsZero() && !effective.After(prevTime) {
		return nil, entry.Symbol + "/" + side, nil
	}

	state := &gobs.PositionState{
		Symbol:        entry.Symbol,
		Side:          side,
		Contracts:     entry.Contracts,
		EntryPrice:    entry.EntryPrice,
		Leverage:      entry.Leverage,
		Liquidation:   entry.Liquidation,
		UnrealizedPNL: entry.UnrealizedPNL,
		MarginMode:    entry.MarginMode,
		Closed:        entry.Contracts.IsZero(),
		EffectiveTime: gobs.RemoteTime{Time: effective},
	}

	// With isolated margin a position cannot be open on both sides; a
	// side flip implicitly closes the previous side first.
	if r.acct.MarginMode() == exchange.MarginIsolated {
		other := exchange.SideLong
		if side == exchange.SideLong {
			other = exchange.SideShort
		}
		if prev := r.view.Position(entry.Symbol, other); prev != nil && !prev.State().Closed && !prev.State().EffectiveTime.IsZero() {
			if _, err := r.jobs.Add(asset, func(ctx context.Context) error {
				if prev.markClosed(effective) {
					if err := r.acct.ApplyPosition(ctx, asset, prev.State()); err != nil {
						return err
					}
					prev.MarkRead()
					return r.acct.SyncCash(ctx)
				}
				return nil
			}); err != nil {
				return nil, "", fmt.Errorf("could not schedule side flip close job for %q: %w", entry.Symbol, err)
			}
		}
	}

	job, err := r.jobs.Add(asset, func(ctx context.Context) error {
		cell.mu.Lock()
		stale := !cell.state.EffectiveTime.IsZero() && !effective.After(cell.state.EffectiveTime.Time)
		cell.mu.Unlock()
		if stale {
			return nil
		}
		cell.update(state, entry)

		// Pushed updates reach the strategy immediately; polled
		// snapshots are applied in bulk by the batch finalizer.
		if watch {
			if err := r.acct.ApplyPosition(ctx, asset, state); err != nil {
				return err
			}
			cell.MarkRead()
			return r.acct.SyncCash(ctx)
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("could not schedule position apply job for %q: %w", entry.Symbol, err)
	}
	return job, entry.Symbol + "/" + side, nil
}

// closeAbsent schedules mark-closed jobs for every previously tracked
// (symbol, side) pair missing from the latest full snapshot.
func (r *PositionReconciler) closeAbsent(batchTime time.Time, seen map[string]bool) ([]*jobqueue.Job, error) {
	var cells []*Position
	collectf := func(symbol string, p *Position) bool {
		state := p.State()
		if !seen[symbol+"/"+p.Side()] && !state.Closed && !state.EffectiveTime.IsZero() {
			cells = append(cells, p)
		}
		return true
	}
	r.view.longMap.Range(collectf)
	r.view.shortMap.Range(collectf)

	var jobs []*jobqueue.Job
	for _, cell := range cells {
		cell := cell
		asset, ok := r.acct.ResolveSymbol(cell.Symbol())
		if !ok {
			continue
		}
		job, err := r.jobs.Add(asset, func(ctx context.Context) error {
			if cell.markClosed(batchTime) {
				slog.Info("position absent from full snapshot; marked closed", "strategy", r.acct.Name(), "symbol", cell.Symbol(), "side", cell.Side())
				if err := r.acct.ApplyPosition(ctx, asset, cell.State()); err != nil {
					return err
				}
				cell.MarkRead()
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("could not schedule mark-closed job for %q: %w", cell.Symbol(), err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// finalize waits for all of a poll batch's jobs within a bounded timeout
// and then schedules a strategy-wide cash resync. A timeout is logged and
// the partial state is accepted.
func (r *PositionReconciler) finalize(ctx context.Context, batchTime time.Time, scheduled []*jobqueue.Job) error {
	if len(scheduled) > 0 {
		timeout := FinalizeWaitUnit * time.Duration(len(scheduled))
		wctx, wcancel := context.WithTimeout(ctx, timeout)
		err := jobqueue.WaitAll(wctx, scheduled)
		wcancel()
		if err != nil {
			if context.Cause(ctx) != nil {
				return context.Cause(ctx)
			}
			slog.Error("could not finalize position batch; accepting partial state", "strategy", r.acct.Name(), "njobs", len(scheduled), "timeout", timeout, "err", err)
		}
	}

	resync, err := r.jobs.Add(r.acct.Name(), func(ctx context.Context) error {
		return r.acct.SyncCash(ctx)
	})
	if err != nil {
		return fmt.Errorf("could not schedule cash resync job: %w", err)
	}
	wctx, wcancel := context.WithTimeout(ctx, FinalizeWaitUnit)
	defer wcancel()
	if err := resync.Wait(wctx); err != nil {
		if context.Cause(ctx) != nil {
			return context.Cause(ctx)
		}
		slog.Error("could not complete cash resync in time", "strategy", r.acct.Name(), "err", err)
	}
	return nil
}
