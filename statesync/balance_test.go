// Copyright (c) 2025 BVK Chaitanya

package statesync

import (
	"context"
	"testing"
	"time"

	"github.com/bvk/syncbot/exchange"
	"github.com/bvk/syncbot/jobqueue"
	"github.com/shopspring/decimal"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestFreeBalanceFallback(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	acct.nonCashValue = d(30)
	jobs := jobqueue.New()

	r := NewBalanceReconciler(view, acct, jobs)
	ev := &exchange.BalanceEvent{
		Balances: []*exchange.BalanceEntry{
			{Symbol: "USDT", Total: d(100), Free: decimal.Zero},
		},
	}
	if err := r.Reconcile(ctx, time.Now(), ev, false); err != nil {
		t.Fatal(err)
	}
	jobs.Close()

	b := view.Balance("USDT")
	if b == nil {
		t.Fatal("wanted a balance cell for USDT")
	}
	if free := b.State().Free; !free.Equal(d(70)) {
		t.Fatalf("wanted fallback free balance 70, got %s", free)
	}

	applied := acct.appliedBalances()
	if len(applied) != 1 {
		t.Fatalf("wanted 1 applied balance, got %d", len(applied))
	}
	if !applied[0].Free.Equal(d(70)) {
		t.Fatalf("wanted applied free 70, got %s", applied[0].Free)
	}
}

func TestFreeBalanceFallbackNegative(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	acct.nonCashValue = d(150)
	jobs := jobqueue.New()
	defer jobs.Close()

	r := NewBalanceReconciler(view, acct, jobs)
	ev := &exchange.BalanceEvent{
		Balances: []*exchange.BalanceEntry{
			{Symbol: "USDT", Total: d(100)},
		},
	}
	if err := r.Reconcile(ctx, time.Now(), ev, false); err != nil {
		t.Fatal(err)
	}
	if free := view.Balance("USDT").State().Free; !free.IsZero() {
		t.Fatalf("wanted free balance clamped to zero, got %s", free)
	}
}

func TestUsedBalanceRecompute(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	acct.increaseValue = d(50) // one open increase order, 10 @ price 5
	acct.reduceSizes["BTC"] = d(3)
	jobs := jobqueue.New()

	r := NewBalanceReconciler(view, acct, jobs)
	ev := &exchange.BalanceEvent{
		Balances: []*exchange.BalanceEntry{
			{Symbol: "USDT", Total: d(100), Free: d(100)},
			{Symbol: "BTC", Total: d(5), Free: d(5)},
		},
	}
	if err := r.Reconcile(ctx, time.Now(), ev, false); err != nil {
		t.Fatal(err)
	}
	jobs.Close()

	if used := view.Balance("USDT").State().Used; !used.Equal(d(50)) {
		t.Fatalf("wanted recomputed quote used 50, got %s", used)
	}
	if used := view.Balance("BTC").State().Used; !used.Equal(d(3)) {
		t.Fatalf("wanted recomputed asset used 3, got %s", used)
	}
}

func TestUsedBalanceExchangeValueWins(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	acct.increaseValue = d(50)
	jobs := jobqueue.New()
	defer jobs.Close()

	r := NewBalanceReconciler(view, acct, jobs)
	ev := &exchange.BalanceEvent{
		Balances: []*exchange.BalanceEntry{
			{Symbol: "USDT", Total: d(100), Free: d(80), Used: d(20)},
		},
	}
	if err := r.Reconcile(ctx, time.Now(), ev, false); err != nil {
		t.Fatal(err)
	}
	if used := view.Balance("USDT").State().Used; !used.Equal(d(20)) {
		t.Fatalf("wanted exchange-reported used 20, got %s", used)
	}
}

func TestBalanceMonotonicity(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()

	r := NewBalanceReconciler(view, acct, jobs)

	t2 := time.Now()
	t1 := t2.Add(-time.Minute)

	newer := &exchange.BalanceEvent{
		ServerTime: exchange.RemoteTime{Time: t2},
		Balances:   []*exchange.BalanceEntry{{Symbol: "USDT", Total: d(200), Free: d(200)}},
	}
	if err := r.Reconcile(ctx, t2, newer, false); err != nil {
		t.Fatal(err)
	}

	// An older snapshot arriving late must be rejected.
	older := &exchange.BalanceEvent{
		ServerTime: exchange.RemoteTime{Time: t1},
		Balances:   []*exchange.BalanceEntry{{Symbol: "USDT", Total: d(100), Free: d(100)}},
	}
	if err := r.Reconcile(ctx, t1, older, false); err != nil {
		t.Fatal(err)
	}
	jobs.Close()

	if total := view.Balance("USDT").State().Total; !total.Equal(d(200)) {
		t.Fatalf("wanted newer total 200 to survive, got %s", total)
	}
	if applied := acct.appliedBalances(); len(applied) != 1 {
		t.Fatalf("wanted 1 applied balance, got %d", len(applied))
	}
}

func TestBalanceUpdatesTopic(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()
	defer jobs.Close()

	receiver, err := view.BalanceUpdates()
	if err != nil {
		t.Fatal(err)
	}
	defer receiver.Close()

	r := NewBalanceReconciler(view, acct, jobs)
	ev := &exchange.BalanceEvent{
		Balances: []*exchange.BalanceEntry{{Symbol: "USDT", Total: d(5), Free: d(5)}},
	}
	if err := r.Reconcile(ctx, time.Now(), ev, true); err != nil {
		t.Fatal(err)
	}

	update, err := receiver.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if update.Symbol != "USDT" || !update.Total.Equal(d(5)) {
		t.Fatalf("wanted USDT update, got %v", update)
	}
}
