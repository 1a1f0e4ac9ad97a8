// Copyright (c) 2025 BVK Chaitanya

package statesync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bvk/syncbot/exchange"
	"github.com/bvk/syncbot/jobqueue"
	"github.com/bvk/syncbot/ringbuf"
	"github.com/shopspring/decimal"
)

func balanceEvent(at time.Time) *exchange.BalanceEvent {
	return &exchange.BalanceEvent{
		ServerTime: exchange.RemoteTime{Time: at},
		Balances: []*exchange.BalanceEntry{
			{Symbol: "USDT", Total: decimal.NewFromInt(100), Free: decimal.NewFromInt(100)},
		},
	}
}

func newTestWatcher(t *testing.T, fetchf func(ctx context.Context) (exchange.Event, error), subscribef func() (<-chan exchange.Event, func()), opts *Options) (*Watcher, *fakeAccounting, *jobqueue.Queue) {
	t.Helper()

	view := NewView("coinex")
	t.Cleanup(func() { view.Close() })
	acct := newFakeAccounting()
	jobs := jobqueue.New()
	t.Cleanup(jobs.Close)

	recon := NewBalanceReconciler(view, acct, jobs)
	w, err := NewWatcher("coinex-balance", recon, fetchf, subscribef, opts)
	if err != nil {
		t.Fatal(err)
	}
	return w, acct, jobs
}

func TestWatcherProcessIdempotency(t *testing.T) {
	ctx := context.Background()

	fetchf := func(ctx context.Context) (exchange.Event, error) {
		return balanceEvent(time.Now()), nil
	}
	w, acct, jobs := newTestWatcher(t, fetchf, nil, nil)

	now := time.Now()
	sample := ringbuf.Sample[exchange.Event]{At: now, Seq: 1, Value: balanceEvent(now)}

	// Replaying the identical (date, count) sample produces exactly one
	// applied update.
	if err := w.process(ctx, sample); err != nil {
		t.Fatal(err)
	}
	if err := w.process(ctx, sample); err != nil {
		t.Fatal(err)
	}
	jobs.Close()

	if n := len(acct.appliedBalances()); n != 1 {
		t.Fatalf("wanted 1 applied update from a replayed sample, got %d", n)
	}

	state := w.CheckpointState("coinex")
	if state.NumEvents != 1 {
		t.Fatalf("wanted 1 processed event, got %d", state.NumEvents)
	}
}

func TestWatcherSkipsUnexpectedEventTag(t *testing.T) {
	ctx := context.Background()

	fetchf := func(ctx context.Context) (exchange.Event, error) {
		return balanceEvent(time.Now()), nil
	}
	w, acct, _ := newTestWatcher(t, fetchf, nil, nil)

	now := time.Now()
	wrong := ringbuf.Sample[exchange.Event]{At: now, Seq: 1, Value: &exchange.PositionEvent{}}
	if err := w.process(ctx, wrong); err != nil {
		t.Fatal(err)
	}

	// The watermark advances on skipped samples so the sample is never
	// reprocessed.
	state := w.CheckpointState("coinex")
	if state.NumSkipped != 1 || state.NumEvents != 0 {
		t.Fatalf("wanted 1 skipped and 0 processed, got %d and %d", state.NumSkipped, state.NumEvents)
	}
	if state.LastEventSeq != 1 {
		t.Fatalf("wanted watermark advanced to seq 1, got %d", state.LastEventSeq)
	}
	if n := len(acct.appliedBalances()); n != 0 {
		t.Fatalf("wanted no applied updates, got %d", n)
	}
}

func TestWatcherPollMode(t *testing.T) {
	var nfetches atomic.Int32
	fetchf := func(ctx context.Context) (exchange.Event, error) {
		nfetches.Add(1)
		return balanceEvent(time.Now()), nil
	}
	w, _, _ := newTestWatcher(t, fetchf, nil, &Options{PollInterval: time.Millisecond})

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if mode := w.Mode(); mode != "poll" {
		t.Fatalf("wanted poll mode, got %s", mode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.WaitReady(ctx); err != nil {
		t.Fatal(err)
	}
	if n := nfetches.Load(); n < 1 {
		t.Fatalf("wanted at least 1 fetch, got %d", n)
	}
}

func TestWatcherPushMode(t *testing.T) {
	fetchf := func(ctx context.Context) (exchange.Event, error) {
		return balanceEvent(time.Now()), nil
	}
	pushc := make(chan exchange.Event)
	subscribef := func() (<-chan exchange.Event, func()) {
		return pushc, func() {}
	}
	w, _, _ := newTestWatcher(t, fetchf, subscribef, nil)

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if mode := w.Mode(); mode != "push" {
		t.Fatalf("wanted push mode, got %s", mode)
	}

	pushc <- balanceEvent(time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.WaitReady(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherStartIdempotent(t *testing.T) {
	fetchf := func(ctx context.Context) (exchange.Event, error) {
		return balanceEvent(time.Now()), nil
	}
	w, _, _ := newTestWatcher(t, fetchf, nil, &Options{PollInterval: time.Millisecond})

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if !w.IsRunning() {
		t.Fatal("wanted running watcher")
	}

	w.Stop()
	w.Stop()
	if w.IsRunning() {
		t.Fatal("wanted stopped watcher")
	}

	// Stopped watchers can be restarted.
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Stop()
}

func TestStallRecovery(t *testing.T) {
	clock := newFakeClock(time.Now())

	var nfetches atomic.Int32
	fetchf := func(ctx context.Context) (exchange.Event, error) {
		nfetches.Add(1)
		return balanceEvent(clock.Now()), nil
	}

	// A push subscription that never delivers anything simulates a
	// silently dead stream.
	pushc := make(chan exchange.Event)
	subscribef := func() (<-chan exchange.Event, func()) {
		return pushc, func() {}
	}

	opts := &Options{
		StallTimeout: time.Minute,
		Clock:        clock,
	}
	w, _, _ := newTestWatcher(t, fetchf, subscribef, opts)

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Move past the stall threshold without any wall-clock waiting; the
	// watchdog must force a recovery fetch.
	clock.advance(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.WaitReady(ctx); err != nil {
		t.Fatal(err)
	}
	if n := nfetches.Load(); n < 1 {
		t.Fatalf("wanted a forced recovery fetch, got %d", n)
	}
}
