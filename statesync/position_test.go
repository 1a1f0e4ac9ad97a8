// Copyright (c) 2025 BVK Chaitanya

package statesync

import (
	"context"
	"testing"
	"time"

	"github.com/bvk/syncbot/exchange"
	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/jobqueue"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

func pollEvent(at time.Time, entries ...*exchange.PositionEntry) *exchange.PositionEvent {
	return &exchange.PositionEvent{
		ServerTime: exchange.RemoteTime{Time: at},
		Positions:  entries,
		Complete:   true,
	}
}

func TestPositionApply(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()
	defer jobs.Close()

	r := NewPositionReconciler(view, acct, jobs)

	now := time.Now()
	entry := &exchange.PositionEntry{
		Symbol:     "BTCUSDT",
		Side:       exchange.SideLong,
		Contracts:  decimal.NewFromInt(2),
		EntryPrice: decimal.NewFromInt(50000),
		MarginMode: exchange.MarginCross,
	}
	if err := r.Reconcile(ctx, now, pollEvent(now, entry), false); err != nil {
		t.Fatal(err)
	}

	cell := view.Position("BTCUSDT", exchange.SideLong)
	if cell == nil {
		t.Fatal("wanted a position cell for BTCUSDT long")
	}
	state := cell.State()
	if !state.Contracts.Equal(decimal.NewFromInt(2)) || state.Closed {
		t.Fatalf("wanted open position with 2 contracts, got %+v", state)
	}

	// Poll batches reach the strategy through the batch-end cash resync,
	// not through per-position callbacks.
	if n := len(acct.appliedPositions()); n != 0 {
		t.Fatalf("wanted no direct position callbacks in poll mode, got %d", n)
	}
	if n := acct.cashSyncs(); n != 1 {
		t.Fatalf("wanted 1 cash resync, got %d", n)
	}
}

func TestPositionPushApply(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()

	r := NewPositionReconciler(view, acct, jobs)

	now := time.Now()
	ev := &exchange.PositionEvent{
		ServerTime: exchange.RemoteTime{Time: now},
		Positions: []*exchange.PositionEntry{
			{Symbol: "BTCUSDT", Side: exchange.SideLong, Contracts: decimal.NewFromInt(1)},
		},
	}
	if err := r.Reconcile(ctx, now, ev, true); err != nil {
		t.Fatal(err)
	}
	jobs.Close()

	applied := acct.appliedPositions()
	if len(applied) != 1 {
		t.Fatalf("wanted 1 pushed position callback, got %d", len(applied))
	}
	if applied[0].Symbol != "BTCUSDT" || applied[0].Closed {
		t.Fatalf("wanted open BTCUSDT position, got %+v", applied[0])
	}
	if n := acct.cashSyncs(); n != 1 {
		t.Fatalf("wanted 1 cash sync after pushed update, got %d", n)
	}
}

func TestPositionMonotonicity(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()
	defer jobs.Close()

	r := NewPositionReconciler(view, acct, jobs)

	t2 := time.Now()
	t1 := t2.Add(-time.Minute)

	newer := &exchange.PositionEntry{
		Symbol:     "BTCUSDT",
		Side:       exchange.SideLong,
		Contracts:  decimal.NewFromInt(5),
		UpdateTime: exchange.RemoteTime{Time: t2},
	}
	if err := r.Reconcile(ctx, t2, pollEvent(t2, newer), false); err != nil {
		t.Fatal(err)
	}

	// An older update arriving later must be rejected.
	older := &exchange.PositionEntry{
		Symbol:     "BTCUSDT",
		Side:       exchange.SideLong,
		Contracts:  decimal.NewFromInt(1),
		UpdateTime: exchange.RemoteTime{Time: t1},
	}
	if err := r.Reconcile(ctx, t1, pollEvent(t1, older), false); err != nil {
		t.Fatal(err)
	}

	state := view.Position("BTCUSDT", exchange.SideLong).State()
	if !state.Contracts.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("wanted newer position with 5 contracts to survive, got %s", state.Contracts)
	}
}

func TestPositionDuplicatePayload(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()
	defer jobs.Close()

	r := NewPositionReconciler(view, acct, jobs)

	now := time.Now()
	entry := &exchange.PositionEntry{
		Symbol:    "BTCUSDT",
		Side:      exchange.SideLong,
		Contracts: decimal.NewFromInt(1),
	}
	if err := r.Reconcile(ctx, now, pollEvent(now, entry), false); err != nil {
		t.Fatal(err)
	}
	before := acct.cashSyncs()

	// The same payload pointer replayed in a later batch is dropped.
	later := now.Add(time.Second)
	if err := r.Reconcile(ctx, later, pollEvent(later, entry), false); err != nil {
		t.Fatal(err)
	}

	state := view.Position("BTCUSDT", exchange.SideLong).State()
	if !state.EffectiveTime.Equal(now) {
		t.Fatalf("wanted effective time unchanged by replay, got %v", state.EffectiveTime)
	}
	if n := acct.cashSyncs(); n != before+1 {
		t.Fatalf("wanted only the batch-end resync, got %d syncs", n-before)
	}
}

func TestPositionClosedInference(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()
	defer jobs.Close()

	r := NewPositionReconciler(view, acct, jobs)

	t1 := time.Now()
	entry := &exchange.PositionEntry{
		Symbol:    "BTCUSDT",
		Side:      exchange.SideLong,
		Contracts: decimal.NewFromInt(1),
	}
	if err := r.Reconcile(ctx, t1, pollEvent(t1, entry), false); err != nil {
		t.Fatal(err)
	}

	// The position disappears from the next full snapshot.
	t2 := t1.Add(time.Second)
	if err := r.Reconcile(ctx, t2, pollEvent(t2), false); err != nil {
		t.Fatal(err)
	}

	state := view.Position("BTCUSDT", exchange.SideLong).State()
	if !state.Closed {
		t.Fatal("wanted position inferred closed after absence from full snapshot")
	}
	if !state.Contracts.IsZero() {
		t.Fatalf("wanted zero contracts on closed position, got %s", state.Contracts)
	}

	closed := 0
	for _, p := range acct.appliedPositions() {
		if p.Symbol == "BTCUSDT" && p.Closed {
			closed++
		}
	}
	if closed != 1 {
		t.Fatalf("wanted exactly 1 closed callback, got %d", closed)
	}

	// A third empty snapshot must not close it again.
	t3 := t2.Add(time.Second)
	if err := r.Reconcile(ctx, t3, pollEvent(t3), false); err != nil {
		t.Fatal(err)
	}
	closed = 0
	for _, p := range acct.appliedPositions() {
		if p.Symbol == "BTCUSDT" && p.Closed {
			closed++
		}
	}
	if closed != 1 {
		t.Fatalf("wanted closed inference exactly once, got %d callbacks", closed)
	}
}

func TestPositionPushNoClosedInference(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()
	defer jobs.Close()

	r := NewPositionReconciler(view, acct, jobs)

	t1 := time.Now()
	ev := &exchange.PositionEvent{
		ServerTime: exchange.RemoteTime{Time: t1},
		Positions: []*exchange.PositionEntry{
			{Symbol: "BTCUSDT", Side: exchange.SideLong, Contracts: decimal.NewFromInt(1)},
		},
	}
	if err := r.Reconcile(ctx, t1, ev, true); err != nil {
		t.Fatal(err)
	}

	// Pushed events are incremental; absence never implies closed.
	t2 := t1.Add(time.Second)
	other := &exchange.PositionEvent{
		ServerTime: exchange.RemoteTime{Time: t2},
		Positions: []*exchange.PositionEntry{
			{Symbol: "ETHUSDT", Side: exchange.SideLong, Contracts: decimal.NewFromInt(3)},
		},
	}
	if err := r.Reconcile(ctx, t2, other, true); err != nil {
		t.Fatal(err)
	}
	jobs.Close()

	if state := view.Position("BTCUSDT", exchange.SideLong).State(); state.Closed {
		t.Fatal("wanted BTCUSDT to stay open after unrelated pushed update")
	}
}

func TestPositionSideDefaulting(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()
	defer jobs.Close()

	r := NewPositionReconciler(view, acct, jobs)

	t1 := time.Now()
	short := &exchange.PositionEntry{
		Symbol:    "BTCUSDT",
		Side:      exchange.SideShort,
		Contracts: decimal.NewFromInt(1),
	}
	if err := r.Reconcile(ctx, t1, pollEvent(t1, short), false); err != nil {
		t.Fatal(err)
	}

	// No side reported; defaults to the most recently updated side.
	t2 := t1.Add(time.Second)
	unsided := &exchange.PositionEntry{
		Symbol:    "BTCUSDT",
		Contracts: decimal.NewFromInt(2),
	}
	if err := r.Reconcile(ctx, t2, pollEvent(t2, unsided), false); err != nil {
		t.Fatal(err)
	}

	state := view.Position("BTCUSDT", exchange.SideShort).State()
	if !state.Contracts.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("wanted update applied to short side, got %s contracts", state.Contracts)
	}
}

func TestIsolatedMarginSideFlip(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	acct.marginMode = exchange.MarginIsolated
	jobs := jobqueue.New()
	defer jobs.Close()

	r := NewPositionReconciler(view, acct, jobs)

	t1 := time.Now()
	long := &exchange.PositionEntry{
		Symbol:     "BTCUSDT",
		Side:       exchange.SideLong,
		Contracts:  decimal.NewFromInt(1),
		MarginMode: exchange.MarginIsolated,
	}
	if err := r.Reconcile(ctx, t1, pollEvent(t1, long), false); err != nil {
		t.Fatal(err)
	}

	// The next snapshot reports the opposite side only.
	t2 := t1.Add(time.Second)
	short := &exchange.PositionEntry{
		Symbol:     "BTCUSDT",
		Side:       exchange.SideShort,
		Contracts:  decimal.NewFromInt(2),
		MarginMode: exchange.MarginIsolated,
	}
	if err := r.Reconcile(ctx, t2, pollEvent(t2, short), false); err != nil {
		t.Fatal(err)
	}

	if state := view.Position("BTCUSDT", exchange.SideLong).State(); !state.Closed {
		t.Fatal("wanted long side closed after isolated margin flip")
	}
	if state := view.Position("BTCUSDT", exchange.SideShort).State(); state.Closed || !state.Contracts.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("wanted open short with 2 contracts, got %+v", state)
	}
}

func TestPositionUnresolvedSymbolDropped(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()
	defer jobs.Close()

	r := NewPositionReconciler(view, acct, jobs)

	now := time.Now()
	unknown := &exchange.PositionEntry{
		Symbol:    "DOGEUSDT",
		Side:      exchange.SideLong,
		Contracts: decimal.NewFromInt(1),
	}
	if err := r.Reconcile(ctx, now, pollEvent(now, unknown), false); err != nil {
		t.Fatal(err)
	}
	if cell := view.Position("DOGEUSDT", exchange.SideLong); cell != nil {
		t.Fatal("wanted no cell for an unresolvable symbol")
	}
}

func TestPositionWaitersSurviveUpdates(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()
	defer jobs.Close()

	r := NewPositionReconciler(view, acct, jobs)

	t1 := time.Now()
	first := &exchange.PositionEntry{
		Symbol:     "BTCUSDT",
		Side:       exchange.SideLong,
		Contracts:  decimal.NewFromInt(1),
		UpdateTime: exchange.RemoteTime{Time: t1},
	}
	if err := r.Reconcile(ctx, t1, pollEvent(t1, first), false); err != nil {
		t.Fatal(err)
	}

	cell := view.Position("BTCUSDT", exchange.SideLong)
	if cell == nil {
		t.Fatal("wanted a position cell for BTCUSDT long")
	}

	// A receiver subscribed before the next reconcile pass must be
	// notified by it; the cell's topic identity is stable across updates.
	recv, err := cell.Updates()
	if err != nil {
		t.Fatal(err)
	}
	defer recv.Close()
	ch, err := topic.ReceiveCh(recv)
	if err != nil {
		t.Fatal(err)
	}

	t2 := t1.Add(time.Minute)
	second := &exchange.PositionEntry{
		Symbol:     "BTCUSDT",
		Side:       exchange.SideLong,
		Contracts:  decimal.NewFromInt(7),
		UpdateTime: exchange.RemoteTime{Time: t2},
	}
	if err := r.Reconcile(ctx, t2, pollEvent(t2, second), false); err != nil {
		t.Fatal(err)
	}

	select {
	case state := <-ch:
		if !state.Contracts.Equal(decimal.NewFromInt(7)) || state.Closed {
			t.Fatalf("wanted the updated open position with 7 contracts, got %+v", state)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the position update notification")
	}

	// A waiter blocked on the cell must also wake when the position
	// disappears from a later full snapshot.
	waitc := make(chan *gobs.PositionState, 1)
	go func() {
		state, err := cell.Wait(ctx)
		if err != nil {
			t.Errorf("could not wait on the position cell: %v", err)
		}
		waitc <- state
	}()
	time.Sleep(10 * time.Millisecond)

	t3 := t2.Add(time.Minute)
	if err := r.Reconcile(ctx, t3, pollEvent(t3), false); err != nil {
		t.Fatal(err)
	}

	select {
	case state := <-waitc:
		if state == nil || !state.Closed || !state.Contracts.IsZero() {
			t.Fatalf("wanted a closed flat position, got %+v", state)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the close notification")
	}
}

func TestPositionReadFlag(t *testing.T) {
	ctx := context.Background()
	view := NewView("coinex")
	defer view.Close()
	acct := newFakeAccounting()
	jobs := jobqueue.New()

	r := NewPositionReconciler(view, acct, jobs)

	now := time.Now()
	ev := &exchange.PositionEvent{
		ServerTime: exchange.RemoteTime{Time: now},
		Positions: []*exchange.PositionEntry{
			{Symbol: "BTCUSDT", Side: exchange.SideLong, Contracts: decimal.NewFromInt(1)},
		},
	}
	if err := r.Reconcile(ctx, now, ev, true); err != nil {
		t.Fatal(err)
	}
	jobs.Close()

	// Pushed updates are applied to the strategy inline, so the cell ends
	// up consumed.
	cell := view.Position("BTCUSDT", exchange.SideLong)
	if cell == nil {
		t.Fatal("wanted a position cell for BTCUSDT long")
	}
	if !cell.IsRead() {
		t.Fatal("wanted the pushed update marked read after the strategy callback")
	}
}
