// Copyright (c) 2025 BVK Chaitanya

package statesync

import (
	"context"
	"sync"
	"time"

	"github.com/bvk/syncbot/exchange"
	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/syncmap"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

// Balance is one currency's reconciled funds cell. Cells are created on
// first observation and mutated in place thereafter, so references handed
// out to readers stay valid across updates.
type Balance struct {
	symbol string

	mu sync.Mutex

	total decimal.Decimal
	free  decimal.Decimal
	used  decimal.Decimal

	updateTime time.Time
}

func (b *Balance) Symbol() string {
	return b.symbol
}

// State returns a copy of the cell's current values.
func (b *Balance) State() *gobs.BalanceState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &gobs.BalanceState{
		Symbol:     b.symbol,
		Total:      b.total,
		Free:       b.free,
		Used:       b.used,
		UpdateTime: gobs.RemoteTime{Time: b.updateTime},
	}
}

// Position is one (symbol, side) reconciled position cell. The notification
// topic's identity is stable across updates, so waiters subscribed before an
// update are still notified by it.
type Position struct {
	symbol string
	side   string

	updates *topic.Topic[*gobs.PositionState]

	mu sync.Mutex

	state gobs.PositionState

	// read is false till the strategy consumes the latest update.
	read bool

	// lastPayload remembers the raw adapter payload last folded into this
	// cell. Exchanges replay position lists; identical payload pointers
	// are dropped without comparing fields.
	lastPayload *exchange.PositionEntry
}

func newPosition(symbol, side string) *Position {
	return &Position{
		symbol:  symbol,
		side:    side,
		updates: topic.New[*gobs.PositionState](),
	}
}

func (p *Position) Symbol() string { return p.symbol }
func (p *Position) Side() string   { return p.side }

// State returns a copy of the cell's current values.
func (p *Position) State() *gobs.PositionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.state
	return &state
}

// MarkRead marks the cell's latest update as consumed by the strategy.
func (p *Position) MarkRead() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read = true
}

// IsRead reports whether the cell's latest update was consumed by the
// strategy.
func (p *Position) IsRead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read
}

// Updates subscribes to this cell's update notifications. The receiver must
// be closed by the caller.
func (p *Position) Updates() (*topic.Receiver[*gobs.PositionState], error) {
	return topic.Subscribe(p.updates, 1, false /* includeRecent */)
}

// Wait blocks till the next update notification on this cell.
func (p *Position) Wait(ctx context.Context) (*gobs.PositionState, error) {
	r, err := p.Updates()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	ch, err := topic.ReceiveCh(r)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case v := <-ch:
		return v, nil
	}
}

// update replaces the cell's replaceable fields, clears the read flag and
// notifies waiters. Callers must go through the job queue.
func (p *Position) update(state *gobs.PositionState, payload *exchange.PositionEntry) {
	p.mu.Lock()
	p.state = *state
	p.read = false
	if payload != nil {
		p.lastPayload = payload
	}
	p.mu.Unlock()

	v := *state
	p.updates.Send(&v)
}

// markClosed flags the cell closed, keeping the last known fields, and
// notifies waiters. Returns false if the cell was already closed.
func (p *Position) markClosed(at time.Time) bool {
	p.mu.Lock()
	if p.state.Closed {
		p.mu.Unlock()
		return false
	}
	p.state.Closed = true
	p.state.Contracts = decimal.Zero
	p.state.EffectiveTime = gobs.RemoteTime{Time: at}
	p.read = false
	v := p.state
	p.mu.Unlock()

	p.updates.Send(&v)
	return true
}

// View is the reconciled, externally readable account state of one
// exchange: a balance cell per currency and a position cell per
// (symbol, side).
type View struct {
	exchangeName string

	balanceMap syncmap.Map[string, *Balance]

	longMap  syncmap.Map[string, *Position]
	shortMap syncmap.Map[string, *Position]

	balanceUpdates *topic.Topic[*gobs.BalanceState]
}

func NewView(exchangeName string) *View {
	return &View{
		exchangeName:   exchangeName,
		balanceUpdates: topic.New[*gobs.BalanceState](),
	}
}

func (v *View) ExchangeName() string {
	return v.exchangeName
}

func (v *View) Close() error {
	v.balanceUpdates.Close()
	closef := func(symbol string, p *Position) bool {
		p.updates.Close()
		return true
	}
	v.longMap.Range(closef)
	v.shortMap.Range(closef)
	return nil
}

// Balance returns the currency's cell or nil when never observed.
func (v *View) Balance(symbol string) *Balance {
	b, _ := v.balanceMap.Load(symbol)
	return b
}

// BalanceUpdates subscribes to reconciled balance changes across all
// currencies of this view.
func (v *View) BalanceUpdates() (*topic.Receiver[*gobs.BalanceState], error) {
	return topic.Subscribe(v.balanceUpdates, 16, false /* includeRecent */)
}

// updateBalance folds new values into the currency's cell, creating it on
// first observation. Stale values, with a timestamp at or before the cell's
// current one, are rejected.
func (v *View) updateBalance(symbol string, at time.Time, total, free, used decimal.Decimal) (*gobs.BalanceState, bool) {
	b, ok := v.balanceMap.Load(symbol)
	if !ok {
		b, _ = v.balanceMap.LoadOrStore(symbol, &Balance{symbol: symbol})
	}

	b.mu.Lock()
	if !b.updateTime.IsZero() && !at.After(b.updateTime) {
		b.mu.Unlock()
		return nil, false
	}
	b.total, b.free, b.used = total, free, used
	b.updateTime = at
	state := &gobs.BalanceState{
		Symbol:     symbol,
		Total:      total,
		Free:       free,
		Used:       used,
		UpdateTime: gobs.RemoteTime{Time: at},
	}
	b.mu.Unlock()

	v.balanceUpdates.Send(state)
	return state, true
}

func (v *View) sideMap(side string) *syncmap.Map[string, *Position] {
	if side == exchange.SideShort {
		return &v.shortMap
	}
	return &v.longMap
}

// Position returns the (symbol, side) cell or nil when never observed.
func (v *View) Position(symbol, side string) *Position {
	p, _ := v.sideMap(side).Load(symbol)
	return p
}

// position returns the (symbol, side) cell, creating an empty one on first
// sighting.
func (v *View) position(symbol, side string) *Position {
	m := v.sideMap(side)
	p, ok := m.Load(symbol)
	if !ok {
		p, _ = m.LoadOrStore(symbol, newPosition(symbol, side))
	}
	return p
}

// lastUpdatedSide returns the side of the symbol's most recently updated
// cell, defaulting to long when the symbol was never seen on either side.
func (v *View) lastUpdatedSide(symbol string) string {
	long, _ := v.longMap.Load(symbol)
	short, _ := v.shortMap.Load(symbol)
	if long == nil && short == nil {
		return exchange.SideLong
	}
	if long == nil {
		return exchange.SideShort
	}
	if short == nil {
		return exchange.SideLong
	}
	lt := long.State().EffectiveTime.Time
	st := short.State().EffectiveTime.Time
	if st.After(lt) {
		return exchange.SideShort
	}
	return exchange.SideLong
}

// BalanceSnapshot exports the balance cells as a persistable checkpoint.
func (v *View) BalanceSnapshot() *gobs.BalanceSnapshot {
	snap := &gobs.BalanceSnapshot{
		ExchangeName: v.exchangeName,
		Balances:     make(map[string]*gobs.BalanceState),
		SyncTime:     gobs.RemoteTime{Time: time.Now()},
	}
	v.balanceMap.Range(func(symbol string, b *Balance) bool {
		snap.Balances[symbol] = b.State()
		return true
	})
	return snap
}

// PositionSnapshot exports the position cells as a persistable checkpoint.
// Map keys combine the symbol and side.
func (v *View) PositionSnapshot() *gobs.PositionSnapshot {
	snap := &gobs.PositionSnapshot{
		ExchangeName: v.exchangeName,
		Positions:    make(map[string]*gobs.PositionState),
		SyncTime:     gobs.RemoteTime{Time: time.Now()},
	}
	savef := func(symbol string, p *Position) bool {
		state := p.State()
		snap.Positions[symbol+"/"+p.Side()] = state
		return true
	}
	v.longMap.Range(savef)
	v.shortMap.Range(savef)
	return snap
}

// restore loads previously checkpointed state into empty cells. Cells that
// already hold newer data are left alone.
func (v *View) restore(balances *gobs.BalanceSnapshot, positions *gobs.PositionSnapshot) {
	if balances != nil {
		for symbol, s := range balances.Balances {
			v.updateBalance(symbol, s.UpdateTime.Time, s.Total, s.Free, s.Used)
		}
	}
	if positions != nil {
		for _, s := range positions.Positions {
			p := v.position(s.Symbol, s.Side)
			p.mu.Lock()
			if p.state.EffectiveTime.IsZero() {
				p.state = *s
				p.read = true
			}
			p.mu.Unlock()
		}
	}
}
