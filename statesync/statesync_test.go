// Copyright (c) 2025 BVK Chaitanya

package statesync

import (
	"context"
	"sync"
	"time"

	"github.com/bvk/syncbot/gobs"
	"github.com/shopspring/decimal"
)

// fakeClock drives the stall watchdog without wall-clock waits.
type fakeClock struct {
	mu sync.Mutex

	now time.Time

	tickc chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{
		now:   now,
		tickc: make(chan time.Time),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	return c.tickc
}

// advance moves the clock forward and fires one pending After wait.
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	c.tickc <- now
}

type fakeAccounting struct {
	mu sync.Mutex

	name  string
	quote string

	// assetMap maps exchange market symbols to asset keys.
	assetMap map[string]string

	nonCashValue  decimal.Decimal
	increaseValue decimal.Decimal
	reduceSizes   map[string]decimal.Decimal

	marginMode string

	balances  []*gobs.BalanceState
	positions []*gobs.PositionState

	numCashSyncs int
}

func newFakeAccounting() *fakeAccounting {
	return &fakeAccounting{
		name:  "mombot",
		quote: "USDT",
		assetMap: map[string]string{
			"BTCUSDT": "BTC",
			"ETHUSDT": "ETH",
		},
		reduceSizes: make(map[string]decimal.Decimal),
	}
}

func (a *fakeAccounting) Name() string {
	return a.name
}

func (a *fakeAccounting) QuoteCurrency() string {
	return a.quote
}

func (a *fakeAccounting) HasAsset(currency string) bool {
	for _, asset := range a.assetMap {
		if asset == currency {
			return true
		}
	}
	return false
}

func (a *fakeAccounting) ResolveSymbol(symbol string) (string, bool) {
	asset, ok := a.assetMap[symbol]
	return asset, ok
}

func (a *fakeAccounting) NonCashValue() decimal.Decimal {
	return a.nonCashValue
}

func (a *fakeAccounting) OpenIncreaseValue() decimal.Decimal {
	return a.increaseValue
}

func (a *fakeAccounting) OpenReduceSize(asset string) decimal.Decimal {
	return a.reduceSizes[asset]
}

func (a *fakeAccounting) MarginMode() string {
	return a.marginMode
}

func (a *fakeAccounting) ApplyBalance(ctx context.Context, state *gobs.BalanceState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances = append(a.balances, state)
	return nil
}

func (a *fakeAccounting) ApplyPosition(ctx context.Context, asset string, state *gobs.PositionState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions = append(a.positions, state)
	return nil
}

func (a *fakeAccounting) SyncCash(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.numCashSyncs++
	return nil
}

func (a *fakeAccounting) appliedBalances() []*gobs.BalanceState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*gobs.BalanceState{}, a.balances...)
}

func (a *fakeAccounting) appliedPositions() []*gobs.PositionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*gobs.PositionState{}, a.positions...)
}

func (a *fakeAccounting) cashSyncs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.numCashSyncs
}
