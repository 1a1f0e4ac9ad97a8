// Copyright (c) 2025 BVK Chaitanya

// Package exchange defines the boundary types between the exchange-specific
// adapters and the state synchronization core. Adapters translate their
// native REST and websocket payloads into these types; everything above this
// package is exchange agnostic.
package exchange

import (
	"context"
	"io"

	"github.com/shopspring/decimal"
)

// Position side values.
const (
	SideLong  = "long"
	SideShort = "short"
)

// Margin mode values.
const (
	MarginCross    = "cross"
	MarginIsolated = "isolated"
)

// Event is implemented by all account state payloads coming out of an
// adapter. EventName identifies the payload kind; consumers skip events
// whose name they don't recognize.
type Event interface {
	EventName() string
}

// BalanceEntry holds one currency's funds as reported by the exchange.
// Free or Used may be zero when the exchange doesn't report them.
type BalanceEntry struct {
	Symbol string

	Total decimal.Decimal
	Free  decimal.Decimal
	Used  decimal.Decimal
}

// BalanceEvent is a point-in-time snapshot of account balances. Snapshots
// are authoritative for the currencies they name; currencies absent from a
// snapshot are unchanged.
type BalanceEvent struct {
	ServerTime RemoteTime

	Balances []*BalanceEntry
}

func (v *BalanceEvent) EventName() string {
	return "balance"
}

// PositionEntry holds one market's derivative position as reported by the
// exchange. Contracts is always non-negative; Side carries the direction.
type PositionEntry struct {
	Symbol string

	// Side is "long" or "short", or empty when the exchange did not
	// report a direction.
	Side string

	Contracts  decimal.Decimal
	EntryPrice decimal.Decimal

	Leverage      decimal.Decimal
	Liquidation   decimal.Decimal
	UnrealizedPNL decimal.Decimal

	MarginMode string

	// UpdateTime is the position's own modification timestamp, which may
	// be older than the event's ServerTime.
	UpdateTime RemoteTime
}

// PositionEvent carries one or more position updates. Complete is true when
// the event is a full account snapshot, in which case markets absent from
// the event hold no open position.
type PositionEvent struct {
	ServerTime RemoteTime

	Positions []*PositionEntry

	Complete bool
}

func (v *PositionEvent) EventName() string {
	return "position"
}

// Adapter is the per-exchange account access point. GetBalances and
// GetPositions fetch full snapshots over REST; the update channels carry
// pushed events from the exchange's websocket feed. Adapters that cannot
// stream a concern return a nil channel, in which case callers must poll.
type Adapter interface {
	io.Closer

	ExchangeName() string

	GetBalances(ctx context.Context) (*BalanceEvent, error)
	GetPositions(ctx context.Context) (*PositionEvent, error)

	BalanceUpdatesCh() (ch <-chan *BalanceEvent, stopf func())
	PositionUpdatesCh() (ch <-chan *PositionEvent, stopf func())
}
