// Copyright (c) 2025 BVK Chaitanya

package gobs

import (
	"github.com/shopspring/decimal"
)

// BalanceState holds one currency's reconciled funds view.
type BalanceState struct {
	Symbol string

	Total decimal.Decimal
	Free  decimal.Decimal
	Used  decimal.Decimal

	UpdateTime RemoteTime
}

// BalanceSnapshot is the persisted per-exchange balances checkpoint.
type BalanceSnapshot struct {
	ExchangeName string

	Balances map[string]*BalanceState

	SyncTime RemoteTime
}

// PositionState holds one market's reconciled derivative position view.
// Contracts is non-negative; Closed positions keep their last known fields
// for inspection.
type PositionState struct {
	Symbol string
	Side   string

	Contracts  decimal.Decimal
	EntryPrice decimal.Decimal

	Leverage      decimal.Decimal
	Liquidation   decimal.Decimal
	UnrealizedPNL decimal.Decimal

	MarginMode string

	Closed bool

	// EffectiveTime is the timestamp the position data is valid for, which
	// is the position's own update time when the exchange reports one and
	// the event's server time otherwise.
	EffectiveTime RemoteTime
}

// PositionSnapshot is the persisted per-exchange positions checkpoint.
type PositionSnapshot struct {
	ExchangeName string

	Positions map[string]*PositionState

	SyncTime RemoteTime
}
