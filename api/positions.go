// Copyright (c) 2025 BVK Chaitanya

package api

import (
	"time"

	"github.com/shopspring/decimal"
)

const PositionsPath = "/syncbot/positions"

type PositionsRequest struct {
	// ExchangeName, when non-empty, limits the response to one exchange.
	ExchangeName string

	// IncludeClosed also returns positions that were closed out but are
	// still retained in the local view.
	IncludeClosed bool
}

type PositionsResponseItem struct {
	ExchangeName string

	Symbol string
	Side   string

	Contracts  decimal.Decimal
	EntryPrice decimal.Decimal

	Leverage      decimal.Decimal
	Liquidation   decimal.Decimal
	UnrealizedPNL decimal.Decimal

	MarginMode string

	Closed bool

	EffectiveTime time.Time
}

type PositionsResponse struct {
	Positions []*PositionsResponseItem
}
