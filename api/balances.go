// Copyright (c) 2025 BVK Chaitanya

package api

import (
	"time"

	"github.com/shopspring/decimal"
)

const BalancesPath = "/syncbot/balances"

type BalancesRequest struct {
	// ExchangeName, when non-empty, limits the response to one exchange.
	ExchangeName string
}

type BalancesResponseItem struct {
	ExchangeName string

	Symbol string

	Total decimal.Decimal
	Free  decimal.Decimal
	Used  decimal.Decimal

	UpdateTime time.Time
}

type BalancesResponse struct {
	Balances []*BalancesResponseItem
}
