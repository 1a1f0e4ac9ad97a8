// Copyright (c) 2025 BVK Chaitanya

package api

import (
	"time"

	"github.com/shopspring/decimal"
)

const StatusPath = "/syncbot/status"

type StatusRequest struct {
}

// StatusWatcher reports one account watcher's runtime state.
type StatusWatcher struct {
	Name string

	// Mode is "push" or "poll".
	Mode string

	Running bool

	LastProcessed time.Time
}

// StatusStrategy reports one running strategy's accounting summary.
type StatusStrategy struct {
	UID string

	ProductID string

	ExchangeName string

	CashBalance decimal.Decimal

	AssetSize decimal.Decimal

	PositionSide string

	PositionContracts decimal.Decimal

	NumOpenOrders int

	Watchers []*StatusWatcher
}

type StatusResponse struct {
	Uptime time.Duration

	Strategies []*StatusStrategy
}
