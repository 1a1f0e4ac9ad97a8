// Copyright (c) 2025 BVK Chaitanya

package gobs

import (
	"github.com/shopspring/decimal"
)

type Order struct {
	ServerOrderID string
	ClientOrderID string

	CreateTime RemoteTime

	Side   string
	Status string

	Size  decimal.Decimal
	Price decimal.Decimal

	FilledFee   decimal.Decimal
	FilledSize  decimal.Decimal
	FilledPrice decimal.Decimal

	Done       bool
	DoneReason string
}

// StrategyState is the persisted view of one trading strategy's accounting.
type StrategyState struct {
	UID string

	ExchangeName string
	ProductID    string

	BaseAsset  string
	QuoteAsset string

	// CashBalance is the strategy's own view of its spendable quote funds,
	// kept in sync with the exchange's reconciled balances.
	CashBalance decimal.Decimal

	// AssetSize is the strategy's own view of its base asset holdings.
	AssetSize decimal.Decimal

	OrderMap map[string]*Order

	PositionSide      string
	PositionContracts decimal.Decimal
	MarginMode        string

	// IdgenOffset resumes the deterministic client order id sequence.
	IdgenOffset uint64

	LastSyncTime RemoteTime
}
