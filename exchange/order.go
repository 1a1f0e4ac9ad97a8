// Copyright (c) 2025 BVK Chaitanya

package exchange

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderID string

// Order side values.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order represents a limit order as tracked by a strategy. Size is the
// requested quantity in the base asset; FilledSize grows towards Size as
// the order executes.
type Order struct {
	OrderID OrderID

	ClientOrderID string

	Symbol string
	Side   string

	Size  decimal.Decimal
	Price decimal.Decimal

	FilledSize  decimal.Decimal
	FilledPrice decimal.Decimal
	Fee         decimal.Decimal

	CreateTime RemoteTime

	Status string
	Done   bool
}

// UnfilledSize returns the base quantity still resting on the book.
func (v *Order) UnfilledSize() decimal.Decimal {
	size := v.Size.Sub(v.FilledSize)
	if size.IsNegative() {
		return decimal.Zero
	}
	return size
}

// UnfilledValue returns the quote amount still held against the order.
func (v *Order) UnfilledValue() decimal.Decimal {
	return v.UnfilledSize().Mul(v.Price)
}

func (v *Order) String() string {
	return fmt.Sprintf("{ID %s ClientID %s %s %s Size %s Price %s Filled %s Status %s CreatedAt %s}",
		v.OrderID, v.ClientOrderID, v.Symbol, v.Side, v.Size.StringFixed(8), v.Price.StringFixed(8), v.FilledSize.StringFixed(8), v.Status, v.CreateTime.Format(time.DateTime))
}
