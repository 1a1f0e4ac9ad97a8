// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type GenericResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Balance is one currency's funds in the spot account.
type Balance struct {
	Currency  string          `json:"ccy"`
	Available decimal.Decimal `json:"available"`
	Frozen    decimal.Decimal `json:"frozen"`
}

func (v *Balance) Total() decimal.Decimal {
	return v.Available.Add(v.Frozen)
}

type GetBalancesResponse struct {
	GenericResponse
	Data []*Balance `json:"data"`
}

// Position is one market's pending position in the futures account.
type Position struct {
	PositionID int64  `json:"position_id"`
	Market     string `json:"market"`
	MarketType string `json:"market_type"`

	// Side is "long" or "short".
	Side string `json:"side"`

	// MarginMode is "isolated" or "cross".
	MarginMode string `json:"margin_mode"`

	OpenInterest  decimal.Decimal `json:"open_interest"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	UnrealizedPNL decimal.Decimal `json:"unrealized_pnl"`
	LiqPrice      decimal.Decimal `json:"liq_price"`
	Leverage      decimal.Decimal `json:"leverage"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

type Pagination struct {
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

type GetPositionsResponse struct {
	GenericResponse
	Data       []*Position `json:"data"`
	Pagination *Pagination `json:"pagination"`
}

// BalanceUpdate is one entry of a balance.update notice's balance_list.
type BalanceUpdate struct {
	Currency  string          `json:"ccy"`
	Available decimal.Decimal `json:"available"`
	Frozen    decimal.Decimal `json:"frozen"`
	UpdatedAt int64           `json:"updated_at"`
}

func (v *BalanceUpdate) Total() decimal.Decimal {
	return v.Available.Add(v.Frozen)
}

// PositionUpdate is the data of a position.update notice.
type PositionUpdate struct {
	Event    string    `json:"event"`
	Position *Position `json:"position"`
}

type WebsocketRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type WebsocketResponse struct {
	ID      int64           `json:"id"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// WebsocketHeader identifies the kind of an incoming websocket message.
// Responses carry an id and no method, notices carry a method and no id.
type WebsocketHeader struct {
	ID     *int64  `json:"id"`
	Method *string `json:"method"`
	Params *json.RawMessage `json:"params"`
}

func (v *WebsocketHeader) IsRequest() bool {
	return v.ID != nil && v.Method != nil && v.Params != nil
}

func (v *WebsocketHeader) IsResponse() bool {
	return v.ID != nil && v.Method == nil
}

func (v *WebsocketHeader) IsNotice() bool {
	return v.ID == nil && v.Method != nil
}

type WebsocketNotice struct {
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

// WebsocketCall tracks one request/response exchange over the websocket.
type WebsocketCall struct {
	DoneCh chan struct{}

	Status error

	Request  WebsocketRequest
	Response WebsocketResponse
}
