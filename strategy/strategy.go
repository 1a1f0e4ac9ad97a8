// Copyright (c) 2025 BVK Chaitanya

// Package strategy implements the trading strategy's local accounting: the
// order book mirror, the cash/asset views and the persisted state. The
// state synchronization subsystem feeds reconciled balances and positions
// into it through the Accounting callbacks.
package strategy

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/bvk/syncbot/exchange"
	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/idgen"
	"github.com/bvk/syncbot/kvutil"
	"github.com/bvk/syncbot/statesync"
	"github.com/bvkgo/kv"
	"github.com/shopspring/decimal"
)

const Keyspace = "/strategies/"

type Messenger interface {
	SendMessage(context.Context, time.Time, string, ...interface{})
}

// Runtime carries the strategy's external collaborators.
type Runtime struct {
	Database kv.Database

	Exchange exchange.Adapter

	Messenger Messenger
}

// Strategy tracks one product's trading state. All mutation goes through
// methods holding the internal lock; the statesync job queue additionally
// serializes the Apply and Sync callbacks per owner.
type Strategy struct {
	uid string

	productID string

	baseAsset  string
	quoteAsset string

	marginMode string

	rt *Runtime

	view *statesync.View

	mu sync.Mutex

	cashBalance decimal.Decimal
	assetSize   decimal.Decimal

	// lastPrice is the latest known product price, used to value non-cash
	// holdings in quote units.
	lastPrice decimal.Decimal

	orderMap map[exchange.OrderID]*exchange.Order

	idgen *idgen.Generator

	positionSide      string
	positionContracts decimal.Decimal

	lastSyncTime time.Time
}

var _ statesync.Accounting = &Strategy{}

// New creates a strategy for one product. The product symbol is the
// exchange market id (e.g. BTCUSDT) and base/quote are the currency
// symbols.
func New(uid, productID, baseAsset, quoteAsset, marginMode string, rt *Runtime, view *statesync.View) (*Strategy, error) {
	if uid == "" || productID == "" || baseAsset == "" || quoteAsset == "" {
		return nil, fmt.Errorf("uid, product and currency symbols cannot be empty")
	}
	s := &Strategy{
		uid:        uid,
		productID:  productID,
		baseAsset:  baseAsset,
		quoteAsset: quoteAsset,
		marginMode: marginMode,
		rt:         rt,
		view:       view,
		orderMap:   make(map[exchange.OrderID]*exchange.Order),
		idgen:      idgen.New(uid, 0),
	}
	return s, nil
}

// NewClientOrderID returns the next deterministic client order id for this
// strategy. Ids are derived from the strategy uid, so a restarted strategy
// regenerates the same id sequence.
func (s *Strategy) NewClientOrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idgen.NextID().String()
}

func (s *Strategy) UID() string {
	return s.uid
}

func (s *Strategy) ProductID() string {
	return s.productID
}

// Name implements statesync.Accounting. It doubles as the owner key for
// strategy-wide jobs on the entity job queue.
func (s *Strategy) Name() string {
	return s.uid
}

func (s *Strategy) QuoteCurrency() string {
	return s.quoteAsset
}

func (s *Strategy) HasAsset(currency string) bool {
	return currency == s.baseAsset
}

func (s *Strategy) ResolveSymbol(symbol string) (string, bool) {
	if symbol == s.productID {
		return s.baseAsset, true
	}
	return "", false
}

func (s *Strategy) MarginMode() string {
	return s.marginMode
}

// SetPrice records the latest product price for non-cash valuation.
func (s *Strategy) SetPrice(price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPrice = price
}

// NonCashValue returns the quote value of the asset holdings at the last
// known price.
func (s *Strategy) NonCashValue() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assetSize.Mul(s.lastPrice)
}

// OpenIncreaseValue returns the quote amount locked in open buy orders.
func (s *Strategy) OpenIncreaseValue() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum decimal.Decimal
	for _, order := range s.orderMap {
		if order.Done || order.Side != exchange.SideBuy {
			continue
		}
		sum = sum.Add(order.UnfilledValue())
	}
	return sum
}

// OpenReduceSize returns the base size locked in open sell orders for the
// given asset.
func (s *Strategy) OpenReduceSize(asset string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if asset != s.baseAsset {
		return decimal.Zero
	}
	var sum decimal.Decimal
	for _, order := range s.orderMap {
		if order.Done || order.Side != exchange.SideSell {
			continue
		}
		sum = sum.Add(order.UnfilledSize())
	}
	return sum
}

// ApplyBalance implements statesync.Accounting. Quote currency updates set
// the strategy's cash; base asset updates set the holdings size. Invoked
// only from entity job queue jobs.
func (s *Strategy) ApplyBalance(ctx context.Context, state *gobs.BalanceState) error {
	s.mu.Lock()
	switch state.Symbol {
	case s.quoteAsset:
		s.cashBalance = state.Free
	case s.baseAsset:
		s.assetSize = state.Total
	}
	s.lastSyncTime = state.UpdateTime.Time
	s.mu.Unlock()
	return nil
}

// ApplyPosition implements statesync.Accounting. Invoked only from entity
// job queue jobs.
func (s *Strategy) ApplyPosition(ctx context.Context, asset string, state *gobs.PositionState) error {
	if asset != s.baseAsset {
		return nil
	}

	s.mu.Lock()
	if state.Closed {
		s.positionSide = ""
		s.positionContracts = decimal.Zero
	} else {
		s.positionSide = state.Side
		s.positionContracts = state.Contracts
		if !state.EntryPrice.IsZero() {
			s.lastPrice = state.EntryPrice
		}
	}
	s.lastSyncTime = state.EffectiveTime.Time
	s.mu.Unlock()
	return nil
}

// SyncCash recomputes the cash balance from the reconciled view and
// persists the strategy state.
func (s *Strategy) SyncCash(ctx context.Context) error {
	if b := s.view.Balance(s.quoteAsset); b != nil {
		state := b.State()
		s.mu.Lock()
		s.cashBalance = state.Free
		s.lastSyncTime = state.UpdateTime.Time
		s.mu.Unlock()
	}
	return s.Save(ctx)
}

// CashBalance returns the strategy's spendable quote funds view.
func (s *Strategy) CashBalance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cashBalance
}

// AssetSize returns the strategy's base holdings view.
func (s *Strategy) AssetSize() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assetSize
}

// Position returns the mirrored derivative position.
func (s *Strategy) Position() (side string, contracts decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionSide, s.positionContracts
}

// AddOrder registers a newly placed limit order.
func (s *Strategy) AddOrder(order *exchange.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderMap[order.OrderID] = order
}

// UpdateOrder folds an order status update into the order map. Unknown
// order ids are ignored.
func (s *Strategy) UpdateOrder(order *exchange.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orderMap[order.OrderID]; ok {
		s.orderMap[order.OrderID] = order
	}
}

// OpenOrders returns the orders not yet done.
func (s *Strategy) OpenOrders() []*exchange.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []*exchange.Order
	for _, order := range s.orderMap {
		if !order.Done {
			orders = append(orders, order)
		}
	}
	return orders
}

func (s *Strategy) stateKey() string {
	return path.Join(Keyspace, s.uid)
}

// Save persists the strategy state.
func (s *Strategy) Save(ctx context.Context) error {
	state := s.checkpoint()
	if err := kvutil.SetDB(ctx, s.rt.Database, s.stateKey(), state); err != nil {
		return fmt.Errorf("could not save strategy state for %q: %w", s.uid, err)
	}
	return nil
}

func (s *Strategy) checkpoint() *gobs.StrategyState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := &gobs.StrategyState{
		UID:               s.uid,
		ExchangeName:      s.view.ExchangeName(),
		ProductID:         s.productID,
		BaseAsset:         s.baseAsset,
		QuoteAsset:        s.quoteAsset,
		CashBalance:       s.cashBalance,
		AssetSize:         s.assetSize,
		OrderMap:          make(map[string]*gobs.Order),
		PositionSide:      s.positionSide,
		PositionContracts: s.positionContracts,
		MarginMode:        s.marginMode,
		IdgenOffset:       s.idgen.Offset(),
		LastSyncTime:      gobs.RemoteTime{Time: s.lastSyncTime},
	}
	for id, order := range s.orderMap {
		state.OrderMap[string(id)] = &gobs.Order{
			ServerOrderID: string(order.OrderID),
			ClientOrderID: order.ClientOrderID,
			CreateTime:    gobs.RemoteTime{Time: order.CreateTime.Time},
			Side:          order.Side,
			Status:        order.Status,
			Size:          order.Size,
			Price:         order.Price,
			FilledFee:     order.Fee,
			FilledSize:    order.FilledSize,
			FilledPrice:   order.FilledPrice,
			Done:          order.Done,
		}
	}
	return state
}

// Load restores previously saved strategy state.
func (s *Strategy) Load(ctx context.Context) error {
	state, err := kvutil.GetDB[gobs.StrategyState](ctx, s.rt.Database, s.stateKey())
	if err != nil {
		return fmt.Errorf("could not load strategy state for %q: %w", s.uid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cashBalance = state.CashBalance
	s.assetSize = state.AssetSize
	s.positionSide = state.PositionSide
	s.positionContracts = state.PositionContracts
	s.lastSyncTime = state.LastSyncTime.Time
	s.idgen = idgen.New(s.uid, state.IdgenOffset)
	s.orderMap = make(map[exchange.OrderID]*exchange.Order)
	for id, order := range state.OrderMap {
		s.orderMap[exchange.OrderID(id)] = &exchange.Order{
			OrderID:       exchange.OrderID(order.ServerOrderID),
			ClientOrderID: order.ClientOrderID,
			Symbol:        state.ProductID,
			Side:          order.Side,
			Size:          order.Size,
			Price:         order.Price,
			FilledSize:    order.FilledSize,
			FilledPrice:   order.FilledPrice,
			Fee:           order.FilledFee,
			CreateTime:    exchange.RemoteTime{Time: order.CreateTime.Time},
			Status:        order.Status,
			Done:          order.Done,
		}
	}
	return nil
}
