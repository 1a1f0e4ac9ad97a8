// Copyright (c) 2025 BVK Chaitanya

package coinex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bvk/syncbot/coinex/internal"
	"github.com/bvk/syncbot/exchange"

	"github.com/visvasity/topic"
)

// Exchange implements the account adapter interface over two client
// connections. Spot balances come from the spot endpoints and derivative
// positions come from the futures endpoints.
type Exchange struct {
	spot    *Client
	futures *Client
}

var _ exchange.Adapter = &Exchange{}

// NewExchange creates clients for the spot and futures endpoints using the
// given api key credentials.
func NewExchange(key, secret string) (*Exchange, error) {
	spot, err := New(key, secret, &Options{})
	if err != nil {
		return nil, fmt.Errorf("could not create spot client: %w", err)
	}
	futures, err := New(key, secret, &Options{Futures: true})
	if err != nil {
		spot.Close()
		return nil, fmt.Errorf("could not create futures client: %w", err)
	}
	return &Exchange{spot: spot, futures: futures}, nil
}

func (x *Exchange) Close() error {
	x.futures.Close()
	x.spot.Close()
	return nil
}

func (x *Exchange) ExchangeName() string {
	return "coinex"
}

// GetBalances fetches a full spot account balance snapshot.
func (x *Exchange) GetBalances(ctx context.Context) (*exchange.BalanceEvent, error) {
	balances, err := x.spot.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	event := &exchange.BalanceEvent{
		ServerTime: exchange.RemoteTime{Time: time.Now()},
	}
	for _, b := range balances {
		event.Balances = append(event.Balances, &exchange.BalanceEntry{
			Symbol: b.Currency,
			Total:  b.Total(),
			Free:   b.Available,
			Used:   b.Frozen,
		})
	}
	return event, nil
}

// GetPositions fetches all pending futures positions. The returned event is
// always a complete snapshot.
func (x *Exchange) GetPositions(ctx context.Context) (*exchange.PositionEvent, error) {
	positions, err := x.futures.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	event := &exchange.PositionEvent{
		ServerTime: exchange.RemoteTime{Time: time.Now()},
		Complete:   true,
	}
	for _, p := range positions {
		event.Positions = append(event.Positions, positionEntry(p))
	}
	return event, nil
}

func (x *Exchange) BalanceUpdatesCh() (<-chan *exchange.BalanceEvent, func()) {
	receiver, err := topic.Subscribe(x.spot.balanceUpdatesTopic, 16, false /* includeRecent */)
	if err != nil {
		slog.Error("could not subscribe to balance updates topic", "err", err)
		return nil, func() {}
	}
	inch, err := topic.ReceiveCh(receiver)
	if err != nil {
		receiver.Close()
		slog.Error("could not open balance updates receive channel", "err", err)
		return nil, func() {}
	}

	outch := make(chan *exchange.BalanceEvent, 1)
	stopc := make(chan struct{})
	var once sync.Once
	stopf := func() {
		once.Do(func() {
			receiver.Close()
			close(stopc)
		})
	}

	go func() {
		defer close(outch)
		for {
			select {
			case <-stopc:
				return
			case update, ok := <-inch:
				if !ok {
					return
				}
				event := balanceEvent(update)
				select {
				case <-stopc:
					return
				case outch <- event:
				}
			}
		}
	}()
	return outch, stopf
}

func (x *Exchange) PositionUpdatesCh() (<-chan *exchange.PositionEvent, func()) {
	receiver, err := topic.Subscribe(x.futures.positionUpdatesTopic, 16, false /* includeRecent */)
	if err != nil {
		slog.Error("could not subscribe to position updates topic", "err", err)
		return nil, func() {}
	}
	inch, err := topic.ReceiveCh(receiver)
	if err != nil {
		receiver.Close()
		slog.Error("could not open position updates receive channel", "err", err)
		return nil, func() {}
	}

	outch := make(chan *exchange.PositionEvent, 1)
	stopc := make(chan struct{})
	var once sync.Once
	stopf := func() {
		once.Do(func() {
			receiver.Close()
			close(stopc)
		})
	}

	go func() {
		defer close(outch)
		for {
			select {
			case <-stopc:
				return
			case update, ok := <-inch:
				if !ok {
					return
				}
				if update.Position == nil {
					continue
				}
				event := positionEvent(update)
				select {
				case <-stopc:
					return
				case outch <- event:
				}
			}
		}
	}()
	return outch, stopf
}

func balanceEvent(update *internal.BalanceUpdate) *exchange.BalanceEvent {
	return &exchange.BalanceEvent{
		ServerTime: exchange.RemoteTime{Time: time.UnixMilli(update.UpdatedAt)},
		Balances: []*exchange.BalanceEntry{
			{
				Symbol: update.Currency,
				Total:  update.Total(),
				Free:   update.Available,
				Used:   update.Frozen,
			},
		},
	}
}

func positionEvent(update *internal.PositionUpdate) *exchange.PositionEvent {
	return &exchange.PositionEvent{
		ServerTime: exchange.RemoteTime{Time: time.UnixMilli(update.Position.UpdatedAt)},
		Positions:  []*exchange.PositionEntry{positionEntry(update.Position)},
	}
}

func positionEntry(p *internal.Position) *exchange.PositionEntry {
	side := ""
	switch strings.ToLower(p.Side) {
	case "long", "buy":
		side = exchange.SideLong
	case "short", "sell":
		side = exchange.SideShort
	}
	margin := exchange.MarginCross
	if strings.EqualFold(p.MarginMode, "isolated") {
		margin = exchange.MarginIsolated
	}
	return &exchange.PositionEntry{
		Symbol:        p.Market,
		Side:          side,
		Contracts:     p.OpenInterest,
		EntryPrice:    p.AvgEntryPrice,
		Leverage:      p.Leverage,
		Liquidation:   p.LiqPrice,
		UnrealizedPNL: p.UnrealizedPNL,
		MarginMode:    margin,
		UpdateTime:    exchange.RemoteTime{Time: time.UnixMilli(p.UpdatedAt)},
	}
}
