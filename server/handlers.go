// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bvk/syncbot/api"
	"github.com/bvk/syncbot/statesync"
)

// HandlerMap returns the server's http endpoints keyed by url path.
func (s *Server) HandlerMap() map[string]http.Handler {
	return map[string]http.Handler{
		api.StatusPath:    postJSONHandler(s.doStatus),
		api.BalancesPath:  postJSONHandler(s.doBalances),
		api.PositionsPath: postJSONHandler(s.doPositions),
		api.ResyncPath:    postJSONHandler(s.doResync),
	}
}

type checker interface {
	Check() error
}

func postJSONHandler[T1 any, T2 any](fn func(context.Context, *T1) (*T2, error)) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid http method type", http.StatusMethodNotAllowed)
			return
		}
		if v := r.Header.Get("content-type"); !strings.EqualFold(v, "application/json") {
			http.Error(w, "unsupported content type", http.StatusBadRequest)
			return
		}
		req := new(T1)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if v, ok := any(req).(checker); ok {
			if err := v.Check(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		resp, err := fn(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data, err := json.Marshal(resp)
		if err != nil {
			slog.Error("could not marshal response (ignored)", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("content-type", "application/json")
		if _, err := w.Write(data); err != nil {
			slog.Error("could not write response (ignored)", "error", err)
		}
	}
	return http.HandlerFunc(handler)
}

func (s *Server) doStatus(ctx context.Context, req *api.StatusRequest) (*api.StatusResponse, error) {
	resp := &api.StatusResponse{
		Uptime: time.Since(s.startTime),
	}
	for _, rt := range s.runtimes() {
		side, contracts := rt.strategy.Position()
		item := &api.StatusStrategy{
			UID:               rt.uid,
			ProductID:         rt.strategy.ProductID(),
			ExchangeName:      rt.view.ExchangeName(),
			CashBalance:       rt.strategy.CashBalance(),
			AssetSize:         rt.strategy.AssetSize(),
			PositionSide:      side,
			PositionContracts: contracts,
			NumOpenOrders:     len(rt.strategy.OpenOrders()),
		}
		for _, w := range []*statesync.Watcher{rt.balanceWatcher, rt.positionWatcher} {
			item.Watchers = append(item.Watchers, &api.StatusWatcher{
				Name:          w.Name(),
				Mode:          w.Mode(),
				Running:       w.IsRunning(),
				LastProcessed: w.LastProcessed(),
			})
		}
		resp.Strategies = append(resp.Strategies, item)
	}
	sort.Slice(resp.Strategies, func(i, j int) bool {
		return resp.Strategies[i].UID < resp.Strategies[j].UID
	})
	return resp, nil
}

func (s *Server) doBalances(ctx context.Context, req *api.BalancesRequest) (*api.BalancesResponse, error) {
	resp := new(api.BalancesResponse)
	for _, rt := range s.runtimes() {
		exname := rt.view.ExchangeName()
		if req.ExchangeName != "" && req.ExchangeName != exname {
			continue
		}
		snap := rt.view.BalanceSnapshot()
		for _, b := range snap.Balances {
			resp.Balances = append(resp.Balances, &api.BalancesResponseItem{
				ExchangeName: exname,
				Symbol:       b.Symbol,
				Total:        b.Total,
				Free:         b.Free,
				Used:         b.Used,
				UpdateTime:   b.UpdateTime.Time,
			})
		}
	}
	sort.Slice(resp.Balances, func(i, j int) bool {
		a, b := resp.Balances[i], resp.Balances[j]
		if a.ExchangeName != b.ExchangeName {
			return a.ExchangeName < b.ExchangeName
		}
		return a.Symbol < b.Symbol
	})
	return resp, nil
}

func (s *Server) doPositions(ctx context.Context, req *api.PositionsRequest) (*api.PositionsResponse, error) {
	resp := new(api.PositionsResponse)
	for _, rt := range s.runtimes() {
		exname := rt.view.ExchangeName()
		if req.ExchangeName != "" && req.ExchangeName != exname {
			continue
		}
		snap := rt.view.PositionSnapshot()
		for _, p := range snap.Positions {
			if p.Closed && !req.IncludeClosed {
				continue
			}
			resp.Positions = append(resp.Positions, &api.PositionsResponseItem{
				ExchangeName:  exname,
				Symbol:        p.Symbol,
				Side:          p.Side,
				Contracts:     p.Contracts,
				EntryPrice:    p.EntryPrice,
				Leverage:      p.Leverage,
				Liquidation:   p.Liquidation,
				UnrealizedPNL: p.UnrealizedPNL,
				MarginMode:    p.MarginMode,
				Closed:        p.Closed,
				EffectiveTime: p.EffectiveTime.Time,
			})
		}
	}
	sort.Slice(resp.Positions, func(i, j int) bool {
		a, b := resp.Positions[i], resp.Positions[j]
		if a.ExchangeName != b.ExchangeName {
			return a.ExchangeName < b.ExchangeName
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Side < b.Side
	})
	return resp, nil
}

func (s *Server) doResync(ctx context.Context, req *api.ResyncRequest) (*api.ResyncResponse, error) {
	resp := new(api.ResyncResponse)
	for _, rt := range s.runtimes() {
		exname := rt.view.ExchangeName()
		if req.ExchangeName != "" && req.ExchangeName != exname {
			continue
		}
		var watchers []*statesync.Watcher
		if req.Kind == "" || req.Kind == "balance" {
			watchers = append(watchers, rt.balanceWatcher)
		}
		if req.Kind == "" || req.Kind == "position" {
			watchers = append(watchers, rt.positionWatcher)
		}
		for _, w := range watchers {
			item := &api.ResyncResponseItem{
				WatcherName: w.Name(),
			}
			processed, err := w.Fetch(ctx)
			if err != nil {
				item.Error = err.Error()
			}
			item.Processed = processed
			resp.Results = append(resp.Results, item)
		}
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("no matching watchers are running")
	}
	return resp, nil
}
