// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bvk/syncbot/api"
	"github.com/bvk/syncbot/exchange"
	"github.com/bvk/syncbot/gobs"
	"github.com/bvk/syncbot/kvutil"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return &Server{
		db:                     kvmemdb.New(),
		startTime:              time.Now(),
		exchangeMap:            make(map[string]exchange.Adapter),
		alertFreezeDeadlineMap: make(map[string]time.Time),
		strategyMap:            make(map[string]*strategyRuntime),
		exchangeUIDMap:         make(map[string]string),
	}
}

func TestLowBalanceAlert(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	state := &gobs.ServerState{
		AlertsConfig: &gobs.AlertsConfig{
			LowBalanceLimits: map[string]decimal.Decimal{
				"USDT": decimal.NewFromInt(100),
			},
		},
	}
	if err := kvutil.SetDB(ctx, s.db, ServerStateKey, state); err != nil {
		t.Fatal(err)
	}

	// Below the default limit must record an alert freeze.
	if err := s.alertOnLowBalance(ctx, "coinex", "usdt", decimal.NewFromInt(50)); err != nil {
		t.Fatal(err)
	}
	if len(s.alertFreezeDeadlineMap) != 1 {
		t.Fatalf("want one frozen alert, got %d", len(s.alertFreezeDeadlineMap))
	}

	// A repeated alert within the freeze window is suppressed and keeps
	// the original deadline.
	key := "alerts/low-balance-alert/coinex/USDT"
	deadline := s.alertFreezeDeadlineMap[key]
	if err := s.alertOnLowBalance(ctx, "coinex", "usdt", decimal.NewFromInt(10)); err != nil {
		t.Fatal(err)
	}
	if v := s.alertFreezeDeadlineMap[key]; !v.Equal(deadline) {
		t.Fatalf("freeze deadline has changed: %v -> %v", deadline, v)
	}

	// Above the limit must not alert.
	if err := s.alertOnLowBalance(ctx, "coinex", "btc", decimal.NewFromInt(200)); err != nil {
		t.Fatal(err)
	}
	if len(s.alertFreezeDeadlineMap) != 1 {
		t.Fatalf("unexpected alert for btc")
	}
}

func TestLowBalanceAlertPerExchangeConfig(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	state := &gobs.ServerState{
		AlertsConfig: &gobs.AlertsConfig{
			LowBalanceLimits: map[string]decimal.Decimal{
				"USDT": decimal.NewFromInt(100),
			},
			PerExchangeConfig: map[string]*gobs.AlertsConfig{
				"coinex": {
					LowBalanceLimits: map[string]decimal.Decimal{
						"USDT": decimal.NewFromInt(10),
					},
				},
			},
		},
	}
	if err := kvutil.SetDB(ctx, s.db, ServerStateKey, state); err != nil {
		t.Fatal(err)
	}

	// 50 is below the default limit, but the per-exchange limit wins and
	// it is above that one.
	if err := s.alertOnLowBalance(ctx, "coinex", "USDT", decimal.NewFromInt(50)); err != nil {
		t.Fatal(err)
	}
	if len(s.alertFreezeDeadlineMap) != 0 {
		t.Fatalf("unexpected alert above the per-exchange limit")
	}

	if err := s.alertOnLowBalance(ctx, "coinex", "USDT", decimal.NewFromInt(5)); err != nil {
		t.Fatal(err)
	}
	if len(s.alertFreezeDeadlineMap) != 1 {
		t.Fatalf("want an alert below the per-exchange limit")
	}
}

func TestPostJSONHandler(t *testing.T) {
	fn := func(ctx context.Context, req *api.ResyncRequest) (*api.ResyncResponse, error) {
		return &api.ResyncResponse{
			Results: []*api.ResyncResponseItem{
				{WatcherName: "coinex-balance", Processed: true},
			},
		}, nil
	}
	handler := postJSONHandler(fn)

	post := func(body string, contentType string) *httptest.ResponseRecorder {
		r := httptest.NewRequest("POST", api.ResyncPath, bytes.NewReader([]byte(body)))
		r.Header.Set("content-type", contentType)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	if w := post(`{}`, "application/json"); w.Code != 200 {
		t.Fatalf("want 200, got %d", w.Code)
	} else {
		resp := new(api.ResyncResponse)
		if err := json.Unmarshal(w.Body.Bytes(), resp); err != nil {
			t.Fatal(err)
		}
		if len(resp.Results) != 1 || !resp.Results[0].Processed {
			t.Fatalf("unexpected response %s", w.Body.String())
		}
	}

	// Request Check failures must turn into bad request errors.
	if w := post(`{"Kind":"candles"}`, "application/json"); w.Code != 400 {
		t.Fatalf("want 400 for invalid kind, got %d", w.Code)
	}

	if w := post(`{}`, "text/plain"); w.Code != 400 {
		t.Fatalf("want 400 for bad content type, got %d", w.Code)
	}

	r := httptest.NewRequest("GET", api.ResyncPath, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != 405 {
		t.Fatalf("want 405 for GET, got %d", w.Code)
	}
}

func TestEventChannel(t *testing.T) {
	ch := make(chan *exchange.BalanceEvent, 1)
	outch, stopf := eventChannel(ch, nil)
	defer stopf()

	want := &exchange.BalanceEvent{ServerTime: exchange.RemoteTime{Time: time.Now()}}
	ch <- want

	select {
	case ev := <-outch:
		if ev.EventName() != "balance" {
			t.Fatalf("want balance event, got %q", ev.EventName())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the adapted event")
	}

	// Closing the input channel must close the output channel.
	close(ch)
	select {
	case _, ok := <-outch:
		if ok {
			t.Fatalf("want closed output channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the output channel close")
	}

	// A nil input channel stays nil to keep the watcher polling.
	var nilch chan *exchange.PositionEvent
	outch2, stopf2 := eventChannel(nilch, func() {})
	if outch2 != nil {
		t.Fatalf("want nil output channel for nil input channel")
	}
	stopf2()
}
