// Copyright (c) 2025 BVK Chaitanya

package kvutil

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/bvk/syncbot/gobs"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

func TestGetSetDB(t *testing.T) {
	ctx := context.Background()
	db := kvmemdb.New()

	want := &gobs.BalanceState{
		Symbol: "USDT",
		Total:  decimal.NewFromInt(100),
		Free:   decimal.NewFromInt(75),
	}
	if err := SetDB(ctx, db, "/balances/coinex/USDT", want); err != nil {
		t.Fatal(err)
	}

	got, err := GetDB[gobs.BalanceState](ctx, db, "/balances/coinex/USDT")
	if err != nil {
		t.Fatal(err)
	}
	if got.Symbol != want.Symbol || !got.Total.Equal(want.Total) || !got.Free.Equal(want.Free) {
		t.Fatalf("wanted %v, got %v", want, got)
	}

	if _, err := GetDB[gobs.BalanceState](ctx, db, "/balances/coinex/BTC"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("wanted os.ErrNotExist, got %v", err)
	}
}

func TestPathRange(t *testing.T) {
	ctx := context.Background()
	db := kvmemdb.New()

	keys := []string{
		"/positions/coinex/BTCUSDT",
		"/positions/coinex/ETHUSDT",
		"/positions/coinex/XRPUSDT",
		"/watchers/coinex/balance",
	}
	for i, k := range keys {
		v := &gobs.NameData{Name: k, Data: string(rune('a' + i))}
		if err := SetDB(ctx, db, k, v); err != nil {
			t.Fatal(err)
		}
	}

	begin, end := PathRange("/positions/coinex")

	var got []string
	if err := AscendDB(ctx, db, begin, end, func(ctx context.Context, r kv.Reader, k string, v *gobs.NameData) error {
		got = append(got, k)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("wanted 3 keys in range, got %d", len(got))
	}
	if got[0] != keys[0] || got[2] != keys[2] {
		t.Fatalf("wanted keys %v in order, got %v", keys[:3], got)
	}
}
