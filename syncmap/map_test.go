package syncmap

import (
	"sort"
	"testing"
)

func TestMap(t *testing.T) {
	var m Map[string, int]

	m.Store("BTC", 1)
	m.Store("ETH", 2)

	if v, ok := m.Load("BTC"); !ok || v != 1 {
		t.Fatalf("wanted 1, got %d (%t)", v, ok)
	}
	if _, ok := m.Load("XRP"); ok {
		t.Fatal("wanted missing key")
	}

	if v, loaded := m.LoadOrStore("ETH", 20); !loaded || v != 2 {
		t.Fatalf("wanted existing value 2, got %d (%t)", v, loaded)
	}

	if n := m.Len(); n != 2 {
		t.Fatalf("wanted 2 entries, got %d", n)
	}

	keys := m.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "BTC" || keys[1] != "ETH" {
		t.Fatalf("wanted [BTC ETH], got %v", keys)
	}

	if v, loaded := m.LoadAndDelete("BTC"); !loaded || v != 1 {
		t.Fatalf("wanted deleted value 1, got %d (%t)", v, loaded)
	}
	if n := m.Len(); n != 1 {
		t.Fatalf("wanted 1 entry, got %d", n)
	}
}
