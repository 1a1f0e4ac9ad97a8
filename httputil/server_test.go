// Copyright (c) 2025 BVK Chaitanya

package httputil

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
)

func TestServer(t *testing.T) {
	ctx := context.Background()

	s, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}()

	addr := &net.TCPAddr{
		IP: net.IPv4(127, 0, 0, 1),
	}
	id, err := s.StartTCP(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop(id)

	if addr.Port == 0 {
		t.Fatalf("wanted a picked port number, got zero")
	}

	s.AddHandler("/hello", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "world")
	}))

	resp, err := http.Get(fmt.Sprintf("http://%s/hello", addr.String()))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "world" {
		t.Fatalf("wanted world, got %q", data)
	}

	if !s.RemoveHandler("/hello") {
		t.Errorf("wanted true when removing an existing handler")
	}
	if s.RemoveHandler("/hello") {
		t.Errorf("wanted false when removing a missing handler")
	}
}
