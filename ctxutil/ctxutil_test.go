// Copyright (c) 2025 BVK Chaitanya

package ctxutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSleepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	Sleep(ctx, time.Hour)
	if d := time.Since(start); d > time.Second {
		t.Fatalf("wanted immediate return on canceled context, took %v", d)
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	fail := errors.New("not ready")
	nattempts := 0
	err := Retry(ctx, time.Millisecond, func() error {
		nattempts++
		if nattempts < 3 {
			return fail
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if nattempts != 3 {
		t.Fatalf("wanted 3 attempts, got %d", nattempts)
	}
}

func TestRetryTimeout(t *testing.T) {
	ctx := context.Background()

	fail := errors.New("never ready")
	err := RetryTimeout(ctx, time.Millisecond, 10*time.Millisecond, func() error {
		return fail
	})
	if !errors.Is(err, fail) {
		t.Fatalf("wanted last attempt error, got %v", err)
	}
}
