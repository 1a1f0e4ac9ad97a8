// Copyright (c) 2025 BVK Chaitanya

package backoff

import (
	"context"
	"testing"
	"time"
)

func TestExponentialGrowth(t *testing.T) {
	p := New(time.Second, time.Minute)

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		time.Minute,
		time.Minute,
	}
	for i, w := range want {
		if d := p.Failure(); d != w {
			t.Fatalf("wanted delay %v at failure %d, got %v", w, i, d)
		}
	}
}

func TestSuccessResets(t *testing.T) {
	p := New(time.Second, time.Minute)
	p.Failure()
	p.Failure()
	p.Failure()
	if n := p.NumFailures(); n != 3 {
		t.Fatalf("wanted 3 failures, got %d", n)
	}

	p.Success()
	if n := p.NumFailures(); n != 0 {
		t.Fatalf("wanted reset counter, got %d", n)
	}
	if d := p.Failure(); d != time.Second {
		t.Fatalf("wanted first delay after reset, got %v", d)
	}
}

func TestSleepRecordsFailure(t *testing.T) {
	p := New(time.Minute, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A canceled context returns immediately, long before the delay.
	start := time.Now()
	p.Sleep(ctx)
	if d := time.Since(start); d >= time.Minute {
		t.Fatalf("wanted prompt return on canceled context, slept %v", d)
	}
	if n := p.NumFailures(); n != 1 {
		t.Fatalf("wanted Sleep to record one failure, got %d", n)
	}
}

func TestDefaults(t *testing.T) {
	p := New(0, 0)
	if d := p.Failure(); d != time.Second {
		t.Fatalf("wanted default unit delay, got %v", d)
	}
	for i := 0; i < 20; i++ {
		p.Failure()
	}
	if d := p.Failure(); d != time.Minute {
		t.Fatalf("wanted default max delay, got %v", d)
	}
}
