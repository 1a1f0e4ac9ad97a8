// Copyright (c) 2025 BVK Chaitanya

package ringbuf

import (
	"testing"
	"time"
)

func TestOverwriteOldest(t *testing.T) {
	b := New[int](3)
	now := time.Now()
	for i := 1; i <= 5; i++ {
		b.Add(now.Add(time.Duration(i)*time.Second), i)
	}

	if n := b.Len(); n != 3 {
		t.Fatalf("wanted 3 buffered samples, got %d", n)
	}

	for i, s := range b.samples {
		if want := i + 3; s.Value != want || s.Seq != int64(want) {
			t.Fatalf("wanted surviving value and seq %d, got %d and %d", want, s.Value, s.Seq)
		}
	}
}

func TestLatestDrains(t *testing.T) {
	b := New[string](4)
	b.Add(time.Now(), "a")
	b.Add(time.Now(), "b")
	b.Add(time.Now(), "c")

	s, ok := b.Latest()
	if !ok {
		t.Fatal("wanted a sample, got none")
	}
	if s.Value != "c" {
		t.Fatalf("wanted newest value c, got %s", s.Value)
	}
	if n := b.Len(); n != 0 {
		t.Fatalf("wanted drained buffer, got %d samples", n)
	}
	if _, ok := b.Latest(); ok {
		t.Fatal("wanted no sample from empty buffer")
	}
}

func TestReadySignal(t *testing.T) {
	b := New[int](2)

	select {
	case <-b.Ready():
		t.Fatal("wanted no ready signal before any Add")
	default:
	}

	b.Add(time.Now(), 1)
	b.Add(time.Now(), 2)

	select {
	case <-b.Ready():
	default:
		t.Fatal("wanted a ready signal after Add")
	}

	// Signals coalesce; two Adds leave at most one pending wakeup.
	select {
	case <-b.Ready():
		t.Fatal("wanted coalesced signals, got a second wakeup")
	default:
	}
}

func TestSeqMonotonic(t *testing.T) {
	b := New[int](2)
	var last int64
	for i := 0; i < 10; i++ {
		s := b.Add(time.Now(), i)
		if s.Seq <= last {
			t.Fatalf("wanted increasing seq, got %d after %d", s.Seq, last)
		}
		last = s.Seq
	}
}
