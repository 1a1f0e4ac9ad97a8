// Copyright (c) 2025 BVK Chaitanya

package jobqueue

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestOwnerOrdering(t *testing.T) {
	q := New()
	defer q.Close()

	var mu sync.Mutex
	var order []int

	var jobs []*Job
	for i := 0; i < 100; i++ {
		i := i
		j, err := q.Add("looper", func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		jobs = append(jobs, j)
	}

	ctx := context.Background()
	if err := WaitAll(ctx, jobs); err != nil {
		t.Fatal(err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("wanted job %d at index %d, got %d", i, i, v)
		}
	}
}

func TestOwnersRunConcurrently(t *testing.T) {
	q := New()
	defer q.Close()

	var running atomic.Int32
	var peak atomic.Int32

	startc := make(chan struct{})
	var jobs []*Job
	for _, owner := range []string{"a", "b", "c"} {
		j, err := q.Add(owner, func(ctx context.Context) error {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-startc
			running.Add(-1)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		jobs = append(jobs, j)
	}

	// Let all three workers reach the barrier.
	for peak.Load() < 3 {
		time.Sleep(time.Millisecond)
	}
	close(startc)

	if err := WaitAll(context.Background(), jobs); err != nil {
		t.Fatal(err)
	}
	if p := peak.Load(); p != 3 {
		t.Fatalf("wanted 3 concurrent owners, got %d", p)
	}
}

func TestCloseDrains(t *testing.T) {
	q := New()

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		if _, err := q.Add("slow", func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			count.Add(1)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	q.Close()
	if n := count.Load(); n != 10 {
		t.Fatalf("wanted 10 drained jobs after Close, got %d", n)
	}

	if _, err := q.Add("slow", func(ctx context.Context) error { return nil }); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("wanted os.ErrClosed after Close, got %v", err)
	}
}

func TestJobError(t *testing.T) {
	q := New()
	defer q.Close()

	fail := errors.New("no balance yet")
	j, err := q.Add("x", func(ctx context.Context) error { return fail })
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Wait(context.Background()); !errors.Is(err, fail) {
		t.Fatalf("wanted job error, got %v", err)
	}
	if err := j.Err(); !errors.Is(err, fail) {
		t.Fatalf("wanted job error from Err, got %v", err)
	}
}

func TestErrBeforeDone(t *testing.T) {
	q := New()
	defer q.Close()

	waitc := make(chan struct{})
	j, err := q.Add("x", func(ctx context.Context) error {
		<-waitc
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Err(); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("wanted os.ErrInvalid before completion, got %v", err)
	}
	close(waitc)
	if err := j.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}
