// Copyright (c) 2025 BVK Chaitanya

// Package ringbuf implements a small, bounded, time-ordered sample buffer
// that decouples a producer (websocket callback or poll loop) from a single
// consumer. When the buffer is full the oldest sample is dropped; consumers
// that only need the most recent state can drain the buffer in one call.
package ringbuf

import (
	"sync"
	"time"
)

// Sample holds one buffered payload with its arrival timestamp and a
// monotonically increasing sequence number assigned by the buffer.
type Sample[T any] struct {
	At  time.Time
	Seq int64

	Value T
}

type Buffer[T any] struct {
	mu sync.Mutex

	capacity int
	seq      int64

	samples []Sample[T]

	readyc chan struct{}
}

func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{
		capacity: capacity,
		readyc:   make(chan struct{}, 1),
	}
}

// Add appends a sample with the given timestamp, dropping the oldest entry
// if the buffer is at capacity, and signals the ready channel.
func (b *Buffer[T]) Add(at time.Time, v T) Sample[T] {
	b.mu.Lock()
	b.seq++
	s := Sample[T]{At: at, Seq: b.seq, Value: v}
	if len(b.samples) == b.capacity {
		b.samples = append(b.samples[1:], s)
	} else {
		b.samples = append(b.samples, s)
	}
	b.mu.Unlock()

	select {
	case b.readyc <- struct{}{}:
	default:
	}
	return s
}

// Ready returns a channel that receives a value when the buffer turns
// non-empty. The signal is edge-triggered with a one-slot backlog, so
// consumers must drain the buffer after each wakeup.
func (b *Buffer[T]) Ready() <-chan struct{} {
	return b.readyc
}

// Latest removes all buffered samples and returns the newest one. Returns
// false when the buffer is empty.
func (b *Buffer[T]) Latest() (Sample[T], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.samples) == 0 {
		var zero Sample[T]
		return zero, false
	}
	s := b.samples[len(b.samples)-1]
	b.samples = b.samples[:0]
	return s, true
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Seq returns the sequence number of the most recently added sample.
func (b *Buffer[T]) Seq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}
