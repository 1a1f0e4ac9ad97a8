// Copyright (c) 2025 BVK Chaitanya

// Package backoff implements a consecutive-failure exponential delay policy
// shared by the poll loops and websocket reconnect loops.
package backoff

import (
	"context"
	"sync"
	"time"

	"github.com/bvk/syncbot/ctxutil"
)

type Policy struct {
	mu sync.Mutex

	unit time.Duration
	max  time.Duration

	nfails int
}

// New creates a policy whose delay doubles with every consecutive failure,
// starting at unit and capped at max. Zero values pick one second and one
// minute respectively.
func New(unit, max time.Duration) *Policy {
	if unit <= 0 {
		unit = time.Second
	}
	if max <= 0 {
		max = time.Minute
	}
	return &Policy{unit: unit, max: max}
}

// Success resets the consecutive failure counter.
func (p *Policy) Success() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nfails = 0
}

// Failure records a failed attempt and returns the delay to wait before the
// next attempt.
func (p *Policy) Failure() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := p.unit
	for i := 0; i < p.nfails; i++ {
		d *= 2
		if d >= p.max {
			d = p.max
			break
		}
	}
	p.nfails++
	return d
}

// NumFailures returns the current consecutive failure count.
func (p *Policy) NumFailures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nfails
}

// Sleep records a failure and pauses for the resulting delay or till the
// context is canceled.
func (p *Policy) Sleep(ctx context.Context) {
	ctxutil.Sleep(ctx, p.Failure())
}
