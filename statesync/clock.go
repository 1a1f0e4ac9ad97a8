// Copyright (c) 2025 BVK Chaitanya

// Package statesync implements the account state synchronization runtime. A
// Watcher ingests exchange-reported state through a push stream or a poll
// timer, a kind-specific Reconciler folds the payloads into a locally
// consistent View and all strategy-visible mutations are serialized through
// a per-owner job queue.
package statesync

import (
	"time"
)

// Clock abstracts the wall clock so the stall watchdog can be driven by a
// fake clock in tests.
type Clock interface {
	Now() time.Time

	After(d time.Duration) <-chan time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now()
}

func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
