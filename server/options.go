// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"time"
)

type Options struct {
	// BalancePollInterval and PositionPollInterval hold the fetch periods
	// for watchers running in poll mode.
	BalancePollInterval  time.Duration
	PositionPollInterval time.Duration

	// StallTimeout holds the max duration a watcher can go without
	// processing a sample before a recovery fetch is forced.
	StallTimeout time.Duration

	// CheckpointInterval holds the period between background snapshots of
	// the live views into the database.
	CheckpointInterval time.Duration

	// ForcePoll disables websocket subscriptions and forces all watchers
	// into poll mode.
	ForcePoll bool

	// NoResume skips restarting the strategies enabled in the previous
	// run.
	NoResume bool
}

func (v *Options) setDefaults() {
	if v.BalancePollInterval == 0 {
		v.BalancePollInterval = 10 * time.Second
	}
	if v.PositionPollInterval == 0 {
		v.PositionPollInterval = 5 * time.Second
	}
	if v.StallTimeout == 0 {
		v.StallTimeout = time.Minute
	}
	if v.CheckpointInterval == 0 {
		v.CheckpointInterval = time.Minute
	}
}

func (v *Options) Check() error {
	return nil
}
