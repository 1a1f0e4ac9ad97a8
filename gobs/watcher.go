// Copyright (c) 2025 BVK Chaitanya

package gobs

import (
	"time"
)

// WatcherState is the persisted checkpoint of one account watcher.
type WatcherState struct {
	ExchangeName string
	EventName    string

	// Mode is "push" or "poll".
	Mode string

	// LastEventTime and LastEventSeq identify the newest event applied to
	// the local view.
	LastEventTime time.Time
	LastEventSeq  int64

	NumEvents  int64
	NumSkipped int64
	NumErrors  int64

	LastErrorTime    time.Time
	LastErrorMessage string
}
