// Copyright (c) 2025 BVK Chaitanya

package api

const ResyncPath = "/syncbot/resync"

type ResyncRequest struct {
	// ExchangeName, when non-empty, limits the resync to one exchange.
	ExchangeName string

	// Kind selects which watchers to refresh. One of "balance",
	// "position" or empty for both.
	Kind string
}

type ResyncResponseItem struct {
	WatcherName string

	// Processed is true when the fetched snapshot advanced the local
	// view and false when it was discarded as stale.
	Processed bool

	Error string
}

type ResyncResponse struct {
	Results []*ResyncResponseItem
}
