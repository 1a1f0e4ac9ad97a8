// Copyright (c) 2025 BVK Chaitanya

package statesync

import (
	"context"
	"log/slog"
	"time"
)

// stallGuard is a watchdog that forces a recovery fetch when no sample has
// been processed within the configured threshold. It covers silently dead
// push streams as well as wedged poll cycles.
type stallGuard struct {
	clock Clock

	threshold time.Duration

	// lastf returns the time of the last processed sample.
	lastf func() time.Time

	// forcef triggers one recovery fetch. Returns false when a fetch was
	// already in flight.
	forcef func(ctx context.Context) (bool, error)

	name string
}

func (g *stallGuard) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-g.clock.After(g.threshold):
			last := g.lastf()
			idle := g.clock.Now().Sub(last)
			if idle <= g.threshold {
				continue
			}
			slog.Warn("no sample processed within the stall threshold; forcing a fetch", "watcher", g.name, "idle", idle, "threshold", g.threshold)
			if _, err := g.forcef(ctx); err != nil {
				slog.Error("forced recovery fetch has failed", "watcher", g.name, "err", err)
			}
		}
	}
}
