package websession

import (
	"context"
	"log/slog"
	"time"
)

// Run evicts idle sessions and prunes expired stored values every
// interval. It blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	slog.Info("websession: sweeper started", "interval", interval.String(), "idleTTL", m.opts.IdleTTL.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("websession: sweeper stopped")
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Info("websession: evicted idle sessions", "count", n, "remaining", m.Len())
			}
			n, err := m.Prune(ctx)
			if err != nil {
				slog.Warn("websession: pruning stored sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("websession: pruned stored session values", "count", n)
			}
		}
	}
}
