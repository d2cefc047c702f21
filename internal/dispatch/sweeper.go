package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// Sweep prunes dedup entries whose window has elapsed, then evicts terminal
// records last updated more than retention ago. Pruning runs first so no
// live dedup entry ever points at an evicted record.
func (d *Dispatcher) Sweep(retention time.Duration) (pruned, evicted int) {
	now := d.clock.Now()
	pruned = d.dedup.Prune(now)
	evicted = d.store.EvictTerminal(now.Add(-retention))
	return pruned, evicted
}

// RunSweeper calls Sweep every interval until ctx is done
func (d *Dispatcher) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	d.logger.Info("Record sweeper started",
		slog.Duration("interval", interval),
		slog.Duration("retention", retention),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Record sweeper stopped")
			return
		case <-ticker.C:
			pruned, evicted := d.Sweep(retention)
			if pruned > 0 || evicted > 0 {
				d.logger.Debug("Swept job records",
					slog.Int("dedup_pruned", pruned),
					slog.Int("records_evicted", evicted),
					slog.Int("dedup_entries", d.dedup.Len()),
				)
			}
		}
	}
}
