package engine

import (
	"context"
	"time"
)

// RunCleaner drops documents older than the retention window every
// interval until ctx is done. It does nothing when retention is zero.
func (e *Engine) RunCleaner(ctx context.Context, interval time.Duration) {
	if e.cfg.Retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info("cleaner started", "retention", e.cfg.Retention, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.purgeExpired()
		}
	}
}

func (e *Engine) purgeExpired() int {
	threshold := e.now().Add(-e.cfg.Retention)
	removed := e.table.Prune(threshold)
	if removed > 0 {
		e.log.Info("expired documents dropped", "count", removed, "before", threshold.UTC().Format(time.RFC3339))
	}
	return removed
}
