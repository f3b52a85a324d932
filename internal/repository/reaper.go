package repository

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/pkg/logger"
	"github.com/ledgerline/ledgerlog/internal/pkg/metrics"
)

// Reaper purges expired records on a fixed interval until its context is cancelled.
type Reaper struct {
	store    *LogStore
	interval time.Duration
	clock    clockwork.Clock
}

func NewReaper(store *LogStore, interval time.Duration, clock clockwork.Clock) *Reaper {
	if interval <= 0 {
		interval = time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reaper{store: store, interval: interval, clock: clock}
}

func (r *Reaper) Start(ctx context.Context) {
	go r.Run(ctx)
}

// Run blocks, purging once per interval, until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.RunOnce(ctx)
		}
	}
}

func (r *Reaper) RunOnce(ctx context.Context) {
	purged, err := r.store.PurgeExpired(ctx)
	if err != nil {
		logger.Error("retention purge failed", "error", err)
	}
	for kind, n := range purged {
		if n == 0 {
			continue
		}
		metrics.RecordsPurged.WithLabelValues(string(kind)).Add(float64(n))
		logger.Info("retention purge", "kind", kind, "deleted", n)
	}
}
