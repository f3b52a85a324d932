package service

import (
	"context"
	"sync"
	"time"
)

// RateWindow counts errors per endpoint over a sliding window. Record appends one error
// at now and returns how many remain inside the window.
type RateWindow interface {
	Record(ctx context.Context, endpoint string, now time.Time, window time.Duration) (int, error)
}

// MemoryRateWindow keeps the timestamps in process memory; each instance alerts on its
// own traffic only.
type MemoryRateWindow struct {
	mu    sync.Mutex
	times map[string][]time.Time
}

func NewMemoryRateWindow() *MemoryRateWindow {
	return &MemoryRateWindow{times: make(map[string][]time.Time)}
}

func (w *MemoryRateWindow) Record(_ context.Context, endpoint string, now time.Time, window time.Duration) (int, error) {
	cutoff := now.Add(-window)

	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.times[endpoint][:0]
	for _, t := range w.times[endpoint] {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	w.times[endpoint] = kept
	return len(kept), nil
}
