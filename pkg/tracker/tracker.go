package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"fencetrack/pkg/sensor"
)

// Tracker tracks acquisition statistics per position source.
// It satisfies sensor.Recorder.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*SourceStats
}

// SourceStats holds counters for one source.
// Fields are accessed atomically.
type SourceStats struct {
	Attempts         int64 `json:"attempts"`
	Successes        int64 `json:"successes"`
	PermissionDenied int64 `json:"permission_denied"`
	Unavailable      int64 `json:"unavailable"`
	Timeouts         int64 `json:"timeouts"`
	Unknown          int64 `json:"unknown"`
	Superseded       int64 `json:"superseded"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*SourceStats),
	}
}

// getStats returns the stats object for a source, creating it if needed.
func (t *Tracker) getStats(source string) *SourceStats {
	t.mu.RLock()
	s, ok := t.stats[source]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[source]; ok {
		return s
	}
	s = &SourceStats{}
	t.stats[source] = s
	return s
}

// RecordAttempt counts one acquisition attempt and classifies its failure.
func (t *Tracker) RecordAttempt(source string, err error) {
	s := t.getStats(source)
	atomic.AddInt64(&s.Attempts, 1)
	if err == nil {
		atomic.AddInt64(&s.Successes, 1)
		return
	}
	if errors.Is(err, sensor.ErrSuperseded) || errors.Is(err, context.Canceled) {
		atomic.AddInt64(&s.Superseded, 1)
		return
	}
	switch sensor.KindOf(err) {
	case sensor.PermissionDenied:
		atomic.AddInt64(&s.PermissionDenied, 1)
	case sensor.Unavailable:
		atomic.AddInt64(&s.Unavailable, 1)
	case sensor.Timeout:
		atomic.AddInt64(&s.Timeouts, 1)
	default:
		atomic.AddInt64(&s.Unknown, 1)
	}
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]SourceStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]SourceStats)
	for k, v := range t.stats {
		result[k] = SourceStats{
			Attempts:         atomic.LoadInt64(&v.Attempts),
			Successes:        atomic.LoadInt64(&v.Successes),
			PermissionDenied: atomic.LoadInt64(&v.PermissionDenied),
			Unavailable:      atomic.LoadInt64(&v.Unavailable),
			Timeouts:         atomic.LoadInt64(&v.Timeouts),
			Unknown:          atomic.LoadInt64(&v.Unknown),
			Superseded:       atomic.LoadInt64(&v.Superseded),
		}
	}
	return result
}
