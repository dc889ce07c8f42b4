package api

import (
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"fencetrack/pkg/hub"
	"fencetrack/pkg/store"
	"fencetrack/pkg/tracker"
)

// HubStats reports websocket subscriber counters.
type HubStats interface {
	Stats() hub.Stats
}

// StatsHandler serves acquisition counters, event counts and process diagnostics.
type StatsHandler struct {
	tracker *tracker.Tracker
	hub     HubStats
	events  store.EventStore
	started time.Time

	mu        sync.Mutex
	maxHeapMB uint64
}

// NewStatsHandler creates a new stats handler. hub and events may be nil.
func NewStatsHandler(t *tracker.Tracker, h HubStats, events store.EventStore) *StatsHandler {
	return &StatsHandler{
		tracker: t,
		hub:     h,
		events:  events,
		started: time.Now(),
	}
}

// Diagnostics describes the server process.
type Diagnostics struct {
	HeapMB     uint64  `json:"heap_mb"`
	HeapMaxMB  uint64  `json:"heap_max_mb"`
	Goroutines int     `json:"goroutines"`
	UptimeSec  float64 `json:"uptime_sec"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Diagnostics Diagnostics                    `json:"diagnostics"`
	Sources     map[string]tracker.SourceStats `json:"sources"`
	Hub         *hub.Stats                     `json:"hub,omitempty"`
	Events      map[string]int                 `json:"events,omitempty"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Diagnostics: h.gatherDiagnostics(),
		Sources:     map[string]tracker.SourceStats{},
	}
	if h.tracker != nil {
		resp.Sources = h.tracker.Snapshot()
	}
	if h.hub != nil {
		s := h.hub.Stats()
		resp.Hub = &s
	}
	if h.events != nil {
		resp.Events = make(map[string]int)
		for _, kind := range []string{store.KindState, store.KindViolation, store.KindError} {
			n, err := h.events.CountEvents(r.Context(), kind)
			if err != nil {
				slog.Warn("Failed to count tracking events", "kind", kind, "error", err)
				continue
			}
			resp.Events[kind] = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StatsHandler) gatherDiagnostics() Diagnostics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	heap := ms.HeapAlloc / 1024 / 1024

	h.mu.Lock()
	if heap > h.maxHeapMB {
		h.maxHeapMB = heap
	}
	peak := h.maxHeapMB
	h.mu.Unlock()

	return Diagnostics{
		HeapMB:     heap,
		HeapMaxMB:  peak,
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  time.Since(h.started).Seconds(),
	}
}
