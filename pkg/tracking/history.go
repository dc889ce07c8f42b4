package tracking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fencetrack/pkg/store"
)

// History persists state changes, violations and surfaced errors.
// Writes happen off the tracking loop; when the queue is full records are dropped.
type History struct {
	st      store.EventStore
	queue   chan store.EventRecord
	removes []func()
	wg      sync.WaitGroup
	once    sync.Once

	mu     sync.Mutex
	closed bool
}

// RecordHistory subscribes to m and starts the writer.
func RecordHistory(m *Machine, st store.EventStore) *History {
	h := &History{st: st, queue: make(chan store.EventRecord, 64)}
	h.removes = append(h.removes,
		m.OnStateChange(func(c StateChange) {
			h.enqueue(store.EventRecord{Kind: store.KindState, From: string(c.From), To: string(c.To), Reason: c.Reason, CreatedAt: c.At})
		}),
		m.OnBoundaryViolation(func(v Violation) {
			h.enqueue(store.EventRecord{
				Kind: store.KindViolation, Intent: v.IntentName, DistanceKm: v.DistanceKm, CreatedAt: v.At,
			})
		}),
		m.OnError(func(e ErrorEvent) {
			if !e.Surfaced {
				return
			}
			h.enqueue(store.EventRecord{Kind: store.KindError, Intent: e.Intent.String(), Reason: e.Kind, CreatedAt: e.At})
		}),
	)
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *History) enqueue(ev store.EventRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.queue <- ev:
	default:
		slog.Warn("Tracking: history queue full, dropping record", "kind", ev.Kind)
	}
}

func (h *History) run() {
	defer h.wg.Done()
	for ev := range h.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.st.AppendEvent(ctx, &ev); err != nil {
			slog.Error("Tracking: failed to store history record", "kind", ev.Kind, "error", err)
		}
		cancel()
	}
}

// Close unsubscribes and flushes queued records.
func (h *History) Close() {
	h.once.Do(func() {
		for _, rm := range h.removes {
			rm()
		}
		h.mu.Lock()
		h.closed = true
		close(h.queue)
		h.mu.Unlock()
		h.wg.Wait()
	})
}
