package tracking

import (
	"sync"
	"time"

	"fencetrack/pkg/model"
	"fencetrack/pkg/sensor"
)

// StateChange is emitted for every committed WatchState transition.
type StateChange struct {
	From   model.WatchState `json:"from"`
	To     model.WatchState `json:"to"`
	Reason string           `json:"reason"`
	At     time.Time        `json:"at"`
}

// Violation is emitted once per boundary rejection. It is not an error.
type Violation struct {
	Position   model.Position `json:"position"`
	Intent     model.Intent   `json:"-"`
	IntentName string         `json:"intent"`
	DistanceKm float64        `json:"distance_km"`
	At         time.Time      `json:"at"`
}

// Accepted is emitted for every position the machine delivers to the map.
type Accepted struct {
	Position   model.Position         `json:"position"`
	Intent     model.Intent           `json:"-"`
	IntentName string                 `json:"intent"`
	Markers    []model.DistanceMarker `json:"markers"`
}

// ErrorEvent reports a sensor failure. Surfaced is true when the user saw a message.
type ErrorEvent struct {
	Err      *sensor.Error `json:"-"`
	Kind     string        `json:"kind"`
	Code     int           `json:"code"`
	Intent   model.Intent  `json:"-"`
	Message  string        `json:"message,omitempty"`
	Surfaced bool          `json:"surfaced"`
	At       time.Time     `json:"at"`
}

// registry is a listener list with symmetric removal.
type registry[T any] struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]func(T)
	order  []uint64
}

func (r *registry[T]) add(fn func(T)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fns == nil {
		r.fns = make(map[uint64]func(T))
	}
	r.nextID++
	id := r.nextID
	r.fns[id] = fn
	r.order = append(r.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.fns, id)
			for i, v := range r.order {
				if v == id {
					r.order = append(r.order[:i], r.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (r *registry[T]) emit(v T) {
	r.mu.Lock()
	fns := make([]func(T), 0, len(r.order))
	for _, id := range r.order {
		fns = append(fns, r.fns[id])
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (r *registry[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *registry[T]) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns = nil
	r.order = nil
}
