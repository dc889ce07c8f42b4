package store

import (
	"context"
	"time"
)

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// Event kinds stored in the tracking history.
const (
	KindState     = "state"
	KindViolation = "violation"
	KindError     = "error"
)

// EventRecord is one row of the tracking history.
type EventRecord struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Intent     string    `json:"intent,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	DistanceKm float64   `json:"distance_km,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventStore handles the tracking history.
type EventStore interface {
	AppendEvent(ctx context.Context, ev *EventRecord) error
	RecentEvents(ctx context.Context, limit int) ([]EventRecord, error)
	CountEvents(ctx context.Context, kind string) (int, error)
}
