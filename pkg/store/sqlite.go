package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"fencetrack/pkg/db"
)

// Store defines the repository interface.
// Consumers should depend on the sub-interfaces when possible.
type Store interface {
	StateStore
	EventStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		slog.Warn("Store: state lookup failed", "key", key, "error", err)
		return "", false
	}
	return val.String, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now().UTC())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}

// --- Events ---

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *EventRecord) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	query := `INSERT INTO tracking_events (kind, state_from, state_to, intent, reason, distance_km, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		ev.Kind, ev.From, ev.To, ev.Intent, ev.Reason, ev.DistanceKm,
		ev.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err == nil {
		ev.ID = id
	}
	return nil
}

// RecentEvents returns the newest events first.
func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, state_from, state_to, intent, reason, distance_km, created_at
		FROM tracking_events ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var ev EventRecord
		var from, to, intent, reason sql.NullString
		var dist sql.NullFloat64
		var created string
		if err := rows.Scan(&ev.ID, &ev.Kind, &from, &to, &intent, &reason, &dist, &created); err != nil {
			return nil, err
		}
		ev.From, ev.To, ev.Intent, ev.Reason = from.String, to.String, intent.String, reason.String
		ev.DistanceKm = dist.Float64
		ev.CreatedAt = parseTimestamp(created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountEvents(ctx context.Context, kind string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM tracking_events WHERE kind = ?", kind).Scan(&n)
	return n, err
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
