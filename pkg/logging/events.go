package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event kinds written to the event log.
const (
	KindState     = "state"
	KindViolation = "violation"
	KindError     = "error"
)

// Event is one tracking event. Zero fields are left out of the line.
type Event struct {
	Kind       string
	From       string
	To         string
	Intent     string
	Reason     string
	DistanceKm float64
	At         time.Time
}

func (e *Event) attrs() []slog.Attr {
	var out []slog.Attr
	add := func(key, val string) {
		if val != "" {
			out = append(out, slog.String(key, val))
		}
	}
	add("from", e.From)
	add("to", e.To)
	add("intent", e.Intent)
	add("reason", e.Reason)
	if e.DistanceKm > 0 {
		out = append(out, slog.String("distance_km", strconv.FormatFloat(e.DistanceKm, 'f', 2, 64)))
	}
	return out
}

// EventLog journals tracking events as logfmt lines:
//
//	time=2026-03-01T12:00:00.000Z event=state from=OFF to=ACTIVE_LOCK reason=acquired
type EventLog struct {
	mu      sync.Mutex
	file    *os.File
	handler slog.Handler
	last    lineCapture
}

// OpenEventLog appends to the event log at path.
func OpenEventLog(path string) (*EventLog, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	l := &EventLog{file: f}
	l.handler = slog.NewTextHandler(io.MultiWriter(f, &l.last), &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.LevelKey:
				return slog.Attr{}
			case slog.MessageKey:
				a.Key = "event"
			case slog.TimeKey:
				a.Value = slog.TimeValue(a.Value.Time().UTC())
			}
			return a
		},
	})
	return l, nil
}

// Record writes e. A zero At is stamped with the current time.
func (l *EventLog) Record(e Event) {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	r := slog.NewRecord(at, slog.LevelInfo, e.Kind, 0)
	r.AddAttrs(e.attrs()...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	if err := l.handler.Handle(context.Background(), r); err != nil {
		slog.Error("Logging: failed to write event log", "error", err)
	}
}

// LastLine returns the most recent event line.
func (l *EventLog) LastLine() string { return l.last.Last() }

// Close closes the file. Later records are dropped.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

var current atomic.Pointer[EventLog]

func setEventLog(l *EventLog) { current.Store(l) }

// LogEvent records e in the event log installed by Init, if any.
func LogEvent(e Event) {
	if l := current.Load(); l != nil {
		l.Record(e)
	}
}

// LastEvent returns the most recent line of the installed event log.
func LastEvent() string {
	if l := current.Load(); l != nil {
		return l.LastLine()
	}
	return ""
}

// lineCapture keeps the last line written to it. slog handlers emit one Write
// per record, so that is always a whole record.
type lineCapture struct {
	mu   sync.RWMutex
	line string
}

func (c *lineCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.line = strings.TrimRight(string(p), "\n")
	c.mu.Unlock()
	return len(p), nil
}

func (c *lineCapture) Last() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.line
}
