// Package logging sets up the server, request and tracking event logs.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"fencetrack/pkg/config"
)

// RequestLogger writes one JSON record per HTTP request.
var RequestLogger *slog.Logger

var serverLine = &lineCapture{}

// LastLogLine returns the most recent INFO+ server log record.
func LastLogLine() string { return serverLine.Last() }

// Init rotates the previous run's logs to .old, installs the default server
// logger (file, console capped at INFO, last-line capture), the request logger
// and the event log. The returned func closes every file.
func Init(cfg *config.LogConfig) (cleanup func(), err error) {
	rotate(cfg.Server.Path, cfg.Requests.Path, cfg.Events.Path)

	var closers []io.Closer
	cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	server, err := openAppend(cfg.Server.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server log: %w", err)
	}
	closers = append(closers, server)

	level := parseLevel(cfg.Server.Level)
	slog.SetDefault(slog.New(fanout{
		slog.NewTextHandler(server, &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}),
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: max(level, slog.LevelInfo)}),
		slog.NewTextHandler(serverLine, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}))

	requests, err := openAppend(cfg.Requests.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open request log: %w", err)
	}
	closers = append(closers, requests)
	RequestLogger = slog.New(slog.NewJSONHandler(requests, &slog.HandlerOptions{Level: parseLevel(cfg.Requests.Level)}))

	if cfg.Events.Path != "" {
		events, err := OpenEventLog(cfg.Events.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
		closers = append(closers, closerFunc(func() error {
			setEventLog(nil)
			return events.Close()
		}))
		setEventLog(events)
	}

	return cleanup, nil
}

// parseLevel accepts slog level names in any case; anything else is INFO.
func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// rotate keeps exactly one previous run per log as <path>.old.
func rotate(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		old := p + ".old"
		_ = os.Remove(old)
		_ = os.Rename(p, old)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

//nolint:gocritic // slog.Handler takes the record by value
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
