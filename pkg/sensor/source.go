package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fencetrack/pkg/clock"
	"fencetrack/pkg/model"
)

// RetryingSource acquires fixes from a Sensor with per-attempt timeouts and a
// fixed-backoff retry loop. Only one acquisition is in flight at a time: a new
// call cancels the previous one, whose caller receives ErrSuperseded.
type RetryingSource struct {
	sensor Sensor
	opts   Options
	name   string

	mu        sync.Mutex
	clock     clock.Clock
	recorders []Recorder
	cancel    context.CancelFunc
	session   uint64
}

// NewRetryingSource creates a source over s. name labels attempt metrics.
func NewRetryingSource(s Sensor, opts Options, name string) *RetryingSource {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &RetryingSource{
		sensor: s,
		opts:   opts,
		name:   name,
		clock:  clock.New(),
	}
}

// SetClock replaces the clock used for backoff.
func (s *RetryingSource) SetClock(c clock.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
}

// AddRecorder registers an attempt observer.
func (s *RetryingSource) AddRecorder(r Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorders = append(s.recorders, r)
}

// Options returns the sensor options used by this source.
func (s *RetryingSource) Options() Options {
	return s.opts
}

// AcquireOnce requests a single fix bounded by timeout (the source default when <= 0).
func (s *RetryingSource) AcquireOnce(ctx context.Context, timeout time.Duration) (model.Position, error) {
	ctx, session, err := s.begin(ctx)
	if err != nil {
		return model.Position{}, err
	}
	defer s.end(session)
	return s.attempt(ctx, timeout, 1)
}

// AcquireWithRetry retries retryable failures up to policy.MaxAttempts with a fixed
// backoff between attempts. PermissionDenied is returned immediately. The returned
// *Error carries the final failure.
func (s *RetryingSource) AcquireWithRetry(ctx context.Context, policy RetryPolicy) (model.Position, error) {
	policy = policy.Normalize()
	ctx, session, err := s.begin(ctx)
	if err != nil {
		return model.Position{}, err
	}
	defer s.end(session)

	var last error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		pos, err := s.attempt(ctx, s.opts.Timeout, attempt)
		if err == nil {
			return pos, nil
		}
		if errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled) {
			return model.Position{}, err
		}
		last = err

		if !KindOf(err).Retryable() {
			slog.Debug("Sensor: permission denied, not retrying", "source", s.name, "attempt", attempt)
			return model.Position{}, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		slog.Debug("Sensor: attempt failed, backing off",
			"source", s.name,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"backoff", policy.Backoff,
			"error", err)
		if err := clock.Sleep(ctx, s.currentClock(), policy.Backoff); err != nil {
			return model.Position{}, s.cancelCause(ctx)
		}
	}
	return model.Position{}, last
}

// Cancel aborts the in-flight acquisition, including any pending backoff.
func (s *RetryingSource) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.session++
}

// Watch subscribes to continuous updates. The returned handle's Stop is idempotent;
// callbacks that race with Stop are dropped, so consumers should still guard
// against stale deliveries.
func (s *RetryingSource) Watch(onUpdate func(model.Position), onError func(*Error)) (*WatchHandle, error) {
	h := &WatchHandle{}
	sub, err := s.sensor.Watch(s.opts,
		func(p model.Position) {
			if h.stopped.Load() {
				return
			}
			onUpdate(p)
		},
		func(err error) {
			if h.stopped.Load() {
				return
			}
			onError(classify(err, 0))
		})
	if err != nil {
		return nil, classify(err, 0)
	}
	h.mu.Lock()
	h.sub = sub
	stopped := h.stopped.Load()
	h.mu.Unlock()
	if stopped {
		sub.Stop()
	}
	return h, nil
}

// begin opens a new session, superseding the current one. A caller whose
// context has already ended gets its cause back and leaves the live session alone.
func (s *RetryingSource) begin(parent context.Context) (context.Context, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if parent.Err() != nil {
		return nil, 0, s.cancelCause(parent)
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancelCause(parent)
	s.session++
	s.cancel = func() { cancel(ErrSuperseded) }
	return ctx, s.session, nil
}

func (s *RetryingSource) end(session uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == session && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *RetryingSource) currentClock() clock.Clock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

func (s *RetryingSource) attempt(ctx context.Context, timeout time.Duration, n int) (model.Position, error) {
	if timeout <= 0 {
		timeout = s.opts.Timeout
	}
	opts := s.opts
	opts.Timeout = timeout

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pos, err := s.sensor.CurrentPosition(actx, opts)
	if ctx.Err() != nil {
		// Late result for a superseded or canceled call.
		return model.Position{}, s.cancelCause(ctx)
	}
	if err != nil {
		serr := classify(err, n)
		if errors.Is(err, context.DeadlineExceeded) {
			serr = &Error{Kind: Timeout, Attempt: n, Err: fmt.Errorf("no fix within %s", timeout)}
		}
		s.record(serr)
		return model.Position{}, serr
	}
	if !pos.Point().Valid() {
		serr := &Error{Kind: Unavailable, Attempt: n, Err: fmt.Errorf("invalid coordinates %.6f,%.6f", pos.Lat, pos.Lon)}
		s.record(serr)
		return model.Position{}, serr
	}
	s.record(nil)
	return pos, nil
}

func (s *RetryingSource) cancelCause(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}

func (s *RetryingSource) record(err error) {
	s.mu.Lock()
	recs := append([]Recorder(nil), s.recorders...)
	s.mu.Unlock()
	for _, r := range recs {
		r.RecordAttempt(s.name, err)
	}
}

// WatchHandle controls a live watch.
type WatchHandle struct {
	mu      sync.Mutex
	sub     Subscription
	stopped atomic.Bool
}

// Stop unsubscribes. Safe to call more than once.
func (h *WatchHandle) Stop() {
	if h == nil || !h.stopped.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	sub := h.sub
	h.mu.Unlock()
	if sub != nil {
		sub.Stop()
	}
}

// Stopped reports whether Stop has been called.
func (h *WatchHandle) Stopped() bool {
	return h == nil || h.stopped.Load()
}
