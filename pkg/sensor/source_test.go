package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fencetrack/pkg/clock"
	"fencetrack/pkg/model"
)

type step func(ctx context.Context) (model.Position, error)

type scriptedSensor struct {
	mu     sync.Mutex
	calls  int
	script []step
}

func (s *scriptedSensor) CurrentPosition(ctx context.Context, _ Options) (model.Position, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	var fn step
	if i < len(s.script) {
		fn = s.script[i]
	} else if len(s.script) > 0 {
		fn = s.script[len(s.script)-1]
	}
	s.mu.Unlock()
	if fn == nil {
		return model.Position{}, NewError(Unknown, "no script")
	}
	return fn(ctx)
}

func (s *scriptedSensor) Watch(_ Options, _ func(model.Position), _ func(error)) (Subscription, error) {
	return nil, NewError(Unavailable, "not supported")
}

func (s *scriptedSensor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fix(lat, lon float64) step {
	return func(context.Context) (model.Position, error) {
		return model.Position{Lat: lat, Lon: lon, TimestampMs: 1}, nil
	}
}

func fail(kind Kind) step {
	return func(context.Context) (model.Position, error) {
		return model.Position{}, NewError(kind, "scripted")
	}
}

func block() step {
	return func(ctx context.Context) (model.Position, error) {
		<-ctx.Done()
		return model.Position{}, ctx.Err()
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	ok, fail int
}

func (r *countingRecorder) RecordAttempt(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		r.ok++
	} else {
		r.fail++
	}
}

func newSource(s Sensor) (*RetryingSource, *clock.Fake) {
	fake := clock.NewFake(time.Unix(0, 0))
	src := NewRetryingSource(s, DefaultOptions(), "test")
	src.SetClock(fake)
	return src, fake
}

type acquireResult struct {
	pos model.Position
	err error
}

func acquireAsync(src *RetryingSource, policy RetryPolicy) <-chan acquireResult {
	out := make(chan acquireResult, 1)
	go func() {
		pos, err := src.AcquireWithRetry(context.Background(), policy)
		out <- acquireResult{pos: pos, err: err}
	}()
	return out
}

func TestAcquireWithRetry_SucceedsAfterBackoff(t *testing.T) {
	s := &scriptedSensor{script: []step{fail(Unavailable), fail(Timeout), fix(50.888, 5.9685)}}
	src, fake := newSource(s)
	rec := &countingRecorder{}
	src.AddRecorder(rec)

	done := acquireAsync(src, RetryPolicy{MaxAttempts: 3, Backoff: 2 * time.Second})

	for i := 0; i < 2; i++ {
		require.True(t, fake.BlockUntil(1, time.Second), "backoff %d not scheduled", i+1)
		fake.Advance(2 * time.Second)
	}

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, 50.888, res.pos.Lat)
	case <-time.After(2 * time.Second):
		t.Fatal("acquisition did not finish")
	}
	assert.Equal(t, 3, s.Calls())
	assert.Equal(t, 1, rec.ok)
	assert.Equal(t, 2, rec.fail)
}

func TestAcquireWithRetry_Exhausted(t *testing.T) {
	s := &scriptedSensor{script: []step{fail(Unavailable)}}
	src, fake := newSource(s)

	done := acquireAsync(src, RetryPolicy{MaxAttempts: 3, Backoff: 2 * time.Second})
	for i := 0; i < 2; i++ {
		require.True(t, fake.BlockUntil(1, time.Second))
		fake.Advance(2 * time.Second)
	}

	res := <-done
	require.Error(t, res.err)
	var se *Error
	require.True(t, errors.As(res.err, &se))
	assert.Equal(t, Unavailable, se.Kind)
	assert.Equal(t, 3, se.Attempt)
	assert.Equal(t, 3, s.Calls())
	assert.Equal(t, 0, fake.Pending(), "no backoff after the final attempt")
}

func TestAcquireWithRetry_PermissionDeniedShortCircuits(t *testing.T) {
	s := &scriptedSensor{script: []step{fail(PermissionDenied), fix(1, 1)}}
	src, _ := newSource(s)

	_, err := src.AcquireWithRetry(context.Background(), RetryPolicy{MaxAttempts: 3, Backoff: time.Hour})
	require.Error(t, err)
	assert.Equal(t, PermissionDenied, KindOf(err))
	assert.Equal(t, 1, s.Calls())
}

func TestAcquireWithRetry_SingleAttemptPolicy(t *testing.T) {
	s := &scriptedSensor{script: []step{fail(Timeout), fix(1, 1)}}
	src, _ := newSource(s)

	_, err := src.AcquireWithRetry(context.Background(), RetryPolicy{MaxAttempts: 0})
	assert.Equal(t, Timeout, KindOf(err))
	assert.Equal(t, 1, s.Calls())
}

func TestAcquireOnce_Timeout(t *testing.T) {
	s := &scriptedSensor{script: []step{block()}}
	src, _ := newSource(s)

	start := time.Now()
	_, err := src.AcquireOnce(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, Timeout, KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquireOnce_InvalidCoordinates(t *testing.T) {
	s := &scriptedSensor{script: []step{fix(123, 5)}}
	src, _ := newSource(s)

	_, err := src.AcquireOnce(context.Background(), time.Second)
	assert.Equal(t, Unavailable, KindOf(err))
}

func TestAcquire_NewCallSupersedesPrevious(t *testing.T) {
	s := &scriptedSensor{script: []step{block(), fix(2, 2)}}
	src, _ := newSource(s)

	first := acquireAsync(src, RetryPolicy{MaxAttempts: 1})
	require.Eventually(t, func() bool { return s.Calls() == 1 }, time.Second, time.Millisecond)

	pos, err := src.AcquireOnce(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2.0, pos.Lat)

	res := <-first
	assert.ErrorIs(t, res.err, ErrSuperseded)
}

func TestAcquire_CanceledCallerLeavesLiveCall(t *testing.T) {
	release := make(chan struct{})
	s := &scriptedSensor{script: []step{func(ctx context.Context) (model.Position, error) {
		select {
		case <-release:
			return model.Position{Lat: 3, Lon: 3, TimestampMs: 1}, nil
		case <-ctx.Done():
			return model.Position{}, ctx.Err()
		}
	}}}
	src, _ := newSource(s)

	live := acquireAsync(src, RetryPolicy{MaxAttempts: 1})
	require.Eventually(t, func() bool { return s.Calls() == 1 }, time.Second, time.Millisecond)

	stale, cancel := context.WithCancel(context.Background())
	cancel()
	tests := []struct {
		name    string
		acquire func() error
	}{
		{"WithRetry", func() error {
			_, err := src.AcquireWithRetry(stale, RetryPolicy{MaxAttempts: 3})
			return err
		}},
		{"Once", func() error {
			_, err := src.AcquireOnce(stale, time.Second)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.acquire()
			assert.ErrorIs(t, err, context.Canceled)
			assert.NotErrorIs(t, err, ErrSuperseded)
		})
	}
	assert.Equal(t, 1, s.Calls(), "a canceled caller never reaches the sensor")

	close(release)
	res := <-live
	require.NoError(t, res.err)
	assert.Equal(t, 3.0, res.pos.Lat)
}

func TestCancel_AbortsBackoff(t *testing.T) {
	s := &scriptedSensor{script: []step{fail(Unavailable)}}
	src, fake := newSource(s)

	done := acquireAsync(src, RetryPolicy{MaxAttempts: 3, Backoff: 2 * time.Second})
	require.True(t, fake.BlockUntil(1, time.Second))
	src.Cancel()

	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("cancel did not interrupt backoff")
	}
	assert.Equal(t, 1, s.Calls())
}

func TestWatch_StopIsIdempotent(t *testing.T) {
	push := NewPushSensor(nil)
	src := NewRetryingSource(push, DefaultOptions(), "push")

	var mu sync.Mutex
	var got []float64
	h, err := src.Watch(func(p model.Position) {
		mu.Lock()
		got = append(got, p.Lat)
		mu.Unlock()
	}, func(*Error) {})
	require.NoError(t, err)
	assert.Equal(t, 1, push.Watchers())

	push.PushFix(model.Position{Lat: 1})
	h.Stop()
	h.Stop()
	push.PushFix(model.Position{Lat: 2})

	assert.True(t, h.Stopped())
	assert.Equal(t, 0, push.Watchers())
	mu.Lock()
	assert.Equal(t, []float64{1}, got)
	mu.Unlock()
}

func TestWatch_ErrorsAreTyped(t *testing.T) {
	push := NewPushSensor(nil)
	src := NewRetryingSource(push, DefaultOptions(), "push")

	var got *Error
	h, err := src.Watch(func(model.Position) {}, func(e *Error) { got = e })
	require.NoError(t, err)
	defer h.Stop()

	push.PushError(NewError(Timeout, "slow"))
	require.NotNil(t, got)
	assert.Equal(t, Timeout, got.Kind)
}

func TestWatch_SensorRefuses(t *testing.T) {
	src := NewRetryingSource(NewRouteSensor(RouteConfig{Deny: true}), DefaultOptions(), "route")
	h, err := src.Watch(func(model.Position) {}, func(*Error) {})
	assert.Nil(t, h)
	assert.Equal(t, PermissionDenied, KindOf(err))

	var nilHandle *WatchHandle
	nilHandle.Stop()
	assert.True(t, nilHandle.Stopped())
}
