// Package sensor wraps the device location capability with timeout and retry policy.
package sensor

import (
	"context"
	"time"

	"fencetrack/pkg/model"
)

// Options are passed to the device sensor on every request.
type Options struct {
	HighAccuracy bool
	MaxAge       time.Duration
	Timeout      time.Duration
}

// DefaultOptions mirrors the geolocate control settings of the web front end.
func DefaultOptions() Options {
	return Options{
		HighAccuracy: true,
		MaxAge:       time.Second,
		Timeout:      6 * time.Second,
	}
}

// Sensor is the consumed location capability.
type Sensor interface {
	// CurrentPosition blocks until the sensor produces one fix or ctx ends.
	CurrentPosition(ctx context.Context, opts Options) (model.Position, error)
	// Watch subscribes to continuous updates. Callbacks are delivered in arrival order.
	Watch(opts Options, onUpdate func(model.Position), onError func(error)) (Subscription, error)
}

// Subscription is a live watch registration on a Sensor.
type Subscription interface {
	Stop()
}

// RetryPolicy controls acquisition resilience. Backoff is fixed, not exponential.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Normalize clamps the policy to valid values.
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// Recorder observes single acquisition attempts. err is nil on success.
type Recorder interface {
	RecordAttempt(source string, err error)
}
