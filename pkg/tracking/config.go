package tracking

import (
	"time"

	"fencetrack/pkg/geo"
	"fencetrack/pkg/sensor"
)

// Config is fixed for the lifetime of a Machine.
type Config struct {
	Boundary      geo.Boundary
	Retry         sensor.RetryPolicy
	NearbyRadiusM float64

	// Camera follow.
	FollowZoom         float64
	FollowPitch        float64
	FirstFixDuration   time.Duration
	FollowDuration     time.Duration
	RecenterThresholdM float64

	// Boundary recenter after a violation.
	BoundaryZoom     float64
	BoundaryDuration time.Duration

	// Camera reset when tracking ends.
	EndPitch    float64
	EndDuration time.Duration
}

// DefaultConfig returns the stock tracking settings for boundary b.
func DefaultConfig(b geo.Boundary) Config {
	return Config{
		Boundary:           b,
		Retry:              sensor.RetryPolicy{MaxAttempts: 3, Backoff: 2 * time.Second},
		NearbyRadiusM:      25,
		FollowZoom:         17.5,
		FollowPitch:        45,
		FirstFixDuration:   2 * time.Second,
		FollowDuration:     time.Second,
		RecenterThresholdM: 50,
		BoundaryZoom:       14,
		BoundaryDuration:   1500 * time.Millisecond,
		EndPitch:           45,
		EndDuration:        500 * time.Millisecond,
	}
}
