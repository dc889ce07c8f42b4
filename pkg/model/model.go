package model

import (
	"time"

	"fencetrack/pkg/geo"
)

// Position is a single fix produced by a location sensor. It is never mutated.
type Position struct {
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	HeadingDeg  *float64 `json:"heading_deg,omitempty"`
	AccuracyM   *float64 `json:"accuracy_m,omitempty"`
	TimestampMs int64    `json:"timestamp_ms"`
}

// Point returns the fix as a geographic point.
func (p Position) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lon}
}

// Heading returns the reported heading, or fallback when the sensor gave none.
func (p Position) Heading(fallback float64) float64 {
	if p.HeadingDeg == nil {
		return fallback
	}
	return *p.HeadingDeg
}

// Time returns the fix timestamp.
func (p Position) Time() time.Time {
	return time.UnixMilli(p.TimestampMs)
}

// WatchState is the tracking subscription's current mode.
type WatchState string

const (
	// WatchOff means no active subscription.
	WatchOff WatchState = "OFF"
	// WatchActiveLock means the camera follows position updates.
	WatchActiveLock WatchState = "ACTIVE_LOCK"
	// WatchActiveError means the subscription is alive but the camera does not follow.
	WatchActiveError WatchState = "ACTIVE_ERROR"
	// WatchPaused means tracking is suspended but resumable without re-acquiring permission.
	WatchPaused WatchState = "PAUSED"
)

// Subscribed reports whether a watch subscription is alive in this state.
func (s WatchState) Subscribed() bool {
	return s != WatchOff && s != ""
}

// Intent distinguishes a user button-press from a background watch update.
type Intent int

const (
	// Automatic marks ambient updates from continuous tracking.
	Automatic Intent = iota
	// UserInitiated marks the result of an acquisition triggered by the user.
	UserInitiated
)

func (i Intent) String() string {
	if i == UserInitiated {
		return "user"
	}
	return "automatic"
}

// Pose is a map viewport camera pose.
type Pose struct {
	Center  geo.Point `json:"center"`
	Zoom    float64   `json:"zoom"`
	Pitch   float64   `json:"pitch"`
	Bearing float64   `json:"bearing"`
}

// DistanceMarker is a derived, ephemeral label for a catalog feature near the user.
type DistanceMarker struct {
	FeatureID string    `json:"feature_id"`
	Name      string    `json:"name,omitempty"`
	Target    geo.Point `json:"target"`
	DistanceM float64   `json:"distance_m"`
}

// Feature is a point of interest published by the data-loading collaborator.
type Feature struct {
	ID          string            `json:"id"`
	Coordinates geo.Point         `json:"coordinates"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// Name returns the display name property, falling back to the ID.
func (f *Feature) Name() string {
	if n := f.Properties["name"]; n != "" {
		return n
	}
	return f.ID
}
