package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// ErrInvalidBoundary is returned when a boundary cannot be constructed.
var ErrInvalidBoundary = errors.New("invalid boundary")

// Boundary is a circular geofence. It is immutable after construction.
type Boundary struct {
	center   Point
	radiusKm float64
}

// NewBoundary validates and creates a boundary.
func NewBoundary(center Point, radiusKm float64) (Boundary, error) {
	if !center.Valid() {
		return Boundary{}, fmt.Errorf("%w: center %v out of range", ErrInvalidBoundary, center)
	}
	if radiusKm <= 0 {
		return Boundary{}, fmt.Errorf("%w: radius %.3f km must be positive", ErrInvalidBoundary, radiusKm)
	}
	return Boundary{center: center, radiusKm: radiusKm}, nil
}

// Center returns the boundary center.
func (b Boundary) Center() Point { return b.center }

// RadiusKm returns the boundary radius in kilometers.
func (b Boundary) RadiusKm() float64 { return b.radiusKm }

// DistanceKm returns how far p is from the boundary center.
func (b Boundary) DistanceKm(p Point) float64 {
	return HaversineKm(b.center, p)
}

// Contains reports whether p lies inside the boundary. The radius is inclusive.
func (b Boundary) Contains(p Point) bool {
	return IsInside(b, p)
}

// Feature returns the boundary circle as a GeoJSON feature.
func (b Boundary) Feature() *geojson.Feature {
	f := CircleFeature(b.center, b.radiusKm*1000, DefaultCirclePoints)
	f.Properties["radius_km"] = b.radiusKm
	return f
}

// IsInside classifies p against the boundary. It is stateless and safe for concurrent use.
func IsInside(b Boundary, p Point) bool {
	return HaversineKm(b.center, p) <= b.radiusKm
}
