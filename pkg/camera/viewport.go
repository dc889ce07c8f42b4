// Package camera serializes map viewport transitions so that at most one is in
// flight per map.
package camera

import (
	"time"

	"fencetrack/pkg/model"
)

// Kind is the viewport animation primitive.
type Kind string

const (
	// Fly is a long, zooming arc.
	Fly Kind = "fly"
	// Ease is a short linear move.
	Ease Kind = "ease"
)

// Easing maps normalized time [0,1] to progress [0,1].
type Easing func(t float64) float64

// Linear progresses at constant speed.
func Linear(t float64) float64 { return t }

// EaseOutQuad decelerates towards the end.
func EaseOutQuad(t float64) float64 { return t * (2 - t) }

// EaseInOutCubic is the default fly curve.
func EaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := 2*t - 2
	return 1 + f*f*f/2
}

// Viewport is the consumed map camera capability.
type Viewport interface {
	// Animate moves the camera to target. done is called exactly once: with true
	// when the camera arrived, with false when the animation was stopped.
	Animate(kind Kind, target model.Pose, duration time.Duration, easing Easing, done func(arrived bool)) (stop func())
	Pose() model.Pose
	IsMoving() bool
	// OnInteraction registers fn for user gesture starts (drag, zoom, rotate, pitch).
	OnInteraction(fn func()) (remove func())
}
