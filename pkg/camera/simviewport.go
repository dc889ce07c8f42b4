package camera

import (
	"sync"
	"time"

	"fencetrack/pkg/animation"
	"fencetrack/pkg/clock"
	"fencetrack/pkg/geo"
	"fencetrack/pkg/model"
)

// SimViewport is an in-process viewport that interpolates the pose on every
// animation frame. The server keeps one as the authoritative camera state and
// mirrors commands to connected map clients.
type SimViewport struct {
	frames animation.Frames
	clock  clock.Clock

	mu        sync.Mutex
	pose      model.Pose
	anim      *simAnim
	nextID    uint64
	listeners map[uint64]func()
}

type simAnim struct {
	from, to    model.Pose
	start       time.Time
	duration    time.Duration
	easing      Easing
	done        func(bool)
	cancelFrame func()
}

// NewSimViewport creates a viewport at the initial pose.
func NewSimViewport(initial model.Pose, frames animation.Frames, c clock.Clock) *SimViewport {
	return &SimViewport{
		frames:    frames,
		clock:     c,
		pose:      initial,
		listeners: make(map[uint64]func()),
	}
}

// Animate implements Viewport.
func (v *SimViewport) Animate(_ Kind, target model.Pose, duration time.Duration, easing Easing, done func(bool)) func() {
	if easing == nil {
		easing = Linear
	}

	v.mu.Lock()
	prev := v.takeLocked()
	if duration <= 0 {
		v.pose = target
		v.mu.Unlock()
		if prev != nil {
			prev.done(false)
		}
		done(true)
		return func() {}
	}

	a := &simAnim{
		from:     v.pose,
		to:       target,
		start:    v.clock.Now(),
		duration: duration,
		easing:   easing,
		done:     done,
	}
	v.anim = a
	a.cancelFrame = v.frames.RequestFrame(func() { v.step(a) })
	v.mu.Unlock()

	if prev != nil {
		prev.done(false)
	}
	return func() { v.stop(a) }
}

// Pose implements Viewport.
func (v *SimViewport) Pose() model.Pose {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pose
}

// IsMoving implements Viewport.
func (v *SimViewport) IsMoving() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.anim != nil
}

// OnInteraction implements Viewport.
func (v *SimViewport) OnInteraction(fn func()) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	id := v.nextID
	v.listeners[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.listeners, id)
	}
}

// Listeners returns the number of registered gesture listeners.
func (v *SimViewport) Listeners() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.listeners)
}

// Interact simulates a user gesture. Listeners hear about it before the
// running animation is stopped, matching map libraries that emit movestart first.
func (v *SimViewport) Interact(pose *model.Pose) {
	v.mu.Lock()
	fns := make([]func(), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn()
	}

	v.mu.Lock()
	prev := v.takeLocked()
	if pose != nil {
		v.pose = *pose
	}
	v.mu.Unlock()
	if prev != nil {
		prev.done(false)
	}
}

func (v *SimViewport) step(a *simAnim) {
	v.mu.Lock()
	if v.anim != a {
		v.mu.Unlock()
		return
	}
	t := float64(v.clock.Now().Sub(a.start)) / float64(a.duration)
	if t >= 1 {
		v.pose = a.to
		v.anim = nil
		v.mu.Unlock()
		a.done(true)
		return
	}
	if t < 0 {
		t = 0
	}
	v.pose = Interpolate(a.from, a.to, a.easing(t))
	a.cancelFrame = v.frames.RequestFrame(func() { v.step(a) })
	v.mu.Unlock()
}

func (v *SimViewport) stop(a *simAnim) {
	v.mu.Lock()
	if v.anim != a {
		v.mu.Unlock()
		return
	}
	v.takeLocked()
	v.mu.Unlock()
	a.done(false)
}

func (v *SimViewport) takeLocked() *simAnim {
	a := v.anim
	if a == nil {
		return nil
	}
	if a.cancelFrame != nil {
		a.cancelFrame()
	}
	v.anim = nil
	return a
}

// Interpolate blends two poses. Bearing takes the shorter way round.
func Interpolate(from, to model.Pose, k float64) model.Pose {
	lerp := func(a, b float64) float64 { return a + (b-a)*k }
	return model.Pose{
		Center: geo.Point{
			Lat: lerp(from.Center.Lat, to.Center.Lat),
			Lon: lerp(from.Center.Lon, to.Center.Lon),
		},
		Zoom:    lerp(from.Zoom, to.Zoom),
		Pitch:   lerp(from.Pitch, to.Pitch),
		Bearing: geo.NormalizeAngle(from.Bearing + geo.NormalizeAngle(to.Bearing-from.Bearing)*k),
	}
}
