package sensor

import (
	"context"
	"sync"
	"time"

	"fencetrack/pkg/geo"
	"fencetrack/pkg/model"
)

// RouteConfig drives the replay sensor.
type RouteConfig struct {
	Waypoints []geo.Point
	SpeedMps  float64
	// Tick is the update interval. Zero disables the background loop; callers
	// then move the walker with Advance.
	Tick time.Duration
	Loop bool
	// FailFirst makes the first N CurrentPosition calls fail with Unavailable.
	FailFirst int
	// Deny makes every request fail with PermissionDenied.
	Deny bool
}

// RouteSensor replays a walk along a polyline. It stands in for a device
// sensor during development and in demos.
type RouteSensor struct {
	mu       sync.Mutex
	cfg      RouteConfig
	pos      geo.Point
	segment  int
	heading  float64
	failures int
	nextID   uint64
	watchers map[uint64]*routeWatch
	now      func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed bool
}

type routeWatch struct {
	id       uint64
	owner    *RouteSensor
	onUpdate func(model.Position)
	onError  func(error)
}

// NewRouteSensor creates a replay sensor positioned at the first waypoint.
func NewRouteSensor(cfg RouteConfig) *RouteSensor {
	if cfg.SpeedMps <= 0 {
		cfg.SpeedMps = 1.4
	}
	r := &RouteSensor{
		cfg:      cfg,
		watchers: make(map[uint64]*routeWatch),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	if len(cfg.Waypoints) > 0 {
		r.pos = cfg.Waypoints[0]
	}
	if len(cfg.Waypoints) > 1 {
		r.heading = geo.Bearing(cfg.Waypoints[0], cfg.Waypoints[1])
	}

	if cfg.Tick > 0 {
		r.wg.Add(1)
		go r.walkLoop()
	}
	return r
}

// Close stops the walk loop.
func (r *RouteSensor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	close(r.stopCh)
	r.wg.Wait()
	return nil
}

// CurrentPosition returns the walker's position.
func (r *RouteSensor) CurrentPosition(ctx context.Context, _ Options) (model.Position, error) {
	if err := ctx.Err(); err != nil {
		return model.Position{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return model.Position{}, NewError(Unavailable, ErrStopped.Error())
	}
	if r.cfg.Deny {
		return model.Position{}, NewError(PermissionDenied, "route replay configured to deny access")
	}
	if r.failures < r.cfg.FailFirst {
		r.failures++
		return model.Position{}, NewError(Unavailable, "route replay warming up")
	}
	return r.positionLocked(), nil
}

// Watch subscribes to position updates emitted on every Advance.
func (r *RouteSensor) Watch(_ Options, onUpdate func(model.Position), onError func(error)) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.Deny {
		return nil, NewError(PermissionDenied, "route replay configured to deny access")
	}
	r.nextID++
	w := &routeWatch{id: r.nextID, owner: r, onUpdate: onUpdate, onError: onError}
	r.watchers[w.id] = w
	return w, nil
}

func (w *routeWatch) Stop() {
	w.owner.mu.Lock()
	defer w.owner.mu.Unlock()
	delete(w.owner.watchers, w.id)
}

// Advance moves the walker by dt along the route and notifies watchers.
func (r *RouteSensor) Advance(dt time.Duration) {
	r.mu.Lock()
	r.moveLocked(r.cfg.SpeedMps * dt.Seconds())
	pos := r.positionLocked()
	watchers := make([]*routeWatch, 0, len(r.watchers))
	for _, w := range r.watchers {
		watchers = append(watchers, w)
	}
	r.mu.Unlock()

	for _, w := range watchers {
		w.onUpdate(pos)
	}
}

// Position returns the current walker point.
func (r *RouteSensor) Position() geo.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

func (r *RouteSensor) walkLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Advance(r.cfg.Tick)
		}
	}
}

func (r *RouteSensor) moveLocked(distM float64) {
	wps := r.cfg.Waypoints
	for distM > 0 && len(wps) > 1 {
		if r.segment >= len(wps)-1 {
			if !r.cfg.Loop {
				return
			}
			r.segment = 0
			r.pos = wps[0]
		}
		target := wps[r.segment+1]
		remaining := geo.Distance(r.pos, target)
		if remaining <= distM {
			distM -= remaining
			r.pos = target
			r.segment++
		} else {
			r.heading = geo.Bearing(r.pos, target)
			r.pos = geo.DestinationPoint(r.pos, distM, r.heading)
			distM = 0
		}
	}
}

func (r *RouteSensor) positionLocked() model.Position {
	heading := r.heading
	accuracy := 5.0
	return model.Position{
		Lat:         r.pos.Lat,
		Lon:         r.pos.Lon,
		HeadingDeg:  &heading,
		AccuracyM:   &accuracy,
		TimestampMs: r.now().UnixMilli(),
	}
}
