package tracking

import (
	"context"
	"sync"

	"fencetrack/pkg/animation"
	"fencetrack/pkg/camera"
	"fencetrack/pkg/geo"
	"fencetrack/pkg/model"
	"fencetrack/pkg/presentation"
	"fencetrack/pkg/sensor"
)

type acquisition struct {
	pos model.Position
	err error
}

// fakeSource hands out scripted acquisition results and lets tests drive the watch.
type fakeSource struct {
	mu           sync.Mutex
	results      chan acquisition
	ignoreCancel bool
	acquires     int
	returned     int
	cancels      int
	watchErr     error
	watches      []*fakeWatch
}

type fakeWatch struct {
	handle   *sensor.WatchHandle
	onUpdate func(model.Position)
	onError  func(*sensor.Error)
}

func newFakeSource() *fakeSource {
	return &fakeSource{results: make(chan acquisition, 8)}
}

func (f *fakeSource) AcquireWithRetry(ctx context.Context, _ sensor.RetryPolicy) (model.Position, error) {
	f.mu.Lock()
	f.acquires++
	ignore := f.ignoreCancel
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.returned++
		f.mu.Unlock()
	}()

	if ignore {
		r := <-f.results
		return r.pos, r.err
	}
	select {
	case r := <-f.results:
		return r.pos, r.err
	case <-ctx.Done():
		return model.Position{}, sensor.ErrSuperseded
	}
}

func (f *fakeSource) Watch(onUpdate func(model.Position), onError func(*sensor.Error)) (*sensor.WatchHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	w := &fakeWatch{handle: &sensor.WatchHandle{}, onUpdate: onUpdate, onError: onError}
	f.watches = append(f.watches, w)
	return w.handle, nil
}

func (f *fakeSource) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeSource) resolve(pos model.Position, err error) {
	f.results <- acquisition{pos: pos, err: err}
}

// update delivers an ambient fix to every live watch.
func (f *fakeSource) update(pos model.Position) {
	for _, w := range f.live() {
		w.onUpdate(pos)
	}
}

func (f *fakeSource) fail(err *sensor.Error) {
	for _, w := range f.live() {
		w.onError(err)
	}
}

func (f *fakeSource) live() []*fakeWatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeWatch
	for _, w := range f.watches {
		if !w.handle.Stopped() {
			out = append(out, w)
		}
	}
	return out
}

func (f *fakeSource) liveWatches() int { return len(f.live()) }

func (f *fakeSource) counts() (acquires, returned, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires, f.returned, f.cancels
}

// fakeCamera jumps instantly to every requested pose.
type fakeCamera struct {
	mu       sync.Mutex
	pose     model.Pose
	moving   bool
	requests []camera.Request
	releases int
}

func (c *fakeCamera) Run(req camera.Request) *camera.Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	c.pose = req.Target
	return nil
}

func (c *fakeCamera) Pose() model.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose
}

func (c *fakeCamera) IsMoving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moving
}

func (c *fakeCamera) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
}

func (c *fakeCamera) labels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.requests))
	for _, r := range c.requests {
		out = append(out, r.Label)
	}
	return out
}

func (c *fakeCamera) lastRequest() camera.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

type fakePresenter struct {
	mu            sync.Mutex
	noticeOpen    bool
	notices       int
	errors        []int
	highlights    int
	radiusShown   int
	radiusCleared int
}

func (p *fakePresenter) ShowViolationNotice(geo.Boundary) presentation.Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices++
	return presentation.Notice{ID: "n"}
}

func (p *fakePresenter) NoticeOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.noticeOpen
}

func (p *fakePresenter) HighlightBoundaryOverlay() *animation.Ramp {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.highlights++
	return nil
}

func (p *fakePresenter) ShowSearchRadius(geo.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.radiusShown++
}

func (p *fakePresenter) ClearSearchRadius() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.radiusCleared++
}

func (p *fakePresenter) ShowError(code int) presentation.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, code)
	return presentation.Notification{Code: code}
}

type presenterCounts struct {
	notices       int
	errors        []int
	highlights    int
	radiusShown   int
	radiusCleared int
}

func (p *fakePresenter) counts() presenterCounts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return presenterCounts{
		notices:       p.notices,
		errors:        append([]int(nil), p.errors...),
		highlights:    p.highlights,
		radiusShown:   p.radiusShown,
		radiusCleared: p.radiusCleared,
	}
}

func (p *fakePresenter) setNoticeOpen(open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.noticeOpen = open
}

type fakeMarkers struct{ markers []model.DistanceMarker }

func (f fakeMarkers) Nearby(geo.Point, float64) []model.DistanceMarker { return f.markers }
