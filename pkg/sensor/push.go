package sensor

import (
	"context"
	"sync"

	"fencetrack/pkg/clock"
	"fencetrack/pkg/model"
)

// PushSensor is a Sensor fed from outside the process, typically by a browser
// posting Geolocation API results. Fixes and errors are fanned out to pending
// CurrentPosition callers and live watchers in the order they are pushed.
type PushSensor struct {
	clock clock.Clock

	mu       sync.Mutex
	last     *model.Position
	lastAtMs int64
	nextID   uint64
	waiters  map[uint64]chan pushResult
	watchers map[uint64]*pushWatch

	deliverMu sync.Mutex
}

type pushResult struct {
	pos model.Position
	err error
}

type pushWatch struct {
	id       uint64
	owner    *PushSensor
	onUpdate func(model.Position)
	onError  func(error)
}

// NewPushSensor creates an empty push-fed sensor.
func NewPushSensor(c clock.Clock) *PushSensor {
	if c == nil {
		c = clock.New()
	}
	return &PushSensor{
		clock:    c,
		waiters:  make(map[uint64]chan pushResult),
		watchers: make(map[uint64]*pushWatch),
	}
}

// PushFix delivers a fix to all waiters and watchers.
func (p *PushSensor) PushFix(pos model.Position) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	cp := pos
	p.last = &cp
	p.lastAtMs = p.clock.Now().UnixMilli()
	waiters, watchers := p.drainLocked()
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- pushResult{pos: pos}
	}
	for _, w := range watchers {
		if p.watching(w.id) {
			w.onUpdate(pos)
		}
	}
}

// PushError delivers a failure to all waiters and watchers.
func (p *PushSensor) PushError(err *Error) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	waiters, watchers := p.drainLocked()
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- pushResult{err: err}
	}
	for _, w := range watchers {
		if p.watching(w.id) {
			w.onError(err)
		}
	}
}

// Last returns the most recent fix, if any.
func (p *PushSensor) Last() (model.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return model.Position{}, false
	}
	return *p.last, true
}

// Watchers returns the number of live watch subscriptions.
func (p *PushSensor) Watchers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watchers)
}

// CurrentPosition returns a cached fix younger than opts.MaxAge, otherwise waits
// for the next push.
func (p *PushSensor) CurrentPosition(ctx context.Context, opts Options) (model.Position, error) {
	p.mu.Lock()
	if p.last != nil && opts.MaxAge > 0 && p.clock.Now().UnixMilli()-p.lastAtMs <= opts.MaxAge.Milliseconds() {
		pos := *p.last
		p.mu.Unlock()
		return pos, nil
	}
	p.nextID++
	id := p.nextID
	ch := make(chan pushResult, 1)
	p.waiters[id] = ch
	p.mu.Unlock()

	select {
	case res := <-ch:
		return res.pos, res.err
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.waiters, id)
		p.mu.Unlock()
		return model.Position{}, ctx.Err()
	}
}

// Watch registers a live subscription.
func (p *PushSensor) Watch(_ Options, onUpdate func(model.Position), onError func(error)) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	w := &pushWatch{id: p.nextID, owner: p, onUpdate: onUpdate, onError: onError}
	p.watchers[w.id] = w
	return w, nil
}

func (w *pushWatch) Stop() {
	w.owner.mu.Lock()
	defer w.owner.mu.Unlock()
	delete(w.owner.watchers, w.id)
}

func (p *PushSensor) drainLocked() ([]chan pushResult, []*pushWatch) {
	waiters := make([]chan pushResult, 0, len(p.waiters))
	for id, ch := range p.waiters {
		waiters = append(waiters, ch)
		delete(p.waiters, id)
	}
	watchers := make([]*pushWatch, 0, len(p.watchers))
	for _, w := range p.watchers {
		watchers = append(watchers, w)
	}
	return waiters, watchers
}

func (p *PushSensor) watching(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.watchers[id]
	return ok
}
