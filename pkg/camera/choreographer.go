package camera

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fencetrack/pkg/model"
)

// ErrStopped is returned by Wait when the choreographer was closed.
var ErrStopped = errors.New("camera: choreographer stopped")

// Policy decides what happens to a request while another transition is in flight.
type Policy int

const (
	// Supersede stops the active transition and drops the queue.
	Supersede Policy = iota
	// Queue runs the request after the active transition and any earlier queued ones complete.
	Queue
)

func (p Policy) String() string {
	if p == Queue {
		return "queue"
	}
	return "supersede"
}

// Outcome is how a transition ended.
type Outcome int

const (
	Pending Outcome = iota
	// Completed means the viewport arrived at the target.
	Completed
	// Canceled means a newer request or teardown replaced the transition.
	Canceled
	// Interrupted means a user gesture took over the camera.
	Interrupted
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Canceled:
		return "canceled"
	case Interrupted:
		return "interrupted"
	default:
		return "pending"
	}
}

// Request describes one viewport transition.
type Request struct {
	Kind     Kind
	Target   model.Pose
	Duration time.Duration
	Easing   Easing
	Policy   Policy
	// Label names the transition in logs and events (e.g. "follow", "boundary", "intro").
	Label string
}

// Transition is the one-shot completion handle of a Request.
type Transition struct {
	ID  string
	Req Request

	once    sync.Once
	done    chan struct{}
	mu      sync.Mutex
	outcome Outcome
}

func newTransition(req Request) *Transition {
	return &Transition{ID: uuid.NewString(), Req: req, done: make(chan struct{})}
}

// Done is closed once the transition has an outcome.
func (t *Transition) Done() <-chan struct{} { return t.done }

// Outcome returns the final outcome, or Pending.
func (t *Transition) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Wait blocks until the transition ends or ctx is done.
func (t *Transition) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.Outcome(), nil
	case <-ctx.Done():
		return Pending, ctx.Err()
	}
}

func (t *Transition) resolve(o Outcome) bool {
	resolved := false
	t.once.Do(func() {
		t.mu.Lock()
		t.outcome = o
		t.mu.Unlock()
		close(t.done)
		resolved = true
	})
	return resolved
}

// Observer is notified about every resolved transition.
type Observer interface {
	ObserveTransition(t *Transition, o Outcome)
}

// Choreographer owns all writes to the viewport pose.
type Choreographer struct {
	vp Viewport

	mu                sync.Mutex
	active            *Transition
	stopActive        func()
	queue             []*Transition
	observers         []Observer
	removeInteraction func()
	closed            bool
}

// NewChoreographer wraps vp and subscribes to its gesture signal.
func NewChoreographer(vp Viewport) *Choreographer {
	c := &Choreographer{vp: vp}
	c.removeInteraction = vp.OnInteraction(c.Interrupt)
	return c
}

// AddObserver registers an outcome observer.
func (c *Choreographer) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// FlyTo requests a fly transition.
func (c *Choreographer) FlyTo(label string, target model.Pose, d time.Duration, easing Easing, policy Policy) *Transition {
	return c.Run(Request{Kind: Fly, Target: target, Duration: d, Easing: easing, Policy: policy, Label: label})
}

// EaseTo requests an ease transition.
func (c *Choreographer) EaseTo(label string, target model.Pose, d time.Duration, policy Policy) *Transition {
	return c.Run(Request{Kind: Ease, Target: target, Duration: d, Easing: Linear, Policy: policy, Label: label})
}

// Run schedules req according to its policy and returns its handle.
func (c *Choreographer) Run(req Request) *Transition {
	if req.Easing == nil {
		req.Easing = Linear
	}
	t := newTransition(req)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.settle(t, Canceled)
		return t
	}

	if req.Policy == Queue && c.active != nil {
		c.queue = append(c.queue, t)
		c.mu.Unlock()
		slog.Debug("Camera: transition queued", "label", req.Label, "id", t.ID)
		return t
	}

	prev, stop, dropped := c.detachLocked()
	c.active = t
	c.mu.Unlock()

	c.settleAll(prev, dropped, Canceled)
	if stop != nil {
		stop()
	}
	c.launch(t)
	return t
}

// Interrupt cancels the active and queued transitions because the user took
// over the camera. Queued side effects never run.
func (c *Choreographer) Interrupt() {
	c.mu.Lock()
	prev, stop, dropped := c.detachLocked()
	c.mu.Unlock()

	if prev != nil {
		c.settle(prev, Interrupted)
	}
	c.settleAll(nil, dropped, Canceled)
	if stop != nil {
		stop()
	}
}

// Release resolves pending handles as Canceled without stopping the motion
// already in progress: the camera may still arrive, but nobody is told.
func (c *Choreographer) Release() {
	c.mu.Lock()
	prev, _, dropped := c.detachLocked()
	c.mu.Unlock()
	c.settleAll(prev, dropped, Canceled)
}

// Close releases pending handles and unregisters the gesture listener.
func (c *Choreographer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	remove := c.removeInteraction
	c.removeInteraction = nil
	c.mu.Unlock()

	c.Release()
	if remove != nil {
		remove()
	}
}

// Active returns the in-flight transition, if any.
func (c *Choreographer) Active() *Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Queued returns the number of waiting transitions.
func (c *Choreographer) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Pose reads the viewport pose.
func (c *Choreographer) Pose() model.Pose { return c.vp.Pose() }

// IsMoving reports whether the viewport is animating.
func (c *Choreographer) IsMoving() bool { return c.vp.IsMoving() }

func (c *Choreographer) detachLocked() (*Transition, func(), []*Transition) {
	prev, stop, dropped := c.active, c.stopActive, c.queue
	c.active, c.stopActive, c.queue = nil, nil, nil
	return prev, stop, dropped
}

func (c *Choreographer) launch(t *Transition) {
	slog.Debug("Camera: transition started",
		"label", t.Req.Label,
		"kind", t.Req.Kind,
		"policy", t.Req.Policy,
		"duration", t.Req.Duration,
		"id", t.ID)

	stop := c.vp.Animate(t.Req.Kind, t.Req.Target, t.Req.Duration, t.Req.Easing, func(arrived bool) {
		c.finish(t, arrived)
	})

	c.mu.Lock()
	if c.active == t {
		c.stopActive = stop
	}
	c.mu.Unlock()
}

func (c *Choreographer) finish(t *Transition, arrived bool) {
	c.mu.Lock()
	if c.active != t {
		// Already superseded, interrupted or released.
		c.mu.Unlock()
		return
	}
	c.active, c.stopActive = nil, nil
	var next *Transition
	if len(c.queue) > 0 && !c.closed {
		next = c.queue[0]
		c.queue = c.queue[1:]
		c.active = next
	}
	c.mu.Unlock()

	if arrived {
		c.settle(t, Completed)
	} else {
		c.settle(t, Interrupted)
	}
	if next != nil {
		c.launch(next)
	}
}

func (c *Choreographer) settle(t *Transition, o Outcome) {
	if !t.resolve(o) {
		return
	}
	c.mu.Lock()
	obs := append([]Observer(nil), c.observers...)
	c.mu.Unlock()
	for _, ob := range obs {
		ob.ObserveTransition(t, o)
	}
}

func (c *Choreographer) settleAll(prev *Transition, dropped []*Transition, o Outcome) {
	if prev != nil {
		c.settle(prev, o)
	}
	for _, q := range dropped {
		c.settle(q, o)
	}
}
