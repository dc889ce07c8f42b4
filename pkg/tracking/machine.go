// Package tracking owns the watch state of geofenced location tracking.
//
// A Machine runs a single goroutine that serializes user intents, acquisition
// results and ambient watch updates. Results from superseded acquisitions or
// stopped watches carry an older generation and are dropped. Listeners are
// invoked on that goroutine in arrival order and must not call back into the
// Machine synchronously.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fencetrack/pkg/animation"
	"fencetrack/pkg/camera"
	"fencetrack/pkg/clock"
	"fencetrack/pkg/geo"
	"fencetrack/pkg/model"
	"fencetrack/pkg/presentation"
	"fencetrack/pkg/sensor"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("tracking: machine closed")
	// ErrAlreadyTracking is returned by Start while a subscription is alive.
	ErrAlreadyTracking = errors.New("tracking: already tracking")
	// ErrNotTracking is returned by Pause outside ACTIVE_LOCK.
	ErrNotTracking = errors.New("tracking: not following")
	// ErrNotPaused is returned by Resume outside PAUSED.
	ErrNotPaused = errors.New("tracking: not paused")
	// ErrCanceled is returned to a Start caller whose acquisition was stopped.
	ErrCanceled = errors.New("tracking: acquisition canceled")
)

// PositionSource is the retrying acquisition capability.
type PositionSource interface {
	AcquireWithRetry(ctx context.Context, policy sensor.RetryPolicy) (model.Position, error)
	Watch(onUpdate func(model.Position), onError func(*sensor.Error)) (*sensor.WatchHandle, error)
	Cancel()
}

// Camera is the viewport choreographer.
type Camera interface {
	Run(req camera.Request) *camera.Transition
	Pose() model.Pose
	IsMoving() bool
	Release()
}

// Presenter is the boundary presentation controller.
type Presenter interface {
	ShowViolationNotice(b geo.Boundary) presentation.Notice
	NoticeOpen() bool
	HighlightBoundaryOverlay() *animation.Ramp
	ShowSearchRadius(center geo.Point)
	ClearSearchRadius()
	ShowError(code int) presentation.Notification
}

// MarkerSource computes distance markers around the user.
type MarkerSource interface {
	Nearby(p geo.Point, radiusM float64) []model.DistanceMarker
}

// StartResult is the outcome of a user-initiated acquisition.
type StartResult struct {
	State     model.WatchState `json:"state"`
	Position  *model.Position  `json:"position,omitempty"`
	Violation bool             `json:"violation"`
}

type startOutcome struct {
	res StartResult
	err error
}

// Snapshot is a consistent read-only view of the machine.
type Snapshot struct {
	State     model.WatchState       `json:"state"`
	Acquiring bool                   `json:"acquiring"`
	Last      *model.Position        `json:"last,omitempty"`
	Markers   []model.DistanceMarker `json:"markers"`
	Since     time.Time              `json:"since"`
}

// Machine is the tracking state machine.
type Machine struct {
	cfg     Config
	src     PositionSource
	cam     Camera
	ui      Presenter
	markers MarkerSource
	clock   clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan func()
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	stateListeners     registry[StateChange]
	violationListeners registry[Violation]
	acceptedListeners  registry[Accepted]
	errorListeners     registry[ErrorEvent]

	snapshot atomic.Pointer[Snapshot]

	// Owned by the loop goroutine.
	state          model.WatchState
	since          time.Time
	gen            uint64
	provisional    bool
	acquireCancel  context.CancelFunc
	waiters        []chan startOutcome
	watch          *sensor.WatchHandle
	firstFixDone   bool
	last           *model.Position
	currentMarkers []model.DistanceMarker
	heading        *geo.HeadingBuffer
}

// New creates a machine in OFF and starts its loop. markers may be nil.
func New(cfg Config, src PositionSource, cam Camera, ui Presenter, markers MarkerSource) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		cfg:     cfg,
		src:     src,
		cam:     cam,
		ui:      ui,
		markers: markers,
		clock:   clock.New(),
		ctx:     ctx,
		cancel:  cancel,
		cmds:    make(chan func(), 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		state:   model.WatchOff,
		heading: geo.NewHeadingBuffer(5, 3),
	}
	m.since = m.clock.Now()
	m.publish()
	go m.loop()
	return m
}

// SetClock replaces the clock used for event timestamps. Call before use.
func (m *Machine) SetClock(c clock.Clock) {
	_ = m.call(func() error {
		m.clock = c
		m.since = c.Now()
		m.publish()
		return nil
	})
}

// OnStateChange registers a listener for committed state transitions.
func (m *Machine) OnStateChange(fn func(StateChange)) (remove func()) {
	return m.stateListeners.add(fn)
}

// OnBoundaryViolation registers a listener for boundary rejections.
func (m *Machine) OnBoundaryViolation(fn func(Violation)) (remove func()) {
	return m.violationListeners.add(fn)
}

// OnPositionAccepted registers a listener for delivered positions.
func (m *Machine) OnPositionAccepted(fn func(Accepted)) (remove func()) {
	return m.acceptedListeners.add(fn)
}

// OnError registers a listener for sensor failures, surfaced or not.
func (m *Machine) OnError(fn func(ErrorEvent)) (remove func()) {
	return m.errorListeners.add(fn)
}

// State returns the committed watch state.
func (m *Machine) State() model.WatchState {
	return m.snapshot.Load().State
}

// Snapshot returns the latest published view.
func (m *Machine) Snapshot() Snapshot {
	return *m.snapshot.Load()
}

// Start requests tracking. It blocks until the user-initiated acquisition
// resolves or ctx ends; in the latter case the acquisition keeps running.
// A boundary violation is reported in the result, not as an error.
func (m *Machine) Start(ctx context.Context) (StartResult, error) {
	ch := make(chan startOutcome, 1)
	err := m.call(func() error {
		return m.handleStart(ch)
	})
	if err != nil {
		return StartResult{State: m.State()}, err
	}
	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		return StartResult{State: m.State()}, ctx.Err()
	case <-m.done:
		return StartResult{State: model.WatchOff}, ErrClosed
	}
}

// Stop ends tracking from any state. Stopping while OFF is a no-op.
func (m *Machine) Stop() error {
	return m.call(func() error {
		m.teardown("stop")
		return nil
	})
}

// Pause suspends camera following while keeping the subscription.
func (m *Machine) Pause() error {
	return m.call(m.handlePause)
}

// Resume restores camera following after Pause.
func (m *Machine) Resume() error {
	return m.call(m.handleResume)
}

// Close stops tracking, unregisters every listener and ends the loop.
// It is safe to call more than once.
func (m *Machine) Close() error {
	m.once.Do(func() {
		close(m.quit)
		<-m.done
		m.cancel()
		m.stateListeners.clear()
		m.violationListeners.clear()
		m.acceptedListeners.clear()
		m.errorListeners.clear()
	})
	return nil
}

func (m *Machine) loop() {
	defer close(m.done)
	for {
		select {
		case fn := <-m.cmds:
			fn()
		case <-m.quit:
			m.teardown("close")
			m.resolveWaiters(startOutcome{res: StartResult{State: model.WatchOff}, err: ErrClosed})
			return
		}
	}
}

// call runs fn on the loop and waits for its result.
func (m *Machine) call(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case m.cmds <- func() { errc <- fn() }:
	case <-m.done:
		return ErrClosed
	case <-m.quit:
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-m.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrClosed
		}
	}
}

// post queues fn on the loop without waiting. Dropped after Close.
func (m *Machine) post(fn func()) {
	select {
	case m.cmds <- fn:
	case <-m.quit:
	case <-m.done:
	}
}

func (m *Machine) publish() {
	s := &Snapshot{
		State:     m.state,
		Acquiring: m.provisional,
		Markers:   append([]model.DistanceMarker(nil), m.currentMarkers...),
		Since:     m.since,
	}
	if m.last != nil {
		p := *m.last
		s.Last = &p
	}
	m.snapshot.Store(s)
}

func (m *Machine) setState(to model.WatchState, reason string) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.since = m.clock.Now()
	m.publish()
	slog.Info("Tracking: state changed", "from", from, "to", to, "reason", reason)
	m.stateListeners.emit(StateChange{From: from, To: to, Reason: reason, At: m.since})
}
