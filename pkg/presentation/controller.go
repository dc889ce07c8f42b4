// Package presentation drives the boundary violation UI: the notice, the
// geofence overlay, the search radius around the user and error notifications.
// It reacts to tracking events and holds no tracking state of its own.
package presentation

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"fencetrack/pkg/animation"
	"fencetrack/pkg/camera"
	"fencetrack/pkg/clock"
	"fencetrack/pkg/geo"
	"fencetrack/pkg/model"
)

// ErrNoNotice is returned when acknowledging a notice that is not showing.
var ErrNoNotice = errors.New("no violation notice showing")

// Config holds presentation timings and styling.
type Config struct {
	NoticeTimeout     time.Duration
	AckHideBoundary   time.Duration
	AckRemoveNotice   time.Duration
	PulseDuration     time.Duration
	PulseFillOpacity  float64
	PulseLineWidth    float64
	BaseLineWidth     float64
	OverlayMaxOpacity float64
	OverlayStep       float64
	ErrorTimeout      time.Duration
	NearbyRadiusM     float64
	CirclePoints      int
	IntroPose         model.Pose
	IntroDuration     time.Duration
	Texts             Texts
}

// DefaultConfig returns the stock presentation settings with the intro view at center.
func DefaultConfig(center geo.Point) Config {
	return Config{
		NoticeTimeout:     5 * time.Second,
		AckHideBoundary:   200 * time.Millisecond,
		AckRemoveNotice:   600 * time.Millisecond,
		PulseDuration:     2 * time.Second,
		PulseFillOpacity:  0.05,
		PulseLineWidth:    3,
		BaseLineWidth:     2,
		OverlayMaxOpacity: 0.03,
		OverlayStep:       0.005,
		ErrorTimeout:      5 * time.Second,
		NearbyRadiusM:     25,
		CirclePoints:      geo.DefaultCirclePoints,
		IntroPose:         model.Pose{Center: center, Zoom: 18, Pitch: 55, Bearing: -17.6},
		IntroDuration:     3 * time.Second,
		Texts:             DefaultTexts(),
	}
}

// Notice is the boundary violation popup.
type Notice struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Button       string    `json:"button"`
	ShownAt      time.Time `json:"shown_at"`
	Acknowledged bool      `json:"acknowledged"`
}

// Notification is a transient error toast.
type Notification struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	ShownAt time.Time `json:"shown_at"`
}

// EventKind names a presentation event.
type EventKind string

const (
	NoticeShown         EventKind = "notice_shown"
	NoticeRemoved       EventKind = "notice_removed"
	NotificationShown   EventKind = "notification_shown"
	NotificationRemoved EventKind = "notification_removed"
)

// Event is published to listeners whenever visible UI elements change.
type Event struct {
	Kind         EventKind     `json:"kind"`
	Notice       *Notice       `json:"notice,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

// Controller owns the overlay layers and transient UI elements.
type Controller struct {
	cfg    Config
	layers *MapLayers
	cam    *camera.Choreographer
	frames animation.Frames
	clock  clock.Clock

	rampMu sync.Mutex

	mu            sync.Mutex
	notice        *Notice
	noticeTimers  []clock.Timer
	pulseTimer    clock.Timer
	ramp          *animation.Ramp
	notifications []*Notification
	notifTimers   map[string]clock.Timer
	listeners     []func(Event)
	closed        bool
}

// NewController installs the boundary and search radius layers (hidden) into layers.
func NewController(cfg Config, boundary geo.Boundary, layers *MapLayers, cam *camera.Choreographer, frames animation.Frames, c clock.Clock) *Controller {
	if cfg.CirclePoints < 3 {
		cfg.CirclePoints = geo.DefaultCirclePoints
	}
	ctrl := &Controller{
		cfg:         cfg,
		layers:      layers,
		cam:         cam,
		frames:      frames,
		clock:       c,
		notifTimers: make(map[string]clock.Timer),
	}

	layers.SetSource(SourceBoundary, boundary.Feature())
	layers.AddLayer(LayerBoundaryFill, SourceBoundary, false, map[string]any{
		"fill-color":    "#4B83F2",
		PropFillOpacity: cfg.OverlayMaxOpacity,
	})
	layers.AddLayer(LayerBoundaryLine, SourceBoundary, false, map[string]any{
		"line-color":  "#4B83F2",
		PropLineWidth: cfg.BaseLineWidth,
	})
	layers.AddLayer(LayerBoundaryLabel, SourceBoundary, false, map[string]any{})

	layers.SetSource(SourceSearchRadius, geo.EmptyPolygonFeature())
	layers.SetSource(SourceSearchRadiusOuter, geo.EmptyPolygonFeature())
	layers.AddLayer(SourceSearchRadius, SourceSearchRadius, true, map[string]any{"fill-extrusion-opacity": 0.08})
	layers.AddLayer(SourceSearchRadiusOuter, SourceSearchRadiusOuter, true, map[string]any{"fill-extrusion-opacity": 0.04})
	return ctrl
}

// OnEvent registers a listener. Listeners run synchronously and must not block.
func (c *Controller) OnEvent(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Layers returns the layer store.
func (c *Controller) Layers() *MapLayers { return c.layers }

// ShowViolationNotice shows the boundary notice, replacing any existing one,
// and pulses the boundary outline. The notice auto-dismisses after NoticeTimeout.
func (c *Controller) ShowViolationNotice(boundary geo.Boundary) Notice {
	n := &Notice{
		ID:      uuid.NewString(),
		Title:   c.cfg.Texts.Title,
		Body:    c.cfg.Texts.Body,
		Button:  c.cfg.Texts.Button,
		ShownAt: c.clock.Now(),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return *n
	}
	old := c.notice
	stopTimers(c.noticeTimers)
	c.notice = n
	id := n.ID
	c.noticeTimers = []clock.Timer{c.clock.AfterFunc(c.cfg.NoticeTimeout, func() {
		c.removeNotice(id, "timeout")
	})}
	c.mu.Unlock()

	if old != nil {
		c.emit(Event{Kind: NoticeRemoved, Notice: old, Reason: "replaced"})
	}
	slog.Info("Presentation: violation notice shown", "id", n.ID)
	c.emit(Event{Kind: NoticeShown, Notice: n})

	c.layers.SetSource(SourceBoundary, boundary.Feature())
	c.pulseBoundary()
	return *n
}

// Notice returns the notice currently present, if any.
func (c *Controller) Notice() (Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil {
		return Notice{}, false
	}
	return *c.notice, true
}

// NoticeOpen reports whether an unacknowledged notice is showing.
func (c *Controller) NoticeOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice != nil && !c.notice.Acknowledged
}

// AcknowledgeNotice handles the notice button. An empty id matches the current
// notice. The boundary is hidden shortly after, the notice removed after its
// slide-out, and the camera queues a fly back to the intro view.
func (c *Controller) AcknowledgeNotice(id string) (*camera.Transition, error) {
	c.mu.Lock()
	n := c.notice
	if n == nil || n.Acknowledged || (id != "" && id != n.ID) {
		c.mu.Unlock()
		return nil, ErrNoNotice
	}
	n.Acknowledged = true
	noticeID := n.ID
	stopTimers(c.noticeTimers)
	c.noticeTimers = []clock.Timer{
		c.clock.AfterFunc(c.cfg.AckHideBoundary, func() {
			c.mu.Lock()
			current := c.notice != nil && c.notice.ID == noticeID
			c.mu.Unlock()
			if current {
				c.ClearBoundaryOverlay()
			}
		}),
		c.clock.AfterFunc(c.cfg.AckRemoveNotice, func() {
			c.removeNotice(noticeID, "acknowledged")
		}),
	}
	c.mu.Unlock()

	slog.Info("Presentation: violation notice acknowledged", "id", noticeID)
	intro := c.cam.FlyTo("intro", c.cfg.IntroPose, c.cfg.IntroDuration, camera.EaseOutQuad, camera.Queue)
	return intro, nil
}

func (c *Controller) removeNotice(id, reason string) {
	c.mu.Lock()
	n := c.notice
	if n == nil || n.ID != id {
		c.mu.Unlock()
		return
	}
	c.notice = nil
	stopTimers(c.noticeTimers)
	c.noticeTimers = nil
	c.mu.Unlock()

	slog.Debug("Presentation: violation notice removed", "id", id, "reason", reason)
	c.emit(Event{Kind: NoticeRemoved, Notice: n, Reason: reason})
}

// pulseBoundary makes the overlay visible and briefly emphasizes it.
func (c *Controller) pulseBoundary() {
	if !c.layers.HasLayer(LayerBoundaryFill) {
		slog.Warn("Presentation: boundary layers missing, skipping highlight")
		return
	}
	c.cancelRamp()
	for _, id := range BoundaryLayers {
		_ = c.layers.SetVisible(id, true)
	}
	_ = c.layers.SetPaint(LayerBoundaryFill, PropFillOpacity, c.cfg.PulseFillOpacity)
	_ = c.layers.SetPaint(LayerBoundaryLine, PropLineWidth, c.cfg.PulseLineWidth)

	c.mu.Lock()
	if c.pulseTimer != nil {
		c.pulseTimer.Stop()
	}
	c.pulseTimer = c.clock.AfterFunc(c.cfg.PulseDuration, func() {
		if c.layers.HasLayer(LayerBoundaryFill) {
			_ = c.layers.SetPaint(LayerBoundaryFill, PropFillOpacity, c.cfg.OverlayMaxOpacity)
		}
		if c.layers.HasLayer(LayerBoundaryLine) {
			_ = c.layers.SetPaint(LayerBoundaryLine, PropLineWidth, c.cfg.BaseLineWidth)
		}
	})
	c.mu.Unlock()
}

// HighlightBoundaryOverlay shows the boundary layers and ramps the fill up
// from zero to the configured maximum, one step per frame.
func (c *Controller) HighlightBoundaryOverlay() *animation.Ramp {
	for _, id := range BoundaryLayers {
		_ = c.layers.SetVisible(id, true)
	}
	return c.startRamp(animation.RampSpec{From: 0, To: c.cfg.OverlayMaxOpacity, Step: c.cfg.OverlayStep}, nil)
}

// ClearBoundaryOverlay ramps the fill down to zero and then hides the layers.
// Removing the fill layer mid-ramp aborts the ramp; the remaining layers are
// still hidden.
func (c *Controller) ClearBoundaryOverlay() *animation.Ramp {
	from, ok := c.layers.PaintFloat(LayerBoundaryFill, PropFillOpacity)
	if !ok {
		from = c.cfg.OverlayMaxOpacity
	}
	return c.startRamp(animation.RampSpec{From: from, To: 0, Step: c.cfg.OverlayStep}, func(res animation.RampResult) {
		if res == animation.RampCanceled {
			return
		}
		for _, id := range BoundaryLayers {
			_ = c.layers.SetVisible(id, false)
		}
	})
}

// startRamp replaces the running fill ramp. Starts are serialized on rampMu so
// at most one ramp writes the fill opacity.
func (c *Controller) startRamp(spec animation.RampSpec, onDone func(animation.RampResult)) *animation.Ramp {
	c.rampMu.Lock()
	defer c.rampMu.Unlock()

	c.cancelRampLocked()
	r := animation.StartRamp(c.frames, spec, func(v float64) bool {
		return c.layers.SetPaint(LayerBoundaryFill, PropFillOpacity, v) == nil
	}, onDone)

	c.mu.Lock()
	c.ramp = r
	c.mu.Unlock()
	return r
}

func (c *Controller) cancelRamp() {
	c.rampMu.Lock()
	defer c.rampMu.Unlock()
	c.cancelRampLocked()
}

func (c *Controller) cancelRampLocked() {
	c.mu.Lock()
	r := c.ramp
	c.ramp = nil
	c.mu.Unlock()
	if r != nil {
		r.Cancel()
	}
}

// ShowSearchRadius draws the nearby radius around the user.
func (c *Controller) ShowSearchRadius(center geo.Point) {
	f := geo.CircleFeature(center, c.cfg.NearbyRadiusM, c.cfg.CirclePoints)
	c.layers.SetSource(SourceSearchRadius, f)
	c.layers.SetSource(SourceSearchRadiusOuter, f)
}

// ClearSearchRadius empties both search radius sources.
func (c *Controller) ClearSearchRadius() {
	c.layers.SetSource(SourceSearchRadius, geo.EmptyPolygonFeature())
	c.layers.SetSource(SourceSearchRadiusOuter, geo.EmptyPolygonFeature())
}

// ShowError shows a localized notification for a W3C error code. It is removed
// after ErrorTimeout.
func (c *Controller) ShowError(code int) Notification {
	n := &Notification{
		ID:      uuid.NewString(),
		Message: MessageForCode(code),
		Code:    code,
		ShownAt: c.clock.Now(),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return *n
	}
	c.notifications = append(c.notifications, n)
	id := n.ID
	c.notifTimers[id] = c.clock.AfterFunc(c.cfg.ErrorTimeout, func() { c.removeNotification(id) })
	c.mu.Unlock()

	slog.Info("Presentation: error notification shown", "code", code, "message", n.Message)
	c.emit(Event{Kind: NotificationShown, Notification: n})
	return *n
}

// Notifications returns the visible error notifications, oldest first.
func (c *Controller) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, 0, len(c.notifications))
	for _, n := range c.notifications {
		out = append(out, *n)
	}
	return out
}

func (c *Controller) removeNotification(id string) {
	c.mu.Lock()
	var removed *Notification
	for i, n := range c.notifications {
		if n.ID == id {
			removed = n
			c.notifications = append(c.notifications[:i], c.notifications[i+1:]...)
			break
		}
	}
	delete(c.notifTimers, id)
	c.mu.Unlock()

	if removed != nil {
		c.emit(Event{Kind: NotificationRemoved, Notification: removed})
	}
}

// Close cancels every pending timer and ramp. Visible elements stay as they are.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stopTimers(c.noticeTimers)
	c.noticeTimers = nil
	if c.pulseTimer != nil {
		c.pulseTimer.Stop()
		c.pulseTimer = nil
	}
	for id, t := range c.notifTimers {
		t.Stop()
		delete(c.notifTimers, id)
	}
	c.listeners = nil
	c.mu.Unlock()

	c.cancelRamp()
}

func (c *Controller) emit(e Event) {
	c.mu.Lock()
	fns := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

func stopTimers(ts []clock.Timer) {
	for _, t := range ts {
		t.Stop()
	}
}
