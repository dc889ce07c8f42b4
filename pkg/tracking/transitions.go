package tracking

import (
	"context"
	"errors"
	"log/slog"

	"fencetrack/pkg/camera"
	"fencetrack/pkg/geo"
	"fencetrack/pkg/model"
	"fencetrack/pkg/presentation"
	"fencetrack/pkg/sensor"
)

// handleStart moves OFF to a provisional ACTIVE_LOCK: the watch is started and
// a user-initiated acquisition runs. The state is only committed once that
// acquisition lands inside the boundary.
func (m *Machine) handleStart(ch chan startOutcome) error {
	switch {
	case m.provisional:
		// Restart: the new acquisition supersedes the running one.
		m.cancelAcquisition()
		m.stopWatch()
	case m.state != model.WatchOff:
		return ErrAlreadyTracking
	}

	m.gen++
	gen := m.gen
	m.provisional = true
	m.waiters = append(m.waiters, ch)
	m.publish()
	slog.Info("Tracking: user requested tracking", "generation", gen)

	m.ui.HighlightBoundaryOverlay()

	h, err := m.src.Watch(
		func(p model.Position) { m.post(func() { m.onWatchUpdate(gen, p) }) },
		func(e *sensor.Error) { m.post(func() { m.onWatchError(gen, e) }) },
	)
	if err != nil {
		m.onAcquired(gen, model.Position{}, asSensorError(err))
		return nil
	}
	m.watch = h

	ctx, cancel := context.WithCancel(m.ctx)
	m.acquireCancel = cancel
	go func() {
		pos, err := m.src.AcquireWithRetry(ctx, m.cfg.Retry)
		m.post(func() { m.onAcquired(gen, pos, err) })
	}()
	return nil
}

// onAcquired handles the result of a user-initiated acquisition.
func (m *Machine) onAcquired(gen uint64, pos model.Position, err error) {
	if gen != m.gen || !m.provisional {
		slog.Debug("Tracking: dropping stale acquisition result", "generation", gen, "current", m.gen)
		return
	}
	m.provisional = false
	m.acquireCancel = nil

	if errors.Is(err, sensor.ErrSuperseded) || errors.Is(err, context.Canceled) {
		// Someone else took the sensor; the attempt never failed.
		slog.Debug("Tracking: acquisition canceled", "generation", gen, "error", err)
		m.stopWatch()
		m.gen++
		m.publish()
		m.resolveWaiters(startOutcome{res: StartResult{State: model.WatchOff}, err: ErrCanceled})
		return
	}

	if err != nil {
		serr := asSensorError(err)
		m.stopWatch()
		m.gen++
		m.publish()

		msg := presentation.MessageFor(serr)
		slog.Warn("Tracking: acquisition failed", "kind", serr.Kind, "attempt", serr.Attempt, "error", serr.Err)
		m.ui.ShowError(serr.Kind.Code())
		m.errorListeners.emit(ErrorEvent{
			Err:      serr,
			Kind:     serr.Kind.String(),
			Code:     serr.Kind.Code(),
			Intent:   model.UserInitiated,
			Message:  msg,
			Surfaced: true,
			At:       m.clock.Now(),
		})
		m.resolveWaiters(startOutcome{res: StartResult{State: model.WatchOff}, err: serr})
		return
	}

	if !geo.IsInside(m.cfg.Boundary, pos.Point()) {
		m.stopWatch()
		m.gen++
		m.rejectOutside(pos, model.UserInitiated)
		p := pos
		m.resolveWaiters(startOutcome{res: StartResult{State: model.WatchOff, Position: &p, Violation: true}})
		return
	}

	m.setState(model.WatchActiveLock, "acquired")
	m.deliver(pos, model.UserInitiated)
	p := pos
	m.resolveWaiters(startOutcome{res: StartResult{State: m.state, Position: &p}})
}

// onWatchUpdate handles an ambient position from the live watch.
func (m *Machine) onWatchUpdate(gen uint64, pos model.Position) {
	if gen != m.gen || m.provisional || m.state == model.WatchOff {
		return
	}

	if !geo.IsInside(m.cfg.Boundary, pos.Point()) {
		// Walking out of the zone ends tracking.
		slog.Warn("Tracking: user left the boundary", "lat", pos.Lat, "lon", pos.Lon)
		m.setState(model.WatchActiveError, "outside")
		m.teardownWatch()
		m.setState(model.WatchOff, "outside")
		m.rejectOutside(pos, model.Automatic)
		return
	}

	if m.state == model.WatchActiveError {
		m.setState(model.WatchActiveLock, "recovered")
	}
	m.deliver(pos, model.Automatic)
}

// onWatchError handles an ambient sensor failure. It is never shown to the user.
func (m *Machine) onWatchError(gen uint64, serr *sensor.Error) {
	if gen != m.gen || m.provisional || m.state == model.WatchOff {
		return
	}
	slog.Warn("Tracking: watch error", "kind", serr.Kind, "error", serr.Err)
	m.errorListeners.emit(ErrorEvent{
		Err:    serr,
		Kind:   serr.Kind.String(),
		Code:   serr.Kind.Code(),
		Intent: model.Automatic,
		At:     m.clock.Now(),
	})
	if m.state == model.WatchActiveLock && serr.Kind.Retryable() {
		m.setState(model.WatchActiveError, "sensor error")
	}
}

func (m *Machine) handlePause() error {
	if m.state != model.WatchActiveLock {
		return ErrNotTracking
	}
	m.setState(model.WatchPaused, "pause")
	return nil
}

func (m *Machine) handleResume() error {
	if m.state != model.WatchPaused {
		return ErrNotPaused
	}
	m.setState(model.WatchActiveLock, "resume")
	if m.last != nil && !m.ui.NoticeOpen() {
		pose := m.cam.Pose()
		pose.Center = m.last.Point()
		pose.Bearing = m.bearing(*m.last)
		m.cam.Run(camera.Request{
			Kind:     camera.Ease,
			Target:   pose,
			Duration: m.cfg.FollowDuration,
			Easing:   camera.Linear,
			Policy:   camera.Supersede,
			Label:    "resume",
		})
	}
	return nil
}

// deliver hands an accepted position to the map: markers, search radius and,
// while following, the camera.
func (m *Machine) deliver(pos model.Position, intent model.Intent) {
	p := pos
	m.last = &p
	pt := pos.Point()

	var markers []model.DistanceMarker
	if m.markers != nil {
		markers = m.markers.Nearby(pt, m.cfg.NearbyRadiusM)
	}
	m.currentMarkers = markers
	m.ui.ShowSearchRadius(pt)
	m.publish()

	if m.state == model.WatchActiveLock && !m.ui.NoticeOpen() {
		m.follow(pos)
	}

	m.acceptedListeners.emit(Accepted{
		Position:   pos,
		Intent:     intent,
		IntentName: intent.String(),
		Markers:    markers,
	})
}

func (m *Machine) follow(pos model.Position) {
	bearing := m.bearing(pos)
	if !m.firstFixDone {
		m.firstFixDone = true
		m.cam.Run(camera.Request{
			Kind:     camera.Fly,
			Target:   model.Pose{Center: pos.Point(), Zoom: m.cfg.FollowZoom, Pitch: m.cfg.FollowPitch, Bearing: bearing},
			Duration: m.cfg.FirstFixDuration,
			Easing:   camera.EaseInOutCubic,
			Policy:   camera.Supersede,
			Label:    "follow-first",
		})
		return
	}

	if m.cam.IsMoving() {
		return
	}
	pose := m.cam.Pose()
	if geo.Distance(pose.Center, pos.Point()) <= m.cfg.RecenterThresholdM {
		return
	}
	pose.Center = pos.Point()
	pose.Bearing = bearing
	m.cam.Run(camera.Request{
		Kind:     camera.Ease,
		Target:   pose,
		Duration: m.cfg.FollowDuration,
		Easing:   camera.Linear,
		Policy:   camera.Supersede,
		Label:    "follow",
	})
}

// bearing uses the sensor heading, falling back to the walking course.
func (m *Machine) bearing(pos model.Position) float64 {
	course := m.heading.Push(pos.Point(), 0)
	return pos.Heading(course)
}

// rejectOutside emits exactly one violation and recenters on the boundary.
func (m *Machine) rejectOutside(pos model.Position, intent model.Intent) {
	m.clearVisuals()
	m.publish()

	m.violationListeners.emit(Violation{
		Position:   pos,
		Intent:     intent,
		IntentName: intent.String(),
		DistanceKm: m.cfg.Boundary.DistanceKm(pos.Point()),
		At:         m.clock.Now(),
	})
	m.ui.ShowViolationNotice(m.cfg.Boundary)
	m.cam.Run(camera.Request{
		Kind:     camera.Fly,
		Target:   model.Pose{Center: m.cfg.Boundary.Center(), Zoom: m.cfg.BoundaryZoom},
		Duration: m.cfg.BoundaryDuration,
		Easing:   camera.EaseInOutCubic,
		Policy:   camera.Supersede,
		Label:    "boundary",
	})
}

// teardown returns to OFF from any state. Stopping what is already stopped is a no-op.
func (m *Machine) teardown(reason string) {
	wasFollowing := m.state != model.WatchOff
	if !wasFollowing && !m.provisional && m.watch == nil {
		return
	}

	m.cancelAcquisition()
	m.teardownWatch()
	m.cam.Release()
	m.clearVisuals()
	m.setState(model.WatchOff, reason)
	m.publish()
	m.resolveWaiters(startOutcome{res: StartResult{State: model.WatchOff}, err: ErrCanceled})

	if wasFollowing && !m.cam.IsMoving() {
		pose := m.cam.Pose()
		pose.Bearing = 0
		pose.Pitch = m.cfg.EndPitch
		m.cam.Run(camera.Request{
			Kind:     camera.Ease,
			Target:   pose,
			Duration: m.cfg.EndDuration,
			Easing:   camera.Linear,
			Policy:   camera.Supersede,
			Label:    "end",
		})
	}
}

// teardownWatch stops the subscription and invalidates in-flight callbacks.
func (m *Machine) teardownWatch() {
	m.gen++
	m.stopWatch()
}

func (m *Machine) cancelAcquisition() {
	if m.acquireCancel != nil {
		m.acquireCancel()
		m.acquireCancel = nil
	}
	if m.provisional {
		m.src.Cancel()
		m.provisional = false
	}
}

func (m *Machine) stopWatch() {
	if m.watch != nil {
		m.watch.Stop()
		m.watch = nil
	}
}

func (m *Machine) clearVisuals() {
	m.ui.ClearSearchRadius()
	m.currentMarkers = nil
	m.firstFixDone = false
	m.heading.Reset()
}

func (m *Machine) resolveWaiters(out startOutcome) {
	for _, ch := range m.waiters {
		ch <- out
	}
	m.waiters = nil
}

func asSensorError(err error) *sensor.Error {
	var serr *sensor.Error
	if errors.As(err, &serr) {
		return serr
	}
	return &sensor.Error{Kind: sensor.KindOf(err), Err: err}
}
