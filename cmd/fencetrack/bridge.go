package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"fencetrack/internal/api"
	"fencetrack/pkg/camera"
	"fencetrack/pkg/clock"
	"fencetrack/pkg/hub"
	"fencetrack/pkg/logging"
	"fencetrack/pkg/model"
	"fencetrack/pkg/presentation"
	"fencetrack/pkg/tracking"
)

// Message types on the event stream.
const (
	msgState        = "state"
	msgViolation    = "violation"
	msgPosition     = "position"
	msgError        = "error"
	msgPresentation = "presentation"
	msgLayer        = "layer"
	msgCamera       = "camera"

	inFix         = "fix"
	inSensorError = "sensor_error"
	inAck         = "ack"
	inInteraction = "interaction"
)

var errNoPushSensor = errors.New("position provider does not accept browser fixes")

// broadcaster is the hub side of the bridge.
type broadcaster interface {
	Broadcast(typ string, data any) error
}

// cameraEvent is the stream payload of a resolved camera transition.
type cameraEvent struct {
	ID      string     `json:"id"`
	Label   string     `json:"label"`
	Target  model.Pose `json:"target"`
	Outcome string     `json:"outcome"`
}

type cameraRelay struct{ out broadcaster }

func (r cameraRelay) ObserveTransition(t *camera.Transition, o camera.Outcome) {
	send(r.out, msgCamera, cameraEvent{ID: t.ID, Label: t.Req.Label, Target: t.Req.Target, Outcome: o.String()})
}

// bridgeEvents mirrors machine, presentation, layer and camera events to the
// event stream and the event log. The returned func detaches the machine listeners.
func bridgeEvents(m *tracking.Machine, ctrl *presentation.Controller, layers *presentation.MapLayers, cam *camera.Choreographer, out broadcaster) (detach func()) {
	removes := []func(){
		m.OnStateChange(func(c tracking.StateChange) {
			send(out, msgState, c)
			logging.LogEvent(logging.Event{
				Kind: logging.KindState, From: string(c.From), To: string(c.To), Reason: c.Reason, At: c.At,
			})
		}),
		m.OnBoundaryViolation(func(v tracking.Violation) {
			send(out, msgViolation, v)
			logging.LogEvent(logging.Event{
				Kind: logging.KindViolation, Intent: v.IntentName, DistanceKm: v.DistanceKm, At: v.At,
			})
		}),
		m.OnPositionAccepted(func(a tracking.Accepted) {
			send(out, msgPosition, a)
		}),
		m.OnError(func(e tracking.ErrorEvent) {
			send(out, msgError, e)
			if e.Surfaced {
				logging.LogEvent(logging.Event{
					Kind: logging.KindError, Intent: e.Intent.String(), Reason: e.Kind, At: e.At,
				})
			}
		}),
	}

	ctrl.OnEvent(func(e presentation.Event) { send(out, msgPresentation, e) })
	layers.OnChange(func(c presentation.Change) { send(out, msgLayer, c) })
	cam.AddObserver(cameraRelay{out: out})

	return func() {
		for _, rm := range removes {
			rm()
		}
	}
}

func send(out broadcaster, typ string, data any) {
	if err := out.Broadcast(typ, data); err != nil && !errors.Is(err, hub.ErrClosed) {
		slog.Debug("Event stream broadcast failed", "type", typ, "error", err)
	}
}

// inboundHandler routes client messages. Browser fixes and failures go to
// push, which is nil when the provider replays a route. Notice
// acknowledgments and map gestures go to the UI.
func inboundHandler(push api.FixSink, ui api.Presentation, vp api.Viewport, clk clock.Clock) hub.InboundFunc {
	now := func() int64 { return clk.Now().UnixMilli() }
	return func(clientID string, msg hub.Message) error {
		switch msg.Type {
		case inFix:
			if push == nil {
				return errNoPushSensor
			}
			pos, err := api.DecodeFix(msg.Data, now)
			if err != nil {
				return fmt.Errorf("invalid fix: %w", err)
			}
			push.PushFix(pos)
		case inSensorError:
			if push == nil {
				return errNoPushSensor
			}
			serr, err := api.DecodeErrorReport(msg.Data)
			if err != nil {
				return fmt.Errorf("invalid sensor error: %w", err)
			}
			push.PushError(serr)
		case inAck:
			var req struct {
				ID string `json:"id"`
			}
			if len(msg.Data) > 0 {
				if err := json.Unmarshal(msg.Data, &req); err != nil {
					return fmt.Errorf("invalid ack: %w", err)
				}
			}
			if _, err := ui.AcknowledgeNotice(req.ID); err != nil {
				return err
			}
		case inInteraction:
			var pose *model.Pose
			if len(msg.Data) > 0 {
				var p model.Pose
				if err := json.Unmarshal(msg.Data, &p); err != nil {
					return fmt.Errorf("invalid interaction: %w", err)
				}
				pose = &p
			}
			vp.Interact(pose)
		default:
			return fmt.Errorf("unknown message type %q", msg.Type)
		}
		slog.Debug("Event stream message handled", "client", clientID, "type", msg.Type)
		return nil
	}
}
