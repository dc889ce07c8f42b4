package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"fencetrack/pkg/presentation"
	"fencetrack/pkg/sensor"
	"fencetrack/pkg/store"
	"fencetrack/pkg/tracking"
)

// TrackingControl is the part of the tracking machine the API drives.
type TrackingControl interface {
	Start(ctx context.Context) (tracking.StartResult, error)
	Stop() error
	Pause() error
	Resume() error
	Snapshot() tracking.Snapshot
}

// TrackingHandler exposes the tracking state machine.
type TrackingHandler struct {
	machine TrackingControl
	history store.EventStore
}

// NewTrackingHandler creates a new tracking handler. history may be nil.
func NewTrackingHandler(m TrackingControl, history store.EventStore) *TrackingHandler {
	return &TrackingHandler{machine: m, history: history}
}

// StartResponse is the body of POST /api/tracking/start.
type StartResponse struct {
	tracking.StartResult
	Error *SensorFailure `json:"error,omitempty"`
}

// SensorFailure describes an acquisition that ended with a sensor error.
type SensorFailure struct {
	Kind    string `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HandleSnapshot handles GET /api/tracking.
func (h *TrackingHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.machine.Snapshot())
}

// HandleStart handles POST /api/tracking/start. It waits for the acquisition;
// a request that goes away leaves the acquisition running.
func (h *TrackingHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	res, err := h.machine.Start(r.Context())

	var serr *sensor.Error
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, StartResponse{StartResult: res})
	case errors.As(err, &serr):
		// Sensor failures are expected outcomes; the user already saw the message.
		writeJSON(w, http.StatusOK, StartResponse{
			StartResult: res,
			Error: &SensorFailure{
				Kind:    serr.Kind.String(),
				Code:    serr.Kind.Code(),
				Message: presentation.MessageFor(serr),
			},
		})
	case errors.Is(err, tracking.ErrAlreadyTracking), errors.Is(err, tracking.ErrCanceled):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		slog.Debug("Tracking start request ended before acquisition", "error", err)
		writeError(w, http.StatusRequestTimeout, err)
	default:
		writeError(w, http.StatusServiceUnavailable, err)
	}
}

// HandleStop handles POST /api/tracking/stop.
func (h *TrackingHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.command(w, h.machine.Stop)
}

// HandlePause handles POST /api/tracking/pause.
func (h *TrackingHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.command(w, h.machine.Pause)
}

// HandleResume handles POST /api/tracking/resume.
func (h *TrackingHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.command(w, h.machine.Resume)
}

func (h *TrackingHandler) command(w http.ResponseWriter, fn func() error) {
	if err := fn(); err != nil {
		status := http.StatusConflict
		if errors.Is(err, tracking.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, h.machine.Snapshot())
}

// HandleHistory handles GET /api/tracking/history?limit=N.
func (h *TrackingHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, []store.EventRecord{})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.history.RecentEvents(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to read tracking history", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []store.EventRecord{}
	}
	writeJSON(w, http.StatusOK, events)
}
