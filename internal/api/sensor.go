package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"fencetrack/pkg/model"
	"fencetrack/pkg/sensor"
)

// FixSink receives browser-reported fixes and failures.
type FixSink interface {
	PushFix(pos model.Position)
	PushError(err *sensor.Error)
}

// SensorHandler feeds the push sensor from the map client.
type SensorHandler struct {
	sink FixSink
	now  func() int64
}

// NewSensorHandler creates a new sensor handler. now returns the current time
// in Unix milliseconds and stamps fixes that arrive without a timestamp.
func NewSensorHandler(sink FixSink, now func() int64) *SensorHandler {
	return &SensorHandler{sink: sink, now: now}
}

// ErrorReport is a browser geolocation failure. Code uses the W3C numbering.
type ErrorReport struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DecodeFix parses and validates a fix. Missing timestamps are stamped with now.
func DecodeFix(data []byte, now func() int64) (model.Position, error) {
	var pos model.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return model.Position{}, err
	}
	if !pos.Point().Valid() {
		return model.Position{}, errors.New("coordinates out of range")
	}
	if pos.TimestampMs == 0 && now != nil {
		pos.TimestampMs = now()
	}
	return pos, nil
}

// DecodeErrorReport parses a browser failure into a sensor error.
func DecodeErrorReport(data []byte) (*sensor.Error, error) {
	var rep ErrorReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, err
	}
	msg := rep.Message
	if msg == "" {
		msg = "browser geolocation error"
	}
	return sensor.NewError(sensor.KindFromCode(rep.Code), msg), nil
}

// HandleFix handles POST /api/sensor/fix.
func (h *SensorHandler) HandleFix(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	pos, err := DecodeFix(data, h.now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.sink.PushFix(pos)
	w.WriteHeader(http.StatusNoContent)
}

// HandleError handles POST /api/sensor/error.
func (h *SensorHandler) HandleError(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	serr, err := DecodeErrorReport(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.sink.PushError(serr)
	w.WriteHeader(http.StatusNoContent)
}
