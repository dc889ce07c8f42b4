package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fencetrack/pkg/animation"
	"fencetrack/pkg/camera"
	"fencetrack/pkg/clock"
	"fencetrack/pkg/geo"
	"fencetrack/pkg/model"
	"fencetrack/pkg/presentation"
)

var heerlen = geo.Point{Lat: 50.8878, Lon: 5.9683}

type viewportRig struct {
	vp   *camera.SimViewport
	ctrl *presentation.Controller
	h    *ViewportHandler
	b    geo.Boundary
}

func newViewportRig(t *testing.T) *viewportRig {
	t.Helper()
	b, err := geo.NewBoundary(heerlen, 0.6)
	require.NoError(t, err)

	clk := clock.NewFake(time.Unix(0, 0))
	frames := animation.NewManualFrames()
	vp := camera.NewSimViewport(model.Pose{Center: heerlen, Zoom: 14}, frames, clk)
	cam := camera.NewChoreographer(vp)
	ctrl := presentation.NewController(presentation.DefaultConfig(heerlen), b, presentation.NewMapLayers(), cam, frames, clk)
	t.Cleanup(func() {
		ctrl.Close()
		cam.Close()
	})
	return &viewportRig{vp: vp, ctrl: ctrl, h: NewViewportHandler(vp, ctrl, b), b: b}
}

func TestViewportHandler_HandleViewport(t *testing.T) {
	r := newViewportRig(t)

	w := httptest.NewRecorder()
	r.h.HandleViewport(w, httptest.NewRequest("GET", "/api/viewport", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	var got ViewportResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, 14.0, got.Pose.Zoom)
	assert.False(t, got.Moving)
	assert.Nil(t, got.Notice)
	assert.Empty(t, got.Notifications)

	r.ctrl.ShowViolationNotice(r.b)
	r.ctrl.ShowError(2)

	w = httptest.NewRecorder()
	r.h.HandleViewport(w, httptest.NewRequest("GET", "/api/viewport", http.NoBody))
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.NotNil(t, got.Notice)
	assert.Equal(t, "Kom naar Heerlen", got.Notice.Title)
	require.Len(t, got.Notifications, 1)
	assert.Equal(t, 2, got.Notifications[0].Code)
}

func TestViewportHandler_HandleAcknowledge(t *testing.T) {
	r := newViewportRig(t)
	notice := r.ctrl.ShowViolationNotice(r.b)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"WrongID", `{"id":"other"}`, http.StatusNotFound},
		{"Matching", `{"id":"` + notice.ID + `"}`, http.StatusNoContent},
		{"AlreadyAcknowledged", "", http.StatusNotFound},
		{"Malformed", `{"id":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.h.HandleAcknowledge(w, httptest.NewRequest("POST", "/api/notice/ack", strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}

	n, ok := r.ctrl.Notice()
	require.True(t, ok)
	assert.True(t, n.Acknowledged)
}

func TestViewportHandler_HandleInteraction(t *testing.T) {
	r := newViewportRig(t)
	interactions := 0
	r.vp.OnInteraction(func() { interactions++ })

	w := httptest.NewRecorder()
	body := `{"center":{"lat":50.89,"lon":5.97},"zoom":16,"pitch":30,"bearing":10}`
	r.h.HandleInteraction(w, httptest.NewRequest("POST", "/api/viewport/interaction", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, interactions)
	assert.Equal(t, 16.0, r.vp.Pose().Zoom)

	// Without a body the pose is kept.
	w = httptest.NewRecorder()
	r.h.HandleInteraction(w, httptest.NewRequest("POST", "/api/viewport/interaction", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, interactions)
	assert.Equal(t, 16.0, r.vp.Pose().Zoom)
}

func TestViewportHandler_HandleBoundary(t *testing.T) {
	r := newViewportRig(t)

	w := httptest.NewRecorder()
	r.h.HandleBoundary(w, httptest.NewRequest("GET", "/api/overlay/boundary", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

	f, err := geojson.UnmarshalFeature(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Polygon", f.Geometry.GeoJSONType())
}

func TestViewportHandler_HandleLayers(t *testing.T) {
	r := newViewportRig(t)

	w := httptest.NewRecorder()
	r.h.HandleLayers(w, httptest.NewRequest("GET", "/api/overlay/layers", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	var layers []presentation.Layer
	require.NoError(t, json.NewDecoder(w.Body).Decode(&layers))
	ids := make([]string, 0, len(layers))
	for _, l := range layers {
		ids = append(ids, l.ID)
	}
	for _, id := range presentation.BoundaryLayers {
		assert.Contains(t, ids, id)
	}
}
