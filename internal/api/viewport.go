package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"fencetrack/pkg/camera"
	"fencetrack/pkg/geo"
	"fencetrack/pkg/model"
	"fencetrack/pkg/presentation"
)

// Viewport is the authoritative camera the map client mirrors.
type Viewport interface {
	Pose() model.Pose
	IsMoving() bool
	Interact(pose *model.Pose)
}

// Presentation is the boundary UI controller.
type Presentation interface {
	Notice() (presentation.Notice, bool)
	Notifications() []presentation.Notification
	AcknowledgeNotice(id string) (*camera.Transition, error)
	Layers() *presentation.MapLayers
}

// ViewportHandler exposes the camera pose and the violation UI.
type ViewportHandler struct {
	vp       Viewport
	ui       Presentation
	boundary geo.Boundary
}

// NewViewportHandler creates a new viewport handler.
func NewViewportHandler(vp Viewport, ui Presentation, boundary geo.Boundary) *ViewportHandler {
	return &ViewportHandler{vp: vp, ui: ui, boundary: boundary}
}

// ViewportResponse is the body of GET /api/viewport.
type ViewportResponse struct {
	Pose          model.Pose                  `json:"pose"`
	Moving        bool                        `json:"moving"`
	Notice        *presentation.Notice        `json:"notice,omitempty"`
	Notifications []presentation.Notification `json:"notifications"`
}

// HandleViewport handles GET /api/viewport.
func (h *ViewportHandler) HandleViewport(w http.ResponseWriter, r *http.Request) {
	resp := ViewportResponse{
		Pose:          h.vp.Pose(),
		Moving:        h.vp.IsMoving(),
		Notifications: h.ui.Notifications(),
	}
	if n, ok := h.ui.Notice(); ok {
		resp.Notice = &n
	}
	if resp.Notifications == nil {
		resp.Notifications = []presentation.Notification{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleInteraction handles POST /api/viewport/interaction: the user dragged
// or zoomed the map. An optional pose body records where they left it.
func (h *ViewportHandler) HandleInteraction(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	var pose *model.Pose
	if len(data) > 0 {
		var p model.Pose
		if err := json.Unmarshal(data, &p); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		pose = &p
	}
	h.vp.Interact(pose)
	writeJSON(w, http.StatusOK, h.vp.Pose())
}

type ackRequest struct {
	ID string `json:"id"`
}

// HandleAcknowledge handles POST /api/notice/ack. An empty id acknowledges
// whatever notice is showing.
func (h *ViewportHandler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	var req ackRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if _, err := h.ui.AcknowledgeNotice(req.ID); err != nil {
		if errors.Is(err, presentation.ErrNoNotice) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBoundary handles GET /api/overlay/boundary.
func (h *ViewportHandler) HandleBoundary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/geo+json")
	data, err := h.boundary.Feature().MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	_, _ = w.Write(data)
}

// HandleLayers handles GET /api/overlay/layers.
func (h *ViewportHandler) HandleLayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ui.Layers().Layers())
}
