package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"fencetrack/pkg/config"
)

// SettingsHandler serves the persisted user toggles.
type SettingsHandler struct {
	prov config.Provider
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(prov config.Provider) *SettingsHandler {
	return &SettingsHandler{prov: prov}
}

// HandleGet handles GET /api/settings.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.prov.Settings(r.Context()))
}

// HandleUpdate handles POST /api/settings. Only the fields present are changed.
func (h *SettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	var patch config.SettingsPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	s, err := h.prov.UpdateSettings(r.Context(), patch)
	if err != nil {
		slog.Error("Failed to save settings", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	slog.Debug("Settings updated", "map_3d", s.Map3D, "tour_shown", s.TourShown)
	writeJSON(w, http.StatusOK, s)
}
