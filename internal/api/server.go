package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"fencetrack/pkg/observability"
	"fencetrack/pkg/version"
)

// Handlers groups the endpoint handlers mounted by NewServer. Nil handlers
// leave their routes unmounted.
type Handlers struct {
	Tracking *TrackingHandler
	Sensor   *SensorHandler
	Viewport *ViewportHandler
	Settings *SettingsHandler
	Stats    *StatsHandler
	Health   *HealthHandler
	Metrics  *observability.Collector
	Events   http.Handler
}

// NewServer creates and configures the HTTP server.
// staticDir serves the map front end when it exists. shutdown is invoked by
// POST /api/shutdown.
func NewServer(addr string, h Handlers, staticDir string, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// route mounts a handler, timing it when a metrics collector is present.
	route := func(pattern, name string, fn http.HandlerFunc) {
		if h.Metrics != nil {
			mux.Handle(pattern, h.Metrics.Middleware(name, fn))
			return
		}
		mux.Handle(pattern, fn)
	}

	// 1. Health Endpoint
	if h.Health != nil {
		route("GET /health", "health", h.Health.ServeHTTP)
	} else {
		route("GET /health", "health", handleHealth)
	}

	// 2. Version Endpoint
	route("GET /api/version", "version", handleVersion)

	// 3. Tracking Endpoints
	if h.Tracking != nil {
		route("GET /api/tracking", "tracking", h.Tracking.HandleSnapshot)
		route("POST /api/tracking/start", "tracking_start", h.Tracking.HandleStart)
		route("POST /api/tracking/stop", "tracking_stop", h.Tracking.HandleStop)
		route("POST /api/tracking/pause", "tracking_pause", h.Tracking.HandlePause)
		route("POST /api/tracking/resume", "tracking_resume", h.Tracking.HandleResume)
		route("GET /api/tracking/history", "tracking_history", h.Tracking.HandleHistory)
	}

	// 4. Browser-fed Sensor Endpoints
	if h.Sensor != nil {
		route("POST /api/sensor/fix", "sensor_fix", h.Sensor.HandleFix)
		route("POST /api/sensor/error", "sensor_error", h.Sensor.HandleError)
	}

	// 5. Viewport and Presentation Endpoints
	if h.Viewport != nil {
		route("GET /api/viewport", "viewport", h.Viewport.HandleViewport)
		route("POST /api/viewport/interaction", "viewport_interaction", h.Viewport.HandleInteraction)
		route("POST /api/notice/ack", "notice_ack", h.Viewport.HandleAcknowledge)
		route("GET /api/overlay/boundary", "overlay_boundary", h.Viewport.HandleBoundary)
		route("GET /api/overlay/layers", "overlay_layers", h.Viewport.HandleLayers)
	}

	// 6. Settings Endpoints
	if h.Settings != nil {
		route("GET /api/settings", "settings", h.Settings.HandleGet)
		route("POST /api/settings", "settings_update", h.Settings.HandleUpdate)
	}

	// 7. Stats and Logs
	if h.Stats != nil {
		route("GET /api/stats", "stats", h.Stats.ServeHTTP)
	}
	route("GET /api/log/latest", "log_latest", handleLatestLog)
	route("GET /api/log/event", "log_event", handleLatestEvent)

	// 8. Metrics
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics.Handler())
	}

	// 9. Event Stream. Not wrapped: the upgrade needs the raw ResponseWriter.
	if h.Events != nil {
		mux.Handle("GET /ws", h.Events)
	}

	// 10. Shutdown Endpoint
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Call shutdown in a goroutine to allow response to flush
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	// 11. Static Frontend Serving (SPA)
	if staticDir != "" {
		if fi, err := os.Stat(staticDir); err == nil && fi.IsDir() {
			mux.Handle("/", http.FileServer(&spaFileSystem{root: http.Dir(staticDir)}))
		} else {
			slog.Warn("Static front end not found, serving API only", "dir", staticDir)
		}
	}

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

// writeError reports err as {"error": "..."}.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}
