package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"fencetrack/internal/api"
	"fencetrack/pkg/animation"
	"fencetrack/pkg/camera"
	"fencetrack/pkg/catalog"
	"fencetrack/pkg/clock"
	"fencetrack/pkg/config"
	"fencetrack/pkg/db"
	"fencetrack/pkg/db/maintenance"
	"fencetrack/pkg/geo"
	"fencetrack/pkg/hub"
	"fencetrack/pkg/logging"
	"fencetrack/pkg/model"
	"fencetrack/pkg/observability"
	"fencetrack/pkg/presentation"
	"fencetrack/pkg/probe"
	"fencetrack/pkg/sensor"
	"fencetrack/pkg/store"
	"fencetrack/pkg/tracker"
	"fencetrack/pkg/tracking"
	"fencetrack/pkg/version"
	"fencetrack/pkg/watcher"
)

const defaultConfigPath = "configs/fencetrack.yaml"

var (
	configPath = flag.String("config", defaultConfigPath, "Path to the YAML config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Fencetrack Started", "version", version.Version)

	boundary, err := geo.NewBoundary(geo.Point{Lat: appCfg.Tracking.Boundary.Center.Lat, Lon: appCfg.Tracking.Boundary.Center.Lon}, appCfg.Tracking.Boundary.RadiusKm)
	if err != nil {
		return fmt.Errorf("invalid tracking boundary: %w", err)
	}

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	rep := maintenance.Run(ctx, st, dbConn, appCfg.Catalog.Path, appCfg.DB.HistoryRetention.Std())
	if rep.CatalogChanged {
		slog.Info("Feature catalog changed since last run", "path", appCfg.Catalog.Path)
	}

	cat := catalog.New(appCfg.Catalog.H3Resolution)
	catErr := loadCatalog(cat, appCfg.Catalog.Path)
	if interval := appCfg.Catalog.ReloadInterval.Std(); interval > 0 {
		w := watcher.NewService([]string{appCfg.Catalog.Path})
		go w.Run(ctx, interval, func(path string) { _ = loadCatalog(cat, path) })
	}

	// Metrics and counters
	collector, err := observability.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	tr := tracker.New()

	// Position source
	clk := clock.New()
	dev, push, closeSensor := newSensor(appCfg, clk)
	defer closeSensor()
	src := sensor.NewRetryingSource(dev, sensorOptions(appCfg), appCfg.Sensor.Provider)
	src.AddRecorder(tr)
	src.AddRecorder(collector)

	// Camera and presentation
	frames := animation.NewTickerFrames(appCfg.Camera.FrameRate)
	defer frames.Close()
	presCfg := presentationConfig(appCfg, boundary.Center())
	vp := camera.NewSimViewport(presCfg.IntroPose, frames, clk)
	cam := camera.NewChoreographer(vp)
	defer cam.Close()
	cam.AddObserver(collector)

	layers := presentation.NewMapLayers()
	ctrl := presentation.NewController(presCfg, boundary, layers, cam, frames, clk)
	defer ctrl.Close()

	// Tracking
	machine := tracking.New(trackingConfig(appCfg, boundary), src, cam, ctrl, cat)
	defer machine.Close()
	history := tracking.RecordHistory(machine, st)
	defer history.Close()
	detachMetrics := collector.Attach(machine)
	defer detachMetrics()

	// Event stream
	events := hub.New(nil)
	defer events.Close()
	detachEvents := bridgeEvents(machine, ctrl, layers, cam, events)
	defer detachEvents()
	var sink api.FixSink
	if push != nil {
		sink = push
	}
	events.OnInbound(inboundHandler(sink, ctrl, vp, clk))

	// Startup Probes
	probes := []probe.Probe{
		{
			Name:     "Database",
			Check:    dbConn.PingContext,
			Critical: true,
		},
		{
			Name:     "Feature Catalog",
			Check:    func(context.Context) error { return catErr },
			Critical: false, // Markers stay empty without it
		},
	}
	results := probe.Run(ctx, probes)
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	// Server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	handlers := api.Handlers{
		Tracking: api.NewTrackingHandler(machine, st),
		Viewport: api.NewViewportHandler(vp, ctrl, boundary),
		Settings: api.NewSettingsHandler(config.NewProvider(appCfg, st)),
		Stats:    api.NewStatsHandler(tr, events, st),
		Health:   api.NewHealthHandler(probes),
		Metrics:  collector,
		Events:   events,
	}
	if push != nil {
		handlers.Sensor = api.NewSensorHandler(push, func() int64 { return clk.Now().UnixMilli() })
	}
	srv := api.NewServer(appCfg.Server.Address, handlers, appCfg.UI.StaticDir, shutdownFunc)
	srv.Handler = loggingMiddleware(srv.Handler)

	return runServerLifecycle(ctx, srv, quit)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func loadCatalog(cat *catalog.Catalog, path string) error {
	n, err := cat.Load(path)
	if err != nil {
		slog.Warn("Feature catalog not loaded, distance markers disabled", "path", path, "error", err)
		return err
	}
	slog.Info("Feature catalog loaded", "path", path, "features", n)
	return nil
}

// newSensor builds the configured device sensor. push is nil unless the
// provider accepts browser-fed fixes.
func newSensor(cfg *config.Config, clk clock.Clock) (dev sensor.Sensor, push *sensor.PushSensor, closeFn func()) {
	if cfg.Sensor.Provider == config.ProviderRoute {
		route := sensor.NewRouteSensor(routeConfig(&cfg.Sensor.Route))
		slog.Info("Using route replay sensor", "waypoints", len(cfg.Sensor.Route.Waypoints))
		return route, nil, func() {
			if err := route.Close(); err != nil {
				slog.Debug("Route sensor close", "error", err)
			}
		}
	}
	push = sensor.NewPushSensor(clk)
	slog.Info("Using browser-fed sensor")
	return push, push, func() {}
}

func sensorOptions(cfg *config.Config) sensor.Options {
	return sensor.Options{
		HighAccuracy: cfg.Sensor.HighAccuracy,
		MaxAge:       cfg.Sensor.MaxAge.Std(),
		Timeout:      cfg.Sensor.Timeout.Std(),
	}
}

func routeConfig(rc *config.RouteConfig) sensor.RouteConfig {
	out := sensor.RouteConfig{
		SpeedMps: rc.Speed,
		Tick:     rc.Tick.Std(),
		Loop:     rc.Loop,
	}
	for _, w := range rc.Waypoints {
		out.Waypoints = append(out.Waypoints, geo.Point{Lat: w.Lat, Lon: w.Lon})
	}
	return out
}

func trackingConfig(cfg *config.Config, b geo.Boundary) tracking.Config {
	tc := tracking.DefaultConfig(b)
	tc.Retry = sensor.RetryPolicy{
		MaxAttempts: cfg.Tracking.Retry.MaxAttempts,
		Backoff:     cfg.Tracking.Retry.Backoff.Std(),
	}
	tc.NearbyRadiusM = cfg.Tracking.NearbyRadius.Meters()

	cam := &cfg.Camera
	tc.FollowZoom = cam.Follow.Zoom
	tc.FollowPitch = cam.Follow.Pitch
	tc.FollowDuration = cam.Follow.Duration.Std()
	tc.FirstFixDuration = cam.FirstFixDuration.Std()
	tc.RecenterThresholdM = cam.RecenterThreshold.Meters()
	tc.BoundaryZoom = cam.Boundary.Zoom
	tc.BoundaryDuration = cam.Boundary.Duration.Std()
	tc.EndPitch = cam.End.Pitch
	tc.EndDuration = cam.End.Duration.Std()
	return tc
}

func presentationConfig(cfg *config.Config, center geo.Point) presentation.Config {
	pc := presentation.DefaultConfig(center)
	p := &cfg.Presentation
	pc.NoticeTimeout = p.NoticeTimeout.Std()
	pc.ErrorTimeout = p.ErrorTimeout.Std()
	pc.PulseDuration = p.PulseDuration.Std()
	pc.OverlayMaxOpacity = p.OverlayMaxOpacity
	pc.OverlayStep = p.OverlayStep
	pc.NearbyRadiusM = cfg.Tracking.NearbyRadius.Meters()

	intro := cfg.Camera.Intro
	pc.IntroPose = model.Pose{Center: center, Zoom: intro.Zoom, Pitch: intro.Pitch, Bearing: intro.Bearing}
	pc.IntroDuration = intro.Duration.Std()

	if p.Notice.Title != "" {
		pc.Texts.Title = p.Notice.Title
	}
	if p.Notice.Body != "" {
		pc.Texts.Body = p.Notice.Body
	}
	if p.Notice.Button != "" {
		pc.Texts.Button = p.Notice.Button
	}
	return pc
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if logging.RequestLogger != nil {
			logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}
