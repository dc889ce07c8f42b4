package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Sensor providers.
const (
	ProviderPush  = "push"
	ProviderRoute = "route"
)

// Config holds the application configuration.
type Config struct {
	Tracking     TrackingConfig     `yaml:"tracking"`
	Sensor       SensorConfig       `yaml:"sensor"`
	Camera       CameraConfig       `yaml:"camera"`
	Presentation PresentationConfig `yaml:"presentation"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	UI           UIConfig           `yaml:"ui"`
	Log          LogConfig          `yaml:"log"`
	DB           DBConfig           `yaml:"db"`
	Server       ServerConfig       `yaml:"server"`
}

// TrackingConfig holds the geofence and acquisition policy.
type TrackingConfig struct {
	Boundary     BoundaryConfig `yaml:"boundary"`
	Retry        RetryConfig    `yaml:"retry"`
	NearbyRadius Distance       `yaml:"nearby_radius" validate:"gt=0"`
}

// BoundaryConfig is the circular service area.
type BoundaryConfig struct {
	Center   LatLon  `yaml:"center"`
	RadiusKm float64 `yaml:"radius_km" validate:"gt=0"`
}

// LatLon is a coordinate pair in degrees.
type LatLon struct {
	Lat float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `yaml:"lon" validate:"gte=-180,lte=180"`
}

// RetryConfig holds the user-initiated acquisition retry policy.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts" validate:"gte=1"`
	Backoff     Duration `yaml:"backoff" validate:"gte=0"`
}

// SensorConfig selects and tunes the position source.
type SensorConfig struct {
	Provider     string      `yaml:"provider" validate:"oneof=push route"`
	HighAccuracy bool        `yaml:"high_accuracy"`
	MaxAge       Duration    `yaml:"max_age" validate:"gte=0"`
	Timeout      Duration    `yaml:"timeout" validate:"gt=0"`
	Route        RouteConfig `yaml:"route"`
}

// RouteConfig drives the replay sensor.
type RouteConfig struct {
	Waypoints []LatLon `yaml:"waypoints" validate:"dive"`
	Speed     float64  `yaml:"speed_mps" validate:"gte=0"`
	Tick      Duration `yaml:"tick" validate:"gte=0"`
	Loop      bool     `yaml:"loop"`
}

// PoseConfig is a camera target without a center.
type PoseConfig struct {
	Zoom     float64  `yaml:"zoom" validate:"gte=0,lte=24"`
	Pitch    float64  `yaml:"pitch" validate:"gte=0,lte=85"`
	Bearing  float64  `yaml:"bearing"`
	Duration Duration `yaml:"duration" validate:"gte=0"`
}

// CameraConfig holds follow, recenter and intro camera moves.
type CameraConfig struct {
	FrameRate         int        `yaml:"frame_rate" validate:"gte=1,lte=240"`
	Follow            PoseConfig `yaml:"follow"`
	FirstFixDuration  Duration   `yaml:"first_fix_duration" validate:"gte=0"`
	RecenterThreshold Distance   `yaml:"recenter_threshold" validate:"gte=0"`
	Boundary          PoseConfig `yaml:"boundary"`
	End               PoseConfig `yaml:"end"`
	Intro             PoseConfig `yaml:"intro"`
}

// PresentationConfig holds notice and overlay timings.
type PresentationConfig struct {
	NoticeTimeout     Duration     `yaml:"notice_timeout" validate:"gte=0"`
	ErrorTimeout      Duration     `yaml:"error_timeout" validate:"gte=0"`
	PulseDuration     Duration     `yaml:"pulse_duration" validate:"gte=0"`
	OverlayMaxOpacity float64      `yaml:"overlay_max_opacity" validate:"gte=0,lte=1"`
	OverlayStep       float64      `yaml:"overlay_step" validate:"gt=0"`
	Notice            NoticeConfig `yaml:"notice"`
}

// NoticeConfig overrides the violation notice texts. Empty fields keep the built-in text.
type NoticeConfig struct {
	Title  string `yaml:"title"`
	Body   string `yaml:"body"`
	Button string `yaml:"button"`
}

// CatalogConfig locates the feature catalog.
type CatalogConfig struct {
	Path           string   `yaml:"path"`
	H3Resolution   int      `yaml:"h3_resolution" validate:"gte=0,lte=15"`
	// ReloadInterval polls the catalog file for edits. Zero disables reloading.
	ReloadInterval Duration `yaml:"reload_interval" validate:"gte=0"`
}

// UIConfig holds defaults for user-facing toggles persisted in the store.
type UIConfig struct {
	Map3D bool `yaml:"map_3d"`
	// StaticDir holds the built map front end. Empty disables static serving.
	StaticDir string `yaml:"static_dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Events   LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path             string   `yaml:"path" validate:"required"`
	HistoryRetention Duration `yaml:"history_retention" validate:"gte=0"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address" validate:"required"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Tracking: TrackingConfig{
			Boundary: BoundaryConfig{
				Center:   LatLon{Lat: 50.8878, Lon: 5.9683},
				RadiusKm: 0.6,
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				Backoff:     Duration(2 * time.Second),
			},
			NearbyRadius: Distance(25),
		},
		Sensor: SensorConfig{
			Provider:     ProviderPush,
			HighAccuracy: true,
			MaxAge:       Duration(1 * time.Second),
			Timeout:      Duration(6 * time.Second),
			Route: RouteConfig{
				Speed: 1.4,
				Tick:  Duration(1 * time.Second),
				Loop:  true,
			},
		},
		Camera: CameraConfig{
			FrameRate:         60,
			Follow:            PoseConfig{Zoom: 17.5, Pitch: 45, Duration: Duration(1 * time.Second)},
			FirstFixDuration:  Duration(2 * time.Second),
			RecenterThreshold: Distance(50),
			Boundary:          PoseConfig{Zoom: 14, Duration: Duration(1500 * time.Millisecond)},
			End:               PoseConfig{Pitch: 45, Duration: Duration(500 * time.Millisecond)},
			Intro:             PoseConfig{Zoom: 18, Pitch: 55, Bearing: -17.6, Duration: Duration(3 * time.Second)},
		},
		Presentation: PresentationConfig{
			NoticeTimeout:     Duration(5 * time.Second),
			ErrorTimeout:      Duration(5 * time.Second),
			PulseDuration:     Duration(2 * time.Second),
			OverlayMaxOpacity: 0.03,
			OverlayStep:       0.005,
		},
		Catalog: CatalogConfig{
			Path:           "./data/features.geojson",
			H3Resolution:   10,
			ReloadInterval: Duration(30 * time.Second),
		},
		UI: UIConfig{
			StaticDir: "./web",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:             "./data/fencetrack.db",
			HistoryRetention: Duration(30 * Day),
		},
		Server: ServerConfig{
			Address: "localhost:1920",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// An existing file is merged over the defaults and never rewritten.
// FENCETRACK_ADDR and FENCETRACK_DB override the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	if addr := os.Getenv("FENCETRACK_ADDR"); addr != "" {
		cfg.Server.Address = addr
	}
	if dbPath := os.Getenv("FENCETRACK_DB"); dbPath != "" {
		cfg.DB.Path = dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Sensor.Provider == ProviderRoute && len(c.Sensor.Route.Waypoints) < 2 {
		return fmt.Errorf("invalid config: sensor.route needs at least 2 waypoints, got %d", len(c.Sensor.Route.Waypoints))
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# fencetrack configuration
# ------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), ft (feet)

`)
	data = append(header, data...)

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: push (browser-fed), route (replay waypoints)\n${1}provider:"))

	reNotice := regexp.MustCompile(`(?m)^(\s+)notice:`)
	data = reNotice.ReplaceAll(data, []byte("${1}# Empty texts keep the built-in Dutch notice\n${1}notice:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
