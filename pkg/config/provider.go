package config

import (
	"context"
	"strconv"

	"fencetrack/pkg/store"
)

// Settings are the user-facing toggles persisted between sessions.
// The tracking state machine never reads them.
type Settings struct {
	Map3D     bool `json:"map_3d"`
	TourShown bool `json:"tour_shown"`
}

// SettingsPatch updates only the fields that are set.
type SettingsPatch struct {
	Map3D     *bool `json:"map_3d,omitempty"`
	TourShown *bool `json:"tour_shown,omitempty"`
}

// Provider defines the interface for accessing unified configuration.
type Provider interface {
	Map3D(ctx context.Context) bool
	TourShown(ctx context.Context) bool
	Settings(ctx context.Context) Settings
	UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error)

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider. st may be nil, in which case
// settings are read-only config defaults.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

func (p *UnifiedProvider) Map3D(ctx context.Context) bool {
	return p.getBool(ctx, KeyMap3D, p.base.UI.Map3D)
}

func (p *UnifiedProvider) TourShown(ctx context.Context) bool {
	return p.getBool(ctx, KeyTourShown, false)
}

func (p *UnifiedProvider) Settings(ctx context.Context) Settings {
	return Settings{
		Map3D:     p.Map3D(ctx),
		TourShown: p.TourShown(ctx),
	}
}

// UpdateSettings persists the set fields and returns the resulting settings.
func (p *UnifiedProvider) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	if p.store != nil {
		if patch.Map3D != nil {
			if err := p.store.SetState(ctx, KeyMap3D, strconv.FormatBool(*patch.Map3D)); err != nil {
				return p.Settings(ctx), err
			}
		}
		if patch.TourShown != nil {
			if err := p.store.SetState(ctx, KeyTourShown, strconv.FormatBool(*patch.TourShown)); err != nil {
				return p.Settings(ctx), err
			}
		}
	}
	return p.Settings(ctx), nil
}

// --- Helpers ---

func (p *UnifiedProvider) getBool(ctx context.Context, key string, fallback bool) bool {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val == "true"
		}
	}
	return fallback
}
