package config

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// MockStateStore implements store.StateStore for testing.
type MockStateStore struct {
	data   map[string]string
	setErr error
}

func NewMockStateStore() *MockStateStore {
	return &MockStateStore{data: make(map[string]string)}
}

func (m *MockStateStore) GetState(ctx context.Context, key string) (string, bool) {
	val, ok := m.data[key]
	return val, ok
}

func (m *MockStateStore) SetState(ctx context.Context, key, val string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = val
	return nil
}

func (m *MockStateStore) DeleteState(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func boolPtr(b bool) *bool { return &b }

func TestUnifiedProvider(t *testing.T) {
	ctx := context.Background()
	base := DefaultConfig()
	base.UI.Map3D = true

	tests := []struct {
		name  string
		store map[string]string
		want  Settings
	}{
		{
			name: "Config defaults",
			want: Settings{Map3D: true, TourShown: false},
		},
		{
			name:  "Store overrides",
			store: map[string]string{KeyMap3D: "false", KeyTourShown: "true"},
			want:  Settings{Map3D: false, TourShown: true},
		},
		{
			name:  "Empty value falls back",
			store: map[string]string{KeyMap3D: ""},
			want:  Settings{Map3D: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewMockStateStore()
			for k, v := range tt.store {
				st.data[k] = v
			}
			p := NewProvider(base, st)
			if got := p.Settings(ctx); got != tt.want {
				t.Errorf("Settings() = %+v, want %+v", got, tt.want)
			}
			if p.AppConfig() != base {
				t.Error("AppConfig() should return the base config")
			}
		})
	}
}

func TestUnifiedProvider_UpdateSettings(t *testing.T) {
	ctx := context.Background()
	st := NewMockStateStore()
	p := NewProvider(DefaultConfig(), st)

	got, err := p.UpdateSettings(ctx, SettingsPatch{TourShown: boolPtr(true)})
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if !got.TourShown || got.Map3D {
		t.Errorf("UpdateSettings() = %+v", got)
	}
	if st.data[KeyTourShown] != "true" {
		t.Errorf("store value = %q, want true", st.data[KeyTourShown])
	}
	if _, ok := st.data[KeyMap3D]; ok {
		t.Error("unset patch field must not be written")
	}

	st.setErr = errors.New("disk full")
	if _, err := p.UpdateSettings(ctx, SettingsPatch{Map3D: boolPtr(true)}); err == nil {
		t.Error("expected store error")
	}
}

func TestSettingsPatch_JSON(t *testing.T) {
	var patch SettingsPatch
	if err := json.Unmarshal([]byte(`{"map_3d":true}`), &patch); err != nil {
		t.Fatal(err)
	}
	if patch.Map3D == nil || !*patch.Map3D {
		t.Error("map_3d not decoded")
	}
	if patch.TourShown != nil {
		t.Error("tour_shown should stay unset")
	}
}

func TestUnifiedProvider_NilStore(t *testing.T) {
	p := NewProvider(DefaultConfig(), nil)
	got, err := p.UpdateSettings(context.Background(), SettingsPatch{Map3D: boolPtr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if got.Map3D {
		t.Error("without a store settings stay at config defaults")
	}
}
