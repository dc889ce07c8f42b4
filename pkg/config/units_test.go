package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"6s", 6 * time.Second, false},
		{"1500ms", 1500 * time.Millisecond, false},
		{"1.5h", 90 * time.Minute, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"1w", 168 * time.Hour, false},
		{"2d2h", 50 * time.Hour, false},
		{"", 0, false},
		{"invalid", 0, true},
		{"2d junk", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{"25m", 25, false},
		{"0.6km", 600, false},
		{"100ft", 30.48, false},
		{"500", 500, false}, // Unitless fallback
		{"10x", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDistance(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDistance(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if diff := got - tt.expected; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("ParseDistance(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	type TestConfig struct {
		Time Duration `yaml:"time"`
		Dist Distance `yaml:"dist"`
		Num  Distance `yaml:"num"`
	}

	yamlData := `
time: 2s
dist: 0.6km
num: 25
`
	var cfg TestConfig
	if err := yaml.Unmarshal([]byte(yamlData), &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if cfg.Time.Std() != 2*time.Second {
		t.Errorf("Expected 2s, got %v", cfg.Time.Std())
	}
	if cfg.Dist.Meters() != 600 {
		t.Errorf("Expected 600m, got %v", cfg.Dist)
	}
	if cfg.Num.Meters() != 25 {
		t.Errorf("Expected 25m, got %v", cfg.Num)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var back TestConfig
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("re-Unmarshal failed: %v\n%s", err, out)
	}
	if back != cfg {
		t.Errorf("round trip = %+v, want %+v", back, cfg)
	}
}
