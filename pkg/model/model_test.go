package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosition_Heading(t *testing.T) {
	h := 42.0
	assert.Equal(t, 42.0, Position{HeadingDeg: &h}.Heading(0))
	assert.Equal(t, 7.0, Position{}.Heading(7))
}

func TestPosition_Point(t *testing.T) {
	p := Position{Lat: 50.888, Lon: 5.9685, TimestampMs: 1_700_000_000_000}
	assert.Equal(t, 50.888, p.Point().Lat)
	assert.Equal(t, 5.9685, p.Point().Lon)
	assert.Equal(t, int64(1_700_000_000_000), p.Time().UnixMilli())
}

func TestWatchState_Subscribed(t *testing.T) {
	tests := []struct {
		state WatchState
		want  bool
	}{
		{WatchOff, false},
		{"", false},
		{WatchActiveLock, true},
		{WatchActiveError, true},
		{WatchPaused, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Subscribed())
		})
	}
}

func TestIntent_String(t *testing.T) {
	assert.Equal(t, "user", UserInitiated.String())
	assert.Equal(t, "automatic", Automatic.String())
}

func TestFeature_Name(t *testing.T) {
	f := Feature{ID: "loc-1"}
	assert.Equal(t, "loc-1", f.Name())
	f.Properties = map[string]string{"name": "Glaspaleis"}
	assert.Equal(t, "Glaspaleis", f.Name())
}
