package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fencetrack/pkg/hub"
	"fencetrack/pkg/probe"
	"fencetrack/pkg/sensor"
	"fencetrack/pkg/store"
	"fencetrack/pkg/tracker"
)

type fakeHubStats struct{ s hub.Stats }

func (f fakeHubStats) Stats() hub.Stats { return f.s }

func TestStatsHandler(t *testing.T) {
	tr := tracker.New()
	tr.RecordAttempt("push", nil)
	tr.RecordAttempt("push", sensor.NewError(sensor.Timeout, "slow fix"))

	events := &fakeEvents{events: []store.EventRecord{
		{Kind: store.KindState}, {Kind: store.KindState}, {Kind: store.KindViolation},
	}}
	h := NewStatsHandler(tr, fakeHubStats{hub.Stats{Clients: 2, Sent: 10}}, events)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	var got StatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))

	push, ok := got.Sources["push"]
	require.True(t, ok)
	assert.Equal(t, int64(2), push.Attempts)
	assert.Equal(t, int64(1), push.Successes)
	assert.Equal(t, int64(1), push.Timeouts)

	require.NotNil(t, got.Hub)
	assert.Equal(t, 2, got.Hub.Clients)
	assert.Equal(t, uint64(10), got.Hub.Sent)

	assert.Equal(t, 2, got.Events[store.KindState])
	assert.Equal(t, 1, got.Events[store.KindViolation])
	assert.Equal(t, 0, got.Events[store.KindError])

	assert.Positive(t, got.Diagnostics.Goroutines)
	assert.GreaterOrEqual(t, got.Diagnostics.HeapMaxMB, got.Diagnostics.HeapMB)
}

func TestStatsHandler_Minimal(t *testing.T) {
	h := NewStatsHandler(nil, nil, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	var got StatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Empty(t, got.Sources)
	assert.Nil(t, got.Hub)
	assert.Nil(t, got.Events)
}

func TestHealthHandler(t *testing.T) {
	ok := func(name string, critical bool) probe.Probe {
		return probe.Probe{Name: name, Critical: critical, Check: func(ctx context.Context) error { return nil }}
	}
	fail := func(name string, critical bool) probe.Probe {
		return probe.Probe{Name: name, Critical: critical, Check: func(ctx context.Context) error { return errors.New("down") }}
	}

	tests := []struct {
		name        string
		probes      []probe.Probe
		wantStatus  int
		wantHealthy bool
	}{
		{"AllPass", []probe.Probe{ok("database", true), ok("catalog", false)}, http.StatusOK, true},
		{"OptionalFails", []probe.Probe{ok("database", true), fail("catalog", false)}, http.StatusOK, true},
		{"CriticalFails", []probe.Probe{fail("database", true), ok("catalog", false)}, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.probes)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest("GET", "/health", http.NoBody))
			require.Equal(t, tt.wantStatus, w.Code)

			var got HealthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			assert.Equal(t, tt.wantHealthy, got.Healthy)
			assert.Len(t, got.Checks, len(tt.probes))
		})
	}
}
