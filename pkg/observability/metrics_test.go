package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"fencetrack/pkg/camera"
	"fencetrack/pkg/sensor"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c, reg
}

func TestRecordAttempt(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordAttempt("browser", nil)
	c.RecordAttempt("browser", sensor.NewError(sensor.Timeout, "slow"))
	c.RecordAttempt("browser", sensor.NewError(sensor.Timeout, "slow"))
	c.RecordAttempt("route", errors.New("boom"))

	tests := []struct {
		source, result string
		want           float64
	}{
		{"browser", "ok", 1},
		{"browser", "timeout", 2},
		{"route", "unknown", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(c.Acquisitions.WithLabelValues(tt.source, tt.result)); got != tt.want {
			t.Errorf("acquisitions{%s,%s} = %v, want %v", tt.source, tt.result, got, tt.want)
		}
	}
}

func TestObserveTransition(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveTransition(&camera.Transition{Req: camera.Request{Label: "follow"}}, camera.Completed)
	c.ObserveTransition(&camera.Transition{Req: camera.Request{Label: "follow"}}, camera.Interrupted)
	c.ObserveTransition(&camera.Transition{}, camera.Canceled)
	c.ObserveTransition(nil, camera.Completed)

	if got := testutil.ToFloat64(c.CameraMoves.WithLabelValues("follow", "interrupted")); got != 1 {
		t.Errorf("follow/interrupted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.CameraMoves.WithLabelValues("unlabeled", "canceled")); got != 1 {
		t.Errorf("unlabeled/canceled = %v, want 1", got)
	}
}

func TestNewCollector_Twice(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	a.RecordAttempt("browser", nil)
	if got := testutil.ToFloat64(b.Acquisitions.WithLabelValues("browser", "ok")); got != 1 {
		t.Errorf("collectors should share registered metrics, got %v", got)
	}
}

func TestInitialState(t *testing.T) {
	c, _ := newTestCollector(t)
	if got := testutil.ToFloat64(c.State.WithLabelValues("OFF")); got != 1 {
		t.Errorf("OFF gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.State.WithLabelValues("ACTIVE_LOCK")); got != 0 {
		t.Errorf("ACTIVE_LOCK gauge = %v, want 0", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	c, _ := newTestCollector(t)

	h := c.Middleware("tracking_start", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tracking/start", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("tracking_start", "POST", "409")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "fencetrack_http_request_duration_seconds") {
		t.Error("metrics output missing request histogram")
	}
}
