package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fencetrack/pkg/camera"
	"fencetrack/pkg/model"
	"fencetrack/pkg/sensor"
	"fencetrack/pkg/tracking"
)

var states = []model.WatchState{model.WatchOff, model.WatchActiveLock, model.WatchActiveError, model.WatchPaused}

// Collector bundles the Prometheus metrics of the tracking service. It records
// sensor attempts (sensor.Recorder), camera outcomes (camera.Observer),
// machine events and HTTP requests.
type Collector struct {
	gatherer prometheus.Gatherer

	Acquisitions   *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	Violations     *prometheus.CounterVec
	State          *prometheus.GaugeVec
	CameraMoves    *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDurations  *prometheus.HistogramVec
	NearbyFeatures prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Acquisitions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fencetrack_acquisition_attempts_total",
		Help: "Position acquisition attempts, labeled by source and result.",
	}, []string{"source", "result"}), "fencetrack_acquisition_attempts_total"); err != nil {
		return nil, err
	}
	if c.Transitions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fencetrack_state_transitions_total",
		Help: "Committed watch state transitions.",
	}, []string{"from", "to"}), "fencetrack_state_transitions_total"); err != nil {
		return nil, err
	}
	if c.Violations, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fencetrack_boundary_violations_total",
		Help: "Boundary violations, labeled by intent.",
	}, []string{"intent"}), "fencetrack_boundary_violations_total"); err != nil {
		return nil, err
	}
	if c.State, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fencetrack_watch_state",
		Help: "1 for the current watch state, 0 otherwise.",
	}, []string{"state"}), "fencetrack_watch_state"); err != nil {
		return nil, err
	}
	if c.CameraMoves, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fencetrack_camera_transitions_total",
		Help: "Camera transitions, labeled by label and outcome.",
	}, []string{"label", "outcome"}), "fencetrack_camera_transitions_total"); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fencetrack_http_requests_total",
		Help: "Handled HTTP requests, labeled by route, method and status code.",
	}, []string{"route", "method", "code"}), "fencetrack_http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fencetrack_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route"}), "fencetrack_http_request_duration_seconds"); err != nil {
		return nil, err
	}
	if c.NearbyFeatures, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fencetrack_nearby_features",
		Help: "Distance markers shown for the last accepted position.",
	}), "fencetrack_nearby_features"); err != nil {
		return nil, err
	}

	c.setState(model.WatchOff)
	return c, nil
}

// RecordAttempt implements sensor.Recorder.
func (c *Collector) RecordAttempt(source string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = sensor.KindOf(err).String()
	}
	c.Acquisitions.WithLabelValues(source, result).Inc()
}

// ObserveTransition implements camera.Observer.
func (c *Collector) ObserveTransition(t *camera.Transition, o camera.Outcome) {
	if c == nil || t == nil {
		return
	}
	label := t.Req.Label
	if label == "" {
		label = "unlabeled"
	}
	c.CameraMoves.WithLabelValues(label, o.String()).Inc()
}

// Attach subscribes to m's events. The returned func unsubscribes.
func (c *Collector) Attach(m *tracking.Machine) (remove func()) {
	removes := []func(){
		m.OnStateChange(func(s tracking.StateChange) {
			c.Transitions.WithLabelValues(string(s.From), string(s.To)).Inc()
			c.setState(s.To)
		}),
		m.OnBoundaryViolation(func(v tracking.Violation) {
			c.Violations.WithLabelValues(v.IntentName).Inc()
		}),
		m.OnPositionAccepted(func(a tracking.Accepted) {
			c.NearbyFeatures.Set(float64(len(a.Markers)))
		}),
	}
	return func() {
		for _, rm := range removes {
			rm()
		}
	}
}

func (c *Collector) setState(current model.WatchState) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		c.State.WithLabelValues(string(s)).Set(v)
	}
}

// Middleware records request counts and durations under the given route name.
func (c *Collector) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(sw.code)).Inc()
		c.HTTPDurations.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for websocket upgrades.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
