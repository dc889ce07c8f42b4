package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CheckFunc performs one readiness check. It returns nil when the check passes.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup or health check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // A critical failure prevents startup.
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Status is the JSON view of a Result served on /health.
type Status struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	Critical   bool   `json:"critical"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// DefaultTimeout bounds each check.
const DefaultTimeout = 5 * time.Second

// Run executes the probes in order and returns their results.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	for i, p := range probes {
		start := time.Now()

		checkCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		err := p.Check(checkCtx)
		cancel()

		results[i] = Result{
			Probe:    p,
			Error:    err,
			Duration: time.Since(start),
		}
	}

	return results
}

// AnalyzeResults logs the results and joins the errors of failed critical probes.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Startup Checks Summary")

	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}

		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		if r.Error != nil {
			slog.Error(msg, "error", r.Error)
			if r.Probe.Critical {
				criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
			}
		} else {
			slog.Info(msg)
		}
	}

	return errors.Join(criticalErrors...)
}

// Statuses converts results for the health endpoint. healthy is false when
// any critical probe failed.
func Statuses(results []Result) (out []Status, healthy bool) {
	healthy = true
	out = make([]Status, 0, len(results))
	for _, r := range results {
		s := Status{
			Name:       r.Probe.Name,
			OK:         r.Error == nil,
			Critical:   r.Probe.Critical,
			DurationMs: r.Duration.Milliseconds(),
		}
		if r.Error != nil {
			s.Error = r.Error.Error()
			if r.Probe.Critical {
				healthy = false
			}
		}
		out = append(out, s)
	}
	return out, healthy
}
