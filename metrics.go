package d4

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    stepHistogram *prometheus.HistogramVec
//	}
//
//	func (p *PrometheusCollector) RecordStep(step d4.Step, records int, d time.Duration, err error) {
//	    p.stepHistogram.WithLabelValues(step.String()).Observe(d.Seconds())
//	}
type MetricsCollector interface {
	// RecordStep is called after each step. records is the number of
	// records the step wrote, err is nil if successful.
	RecordStep(step Step, records int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordStep(Step, int, time.Duration, error) {}

type stepCounters struct {
	runs    atomic.Int64
	errors  atomic.Int64
	records atomic.Int64
	nanos   atomic.Int64
}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	steps [numSteps]stepCounters
}

// RecordStep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStep(step Step, records int, duration time.Duration, err error) {
	if step >= numSteps {
		return
	}
	c := &b.steps[step]
	c.runs.Add(1)
	c.nanos.Add(duration.Nanoseconds())
	if err != nil {
		c.errors.Add(1)
		return
	}
	c.records.Add(int64(records))
}

// StepStats is a snapshot of one step's counters.
type StepStats struct {
	Runs       int64
	Errors     int64
	Records    int64
	TotalNanos int64
}

// GetStats returns a snapshot of current metrics keyed by step name.
func (b *BasicMetricsCollector) GetStats() map[string]StepStats {
	out := make(map[string]StepStats, numSteps)
	for _, s := range Steps() {
		c := &b.steps[s]
		out[s.String()] = StepStats{
			Runs:       c.runs.Load(),
			Errors:     c.errors.Load(),
			Records:    c.records.Load(),
			TotalNanos: c.nanos.Load(),
		}
	}
	return out
}
