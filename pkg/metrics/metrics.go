package metrics

import (
	"context"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/health"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder records run counters of the monitor.
// Safe for concurrent use.
type Recorder struct {
	runs          metric.Int64Counter
	units         metric.Int64Counter
	notifications metric.Int64Counter
	publishes     metric.Int64Counter
	runDuration   metric.Float64Histogram
}

func NewRecorder(meter metric.Meter) (*Recorder, error) {
	runs, err := meter.Int64Counter(
		"monitor.runs",
		metric.WithDescription("Completed health runs by aggregate severity"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	units, err := meter.Int64Counter(
		"monitor.unit.status",
		metric.WithDescription("Unit classifications by color"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, err
	}

	notifications, err := meter.Int64Counter(
		"monitor.notifications",
		metric.WithDescription("Notification gate outcomes"),
		metric.WithUnit("{outcome}"),
	)
	if err != nil {
		return nil, err
	}

	publishes, err := meter.Int64Counter(
		"monitor.publishes",
		metric.WithDescription("Status page publish attempts by result"),
		metric.WithUnit("{publish}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"monitor.run.duration_ms",
		metric.WithDescription("Health run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		runs:          runs,
		units:         units,
		notifications: notifications,
		publishes:     publishes,
		runDuration:   runDuration,
	}, nil
}

// RecordRun records one finished run and the color of each of its units.
func (r *Recorder) RecordRun(ctx context.Context, global health.GlobalStatus, duration time.Duration) {
	aggregate := metric.WithAttributes(attribute.String("aggregate", string(global.Aggregate)))
	r.runs.Add(ctx, 1, aggregate)
	r.runDuration.Record(ctx, float64(duration.Microseconds())/1000.0, aggregate)

	for _, status := range global.Units {
		r.units.Add(ctx, 1, metric.WithAttributes(attribute.String("color", string(status.Color))))
	}
}

// RecordNotification records a gate outcome.
func (r *Recorder) RecordNotification(ctx context.Context, outcome string) {
	r.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPublish records a publish attempt; result is "changed", "unchanged" or "failed".
func (r *Recorder) RecordPublish(ctx context.Context, changed bool, err error) {
	result := "unchanged"
	switch {
	case err != nil:
		result = "failed"
	case changed:
		result = "changed"
	}
	r.publishes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
