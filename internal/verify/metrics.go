package verify

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("boundcheck.verify")
	meter  = otel.Meter("boundcheck.verify")
)

var (
	sequencesChecked metric.Int64Counter
	violationsFound  metric.Int64Counter
	sequenceErrors   metric.Int64Counter
	classDuration    metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		sequencesChecked, err = meter.Int64Counter(
			"verify_sequences_total",
			metric.WithDescription("Total number of call sequences checked"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		violationsFound, err = meter.Int64Counter(
			"verify_violations_total",
			metric.WithDescription("Total number of violations reported, by kind"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sequenceErrors, err = meter.Int64Counter(
			"verify_sequence_errors_total",
			metric.WithDescription("Total number of sequences that failed to encode or solve"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		classDuration, err = meter.Float64Histogram(
			"verify_class_duration_seconds",
			metric.WithDescription("Duration of verifying one class"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordSequence(ctx context.Context, failed bool) {
	if err := initMetrics(); err != nil {
		return
	}
	sequencesChecked.Add(ctx, 1)
	if failed {
		sequenceErrors.Add(ctx, 1)
	}
}

func recordResult(ctx context.Context, r *Result) {
	if err := initMetrics(); err != nil {
		return
	}
	for _, v := range r.Violations {
		violationsFound.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", v.Kind.String())))
	}
	classDuration.Record(ctx, r.Duration.Seconds(),
		metric.WithAttributes(attribute.String("state", r.State.String())))
}

func since(start time.Time) time.Duration {
	return time.Since(start).Round(time.Microsecond)
}
