package manager

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("boundcheck.manager")
	meter  = otel.Meter("boundcheck.manager")
)

var (
	cacheLookups metric.Int64Counter
	evictions    metric.Int64Counter
	queueDrops   metric.Int64Counter
	discarded    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheLookups, err = meter.Int64Counter(
			"manager_cache_lookups_total",
			metric.WithDescription("Class model lookups, by result (hit or miss)"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evictions, err = meter.Int64Counter(
			"manager_evictions_total",
			metric.WithDescription("Class models removed because their class disappeared"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queueDrops, err = meter.Int64Counter(
			"manager_queue_drops_total",
			metric.WithDescription("Classes not scheduled because the work queue was full"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		discarded, err = meter.Int64Counter(
			"manager_discarded_results_total",
			metric.WithDescription("Results dropped because the class changed while it was verified"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordLookup(ctx context.Context, hit bool) {
	if initMetrics() != nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func recordCount(ctx context.Context, c *metric.Int64Counter, n int) {
	if initMetrics() != nil || n == 0 {
		return
	}
	(*c).Add(ctx, int64(n))
}
