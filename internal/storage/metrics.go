package storage

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	opLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storage",
		Name:      "operation_seconds",
		Help:      "Latency of snapshot reads and writes per backend.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"backend", "op"})

	opErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storage",
		Name:      "operation_errors_total",
		Help:      "Failed snapshot reads and writes per backend, excluding not-found lookups.",
	}, []string{"backend", "op"})

	tracer = otel.Tracer("github.com/example/progress-sync/storage")
)

func init() {
	prometheus.MustRegister(opLatency, opErrors)
}

// observe records the latency and outcome of one backend call.
func observe(backend, op string, start time.Time, err error) {
	opLatency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		opErrors.WithLabelValues(backend, op).Inc()
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
