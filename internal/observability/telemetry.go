package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls telemetry exporters and listeners.
type Config struct {
	ServiceName  string
	DeviceID     string
	MetricsAddr  string
	OTLPEndpoint string
}

// NewLogger builds the process logger. Every entry carries the app name and,
// when known, the device id so merged logs from several devices stay
// attributable. An unknown level falls back to info.
func NewLogger(w io.Writer, appName, deviceID, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	ctx := zerolog.New(w).Level(lvl).With().Timestamp().Str("app", appName)
	if deviceID != "" {
		ctx = ctx.Str("device", deviceID)
	}
	return ctx.Logger()
}

// Start configures Prometheus metrics and OpenTelemetry tracing. Either is
// skipped when its address is empty. The returned shutdown function should be
// invoked during graceful shutdown.
func Start(ctx context.Context, cfg Config, logger zerolog.Logger) (func(context.Context) error, error) {
	tracerProvider, err := startTracing(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	metricsSrv := startMetricsServer(cfg.MetricsAddr, logger)

	return func(ctx context.Context) error {
		var errs []error
		if metricsSrv != nil {
			errs = append(errs, metricsSrv.Shutdown(ctx))
		}
		if tracerProvider != nil {
			errs = append(errs, tracerProvider.Shutdown(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

// traceResource identifies this process; the device id doubles as the
// service instance so spans from two devices of one user can be told apart.
func traceResource(cfg Config) *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.DeviceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.DeviceID))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func startTracing(ctx context.Context, cfg Config, logger zerolog.Logger) (*sdktrace.TracerProvider, error) {
	if cfg.OTLPEndpoint == "" {
		return nil, nil
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(traceResource(cfg)),
	)
	otel.SetTracerProvider(provider)
	logger.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("otlp tracing enabled")
	return provider, nil
}

func startMetricsServer(addr string, logger zerolog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics server started")
	return srv
}

// LoggerWithTrace attaches trace context to the provided logger when available.
func LoggerWithTrace(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With().Str("trace_id", spanCtx.TraceID().String()).Str("span_id", spanCtx.SpanID().String()).Logger()
}

// UserLogger scopes logger to a sync session: the user id plus any trace
// context carried by ctx.
func UserLogger(ctx context.Context, logger zerolog.Logger, userID string) zerolog.Logger {
	return LoggerWithTrace(ctx, logger).With().Str("user", userID).Logger()
}

// RegisterRuntimeCollectors exposes basic Go runtime metrics (goroutines and
// GC pause). Calling it more than once is harmless.
func RegisterRuntimeCollectors() {
	register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "runtime",
		Name:      "goroutines",
		Help:      "Number of goroutines in the process.",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	}))

	register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "runtime",
		Name:      "last_gc_pause_seconds",
		Help:      "Duration of the most recent GC pause.",
	}, func() float64 {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		return float64(stats.PauseNs[(stats.NumGC+255)%256]) / float64(time.Second)
	}))
}

func register(c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
	}
}
