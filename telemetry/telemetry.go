package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	otelsdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

const defaultCollector = "localhost:4317"

type Config struct {
	Disabled    bool
	ServiceName string
	// Collector is the OTLP gRPC endpoint, host:port.
	Collector string
	LogLevel  slog.Level
}

type ShutdownFunc func(context.Context) error

// InitProviders installs the global trace, log and metric providers and
// replaces the default slog logger with one that also ships records to the
// collector. Exporters are picked with OTEL_TRACES_EXPORTER,
// OTEL_LOGS_EXPORTER and OTEL_METRICS_EXPORTER ("otlp", "console").
func InitProviders(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	var shutdownFuncs []ShutdownFunc

	if cfg.Collector == "" {
		cfg.Collector = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		if cfg.Collector == "" {
			cfg.Collector = defaultCollector
		}
	}
	slog.Debug("init OTEL providers",
		"endpoint", cfg.Collector,
		"service", cfg.ServiceName,
		"disableTelemetry", cfg.Disabled,
	)

	// Each registered cleanup is invoked once, errors are joined.
	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	if cfg.Disabled {
		slog.Info("telemetry disabled")
		return shutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
		resource.WithHost(),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	setups := []func(context.Context, *resource.Resource, Config) (ShutdownFunc, error){
		setupTracing,
		setupLogging,
		setupMetrics,
	}
	for _, setup := range setups {
		fn, err := setup(ctx, res, cfg)
		if err != nil {
			return nil, errors.Join(err, shutdown(ctx))
		}
		shutdownFuncs = append(shutdownFuncs, fn)
	}

	err = runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second))
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}

	return shutdown, nil
}

func exportersFromEnv(name string) []string {
	return strings.Split(os.Getenv(name), ",")
}

func otlpEnabled(exporters []string) bool {
	return slices.Contains(exporters, "") || slices.Contains(exporters, "otlp")
}

func setupTracing(ctx context.Context, res *resource.Resource, cfg Config) (ShutdownFunc, error) {
	options := []trace.TracerProviderOption{
		trace.WithResource(res),
	}

	exporters := exportersFromEnv("OTEL_TRACES_EXPORTER")

	if otlpEnabled(exporters) {
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(cfg.Collector),
		)
		exporter, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		options = append(options, trace.WithBatcher(exporter))
	}

	if slices.Contains(exporters, "console") {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace console exporter: %w", err)
		}
		options = append(options, trace.WithBatcher(exporter))
	}

	provider := trace.NewTracerProvider(options...)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

func setupLogging(ctx context.Context, res *resource.Resource, cfg Config) (ShutdownFunc, error) {
	options := []otelsdklog.LoggerProviderOption{
		otelsdklog.WithResource(res),
	}

	exporters := exportersFromEnv("OTEL_LOGS_EXPORTER")

	if otlpEnabled(exporters) {
		exporter, err := otlploggrpc.New(ctx,
			otlploggrpc.WithInsecure(),
			otlploggrpc.WithEndpoint(cfg.Collector),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create log exporter: %w", err)
		}
		options = append(options,
			otelsdklog.WithProcessor(otelsdklog.NewBatchProcessor(exporter)))
	}

	if slices.Contains(exporters, "console") {
		exporter, err := stdoutlog.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create log console exporter: %w", err)
		}
		options = append(options,
			otelsdklog.WithProcessor(otelsdklog.NewBatchProcessor(exporter)))
	}

	provider := otelsdklog.NewLoggerProvider(options...)
	global.SetLoggerProvider(provider)

	// stdout JSON plus the collector
	logger := slog.New(slogmulti.Fanout(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}),
		otelslog.NewHandler(cfg.ServiceName, otelslog.WithLoggerProvider(provider)),
	))
	slog.SetDefault(logger)

	return provider.Shutdown, nil
}

func setupMetrics(ctx context.Context, res *resource.Resource, cfg Config) (ShutdownFunc, error) {
	options := []metric.Option{
		metric.WithResource(res),
	}

	exporters := exportersFromEnv("OTEL_METRICS_EXPORTER")

	if otlpEnabled(exporters) {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithInsecure(),
			otlpmetricgrpc.WithEndpoint(cfg.Collector),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		options = append(options, metric.WithReader(metric.NewPeriodicReader(exporter)))
	}

	if slices.Contains(exporters, "console") {
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create metric console exporter: %w", err)
		}
		options = append(options, metric.WithReader(metric.NewPeriodicReader(exporter)))
	}

	provider := metric.NewMeterProvider(options...)
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}
