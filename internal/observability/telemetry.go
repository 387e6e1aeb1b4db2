package observability

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "ember"

// TelemetryConfig controls the tracing pipeline for sessions and
// evaluations.
type TelemetryConfig struct {
	Enabled bool
	// Endpoint overrides the OTLP/HTTP collector address (host:port).
	Endpoint string
	// SampleRatio is the fraction of root spans kept, in (0, 1].
	SampleRatio float64
	Version     string
	Commit      string
}

// TelemetryShutdown flushes pending spans and restores the previous globals.
type TelemetryShutdown func(ctx context.Context) error

// TelemetryFromEnv reads OTEL_ENABLED, EMBER_TRACE_ENDPOINT and
// EMBER_TRACE_SAMPLE_RATIO. An unparsable or out of range ratio keeps
// every span.
func TelemetryFromEnv(version, commit string) *TelemetryConfig {
	cfg := &TelemetryConfig{
		Enabled:     envBool("OTEL_ENABLED"),
		Endpoint:    strings.TrimSpace(os.Getenv("EMBER_TRACE_ENDPOINT")),
		SampleRatio: 1,
		Version:     version,
		Commit:      commit,
	}

	if raw := strings.TrimSpace(os.Getenv("EMBER_TRACE_SAMPLE_RATIO")); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil && ratio > 0 && ratio <= 1 {
			cfg.SampleRatio = ratio
		}
	}

	return cfg
}

// SetupTelemetry installs an OTLP/HTTP tracer provider. When cfg is nil or
// disabled the global provider is left untouched and shutdown is a no-op.
func SetupTelemetry(ctx context.Context, cfg *TelemetryConfig) (TelemetryShutdown, error) {
	if cfg == nil || !cfg.Enabled {
		return noopShutdown, nil
	}

	origTP := otel.GetTracerProvider()
	origPropagator := otel.GetTextMapPropagator()
	origErrorHandler := otel.GetErrorHandler()

	name := serviceName
	if envName := os.Getenv("OTEL_SERVICE_NAME"); envName != "" {
		name = envName
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", name),
		attribute.String("service.version", cfg.Version),
	}

	if cfg.Commit != "" {
		attrs = append(attrs, attribute.String("service.commit", cfg.Commit))
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return noopShutdown, fmt.Errorf("merge otel resource: %w", err)
	}

	exporterOpts := []otlptracehttp.Option{
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}

	if cfg.Endpoint != "" {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}

	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return noopShutdown, fmt.Errorf("create otel exporter: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Export failures must never write over the prompt.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(error) {}))

	return func(shutdownCtx context.Context) error {
		err := provider.Shutdown(shutdownCtx)

		otel.SetTracerProvider(origTP)
		otel.SetTextMapPropagator(origPropagator)
		otel.SetErrorHandler(origErrorHandler)

		if err != nil {
			return fmt.Errorf("shutdown otel provider: %w", err)
		}

		return nil
	}, nil
}

// Tracer returns a named tracer from the global TracerProvider.
func Tracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}

// FailSpan marks span as failed with err. A nil err leaves it untouched.
func FailSpan(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

func noopShutdown(context.Context) error { return nil }
