package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Service information
	ServiceName    = "mmm-dashboard"
	ServiceVersion = "1.0.0"

	httpTracerName     = "mmm/http"
	businessTracerName = "mmm/business"
)

// TelemetryConfig holds configuration for telemetry
type TelemetryConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// DefaultConfig returns default telemetry configuration
func DefaultConfig() *TelemetryConfig {
	return &TelemetryConfig{
		Enabled:        false,
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    "development",
	}
}

// Provider holds the installed tracer provider
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
}

// Option customizes InitTelemetry
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
	writer   io.Writer
	sync     bool
}

// WithTraceExporter replaces the configured exporter
func WithTraceExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithSyncExport exports every span as it ends instead of batching
func WithSyncExport() Option {
	return func(o *options) { o.sync = true }
}

// WithWriter sets the destination of the stdout exporter
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// InitTelemetry installs the global tracer provider and propagator. Spans go to
// the OTLP HTTP endpoint when one is configured and to stdout otherwise. A
// disabled config leaves the no-op global provider in place.
func InitTelemetry(ctx context.Context, config TelemetryConfig, opts ...Option) (*Provider, error) {
	if !config.Enabled {
		return &Provider{}, nil
	}

	o := options{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	exporter := o.exporter
	if exporter == nil {
		var err error
		exporter, err = newExporter(ctx, config, o.writer)
		if err != nil {
			return nil, err
		}
	}

	name := config.ServiceName
	if name == "" {
		name = ServiceName
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	)

	processor := sdktrace.WithBatcher(exporter)
	if o.sync {
		processor = sdktrace.WithSyncer(exporter)
	}
	tp := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tracerProvider: tp}, nil
}

func newExporter(ctx context.Context, config TelemetryConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	if config.Endpoint == "" {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		return exp, nil
	}

	endpoint := strings.TrimPrefix(config.Endpoint, "https://")
	opts := []otlptracehttp.Option{}
	if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint = rest
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	opts = append(opts, otlptracehttp.WithEndpoint(endpoint))

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	return exp, nil
}

// Shutdown flushes pending spans and stops the provider
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracerProvider == nil {
		return nil
	}
	return p.tracerProvider.Shutdown(ctx)
}

// Enabled reports whether a real tracer provider was installed
func (p *Provider) Enabled() bool {
	return p != nil && p.tracerProvider != nil
}

// GetHTTPTracer returns the tracer used by the HTTP middleware
func GetHTTPTracer() trace.Tracer {
	return otel.Tracer(httpTracerName)
}

// GetBusinessTracer returns the tracer used for workspace operations
func GetBusinessTracer() trace.Tracer {
	return otel.Tracer(businessTracerName)
}
