package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessTracer provides utilities for tracing workspace operations.
// It tracks domain activities such as dataset imports and budget reallocation.
type BusinessTracer struct {
	tracer trace.Tracer
}

// NewBusinessTracer creates a new instance of BusinessTracer.
//
// Returns:
//   - A pointer to a BusinessTracer bound to the global tracer provider.
func NewBusinessTracer() *BusinessTracer {
	return &BusinessTracer{tracer: GetBusinessTracer()}
}

// ImportMetrics describes a finished dataset import
type ImportMetrics struct {
	DatasetID string
	Rows      int
	Columns   int
	Detected  bool
	Archived  bool
}

// ReallocationMetrics describes a finished budget reallocation
type ReallocationMetrics struct {
	Channels       int
	ProjectedLift  float64
	ProjectedROAS  float64
	AllocatedTotal float64
}

// TraceImport starts a span for a CSV import.
//
// Parameters:
//   - ctx: The parent context.
//   - name: The uploaded file name.
//
// Returns:
//   - A context containing the new span.
//   - The created span. The caller ends it.
func (bt *BusinessTracer) TraceImport(ctx context.Context, name string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "workspace.import",
		trace.WithAttributes(attribute.String("dataset.name", name)))
}

// RecordImport adds the import outcome to span.
//
// Parameters:
//   - span: The span returned by TraceImport.
//   - metrics: The import summary.
func (bt *BusinessTracer) RecordImport(span trace.Span, metrics ImportMetrics) {
	span.SetAttributes(
		attribute.String("dataset.id", metrics.DatasetID),
		attribute.Int("dataset.rows", metrics.Rows),
		attribute.Int("dataset.columns", metrics.Columns),
		attribute.Bool("mapping.detected", metrics.Detected),
		attribute.Bool("dataset.archived", metrics.Archived),
	)
}

// TraceReallocation starts a span for a budget reallocation
func (bt *BusinessTracer) TraceReallocation(ctx context.Context, budget float64, weights int) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "workspace.reallocate",
		trace.WithAttributes(
			attribute.Float64("budget.total", budget),
			attribute.Int("budget.weights", weights),
		))
}

// RecordReallocation adds the plan summary to span
func (bt *BusinessTracer) RecordReallocation(span trace.Span, metrics ReallocationMetrics) {
	span.SetAttributes(
		attribute.Int("plan.channels", metrics.Channels),
		attribute.Float64("plan.lift_percent", metrics.ProjectedLift),
		attribute.Float64("plan.roas", metrics.ProjectedROAS),
		attribute.Float64("plan.allocated_total", metrics.AllocatedTotal),
	)
}

// TraceForecast starts a span for a forecast projection
func (bt *BusinessTracer) TraceForecast(ctx context.Context, spendChange float64, seasonality int, excludeOutliers bool) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "workspace.forecast",
		trace.WithAttributes(
			attribute.Float64("simulation.spend_change", spendChange),
			attribute.Int("simulation.seasonality", seasonality),
			attribute.Bool("simulation.exclude_outliers", excludeOutliers),
		))
}

// RecordError marks span as failed. A nil err is ignored.
func (bt *BusinessTracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordEmpty marks a span whose operation had no data to work on
func (bt *BusinessTracer) RecordEmpty(span trace.Span, reason string) {
	span.SetAttributes(
		attribute.Bool("result.empty", true),
		attribute.String("result.reason", reason),
	)
}
