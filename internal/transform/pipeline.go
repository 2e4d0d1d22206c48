package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/whynot231455/mmm-sol-dashboard/internal/ingest"
	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
)

const sourcePreviewRows = 100

// Input is everything the pipeline reads from the workspace snapshot
type Input struct {
	DatasetID string
	Headers   []string
	Records   []models.Record
	Mapping   models.ColumnMapping
}

// Result holds the derived series of every stage. Stages are empty, never nil,
// when the date or metric column cannot be resolved.
type Result struct {
	Key         string                   `json:"key"`
	Metric      string                   `json:"metric"`
	Settings    models.TransformSettings `json:"settings"`
	Buckets     []models.Bucket          `json:"buckets"`
	Source      []models.SeriesPoint     `json:"source"`
	Aggregation []models.SeriesPoint     `json:"aggregation"`
	Adstock     []models.SeriesPoint     `json:"adstock"`
	Saturation  []models.SeriesPoint     `json:"saturation"`
	Final       []models.SeriesPoint     `json:"final"`
	Curve       []models.CurvePoint      `json:"curve"`
	ComputedAt  time.Time                `json:"computed_at"`
}

// Empty reports whether the pipeline produced no aggregated data
func (r *Result) Empty() bool {
	return len(r.Buckets) == 0
}

// Pipeline runs aggregation, adstock and saturation over a workspace snapshot
type Pipeline struct {
	logger *logrus.Logger
}

// NewPipeline creates a pipeline that logs through logger
func NewPipeline(logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{logger: logger}
}

// Run derives every stage series from in and settings
func (p *Pipeline) Run(ctx context.Context, in Input, settings models.TransformSettings) *Result {
	_, span := otel.Tracer("mmm/transform").Start(ctx, "transform.pipeline")
	defer span.End()

	result := &Result{
		Key:         Key(in.DatasetID, in.Mapping, settings),
		Settings:    settings,
		Buckets:     []models.Bucket{},
		Source:      []models.SeriesPoint{},
		Aggregation: []models.SeriesPoint{},
		Adstock:     []models.SeriesPoint{},
		Saturation:  []models.SeriesPoint{},
		Final:       []models.SeriesPoint{},
		ComputedAt:  time.Now().UTC(),
	}
	result.Curve = CurveSample(settings.Saturation, nil)

	metric := MetricColumn(in.Mapping, in.Headers, settings.PrimaryMetric)
	_, hasDate := in.Mapping.Column(models.FieldDate)
	result.Metric = metric
	span.SetAttributes(
		attribute.String("transform.metric", metric),
		attribute.Int("transform.rows", len(in.Records)),
	)
	if metric == "" || !hasDate {
		p.logger.WithFields(logrus.Fields{
			"primary_metric": settings.PrimaryMetric,
			"has_date":       hasDate,
		}).Debug("Transform pipeline skipped: mapping incomplete")
		return result
	}

	records := FilterDateRange(in.Records, settings.DateRange)
	result.Source = sourceSeries(records, metric)

	buckets := Aggregate(records, metric, settings.Aggregation)
	result.Buckets = buckets
	if len(buckets) == 0 {
		return result
	}

	raw := BucketValues(buckets)
	adstocked := Adstock(raw, settings.Adstock.DecayRate)
	normalized, peak := Normalize(adstocked)
	curve := NewCurve(settings.Saturation)

	for i, b := range buckets {
		start := b.Start
		label := start.Format("2006-01-02")

		response := normalized[i]
		if settings.Saturation.Active {
			response = curve(normalized[i])
		}

		result.Aggregation = append(result.Aggregation, point(label, i, &start, raw[i], raw[i]))
		result.Adstock = append(result.Adstock, point(label, i, &start, raw[i], adstocked[i]))
		result.Saturation = append(result.Saturation, point(label, i, &start, normalized[i], response))
		result.Final = append(result.Final, point(label, i, &start, raw[i], response*peak))
	}
	result.Curve = CurveSample(settings.Saturation, normalized)

	p.logger.WithFields(logrus.Fields{
		"metric":  metric,
		"rows":    len(records),
		"buckets": len(buckets),
		"key":     result.Key,
	}).Debug("Transform pipeline computed")

	return result
}

// MetricColumn resolves the primary metric to a header: a mapped role first, then
// an exact header, then a case-insensitive header match. Empty when none applies.
func MetricColumn(mapping models.ColumnMapping, headers []string, primary string) string {
	if col, ok := mapping.Column(models.Field(primary)); ok {
		return col
	}
	for _, h := range headers {
		if h == primary {
			return h
		}
	}
	for _, h := range headers {
		if strings.EqualFold(h, primary) {
			return h
		}
	}
	return ""
}

// FilterDateRange keeps the records whose date lies within r (inclusive).
// An empty or unparsable bound is open.
func FilterDateRange(records []models.Record, r models.DateRange) []models.Record {
	start, hasStart := ingest.ParseDate(r.Start)
	end, hasEnd := ingest.ParseDate(r.End)
	if !hasStart && !hasEnd {
		return records
	}
	if hasEnd {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}

	out := make([]models.Record, 0, len(records))
	for _, rec := range records {
		if rec.Date == nil {
			continue
		}
		if hasStart && rec.Date.Before(start) {
			continue
		}
		if hasEnd && rec.Date.After(end) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Key fingerprints the pipeline inputs for memoization
func Key(datasetID string, mapping models.ColumnMapping, settings models.TransformSettings) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(datasetID))

	fields := make([]string, 0, len(mapping))
	for f, col := range mapping {
		fields = append(fields, string(f)+"="+col)
	}
	sort.Strings(fields)
	_, _ = h.Write([]byte(strings.Join(fields, ";")))

	encoded, _ := json.Marshal(settings)
	_, _ = h.Write(encoded)
	return fmt.Sprintf("%016x", h.Sum64())
}

func sourceSeries(records []models.Record, metric string) []models.SeriesPoint {
	n := len(records)
	if n > sourcePreviewRows {
		n = sourcePreviewRows
	}
	series := make([]models.SeriesPoint, 0, n)
	for i := 0; i < n; i++ {
		rec := records[i]
		label := rec.Label
		if label == "" {
			label = fmt.Sprintf("Point %d", i)
		}
		v := rec.Metric(metric)
		series = append(series, point(label, i, rec.Date, v, v))
	}
	return series
}

func point(label string, index int, t *time.Time, raw, transformed float64) models.SeriesPoint {
	return models.SeriesPoint{
		Label:       label,
		Index:       index,
		Time:        t,
		Raw:         raw,
		Transformed: transformed,
	}
}
