// Package transform implements the media transformation pipeline: time-bucket
// aggregation, geometric adstock and saturation curves. Every stage is a pure
// function of its inputs and the shared TransformSettings.
package transform

import (
	"sort"
	"time"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
)

// BucketStart returns the UTC start of the calendar bucket containing t
func BucketStart(t time.Time, granularity models.Granularity, weekStart models.WeekStart) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	switch granularity {
	case models.GranularityMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case models.GranularityWeekly:
		offset := int(day.Weekday())
		if weekStart != models.WeekStartSunday {
			offset = (offset + 6) % 7
		}
		return day.AddDate(0, 0, -offset)
	default:
		return day
	}
}

// Aggregate groups records into calendar buckets and reduces the metric column of
// each bucket with the configured method. Records without a parsable date are
// dropped. Buckets are returned in ascending start order.
func Aggregate(records []models.Record, metric string, cfg models.AggregationSettings) []models.Bucket {
	type acc struct {
		sum   float64
		max   float64
		count int
	}

	groups := make(map[time.Time]*acc)
	for _, r := range records {
		if r.Date == nil {
			continue
		}
		v := r.Metric(metric)
		start := BucketStart(*r.Date, cfg.Granularity, cfg.WeekStarting)
		a, ok := groups[start]
		if !ok {
			a = &acc{max: v}
			groups[start] = a
		}
		a.sum += v
		if v > a.max {
			a.max = v
		}
		a.count++
	}

	buckets := make([]models.Bucket, 0, len(groups))
	for start, a := range groups {
		var value float64
		switch cfg.Method {
		case models.MethodAvg:
			value = a.sum / float64(a.count)
		case models.MethodMax:
			value = a.max
		default:
			value = a.sum
		}
		buckets = append(buckets, models.Bucket{Start: start, Value: value, Count: a.count})
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Start.Before(buckets[j].Start)
	})
	return buckets
}

// BucketValues extracts the reduced values in bucket order
func BucketValues(buckets []models.Bucket) []float64 {
	values := make([]float64, len(buckets))
	for i, b := range buckets {
		values[i] = b.Value
	}
	return values
}
