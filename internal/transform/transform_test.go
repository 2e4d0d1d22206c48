package transform

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func rec(date string, spend float64) models.Record {
	r := models.Record{Spend: spend, Label: date, Metrics: map[string]float64{"Spend": spend}}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		r.Date = &t
	}
	return r
}

func TestAdstock_Example(t *testing.T) {
	got := Adstock([]float64{100, 0, 0, 0}, 0.65)
	want := []float64{100, 65, 42.25, 27.4625}

	require.Len(t, got, 4)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9)
	}
}

func TestAdstock_ZeroDecayIsIdentity(t *testing.T) {
	raw := []float64{3, 1, 4, 1, 5, 9}
	assert.Equal(t, raw, Adstock(raw, 0))
}

func TestAdstock_FullDecayIsCumulativeSum(t *testing.T) {
	got := Adstock([]float64{1, 2, 3, 4}, 1)
	assert.Equal(t, []float64{1, 3, 6, 10}, got)
}

func TestAdstock_Empty(t *testing.T) {
	assert.Empty(t, Adstock(nil, 0.5))
}

func TestAdstock_ConvergesToSteadyState(t *testing.T) {
	for _, decay := range []float64{0, 0.1, 0.25, 0.5, 0.65, 0.8, 0.9} {
		for _, c := range []float64{1, 10, 250.5} {
			raw := make([]float64, 500)
			for i := range raw {
				raw[i] = c
			}
			got := Adstock(raw, decay)
			assert.InDelta(t, SteadyState(c, decay), got[len(got)-1], 1e-6, "decay=%v c=%v", decay, c)
		}
	}
}

func TestHill_InflectionPoint(t *testing.T) {
	assert.Equal(t, 0.5, Hill(0.5, 1.42, 0.5))
	assert.Equal(t, 0.5, Hill(0.3, 2.7, 0.3))
}

func TestHill_Bounds(t *testing.T) {
	assert.Equal(t, 0.0, Hill(0, 1.42, 0.5))
	assert.InDelta(t, 1/(1+math.Pow(0.5, 1.42)), Hill(1, 1.42, 0.5), 1e-12)
	assert.Equal(t, 0.0, Hill(0, 1, 0))
}

func TestCurves_Monotonic(t *testing.T) {
	curveTypes := []models.CurveType{models.CurveHill, models.CurveSCurve, models.CurvePower}
	for _, ct := range curveTypes {
		for _, slope := range []float64{0.2, 1, 1.42, 3, 8} {
			for _, inflection := range []float64{0.05, 0.5, 1} {
				curve := NewCurve(models.SaturationSettings{CurveType: ct, Slope: slope, Inflection: inflection})
				prev := curve(0)
				for i := 1; i <= 200; i++ {
					y := curve(float64(i) / 200)
					assert.GreaterOrEqual(t, y, prev, "%s slope=%v k=%v", ct, slope, inflection)
					assert.GreaterOrEqual(t, y, 0.0)
					assert.LessOrEqual(t, y, 1.0)
					prev = y
				}
			}
		}
	}
}

func TestSCurve_Endpoints(t *testing.T) {
	assert.InDelta(t, 0, SCurve(0, 1.42, 0.5), 1e-12)
	assert.InDelta(t, 1, SCurve(1, 1.42, 0.5), 1e-12)
}

func TestCurveSample(t *testing.T) {
	cfg := models.DefaultTransformSettings().Saturation
	points := CurveSample(cfg, []float64{0.25, 1})

	require.Len(t, points, 50)
	assert.Equal(t, 0.0, points[0].X)
	assert.InDelta(t, 0.5, points[20].X, 1e-12)
	assert.InDelta(t, 0.5, points[20].Y, 1e-12)
	assert.InDelta(t, 49.0/40, points[49].X, 1e-12)
	assert.Equal(t, Hill(1, cfg.Slope, cfg.Inflection), points[49].Y)

	require.NotNil(t, points[0].Spend)
	assert.Equal(t, 0.25, *points[0].Spend)
	require.NotNil(t, points[1].Spend)
	assert.Equal(t, 1.0, *points[1].Spend)
	assert.Nil(t, points[2].Spend)
}

func TestNormalize(t *testing.T) {
	got, peak := Normalize([]float64{10, 20, 40})
	assert.Equal(t, 40.0, peak)
	assert.Equal(t, []float64{0.25, 0.5, 1}, got)

	zeros, peak := Normalize([]float64{0, -1})
	assert.Equal(t, 0.0, peak)
	assert.Equal(t, []float64{0, 0}, zeros)
}

func TestBucketStart(t *testing.T) {
	// 2024-01-03 is a Wednesday
	wed := *day("2024-01-03")
	assert.Equal(t, *day("2024-01-01"), BucketStart(wed, models.GranularityWeekly, models.WeekStartMonday))
	assert.Equal(t, *day("2023-12-31"), BucketStart(wed, models.GranularityWeekly, models.WeekStartSunday))
	assert.Equal(t, *day("2024-01-01"), BucketStart(wed, models.GranularityMonthly, models.WeekStartMonday))
	assert.Equal(t, wed, BucketStart(wed.Add(13*time.Hour), models.GranularityDaily, models.WeekStartMonday))

	sunday := *day("2024-01-07")
	assert.Equal(t, *day("2024-01-01"), BucketStart(sunday, models.GranularityWeekly, models.WeekStartMonday))
	assert.Equal(t, sunday, BucketStart(sunday, models.GranularityWeekly, models.WeekStartSunday))
}

func TestAggregate_WeeklySumConservesTotal(t *testing.T) {
	records := []models.Record{
		rec("2024-01-01", 10),
		rec("2024-01-02", 20),
		rec("2024-01-03", 30),
	}
	cfg := models.AggregationSettings{Granularity: models.GranularityWeekly, Method: models.MethodSum, WeekStarting: models.WeekStartMonday}

	buckets := Aggregate(records, "Spend", cfg)

	require.Len(t, buckets, 1)
	assert.Equal(t, 60.0, buckets[0].Value)
	assert.Equal(t, 3, buckets[0].Count)
}

func TestAggregate_Methods(t *testing.T) {
	records := []models.Record{
		rec("2024-02-10", 5),
		rec("2024-01-05", 4),
		rec("2024-01-20", 8),
		rec("not-a-date", 1000),
		rec("", 1000),
	}

	tests := []struct {
		method models.AggregationMethod
		want   []float64
	}{
		{models.MethodSum, []float64{12, 5}},
		{models.MethodAvg, []float64{6, 5}},
		{models.MethodMax, []float64{8, 5}},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			cfg := models.AggregationSettings{Granularity: models.GranularityMonthly, Method: tt.method, WeekStarting: models.WeekStartMonday}
			buckets := Aggregate(records, "Spend", cfg)
			require.Len(t, buckets, 2)
			assert.Equal(t, *day("2024-01-01"), buckets[0].Start)
			assert.Equal(t, *day("2024-02-01"), buckets[1].Start)
			assert.Equal(t, tt.want, BucketValues(buckets))
		})
	}
}

func TestAggregate_SumConservationDaily(t *testing.T) {
	var records []models.Record
	total := 0.0
	start := *day("2024-03-01")
	for i := 0; i < 90; i++ {
		v := float64(i%7) * 12.5
		total += v
		r := rec(start.AddDate(0, 0, i).Format("2006-01-02"), v)
		records = append(records, r)
	}

	for _, g := range []models.Granularity{models.GranularityDaily, models.GranularityWeekly, models.GranularityMonthly} {
		buckets := Aggregate(records, "Spend", models.AggregationSettings{Granularity: g, Method: models.MethodSum, WeekStarting: models.WeekStartSunday})
		sum := 0.0
		for i, b := range buckets {
			sum += b.Value
			if i > 0 {
				assert.True(t, buckets[i-1].Start.Before(b.Start))
			}
		}
		assert.InDelta(t, total, sum, 1e-9, "granularity=%s", g)
	}
}

func TestAggregate_Empty(t *testing.T) {
	buckets := Aggregate(nil, "Spend", models.DefaultTransformSettings().Aggregation)
	assert.NotNil(t, buckets)
	assert.Empty(t, buckets)
}
