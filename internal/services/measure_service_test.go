package services

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
)

var fullMapping = models.ColumnMapping{
	models.FieldDate:    "Date",
	models.FieldRevenue: "Revenue",
	models.FieldSpend:   "Spend",
	models.FieldChannel: "Channel",
	models.FieldCountry: "Country",
}

func record(date string, revenue, spend float64, channel, country string) models.Record {
	r := models.Record{
		Revenue: revenue,
		Spend:   spend,
		Channel: channel,
		Country: country,
		Label:   date,
		Metrics: map[string]float64{"Revenue": revenue, "Spend": spend},
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		r.Date = &t
	}
	return r
}

func sampleRecords() []models.Record {
	return []models.Record{
		record("2024-01-01", 500, 100, "Search", "US"),
		record("2024-01-01", 300, 150, "Social", "UK"),
		record("2024-01-02", 400, 100, "Search", "UK"),
		record("2024-03-15", 1000, 200, "TV", "US"),
		record("2024-03-20", 200, 50, "", "US"),
	}
}

func TestNewMeasureService(t *testing.T) {
	assert.NotNil(t, NewMeasureService(nil))
	assert.NotNil(t, NewMeasureService(logrus.New()))
}

func TestMeasureService_Compute(t *testing.T) {
	svc := NewMeasureService(logrus.New())

	report, ok := svc.Compute(sampleRecords(), fullMapping, models.DefaultFilters(), 0)
	require.True(t, ok)

	assert.Equal(t, 2400.0, report.KPI.Revenue)
	assert.Equal(t, 600.0, report.KPI.Spend)
	assert.InDelta(t, 300.0, report.KPI.ROI, 1e-9)
	assert.InDelta(t, 4.0, report.KPI.ROAS, 1e-9)
	assert.Equal(t, 5, report.Rows)

	require.Len(t, report.Trend, 4)
	assert.Equal(t, "2024-01-01", report.Trend[0].Date)
	assert.Equal(t, 800.0, report.Trend[0].Revenue)
	assert.Equal(t, "2024-03-20", report.Trend[3].Date)
	assert.Nil(t, report.Trend[0].MovingAverage)

	require.Len(t, report.Channels, 4)
	assert.Equal(t, "TV", report.Channels[0].Channel)
	assert.Equal(t, "Search", report.Channels[1].Channel)
	assert.Equal(t, 900.0, report.Channels[1].Revenue)
	assert.InDelta(t, 4.5, report.Channels[1].ROAS, 1e-9)
	assert.Equal(t, unknownChannel, report.Channels[3].Channel)

	assert.Equal(t, []string{"All", "UK", "US"}, report.Filters.Countries)
	assert.Equal(t, []string{"All", "Search", "Social", "TV"}, report.Filters.Channels)
}

func TestMeasureService_ComputeRequiresMapping(t *testing.T) {
	svc := NewMeasureService(nil)

	tests := []struct {
		name    string
		records []models.Record
		mapping models.ColumnMapping
	}{
		{"no records", nil, fullMapping},
		{"no date", sampleRecords(), models.ColumnMapping{models.FieldRevenue: "Revenue", models.FieldSpend: "Spend"}},
		{"no spend", sampleRecords(), models.ColumnMapping{models.FieldDate: "Date", models.FieldRevenue: "Revenue"}},
		{"blank revenue", sampleRecords(), models.ColumnMapping{models.FieldDate: "Date", models.FieldRevenue: " ", models.FieldSpend: "Spend"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, ok := svc.Compute(tt.records, tt.mapping, models.DefaultFilters(), 0)
			assert.False(t, ok)
			assert.Nil(t, report)
		})
	}
}

func TestMeasureService_FilterOptionsIgnoreActiveFilters(t *testing.T) {
	svc := NewMeasureService(nil)
	filters := models.Filters{Country: "UK", Channel: models.FilterAll, DateRange: models.RangeAllTime}

	report, ok := svc.Compute(sampleRecords(), fullMapping, filters, 0)
	require.True(t, ok)

	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, 700.0, report.KPI.Revenue)
	assert.Equal(t, []string{"All", "UK", "US"}, report.Filters.Countries)
}

func TestMeasureService_ZeroSpend(t *testing.T) {
	svc := NewMeasureService(nil)
	records := []models.Record{record("2024-01-01", 100, 0, "Search", "US")}

	report, ok := svc.Compute(records, fullMapping, models.DefaultFilters(), 0)
	require.True(t, ok)
	assert.Equal(t, 0.0, report.KPI.ROI)
	assert.Equal(t, 0.0, report.KPI.ROAS)
	assert.Equal(t, 0.0, report.Channels[0].ROAS)
}

func TestApplyFilters_RelativeRange(t *testing.T) {
	records := []models.Record{
		record("2024-03-31", 1, 1, "A", "US"),
		record("2024-03-01", 1, 1, "A", "US"),
		record("2024-02-29", 1, 1, "A", "US"),
		record("2024-01-10", 1, 1, "A", "US"),
		record("garbage", 1, 1, "A", "US"),
	}
	ts := time.Date(2024, 3, 31, 18, 30, 0, 0, time.UTC)
	records[0].Date = &ts

	last30 := ApplyFilters(records, models.Filters{DateRange: models.RangeLast30Days})
	require.Len(t, last30, 2)
	assert.Equal(t, "2024-03-01", last30[1].Label)

	last90 := ApplyFilters(records, models.Filters{DateRange: models.RangeLast90Days})
	assert.Len(t, last90, 4)

	all := ApplyFilters(records, models.Filters{DateRange: models.RangeAllTime})
	assert.Len(t, all, 5)
}

func TestApplyFilters_CountryAndChannel(t *testing.T) {
	got := ApplyFilters(sampleRecords(), models.Filters{Country: "US", Channel: "Search"})
	require.Len(t, got, 1)
	assert.Equal(t, 500.0, got[0].Revenue)
}

func TestMeasureService_MovingAverage(t *testing.T) {
	var records []models.Record
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	revenues := []float64{10, 20, 30, 40, 50, 60}
	for i, v := range revenues {
		records = append(records, record(start.AddDate(0, 0, i).Format("2006-01-02"), v, 1, "A", "US"))
	}

	report, ok := NewMeasureService(nil).Compute(records, fullMapping, models.DefaultFilters(), 3)
	require.True(t, ok)
	require.Len(t, report.Trend, 6)

	last := report.Trend[5].MovingAverage
	require.NotNil(t, last)
	assert.InDelta(t, 50.0, *last, 1e-9)
	assert.Nil(t, report.Trend[0].MovingAverage)
	assert.Nil(t, report.Trend[1].MovingAverage)
}

func TestMeasureService_MovingAverageShortSeries(t *testing.T) {
	records := []models.Record{record("2024-01-01", 10, 1, "A", "US")}

	report, ok := NewMeasureService(nil).Compute(records, fullMapping, models.DefaultFilters(), 7)
	require.True(t, ok)
	assert.Nil(t, report.Trend[0].MovingAverage)
}
