package services

import (
	"sort"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/sirupsen/logrus"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
)

const unknownChannel = "Unknown"

// MeasureService computes the KPI dashboard over resolved records
type MeasureService struct {
	logger *logrus.Logger
}

// NewMeasureService creates a new measure service
func NewMeasureService(logger *logrus.Logger) *MeasureService {
	if logger == nil {
		logger = logrus.New()
	}
	return &MeasureService{logger: logger}
}

// Compute builds the measure report. It needs date, revenue and spend mappings;
// ok is false when any is missing or there are no records.
// trendWindow > 1 adds a simple moving average of revenue to the trend.
func (s *MeasureService) Compute(records []models.Record, mapping models.ColumnMapping, filters models.Filters, trendWindow int) (*models.MeasureReport, bool) {
	if len(records) == 0 || !mapping.Has(models.FieldDate, models.FieldRevenue, models.FieldSpend) {
		return nil, false
	}

	filtered := ApplyFilters(records, filters)

	var kpi models.KPI
	trendByDate := make(map[string]*models.TrendPoint)
	trendTimes := make(map[string]*time.Time)
	byChannel := make(map[string]*models.ChannelTotal)

	for _, r := range filtered {
		kpi.Revenue += r.Revenue
		kpi.Spend += r.Spend

		if r.Label != "" {
			tp, ok := trendByDate[r.Label]
			if !ok {
				tp = &models.TrendPoint{Date: r.Label}
				trendByDate[r.Label] = tp
				trendTimes[r.Label] = r.Date
			}
			tp.Revenue += r.Revenue
			tp.Spend += r.Spend
		}

		channel := r.Channel
		if channel == "" {
			channel = unknownChannel
		}
		ct, ok := byChannel[channel]
		if !ok {
			ct = &models.ChannelTotal{Channel: channel}
			byChannel[channel] = ct
		}
		ct.Revenue += r.Revenue
		ct.Spend += r.Spend
	}

	if kpi.Spend > 0 {
		kpi.ROI = (kpi.Revenue - kpi.Spend) / kpi.Spend * 100
		kpi.ROAS = kpi.Revenue / kpi.Spend
	}

	trendPoints := make([]models.TrendPoint, 0, len(trendByDate))
	for _, tp := range trendByDate {
		trendPoints = append(trendPoints, *tp)
	}
	sort.SliceStable(trendPoints, func(i, j int) bool {
		ti, tj := trendTimes[trendPoints[i].Date], trendTimes[trendPoints[j].Date]
		switch {
		case ti != nil && tj != nil && !ti.Equal(*tj):
			return ti.Before(*tj)
		case ti != nil && tj == nil:
			return true
		case ti == nil && tj != nil:
			return false
		}
		return trendPoints[i].Date < trendPoints[j].Date
	})
	if trendWindow > 1 {
		addMovingAverage(trendPoints, trendWindow)
	}

	channels := make([]models.ChannelTotal, 0, len(byChannel))
	for _, ct := range byChannel {
		if ct.Spend > 0 {
			ct.ROAS = ct.Revenue / ct.Spend
		}
		channels = append(channels, *ct)
	}
	sort.SliceStable(channels, func(i, j int) bool {
		if channels[i].Revenue == channels[j].Revenue {
			return channels[i].Channel < channels[j].Channel
		}
		return channels[i].Revenue > channels[j].Revenue
	})

	report := &models.MeasureReport{
		KPI:      kpi,
		Trend:    trendPoints,
		Channels: channels,
		Filters: models.FilterOptions{
			Countries: append([]string{models.FilterAll}, models.UniqueValues(records, func(r models.Record) string { return r.Country })...),
			Channels:  append([]string{models.FilterAll}, models.UniqueValues(records, func(r models.Record) string { return r.Channel })...),
		},
		Rows: len(filtered),
	}

	s.logger.WithFields(logrus.Fields{
		"rows":     len(filtered),
		"channels": len(channels),
		"revenue":  kpi.Revenue,
	}).Debug("Measure report computed")

	return report, true
}

// ApplyFilters narrows records by country, channel and date range. Relative date
// ranges are anchored on the latest parsable date across all records and include
// whole days at both ends.
func ApplyFilters(records []models.Record, f models.Filters) []models.Record {
	var minDate, maxDate time.Time
	rangeDays := 0
	switch f.DateRange {
	case models.RangeLast30Days:
		rangeDays = 30
	case models.RangeLast90Days:
		rangeDays = 90
	}
	if rangeDays > 0 {
		latest := latestDate(records)
		if latest.IsZero() {
			latest = time.Now().UTC()
		}
		minDay := latest.AddDate(0, 0, -rangeDays)
		minDate = time.Date(minDay.Year(), minDay.Month(), minDay.Day(), 0, 0, 0, 0, time.UTC)
		maxDate = time.Date(latest.Year(), latest.Month(), latest.Day(), 23, 59, 59, int(999*time.Millisecond), time.UTC)
	}

	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if f.Country != "" && f.Country != models.FilterAll && r.Country != f.Country {
			continue
		}
		if f.Channel != "" && f.Channel != models.FilterAll && r.Channel != f.Channel {
			continue
		}
		if rangeDays > 0 {
			if r.Date == nil || r.Date.Before(minDate) || r.Date.After(maxDate) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func latestDate(records []models.Record) time.Time {
	var latest time.Time
	for _, r := range records {
		if r.Date != nil && r.Date.After(latest) {
			latest = *r.Date
		}
	}
	return latest
}

// addMovingAverage fills MovingAverage for the points where a full window exists
func addMovingAverage(points []models.TrendPoint, window int) {
	if len(points) < window {
		return
	}
	revenue := make([]float64, len(points))
	for i, p := range points {
		revenue[i] = p.Revenue
	}

	sma := trend.NewSmaWithPeriod[float64](window)
	averages := helper.ChanToSlice(sma.Compute(helper.SliceToChan(revenue)))

	offset := len(points) - len(averages)
	for i, v := range averages {
		avg := v
		points[offset+i].MovingAverage = &avg
	}
}
