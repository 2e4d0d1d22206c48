package services

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
)

const (
	forecastMonths  = 3
	averagingMonths = 3
	outlierSigma    = 3.0
	otherChannel    = "Other"
	curveFactorStep = 0.05
	heatmapVeryHigh = "Very High"
	heatmapHigh     = "High"
	heatmapLow      = "Low"
)

var seasonalityFactors = []float64{0.9, 1.0, 1.15}

// ForecastService projects revenue for the next months from monthly history
type ForecastService struct {
	logger *logrus.Logger
}

// NewForecastService creates a new forecast service
func NewForecastService(logger *logrus.Logger) *ForecastService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ForecastService{logger: logger}
}

// Project builds the monthly history and a three-month projection. ok is false
// when the date, revenue or spend mapping is missing or there are no records.
func (s *ForecastService) Project(records []models.Record, mapping models.ColumnMapping, sim models.Simulation) (*models.Forecast, bool) {
	if len(records) == 0 || !mapping.Has(models.FieldDate, models.FieldRevenue, models.FieldSpend) {
		return nil, false
	}

	history := MonthlyHistory(records)
	basis := history
	if sim.ExcludeOutliers {
		basis = withoutOutliers(history)
	}

	window := basis
	if len(window) > averagingMonths {
		window = window[len(window)-averagingMonths:]
	}
	var avgRevenue, avgSpend float64
	for _, m := range window {
		avgRevenue += m.Revenue
		avgSpend += m.Spend
	}
	n := float64(len(window))
	if n == 0 {
		n = 1
	}
	avgRevenue /= n
	avgSpend /= n

	baselineROAS := avgRevenue / nonZero(avgSpend)
	projectedSpend := avgSpend * (1 + sim.SpendChange)
	projectedRevenue := projectedSpend * baselineROAS * seasonalityFactor(sim.Seasonality)

	lastDate := time.Now().UTC()
	if len(history) > 0 {
		lastDate = history[len(history)-1].Date
	}
	lastMonth := time.Date(lastDate.Year(), lastDate.Month(), 1, 0, 0, 0, 0, time.UTC)

	forecast := make([]models.MonthPoint, 0, forecastMonths)
	var totalRevenue, totalSpend float64
	for i := 1; i <= forecastMonths; i++ {
		revenue := projectedRevenue * (1 + float64(i)*curveFactorStep)
		forecast = append(forecast, models.MonthPoint{
			Date:        lastMonth.AddDate(0, i, 0),
			Revenue:     revenue,
			Spend:       projectedSpend,
			IsPredicted: true,
		})
		totalRevenue += revenue
		totalSpend += projectedSpend
	}

	combined := make([]models.MonthPoint, 0, len(history)+len(forecast))
	combined = append(combined, history...)
	combined = append(combined, forecast...)

	result := &models.Forecast{
		History:  history,
		Forecast: forecast,
		Combined: combined,
		Metrics: models.ForecastMetrics{
			Revenue:      totalRevenue,
			Spend:        totalSpend,
			ROAS:         totalRevenue / nonZero(totalSpend),
			BaselineROAS: baselineROAS,
		},
		Heatmap: channelHeatmap(history, avgRevenue),
	}

	s.logger.WithFields(logrus.Fields{
		"history_months":    len(history),
		"basis_months":      len(basis),
		"projected_revenue": totalRevenue,
		"seasonality":       sim.Seasonality,
	}).Debug("Forecast computed")

	return result, true
}

// MonthlyHistory sums revenue and spend per calendar month, oldest first.
// Records without a parsable date are skipped.
func MonthlyHistory(records []models.Record) []models.MonthPoint {
	index := make(map[time.Time]int)
	history := make([]models.MonthPoint, 0)
	for _, r := range records {
		if r.Date == nil {
			continue
		}
		month := time.Date(r.Date.Year(), r.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		i, ok := index[month]
		if !ok {
			i = len(history)
			index[month] = i
			history = append(history, models.MonthPoint{Date: month, Channels: make(map[string]float64)})
		}
		channel := r.Channel
		if channel == "" {
			channel = otherChannel
		}
		history[i].Revenue += r.Revenue
		history[i].Spend += r.Spend
		history[i].Channels[channel] += r.Revenue
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date.Before(history[j].Date) })
	return history
}

// withoutOutliers drops months whose revenue lies more than three standard
// deviations from the mean
func withoutOutliers(history []models.MonthPoint) []models.MonthPoint {
	if len(history) < 2 {
		return history
	}
	var mean float64
	for _, m := range history {
		mean += m.Revenue
	}
	mean /= float64(len(history))

	var variance float64
	for _, m := range history {
		variance += (m.Revenue - mean) * (m.Revenue - mean)
	}
	stddev := math.Sqrt(variance / float64(len(history)))
	if stddev == 0 {
		return history
	}

	kept := make([]models.MonthPoint, 0, len(history))
	for _, m := range history {
		if math.Abs(m.Revenue-mean) <= outlierSigma*stddev {
			kept = append(kept, m)
		}
	}
	return kept
}

func channelHeatmap(history []models.MonthPoint, avgRevenue float64) []models.HeatmapCell {
	totals := make(map[string]float64)
	for _, m := range history {
		for ch, v := range m.Channels {
			totals[ch] += v
		}
	}

	cells := make([]models.HeatmapCell, 0, len(totals))
	for ch, v := range totals {
		status := heatmapLow
		switch {
		case v > avgRevenue:
			status = heatmapVeryHigh
		case v > avgRevenue*0.5:
			status = heatmapHigh
		}
		cells = append(cells, models.HeatmapCell{Channel: ch, Value: v, Status: status})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Value == cells[j].Value {
			return cells[i].Channel < cells[j].Channel
		}
		return cells[i].Value > cells[j].Value
	})
	return cells
}

func seasonalityFactor(level int) float64 {
	if level < models.SeasonalityLow || level > models.SeasonalityHigh {
		return 1
	}
	return seasonalityFactors[level]
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
