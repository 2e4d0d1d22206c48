package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bucket is one aggregated time bucket
type Bucket struct {
	Start time.Time `json:"start"`
	Value float64   `json:"value"`
	Count int       `json:"count"`
}

// SeriesPoint is a chart-ready point derived from the transform settings.
// Time is nil when the point is keyed by row index only.
type SeriesPoint struct {
	Label       string     `json:"label"`
	Index       int        `json:"index"`
	Time        *time.Time `json:"time,omitempty"`
	Raw         float64    `json:"raw"`
	Transformed float64    `json:"transformed"`
}

// CurvePoint samples the saturation curve; Spend is the normalized observed spend
// at the same index when one exists
type CurvePoint struct {
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Spend *float64 `json:"spend,omitempty"`
}

// KPI holds the headline measure figures
type KPI struct {
	Revenue float64 `json:"revenue"`
	Spend   float64 `json:"spend"`
	ROI     float64 `json:"roi"`
	ROAS    float64 `json:"roas"`
}

// TrendPoint is revenue and spend for one calendar date
type TrendPoint struct {
	Date          string   `json:"date"`
	Revenue       float64  `json:"revenue"`
	Spend         float64  `json:"spend"`
	MovingAverage *float64 `json:"moving_average,omitempty"`
}

// ChannelTotal is revenue and spend summed per channel
type ChannelTotal struct {
	Channel string  `json:"channel"`
	Revenue float64 `json:"revenue"`
	Spend   float64 `json:"spend"`
	ROAS    float64 `json:"roas"`
}

// FilterOptions lists the values a measure filter dropdown can take
type FilterOptions struct {
	Countries []string `json:"countries"`
	Channels  []string `json:"channels"`
}

// MeasureReport is the measure view payload
type MeasureReport struct {
	KPI      KPI            `json:"kpi"`
	Trend    []TrendPoint   `json:"trend"`
	Channels []ChannelTotal `json:"channels"`
	Filters  FilterOptions  `json:"filters"`
	Rows     int            `json:"rows"`
	Currency string         `json:"currency"`
}

// Impact labels attached to a reallocated channel
const (
	ImpactHigh   = "High Impact"
	ImpactMedium = "Med Impact"
	ImpactLow    = "Low Impact"
)

// OptimizationParams drives the budget reallocation.
// ChannelWeights are relative changes within [-0.5, 0.5].
type OptimizationParams struct {
	TotalBudget    decimal.Decimal    `json:"total_budget"`
	ChannelWeights map[string]float64 `json:"channel_weights"`
}

// ChannelPlan is the reallocation outcome for one channel
type ChannelPlan struct {
	Channel          string          `json:"channel"`
	Revenue          decimal.Decimal `json:"revenue"`
	Spend            decimal.Decimal `json:"spend"`
	ROAS             decimal.Decimal `json:"roas"`
	Weight           float64         `json:"weight"`
	ProposedSpend    decimal.Decimal `json:"proposed_spend"`
	EstimatedRevenue decimal.Decimal `json:"estimated_revenue"`
	Delta            decimal.Decimal `json:"delta"`
	Impact           string          `json:"impact"`
}

// OptimizationMetrics summarizes a reallocation against the current mix
type OptimizationMetrics struct {
	ProjectedRevenue     decimal.Decimal `json:"projected_revenue"`
	ProjectedRevenueLift decimal.Decimal `json:"projected_revenue_lift"`
	BaselineRevenue      decimal.Decimal `json:"baseline_revenue"`
	EstimatedROAS        decimal.Decimal `json:"est_roas"`
	ROASDelta            decimal.Decimal `json:"roas_delta"`
	ForecastCPA          decimal.Decimal `json:"forecast_cpa"`
}

// ImpactPoint compares baseline and optimized revenue for one week
type ImpactPoint struct {
	Name      string          `json:"name"`
	Baseline  decimal.Decimal `json:"baseline"`
	Optimized decimal.Decimal `json:"optimized"`
}

// OptimizationPlan is the optimize view payload
type OptimizationPlan struct {
	Metrics     OptimizationMetrics `json:"metrics"`
	Channels    []ChannelPlan       `json:"channels"`
	ImpactTrend []ImpactPoint       `json:"impact_trend"`
}

// Seasonality levels of a simulation
const (
	SeasonalityLow    = 0
	SeasonalityNormal = 1
	SeasonalityHigh   = 2
)

// Simulation parameters for the revenue projection
type Simulation struct {
	SpendChange     float64 `json:"spend_change"`
	Seasonality     int     `json:"seasonality"`
	ExcludeOutliers bool    `json:"exclude_outliers"`
}

// DefaultSimulation keeps spend flat under normal seasonality
func DefaultSimulation() Simulation {
	return Simulation{Seasonality: SeasonalityNormal}
}

// MonthPoint is one month of history or projection
type MonthPoint struct {
	Date        time.Time          `json:"date"`
	Revenue     float64            `json:"revenue"`
	Spend       float64            `json:"spend"`
	Channels    map[string]float64 `json:"channels,omitempty"`
	IsPredicted bool               `json:"is_predicted"`
}

// HeatmapCell rates one channel's historical revenue
type HeatmapCell struct {
	Channel string  `json:"channel"`
	Value   float64 `json:"value"`
	Status  string  `json:"status"`
}

// ForecastMetrics summarizes the projected months
type ForecastMetrics struct {
	Revenue      float64 `json:"revenue"`
	Spend        float64 `json:"spend"`
	ROAS         float64 `json:"roas"`
	BaselineROAS float64 `json:"baseline_roas"`
}

// Forecast is the predict view payload
type Forecast struct {
	History  []MonthPoint    `json:"history"`
	Forecast []MonthPoint    `json:"forecast"`
	Combined []MonthPoint    `json:"combined"`
	Metrics  ForecastMetrics `json:"metrics"`
	Heatmap  []HeatmapCell   `json:"heatmap"`
}

// Preflight reports data readiness before modelling
type Preflight struct {
	Rows              int      `json:"rows"`
	MissingValues     int      `json:"missing_values"`
	AvailableChannels []string `json:"available_channels"`
	UnmappedFields    []Field  `json:"unmapped_fields"`
	UnparsableDates   int      `json:"unparsable_dates"`
	Ready             bool     `json:"ready"`
}
