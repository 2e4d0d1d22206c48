package models

import (
	"encoding/json"
	"fmt"

	"github.com/whynot231455/mmm-sol-dashboard/internal/utils"
)

// Granularity is the calendar bucket size used by aggregation
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// AggregationMethod reduces the values that fall into one bucket
type AggregationMethod string

const (
	MethodSum AggregationMethod = "sum"
	MethodAvg AggregationMethod = "avg"
	MethodMax AggregationMethod = "max"
)

// WeekStart selects the first day of a weekly bucket
type WeekStart string

const (
	WeekStartMonday WeekStart = "monday"
	WeekStartSunday WeekStart = "sunday"
)

// CurveType selects the saturation response curve
type CurveType string

const (
	CurveHill   CurveType = "hill"
	CurveSCurve CurveType = "s-curve"
	CurvePower  CurveType = "power"
)

// AggregationSettings configures the time-bucket stage
type AggregationSettings struct {
	Granularity  Granularity       `json:"granularity" mapstructure:"granularity"`
	Method       AggregationMethod `json:"method" mapstructure:"method"`
	WeekStarting WeekStart         `json:"week_starting" mapstructure:"week_starting"`
}

// AdstockSettings configures geometric carry-over decay
type AdstockSettings struct {
	Type      string  `json:"type" mapstructure:"type"`
	DecayRate float64 `json:"decay_rate" mapstructure:"decay_rate"`
}

// SaturationSettings configures the diminishing-returns curve
type SaturationSettings struct {
	Active     bool      `json:"active" mapstructure:"active"`
	CurveType  CurveType `json:"curve_type" mapstructure:"curve_type"`
	Slope      float64   `json:"slope" mapstructure:"slope"`
	Inflection float64   `json:"inflection" mapstructure:"inflection"`
}

// DateRange bounds the rows fed into the pipeline. Empty ends are open.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// TransformSettings is the single configuration record shared by every pipeline stage
type TransformSettings struct {
	PrimaryMetric string              `json:"primary_metric" mapstructure:"primary_metric"`
	Aggregation   AggregationSettings `json:"aggregation" mapstructure:"aggregation"`
	Adstock       AdstockSettings     `json:"adstock" mapstructure:"adstock"`
	Saturation    SaturationSettings  `json:"saturation" mapstructure:"saturation"`
	DateRange     DateRange           `json:"date_range" mapstructure:"date_range"`
	Currency      string              `json:"currency" mapstructure:"currency"`
}

// DefaultTransformSettings returns the settings a fresh workspace starts with
func DefaultTransformSettings() TransformSettings {
	return TransformSettings{
		PrimaryMetric: string(FieldSpend),
		Aggregation: AggregationSettings{
			Granularity:  GranularityWeekly,
			Method:       MethodSum,
			WeekStarting: WeekStartMonday,
		},
		Adstock: AdstockSettings{
			Type:      "geometric",
			DecayRate: 0.65,
		},
		Saturation: SaturationSettings{
			Active:     true,
			CurveType:  CurveHill,
			Slope:      1.42,
			Inflection: 0.5,
		},
		Currency: "USD ($)",
	}
}

// Validate checks the settings invariants: decay in [0,1], slope > 0, inflection in (0,1]
func (s TransformSettings) Validate() error {
	switch s.Aggregation.Granularity {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
	default:
		return utils.NewValidationErrorf("aggregation.granularity must be daily, weekly or monthly, got %q", s.Aggregation.Granularity)
	}
	switch s.Aggregation.Method {
	case MethodSum, MethodAvg, MethodMax:
	default:
		return utils.NewValidationErrorf("aggregation.method must be sum, avg or max, got %q", s.Aggregation.Method)
	}
	switch s.Aggregation.WeekStarting {
	case WeekStartMonday, WeekStartSunday:
	default:
		return utils.NewValidationErrorf("aggregation.week_starting must be monday or sunday, got %q", s.Aggregation.WeekStarting)
	}
	if s.Adstock.DecayRate < 0 || s.Adstock.DecayRate > 1 {
		return utils.NewValidationErrorf("adstock.decay_rate must be within [0, 1], got %v", s.Adstock.DecayRate)
	}
	switch s.Saturation.CurveType {
	case CurveHill, CurveSCurve, CurvePower:
	default:
		return utils.NewValidationErrorf("saturation.curve_type must be hill, s-curve or power, got %q", s.Saturation.CurveType)
	}
	if !(s.Saturation.Slope > 0) {
		return utils.NewValidationErrorf("saturation.slope must be positive, got %v", s.Saturation.Slope)
	}
	if !(s.Saturation.Inflection > 0) || s.Saturation.Inflection > 1 {
		return utils.NewValidationErrorf("saturation.inflection must be within (0, 1], got %v", s.Saturation.Inflection)
	}
	if s.PrimaryMetric == "" {
		return utils.NewValidationError("primary_metric is required")
	}
	return nil
}

// TransformSettingsPatch replaces the named sub-records of TransformSettings.
// Nil members are left untouched.
type TransformSettingsPatch struct {
	PrimaryMetric *string              `json:"primary_metric,omitempty"`
	Aggregation   *AggregationSettings `json:"aggregation,omitempty"`
	Adstock       *AdstockSettings     `json:"adstock,omitempty"`
	Saturation    *SaturationSettings  `json:"saturation,omitempty"`
	DateRange     *DateRange           `json:"date_range,omitempty"`
	Currency      *string              `json:"currency,omitempty"`
}

// Apply returns s with the patch merged in
func (s TransformSettings) Apply(p TransformSettingsPatch) TransformSettings {
	if p.PrimaryMetric != nil {
		s.PrimaryMetric = *p.PrimaryMetric
	}
	if p.Aggregation != nil {
		s.Aggregation = *p.Aggregation
	}
	if p.Adstock != nil {
		s.Adstock = *p.Adstock
	}
	if p.Saturation != nil {
		s.Saturation = *p.Saturation
	}
	if p.DateRange != nil {
		s.DateRange = *p.DateRange
	}
	if p.Currency != nil {
		s.Currency = *p.Currency
	}
	return s
}

// DecodeSettingsPatch builds a patch from a partial JSON document. Each sub-record
// present in data is decoded on top of its current value, so a body such as
// {"saturation":{"slope":2}} keeps the current curve type and inflection.
func DecodeSettingsPatch(current TransformSettings, data []byte) (TransformSettingsPatch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return TransformSettingsPatch{}, utils.NewValidationErrorf("invalid settings payload: %v", err)
	}

	var patch TransformSettingsPatch
	for key, value := range raw {
		var err error
		switch key {
		case "primary_metric":
			v := current.PrimaryMetric
			err = json.Unmarshal(value, &v)
			patch.PrimaryMetric = &v
		case "aggregation":
			v := current.Aggregation
			err = json.Unmarshal(value, &v)
			patch.Aggregation = &v
		case "adstock":
			v := current.Adstock
			err = json.Unmarshal(value, &v)
			patch.Adstock = &v
		case "saturation":
			v := current.Saturation
			err = json.Unmarshal(value, &v)
			patch.Saturation = &v
		case "date_range":
			v := current.DateRange
			err = json.Unmarshal(value, &v)
			patch.DateRange = &v
		case "currency":
			v := current.Currency
			err = json.Unmarshal(value, &v)
			patch.Currency = &v
		default:
			return TransformSettingsPatch{}, utils.NewValidationErrorf("unknown settings field %q", key)
		}
		if err != nil {
			return TransformSettingsPatch{}, utils.NewValidationError(fmt.Sprintf("invalid %s: %v", key, err))
		}
	}
	return patch, nil
}

// Date range filter presets used by the dashboard
const (
	RangeAllTime    = "All Time"
	RangeLast30Days = "Last 30 Days"
	RangeLast90Days = "Last 90 Days"
	FilterAll       = "All"
)

// Filters narrows the rows used by the measure view
type Filters struct {
	Country   string `json:"country"`
	Channel   string `json:"channel"`
	DateRange string `json:"date_range"`
}

// DefaultFilters selects every row
func DefaultFilters() Filters {
	return Filters{Country: FilterAll, Channel: FilterAll, DateRange: RangeAllTime}
}

// Validate rejects unknown date range presets
func (f Filters) Validate() error {
	switch f.DateRange {
	case "", RangeAllTime, RangeLast30Days, RangeLast90Days:
		return nil
	default:
		return utils.NewValidationErrorf("date_range must be one of %q, %q, %q", RangeAllTime, RangeLast30Days, RangeLast90Days)
	}
}
