package transform

import (
	"math"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
)

// Curve maps a normalized spend x in [0,1] to a response in [0,1]
type Curve func(x float64) float64

// NewCurve builds the configured response curve. Unknown types fall back to hill.
func NewCurve(cfg models.SaturationSettings) Curve {
	slope, inflection := cfg.Slope, cfg.Inflection
	switch cfg.CurveType {
	case models.CurveSCurve:
		return func(x float64) float64 { return SCurve(x, slope, inflection) }
	case models.CurvePower:
		return func(x float64) float64 { return Power(x, slope, inflection) }
	default:
		return func(x float64) float64 { return Hill(x, slope, inflection) }
	}
}

// Hill evaluates x^slope / (x^slope + inflection^slope). At x == inflection the
// response is exactly 0.5.
func Hill(x, slope, inflection float64) float64 {
	x = clamp01(x)
	xs := math.Pow(x, slope)
	ks := math.Pow(inflection, slope)
	if xs+ks == 0 {
		return 0
	}
	return xs / (xs + ks)
}

// SCurve is a logistic centred on inflection with steepness slope, rescaled so
// that SCurve(0) = 0 and SCurve(1) = 1.
func SCurve(x, slope, inflection float64) float64 {
	x = clamp01(x)
	logistic := func(v float64) float64 {
		return 1 / (1 + math.Exp(-slope*10*(v-inflection)))
	}
	lo, hi := logistic(0), logistic(1)
	if hi-lo == 0 {
		return x
	}
	return clamp01((logistic(x) - lo) / (hi - lo))
}

// Power evaluates x^(slope*inflection)
func Power(x, slope, inflection float64) float64 {
	x = clamp01(x)
	exp := slope * inflection
	if exp <= 0 {
		return 0
	}
	return clamp01(math.Pow(x, exp))
}

// Normalize scales values by their maximum. A non-positive maximum yields zeros.
func Normalize(values []float64) ([]float64, float64) {
	out := make([]float64, len(values))
	max := 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return out, 0
	}
	for i, v := range values {
		out[i] = clamp01(v / max)
	}
	return out, max
}

const (
	curveSamples = 50
	curveStep    = 1.0 / 40
)

// CurveSample samples the configured curve for charting. spend holds normalized
// observed values; the i-th sample carries spend[i] when present.
func CurveSample(cfg models.SaturationSettings, spend []float64) []models.CurvePoint {
	curve := NewCurve(cfg)
	points := make([]models.CurvePoint, curveSamples)
	for i := range points {
		x := float64(i) * curveStep
		points[i] = models.CurvePoint{X: x, Y: curve(x)}
		if i < len(spend) {
			s := spend[i]
			points[i].Spend = &s
		}
	}
	return points
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
