package services

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
	"github.com/whynot231455/mmm-sol-dashboard/internal/utils"
)

const (
	maxChannelWeight = 0.5
	moneyPrecision   = 10
)

var (
	impactThreshold = decimal.NewFromFloat(0.1)
	weeklyRamp      = []struct {
		name   string
		factor decimal.Decimal
	}{
		{"Week 1", decimal.NewFromFloat(0.95)},
		{"Week 2", decimal.NewFromFloat(1.02)},
		{"Week 3", decimal.NewFromFloat(1.08)},
		{"Week 4", decimal.NewFromFloat(1.15)},
	}
)

// OptimizationService reallocates budget across channels. It is a proportional
// scaling, not a solver: revenue is estimated at each channel's current ROAS.
type OptimizationService struct {
	logger *logrus.Logger
}

// NewOptimizationService creates a new optimization service
func NewOptimizationService(logger *logrus.Logger) *OptimizationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &OptimizationService{logger: logger}
}

type channelPerf struct {
	channel string
	revenue decimal.Decimal
	spend   decimal.Decimal
}

// Reallocate applies the per-channel weights and rescales the proposed spends so
// they sum to params.TotalBudget. It returns a nil plan and nil error when the
// channel, revenue or spend mapping is missing or there are no records.
func (s *OptimizationService) Reallocate(records []models.Record, mapping models.ColumnMapping, params models.OptimizationParams) (*models.OptimizationPlan, error) {
	if params.TotalBudget.IsNegative() {
		return nil, utils.NewValidationError("total_budget must not be negative")
	}
	if len(records) == 0 || !mapping.Has(models.FieldChannel, models.FieldRevenue, models.FieldSpend) {
		return nil, nil
	}

	perf := channelPerformance(records)

	one := decimal.NewFromInt(1)
	proposed := make([]decimal.Decimal, len(perf))
	weights := make([]float64, len(perf))
	rawTotal := decimal.Zero
	for i, p := range perf {
		weights[i] = clampWeight(params.ChannelWeights[p.channel])
		proposed[i] = p.spend.Mul(one.Add(decimal.NewFromFloat(weights[i])))
		rawTotal = rawTotal.Add(proposed[i])
	}

	final := rescale(proposed, rawTotal, params.TotalBudget)

	plan := &models.OptimizationPlan{Channels: make([]models.ChannelPlan, len(perf))}
	currentRevenue, currentSpend := decimal.Zero, decimal.Zero
	optimizedRevenue, optimizedSpend := decimal.Zero, decimal.Zero

	for i, p := range perf {
		roas := decimal.Zero
		if p.spend.IsPositive() {
			roas = p.revenue.Div(p.spend)
		}
		estimated := final[i].Mul(roas).Round(moneyPrecision)
		delta := final[i].Sub(p.spend)

		plan.Channels[i] = models.ChannelPlan{
			Channel:          p.channel,
			Revenue:          p.revenue,
			Spend:            p.spend,
			ROAS:             roas,
			Weight:           weights[i],
			ProposedSpend:    final[i],
			EstimatedRevenue: estimated,
			Delta:            delta,
			Impact:           impactLabel(delta, p.spend),
		}

		currentRevenue = currentRevenue.Add(p.revenue)
		currentSpend = currentSpend.Add(p.spend)
		optimizedRevenue = optimizedRevenue.Add(estimated)
		optimizedSpend = optimizedSpend.Add(final[i])
	}

	optimizedROAS := optimizedRevenue.Div(orOne(optimizedSpend))
	currentROAS := currentRevenue.Div(orOne(currentSpend))
	lift := decimal.Zero
	if !currentRevenue.IsZero() {
		lift = optimizedRevenue.Sub(currentRevenue).Div(currentRevenue).Mul(decimal.NewFromInt(100))
	}

	plan.Metrics = models.OptimizationMetrics{
		ProjectedRevenue:     optimizedRevenue,
		ProjectedRevenueLift: lift,
		BaselineRevenue:      currentRevenue,
		EstimatedROAS:        optimizedROAS,
		ROASDelta:            optimizedROAS.Sub(currentROAS),
		ForecastCPA:          optimizedSpend.Div(orOne(optimizedRevenue.Mul(impactThreshold))),
	}

	four := decimal.NewFromInt(4)
	for _, w := range weeklyRamp {
		plan.ImpactTrend = append(plan.ImpactTrend, models.ImpactPoint{
			Name:      w.name,
			Baseline:  currentRevenue.Div(four),
			Optimized: optimizedRevenue.Div(four).Mul(w.factor),
		})
	}

	s.logger.WithFields(logrus.Fields{
		"channels":          len(perf),
		"total_budget":      params.TotalBudget.String(),
		"projected_revenue": optimizedRevenue.StringFixed(2),
	}).Debug("Budget reallocation computed")

	return plan, nil
}

// channelPerformance totals revenue and spend per channel, ordered by revenue
func channelPerformance(records []models.Record) []channelPerf {
	index := make(map[string]int)
	var perf []channelPerf
	for _, r := range records {
		channel := r.Channel
		if channel == "" {
			channel = unknownChannel
		}
		i, ok := index[channel]
		if !ok {
			i = len(perf)
			index[channel] = i
			perf = append(perf, channelPerf{channel: channel, revenue: decimal.Zero, spend: decimal.Zero})
		}
		perf[i].revenue = perf[i].revenue.Add(decimal.NewFromFloat(r.Revenue))
		perf[i].spend = perf[i].spend.Add(decimal.NewFromFloat(r.Spend))
	}
	sort.SliceStable(perf, func(i, j int) bool {
		if c := perf[i].revenue.Cmp(perf[j].revenue); c != 0 {
			return c > 0
		}
		return perf[i].channel < perf[j].channel
	})
	return perf
}

// rescale scales proposed so the result sums to budget exactly. Rounding residue
// is absorbed by the largest allocation. A zero raw total allocates nothing.
func rescale(proposed []decimal.Decimal, rawTotal, budget decimal.Decimal) []decimal.Decimal {
	final := make([]decimal.Decimal, len(proposed))
	if !rawTotal.IsPositive() {
		for i := range final {
			final[i] = decimal.Zero
		}
		return final
	}

	sum := decimal.Zero
	largest := 0
	for i, p := range proposed {
		final[i] = p.Mul(budget).Div(rawTotal).Round(moneyPrecision)
		sum = sum.Add(final[i])
		if p.GreaterThan(proposed[largest]) {
			largest = i
		}
	}
	final[largest] = final[largest].Add(budget.Sub(sum))
	return final
}

func impactLabel(delta, spend decimal.Decimal) string {
	if delta.Abs().GreaterThan(spend.Mul(impactThreshold)) {
		if delta.IsPositive() {
			return models.ImpactHigh
		}
		return models.ImpactMedium
	}
	return models.ImpactLow
}

func clampWeight(w float64) float64 {
	if w > maxChannelWeight {
		return maxChannelWeight
	}
	if w < -maxChannelWeight {
		return -maxChannelWeight
	}
	return w
}

func orOne(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.NewFromInt(1)
	}
	return d
}
