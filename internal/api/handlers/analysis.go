package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/whynot231455/mmm-sol-dashboard/internal/models"
	"github.com/whynot231455/mmm-sol-dashboard/internal/utils"
	"github.com/whynot231455/mmm-sol-dashboard/internal/workspace"
	"github.com/whynot231455/mmm-sol-dashboard/pkg/format"
)

const maxTrendWindow = 365

// AnalysisHandler serves the derived views: transform, measure, optimize, predict
type AnalysisHandler struct {
	workspace *workspace.Service
}

// MeasureResponse is the measure report plus display strings in the workspace currency
type MeasureResponse struct {
	*models.MeasureReport
	Formatted FormattedKPI `json:"formatted"`
}

// FormattedKPI holds the headline figures as the dashboard displays them
type FormattedKPI struct {
	Revenue string `json:"revenue"`
	Spend   string `json:"spend"`
	ROI     string `json:"roi"`
	ROAS    string `json:"roas"`
}

func NewAnalysisHandler(ws *workspace.Service) *AnalysisHandler {
	return &AnalysisHandler{workspace: ws}
}

// GetTransform returns every stage of the pipeline for the current settings
func (h *AnalysisHandler) GetTransform(c *gin.Context) {
	result := h.workspace.Transform(c.Request.Context())
	if result.Empty() {
		respondData(c, nil)
		return
	}
	respondData(c, result)
}

// GetCurve returns the saturation curve sample. The curve exists even without data.
func (h *AnalysisHandler) GetCurve(c *gin.Context) {
	result := h.workspace.Transform(c.Request.Context())
	respondData(c, gin.H{
		"settings": result.Settings.Saturation,
		"points":   result.Curve,
	})
}

// GetMeasure returns KPIs, trend and channel totals under the current filters
func (h *AnalysisHandler) GetMeasure(c *gin.Context) {
	window := 0
	if raw := c.Query("trend_window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxTrendWindow {
			respondError(c, utils.NewValidationErrorf("trend_window must be an integer between 0 and %d", maxTrendWindow))
			return
		}
		window = n
	}

	report, ok := h.workspace.Measure(window)
	if !ok {
		respondData(c, nil)
		return
	}

	f := format.NewFormatter(report.Currency)
	respondData(c, MeasureResponse{
		MeasureReport: report,
		Formatted: FormattedKPI{
			Revenue: f.SmartCurrency(report.KPI.Revenue),
			Spend:   f.SmartCurrency(report.KPI.Spend),
			ROI:     format.Percent(report.KPI.ROI, 1),
			ROAS:    strconv.FormatFloat(report.KPI.ROAS, 'f', 2, 64) + "x",
		},
	})
}

// optimizeRequest is the optimize payload. A nil TotalBudget was omitted.
type optimizeRequest struct {
	TotalBudget    *decimal.Decimal   `json:"total_budget"`
	ChannelWeights map[string]float64 `json:"channel_weights"`
}

// PostOptimize reallocates a total budget across channels
func (h *AnalysisHandler) PostOptimize(c *gin.Context) {
	var req optimizeRequest
	if !bindJSON(c, &req, "optimization") {
		return
	}
	if req.TotalBudget == nil {
		respondError(c, utils.NewValidationError("total_budget is required"))
		return
	}
	params := models.OptimizationParams{TotalBudget: *req.TotalBudget, ChannelWeights: req.ChannelWeights}
	plan, err := h.workspace.Optimize(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}
	if plan == nil {
		respondData(c, nil)
		return
	}
	respondData(c, plan)
}

// PostPredict projects revenue for the next three months
func (h *AnalysisHandler) PostPredict(c *gin.Context) {
	sim := models.DefaultSimulation()
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &sim, "simulation") {
			return
		}
	}
	if sim.Seasonality < models.SeasonalityLow || sim.Seasonality > models.SeasonalityHigh {
		respondError(c, utils.NewValidationError("seasonality must be 0, 1 or 2"))
		return
	}
	if sim.SpendChange < -1 {
		respondError(c, utils.NewValidationError("spend_change cannot be below -1"))
		return
	}

	forecast, ok := h.workspace.Predict(c.Request.Context(), sim)
	if !ok {
		respondData(c, nil)
		return
	}
	respondData(c, forecast)
}

// GetPreflight reports whether the data is ready for modelling
func (h *AnalysisHandler) GetPreflight(c *gin.Context) {
	respondData(c, h.workspace.Preflight())
}
