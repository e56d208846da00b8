package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetPrediction godoc
// @Summary      Get the latest prediction
// @Description  Returns the most recent decision produced by the engine
// @Tags         predictions
// @Produce      json
// @Success      200  {object}  domain.Decision
// @Failure      404  {object}  map[string]string
// @Router       /api/prediction [get]
func (h *Handler) GetPrediction(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-prediction")
	defer span.End()

	decision, err := h.predictions.LatestDecision(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if decision == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prediction available yet"})
		return
	}

	c.JSON(http.StatusOK, decision)
}

// GetPredictionHistory godoc
// @Summary      Get recent prediction records
// @Description  Returns recent predictions with their resolved outcomes, newest first
// @Tags         predictions
// @Produce      json
// @Param        limit  query  int  false  "Number of records (default 20, max 200)"  default(20)
// @Success      200  {object}  map[string]interface{}
// @Router       /api/predictions [get]
func (h *Handler) GetPredictionHistory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-prediction-history")
	defer span.End()

	limit := 20
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	records, err := h.predictions.RecentPredictions(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"predictions": records})
}

// GetStats godoc
// @Summary      Get engine statistics
// @Description  Returns win/loss counters, outcome tallies, adaptive telemetry, and the last anomaly report
// @Tags         predictions
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-stats")
	defer span.End()

	stats, counts, err := h.predictions.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"wins":      stats.WinCount,
		"resolved":  stats.ResolvedCount,
		"outcomes":  counts,
		"telemetry": h.predictions.EngineTelemetry(),
	}
	if accuracy, ok := stats.LongTermAccuracy(); ok {
		resp["accuracy"] = accuracy
	}
	if h.anomaly != nil {
		if report := h.anomaly.LastReport(); report != nil {
			resp["anomaly"] = report
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ExplainPrediction godoc
// @Summary      Explain the current prediction
// @Description  Asks the LLM advisor to narrate the latest decision and the engine state behind it
// @Tags         predictions
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/prediction/explain [get]
func (h *Handler) ExplainPrediction(c *gin.Context) {
	if h.explainer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "advisor unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.explain-prediction")
	defer span.End()

	explanation, err := h.explainer.Explain(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"explanation": explanation})
}
