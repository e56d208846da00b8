package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TriggerAnomalyScan godoc
// @Summary      Trigger an anomaly scan manually
// @Description  Runs one isolation-forest scan over the recent draw window and returns the report
// @Tags         anomaly
// @Produce      json
// @Success      200  {object}  domain.AnomalyReport
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/anomaly/scan [post]
func (h *Handler) TriggerAnomalyScan(c *gin.Context) {
	if h.anomaly == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "anomaly scanner unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-anomaly-scan")
	defer span.End()

	report, err := h.anomaly.RunAnomalyScan(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetAnomalyReport godoc
// @Summary      Get the last anomaly report
// @Description  Returns the report of the most recent anomaly scan
// @Tags         anomaly
// @Produce      json
// @Success      200  {object}  domain.AnomalyReport
// @Failure      404  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/anomaly [get]
func (h *Handler) GetAnomalyReport(c *gin.Context) {
	if h.anomaly == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "anomaly scanner unavailable"})
		return
	}

	_, span := h.tracer.Start(c.Request.Context(), "handler.get-anomaly-report")
	defer span.End()

	report := h.anomaly.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no anomaly scan has run yet"})
		return
	}

	c.JSON(http.StatusOK, report)
}
