package handler

import (
	"net/http"
	"strconv"
	"time"

	"psychic-pancake/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type ingestDraw struct {
	Sequence int64     `json:"sequence" binding:"required"`
	Number   float64   `json:"number"`
	DrawnAt  time.Time `json:"drawn_at"`
}

type ingestRequest struct {
	Draws []ingestDraw `json:"draws" binding:"required"`
}

// PostDraws godoc
// @Summary      Ingest a batch of draw results
// @Description  Stores the draws, grades the pending prediction, and returns the decision for the next draw
// @Tags         draws
// @Accept       json
// @Produce      json
// @Param        request  body  ingestRequest  true  "Draw batch"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/draws [post]
func (h *Handler) PostDraws(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.post-draws")
	defer span.End()

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if len(req.Draws) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "draws must not be empty"})
		return
	}
	span.SetAttributes(attribute.Int("draws.count", len(req.Draws)))

	draws := make([]domain.Draw, 0, len(req.Draws))
	for _, in := range req.Draws {
		if in.Sequence <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sequence must be positive"})
			return
		}
		drawnAt := in.DrawnAt
		if drawnAt.IsZero() {
			drawnAt = time.Now()
		}
		draws = append(draws, domain.Draw{
			Sequence: in.Sequence,
			Number:   in.Number,
			Class:    domain.ClassOf(in.Number),
			Status:   domain.OutcomePending,
			DrawnAt:  drawnAt.UTC(),
		})
	}

	decision, err := h.predictions.IngestDraws(ctx, draws)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ingested": len(draws),
		"decision": decision,
	})
}

// GetDraws godoc
// @Summary      Get recent draws
// @Description  Returns the most recent draws, newest first
// @Tags         draws
// @Produce      json
// @Param        limit  query  int  false  "Number of draws (default 50, max 150)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Router       /api/draws [get]
func (h *Handler) GetDraws(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-draws")
	defer span.End()

	limit := 50
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= domain.HistoryCap {
			limit = n
		}
	}

	draws, err := h.predictions.RecentDraws(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"draws": draws})
}
