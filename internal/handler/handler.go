package handler

import (
	"context"

	"psychic-pancake/internal/domain"
	"psychic-pancake/internal/engine"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// PredictionQuerier is the slice of the prediction service the HTTP
// surface needs.
type PredictionQuerier interface {
	IngestDraws(ctx context.Context, draws []domain.Draw) (*domain.Decision, error)
	LatestDecision(ctx context.Context) (*domain.Decision, error)
	RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error)
	RecentPredictions(ctx context.Context, limit int) ([]domain.PredictionRecord, error)
	Stats(ctx context.Context) (domain.EngineStats, map[domain.Outcome]int64, error)
	EngineTelemetry() engine.Telemetry
}

// Explainer narrates the current decision through the LLM advisor.
type Explainer interface {
	Explain(ctx context.Context) (string, error)
}

// AnomalyScanner exposes the isolation-forest scan over recent draws.
type AnomalyScanner interface {
	RunAnomalyScan(ctx context.Context) (domain.AnomalyReport, error)
	LastReport() *domain.AnomalyReport
}

type Handler struct {
	tracer      trace.Tracer
	predictions PredictionQuerier
	explainer   Explainer
	anomaly     AnomalyScanner
	apiKey      string
	limiter     TokenBucket
}

func New(tracer trace.Tracer, predictions PredictionQuerier, apiKey string) *Handler {
	return &Handler{
		tracer:      tracer,
		predictions: predictions,
		apiKey:      apiKey,
	}
}

// SetExplainer enables the explain endpoint. Without it the route
// answers 503.
func (h *Handler) SetExplainer(e Explainer) {
	h.explainer = e
}

// SetAnomalyScanner enables the anomaly endpoints. Without it the
// routes answer 503.
func (h *Handler) SetAnomalyScanner(s AnomalyScanner) {
	h.anomaly = s
}

// SetRateLimiter caps the mutating routes. Without it they are
// unlimited.
func (h *Handler) SetRateLimiter(b TokenBucket) {
	h.limiter = b
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/prediction", h.GetPrediction)
	r.GET("/api/prediction/explain", h.ExplainPrediction)
	r.GET("/api/predictions", h.GetPredictionHistory)
	r.GET("/api/draws", h.GetDraws)
	r.GET("/api/stats", h.GetStats)
	r.GET("/api/anomaly", h.GetAnomalyReport)

	auth := r.Group("/", APIKeyAuth(h.apiKey), RateLimit(h.limiter))
	auth.POST("/api/draws", h.PostDraws)
	auth.POST("/api/anomaly/scan", h.TriggerAnomalyScan)
}
