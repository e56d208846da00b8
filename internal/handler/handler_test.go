package handler

import (
	"context"
	"testing"

	"psychic-pancake/internal/domain"
	"psychic-pancake/internal/engine"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("handler-test")

func TestRegisterRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	h := New(testTracer, &stubPredictions{}, "")
	h.RegisterRoutes(r)

	want := map[string]bool{
		"GET /health":                 false,
		"GET /api/prediction":         false,
		"GET /api/prediction/explain": false,
		"GET /api/predictions":        false,
		"GET /api/draws":              false,
		"GET /api/stats":              false,
		"GET /api/anomaly":            false,
		"POST /api/draws":             false,
		"POST /api/anomaly/scan":      false,
	}
	for _, route := range r.Routes() {
		key := route.Method + " " + route.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for key, seen := range want {
		if !seen {
			t.Fatalf("route %s not registered", key)
		}
	}
}

// --- stubs ---

type stubPredictions struct {
	ingested  []domain.Draw
	ingestErr error
	decision  *domain.Decision
	latestErr error
	draws     []domain.Draw
	lastLimit int
	records   []domain.PredictionRecord
	stats     domain.EngineStats
	counts    map[domain.Outcome]int64
	statsErr  error
	telem     engine.Telemetry
}

func (s *stubPredictions) IngestDraws(ctx context.Context, draws []domain.Draw) (*domain.Decision, error) {
	s.ingested = draws
	return s.decision, s.ingestErr
}

func (s *stubPredictions) LatestDecision(ctx context.Context) (*domain.Decision, error) {
	return s.decision, s.latestErr
}

func (s *stubPredictions) RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error) {
	s.lastLimit = limit
	return s.draws, nil
}

func (s *stubPredictions) RecentPredictions(ctx context.Context, limit int) ([]domain.PredictionRecord, error) {
	s.lastLimit = limit
	return s.records, nil
}

func (s *stubPredictions) Stats(ctx context.Context) (domain.EngineStats, map[domain.Outcome]int64, error) {
	return s.stats, s.counts, s.statsErr
}

func (s *stubPredictions) EngineTelemetry() engine.Telemetry {
	return s.telem
}

type stubExplainer struct {
	reply string
	err   error
}

func (s *stubExplainer) Explain(ctx context.Context) (string, error) {
	return s.reply, s.err
}

type stubBucket struct {
	tokens int
}

func (s *stubBucket) TryAcquire() bool {
	if s.tokens <= 0 {
		return false
	}
	s.tokens--
	return true
}

type stubScanner struct {
	report domain.AnomalyReport
	err    error
	last   *domain.AnomalyReport
}

func (s *stubScanner) RunAnomalyScan(ctx context.Context) (domain.AnomalyReport, error) {
	return s.report, s.err
}

func (s *stubScanner) LastReport() *domain.AnomalyReport {
	return s.last
}
