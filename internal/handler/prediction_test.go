package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"psychic-pancake/internal/domain"

	"github.com/gin-gonic/gin"
)

func getPath(h *Handler, path string) *httptest.ResponseRecorder {
	r := gin.New()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGetPredictionNotFound(t *testing.T) {
	h := New(testTracer, &stubPredictions{}, "")

	w := getPath(h, "/api/prediction")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first prediction, got %d", w.Code)
	}
}

func TestGetPrediction(t *testing.T) {
	confidence := 0.44
	stub := &stubPredictions{
		decision: &domain.Decision{
			Class:      domain.ClassSmall,
			Confidence: &confidence,
			Health:     domain.HealthOK,
			Source:     "model+1/3[streak]",
		},
	}
	h := New(testTracer, stub, "")

	w := getPath(h, "/api/prediction")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var decision domain.Decision
	if err := json.Unmarshal(w.Body.Bytes(), &decision); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if decision.Class != domain.ClassSmall || decision.Confidence == nil {
		t.Fatalf("unexpected decision payload: %+v", decision)
	}
}

func TestGetPredictionHistory(t *testing.T) {
	stub := &stubPredictions{
		records: []domain.PredictionRecord{
			{Sequence: 12, Class: domain.ClassBig, Outcome: domain.OutcomeWin},
		},
	}
	h := New(testTracer, stub, "")

	w := getPath(h, "/api/predictions?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if stub.lastLimit != 5 {
		t.Fatalf("expected limit 5 passed through, got %d", stub.lastLimit)
	}
	var resp struct {
		Predictions []domain.PredictionRecord `json:"predictions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(resp.Predictions) != 1 || resp.Predictions[0].Outcome != domain.OutcomeWin {
		t.Fatalf("unexpected history payload: %+v", resp.Predictions)
	}
}

func TestGetStats(t *testing.T) {
	stub := &stubPredictions{
		stats: domain.EngineStats{WinCount: 6, ResolvedCount: 10},
		counts: map[domain.Outcome]int64{
			domain.OutcomeWin:  6,
			domain.OutcomeLoss: 4,
		},
	}
	h := New(testTracer, stub, "")

	w := getPath(h, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Wins     int                      `json:"wins"`
		Resolved int                      `json:"resolved"`
		Accuracy float64                  `json:"accuracy"`
		Outcomes map[domain.Outcome]int64 `json:"outcomes"`
		Anomaly  *domain.AnomalyReport    `json:"anomaly"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if resp.Wins != 6 || resp.Resolved != 10 {
		t.Fatalf("unexpected counters: %+v", resp)
	}
	if resp.Accuracy != 0.6 {
		t.Fatalf("expected accuracy 0.6, got %v", resp.Accuracy)
	}
	if resp.Outcomes[domain.OutcomeLoss] != 4 {
		t.Fatalf("unexpected outcome tallies: %+v", resp.Outcomes)
	}
	if resp.Anomaly != nil {
		t.Fatal("expected no anomaly section without a scanner")
	}
}

func TestGetStatsIncludesAnomaly(t *testing.T) {
	h := New(testTracer, &stubPredictions{}, "")
	h.SetAnomalyScanner(&stubScanner{last: &domain.AnomalyReport{WindowSize: 64, MaxScore: 0.71}})

	w := getPath(h, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Anomaly *domain.AnomalyReport `json:"anomaly"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if resp.Anomaly == nil || resp.Anomaly.MaxScore != 0.71 {
		t.Fatalf("expected anomaly report in stats, got %+v", resp.Anomaly)
	}
}

func TestExplainPredictionUnavailable(t *testing.T) {
	h := New(testTracer, &stubPredictions{}, "")

	w := getPath(h, "/api/prediction/explain")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without advisor, got %d", w.Code)
	}
}

func TestExplainPrediction(t *testing.T) {
	h := New(testTracer, &stubPredictions{}, "")
	h.SetExplainer(&stubExplainer{reply: "the engine leans BIG on a short streak"})

	w := getPath(h, "/api/prediction/explain")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if resp.Explanation == "" {
		t.Fatal("expected explanation text")
	}
}

func TestExplainPredictionError(t *testing.T) {
	h := New(testTracer, &stubPredictions{}, "")
	h.SetExplainer(&stubExplainer{err: errors.New("llm down")})

	w := getPath(h, "/api/prediction/explain")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on advisor error, got %d", w.Code)
	}
}
