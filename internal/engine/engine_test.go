package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"psychic-pancake/internal/domain"
)

func testTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

// alternatingHistory builds n draws alternating 5,0 newest first.
func alternatingHistory(n int) []domain.Draw {
	draws := make([]domain.Draw, n)
	for i := 0; i < n; i++ {
		number := 5.0
		if i%2 == 1 {
			number = 0
		}
		draws[i] = domain.Draw{
			Sequence: int64(n - i),
			Number:   number,
			Class:    domain.ClassOf(number),
			Status:   domain.OutcomePending,
			DrawnAt:  time.Now(),
		}
	}
	return draws
}

func TestPredictInsufficientHistory(t *testing.T) {
	e := New(testTracer(), Config{Seed: 42})
	decision, stats := e.Predict(context.Background(), alternatingHistory(50), domain.EngineStats{})

	if decision.Health != domain.HealthInsufficientHistory {
		t.Fatalf("expected INSUFFICIENT_HISTORY, got %s", decision.Health)
	}
	if decision.Confidence != nil {
		t.Errorf("expected nil confidence on fallback, got %v", *decision.Confidence)
	}
	if decision.Level != domain.LevelLow {
		t.Errorf("expected level 0, got %d", decision.Level)
	}
	if decision.Source != "fallback:random" {
		t.Errorf("unexpected source %q", decision.Source)
	}
	if !decision.Class.IsValid() {
		t.Errorf("expected a valid fallback class, got %q", decision.Class)
	}

	tele := e.Telemetry()
	for key, v := range tele.Weights {
		if v != 1.0 {
			t.Errorf("expected untouched weight for %s, got %v", key, v)
		}
	}
	if tele.Defensive {
		t.Errorf("expected normal regime")
	}
	if tele.TradeCount != 0 {
		t.Errorf("expected empty trade log, got %d", tele.TradeCount)
	}
	if tele.SentimentEvents != 0 {
		t.Errorf("expected no sentiment events, got %d", tele.SentimentEvents)
	}

	if stats.LastPrediction == nil || *stats.LastPrediction != decision.Class {
		t.Errorf("expected the fallback recorded in stats")
	}
	if stats.LastResolution != domain.OutcomePending {
		t.Errorf("expected Pending resolution, got %s", stats.LastResolution)
	}
	if stats.LastFeatures != nil {
		t.Errorf("expected no snapshot on fallback")
	}
}

func TestPredictEndToEndAlternating(t *testing.T) {
	e := New(testTracer(), Config{Seed: 42})
	decision, stats := e.Predict(context.Background(), alternatingHistory(100), domain.EngineStats{})

	if decision.Health == domain.HealthInsufficientHistory {
		t.Fatalf("expected a real decision, got %s", decision.Health)
	}
	if decision.Health != domain.HealthOK {
		t.Fatalf("expected OK health on a fresh engine, got %s", decision.Health)
	}
	if decision.Level != domain.LevelLow && decision.Level != domain.LevelHigh {
		t.Errorf("expected level 0 or 1, got %d", decision.Level)
	}
	if !decision.Class.IsValid() {
		t.Errorf("invalid class %q", decision.Class)
	}
	if decision.Confidence == nil {
		t.Fatalf("expected a confidence value")
	}
	if *decision.Confidence < 0 || *decision.Confidence > 1 {
		t.Errorf("confidence out of range: %v", *decision.Confidence)
	}
	if stats.LastFeatures == nil {
		t.Errorf("expected the feature snapshot recorded")
	}
	if stats.LastDecision == nil {
		t.Errorf("expected the decision recorded")
	}
}

func TestPredictResolvesPreviousPrediction(t *testing.T) {
	e := New(testTracer(), Config{Seed: 1})
	history := alternatingHistory(101)
	_, stats := e.Predict(context.Background(), history, domain.EngineStats{})
	if stats.LastPrediction == nil {
		t.Fatalf("expected a recorded prediction")
	}

	winDraw := domain.Draw{Sequence: 900, Number: 7, Class: *stats.LastPrediction, DrawnAt: time.Now()}
	if winDraw.Class == domain.ClassSmall {
		winDraw.Number = 2
	}
	_, stats2 := e.Predict(context.Background(), append([]domain.Draw{winDraw}, history...), stats)
	if stats2.LastResolution != domain.OutcomeWin {
		t.Errorf("expected Win, got %s", stats2.LastResolution)
	}
	if e.Telemetry().TradeCount != 1 {
		t.Errorf("expected one logged trade, got %d", e.Telemetry().TradeCount)
	}

	e2 := New(testTracer(), Config{Seed: 1})
	_, statsB := e2.Predict(context.Background(), history, domain.EngineStats{})
	lossDraw := domain.Draw{Sequence: 900, Number: 7, Class: (*statsB.LastPrediction).Opposite(), DrawnAt: time.Now()}
	if lossDraw.Class == domain.ClassSmall {
		lossDraw.Number = 2
	}
	_, statsB2 := e2.Predict(context.Background(), append([]domain.Draw{lossDraw}, history...), statsB)
	if statsB2.LastResolution != domain.OutcomeLoss {
		t.Errorf("expected Loss, got %s", statsB2.LastResolution)
	}
}

func TestPredictCooldownAfterDefensivePrediction(t *testing.T) {
	e := New(testTracer(), Config{Seed: 3})
	history := alternatingHistory(101)
	_, stats := e.Predict(context.Background(), history, domain.EngineStats{})
	stats.LastHealth = domain.HealthDefensive

	next := append([]domain.Draw{{Sequence: 900, Number: 7, Class: domain.ClassBig, DrawnAt: time.Now()}}, history...)
	_, stats2 := e.Predict(context.Background(), next, stats)
	if stats2.LastResolution != domain.OutcomeCooldown {
		t.Errorf("expected Cooldown, got %s", stats2.LastResolution)
	}
	if e.Telemetry().TradeCount != 0 {
		t.Errorf("expected cooldowns kept out of the trade log, got %d", e.Telemetry().TradeCount)
	}
}

func TestPredictDefensiveSuppressesLevel(t *testing.T) {
	e := New(testTracer(), Config{Seed: 4})
	e.regime.defensive = true

	decision, _ := e.Predict(context.Background(), alternatingHistory(101), domain.EngineStats{})
	if decision.Health != domain.HealthDefensive {
		t.Fatalf("expected DEFENSIVE_MODE, got %s", decision.Health)
	}
	if decision.Level != domain.LevelLow {
		t.Errorf("expected level forced low, got %d", decision.Level)
	}
	if decision.Confidence == nil {
		t.Errorf("expected confidence still reported while defensive")
	}
}

func TestPredictModelUncertainFallback(t *testing.T) {
	e := New(testTracer(), Config{Seed: 8})
	e.weights = Weights{} // zeroed vector produces no score at all

	decision, stats := e.Predict(context.Background(), alternatingHistory(101), domain.EngineStats{})
	if decision.Health != domain.HealthModelUncertain {
		t.Fatalf("expected MODEL_UNCERTAIN, got %s", decision.Health)
	}
	if decision.Confidence != nil {
		t.Errorf("expected nil confidence")
	}
	if decision.Source != "fallback:uncertain" {
		t.Errorf("unexpected source %q", decision.Source)
	}
	if stats.LastFeatures == nil {
		t.Errorf("expected the snapshot recorded even on an uncertain fallback")
	}
}

func TestPredictDriftRunsOnCadenceOnly(t *testing.T) {
	e := New(testTracer(), Config{Seed: 5})
	stats := domain.EngineStats{WinCount: 3, ResolvedCount: 10}

	e.Predict(context.Background(), alternatingHistory(101), stats)
	if got := e.regime.Threshold(); got != thresholdStart {
		t.Fatalf("expected threshold untouched off-cadence, got %v", got)
	}

	e.Predict(context.Background(), alternatingHistory(100), stats)
	want := thresholdStart + thresholdStep
	if got := e.regime.Threshold(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected one drift step to %v, got %v", want, got)
	}
}

func TestPredictLongRunKeepsWeightsBounded(t *testing.T) {
	e := New(testTracer(), Config{Seed: 6})
	history := alternatingHistory(domain.HistoryCap)
	var stats domain.EngineStats
	seq := int64(domain.HistoryCap)

	for i := 0; i < 200; i++ {
		_, stats = e.Predict(context.Background(), history, stats)

		switch stats.LastResolution {
		case domain.OutcomeWin:
			stats.WinCount++
			stats.ResolvedCount++
		case domain.OutcomeLoss:
			stats.ResolvedCount++
		}

		seq++
		number := 7.0
		if i%3 == 0 {
			number = 2.0
		}
		draw := domain.Draw{Sequence: seq, Number: number, Class: domain.ClassOf(number), DrawnAt: time.Now()}
		history = append([]domain.Draw{draw}, history...)
		if len(history) > domain.HistoryCap {
			history = history[:domain.HistoryCap]
		}

		tele := e.Telemetry()
		for key, v := range tele.Weights {
			if v < weightMin || v > weightMax {
				t.Fatalf("weight %s out of bounds after %d rounds: %v", key, i+1, v)
			}
		}
		if tele.BadTrendLimit < thresholdMin || tele.BadTrendLimit > thresholdMax {
			t.Fatalf("threshold out of bounds after %d rounds: %v", i+1, tele.BadTrendLimit)
		}
	}
	if e.Telemetry().TradeCount == 0 {
		t.Errorf("expected the trade log to fill over a long run")
	}
}
