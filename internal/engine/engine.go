// Package engine is the prediction-and-adaptation core: indicator
// features, the self-tuning weighted classifier, the advisory bank, the
// defensive regime and the sentiment simulator, sequenced once per new
// draw by Predict.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"psychic-pancake/internal/domain"
)

const (
	adaptEvery     = 5
	consensusFloor = 0.6
	consensusSpan  = 0.4
	defensiveScale = 0.7
	levelThreshold = 0.55
)

// Config seeds an Engine.
type Config struct {
	// Seed fixes the fallback and sentiment randomness; 0 means
	// time-based.
	Seed int64
	// MinHistory overrides the resolved-draw floor, mainly for tests.
	// Defaults to domain.MinHistory.
	MinHistory int
}

// Engine owns every piece of adaptive state: the weight vector, the
// regime state machine, the sentiment pool and the trade log. Build one
// per caller with New; Predict serializes itself with a mutex so a
// concurrent host cannot interleave adaptation steps.
type Engine struct {
	mu         sync.Mutex
	tracer     trace.Tracer
	rng        *rand.Rand
	weights    Weights
	regime     *Regime
	sentiment  *Sentiment
	trades     tradeLog
	minHistory int
}

func New(tracer trace.Tracer, cfg Config) *Engine {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	minHistory := cfg.MinHistory
	if minHistory <= 0 {
		minHistory = domain.MinHistory
	}
	rng := rand.New(rand.NewSource(seed))
	return &Engine{
		tracer:     tracer,
		rng:        rng,
		weights:    NewWeights(),
		regime:     NewRegime(),
		sentiment:  NewSentiment(rng),
		minHistory: minHistory,
	}
}

// Predict runs the full pipeline over the draw history (newest first)
// and the caller's stats payload. It returns the decision together with
// the updated stats; the caller must persist the returned stats and
// hand them back on the next call, or outcome attribution and the
// defensive mode stop working.
func (e *Engine) Predict(ctx context.Context, history []domain.Draw, stats domain.EngineStats) (domain.Decision, domain.EngineStats) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, span := e.tracer.Start(ctx, "engine.predict")
	defer span.End()

	clean := domain.SanitizeHistory(history)
	span.SetAttributes(
		attribute.Int("history.raw", len(history)),
		attribute.Int("history.clean", len(clean)),
	)

	// Below the floor nothing adaptive may move; the fallback is still
	// recorded so the next call can grade it.
	if len(clean) < e.minHistory {
		decision := e.fallback(domain.HealthInsufficientHistory, "fallback:random")
		span.SetAttributes(attribute.String("decision.health", string(decision.Health)))
		return decision, record(stats, decision, nil, domain.OutcomePending)
	}

	if len(clean)%adaptEvery == 0 {
		if accuracy, ok := stats.LongTermAccuracy(); ok {
			e.regime.Drift(accuracy)
		}
		if e.weights.Adapt(e.trades.entries) {
			log.Debug().Int("trades", len(e.trades.entries)).Msg("adaptation sweep applied")
		}
		e.sentiment.Tick()
	}

	resolution := domain.OutcomePending
	if outcome, resolved := e.resolvePrevious(clean[0], stats); resolved {
		resolution = outcome
		e.regime.Record(outcome)
	}

	snapshot, snapOK := BuildSnapshot(domain.Numbers(clean))
	var snapPtr *domain.FeatureSnapshot
	if snapOK {
		snapPtr = &snapshot
	}

	var class domain.Class
	var confidence float64
	modelOK := false
	if snapOK {
		class, confidence, modelOK = e.weights.Score(snapshot)
	}
	if !modelOK {
		decision := e.fallback(domain.HealthModelUncertain, "fallback:uncertain")
		span.SetAttributes(attribute.String("decision.health", string(decision.Health)))
		return decision, record(stats, decision, snapPtr, resolution)
	}

	signals := RunAdvisors(clean)
	consensus := Consensus(signals, class)
	final := confidence * (consensusFloor + consensusSpan*consensus)

	health := domain.HealthOK
	level := domain.LevelLow
	if e.regime.Defensive() {
		final *= defensiveScale
		health = domain.HealthDefensive
	} else if final > levelThreshold {
		level = domain.LevelHigh
	}

	decision := domain.Decision{
		Class:      class,
		Confidence: &final,
		Level:      level,
		Health:     health,
		Source:     tally(signals, class),
		DecidedAt:  time.Now().UTC(),
	}
	span.SetAttributes(
		attribute.String("decision.class", string(class)),
		attribute.Float64("decision.confidence", final),
		attribute.Int("decision.level", level),
		attribute.String("decision.health", string(health)),
		attribute.Float64("decision.consensus", consensus),
	)
	return decision, record(stats, decision, snapPtr, resolution)
}

// resolvePrevious grades the previous call's prediction against the
// newest draw. Defensive predictions cool down instead of scoring, and
// only decided outcomes feed the trade log.
func (e *Engine) resolvePrevious(latest domain.Draw, stats domain.EngineStats) (domain.Outcome, bool) {
	if stats.LastPrediction == nil {
		return "", false
	}
	var outcome domain.Outcome
	switch {
	case stats.LastHealth == domain.HealthDefensive:
		outcome = domain.OutcomeCooldown
	case *stats.LastPrediction == latest.Class:
		outcome = domain.OutcomeWin
	default:
		outcome = domain.OutcomeLoss
	}
	if outcome != domain.OutcomeCooldown && stats.LastFeatures != nil {
		e.trades.add(trade{
			features: *stats.LastFeatures,
			class:    *stats.LastPrediction,
			outcome:  outcome,
		})
	}
	return outcome, true
}

// fallback emits a coin-flip decision with no confidence value, labeled
// by health so callers can tell the degraded modes apart.
func (e *Engine) fallback(health domain.Health, source string) domain.Decision {
	class := domain.ClassSmall
	if e.rng.Intn(2) == 1 {
		class = domain.ClassBig
	}
	return domain.Decision{
		Class:     class,
		Level:     domain.LevelLow,
		Health:    health,
		Source:    source,
		DecidedAt: time.Now().UTC(),
	}
}

// record writes the decision, snapshot and resolution into a copy of
// the stats payload. Pointers are duplicated so the caller cannot alias
// engine-held data through the returned record.
func record(stats domain.EngineStats, decision domain.Decision, snapshot *domain.FeatureSnapshot, resolution domain.Outcome) domain.EngineStats {
	class := decision.Class
	level := decision.Level
	stats.LastPrediction = &class
	stats.LastLevel = &level
	stats.LastHealth = decision.Health
	stats.LastResolution = resolution

	stats.LastConfidence = nil
	if decision.Confidence != nil {
		c := *decision.Confidence
		stats.LastConfidence = &c
	}
	stats.LastFeatures = nil
	if snapshot != nil {
		s := *snapshot
		stats.LastFeatures = &s
	}
	d := decision
	d.Confidence = stats.LastConfidence
	stats.LastDecision = &d
	return stats
}

// tally builds the source-attribution string for a model decision.
func tally(signals []Signal, class domain.Class) string {
	if len(signals) == 0 {
		return "model"
	}
	agree := 0
	names := make([]string, 0, len(signals))
	for _, s := range signals {
		if s.Class == class {
			agree++
		}
		names = append(names, s.Source)
	}
	return fmt.Sprintf("model+%d/%d[%s]", agree, len(signals), strings.Join(names, ","))
}

// Telemetry is a point-in-time view of the adaptive internals for
// dashboards and the explain endpoint.
type Telemetry struct {
	Weights         map[domain.FeatureKey]float64 `json:"weights"`
	Defensive       bool                          `json:"defensive"`
	BadTrendLimit   float64                       `json:"bad_trend_limit"`
	Sentiment       float64                       `json:"sentiment"`
	SentimentEvents int                           `json:"sentiment_events"`
	TradeCount      int                           `json:"trade_count"`
}

func (e *Engine) Telemetry() Telemetry {
	e.mu.Lock()
	defer e.mu.Unlock()

	weights := make(map[domain.FeatureKey]float64, len(e.weights))
	for key, v := range e.weights {
		weights[key] = v
	}
	return Telemetry{
		Weights:         weights,
		Defensive:       e.regime.Defensive(),
		BadTrendLimit:   e.regime.Threshold(),
		Sentiment:       e.sentiment.Aggregate(),
		SentimentEvents: e.sentiment.Size(),
		TradeCount:      len(e.trades.entries),
	}
}
