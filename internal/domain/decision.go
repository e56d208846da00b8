package domain

import "time"

// Health labels the engine state behind one decision.
type Health string

const (
	HealthOK                  Health = "OK"
	HealthDefensive           Health = "DEFENSIVE_MODE"
	HealthInsufficientHistory Health = "INSUFFICIENT_HISTORY"
	HealthModelUncertain      Health = "MODEL_UNCERTAIN"
)

// FeatureKey names one entry of the fixed feature schema. The weight
// vector and the feature snapshot share this key set so they cannot
// drift apart.
type FeatureKey string

const (
	FeatureOscDistance FeatureKey = "osc_distance"
	FeatureOverbought  FeatureKey = "overbought"
	FeatureOversold    FeatureKey = "oversold"
	FeatureMomentumGap FeatureKey = "momentum_gap"
	FeatureTrendScore  FeatureKey = "trend_score"
	FeatureLastMove    FeatureKey = "last_move"
)

// FeatureKeys lists the schema in canonical order.
var FeatureKeys = []FeatureKey{
	FeatureOscDistance,
	FeatureOverbought,
	FeatureOversold,
	FeatureMomentumGap,
	FeatureTrendScore,
	FeatureLastMove,
}

// FeatureSnapshot is the feature vector behind one prediction, copied
// into the stats payload so the next call can attribute its outcome.
type FeatureSnapshot struct {
	OscDistance float64 `json:"osc_distance"`
	Overbought  float64 `json:"overbought"`
	Oversold    float64 `json:"oversold"`
	MomentumGap float64 `json:"momentum_gap"`
	TrendScore  float64 `json:"trend_score"`
	LastMove    float64 `json:"last_move"`
}

// Value returns the field addressed by key, zero for unknown keys.
func (s FeatureSnapshot) Value(key FeatureKey) float64 {
	switch key {
	case FeatureOscDistance:
		return s.OscDistance
	case FeatureOverbought:
		return s.Overbought
	case FeatureOversold:
		return s.Oversold
	case FeatureMomentumGap:
		return s.MomentumGap
	case FeatureTrendScore:
		return s.TrendScore
	case FeatureLastMove:
		return s.LastMove
	}
	return 0
}

// Confidence levels. Level is a trust flag, not a scale.
const (
	LevelLow  = 0
	LevelHigh = 1
)

// Decision is one prediction produced by the engine.
type Decision struct {
	Class      Class     `json:"class"`
	Confidence *float64  `json:"confidence,omitempty"`
	Level      int       `json:"level"`
	Health     Health    `json:"health"`
	Source     string    `json:"source"`
	DecidedAt  time.Time `json:"decided_at"`
}
