package domain

// EngineStats is the cross-call bookkeeping record the caller persists
// between predictions. Predict takes it by value and returns the updated
// copy; the caller must store the returned value and hand the same data
// back on the next call, otherwise outcome attribution and defensive
// mode tracking fall apart.
type EngineStats struct {
	LastPrediction *Class           `json:"last_prediction,omitempty"`
	LastConfidence *float64         `json:"last_confidence,omitempty"`
	LastLevel      *int             `json:"last_level,omitempty"`
	LastHealth     Health           `json:"last_health,omitempty"`
	LastFeatures   *FeatureSnapshot `json:"last_features,omitempty"`
	LastDecision   *Decision        `json:"last_decision,omitempty"`
	LastResolution Outcome          `json:"last_resolution,omitempty"`

	// Win/resolved counters are maintained by the caller from the
	// LastResolution it gets back; the engine only reads the ratio.
	WinCount      int `json:"win_count"`
	ResolvedCount int `json:"resolved_count"`
}

// LongTermAccuracy reports the global win ratio. ok is false before any
// prediction has resolved, in which case threshold drift is skipped.
func (s EngineStats) LongTermAccuracy() (float64, bool) {
	if s.ResolvedCount <= 0 {
		return 0, false
	}
	return float64(s.WinCount) / float64(s.ResolvedCount), true
}
