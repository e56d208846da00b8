package engine

import (
	"math"

	"psychic-pancake/internal/domain"
)

const (
	weightMin    = 0.1
	weightMax    = 5.0
	learningRate = 0.01

	tradeLogCap     = 50
	adaptMinSamples = 20
)

// Weights is the adaptive weight vector, one bounded weight per feature
// key. It shares the enumerated key set with FeatureSnapshot so the two
// cannot drift apart.
type Weights map[domain.FeatureKey]float64

// NewWeights starts every feature at a neutral 1.0.
func NewWeights() Weights {
	w := make(Weights, len(domain.FeatureKeys))
	for _, key := range domain.FeatureKeys {
		w[key] = 1.0
	}
	return w
}

// Clamp forces every weight back into [weightMin, weightMax].
func (w Weights) Clamp() {
	for key, v := range w {
		if v < weightMin {
			w[key] = weightMin
		} else if v > weightMax {
			w[key] = weightMax
		}
	}
}

// Score runs the weighted classifier over a snapshot. A positive
// weighted contribution pulls toward BIG, a negative one toward SMALL;
// a negative weight flips the feature's polarity. ok is false when both
// class scores are zero, meaning no decision can be made.
func (w Weights) Score(snap domain.FeatureSnapshot) (domain.Class, float64, bool) {
	var bigScore float64
	var smallScore float64
	for _, key := range domain.FeatureKeys {
		c := snap.Value(key) * w[key]
		if c > 0 {
			bigScore += c
		} else if c < 0 {
			smallScore += -c
		}
	}
	total := bigScore + smallScore
	if total == 0 {
		return "", 0, false
	}
	class := domain.ClassSmall
	if bigScore > smallScore {
		class = domain.ClassBig
	}
	confidence := math.Abs(bigScore-smallScore) / total
	return class, confidence, true
}

// Adapt replays the recorded trades and nudges every weight whose
// feature was aligned with the trade's predicted class: up on wins,
// down on losses. No-op until adaptMinSamples trades exist. Reports
// whether an adaptation sweep ran.
func (w Weights) Adapt(trades []trade) bool {
	if len(trades) < adaptMinSamples {
		return false
	}
	for _, tr := range trades {
		for _, key := range domain.FeatureKeys {
			contribution := tr.features.Value(key) * w[key]
			if contribution == 0 {
				continue
			}
			aligned := (contribution > 0 && tr.class == domain.ClassBig) ||
				(contribution < 0 && tr.class == domain.ClassSmall)
			if !aligned {
				continue
			}
			if tr.outcome == domain.OutcomeWin {
				w[key] += learningRate
			} else {
				w[key] -= learningRate
			}
		}
	}
	w.Clamp()
	return true
}

// trade pairs a feature snapshot with the class it predicted and how
// that prediction resolved. Only decided trades are logged; cooldowns
// carry no learning signal.
type trade struct {
	features domain.FeatureSnapshot
	class    domain.Class
	outcome  domain.Outcome
}

// tradeLog is a bounded ring of the most recent decided trades.
type tradeLog struct {
	entries []trade
}

func (l *tradeLog) add(tr trade) {
	l.entries = append(l.entries, tr)
	if len(l.entries) > tradeLogCap {
		l.entries = l.entries[len(l.entries)-tradeLogCap:]
	}
}
