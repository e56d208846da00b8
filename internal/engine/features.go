package engine

import (
	"psychic-pancake/internal/domain"
	"psychic-pancake/internal/ta"
)

const (
	rsiPeriod = 14
	emaShort  = 5
	emaMid    = 10
	emaLong   = 20

	overboughtRSI = 70.0
	oversoldRSI   = 30.0
)

// BuildSnapshot derives the fixed feature schema from the raw values
// (newest first). ok is false when the series is too short for the
// slowest indicator.
func BuildSnapshot(values []float64) (domain.FeatureSnapshot, bool) {
	rsi, ok := ta.RSI(values, rsiPeriod)
	if !ok {
		return domain.FeatureSnapshot{}, false
	}
	gap, ok := momentumGap(values)
	if !ok {
		return domain.FeatureSnapshot{}, false
	}
	trend, ok := trendScore(values)
	if !ok {
		return domain.FeatureSnapshot{}, false
	}

	snap := domain.FeatureSnapshot{
		OscDistance: (rsi - 50) / 50,
		MomentumGap: gap,
		TrendScore:  trend,
		LastMove:    sign(values[0] - values[1]),
	}
	if rsi > overboughtRSI {
		snap.Overbought = 1
	}
	if rsi < oversoldRSI {
		snap.Oversold = 1
	}
	return snap, true
}

// momentumGap is the change of the short/long EMA spread across the
// newest draw: spread over the full series minus spread with the newest
// value dropped.
func momentumGap(values []float64) (float64, bool) {
	if len(values) < emaLong+1 {
		return 0, false
	}
	fastNow, ok1 := ta.EMA(values, emaShort)
	slowNow, ok2 := ta.EMA(values, emaLong)
	fastPrev, ok3 := ta.EMA(values[1:], emaShort)
	slowPrev, ok4 := ta.EMA(values[1:], emaLong)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, false
	}
	return (fastNow - slowNow) - (fastPrev - slowPrev), true
}

// trendScore classifies the short/mid/long EMA ordering: +1 for a clean
// ascending stack, -1 for a clean descending one, 0 for ranging.
func trendScore(values []float64) (float64, bool) {
	short, ok1 := ta.EMA(values, emaShort)
	mid, ok2 := ta.EMA(values, emaMid)
	long, ok3 := ta.EMA(values, emaLong)
	if !ok1 || !ok2 || !ok3 {
		return 0, false
	}
	switch {
	case short > mid && mid > long:
		return 1, true
	case short < mid && mid < long:
		return -1, true
	}
	return 0, true
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
