// Package ta holds the indicator math used by the prediction engine.
//
// Callers hand every function the draw history as it is stored: newest
// value first. Each indicator reverses into chronological order
// internally and never mutates its input. Insufficient data is reported
// through the ok return, not an error.
package ta

import "math"

// Chronological returns a reversed copy, oldest value first.
func Chronological(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[len(values)-1-i] = v
	}
	return out
}

// Mean averages all values.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// SMA averages the earliest period values after reversal.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	chrono := Chronological(values)
	var sum float64
	for _, v := range chrono[:period] {
		sum += v
	}
	return sum / float64(period), true
}

// EMA seeds from the SMA of the earliest period values, then walks the
// rest of the series chronologically with k = 2/(period+1).
func EMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	chrono := Chronological(values)
	var sum float64
	for _, v := range chrono[:period] {
		sum += v
	}
	ema := sum / float64(period)
	k := 2.0 / float64(period+1)
	for i := period; i < len(chrono); i++ {
		ema = chrono[i]*k + ema*(1-k)
	}
	return ema, true
}

// StdDev is the sample standard deviation (n-1 denominator) over the
// period most recent values. Undefined for period < 2.
func StdDev(values []float64, period int) (float64, bool) {
	if period < 2 || len(values) < period {
		return 0, false
	}
	window := values[:period]
	mean, _ := Mean(window)
	var variance float64
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	variance /= float64(period - 1)
	return math.Sqrt(variance), true
}

// RSI is the Wilder momentum oscillator over the full series: simple
// average gain/loss over the first period chronological deltas, then
// exponential smoothing for every later delta.
func RSI(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}
	chrono := Chronological(values)

	var gainSum float64
	var lossSum float64
	for i := 1; i <= period; i++ {
		delta := chrono[i] - chrono[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	for i := period + 1; i < len(chrono); i++ {
		delta := chrono[i] - chrono[i-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	return rsiFromAvg(avgGain, avgLoss), true
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
