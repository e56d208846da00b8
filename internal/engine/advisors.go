package engine

import (
	"strings"

	"psychic-pancake/internal/domain"
	"psychic-pancake/internal/ta"
)

// Signal is one advisory vote. Advisory means exactly that: votes scale
// the final confidence but never override the model's class choice.
type Signal struct {
	Class  domain.Class
	Source string
}

type advisorFunc func(history []domain.Draw) *Signal

// advisors in their fixed evaluation order.
var advisors = []advisorFunc{
	adviseRSITrend,
	adviseStochastic,
	advisePattern,
	adviseVolBreakout,
	advisePriceAction,
	adviseZScore,
}

// RunAdvisors collects the non-nil votes in order.
func RunAdvisors(history []domain.Draw) []Signal {
	var signals []Signal
	for _, fn := range advisors {
		if s := fn(history); s != nil {
			signals = append(signals, *s)
		}
	}
	return signals
}

// Consensus is the fraction of votes agreeing with the given class.
// Defaults to the neutral prior 0.5 when no advisor fired.
func Consensus(signals []Signal, class domain.Class) float64 {
	if len(signals) == 0 {
		return 0.5
	}
	agree := 0
	for _, s := range signals {
		if s.Class == class {
			agree++
		}
	}
	return float64(agree) / float64(len(signals))
}

const (
	rsiTrendLookback = 5
	rsiTrendBand     = 2.0
)

// adviseRSITrend samples the oscillator at the five most recent offsets
// and votes with the trend when the current reading clears the sample
// average by more than the band.
func adviseRSITrend(history []domain.Draw) *Signal {
	values := domain.Numbers(history)
	if len(values) < rsiPeriod+rsiTrendLookback {
		return nil
	}
	samples := make([]float64, 0, rsiTrendLookback)
	for offset := 0; offset < rsiTrendLookback; offset++ {
		rsi, ok := ta.RSI(values[offset:], rsiPeriod)
		if !ok {
			return nil
		}
		samples = append(samples, rsi)
	}
	avg, _ := ta.Mean(samples)
	current := samples[0]
	switch {
	case current > avg+rsiTrendBand:
		return &Signal{Class: domain.ClassBig, Source: "rsi_trend"}
	case current < avg-rsiTrendBand:
		return &Signal{Class: domain.ClassSmall, Source: "rsi_trend"}
	}
	return nil
}

const (
	stochPeriod = 14
	stochHigh   = 85.0
	stochLow    = 15.0
)

// adviseStochastic bets on mean reversion at %K extremes. No signal on
// a flat range.
func adviseStochastic(history []domain.Draw) *Signal {
	values := domain.Numbers(history)
	if len(values) < stochPeriod {
		return nil
	}
	window := values[:stochPeriod]
	lowest, highest := window[0], window[0]
	for _, v := range window[1:] {
		if v < lowest {
			lowest = v
		}
		if v > highest {
			highest = v
		}
	}
	if highest == lowest {
		return nil
	}
	k := 100 * (values[0] - lowest) / (highest - lowest)
	switch {
	case k > stochHigh:
		return &Signal{Class: domain.ClassSmall, Source: "stochastic"}
	case k < stochLow:
		return &Signal{Class: domain.ClassBig, Source: "stochastic"}
	}
	return nil
}

const patternWindow = 10

// patternRules is the fixed suffix table, checked top to bottom against
// the last ten classes written oldest to newest. Five-long streaks must
// come before four-long ones so an exact five-streak reads as
// exhaustion rather than continuation.
var patternRules = []struct {
	suffix  string
	predict domain.Class
	label   string
}{
	{"BBBBB", domain.ClassSmall, "streak_break"},
	{"SSSSS", domain.ClassBig, "streak_break"},
	{"BBBB", domain.ClassBig, "streak_cont"},
	{"SSSS", domain.ClassSmall, "streak_cont"},
	{"BSBS", domain.ClassSmall, "alt_break"},
	{"SBSB", domain.ClassBig, "alt_break"},
}

func advisePattern(history []domain.Draw) *Signal {
	if len(history) < patternWindow {
		return nil
	}
	buf := make([]byte, patternWindow)
	for i, d := range history[:patternWindow] {
		c := byte('S')
		if d.Class == domain.ClassBig {
			c = 'B'
		}
		buf[patternWindow-1-i] = c
	}
	seq := string(buf)
	for _, rule := range patternRules {
		if strings.HasSuffix(seq, rule.suffix) {
			return &Signal{Class: rule.predict, Source: "pattern:" + rule.label}
		}
	}
	return nil
}

const (
	volWindow = 10
	volFactor = 1.8
)

// adviseVolBreakout fires when recent volatility blows past the prior
// window, in the direction of the two newest draws.
func adviseVolBreakout(history []domain.Draw) *Signal {
	values := domain.Numbers(history)
	if len(values) < 2*volWindow {
		return nil
	}
	recent, ok1 := ta.StdDev(values, volWindow)
	prior, ok2 := ta.StdDev(values[volWindow:], volWindow)
	if !ok1 || !ok2 {
		return nil
	}
	if recent <= prior*volFactor {
		return nil
	}
	if values[0] == values[1] {
		return nil
	}
	class := domain.ClassSmall
	if values[0] > values[1] {
		class = domain.ClassBig
	}
	return &Signal{Class: class, Source: "vol_breakout"}
}

// advisePriceAction wants both lagged pairs (1st/3rd and 2nd/4th newest)
// pointing the same way.
func advisePriceAction(history []domain.Draw) *Signal {
	values := domain.Numbers(history)
	if len(values) < 4 {
		return nil
	}
	up := values[0] > values[2] && values[1] > values[3]
	down := values[0] < values[2] && values[1] < values[3]
	switch {
	case up:
		return &Signal{Class: domain.ClassBig, Source: "price_action"}
	case down:
		return &Signal{Class: domain.ClassSmall, Source: "price_action"}
	}
	return nil
}

const (
	zWindow    = 20
	zThreshold = 1.5
)

// adviseZScore bets on reversion when the newest draw sits far outside
// the recent distribution.
func adviseZScore(history []domain.Draw) *Signal {
	values := domain.Numbers(history)
	if len(values) < zWindow {
		return nil
	}
	mean, _ := ta.Mean(values[:zWindow])
	std, ok := ta.StdDev(values, zWindow)
	if !ok || std == 0 {
		return nil
	}
	z := (values[0] - mean) / std
	switch {
	case z > zThreshold:
		return &Signal{Class: domain.ClassSmall, Source: "zscore"}
	case z < -zThreshold:
		return &Signal{Class: domain.ClassBig, Source: "zscore"}
	}
	return nil
}
