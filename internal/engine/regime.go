package engine

import "psychic-pancake/internal/domain"

const (
	regimeWindow     = 30
	regimeMinDecided = 15
	recoveryStreak   = 3

	thresholdStart = 0.45
	thresholdMin   = 0.42
	thresholdMax   = 0.48
	thresholdStep  = 0.005

	accuracyTarget = 0.54
	accuracyBand   = 0.02
)

// Regime watches the rolling outcome window and flips a defensive mode
// that suppresses confidence while recent accuracy is poor.
type Regime struct {
	threshold float64
	defensive bool
	outcomes  []domain.Outcome // newest last, capped at regimeWindow
}

func NewRegime() *Regime {
	return &Regime{threshold: thresholdStart}
}

func (r *Regime) Defensive() bool { return r.defensive }

// Threshold is the current bad-trend limit the win ratio is held against.
func (r *Regime) Threshold() float64 { return r.threshold }

// Record feeds one resolved outcome into the window and re-evaluates
// the mode.
func (r *Regime) Record(outcome domain.Outcome) {
	r.outcomes = append(r.outcomes, outcome)
	if len(r.outcomes) > regimeWindow {
		r.outcomes = r.outcomes[len(r.outcomes)-regimeWindow:]
	}
	r.evaluate()
}

func (r *Regime) evaluate() {
	if r.defensive {
		// Recovery demands the three newest outcomes all be wins;
		// a loss or cooldown restarts the wait.
		if len(r.outcomes) < recoveryStreak {
			return
		}
		for _, out := range r.outcomes[len(r.outcomes)-recoveryStreak:] {
			if out != domain.OutcomeWin {
				return
			}
		}
		r.defensive = false
		return
	}

	wins := 0
	losses := 0
	for _, out := range r.outcomes {
		switch out {
		case domain.OutcomeWin:
			wins++
		case domain.OutcomeLoss:
			losses++
		}
	}
	decided := wins + losses
	if decided < regimeMinDecided {
		return
	}
	if float64(wins)/float64(decided) < r.threshold {
		r.defensive = true
	}
}

// Drift walks the bad-trend threshold one step per adaptation tick:
// weak long-term accuracy raises it toward thresholdMax so defense
// kicks in sooner, strong accuracy lowers it toward thresholdMin.
// Inside the band around the target nothing moves.
func (r *Regime) Drift(accuracy float64) {
	switch {
	case accuracy < accuracyTarget-accuracyBand:
		r.threshold += thresholdStep
		if r.threshold > thresholdMax {
			r.threshold = thresholdMax
		}
	case accuracy > accuracyTarget+accuracyBand:
		r.threshold -= thresholdStep
		if r.threshold < thresholdMin {
			r.threshold = thresholdMin
		}
	}
}
