package engine

import (
	"math"
	"testing"

	"psychic-pancake/internal/domain"
)

func TestRegimeActivatesOnBadWindow(t *testing.T) {
	r := NewRegime()
	for i := 0; i < regimeWindow; i++ {
		out := domain.OutcomeLoss
		if i%3 == 0 {
			out = domain.OutcomeWin
		}
		r.Record(out)
	}
	if !r.Defensive() {
		t.Fatalf("expected defensive mode after a 33%% win window")
	}
}

func TestRegimeStaysNormalBelowDecidedFloor(t *testing.T) {
	r := NewRegime()
	for i := 0; i < 20; i++ {
		r.Record(domain.OutcomeCooldown)
	}
	for i := 0; i < 10; i++ {
		r.Record(domain.OutcomeLoss)
	}
	if r.Defensive() {
		t.Fatalf("expected normal mode with only 10 decided outcomes")
	}
}

func TestRegimeRecoversAfterThreeWins(t *testing.T) {
	r := NewRegime()
	for i := 0; i < 20; i++ {
		r.Record(domain.OutcomeLoss)
	}
	if !r.Defensive() {
		t.Fatalf("expected defensive mode after 20 losses")
	}
	r.Record(domain.OutcomeWin)
	r.Record(domain.OutcomeWin)
	if !r.Defensive() {
		t.Fatalf("expected defensive mode to hold after two wins")
	}
	r.Record(domain.OutcomeWin)
	if r.Defensive() {
		t.Fatalf("expected recovery after three straight wins")
	}
}

func TestRegimeRecoveryBrokenByCooldown(t *testing.T) {
	r := NewRegime()
	for i := 0; i < 20; i++ {
		r.Record(domain.OutcomeLoss)
	}
	r.Record(domain.OutcomeWin)
	r.Record(domain.OutcomeWin)
	r.Record(domain.OutcomeCooldown)
	r.Record(domain.OutcomeWin)
	r.Record(domain.OutcomeWin)
	if !r.Defensive() {
		t.Fatalf("expected the cooldown to restart the recovery wait")
	}
	r.Record(domain.OutcomeWin)
	if r.Defensive() {
		t.Fatalf("expected recovery once three fresh wins landed")
	}
}

func TestRegimeDriftRaisesOnPoorAccuracy(t *testing.T) {
	r := NewRegime()
	r.Drift(0.40)
	if got := r.Threshold(); math.Abs(got-(thresholdStart+thresholdStep)) > 1e-9 {
		t.Errorf("expected one upward step, got %v", got)
	}
	for i := 0; i < 20; i++ {
		r.Drift(0.40)
	}
	if got := r.Threshold(); got != thresholdMax {
		t.Errorf("expected threshold capped at %v, got %v", thresholdMax, got)
	}
}

func TestRegimeDriftLowersOnStrongAccuracy(t *testing.T) {
	r := NewRegime()
	for i := 0; i < 20; i++ {
		r.Drift(0.70)
	}
	if got := r.Threshold(); got != thresholdMin {
		t.Errorf("expected threshold floored at %v, got %v", thresholdMin, got)
	}
}

func TestRegimeDriftDeadBand(t *testing.T) {
	r := NewRegime()
	r.Drift(0.54)
	r.Drift(0.53)
	r.Drift(0.55)
	r.Drift(0.52)
	r.Drift(0.56)
	if got := r.Threshold(); got != thresholdStart {
		t.Errorf("expected threshold unchanged inside the band, got %v", got)
	}
}
