package engine

import (
	"math"
	"testing"
)

func TestBuildSnapshotTooShort(t *testing.T) {
	values := make([]float64, emaLong)
	if _, ok := BuildSnapshot(values); ok {
		t.Errorf("expected no snapshot below the indicator floor")
	}
}

func TestBuildSnapshotRisingSeries(t *testing.T) {
	// Chronologically rising series, handed over newest first.
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(30 - i)
	}

	snap, ok := BuildSnapshot(values)
	if !ok {
		t.Fatalf("expected a snapshot")
	}
	if snap.OscDistance != 1 {
		t.Errorf("expected OscDistance 1 on an all-gains series, got %v", snap.OscDistance)
	}
	if snap.Overbought != 1 || snap.Oversold != 0 {
		t.Errorf("expected only the overbought flag, got %+v", snap)
	}
	if snap.TrendScore != 1 {
		t.Errorf("expected TrendScore 1, got %v", snap.TrendScore)
	}
	if snap.LastMove != 1 {
		t.Errorf("expected LastMove 1, got %v", snap.LastMove)
	}
}

func TestBuildSnapshotFallingSeries(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(i + 1)
	}

	snap, ok := BuildSnapshot(values)
	if !ok {
		t.Fatalf("expected a snapshot")
	}
	if snap.OscDistance != -1 {
		t.Errorf("expected OscDistance -1 on an all-losses series, got %v", snap.OscDistance)
	}
	if snap.Oversold != 1 || snap.Overbought != 0 {
		t.Errorf("expected only the oversold flag, got %+v", snap)
	}
	if snap.TrendScore != -1 {
		t.Errorf("expected TrendScore -1, got %v", snap.TrendScore)
	}
	if snap.LastMove != -1 {
		t.Errorf("expected LastMove -1, got %v", snap.LastMove)
	}
}

func TestBuildSnapshotBalancedSeries(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		if i%2 == 0 {
			values[i] = 5
		}
	}

	snap, ok := BuildSnapshot(values)
	if !ok {
		t.Fatalf("expected a snapshot")
	}
	if snap.Overbought != 0 || snap.Oversold != 0 {
		t.Errorf("expected neither extreme flag on a balanced series, got %+v", snap)
	}
	if math.Abs(snap.OscDistance) > 0.2 {
		t.Errorf("expected OscDistance near zero, got %v", snap.OscDistance)
	}
	if snap.LastMove != 1 {
		t.Errorf("expected LastMove 1, got %v", snap.LastMove)
	}
}

func TestSign(t *testing.T) {
	if sign(3) != 1 || sign(-0.5) != -1 || sign(0) != 0 {
		t.Errorf("sign mapping broken: %v %v %v", sign(3), sign(-0.5), sign(0))
	}
}
