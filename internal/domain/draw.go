package domain

import (
	"math"
	"time"
)

// Class is the binary category a drawn number maps to.
type Class string

const (
	ClassBig   Class = "BIG"   // digits 5-9
	ClassSmall Class = "SMALL" // digits 0-4
)

func (c Class) IsValid() bool {
	return c == ClassBig || c == ClassSmall
}

// Opposite returns the other class.
func (c Class) Opposite() Class {
	if c == ClassBig {
		return ClassSmall
	}
	return ClassBig
}

// ClassOf maps a drawn number to its class.
func ClassOf(number float64) Class {
	if number >= 5 {
		return ClassBig
	}
	return ClassSmall
}

// Outcome is the resolution status of the prediction made for a draw.
type Outcome string

const (
	OutcomePending  Outcome = "Pending"
	OutcomeWin      Outcome = "Win"
	OutcomeLoss     Outcome = "Loss"
	OutcomeCooldown Outcome = "Cooldown"
)

// HistoryCap bounds the rolling draw history. The caller appending new
// draws drops the oldest entries beyond the cap; the engine never
// removes or reorders entries itself.
const HistoryCap = 150

// MinHistory is the resolved-draw count below which the engine refuses
// to predict and falls back to a random pick.
const MinHistory = 100

// Draw is one observed outcome of the game. History is kept newest
// first: index 0 is the latest draw.
type Draw struct {
	Sequence int64     `json:"sequence"`
	Number   float64   `json:"number"`
	Class    Class     `json:"class"`
	Status   Outcome   `json:"status"`
	DrawnAt  time.Time `json:"drawn_at"`
}

// Valid reports whether the draw carries a usable class and a finite number.
func (d Draw) Valid() bool {
	return d.Class.IsValid() && !math.IsNaN(d.Number) && !math.IsInf(d.Number, 0)
}

// SanitizeHistory drops malformed entries while preserving newest-first
// order. A bad row shrinks the effective dataset instead of failing
// the whole call.
func SanitizeHistory(history []Draw) []Draw {
	clean := make([]Draw, 0, len(history))
	for _, d := range history {
		if d.Valid() {
			clean = append(clean, d)
		}
	}
	return clean
}

// Numbers extracts the raw drawn values, newest first.
func Numbers(history []Draw) []float64 {
	values := make([]float64, len(history))
	for i, d := range history {
		values[i] = d.Number
	}
	return values
}

// Classes extracts the derived classes, newest first.
func Classes(history []Draw) []Class {
	classes := make([]Class, len(history))
	for i, d := range history {
		classes[i] = d.Class
	}
	return classes
}
