package domain

import (
	"time"

	"github.com/google/uuid"
)

// PredictionRecord is the persisted form of a decision, keyed to the
// draw sequence it targets and resolved once that draw lands.
type PredictionRecord struct {
	ID          uuid.UUID  `json:"id"`
	Sequence    int64      `json:"sequence"`
	Class       Class      `json:"class"`
	Confidence  *float64   `json:"confidence,omitempty"`
	Level       int        `json:"level"`
	Health      Health     `json:"health"`
	Source      string     `json:"source"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Outcome     Outcome    `json:"outcome"`
	ActualClass *Class     `json:"actual_class,omitempty"`
}

// Resolve marks the record against the actual draw class. Defensive
// predictions cool down instead of counting as a win or loss.
func (p *PredictionRecord) Resolve(actual Class, at time.Time) {
	p.ActualClass = &actual
	p.ResolvedAt = &at
	switch {
	case p.Health == HealthDefensive:
		p.Outcome = OutcomeCooldown
	case p.Class == actual:
		p.Outcome = OutcomeWin
	default:
		p.Outcome = OutcomeLoss
	}
}
