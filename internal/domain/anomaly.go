package domain

import "time"

// AnomalyReport summarizes one isolation-forest pass over the recent
// draw window. Outliers lists the sequences whose score crossed the
// configured limit.
type AnomalyReport struct {
	ScannedAt  time.Time `json:"scanned_at"`
	WindowSize int       `json:"window_size"`
	MeanScore  float64   `json:"mean_score"`
	MaxScore   float64   `json:"max_score"`
	ScoreLimit float64   `json:"score_limit"`
	Outliers   []int64   `json:"outliers,omitempty"`
}
