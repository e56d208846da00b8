package anomaly

import (
	"context"
	"fmt"
	"sync"
	"time"

	"psychic-pancake/internal/domain"

	"github.com/narumiruna/go-iforest/pkg/iforest"
	"go.opentelemetry.io/otel/trace"
)

// minScanDraws is the smallest window worth fitting a forest on.
const minScanDraws = 16

type DrawSource interface {
	RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error)
}

// Scanner fits an isolation forest over the recent draw window and
// keeps the latest report for telemetry consumers. Draws whose score
// crosses the limit are flagged, not dropped: the engine already
// sanitizes its own input, so the scan is purely observational.
type Scanner struct {
	tracer     trace.Tracer
	source     DrawSource
	window     int
	scoreLimit float64

	mu   sync.Mutex
	last *domain.AnomalyReport
}

func NewScanner(tracer trace.Tracer, source DrawSource, window int, scoreLimit float64) *Scanner {
	if window <= 0 {
		window = 64
	}
	if scoreLimit <= 0 || scoreLimit >= 1 {
		scoreLimit = 0.65
	}
	return &Scanner{
		tracer:     tracer,
		source:     source,
		window:     window,
		scoreLimit: scoreLimit,
	}
}

func (s *Scanner) RunAnomalyScan(ctx context.Context) (domain.AnomalyReport, error) {
	_, span := s.tracer.Start(ctx, "anomaly.run-scan")
	defer span.End()

	draws, err := s.source.RecentDraws(ctx, s.window)
	if err != nil {
		return domain.AnomalyReport{}, fmt.Errorf("load draws: %w", err)
	}
	draws = domain.SanitizeHistory(draws)

	report := domain.AnomalyReport{
		ScannedAt:  time.Now().UTC(),
		WindowSize: len(draws),
		ScoreLimit: s.scoreLimit,
	}
	if len(draws) < minScanDraws {
		s.store(report)
		return report, nil
	}

	matrix := buildMatrix(draws)
	model := iforest.New()
	model.Fit(matrix)
	scores := model.Score(matrix)

	var sum float64
	for i, score := range scores {
		sum += score
		if score > report.MaxScore {
			report.MaxScore = score
		}
		if score > s.scoreLimit {
			// matrix rows are chronological, draws are newest first
			report.Outliers = append(report.Outliers, draws[len(draws)-1-i].Sequence)
		}
	}
	if len(scores) > 0 {
		report.MeanScore = sum / float64(len(scores))
	}

	s.store(report)
	return report, nil
}

// LastReport returns a copy of the most recent report, or nil before
// the first scan.
func (s *Scanner) LastReport() *domain.AnomalyReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	report := *s.last
	report.Outliers = append([]int64(nil), s.last.Outliers...)
	return &report
}

func (s *Scanner) store(report domain.AnomalyReport) {
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
}

// buildMatrix converts newest-first draws into chronological feature
// rows: drawn value, step from the previous value, and the same-class
// run length at that point.
func buildMatrix(draws []domain.Draw) [][]float64 {
	n := len(draws)
	matrix := make([][]float64, n)
	run := 1.0
	var prev domain.Draw
	for j := 0; j < n; j++ {
		d := draws[n-1-j]
		delta := 0.0
		if j > 0 {
			delta = d.Number - prev.Number
			if d.Class == prev.Class {
				run++
			} else {
				run = 1
			}
		}
		matrix[j] = []float64{d.Number, delta, run}
		prev = d
	}
	return matrix
}
