package job

import (
	"context"
	"time"

	"psychic-pancake/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type AnomalyScanRunner interface {
	RunAnomalyScan(ctx context.Context) (domain.AnomalyReport, error)
}

// AnomalyScanJob reruns the isolation-forest scan on a fixed cadence so
// feed glitches show up in telemetry without waiting for a prediction.
type AnomalyScanJob struct {
	tracer       trace.Tracer
	runner       AnomalyScanRunner
	pollInterval time.Duration
}

func NewAnomalyScanJob(tracer trace.Tracer, runner AnomalyScanRunner, pollInterval time.Duration) *AnomalyScanJob {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Minute
	}
	return &AnomalyScanJob{tracer: tracer, runner: runner, pollInterval: pollInterval}
}

func (j *AnomalyScanJob) Start(ctx context.Context) {
	if j.runner == nil {
		log.Info().Msg("anomaly scan job disabled: no runner")
		<-ctx.Done()
		return
	}

	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *AnomalyScanJob) runOnce(ctx context.Context) {
	_, span := j.tracer.Start(ctx, "anomaly-scan-job.run-once")
	defer span.End()

	report, err := j.runner.RunAnomalyScan(ctx)
	if err != nil {
		log.Error().Err(err).Msg("anomaly scan failed")
		return
	}
	if len(report.Outliers) > 0 {
		log.Warn().
			Int("window", report.WindowSize).
			Float64("max_score", report.MaxScore).
			Ints64("sequences", report.Outliers).
			Msg("anomalous draws detected")
	}
}
