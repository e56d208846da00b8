package job

import (
	"context"
	"time"

	"psychic-pancake/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// DrawPoller periodically pulls new draws from the upstream feed and
// hands them to the prediction service.
type DrawPoller struct {
	tracer       trace.Tracer
	feed         DrawFetcher
	ingestor     DrawIngestor
	pollInterval time.Duration
}

type DrawFetcher interface {
	FetchDraws(ctx context.Context, afterSeq int64, limit int) ([]domain.Draw, error)
}

type DrawIngestor interface {
	IngestDraws(ctx context.Context, draws []domain.Draw) (*domain.Decision, error)
	LatestSequence(ctx context.Context) (int64, error)
}

func NewDrawPoller(tracer trace.Tracer, feed DrawFetcher, ingestor DrawIngestor, pollIntervalSecs int) *DrawPoller {
	if pollIntervalSecs <= 0 {
		pollIntervalSecs = 60
	}
	return &DrawPoller{
		tracer:       tracer,
		feed:         feed,
		ingestor:     ingestor,
		pollInterval: time.Duration(pollIntervalSecs) * time.Second,
	}
}

// Start polls immediately and then on every tick. Blocks until ctx is
// cancelled.
func (p *DrawPoller) Start(ctx context.Context) {
	if p.feed == nil {
		log.Info().Msg("draw poller disabled: no feed configured")
		<-ctx.Done()
		return
	}

	log.Info().Dur("interval", p.pollInterval).Msg("draw poller starting")

	p.pollOnce(ctx)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("draw poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *DrawPoller) pollOnce(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "draw-poller.poll-once")
	defer span.End()

	afterSeq, err := p.ingestor.LatestSequence(ctx)
	if err != nil {
		log.Error().Err(err).Msg("latest sequence lookup failed")
		return
	}

	draws, err := p.feed.FetchDraws(ctx, afterSeq, domain.HistoryCap)
	if err != nil {
		log.Error().Err(err).Msg("draw fetch failed")
		return
	}
	if len(draws) == 0 {
		return
	}

	decision, err := p.ingestor.IngestDraws(ctx, draws)
	if err != nil {
		log.Error().Err(err).Msg("draw ingest failed")
		return
	}
	if decision != nil {
		log.Info().
			Int("draws", len(draws)).
			Str("class", string(decision.Class)).
			Str("health", string(decision.Health)).
			Msg("poll cycle complete")
	}
}
