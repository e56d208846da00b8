package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"psychic-pancake/internal/domain"
	"psychic-pancake/internal/engine"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	decisionCacheTTL = 90 * time.Second
	decisionCacheKey = "prediction:latest"
	statsCacheKey    = "engine:stats"
)

// Predictor is the decision core consumed by the service.
type Predictor interface {
	Predict(ctx context.Context, history []domain.Draw, stats domain.EngineStats) (domain.Decision, domain.EngineStats)
	Telemetry() engine.Telemetry
}

type DrawRepository interface {
	UpsertDraws(ctx context.Context, draws []domain.Draw) error
	RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error)
	LatestSequence(ctx context.Context) (int64, error)
	SetStatus(ctx context.Context, sequence int64, status domain.Outcome) error
}

type PredictionRepository interface {
	Insert(ctx context.Context, rec *domain.PredictionRecord) error
	Resolve(ctx context.Context, id uuid.UUID, outcome domain.Outcome, actual domain.Class, at time.Time) error
	LatestPending(ctx context.Context) (*domain.PredictionRecord, error)
	Recent(ctx context.Context, limit int) ([]domain.PredictionRecord, error)
	OutcomeCounts(ctx context.Context) (map[domain.Outcome]int64, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// PredictionService feeds new draws through the engine, persists the
// resulting predictions and keeps the stats payload the engine depends
// on between calls.
type PredictionService struct {
	tracer      trace.Tracer
	engine      Predictor
	draws       DrawRepository
	predictions PredictionRepository
	redis       RedisClient

	mu    sync.Mutex
	stats domain.EngineStats
}

func NewPredictionService(
	tracer trace.Tracer,
	predictor Predictor,
	drawRepo DrawRepository,
	predictionRepo PredictionRepository,
	redisClient RedisClient,
) *PredictionService {
	return &PredictionService{
		tracer:      tracer,
		engine:      predictor,
		draws:       drawRepo,
		predictions: predictionRepo,
		redis:       redisClient,
	}
}

// RestoreStats rebuilds the stats payload after a restart: the Redis
// snapshot wins, otherwise the win/loss counters are recomputed from
// the prediction table and the per-call fields start empty.
func (s *PredictionService) RestoreStats(ctx context.Context) {
	_, span := s.tracer.Start(ctx, "prediction-service.restore-stats")
	defer span.End()

	if s.redis != nil {
		data, err := s.redis.Get(ctx, statsCacheKey).Bytes()
		if err == nil {
			var stats domain.EngineStats
			if err := json.Unmarshal(data, &stats); err == nil {
				s.mu.Lock()
				s.stats = stats
				s.mu.Unlock()
				log.Info().Int("resolved", stats.ResolvedCount).Msg("engine stats restored from cache")
				return
			}
		} else if err != redis.Nil {
			log.Warn().Err(err).Msg("redis stats read error")
		}
	}

	counts, err := s.predictions.OutcomeCounts(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not rebuild counters from predictions")
		return
	}
	wins := int(counts[domain.OutcomeWin])
	losses := int(counts[domain.OutcomeLoss])
	s.mu.Lock()
	s.stats = domain.EngineStats{WinCount: wins, ResolvedCount: wins + losses}
	s.mu.Unlock()
	log.Info().Int("wins", wins).Int("losses", losses).Msg("engine counters rebuilt from predictions")
}

// IngestDraws stores a batch of draws (newest first), resolves the
// outstanding prediction against the newest one and produces the next
// decision. A nil decision means the batch was empty.
func (s *PredictionService) IngestDraws(ctx context.Context, draws []domain.Draw) (*domain.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "prediction-service.ingest-draws")
	defer span.End()

	if len(draws) == 0 {
		return nil, nil
	}

	if err := s.draws.UpsertDraws(ctx, draws); err != nil {
		return nil, fmt.Errorf("upsert draws: %w", err)
	}

	history, err := s.draws.RecentDraws(ctx, domain.HistoryCap)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no draw history after upsert")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	decision, stats := s.engine.Predict(ctx, history, s.stats)

	switch stats.LastResolution {
	case domain.OutcomeWin:
		stats.WinCount++
		stats.ResolvedCount++
	case domain.OutcomeLoss:
		stats.ResolvedCount++
	}
	s.stats = stats

	latest := history[0]
	if stats.LastResolution != domain.OutcomePending {
		s.settlePending(ctx, latest, stats.LastResolution)
	}

	rec := &domain.PredictionRecord{
		ID:         uuid.New(),
		Sequence:   latest.Sequence + 1,
		Class:      decision.Class,
		Confidence: copyFloat(decision.Confidence),
		Level:      decision.Level,
		Health:     decision.Health,
		Source:     decision.Source,
		CreatedAt:  decision.DecidedAt,
		Outcome:    domain.OutcomePending,
	}
	if err := s.predictions.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert prediction: %w", err)
	}

	if s.redis != nil {
		if err := s.setDecisionCache(ctx, decision); err != nil {
			log.Warn().Err(err).Msg("redis decision cache write error")
		}
		if err := s.setStatsCache(ctx, stats); err != nil {
			log.Warn().Err(err).Msg("redis stats cache write error")
		}
	}

	log.Info().
		Int64("sequence", latest.Sequence).
		Str("class", string(decision.Class)).
		Str("health", string(decision.Health)).
		Msg("decision produced")

	return &decision, nil
}

// settlePending marks the newest unresolved prediction row and the draw
// that graded it. Persistence echoes only; the engine already graded
// the outcome in the stats payload.
func (s *PredictionService) settlePending(ctx context.Context, latest domain.Draw, outcome domain.Outcome) {
	pending, err := s.predictions.LatestPending(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("pending prediction lookup failed")
		return
	}
	if pending == nil {
		return
	}
	if pending.Sequence != latest.Sequence {
		log.Debug().
			Int64("expected", pending.Sequence).
			Int64("got", latest.Sequence).
			Msg("sequence gap while settling prediction")
	}
	if err := s.predictions.Resolve(ctx, pending.ID, outcome, latest.Class, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Msg("prediction resolve failed")
		return
	}
	if err := s.draws.SetStatus(ctx, latest.Sequence, outcome); err != nil {
		log.Warn().Err(err).Msg("draw status update failed")
	}
}

// LatestDecision serves the most recent decision, preferring the Redis
// cache and falling back to the in-memory stats payload.
func (s *PredictionService) LatestDecision(ctx context.Context) (*domain.Decision, error) {
	_, span := s.tracer.Start(ctx, "prediction-service.latest-decision")
	defer span.End()

	if s.redis != nil {
		cached, err := s.getDecisionCache(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("redis decision cache read error")
		}
		if cached != nil {
			return cached, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats.LastDecision == nil {
		return nil, nil
	}
	decision := *s.stats.LastDecision
	decision.Confidence = copyFloat(decision.Confidence)
	return &decision, nil
}

// Stats returns the live stats payload together with the persisted
// outcome tallies.
func (s *PredictionService) Stats(ctx context.Context) (domain.EngineStats, map[domain.Outcome]int64, error) {
	_, span := s.tracer.Start(ctx, "prediction-service.stats")
	defer span.End()

	counts, err := s.predictions.OutcomeCounts(ctx)
	if err != nil {
		return domain.EngineStats{}, nil, fmt.Errorf("outcome counts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, counts, nil
}

func (s *PredictionService) RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error) {
	return s.draws.RecentDraws(ctx, limit)
}

func (s *PredictionService) RecentPredictions(ctx context.Context, limit int) ([]domain.PredictionRecord, error) {
	return s.predictions.Recent(ctx, limit)
}

func (s *PredictionService) LatestSequence(ctx context.Context) (int64, error) {
	return s.draws.LatestSequence(ctx)
}

// EngineTelemetry exposes the adaptive internals for dashboards and the
// explain prompt.
func (s *PredictionService) EngineTelemetry() engine.Telemetry {
	return s.engine.Telemetry()
}

func (s *PredictionService) setDecisionCache(ctx context.Context, decision domain.Decision) error {
	data, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, decisionCacheKey, data, decisionCacheTTL).Err()
}

func (s *PredictionService) getDecisionCache(ctx context.Context) (*domain.Decision, error) {
	data, err := s.redis.Get(ctx, decisionCacheKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var decision domain.Decision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

func (s *PredictionService) setStatsCache(ctx context.Context, stats domain.EngineStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, statsCacheKey, data, 0).Err()
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
