package repository

import (
	"context"
	"errors"
	"time"

	"psychic-pancake/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

const createPredictionsTable = `
CREATE TABLE IF NOT EXISTS predictions (
    id           UUID        PRIMARY KEY,
    sequence     BIGINT      NOT NULL,
    class        TEXT        NOT NULL,
    confidence   DOUBLE PRECISION,
    level        INT         NOT NULL DEFAULT 0,
    health       TEXT        NOT NULL,
    source       TEXT        NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at  TIMESTAMPTZ,
    outcome      TEXT        NOT NULL DEFAULT 'Pending',
    actual_class TEXT
);

CREATE INDEX IF NOT EXISTS idx_predictions_created_at
    ON predictions (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_predictions_outcome
    ON predictions (outcome);
`

type PredictionRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPredictionRepository(pool PgxPool, tracer trace.Tracer) *PredictionRepository {
	return &PredictionRepository{pool: normalizePool(pool), tracer: tracer}
}

func (r *PredictionRepository) RunMigrations(ctx context.Context) error {
	if r.pool == nil {
		return ErrNoDatabase
	}

	_, span := r.tracer.Start(ctx, "prediction-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createPredictionsTable)
	return err
}

func (r *PredictionRepository) Insert(ctx context.Context, rec *domain.PredictionRecord) error {
	if r.pool == nil {
		return ErrNoDatabase
	}

	_, span := r.tracer.Start(ctx, "prediction-repo.insert")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO predictions (id, sequence, class, confidence, level, health, source, created_at, outcome)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Sequence, string(rec.Class), rec.Confidence, rec.Level,
		string(rec.Health), rec.Source, rec.CreatedAt, string(rec.Outcome),
	)
	return err
}

func (r *PredictionRepository) Resolve(ctx context.Context, id uuid.UUID, outcome domain.Outcome, actual domain.Class, at time.Time) error {
	if r.pool == nil {
		return ErrNoDatabase
	}

	_, span := r.tracer.Start(ctx, "prediction-repo.resolve")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE predictions
		 SET outcome = $2, actual_class = $3, resolved_at = $4
		 WHERE id = $1`,
		id, string(outcome), string(actual), at,
	)
	return err
}

// LatestPending returns the newest unresolved prediction, or nil when every
// prediction has been graded.
func (r *PredictionRepository) LatestPending(ctx context.Context) (*domain.PredictionRecord, error) {
	if r.pool == nil {
		return nil, ErrNoDatabase
	}

	_, span := r.tracer.Start(ctx, "prediction-repo.latest-pending")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT id, sequence, class, confidence, level, health, source, created_at, resolved_at, outcome, actual_class
		 FROM predictions
		 WHERE outcome = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		string(domain.OutcomePending),
	)

	rec := &domain.PredictionRecord{}
	err := row.Scan(&rec.ID, &rec.Sequence, &rec.Class, &rec.Confidence, &rec.Level,
		&rec.Health, &rec.Source, &rec.CreatedAt, &rec.ResolvedAt, &rec.Outcome, &rec.ActualClass)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *PredictionRepository) Recent(ctx context.Context, limit int) ([]domain.PredictionRecord, error) {
	if r.pool == nil {
		return nil, ErrNoDatabase
	}

	_, span := r.tracer.Start(ctx, "prediction-repo.recent")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, sequence, class, confidence, level, health, source, created_at, resolved_at, outcome, actual_class
		 FROM predictions
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PredictionRecord
	for rows.Next() {
		var rec domain.PredictionRecord
		if err := rows.Scan(&rec.ID, &rec.Sequence, &rec.Class, &rec.Confidence, &rec.Level,
			&rec.Health, &rec.Source, &rec.CreatedAt, &rec.ResolvedAt, &rec.Outcome, &rec.ActualClass); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PredictionRepository) OutcomeCounts(ctx context.Context) (map[domain.Outcome]int64, error) {
	if r.pool == nil {
		return nil, ErrNoDatabase
	}

	_, span := r.tracer.Start(ctx, "prediction-repo.outcome-counts")
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT outcome, COUNT(*) FROM predictions GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Outcome]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[domain.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}
