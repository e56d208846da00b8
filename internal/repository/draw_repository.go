package repository

import (
	"context"
	"errors"

	"psychic-pancake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoDatabase is returned by every repository method when the process
// runs without a configured database.
var ErrNoDatabase = errors.New("repository: persistence disabled")

const createDrawsTable = `
CREATE TABLE IF NOT EXISTS draws (
    sequence  BIGINT      PRIMARY KEY,
    number    NUMERIC     NOT NULL,
    class     TEXT        NOT NULL,
    status    TEXT        NOT NULL DEFAULT 'Pending',
    drawn_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_draws_drawn_at
    ON draws (drawn_at DESC);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DrawRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewDrawRepository(pool PgxPool, tracer trace.Tracer) *DrawRepository {
	return &DrawRepository{pool: normalizePool(pool), tracer: tracer}
}

// normalizePool maps a nil *pgxpool.Pool arriving through the interface
// to a plain nil, keeping the pool == nil guards meaningful when
// persistence is disabled.
func normalizePool(pool PgxPool) PgxPool {
	if p, ok := pool.(*pgxpool.Pool); ok && p == nil {
		return nil
	}
	return pool
}

func (r *DrawRepository) RunMigrations(ctx context.Context) error {
	if r.pool == nil {
		return ErrNoDatabase
	}

	_, span := r.tracer.Start(ctx, "draw-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createDrawsTable)
	return err
}

func (r *DrawRepository) UpsertDraws(ctx context.Context, draws []domain.Draw) error {
	if len(draws) == 0 {
		return nil
	}
	if r.pool == nil {
		return ErrNoDatabase
	}

	_, span := r.tracer.Start(ctx, "draw-repo.upsert-draws")
	defer span.End()

	batch := &pgx.Batch{}
	for _, d := range draws {
		batch.Queue(
			`INSERT INTO draws (sequence, number, class, status, drawn_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (sequence) DO UPDATE SET
			     number = EXCLUDED.number,
			     class = EXCLUDED.class,
			     status = EXCLUDED.status,
			     drawn_at = EXCLUDED.drawn_at`,
			d.Sequence, d.Number, string(d.Class), string(d.Status), d.DrawnAt,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range draws {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// RecentDraws returns up to limit draws ordered newest-first by sequence.
func (r *DrawRepository) RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error) {
	if r.pool == nil {
		return nil, ErrNoDatabase
	}

	_, span := r.tracer.Start(ctx, "draw-repo.recent-draws")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT sequence, number, class, status, drawn_at
		 FROM draws
		 ORDER BY sequence DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var draws []domain.Draw
	for rows.Next() {
		var d domain.Draw
		if err := rows.Scan(&d.Sequence, &d.Number, &d.Class, &d.Status, &d.DrawnAt); err != nil {
			return nil, err
		}
		draws = append(draws, d)
	}
	return draws, rows.Err()
}

func (r *DrawRepository) LatestSequence(ctx context.Context) (int64, error) {
	if r.pool == nil {
		return 0, ErrNoDatabase
	}

	_, span := r.tracer.Start(ctx, "draw-repo.latest-sequence")
	defer span.End()

	var seq int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM draws`).Scan(&seq)
	return seq, err
}

// SetStatus records the graded outcome of the wager placed on a draw.
func (r *DrawRepository) SetStatus(ctx context.Context, sequence int64, status domain.Outcome) error {
	if r.pool == nil {
		return ErrNoDatabase
	}

	_, span := r.tracer.Start(ctx, "draw-repo.set-status")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE draws SET status = $2 WHERE sequence = $1`,
		sequence, string(status),
	)
	return err
}
