package db

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var Pool *pgxpool.Pool

var (
	newPool  = pgxpool.New
	pingPool = func(ctx context.Context, pool *pgxpool.Pool) error {
		return pool.Ping(ctx)
	}
)

func InitPostgres(ctx context.Context) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL not set, persistence disabled")
		return
	}

	pool, err := newPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open Postgres pool")
	}
	if err := pingPool(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Postgres")
	}

	Pool = pool
	log.Info().Msg("Connected to Postgres")
}
