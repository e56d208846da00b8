package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"psychic-pancake/internal/cache"
	"psychic-pancake/internal/config"
	"psychic-pancake/internal/db"
	"psychic-pancake/internal/engine"
	"psychic-pancake/internal/mcpserver"
	"psychic-pancake/internal/repository"
	"psychic-pancake/internal/service"
	"psychic-pancake/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var (
	loadEnvFunc              = godotenv.Load
	loadConfigFunc           = config.Load
	initPostgresFunc         = db.InitPostgres
	initRedisFunc            = cache.InitRedis
	initTracerFunc           = tracing.InitTracer
	newPredictionServiceFunc = service.NewPredictionService
	runStdioFunc             = func(ctx context.Context, s *mcpserver.Server) error { return s.Run(ctx) }
	startHTTPServerFunc      = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc   = func(ctx context.Context, srv *http.Server) error { return srv.Shutdown(ctx) }
	setupSignalNotify        = signal.Notify
	waitForSignalFunc        = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	loadEnvFunc()
	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	// The MCP process reads through its own service instance; the stats
	// snapshot in Redis keeps it aligned with the API process.
	drawRepo := repository.NewDrawRepository(db.Pool, tracer)
	predictionRepo := repository.NewPredictionRepository(db.Pool, tracer)
	eng := engine.New(tracer, engine.Config{Seed: cfg.EngineSeed, MinHistory: cfg.EngineMinHistory})
	predictionService := newPredictionServiceFunc(tracer, eng, drawRepo, predictionRepo, cache.Client)
	if db.Pool != nil {
		predictionService.RestoreStats(ctx)
	}

	srv := mcpserver.New(tracer, predictionService,
		time.Duration(cfg.MCPRequestTimeoutSecs)*time.Second, cfg.MCPRateLimitPerMin)

	switch cfg.MCPTransport {
	case "http":
		httpSrv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.MCPHTTPBind, cfg.MCPHTTPPort),
			Handler: srv.HTTPHandler(cfg.MCPAuthToken),
		}
		go func() {
			log.Info().Str("addr", httpSrv.Addr).Msg("MCP HTTP server listening")
			if err := startHTTPServerFunc(httpSrv); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("mcp listen failed")
			}
		}()

		quit := make(chan os.Signal, 1)
		setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
		waitForSignalFunc(quit)
		log.Info().Msg("Shutting down MCP server...")

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownHTTPServerFunc(shutdownCtx, httpSrv); err != nil {
			log.Fatal().Err(err).Msg("MCP server forced to shutdown")
		}
	default:
		// stdio: log to stderr only, stdout carries the protocol
		go func() {
			quit := make(chan os.Signal, 1)
			setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
			waitForSignalFunc(quit)
			cancel()
		}()
		if err := runStdioFunc(ctx, srv); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("mcp stdio server failed")
		}
	}

	log.Info().Msg("MCP server exiting")
}
