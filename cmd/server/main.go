package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"psychic-pancake/internal/advisor"
	"psychic-pancake/internal/anomaly"
	"psychic-pancake/internal/bot"
	"psychic-pancake/internal/cache"
	"psychic-pancake/internal/config"
	"psychic-pancake/internal/db"
	"psychic-pancake/internal/engine"
	"psychic-pancake/internal/handler"
	"psychic-pancake/internal/job"
	"psychic-pancake/internal/mcpserver"
	"psychic-pancake/internal/provider"
	"psychic-pancake/internal/repository"
	"psychic-pancake/internal/service"
	"psychic-pancake/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "psychic-pancake/docs"
)

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	newDrawFeedFunc  = func(baseURL string, tracer trace.Tracer) job.DrawFetcher {
		return provider.NewDrawFeedProvider(baseURL, tracer)
	}
	newPredictionServiceFunc = service.NewPredictionService
	newDrawPollerFunc        = job.NewDrawPoller
	startPollerFunc          = func(ctx context.Context, p *job.DrawPoller) { go p.Start(ctx) }
	startAnomalyJobFunc      = func(ctx context.Context, j *job.AnomalyScanJob) { go j.Start(ctx) }
	startTelegramBotFunc     = bot.StartTelegramBot
	newHandlerFunc           = handler.New
	newRouterFunc            = gin.Default
	setupSignalNotify        = signal.Notify
	waitForSignalFunc        = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc      = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc   = func(ctx context.Context, srv *http.Server) error { return srv.Shutdown(ctx) }
)

// @title           Psychic Pancake API
// @version         1.0
// @description     BIG/SMALL draw prediction engine with OpenTelemetry tracing.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey ApiKeyAuth
// @in   header
// @name X-API-Key
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

	// Create repositories and run migrations
	drawRepo := repository.NewDrawRepository(db.Pool, tracer)
	predictionRepo := repository.NewPredictionRepository(db.Pool, tracer)
	conversationRepo := repository.NewConversationRepository(db.Pool, tracer)
	if db.Pool != nil {
		if err := drawRepo.RunMigrations(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run draw migrations")
		}
		if err := predictionRepo.RunMigrations(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run prediction migrations")
		}
		if err := conversationRepo.RunMigrations(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run conversation migrations")
		}
	}

	// Create the engine and prediction service
	eng := engine.New(tracer, engine.Config{Seed: cfg.EngineSeed, MinHistory: cfg.EngineMinHistory})
	predictionService := newPredictionServiceFunc(tracer, eng, drawRepo, predictionRepo, cache.Client)
	if db.Pool != nil {
		predictionService.RestoreStats(ctx)
	}

	// Start draw poller (background goroutine, stopped by ctx cancel)
	var feed job.DrawFetcher
	if cfg.DrawFeedURL != "" {
		feed = newDrawFeedFunc(cfg.DrawFeedURL, tracer)
	}
	poller := newDrawPollerFunc(tracer, feed, predictionService, cfg.DrawPollSecs)
	startPollerFunc(ctx, poller)

	// Start anomaly scanner over the draw window
	var scanner *anomaly.Scanner
	if db.Pool != nil {
		scanner = anomaly.NewScanner(tracer, drawRepo, cfg.AnomalyWindow, cfg.AnomalyScoreLimit)
		startAnomalyJobFunc(ctx, job.NewAnomalyScanJob(tracer, scanner, 0))
	}

	// LLM advisor needs both an API key and conversation persistence
	var advisorService *advisor.AdvisorService
	if cfg.OpenAIAPIKey != "" && db.Pool != nil {
		llm := advisor.NewOpenAIClient(cfg.OpenAIAPIKey)
		advisorService = advisor.NewAdvisorService(tracer, llm, predictionService, conversationRepo, cfg.OpenAIModel, cfg.AdvisorMaxHistory)
	}

	// Start Telegram bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	var botAdvisor bot.Advisor
	if advisorService != nil {
		botAdvisor = advisorService
	}
	startTelegramBotFunc(predictionService, botAdvisor)

	// Create handlers and routes
	h := newHandlerFunc(tracer, predictionService, cfg.APIAuthKey)
	if advisorService != nil {
		h.SetExplainer(advisorService)
	}
	if scanner != nil {
		h.SetAnomalyScanner(scanner)
	}
	if cfg.APIRateLimitPerMin > 0 {
		h.SetRateLimiter(provider.NewRateLimiter(cfg.APIRateLimitPerMin, time.Minute/time.Duration(cfg.APIRateLimitPerMin)))
	}

	r := newRouterFunc()
	r.Use(otelgin.Middleware("psychic-pancake"))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	// Optional MCP mount on its own listener
	var mcpHTTP *http.Server
	if cfg.MCPHTTPEnabled {
		mcpSrv := mcpserver.New(tracer, predictionService,
			time.Duration(cfg.MCPRequestTimeoutSecs)*time.Second, cfg.MCPRateLimitPerMin)
		mcpHTTP = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.MCPHTTPBind, cfg.MCPHTTPPort),
			Handler: mcpSrv.HTTPHandler(cfg.MCPAuthToken),
		}
		log.Info().Str("addr", mcpHTTP.Addr).Msg("MCP HTTP listener starting")
		go func() {
			if err := startHTTPServerFunc(mcpHTTP); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("mcp listen failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if mcpHTTP != nil {
		if err := shutdownHTTPServerFunc(shutdownCtx, mcpHTTP); err != nil {
			log.Error().Err(err).Msg("MCP server forced to shutdown")
		}
	}
	if err := shutdownHTTPServerFunc(shutdownCtx, srv); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
