package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"psychic-pancake/internal/advisor"
	"psychic-pancake/internal/anomaly"
	"psychic-pancake/internal/cache"
	"psychic-pancake/internal/config"
	"psychic-pancake/internal/db"
	"psychic-pancake/internal/engine"
	"psychic-pancake/internal/job"
	"psychic-pancake/internal/repository"
	"psychic-pancake/internal/service"
	"psychic-pancake/internal/tui"
	"psychic-pancake/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	gossh "golang.org/x/crypto/ssh"
)

// ctxKey is a typed context key to avoid collisions.
type ctxKey string

const sshUserKey ctxKey = "ssh_user"

var (
	loadEnvFunc              = godotenv.Load
	loadConfigFunc           = config.Load
	initPostgresFunc         = db.InitPostgres
	initRedisFunc            = cache.InitRedis
	initTracerFunc           = tracing.InitTracer
	newDrawRepoFunc          = repository.NewDrawRepository
	newPredictionRepoFunc    = repository.NewPredictionRepository
	newSSHUserRepoFunc       = repository.NewSSHUserRepository
	newConversationRepoFunc  = repository.NewConversationRepository
	newPredictionServiceFunc = service.NewPredictionService
	newOpenAIClientFunc      = advisor.NewOpenAIClient
	newAdvisorServiceFunc    = advisor.NewAdvisorService
	newWishServerFunc        = wish.NewServer
	startAnomalyJobFunc      = func(ctx context.Context, j *job.AnomalyScanJob) { go j.Start(ctx) }
	setupSignalNotify        = ossignal.Notify
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

	// Create repositories
	drawRepo := newDrawRepoFunc(db.Pool, tracer)
	predictionRepo := newPredictionRepoFunc(db.Pool, tracer)
	sshUserRepo := newSSHUserRepoFunc(db.Pool, tracer)
	convRepo := newConversationRepoFunc(db.Pool, tracer)
	if db.Pool != nil {
		if err := sshUserRepo.RunMigrations(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run ssh user migrations")
		}
	}

	// The dashboard reads through its own service instance; the stats
	// snapshot in Redis keeps it aligned with the API process.
	eng := engine.New(tracer, engine.Config{Seed: cfg.EngineSeed, MinHistory: cfg.EngineMinHistory})
	predictionService := newPredictionServiceFunc(tracer, eng, drawRepo, predictionRepo, cache.Client)
	if db.Pool != nil {
		predictionService.RestoreStats(ctx)
	}

	// Anomaly scanner feeds the overview tab
	var scanner *anomaly.Scanner
	if db.Pool != nil {
		scanner = anomaly.NewScanner(tracer, drawRepo, cfg.AnomalyWindow, cfg.AnomalyScoreLimit)
		startAnomalyJobFunc(ctx, job.NewAnomalyScanJob(tracer, scanner, 0))
	}

	// Advisor (optional)
	var advisorSvc *advisor.AdvisorService
	if cfg.OpenAIAPIKey != "" && db.Pool != nil {
		llmClient := newOpenAIClientFunc(cfg.OpenAIAPIKey)
		advisorSvc = newAdvisorServiceFunc(tracer, llmClient, predictionService,
			convRepo, cfg.OpenAIModel, cfg.AdvisorMaxHistory)
		log.Info().Msg("SSH advisor service enabled")
	}

	// Build Wish SSH server
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.SSHPort)

	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			fingerprint := gossh.FingerprintSHA256(key)
			user, err := sshUserRepo.FindByFingerprint(context.Background(), fingerprint)
			if err != nil || user == nil {
				log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("SSH auth denied")
				return false
			}
			ctx.SetValue(sshUserKey, user)
			_ = sshUserRepo.UpdateLastLogin(context.Background(), user.ID)
			log.Info().Str("user", user.Username).Str("fingerprint", fingerprint).Msg("SSH auth accepted")
			return true
		}),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				user, _ := s.Context().Value(sshUserKey).(*repository.SSHUser)

				username := "unknown"
				var userID int64
				if user != nil {
					username = user.Username
					userID = user.ID
				}

				var advisorQ tui.AdvisorQuerier
				if advisorSvc != nil {
					advisorQ = advisorSvc
				}
				var anomalyQ tui.AnomalyQuerier
				if scanner != nil {
					anomalyQ = scanner
				}

				svc := tui.Services{
					Engine:   predictionService,
					Advisor:  advisorQ,
					Anomaly:  anomalyQ,
					UserID:   userID,
					Username: username,
				}

				model := tui.NewAppModel(svc)
				pty, _, _ := s.Pty()
				model.SetSize(pty.Window.Width, pty.Window.Height)

				return model, []tea.ProgramOption{tea.WithAltScreen()}
			}),
			logging.Middleware(),
		),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create SSH server")
	}

	if srv != nil {
		go func() {
			log.Info().Str("addr", addr).Msg("SSH server listening")
			if err := srv.ListenAndServe(); err != nil {
				log.Warn().Err(err).Msg("SSH server stopped")
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("Shutting down SSH server...")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("SSH server shutdown error")
		}
	}

	log.Info().Msg("SSH server exited")
}
