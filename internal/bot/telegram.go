package bot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"psychic-pancake/internal/domain"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// PredictionQuerier is the slice of the prediction service the bot needs.
type PredictionQuerier interface {
	LatestDecision(ctx context.Context) (*domain.Decision, error)
	Stats(ctx context.Context) (domain.EngineStats, map[domain.Outcome]int64, error)
	RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error)
}

// Advisor answers free-form questions about the engine state.
type Advisor interface {
	Ask(ctx context.Context, chatID int64, message string) (string, error)
	Explain(ctx context.Context) (string, error)
}

func StartTelegramBot(predictions PredictionQuerier, advisor Advisor) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Info().Msg("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Telegram bot")
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/predict", func(c tele.Context) error {
		decision, err := predictions.LatestDecision(context.Background())
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching prediction: %v", err))
		}
		if decision == nil {
			return c.Send("No prediction yet. Waiting for draws.")
		}
		return c.Send(formatDecision(decision))
	})

	b.Handle("/stats", func(c tele.Context) error {
		stats, counts, err := predictions.Stats(context.Background())
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching stats: %v", err))
		}
		return c.Send(formatStats(stats, counts))
	})

	b.Handle("/draws", func(c tele.Context) error {
		draws, err := predictions.RecentDraws(context.Background(), 10)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching draws: %v", err))
		}
		if len(draws) == 0 {
			return c.Send("No draws recorded yet.")
		}
		return c.Send(formatDraws(draws))
	})

	b.Handle("/explain", func(c tele.Context) error {
		if advisor == nil {
			return c.Send("Advisor is not configured.")
		}
		reply, err := advisor.Explain(context.Background())
		if err != nil {
			return c.Send(fmt.Sprintf("Advisor error: %v", err))
		}
		return c.Send(reply)
	})

	b.Handle(tele.OnText, func(c tele.Context) error {
		if advisor == nil {
			return c.Send("Advisor is not configured. Try /predict, /stats, or /draws.")
		}
		reply, err := advisor.Ask(context.Background(), c.Chat().ID, c.Text())
		if err != nil {
			return c.Send(fmt.Sprintf("Advisor error: %v", err))
		}
		return c.Send(reply)
	})

	log.Info().Msg("Telegram bot started")
	go b.Start()
}

func formatDecision(d *domain.Decision) string {
	confidence := "n/a"
	if d.Confidence != nil {
		confidence = fmt.Sprintf("%.1f%%", *d.Confidence*100)
	}
	return fmt.Sprintf(
		"Next draw: %s\nConfidence: %s\nLevel: %d\nHealth: %s\nSource: %s",
		d.Class, confidence, d.Level, d.Health, d.Source,
	)
}

func formatStats(stats domain.EngineStats, counts map[domain.Outcome]int64) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Wins: %d / %d resolved", stats.WinCount, stats.ResolvedCount))
	if accuracy, ok := stats.LongTermAccuracy(); ok {
		sb.WriteString(fmt.Sprintf(" (%.1f%%)", accuracy*100))
	}
	for _, outcome := range []domain.Outcome{domain.OutcomeWin, domain.OutcomeLoss, domain.OutcomeCooldown, domain.OutcomePending} {
		if n, ok := counts[outcome]; ok {
			sb.WriteString(fmt.Sprintf("\n%s: %d", outcome, n))
		}
	}
	return sb.String()
}

func formatDraws(draws []domain.Draw) string {
	var sb strings.Builder
	sb.WriteString("Recent draws (newest first):")
	for _, d := range draws {
		sb.WriteString(fmt.Sprintf("\n#%d  %g  %s  %s", d.Sequence, d.Number, d.Class, d.Status))
	}
	return sb.String()
}
