package advisor

import (
	"fmt"
	"strings"
	"time"

	"psychic-pancake/internal/domain"
	"psychic-pancake/internal/engine"
)

const analystPhilosophy = `You are the analyst bot for a BIG/SMALL draw prediction engine. Your role is to interpret the engine's output and state, NOT to invent predictions of your own.

Confidence Framework:
- Below 0.30: weak edge, barely better than a coin flip. Treat as informational.
- 0.30 to 0.55: moderate edge. The engine stays at commitment level 0 here.
- Above 0.55: strong edge. Only here does the engine raise commitment level to 1.

Rules:
- Always reference the engine data you were given. Never fabricate numbers.
- Health DEFENSIVE_MODE means a losing streak was detected and confidence was scaled down by 0.7; predictions in this mode cool down instead of scoring. Say so when present.
- Health INSUFFICIENT_HISTORY and MODEL_UNCERTAIN mark random fallback picks. Present them as such rather than rationalizing them.
- The sentiment figure is a simulated internal pool, not real market data. Never present it as an external signal.
- The source field shows advisory agreement, e.g. model+2/3 means two of three advisories backed the model's class.
- When asked about performance, use the win and loss tallies, not anecdotes.
- Keep responses concise. You are talking via Telegram.
- Do not add gambling disclaimers to every message. The user understands this is informational.`

func BuildSystemPrompt(engineContext string) string {
	var sb strings.Builder
	sb.WriteString(analystPhilosophy)
	sb.WriteString("\n\n--- LIVE ENGINE STATE (as of ")
	sb.WriteString(time.Now().UTC().Format(time.RFC822))
	sb.WriteString(") ---\n")
	sb.WriteString(engineContext)
	return sb.String()
}

func FormatEngineContext(
	decision *domain.Decision,
	stats domain.EngineStats,
	counts map[domain.Outcome]int64,
	draws []domain.Draw,
	telem engine.Telemetry,
) string {
	if decision == nil && stats.ResolvedCount == 0 && len(draws) == 0 {
		return "No prediction data currently available."
	}

	var sb strings.Builder

	if decision != nil {
		confidence := "n/a"
		if decision.Confidence != nil {
			confidence = fmt.Sprintf("%.3f", *decision.Confidence)
		}
		sb.WriteString("\nCurrent Prediction:\n")
		sb.WriteString(fmt.Sprintf("  %s confidence=%s level=%d health=%s source=%s decided=%s\n",
			decision.Class, confidence, decision.Level, decision.Health,
			decision.Source, decision.DecidedAt.UTC().Format(time.RFC822)))
	}

	if stats.ResolvedCount > 0 || len(counts) > 0 {
		sb.WriteString("\nTrack Record:\n")
		sb.WriteString(fmt.Sprintf("  wins=%d resolved=%d", stats.WinCount, stats.ResolvedCount))
		if accuracy, ok := stats.LongTermAccuracy(); ok {
			sb.WriteString(fmt.Sprintf(" accuracy=%.1f%%", accuracy*100))
		}
		sb.WriteString("\n")
		for _, outcome := range []domain.Outcome{domain.OutcomeWin, domain.OutcomeLoss, domain.OutcomeCooldown, domain.OutcomePending} {
			if n, ok := counts[outcome]; ok {
				sb.WriteString(fmt.Sprintf("  %s: %d\n", outcome, n))
			}
		}
	}

	if len(draws) > 0 {
		sb.WriteString("\nRecent Draws (newest first):\n")
		for _, d := range draws {
			sb.WriteString(fmt.Sprintf("  seq %d: %g %s (%s)\n", d.Sequence, d.Number, d.Class, d.Status))
		}
	}

	sb.WriteString("\nEngine Internals:\n")
	sb.WriteString(fmt.Sprintf("  defensive=%t trend_threshold=%.2f sentiment=%+.2f over %d events trades_tracked=%d\n",
		telem.Defensive, telem.BadTrendLimit, telem.Sentiment, telem.SentimentEvents, telem.TradeCount))
	sb.WriteString("  weights:")
	for _, key := range domain.FeatureKeys {
		sb.WriteString(fmt.Sprintf(" %s=%.3f", key, telem.Weights[key]))
	}
	sb.WriteString("\n")

	return sb.String()
}
