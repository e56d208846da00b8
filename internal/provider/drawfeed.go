package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"psychic-pancake/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/trace"
)

// DrawFeedProvider pulls BIG/SMALL draw results from an upstream HTTP feed.
type DrawFeedProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewDrawFeedProvider creates a provider with built-in rate limiting.
// Rate limited to 10 requests per minute (one token every 6 seconds).
func NewDrawFeedProvider(baseURL string, tracer trace.Tracer) *DrawFeedProvider {
	return &DrawFeedProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		tracer:  tracer,
		limiter: NewRateLimiter(10, 6*time.Second),
	}
}

type drawFeedEntry struct {
	Sequence int64     `json:"sequence"`
	Number   float64   `json:"number"`
	DrawnAt  time.Time `json:"drawn_at"`
}

type drawFeedResponse struct {
	Draws []drawFeedEntry `json:"draws"`
}

// FetchDraws returns up to limit draws with sequence greater than afterSeq,
// newest first. The feed only reports the raw number; the class is derived
// locally so a feed glitch cannot ship a contradictory label.
func (p *DrawFeedProvider) FetchDraws(ctx context.Context, afterSeq int64, limit int) ([]domain.Draw, error) {
	_, span := p.tracer.Start(ctx, "drawfeed.fetch-draws")
	defer span.End()

	url := fmt.Sprintf("%s/draws?after=%d&limit=%d", p.baseURL, afterSeq, limit)

	body, err := p.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch draws: %w", err)
	}

	var raw drawFeedResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse draws: %w", err)
	}

	draws := make([]domain.Draw, 0, len(raw.Draws))
	for _, e := range raw.Draws {
		draws = append(draws, domain.Draw{
			Sequence: e.Sequence,
			Number:   e.Number,
			Class:    domain.ClassOf(e.Number),
			Status:   domain.OutcomePending,
			DrawnAt:  e.DrawnAt.UTC(),
		})
	}
	return draws, nil
}

func (p *DrawFeedProvider) doRequest(ctx context.Context, url string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(resp.Body)
			err := fmt.Errorf("draw feed error %d: %s", resp.StatusCode, string(data))
			if resp.StatusCode >= http.StatusInternalServerError {
				return err
			}
			return backoff.Permanent(err)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = 20 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
