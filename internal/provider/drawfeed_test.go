package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"psychic-pancake/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestDrawFeedFetchDraws(t *testing.T) {
	t.Parallel()

	provider := NewDrawFeedProvider("http://example", trace.NewNoopTracerProvider().Tracer("test"))
	provider.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if !strings.Contains(req.URL.Path, "/draws") {
				t.Fatalf("unexpected path: %s", req.URL.Path)
			}
			if req.URL.Query().Get("after") != "100" || req.URL.Query().Get("limit") != "2" {
				t.Fatalf("unexpected query: %s", req.URL.RawQuery)
			}
			resp := drawFeedResponse{Draws: []drawFeedEntry{
				{Sequence: 102, Number: 7, DrawnAt: time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC)},
				{Sequence: 101, Number: 3, DrawnAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
			}}
			data, _ := json.Marshal(resp)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewReader(data)),
				Header:     make(http.Header),
			}, nil
		}),
	}
	provider.limiter = NewRateLimiter(10, time.Millisecond)

	draws, err := provider.FetchDraws(context.Background(), 100, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(draws) != 2 {
		t.Fatalf("expected 2 draws, got %d", len(draws))
	}
	if draws[0].Sequence != 102 || draws[0].Class != domain.ClassBig {
		t.Fatalf("expected newest draw classed BIG, got %+v", draws[0])
	}
	if draws[1].Class != domain.ClassSmall {
		t.Fatalf("expected second draw classed SMALL, got %+v", draws[1])
	}
	if draws[0].Status != domain.OutcomePending {
		t.Fatalf("fetched draws should start pending, got %s", draws[0].Status)
	}
}

func TestDrawFeedRetriesServerErrors(t *testing.T) {
	t.Parallel()

	provider := NewDrawFeedProvider("http://example", trace.NewNoopTracerProvider().Tracer("test"))
	attempts := 0
	provider.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			attempts++
			if attempts == 1 {
				return &http.Response{
					StatusCode: http.StatusBadGateway,
					Body:       io.NopCloser(strings.NewReader("upstream down")),
					Header:     make(http.Header),
				}, nil
			}
			data, _ := json.Marshal(drawFeedResponse{})
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewReader(data)),
				Header:     make(http.Header),
			}, nil
		}),
	}
	provider.limiter = NewRateLimiter(10, time.Millisecond)

	if _, err := provider.FetchDraws(context.Background(), 0, 10); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestDrawFeedClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	provider := NewDrawFeedProvider("http://example", trace.NewNoopTracerProvider().Tracer("test"))
	attempts := 0
	provider.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			attempts++
			return &http.Response{
				StatusCode: http.StatusNotFound,
				Body:       io.NopCloser(strings.NewReader("no such feed")),
				Header:     make(http.Header),
			}, nil
		}),
	}
	provider.limiter = NewRateLimiter(10, time.Millisecond)

	if _, err := provider.FetchDraws(context.Background(), 0, 10); err == nil {
		t.Fatal("expected error for 404 response")
	}
	if attempts != 1 {
		t.Fatalf("client errors should not be retried, got %d attempts", attempts)
	}
}
