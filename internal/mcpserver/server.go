package mcpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"psychic-pancake/internal/domain"
	"psychic-pancake/internal/engine"
	"psychic-pancake/internal/provider"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/trace"
)

// PredictionQuerier is the slice of the prediction service exposed as
// MCP tools.
type PredictionQuerier interface {
	LatestDecision(ctx context.Context) (*domain.Decision, error)
	Stats(ctx context.Context) (domain.EngineStats, map[domain.Outcome]int64, error)
	RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error)
	RecentPredictions(ctx context.Context, limit int) ([]domain.PredictionRecord, error)
	EngineTelemetry() engine.Telemetry
}

// Server wraps an MCP server exposing the prediction engine to agent
// clients over stdio or streamable HTTP.
type Server struct {
	tracer      trace.Tracer
	predictions PredictionQuerier
	limiter     *provider.RateLimiter
	timeout     time.Duration
	mcp         *mcp.Server
}

func New(tracer trace.Tracer, predictions PredictionQuerier, requestTimeout time.Duration, ratePerMin int) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}

	s := &Server{
		tracer:      tracer,
		predictions: predictions,
		timeout:     requestTimeout,
	}
	if ratePerMin > 0 {
		s.limiter = provider.NewRateLimiter(ratePerMin, time.Minute/time.Duration(ratePerMin))
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "psychic-pancake", Version: "1.0.0"}, nil)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "latest_prediction",
		Description: "Get the engine's current BIG/SMALL prediction for the next draw",
	}, s.latestPrediction)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "engine_stats",
		Description: "Get win/loss counters, outcome tallies, and adaptive engine telemetry",
	}, s.engineStats)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "recent_draws",
		Description: "List recent draw results, newest first",
	}, s.recentDraws)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "prediction_history",
		Description: "List recent predictions with their resolved outcomes, newest first",
	}, s.predictionHistory)
	s.mcp = srv

	return s
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns the streamable HTTP mount. A non-empty authToken
// requires Bearer authentication.
func (s *Server) HTTPHandler(authToken string) http.Handler {
	inner := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	if authToken == "" {
		return inner
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(authToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		inner.ServeHTTP(w, r)
	})
}

// begin applies the per-call timeout and rate limit shared by every tool.
func (s *Server) begin(ctx context.Context, op string) (context.Context, context.CancelFunc, error) {
	ctx, span := s.tracer.Start(ctx, op)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	stop := func() {
		cancel()
		span.End()
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			stop()
			return nil, nil, fmt.Errorf("rate limit exceeded: %w", err)
		}
	}
	return ctx, stop, nil
}

type noArgs struct{}

type limitArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of entries to return"`
}

type predictionOutput struct {
	Decision domain.Decision `json:"decision"`
}

type statsOutput struct {
	Wins      int                      `json:"wins"`
	Resolved  int                      `json:"resolved"`
	Accuracy  *float64                 `json:"accuracy,omitempty"`
	Outcomes  map[domain.Outcome]int64 `json:"outcomes,omitempty"`
	Telemetry engine.Telemetry         `json:"telemetry"`
}

type drawsOutput struct {
	Draws []domain.Draw `json:"draws"`
}

type historyOutput struct {
	Predictions []domain.PredictionRecord `json:"predictions"`
}

func (s *Server) latestPrediction(ctx context.Context, req *mcp.CallToolRequest, _ noArgs) (*mcp.CallToolResult, predictionOutput, error) {
	ctx, stop, err := s.begin(ctx, "mcp.latest-prediction")
	if err != nil {
		return nil, predictionOutput{}, err
	}
	defer stop()

	decision, err := s.predictions.LatestDecision(ctx)
	if err != nil {
		return nil, predictionOutput{}, err
	}
	if decision == nil {
		return nil, predictionOutput{}, errors.New("no prediction available yet")
	}
	return nil, predictionOutput{Decision: *decision}, nil
}

func (s *Server) engineStats(ctx context.Context, req *mcp.CallToolRequest, _ noArgs) (*mcp.CallToolResult, statsOutput, error) {
	ctx, stop, err := s.begin(ctx, "mcp.engine-stats")
	if err != nil {
		return nil, statsOutput{}, err
	}
	defer stop()

	stats, counts, err := s.predictions.Stats(ctx)
	if err != nil {
		return nil, statsOutput{}, err
	}
	out := statsOutput{
		Wins:      stats.WinCount,
		Resolved:  stats.ResolvedCount,
		Outcomes:  counts,
		Telemetry: s.predictions.EngineTelemetry(),
	}
	if accuracy, ok := stats.LongTermAccuracy(); ok {
		out.Accuracy = &accuracy
	}
	return nil, out, nil
}

func (s *Server) recentDraws(ctx context.Context, req *mcp.CallToolRequest, args limitArgs) (*mcp.CallToolResult, drawsOutput, error) {
	ctx, stop, err := s.begin(ctx, "mcp.recent-draws")
	if err != nil {
		return nil, drawsOutput{}, err
	}
	defer stop()

	limit := args.Limit
	if limit <= 0 || limit > domain.HistoryCap {
		limit = 20
	}
	draws, err := s.predictions.RecentDraws(ctx, limit)
	if err != nil {
		return nil, drawsOutput{}, err
	}
	return nil, drawsOutput{Draws: draws}, nil
}

func (s *Server) predictionHistory(ctx context.Context, req *mcp.CallToolRequest, args limitArgs) (*mcp.CallToolResult, historyOutput, error) {
	ctx, stop, err := s.begin(ctx, "mcp.prediction-history")
	if err != nil {
		return nil, historyOutput{}, err
	}
	defer stop()

	limit := args.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	records, err := s.predictions.RecentPredictions(ctx, limit)
	if err != nil {
		return nil, historyOutput{}, err
	}
	return nil, historyOutput{Predictions: records}, nil
}
