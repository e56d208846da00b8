package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"psychic-pancake/internal/domain"
	"psychic-pancake/internal/engine"

	"github.com/openai/openai-go"
	"go.opentelemetry.io/otel/trace"
)

func TestAskHappyPath(t *testing.T) {
	llm := &stubLLMClient{
		response: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "The engine favors BIG"}},
			},
		},
	}
	store := &stubConvStore{}
	confidence := 0.62
	eng := &stubEngine{
		decision: &domain.Decision{
			Class:      domain.ClassBig,
			Confidence: &confidence,
			Level:      domain.LevelHigh,
			Health:     domain.HealthOK,
			Source:     "model+2/3[streak,gap]",
			DecidedAt:  time.Now().UTC(),
		},
	}

	svc := NewAdvisorService(
		trace.NewNoopTracerProvider().Tracer("test"),
		llm, eng, store, "gpt-4o-mini", 20,
	)

	reply, err := svc.Ask(context.Background(), 123, "What does the engine say?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "The engine favors BIG" {
		t.Fatalf("expected 'The engine favors BIG', got %q", reply)
	}
	// Verify messages were stored (user + assistant)
	if len(store.messages) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(store.messages))
	}
	if store.messages[0].role != "user" {
		t.Fatalf("expected first stored message role=user, got %s", store.messages[0].role)
	}
	if store.messages[1].role != "assistant" {
		t.Fatalf("expected second stored message role=assistant, got %s", store.messages[1].role)
	}
}

func TestAskLLMError(t *testing.T) {
	llm := &stubLLMClient{err: errors.New("api down")}
	store := &stubConvStore{}

	svc := NewAdvisorService(
		trace.NewNoopTracerProvider().Tracer("test"),
		llm, &stubEngine{}, store, "gpt-4o-mini", 20,
	)

	_, err := svc.Ask(context.Background(), 123, "What looks good?")
	if err == nil {
		t.Fatal("expected error from LLM failure")
	}
	// User message should still have been stored
	if len(store.messages) != 1 || store.messages[0].role != "user" {
		t.Fatalf("expected user message to be stored despite LLM error, got %d messages", len(store.messages))
	}
}

func TestAskConversationStoreFailureNonFatal(t *testing.T) {
	llm := &stubLLMClient{
		response: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "response"}},
			},
		},
	}
	store := &stubConvStore{appendErr: errors.New("db down")}

	svc := NewAdvisorService(
		trace.NewNoopTracerProvider().Tracer("test"),
		llm, &stubEngine{}, store, "gpt-4o-mini", 20,
	)

	reply, err := svc.Ask(context.Background(), 123, "test")
	if err != nil {
		t.Fatalf("store failure should be non-fatal, got: %v", err)
	}
	if reply != "response" {
		t.Fatalf("expected 'response', got %q", reply)
	}
}

func TestAskContextGatheringFailure(t *testing.T) {
	llm := &stubLLMClient{
		response: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "no data available"}},
			},
		},
	}
	store := &stubConvStore{}
	eng := &stubEngine{decisionErr: errors.New("cache down")}

	svc := NewAdvisorService(
		trace.NewNoopTracerProvider().Tracer("test"),
		llm, eng, store, "gpt-4o-mini", 20,
	)

	reply, err := svc.Ask(context.Background(), 123, "What looks good?")
	if err != nil {
		t.Fatalf("context failure should be non-fatal, got: %v", err)
	}
	if reply != "no data available" {
		t.Fatalf("expected 'no data available', got %q", reply)
	}
}

func TestExplainStateless(t *testing.T) {
	llm := &stubLLMClient{
		response: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "random fallback, no edge"}},
			},
		},
	}
	store := &stubConvStore{}

	svc := NewAdvisorService(
		trace.NewNoopTracerProvider().Tracer("test"),
		llm, &stubEngine{}, store, "gpt-4o-mini", 20,
	)

	reply, err := svc.Explain(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "random fallback, no edge" {
		t.Fatalf("expected explain reply, got %q", reply)
	}
	if len(store.messages) != 0 {
		t.Fatalf("explain must not touch the conversation store, got %d messages", len(store.messages))
	}
}

func TestAskDefaultMaxHistory(t *testing.T) {
	svc := NewAdvisorService(
		trace.NewNoopTracerProvider().Tracer("test"),
		&stubLLMClient{}, &stubEngine{}, &stubConvStore{},
		"gpt-4o-mini", 0,
	)
	if svc.maxHistory != 20 {
		t.Fatalf("expected default maxHistory=20, got %d", svc.maxHistory)
	}
}

// --- stubs ---

type stubLLMClient struct {
	response *openai.ChatCompletion
	err      error
}

func (s *stubLLMClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return s.response, s.err
}

type storedMsg struct {
	chatID  int64
	role    string
	content string
}

type stubConvStore struct {
	messages  []storedMsg
	appendErr error
	recentErr error
}

func (s *stubConvStore) AppendMessage(ctx context.Context, chatID int64, role, content string) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.messages = append(s.messages, storedMsg{chatID: chatID, role: role, content: content})
	return nil
}

func (s *stubConvStore) RecentMessages(ctx context.Context, chatID int64, limit int) ([]domain.ConversationMessage, error) {
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	// Return stored messages as history (simulates reading back what was appended)
	var msgs []domain.ConversationMessage
	for _, m := range s.messages {
		if m.chatID == chatID {
			msgs = append(msgs, domain.ConversationMessage{
				Role:      m.role,
				Content:   m.content,
				CreatedAt: time.Now(),
			})
		}
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

type stubEngine struct {
	decision    *domain.Decision
	decisionErr error
	stats       domain.EngineStats
	counts      map[domain.Outcome]int64
	draws       []domain.Draw
	telem       engine.Telemetry
}

func (s *stubEngine) LatestDecision(ctx context.Context) (*domain.Decision, error) {
	return s.decision, s.decisionErr
}

func (s *stubEngine) Stats(ctx context.Context) (domain.EngineStats, map[domain.Outcome]int64, error) {
	return s.stats, s.counts, nil
}

func (s *stubEngine) RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error) {
	return s.draws, nil
}

func (s *stubEngine) EngineTelemetry() engine.Telemetry {
	return s.telem
}
