package advisor

import (
	"context"
	"fmt"

	"psychic-pancake/internal/domain"
	"psychic-pancake/internal/engine"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// recentContextDraws bounds how many draws the prompt carries. More adds
// token cost without changing what the model can usefully say.
const recentContextDraws = 10

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// EngineQuerier provides the prediction state the advisor explains.
type EngineQuerier interface {
	LatestDecision(ctx context.Context) (*domain.Decision, error)
	Stats(ctx context.Context) (domain.EngineStats, map[domain.Outcome]int64, error)
	RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error)
	EngineTelemetry() engine.Telemetry
}

// ConversationStore persists and retrieves conversation messages.
type ConversationStore interface {
	AppendMessage(ctx context.Context, chatID int64, role, content string) error
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]domain.ConversationMessage, error)
}

type AdvisorService struct {
	tracer     trace.Tracer
	llm        LLMClient
	engine     EngineQuerier
	convStore  ConversationStore
	model      string
	maxHistory int
}

func NewAdvisorService(
	tracer trace.Tracer,
	llm LLMClient,
	engine EngineQuerier,
	convStore ConversationStore,
	model string,
	maxHistory int,
) *AdvisorService {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &AdvisorService{
		tracer:     tracer,
		llm:        llm,
		engine:     engine,
		convStore:  convStore,
		model:      model,
		maxHistory: maxHistory,
	}
}

func (s *AdvisorService) Ask(ctx context.Context, chatID int64, userMessage string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.ask")
	defer span.End()
	span.SetAttributes(attribute.Int64("chat_id", chatID))

	// 1. Persist the user message
	if err := s.convStore.AppendMessage(ctx, chatID, "user", userMessage); err != nil {
		log.Warn().Err(err).Msg("failed to store user message")
	}

	// 2. Gather engine context
	engineContext, err := s.gatherContext(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to gather engine context")
		engineContext = "Engine state temporarily unavailable."
	}

	// 3. Build system prompt with live data
	systemPrompt := BuildSystemPrompt(engineContext)

	// 4. Load conversation history
	history, err := s.convStore.RecentMessages(ctx, chatID, s.maxHistory)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load conversation history")
		history = nil
	}

	// 5. Construct messages array
	messages := s.buildMessages(systemPrompt, history)

	// 6. Call LLM
	reply, err := s.callLLM(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("advisor unavailable: %w", err)
	}

	// 7. Persist the assistant reply
	if err := s.convStore.AppendMessage(ctx, chatID, "assistant", reply); err != nil {
		log.Warn().Err(err).Msg("failed to store assistant reply")
	}

	return reply, nil
}

// Explain produces a one-shot narration of the current decision. No
// conversation is read or written, so it is safe for unauthenticated
// HTTP callers.
func (s *AdvisorService) Explain(ctx context.Context) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.explain")
	defer span.End()

	engineContext, err := s.gatherContext(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to gather engine context")
		engineContext = "Engine state temporarily unavailable."
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(BuildSystemPrompt(engineContext)),
		openai.UserMessage("Explain the current prediction and the engine state behind it."),
	}

	reply, err := s.callLLM(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("advisor unavailable: %w", err)
	}
	return reply, nil
}

func (s *AdvisorService) gatherContext(ctx context.Context) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.gather-context")
	defer span.End()

	decision, err := s.engine.LatestDecision(ctx)
	if err != nil {
		return "", err
	}

	stats, counts, err := s.engine.Stats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load outcome counts for advisor")
		counts = nil
	}

	draws, err := s.engine.RecentDraws(ctx, recentContextDraws)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load recent draws for advisor")
		draws = nil
	}

	return FormatEngineContext(decision, stats, counts, draws, s.engine.EngineTelemetry()), nil
}

func (s *AdvisorService) buildMessages(
	systemPrompt string,
	history []domain.ConversationMessage,
) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)

	// System prompt always first
	messages = append(messages, openai.SystemMessage(systemPrompt))

	// Conversation history (already limited by RecentMessages query)
	for _, msg := range history {
		switch msg.Role {
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	return messages
}

func (s *AdvisorService) callLLM(
	ctx context.Context,
	messages []openai.ChatCompletionMessageParamUnion,
) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.llm-call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", s.model),
		attribute.Int("llm.message_count", len(messages)),
	)

	completion, err := s.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	reply := completion.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("llm.reply_length", len(reply)))
	return reply, nil
}

// openaiClient wraps the official SDK's chat completions service.
type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
