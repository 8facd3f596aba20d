package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/chatform/backend/internal/config"
	"github.com/chatform/backend/internal/model/form"
)

// Turn failures the transport layer translates into user-facing guidance.
// The gateway never retries on its own.
var (
	ErrQuotaExceeded   = errors.New("ai quota exceeded")
	ErrContentRejected = errors.New("ai safety filter rejected the message")
)

// Service wraps the Ark chat model behind a form-extraction conversation
// contract: every turn is expected to come back as a JSON envelope holding
// the assistant's message plus the fields it extracted from the user's text.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the chat model and compiles the turn chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile turn chain: %w", err)
	}

	return &Service{chatModel: chatModel, chain: runnable}, nil
}

// Conversation is the opaque per-session handle: the extraction prompt plus
// the running message history. A conversation belongs to exactly one session
// and is discarded with it.
type Conversation struct {
	systemPrompt string
	history      []*schema.Message
}

// CreateConversation builds a handle configured for the given schema. The
// history is pre-seeded with a fixed greeting turn pair that demonstrates
// the response envelope to the model; the greeting text is returned so the
// caller can show it as the session's opening message.
func (s *Service) CreateConversation(_ context.Context, formSchema form.Schema) (*Conversation, string, error) {
	conv := &Conversation{
		systemPrompt: buildExtractionPrompt(formSchema),
		history: []*schema.Message{
			schema.UserMessage(seedUserTurn),
			schema.AssistantMessage(seedAssistantTurn, nil),
		},
	}
	return conv, greetingMessage, nil
}

// Turn sends one user message over the conversation and decodes the reply.
// An undecodable payload degrades to an apology with no extracted fields
// rather than failing the turn.
func (s *Service) Turn(ctx context.Context, conv *Conversation, message string) (form.RawTurnResult, error) {
	query := strings.TrimSpace(message)

	input := map[string]any{
		"system":  conv.systemPrompt,
		"history": conv.history,
		"query":   query,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return form.RawTurnResult{}, classifyTurnError(err)
	}

	conv.history = append(conv.history,
		schema.UserMessage(query),
		schema.AssistantMessage(response.Content, nil),
	)

	result := decodeTurnPayload(response.Content)
	if result.Structured != nil {
		normalizeURLFields(result.Structured)
	}

	log.Printf("[gateway] turn complete, history=%d, length=%d", len(conv.history), len(response.Content))
	return result, nil
}

// Probe runs a throwaway turn against the model to verify the backend is
// reachable. Used by the AI health endpoint.
func (s *Service) Probe(ctx context.Context) error {
	conv, _, err := s.CreateConversation(ctx, form.Schema{"name": "string"})
	if err != nil {
		return err
	}
	if _, err := s.Turn(ctx, conv, "ping"); err != nil {
		return err
	}
	return nil
}

// classifyTurnError maps provider failures onto the error taxonomy exposed
// to clients. Matching is by message content since the Ark SDK does not
// export typed errors for these cases.
func classifyTurnError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return ErrQuotaExceeded
	case strings.Contains(msg, "safety"), strings.Contains(msg, "content filter"), strings.Contains(msg, "sensitive"):
		return ErrContentRejected
	default:
		return fmt.Errorf("ai turn failed: %w", err)
	}
}
