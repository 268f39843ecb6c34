package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/gateway"
)

const (
	defaultMaxPromptLen    = 1000
	maxConversationIDLen   = 128
	defaultChatMaxTokens   = 100
	defaultChatTemperature = 0.2
)

// ThreadStore maps a conversation id to the provider thread that continues it.
type ThreadStore interface {
	LastThreadID(conversationID string) string
	SetLastThreadID(conversationID, threadID string)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ChatConfig struct {
	Model           string
	Instructions    string
	MaxOutputTokens int
	Temperature     *float64 // nil means defaultChatTemperature; 0 is honored
	MaxPromptLen    int
}

// ChatService runs one chatbot turn at a time. Concurrent turns on the same
// conversation id are not ordered; the last successful one wins the thread.
type ChatService struct {
	gen     gateway.Generator
	threads ThreadStore
	cfg     ChatConfig
}

type ChatInput struct {
	Prompt         string
	ConversationID string
}

type ChatOutput struct {
	Message        string
	ConversationID string
}

func NewChatService(gen gateway.Generator, threads ThreadStore, cfg ChatConfig) (*ChatService, error) {
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if threads == nil {
		return nil, errors.New("usecase: thread store must not be nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultChatMaxTokens
	}
	temperature, err := resolveTemperature(cfg.Temperature, defaultChatTemperature)
	if err != nil {
		return nil, err
	}
	cfg.Temperature = &temperature
	if cfg.MaxPromptLen <= 0 {
		cfg.MaxPromptLen = defaultMaxPromptLen
	}
	return &ChatService{gen: gen, threads: threads, cfg: cfg}, nil
}

// SendTurn continues the conversation's provider thread with prompt. The
// thread id is only advanced after the provider succeeds.
func (s *ChatService) SendTurn(ctx context.Context, in ChatInput) (ChatOutput, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_prompt", nil)
	}
	if utf8.RuneCountInString(prompt) > s.cfg.MaxPromptLen {
		return ChatOutput{}, newError(ErrorInvalidInput, "prompt_too_long", nil)
	}
	convID := strings.TrimSpace(in.ConversationID)
	if len(convID) > maxConversationIDLen {
		return ChatOutput{}, newError(ErrorInvalidInput, "conversation_id_too_long", nil)
	}
	if convID == "" {
		convID = newUUID()
	}

	out, err := s.gen.Generate(ctx, domain.GenerateRequest{
		Model:           s.cfg.Model,
		Instructions:    s.cfg.Instructions,
		Prompt:          prompt,
		PreviousThread:  s.threads.LastThreadID(convID),
		MaxOutputTokens: s.cfg.MaxOutputTokens,
		Temperature:     *s.cfg.Temperature,
	})
	if err != nil {
		return ChatOutput{}, generationError("chat", err)
	}

	s.threads.SetLastThreadID(convID, out.ThreadID)
	return ChatOutput{Message: out.Text, ConversationID: convID}, nil
}

// generationError maps provider throttling to RATE_LIMITED and everything
// else to UPSTREAM_ERROR.
func resolveTemperature(t *float64, def float64) (float64, error) {
	if t == nil {
		return def, nil
	}
	if *t < 0 || *t > 2 {
		return 0, fmt.Errorf("usecase: temperature %v outside [0, 2]", *t)
	}
	return *t, nil
}

func generationError(op string, err error) *Error {
	if status, ok := upstreamStatusCode(err); ok && status == 429 {
		return newError(ErrorRateLimited, op+"_provider_rate_limited", err)
	}
	var pe *gateway.ProviderError
	if errors.As(err, &pe) && pe.Timeout() {
		return newError(ErrorUpstream, op+"_provider_timeout", err)
	}
	return newError(ErrorUpstream, op+"_generation_failed", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
