package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"shop-assistant/internal/conversation"
	"shop-assistant/internal/gateway"
)

func newTestChat(t *testing.T, gen gateway.Generator, threads ThreadStore) *ChatService {
	t.Helper()
	svc, err := NewChatService(gen, threads, ChatConfig{Model: "gpt-mock", Instructions: "be nice"})
	require.NoError(t, err)
	return svc
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	_, err := NewChatService(nil, conversation.NewStore(), ChatConfig{Model: "m"})
	require.Error(t, err)

	_, err = NewChatService(&fakeGenerator{}, nil, ChatConfig{Model: "m"})
	require.Error(t, err)

	_, err = NewChatService(&fakeGenerator{}, conversation.NewStore(), ChatConfig{Model: " "})
	require.Error(t, err)
}

func TestNewChatService_Temperature(t *testing.T) {
	zero := 0.0
	gen := &fakeGenerator{responses: []genResponse{{text: "ok", thread: "resp_1"}}}
	svc, err := NewChatService(gen, conversation.NewStore(), ChatConfig{Model: "m", Temperature: &zero})
	require.NoError(t, err)

	_, err = svc.SendTurn(context.Background(), ChatInput{Prompt: "hi"})
	require.NoError(t, err)
	require.Zero(t, gen.lastRequest().Temperature)

	tooHot := 2.5
	_, err = NewChatService(gen, conversation.NewStore(), ChatConfig{Model: "m", Temperature: &tooHot})
	require.Error(t, err)
}

func TestSendTurn_FirstTurnHasNoPreviousThread(t *testing.T) {
	gen := &fakeGenerator{responses: []genResponse{{text: "Hi there!", thread: "resp_1"}}}
	threads := conversation.NewStore()
	svc := newTestChat(t, gen, threads)

	out, err := svc.SendTurn(context.Background(), ChatInput{Prompt: "  hello  ", ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Equal(t, "Hi there!", out.Message)
	require.Equal(t, "conv-1", out.ConversationID)

	req := gen.lastRequest()
	require.Empty(t, req.PreviousThread)
	require.Equal(t, "hello", req.Prompt)
	require.Equal(t, "gpt-mock", req.Model)
	require.Equal(t, "be nice", req.Instructions)
	require.Equal(t, 100, req.MaxOutputTokens)
	require.InDelta(t, 0.2, req.Temperature, 1e-9)
	require.Equal(t, "resp_1", threads.LastThreadID("conv-1"))
}

func TestSendTurn_SecondTurnContinuesThread(t *testing.T) {
	gen := &fakeGenerator{responses: []genResponse{
		{text: "one", thread: "resp_1"},
		{text: "two", thread: "resp_2"},
	}}
	threads := conversation.NewStore()
	svc := newTestChat(t, gen, threads)

	_, err := svc.SendTurn(context.Background(), ChatInput{Prompt: "first", ConversationID: "conv-1"})
	require.NoError(t, err)
	_, err = svc.SendTurn(context.Background(), ChatInput{Prompt: "second", ConversationID: "conv-1"})
	require.NoError(t, err)

	require.Equal(t, "resp_1", gen.lastRequest().PreviousThread)
	require.Equal(t, "resp_2", threads.LastThreadID("conv-1"))
}

func TestSendTurn_ConversationsAreIndependent(t *testing.T) {
	gen := &fakeGenerator{responses: []genResponse{
		{text: "a", thread: "resp_a"},
		{text: "b", thread: "resp_b"},
	}}
	svc := newTestChat(t, gen, conversation.NewStore())

	_, err := svc.SendTurn(context.Background(), ChatInput{Prompt: "hi", ConversationID: "conv-a"})
	require.NoError(t, err)
	_, err = svc.SendTurn(context.Background(), ChatInput{Prompt: "hi", ConversationID: "conv-b"})
	require.NoError(t, err)
	require.Empty(t, gen.lastRequest().PreviousThread)
}

func TestSendTurn_MissingConversationID_GeneratesID(t *testing.T) {
	orig := newUUID
	newUUID = func() string { return "generated-id" }
	t.Cleanup(func() { newUUID = orig })

	threads := conversation.NewStore()
	svc := newTestChat(t, &fakeGenerator{responses: []genResponse{{text: "ok", thread: "resp_1"}}}, threads)

	out, err := svc.SendTurn(context.Background(), ChatInput{Prompt: "hello"})
	require.NoError(t, err)
	require.Equal(t, "generated-id", out.ConversationID)
	require.Equal(t, "resp_1", threads.LastThreadID("generated-id"))
}

func TestSendTurn_ValidationErrors(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestChat(t, gen, conversation.NewStore())

	_, err := svc.SendTurn(context.Background(), ChatInput{Prompt: "   "})
	expectError(t, err, ErrorInvalidInput, "empty_prompt")

	_, err = svc.SendTurn(context.Background(), ChatInput{Prompt: strings.Repeat("a", 1001)})
	expectError(t, err, ErrorInvalidInput, "prompt_too_long")

	_, err = svc.SendTurn(context.Background(), ChatInput{Prompt: "hi", ConversationID: strings.Repeat("c", 129)})
	expectError(t, err, ErrorInvalidInput, "conversation_id_too_long")

	require.Zero(t, gen.calls())
}

func TestSendTurn_PromptLengthCountsCharacters(t *testing.T) {
	svc := newTestChat(t, &fakeGenerator{}, conversation.NewStore())
	_, err := svc.SendTurn(context.Background(), ChatInput{Prompt: strings.Repeat("é", 1000)})
	require.NoError(t, err)
}

func TestSendTurn_FailureLeavesThreadUnchanged(t *testing.T) {
	threads := conversation.NewStore()
	threads.SetLastThreadID("conv-1", "resp_old")
	gen := &fakeGenerator{responses: []genResponse{{err: &gateway.ProviderError{Op: "generate", Err: errors.New("boom")}}}}
	svc := newTestChat(t, gen, threads)

	_, err := svc.SendTurn(context.Background(), ChatInput{Prompt: "hi", ConversationID: "conv-1"})
	expectError(t, err, ErrorUpstream, "chat_generation_failed")
	require.Equal(t, "resp_old", threads.LastThreadID("conv-1"))
}

func TestSendTurn_ProviderErrorMapping(t *testing.T) {
	svc := newTestChat(t, &fakeGenerator{responses: []genResponse{{err: &gateway.ProviderError{Op: "openai", Err: statusErr(429)}}}}, conversation.NewStore())
	_, err := svc.SendTurn(context.Background(), ChatInput{Prompt: "hi"})
	expectError(t, err, ErrorRateLimited, "chat_provider_rate_limited")

	svc = newTestChat(t, &fakeGenerator{responses: []genResponse{{err: &gateway.ProviderError{Op: "openai", Err: statusErr(500)}}}}, conversation.NewStore())
	_, err = svc.SendTurn(context.Background(), ChatInput{Prompt: "hi"})
	expectError(t, err, ErrorUpstream, "chat_generation_failed")

	svc = newTestChat(t, &fakeGenerator{responses: []genResponse{{err: &gateway.ProviderError{Op: "generate", Err: context.DeadlineExceeded}}}}, conversation.NewStore())
	_, err = svc.SendTurn(context.Background(), ChatInput{Prompt: "hi"})
	expectError(t, err, ErrorUpstream, "chat_provider_timeout")
}
