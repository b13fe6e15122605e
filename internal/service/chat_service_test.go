package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"foundry/internal/assistant"
	"foundry/internal/llm"
	"foundry/internal/mocks"
	"foundry/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestChat(t *testing.T, store *mocks.MemoryDocumentStore, cfg map[string]any) (*ChatService, *mocks.LLMClient) {
	t.Helper()
	config := newTestConfig(t, store, cfg)
	usage := NewUsageService(store, config, zap.NewNop())
	usage.now = fixedClock
	client := &mocks.LLMClient{}
	return NewChatService(config, client, usage, zap.NewNop()), client
}

var chatInput = ChatInput{Messages: []ChatMessage{{Role: "user", Content: "Delete the old post"}}}

func TestChat_MissingKey(t *testing.T) {
	svc, client := newTestChat(t, mocks.NewMemoryDocumentStore(), nil)

	env, err := svc.Chat(context.Background(), chatInput)
	require.NoError(t, err)
	assert.Equal(t, MissingOpenAIKeyMessage, env.AssistantMessage)
	assert.Empty(t, env.Actions)
	client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestChat_ToolArguments(t *testing.T) {
	store := mocks.NewMemoryDocumentStore()
	svc, client := newTestChat(t, store, map[string]any{
		"ai": map[string]any{"adminAssistant": map[string]any{
			"activePersonalityId": "calm",
			"personalities":       []any{map[string]any{"id": "calm", "name": "Calm", "prompt": "Speak calmly."}},
			"openai":              map[string]any{"apiKey": "sk-stored", "model": "gpt-4.1"},
		}},
	})

	client.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.ChatRequest) bool {
		return req.APIKey == "sk-stored" &&
			req.Model == "gpt-4.1" &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == "system" &&
			strings.Contains(req.Messages[0].Content, "Speak calmly.") &&
			req.Messages[1] == llm.Message{Role: "user", Content: "Delete the old post"}
	})).Return(&llm.ChatCompletion{
		ToolArguments: `{"assistantMessage":"Deleting it.","actions":[{"type":"news.delete","id":"old","value":""}]}`,
		FinishReason:  "stop",
		Usage:         models.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}, nil).Once()

	env, err := svc.Chat(context.Background(), chatInput)
	require.NoError(t, err)
	assert.Equal(t, "Deleting it.", env.AssistantMessage)
	require.Len(t, env.Actions, 1)
	assert.Equal(t, assistant.ContentDelete{Kind: assistant.KindNews, ID: "old"}, env.Actions[0])
	client.AssertExpectations(t)

	doc := store.Doc(models.ContainerConfig, models.UsageStatsID)
	require.NotNil(t, doc, "usage is recorded for tool calls")
	assert.Contains(t, doc["totals"].(map[string]any)["models"], "gpt-4.1")
}

func TestChat_RequestKeyAndModelWin(t *testing.T) {
	svc, client := newTestChat(t, mocks.NewMemoryDocumentStore(), nil)
	client.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.ChatRequest) bool {
		return req.APIKey == "sk-request" && req.Model == "gpt-4o"
	})).Return(&llm.ChatCompletion{Content: `{"assistantMessage":"Hi","actions":[]}`}, nil).Once()

	in := chatInput
	in.APIKey = "sk-request"
	in.Model = "gpt-4o"
	env, err := svc.Chat(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Hi", env.AssistantMessage)
	client.AssertExpectations(t)
}

func TestChat_DegenerateResponses(t *testing.T) {
	tests := []struct {
		name       string
		completion *llm.ChatCompletion
		want       string
	}{
		{"truncated tool call", &llm.ChatCompletion{ToolArguments: `{"assistantMessage":"","actions":[]}`, FinishReason: "length"}, TruncatedResponseMessage},
		{"refusal", &llm.ChatCompletion{Refusal: "I can't help with that."}, "I can't help with that."},
		{"empty", &llm.ChatCompletion{FinishReason: "content_filter"}, "OpenAI returned an empty response. finish_reason=content_filter."},
		{"empty without reason", &llm.ChatCompletion{}, "OpenAI returned an empty response. finish_reason=unknown."},
		{"prose", &llm.ChatCompletion{Content: "Sure, which post?"}, "Sure, which post?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, client := newTestChat(t, mocks.NewMemoryDocumentStore(), openAIConfig(map[string]any{"apiKey": "sk"}))
			client.On("Complete", mock.Anything, mock.Anything).Return(tt.completion, nil).Once()

			env, err := svc.Chat(context.Background(), chatInput)
			require.NoError(t, err)
			assert.Equal(t, tt.want, env.AssistantMessage)
			assert.Empty(t, env.Actions)
		})
	}
}

func TestChat_UpstreamErrorBecomesMessage(t *testing.T) {
	svc, client := newTestChat(t, mocks.NewMemoryDocumentStore(), openAIConfig(map[string]any{"apiKey": "sk"}))
	client.On("Complete", mock.Anything, mock.Anything).
		Return(nil, &llm.UpstreamError{Status: 429, Message: "Rate limit reached"}).Once()

	env, err := svc.Chat(context.Background(), chatInput)
	require.NoError(t, err)
	assert.Equal(t, "Rate limit reached", env.AssistantMessage)

	client.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()
	_, err = svc.Chat(context.Background(), chatInput)
	require.Error(t, err)
}

func TestChatStream_EmitsEvents(t *testing.T) {
	store := mocks.NewMemoryDocumentStore()
	svc, client := newTestChat(t, store, openAIConfig(map[string]any{"apiKey": "sk"}))
	stream := &mocks.ChatStream{
		Chunks:     []string{`{"assistantMessage":"Re`, `named.","actions":[]}`},
		TokenUsage: models.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	client.On("OpenStream", mock.Anything, mock.Anything).Return(stream, nil).Once()

	session, early, err := svc.OpenStream(context.Background(), chatInput)
	require.NoError(t, err)
	require.Nil(t, early)
	require.NotNil(t, session)

	var events []StreamEvent
	require.NoError(t, session.Run(context.Background(), func(e StreamEvent) error {
		events = append(events, e)
		return nil
	}))

	require.Len(t, events, 3)
	assert.Equal(t, StreamEventDelta, events[0].Type)
	assert.Equal(t, `{"assistantMessage":"Re`, events[0].Text)
	assert.Equal(t, StreamEventDone, events[2].Type)
	assert.Equal(t, "Renamed.", events[2].Envelope.AssistantMessage)
	assert.True(t, stream.Closed)

	raw, err := json.Marshal(events[2])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done","assistantMessage":"Renamed.","actions":[]}`, string(raw))
	raw, err = json.Marshal(events[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"delta","text":"{\"assistantMessage\":\"Re"}`, string(raw))

	assert.NotNil(t, store.Doc(models.ContainerConfig, models.UsageStatsID))
}

func TestChatStream_ReadErrorThenDone(t *testing.T) {
	svc, client := newTestChat(t, mocks.NewMemoryDocumentStore(), openAIConfig(map[string]any{"apiKey": "sk"}))
	stream := &mocks.ChatStream{Chunks: []string{"Partial"}, Err: errors.New("connection reset")}
	client.On("OpenStream", mock.Anything, mock.Anything).Return(stream, nil).Once()

	session, _, err := svc.OpenStream(context.Background(), chatInput)
	require.NoError(t, err)

	var types []string
	require.NoError(t, session.Run(context.Background(), func(e StreamEvent) error {
		types = append(types, e.Type)
		if e.Type == StreamEventError {
			assert.Equal(t, "connection reset", e.Message)
		}
		return nil
	}))
	assert.Equal(t, []string{StreamEventDelta, StreamEventError, StreamEventDone}, types)
}

func TestChatStream_ClientGoneStopsReading(t *testing.T) {
	svc, client := newTestChat(t, mocks.NewMemoryDocumentStore(), openAIConfig(map[string]any{"apiKey": "sk"}))
	stream := &mocks.ChatStream{Chunks: []string{"a", "b", "c"}}
	client.On("OpenStream", mock.Anything, mock.Anything).Return(stream, nil).Once()

	session, _, err := svc.OpenStream(context.Background(), chatInput)
	require.NoError(t, err)

	calls := 0
	err = session.Run(context.Background(), func(StreamEvent) error {
		calls++
		return io.ErrClosedPipe
	})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, 1, calls)
	assert.True(t, stream.Closed)
}

func TestChatStream_OpenFailures(t *testing.T) {
	svc, client := newTestChat(t, mocks.NewMemoryDocumentStore(), nil)
	session, early, err := svc.OpenStream(context.Background(), chatInput)
	require.NoError(t, err)
	assert.Nil(t, session)
	require.NotNil(t, early)
	assert.Equal(t, MissingOpenAIKeyMessage, early.AssistantMessage)

	svc, client = newTestChat(t, mocks.NewMemoryDocumentStore(), openAIConfig(map[string]any{"apiKey": "sk"}))
	client.On("OpenStream", mock.Anything, mock.Anything).
		Return(nil, &llm.UpstreamError{Status: 401, Message: "Incorrect API key provided"}).Once()
	_, _, err = svc.OpenStream(context.Background(), chatInput)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstream))
	assert.Equal(t, "Incorrect API key provided", err.Error())
}
