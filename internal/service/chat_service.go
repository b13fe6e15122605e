package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"foundry/internal/assistant"
	"foundry/internal/llm"
	"foundry/shared/models"

	"go.uber.org/zap"
)

// DefaultChatModel используется, если модель не передана и не сохранена.
const DefaultChatModel = "gpt-4o-mini"

// Сообщения, которые ассистент возвращает вместо ответа модели.
const (
	TruncatedResponseMessage = "OpenAI response was truncated (finish_reason=length). Try again or reduce output size."
	emptyResponseFormat      = "OpenAI returned an empty response. finish_reason=%s."
)

// ChatMessage - реплика диалога из админки.
type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required,min=1"`
}

// ChatInput - тело POST /ai/chat.
type ChatInput struct {
	APIKey   string                 `json:"apiKey,omitempty"`
	Model    string                 `json:"model,omitempty"`
	Messages []ChatMessage          `json:"messages" binding:"required,min=1,dive"`
	Context  *assistant.ChatContext `json:"context,omitempty"`
}

// Типы событий потока.
const (
	StreamEventDelta = "delta"
	StreamEventError = "error"
	StreamEventDone  = "done"
)

// StreamEvent - одно SSE-событие потокового чата.
type StreamEvent struct {
	Type     string
	Text     string
	Message  string
	Envelope assistant.Envelope
}

func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case StreamEventDelta:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{e.Type, e.Text})
	case StreamEventError:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}{e.Type, e.Message})
	default:
		actions := e.Envelope.Actions
		if actions == nil {
			actions = []assistant.Action{}
		}
		return json.Marshal(struct {
			Type             string             `json:"type"`
			AssistantMessage string             `json:"assistantMessage"`
			Actions          []assistant.Action `json:"actions"`
		}{StreamEventDone, e.Envelope.AssistantMessage, actions})
	}
}

// ChatService - чат администратора с OpenAI.
type ChatService struct {
	config *ConfigService
	llm    llm.Client
	usage  *UsageService
	logger *zap.Logger
}

func NewChatService(config *ConfigService, client llm.Client, usage *UsageService, logger *zap.Logger) *ChatService {
	return &ChatService{
		config: config,
		llm:    client,
		usage:  usage,
		logger: logger.Named("ChatService"),
	}
}

// prepare собирает запрос к модели. false означает, что ключа нет.
func (s *ChatService) prepare(ctx context.Context, in ChatInput) (llm.ChatRequest, bool) {
	cfg := s.config.GetSiteConfig(ctx)
	settings := cfg.OpenAI()
	apiKey := strings.TrimSpace(firstNonEmpty(in.APIKey, settings.APIKey))
	model := strings.TrimSpace(firstNonEmpty(in.Model, settings.Model, DefaultChatModel))
	if apiKey == "" {
		return llm.ChatRequest{}, false
	}
	messages := make([]llm.Message, 0, len(in.Messages)+1)
	messages = append(messages, llm.Message{Role: "system", Content: assistant.SystemPrompt(cfg.ActivePersonalityPrompt(), in.Context)})
	for _, m := range in.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return llm.ChatRequest{APIKey: apiKey, Model: model, Messages: messages}, true
}

// Chat выполняет запрос без стриминга. Ошибки OpenAI возвращаются как
// сообщение ассистента, а не как ошибка.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (assistant.Envelope, error) {
	req, ok := s.prepare(ctx, in)
	if !ok {
		return assistant.Envelope{AssistantMessage: MissingOpenAIKeyMessage}, nil
	}

	completion, err := s.llm.Complete(ctx, req)
	if err != nil {
		var upstream *llm.UpstreamError
		if errors.As(err, &upstream) {
			return assistant.Envelope{AssistantMessage: upstream.Message}, nil
		}
		return assistant.Envelope{}, err
	}
	s.recordUsage(ctx, firstNonEmpty(completion.Model, req.Model), completion.Usage)

	if completion.ToolArguments != "" {
		env := assistant.ParseResponse(completion.ToolArguments)
		if env.AssistantMessage == "" && len(env.Actions) == 0 && completion.FinishReason == "length" {
			return assistant.Envelope{AssistantMessage: TruncatedResponseMessage}, nil
		}
		return env, nil
	}

	content := strings.TrimSpace(completion.Content)
	if content == "" {
		if completion.Refusal != "" {
			return assistant.Envelope{AssistantMessage: completion.Refusal}, nil
		}
		reason := completion.FinishReason
		if reason == "" {
			reason = "unknown"
		}
		return assistant.Envelope{AssistantMessage: fmt.Sprintf(emptyResponseFormat, reason)}, nil
	}
	return assistant.ParseResponse(content), nil
}

// ChatSession - открытый поток ответа модели.
type ChatSession struct {
	stream  llm.ChatStream
	model   string
	service *ChatService
}

// OpenStream открывает поток. Если ключа нет, возвращается готовый ответ
// вместо сессии. Ошибка открытия - PublicError со статусом 502 или 504.
func (s *ChatService) OpenStream(ctx context.Context, in ChatInput) (*ChatSession, *assistant.Envelope, error) {
	req, ok := s.prepare(ctx, in)
	if !ok {
		return nil, &assistant.Envelope{AssistantMessage: MissingOpenAIKeyMessage}, nil
	}
	stream, err := s.llm.OpenStream(ctx, req)
	if err != nil {
		return nil, nil, upstreamPublicError(err)
	}
	return &ChatSession{stream: stream, model: req.Model, service: s}, nil, nil
}

// Run читает поток до конца и отдает события в emit: delta на каждый кусок,
// error при сбое чтения и в конце done с разобранным ответом.
// Ошибка emit (клиент отключился) прекращает чтение.
func (cs *ChatSession) Run(ctx context.Context, emit func(StreamEvent) error) error {
	defer cs.stream.Close()

	var text strings.Builder
	for {
		chunk, err := cs.stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if emitErr := emit(StreamEvent{Type: StreamEventError, Message: err.Error()}); emitErr != nil {
				return emitErr
			}
			break
		}
		text.WriteString(chunk)
		if err := emit(StreamEvent{Type: StreamEventDelta, Text: chunk}); err != nil {
			return err
		}
	}

	usage := cs.stream.Usage()
	if usage.TotalTokens > 0 {
		cs.service.recordUsage(ctx, cs.model, usage)
	}
	return emit(StreamEvent{Type: StreamEventDone, Envelope: assistant.ParseResponse(text.String())})
}

func (s *ChatService) recordUsage(ctx context.Context, model string, usage models.TokenUsage) {
	if s.usage == nil || usage.TotalTokens <= 0 {
		return
	}
	if err := s.usage.RecordChat(ctx, model, usage); err != nil {
		s.logger.Warn("Failed to record AI usage", zap.String("model", model), zap.Error(err))
	}
}
