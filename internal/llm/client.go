package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"foundry/internal/assistant"
	"foundry/shared/models"

	"github.com/prometheus/client_golang/prometheus"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const chatTemperature = 0.2

// Config - настройки обращения к OpenAI.
type Config struct {
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// Message - одно сообщение диалога (system, user или assistant).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest - запрос к чату. Ключ передается явно в каждом запросе.
type ChatRequest struct {
	APIKey   string
	Model    string
	Messages []Message
}

// ChatCompletion - ответ чата без стриминга.
type ChatCompletion struct {
	// ToolArguments - аргументы вызова apply_admin_actions, если модель его вызвала.
	ToolArguments string
	Content       string
	Refusal       string
	FinishReason  string
	Model         string
	Usage         models.TokenUsage
}

// ChatStream - открытый поток ответа. Recv возвращает io.EOF по завершении.
type ChatStream interface {
	Recv() (string, error)
	Usage() models.TokenUsage
	Close() error
}

// ImageParams - параметры генерации изображения.
type ImageParams struct {
	APIKey       string
	Prompt       string
	Model        string
	Size         string
	Quality      string
	Background   string
	OutputFormat string
}

// GeneratedImage - байты изображения и usage запроса.
type GeneratedImage struct {
	Data  []byte
	Usage models.TokenUsage
}

// Client - обращения к OpenAI, которые нужны админке.
type Client interface {
	// Complete вызывает чат с принудительным вызовом инструмента apply_admin_actions.
	Complete(ctx context.Context, req ChatRequest) (*ChatCompletion, error)
	// OpenStream открывает потоковый ответ в формате json_schema.
	OpenStream(ctx context.Context, req ChatRequest) (ChatStream, error)
	GenerateImage(ctx context.Context, params ImageParams) (*GeneratedImage, error)
}

type openAIClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient создает клиент OpenAI. Таймаут применяется через контекст
// запроса, поэтому у http.Client его нет.
func NewClient(cfg Config, logger *zap.Logger) Client {
	return &openAIClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger.Named("OpenAIClient"),
	}
}

func (c *openAIClient) client(apiKey string) *openaigo.Client {
	config := openaigo.DefaultConfig(apiKey)
	if c.cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	}
	config.HTTPClient = c.httpClient
	return openaigo.NewClientWithConfig(config)
}

func toOpenAIMessages(messages []Message) []openaigo.ChatCompletionMessage {
	out := make([]openaigo.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openaigo.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (c *openAIClient) Complete(ctx context.Context, req ChatRequest) (*ChatCompletion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	request := openaigo.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            toOpenAIMessages(req.Messages),
		Temperature:         chatTemperature,
		MaxCompletionTokens: c.cfg.MaxTokens,
		Tools: []openaigo.Tool{{
			Type: openaigo.ToolTypeFunction,
			Function: &openaigo.FunctionDefinition{
				Name:        assistant.ToolName,
				Description: assistant.ToolDescription,
				Parameters:  assistant.EnvelopeSchema(),
				Strict:      true,
			},
		}},
		ToolChoice: openaigo.ToolChoice{
			Type:     openaigo.ToolTypeFunction,
			Function: openaigo.ToolFunction{Name: assistant.ToolName},
		},
	}

	c.logger.Debug("Sending chat request", zap.String("model", req.Model), zap.Int("messages", len(req.Messages)))
	start := time.Now()
	resp, err := c.client(req.APIKey).CreateChatCompletion(ctx, request)
	duration := time.Since(start)
	requestDuration.With(prometheus.Labels{"model": req.Model, "kind": "chat"}).Observe(duration.Seconds())
	if err != nil {
		upstream := classifyError(err)
		requestsTotal.With(prometheus.Labels{"model": req.Model, "kind": "chat", "status": statusLabel(upstream)}).Inc()
		c.logger.Warn("OpenAI chat request failed", zap.String("model", req.Model), zap.Duration("duration", duration), zap.Error(err))
		return nil, upstream
	}
	requestsTotal.With(prometheus.Labels{"model": req.Model, "kind": "chat", "status": "success"}).Inc()

	out := &ChatCompletion{Model: strings.TrimSpace(resp.Model), Usage: toUsage(resp.Usage)}
	if out.Model == "" {
		out.Model = req.Model
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.FinishReason = strings.TrimSpace(string(choice.FinishReason))
		out.Content = choice.Message.Content
		out.Refusal = choice.Message.Refusal
		if len(choice.Message.ToolCalls) > 0 {
			out.ToolArguments = choice.Message.ToolCalls[0].Function.Arguments
		}
	}
	observeTokens(out.Model, out.Usage)
	c.logger.Info("OpenAI chat completed",
		zap.String("model", out.Model),
		zap.Duration("duration", duration),
		zap.String("finishReason", out.FinishReason),
		zap.Bool("toolCall", out.ToolArguments != ""),
		zap.Int("totalTokens", out.Usage.TotalTokens),
	)
	return out, nil
}

func (c *openAIClient) OpenStream(ctx context.Context, req ChatRequest) (ChatStream, error) {
	schema := assistant.EnvelopeSchema()
	request := openaigo.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            toOpenAIMessages(req.Messages),
		Temperature:         chatTemperature,
		MaxCompletionTokens: c.cfg.MaxTokens,
		ResponseFormat: &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
				Name:   assistant.ResponseName,
				Schema: &schema,
				Strict: true,
			},
		},
		Stream:        true,
		StreamOptions: &openaigo.StreamOptions{IncludeUsage: true},
	}

	// Таймаут действует только до получения ответа; чтение потока не ограничено.
	streamCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(c.cfg.Timeout, cancel)
	stream, err := c.client(req.APIKey).CreateChatCompletionStream(streamCtx, request)
	fired := !timer.Stop()
	if err != nil {
		cancel()
		upstream := classifyError(err)
		if fired {
			upstream = &UpstreamError{Timeout: true, Message: TimeoutMessage}
		}
		requestsTotal.With(prometheus.Labels{"model": req.Model, "kind": "stream", "status": statusLabel(upstream)}).Inc()
		c.logger.Warn("OpenAI stream open failed", zap.String("model", req.Model), zap.Error(err))
		return nil, upstream
	}

	return &openAIStream{
		stream:   stream,
		cancel:   cancel,
		model:    req.Model,
		messages: req.Messages,
		started:  time.Now(),
		logger:   c.logger,
	}, nil
}

type openAIStream struct {
	stream   *openaigo.ChatCompletionStream
	cancel   context.CancelFunc
	model    string
	messages []Message
	text     strings.Builder
	usage    *openaigo.Usage
	started  time.Time
	failed   bool
	logger   *zap.Logger
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			s.failed = true
			s.logger.Warn("OpenAI stream read failed", zap.String("model", s.model), zap.Error(err))
			return "", err
		}
		if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
			s.usage = resp.Usage
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if chunk := resp.Choices[0].Delta.Content; chunk != "" {
			s.text.WriteString(chunk)
			return chunk, nil
		}
	}
}

// Usage возвращает usage из финального блока потока или оценку tiktoken.
func (s *openAIStream) Usage() models.TokenUsage {
	if s.usage != nil {
		return toUsage(*s.usage)
	}
	s.logger.Warn("Final usage block not received in stream, using estimated token counts", zap.String("model", s.model))
	return estimateUsage(s.model, s.messages, s.text.String())
}

func (s *openAIStream) Close() error {
	defer s.cancel()
	status := "success"
	if s.failed {
		status = "error_stream_read"
	}
	requestsTotal.With(prometheus.Labels{"model": s.model, "kind": "stream", "status": status}).Inc()
	requestDuration.With(prometheus.Labels{"model": s.model, "kind": "stream"}).Observe(time.Since(s.started).Seconds())
	observeTokens(s.model, s.Usage())
	return s.stream.Close()
}

func (c *openAIClient) GenerateImage(ctx context.Context, p ImageParams) (*GeneratedImage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client(p.APIKey).CreateImage(ctx, openaigo.ImageRequest{
		Prompt:       p.Prompt,
		Model:        p.Model,
		N:            1,
		Size:         p.Size,
		Quality:      p.Quality,
		Background:   p.Background,
		OutputFormat: p.OutputFormat,
	})
	requestDuration.With(prometheus.Labels{"model": p.Model, "kind": "image"}).Observe(time.Since(start).Seconds())
	if err != nil {
		upstream := classifyError(err)
		requestsTotal.With(prometheus.Labels{"model": p.Model, "kind": "image", "status": statusLabel(upstream)}).Inc()
		c.logger.Warn("OpenAI image generation failed", zap.String("model", p.Model), zap.Error(err))
		return nil, upstream
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		requestsTotal.With(prometheus.Labels{"model": p.Model, "kind": "image", "status": "error_empty_response"}).Inc()
		return nil, &UpstreamError{Message: "OpenAI returned no image data."}
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		requestsTotal.With(prometheus.Labels{"model": p.Model, "kind": "image", "status": "error_decode"}).Inc()
		return nil, &UpstreamError{Message: "OpenAI returned invalid image data."}
	}
	requestsTotal.With(prometheus.Labels{"model": p.Model, "kind": "image", "status": "success"}).Inc()

	prompt := estimateTokens(p.Model, p.Prompt)
	usage := models.TokenUsage{PromptTokens: prompt, TotalTokens: prompt}
	c.logger.Info("OpenAI image generated",
		zap.String("model", p.Model),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return &GeneratedImage{Data: data, Usage: usage}, nil
}

func statusLabel(err *UpstreamError) string {
	switch {
	case err == nil:
		return "success"
	case err.Timeout:
		return "timeout"
	case err.Status > 0:
		return "error_status"
	default:
		return "error"
	}
}

func observeTokens(model string, usage models.TokenUsage) {
	if usage.TotalTokens <= 0 {
		return
	}
	promptTokens.With(prometheus.Labels{"model": model}).Observe(float64(usage.PromptTokens))
	completionTokens.With(prometheus.Labels{"model": model}).Observe(float64(usage.CompletionTokens))
}
