package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"foundry/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, timeout time.Duration, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/v1", MaxTokens: 4096, Timeout: timeout}, zap.NewNop())
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestComplete_ToolCall(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		captured = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini-2024-07-18",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "apply_admin_actions", "arguments": "{\"assistantMessage\":\"ok\",\"actions\":[]}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	})

	got, err := client.Complete(context.Background(), ChatRequest{
		APIKey:   "sk-test",
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"assistantMessage":"ok","actions":[]}`, got.ToolArguments)
	assert.Equal(t, "stop", got.FinishReason)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", got.Model)
	assert.Equal(t, models.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, got.Usage)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.InDelta(t, 0.2, captured["temperature"], 0.0001)
	assert.Equal(t, float64(4096), captured["max_completion_tokens"])
	tools := captured["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "apply_admin_actions", fn["name"])
	assert.Equal(t, true, fn["strict"])
	params := fn["parameters"].(map[string]any)
	assert.Equal(t, false, params["additionalProperties"])
	assert.ElementsMatch(t, []any{"assistantMessage", "actions"}, params["required"])
	choice := captured["tool_choice"].(map[string]any)
	assert.Equal(t, "apply_admin_actions", choice["function"].(map[string]any)["name"])
}

func TestComplete_UsesRequestModelWhenResponseHasNone(t *testing.T) {
	client := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"finish_reason":"length","message":{"role":"assistant","content":"  "}}],
			"usage":{"prompt_tokens":7,"completion_tokens":3}}`)
	})

	got, err := client.Complete(context.Background(), ChatRequest{APIKey: "k", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, "length", got.FinishReason)
	assert.Equal(t, 10, got.Usage.TotalTokens)
}

func TestComplete_APIError(t *testing.T) {
	client := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided.","type":"invalid_request_error"}}`)
	})

	_, err := client.Complete(context.Background(), ChatRequest{APIKey: "bad", Model: "gpt-4o-mini"})
	require.Error(t, err)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusUnauthorized, upstream.Status)
	assert.Equal(t, "Incorrect API key provided.", upstream.Message)
	assert.True(t, errors.Is(err, models.ErrUpstream))
	assert.False(t, upstream.Timeout)
}

func TestComplete_Timeout(t *testing.T) {
	client := newTestClient(t, 30*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := client.Complete(context.Background(), ChatRequest{APIKey: "k", Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstreamTimeout))
	assert.Equal(t, TimeoutMessage, err.Error())
}

func TestOpenStream_DeltasAndUsage(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		captured = decodeBody(t, r)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{
			`{"id":"1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`,
			`{"id":"1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"{\"assistantMessage\":"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"\"hi\",\"actions\":[]}"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		} {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	stream, err := client.OpenStream(context.Background(), ChatRequest{APIKey: "k", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	defer stream.Close()

	var chunks []string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{`{"assistantMessage":`, `"hi","actions":[]}`}, chunks)
	assert.Equal(t, models.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, stream.Usage())

	assert.Equal(t, true, captured["stream"])
	assert.Equal(t, true, captured["stream_options"].(map[string]any)["include_usage"])
	format := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "admin_ai_response", schema["name"])
	assert.Equal(t, true, schema["strict"])
}

func TestOpenStream_ConnectTimeout(t *testing.T) {
	client := newTestClient(t, 30*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := client.OpenStream(context.Background(), ChatRequest{APIKey: "k", Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstreamTimeout))
}

func TestGenerateImage(t *testing.T) {
	var captured map[string]any
	payload := []byte("\x89PNG fake image")
	client := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		captured = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"created":1,"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString(payload))
	})

	got, err := client.GenerateImage(context.Background(), ImageParams{
		APIKey:       "k",
		Prompt:       "an emerald panel",
		Model:        "gpt-image-1.5",
		Size:         "1024x1024",
		Quality:      "high",
		Background:   "transparent",
		OutputFormat: "webp",
	})
	require.NoError(t, err)
	assert.Equal(t, payload, got.Data)
	assert.Equal(t, got.Usage.PromptTokens, got.Usage.TotalTokens)

	assert.Equal(t, "gpt-image-1.5", captured["model"])
	assert.Equal(t, "transparent", captured["background"])
	assert.Equal(t, "webp", captured["output_format"])
	assert.Equal(t, "high", captured["quality"])
	assert.Equal(t, float64(1), captured["n"])
}

func TestGenerateImage_NoData(t *testing.T) {
	client := newTestClient(t, time.Second, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"created":1,"data":[]}`)
	})

	_, err := client.GenerateImage(context.Background(), ImageParams{APIKey: "k", Prompt: "x", Model: "gpt-image-1.5"})
	require.Error(t, err)
	assert.Equal(t, "OpenAI returned no image data.", err.Error())
	assert.True(t, errors.Is(err, models.ErrUpstream))
}

func TestClassifyError_TransportFailure(t *testing.T) {
	err := classifyError(errors.New("dial tcp: connection refused"))
	assert.Equal(t, "OpenAI request failed: dial tcp: connection refused", err.Error())
	assert.False(t, err.Timeout)
}
