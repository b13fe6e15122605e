package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"foundry/shared/models"

	openaigo "github.com/sashabaranov/go-openai"
)

// TimeoutMessage - текст ошибки при превышении OPENAI_TIMEOUT_MS.
const TimeoutMessage = "OpenAI request timed out. Try again or reduce the request size."

// UpstreamError - ошибка обращения к OpenAI. Message можно показывать
// администратору как есть.
type UpstreamError struct {
	Timeout bool
	Status  int
	Message string
}

func (e *UpstreamError) Error() string { return e.Message }

func (e *UpstreamError) Unwrap() error {
	if e.Timeout {
		return models.ErrUpstreamTimeout
	}
	return models.ErrUpstream
}

// classifyError приводит ошибку go-openai или транспорта к *UpstreamError.
func classifyError(err error) *UpstreamError {
	if err == nil {
		return nil
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream
	}
	if isTimeout(err) {
		return &UpstreamError{Timeout: true, Message: TimeoutMessage}
	}

	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = fmt.Sprintf("OpenAI upstream error: %d", apiErr.HTTPStatusCode)
		}
		return &UpstreamError{Status: apiErr.HTTPStatusCode, Message: msg}
	}
	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{
			Status:  reqErr.HTTPStatusCode,
			Message: fmt.Sprintf("OpenAI upstream error: %d", reqErr.HTTPStatusCode),
		}
	}
	return &UpstreamError{Message: "OpenAI request failed: " + err.Error()}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
