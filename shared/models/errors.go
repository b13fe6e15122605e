package models

import (
	"errors"
	"fmt"
	"strings"
)

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound = errors.New("resource not found")
	ErrConflict = errors.New("resource conflict")

	// Authentication Errors
	ErrUnauthorized       = errors.New("unauthorized") // Authentication required or failed
	ErrForbidden          = errors.New("forbidden")    // Authenticated, but lacks permission
	ErrInvalidCredentials = errors.New("invalid username or password")

	// Token Errors
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// Upstream providers (OpenAI, email, MailerLite)
	ErrUpstream        = errors.New("upstream request failed")
	ErrUpstreamTimeout = errors.New("upstream request timed out")
	ErrNotConfigured   = errors.New("integration is not configured")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
)

// FieldError описывает одно нарушенное поле схемы.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError перечисляет все поля, не прошедшие проверку схемы.
// errors.Is(err, ErrInvalidInput) для него возвращает true.
type ValidationError struct {
	Entity string       `json:"entity,omitempty"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	prefix := "validation failed"
	if e.Entity != "" {
		prefix = e.Entity + " validation failed"
	}
	return prefix + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// FieldNames возвращает имена нарушенных полей в порядке обнаружения.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

// PublicError - ошибка, сообщение которой безопасно отдавать клиенту как есть.
// Kind - одна из стандартных ошибок выше, по ней выбирается HTTP-статус.
type PublicError struct {
	Kind    error
	Message string
}

func (e *PublicError) Error() string { return e.Message }

func (e *PublicError) Unwrap() error { return e.Kind }

// NewPublicError создает PublicError.
func NewPublicError(kind error, message string) error {
	return &PublicError{Kind: kind, Message: message}
}
