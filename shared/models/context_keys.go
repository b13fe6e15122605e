package models

import "context"

// contextKey - приватный тип для ключей контекста, чтобы избежать коллизий.
type contextKey string

const (
	// PrincipalContextKey используется как ключ для хранения *Principal в контексте запроса.
	PrincipalContextKey contextKey = "principal"
	// RequestIDContextKey хранит X-Request-ID текущего запроса.
	RequestIDContextKey contextKey = "requestID"
)

// GetPrincipalFromContext извлекает Principal из контекста.
func GetPrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*Principal)
	return p, ok && p != nil
}

// GetRequestIDFromContext извлекает идентификатор запроса.
func GetRequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}
