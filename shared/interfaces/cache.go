package interfaces

import (
	"context"
	"time"
)

// Cache - кэш публичных выборок (config, platforms, topics, news).
type Cache interface {
	// GetJSON декодирует значение в dest; false, если ключа нет.
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	// DeletePrefix удаляет все ключи с указанным префиксом.
	DeletePrefix(ctx context.Context, prefix string) error
}
