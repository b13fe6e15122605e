package interfaces

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX - общий интерфейс для *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FieldValue - пара "поле документа верхнего уровня" / строковое значение.
type FieldValue struct {
	Field string
	Value string
}

// DocumentQuery описывает фильтр выборки документов контейнера.
type DocumentQuery struct {
	// ArrayContains: массив body[Field] содержит Value (все условия через AND).
	ArrayContains []FieldValue
	// NotEqual: body[Field] отсутствует или не равно Value.
	NotEqual []FieldValue
	// OrderBy - поле верхнего уровня для сортировки (по умолчанию id).
	OrderBy    string
	Descending bool
	// Limit <= 0 означает без ограничения.
	Limit int
}

// DocumentStore - хранилище JSON-документов, сгруппированных по контейнерам.
// Документ идентифицируется парой (container, id).
type DocumentStore interface {
	// Get возвращает документ или models.ErrNotFound.
	Get(ctx context.Context, container, id string) (json.RawMessage, error)
	// Upsert полностью заменяет документ.
	Upsert(ctx context.Context, container, id string, doc any) error
	// Delete удаляет документ или возвращает models.ErrNotFound.
	Delete(ctx context.Context, container, id string) error
	List(ctx context.Context, container string, q DocumentQuery) ([]json.RawMessage, error)
	// Exists сообщает, есть ли хотя бы один документ под фильтр.
	Exists(ctx context.Context, container string, q DocumentQuery) (bool, error)
	// EnsureContainer создает контейнер, если его еще нет.
	EnsureContainer(ctx context.Context, name, partitionKey string) error
}
