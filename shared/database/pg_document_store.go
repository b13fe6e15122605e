package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"foundry/shared/interfaces"
	"foundry/shared/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	pgxV5 "github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	getDocumentQuery = `SELECT body FROM documents WHERE container = $1 AND id = $2`
	upsertDocumentQuery = `
        INSERT INTO documents (container, id, body)
        VALUES ($1, $2, $3)
        ON CONFLICT (container, id) DO UPDATE SET
            body = EXCLUDED.body,
            updated_at = NOW()
    `
	deleteDocumentQuery    = `DELETE FROM documents WHERE container = $1 AND id = $2`
	ensureContainerQuery   = `INSERT INTO containers (name, partition_key) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`
	listDocumentsBaseQuery = `SELECT body FROM documents WHERE container = $1`
)

type pgDocumentStore struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

var _ interfaces.DocumentStore = (*pgDocumentStore)(nil)

// NewPgDocumentStore создает хранилище документов поверх таблицы documents.
func NewPgDocumentStore(querier interfaces.DBTX, logger *zap.Logger) interfaces.DocumentStore {
	return &pgDocumentStore{
		db:     querier,
		logger: logger.Named("DocumentStore"),
	}
}

func (s *pgDocumentStore) Get(ctx context.Context, container, id string) (json.RawMessage, error) {
	var body []byte
	err := s.db.QueryRow(ctx, getDocumentQuery, container, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("Error getting document", zap.String("container", container), zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document %s/%s: %w", container, id, err)
	}
	return json.RawMessage(body), nil
}

func (s *pgDocumentStore) Upsert(ctx context.Context, container, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s/%s: %w", container, id, err)
	}
	if _, err := s.db.Exec(ctx, upsertDocumentQuery, container, id, body); err != nil {
		s.logger.Error("Error upserting document", zap.String("container", container), zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to upsert document %s/%s: %w", container, id, err)
	}
	return nil
}

func (s *pgDocumentStore) Delete(ctx context.Context, container, id string) error {
	tag, err := s.db.Exec(ctx, deleteDocumentQuery, container, id)
	if err != nil {
		s.logger.Error("Error deleting document", zap.String("container", container), zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete document %s/%s: %w", container, id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *pgDocumentStore) List(ctx context.Context, container string, q interfaces.DocumentQuery) ([]json.RawMessage, error) {
	sql, args := buildListQuery(container, q)

	var bodies [][]byte
	if err := pgxscan.Select(ctx, s.db, &bodies, sql, args...); err != nil {
		s.logger.Error("Error listing documents", zap.String("container", container), zap.Error(err))
		return nil, fmt.Errorf("failed to list documents in %s: %w", container, err)
	}

	docs := make([]json.RawMessage, 0, len(bodies))
	for _, b := range bodies {
		docs = append(docs, json.RawMessage(b))
	}
	return docs, nil
}

func (s *pgDocumentStore) Exists(ctx context.Context, container string, q interfaces.DocumentQuery) (bool, error) {
	q.Limit = 1
	q.OrderBy = ""
	sql, args := buildListQuery(container, q)

	var exists bool
	if err := s.db.QueryRow(ctx, "SELECT EXISTS ("+sql+")", args...).Scan(&exists); err != nil {
		s.logger.Error("Error checking documents existence", zap.String("container", container), zap.Error(err))
		return false, fmt.Errorf("failed to check documents in %s: %w", container, err)
	}
	return exists, nil
}

func (s *pgDocumentStore) EnsureContainer(ctx context.Context, name, partitionKey string) error {
	if partitionKey == "" {
		partitionKey = models.DefaultPartitionKey
	}
	if _, err := s.db.Exec(ctx, ensureContainerQuery, name, partitionKey); err != nil {
		return fmt.Errorf("failed to ensure container %s: %w", name, err)
	}
	return nil
}

// buildListQuery собирает параметризованный SELECT по фильтрам DocumentQuery.
// Имена полей тоже передаются параметрами, в текст запроса попадают только плейсхолдеры.
func buildListQuery(container string, q interfaces.DocumentQuery) (string, []any) {
	var sb strings.Builder
	sb.WriteString(listDocumentsBaseQuery)
	args := []any{container}

	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	for _, f := range q.ArrayContains {
		field := next(f.Field)
		value := next(f.Value)
		sb.WriteString(" AND body @> jsonb_build_object(" + field + "::text, jsonb_build_array(" + value + "::text))")
	}
	for _, f := range q.NotEqual {
		field := next(f.Field)
		value := next(f.Value)
		sb.WriteString(" AND coalesce(body->>" + field + "::text, '') <> " + value + "::text")
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		sb.WriteString(" ORDER BY id")
	} else {
		sb.WriteString(" ORDER BY body->>" + next(orderBy) + "::text")
		if q.Descending {
			sb.WriteString(" DESC")
		}
		sb.WriteString(", id")
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + next(q.Limit))
	}
	return sb.String(), args
}
