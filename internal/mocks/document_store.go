package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"foundry/shared/interfaces"
	"foundry/shared/models"
)

// MemoryDocumentStore - DocumentStore в памяти с теми же правилами фильтрации,
// что и Postgres-реализация. Используется в тестах сервисов.
type MemoryDocumentStore struct {
	mu         sync.Mutex
	containers map[string]map[string]json.RawMessage
	// FailUpsert, если задан, возвращается из Upsert для указанного контейнера.
	FailUpsert map[string]error
}

var _ interfaces.DocumentStore = (*MemoryDocumentStore)(nil)

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		containers: map[string]map[string]json.RawMessage{},
		FailUpsert: map[string]error{},
	}
}

// Seed кладет документ без проверок.
func (s *MemoryDocumentStore) Seed(container, id string, doc any) {
	if err := s.Upsert(context.Background(), container, id, doc); err != nil {
		panic(err)
	}
}

// Doc возвращает документ как map (nil, если его нет).
func (s *MemoryDocumentStore) Doc(container, id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.containers[container][id]
	if !ok {
		return nil
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

func (s *MemoryDocumentStore) Get(_ context.Context, container, id string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.containers[container][id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return append(json.RawMessage(nil), raw...), nil
}

func (s *MemoryDocumentStore) Upsert(_ context.Context, container, id string, doc any) error {
	if err := s.FailUpsert[container]; err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.containers[container] == nil {
		s.containers[container] = map[string]json.RawMessage{}
	}
	s.containers[container][id] = raw
	return nil
}

func (s *MemoryDocumentStore) Delete(_ context.Context, container, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.containers[container][id]; !ok {
		return models.ErrNotFound
	}
	delete(s.containers[container], id)
	return nil
}

func (s *MemoryDocumentStore) List(_ context.Context, container string, q interfaces.DocumentQuery) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		raw  json.RawMessage
		body map[string]any
	}
	rows := []row{}
	for _, raw := range s.containers[container] {
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			continue
		}
		if matches(body, q) {
			rows = append(rows, row{raw: raw, body: body})
		}
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "id"
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := fmt.Sprint(rows[i].body[orderBy]), fmt.Sprint(rows[j].body[orderBy])
		if q.Descending {
			return a > b
		}
		return a < b
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, append(json.RawMessage(nil), r.raw...))
	}
	return out, nil
}

func (s *MemoryDocumentStore) Exists(ctx context.Context, container string, q interfaces.DocumentQuery) (bool, error) {
	q.Limit = 1
	docs, err := s.List(ctx, container, q)
	return len(docs) > 0, err
}

func (s *MemoryDocumentStore) EnsureContainer(_ context.Context, name, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.containers[name] == nil {
		s.containers[name] = map[string]json.RawMessage{}
	}
	return nil
}

func matches(body map[string]any, q interfaces.DocumentQuery) bool {
	for _, cond := range q.ArrayContains {
		arr, _ := body[cond.Field].([]any)
		found := false
		for _, v := range arr {
			if s, ok := v.(string); ok && s == cond.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, cond := range q.NotEqual {
		if s, ok := body[cond.Field].(string); ok && s == cond.Value {
			return false
		}
	}
	return true
}
