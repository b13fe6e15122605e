package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"foundry/internal/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCopyAll_CopiesEveryContainerInBatches(t *testing.T) {
	source := mocks.NewMemoryDocumentStore()
	target := mocks.NewMemoryDocumentStore()
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("news-%d", i)
		source.Seed("news", id, map[string]any{"id": id, "title": "T" + id})
	}
	source.Seed("config", "site", map[string]any{"id": "site", "header": map[string]any{"title": "Foundry"}})
	source.Seed("subscribers", "a@example.com", map[string]any{"id": "a@example.com", "status": "active"})

	c := &copier{source: source, target: target, batchSize: 3, logger: zap.NewNop()}
	require.NoError(t, c.copyAll(context.Background()))

	for i := 0; i < 7; i++ {
		doc := target.Doc("news", fmt.Sprintf("news-%d", i))
		require.NotNil(t, doc)
		assert.Equal(t, fmt.Sprintf("Tnews-%d", i), doc["title"])
	}
	assert.Equal(t, map[string]any{"title": "Foundry"}, target.Doc("config", "site")["header"])
	assert.Equal(t, "active", target.Doc("subscribers", "a@example.com")["status"])
}

func TestCopyAll_StopsOnFirstFailure(t *testing.T) {
	source := mocks.NewMemoryDocumentStore()
	target := mocks.NewMemoryDocumentStore()
	source.Seed("platforms", "p1", map[string]any{"id": "p1"})
	source.Seed("topics", "t1", map[string]any{"id": "t1"})
	source.Seed("subscribers", "s1", map[string]any{"id": "s1"})
	target.FailUpsert["topics"] = errors.New("disk full")

	c := &copier{source: source, target: target, batchSize: 100, logger: zap.NewNop()}
	err := c.copyAll(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "container topics")
	assert.Contains(t, err.Error(), "upsert t1")
	assert.NotNil(t, target.Doc("platforms", "p1"))
	assert.Nil(t, target.Doc("subscribers", "s1"), "later containers are not copied after a failure")
}

func TestDocumentID(t *testing.T) {
	id, err := documentID([]byte(`{"id":"x","a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "x", id)

	_, err = documentID([]byte(`{"a":1}`))
	assert.Error(t, err)
}
