package main

import (
	"context"
	"encoding/json"
	"fmt"

	"foundry/shared/interfaces"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// partitionKey - ключ партиции всех контейнеров Foundry.
const partitionKey = "/id"

// containers переносятся в этом порядке.
var containers = []string{"platforms", "news", "topics", "config", "subscribers"}

type copier struct {
	source    interfaces.DocumentStore
	target    interfaces.DocumentStore
	batchSize int
	logger    *zap.Logger
}

// copyAll переносит все контейнеры и останавливается на первой ошибке.
func (c *copier) copyAll(ctx context.Context) error {
	for _, name := range containers {
		n, err := c.copyContainer(ctx, name)
		if err != nil {
			return fmt.Errorf("container %s: %w", name, err)
		}
		c.logger.Info("Container copied", zap.String("container", name), zap.Int("documents", n))
	}
	return nil
}

func (c *copier) copyContainer(ctx context.Context, name string) (int, error) {
	if err := c.target.EnsureContainer(ctx, name, partitionKey); err != nil {
		return 0, fmt.Errorf("ensure target container: %w", err)
	}
	docs, err := c.source.List(ctx, name, interfaces.DocumentQuery{})
	if err != nil {
		return 0, fmt.Errorf("read source documents: %w", err)
	}

	batchSize := c.batchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		if err := c.upsertBatch(ctx, name, docs[start:end]); err != nil {
			return start, err
		}
		c.logger.Debug("Batch copied", zap.String("container", name), zap.Int("upTo", end))
	}
	return len(docs), nil
}

// upsertBatch пишет пачку параллельно. Первая ошибка отменяет остальные записи.
func (c *copier) upsertBatch(ctx context.Context, container string, docs []json.RawMessage) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, raw := range docs {
		g.Go(func() error {
			id, err := documentID(raw)
			if err != nil {
				c.logger.Error("Document without id", zap.String("container", container), zap.Error(err))
				return err
			}
			if err := c.target.Upsert(gctx, container, id, raw); err != nil {
				c.logger.Error("Failed to copy document",
					zap.String("container", container),
					zap.String("id", id),
					zap.Error(err),
				)
				return fmt.Errorf("upsert %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func documentID(raw json.RawMessage) (string, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", fmt.Errorf("decode document: %w", err)
	}
	if head.ID == "" {
		return "", fmt.Errorf("document has no id")
	}
	return head.ID, nil
}
