package memory

import (
	"context"

	"hybrid-memory/backend/internal/graph"
	apperrors "hybrid-memory/backend/pkg/errors"
)

func (c *Coordinator) pathQuerier() (graph.PathQuerier, error) {
	pq, ok := c.store.(graph.PathQuerier)
	if !ok {
		return nil, apperrors.NewValidation("store", "the configured record store does not support native label or path queries")
	}
	return pq, nil
}

// EntitiesByType lists entity names carrying a type label, answered by the
// store itself
func (c *Coordinator) EntitiesByType(ctx context.Context, entityType string) ([]string, error) {
	pq, err := c.pathQuerier()
	if err != nil {
		return nil, err
	}
	return pq.EntitiesByType(ctx, entityType)
}

// RelatedByPath lists names reachable from name within maxDepth hops,
// answered by the store's own path query
func (c *Coordinator) RelatedByPath(ctx context.Context, name string, maxDepth int) ([]string, error) {
	pq, err := c.pathQuerier()
	if err != nil {
		return nil, err
	}
	return pq.RelatedByPath(ctx, name, maxDepth)
}
