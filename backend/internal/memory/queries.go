package memory

import (
	"context"

	"github.com/elliotchance/pie/v2"
	"go.uber.org/zap"

	"hybrid-memory/backend/internal/graph"
	"hybrid-memory/backend/internal/similarity"
	"hybrid-memory/backend/internal/traversal"
)

// ChainsResult lists relationship chains from one start entity
type ChainsResult struct {
	StartEntity string            `json:"start_entity"`
	Chains      []traversal.Chain `json:"chains"`
}

// HybridQuery combines similarity search with relation context
type HybridQuery struct {
	Query             string               `json:"query" binding:"required"`
	RelationshipPaths []string             `json:"relationship_paths,omitempty"`
	Limit             int                  `json:"limit,omitempty"`
	Filters           *graph.SearchFilters `json:"filters,omitempty"`
}

// HybridResult is the answer to a HybridQuery. TotalMatches counts the
// similarity hits before truncation to the limit.
type HybridResult struct {
	Entities            []similarity.Match `json:"entities"`
	RelationshipContext []graph.Relation   `json:"relationship_context"`
	TotalMatches        int                `json:"total_matches"`
}

// SearchSimilar queries the similarity index only
func (c *Coordinator) SearchSimilar(ctx context.Context, query string, limit int, threshold *float32) ([]similarity.Match, error) {
	return c.index.SearchSimilar(ctx, query, limit, threshold)
}

// SearchWithFilters queries the similarity index with attribute predicates
func (c *Coordinator) SearchWithFilters(ctx context.Context, query string, filters *graph.SearchFilters, limit int, threshold *float32) ([]similarity.Match, error) {
	return c.index.SearchWithFilters(ctx, query, filters, limit, threshold)
}

// SearchRelated explores the neighbourhood of an entity in the canonical graph
func (c *Coordinator) SearchRelated(ctx context.Context, name string, maxDepth int, relationTypes []string) (*traversal.RelatedResult, error) {
	g, err := c.store.ReadGraph(ctx)
	if err != nil {
		return nil, err
	}
	return traversal.SearchRelated(g, name, maxDepth, relationTypes)
}

// FindRelationshipChains enumerates outgoing relation paths from an entity
func (c *Coordinator) FindRelationshipChains(ctx context.Context, startID string, maxDepth int) (*ChainsResult, error) {
	start, g, err := c.entity(ctx, startID)
	if err != nil {
		return nil, err
	}
	chains, err := traversal.FindRelationshipChains(g, startID, maxDepth)
	if err != nil {
		return nil, err
	}
	return &ChainsResult{StartEntity: start.Name, Chains: chains}, nil
}

// AnalyzeMemoryConnections summarizes the relations of one entity
func (c *Coordinator) AnalyzeMemoryConnections(ctx context.Context, id string) (*traversal.ConnectionAnalysis, error) {
	g, err := c.store.ReadGraph(ctx)
	if err != nil {
		return nil, err
	}
	return traversal.AnalyzeConnections(g, id)
}

// HybridSearch runs an oversampled entity similarity search and attaches the
// canonical relations of the requested types that connect two hits
func (c *Coordinator) HybridSearch(ctx context.Context, q HybridQuery) (*HybridResult, error) {
	limit := similarity.ClampLimit(q.Limit)
	matches, err := c.index.SearchEntities(ctx, q.Query, q.Filters, similarity.ClampLimit(limit*2), nil)
	if err != nil {
		return nil, err
	}

	result := &HybridResult{
		Entities:            matches,
		RelationshipContext: []graph.Relation{},
		TotalMatches:        len(matches),
	}

	if len(q.RelationshipPaths) > 0 && len(matches) > 0 {
		g, err := c.store.ReadGraph(ctx)
		if err != nil {
			return nil, err
		}
		names := pie.Map(matches, func(m similarity.Match) string {
			return m.Entity.Name
		})
		result.RelationshipContext = traversal.RelationContext(g, names, q.RelationshipPaths)
	}

	if len(result.Entities) > limit {
		result.Entities = result.Entities[:limit]
	}

	c.logger.Debug("Hybrid search",
		zap.String("query", q.Query),
		zap.Int("matches", result.TotalMatches),
		zap.Int("context_relations", len(result.RelationshipContext)),
	)
	return result, nil
}
