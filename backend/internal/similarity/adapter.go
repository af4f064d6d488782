package similarity

import (
	"context"
	"fmt"

	"github.com/elliotchance/pie/v2"
	"go.uber.org/zap"

	"hybrid-memory/backend/internal/adapter"
	"hybrid-memory/backend/internal/graph"
	"hybrid-memory/backend/internal/utils"
	apperrors "hybrid-memory/backend/pkg/errors"
)

// Search limits
const (
	MinLimit = 1
	MaxLimit = 100
	// scrollBatch bounds the name lookup that finds stale entity points
	scrollBatch = 256
)

// Options configures the similarity index adapter
type Options struct {
	Collection                  string
	RecreateOnDimensionMismatch bool
	Retry                       utils.RetryPolicy
}

// InitReport describes what Initialize did to the collection
type InitReport struct {
	Created           bool `json:"created"`
	Recreated         bool `json:"recreated"`
	PreviousDimension int  `json:"previous_dimension,omitempty"`
	Dimension         int  `json:"dimension"`
}

// Match is one similarity hit: exactly one of Entity and Relation is set
type Match struct {
	Type     string          `json:"type"`
	Score    float32         `json:"score"`
	Entity   *graph.Entity   `json:"entity,omitempty"`
	Relation *graph.Relation `json:"relation,omitempty"`
}

// Index mirrors entities and relations into a vector index and answers
// similarity queries. It never reads the canonical store.
type Index struct {
	points   PointIndex
	embedder adapter.Embedder
	opts     Options
	logger   *zap.Logger
}

// NewIndex creates the adapter over a point index and an embedder
func NewIndex(points PointIndex, embedder adapter.Embedder, opts Options, logger *zap.Logger) *Index {
	return &Index{
		points:   points,
		embedder: embedder,
		opts:     opts,
		logger:   logger,
	}
}

// Initialize waits for the index server, then makes sure the collection
// exists with the embedder's dimensionality
func (x *Index) Initialize(ctx context.Context) (InitReport, error) {
	report := InitReport{Dimension: x.embedder.Dimensions()}

	err := utils.Retry(ctx, x.opts.Retry, "similarity index", x.logger, func(ctx context.Context) error {
		return x.points.Health(ctx)
	})
	if err != nil {
		return report, err
	}

	exists, err := x.points.CollectionExists(ctx)
	if err != nil {
		return report, apperrors.NewIndexOperationFailed("collection exists", err)
	}
	if !exists {
		if err := x.points.CreateCollection(ctx, report.Dimension); err != nil {
			return report, apperrors.NewIndexOperationFailed("create collection", err)
		}
		report.Created = true
		x.logger.Info("Similarity collection created",
			zap.String("collection", x.opts.Collection),
			zap.Int("dimension", report.Dimension),
		)
		return report, nil
	}

	existing, err := x.points.CollectionDimension(ctx)
	if err != nil {
		return report, apperrors.NewIndexOperationFailed("collection info", err)
	}
	if existing == report.Dimension {
		return report, nil
	}

	report.PreviousDimension = existing
	if !x.opts.RecreateOnDimensionMismatch {
		return report, apperrors.NewDimensionMismatch(x.opts.Collection, existing, report.Dimension)
	}

	x.logger.Warn("Embedding dimension changed, recreating collection; all indexed vectors are discarded",
		zap.String("collection", x.opts.Collection),
		zap.Int("existing_dimension", existing),
		zap.Int("configured_dimension", report.Dimension),
	)
	if err := x.Recreate(ctx); err != nil {
		return report, err
	}
	report.Recreated = true
	return report, nil
}

// Recreate drops the collection and creates it empty
func (x *Index) Recreate(ctx context.Context) error {
	if err := x.points.DeleteCollection(ctx); err != nil {
		return apperrors.NewIndexOperationFailed("delete collection", err)
	}
	if err := x.points.CreateCollection(ctx, x.embedder.Dimensions()); err != nil {
		return apperrors.NewIndexOperationFailed("create collection", err)
	}
	return nil
}

// Close releases the index connection
func (x *Index) Close() error {
	return x.points.Close()
}

// PersistEntity upserts the entity's current snapshot
func (x *Index) PersistEntity(ctx context.Context, e graph.Entity) error {
	vector, err := x.embedder.Embed(ctx, Describe(e))
	if err != nil {
		return err
	}
	payload, err := entityPayload(e)
	if err != nil {
		return apperrors.NewIndexOperationFailed("persist entity", err)
	}
	if err := x.points.Upsert(ctx, []Point{{ID: EntityPointID(e), Vector: vector, Payload: payload}}); err != nil {
		return apperrors.NewIndexOperationFailed("persist entity", err)
	}
	return nil
}

// PersistRelation upserts the relation's current snapshot
func (x *Index) PersistRelation(ctx context.Context, r graph.Relation) error {
	vector, err := x.embedder.Embed(ctx, DescribeRelation(r))
	if err != nil {
		return err
	}
	payload, err := relationPayload(r)
	if err != nil {
		return apperrors.NewIndexOperationFailed("persist relation", err)
	}
	if err := x.points.Upsert(ctx, []Point{{ID: RelationPointID(r), Vector: vector, Payload: payload}}); err != nil {
		return apperrors.NewIndexOperationFailed("persist relation", err)
	}
	return nil
}

// DeleteEntity removes the name-derived point and every entity point whose
// payload carries this name
func (x *Index) DeleteEntity(ctx context.Context, name string) error {
	ids := []string{EntityNamePointID(name)}
	stale, err := x.points.Scroll(ctx, &Filter{Type: KindEntity, Name: name}, scrollBatch)
	if err != nil {
		return apperrors.NewIndexOperationFailed("delete entity", err)
	}
	for _, p := range stale {
		ids = append(ids, p.ID)
	}
	if err := x.points.Delete(ctx, pie.Unique(ids)); err != nil {
		return apperrors.NewIndexOperationFailed("delete entity", err)
	}
	return nil
}

// DeleteRelation removes the relation's point
func (x *Index) DeleteRelation(ctx context.Context, r graph.Relation) error {
	if err := x.points.Delete(ctx, []string{RelationPointID(r)}); err != nil {
		return apperrors.NewIndexOperationFailed("delete relation", err)
	}
	return nil
}

// ClampLimit bounds a similarity limit to [MinLimit, MaxLimit]
func ClampLimit(limit int) int {
	if limit < MinLimit {
		return MinLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// SearchSimilar returns entities and relations closest to query, in the
// index's ranking order
func (x *Index) SearchSimilar(ctx context.Context, query string, limit int, threshold *float32) ([]Match, error) {
	return x.search(ctx, query, nil, ClampLimit(limit), threshold)
}

// SearchWithFilters is SearchSimilar restricted by attribute predicates
func (x *Index) SearchWithFilters(ctx context.Context, query string, filters *graph.SearchFilters, limit int, threshold *float32) ([]Match, error) {
	f, err := FilterFromSearch(filters)
	if err != nil {
		return nil, err
	}
	return x.search(ctx, query, f, ClampLimit(limit), threshold)
}

// SearchEntities is SearchWithFilters restricted to entity payloads
func (x *Index) SearchEntities(ctx context.Context, query string, filters *graph.SearchFilters, limit int, threshold *float32) ([]Match, error) {
	f, err := FilterFromSearch(filters)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = &Filter{}
	}
	f.Type = KindEntity
	return x.search(ctx, query, f, ClampLimit(limit), threshold)
}

func (x *Index) search(ctx context.Context, query string, f *Filter, limit int, threshold *float32) ([]Match, error) {
	vector, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := x.points.Search(ctx, vector, limit, f, threshold)
	if err != nil {
		return nil, apperrors.NewIndexOperationFailed("search", err)
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		if e, ok := decodeEntity(h.Payload); ok {
			matches = append(matches, Match{Type: KindEntity, Score: h.Score, Entity: &e})
		} else if r, ok := decodeRelation(h.Payload); ok {
			matches = append(matches, Match{Type: KindRelation, Score: h.Score, Relation: &r})
		} else {
			x.logger.Debug("Dropping point with unexpected payload shape", zap.String("point_id", h.ID))
			continue
		}
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

// FilterFromSearch converts caller filters into index predicates
func FilterFromSearch(filters *graph.SearchFilters) (*Filter, error) {
	if filters.IsEmpty() {
		return nil, nil
	}
	f := &Filter{
		EntityTypes: filters.EntityTypes,
		Domains:     filters.Domains,
		Tags:        filters.Tags,
	}
	if dr := filters.DateRange; dr != nil {
		if dr.From != nil && dr.To != nil && dr.From.After(*dr.To) {
			return nil, apperrors.NewValidation("date_range", fmt.Sprintf("from %s is after to %s", dr.From, dr.To))
		}
		if dr.From != nil {
			v := timestamp(*dr.From)
			f.CreatedFrom = &v
		}
		if dr.To != nil {
			v := timestamp(*dr.To)
			f.CreatedTo = &v
		}
	}
	return f, nil
}
