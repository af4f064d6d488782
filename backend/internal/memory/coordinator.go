package memory

import (
	"context"
	"runtime"

	"go.uber.org/zap"

	"hybrid-memory/backend/internal/graph"
	"hybrid-memory/backend/internal/similarity"
	apperrors "hybrid-memory/backend/pkg/errors"
)

// Index is the similarity side of the coordinator
type Index interface {
	PersistEntity(ctx context.Context, e graph.Entity) error
	PersistRelation(ctx context.Context, r graph.Relation) error
	DeleteEntity(ctx context.Context, name string) error
	DeleteRelation(ctx context.Context, r graph.Relation) error
	SearchSimilar(ctx context.Context, query string, limit int, threshold *float32) ([]similarity.Match, error)
	SearchWithFilters(ctx context.Context, query string, filters *graph.SearchFilters, limit int, threshold *float32) ([]similarity.Match, error)
	SearchEntities(ctx context.Context, query string, filters *graph.SearchFilters, limit int, threshold *float32) ([]similarity.Match, error)
	Recreate(ctx context.Context) error
}

// Coordinator composes the canonical store and the similarity index. Every
// mutation writes the store first and then mirrors to the index. A failed
// mirror is returned to the caller; the store write is not rolled back.
type Coordinator struct {
	store              graph.Store
	index              Index
	clock              graph.Clock
	reindexConcurrency int
	logger             *zap.Logger
}

// Option customizes a Coordinator
type Option func(*Coordinator)

// WithClock replaces the wall clock used for metadata timestamps
func WithClock(clock graph.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithReindexConcurrency bounds the number of records re-embedded at once
func WithReindexConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.reindexConcurrency = n
		}
	}
}

// NewCoordinator creates a coordinator over an initialized store and index
func NewCoordinator(store graph.Store, index Index, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:              store,
		index:              index,
		clock:              graph.SystemClock,
		reindexConcurrency: runtime.NumCPU(),
		logger:             logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ObservationInput adds observations to one entity
type ObservationInput struct {
	EntityName string   `json:"entityName" binding:"required"`
	Contents   []string `json:"contents" binding:"required"`
}

// ObservationResult reports what was actually appended
type ObservationResult struct {
	EntityName        string   `json:"entityName"`
	AddedObservations []string `json:"addedObservations"`
}

// ObservationDeletion removes observations from one entity
type ObservationDeletion struct {
	EntityName   string   `json:"entityName" binding:"required"`
	Observations []string `json:"observations" binding:"required"`
}

// ============================================================================
// Mutations
// ============================================================================

// CreateEntities stores entities whose names are not taken yet and returns them
func (c *Coordinator) CreateEntities(ctx context.Context, entities []graph.Entity) ([]graph.Entity, error) {
	for _, e := range entities {
		if err := graph.ValidateEntity(e); err != nil {
			return nil, err
		}
	}

	created, err := c.store.AddEntities(ctx, graph.NormalizeEntities(entities, c.clock))
	if err != nil {
		return nil, err
	}

	for _, e := range created {
		if err := c.index.PersistEntity(ctx, e); err != nil {
			c.logger.Error("Failed to mirror entity to similarity index",
				zap.String("entity", e.Name),
				zap.Error(err),
			)
			return created, err
		}
	}

	c.logger.Info("Entities created",
		zap.Int("requested", len(entities)),
		zap.Int("created", len(created)),
	)
	return created, nil
}

// CreateRelations stores relations. Nothing is written when an endpoint is
// missing; a repeated (from, to, relationType) replaces the stored relation.
func (c *Coordinator) CreateRelations(ctx context.Context, relations []graph.Relation) ([]graph.Relation, error) {
	for _, r := range relations {
		if err := graph.ValidateRelation(r); err != nil {
			return nil, err
		}
	}

	saved, err := c.store.AddRelations(ctx, graph.NormalizeRelations(relations, c.clock))
	if err != nil {
		return nil, err
	}

	for _, r := range saved {
		if err := c.index.PersistRelation(ctx, r); err != nil {
			c.logger.Error("Failed to mirror relation to similarity index",
				zap.String("relation", r.Key().String()),
				zap.Error(err),
			)
			return saved, err
		}
	}

	c.logger.Info("Relations created", zap.Int("count", len(saved)))
	return saved, nil
}

// AddObservations appends observations and re-mirrors each touched entity whole
func (c *Coordinator) AddObservations(ctx context.Context, inputs []ObservationInput) ([]ObservationResult, error) {
	results := make([]ObservationResult, 0, len(inputs))
	for _, in := range inputs {
		added, err := c.store.AddObservations(ctx, in.EntityName, in.Contents)
		if err != nil {
			return results, err
		}
		results = append(results, ObservationResult{EntityName: in.EntityName, AddedObservations: added})

		if err := c.remirrorEntity(ctx, in.EntityName); err != nil {
			return results, err
		}

		c.logger.Info("Observations added",
			zap.String("entity", in.EntityName),
			zap.Int("added", len(added)),
		)
	}
	return results, nil
}

// DeleteEntities removes entities, their relations and all their index points.
// Unknown names are ignored.
func (c *Coordinator) DeleteEntities(ctx context.Context, names []string) error {
	before, err := c.store.ReadGraph(ctx)
	if err != nil {
		return err
	}
	doomed := make(map[string]bool, len(names))
	for _, n := range names {
		doomed[n] = true
	}
	var cascaded []graph.Relation
	for _, r := range before.Relations {
		if doomed[r.From] || doomed[r.To] {
			cascaded = append(cascaded, r)
		}
	}

	if err := c.store.DeleteEntities(ctx, names); err != nil {
		return err
	}

	for _, name := range names {
		if err := c.index.DeleteEntity(ctx, name); err != nil {
			c.logger.Error("Failed to remove entity from similarity index", zap.String("entity", name), zap.Error(err))
			return err
		}
	}
	for _, r := range cascaded {
		if err := c.index.DeleteRelation(ctx, r); err != nil {
			c.logger.Error("Failed to remove relation from similarity index", zap.String("relation", r.Key().String()), zap.Error(err))
			return err
		}
	}

	c.logger.Info("Entities deleted",
		zap.Strings("entities", names),
		zap.Int("cascaded_relations", len(cascaded)),
	)
	return nil
}

// DeleteObservations removes matching observations and re-mirrors the entity
func (c *Coordinator) DeleteObservations(ctx context.Context, deletions []ObservationDeletion) error {
	for _, d := range deletions {
		if err := c.store.DeleteObservations(ctx, d.EntityName, d.Observations); err != nil {
			return err
		}
		if err := c.remirrorEntity(ctx, d.EntityName); err != nil {
			return err
		}
	}
	c.logger.Info("Observations deleted", zap.Int("entities", len(deletions)))
	return nil
}

// DeleteRelations removes relations by (from, to, relationType)
func (c *Coordinator) DeleteRelations(ctx context.Context, relations []graph.Relation) error {
	if err := c.store.DeleteRelations(ctx, relations); err != nil {
		return err
	}
	for _, r := range relations {
		if err := c.index.DeleteRelation(ctx, r); err != nil {
			c.logger.Error("Failed to remove relation from similarity index", zap.String("relation", r.Key().String()), zap.Error(err))
			return err
		}
	}
	c.logger.Info("Relations deleted", zap.Int("count", len(relations)))
	return nil
}

// ReadGraph returns the canonical graph
func (c *Coordinator) ReadGraph(ctx context.Context) (graph.KnowledgeGraph, error) {
	return c.store.ReadGraph(ctx)
}

// remirrorEntity re-reads the entity and upserts its full snapshot. An entity
// that no longer exists is skipped.
func (c *Coordinator) remirrorEntity(ctx context.Context, name string) error {
	g, err := c.store.ReadGraph(ctx)
	if err != nil {
		return err
	}
	e, ok := g.Entity(name)
	if !ok {
		return nil
	}
	if err := c.index.PersistEntity(ctx, e); err != nil {
		c.logger.Error("Failed to mirror entity to similarity index",
			zap.String("entity", name),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// entity loads one entity by id or name from the canonical store
func (c *Coordinator) entity(ctx context.Context, idOrName string) (graph.Entity, graph.KnowledgeGraph, error) {
	g, err := c.store.ReadGraph(ctx)
	if err != nil {
		return graph.Entity{}, g, err
	}
	e, ok := g.Resolve(idOrName)
	if !ok {
		return graph.Entity{}, g, apperrors.NewEntityNotFound(idOrName)
	}
	return e, g, nil
}
