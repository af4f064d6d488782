package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hybrid-memory/backend/internal/graph"
	"hybrid-memory/backend/internal/metalearning"
	apperrors "hybrid-memory/backend/pkg/errors"
)

// PrincipleResult is the stored principle and the auxiliary relations that
// could be created for it
type PrincipleResult struct {
	Entity    graph.Entity     `json:"entity"`
	Relations []graph.Relation `json:"relations"`
}

// TrackInput records one application of a stored principle
type TrackInput struct {
	PrincipleName  string `json:"principle_name" binding:"required"`
	Outcome        string `json:"outcome" binding:"required"`
	Context        string `json:"context,omitempty"`
	LessonsLearned string `json:"lessons_learned,omitempty"`
}

// StorePrinciple creates a meta-learning principle entity. Linking it to its
// domain and related entities is best effort: failures are logged only.
func (c *Coordinator) StorePrinciple(ctx context.Context, in metalearning.PrincipleInput) (*PrincipleResult, error) {
	principle, err := metalearning.NewPrinciple(in)
	if err != nil {
		return nil, err
	}

	created, err := c.CreateEntities(ctx, []graph.Entity{principle})
	if err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return nil, apperrors.NewValidation("principle", fmt.Sprintf("already stored as %q", principle.Name))
	}

	result := &PrincipleResult{Entity: created[0], Relations: []graph.Relation{}}
	result.Relations = append(result.Relations, c.linkPrinciple(ctx, result.Entity, in)...)

	c.logger.Info("Meta-learning principle stored",
		zap.String("principle", result.Entity.Name),
		zap.String("learning_type", in.LearningType),
		zap.Int("links", len(result.Relations)),
	)
	return result, nil
}

func (c *Coordinator) linkPrinciple(ctx context.Context, principle graph.Entity, in metalearning.PrincipleInput) []graph.Relation {
	var links []graph.Relation

	if domain := strings.TrimSpace(in.Domain); domain != "" {
		_, err := c.CreateEntities(ctx, []graph.Entity{{
			Name:         domain,
			EntityType:   graph.Single(metalearning.DomainEntityType),
			Observations: []string{"Knowledge domain: " + domain},
		}})
		if err != nil {
			c.logger.Warn("Failed to create domain entity for principle",
				zap.String("principle", principle.Name),
				zap.String("domain", domain),
				zap.Error(err),
			)
		} else {
			links = append(links, graph.Relation{From: principle.Name, To: domain, RelationType: metalearning.RelationAppliesTo})
		}
	}

	if len(in.RelatedEntities) > 0 {
		g, err := c.store.ReadGraph(ctx)
		if err != nil {
			c.logger.Warn("Failed to read graph for principle links", zap.String("principle", principle.Name), zap.Error(err))
		} else {
			for _, name := range in.RelatedEntities {
				if _, ok := g.Entity(name); !ok || name == principle.Name {
					continue
				}
				links = append(links, graph.Relation{From: principle.Name, To: name, RelationType: metalearning.RelationDerivedFrom})
			}
		}
	}

	saved := make([]graph.Relation, 0, len(links))
	for _, link := range links {
		// one call per link so a single failure does not drop the others
		out, err := c.CreateRelations(ctx, []graph.Relation{link})
		if err != nil {
			c.logger.Warn("Failed to link principle",
				zap.String("principle", principle.Name),
				zap.String("relation", link.Key().String()),
				zap.Error(err),
			)
			continue
		}
		saved = append(saved, out...)
	}
	return saved
}

// TrackApplication applies one outcome to a stored principle's metrics and
// writes the entity back to both stores
func (c *Coordinator) TrackApplication(ctx context.Context, in TrackInput) (*graph.Entity, error) {
	e, _, err := c.entity(ctx, in.PrincipleName)
	if err != nil {
		return nil, err
	}
	if !metalearning.IsPrinciple(e) {
		return nil, apperrors.NewValidation("principle_name", fmt.Sprintf("%q is not a meta-learning principle", e.Name))
	}

	now := c.clock()
	metrics, err := metalearning.Apply(metalearning.Current(e), in.Outcome, in.Context, now)
	if err != nil {
		return nil, err
	}

	updated := graph.NormalizeEntity(e, func() time.Time { return now })
	updated.Observations = metalearning.Encode(updated.Observations, metrics, in.LessonsLearned)
	updated.Metadata.Metrics = &metrics

	if err := c.store.UpdateEntity(ctx, updated); err != nil {
		return nil, err
	}
	if err := c.index.PersistEntity(ctx, updated); err != nil {
		c.logger.Error("Failed to mirror principle to similarity index",
			zap.String("principle", updated.Name),
			zap.Error(err),
		)
		return &updated, err
	}

	c.logger.Info("Principle application tracked",
		zap.String("principle", updated.Name),
		zap.String("outcome", in.Outcome),
		zap.Int("times_applied", metrics.TimesApplied),
		zap.Float64("effectiveness_score", metrics.EffectivenessScore),
	)
	return &updated, nil
}
