package graph

import (
	"context"
	"fmt"
	"strings"

	apperrors "hybrid-memory/backend/pkg/errors"
)

// Store is the canonical record store. Every implementation enforces the same
// invariants: unique entity names, relation endpoints that exist when the
// relation is accepted, and relation identity by (from, to, relationType).
type Store interface {
	// Initialize loads existing state or starts empty
	Initialize(ctx context.Context) error
	// AddEntities stores entities whose names are not yet taken and returns them
	AddEntities(ctx context.Context, entities []Entity) ([]Entity, error)
	// AddRelations fails with a not-found error, writing nothing, when any
	// endpoint is missing. A repeated key replaces the stored relation.
	AddRelations(ctx context.Context, relations []Relation) ([]Relation, error)
	// AddObservations appends the observations the entity does not hold yet
	AddObservations(ctx context.Context, name string, observations []string) ([]string, error)
	// DeleteEntities removes entities and every relation touching them
	DeleteEntities(ctx context.Context, names []string) error
	// DeleteObservations removes every element equal to one of observations
	DeleteObservations(ctx context.Context, name string, observations []string) error
	// DeleteRelations removes relations by key
	DeleteRelations(ctx context.Context, relations []Relation) error
	// UpdateEntity replaces types, observations and metadata of an existing entity
	UpdateEntity(ctx context.Context, entity Entity) error
	// ReadGraph returns a snapshot the caller may freely modify
	ReadGraph(ctx context.Context) (KnowledgeGraph, error)
	// Close releases backend resources
	Close(ctx context.Context) error
}

// PathQuerier is implemented by stores that answer label and path lookups
// natively. Only the Neo4j Repository does.
type PathQuerier interface {
	EntitiesByType(ctx context.Context, entityType string) ([]string, error)
	RelatedByPath(ctx context.Context, name string, maxDepth int) ([]string, error)
}

var _ PathQuerier = (*Repository)(nil)

// ValidateEntity checks the shape of an entity before it reaches a store
func ValidateEntity(e Entity) error {
	if strings.TrimSpace(e.Name) == "" {
		return apperrors.NewValidation("name", "entity name must not be empty")
	}
	if e.EntityType.IsZero() {
		return apperrors.NewValidation("entityType", fmt.Sprintf("entity %q has no type", e.Name))
	}
	for _, label := range e.EntityType.Labels() {
		if strings.TrimSpace(label) == "" {
			return apperrors.NewValidation("entityType", fmt.Sprintf("entity %q has an empty type label", e.Name))
		}
	}
	return nil
}

// ValidateRelation checks the shape of a relation before it reaches a store
func ValidateRelation(r Relation) error {
	if strings.TrimSpace(r.From) == "" || strings.TrimSpace(r.To) == "" {
		return apperrors.NewValidation("relation", "from and to must not be empty")
	}
	if strings.TrimSpace(r.RelationType) == "" {
		return apperrors.NewValidation("relationType", fmt.Sprintf("relation %s -> %s has no type", r.From, r.To))
	}
	if r.Metadata != nil && r.Metadata.Strength != nil {
		if s := *r.Metadata.Strength; s < 0 || s > 1 {
			return apperrors.NewValidation("strength", fmt.Sprintf("%v is outside [0,1]", s))
		}
	}
	return nil
}

// mergeObservations returns the observations to append, skipping any already
// present or repeated within the batch
func mergeObservations(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, o := range existing {
		seen[o] = struct{}{}
	}
	added := []string{}
	for _, o := range incoming {
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		added = append(added, o)
	}
	return added
}

// removeObservations drops every element equal to one of the given strings
func removeObservations(existing, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, o := range remove {
		drop[o] = struct{}{}
	}
	kept := make([]string, 0, len(existing))
	for _, o := range existing {
		if _, ok := drop[o]; ok {
			continue
		}
		kept = append(kept, o)
	}
	return kept
}
