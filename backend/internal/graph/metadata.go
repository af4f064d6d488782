package graph

import (
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time. Tests pass a fixed clock.
type Clock func() time.Time

// SystemClock returns the wall clock in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}

// NormalizeEntity ensures the entity carries an id, a creation time and a
// fresh update time. An existing id and created_at are kept.
func NormalizeEntity(e Entity, now Clock) Entity {
	out := e.Clone()
	ts := now()
	if out.Metadata == nil {
		out.Metadata = &EntityMetadata{}
	}
	if out.Metadata.ID == "" {
		out.Metadata.ID = uuid.NewString()
	}
	if out.Metadata.CreatedAt.IsZero() {
		out.Metadata.CreatedAt = ts
	}
	out.Metadata.UpdatedAt = ts
	if out.Observations == nil {
		out.Observations = []string{}
	}
	return out
}

// NormalizeRelation is the relation counterpart of NormalizeEntity
func NormalizeRelation(r Relation, now Clock) Relation {
	out := r.Clone()
	ts := now()
	if out.Metadata == nil {
		out.Metadata = &RelationMetadata{}
	}
	if out.Metadata.ID == "" {
		out.Metadata.ID = uuid.NewString()
	}
	if out.Metadata.CreatedAt.IsZero() {
		out.Metadata.CreatedAt = ts
	}
	out.Metadata.UpdatedAt = ts
	return out
}

// NormalizeEntities applies NormalizeEntity with a single timestamp for the batch
func NormalizeEntities(entities []Entity, now Clock) []Entity {
	ts := now()
	fixed := func() time.Time { return ts }
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, NormalizeEntity(e, fixed))
	}
	return out
}

// NormalizeRelations applies NormalizeRelation with a single timestamp for the batch
func NormalizeRelations(relations []Relation, now Clock) []Relation {
	ts := now()
	fixed := func() time.Time { return ts }
	out := make([]Relation, 0, len(relations))
	for _, r := range relations {
		out = append(out, NormalizeRelation(r, fixed))
	}
	return out
}
