package similarity

import (
	"context"
)

// Point is one vector with its payload
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint is a search hit; higher scores are closer
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]interface{}
}

// Payload field names shared by every index implementation
const (
	FieldType       = "type"
	FieldName       = "name"
	FieldEntityType = "entityType"
	FieldDomain     = "metadata.domain"
	FieldTags       = "metadata.tags"
	FieldCreatedTS  = "created_us"
)

// Filter is a conjunction of payload predicates. Values inside one slice are
// alternatives; an empty field does not constrain.
type Filter struct {
	Type        string
	Name        string
	EntityTypes []string
	Domains     []string
	Tags        []string
	CreatedFrom *float64
	CreatedTo   *float64
}

// IsEmpty reports whether the filter matches everything
func (f *Filter) IsEmpty() bool {
	return f == nil || (f.Type == "" && f.Name == "" && len(f.EntityTypes) == 0 &&
		len(f.Domains) == 0 && len(f.Tags) == 0 && f.CreatedFrom == nil && f.CreatedTo == nil)
}

// PointIndex is the vector index server boundary, bound to one collection
type PointIndex interface {
	Health(ctx context.Context) error
	CollectionExists(ctx context.Context) (bool, error)
	CreateCollection(ctx context.Context, size int) error
	DeleteCollection(ctx context.Context) error
	CollectionDimension(ctx context.Context) (int, error)
	Upsert(ctx context.Context, points []Point) error
	Delete(ctx context.Context, ids []string) error
	Search(ctx context.Context, vector []float32, limit int, filter *Filter, threshold *float32) ([]ScoredPoint, error)
	Scroll(ctx context.Context, filter *Filter, limit int) ([]Point, error)
	Close() error
}
