package traversal

import (
	"fmt"

	"github.com/elliotchance/pie/v2"

	"hybrid-memory/backend/internal/graph"
	apperrors "hybrid-memory/backend/pkg/errors"
)

// Depth bounds accepted by the traversal operations
const (
	MaxRelatedDepth = 5
	MinChainDepth   = 1
	MaxChainDepth   = 10
)

// Path is the route from the start entity to one visited entity
type Path struct {
	Path  []string `json:"path"`
	Depth int      `json:"depth"`
}

// RelatedResult is the neighbourhood discovered by SearchRelated
type RelatedResult struct {
	Entities      []graph.Entity   `json:"entities"`
	Relationships []graph.Relation `json:"relationships"`
	Paths         []Path           `json:"paths"`
}

type queued struct {
	name  string
	path  []string
	depth int
}

// SearchRelated walks the graph breadth-first from start, ignoring edge
// direction. Each entity is expanded at most once. Relations incident to an
// expanded entity are reported together with their far endpoint even when
// that endpoint is not expanded itself.
func SearchRelated(g graph.KnowledgeGraph, start string, maxDepth int, relationTypes []string) (*RelatedResult, error) {
	if maxDepth < 0 || maxDepth > MaxRelatedDepth {
		return nil, apperrors.NewValidation("max_depth", fmt.Sprintf("must be between 0 and %d, got %d", MaxRelatedDepth, maxDepth))
	}
	if _, ok := g.Entity(start); !ok {
		return nil, apperrors.NewEntityNotFound(start)
	}

	visited := map[string]bool{start: true}
	discovered := []string{start}
	seenEntity := map[string]bool{start: true}
	seenRelation := map[graph.RelationKey]bool{}

	result := &RelatedResult{
		Relationships: []graph.Relation{},
		Paths:         []Path{},
	}

	queue := []queued{{name: start, path: []string{start}}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth > 0 {
			result.Paths = append(result.Paths, Path{Path: cur.path, Depth: cur.depth})
		}
		if cur.depth >= maxDepth {
			continue
		}

		for _, r := range g.Relations {
			if !r.Touches(cur.name) {
				continue
			}
			if len(relationTypes) > 0 && !pie.Contains(relationTypes, r.RelationType) {
				continue
			}
			if !seenRelation[r.Key()] {
				seenRelation[r.Key()] = true
				result.Relationships = append(result.Relationships, r.Clone())
			}

			other := r.To
			if r.To == cur.name {
				other = r.From
			}
			if !seenEntity[other] {
				seenEntity[other] = true
				discovered = append(discovered, other)
			}
			if visited[other] {
				continue
			}
			visited[other] = true

			path := make([]string, len(cur.path), len(cur.path)+1)
			copy(path, cur.path)
			queue = append(queue, queued{name: other, path: append(path, other), depth: cur.depth + 1})
		}
	}

	result.Entities = make([]graph.Entity, 0, len(discovered))
	for _, name := range discovered {
		if e, ok := g.Entity(name); ok {
			result.Entities = append(result.Entities, e.Clone())
		}
	}
	return result, nil
}
