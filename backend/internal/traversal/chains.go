package traversal

import (
	"fmt"
	"sort"

	"hybrid-memory/backend/internal/graph"
	apperrors "hybrid-memory/backend/pkg/errors"
)

// Chain is one directed path of outgoing relations from the start entity.
// TotalStrength is the average strength of its edges.
type Chain struct {
	Entities      []string         `json:"entities"`
	Relations     []graph.Relation `json:"relations"`
	TotalStrength float64          `json:"total_strength"`
	Length        int              `json:"length"`
}

// frame is one pending extension point. visited holds the edges already on
// this branch's path and is never shared with sibling frames.
type frame struct {
	node     string
	path     []string
	edges    []graph.Relation
	visited  map[graph.RelationKey]bool
	strength float64
}

// FindRelationshipChains enumerates every path of outgoing relations up to
// maxDepth hops starting at the entity with the given id or name. An edge may
// appear in several chains but at most once per chain. Chains are returned
// strongest first; ties keep discovery order.
func FindRelationshipChains(g graph.KnowledgeGraph, startID string, maxDepth int) ([]Chain, error) {
	if maxDepth < MinChainDepth || maxDepth > MaxChainDepth {
		return nil, apperrors.NewValidation("max_depth", fmt.Sprintf("must be between %d and %d, got %d", MinChainDepth, MaxChainDepth, maxDepth))
	}
	start, ok := g.Resolve(startID)
	if !ok {
		return nil, apperrors.NewEntityNotFound(startID)
	}

	outgoing := map[string][]graph.Relation{}
	for _, r := range g.Relations {
		outgoing[r.From] = append(outgoing[r.From], r)
	}

	chains := []Chain{}
	stack := []frame{{
		node:    start.Name,
		path:    []string{start.Name},
		visited: map[graph.RelationKey]bool{},
	}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n := len(f.edges); n > 0 {
			chains = append(chains, Chain{
				Entities:      f.path,
				Relations:     f.edges,
				TotalStrength: f.strength / float64(n),
				Length:        n,
			})
		}
		if len(f.edges) >= maxDepth {
			continue
		}

		var next []frame
		for _, r := range outgoing[f.node] {
			if f.visited[r.Key()] {
				continue
			}
			next = append(next, frame{
				node:     r.To,
				path:     append(append(make([]string, 0, len(f.path)+1), f.path...), r.To),
				edges:    append(append(make([]graph.Relation, 0, len(f.edges)+1), f.edges...), r.Clone()),
				visited:  cloneVisited(f.visited, r.Key()),
				strength: f.strength + r.Strength(),
			})
		}
		// push in reverse so the first relation is explored first
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}

	sort.SliceStable(chains, func(i, j int) bool {
		return chains[i].TotalStrength > chains[j].TotalStrength
	})
	return chains, nil
}

func cloneVisited(visited map[graph.RelationKey]bool, add graph.RelationKey) map[graph.RelationKey]bool {
	out := make(map[graph.RelationKey]bool, len(visited)+1)
	for k := range visited {
		out[k] = true
	}
	out[add] = true
	return out
}
