package traversal

import (
	"sort"

	"github.com/elliotchance/pie/v2"

	"hybrid-memory/backend/internal/graph"
)

// RelationContext returns the relations of the given types whose endpoints
// are both among names, strongest first
func RelationContext(g graph.KnowledgeGraph, names []string, relationTypes []string) []graph.Relation {
	out := []graph.Relation{}
	if len(relationTypes) == 0 || len(names) == 0 {
		return out
	}
	members := make(map[string]bool, len(names))
	for _, n := range names {
		members[n] = true
	}
	for _, r := range g.Relations {
		if pie.Contains(relationTypes, r.RelationType) && members[r.From] && members[r.To] {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strength() > out[j].Strength()
	})
	return out
}
