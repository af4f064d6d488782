package traversal

import (
	"github.com/elliotchance/pie/v2"

	"hybrid-memory/backend/internal/graph"
	apperrors "hybrid-memory/backend/pkg/errors"
)

// Cluster groups the neighbours reached through one relation type
type Cluster struct {
	RelationType string   `json:"relation_type"`
	Entities     []string `json:"entities"`
	Strength     float64  `json:"strength"`
}

// ConnectionAnalysis summarizes how an entity is wired into the graph
type ConnectionAnalysis struct {
	Entity             graph.Entity     `json:"entity"`
	Relations          []graph.Relation `json:"relations"`
	RelationTypes      []string         `json:"relation_types"`
	TotalConnections   int              `json:"total_connections"`
	Incoming           int              `json:"incoming"`
	Outgoing           int              `json:"outgoing"`
	Neighbors          []string         `json:"neighbors"`
	ConnectionStrength float64          `json:"connection_strength"`
	Clusters           []Cluster        `json:"clusters"`
}

// AnalyzeConnections computes incident relation statistics for the entity
// with the given id or name. Connection strength is the summed relation
// strength divided by the number of distinct neighbours, so parallel
// relations to one neighbour do not dilute it.
func AnalyzeConnections(g graph.KnowledgeGraph, id string) (*ConnectionAnalysis, error) {
	e, ok := g.Resolve(id)
	if !ok {
		return nil, apperrors.NewEntityNotFound(id)
	}

	a := &ConnectionAnalysis{
		Entity:        e.Clone(),
		Relations:     []graph.Relation{},
		RelationTypes: []string{},
		Neighbors:     []string{},
		Clusters:      []Cluster{},
	}

	var strength float64
	seenNeighbor := map[string]bool{}
	clusterIndex := map[string]int{}
	for _, r := range g.Relations {
		if !r.Touches(e.Name) {
			continue
		}
		a.Relations = append(a.Relations, r.Clone())
		strength += r.Strength()

		neighbor := r.To
		if r.From == e.Name {
			a.Outgoing++
		}
		if r.To == e.Name {
			a.Incoming++
			neighbor = r.From
		}
		if !seenNeighbor[neighbor] {
			seenNeighbor[neighbor] = true
			a.Neighbors = append(a.Neighbors, neighbor)
		}

		i, ok := clusterIndex[r.RelationType]
		if !ok {
			i = len(a.Clusters)
			clusterIndex[r.RelationType] = i
			a.Clusters = append(a.Clusters, Cluster{RelationType: r.RelationType, Entities: []string{}})
		}
		if !pie.Contains(a.Clusters[i].Entities, neighbor) {
			a.Clusters[i].Entities = append(a.Clusters[i].Entities, neighbor)
		}
	}

	a.TotalConnections = len(a.Relations)
	if len(a.Relations) > 0 {
		a.RelationTypes = pie.Sort(pie.Unique(pie.Map(a.Relations, func(r graph.Relation) string {
			return r.RelationType
		})))
	}
	if n := len(a.Neighbors); n > 0 {
		a.ConnectionStrength = strength / float64(n)
		for i := range a.Clusters {
			a.Clusters[i].Strength = float64(len(a.Clusters[i].Entities)) / float64(n)
		}
	}
	return a, nil
}
