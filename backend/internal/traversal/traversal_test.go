package traversal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybrid-memory/backend/internal/graph"
	apperrors "hybrid-memory/backend/pkg/errors"
)

func node(name string, id ...string) graph.Entity {
	e := graph.Entity{Name: name, EntityType: graph.Single("concept"), Observations: []string{}}
	if len(id) > 0 {
		e.Metadata = &graph.EntityMetadata{ID: id[0]}
	}
	return e
}

func edge(from, relationType, to string, strength ...float64) graph.Relation {
	r := graph.Relation{From: from, To: to, RelationType: relationType}
	if len(strength) > 0 {
		s := strength[0]
		r.Metadata = &graph.RelationMetadata{Strength: &s}
	}
	return r
}

func entityNames(entities []graph.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Name)
	}
	return out
}

func lineGraph() graph.KnowledgeGraph {
	return graph.KnowledgeGraph{
		Entities:  []graph.Entity{node("A"), node("B"), node("C")},
		Relations: []graph.Relation{edge("A", "relates_to", "B"), edge("B", "relates_to", "C")},
	}
}

// ============================================================================
// SearchRelated
// ============================================================================

func TestSearchRelated_LineScenario(t *testing.T) {
	res, err := SearchRelated(lineGraph(), "A", 2, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, entityNames(res.Entities))
	assert.Len(t, res.Relationships, 2)
	assert.Contains(t, res.Paths, Path{Path: []string{"A", "B"}, Depth: 1})
	assert.Contains(t, res.Paths, Path{Path: []string{"A", "B", "C"}, Depth: 2})
}

func TestSearchRelated_DepthZero(t *testing.T) {
	res, err := SearchRelated(lineGraph(), "B", 0, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"B"}, entityNames(res.Entities))
	assert.Empty(t, res.Relationships)
	assert.NotNil(t, res.Relationships)
	assert.Empty(t, res.Paths)
	assert.NotNil(t, res.Paths)
}

func TestSearchRelated_StartIsFirst(t *testing.T) {
	g := graph.KnowledgeGraph{Entities: []graph.Entity{node("solo")}}
	res, err := SearchRelated(g, "solo", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, entityNames(res.Entities))
}

func TestSearchRelated_IgnoresDirection(t *testing.T) {
	res, err := SearchRelated(lineGraph(), "C", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, entityNames(res.Entities))
	assert.Contains(t, res.Paths, Path{Path: []string{"C", "B", "A"}, Depth: 2})
}

func TestSearchRelated_FarEndpointsOfFrontierAreNotExpanded(t *testing.T) {
	// depth 1 reaches B; B-C is not collected because B is never expanded
	res, err := SearchRelated(lineGraph(), "A", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, entityNames(res.Entities))
	assert.Len(t, res.Relationships, 1)
	assert.Equal(t, []Path{{Path: []string{"A", "B"}, Depth: 1}}, res.Paths)
}

func TestSearchRelated_VisitsEachEntityOnce(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities: []graph.Entity{node("A"), node("B"), node("C")},
		Relations: []graph.Relation{
			edge("A", "knows", "B"),
			edge("A", "knows", "C"),
			edge("B", "knows", "C"),
			edge("C", "likes", "A"),
		},
	}
	res, err := SearchRelated(g, "A", 3, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, entityNames(res.Entities))
	assert.Len(t, res.Relationships, 4)
	assert.Len(t, res.Paths, 2)
}

func TestSearchRelated_RelationTypeAllowList(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities:  []graph.Entity{node("A"), node("B"), node("C")},
		Relations: []graph.Relation{edge("A", "works_with", "B"), edge("A", "dislikes", "C")},
	}
	res, err := SearchRelated(g, "A", 2, []string{"works_with"})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, entityNames(res.Entities))
	require.Len(t, res.Relationships, 1)
	assert.Equal(t, "works_with", res.Relationships[0].RelationType)
}

func TestSearchRelated_Errors(t *testing.T) {
	_, err := SearchRelated(lineGraph(), "missing", 1, nil)
	assert.True(t, apperrors.IsNotFound(err))

	for _, depth := range []int{-1, 6} {
		_, err := SearchRelated(lineGraph(), "A", depth, nil)
		assert.True(t, apperrors.IsValidation(err), "depth %d", depth)
	}
}

// ============================================================================
// FindRelationshipChains
// ============================================================================

func TestFindRelationshipChains_AveragesStrength(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities: []graph.Entity{node("A"), node("B"), node("C")},
		Relations: []graph.Relation{
			edge("A", "causes", "B", 1.0),
			edge("B", "causes", "C", 0.5),
		},
	}
	chains, err := FindRelationshipChains(g, "A", 3)
	require.NoError(t, err)
	require.Len(t, chains, 2)

	assert.Equal(t, []string{"A", "B"}, chains[0].Entities)
	assert.InDelta(t, 1.0, chains[0].TotalStrength, 1e-9)
	assert.Equal(t, 1, chains[0].Length)

	assert.Equal(t, []string{"A", "B", "C"}, chains[1].Entities)
	assert.InDelta(t, 0.75, chains[1].TotalStrength, 1e-9)
	assert.Equal(t, 2, chains[1].Length)
}

func TestFindRelationshipChains_NeverExceedsOne(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities: []graph.Entity{node("A"), node("B"), node("C"), node("D")},
		Relations: []graph.Relation{
			edge("A", "r", "B", 1.0),
			edge("B", "r", "C", 1.0),
			edge("C", "r", "D", 0.9),
			edge("D", "r", "A", 1.0),
			edge("A", "s", "C"),
		},
	}
	chains, err := FindRelationshipChains(g, "A", 10)
	require.NoError(t, err)
	require.NotEmpty(t, chains)
	for _, c := range chains {
		assert.LessOrEqual(t, c.TotalStrength, 1.0)
		assert.GreaterOrEqual(t, c.TotalStrength, 0.0)
		assert.LessOrEqual(t, c.Length, 10)
	}
	for i := 1; i < len(chains); i++ {
		assert.GreaterOrEqual(t, chains[i-1].TotalStrength, chains[i].TotalStrength)
	}
}

func TestFindRelationshipChains_EdgeUsedOncePerPath(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities:  []graph.Entity{node("A"), node("B")},
		Relations: []graph.Relation{edge("A", "r", "B"), edge("B", "r", "A")},
	}
	chains, err := FindRelationshipChains(g, "A", 10)
	require.NoError(t, err)

	// A->B, A->B->A; the cycle cannot reuse A->B
	require.Len(t, chains, 2)
	assert.Equal(t, []string{"A", "B"}, chains[0].Entities)
	assert.Equal(t, []string{"A", "B", "A"}, chains[1].Entities)
}

func TestFindRelationshipChains_SiblingBranchesReuseEdges(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities: []graph.Entity{node("A"), node("B"), node("C"), node("D")},
		Relations: []graph.Relation{
			edge("A", "r", "B"),
			edge("A", "r", "C"),
			edge("B", "r", "D"),
			edge("C", "r", "D"),
		},
	}
	chains, err := FindRelationshipChains(g, "A", 2)
	require.NoError(t, err)

	var paths [][]string
	for _, c := range chains {
		paths = append(paths, c.Entities)
	}
	assert.Equal(t, [][]string{{"A", "B"}, {"A", "B", "D"}, {"A", "C"}, {"A", "C", "D"}}, paths)
}

func TestFindRelationshipChains_OutgoingOnly(t *testing.T) {
	chains, err := FindRelationshipChains(lineGraph(), "C", 5)
	require.NoError(t, err)
	assert.Empty(t, chains)
}

func TestFindRelationshipChains_ResolvesByID(t *testing.T) {
	g := lineGraph()
	g.Entities[0] = node("A", "id-a")

	chains, err := FindRelationshipChains(g, "id-a", 1)
	require.NoError(t, err)
	require.Len(t, chains, 1)
	assert.Equal(t, []string{"A", "B"}, chains[0].Entities)
}

func TestFindRelationshipChains_Errors(t *testing.T) {
	_, err := FindRelationshipChains(lineGraph(), "nope", 2)
	assert.True(t, apperrors.IsNotFound(err))

	for _, depth := range []int{0, 11} {
		_, err := FindRelationshipChains(lineGraph(), "A", depth)
		assert.True(t, apperrors.IsValidation(err), "depth %d", depth)
	}
}

// ============================================================================
// AnalyzeConnections
// ============================================================================

func TestAnalyzeConnections(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities: []graph.Entity{node("Hub", "hub-1"), node("X"), node("Y")},
		Relations: []graph.Relation{
			edge("Hub", "works_with", "X", 1.0),
			edge("Hub", "mentors", "X", 0.6),
			edge("Y", "works_with", "Hub"),
			edge("X", "works_with", "Y"),
		},
	}
	a, err := AnalyzeConnections(g, "hub-1")
	require.NoError(t, err)

	assert.Equal(t, "Hub", a.Entity.Name)
	assert.Equal(t, 3, a.TotalConnections)
	assert.Equal(t, 2, a.Outgoing)
	assert.Equal(t, 1, a.Incoming)
	assert.Equal(t, []string{"mentors", "works_with"}, a.RelationTypes)
	assert.Equal(t, []string{"X", "Y"}, a.Neighbors)
	// (1.0 + 0.6 + 0.5) / 2 distinct neighbours
	assert.InDelta(t, 1.05, a.ConnectionStrength, 1e-9)

	require.Len(t, a.Clusters, 2)
	assert.Equal(t, Cluster{RelationType: "works_with", Entities: []string{"X", "Y"}, Strength: 1.0}, a.Clusters[0])
	assert.Equal(t, Cluster{RelationType: "mentors", Entities: []string{"X"}, Strength: 0.5}, a.Clusters[1])
}

func TestAnalyzeConnections_Isolated(t *testing.T) {
	a, err := AnalyzeConnections(lineGraph(), "A")
	require.NoError(t, err)
	assert.Equal(t, 1, a.TotalConnections)

	g := graph.KnowledgeGraph{Entities: []graph.Entity{node("lonely")}}
	a, err = AnalyzeConnections(g, "lonely")
	require.NoError(t, err)
	assert.Zero(t, a.TotalConnections)
	assert.Zero(t, a.ConnectionStrength)
	assert.Empty(t, a.Clusters)

	_, err = AnalyzeConnections(g, "ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRelationContext(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities: []graph.Entity{node("A"), node("B"), node("C")},
		Relations: []graph.Relation{
			edge("A", "uses", "B", 0.2),
			edge("B", "uses", "A", 0.9),
			edge("A", "uses", "C", 1.0),
			edge("A", "ignores", "B", 1.0),
		},
	}
	ctx := RelationContext(g, []string{"A", "B"}, []string{"uses"})
	require.Len(t, ctx, 2)
	assert.Equal(t, "B", ctx[0].From)
	assert.Equal(t, "A", ctx[1].From)

	assert.Empty(t, RelationContext(g, []string{"A", "B"}, nil))
}
