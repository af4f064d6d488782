package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityType_JSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		labels   []string
		multiple bool
		output   string
	}{
		{name: "single label", input: `"person"`, labels: []string{"person"}, output: `"person"`},
		{name: "label list", input: `["person","concept"]`, labels: []string{"person", "concept"}, multiple: true, output: `["person","concept"]`},
		{name: "one element list stays a list", input: `["person"]`, labels: []string{"person"}, multiple: true, output: `["person"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var et EntityType
			require.NoError(t, json.Unmarshal([]byte(tt.input), &et))
			assert.Equal(t, tt.labels, et.Labels())
			assert.Equal(t, tt.multiple, et.IsMultiple())

			out, err := json.Marshal(et)
			require.NoError(t, err)
			assert.JSONEq(t, tt.output, string(out))
		})
	}
}

func TestEntityType_RejectsInvalidShapes(t *testing.T) {
	var et EntityType
	assert.Error(t, json.Unmarshal([]byte(`[]`), &et))
	assert.Error(t, json.Unmarshal([]byte(`42`), &et))
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &et))
}

func TestEntityType_LabelsIsACopy(t *testing.T) {
	et := Multiple("a", "b")
	labels := et.Labels()
	labels[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, et.Labels())
	assert.True(t, et.Has("b"))
	assert.Equal(t, "a, b", et.String())
}

func TestRelation_StrengthDefault(t *testing.T) {
	r := Relation{From: "a", To: "b", RelationType: "r"}
	assert.Equal(t, DefaultRelationStrength, r.Strength())

	s := 0.8
	r.Metadata = &RelationMetadata{Strength: &s}
	assert.Equal(t, 0.8, r.Strength())
	assert.Equal(t, "a-r-b", r.Key().String())
}

func TestKnowledgeGraph_ResolvePrefersID(t *testing.T) {
	g := KnowledgeGraph{Entities: []Entity{
		{Name: "first", EntityType: Single("x"), Metadata: &EntityMetadata{ID: "second"}},
		{Name: "second", EntityType: Single("x")},
	}}

	e, ok := g.Resolve("second")
	require.True(t, ok)
	assert.Equal(t, "first", e.Name)

	e, ok = g.Resolve("first")
	require.True(t, ok)
	assert.Equal(t, "first", e.Name)

	_, ok = g.Resolve("third")
	assert.False(t, ok)
}

func TestNormalizeEntity(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := func() time.Time { return now }

	e := NormalizeEntity(Entity{Name: "A", EntityType: Single("x")}, clock)
	require.NotNil(t, e.Metadata)
	assert.NotEmpty(t, e.Metadata.ID)
	assert.Equal(t, now, e.Metadata.CreatedAt)
	assert.Equal(t, now, e.Metadata.UpdatedAt)
	assert.NotNil(t, e.Observations)

	created := now.Add(-time.Hour)
	later := now.Add(time.Hour)
	kept := NormalizeEntity(Entity{
		Name:       "B",
		EntityType: Single("x"),
		Metadata:   &EntityMetadata{ID: "fixed", CreatedAt: created, Domain: "go"},
	}, func() time.Time { return later })
	assert.Equal(t, "fixed", kept.Metadata.ID)
	assert.Equal(t, created, kept.Metadata.CreatedAt)
	assert.Equal(t, later, kept.Metadata.UpdatedAt)
	assert.Equal(t, "go", kept.Metadata.Domain)
}

func TestNormalizeRelation_DoesNotMutateInput(t *testing.T) {
	in := Relation{From: "a", To: "b", RelationType: "r"}
	out := NormalizeRelation(in, fixedClock)

	assert.Nil(t, in.Metadata)
	require.NotNil(t, out.Metadata)
	assert.NotEmpty(t, out.Metadata.ID)
	assert.Nil(t, out.Metadata.Strength)
	assert.Equal(t, DefaultRelationStrength, out.Strength())
}

func TestNormalizeEntities_SharesTimestamp(t *testing.T) {
	calls := 0
	clock := func() time.Time {
		calls++
		return fixedClock().Add(time.Duration(calls) * time.Second)
	}
	out := NormalizeEntities([]Entity{{Name: "a"}, {Name: "b"}}, clock)
	require.Len(t, out, 2)
	assert.Equal(t, out[0].Metadata.CreatedAt, out[1].Metadata.CreatedAt)
	assert.NotEqual(t, out[0].Metadata.ID, out[1].Metadata.ID)
}

func TestValidateEntityAndRelation(t *testing.T) {
	assert.Error(t, ValidateEntity(Entity{Name: " ", EntityType: Single("x")}))
	assert.Error(t, ValidateEntity(Entity{Name: "a"}))
	assert.Error(t, ValidateEntity(Entity{Name: "a", EntityType: Multiple("x", "")}))
	assert.NoError(t, ValidateEntity(Entity{Name: "a", EntityType: Single("x")}))

	bad := 1.5
	assert.Error(t, ValidateRelation(Relation{From: "a", To: "b"}))
	assert.Error(t, ValidateRelation(Relation{From: "a", To: "b", RelationType: "r", Metadata: &RelationMetadata{Strength: &bad}}))
	assert.NoError(t, ValidateRelation(Relation{From: "a", To: "b", RelationType: "r"}))
}

func TestMetadata_ZeroTimestampsOmitted(t *testing.T) {
	data, err := json.Marshal(Entity{
		Name:       "x",
		EntityType: Single("note"),
		Metadata:   &EntityMetadata{ID: "id-1", Metrics: &Metrics{Version: 1}},
	})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "0001-01-01")
	assert.NotContains(t, string(data), "created_at")
	assert.NotContains(t, string(data), "last_applied")

	strength := 0.4
	data, err = json.Marshal(Relation{From: "a", To: "b", RelationType: "r", Metadata: &RelationMetadata{Strength: &strength}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "updated_at")

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err = json.Marshal(EntityMetadata{CreatedAt: created})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"created_at":"2024-01-02T03:04:05Z"`)
}
