package similarity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hybrid-memory/backend/internal/graph"
)

// Record kinds stored in the payload type field
const (
	KindEntity   = "entity"
	KindRelation = "relation"
)

// Describe renders the sentence that is embedded for an entity
func Describe(e graph.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is a %s.", e.Name, strings.Join(e.EntityType.Labels(), " and "))
	if len(e.Observations) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(e.Observations, ". "))
	}
	if md := e.Metadata; md != nil {
		if md.Content != "" {
			b.WriteString(" Content: ")
			b.WriteString(md.Content)
		}
		if md.Domain != "" {
			b.WriteString(" Domain: ")
			b.WriteString(md.Domain)
		}
		if len(md.Tags) > 0 {
			b.WriteString(" Tags: ")
			b.WriteString(strings.Join(md.Tags, ", "))
		}
	}
	return b.String()
}

// DescribeRelation renders the sentence that is embedded for a relation
func DescribeRelation(r graph.Relation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", r.From, strings.ReplaceAll(r.RelationType, "_", " "), r.To)
	if md := r.Metadata; md != nil {
		if md.Context != "" {
			b.WriteString(". Context: ")
			b.WriteString(md.Context)
		}
		if len(md.Evidence) > 0 {
			b.WriteString(". Evidence: ")
			b.WriteString(strings.Join(md.Evidence, "; "))
		}
	}
	return b.String()
}

// EntityPointID derives the stable point id from the entity's id, or its
// name when it has no id
func EntityPointID(e graph.Entity) string {
	key := e.ID()
	if key == "" {
		key = e.Name
	}
	return pointID(KindEntity + ":" + key)
}

// EntityNamePointID is the point id an id-less entity with this name would get
func EntityNamePointID(name string) string {
	return pointID(KindEntity + ":" + name)
}

// RelationPointID derives the stable point id from from-relationType-to
func RelationPointID(r graph.Relation) string {
	return pointID(KindRelation + ":" + r.Key().String())
}

func pointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// entityPayload is the record's JSON shape plus the type discriminator and
// the numeric creation timestamp used by range filters
func entityPayload(e graph.Entity) (map[string]interface{}, error) {
	if e.Observations == nil {
		e.Observations = []string{}
	}
	payload, err := toMap(e)
	if err != nil {
		return nil, err
	}
	payload[FieldType] = KindEntity
	if e.Metadata != nil && !e.Metadata.CreatedAt.IsZero() {
		payload[FieldCreatedTS] = timestamp(e.Metadata.CreatedAt)
	}
	return payload, nil
}

func relationPayload(r graph.Relation) (map[string]interface{}, error) {
	payload, err := toMap(r)
	if err != nil {
		return nil, err
	}
	payload[FieldType] = KindRelation
	if r.Metadata != nil && !r.Metadata.CreatedAt.IsZero() {
		payload[FieldCreatedTS] = timestamp(r.Metadata.CreatedAt)
	}
	return payload, nil
}

// timestamp encodes t as microseconds since the epoch, exact in a float64
func timestamp(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return m, nil
}

// decodeEntity validates the entity payload shape and decodes it
func decodeEntity(payload map[string]interface{}) (graph.Entity, bool) {
	if payload[FieldType] != KindEntity {
		return graph.Entity{}, false
	}
	name, ok := payload[FieldName].(string)
	if !ok || name == "" {
		return graph.Entity{}, false
	}
	if _, ok := payload["observations"].([]interface{}); !ok {
		return graph.Entity{}, false
	}
	var e graph.Entity
	if err := fromMap(payload, &e); err != nil || e.EntityType.IsZero() {
		return graph.Entity{}, false
	}
	return e, true
}

// decodeRelation validates the relation payload shape and decodes it
func decodeRelation(payload map[string]interface{}) (graph.Relation, bool) {
	if payload[FieldType] != KindRelation {
		return graph.Relation{}, false
	}
	for _, field := range []string{"from", "to", "relationType"} {
		if s, ok := payload[field].(string); !ok || s == "" {
			return graph.Relation{}, false
		}
	}
	var r graph.Relation
	if err := fromMap(payload, &r); err != nil {
		return graph.Relation{}, false
	}
	return r, true
}

func fromMap(m map[string]interface{}, v interface{}) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
