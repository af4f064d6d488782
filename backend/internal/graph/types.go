package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Knowledge Graph Types
// ============================================================================

// DefaultRelationStrength is used wherever a relation carries no strength
const DefaultRelationStrength = 0.5

// EntityType holds one category label or a non-empty ordered list of labels.
// A single label round-trips through JSON as a string, a list as an array.
type EntityType struct {
	labels []string
	multi  bool
}

// Single returns an EntityType holding exactly one label
func Single(label string) EntityType {
	return EntityType{labels: []string{label}}
}

// Multiple returns an EntityType holding an ordered list of labels
func Multiple(labels ...string) EntityType {
	cp := make([]string, len(labels))
	copy(cp, labels)
	return EntityType{labels: cp, multi: true}
}

// Labels always returns the list form
func (t EntityType) Labels() []string {
	cp := make([]string, len(t.labels))
	copy(cp, t.labels)
	return cp
}

// IsMultiple reports whether the type was declared as a list
func (t EntityType) IsMultiple() bool {
	return t.multi
}

// Primary returns the first label, or "" for a zero value
func (t EntityType) Primary() string {
	if len(t.labels) == 0 {
		return ""
	}
	return t.labels[0]
}

// Has reports whether label is one of the declared labels
func (t EntityType) Has(label string) bool {
	for _, l := range t.labels {
		if l == label {
			return true
		}
	}
	return false
}

// IsZero reports whether no label is set
func (t EntityType) IsZero() bool {
	return len(t.labels) == 0
}

// String joins the labels for human-readable output
func (t EntityType) String() string {
	if !t.multi {
		return t.Primary()
	}
	out := ""
	for i, l := range t.labels {
		if i > 0 {
			out += ", "
		}
		out += l
	}
	return out
}

func (t EntityType) MarshalJSON() ([]byte, error) {
	if t.multi {
		return json.Marshal(t.labels)
	}
	return json.Marshal(t.Primary())
}

func (t *EntityType) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = Single(single)
		return nil
	}
	var multi []string
	if err := json.Unmarshal(data, &multi); err != nil {
		return fmt.Errorf("entityType must be a string or a list of strings: %w", err)
	}
	if len(multi) == 0 {
		return fmt.Errorf("entityType list must not be empty")
	}
	*t = Multiple(multi...)
	return nil
}

// Entity is a named node with one or more type labels and free-text observations
type Entity struct {
	Name         string          `json:"name"`
	EntityType   EntityType      `json:"entityType"`
	Observations []string        `json:"observations"`
	Metadata     *EntityMetadata `json:"metadata,omitempty"`
}

// EntityMetadata carries identity, timestamps and optional descriptive fields
type EntityMetadata struct {
	ID        string    `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Domain    string    `json:"domain,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Content   string    `json:"content,omitempty"`
	Metrics   *Metrics  `json:"metrics,omitempty"`
}

// Metrics is the structured meta-learning effectiveness record. The same
// values are mirrored as KEY: value observation lines for older readers.
type Metrics struct {
	Version            int       `json:"version"`
	TimesApplied       int       `json:"times_applied"`
	TimesSuccessful    float64   `json:"times_successful"`
	TimesFailed        float64   `json:"times_failed"`
	EffectivenessScore float64   `json:"effectiveness_score"`
	LastApplied        time.Time `json:"last_applied,omitzero"`
	ApplicationLog     []string  `json:"application_log"`
}

// ID returns the stable identifier, or "" when the entity has not been normalized
func (e Entity) ID() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata.ID
}

// Clone returns a deep copy
func (e Entity) Clone() Entity {
	out := e
	out.Observations = append([]string(nil), e.Observations...)
	out.EntityType = e.EntityType
	out.EntityType.labels = append([]string(nil), e.EntityType.labels...)
	if e.Metadata != nil {
		md := *e.Metadata
		md.Tags = append([]string(nil), e.Metadata.Tags...)
		if e.Metadata.Metrics != nil {
			m := *e.Metadata.Metrics
			m.ApplicationLog = append([]string(nil), e.Metadata.Metrics.ApplicationLog...)
			md.Metrics = &m
		}
		out.Metadata = &md
	}
	return out
}

// Relation is a typed, directed edge between two entity names
type Relation struct {
	From         string            `json:"from"`
	To           string            `json:"to"`
	RelationType string            `json:"relationType"`
	Metadata     *RelationMetadata `json:"metadata,omitempty"`
}

// RelationMetadata carries identity, timestamps and evidence for a relation
type RelationMetadata struct {
	ID        string    `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Strength  *float64  `json:"strength,omitempty"`
	Context   string    `json:"context,omitempty"`
	Evidence  []string  `json:"evidence,omitempty"`
}

// RelationKey identifies a relation for upsert and delete purposes
type RelationKey struct {
	From         string
	To           string
	RelationType string
}

// Key returns the (from, to, relationType) identity of the relation
func (r Relation) Key() RelationKey {
	return RelationKey{From: r.From, To: r.To, RelationType: r.RelationType}
}

// String renders the key as from-relationType-to
func (k RelationKey) String() string {
	return k.From + "-" + k.RelationType + "-" + k.To
}

// Strength returns the relation strength, defaulting to 0.5 when absent
func (r Relation) Strength() float64 {
	if r.Metadata == nil || r.Metadata.Strength == nil {
		return DefaultRelationStrength
	}
	return *r.Metadata.Strength
}

// Touches reports whether name is either endpoint
func (r Relation) Touches(name string) bool {
	return r.From == name || r.To == name
}

// Clone returns a deep copy
func (r Relation) Clone() Relation {
	out := r
	if r.Metadata != nil {
		md := *r.Metadata
		md.Evidence = append([]string(nil), r.Metadata.Evidence...)
		if r.Metadata.Strength != nil {
			s := *r.Metadata.Strength
			md.Strength = &s
		}
		out.Metadata = &md
	}
	return out
}

// KnowledgeGraph is a full snapshot of the canonical store
type KnowledgeGraph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// Entity looks up an entity by name
func (g KnowledgeGraph) Entity(name string) (Entity, bool) {
	for _, e := range g.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// Resolve finds an entity by stable id first, then by name
func (g KnowledgeGraph) Resolve(idOrName string) (Entity, bool) {
	for _, e := range g.Entities {
		if e.ID() != "" && e.ID() == idOrName {
			return e, true
		}
	}
	return g.Entity(idOrName)
}

// Clone returns a deep copy so callers can never alias store state
func (g KnowledgeGraph) Clone() KnowledgeGraph {
	out := KnowledgeGraph{
		Entities:  make([]Entity, 0, len(g.Entities)),
		Relations: make([]Relation, 0, len(g.Relations)),
	}
	for _, e := range g.Entities {
		out.Entities = append(out.Entities, e.Clone())
	}
	for _, r := range g.Relations {
		out.Relations = append(out.Relations, r.Clone())
	}
	return out
}

// DateRange bounds created_at inclusively; either side may be open
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// SearchFilters are attribute predicates for filtered similarity search.
// Values within one field are OR-ed, fields are AND-ed.
type SearchFilters struct {
	EntityTypes []string   `json:"entity_types,omitempty"`
	Domains     []string   `json:"domains,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	DateRange   *DateRange `json:"date_range,omitempty"`
}

// IsEmpty reports whether no predicate is set
func (f *SearchFilters) IsEmpty() bool {
	return f == nil || (len(f.EntityTypes) == 0 && len(f.Domains) == 0 && len(f.Tags) == 0 && f.DateRange == nil)
}
