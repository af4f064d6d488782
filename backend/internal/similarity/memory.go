package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/elliotchance/pie/v2"
)

var (
	errCollectionMissing = errors.New("collection does not exist")
	errIndexUnavailable  = errors.New("index unavailable")
)

// MemoryIndex is an in-process brute-force cosine index with the same filter
// semantics as the Qdrant implementation
type MemoryIndex struct {
	mu             sync.RWMutex
	exists         bool
	size           int
	points         map[string]Point
	order          []string
	healthFailures int
}

// NewMemoryIndex returns an index with no collection
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: map[string]Point{}}
}

// FailHealthChecks makes the next n health checks fail
func (m *MemoryIndex) FailHealthChecks(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthFailures = n
}

// Len returns the number of stored points
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func (m *MemoryIndex) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.healthFailures > 0 {
		m.healthFailures--
		return errIndexUnavailable
	}
	return nil
}

func (m *MemoryIndex) CollectionExists(ctx context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exists, nil
}

func (m *MemoryIndex) CreateCollection(ctx context.Context, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exists {
		return fmt.Errorf("collection already exists")
	}
	m.exists = true
	m.size = size
	m.points = map[string]Point{}
	m.order = nil
	return nil
}

func (m *MemoryIndex) DeleteCollection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists = false
	m.size = 0
	m.points = map[string]Point{}
	m.order = nil
	return nil
}

func (m *MemoryIndex) CollectionDimension(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.exists {
		return 0, errCollectionMissing
	}
	return m.size, nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return errCollectionMissing
	}
	for _, p := range points {
		if len(p.Vector) != m.size {
			return fmt.Errorf("vector of point %s has dimension %d, collection expects %d", p.ID, len(p.Vector), m.size)
		}
	}
	for _, p := range points {
		if _, ok := m.points[p.ID]; !ok {
			m.order = append(m.order, p.ID)
		}
		m.points[p.ID] = Point{
			ID:      p.ID,
			Vector:  append([]float32(nil), p.Vector...),
			Payload: copyPayload(p.Payload),
		}
	}
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return errCollectionMissing
	}
	for _, id := range ids {
		delete(m.points, id)
	}
	m.order = pie.Filter(m.order, func(id string) bool {
		_, ok := m.points[id]
		return ok
	})
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, vector []float32, limit int, filter *Filter, threshold *float32) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.exists {
		return nil, errCollectionMissing
	}
	if len(vector) != m.size {
		return nil, fmt.Errorf("query vector has dimension %d, collection expects %d", len(vector), m.size)
	}

	hits := []ScoredPoint{}
	for _, id := range m.order {
		p := m.points[id]
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		score := cosine(vector, p.Vector)
		if threshold != nil && score < *threshold {
			continue
		}
		hits = append(hits, ScoredPoint{ID: p.ID, Score: score, Payload: copyPayload(p.Payload)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) Scroll(ctx context.Context, filter *Filter, limit int) ([]Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.exists {
		return nil, errCollectionMissing
	}
	out := []Point{}
	for _, id := range m.order {
		p := m.points[id]
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		out = append(out, Point{ID: p.ID, Vector: append([]float32(nil), p.Vector...), Payload: copyPayload(p.Payload)})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryIndex) Close() error {
	return nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// matchesFilter mirrors Qdrant keyword matching: a field holding a list
// matches when any element matches
func matchesFilter(payload map[string]interface{}, f *Filter) bool {
	if f.IsEmpty() {
		return true
	}
	if f.Type != "" && !pie.Contains(payloadStrings(payload, FieldType), f.Type) {
		return false
	}
	if f.Name != "" && !pie.Contains(payloadStrings(payload, FieldName), f.Name) {
		return false
	}
	for _, anyOf := range []struct {
		field  string
		values []string
	}{
		{FieldEntityType, f.EntityTypes},
		{FieldDomain, f.Domains},
		{FieldTags, f.Tags},
	} {
		if len(anyOf.values) == 0 {
			continue
		}
		if len(pie.Intersect(payloadStrings(payload, anyOf.field), anyOf.values)) == 0 {
			return false
		}
	}
	if f.CreatedFrom != nil || f.CreatedTo != nil {
		ts, ok := payloadNumber(payload, FieldCreatedTS)
		if !ok {
			return false
		}
		if f.CreatedFrom != nil && ts < *f.CreatedFrom {
			return false
		}
		if f.CreatedTo != nil && ts > *f.CreatedTo {
			return false
		}
	}
	return true
}

// lookup resolves a dotted path in a nested payload
func lookup(payload map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = payload
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func payloadStrings(payload map[string]interface{}, path string) []string {
	v, ok := lookup(payload, path)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func payloadNumber(payload map[string]interface{}, path string) (float64, bool) {
	v, ok := lookup(payload, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func copyPayload(p map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
