package graph

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Helper Functions
// ============================================================================

var nonLabelChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// sanitizeLabel turns an entity type into a safe, backtick-quoted node label.
// Labels cannot be passed as query parameters.
func sanitizeLabel(entityType string) string {
	label := nonLabelChars.ReplaceAllString(strings.TrimSpace(entityType), "_")
	if label == "" {
		return ""
	}
	if label[0] >= '0' && label[0] <= '9' {
		label = "T_" + label
	}
	if label == "Entity" {
		return ""
	}
	return "`" + label + "`"
}

// labelClause renders ":`a`:`b`" for every sanitized label, skipping duplicates
func labelClause(types []string) string {
	seen := map[string]struct{}{}
	var b strings.Builder
	for _, t := range types {
		l := sanitizeLabel(t)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		b.WriteString(":")
		b.WriteString(l)
	}
	return b.String()
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func getStringFromMap(m map[string]interface{}, key string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getStringSliceFromMap(m map[string]interface{}, key string) []string {
	val, ok := m[key]
	if !ok || val == nil {
		return []string{}
	}
	if slice, ok := val.([]interface{}); ok {
		result := make([]string, 0, len(slice))
		for _, v := range slice {
			if str, ok := v.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	if slice, ok := val.([]string); ok {
		return append([]string{}, slice...)
	}
	return []string{}
}

func getBoolFromMap(m map[string]interface{}, key string) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return false
}

func getFloat64PtrFromMap(m map[string]interface{}, key string) *float64 {
	val, ok := m[key]
	if !ok || val == nil {
		return nil
	}
	switch v := val.(type) {
	case float64:
		return &v
	case int64:
		f := float64(v)
		return &f
	}
	return nil
}

func getTimeFromMap(m map[string]interface{}, key string) time.Time {
	switch v := m[key].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	case time.Time:
		return v
	}
	return time.Time{}
}

func getMapFromRecord(record *neo4j.Record, key string) map[string]interface{} {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return map[string]interface{}{}
	}
	if m, ok := val.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getStringSliceFromRecord(record *neo4j.Record, key string) []string {
	val, _ := record.Get(key)
	return getStringSliceFromMap(map[string]interface{}{key: val}, key)
}

// entityParams flattens an entity into node properties
func entityParams(e Entity) map[string]interface{} {
	params := map[string]interface{}{
		"name":            e.Name,
		"entityType":      e.EntityType.Labels(),
		"entityTypeMulti": e.EntityType.IsMultiple(),
		"observations":    nonNil(e.Observations),
		"id":              nil,
		"created_at":      nil,
		"updated_at":      nil,
		"domain":          nil,
		"tags":            nil,
		"content":         nil,
		"metrics":         nil,
	}
	if md := e.Metadata; md != nil {
		params["id"] = md.ID
		params["created_at"] = formatTime(md.CreatedAt)
		params["updated_at"] = formatTime(md.UpdatedAt)
		if md.Domain != "" {
			params["domain"] = md.Domain
		}
		if len(md.Tags) > 0 {
			params["tags"] = md.Tags
		}
		if md.Content != "" {
			params["content"] = md.Content
		}
		if md.Metrics != nil {
			if data, err := json.Marshal(md.Metrics); err == nil {
				params["metrics"] = string(data)
			}
		}
	}
	return params
}

// entityFromProps rebuilds an entity from node properties
func entityFromProps(props map[string]interface{}) Entity {
	types := getStringSliceFromMap(props, "entityType")
	var et EntityType
	if getBoolFromMap(props, "entityTypeMulti") || len(types) > 1 {
		et = Multiple(types...)
	} else if len(types) == 1 {
		et = Single(types[0])
	}

	e := Entity{
		Name:         getStringFromMap(props, "name"),
		EntityType:   et,
		Observations: getStringSliceFromMap(props, "observations"),
	}

	md := &EntityMetadata{
		ID:        getStringFromMap(props, "id"),
		CreatedAt: getTimeFromMap(props, "created_at"),
		UpdatedAt: getTimeFromMap(props, "updated_at"),
		Domain:    getStringFromMap(props, "domain"),
		Content:   getStringFromMap(props, "content"),
	}
	if tags := getStringSliceFromMap(props, "tags"); len(tags) > 0 {
		md.Tags = tags
	}
	if raw := getStringFromMap(props, "metrics"); raw != "" {
		var m Metrics
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			md.Metrics = &m
		}
	}
	if md.ID != "" || !md.CreatedAt.IsZero() || md.Domain != "" || md.Content != "" || md.Tags != nil || md.Metrics != nil {
		e.Metadata = md
	}
	return e
}

// relationParams flattens relation metadata into edge properties
func relationParams(r Relation) map[string]interface{} {
	params := map[string]interface{}{
		"from":         r.From,
		"to":           r.To,
		"relationType": r.RelationType,
		"id":           nil,
		"created_at":   nil,
		"updated_at":   nil,
		"strength":     nil,
		"context":      nil,
		"evidence":     nil,
	}
	if md := r.Metadata; md != nil {
		params["id"] = md.ID
		params["created_at"] = formatTime(md.CreatedAt)
		params["updated_at"] = formatTime(md.UpdatedAt)
		if md.Strength != nil {
			params["strength"] = *md.Strength
		}
		if md.Context != "" {
			params["context"] = md.Context
		}
		if len(md.Evidence) > 0 {
			params["evidence"] = md.Evidence
		}
	}
	return params
}

// relationFromProps rebuilds a relation from edge properties and endpoint names
func relationFromProps(from, to string, props map[string]interface{}) Relation {
	r := Relation{
		From:         from,
		To:           to,
		RelationType: getStringFromMap(props, "relationType"),
	}
	md := &RelationMetadata{
		ID:        getStringFromMap(props, "id"),
		CreatedAt: getTimeFromMap(props, "created_at"),
		UpdatedAt: getTimeFromMap(props, "updated_at"),
		Strength:  getFloat64PtrFromMap(props, "strength"),
		Context:   getStringFromMap(props, "context"),
	}
	if ev := getStringSliceFromMap(props, "evidence"); len(ev) > 0 {
		md.Evidence = ev
	}
	if md.ID != "" || md.Strength != nil || md.Context != "" || md.Evidence != nil || !md.CreatedAt.IsZero() {
		r.Metadata = md
	}
	return r
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
