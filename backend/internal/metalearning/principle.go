package metalearning

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/elliotchance/pie/v2"

	"hybrid-memory/backend/internal/graph"
	apperrors "hybrid-memory/backend/pkg/errors"
)

// Principle entity conventions
const (
	PrincipleEntityType = "meta_learning"
	DomainEntityType    = "domain"
	RelationAppliesTo   = "applies_to_domain"
	RelationDerivedFrom = "derived_from"

	namePrefix       = "Meta-Learning"
	maxNamePrinciple = 60
)

// LearningTypes are the accepted learning_type values
var LearningTypes = []string{"failure", "success", "optimization", "insight", "pattern"}

// PrincipleInput describes a lesson to store as a tracked principle
type PrincipleInput struct {
	Principle           string   `json:"principle" binding:"required"`
	LearningType        string   `json:"learning_type" binding:"required"`
	TriggerSituation    string   `json:"trigger_situation,omitempty"`
	ObservedBehavior    string   `json:"observed_behavior,omitempty"`
	RecommendedBehavior string   `json:"recommended_behavior,omitempty"`
	Impact              string   `json:"impact,omitempty"`
	Domain              string   `json:"domain,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	RelatedEntities     []string `json:"related_entities,omitempty"`
}

// PrincipleName is the entity name under which a principle is stored
func PrincipleName(learningType, principle string) string {
	return fmt.Sprintf("%s [%s]: %s", namePrefix, titleCase(learningType), truncate(strings.TrimSpace(principle), maxNamePrinciple))
}

// IsPrinciple reports whether the entity carries the principle label
func IsPrinciple(e graph.Entity) bool {
	return e.EntityType.Has(PrincipleEntityType)
}

// NewPrinciple builds the principle entity with a zeroed metrics block
func NewPrinciple(in PrincipleInput) (graph.Entity, error) {
	principle := strings.TrimSpace(in.Principle)
	if principle == "" {
		return graph.Entity{}, apperrors.NewValidation("principle", "must not be empty")
	}
	learningType := strings.ToLower(strings.TrimSpace(in.LearningType))
	if !pie.Contains(LearningTypes, learningType) {
		return graph.Entity{}, apperrors.NewValidation("learning_type",
			fmt.Sprintf("must be one of %s, got %q", strings.Join(LearningTypes, ", "), in.LearningType))
	}

	observations := []string{
		"PRINCIPLE: " + principle,
		"LEARNING_TYPE: " + learningType,
	}
	for _, field := range []struct{ key, value string }{
		{"TRIGGER_SITUATION", in.TriggerSituation},
		{"OBSERVED_BEHAVIOR", in.ObservedBehavior},
		{"RECOMMENDED_BEHAVIOR", in.RecommendedBehavior},
		{"IMPACT", in.Impact},
		{"DOMAIN", in.Domain},
	} {
		if v := strings.TrimSpace(field.value); v != "" {
			observations = append(observations, field.key+": "+v)
		}
	}

	metrics := NewMetrics()
	observations = Encode(observations, metrics, "")

	tags := append([]string{PrincipleEntityType, learningType}, in.Tags...)
	return graph.Entity{
		Name:         PrincipleName(learningType, principle),
		EntityType:   graph.Multiple(PrincipleEntityType, learningType),
		Observations: observations,
		Metadata: &graph.EntityMetadata{
			Domain:  strings.TrimSpace(in.Domain),
			Tags:    pie.Sort(pie.Unique(tags)),
			Content: principle,
			Metrics: &metrics,
		},
	}, nil
}

func titleCase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + s[size:]
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "..."
}
