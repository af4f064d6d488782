package metalearning

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybrid-memory/backend/internal/graph"
	apperrors "hybrid-memory/backend/pkg/errors"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNewPrinciple_FailureScenario(t *testing.T) {
	e, err := NewPrinciple(PrincipleInput{
		Principle:    "Check the schema before writing migrations",
		LearningType: "failure",
		Domain:       "databases",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(e.Name, "Meta-Learning [Failure]:"))
	assert.Contains(t, e.Observations, "TIMES_APPLIED: 0")
	assert.Contains(t, e.Observations, "LAST_APPLIED: never")
	assert.Contains(t, e.Observations, "APPLICATION_LOG: []")
	assert.Equal(t, []string{"meta_learning", "failure"}, e.EntityType.Labels())
	assert.True(t, IsPrinciple(e))
	require.NotNil(t, e.Metadata.Metrics)
	assert.Equal(t, MetricsVersion, e.Metadata.Metrics.Version)

	m, err := Apply(Current(e), OutcomeSuccessful, "ran it", now)
	require.NoError(t, err)
	obs := Encode(e.Observations, m, "")

	assert.Contains(t, obs, "TIMES_APPLIED: 1")
	assert.Contains(t, obs, "EFFECTIVENESS_SCORE: 1")
	assert.NotContains(t, obs, "TIMES_APPLIED: 0")
	assert.Len(t, obs, len(e.Observations))
}

func TestNewPrinciple_Validation(t *testing.T) {
	_, err := NewPrinciple(PrincipleInput{Principle: "x", LearningType: "guess"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = NewPrinciple(PrincipleInput{Principle: "  ", LearningType: "insight"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestPrincipleName_Truncates(t *testing.T) {
	long := strings.Repeat("a", 100)
	name := PrincipleName("Insight", long)
	assert.True(t, strings.HasPrefix(name, "Meta-Learning [Insight]: "))
	assert.True(t, strings.HasSuffix(name, "..."))
	assert.Less(t, len(name), 100)
}

func TestApply_Outcomes(t *testing.T) {
	m := NewMetrics()
	var err error

	m, err = Apply(m, OutcomeSuccessful, "", now)
	require.NoError(t, err)
	m, err = Apply(m, OutcomeFailed, "", now)
	require.NoError(t, err)
	m, err = Apply(m, OutcomePartiallySuccessful, "half", now)
	require.NoError(t, err)

	assert.Equal(t, 3, m.TimesApplied)
	assert.InDelta(t, 1.5, m.TimesSuccessful, 1e-9)
	assert.InDelta(t, 1.5, m.TimesFailed, 1e-9)
	assert.InDelta(t, 0.5, m.EffectivenessScore, 1e-9)
	assert.Equal(t, now, m.LastApplied)
	require.Len(t, m.ApplicationLog, 3)
	assert.Equal(t, "2024-06-01T12:00:00Z: partially_successful - half", m.ApplicationLog[2])

	_, err = Apply(m, "maybe", "", now)
	assert.True(t, apperrors.IsValidation(err))
}

func TestApply_Monotonic(t *testing.T) {
	m := NewMetrics()
	outcomes := []string{OutcomeFailed, OutcomeSuccessful, OutcomePartiallySuccessful, OutcomeFailed, OutcomeFailed}
	for i, outcome := range outcomes {
		var err error
		m, err = Apply(m, outcome, "", now)
		require.NoError(t, err)
		assert.Equal(t, i+1, m.TimesApplied)
		assert.GreaterOrEqual(t, m.EffectivenessScore, 0.0)
		assert.LessOrEqual(t, m.EffectivenessScore, 1.0)

		// the text round trip agrees with the structured record
		decoded := Decode(Encode(nil, m, ""))
		assert.Equal(t, m.TimesApplied, decoded.TimesApplied)
		assert.InDelta(t, m.EffectivenessScore, decoded.EffectivenessScore, 1e-9)
	}
}

func TestDecode_MalformedValuesDefault(t *testing.T) {
	m := Decode([]string{
		"TIMES_APPLIED: lots",
		"TIMES_SUCCESSFUL: NaN",
		"TIMES_FAILED: -2",
		"EFFECTIVENESS_SCORE: abc",
		"LAST_APPLIED: yesterday",
		"APPLICATION_LOG: [not json",
		"unrelated line",
	})
	assert.Zero(t, m.TimesApplied)
	assert.Zero(t, m.TimesSuccessful)
	assert.Zero(t, m.TimesFailed)
	assert.Zero(t, m.EffectivenessScore)
	assert.True(t, m.LastApplied.IsZero())
	assert.Equal(t, []string{}, m.ApplicationLog)
}

func TestDecode_ReadsValues(t *testing.T) {
	m := Decode([]string{
		"TIMES_APPLIED: 4",
		"TIMES_SUCCESSFUL: 2.5",
		"TIMES_FAILED: 1.5",
		"EFFECTIVENESS_SCORE: 0.625",
		"LAST_APPLIED: 2024-06-01T12:00:00Z",
		`APPLICATION_LOG: ["a: b", "c"]`,
	})
	assert.Equal(t, 4, m.TimesApplied)
	assert.InDelta(t, 2.5, m.TimesSuccessful, 1e-9)
	assert.InDelta(t, 1.5, m.TimesFailed, 1e-9)
	assert.InDelta(t, 0.625, m.EffectivenessScore, 1e-9)
	assert.Equal(t, now, m.LastApplied)
	assert.Equal(t, []string{"a: b", "c"}, m.ApplicationLog)
}

func TestEncode_RewritesInPlace(t *testing.T) {
	original := []string{
		"first note",
		"TIMES_APPLIED: 7",
		"middle note",
		"EFFECTIVENESS_SCORE: 0.1",
	}
	m := NewMetrics()
	m.TimesApplied = 8
	m.TimesSuccessful = 2
	m.EffectivenessScore = 0.25

	out := Encode(original, m, "keep migrations small")

	assert.Equal(t, "first note", out[0])
	assert.Equal(t, "TIMES_APPLIED: 8", out[1])
	assert.Equal(t, "middle note", out[2])
	assert.Equal(t, "EFFECTIVENESS_SCORE: 0.25", out[3])
	assert.Equal(t, []string{
		"TIMES_SUCCESSFUL: 2",
		"TIMES_FAILED: 0",
		"LAST_APPLIED: never",
		"APPLICATION_LOG: []",
		"LESSONS_LEARNED: keep migrations small",
	}, out[4:])

	// input untouched
	assert.Equal(t, "TIMES_APPLIED: 7", original[1])
}

func TestCurrent_PrefersStructuredMetrics(t *testing.T) {
	structured := NewMetrics()
	structured.TimesApplied = 9
	e := graph.Entity{
		Name:         "p",
		Observations: []string{"TIMES_APPLIED: 2"},
		Metadata:     &graph.EntityMetadata{Metrics: &structured},
	}
	assert.Equal(t, 9, Current(e).TimesApplied)

	e.Metadata.Metrics = nil
	assert.Equal(t, 2, Current(e).TimesApplied)
}
