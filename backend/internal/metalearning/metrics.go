package metalearning

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"hybrid-memory/backend/internal/graph"
	apperrors "hybrid-memory/backend/pkg/errors"
)

// MetricsVersion is stamped on structured metrics written by this package
const MetricsVersion = 1

// Observation line prefixes of the text encoding
const (
	KeyTimesApplied       = "TIMES_APPLIED"
	KeyTimesSuccessful    = "TIMES_SUCCESSFUL"
	KeyTimesFailed        = "TIMES_FAILED"
	KeyEffectivenessScore = "EFFECTIVENESS_SCORE"
	KeyLastApplied        = "LAST_APPLIED"
	KeyApplicationLog     = "APPLICATION_LOG"
	KeyLessonsLearned     = "LESSONS_LEARNED"

	neverApplied = "never"
)

// Application outcomes
const (
	OutcomeSuccessful          = "successful"
	OutcomeFailed              = "failed"
	OutcomePartiallySuccessful = "partially_successful"
)

var metricKeys = []string{
	KeyTimesApplied,
	KeyTimesSuccessful,
	KeyTimesFailed,
	KeyEffectivenessScore,
	KeyLastApplied,
	KeyApplicationLog,
}

// NewMetrics returns a zeroed metrics record
func NewMetrics() graph.Metrics {
	return graph.Metrics{Version: MetricsVersion, ApplicationLog: []string{}}
}

// Decode reads the metrics block from observation lines. Missing or
// malformed values decode as zero; it never fails.
func Decode(observations []string) graph.Metrics {
	m := NewMetrics()
	for _, line := range observations {
		key, value, ok := splitLine(line)
		if !ok {
			continue
		}
		switch key {
		case KeyTimesApplied:
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				m.TimesApplied = n
			}
		case KeyTimesSuccessful:
			m.TimesSuccessful = parseCount(value)
		case KeyTimesFailed:
			m.TimesFailed = parseCount(value)
		case KeyEffectivenessScore:
			m.EffectivenessScore = clampScore(parseCount(value))
		case KeyLastApplied:
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				m.LastApplied = ts.UTC()
			}
		case KeyApplicationLog:
			var entries []string
			if err := json.Unmarshal([]byte(value), &entries); err == nil && entries != nil {
				m.ApplicationLog = entries
			}
		}
	}
	return m
}

// Current returns the structured metrics of the entity when present, else
// decodes them from its observations
func Current(e graph.Entity) graph.Metrics {
	if e.Metadata != nil && e.Metadata.Metrics != nil {
		m := *e.Metadata.Metrics
		m.ApplicationLog = append([]string{}, e.Metadata.Metrics.ApplicationLog...)
		return m
	}
	return Decode(e.Observations)
}

// Apply records one application outcome
func Apply(m graph.Metrics, outcome, detail string, now time.Time) (graph.Metrics, error) {
	switch outcome {
	case OutcomeSuccessful:
		m.TimesSuccessful++
	case OutcomeFailed:
		m.TimesFailed++
	case OutcomePartiallySuccessful:
		m.TimesSuccessful += 0.5
		m.TimesFailed += 0.5
	default:
		return m, apperrors.NewValidation("outcome", fmt.Sprintf("unknown outcome %q", outcome))
	}

	m.Version = MetricsVersion
	m.TimesApplied++
	m.EffectivenessScore = 0
	if total := m.TimesSuccessful + m.TimesFailed; total > 0 {
		m.EffectivenessScore = clampScore(m.TimesSuccessful / total)
	}
	m.LastApplied = now.UTC()

	entry := fmt.Sprintf("%s: %s", now.UTC().Format(time.RFC3339), outcome)
	if detail = strings.TrimSpace(detail); detail != "" {
		entry += " - " + detail
	}
	m.ApplicationLog = append(append([]string{}, m.ApplicationLog...), entry)
	return m, nil
}

// Encode writes the metrics block into a copy of observations. Existing
// metric lines are rewritten where they stand, missing ones are appended and
// every other line is left alone. A non-empty lessons text is appended last.
func Encode(observations []string, m graph.Metrics, lessonsLearned string) []string {
	out := append([]string{}, observations...)
	lines := encodeLines(m)

	placed := map[string]bool{}
	for i, line := range out {
		key, _, ok := splitLine(line)
		if !ok || placed[key] {
			continue
		}
		if replacement, known := lines[key]; known {
			out[i] = replacement
			placed[key] = true
		}
	}
	for _, key := range metricKeys {
		if !placed[key] {
			out = append(out, lines[key])
		}
	}

	if lessons := strings.TrimSpace(lessonsLearned); lessons != "" {
		out = append(out, KeyLessonsLearned+": "+lessons)
	}
	return out
}

func encodeLines(m graph.Metrics) map[string]string {
	lastApplied := neverApplied
	if !m.LastApplied.IsZero() {
		lastApplied = m.LastApplied.UTC().Format(time.RFC3339)
	}
	logEntries := m.ApplicationLog
	if logEntries == nil {
		logEntries = []string{}
	}
	encodedLog, err := json.Marshal(logEntries)
	if err != nil {
		encodedLog = []byte("[]")
	}

	return map[string]string{
		KeyTimesApplied:       fmt.Sprintf("%s: %d", KeyTimesApplied, m.TimesApplied),
		KeyTimesSuccessful:    KeyTimesSuccessful + ": " + formatNumber(m.TimesSuccessful),
		KeyTimesFailed:        KeyTimesFailed + ": " + formatNumber(m.TimesFailed),
		KeyEffectivenessScore: KeyEffectivenessScore + ": " + formatNumber(m.EffectivenessScore),
		KeyLastApplied:        KeyLastApplied + ": " + lastApplied,
		KeyApplicationLog:     KeyApplicationLog + ": " + string(encodedLog),
	}
}

// splitLine splits "KEY: value" for the known metric keys only
func splitLine(line string) (string, string, bool) {
	key, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	for _, k := range metricKeys {
		if k == key {
			return key, strings.TrimSpace(value), true
		}
	}
	return "", "", false
}

func parseCount(value string) float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
