package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/pkg/benchmark"
	"github.com/facility-ops/riskwatch/pkg/scoring"
)

func TestLoadBuiltin(t *testing.T) {
	reg, err := LoadBuiltin()
	require.NoError(t, err)

	fall, err := reg.Latest("morse-fall-scale")
	require.NoError(t, err)
	assert.Equal(t, 1, fall.Version())
	assert.Equal(t, []string{"low", "medium", "high"}, fall.Categories())

	result := scoring.Score(fall, []scoring.IndicatorValue{
		scoring.Bool("historyOfFalls", true),
		scoring.Enum("ambulatoryAid", "furniture"),
		scoring.Enum("gait", "impaired"),
	})
	assert.Equal(t, 75.0, result.Total)
	assert.Equal(t, "high", result.Category)
	assert.Len(t, result.Actions, 4)

	ew, err := reg.Get("facility-early-warning", 1)
	require.NoError(t, err)
	result = scoring.Score(ew, []scoring.IndicatorValue{
		scoring.Numeric("overdue_maintenance", 2),
		scoring.Numeric("fall_incidents_week", 1),
		scoring.Numeric("active_critical_alerts", 1),
		scoring.Numeric("critical_accountability_gaps", 1),
	})
	assert.Equal(t, 55.0, result.Total)
	assert.Equal(t, "yellow", result.Category)

	standards := reg.Standards()
	require.Len(t, standards, 8)
	assert.Equal(t, "CARE_COMPLETION", standards[0].Code)

	fallRate, err := reg.Standard("FALL_RATE")
	require.NoError(t, err)
	assert.False(t, fallRate.HigherIsBetter)
	assert.Equal(t, benchmark.Good, fallRate.Classify(2.5).Band)
}

func TestRegistry_Versions(t *testing.T) {
	reg := NewRegistry()
	v1 := scoring.MustCompile(scoring.RuleSpec{
		ID: "pressure-ulcer", Version: 1, Directionality: "worse",
		Thresholds: []scoring.Threshold{{Bound: 10, Label: "low"}}, Terminal: "high",
	})
	v2 := scoring.MustCompile(scoring.RuleSpec{
		ID: "pressure-ulcer", Version: 2, Directionality: "worse",
		Thresholds: []scoring.Threshold{{Bound: 12, Label: "low"}}, Terminal: "high",
	})

	require.NoError(t, reg.Register(v2))
	require.NoError(t, reg.Register(v1))
	assert.Error(t, reg.Register(v1), "duplicate version must be rejected")

	latest, err := reg.Latest("pressure-ulcer")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version())

	old, err := reg.Resolve("pressure-ulcer", 1)
	require.NoError(t, err)
	assert.Same(t, v1, old)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Version())

	_, err = reg.Get("pressure-ulcer", 3)
	assert.True(t, errors.Is(err, domain.ErrRuleNotFound))
	_, err = reg.Latest("unknown")
	assert.True(t, errors.Is(err, domain.ErrRuleNotFound))
	_, err = reg.Standard("UNKNOWN")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestLoad_ExtraDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fall_v2.yaml", `
rules:
  - id: morse-fall-scale
    version: 2
    name: Morse Fall Scale (revised)
    directionality: higher_is_worse
    weights:
      historyOfFalls: {points: 30}
    thresholds:
      - {bound: 20, label: low}
      - {bound: 45, label: medium}
    terminal: high
`)
	writeFile(t, dir, "notes.txt", "ignored")

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	reg, err := Load(dir, logger)
	require.NoError(t, err)

	latest, err := reg.Latest("morse-fall-scale")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version())

	v1, err := reg.Get("morse-fall-scale", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version())
}

func TestLoad_FailsFast(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "unordered thresholds",
			content: `
rules:
  - id: broken
    version: 1
    directionality: higher_is_worse
    thresholds:
      - {bound: 50, label: low}
      - {bound: 20, label: medium}
    terminal: high
`,
			want: "strictly ascending",
		},
		{
			name:    "bad yaml",
			content: "rules: [",
			want:    "failed to parse YAML",
		},
		{
			name: "duplicate of built-in",
			content: `
rules:
  - id: morse-fall-scale
    version: 1
    directionality: higher_is_worse
    thresholds: [{bound: 1, label: low}]
    terminal: high
`,
			want: "already registered",
		},
		{
			name: "invalid standard",
			content: `
standards:
  - code: BAD
    target: 10
    higher_is_better: true
    thresholds: {excellent: 1, good: 2, acceptable: 3}
`,
			want: "standard BAD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "catalog.yaml", tt.content)

			reg, err := Load(dir, nil)
			require.Error(t, err)
			assert.Nil(t, reg)
			assert.Contains(t, err.Error(), "catalog.yaml")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_InvalidRuleIsTyped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "rules:\n  - {id: a, version: 0, directionality: worse, thresholds: [{bound: 1, label: x}], terminal: y}\n")

	_, err := Load(dir, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, scoring.ErrInvalidRule))
}

func TestLoad_MissingDirectory(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
