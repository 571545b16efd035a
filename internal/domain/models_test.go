package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facility-ops/riskwatch/pkg/deadline"
)

var reportedAt = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func newIssue(state IssueState) *Issue {
	return &Issue{
		ID:       "issue-1",
		Title:    "Broken bed rail, room 12",
		Severity: SeverityHigh,
		Deadline: deadline.New(reportedAt, 48*time.Hour),
		State:    state,
	}
}

func TestIssue_NextState(t *testing.T) {
	tests := []struct {
		name    string
		state   IssueState
		elapsed time.Duration
		want    IssueState
		changed bool
	}{
		{"pending within window", StatePending, 47 * time.Hour, StatePending, false},
		{"pending exactly due", StatePending, 48 * time.Hour, StateEscalated, true},
		{"pending past due", StatePending, 50 * time.Hour, StateEscalated, true},
		{"escalated stays escalated", StateEscalated, 500 * time.Hour, StateEscalated, false},
		{"resolved never moves", StateResolved, 500 * time.Hour, StateResolved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := newIssue(tt.state)
			got, changed := issue.NextState(reportedAt.Add(tt.elapsed))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestIssue_StatusFrozenOnResolve(t *testing.T) {
	issue := newIssue(StateResolved)
	resolvedAt := reportedAt.Add(10 * time.Hour)
	issue.ResolvedAt = &resolvedAt

	early := issue.Status(reportedAt.Add(60 * time.Hour))
	late := issue.Status(reportedAt.Add(600 * time.Hour))

	assert.Equal(t, early, late)
	assert.False(t, early.Overdue)
	assert.Equal(t, int64(38*3600), early.RemainingSeconds())
}

func TestIssue_StatusLive(t *testing.T) {
	issue := newIssue(StatePending)

	status := issue.Status(reportedAt.Add(50 * time.Hour))

	assert.True(t, status.Overdue)
	assert.Equal(t, int64(-7200), status.RemainingSeconds())
}

func TestDefaultEscalationPolicies(t *testing.T) {
	policies := DefaultEscalationPolicies()

	require.Len(t, policies, 4)
	assert.Equal(t, 24*time.Hour, policies[SeverityCritical].Allowed)
	assert.Equal(t, "director", policies[SeverityCritical].EscalateTo)
	assert.Equal(t, 72*time.Hour, policies[SeverityHigh].Allowed)
	assert.Equal(t, 168*time.Hour, policies[SeverityMedium].Allowed)
	assert.Equal(t, "team_lead", policies[SeverityLow].EscalateTo)
}

func TestEscalationConfig_Policies(t *testing.T) {
	t.Run("overrides merge onto defaults", func(t *testing.T) {
		cfg := EscalationConfig{Policies: map[string]PolicyConfig{
			"critical": {Allowed: 4 * time.Hour},
			"low":      {EscalateTo: "charge_nurse"},
		}}

		policies, err := cfg.EscalationPolicies()
		require.NoError(t, err)
		assert.Equal(t, 4*time.Hour, policies[SeverityCritical].Allowed)
		assert.Equal(t, "director", policies[SeverityCritical].EscalateTo)
		assert.Equal(t, 336*time.Hour, policies[SeverityLow].Allowed)
		assert.Equal(t, "charge_nurse", policies[SeverityLow].EscalateTo)
	})

	t.Run("unknown severity", func(t *testing.T) {
		cfg := EscalationConfig{Policies: map[string]PolicyConfig{"urgent": {Allowed: time.Hour}}}
		_, err := cfg.EscalationPolicies()
		assert.ErrorIs(t, err, ErrInvalidSeverity)
	})

	t.Run("negative window", func(t *testing.T) {
		cfg := EscalationConfig{Policies: map[string]PolicyConfig{"high": {Allowed: -time.Hour}}}
		_, err := cfg.EscalationPolicies()
		assert.Error(t, err)
	})
}
