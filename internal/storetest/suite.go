// Package storetest holds the behaviour every domain.Store implementation
// must share. Each backend runs Run from its own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/pkg/deadline"
	"github.com/facility-ops/riskwatch/pkg/scoring"
)

var base = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// Run exercises a fresh store returned by open for every subtest.
func Run(t *testing.T, open func(t *testing.T) domain.Store) {
	t.Run("assessment round trip", func(t *testing.T) { testAssessmentRoundTrip(t, open(t)) })
	t.Run("assessment history", func(t *testing.T) { testAssessmentHistory(t, open(t)) })
	t.Run("issue round trip", func(t *testing.T) { testIssueRoundTrip(t, open(t)) })
	t.Run("issue filters", func(t *testing.T) { testIssueFilters(t, open(t)) })
	t.Run("issues ordered by deadline", func(t *testing.T) { testIssueDeadlineOrder(t, open(t)) })
	t.Run("escalate is conditional", func(t *testing.T) { testEscalateConditional(t, open(t)) })
	t.Run("resolve is conditional", func(t *testing.T) { testResolveConditional(t, open(t)) })
	t.Run("concurrent escalation converges", func(t *testing.T) { testConcurrentEscalation(t, open(t)) })
	t.Run("health", func(t *testing.T) { require.NoError(t, open(t).Health(context.Background())) })
}

// Assessment builds a persisted-shape assessment for tests.
func Assessment(subject, rule string, at time.Time) *domain.RiskAssessment {
	return &domain.RiskAssessment{
		ID:          uuid.New().String(),
		RuleID:      rule,
		RuleVersion: 1,
		SubjectID:   subject,
		AssessedBy:  "nurse-7",
		Inputs: []scoring.IndicatorValue{
			scoring.Bool("historyOfFalls", true),
			scoring.Enum("gait", "impaired"),
			scoring.Numeric("age", 81),
		},
		Score:      45,
		Category:   "medium",
		Rank:       1,
		Factors:    []scoring.Factor{{Key: "historyOfFalls", Points: 25}, {Key: "gait", Points: 20}},
		Actions:    []string{"Review medications that cause dizziness"},
		ComputedAt: at,
	}
}

// Issue builds a pending issue for tests.
func Issue(severity domain.Severity, reported time.Time, allowed time.Duration) *domain.Issue {
	return &domain.Issue{
		ID:               uuid.New().String(),
		Title:            "Call bell not working, room 4",
		Description:      "Resident reported the bell does not sound at the nurse station",
		Category:         "maintenance",
		Severity:         severity,
		SubjectID:        "room-4",
		ResponsibleParty: "maintenance",
		Deadline:         deadline.New(reported, allowed),
		State:            domain.StatePending,
		CreatedAt:        reported,
		UpdatedAt:        reported,
	}
}

func testAssessmentRoundTrip(t *testing.T, store domain.Store) {
	ctx := context.Background()
	a := Assessment("resident-1", "morse-fall-scale", base)

	require.NoError(t, store.SaveAssessment(ctx, a))

	got, err := store.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.RuleID, got.RuleID)
	assert.Equal(t, a.Inputs, got.Inputs)
	assert.Equal(t, a.Factors, got.Factors)
	assert.Equal(t, a.Actions, got.Actions)
	assert.Equal(t, a.Score, got.Score)
	assert.Equal(t, a.Rank, got.Rank)
	assert.True(t, a.ComputedAt.Equal(got.ComputedAt))

	_, err = store.GetAssessment(ctx, uuid.New().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	empty := Assessment("resident-1", "morse-fall-scale", base)
	empty.Inputs, empty.Factors, empty.Actions = nil, nil, nil
	require.NoError(t, store.SaveAssessment(ctx, empty))
	got, err = store.GetAssessment(ctx, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Inputs)
}

func testAssessmentHistory(t *testing.T, store domain.Store) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveAssessment(ctx, Assessment("resident-2", "morse-fall-scale", base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, store.SaveAssessment(ctx, Assessment("resident-2", "facility-early-warning", base.Add(10*time.Hour))))
	require.NoError(t, store.SaveAssessment(ctx, Assessment("resident-3", "morse-fall-scale", base)))

	all, err := store.ListAssessments(ctx, "resident-2", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	fall, err := store.ListAssessments(ctx, "resident-2", "morse-fall-scale", 0)
	require.NoError(t, err)
	require.Len(t, fall, 3)
	assert.True(t, fall[0].ComputedAt.Equal(base.Add(2*time.Hour)), "newest first")

	latest, err := store.ListAssessments(ctx, "resident-2", "morse-fall-scale", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, fall[0].ID, latest[0].ID)

	none, err := store.ListAssessments(ctx, "nobody", "", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testIssueRoundTrip(t *testing.T, store domain.Store) {
	ctx := context.Background()
	issue := Issue(domain.SeverityHigh, base, 72*time.Hour)

	require.NoError(t, store.CreateIssue(ctx, issue))

	got, err := store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.Title, got.Title)
	assert.Equal(t, issue.Severity, got.Severity)
	assert.Equal(t, domain.StatePending, got.State)
	assert.Equal(t, 72*time.Hour, got.Deadline.AllowedDuration)
	assert.True(t, issue.Deadline.ReportedAt.Equal(got.Deadline.ReportedAt))
	assert.Nil(t, got.EscalatedAt)
	assert.Nil(t, got.ResolvedAt)
	assert.Empty(t, got.AssessmentID)

	_, err = store.GetIssue(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testIssueFilters(t *testing.T, store domain.Store) {
	ctx := context.Background()
	soon := Issue(domain.SeverityCritical, base, 24*time.Hour)
	later := Issue(domain.SeverityLow, base, 336*time.Hour)
	other := Issue(domain.SeverityCritical, base, 48*time.Hour)
	other.SubjectID = "room-9"
	for _, i := range []*domain.Issue{later, soon, other} {
		require.NoError(t, store.CreateIssue(ctx, i))
	}
	_, err := store.ResolveIssue(ctx, other.ID, "maintenance", "replaced", base.Add(time.Hour))
	require.NoError(t, err)

	all, err := store.ListIssues(ctx, domain.IssueFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, soon.ID, all[0].ID, "earliest deadline first")

	pending, err := store.ListIssues(ctx, domain.IssueFilter{State: domain.StatePending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	critical, err := store.ListIssues(ctx, domain.IssueFilter{Severity: domain.SeverityCritical, SubjectID: "room-9"})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, other.ID, critical[0].ID)

	limited, err := store.ListIssues(ctx, domain.IssueFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testIssueDeadlineOrder(t *testing.T, store domain.Store) {
	ctx := context.Background()
	// Neither reported_at nor the allowed duration alone gives this order.
	dueLast := Issue(domain.SeverityLow, base, 10*time.Hour)
	dueMiddle := Issue(domain.SeverityLow, base.Add(-30*time.Hour), 36*time.Hour)
	dueFirst := Issue(domain.SeverityLow, base.Add(time.Hour), 2*time.Hour)
	for _, i := range []*domain.Issue{dueLast, dueMiddle, dueFirst} {
		require.NoError(t, store.CreateIssue(ctx, i))
	}

	got, err := store.ListIssues(ctx, domain.IssueFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{dueFirst.ID, dueMiddle.ID, dueLast.ID},
		[]string{got[0].ID, got[1].ID, got[2].ID})
}

func testEscalateConditional(t *testing.T, store domain.Store) {
	ctx := context.Background()
	issue := Issue(domain.SeverityMedium, base, time.Hour)
	require.NoError(t, store.CreateIssue(ctx, issue))

	at := base.Add(2 * time.Hour)
	changed, err := store.EscalateIssue(ctx, issue.ID, "supervisor", at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.EscalateIssue(ctx, issue.ID, "supervisor", at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed, "second escalation must be a no-op")

	got, err := store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEscalated, got.State)
	assert.Equal(t, "supervisor", got.EscalatedTo)
	require.NotNil(t, got.EscalatedAt)
	assert.True(t, at.Equal(*got.EscalatedAt))

	_, err = store.EscalateIssue(ctx, "missing", "supervisor", at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testResolveConditional(t *testing.T, store domain.Store) {
	ctx := context.Background()
	issue := Issue(domain.SeverityHigh, base, time.Hour)
	require.NoError(t, store.CreateIssue(ctx, issue))
	_, err := store.EscalateIssue(ctx, issue.ID, "department_head", base.Add(2*time.Hour))
	require.NoError(t, err)

	at := base.Add(3 * time.Hour)
	changed, err := store.ResolveIssue(ctx, issue.ID, "head-nurse", "bell replaced", at)
	require.NoError(t, err)
	assert.True(t, changed, "escalated issues can be resolved")

	changed, err = store.ResolveIssue(ctx, issue.ID, "someone-else", "again", at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = store.EscalateIssue(ctx, issue.ID, "director", at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed, "resolved issues are never reverted")

	got, err := store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, got.State)
	assert.Equal(t, "head-nurse", got.ResolvedBy)
	assert.Equal(t, "bell replaced", got.ResolutionNote)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, at.Equal(*got.ResolvedAt))

	_, err = store.ResolveIssue(ctx, "missing", "x", "", at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testConcurrentEscalation(t *testing.T, store domain.Store) {
	ctx := context.Background()
	issue := Issue(domain.SeverityCritical, base, time.Hour)
	require.NoError(t, store.CreateIssue(ctx, issue))

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	changes := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := store.EscalateIssue(ctx, issue.ID, "director", base.Add(2*time.Hour))
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, changes)
}
