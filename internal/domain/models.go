package domain

import (
	"time"

	"github.com/facility-ops/riskwatch/pkg/deadline"
	"github.com/facility-ops/riskwatch/pkg/scoring"
)

// RiskAssessment is one scored checklist. Assessments are never updated; a
// re-assessment is stored as a new record so history stays reproducible.
type RiskAssessment struct {
	ID          string                   `json:"id"`
	RuleID      string                   `json:"rule_id"`
	RuleVersion int                      `json:"rule_version"`
	SubjectID   string                   `json:"subject_id"`
	AssessedBy  string                   `json:"assessed_by,omitempty"`
	Inputs      []scoring.IndicatorValue `json:"inputs"`
	Score       float64                  `json:"score"`
	Category    string                   `json:"category"`
	Rank        int                      `json:"rank"`
	Factors     []scoring.Factor         `json:"factors,omitempty"`
	Actions     []string                 `json:"actions,omitempty"`
	ComputedAt  time.Time                `json:"computed_at"`
}

// Issue is an operational problem with an SLA. Issues are never deleted.
type Issue struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Category         string            `json:"category,omitempty"`
	Severity         Severity          `json:"severity"`
	SubjectID        string            `json:"subject_id,omitempty"`
	AssessmentID     string            `json:"assessment_id,omitempty"`
	ResponsibleParty string            `json:"responsible_party,omitempty"`
	Deadline         deadline.Deadline `json:"deadline"`
	State            IssueState        `json:"state"`
	EscalatedAt      *time.Time        `json:"escalated_at,omitempty"`
	EscalatedTo      string            `json:"escalated_to,omitempty"`
	ResolvedAt       *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy       string            `json:"resolved_by,omitempty"`
	ResolutionNote   string            `json:"resolution_note,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Status evaluates the issue's deadline at now. Once resolved the status is
// frozen at the resolution moment.
func (i *Issue) Status(now time.Time) deadline.Status {
	if i.State == StateResolved && i.ResolvedAt != nil {
		now = *i.ResolvedAt
	}
	return deadline.Evaluate(i.Deadline, now)
}

// NextState returns the state the issue should be in at now and whether that
// differs from the current one. Only pending issues move on their own.
func (i *Issue) NextState(now time.Time) (IssueState, bool) {
	if i.State != StatePending {
		return i.State, false
	}
	if deadline.Evaluate(i.Deadline, now).Overdue {
		return StateEscalated, true
	}
	return i.State, false
}

// EscalationPolicy sets the response window for a severity and who an overdue
// issue is escalated to.
type EscalationPolicy struct {
	Severity   Severity      `json:"severity"`
	Allowed    time.Duration `json:"allowed"`
	EscalateTo string        `json:"escalate_to"`
}

// DefaultEscalationPolicies mirrors the facility's alert escalation rules.
func DefaultEscalationPolicies() map[Severity]EscalationPolicy {
	return map[Severity]EscalationPolicy{
		SeverityCritical: {Severity: SeverityCritical, Allowed: 24 * time.Hour, EscalateTo: "director"},
		SeverityHigh:     {Severity: SeverityHigh, Allowed: 72 * time.Hour, EscalateTo: "department_head"},
		SeverityMedium:   {Severity: SeverityMedium, Allowed: 168 * time.Hour, EscalateTo: "supervisor"},
		SeverityLow:      {Severity: SeverityLow, Allowed: 336 * time.Hour, EscalateTo: "team_lead"},
	}
}

// IssueFilter narrows ListIssues. Zero values match everything.
type IssueFilter struct {
	State     IssueState
	Severity  Severity
	SubjectID string
	Limit     int
}
