// Package domain contains the core entities of the facility risk service:
// recorded risk assessments, operational issues with their SLA deadlines and
// the escalation policy that turns an overdue issue into an escalated one.
//
// The types here are persisted by the repository and store packages and
// exchanged by the HTTP API and MCP tool server. Scoring and deadline
// arithmetic live in pkg/scoring and pkg/deadline; this package only composes
// them.
package domain

import (
	"fmt"
	"strings"
)

// Severity ranks how urgently an issue must be handled.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from most to least urgent.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity accepts a severity name in any case.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
	return sev, nil
}

// SeverityForRank maps a category rank onto a severity when the category name
// is not itself a severity. rank runs from 0 (safest) to levels-1 (terminal).
func SeverityForRank(rank, levels int) Severity {
	if levels <= 1 || rank >= levels-1 {
		return SeverityCritical
	}
	if rank <= 0 {
		return SeverityLow
	}
	p := float64(rank) / float64(levels-1)
	switch {
	case p >= 2.0/3.0:
		return SeverityHigh
	case p >= 1.0/3.0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IssueState is the lifecycle state of an issue.
//
// pending -> escalated happens when the deadline passes; any state -> resolved
// happens through an explicit resolution. resolved is terminal.
type IssueState string

const (
	StatePending   IssueState = "pending"
	StateEscalated IssueState = "escalated"
	StateResolved  IssueState = "resolved"
)

// IsValid reports whether s is a known issue state.
func (s IssueState) IsValid() bool {
	switch s {
	case StatePending, StateEscalated, StateResolved:
		return true
	default:
		return false
	}
}

// String returns the string representation of the state.
func (s IssueState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s IssueState) IsTerminal() bool {
	return s == StateResolved
}

// LogFields returns structured logging fields for audit trails.
func (s IssueState) LogFields() map[string]any {
	return map[string]any{
		"state":       string(s),
		"is_valid":    s.IsValid(),
		"is_terminal": s.IsTerminal(),
	}
}
