package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/internal/rules"
	"github.com/facility-ops/riskwatch/pkg/deadline"
)

// IssueService runs the issue lifecycle: report, escalate when overdue,
// resolve.
type IssueService struct {
	logger   *logrus.Logger
	store    domain.Store
	rules    *rules.Registry
	policies map[domain.Severity]domain.EscalationPolicy
	clock    clockwork.Clock
}

// NewIssueService creates a new issue service. A nil policies map selects
// the defaults.
func NewIssueService(
	logger *logrus.Logger,
	store domain.Store,
	registry *rules.Registry,
	policies map[domain.Severity]domain.EscalationPolicy,
	clock clockwork.Clock,
) *IssueService {
	if policies == nil {
		policies = domain.DefaultEscalationPolicies()
	}
	return &IssueService{
		logger:   logger,
		store:    store,
		rules:    registry,
		policies: policies,
		clock:    clock,
	}
}

// ReportParams describes a new issue. A nil Allowed takes the response window
// from the severity's escalation policy; a nil ReportedAt means now.
type ReportParams struct {
	Title            string
	Description      string
	Category         string
	Severity         domain.Severity
	SubjectID        string
	ResponsibleParty string
	Allowed          *time.Duration
	ReportedAt       *time.Time
}

// IssueView is an issue with its deadline evaluated at read time.
type IssueView struct {
	*domain.Issue
	Timer deadline.Status `json:"timer"`
}

// SweepResult summarises one escalation pass.
type SweepResult struct {
	Checked   int `json:"checked"`
	Escalated int `json:"escalated"`
}

// Policies returns the escalation policy per severity.
func (s *IssueService) Policies() map[domain.Severity]domain.EscalationPolicy {
	out := make(map[domain.Severity]domain.EscalationPolicy, len(s.policies))
	for k, v := range s.policies {
		out[k] = v
	}
	return out
}

// Report records a new pending issue.
func (s *IssueService) Report(ctx context.Context, params ReportParams) (*IssueView, error) {
	return s.report(ctx, params, "")
}

// ReportFromAssessment opens an issue for a recorded assessment. The severity
// is the assessment's category when that names a severity, otherwise it is
// derived from the category's rank within the rule.
func (s *IssueService) ReportFromAssessment(ctx context.Context, assessmentID string, params ReportParams) (*IssueView, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	rule, err := s.rules.Get(a.RuleID, a.RuleVersion)
	if err != nil {
		return nil, err
	}

	if params.Severity == "" {
		if sev, err := domain.ParseSeverity(a.Category); err == nil {
			params.Severity = sev
		} else {
			params.Severity = domain.SeverityForRank(a.Rank, len(rule.Categories()))
		}
	}
	if params.Title == "" {
		params.Title = fmt.Sprintf("%s: %s", rule.Name(), a.Category)
	}
	if params.Description == "" {
		params.Description = strings.Join(a.Actions, "\n")
	}
	if params.Category == "" {
		params.Category = a.RuleID
	}
	if params.SubjectID == "" {
		params.SubjectID = a.SubjectID
	}
	return s.report(ctx, params, a.ID)
}

func (s *IssueService) report(ctx context.Context, params ReportParams, assessmentID string) (*IssueView, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, domain.NewValidationError("title", "title is required", params.Title)
	}
	sev, err := domain.ParseSeverity(string(params.Severity))
	if err != nil {
		return nil, domain.NewValidationError("severity", err.Error(), params.Severity)
	}

	policy := s.policies[sev]
	allowed := policy.Allowed
	if params.Allowed != nil {
		if *params.Allowed < 0 {
			return nil, domain.NewValidationError("allowed", "allowed duration must not be negative", params.Allowed.String())
		}
		allowed = *params.Allowed
	}

	now := s.clock.Now().UTC()
	reported := now
	if params.ReportedAt != nil {
		reported = params.ReportedAt.UTC()
	}

	issue := &domain.Issue{
		ID:               uuid.New().String(),
		Title:            params.Title,
		Description:      params.Description,
		Category:         params.Category,
		Severity:         sev,
		SubjectID:        params.SubjectID,
		AssessmentID:     assessmentID,
		ResponsibleParty: params.ResponsibleParty,
		Deadline:         deadline.New(reported, allowed),
		State:            domain.StatePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return nil, fmt.Errorf("failed to report issue: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"issue_id": issue.ID,
		"severity": issue.Severity,
		"due":      issue.Deadline.Due(),
	}).Info("Issue reported")

	return s.view(issue, now), nil
}

// Get returns an issue with its live timer.
func (s *IssueService) Get(ctx context.Context, id string) (*IssueView, error) {
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(issue, s.clock.Now()), nil
}

// List returns issues matching filter, earliest deadline first.
func (s *IssueService) List(ctx context.Context, filter domain.IssueFilter) ([]*IssueView, error) {
	if filter.State != "" && !filter.State.IsValid() {
		return nil, domain.NewValidationError("state", domain.ErrInvalidState.Error(), filter.State)
	}
	if filter.Severity != "" && !filter.Severity.IsValid() {
		return nil, domain.NewValidationError("severity", domain.ErrInvalidSeverity.Error(), filter.Severity)
	}

	issues, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]*IssueView, 0, len(issues))
	for _, issue := range issues {
		out = append(out, s.view(issue, now))
	}
	return out, nil
}

// Resolve closes an issue from any state. Resolving a resolved issue fails
// with domain.ErrIssueResolved.
func (s *IssueService) Resolve(ctx context.Context, id, resolvedBy, note string) (*IssueView, error) {
	now := s.clock.Now().UTC()

	changed, err := s.store.ResolveIssue(ctx, id, resolvedBy, note, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("issue %s: %w", id, domain.ErrIssueResolved)
	}

	s.logger.WithFields(logrus.Fields{
		"issue_id":    id,
		"resolved_by": resolvedBy,
	}).Info("Issue resolved")

	return s.Get(ctx, id)
}

// Sweep escalates every pending issue whose deadline has passed. Issues that
// were resolved or escalated concurrently are left alone. Per-issue failures
// do not stop the pass; they are returned together.
func (s *IssueService) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	pending, err := s.store.ListIssues(ctx, domain.IssueFilter{State: domain.StatePending})
	if err != nil {
		return result, fmt.Errorf("failed to load pending issues: %w", err)
	}

	now := s.clock.Now().UTC()
	var errs *multierror.Error
	for _, issue := range pending {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		result.Checked++

		next, changed := issue.NextState(now)
		if !changed || next != domain.StateEscalated {
			continue
		}

		escalateTo := s.policies[issue.Severity].EscalateTo
		ok, err := s.store.EscalateIssue(ctx, issue.ID, escalateTo, now)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("issue %s: %w", issue.ID, err))
			continue
		}
		if !ok {
			continue
		}
		result.Escalated++

		s.logger.WithFields(logrus.Fields{
			"issue_id":     issue.ID,
			"severity":     issue.Severity,
			"escalated_to": escalateTo,
			"overdue":      issue.Status(now).Display,
		}).Warn("Issue escalated")
	}

	return result, errs.ErrorOrNil()
}

func (s *IssueService) view(issue *domain.Issue, now time.Time) *IssueView {
	return &IssueView{Issue: issue, Timer: issue.Status(now)}
}
