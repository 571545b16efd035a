package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/internal/service"
	"github.com/facility-ops/riskwatch/pkg/benchmark"
	"github.com/facility-ops/riskwatch/pkg/deadline"
	"github.com/facility-ops/riskwatch/pkg/scoring"
)

// ListRulesParams takes no arguments.
type ListRulesParams struct{}

// RuleSummary describes one catalog rule.
type RuleSummary struct {
	ID             string   `json:"id"`
	Version        int      `json:"version"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Directionality string   `json:"directionality"`
	Categories     []string `json:"categories"`
	Indicators     []string `json:"indicators"`
}

// ListRulesResult defines the result structure for list_rules
type ListRulesResult struct {
	Rules []RuleSummary `json:"rules"`
}

// ScoreParams defines parameters for score_assessment
type ScoreParams struct {
	RuleID      string                   `json:"rule_id" jsonschema:"rule identifier, e.g. morse-fall-scale"`
	RuleVersion int                      `json:"rule_version,omitempty" jsonschema:"rule version; omit for the latest"`
	Inputs      []scoring.IndicatorValue `json:"inputs" jsonschema:"indicator values; unknown keys are ignored"`
}

// ScoreResult defines the result structure for score_assessment
type ScoreResult struct {
	RuleID      string           `json:"rule_id"`
	RuleVersion int              `json:"rule_version"`
	Total       float64          `json:"total"`
	Category    string           `json:"category"`
	Rank        int              `json:"rank"`
	Factors     []scoring.Factor `json:"factors,omitempty"`
	Actions     []string         `json:"actions,omitempty"`
}

// RecordParams defines parameters for record_assessment
type RecordParams struct {
	RuleID      string                   `json:"rule_id"`
	RuleVersion int                      `json:"rule_version,omitempty"`
	SubjectID   string                   `json:"subject_id" jsonschema:"resident, room or facility the checklist is about"`
	AssessedBy  string                   `json:"assessed_by,omitempty"`
	Inputs      []scoring.IndicatorValue `json:"inputs"`
}

// AssessmentResult is a recorded assessment.
type AssessmentResult struct {
	ID          string   `json:"id"`
	RuleID      string   `json:"rule_id"`
	RuleVersion int      `json:"rule_version"`
	SubjectID   string   `json:"subject_id"`
	Score       float64  `json:"score"`
	Category    string   `json:"category"`
	Rank        int      `json:"rank"`
	Actions     []string `json:"actions,omitempty"`
	ComputedAt  string   `json:"computed_at"`
}

// ClassifyBenchmarkParams selects a catalog standard by code, or supplies an
// ad-hoc target and thresholds.
type ClassifyBenchmarkParams struct {
	Code           string                `json:"code,omitempty" jsonschema:"catalog standard code, e.g. FALL_RATE"`
	Current        float64               `json:"current"`
	Target         float64               `json:"target,omitempty"`
	Thresholds     *benchmark.Thresholds `json:"thresholds,omitempty"`
	HigherIsBetter bool                  `json:"higher_is_better,omitempty"`
}

// ClassifyBenchmarkResult defines the result structure for classify_benchmark
type ClassifyBenchmarkResult struct {
	Code          string  `json:"code,omitempty"`
	Band          string  `json:"band"`
	ProgressRatio float64 `json:"progress_ratio"`
}

// DeadlineParams defines parameters for evaluate_deadline
type DeadlineParams struct {
	ReportedAt string `json:"reported_at" jsonschema:"RFC 3339 timestamp"`
	Allowed    string `json:"allowed" jsonschema:"response window such as 48h or 90m"`
	Now        string `json:"now,omitempty" jsonschema:"RFC 3339 timestamp; defaults to the server clock"`
}

// DeadlineResult defines the result structure for evaluate_deadline
type DeadlineResult struct {
	Due              string `json:"due"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Overdue          bool   `json:"overdue"`
	Display          string `json:"display"`
	Relative         string `json:"relative"`
}

// ReportIssueParams defines parameters for report_issue
type ReportIssueParams struct {
	Title            string `json:"title,omitempty"`
	Description      string `json:"description,omitempty"`
	Category         string `json:"category,omitempty"`
	Severity         string `json:"severity,omitempty" jsonschema:"critical, high, medium or low"`
	SubjectID        string `json:"subject_id,omitempty"`
	ResponsibleParty string `json:"responsible_party,omitempty"`
	AssessmentID     string `json:"assessment_id,omitempty" jsonschema:"derive title, severity and subject from this assessment"`
	Allowed          string `json:"allowed,omitempty" jsonschema:"response window; defaults to the severity's policy"`
	ReportedAt       string `json:"reported_at,omitempty"`
}

// IssueResult is an issue with its timer evaluated now.
type IssueResult struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Severity         string `json:"severity"`
	State            string `json:"state"`
	SubjectID        string `json:"subject_id,omitempty"`
	AssessmentID     string `json:"assessment_id,omitempty"`
	ResponsibleParty string `json:"responsible_party,omitempty"`
	EscalatedTo      string `json:"escalated_to,omitempty"`
	ResolvedBy       string `json:"resolved_by,omitempty"`
	Due              string `json:"due"`
	Overdue          bool   `json:"overdue"`
	Display          string `json:"display"`
}

// ListIssuesParams defines parameters for list_issues
type ListIssuesParams struct {
	State     string `json:"state,omitempty" jsonschema:"pending, escalated or resolved"`
	Severity  string `json:"severity,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ListIssuesResult defines the result structure for list_issues
type ListIssuesResult struct {
	Issues []IssueResult `json:"issues"`
}

// ResolveIssueParams defines parameters for resolve_issue
type ResolveIssueParams struct {
	ID         string `json:"id"`
	ResolvedBy string `json:"resolved_by"`
	Note       string `json:"note,omitempty"`
}

func (s *Server) listRules(ctx context.Context, req *mcp.CallToolRequest, _ ListRulesParams) (*mcp.CallToolResult, ListRulesResult, error) {
	s.logTool("list_rules")

	list := s.svc.Assessments.Rules()
	out := ListRulesResult{Rules: make([]RuleSummary, 0, len(list))}
	for _, r := range list {
		out.Rules = append(out.Rules, RuleSummary{
			ID:             r.ID(),
			Version:        r.Version(),
			Name:           r.Name(),
			Description:    r.Description(),
			Directionality: r.Directionality().String(),
			Categories:     r.Categories(),
			Indicators:     r.Indicators(),
		})
	}
	return nil, out, nil
}

func (s *Server) scoreAssessment(ctx context.Context, req *mcp.CallToolRequest, in ScoreParams) (*mcp.CallToolResult, ScoreResult, error) {
	s.logTool("score_assessment")

	rule, result, err := s.svc.Assessments.Score(in.RuleID, in.RuleVersion, in.Inputs)
	if err != nil {
		return nil, ScoreResult{}, err
	}
	return nil, ScoreResult{
		RuleID:      rule.ID(),
		RuleVersion: rule.Version(),
		Total:       result.Total,
		Category:    result.Category,
		Rank:        result.Rank,
		Factors:     result.Factors,
		Actions:     result.Actions,
	}, nil
}

func (s *Server) recordAssessment(ctx context.Context, req *mcp.CallToolRequest, in RecordParams) (*mcp.CallToolResult, AssessmentResult, error) {
	s.logTool("record_assessment")

	a, err := s.svc.Assessments.Assess(ctx, service.AssessParams{
		RuleID:      in.RuleID,
		RuleVersion: in.RuleVersion,
		SubjectID:   in.SubjectID,
		AssessedBy:  in.AssessedBy,
		Inputs:      in.Inputs,
	})
	if err != nil {
		return nil, AssessmentResult{}, err
	}
	return nil, AssessmentResult{
		ID:          a.ID,
		RuleID:      a.RuleID,
		RuleVersion: a.RuleVersion,
		SubjectID:   a.SubjectID,
		Score:       a.Score,
		Category:    a.Category,
		Rank:        a.Rank,
		Actions:     a.Actions,
		ComputedAt:  a.ComputedAt.Format(time.RFC3339),
	}, nil
}

func (s *Server) classifyBenchmark(ctx context.Context, req *mcp.CallToolRequest, in ClassifyBenchmarkParams) (*mcp.CallToolResult, ClassifyBenchmarkResult, error) {
	s.logTool("classify_benchmark")

	if in.Code != "" {
		c, err := s.svc.Benchmarks.Compare(in.Code, in.Current)
		if err != nil {
			return nil, ClassifyBenchmarkResult{}, err
		}
		return nil, ClassifyBenchmarkResult{
			Code:          c.Standard.Code,
			Band:          c.Band.String(),
			ProgressRatio: c.ProgressRatio,
		}, nil
	}

	if in.Thresholds == nil {
		return nil, ClassifyBenchmarkResult{}, domain.NewValidationError("thresholds", "either code or thresholds is required", nil)
	}
	result, err := s.svc.Benchmarks.Classify(in.Current, in.Target, *in.Thresholds, in.HigherIsBetter)
	if err != nil {
		return nil, ClassifyBenchmarkResult{}, err
	}
	return nil, ClassifyBenchmarkResult{Band: result.Band.String(), ProgressRatio: result.ProgressRatio}, nil
}

func (s *Server) evaluateDeadline(ctx context.Context, req *mcp.CallToolRequest, in DeadlineParams) (*mcp.CallToolResult, DeadlineResult, error) {
	s.logTool("evaluate_deadline")

	reported, err := parseTime("reported_at", in.ReportedAt)
	if err != nil {
		return nil, DeadlineResult{}, err
	}
	allowed, err := parseAllowed(in.Allowed)
	if err != nil {
		return nil, DeadlineResult{}, err
	}
	now := s.svc.Clock.Now()
	if in.Now != "" {
		if now, err = parseTime("now", in.Now); err != nil {
			return nil, DeadlineResult{}, err
		}
	}

	status := deadline.Evaluate(deadline.New(reported, allowed), now)
	return nil, DeadlineResult{
		Due:              status.Due.UTC().Format(time.RFC3339),
		RemainingSeconds: status.RemainingSeconds(),
		Overdue:          status.Overdue,
		Display:          status.Display,
		Relative:         status.Relative,
	}, nil
}

func (s *Server) reportIssue(ctx context.Context, req *mcp.CallToolRequest, in ReportIssueParams) (*mcp.CallToolResult, IssueResult, error) {
	s.logTool("report_issue")

	params := service.ReportParams{
		Title:            in.Title,
		Description:      in.Description,
		Category:         in.Category,
		Severity:         domain.Severity(in.Severity),
		SubjectID:        in.SubjectID,
		ResponsibleParty: in.ResponsibleParty,
	}
	if in.Allowed != "" {
		allowed, err := parseAllowed(in.Allowed)
		if err != nil {
			return nil, IssueResult{}, err
		}
		params.Allowed = &allowed
	}
	if in.ReportedAt != "" {
		reported, err := parseTime("reported_at", in.ReportedAt)
		if err != nil {
			return nil, IssueResult{}, err
		}
		params.ReportedAt = &reported
	}

	var (
		view *service.IssueView
		err  error
	)
	if in.AssessmentID != "" {
		view, err = s.svc.Issues.ReportFromAssessment(ctx, in.AssessmentID, params)
	} else {
		view, err = s.svc.Issues.Report(ctx, params)
	}
	if err != nil {
		return nil, IssueResult{}, err
	}
	return nil, issueResult(view), nil
}

func (s *Server) listIssues(ctx context.Context, req *mcp.CallToolRequest, in ListIssuesParams) (*mcp.CallToolResult, ListIssuesResult, error) {
	s.logTool("list_issues")

	if in.Limit < 0 {
		return nil, ListIssuesResult{}, domain.NewValidationError("limit", "must not be negative", in.Limit)
	}
	views, err := s.svc.Issues.List(ctx, domain.IssueFilter{
		State:     domain.IssueState(in.State),
		Severity:  domain.Severity(in.Severity),
		SubjectID: in.SubjectID,
		Limit:     in.Limit,
	})
	if err != nil {
		return nil, ListIssuesResult{}, err
	}

	out := ListIssuesResult{Issues: make([]IssueResult, 0, len(views))}
	for _, v := range views {
		out.Issues = append(out.Issues, issueResult(v))
	}
	return nil, out, nil
}

func (s *Server) resolveIssue(ctx context.Context, req *mcp.CallToolRequest, in ResolveIssueParams) (*mcp.CallToolResult, IssueResult, error) {
	s.logTool("resolve_issue")

	if in.ResolvedBy == "" {
		return nil, IssueResult{}, domain.NewValidationError("resolved_by", "resolved_by is required", in.ResolvedBy)
	}
	view, err := s.svc.Issues.Resolve(ctx, in.ID, in.ResolvedBy, in.Note)
	if err != nil {
		return nil, IssueResult{}, err
	}
	return nil, issueResult(view), nil
}

func (s *Server) logTool(name string) {
	s.logger.WithFields(logrus.Fields{"tool": name}).Debug("Tool invoked")
}

func issueResult(v *service.IssueView) IssueResult {
	return IssueResult{
		ID:               v.ID,
		Title:            v.Title,
		Severity:         v.Severity.String(),
		State:            v.State.String(),
		SubjectID:        v.SubjectID,
		AssessmentID:     v.AssessmentID,
		ResponsibleParty: v.ResponsibleParty,
		EscalatedTo:      v.EscalatedTo,
		ResolvedBy:       v.ResolvedBy,
		Due:              v.Timer.Due.UTC().Format(time.RFC3339),
		Overdue:          v.Timer.Overdue,
		Display:          v.Timer.Display,
	}
}

func parseTime(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, fmt.Sprintf("must be an RFC 3339 timestamp: %v", err), s)
	}
	return t, nil
}

func parseAllowed(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, domain.NewValidationError("allowed", "must be a duration such as 48h or 90m", s)
	}
	if d < 0 {
		return 0, domain.NewValidationError("allowed", "allowed duration must not be negative", s)
	}
	return d, nil
}
