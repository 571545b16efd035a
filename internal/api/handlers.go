package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/internal/service"
	"github.com/facility-ops/riskwatch/pkg/benchmark"
	"github.com/facility-ops/riskwatch/pkg/deadline"
	"github.com/facility-ops/riskwatch/pkg/scoring"
)

// RuleView is the wire form of a compiled rule.
type RuleView struct {
	ID             string                    `json:"id"`
	Version        int                       `json:"version"`
	Name           string                    `json:"name"`
	Description    string                    `json:"description,omitempty"`
	Directionality scoring.Directionality    `json:"directionality"`
	Thresholds     []scoring.Threshold       `json:"thresholds"`
	Terminal       string                    `json:"terminal"`
	Categories     []string                  `json:"categories"`
	Weights        map[string]scoring.Weight `json:"weights"`
}

func ruleView(r *scoring.Rule) RuleView {
	weights := make(map[string]scoring.Weight)
	for _, key := range r.Indicators() {
		if w, ok := r.Weight(key); ok {
			weights[key] = w
		}
	}
	return RuleView{
		ID:             r.ID(),
		Version:        r.Version(),
		Name:           r.Name(),
		Description:    r.Description(),
		Directionality: r.Directionality(),
		Thresholds:     r.Thresholds(),
		Terminal:       r.Terminal(),
		Categories:     r.Categories(),
		Weights:        weights,
	}
}

type scoreRequest struct {
	RuleID      string                   `json:"rule_id" binding:"required"`
	RuleVersion int                      `json:"rule_version"`
	Inputs      []scoring.IndicatorValue `json:"inputs"`
}

type scoreResponse struct {
	RuleID      string `json:"rule_id"`
	RuleVersion int    `json:"rule_version"`
	scoring.Result
}

type classifyRequest struct {
	Current        *float64             `json:"current" binding:"required"`
	Target         float64              `json:"target"`
	Thresholds     benchmark.Thresholds `json:"thresholds"`
	HigherIsBetter bool                 `json:"higher_is_better"`
}

type compareRequest struct {
	Values map[string]float64 `json:"values" binding:"required"`
}

type deadlineRequest struct {
	ReportedAt time.Time  `json:"reported_at" binding:"required"`
	Allowed    string     `json:"allowed" binding:"required"`
	Now        *time.Time `json:"now"`
}

type deadlineResponse struct {
	deadline.Status
	RemainingSeconds int64 `json:"remaining_seconds"`
}

type reportIssueRequest struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	Severity         string     `json:"severity"`
	SubjectID        string     `json:"subject_id"`
	ResponsibleParty string     `json:"responsible_party"`
	AssessmentID     string     `json:"assessment_id"`
	Allowed          string     `json:"allowed"`
	ReportedAt       *time.Time `json:"reported_at"`
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by" binding:"required"`
	Note       string `json:"note"`
}

func (s *Server) handleListRules(c *gin.Context) {
	list := s.svc.Assessments.Rules()
	out := make([]RuleView, 0, len(list))
	for _, r := range list {
		out = append(out, ruleView(r))
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

func (s *Server) handleGetRule(c *gin.Context) {
	version, ok := s.intQuery(c, "version")
	if !ok {
		return
	}
	rule, err := s.svc.Assessments.Rule(c.Param("id"), version)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ruleView(rule))
}

func (s *Server) handleScore(c *gin.Context) {
	var req scoreRequest
	if !s.bind(c, &req) {
		return
	}
	rule, result, err := s.svc.Assessments.Score(req.RuleID, req.RuleVersion, req.Inputs)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scoreResponse{RuleID: rule.ID(), RuleVersion: rule.Version(), Result: result})
}

func (s *Server) handleRecordAssessment(c *gin.Context) {
	var req service.AssessParams
	if !s.bind(c, &req) {
		return
	}
	a, err := s.svc.Assessments.Assess(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) handleGetAssessment(c *gin.Context) {
	a, err := s.svc.Assessments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleSubjectHistory(c *gin.Context) {
	limit, ok := s.intQuery(c, "limit")
	if !ok {
		return
	}
	list, err := s.svc.Assessments.History(c.Request.Context(), c.Param("subject"), c.Query("rule"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if list == nil {
		list = []*domain.RiskAssessment{}
	}
	c.JSON(http.StatusOK, gin.H{"assessments": list})
}

func (s *Server) handleSubjectLatest(c *gin.Context) {
	rule := c.Query("rule")
	if rule == "" {
		s.writeError(c, domain.NewValidationError("rule", "rule query parameter is required", rule))
		return
	}
	a, err := s.svc.Assessments.Latest(c.Request.Context(), c.Param("subject"), rule)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleListStandards(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"standards": s.svc.Benchmarks.Standards()})
}

func (s *Server) handleClassifyBenchmark(c *gin.Context) {
	var req classifyRequest
	if !s.bind(c, &req) {
		return
	}
	result, err := s.svc.Benchmarks.Classify(*req.Current, req.Target, req.Thresholds, req.HigherIsBetter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCompareBenchmarks(c *gin.Context) {
	var req compareRequest
	if !s.bind(c, &req) {
		return
	}
	report, err := s.svc.Benchmarks.CompareAll(req.Values)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleEvaluateDeadline(c *gin.Context) {
	var req deadlineRequest
	if !s.bind(c, &req) {
		return
	}
	allowed, err := parseAllowed(req.Allowed)
	if err != nil {
		s.writeError(c, err)
		return
	}

	now := s.svc.Clock.Now()
	if req.Now != nil {
		now = *req.Now
	}
	status := deadline.Evaluate(deadline.New(req.ReportedAt, allowed), now)
	c.JSON(http.StatusOK, deadlineResponse{Status: status, RemainingSeconds: status.RemainingSeconds()})
}

func (s *Server) handleReportIssue(c *gin.Context) {
	var req reportIssueRequest
	if !s.bind(c, &req) {
		return
	}

	params := service.ReportParams{
		Title:            req.Title,
		Description:      req.Description,
		Category:         req.Category,
		Severity:         domain.Severity(req.Severity),
		SubjectID:        req.SubjectID,
		ResponsibleParty: req.ResponsibleParty,
		ReportedAt:       req.ReportedAt,
	}
	if req.Allowed != "" {
		allowed, err := parseAllowed(req.Allowed)
		if err != nil {
			s.writeError(c, err)
			return
		}
		params.Allowed = &allowed
	}

	var (
		view *service.IssueView
		err  error
	)
	if req.AssessmentID != "" {
		view, err = s.svc.Issues.ReportFromAssessment(c.Request.Context(), req.AssessmentID, params)
	} else {
		view, err = s.svc.Issues.Report(c.Request.Context(), params)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (s *Server) handleListIssues(c *gin.Context) {
	limit, ok := s.intQuery(c, "limit")
	if !ok {
		return
	}
	list, err := s.svc.Issues.List(c.Request.Context(), domain.IssueFilter{
		State:     domain.IssueState(c.Query("state")),
		Severity:  domain.Severity(c.Query("severity")),
		SubjectID: c.Query("subject"),
		Limit:     limit,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": list})
}

func (s *Server) handleGetIssue(c *gin.Context) {
	view, err := s.svc.Issues.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleResolveIssue(c *gin.Context) {
	var req resolveRequest
	if !s.bind(c, &req) {
		return
	}
	view, err := s.svc.Issues.Resolve(c.Request.Context(), c.Param("id"), req.ResolvedBy, req.Note)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleSweep(c *gin.Context) {
	result, err := s.svc.Issues.Sweep(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListPolicies(c *gin.Context) {
	policies := s.svc.Issues.Policies()
	out := make([]gin.H, 0, len(policies))
	for _, sev := range domain.Severities {
		p, ok := policies[sev]
		if !ok {
			continue
		}
		out = append(out, gin.H{
			"severity":    p.Severity,
			"allowed":     p.Allowed.String(),
			"escalate_to": p.EscalateTo,
		})
	}
	c.JSON(http.StatusOK, gin.H{"policies": out})
}

// parseAllowed reads a response window such as "48h" or "90m".
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

func (s *Server) intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.writeError(c, domain.NewValidationError(name, "must be a non-negative integer", raw))
		return 0, false
	}
	return n, true
}
