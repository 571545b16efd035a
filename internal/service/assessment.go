package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/internal/rules"
	"github.com/facility-ops/riskwatch/pkg/scoring"
)

// AssessmentService scores checklists against catalog rules and records the
// results.
type AssessmentService struct {
	logger *logrus.Logger
	rules  *rules.Registry
	store  domain.AssessmentRepository
	cache  domain.AssessmentCache
	clock  clockwork.Clock
}

// NewAssessmentService creates a new assessment service
func NewAssessmentService(
	logger *logrus.Logger,
	registry *rules.Registry,
	store domain.AssessmentRepository,
	cache domain.AssessmentCache,
	clock clockwork.Clock,
) *AssessmentService {
	return &AssessmentService{
		logger: logger,
		rules:  registry,
		store:  store,
		cache:  cache,
		clock:  clock,
	}
}

// AssessParams is a checklist submission. RuleVersion 0 selects the latest
// version of the rule.
type AssessParams struct {
	RuleID      string                   `json:"rule_id"`
	RuleVersion int                      `json:"rule_version,omitempty"`
	SubjectID   string                   `json:"subject_id"`
	AssessedBy  string                   `json:"assessed_by,omitempty"`
	Inputs      []scoring.IndicatorValue `json:"inputs"`
}

// Score evaluates inputs without recording anything.
func (s *AssessmentService) Score(ruleID string, version int, inputs []scoring.IndicatorValue) (*scoring.Rule, scoring.Result, error) {
	rule, err := s.rules.Resolve(ruleID, version)
	if err != nil {
		return nil, scoring.Result{}, err
	}
	return rule, scoring.Score(rule, inputs), nil
}

// Assess scores params and stores the result as a new assessment.
func (s *AssessmentService) Assess(ctx context.Context, params AssessParams) (*domain.RiskAssessment, error) {
	if strings.TrimSpace(params.SubjectID) == "" {
		return nil, domain.NewValidationError("subject_id", "subject is required", params.SubjectID)
	}

	rule, result, err := s.Score(params.RuleID, params.RuleVersion, params.Inputs)
	if err != nil {
		return nil, err
	}

	a := &domain.RiskAssessment{
		ID:          uuid.New().String(),
		RuleID:      rule.ID(),
		RuleVersion: rule.Version(),
		SubjectID:   params.SubjectID,
		AssessedBy:  params.AssessedBy,
		Inputs:      params.Inputs,
		Score:       result.Total,
		Category:    result.Category,
		Rank:        result.Rank,
		Factors:     result.Factors,
		Actions:     result.Actions,
		ComputedAt:  s.clock.Now().UTC(),
	}

	if err := s.store.SaveAssessment(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to record assessment: %w", err)
	}

	if err := s.cache.SetLatest(ctx, a); err != nil {
		s.logger.WithError(err).Warn("Failed to cache latest assessment")
	}

	s.logger.WithFields(logrus.Fields{
		"assessment_id": a.ID,
		"rule":          rule.Key(),
		"subject_id":    a.SubjectID,
		"score":         a.Score,
		"category":      a.Category,
	}).Info("Assessment recorded")

	return a, nil
}

// Get returns a recorded assessment.
func (s *AssessmentService) Get(ctx context.Context, id string) (*domain.RiskAssessment, error) {
	return s.store.GetAssessment(ctx, id)
}

// History returns a subject's assessments, newest first. An empty ruleID
// covers every rule.
func (s *AssessmentService) History(ctx context.Context, subjectID, ruleID string, limit int) ([]*domain.RiskAssessment, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, domain.NewValidationError("subject_id", "subject is required", subjectID)
	}
	return s.store.ListAssessments(ctx, subjectID, ruleID, limit)
}

// Latest returns the most recent assessment for subject under ruleID,
// reading through the cache.
func (s *AssessmentService) Latest(ctx context.Context, subjectID, ruleID string) (*domain.RiskAssessment, error) {
	if a, ok := s.cache.GetLatest(ctx, subjectID, ruleID); ok {
		return a, nil
	}

	list, err := s.store.ListAssessments(ctx, subjectID, ruleID, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no %s assessment for %s: %w", ruleID, subjectID, domain.ErrNotFound)
	}

	if err := s.cache.SetLatest(ctx, list[0]); err != nil {
		s.logger.WithError(err).Debug("Failed to warm assessment cache")
	}
	return list[0], nil
}

// Rules lists the catalog, latest and historical versions alike.
func (s *AssessmentService) Rules() []*scoring.Rule {
	return s.rules.List()
}

// Rule returns one catalog rule; version 0 selects the latest.
func (s *AssessmentService) Rule(id string, version int) (*scoring.Rule, error) {
	return s.rules.Resolve(id, version)
}
