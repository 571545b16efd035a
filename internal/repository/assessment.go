package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/domain"
)

// AssessmentRepository handles risk assessment persistence
type AssessmentRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAssessmentRepository creates a new assessment repository
func NewAssessmentRepository(db *pgxpool.Pool, logger *logrus.Logger) *AssessmentRepository {
	return &AssessmentRepository{
		db:  db,
		log: logger,
	}
}

const assessmentColumns = `id, rule_id, rule_version, subject_id, assessed_by, inputs,
		score, category, category_rank, factors, actions, computed_at`

// SaveAssessment inserts a new assessment. Assessments are append-only.
func (r *AssessmentRepository) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	inputs, factors, actions, err := encodeAssessment(a)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO assessments (` + assessmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, query,
		a.ID,
		a.RuleID,
		a.RuleVersion,
		a.SubjectID,
		a.AssessedBy,
		inputs,
		a.Score,
		a.Category,
		a.Rank,
		factors,
		actions,
		a.ComputedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"assessment_id": a.ID,
			"rule_id":       a.RuleID,
			"subject_id":    a.SubjectID,
			"error":         err,
		}).Error("Failed to save assessment")
		return fmt.Errorf("saving assessment: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"assessment_id": a.ID,
		"rule_id":       a.RuleID,
		"rule_version":  a.RuleVersion,
		"category":      a.Category,
	}).Debug("Assessment saved")

	return nil
}

// GetAssessment retrieves an assessment by its ID
func (r *AssessmentRepository) GetAssessment(ctx context.Context, id string) (*domain.RiskAssessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`

	a, err := scanAssessment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("assessment %s: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"assessment_id": id,
			"error":         err,
		}).Error("Failed to get assessment")
		return nil, fmt.Errorf("getting assessment: %w", err)
	}
	return a, nil
}

// ListAssessments returns a subject's assessments, newest first.
func (r *AssessmentRepository) ListAssessments(ctx context.Context, subjectID, ruleID string, limit int) ([]*domain.RiskAssessment, error) {
	query := `
		SELECT ` + assessmentColumns + `
		FROM assessments
		WHERE subject_id = $1 AND ($2::text = '' OR rule_id = $2)
		ORDER BY computed_at DESC, id
		LIMIT NULLIF($3::int, 0)`

	if limit < 0 {
		limit = 0
	}

	rows, err := r.db.Query(ctx, query, subjectID, ruleID, limit)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"subject_id": subjectID,
			"rule_id":    ruleID,
			"error":      err,
		}).Error("Failed to list assessments")
		return nil, fmt.Errorf("listing assessments: %w", err)
	}
	defer rows.Close()

	var out []*domain.RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assessment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assessments: %w", err)
	}
	return out, nil
}

func encodeAssessment(a *domain.RiskAssessment) (inputs, factors, actions []byte, err error) {
	if inputs, err = marshalList(a.Inputs); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding inputs: %w", err)
	}
	if factors, err = marshalList(a.Factors); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding factors: %w", err)
	}
	if actions, err = marshalList(a.Actions); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding actions: %w", err)
	}
	return inputs, factors, actions, nil
}

// marshalList encodes a slice, writing [] rather than null for nil.
func marshalList[T any](list []T) ([]byte, error) {
	if list == nil {
		list = []T{}
	}
	return json.Marshal(list)
}

func scanAssessment(row pgx.Row) (*domain.RiskAssessment, error) {
	var a domain.RiskAssessment
	var inputs, factors, actions []byte
	var computedAt time.Time

	err := row.Scan(
		&a.ID,
		&a.RuleID,
		&a.RuleVersion,
		&a.SubjectID,
		&a.AssessedBy,
		&inputs,
		&a.Score,
		&a.Category,
		&a.Rank,
		&factors,
		&actions,
		&computedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(inputs, &a.Inputs); err != nil {
		return nil, fmt.Errorf("decoding inputs: %w", err)
	}
	if err := json.Unmarshal(factors, &a.Factors); err != nil {
		return nil, fmt.Errorf("decoding factors: %w", err)
	}
	if err := json.Unmarshal(actions, &a.Actions); err != nil {
		return nil, fmt.Errorf("decoding actions: %w", err)
	}
	a.ComputedAt = computedAt.UTC()
	return &a, nil
}
