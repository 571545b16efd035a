package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/pkg/deadline"
)

// IssueRepository handles issue persistence. State changes are conditional
// updates, so two sweepers racing on the same issue both succeed and at most
// one of them reports a change.
type IssueRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewIssueRepository creates a new issue repository
func NewIssueRepository(db *pgxpool.Pool, logger *logrus.Logger) *IssueRepository {
	return &IssueRepository{
		db:  db,
		log: logger,
	}
}

const issueColumns = `id, title, description, category, severity, subject_id, assessment_id,
		responsible_party, reported_at, allowed_duration_ns, state, escalated_at, escalated_to,
		resolved_at, resolved_by, resolution_note, created_at, updated_at`

// CreateIssue inserts a new issue
func (r *IssueRepository) CreateIssue(ctx context.Context, issue *domain.Issue) error {
	query := `
		INSERT INTO issues (` + issueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.Exec(ctx, query,
		issue.ID,
		issue.Title,
		issue.Description,
		issue.Category,
		string(issue.Severity),
		issue.SubjectID,
		nullString(issue.AssessmentID),
		issue.ResponsibleParty,
		issue.Deadline.ReportedAt,
		int64(issue.Deadline.AllowedDuration),
		string(issue.State),
		issue.EscalatedAt,
		issue.EscalatedTo,
		issue.ResolvedAt,
		issue.ResolvedBy,
		issue.ResolutionNote,
		issue.CreatedAt,
		issue.UpdatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"issue_id": issue.ID,
			"severity": issue.Severity,
			"error":    err,
		}).Error("Failed to create issue")
		return fmt.Errorf("creating issue: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"issue_id": issue.ID,
		"severity": issue.Severity,
		"due":      issue.Deadline.Due(),
	}).Info("Issue created successfully")

	return nil
}

// GetIssue retrieves an issue by its ID
func (r *IssueRepository) GetIssue(ctx context.Context, id string) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1`

	issue, err := scanIssue(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("issue %s: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"issue_id": id,
			"error":    err,
		}).Error("Failed to get issue")
		return nil, fmt.Errorf("getting issue: %w", err)
	}
	return issue, nil
}

// ListIssues returns issues matching filter, oldest deadline first.
func (r *IssueRepository) ListIssues(ctx context.Context, filter domain.IssueFilter) ([]*domain.Issue, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.State != "" {
		add("state = $%d", string(filter.State))
	}
	if filter.Severity != "" {
		add("severity = $%d", string(filter.Severity))
	}
	if filter.SubjectID != "" {
		add("subject_id = $%d", filter.SubjectID)
	}

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY reported_at + (allowed_duration_ns / 1000) * interval '1 microsecond', id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"state":    filter.State,
			"severity": filter.Severity,
			"error":    err,
		}).Error("Failed to list issues")
		return nil, fmt.Errorf("listing issues: %w", err)
	}
	defer rows.Close()

	var out []*domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		out = append(out, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating issues: %w", err)
	}
	return out, nil
}

// EscalateIssue moves a pending issue to escalated.
func (r *IssueRepository) EscalateIssue(ctx context.Context, id, escalateTo string, at time.Time) (bool, error) {
	query := `
		UPDATE issues
		SET state = 'escalated', escalated_at = $2, escalated_to = $3, updated_at = $2
		WHERE id = $1 AND state = 'pending'`

	result, err := r.db.Exec(ctx, query, id, at, escalateTo)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"issue_id": id,
			"error":    err,
		}).Error("Failed to escalate issue")
		return false, fmt.Errorf("escalating issue: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, r.ensureExists(ctx, id)
	}

	r.log.WithFields(logrus.Fields{
		"issue_id":     id,
		"escalated_to": escalateTo,
	}).Info("Issue escalated")
	return true, nil
}

// ResolveIssue moves an unresolved issue to resolved.
func (r *IssueRepository) ResolveIssue(ctx context.Context, id, resolvedBy, note string, at time.Time) (bool, error) {
	query := `
		UPDATE issues
		SET state = 'resolved', resolved_at = $2, resolved_by = $3, resolution_note = $4, updated_at = $2
		WHERE id = $1 AND state <> 'resolved'`

	result, err := r.db.Exec(ctx, query, id, at, resolvedBy, note)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"issue_id": id,
			"error":    err,
		}).Error("Failed to resolve issue")
		return false, fmt.Errorf("resolving issue: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, r.ensureExists(ctx, id)
	}

	r.log.WithFields(logrus.Fields{
		"issue_id":    id,
		"resolved_by": resolvedBy,
	}).Info("Issue resolved")
	return true, nil
}

func (r *IssueRepository) ensureExists(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM issues WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking issue: %w", err)
	}
	if !exists {
		return fmt.Errorf("issue %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanIssue(row pgx.Row) (*domain.Issue, error) {
	var issue domain.Issue
	var severity, state string
	var assessmentID *string
	var reportedAt, createdAt, updatedAt time.Time
	var allowedNS int64

	err := row.Scan(
		&issue.ID,
		&issue.Title,
		&issue.Description,
		&issue.Category,
		&severity,
		&issue.SubjectID,
		&assessmentID,
		&issue.ResponsibleParty,
		&reportedAt,
		&allowedNS,
		&state,
		&issue.EscalatedAt,
		&issue.EscalatedTo,
		&issue.ResolvedAt,
		&issue.ResolvedBy,
		&issue.ResolutionNote,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	issue.Severity = domain.Severity(severity)
	issue.State = domain.IssueState(state)
	if assessmentID != nil {
		issue.AssessmentID = *assessmentID
	}
	issue.Deadline = deadline.New(reportedAt.UTC(), time.Duration(allowedNS))
	issue.EscalatedAt = utcPtr(issue.EscalatedAt)
	issue.ResolvedAt = utcPtr(issue.ResolvedAt)
	issue.CreatedAt = createdAt.UTC()
	issue.UpdatedAt = updatedAt.UTC()
	return &issue, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
