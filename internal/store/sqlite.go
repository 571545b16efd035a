// Package store provides the embedded SQLite backend used by the MCP server
// when no PostgreSQL database is configured.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/pkg/deadline"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements domain.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

var _ domain.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database file at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps the pragmas below in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// NewSQLiteStoreFromDB wraps an already opened handle. The schema is assumed
// to exist.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Path returns the database file path, empty for wrapped handles.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL,
		rule_version INTEGER NOT NULL,
		subject_id TEXT NOT NULL,
		assessed_by TEXT NOT NULL DEFAULT '',
		inputs TEXT NOT NULL DEFAULT '[]',
		score REAL NOT NULL,
		category TEXT NOT NULL,
		category_rank INTEGER NOT NULL,
		factors TEXT NOT NULL DEFAULT '[]',
		actions TEXT NOT NULL DEFAULT '[]',
		computed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assessments_subject_rule
		ON assessments(subject_id, rule_id, computed_at);

	CREATE TABLE IF NOT EXISTS issues (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL CHECK (severity IN ('critical', 'high', 'medium', 'low')),
		subject_id TEXT NOT NULL DEFAULT '',
		assessment_id TEXT REFERENCES assessments(id),
		responsible_party TEXT NOT NULL DEFAULT '',
		reported_at TEXT NOT NULL,
		allowed_duration_ns INTEGER NOT NULL CHECK (allowed_duration_ns >= 0),
		state TEXT NOT NULL CHECK (state IN ('pending', 'escalated', 'resolved')),
		escalated_at TEXT,
		escalated_to TEXT NOT NULL DEFAULT '',
		resolved_at TEXT,
		resolved_by TEXT NOT NULL DEFAULT '',
		resolution_note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_issues_state ON issues(state);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const assessmentColumns = `id, rule_id, rule_version, subject_id, assessed_by, inputs,
	score, category, category_rank, factors, actions, computed_at`

// SaveAssessment inserts a new assessment.
func (s *SQLiteStore) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	inputs, err := marshalList(a.Inputs)
	if err != nil {
		return fmt.Errorf("failed to encode inputs: %w", err)
	}
	factors, err := marshalList(a.Factors)
	if err != nil {
		return fmt.Errorf("failed to encode factors: %w", err)
	}
	actions, err := marshalList(a.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments (`+assessmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
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
		formatTime(a.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

// GetAssessment retrieves an assessment by ID.
func (s *SQLiteStore) GetAssessment(ctx context.Context, id string) (*domain.RiskAssessment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`, id)

	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assessment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan assessment: %w", err)
	}
	return a, nil
}

// ListAssessments returns a subject's assessments, newest first.
func (s *SQLiteStore) ListAssessments(ctx context.Context, subjectID, ruleID string, limit int) ([]*domain.RiskAssessment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM assessments
		WHERE subject_id = ? AND (? = '' OR rule_id = ?)
		ORDER BY computed_at DESC, id
		LIMIT ?
	`, subjectID, ruleID, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer rows.Close()

	var result []*domain.RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanAssessment(sc scanner) (*domain.RiskAssessment, error) {
	var a domain.RiskAssessment
	var inputs, factors, actions, computedAt string

	err := sc.Scan(
		&a.ID, &a.RuleID, &a.RuleVersion, &a.SubjectID, &a.AssessedBy,
		&inputs, &a.Score, &a.Category, &a.Rank, &factors, &actions, &computedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(inputs), &a.Inputs); err != nil {
		return nil, fmt.Errorf("decoding inputs: %w", err)
	}
	if err := json.Unmarshal([]byte(factors), &a.Factors); err != nil {
		return nil, fmt.Errorf("decoding factors: %w", err)
	}
	if err := json.Unmarshal([]byte(actions), &a.Actions); err != nil {
		return nil, fmt.Errorf("decoding actions: %w", err)
	}
	if a.ComputedAt, err = parseTime(computedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

const issueColumns = `id, title, description, category, severity, subject_id, assessment_id,
	responsible_party, reported_at, allowed_duration_ns, state, escalated_at, escalated_to,
	resolved_at, resolved_by, resolution_note, created_at, updated_at`

// CreateIssue inserts a new issue.
func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *domain.Issue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		issue.ID,
		issue.Title,
		issue.Description,
		issue.Category,
		string(issue.Severity),
		issue.SubjectID,
		nullString(issue.AssessmentID),
		issue.ResponsibleParty,
		formatTime(issue.Deadline.ReportedAt),
		int64(issue.Deadline.AllowedDuration),
		string(issue.State),
		formatTimePtr(issue.EscalatedAt),
		issue.EscalatedTo,
		formatTimePtr(issue.ResolvedAt),
		issue.ResolvedBy,
		issue.ResolutionNote,
		formatTime(issue.CreatedAt),
		formatTime(issue.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}
	return nil
}

// GetIssue retrieves an issue by ID.
func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*domain.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)

	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan issue: %w", err)
	}
	return issue, nil
}

// ListIssues returns issues matching filter, earliest deadline first.
func (s *SQLiteStore) ListIssues(ctx context.Context, filter domain.IssueFilter) ([]*domain.Issue, error) {
	var conds []string
	var args []interface{}
	if filter.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(filter.State))
	}
	if filter.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.SubjectID != "" {
		conds = append(conds, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	// julianday is in days; the deadline itself is never stored.
	query += ` ORDER BY julianday(reported_at) + allowed_duration_ns / 86400000000000.0, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var result []*domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, issue)
	}
	return result, rows.Err()
}

// EscalateIssue moves a pending issue to escalated.
func (s *SQLiteStore) EscalateIssue(ctx context.Context, id, escalateTo string, at time.Time) (bool, error) {
	stamp := formatTime(at)
	result, err := s.db.ExecContext(ctx, `
		UPDATE issues
		SET state = 'escalated', escalated_at = ?, escalated_to = ?, updated_at = ?
		WHERE id = ? AND state = 'pending'
	`, stamp, escalateTo, stamp, id)
	if err != nil {
		return false, fmt.Errorf("failed to escalate issue: %w", err)
	}
	return s.changed(ctx, result, id)
}

// ResolveIssue moves an unresolved issue to resolved.
func (s *SQLiteStore) ResolveIssue(ctx context.Context, id, resolvedBy, note string, at time.Time) (bool, error) {
	stamp := formatTime(at)
	result, err := s.db.ExecContext(ctx, `
		UPDATE issues
		SET state = 'resolved', resolved_at = ?, resolved_by = ?, resolution_note = ?, updated_at = ?
		WHERE id = ? AND state <> 'resolved'
	`, stamp, resolvedBy, note, stamp, id)
	if err != nil {
		return false, fmt.Errorf("failed to resolve issue: %w", err)
	}
	return s.changed(ctx, result, id)
}

// changed reports whether result touched a row, telling a lost race apart
// from a missing issue.
func (s *SQLiteStore) changed(ctx context.Context, result sql.Result, id string) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues WHERE id = ?", id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check issue: %w", err)
	}
	if exists == 0 {
		return false, fmt.Errorf("issue %s: %w", id, domain.ErrNotFound)
	}
	return false, nil
}

func scanIssue(sc scanner) (*domain.Issue, error) {
	var issue domain.Issue
	var severity, state, reportedAt, createdAt, updatedAt string
	var assessmentID, escalatedAt, resolvedAt sql.NullString
	var allowedNS int64

	err := sc.Scan(
		&issue.ID, &issue.Title, &issue.Description, &issue.Category, &severity,
		&issue.SubjectID, &assessmentID, &issue.ResponsibleParty, &reportedAt,
		&allowedNS, &state, &escalatedAt, &issue.EscalatedTo, &resolvedAt,
		&issue.ResolvedBy, &issue.ResolutionNote, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	issue.Severity = domain.Severity(severity)
	issue.State = domain.IssueState(state)
	issue.AssessmentID = assessmentID.String

	reported, err := parseTime(reportedAt)
	if err != nil {
		return nil, err
	}
	issue.Deadline = deadline.New(reported, time.Duration(allowedNS))

	if issue.EscalatedAt, err = parseNullTime(escalatedAt); err != nil {
		return nil, err
	}
	if issue.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return nil, err
	}
	if issue.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if issue.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &issue, nil
}

// Health pings the database.
func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalList[T any](list []T) (string, error) {
	if list == nil {
		list = []T{}
	}
	b, err := json.Marshal(list)
	return string(b), err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
