package domain

import (
	"context"
	"time"
)

// AssessmentRepository persists risk assessments.
type AssessmentRepository interface {
	SaveAssessment(ctx context.Context, a *RiskAssessment) error
	GetAssessment(ctx context.Context, id string) (*RiskAssessment, error)
	// ListAssessments returns assessments for a subject, newest first. An
	// empty ruleID matches every rule; limit <= 0 means no limit.
	ListAssessments(ctx context.Context, subjectID, ruleID string, limit int) ([]*RiskAssessment, error)
}

// IssueRepository persists issues. Transitions are conditional updates so
// concurrent writers converge without locks.
type IssueRepository interface {
	CreateIssue(ctx context.Context, issue *Issue) error
	GetIssue(ctx context.Context, id string) (*Issue, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]*Issue, error)
	// EscalateIssue moves a pending issue to escalated. It reports false when
	// the issue was no longer pending.
	EscalateIssue(ctx context.Context, id, escalateTo string, at time.Time) (bool, error)
	// ResolveIssue moves an unresolved issue to resolved. It reports false
	// when the issue was already resolved.
	ResolveIssue(ctx context.Context, id, resolvedBy, note string, at time.Time) (bool, error)
}

// Store is a backend holding both assessments and issues.
type Store interface {
	AssessmentRepository
	IssueRepository
	Health(ctx context.Context) error
	Close() error
}

// AssessmentCache keeps the latest assessment per subject and rule.
type AssessmentCache interface {
	GetLatest(ctx context.Context, subjectID, ruleID string) (*RiskAssessment, bool)
	SetLatest(ctx context.Context, a *RiskAssessment) error
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetCacheConfig() *CacheConfig
	GetLoggingConfig() *LoggingConfig
	GetEscalationConfig() *EscalationConfig
	Validate() error
}
