package repository

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/database"
	"github.com/facility-ops/riskwatch/internal/domain"
)

// PostgresStore serves assessments and issues from one connection pool.
type PostgresStore struct {
	*AssessmentRepository
	*IssueRepository
	db *database.DB
}

var _ domain.Store = (*PostgresStore)(nil)

// NewPostgresStore wires both repositories onto db.
func NewPostgresStore(db *database.DB, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		AssessmentRepository: NewAssessmentRepository(db.Pool, logger),
		IssueRepository:      NewIssueRepository(db.Pool, logger),
		db:                   db,
	}
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
