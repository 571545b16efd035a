package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/database/dbtest"
	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/internal/repository"
	"github.com/facility-ops/riskwatch/internal/storetest"
)

func TestPostgresStore(t *testing.T) {
	db, _ := dbtest.Postgres(t)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	store := repository.NewPostgresStore(db, logger)

	storetest.Run(t, func(t *testing.T) domain.Store {
		if _, err := db.Pool.Exec(context.Background(), `TRUNCATE issues, assessments`); err != nil {
			t.Fatalf("Failed to truncate tables: %v", err)
		}
		return store
	})
}

func TestPostgresStore_LinkedIssue(t *testing.T) {
	db, _ := dbtest.Postgres(t)
	ctx := context.Background()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	store := repository.NewPostgresStore(db, logger)

	a := storetest.Assessment("resident-1", "facility-early-warning", time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	if err := store.SaveAssessment(ctx, a); err != nil {
		t.Fatalf("SaveAssessment: %v", err)
	}

	issue := storetest.Issue(domain.SeverityHigh, a.ComputedAt, 0)
	issue.AssessmentID = a.ID
	if err := store.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	got, err := store.GetIssue(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if got.AssessmentID != a.ID {
		t.Errorf("AssessmentID = %q, want %q", got.AssessmentID, a.ID)
	}

	dangling := storetest.Issue(domain.SeverityLow, a.ComputedAt, 0)
	dangling.AssessmentID = "does-not-exist"
	if err := store.CreateIssue(ctx, dangling); err == nil {
		t.Error("Expected foreign key violation for unknown assessment")
	}
}
