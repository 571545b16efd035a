package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/internal/storetest"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "riskwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		return createTestStore(t)
	})
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "riskwatch.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	assert.Equal(t, dbPath, store.Path())
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "riskwatch.db")
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	issue := storetest.Issue(domain.SeverityLow, at, time.Hour)
	require.NoError(t, first.CreateIssue(ctx, issue))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.Title, got.Title)
}

func TestSQLiteStore_UnknownAssessmentLink(t *testing.T) {
	store := createTestStore(t)
	issue := storetest.Issue(domain.SeverityLow, time.Now(), time.Hour)
	issue.AssessmentID = "does-not-exist"

	err := store.CreateIssue(context.Background(), issue)
	assert.Error(t, err)
}

func TestSQLiteStore_PreservesSubSecondTimes(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 8, 0, 0, 123456789, time.FixedZone("CEST", 2*3600))

	a := storetest.Assessment("resident-1", "morse-fall-scale", at)
	require.NoError(t, store.SaveAssessment(ctx, a))

	got, err := store.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, at.Equal(got.ComputedAt))
	assert.Equal(t, time.UTC, got.ComputedAt.Location())
}

func setupMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStoreFromDB(db), mock
}

func TestSQLiteStore_DatabaseErrors(t *testing.T) {
	boom := errors.New("disk I/O error")
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
		call   func(s *SQLiteStore) error
	}{
		{
			name:   "save assessment",
			expect: func(mock sqlmock.Sqlmock) { mock.ExpectExec("INSERT INTO assessments").WillReturnError(boom) },
			call: func(s *SQLiteStore) error {
				return s.SaveAssessment(ctx, storetest.Assessment("r", "rule", at))
			},
		},
		{
			name:   "get assessment",
			expect: func(mock sqlmock.Sqlmock) { mock.ExpectQuery("SELECT .+ FROM assessments").WillReturnError(boom) },
			call: func(s *SQLiteStore) error {
				_, err := s.GetAssessment(ctx, "a-1")
				return err
			},
		},
		{
			name:   "list assessments",
			expect: func(mock sqlmock.Sqlmock) { mock.ExpectQuery("SELECT .+ FROM assessments").WillReturnError(boom) },
			call: func(s *SQLiteStore) error {
				_, err := s.ListAssessments(ctx, "r", "", 0)
				return err
			},
		},
		{
			name:   "create issue",
			expect: func(mock sqlmock.Sqlmock) { mock.ExpectExec("INSERT INTO issues").WillReturnError(boom) },
			call: func(s *SQLiteStore) error {
				return s.CreateIssue(ctx, storetest.Issue(domain.SeverityHigh, at, time.Hour))
			},
		},
		{
			name:   "list issues",
			expect: func(mock sqlmock.Sqlmock) { mock.ExpectQuery("SELECT .+ FROM issues").WillReturnError(boom) },
			call: func(s *SQLiteStore) error {
				_, err := s.ListIssues(ctx, domain.IssueFilter{State: domain.StatePending})
				return err
			},
		},
		{
			name:   "escalate issue",
			expect: func(mock sqlmock.Sqlmock) { mock.ExpectExec("UPDATE issues").WillReturnError(boom) },
			call: func(s *SQLiteStore) error {
				_, err := s.EscalateIssue(ctx, "i-1", "director", at)
				return err
			},
		},
		{
			name: "resolve existence check",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE issues").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT COUNT").WillReturnError(boom)
			},
			call: func(s *SQLiteStore) error {
				_, err := s.ResolveIssue(ctx, "i-1", "nurse", "", at)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setupMockStore(t)
			tt.expect(mock)

			err := tt.call(store)

			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.NotErrorIs(t, err, domain.ErrNotFound)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLiteStore_CorruptRows(t *testing.T) {
	store, mock := setupMockStore(t)

	rows := sqlmock.NewRows([]string{
		"id", "rule_id", "rule_version", "subject_id", "assessed_by", "inputs",
		"score", "category", "category_rank", "factors", "actions", "computed_at",
	}).AddRow("a-1", "rule", 1, "r", "", "not json", 1.0, "low", 0, "[]", "[]", "2024-06-01T08:00:00.000000000Z")
	mock.ExpectQuery("SELECT .+ FROM assessments").WillReturnRows(rows)

	_, err := store.GetAssessment(context.Background(), "a-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding inputs")
}

func TestSQLiteStore_GetIssueNotFound(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM issues").WillReturnError(sql.ErrNoRows)

	_, err := store.GetIssue(context.Background(), "i-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormatTime_SortsLexically(t *testing.T) {
	early := time.Date(2024, 6, 1, 8, 0, 0, 5, time.UTC)
	late := time.Date(2024, 6, 1, 8, 0, 0, 40, time.UTC)

	assert.Less(t, formatTime(early), formatTime(late))
	assert.Len(t, formatTime(early), len(formatTime(late)))
}
