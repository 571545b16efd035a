package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facility-ops/riskwatch/internal/cache"
	"github.com/facility-ops/riskwatch/internal/rules"
	"github.com/facility-ops/riskwatch/internal/service"
	"github.com/facility-ops/riskwatch/internal/store"
)

type harness struct {
	session *mcp.ClientSession
	clock   *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	registry, err := rules.LoadBuiltin()
	require.NoError(t, err)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	c := cache.NewMemoryCache(100, time.Hour)

	srv := NewServer(Services{
		Assessments: service.NewAssessmentService(logger, registry, st, c, clock),
		Benchmarks:  service.NewBenchmarkService(logger, registry),
		Issues:      service.NewIssueService(logger, st, registry, nil, clock),
		Clock:       clock,
	}, "test", logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.mcpServer.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return &harness{session: session, clock: clock}
}

// call invokes a tool and decodes its structured output into out. It returns
// the raw result so callers can inspect IsError.
func (h *harness) call(t *testing.T, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()

	res, err := h.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		raw, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return res
}

var fallInputs = []map[string]any{
	{"key": "historyOfFalls", "kind": "boolean", "flag": true},
	{"key": "ambulatoryAid", "kind": "enum", "option": "furniture"},
	{"key": "gait", "kind": "enum", "option": "impaired"},
}

func TestListTools(t *testing.T) {
	h := newHarness(t)

	res, err := h.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"list_rules", "score_assessment", "record_assessment", "classify_benchmark",
		"evaluate_deadline", "report_issue", "list_issues", "resolve_issue",
	}, names)
}

func TestListRulesTool(t *testing.T) {
	h := newHarness(t)

	var out ListRulesResult
	res := h.call(t, "list_rules", map[string]any{}, &out)
	require.False(t, res.IsError)

	byID := make(map[string]RuleSummary)
	for _, r := range out.Rules {
		byID[r.ID] = r
	}
	require.Contains(t, byID, "morse-fall-scale")
	assert.Equal(t, []string{"low", "medium", "high"}, byID["morse-fall-scale"].Categories)
	assert.Contains(t, byID, "facility-early-warning")
}

func TestScoreAssessmentTool(t *testing.T) {
	h := newHarness(t)

	var out ScoreResult
	res := h.call(t, "score_assessment", map[string]any{
		"rule_id": "morse-fall-scale",
		"inputs":  fallInputs,
	}, &out)
	require.False(t, res.IsError)
	assert.Equal(t, 75.0, out.Total)
	assert.Equal(t, "high", out.Category)
	assert.Equal(t, 2, out.Rank)
	assert.Len(t, out.Actions, 4)

	res = h.call(t, "score_assessment", map[string]any{"rule_id": "unknown", "inputs": []any{}}, nil)
	assert.True(t, res.IsError)
}

func TestRecordAndReportFromAssessment(t *testing.T) {
	h := newHarness(t)

	var recorded AssessmentResult
	res := h.call(t, "record_assessment", map[string]any{
		"rule_id":    "morse-fall-scale",
		"subject_id": "resident-7",
		"inputs":     fallInputs,
	}, &recorded)
	require.False(t, res.IsError)
	require.NotEmpty(t, recorded.ID)
	assert.Equal(t, "2024-06-01T08:00:00Z", recorded.ComputedAt)

	var issue IssueResult
	res = h.call(t, "report_issue", map[string]any{"assessment_id": recorded.ID}, &issue)
	require.False(t, res.IsError)
	assert.Equal(t, "high", issue.Severity)
	assert.Equal(t, "pending", issue.State)
	assert.Equal(t, "resident-7", issue.SubjectID)
	assert.Equal(t, "72h 0m remaining", issue.Display)

	res = h.call(t, "record_assessment", map[string]any{
		"rule_id":    "morse-fall-scale",
		"subject_id": "",
		"inputs":     fallInputs,
	}, nil)
	assert.True(t, res.IsError)
}

func TestClassifyBenchmarkTool(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		args    map[string]any
		band    string
		isError bool
	}{
		{
			name: "catalog standard lower is better",
			args: map[string]any{"code": "FALL_RATE", "current": 3},
			band: "good",
		},
		{
			name: "ad hoc higher is better",
			args: map[string]any{
				"current":          70,
				"target":           95,
				"thresholds":       map[string]any{"excellent": 95, "good": 85, "acceptable": 75},
				"higher_is_better": true,
			},
			band: "poor",
		},
		{
			name:    "unknown standard",
			args:    map[string]any{"code": "NOPE", "current": 1},
			isError: true,
		},
		{
			name:    "no standard or thresholds",
			args:    map[string]any{"current": 1},
			isError: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out ClassifyBenchmarkResult
			res := h.call(t, "classify_benchmark", tt.args, &out)
			require.Equal(t, tt.isError, res.IsError)
			if !tt.isError {
				assert.Equal(t, tt.band, out.Band)
			}
		})
	}
}

func TestEvaluateDeadlineTool(t *testing.T) {
	h := newHarness(t)

	var out DeadlineResult
	res := h.call(t, "evaluate_deadline", map[string]any{
		"reported_at": "2024-06-01T05:00:00Z",
		"allowed":     "2h",
	}, &out)
	require.False(t, res.IsError)
	assert.True(t, out.Overdue)
	assert.Equal(t, "1h 0m overdue", out.Display)
	assert.Equal(t, int64(-3600), out.RemainingSeconds)
	assert.Equal(t, "2024-06-01T07:00:00Z", out.Due)

	res = h.call(t, "evaluate_deadline", map[string]any{"reported_at": "yesterday", "allowed": "2h"}, nil)
	assert.True(t, res.IsError)
}

func TestIssueTools(t *testing.T) {
	h := newHarness(t)

	var issue IssueResult
	res := h.call(t, "report_issue", map[string]any{
		"title":    "Call bell broken in room 12",
		"severity": "medium",
		"allowed":  "30m",
	}, &issue)
	require.False(t, res.IsError)
	assert.Equal(t, "0h 30m remaining", issue.Display)

	h.clock.Advance(45 * time.Minute)

	var list ListIssuesResult
	res = h.call(t, "list_issues", map[string]any{"state": "pending"}, &list)
	require.False(t, res.IsError)
	require.Len(t, list.Issues, 1)
	assert.True(t, list.Issues[0].Overdue)
	assert.Equal(t, "0h 15m overdue", list.Issues[0].Display)

	var resolved IssueResult
	res = h.call(t, "resolve_issue", map[string]any{"id": issue.ID, "resolved_by": "maintenance"}, &resolved)
	require.False(t, res.IsError)
	assert.Equal(t, "resolved", resolved.State)
	assert.Equal(t, "maintenance", resolved.ResolvedBy)

	res = h.call(t, "resolve_issue", map[string]any{"id": issue.ID, "resolved_by": "maintenance"}, nil)
	assert.True(t, res.IsError)

	res = h.call(t, "list_issues", map[string]any{"state": "archived"}, nil)
	assert.True(t, res.IsError)

	res = h.call(t, "report_issue", map[string]any{"title": "x", "severity": "urgent"}, nil)
	assert.True(t, res.IsError)
}
