// Package mcp exposes the scoring, benchmark and issue services as Model
// Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/service"
)

// ServerName identifies the tool server to clients.
const ServerName = "riskwatch"

// Services are the backends the tools call into.
type Services struct {
	Assessments *service.AssessmentService
	Benchmarks  *service.BenchmarkService
	Issues      *service.IssueService
	Clock       clockwork.Clock
}

// Server represents the riskwatch MCP server
type Server struct {
	mcpServer *mcp.Server
	svc       Services
	logger    *logrus.Logger
}

// NewServer creates a new MCP server with every tool registered.
func NewServer(svc Services, version string, logger *logrus.Logger) *Server {
	if svc.Clock == nil {
		svc.Clock = clockwork.NewRealClock()
	}

	serverInfo := &mcp.Implementation{
		Name:    ServerName,
		Version: version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		svc:       svc,
		logger:    logger,
	}
	s.registerTools()

	return s
}

// Run serves the tools over transport until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.WithField("server", ServerName).Info("Starting MCP server")

	if err := s.mcpServer.Run(ctx, transport); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// RunStdio serves over stdin/stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_rules",
		Description: "List the scoring rules in the catalog with their categories and indicators.",
	}, s.listRules)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "score_assessment",
		Description: "Score a checklist against a rule without recording it.",
	}, s.scoreAssessment)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "record_assessment",
		Description: "Score a checklist for a subject and store it in the subject's history.",
	}, s.recordAssessment)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "classify_benchmark",
		Description: "Band a measurement as excellent, good, acceptable or poor, against a catalog standard or ad-hoc thresholds.",
	}, s.classifyBenchmark)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "evaluate_deadline",
		Description: "Compute the remaining or overdue time of a response window.",
	}, s.evaluateDeadline)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "report_issue",
		Description: "Open an issue with a response deadline, optionally from a recorded assessment.",
	}, s.reportIssue)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_issues",
		Description: "List issues, earliest deadline first, filtered by state, severity or subject.",
	}, s.listIssues)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "resolve_issue",
		Description: "Resolve an open or escalated issue.",
	}, s.resolveIssue)

	s.logger.WithField("tool_count", 8).Debug("Registered MCP tools")
}
