package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/katescodes/bidaudit/internal/engine"
	"github.com/katescodes/bidaudit/internal/ingest"
	"github.com/katescodes/bidaudit/internal/models"
	"github.com/katescodes/bidaudit/internal/store"
)

// Server wraps the bidaudit data layer and review engine and exposes them as
// MCP tools.
type Server struct {
	store store.Store
	orch  *engine.Orchestrator
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(s store.Store, orch *engine.Orchestrator) *Server {
	return &Server{
		store: s,
		orch:  orch,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("bidaudit", "1.0.0", server.WithToolCapabilities(true))

	// Register all tools
	srv.AddTool(s.runReviewTool())
	srv.AddTool(s.listRunsTool())
	srv.AddTool(s.listItemsTool())
	srv.AddTool(s.importBundleTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type runOut struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	BidderName   string `json:"bidder_name"`
	Status       string `json:"status"`
	ItemCount    int    `json:"item_count"`
	FailCount    int    `json:"fail_count"`
	PendingCount int    `json:"pending_count"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

func runToOut(r *models.ReviewRun) runOut {
	out := runOut{
		ID:           r.ID,
		ProjectID:    r.ProjectID,
		BidderName:   r.BidderName,
		Status:       string(r.Status),
		ItemCount:    r.ItemCount,
		FailCount:    r.FailCount,
		PendingCount: r.PendingCount,
		StartedAt:    r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		out.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return out
}

// bidaudit_run_review
func (s *Server) runReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bidaudit_run_review",
		mcp.WithDescription("Run the review pipeline for a project and bidder. Evaluates every tender requirement against the bidder's extracted responses and returns the committed run summary as JSON. Any stale running run for the same project and bidder is superseded first."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project ID")),
		mcp.WithString("bidder", mcp.Required(), mcp.Description("Bidder name")),
	)
	return tool, s.handleRunReview
}

func (s *Server) handleRunReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	bidderName, err := request.RequireString("bidder")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: bidder"), nil
	}

	run, err := s.orch.Run(ctx, projectID, bidderName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review run failed: %v", err)), nil
	}

	data, err := json.Marshal(runToOut(run))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal run: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// bidaudit_list_runs
func (s *Server) listRunsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bidaudit_list_runs",
		mcp.WithDescription("List review runs, optionally filtered by project and/or bidder. Returns a JSON array of runs with status and item/fail/pending counts, newest first."),
		mcp.WithString("project", mcp.Description("Project ID to filter by")),
		mcp.WithString("bidder", mcp.Description("Bidder name to filter by")),
	)
	return tool, s.handleListRuns
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := request.GetString("project", "")
	bidderName := request.GetString("bidder", "")

	runs, err := s.store.ListReviewRuns(ctx, projectID, bidderName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	out := make([]runOut, len(runs))
	for i, r := range runs {
		out[i] = runToOut(r)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// bidaudit_list_items
func (s *Server) listItemsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bidaudit_list_items",
		mcp.WithDescription("List the review items of a run, optionally filtered by status and/or evaluator. Each item carries the verdict (PASS/WARN/FAIL/PENDING), the evaluator that produced it, the candidate trace, the computed trace, the attached evidence, and a human-readable remark."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Review run ID")),
		mcp.WithString("status", mcp.Description("Status filter: PASS, WARN, FAIL, PENDING")),
		mcp.WithString("evaluator", mcp.Description("Evaluator filter: hard_gate, quant_check, semantic_judge, semantic_pending, consistency_check, error")),
	)
	return tool, s.handleListItems
}

func (s *Server) handleListItems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: run_id"), nil
	}

	filter := store.ReviewItemFilter{ReviewRunID: runID}
	if status := request.GetString("status", ""); status != "" {
		filter.Status = models.ReviewStatus(status)
	}
	filter.Evaluator = request.GetString("evaluator", "")

	items, err := s.store.ListReviewItems(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list items: %v", err)), nil
	}

	type itemOut struct {
		ID                string               `json:"id"`
		RequirementID     string               `json:"requirement_id"`
		MatchedResponseID string               `json:"matched_response_id,omitempty"`
		Status            string               `json:"status"`
		Evaluator         string               `json:"evaluator"`
		RuleTrace         models.RuleTrace     `json:"rule_trace"`
		ComputedTrace     models.ComputedTrace `json:"computed_trace,omitempty"`
		Evidence          []models.Evidence    `json:"evidence,omitempty"`
		Remark            string               `json:"remark,omitempty"`
		State             string               `json:"state"`
	}

	out := make([]itemOut, len(items))
	for i, item := range items {
		out[i] = itemOut{
			ID:            item.ID,
			RequirementID: item.RequirementID,
			Status:        string(item.Status),
			Evaluator:     item.Evaluator,
			RuleTrace:     item.RuleTrace,
			ComputedTrace: item.ComputedTrace,
			Evidence:      item.Evidence,
			Remark:        item.Remark,
			State:         string(item.State),
		}
		if item.MatchedResponseID != nil {
			out[i].MatchedResponseID = *item.MatchedResponseID
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal items: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// bidaudit_import_bundle
func (s *Server) importBundleTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bidaudit_import_bundle",
		mcp.WithDescription("Import an extraction bundle (requirements, bid responses, and document segments) from a YAML or JSON file into the store. Returns the imported counts as JSON."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the bundle file")),
	)
	return tool, s.handleImportBundle
}

func (s *Server) handleImportBundle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}

	bundle, err := ingest.LoadFile(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load bundle: %v", err)), nil
	}
	if err := ingest.Import(ctx, s.store, bundle); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to import bundle: %v", err)), nil
	}

	result := map[string]any{
		"project_id":   bundle.ProjectID,
		"requirements": len(bundle.Requirements),
		"responses":    len(bundle.Responses),
		"segments":     len(bundle.Segments),
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
