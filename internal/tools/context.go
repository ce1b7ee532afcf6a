package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/foreman/internal/plan"
)

// ContextTool handles foreman_get_context: everything a worker needs to
// read before planning a task.
type ContextTool struct {
	deps Deps
}

// NewContextTool creates a ContextTool with its dependencies.
func NewContextTool(deps Deps) *ContextTool {
	return &ContextTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *ContextTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_get_context",
		mcp.WithDescription(
			"Read the full context for a task before planning: the task, its epic, "+
				"the enforced global rails, advisory epic/task rails, and the project's "+
				"workflow settings. Marks the worker READING_CONTEXT.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task to read context for."),
		),
		mcp.WithString("worker_id",
			mcp.Required(),
			mcp.Description("Worker reading the context."),
		),
	)
}

// Handle processes the foreman_get_context tool call.
func (t *ContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workerID := req.GetString("worker_id", "")
	t.deps.track(ctx, workerID)

	tc, err := t.deps.Store.GetContext(req.GetString("task_id", ""), workerID)
	if err != nil {
		return resultError(err), nil
	}
	return resultJSON(tc)
}

// ApprovalStatusTool handles foreman_approval_status: a cheap poll for
// workers awaiting plan approval.
type ApprovalStatusTool struct {
	deps Deps
}

// NewApprovalStatusTool creates an ApprovalStatusTool with its dependencies.
func NewApprovalStatusTool(deps Deps) *ApprovalStatusTool {
	return &ApprovalStatusTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *ApprovalStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_approval_status",
		mcp.WithDescription(
			"Check whether a submitted plan has been approved yet. Returns the task "+
				"status plus the rejection reason when the plan was sent back.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task whose approval state to check."),
		),
	)
}

// Handle processes the foreman_approval_status tool call.
func (t *ApprovalStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := t.deps.Store.GetTask(req.GetString("task_id", ""))
	if err != nil {
		return resultError(err), nil
	}
	return resultJSON(map[string]any{
		"taskId":          task.ID,
		"status":          task.Status,
		"rejectionReason": task.RejectionReason,
		"approved":        task.Status != plan.TaskPlanning && task.Status != plan.TaskAwaitingApproval,
	})
}

// ActivityTool handles foreman_get_activity.
type ActivityTool struct {
	deps Deps
}

// NewActivityTool creates an ActivityTool with its dependencies.
func NewActivityTool(deps Deps) *ActivityTool {
	return &ActivityTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *ActivityTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_get_activity",
		mcp.WithDescription(
			"Read the most recent activity-log events (task changes, claims, "+
				"approvals), oldest first.",
		),
		mcp.WithNumber("limit",
			mcp.Description("How many events to return. Defaults to 50."),
		),
	)
}

// Handle processes the foreman_get_activity tool call.
func (t *ActivityTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(req.GetFloat("limit", 50))
	if limit <= 0 {
		limit = 50
	}
	events, err := t.deps.Store.TailActivity(limit)
	if err != nil {
		return resultError(err), nil
	}
	return resultJSON(map[string]any{"events": events})
}
