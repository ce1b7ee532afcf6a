package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// QAApproveTool handles foreman_qa_approve.
type QAApproveTool struct {
	deps Deps
}

// NewQAApproveTool creates a QAApproveTool with its dependencies.
func NewQAApproveTool(deps Deps) *QAApproveTool {
	return &QAApproveTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *QAApproveTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_qa_approve",
		mcp.WithDescription(
			"Pass a REVIEW task. The task moves to DONE, its assignment is "+
				"cleared and the implementing worker goes back to IDLE.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task under review."),
		),
	)
}

// Handle processes the foreman_qa_approve tool call.
func (t *QAApproveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := t.deps.Store.QAApprove(req.GetString("task_id", ""))
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(task)
}

// QARejectTool handles foreman_qa_reject.
type QARejectTool struct {
	deps Deps
}

// NewQARejectTool creates a QARejectTool with its dependencies.
func NewQARejectTool(deps Deps) *QARejectTool {
	return &QARejectTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *QARejectTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_qa_reject",
		mcp.WithDescription(
			"Fail a REVIEW task. The task returns to WORKING with the rejection "+
				"reason recorded, its reopen count increments and the implementing "+
				"worker resumes CODING.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task under review."),
		),
		mcp.WithString("reason",
			mcp.Required(),
			mcp.Description("Why the work was rejected. Required."),
		),
	)
}

// Handle processes the foreman_qa_reject tool call.
func (t *QARejectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := t.deps.Store.QAReject(req.GetString("task_id", ""), req.GetString("reason", ""))
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(task)
}
