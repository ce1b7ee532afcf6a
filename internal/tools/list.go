package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/search"
)

// ListTasksTool handles foreman_list_tasks. Free-text queries go through
// the full-text index when one is available and fall back to a linear
// scan of the snapshot when it is not.
type ListTasksTool struct {
	deps Deps
}

// NewListTasksTool creates a ListTasksTool with its dependencies.
func NewListTasksTool(deps Deps) *ListTasksTool {
	return &ListTasksTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *ListTasksTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_list_tasks",
		mcp.WithDescription(
			"List tasks, optionally filtered by epic and status, optionally "+
				"matched against a free-text query over titles, descriptions and "+
				"plan text.",
		),
		mcp.WithString("query",
			mcp.Description("Free-text search query. Optional."),
		),
		mcp.WithString("epic_id",
			mcp.Description("Restrict to one epic. Optional."),
		),
		mcp.WithString("status",
			mcp.Description("Restrict to one status. Optional."),
			mcp.Enum("BACKLOG", "PLANNING", "AWAITING_APPROVAL", "WORKING", "REVIEW", "DONE"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results. Defaults to 50."),
		),
	)
}

// Handle processes the foreman_list_tasks tool call.
func (t *ListTasksTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	epicID := req.GetString("epic_id", "")
	status := req.GetString("status", "")
	limit := int(req.GetFloat("limit", 50))
	if limit <= 0 {
		limit = 50
	}

	if query != "" && t.deps.Search != nil {
		hits, err := t.deps.Search(query, search.Options{
			EpicID: epicID,
			Status: status,
			Limit:  limit,
		})
		if err != nil {
			return resultError(err), nil
		}
		return resultJSON(map[string]any{"tasks": hits, "count": len(hits)})
	}

	tasks := t.scan(query, epicID, status, limit)
	return resultJSON(map[string]any{"tasks": tasks, "count": len(tasks)})
}

// scan filters the snapshot linearly, matching the query against title,
// description and plan text case-insensitively.
func (t *ListTasksTool) scan(query, epicID, status string, limit int) []*plan.Task {
	query = strings.ToLower(query)
	out := make([]*plan.Task, 0, limit)
	for _, task := range t.deps.Store.Snapshot().Tasks {
		if epicID != "" && task.EpicID != epicID {
			continue
		}
		if status != "" && string(task.Status) != status {
			continue
		}
		if query != "" && !taskMatches(task, query) {
			continue
		}
		out = append(out, task)
		if len(out) == limit {
			break
		}
	}
	return out
}

func taskMatches(task *plan.Task, query string) bool {
	if strings.Contains(strings.ToLower(task.Title), query) ||
		strings.Contains(strings.ToLower(task.Description), query) {
		return true
	}
	for _, step := range task.Plan {
		if strings.Contains(strings.ToLower(step.Description), query) {
			return true
		}
	}
	return false
}
