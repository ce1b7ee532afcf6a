package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/store"
)

// CreateTeamTool handles foreman_create_team.
type CreateTeamTool struct {
	deps Deps
}

// NewCreateTeamTool creates a CreateTeamTool with its dependencies.
func NewCreateTeamTool(deps Deps) *CreateTeamTool {
	return &CreateTeamTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *CreateTeamTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_create_team",
		mcp.WithDescription("Create a team with a role and an optional size cap."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Team name."),
		),
		mcp.WithString("role",
			mcp.Required(),
			mcp.Description("What the team's workers do."),
			mcp.Enum("architect", "worker", "qa"),
		),
		mcp.WithNumber("max_size",
			mcp.Description("Member cap. Zero means unbounded."),
		),
	)
}

// Handle processes the foreman_create_team tool call.
func (t *CreateTeamTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	team, err := t.deps.Store.CreateTeam(store.CreateTeamInput{
		Name:    req.GetString("name", ""),
		Role:    plan.TeamRole(req.GetString("role", "")),
		MaxSize: int(req.GetFloat("max_size", 0)),
	})
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(team)
}

// JoinTeamTool handles foreman_join_team.
type JoinTeamTool struct {
	deps Deps
}

// NewJoinTeamTool creates a JoinTeamTool with its dependencies.
func NewJoinTeamTool(deps Deps) *JoinTeamTool {
	return &JoinTeamTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *JoinTeamTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_join_team",
		mcp.WithDescription(
			"Add a worker to a team. Rejected when the team is at its size cap "+
				"or the worker already belongs to another team.",
		),
		mcp.WithString("team_id",
			mcp.Required(),
			mcp.Description("Team to join."),
		),
		mcp.WithString("worker_id",
			mcp.Required(),
			mcp.Description("Joining worker."),
		),
	)
}

// Handle processes the foreman_join_team tool call.
func (t *JoinTeamTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workerID := req.GetString("worker_id", "")
	t.deps.track(ctx, workerID)

	team, err := t.deps.Store.AddTeamMember(req.GetString("team_id", ""), workerID)
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(team)
}

// LeaveTeamTool handles foreman_leave_team.
type LeaveTeamTool struct {
	deps Deps
}

// NewLeaveTeamTool creates a LeaveTeamTool with its dependencies.
func NewLeaveTeamTool(deps Deps) *LeaveTeamTool {
	return &LeaveTeamTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *LeaveTeamTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_leave_team",
		mcp.WithDescription("Remove a worker from a team."),
		mcp.WithString("team_id",
			mcp.Required(),
			mcp.Description("Team to leave."),
		),
		mcp.WithString("worker_id",
			mcp.Required(),
			mcp.Description("Leaving worker."),
		),
	)
}

// Handle processes the foreman_leave_team tool call.
func (t *LeaveTeamTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	team, err := t.deps.Store.RemoveTeamMember(
		req.GetString("team_id", ""), req.GetString("worker_id", ""))
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(team)
}

// ListTeamsTool handles foreman_list_teams.
type ListTeamsTool struct {
	deps Deps
}

// NewListTeamsTool creates a ListTeamsTool with its dependencies.
func NewListTeamsTool(deps Deps) *ListTeamsTool {
	return &ListTeamsTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *ListTeamsTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_list_teams",
		mcp.WithDescription("List all teams, their roles, size caps and members."),
	)
}

// Handle processes the foreman_list_teams tool call.
func (t *ListTeamsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	teams := t.deps.Store.Snapshot().Teams
	return resultJSON(map[string]any{"teams": teams, "count": len(teams)})
}
