package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/foreman/internal/store"
)

// ProposeRailTool handles foreman_propose_rail. Workers cannot edit
// rails directly; they file a proposal a human resolves on the event
// channel.
type ProposeRailTool struct {
	deps Deps
}

// NewProposeRailTool creates a ProposeRailTool with its dependencies.
func NewProposeRailTool(deps Deps) *ProposeRailTool {
	return &ProposeRailTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *ProposeRailTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_propose_rail",
		mcp.WithDescription(
			"Propose adding or removing a rail phrase at global, epic or task "+
				"scope. The proposal stays PENDING until a human approves or "+
				"rejects it; approval applies the change immediately.",
		),
		mcp.WithString("scope",
			mcp.Required(),
			mcp.Description("Where the rail applies."),
			mcp.Enum("global", "epic", "task"),
		),
		mcp.WithString("target_id",
			mcp.Description("Epic or task id for scoped proposals. Ignored for global."),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Whether to add or remove the phrase."),
			mcp.Enum("add", "remove"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Which rail list the phrase belongs to."),
			mcp.Enum("forbidden", "required", "convention"),
		),
		mcp.WithString("phrase",
			mcp.Required(),
			mcp.Description("The rail phrase."),
		),
		mcp.WithString("reason",
			mcp.Description("Why the change is needed. Shown to the reviewer."),
		),
		mcp.WithString("worker_id",
			mcp.Description("Proposing worker."),
		),
	)
}

// Handle processes the foreman_propose_rail tool call.
func (t *ProposeRailTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workerID := req.GetString("worker_id", "")
	t.deps.track(ctx, workerID)

	proposal, err := t.deps.Store.CreateProposal(store.ProposalInput{
		Scope:    req.GetString("scope", ""),
		TargetID: req.GetString("target_id", ""),
		Action:   req.GetString("action", ""),
		Kind:     req.GetString("kind", ""),
		Phrase:   req.GetString("phrase", ""),
		Reason:   req.GetString("reason", ""),
		WorkerID: workerID,
	})
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(proposal)
}
