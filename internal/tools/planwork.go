package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/store"
)

// SubmitPlanTool handles foreman_submit_plan: the gate of the
// plan-before-code handshake.
type SubmitPlanTool struct {
	deps Deps
}

// NewSubmitPlanTool creates a SubmitPlanTool with its dependencies.
func NewSubmitPlanTool(deps Deps) *SubmitPlanTool {
	return &SubmitPlanTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *SubmitPlanTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_submit_plan",
		mcp.WithDescription(
			"Submit an implementation plan for a task you claimed for planning. "+
				"The plan text is checked against the project's global rails: any "+
				"forbidden phrase or missing required phrase rejects the plan, citing "+
				"the exact phrase. On success the task moves to AWAITING_APPROVAL "+
				"(or straight to WORKING under instant-auto approval).",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task the plan is for."),
		),
		mcp.WithString("worker_id",
			mcp.Required(),
			mcp.Description("Worker submitting the plan; must hold the planning claim."),
		),
		mcp.WithString("plan",
			mcp.Required(),
			mcp.Description("Full plan text, validated against the global rails."),
		),
		mcp.WithArray("steps",
			mcp.Required(),
			mcp.Description(
				"Implementation steps in execution order. Each element is either a "+
					"string description or an object {description, files}.",
			),
		),
	)
}

// Handle processes the foreman_submit_plan tool call.
func (t *SubmitPlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workerID := req.GetString("worker_id", "")
	t.deps.track(ctx, workerID)

	steps, err := parseSteps(req.GetArguments()["steps"])
	if err != nil {
		return resultError(err), nil
	}
	task, err := t.deps.Store.SubmitPlan(
		req.GetString("task_id", ""), workerID, req.GetString("plan", ""), steps)
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(task)
}

// parseSteps accepts the steps argument in either shape: plain string
// descriptions or {description, files} objects.
func parseSteps(raw any) ([]store.StepInput, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, plan.Errf(plan.CodeInvalidInput, "steps must be an array")
	}
	steps := make([]store.StepInput, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			steps = append(steps, store.StepInput{Description: v})
		case map[string]any:
			desc, _ := v["description"].(string)
			if desc == "" {
				return nil, plan.Errf(plan.CodeInvalidInput, "step %d has no description", i)
			}
			step := store.StepInput{Description: desc}
			if files, ok := v["files"].([]any); ok {
				for _, f := range files {
					if s, ok := f.(string); ok {
						step.Files = append(step.Files, s)
					}
				}
			}
			steps = append(steps, step)
		default:
			return nil, plan.Errf(plan.CodeInvalidInput,
				"step %d must be a string or an object with a description", i)
		}
	}
	return steps, nil
}

// StartStepTool handles foreman_start_step.
type StartStepTool struct {
	deps Deps
}

// NewStartStepTool creates a StartStepTool with its dependencies.
func NewStartStepTool(deps Deps) *StartStepTool {
	return &StartStepTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *StartStepTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_start_step",
		mcp.WithDescription("Mark one implementation step IN_PROGRESS on a WORKING task."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task whose plan the step belongs to."),
		),
		mcp.WithNumber("step",
			mcp.Required(),
			mcp.Description("Zero-based step index."),
		),
	)
}

// Handle processes the foreman_start_step tool call.
func (t *StartStepTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := t.deps.Store.StartStep(req.GetString("task_id", ""), int(req.GetFloat("step", -1)))
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(task)
}

// CompleteStepTool handles foreman_complete_step.
type CompleteStepTool struct {
	deps Deps
}

// NewCompleteStepTool creates a CompleteStepTool with its dependencies.
func NewCompleteStepTool(deps Deps) *CompleteStepTool {
	return &CompleteStepTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *CompleteStepTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_complete_step",
		mcp.WithDescription("Mark one implementation step COMPLETED on a WORKING task."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task whose plan the step belongs to."),
		),
		mcp.WithNumber("step",
			mcp.Required(),
			mcp.Description("Zero-based step index."),
		),
	)
}

// Handle processes the foreman_complete_step tool call.
func (t *CompleteStepTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := t.deps.Store.CompleteStep(req.GetString("task_id", ""), int(req.GetFloat("step", -1)))
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(task)
}

// CompleteTaskTool handles foreman_complete_task.
type CompleteTaskTool struct {
	deps Deps
}

// NewCompleteTaskTool creates a CompleteTaskTool with its dependencies.
func NewCompleteTaskTool(deps Deps) *CompleteTaskTool {
	return &CompleteTaskTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *CompleteTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_complete_task",
		mcp.WithDescription(
			"Move a WORKING task to REVIEW once every plan step is completed. "+
				"Optionally records the pull-request link for the QA reviewer.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task to complete."),
		),
		mcp.WithString("pr_link",
			mcp.Description("Pull request URL. Optional."),
		),
	)
}

// Handle processes the foreman_complete_task tool call.
func (t *CompleteTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := t.deps.Store.CompleteTask(
		req.GetString("task_id", ""), req.GetString("pr_link", ""))
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(task)
}
