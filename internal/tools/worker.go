package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/store"
)

// RegisterWorkerTool handles foreman_register_worker. Agents call it once
// per connection to obtain a worker id scoped to an epic.
type RegisterWorkerTool struct {
	deps Deps
}

// NewRegisterWorkerTool creates a RegisterWorkerTool with its dependencies.
func NewRegisterWorkerTool(deps Deps) *RegisterWorkerTool {
	return &RegisterWorkerTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *RegisterWorkerTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_register_worker",
		mcp.WithDescription(
			"Register this agent session as a worker scoped to one epic. "+
				"Returns the worker id every other tool call needs. "+
				"The worker is deleted automatically when this connection closes.",
		),
		mcp.WithString("epic_id",
			mcp.Required(),
			mcp.Description("Epic this worker will take tasks from."),
		),
		mcp.WithString("worker_type",
			mcp.Description("Provider tag, e.g. 'claude-code' or 'cursor'."),
		),
		mcp.WithString("team_id",
			mcp.Description("Team to join on registration. Optional."),
		),
		mcp.WithString("branch",
			mcp.Description("Git branch this worker operates on. Optional."),
		),
	)
}

// Handle processes the foreman_register_worker tool call.
func (t *RegisterWorkerTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	worker, err := t.deps.Store.RegisterWorker(store.RegisterWorkerInput{
		Type:   req.GetString("worker_type", ""),
		EpicID: req.GetString("epic_id", ""),
		TeamID: req.GetString("team_id", ""),
		Branch: req.GetString("branch", ""),
	})
	if err != nil {
		return resultError(err), nil
	}
	t.deps.track(ctx, worker.ID)
	t.deps.broadcast()
	return resultJSON(worker)
}

// NextTaskTool handles foreman_next_task: claim the next eligible task for
// a status class, optionally long-polling until one frees up.
type NextTaskTool struct {
	deps Deps
}

// NewNextTaskTool creates a NextTaskTool with its dependencies.
func NewNextTaskTool(deps Deps) *NextTaskTool {
	return &NextTaskTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *NextTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_next_task",
		mcp.WithDescription(
			"Claim the next eligible BACKLOG task in this worker's epic. "+
				"class 'PLANNING' claims it for planning; 'WORKING' claims it straight to coding. "+
				"Only one worker per epic may hold tasks of a class at a time unless they share a team. "+
				"With wait=true the call blocks until a task might free up instead of failing with not_found.",
		),
		mcp.WithString("worker_id",
			mcp.Required(),
			mcp.Description("Worker claiming the task."),
		),
		mcp.WithString("class",
			mcp.Description("Status class to claim for. Defaults to PLANNING."),
			mcp.Enum("PLANNING", "WORKING"),
		),
		mcp.WithBoolean("override",
			mcp.Description("Displace a conflicting worker's claim instead of failing."),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Block until a task may be claimable rather than returning not_found."),
		),
	)
}

// Handle processes the foreman_next_task tool call.
func (t *NextTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workerID := req.GetString("worker_id", "")
	class := plan.StatusClass(req.GetString("class", string(plan.ClassPlanning)))
	override := req.GetBool("override", false)
	wait := req.GetBool("wait", false)

	t.deps.track(ctx, workerID)

	for {
		task, err := t.deps.Store.ClaimNextTask(workerID, class, override)
		if err == nil {
			t.deps.broadcast()
			return resultJSON(task)
		}
		if !wait || plan.CodeOf(err) != plan.CodeNotFound || t.deps.Wait == nil {
			return resultError(err), nil
		}

		cancelled, werr := t.deps.Wait(ctx, workerID)
		if werr != nil {
			return nil, fmt.Errorf("waiting for claimable task: %w", werr)
		}
		if cancelled {
			return resultError(plan.Errf(plan.CodeNotFound,
				"wait cancelled: connection closing").WithWorker(workerID)), nil
		}
	}
}

// ReportBlockedTool handles foreman_report_blocked.
type ReportBlockedTool struct {
	deps Deps
}

// NewReportBlockedTool creates a ReportBlockedTool with its dependencies.
func NewReportBlockedTool(deps Deps) *ReportBlockedTool {
	return &ReportBlockedTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *ReportBlockedTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_report_blocked",
		mcp.WithDescription(
			"Report this worker as blocked with a reason. The claimed task stays "+
				"assigned so a human can decide whether to unblock or reassign.",
		),
		mcp.WithString("worker_id",
			mcp.Required(),
			mcp.Description("Blocked worker."),
		),
		mcp.WithString("reason",
			mcp.Required(),
			mcp.Description("What is blocking progress."),
		),
	)
}

// Handle processes the foreman_report_blocked tool call.
func (t *ReportBlockedTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workerID := req.GetString("worker_id", "")
	t.deps.track(ctx, workerID)

	worker, err := t.deps.Store.ReportBlocked(workerID, req.GetString("reason", ""))
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(worker)
}

// ReportFilesTool handles foreman_report_files: workers declare the files
// they are touching so dashboards can show overlap between agents.
type ReportFilesTool struct {
	deps Deps
}

// NewReportFilesTool creates a ReportFilesTool with its dependencies.
func NewReportFilesTool(deps Deps) *ReportFilesTool {
	return &ReportFilesTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *ReportFilesTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_report_files",
		mcp.WithDescription(
			"Report the files this worker has modified so far. Replaces the "+
				"worker's previous file list.",
		),
		mcp.WithString("worker_id",
			mcp.Required(),
			mcp.Description("Worker reporting its files."),
		),
		mcp.WithArray("files",
			mcp.Required(),
			mcp.Description("Repository-relative paths of the modified files."),
		),
	)
}

// Handle processes the foreman_report_files tool call.
func (t *ReportFilesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workerID := req.GetString("worker_id", "")
	t.deps.track(ctx, workerID)

	raw, ok := req.GetArguments()["files"].([]any)
	if !ok {
		return resultError(plan.Errf(plan.CodeInvalidInput, "files must be an array")), nil
	}
	files := make([]string, 0, len(raw))
	for i, f := range raw {
		s, ok := f.(string)
		if !ok {
			return resultError(plan.Errf(plan.CodeInvalidInput, "file %d must be a string", i)), nil
		}
		files = append(files, s)
	}

	if err := t.deps.Store.ReportFiles(workerID, files); err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(map[string]any{"workerId": workerID, "files": len(files)})
}

// UnblockWorkerTool handles foreman_unblock_worker.
type UnblockWorkerTool struct {
	deps Deps
}

// NewUnblockWorkerTool creates an UnblockWorkerTool with its dependencies.
func NewUnblockWorkerTool(deps Deps) *UnblockWorkerTool {
	return &UnblockWorkerTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *UnblockWorkerTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_unblock_worker",
		mcp.WithDescription("Clear a BLOCKED worker back to IDLE."),
		mcp.WithString("worker_id",
			mcp.Required(),
			mcp.Description("Worker to unblock."),
		),
	)
}

// Handle processes the foreman_unblock_worker tool call.
func (t *UnblockWorkerTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	worker, err := t.deps.Store.UnblockWorker(req.GetString("worker_id", ""))
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(worker)
}
