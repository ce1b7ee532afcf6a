package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/store"
)

// CreateTaskTool handles foreman_create_task.
type CreateTaskTool struct {
	deps Deps
}

// NewCreateTaskTool creates a CreateTaskTool with its dependencies.
func NewCreateTaskTool(deps Deps) *CreateTaskTool {
	return &CreateTaskTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *CreateTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_create_task",
		mcp.WithDescription("Create a BACKLOG task at the tail of an epic's ordering."),
		mcp.WithString("epic_id",
			mcp.Required(),
			mcp.Description("Epic the task belongs to."),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Task title."),
		),
		mcp.WithString("description",
			mcp.Description("Longer task description. Optional."),
		),
		mcp.WithString("parent_task_id",
			mcp.Description("Parent task for subtasks. Optional."),
		),
		mcp.WithString("priority",
			mcp.Description("Free-form priority label. Optional."),
		),
		mcp.WithArray("definition_of_done",
			mcp.Description("Acceptance criteria, one string each. Optional."),
		),
	)
}

// Handle processes the foreman_create_task tool call.
func (t *CreateTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := store.CreateTaskInput{
		EpicID:       req.GetString("epic_id", ""),
		ParentTaskID: req.GetString("parent_task_id", ""),
		Title:        req.GetString("title", ""),
		Description:  req.GetString("description", ""),
		Priority:     req.GetString("priority", ""),
	}
	if items, ok := req.GetArguments()["definition_of_done"].([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				in.DefinitionOfDone = append(in.DefinitionOfDone, s)
			}
		}
	}
	task, err := t.deps.Store.CreateTask(in)
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(task)
}

// UpdateTaskTool handles foreman_update_task.
type UpdateTaskTool struct {
	deps Deps
}

// NewUpdateTaskTool creates an UpdateTaskTool with its dependencies.
func NewUpdateTaskTool(deps Deps) *UpdateTaskTool {
	return &UpdateTaskTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *UpdateTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_update_task",
		mcp.WithDescription("Partially update a task. Only provided fields change."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task to update."),
		),
		mcp.WithString("title",
			mcp.Description("New title."),
		),
		mcp.WithString("description",
			mcp.Description("New description."),
		),
		mcp.WithString("priority",
			mcp.Description("New priority label."),
		),
		mcp.WithString("branch",
			mcp.Description("Git branch the work happens on."),
		),
		mcp.WithString("pr_link",
			mcp.Description("Pull request URL."),
		),
	)
}

// Handle processes the foreman_update_task tool call.
func (t *UpdateTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	var in store.UpdateTaskInput
	if v, ok := args["title"].(string); ok {
		in.Title = &v
	}
	if v, ok := args["description"].(string); ok {
		in.Description = &v
	}
	if v, ok := args["priority"].(string); ok {
		in.Priority = &v
	}
	if v, ok := args["branch"].(string); ok {
		in.Branch = &v
	}
	if v, ok := args["pr_link"].(string); ok {
		in.PRLink = &v
	}
	task, err := t.deps.Store.UpdateTask(req.GetString("task_id", ""), in)
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(task)
}

// SetTaskStatusTool handles foreman_set_task_status: a direct status
// move through the same transition table the handshake uses.
type SetTaskStatusTool struct {
	deps Deps
}

// NewSetTaskStatusTool creates a SetTaskStatusTool with its dependencies.
func NewSetTaskStatusTool(deps Deps) *SetTaskStatusTool {
	return &SetTaskStatusTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *SetTaskStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_set_task_status",
		mcp.WithDescription(
			"Move a task to a new status directly. Illegal transitions and "+
				"full WIP columns are rejected.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task to move."),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("Target status."),
			mcp.Enum("BACKLOG", "PLANNING", "AWAITING_APPROVAL", "WORKING", "REVIEW", "DONE", "ARCHIVED"),
		),
	)
}

// Handle processes the foreman_set_task_status tool call.
func (t *SetTaskStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := plan.TaskStatus(req.GetString("status", ""))
	task, err := t.deps.Store.UpdateTask(req.GetString("task_id", ""),
		store.UpdateTaskInput{Status: &status})
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(task)
}

// DeleteTaskTool handles foreman_delete_task.
type DeleteTaskTool struct {
	deps Deps
}

// NewDeleteTaskTool creates a DeleteTaskTool with its dependencies.
func NewDeleteTaskTool(deps Deps) *DeleteTaskTool {
	return &DeleteTaskTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *DeleteTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_delete_task",
		mcp.WithDescription("Delete a task. Any worker assignment is released first."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task to delete."),
		),
	)
}

// Handle processes the foreman_delete_task tool call.
func (t *DeleteTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("task_id", "")
	if err := t.deps.Store.DeleteTask(id); err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(map[string]any{"deleted": id})
}

// CreateEpicTool handles foreman_create_epic.
type CreateEpicTool struct {
	deps Deps
}

// NewCreateEpicTool creates a CreateEpicTool with its dependencies.
func NewCreateEpicTool(deps Deps) *CreateEpicTool {
	return &CreateEpicTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *CreateEpicTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_create_epic",
		mcp.WithDescription("Create an epic at the tail of the project's epic ordering."),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Epic title."),
		),
		mcp.WithString("description",
			mcp.Description("Longer epic description. Optional."),
		),
		mcp.WithString("architecture",
			mcp.Description("Architecture notes handed to workers as context. Optional."),
		),
	)
}

// Handle processes the foreman_create_epic tool call.
func (t *CreateEpicTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	epic, err := t.deps.Store.CreateEpic(store.CreateEpicInput{
		Title:        req.GetString("title", ""),
		Description:  req.GetString("description", ""),
		Architecture: req.GetString("architecture", ""),
	})
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(epic)
}

// UpdateEpicTool handles foreman_update_epic.
type UpdateEpicTool struct {
	deps Deps
}

// NewUpdateEpicTool creates an UpdateEpicTool with its dependencies.
func NewUpdateEpicTool(deps Deps) *UpdateEpicTool {
	return &UpdateEpicTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *UpdateEpicTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_update_epic",
		mcp.WithDescription("Partially update an epic. Only provided fields change."),
		mcp.WithString("epic_id",
			mcp.Required(),
			mcp.Description("Epic to update."),
		),
		mcp.WithString("title",
			mcp.Description("New title."),
		),
		mcp.WithString("description",
			mcp.Description("New description."),
		),
		mcp.WithString("architecture",
			mcp.Description("New architecture notes."),
		),
		mcp.WithString("status",
			mcp.Description("New status."),
			mcp.Enum("PLANNED", "ACTIVE", "COMPLETED"),
		),
	)
}

// Handle processes the foreman_update_epic tool call.
func (t *UpdateEpicTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	var in store.UpdateEpicInput
	if v, ok := args["title"].(string); ok {
		in.Title = &v
	}
	if v, ok := args["description"].(string); ok {
		in.Description = &v
	}
	if v, ok := args["architecture"].(string); ok {
		in.Architecture = &v
	}
	if v, ok := args["status"].(string); ok {
		status := plan.EpicStatus(v)
		in.Status = &status
	}
	epic, err := t.deps.Store.UpdateEpic(req.GetString("epic_id", ""), in)
	if err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(epic)
}

// DeleteEpicTool handles foreman_delete_epic.
type DeleteEpicTool struct {
	deps Deps
}

// NewDeleteEpicTool creates a DeleteEpicTool with its dependencies.
func NewDeleteEpicTool(deps Deps) *DeleteEpicTool {
	return &DeleteEpicTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *DeleteEpicTool) Definition() mcp.Tool {
	return mcp.NewTool("foreman_delete_epic",
		mcp.WithDescription(
			"Delete an epic. Refused while it still has tasks unless cascade is set.",
		),
		mcp.WithString("epic_id",
			mcp.Required(),
			mcp.Description("Epic to delete."),
		),
		mcp.WithBoolean("cascade",
			mcp.Description("Also delete the epic's tasks."),
		),
	)
}

// Handle processes the foreman_delete_epic tool call.
func (t *DeleteEpicTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("epic_id", "")
	if err := t.deps.Store.DeleteEpic(id, req.GetBool("cascade", false)); err != nil {
		return resultError(err), nil
	}
	t.deps.broadcast()
	return resultJSON(map[string]any{"deleted": id})
}
