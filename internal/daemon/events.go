package daemon

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/rails"
	"github.com/HendryAvila/foreman/internal/store"
)

// events routes event-channel messages to store mutations. Every message
// type maps to exactly one case; an unknown type is its own error path, not
// a fallthrough.
type events struct {
	store  *store.Store
	logger *slog.Logger
}

// errorPayload is the ERROR event body: a stable code, the failing
// operation, and whatever entity ids the failure can name.
type errorPayload struct {
	Message   string `json:"message"`
	Operation string `json:"operation"`
	Code      string `json:"code,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	EpicID    string `json:"epicId,omitempty"`
	WorkerID  string `json:"workerId,omitempty"`
}

func errorEvent(operation string, err error) Outbound {
	p := errorPayload{Message: err.Error(), Operation: operation}
	var pe *plan.Error
	if errors.As(err, &pe) {
		p.Code = string(pe.Code)
		p.TaskID = pe.TaskID
		p.EpicID = pe.EpicID
		p.WorkerID = pe.WorkerID
	}
	return Outbound{Type: "ERROR", Payload: p}
}

// decode unmarshals a payload, turning failures into invalid_input.
func decode[T any](raw json.RawMessage, out *T) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return plan.Errf(plan.CodeInvalidInput, "malformed payload: %v", err)
	}
	return nil
}

// handle dispatches one message. The reply always goes back to the caller;
// for state-changing operations the same event is also broadcast so every
// other UI stays current without polling.
func (e *events) handle(msg Inbound) (Outbound, *Outbound) {
	switch msg.Type {
	case "PING":
		return Outbound{Type: "PONG"}, nil
	case "GET_STATE":
		return Outbound{Type: "STATE_SNAPSHOT", Payload: e.store.Snapshot()}, nil
	case "GET_ACTIVITY_LOG":
		return e.activityLog(msg)
	case "CREATE_TASK":
		return e.createTask(msg)
	case "UPDATE_TASK":
		return e.updateTask(msg)
	case "DELETE_TASK":
		return e.deleteTask(msg)
	case "REORDER_TASK":
		return e.reorderTask(msg)
	case "ADD_TASK_COMMENT":
		return e.addComment(msg)
	case "APPROVE_TASK":
		return e.approveTask(msg)
	case "REJECT_TASK":
		return e.rejectTask(msg)
	case "REOPEN_TASK":
		return e.reopenTask(msg)
	case "ARCHIVE_DONE_TASKS":
		return e.archiveDone(msg)
	case "CREATE_EPIC":
		return e.createEpic(msg)
	case "UPDATE_EPIC":
		return e.updateEpic(msg)
	case "DELETE_EPIC":
		return e.deleteEpic(msg)
	case "APPROVE_PROPOSAL":
		return e.resolveProposal(msg, true)
	case "REJECT_PROPOSAL":
		return e.resolveProposal(msg, false)
	case "UPDATE_SETTINGS":
		return e.updateSettings(msg)
	case "CREATE_TEAM":
		return e.createTeam(msg)
	case "UPDATE_TEAM":
		return e.updateTeam(msg)
	case "DELETE_TEAM":
		return e.deleteTeam(msg)
	case "ADD_TEAM_MEMBER":
		return e.addTeamMember(msg)
	case "REMOVE_TEAM_MEMBER":
		return e.removeTeamMember(msg)
	default:
		return errorEvent(msg.Type, plan.Errf(plan.CodeInvalidInput,
			"unknown message type %q", msg.Type)), nil
	}
}

// confirm builds the success reply and its broadcast copy.
func confirm(eventType string, payload any) (Outbound, *Outbound) {
	out := Outbound{Type: eventType, Payload: payload}
	return out, &out
}

func (e *events) activityLog(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		Limit int `json:"limit"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	if p.Limit <= 0 {
		p.Limit = 100
	}
	evts, err := e.store.TailActivity(p.Limit)
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return Outbound{Type: "ACTIVITY_LOG", Payload: map[string]any{"events": evts}}, nil
}

func (e *events) createTask(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		EpicID           string      `json:"epicId"`
		ParentTaskID     string      `json:"parentTaskId"`
		Title            string      `json:"title"`
		Description      string      `json:"description"`
		DefinitionOfDone []string    `json:"definitionOfDone"`
		Rails            rails.Rails `json:"rails"`
		Priority         string      `json:"priority"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	task, err := e.store.CreateTask(store.CreateTaskInput{
		EpicID: p.EpicID, ParentTaskID: p.ParentTaskID, Title: p.Title,
		Description: p.Description, DefinitionOfDone: p.DefinitionOfDone,
		Rails: p.Rails, Priority: p.Priority,
	})
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TASK_CREATED", task)
}

func (e *events) updateTask(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		TaskID           string           `json:"taskId"`
		Title            *string          `json:"title"`
		Description      *string          `json:"description"`
		DefinitionOfDone *[]string        `json:"definitionOfDone"`
		Rails            *rails.Rails     `json:"rails"`
		Priority         *string          `json:"priority"`
		Status           *plan.TaskStatus `json:"status"`
		Branch           *string          `json:"branch"`
		PRLink           *string          `json:"prLink"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	task, err := e.store.UpdateTask(p.TaskID, store.UpdateTaskInput{
		Title: p.Title, Description: p.Description, DefinitionOfDone: p.DefinitionOfDone,
		Rails: p.Rails, Priority: p.Priority, Status: p.Status,
		Branch: p.Branch, PRLink: p.PRLink,
	})
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TASK_UPDATED", task)
}

func (e *events) deleteTask(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		TaskID string `json:"taskId"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	if err := e.store.DeleteTask(p.TaskID); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TASK_DELETED", map[string]string{"taskId": p.TaskID})
}

func (e *events) reorderTask(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		TaskID     string `json:"taskId"`
		PrevTaskID string `json:"prevTaskId"`
		NextTaskID string `json:"nextTaskId"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	task, err := e.store.ReorderTask(p.TaskID, p.PrevTaskID, p.NextTaskID)
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TASK_UPDATED", task)
}

func (e *events) addComment(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		TaskID  string `json:"taskId"`
		Author  string `json:"author"`
		Content string `json:"content"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	if p.Author == "" {
		p.Author = "human"
	}
	task, err := e.store.AddComment(p.TaskID, p.Author, p.Content)
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TASK_UPDATED", task)
}

func (e *events) approveTask(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		TaskID string `json:"taskId"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	task, err := e.store.ApproveTask(p.TaskID)
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TASK_UPDATED", task)
}

func (e *events) rejectTask(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		TaskID string `json:"taskId"`
		Reason string `json:"reason"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	task, err := e.store.RejectTask(p.TaskID, p.Reason)
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TASK_UPDATED", task)
}

func (e *events) reopenTask(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		TaskID string `json:"taskId"`
		Reason string `json:"reason"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	task, err := e.store.ReopenTask(p.TaskID, p.Reason)
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TASK_UPDATED", task)
}

func (e *events) archiveDone(msg Inbound) (Outbound, *Outbound) {
	n, err := e.store.ArchiveDoneTasks()
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("ARCHIVE_DONE_RESULT", map[string]int{"archived": n})
}

func (e *events) createEpic(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		Title        string      `json:"title"`
		Description  string      `json:"description"`
		Architecture string      `json:"architecture"`
		Rails        rails.Rails `json:"rails"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	epic, err := e.store.CreateEpic(store.CreateEpicInput{
		Title: p.Title, Description: p.Description,
		Architecture: p.Architecture, Rails: p.Rails,
	})
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("EPIC_CREATED", epic)
}

func (e *events) updateEpic(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		EpicID       string           `json:"epicId"`
		Title        *string          `json:"title"`
		Description  *string          `json:"description"`
		Architecture *string          `json:"architecture"`
		Status       *plan.EpicStatus `json:"status"`
		Rails        *rails.Rails     `json:"rails"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	epic, err := e.store.UpdateEpic(p.EpicID, store.UpdateEpicInput{
		Title: p.Title, Description: p.Description,
		Architecture: p.Architecture, Status: p.Status, Rails: p.Rails,
	})
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("EPIC_UPDATED", epic)
}

func (e *events) deleteEpic(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		EpicID  string `json:"epicId"`
		Cascade bool   `json:"cascade"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	if err := e.store.DeleteEpic(p.EpicID, p.Cascade); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("EPIC_DELETED", map[string]string{"epicId": p.EpicID})
}

func (e *events) resolveProposal(msg Inbound, approve bool) (Outbound, *Outbound) {
	var p struct {
		ProposalID string `json:"proposalId"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	proposal, err := e.store.ResolveProposal(p.ProposalID, approve)
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("PROPOSAL_UPDATED", proposal)
}

func (e *events) updateSettings(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		Name     string                 `json:"name"`
		Rails    *rails.Rails           `json:"rails"`
		Workflow *plan.WorkflowSettings `json:"workflow"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	project, err := e.store.UpdateSettings(p.Name, p.Rails, p.Workflow)
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("SETTINGS_UPDATED", project)
}

func (e *events) createTeam(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		Name    string        `json:"name"`
		Role    plan.TeamRole `json:"role"`
		MaxSize int           `json:"maxSize"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	team, err := e.store.CreateTeam(store.CreateTeamInput{
		Name: p.Name, Role: p.Role, MaxSize: p.MaxSize,
	})
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TEAM_CREATED", team)
}

func (e *events) updateTeam(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		TeamID  string         `json:"teamId"`
		Name    *string        `json:"name"`
		Role    *plan.TeamRole `json:"role"`
		MaxSize *int           `json:"maxSize"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	team, err := e.store.UpdateTeam(p.TeamID, store.UpdateTeamInput{
		Name: p.Name, Role: p.Role, MaxSize: p.MaxSize,
	})
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TEAM_UPDATED", team)
}

func (e *events) deleteTeam(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		TeamID string `json:"teamId"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	if err := e.store.DeleteTeam(p.TeamID); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TEAM_DELETED", map[string]string{"teamId": p.TeamID})
}

func (e *events) addTeamMember(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		TeamID   string `json:"teamId"`
		WorkerID string `json:"workerId"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	team, err := e.store.AddTeamMember(p.TeamID, p.WorkerID)
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TEAM_UPDATED", team)
}

func (e *events) removeTeamMember(msg Inbound) (Outbound, *Outbound) {
	var p struct {
		TeamID   string `json:"teamId"`
		WorkerID string `json:"workerId"`
	}
	if err := decode(msg.Payload, &p); err != nil {
		return errorEvent(msg.Type, err), nil
	}
	team, err := e.store.RemoveTeamMember(p.TeamID, p.WorkerID)
	if err != nil {
		return errorEvent(msg.Type, err), nil
	}
	return confirm("TEAM_UPDATED", team)
}
