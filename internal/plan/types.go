// Package plan defines the persisted entity model and the state machines
// that govern it: projects, epics, tasks and their implementation steps,
// workers, teams, and rail-change proposals.
//
// Entities are JSON documents, one file per instance (see internal/store).
// All of them carry an id, createdAt, and updatedAt; timestamps are RFC3339
// UTC strings so documents stay diffable and lexicographically sortable.
//
// The package is split the same way on disk as in the mental model:
//   - types.go: the documents themselves
//   - status.go: the task/worker status enums and the transition table
//   - claims.go: the worker claim constraint
//   - errors.go: the typed error taxonomy shared by every mutation
package plan

import "github.com/HendryAvila/foreman/internal/rails"

// SchemaVersion is the current on-disk project schema. Loaders migrate older
// documents forward one version at a time.
const SchemaVersion = 2

// ApprovalMode controls how submitted plans are approved.
type ApprovalMode string

const (
	ApprovalManual      ApprovalMode = "manual"       // human approves each plan
	ApprovalDelayedAuto ApprovalMode = "delayed_auto" // auto-approve after a delay window
	ApprovalInstantAuto ApprovalMode = "instant_auto" // auto-approve on submission
)

// validApprovalModes is the set of allowed approval modes.
var validApprovalModes = map[ApprovalMode]bool{
	ApprovalManual:      true,
	ApprovalDelayedAuto: true,
	ApprovalInstantAuto: true,
}

// ValidApprovalMode reports whether m is a recognized approval mode.
func ValidApprovalMode(m ApprovalMode) bool { return validApprovalModes[m] }

// WorkflowSettings holds per-project workflow configuration.
type WorkflowSettings struct {
	ApprovalMode      ApprovalMode   `json:"approvalMode"`
	AutoApprovalDelay int            `json:"autoApprovalDelaySeconds,omitempty"`
	BranchPattern     string         `json:"branchPattern,omitempty"` // e.g. "task/{id}-{slug}"
	CommitPattern     string         `json:"commitPattern,omitempty"`
	WIPLimits         map[string]int `json:"wipLimits,omitempty"` // target status → max tasks
}

// Project is the singleton settings document for a project root.
type Project struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Rails         rails.Rails      `json:"rails"`
	Workflow      WorkflowSettings `json:"workflow"`
	SchemaVersion int              `json:"schemaVersion"`
	CreatedAt     string           `json:"createdAt"`
	UpdatedAt     string           `json:"updatedAt"`
}

// EpicStatus tracks the coarse lifecycle of an epic.
type EpicStatus string

const (
	EpicPlanned   EpicStatus = "PLANNED"
	EpicActive    EpicStatus = "ACTIVE"
	EpicCompleted EpicStatus = "COMPLETED"
)

// Epic groups tasks into a feature-sized unit of work.
type Epic struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	Architecture string      `json:"architecture,omitempty"`
	Rails        rails.Rails `json:"rails"` // advisory only
	Status       EpicStatus  `json:"status"`
	Order        float64     `json:"order"`
	CreatedAt    string      `json:"createdAt"`
	UpdatedAt    string      `json:"updatedAt"`
}

// StepStatus tracks one implementation-plan step.
type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
)

// Step is one entry of a task's implementation plan.
type Step struct {
	Description string     `json:"description"`
	Files       []string   `json:"files,omitempty"`
	Status      StepStatus `json:"status"`
	StartedAt   string     `json:"startedAt,omitempty"`
	CompletedAt string     `json:"completedAt,omitempty"`
}

// MaxComments bounds the per-task comment list; the oldest comment is
// evicted first once the cap is reached.
const MaxComments = 50

// MaxCommentLen is the longest accepted comment body. Oversized comments
// are rejected outright, never truncated.
const MaxCommentLen = 10000

// Comment is a short note attached to a task.
type Comment struct {
	Author    string `json:"author"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// Task is the unit of work: a definition of done, an implementation plan
// submitted by a worker, and a status driven by the §status.go machine.
type Task struct {
	ID               string      `json:"id"`
	EpicID           string      `json:"epicId"`
	ParentTaskID     string      `json:"parentTaskId,omitempty"`
	Title            string      `json:"title"`
	Description      string      `json:"description,omitempty"`
	DefinitionOfDone []string    `json:"definitionOfDone,omitempty"`
	Rails            rails.Rails `json:"rails"` // advisory only
	Plan             []Step      `json:"implementationPlan,omitempty"`
	Status           TaskStatus  `json:"status"`
	AssignedWorkerID string      `json:"assignedWorkerId,omitempty"`
	Branch           string      `json:"branch,omitempty"`
	PRLink           string      `json:"prLink,omitempty"`
	ReopenCount      int         `json:"reopenCount"`
	ReopenReason     string      `json:"reopenReason,omitempty"`
	RejectionReason  string      `json:"rejectionReason,omitempty"`
	Priority         string      `json:"priority,omitempty"`
	Order            float64     `json:"order"`
	Comments         []Comment   `json:"comments,omitempty"`
	CreatedAt        string      `json:"createdAt"`
	UpdatedAt        string      `json:"updatedAt"`
}

// Worker represents one live agent session. Workers are ephemeral: created
// on first contact, deleted when the owning network connection closes.
type Worker struct {
	ID            string       `json:"id"`
	Type          string       `json:"type,omitempty"` // provider tag, e.g. "claude-code"
	ProjectID     string       `json:"projectId"`
	EpicID        string       `json:"epicId"`
	CurrentTaskID string       `json:"currentTaskId,omitempty"`
	TeamID        string       `json:"teamId,omitempty"`
	Status        WorkerStatus `json:"status"`
	Branch        string       `json:"branch,omitempty"`
	ModifiedFiles []string     `json:"modifiedFiles,omitempty"`
	LastError     string       `json:"lastError,omitempty"`
	ErrorCount    int          `json:"errorCount"`
	CreatedAt     string       `json:"createdAt"`
	UpdatedAt     string       `json:"updatedAt"`
}

// TeamRole describes what a team's workers collectively do.
type TeamRole string

const (
	RoleArchitect TeamRole = "architect"
	RoleWorker    TeamRole = "worker"
	RoleQA        TeamRole = "qa"
)

// Team groups workers that share a role and collectively bypass the
// single-active-worker-per-epic-per-status-class constraint.
type Team struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Role      TeamRole `json:"role"`
	MaxSize   int      `json:"maxSize"`
	Members   []string `json:"members,omitempty"` // worker IDs
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

// ProposalStatus tracks a rail-change proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalApproved ProposalStatus = "APPROVED"
	ProposalRejected ProposalStatus = "REJECTED"
)

// RailProposal is an agent-submitted request to change a rail at global,
// epic, or task scope. Only a human resolves it.
type RailProposal struct {
	ID        string         `json:"id"`
	Scope     string         `json:"scope"`            // "global", "epic", "task"
	TargetID  string         `json:"targetId,omitempty"` // epic/task id for scoped proposals
	Action    string         `json:"action"`           // "add", "modify", "remove"
	Kind      string         `json:"kind"`             // "forbidden", "required", "convention"
	Phrase    string         `json:"phrase"`
	Reason    string         `json:"reason,omitempty"`
	WorkerID  string         `json:"workerId,omitempty"`
	Status    ProposalStatus `json:"status"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt"`
}
