package plan

import (
	"sort"
	"strings"
)

// --- Task status machine ---

// TaskStatus is a task's position on the board.
type TaskStatus string

const (
	TaskBacklog          TaskStatus = "BACKLOG"
	TaskPlanning         TaskStatus = "PLANNING"
	TaskAwaitingApproval TaskStatus = "AWAITING_APPROVAL"
	TaskWorking          TaskStatus = "WORKING"
	TaskReview           TaskStatus = "REVIEW"
	TaskDone             TaskStatus = "DONE"
	TaskArchived         TaskStatus = "ARCHIVED"
)

// taskTransitions is the full transition table. Any (from, to) pair not
// listed here is rejected.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskBacklog:          {TaskPlanning, TaskWorking},
	TaskPlanning:         {TaskAwaitingApproval, TaskBacklog},
	TaskAwaitingApproval: {TaskWorking, TaskPlanning},
	TaskWorking:          {TaskReview, TaskPlanning, TaskBacklog},
	TaskReview:           {TaskDone, TaskWorking, TaskBacklog},
	TaskDone:             {TaskBacklog, TaskWorking, TaskArchived},
	TaskArchived:         {TaskBacklog, TaskWorking},
}

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s TaskStatus) bool {
	_, ok := taskTransitions[s]
	return ok
}

// TaskStatuses returns every task status, in board order.
func TaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskBacklog, TaskPlanning, TaskAwaitingApproval,
		TaskWorking, TaskReview, TaskDone, TaskArchived,
	}
}

// CheckTransition validates from → to against the transition table. The
// returned error names the allowed target set so a rejected caller knows
// what would have been legal.
func CheckTransition(from, to TaskStatus) error {
	if !ValidTaskStatus(from) {
		return Errf(CodeInvalidInput, "unknown task status %q", from)
	}
	if !ValidTaskStatus(to) {
		return Errf(CodeInvalidInput, "unknown task status %q", to)
	}
	for _, allowed := range taskTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return Errf(CodeInvalidState,
		"cannot move task from %s to %s (allowed: %s)",
		from, to, allowedTargets(from))
}

// allowedTargets renders the legal targets of a status, sorted for stable
// error messages.
func allowedTargets(from TaskStatus) string {
	targets := taskTransitions[from]
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = string(t)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// --- Status classes ---
//
// The claim constraint does not care about the exact status, only whether a
// task is being planned or being built. PLANNING and AWAITING_APPROVAL form
// the planning class; WORKING and REVIEW the working class.

// StatusClass partitions claimable task statuses for the claim constraint.
type StatusClass string

const (
	ClassPlanning StatusClass = "PLANNING"
	ClassWorking  StatusClass = "WORKING"
)

// ClassOf returns the status class of a task status, or "" for statuses
// outside both classes (BACKLOG, DONE, ARCHIVED are unclaimed states).
func ClassOf(s TaskStatus) StatusClass {
	switch s {
	case TaskPlanning, TaskAwaitingApproval:
		return ClassPlanning
	case TaskWorking, TaskReview:
		return ClassWorking
	}
	return ""
}

// --- Worker status machine ---
//
// Worker statuses are driven by tool calls rather than a single transition
// table: get-context → READING_CONTEXT, submit-plan → AWAITING_APPROVAL,
// approval → CODING, completion/unblock → IDLE, report-blocked → BLOCKED
// from any active state.

// WorkerStatus is an agent session's current activity.
type WorkerStatus string

const (
	WorkerIdle             WorkerStatus = "IDLE"
	WorkerReadingContext   WorkerStatus = "READING_CONTEXT"
	WorkerPlanning         WorkerStatus = "PLANNING"
	WorkerAwaitingApproval WorkerStatus = "AWAITING_APPROVAL"
	WorkerCoding           WorkerStatus = "CODING"
	WorkerBlocked          WorkerStatus = "BLOCKED"
)
