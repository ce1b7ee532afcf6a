package store

import (
	"strings"

	"github.com/HendryAvila/foreman/internal/activity"
	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/rails"
)

// The plan-before-code handshake: a worker submits an implementation plan
// for a PLANNING task; the plan must pass the project's global rails before
// the task moves to AWAITING_APPROVAL; a human approves (→ WORKING) or
// rejects (→ PLANNING, with a reason). QA runs the same shape at the other
// end: REVIEW → DONE on approval, REVIEW → WORKING with a reopen count bump
// on rejection.

// StepInput is one proposed implementation step.
type StepInput struct {
	Description string
	Files       []string
}

// SubmitPlan validates the plan text against the global rails and, on
// success, stores the steps and moves the task PLANNING → AWAITING_APPROVAL.
// Under instant-auto approval the task continues straight to WORKING.
// A rails violation leaves the task in PLANNING and surfaces the exact
// violated phrase.
func (s *Store) SubmitPlan(taskID, workerID, planText string, steps []StepInput) (*plan.Task, error) {
	if strings.TrimSpace(planText) == "" {
		return nil, plan.Errf(plan.CodeInvalidInput, "plan text is required").WithTask(taskID)
	}
	if len(steps) == 0 {
		return nil, plan.Errf(plan.CodeInvalidInput, "a plan needs at least one step").WithTask(taskID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", taskID).WithTask(taskID)
	}
	worker, ok := s.workers[workerID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "worker %q not found", workerID).WithWorker(workerID)
	}
	if task.AssignedWorkerID != workerID {
		return nil, plan.Errf(plan.CodeNotAllowed,
			"task %s is not claimed by worker %s", taskID, workerID).
			WithTask(taskID).WithWorker(workerID)
	}
	if task.Status != plan.TaskPlanning {
		return nil, plan.Errf(plan.CodeInvalidState,
			"plans are submitted from PLANNING, task %s is %s", taskID, task.Status).
			WithTask(taskID)
	}

	if err := rails.CheckPlan(planText, s.project.Rails); err != nil {
		s.record(activity.Event{Event: "TASK_UPDATED", EpicID: task.EpicID, TaskID: taskID,
			WorkerID: workerID,
			Payload:  map[string]any{"action": "plan_rejected_by_rails", "violation": err.Error()}})
		return nil, plan.Errf(plan.CodeNotAllowed, "plan violates rails: %v", err).
			WithTask(taskID).WithWorker(workerID)
	}

	target := plan.TaskAwaitingApproval
	workerStatus := plan.WorkerAwaitingApproval
	if s.project.Workflow.ApprovalMode == plan.ApprovalInstantAuto {
		target = plan.TaskWorking
		workerStatus = plan.WorkerCoding
	}
	if err := s.checkWIPLocked(task, target); err != nil {
		return nil, err
	}

	now := plan.Now()
	updated := *task
	updated.Plan = make([]plan.Step, len(steps))
	for i, st := range steps {
		updated.Plan[i] = plan.Step{
			Description: st.Description,
			Files:       st.Files,
			Status:      plan.StepPending,
		}
	}
	updated.Status = target
	updated.RejectionReason = ""
	updated.UpdatedAt = now

	if err := s.persist(TasksDir, taskID, &updated); err != nil {
		return nil, err
	}
	s.tasks[taskID] = &updated
	if err := s.setWorkerStatusLocked(worker.ID, workerStatus); err != nil {
		return nil, err
	}
	s.record(activity.Event{Event: "TASK_UPDATED", EpicID: updated.EpicID, TaskID: taskID,
		WorkerID: workerID,
		Payload:  map[string]any{"action": "plan_submitted", "steps": len(steps), "status": string(updated.Status)}})

	c := updated
	return &c, nil
}

// ApproveTask moves AWAITING_APPROVAL → WORKING and puts the assigned
// worker into CODING.
func (s *Store) ApproveTask(taskID string) (*plan.Task, error) {
	return s.resolveApproval(taskID, true, "")
}

// RejectTask moves AWAITING_APPROVAL → PLANNING and records the reason for
// the worker to address.
func (s *Store) RejectTask(taskID, reason string) (*plan.Task, error) {
	return s.resolveApproval(taskID, false, reason)
}

func (s *Store) resolveApproval(taskID string, approved bool, reason string) (*plan.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", taskID).WithTask(taskID)
	}

	target := plan.TaskWorking
	action := "plan_approved"
	workerStatus := plan.WorkerCoding
	if !approved {
		target = plan.TaskPlanning
		action = "plan_rejected"
		workerStatus = plan.WorkerPlanning
	}
	if err := s.checkStatusChange(task, target); err != nil {
		return nil, err
	}

	updated := *task
	updated.Status = target
	if !approved {
		updated.RejectionReason = reason
	}
	updated.UpdatedAt = plan.Now()

	if err := s.persist(TasksDir, taskID, &updated); err != nil {
		return nil, err
	}
	s.tasks[taskID] = &updated
	if updated.AssignedWorkerID != "" {
		if _, ok := s.workers[updated.AssignedWorkerID]; ok {
			if err := s.setWorkerStatusLocked(updated.AssignedWorkerID, workerStatus); err != nil {
				return nil, err
			}
		}
	}
	s.record(activity.Event{Event: "TASK_UPDATED", EpicID: updated.EpicID, TaskID: taskID,
		Payload: map[string]any{"action": action, "reason": reason}})
	s.notify()

	c := updated
	return &c, nil
}

// StartStep marks one implementation step IN_PROGRESS.
func (s *Store) StartStep(taskID string, index int) (*plan.Task, error) {
	return s.updateStep(taskID, index, plan.StepInProgress)
}

// CompleteStep marks one implementation step COMPLETED.
func (s *Store) CompleteStep(taskID string, index int) (*plan.Task, error) {
	return s.updateStep(taskID, index, plan.StepCompleted)
}

func (s *Store) updateStep(taskID string, index int, target plan.StepStatus) (*plan.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", taskID).WithTask(taskID)
	}
	if task.Status != plan.TaskWorking {
		return nil, plan.Errf(plan.CodeInvalidState,
			"steps are worked in WORKING, task %s is %s", taskID, task.Status).WithTask(taskID)
	}
	if index < 0 || index >= len(task.Plan) {
		return nil, plan.Errf(plan.CodeInvalidInput,
			"step %d out of range (plan has %d steps)", index, len(task.Plan)).WithTask(taskID)
	}

	now := plan.Now()
	updated := *task
	updated.Plan = append([]plan.Step{}, task.Plan...)
	step := &updated.Plan[index]
	switch target {
	case plan.StepInProgress:
		if step.Status == plan.StepCompleted {
			return nil, plan.Errf(plan.CodeInvalidState,
				"step %d is already completed", index).WithTask(taskID)
		}
		step.Status = plan.StepInProgress
		if step.StartedAt == "" {
			step.StartedAt = now
		}
	case plan.StepCompleted:
		step.Status = plan.StepCompleted
		if step.StartedAt == "" {
			step.StartedAt = now
		}
		step.CompletedAt = now
	}
	updated.UpdatedAt = now

	if err := s.persist(TasksDir, taskID, &updated); err != nil {
		return nil, err
	}
	s.tasks[taskID] = &updated
	s.record(activity.Event{Event: "TASK_UPDATED", EpicID: updated.EpicID, TaskID: taskID,
		Payload: map[string]any{"action": "step_" + strings.ToLower(string(target)), "step": index}})

	c := updated
	return &c, nil
}

// CompleteTask moves WORKING → REVIEW once every plan step is completed,
// optionally recording a PR link, and idles the assigned worker.
func (s *Store) CompleteTask(taskID, prLink string) (*plan.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", taskID).WithTask(taskID)
	}
	for i, step := range task.Plan {
		if step.Status != plan.StepCompleted {
			return nil, plan.Errf(plan.CodeInvalidState,
				"step %d is still %s; complete every step before completing the task",
				i, step.Status).WithTask(taskID)
		}
	}
	if err := s.checkStatusChange(task, plan.TaskReview); err != nil {
		return nil, err
	}

	updated := *task
	updated.Status = plan.TaskReview
	if prLink != "" {
		updated.PRLink = prLink
	}
	updated.UpdatedAt = plan.Now()

	if err := s.persist(TasksDir, taskID, &updated); err != nil {
		return nil, err
	}
	s.tasks[taskID] = &updated
	if updated.AssignedWorkerID != "" {
		if _, ok := s.workers[updated.AssignedWorkerID]; ok {
			if err := s.setWorkerStatusLocked(updated.AssignedWorkerID, plan.WorkerIdle); err != nil {
				return nil, err
			}
		}
	}
	s.record(activity.Event{Event: "TASK_UPDATED", EpicID: updated.EpicID, TaskID: taskID,
		Payload: map[string]any{"action": "completed", "prLink": prLink}})
	s.notify()

	c := updated
	return &c, nil
}

// QAApprove moves REVIEW → DONE and releases the worker assignment.
func (s *Store) QAApprove(taskID string) (*plan.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", taskID).WithTask(taskID)
	}
	if err := s.checkStatusChange(task, plan.TaskDone); err != nil {
		return nil, err
	}

	updated := *task
	updated.Status = plan.TaskDone
	updated.AssignedWorkerID = ""
	updated.UpdatedAt = plan.Now()

	if err := s.persist(TasksDir, taskID, &updated); err != nil {
		return nil, err
	}
	s.tasks[taskID] = &updated
	if task.AssignedWorkerID != "" {
		if w, ok := s.workers[task.AssignedWorkerID]; ok && w.CurrentTaskID == taskID {
			cleared := *w
			cleared.CurrentTaskID = ""
			cleared.Status = plan.WorkerIdle
			cleared.UpdatedAt = plan.Now()
			if err := s.persist(WorkersDir, w.ID, &cleared); err != nil {
				return nil, err
			}
			s.workers[w.ID] = &cleared
		}
	}
	s.record(activity.Event{Event: "TASK_UPDATED", EpicID: updated.EpicID, TaskID: taskID,
		Payload: map[string]any{"action": "qa_approved"}})
	s.notify()

	c := updated
	return &c, nil
}

// QAReject moves REVIEW → WORKING, bumps the reopen count, and records the
// reason.
func (s *Store) QAReject(taskID, reason string) (*plan.Task, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, plan.Errf(plan.CodeInvalidInput, "a QA rejection needs a reason").WithTask(taskID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", taskID).WithTask(taskID)
	}
	if err := s.checkStatusChange(task, plan.TaskWorking); err != nil {
		return nil, err
	}

	updated := *task
	updated.Status = plan.TaskWorking
	updated.ReopenCount++
	updated.ReopenReason = reason
	updated.UpdatedAt = plan.Now()

	if err := s.persist(TasksDir, taskID, &updated); err != nil {
		return nil, err
	}
	s.tasks[taskID] = &updated
	if updated.AssignedWorkerID != "" {
		if _, ok := s.workers[updated.AssignedWorkerID]; ok {
			if err := s.setWorkerStatusLocked(updated.AssignedWorkerID, plan.WorkerCoding); err != nil {
				return nil, err
			}
		}
	}
	s.record(activity.Event{Event: "TASK_UPDATED", EpicID: updated.EpicID, TaskID: taskID,
		Payload: map[string]any{"action": "qa_rejected", "reason": reason, "reopenCount": updated.ReopenCount}})
	s.notify()

	c := updated
	return &c, nil
}

// ReopenTask moves a DONE task back to BACKLOG with a reason.
func (s *Store) ReopenTask(taskID, reason string) (*plan.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", taskID).WithTask(taskID)
	}
	if err := s.checkStatusChange(task, plan.TaskBacklog); err != nil {
		return nil, err
	}

	updated := *task
	updated.Status = plan.TaskBacklog
	updated.AssignedWorkerID = ""
	updated.ReopenCount++
	updated.ReopenReason = reason
	updated.UpdatedAt = plan.Now()

	if err := s.persist(TasksDir, taskID, &updated); err != nil {
		return nil, err
	}
	s.tasks[taskID] = &updated
	s.record(activity.Event{Event: "TASK_UPDATED", EpicID: updated.EpicID, TaskID: taskID,
		Payload: map[string]any{"action": "reopened", "reason": reason}})
	s.notify()

	c := updated
	return &c, nil
}
