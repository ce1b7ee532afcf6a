package store

import (
	"strings"

	"github.com/HendryAvila/foreman/internal/activity"
	"github.com/HendryAvila/foreman/internal/ident"
	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/rails"
)

// RegisterWorkerInput describes a new agent session.
type RegisterWorkerInput struct {
	Type   string
	EpicID string
	TeamID string
	Branch string
}

// RegisterWorker creates a worker scoped to one epic. Workers are ephemeral;
// the daemon deletes them when their connection closes.
func (s *Store) RegisterWorker(in RegisterWorkerInput) (*plan.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.epics[in.EpicID]; !ok {
		return nil, plan.Errf(plan.CodeNotFound, "epic %q not found", in.EpicID).WithEpic(in.EpicID)
	}
	if in.TeamID != "" {
		team, ok := s.teams[in.TeamID]
		if !ok {
			return nil, plan.Errf(plan.CodeNotFound, "team %q not found", in.TeamID)
		}
		if team.MaxSize > 0 && len(team.Members) >= team.MaxSize {
			return nil, plan.Errf(plan.CodeNotAllowed,
				"team %s is full (%d/%d)", team.ID, len(team.Members), team.MaxSize)
		}
	}

	now := plan.Now()
	worker := &plan.Worker{
		ID:        ident.New(ident.KindWorker),
		Type:      in.Type,
		ProjectID: s.project.ID,
		EpicID:    in.EpicID,
		TeamID:    in.TeamID,
		Status:    plan.WorkerIdle,
		Branch:    in.Branch,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.persist(WorkersDir, worker.ID, worker); err != nil {
		return nil, err
	}
	s.workers[worker.ID] = worker
	if in.TeamID != "" {
		if err := s.addTeamMemberLocked(in.TeamID, worker.ID); err != nil {
			return nil, err
		}
	}
	s.record(activity.Event{Event: "WORKER_REGISTERED", EpicID: in.EpicID, WorkerID: worker.ID,
		Payload: map[string]any{"type": in.Type}})

	c := *worker
	return &c, nil
}

// DeleteWorker removes a worker and releases anything it holds: assigned
// tasks lose the assignment (the task itself and its plan survive), and the
// worker leaves its team.
func (s *Store) DeleteWorker(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	worker, ok := s.workers[id]
	if !ok {
		return plan.Errf(plan.CodeNotFound, "worker %q not found", id).WithWorker(id)
	}

	for _, task := range s.tasks {
		if task.AssignedWorkerID != id {
			continue
		}
		updated := *task
		updated.AssignedWorkerID = ""
		updated.UpdatedAt = plan.Now()
		if err := s.persist(TasksDir, task.ID, &updated); err != nil {
			return err
		}
		s.tasks[task.ID] = &updated
	}
	if worker.TeamID != "" {
		s.removeTeamMemberLocked(worker.TeamID, id)
	}

	if err := s.remove(WorkersDir, id); err != nil {
		return err
	}
	delete(s.workers, id)
	s.record(activity.Event{Event: "WORKER_DELETED", EpicID: worker.EpicID, WorkerID: id})
	s.notify()
	return nil
}

// setWorkerStatusLocked updates one worker's status and persists it. Caller
// holds mu and has verified the worker exists.
func (s *Store) setWorkerStatusLocked(id string, status plan.WorkerStatus) error {
	worker := s.workers[id]
	updated := *worker
	updated.Status = status
	updated.UpdatedAt = plan.Now()
	if err := s.persist(WorkersDir, id, &updated); err != nil {
		return err
	}
	s.workers[id] = &updated
	return nil
}

// ReportBlocked marks a worker BLOCKED with the reason and bumps its error
// count. The task it holds stays assigned so a human can decide whether to
// unblock or reassign.
func (s *Store) ReportBlocked(workerID, reason string) (*plan.Worker, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, plan.Errf(plan.CodeInvalidInput, "a blocked report needs a reason").WithWorker(workerID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	worker, ok := s.workers[workerID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "worker %q not found", workerID).WithWorker(workerID)
	}

	updated := *worker
	updated.Status = plan.WorkerBlocked
	updated.LastError = reason
	updated.ErrorCount++
	updated.UpdatedAt = plan.Now()
	if err := s.persist(WorkersDir, workerID, &updated); err != nil {
		return nil, err
	}
	s.workers[workerID] = &updated
	s.record(activity.Event{Event: "WORKER_BLOCKED", EpicID: updated.EpicID, WorkerID: workerID,
		TaskID:  updated.CurrentTaskID,
		Payload: map[string]any{"reason": reason, "errorCount": updated.ErrorCount}})
	s.notify()

	c := updated
	return &c, nil
}

// UnblockWorker clears a BLOCKED worker back to IDLE.
func (s *Store) UnblockWorker(workerID string) (*plan.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	worker, ok := s.workers[workerID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "worker %q not found", workerID).WithWorker(workerID)
	}
	if worker.Status != plan.WorkerBlocked {
		return nil, plan.Errf(plan.CodeInvalidState,
			"worker %s is %s, not BLOCKED", workerID, worker.Status).WithWorker(workerID)
	}

	updated := *worker
	updated.Status = plan.WorkerIdle
	updated.LastError = ""
	updated.UpdatedAt = plan.Now()
	if err := s.persist(WorkersDir, workerID, &updated); err != nil {
		return nil, err
	}
	s.workers[workerID] = &updated
	s.record(activity.Event{Event: "WORKER_UNBLOCKED", EpicID: updated.EpicID, WorkerID: workerID})
	s.notify()

	c := updated
	return &c, nil
}

// ReportFiles records the files a worker has touched so far.
func (s *Store) ReportFiles(workerID string, files []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	worker, ok := s.workers[workerID]
	if !ok {
		return plan.Errf(plan.CodeNotFound, "worker %q not found", workerID).WithWorker(workerID)
	}
	updated := *worker
	updated.ModifiedFiles = append([]string{}, files...)
	updated.UpdatedAt = plan.Now()
	if err := s.persist(WorkersDir, workerID, &updated); err != nil {
		return err
	}
	s.workers[workerID] = &updated
	return nil
}

// --- Claims ---

// ClaimNextTask finds the first BACKLOG task in the worker's epic (board
// order) and claims it for the requested status class: PLANNING-class claims
// move the task to PLANNING, WORKING-class claims straight to WORKING. The
// whole check-and-commit runs under the store mutex, so two racing claims
// can never both win the same class.
//
// With override set, a conflicting incumbent is displaced: its assignment is
// cleared and the incumbent worker idles.
func (s *Store) ClaimNextTask(workerID string, class plan.StatusClass, override bool) (*plan.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	worker, ok := s.workers[workerID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "worker %q not found", workerID).WithWorker(workerID)
	}
	if class != plan.ClassPlanning && class != plan.ClassWorking {
		return nil, plan.Errf(plan.CodeInvalidInput, "unknown status class %q", class)
	}

	tasks := s.epicTasks(worker.EpicID)
	incumbent, err := plan.CheckClaim(plan.ClaimRequest{
		Worker:   worker,
		EpicID:   worker.EpicID,
		Class:    class,
		Override: override,
	}, tasks, s.workers, s.teams)
	if err != nil {
		return nil, err
	}
	if incumbent != nil {
		if err := s.displaceLocked(incumbent); err != nil {
			return nil, err
		}
		tasks = s.epicTasks(worker.EpicID)
	}

	var next *plan.Task
	for _, t := range tasks {
		if t.Status == plan.TaskBacklog && t.AssignedWorkerID == "" {
			next = t
			break
		}
	}
	if next == nil {
		return nil, plan.Errf(plan.CodeNotFound,
			"no claimable task in epic %s", worker.EpicID).WithEpic(worker.EpicID)
	}

	target := plan.TaskPlanning
	workerStatus := plan.WorkerPlanning
	if class == plan.ClassWorking {
		target = plan.TaskWorking
		workerStatus = plan.WorkerCoding
	}
	if err := s.checkStatusChange(next, target); err != nil {
		return nil, err
	}

	now := plan.Now()
	updated := *next
	updated.Status = target
	updated.AssignedWorkerID = workerID
	updated.UpdatedAt = now
	if err := s.persist(TasksDir, updated.ID, &updated); err != nil {
		return nil, err
	}
	s.tasks[updated.ID] = &updated

	w := *worker
	w.CurrentTaskID = updated.ID
	w.Status = workerStatus
	w.UpdatedAt = now
	if err := s.persist(WorkersDir, workerID, &w); err != nil {
		return nil, err
	}
	s.workers[workerID] = &w

	s.record(activity.Event{Event: "TASK_CLAIMED", EpicID: updated.EpicID, TaskID: updated.ID,
		WorkerID: workerID,
		Payload:  map[string]any{"class": string(class), "override": override}})
	s.notify()

	c := updated
	return &c, nil
}

// displaceLocked evicts an incumbent claim: the task keeps its status and
// plan but loses the assignment, and the displaced worker idles.
func (s *Store) displaceLocked(inc *plan.Incumbent) error {
	task := s.tasks[inc.Task.ID]
	if task != nil && task.AssignedWorkerID == inc.Worker.ID {
		updated := *task
		updated.AssignedWorkerID = ""
		updated.UpdatedAt = plan.Now()
		if err := s.persist(TasksDir, task.ID, &updated); err != nil {
			return err
		}
		s.tasks[task.ID] = &updated
	}
	if w := s.workers[inc.Worker.ID]; w != nil {
		updated := *w
		updated.CurrentTaskID = ""
		updated.Status = plan.WorkerIdle
		updated.UpdatedAt = plan.Now()
		if err := s.persist(WorkersDir, w.ID, &updated); err != nil {
			return err
		}
		s.workers[w.ID] = &updated
	}
	s.record(activity.Event{Event: "TASK_UPDATED", EpicID: inc.Task.EpicID, TaskID: inc.Task.ID,
		WorkerID: inc.Worker.ID,
		Payload:  map[string]any{"action": "claim_displaced"}})
	return nil
}

// --- Context ---

// TaskContext is everything a worker needs before planning: the task, its
// epic, the merged rails guidance, and the project conventions.
type TaskContext struct {
	Task            *plan.Task            `json:"task"`
	Epic            *plan.Epic            `json:"epic"`
	Rails           rails.Rails           `json:"rails"`
	Advisory        string                `json:"advisory,omitempty"`
	Workflow        plan.WorkflowSettings `json:"workflow"`
	ProjectName     string                `json:"projectName"`
	SuggestedBranch string                `json:"suggestedBranch,omitempty"`
}

// GetContext assembles the context for a task and marks the requesting
// worker READING_CONTEXT.
func (s *Store) GetContext(taskID, workerID string) (*TaskContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", taskID).WithTask(taskID)
	}
	epic, ok := s.epics[task.EpicID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "epic %q not found", task.EpicID).WithEpic(task.EpicID)
	}
	if _, ok := s.workers[workerID]; ok {
		if err := s.setWorkerStatusLocked(workerID, plan.WorkerReadingContext); err != nil {
			return nil, err
		}
	}

	taskCopy := *task
	epicCopy := *epic
	advisory := rails.Advisory("epic", epic.Rails) + rails.Advisory("task", task.Rails)
	return &TaskContext{
		Task:            &taskCopy,
		Epic:            &epicCopy,
		Rails:           s.project.Rails,
		Advisory:        advisory,
		Workflow:        s.project.Workflow,
		ProjectName:     s.project.Name,
		SuggestedBranch: branchName(s.project.Workflow.BranchPattern, task),
	}, nil
}

// branchName renders the project's branch pattern for a task, substituting
// {id} and {slug}.
func branchName(pattern string, task *plan.Task) string {
	if pattern == "" {
		return ""
	}
	r := strings.NewReplacer("{id}", task.ID, "{slug}", ident.Slugify(task.Title))
	return r.Replace(pattern)
}
