package store

import (
	"strings"

	"github.com/HendryAvila/foreman/internal/activity"
	"github.com/HendryAvila/foreman/internal/ident"
	"github.com/HendryAvila/foreman/internal/ordering"
	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/rails"
)

// CreateTaskInput carries the caller-supplied fields of a new task.
type CreateTaskInput struct {
	EpicID           string
	ParentTaskID     string
	Title            string
	Description      string
	DefinitionOfDone []string
	Rails            rails.Rails
	Priority         string
}

// CreateTask appends a new BACKLOG task at the tail of its epic's order.
func (s *Store) CreateTask(in CreateTaskInput) (*plan.Task, error) {
	title := ident.SanitizeTitle(in.Title)
	if title == "" {
		return nil, plan.Errf(plan.CodeInvalidInput, "task title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.epics[in.EpicID]; !ok {
		return nil, plan.Errf(plan.CodeNotFound, "epic %q not found", in.EpicID).WithEpic(in.EpicID)
	}
	if in.ParentTaskID != "" {
		parent, ok := s.tasks[in.ParentTaskID]
		if !ok {
			return nil, plan.Errf(plan.CodeNotFound, "parent task %q not found", in.ParentTaskID)
		}
		if parent.EpicID != in.EpicID {
			return nil, plan.Errf(plan.CodeInvalidInput,
				"parent task %s belongs to a different epic", in.ParentTaskID)
		}
	}

	now := plan.Now()
	task := &plan.Task{
		ID:               ident.New(ident.KindTask),
		EpicID:           in.EpicID,
		ParentTaskID:     in.ParentTaskID,
		Title:            title,
		Description:      in.Description,
		DefinitionOfDone: in.DefinitionOfDone,
		Rails:            in.Rails,
		Status:           plan.TaskBacklog,
		Priority:         in.Priority,
		Order:            ordering.Between(s.lastTaskOrder(in.EpicID), nil),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.persist(TasksDir, task.ID, task); err != nil {
		return nil, err
	}
	s.tasks[task.ID] = task
	s.record(activity.Event{Event: "TASK_CREATED", EpicID: task.EpicID, TaskID: task.ID,
		Payload: map[string]any{"title": task.Title}})
	s.notify()

	c := *task
	return &c, nil
}

// UpdateTaskInput holds optional task updates; nil fields are left alone.
type UpdateTaskInput struct {
	Title            *string
	Description      *string
	DefinitionOfDone *[]string
	Rails            *rails.Rails
	Priority         *string
	Status           *plan.TaskStatus
	Branch           *string
	PRLink           *string
}

// UpdateTask applies a partial update. Status changes go through the
// transition table and the target column's WIP limit.
func (s *Store) UpdateTask(id string, in UpdateTaskInput) (*plan.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", id).WithTask(id)
	}

	updated := *task
	if in.Title != nil {
		title := ident.SanitizeTitle(*in.Title)
		if title == "" {
			return nil, plan.Errf(plan.CodeInvalidInput, "task title cannot be empty").WithTask(id)
		}
		updated.Title = title
	}
	if in.Description != nil {
		updated.Description = *in.Description
	}
	if in.DefinitionOfDone != nil {
		updated.DefinitionOfDone = *in.DefinitionOfDone
	}
	if in.Rails != nil {
		updated.Rails = *in.Rails
	}
	if in.Priority != nil {
		updated.Priority = *in.Priority
	}
	if in.Branch != nil {
		updated.Branch = *in.Branch
	}
	if in.PRLink != nil {
		updated.PRLink = *in.PRLink
	}
	if in.Status != nil && *in.Status != task.Status {
		if err := s.checkStatusChange(task, *in.Status); err != nil {
			return nil, err
		}
		updated.Status = *in.Status
	}
	updated.UpdatedAt = plan.Now()

	if err := s.persist(TasksDir, id, &updated); err != nil {
		return nil, err
	}
	s.tasks[id] = &updated
	s.record(activity.Event{Event: "TASK_UPDATED", EpicID: updated.EpicID, TaskID: id})
	s.notify()

	c := updated
	return &c, nil
}

// checkStatusChange validates a transition plus the target column's WIP
// limit. Caller holds mu.
func (s *Store) checkStatusChange(task *plan.Task, to plan.TaskStatus) error {
	if err := plan.CheckTransition(task.Status, to); err != nil {
		if pe, ok := err.(*plan.Error); ok {
			pe.WithTask(task.ID).WithEpic(task.EpicID)
		}
		return err
	}
	return s.checkWIPLocked(task, to)
}

// checkWIPLocked enforces the target column's WIP limit on its own, for
// paths whose transition is already fixed. Caller holds mu.
func (s *Store) checkWIPLocked(task *plan.Task, to plan.TaskStatus) error {
	limit, ok := s.project.Workflow.WIPLimits[string(to)]
	if !ok || limit <= 0 {
		return nil
	}
	count := 0
	for _, t := range s.tasks {
		if t.ID != task.ID && t.Status == to {
			count++
		}
	}
	if count >= limit {
		return plan.Errf(plan.CodeInvalidState,
			"WIP limit reached for %s (%d/%d)", to, count, limit).
			WithTask(task.ID).WithEpic(task.EpicID)
	}
	return nil
}

// DeleteTask removes one task. If a worker was assigned, the worker
// survives with its claim cleared; worker lifetime belongs to the owning
// connection, not to the task.
func (s *Store) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return plan.Errf(plan.CodeNotFound, "task %q not found", id).WithTask(id)
	}
	if err := s.deleteTaskLocked(id); err != nil {
		return err
	}
	s.notify()
	return nil
}

// deleteTaskLocked removes a task and clears any worker claim on it.
// Caller holds mu.
func (s *Store) deleteTaskLocked(id string) error {
	task := s.tasks[id]
	if task.AssignedWorkerID != "" {
		if w, ok := s.workers[task.AssignedWorkerID]; ok && w.CurrentTaskID == id {
			cleared := *w
			cleared.CurrentTaskID = ""
			cleared.Status = plan.WorkerIdle
			cleared.UpdatedAt = plan.Now()
			if err := s.persist(WorkersDir, w.ID, &cleared); err != nil {
				return err
			}
			s.workers[w.ID] = &cleared
		}
	}
	if err := s.remove(TasksDir, id); err != nil {
		return err
	}
	delete(s.tasks, id)
	s.record(activity.Event{Event: "TASK_DELETED", EpicID: task.EpicID, TaskID: id})
	return nil
}

// ReorderTask places the task between two siblings in its epic. Empty
// prevID/nextID mean head/tail respectively. When the surrounding gap has
// degenerated past the minimum, the whole epic is rebalanced first and the
// insert retried against clean integer orders.
func (s *Store) ReorderTask(id, prevID, nextID string) (*plan.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", id).WithTask(id)
	}

	prev, next, err := s.neighborOrders(task, prevID, nextID)
	if err != nil {
		return nil, err
	}

	order := ordering.Between(prev, next)
	if prev != nil && next != nil && order-*prev <= ordering.MinGap {
		// Degenerate gap: rebalance the epic, then look the neighbors up
		// again with their fresh orders.
		if err := s.rebalanceEpicLocked(task.EpicID); err != nil {
			return nil, err
		}
		prev, next, err = s.neighborOrders(task, prevID, nextID)
		if err != nil {
			return nil, err
		}
		order = ordering.Between(prev, next)
	}

	updated := *s.tasks[id]
	updated.Order = order
	updated.UpdatedAt = plan.Now()
	if err := s.persist(TasksDir, id, &updated); err != nil {
		return nil, err
	}
	s.tasks[id] = &updated
	s.record(activity.Event{Event: "TASK_UPDATED", EpicID: updated.EpicID, TaskID: id,
		Payload: map[string]any{"order": order}})

	c := updated
	return &c, nil
}

// neighborOrders resolves prev/next task ids into order values, validating
// that both belong to the same epic as the task being moved. Caller holds mu.
func (s *Store) neighborOrders(task *plan.Task, prevID, nextID string) (*float64, *float64, error) {
	lookup := func(id string) (*float64, error) {
		if id == "" {
			return nil, nil
		}
		sibling, ok := s.tasks[id]
		if !ok {
			return nil, plan.Errf(plan.CodeNotFound, "neighbor task %q not found", id)
		}
		if sibling.EpicID != task.EpicID {
			return nil, plan.Errf(plan.CodeInvalidInput,
				"neighbor task %s is in a different epic", id)
		}
		o := sibling.Order
		return &o, nil
	}
	prev, err := lookup(prevID)
	if err != nil {
		return nil, nil, err
	}
	next, err := lookup(nextID)
	if err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}

// rebalanceEpicLocked reassigns clean integer orders to every task in the
// epic, persisting each change. Caller holds mu.
func (s *Store) rebalanceEpicLocked(epicID string) error {
	tasks := s.epicTasks(epicID)
	orders := make([]float64, len(tasks))
	for i, t := range tasks {
		orders[i] = t.Order
	}
	fresh := ordering.Rebalance(orders)
	now := plan.Now()
	for i, t := range tasks {
		if t.Order == fresh[i] {
			continue
		}
		updated := *t
		updated.Order = fresh[i]
		updated.UpdatedAt = now
		if err := s.persist(TasksDir, t.ID, &updated); err != nil {
			return err
		}
		s.tasks[t.ID] = &updated
	}
	return nil
}

// lastTaskOrder returns a pointer to the highest task order within an epic,
// or nil when the epic has no tasks. Caller holds mu.
func (s *Store) lastTaskOrder(epicID string) *float64 {
	var last *float64
	for _, t := range s.tasks {
		if t.EpicID != epicID {
			continue
		}
		if last == nil || t.Order > *last {
			o := t.Order
			last = &o
		}
	}
	return last
}

// AddComment appends a comment to a task. Oversized comments are rejected
// outright; once the per-task cap is reached the oldest comment is evicted.
func (s *Store) AddComment(taskID, author, content string) (*plan.Task, error) {
	if strings.TrimSpace(content) == "" {
		return nil, plan.Errf(plan.CodeInvalidInput, "comment content is required").WithTask(taskID)
	}
	if len(content) > plan.MaxCommentLen {
		return nil, plan.Errf(plan.CodeInvalidInput,
			"comment exceeds %d characters (%d)", plan.MaxCommentLen, len(content)).WithTask(taskID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", taskID).WithTask(taskID)
	}

	updated := *task
	updated.Comments = append(append([]plan.Comment{}, task.Comments...), plan.Comment{
		Author:    author,
		Content:   content,
		CreatedAt: plan.Now(),
	})
	if len(updated.Comments) > plan.MaxComments {
		updated.Comments = updated.Comments[len(updated.Comments)-plan.MaxComments:]
	}
	updated.UpdatedAt = plan.Now()

	if err := s.persist(TasksDir, taskID, &updated); err != nil {
		return nil, err
	}
	s.tasks[taskID] = &updated
	s.record(activity.Event{Event: "TASK_UPDATED", EpicID: updated.EpicID, TaskID: taskID,
		Payload: map[string]any{"comment": true}})

	c := updated
	return &c, nil
}

// ArchiveDoneTasks moves every DONE task to ARCHIVED and returns how many
// were archived.
func (s *Store) ArchiveDoneTasks() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	archived := 0
	now := plan.Now()
	for _, t := range s.tasks {
		if t.Status != plan.TaskDone {
			continue
		}
		updated := *t
		updated.Status = plan.TaskArchived
		updated.UpdatedAt = now
		if err := s.persist(TasksDir, t.ID, &updated); err != nil {
			return archived, err
		}
		s.tasks[t.ID] = &updated
		archived++
	}
	if archived > 0 {
		s.record(activity.Event{Event: "ARCHIVE_DONE_RESULT",
			Payload: map[string]any{"archived": archived}})
	}
	return archived, nil
}
