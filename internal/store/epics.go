package store

import (
	"path/filepath"
	"strings"

	"github.com/HendryAvila/foreman/internal/activity"
	"github.com/HendryAvila/foreman/internal/ident"
	"github.com/HendryAvila/foreman/internal/ordering"
	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/rails"
)

// CreateEpicInput carries the caller-supplied fields of a new epic.
type CreateEpicInput struct {
	Title        string
	Description  string
	Architecture string
	Rails        rails.Rails
}

// CreateEpic appends a new epic at the tail of the project's epic order.
func (s *Store) CreateEpic(in CreateEpicInput) (*plan.Epic, error) {
	title := ident.SanitizeTitle(in.Title)
	if title == "" {
		return nil, plan.Errf(plan.CodeInvalidInput, "epic title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := plan.Now()
	epic := &plan.Epic{
		ID:           ident.New(ident.KindEpic),
		Title:        title,
		Description:  in.Description,
		Architecture: in.Architecture,
		Rails:        in.Rails,
		Status:       plan.EpicPlanned,
		Order:        ordering.Between(s.lastEpicOrder(), nil),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.persist(EpicsDir, epic.ID, epic); err != nil {
		return nil, err
	}
	s.epics[epic.ID] = epic
	s.record(activity.Event{Event: "EPIC_CREATED", EpicID: epic.ID,
		Payload: map[string]any{"title": epic.Title}})

	c := *epic
	return &c, nil
}

// UpdateEpicInput holds optional epic updates; nil fields are left alone.
type UpdateEpicInput struct {
	Title        *string
	Description  *string
	Architecture *string
	Status       *plan.EpicStatus
	Rails        *rails.Rails
}

// UpdateEpic applies a partial update.
func (s *Store) UpdateEpic(id string, in UpdateEpicInput) (*plan.Epic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	epic, ok := s.epics[id]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "epic %q not found", id).WithEpic(id)
	}

	updated := *epic
	if in.Title != nil {
		title := ident.SanitizeTitle(*in.Title)
		if title == "" {
			return nil, plan.Errf(plan.CodeInvalidInput, "epic title cannot be empty").WithEpic(id)
		}
		updated.Title = title
	}
	if in.Description != nil {
		updated.Description = *in.Description
	}
	if in.Architecture != nil {
		updated.Architecture = *in.Architecture
	}
	if in.Status != nil {
		switch *in.Status {
		case plan.EpicPlanned, plan.EpicActive, plan.EpicCompleted:
			updated.Status = *in.Status
		default:
			return nil, plan.Errf(plan.CodeInvalidInput, "unknown epic status %q", *in.Status).WithEpic(id)
		}
	}
	if in.Rails != nil {
		updated.Rails = *in.Rails
	}
	updated.UpdatedAt = plan.Now()

	if err := s.persist(EpicsDir, id, &updated); err != nil {
		return nil, err
	}
	s.epics[id] = &updated
	s.record(activity.Event{Event: "EPIC_UPDATED", EpicID: id})

	c := updated
	return &c, nil
}

// DeleteEpic removes an epic. An epic that still has tasks is only deleted
// with the explicit cascade flag, which removes its tasks too; workers
// assigned to cascaded tasks get their claim cleared.
func (s *Store) DeleteEpic(id string, cascade bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.epics[id]; !ok {
		return plan.Errf(plan.CodeNotFound, "epic %q not found", id).WithEpic(id)
	}

	tasks := s.epicTasks(id)
	if len(tasks) > 0 && !cascade {
		return plan.Errf(plan.CodeNotAllowed,
			"epic %s has %d tasks; pass cascade to delete them too", id, len(tasks)).WithEpic(id)
	}

	for _, t := range tasks {
		if err := s.deleteTaskLocked(t.ID); err != nil {
			return err
		}
	}
	if err := s.remove(EpicsDir, id); err != nil {
		return err
	}
	delete(s.epics, id)
	s.record(activity.Event{Event: "EPIC_DELETED", EpicID: id,
		Payload: map[string]any{"cascadedTasks": len(tasks)}})
	s.notify()
	return nil
}

// lastEpicOrder returns a pointer to the highest epic order, or nil when no
// epics exist. Caller holds mu.
func (s *Store) lastEpicOrder() *float64 {
	var last *float64
	for _, e := range s.epics {
		if last == nil || e.Order > *last {
			o := e.Order
			last = &o
		}
	}
	return last
}

// UpdateSettings replaces the project name, rails, and workflow settings.
// The write also persists any pending schema migration.
func (s *Store) UpdateSettings(name string, railsCfg *rails.Rails, workflow *plan.WorkflowSettings) (*plan.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := *s.project
	if strings.TrimSpace(name) != "" {
		updated.Name = ident.SanitizeTitle(name)
	}
	if railsCfg != nil {
		updated.Rails = *railsCfg
	}
	if workflow != nil {
		if !plan.ValidApprovalMode(workflow.ApprovalMode) {
			return nil, plan.Errf(plan.CodeInvalidInput,
				"unknown approval mode %q", workflow.ApprovalMode)
		}
		for status, limit := range workflow.WIPLimits {
			if !plan.ValidTaskStatus(plan.TaskStatus(status)) {
				return nil, plan.Errf(plan.CodeInvalidInput,
					"WIP limit references unknown status %q", status)
			}
			if limit < 0 {
				return nil, plan.Errf(plan.CodeInvalidInput,
					"WIP limit for %s cannot be negative", status)
			}
		}
		updated.Workflow = *workflow
	}
	updated.SchemaVersion = plan.SchemaVersion
	updated.UpdatedAt = plan.Now()

	if err := writeJSON(filepath.Join(s.root, ProjectFile), &updated); err != nil {
		return nil, plan.Errf(plan.CodeInternal, "persisting settings: %v", err)
	}
	s.project = &updated
	s.record(activity.Event{Event: "SETTINGS_UPDATED"})

	c := updated
	return &c, nil
}
