package store

import (
	"path/filepath"
	"strings"

	"github.com/HendryAvila/foreman/internal/activity"
	"github.com/HendryAvila/foreman/internal/ident"
	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/rails"
)

// Rail-change proposals: agents cannot edit rails directly. They file a
// proposal naming scope, action, kind, and phrase; a human approves or
// rejects it, and approval applies the change in the same mutation.

// ProposalInput describes a rail change an agent wants.
type ProposalInput struct {
	Scope    string // "global", "epic", "task"
	TargetID string // epic/task id for scoped proposals
	Action   string // "add", "remove"
	Kind     string // "forbidden", "required", "convention"
	Phrase   string
	Reason   string
	WorkerID string
}

// CreateProposal files a rail-change proposal in PENDING state.
func (s *Store) CreateProposal(in ProposalInput) (*plan.RailProposal, error) {
	switch in.Scope {
	case "global", "epic", "task":
	default:
		return nil, plan.Errf(plan.CodeInvalidInput, "unknown proposal scope %q", in.Scope)
	}
	switch in.Action {
	case "add", "remove":
	default:
		return nil, plan.Errf(plan.CodeInvalidInput, "unknown proposal action %q", in.Action)
	}
	switch in.Kind {
	case "forbidden", "required", "convention":
	default:
		return nil, plan.Errf(plan.CodeInvalidInput, "unknown rail kind %q", in.Kind)
	}
	if strings.TrimSpace(in.Phrase) == "" {
		return nil, plan.Errf(plan.CodeInvalidInput, "proposal phrase is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch in.Scope {
	case "epic":
		if _, ok := s.epics[in.TargetID]; !ok {
			return nil, plan.Errf(plan.CodeNotFound, "epic %q not found", in.TargetID).WithEpic(in.TargetID)
		}
	case "task":
		if _, ok := s.tasks[in.TargetID]; !ok {
			return nil, plan.Errf(plan.CodeNotFound, "task %q not found", in.TargetID).WithTask(in.TargetID)
		}
	}

	now := plan.Now()
	proposal := &plan.RailProposal{
		ID:        ident.New(ident.KindProposal),
		Scope:     in.Scope,
		TargetID:  in.TargetID,
		Action:    in.Action,
		Kind:      in.Kind,
		Phrase:    strings.TrimSpace(in.Phrase),
		Reason:    in.Reason,
		WorkerID:  in.WorkerID,
		Status:    plan.ProposalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.persist(ProposalsDir, proposal.ID, proposal); err != nil {
		return nil, err
	}
	s.proposals[proposal.ID] = proposal
	s.record(activity.Event{Event: "PROPOSAL_CREATED", WorkerID: in.WorkerID,
		Payload: map[string]any{
			"proposalId": proposal.ID, "scope": in.Scope, "action": in.Action,
			"kind": in.Kind, "phrase": proposal.Phrase,
		}})

	c := *proposal
	return &c, nil
}

// ResolveProposal approves or rejects a pending proposal. Approval applies
// the rail change at the proposal's scope in the same mutation, so an
// approved proposal and its effect can never drift apart.
func (s *Store) ResolveProposal(id string, approve bool) (*plan.RailProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposal, ok := s.proposals[id]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "proposal %q not found", id)
	}
	if proposal.Status != plan.ProposalPending {
		return nil, plan.Errf(plan.CodeInvalidState,
			"proposal %s is already %s", id, proposal.Status)
	}

	updated := *proposal
	updated.UpdatedAt = plan.Now()
	if !approve {
		updated.Status = plan.ProposalRejected
		if err := s.persist(ProposalsDir, id, &updated); err != nil {
			return nil, err
		}
		s.proposals[id] = &updated
		s.record(activity.Event{Event: "PROPOSAL_RESOLVED",
			Payload: map[string]any{"proposalId": id, "status": string(updated.Status)}})
		c := updated
		return &c, nil
	}

	if err := s.applyRailChangeLocked(proposal); err != nil {
		return nil, err
	}
	updated.Status = plan.ProposalApproved
	if err := s.persist(ProposalsDir, id, &updated); err != nil {
		return nil, err
	}
	s.proposals[id] = &updated
	s.record(activity.Event{Event: "PROPOSAL_RESOLVED",
		Payload: map[string]any{
			"proposalId": id, "status": string(updated.Status),
			"scope": proposal.Scope, "phrase": proposal.Phrase,
		}})

	c := updated
	return &c, nil
}

// applyRailChangeLocked edits the rails at the proposal's scope. Caller
// holds mu.
func (s *Store) applyRailChangeLocked(p *plan.RailProposal) error {
	switch p.Scope {
	case "global":
		project := *s.project
		project.Rails = editRails(project.Rails, p)
		project.UpdatedAt = plan.Now()
		if err := writeJSON(filepath.Join(s.root, ProjectFile), &project); err != nil {
			return plan.Errf(plan.CodeInternal, "persisting project: %v", err)
		}
		s.project = &project
	case "epic":
		epic, ok := s.epics[p.TargetID]
		if !ok {
			return plan.Errf(plan.CodeNotFound, "epic %q not found", p.TargetID).WithEpic(p.TargetID)
		}
		updated := *epic
		updated.Rails = editRails(epic.Rails, p)
		updated.UpdatedAt = plan.Now()
		if err := s.persist(EpicsDir, epic.ID, &updated); err != nil {
			return err
		}
		s.epics[epic.ID] = &updated
	case "task":
		task, ok := s.tasks[p.TargetID]
		if !ok {
			return plan.Errf(plan.CodeNotFound, "task %q not found", p.TargetID).WithTask(p.TargetID)
		}
		updated := *task
		updated.Rails = editRails(task.Rails, p)
		updated.UpdatedAt = plan.Now()
		if err := s.persist(TasksDir, task.ID, &updated); err != nil {
			return err
		}
		s.tasks[task.ID] = &updated
	}
	return nil
}

// editRails returns a copy of r with the proposed change applied.
func editRails(r rails.Rails, p *plan.RailProposal) rails.Rails {
	out := rails.Rails{
		Forbidden:   append([]string{}, r.Forbidden...),
		Required:    append([]string{}, r.Required...),
		Conventions: r.Conventions,
	}
	switch p.Kind {
	case "forbidden":
		out.Forbidden = editPhrases(out.Forbidden, p.Action, p.Phrase)
	case "required":
		out.Required = editPhrases(out.Required, p.Action, p.Phrase)
	case "convention":
		if p.Action == "remove" {
			out.Conventions = ""
		} else {
			out.Conventions = strings.TrimSpace(out.Conventions + "\n" + p.Phrase)
		}
	}
	return out
}

func editPhrases(phrases []string, action, phrase string) []string {
	if action == "remove" {
		out := phrases[:0]
		for _, p := range phrases {
			if !strings.EqualFold(p, phrase) {
				out = append(out, p)
			}
		}
		return out
	}
	for _, p := range phrases {
		if strings.EqualFold(p, phrase) {
			return phrases
		}
	}
	return append(phrases, phrase)
}
