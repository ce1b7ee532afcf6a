package store

import (
	"github.com/HendryAvila/foreman/internal/activity"
	"github.com/HendryAvila/foreman/internal/ident"
	"github.com/HendryAvila/foreman/internal/plan"
)

// CreateTeamInput describes a new team.
type CreateTeamInput struct {
	Name    string
	Role    plan.TeamRole
	MaxSize int
}

// CreateTeam creates a team. Teams are the one exemption from the
// single-worker claim constraint, so the role and size bound are validated
// up front.
func (s *Store) CreateTeam(in CreateTeamInput) (*plan.Team, error) {
	name := ident.SanitizeTitle(in.Name)
	if name == "" {
		return nil, plan.Errf(plan.CodeInvalidInput, "team name is required")
	}
	switch in.Role {
	case plan.RoleArchitect, plan.RoleWorker, plan.RoleQA:
	default:
		return nil, plan.Errf(plan.CodeInvalidInput, "unknown team role %q", in.Role)
	}
	if in.MaxSize < 0 {
		return nil, plan.Errf(plan.CodeInvalidInput, "team max size cannot be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := plan.Now()
	team := &plan.Team{
		ID:        ident.New(ident.KindTeam),
		Name:      name,
		Role:      in.Role,
		MaxSize:   in.MaxSize,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.persist(TeamsDir, team.ID, team); err != nil {
		return nil, err
	}
	s.teams[team.ID] = team
	s.record(activity.Event{Event: "TEAM_CREATED",
		Payload: map[string]any{"teamId": team.ID, "name": name, "role": string(in.Role)}})

	c := *team
	return &c, nil
}

// UpdateTeamInput holds optional team updates; nil fields are left alone.
type UpdateTeamInput struct {
	Name    *string
	Role    *plan.TeamRole
	MaxSize *int
}

// UpdateTeam applies a partial update. Shrinking MaxSize below the current
// member count is rejected rather than evicting anyone.
func (s *Store) UpdateTeam(id string, in UpdateTeamInput) (*plan.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[id]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "team %q not found", id)
	}

	updated := *team
	if in.Name != nil {
		name := ident.SanitizeTitle(*in.Name)
		if name == "" {
			return nil, plan.Errf(plan.CodeInvalidInput, "team name cannot be empty")
		}
		updated.Name = name
	}
	if in.Role != nil {
		switch *in.Role {
		case plan.RoleArchitect, plan.RoleWorker, plan.RoleQA:
		default:
			return nil, plan.Errf(plan.CodeInvalidInput, "unknown team role %q", *in.Role)
		}
		updated.Role = *in.Role
	}
	if in.MaxSize != nil {
		if *in.MaxSize < 0 {
			return nil, plan.Errf(plan.CodeInvalidInput, "team max size cannot be negative")
		}
		if *in.MaxSize > 0 && len(updated.Members) > *in.MaxSize {
			return nil, plan.Errf(plan.CodeNotAllowed,
				"team %s has %d members, cannot shrink below that", id, len(updated.Members))
		}
		updated.MaxSize = *in.MaxSize
	}
	updated.UpdatedAt = plan.Now()

	if err := s.persist(TeamsDir, id, &updated); err != nil {
		return nil, err
	}
	s.teams[id] = &updated
	s.record(activity.Event{Event: "TEAM_UPDATED", Payload: map[string]any{"teamId": id}})

	c := updated
	return &c, nil
}

// DeleteTeam removes a team; its members revert to unaffiliated workers.
func (s *Store) DeleteTeam(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[id]
	if !ok {
		return plan.Errf(plan.CodeNotFound, "team %q not found", id)
	}

	for _, memberID := range team.Members {
		w, ok := s.workers[memberID]
		if !ok || w.TeamID != id {
			continue
		}
		updated := *w
		updated.TeamID = ""
		updated.UpdatedAt = plan.Now()
		if err := s.persist(WorkersDir, w.ID, &updated); err != nil {
			return err
		}
		s.workers[w.ID] = &updated
	}

	if err := s.remove(TeamsDir, id); err != nil {
		return err
	}
	delete(s.teams, id)
	s.record(activity.Event{Event: "TEAM_DELETED", Payload: map[string]any{"teamId": id}})
	return nil
}

// AddTeamMember puts a worker on a team, enforcing the size bound.
func (s *Store) AddTeamMember(teamID, workerID string) (*plan.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[teamID]; !ok {
		return nil, plan.Errf(plan.CodeNotFound, "team %q not found", teamID)
	}
	worker, ok := s.workers[workerID]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "worker %q not found", workerID).WithWorker(workerID)
	}
	if worker.TeamID != "" && worker.TeamID != teamID {
		return nil, plan.Errf(plan.CodeNotAllowed,
			"worker %s already belongs to team %s", workerID, worker.TeamID).WithWorker(workerID)
	}

	if err := s.addTeamMemberLocked(teamID, workerID); err != nil {
		return nil, err
	}

	updated := *worker
	updated.TeamID = teamID
	updated.UpdatedAt = plan.Now()
	if err := s.persist(WorkersDir, workerID, &updated); err != nil {
		return nil, err
	}
	s.workers[workerID] = &updated

	c := *s.teams[teamID]
	return &c, nil
}

// addTeamMemberLocked appends a worker id to a team's member list. Caller
// holds mu and has verified both exist.
func (s *Store) addTeamMemberLocked(teamID, workerID string) error {
	team := s.teams[teamID]
	for _, m := range team.Members {
		if m == workerID {
			return nil
		}
	}
	if team.MaxSize > 0 && len(team.Members) >= team.MaxSize {
		return plan.Errf(plan.CodeNotAllowed,
			"team %s is full (%d/%d)", teamID, len(team.Members), team.MaxSize)
	}

	updated := *team
	updated.Members = append(append([]string{}, team.Members...), workerID)
	updated.UpdatedAt = plan.Now()
	if err := s.persist(TeamsDir, teamID, &updated); err != nil {
		return err
	}
	s.teams[teamID] = &updated
	s.record(activity.Event{Event: "TEAM_UPDATED", WorkerID: workerID,
		Payload: map[string]any{"teamId": teamID, "action": "member_added"}})
	return nil
}

// RemoveTeamMember takes a worker off a team.
func (s *Store) RemoveTeamMember(teamID, workerID string) (*plan.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[teamID]; !ok {
		return nil, plan.Errf(plan.CodeNotFound, "team %q not found", teamID)
	}
	s.removeTeamMemberLocked(teamID, workerID)

	if w, ok := s.workers[workerID]; ok && w.TeamID == teamID {
		updated := *w
		updated.TeamID = ""
		updated.UpdatedAt = plan.Now()
		if err := s.persist(WorkersDir, workerID, &updated); err != nil {
			return nil, err
		}
		s.workers[workerID] = &updated
	}

	c := *s.teams[teamID]
	return &c, nil
}

// removeTeamMemberLocked drops a worker id from a team's member list. Caller
// holds mu. Missing team or member is a no-op.
func (s *Store) removeTeamMemberLocked(teamID, workerID string) {
	team, ok := s.teams[teamID]
	if !ok {
		return
	}
	members := make([]string, 0, len(team.Members))
	for _, m := range team.Members {
		if m != workerID {
			members = append(members, m)
		}
	}
	if len(members) == len(team.Members) {
		return
	}

	updated := *team
	updated.Members = members
	updated.UpdatedAt = plan.Now()
	if err := s.persist(TeamsDir, teamID, &updated); err != nil {
		s.logger.Warn("persisting team after member removal", "team", teamID, "error", err)
		return
	}
	s.teams[teamID] = &updated
	s.record(activity.Event{Event: "TEAM_UPDATED", WorkerID: workerID,
		Payload: map[string]any{"teamId": teamID, "action": "member_removed"}})
}
