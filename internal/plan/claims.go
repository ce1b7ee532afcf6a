package plan

// Claim logic: at most one worker may hold tasks of a given status class
// within an epic at a time. An architect planning and a worker coding can
// share an epic (different classes); two coders cannot, unless they belong
// to the same team and the team has room.
//
// CheckClaim only evaluates the constraint. The caller (the store) holds the
// mutation lock while it checks and commits, so two concurrent claims can
// never both observe "no incumbent" and both succeed.

// ClaimRequest describes a worker's attempt to claim a task status class
// within an epic.
type ClaimRequest struct {
	Worker   *Worker
	EpicID   string
	Class    StatusClass
	Override bool
}

// Incumbent pairs a blocking worker with the task it holds.
type Incumbent struct {
	Worker *Worker
	Task   *Task
}

// CheckClaim evaluates the claim constraint against the epic's current
// tasks and workers. teams maps team id → team for membership lookups.
// It returns the incumbent that must be displaced when the request carries
// the override flag, or nil when the claim is simply free.
//
// A conflict without override returns a CodeNotAllowed error naming the
// blocking worker.
func CheckClaim(req ClaimRequest, tasks []*Task, workers map[string]*Worker, teams map[string]*Team) (*Incumbent, error) {
	if req.Worker == nil {
		return nil, Errf(CodeInvalidInput, "claim requires a worker")
	}
	if req.Worker.EpicID != req.EpicID {
		return nil, Errf(CodeNotAllowed,
			"worker %s is scoped to epic %s, not %s",
			req.Worker.ID, req.Worker.EpicID, req.EpicID).WithWorker(req.Worker.ID)
	}

	for _, task := range tasks {
		if task.EpicID != req.EpicID || task.AssignedWorkerID == "" {
			continue
		}
		if task.AssignedWorkerID == req.Worker.ID {
			continue
		}
		if ClassOf(task.Status) != req.Class {
			continue
		}

		holder := workers[task.AssignedWorkerID]
		if holder == nil {
			// Dangling assignment; the claim proceeds and the store
			// clears the stale reference.
			continue
		}

		if sameTeam(req.Worker, holder, teams) {
			continue
		}

		if req.Override {
			return &Incumbent{Worker: holder, Task: task}, nil
		}
		return nil, Errf(CodeNotAllowed,
			"worker %s already holds %s tasks in epic %s",
			holder.ID, req.Class, req.EpicID).
			WithWorker(holder.ID).WithEpic(req.EpicID).WithTask(task.ID)
	}

	return nil, nil
}

// sameTeam reports whether both workers belong to the same team and that
// team still has capacity for the claimant. A team is the explicit exemption
// from the single-worker constraint, bounded by MaxSize.
func sameTeam(claimant, holder *Worker, teams map[string]*Team) bool {
	if claimant.TeamID == "" || claimant.TeamID != holder.TeamID {
		return false
	}
	team := teams[claimant.TeamID]
	if team == nil {
		return false
	}
	if team.MaxSize > 0 && len(team.Members) > team.MaxSize {
		return false
	}
	return true
}
