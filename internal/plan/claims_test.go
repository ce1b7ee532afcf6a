package plan

import (
	"errors"
	"strings"
	"testing"
)

// --- Helpers ---

func claimFixture() ([]*Task, map[string]*Worker, map[string]*Team) {
	incumbent := &Worker{ID: "worker-aaa", EpicID: "epic-one", Status: WorkerCoding}
	tasks := []*Task{
		{ID: "task-held", EpicID: "epic-one", Status: TaskWorking, AssignedWorkerID: "worker-aaa"},
		{ID: "task-free", EpicID: "epic-one", Status: TaskBacklog},
	}
	workers := map[string]*Worker{incumbent.ID: incumbent}
	return tasks, workers, map[string]*Team{}
}

func TestCheckClaim_FreeEpic(t *testing.T) {
	claimant := &Worker{ID: "worker-bbb", EpicID: "epic-two"}
	inc, err := CheckClaim(ClaimRequest{Worker: claimant, EpicID: "epic-two", Class: ClassWorking},
		nil, map[string]*Worker{}, map[string]*Team{})
	if err != nil || inc != nil {
		t.Errorf("CheckClaim on empty epic = (%v, %v), want (nil, nil)", inc, err)
	}
}

func TestCheckClaim_ConflictNamesIncumbent(t *testing.T) {
	tasks, workers, teams := claimFixture()
	claimant := &Worker{ID: "worker-bbb", EpicID: "epic-one"}

	_, err := CheckClaim(ClaimRequest{Worker: claimant, EpicID: "epic-one", Class: ClassWorking},
		tasks, workers, teams)
	if CodeOf(err) != CodeNotAllowed {
		t.Fatalf("CheckClaim code = %s, want not_allowed", CodeOf(err))
	}
	if !strings.Contains(err.Error(), "worker-aaa") {
		t.Errorf("conflict error %q does not name the incumbent", err.Error())
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if pe.WorkerID != "worker-aaa" {
		t.Errorf("error WorkerID = %q, want worker-aaa", pe.WorkerID)
	}
}

func TestCheckClaim_DifferentClassesCoexist(t *testing.T) {
	tasks, workers, teams := claimFixture()
	architect := &Worker{ID: "worker-arch", EpicID: "epic-one"}

	// Incumbent holds WORKING; claiming the PLANNING class is fine.
	inc, err := CheckClaim(ClaimRequest{Worker: architect, EpicID: "epic-one", Class: ClassPlanning},
		tasks, workers, teams)
	if err != nil || inc != nil {
		t.Errorf("planning claim alongside working incumbent = (%v, %v), want free", inc, err)
	}
}

func TestCheckClaim_OverrideReturnsIncumbent(t *testing.T) {
	tasks, workers, teams := claimFixture()
	claimant := &Worker{ID: "worker-bbb", EpicID: "epic-one"}

	inc, err := CheckClaim(ClaimRequest{Worker: claimant, EpicID: "epic-one", Class: ClassWorking, Override: true},
		tasks, workers, teams)
	if err != nil {
		t.Fatalf("override claim failed: %v", err)
	}
	if inc == nil || inc.Worker.ID != "worker-aaa" || inc.Task.ID != "task-held" {
		t.Errorf("incumbent = %+v, want worker-aaa holding task-held", inc)
	}
}

func TestCheckClaim_SameTeamExemption(t *testing.T) {
	tasks, workers, _ := claimFixture()
	workers["worker-aaa"].TeamID = "team-one"
	claimant := &Worker{ID: "worker-bbb", EpicID: "epic-one", TeamID: "team-one"}
	teams := map[string]*Team{
		"team-one": {ID: "team-one", MaxSize: 3, Members: []string{"worker-aaa", "worker-bbb"}},
	}

	inc, err := CheckClaim(ClaimRequest{Worker: claimant, EpicID: "epic-one", Class: ClassWorking},
		tasks, workers, teams)
	if err != nil || inc != nil {
		t.Errorf("same-team claim = (%v, %v), want free", inc, err)
	}
}

func TestCheckClaim_TeamOverCapacity(t *testing.T) {
	tasks, workers, _ := claimFixture()
	workers["worker-aaa"].TeamID = "team-one"
	claimant := &Worker{ID: "worker-bbb", EpicID: "epic-one", TeamID: "team-one"}
	teams := map[string]*Team{
		"team-one": {ID: "team-one", MaxSize: 1, Members: []string{"worker-aaa", "worker-bbb"}},
	}

	_, err := CheckClaim(ClaimRequest{Worker: claimant, EpicID: "epic-one", Class: ClassWorking},
		tasks, workers, teams)
	if CodeOf(err) != CodeNotAllowed {
		t.Errorf("over-capacity team claim code = %s, want not_allowed", CodeOf(err))
	}
}

func TestCheckClaim_WorkerScopedToOtherEpic(t *testing.T) {
	claimant := &Worker{ID: "worker-bbb", EpicID: "epic-two"}
	_, err := CheckClaim(ClaimRequest{Worker: claimant, EpicID: "epic-one", Class: ClassWorking},
		nil, map[string]*Worker{}, map[string]*Team{})
	if CodeOf(err) != CodeNotAllowed {
		t.Errorf("cross-epic claim code = %s, want not_allowed", CodeOf(err))
	}
}
