package store

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/rails"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore initializes a fresh project root and opens it.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	if _, err := Init(root, "test-project", discardLogger()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s, err := Open(root, Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustEpic(t *testing.T, s *Store, title string) *plan.Epic {
	t.Helper()
	epic, err := s.CreateEpic(CreateEpicInput{Title: title})
	if err != nil {
		t.Fatalf("CreateEpic(%q): %v", title, err)
	}
	return epic
}

func mustTask(t *testing.T, s *Store, epicID, title string) *plan.Task {
	t.Helper()
	task, err := s.CreateTask(CreateTaskInput{EpicID: epicID, Title: title})
	if err != nil {
		t.Fatalf("CreateTask(%q): %v", title, err)
	}
	return task
}

func mustWorker(t *testing.T, s *Store, epicID string) *plan.Worker {
	t.Helper()
	w, err := s.RegisterWorker(RegisterWorkerInput{Type: "test-agent", EpicID: epicID})
	if err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}
	return w
}

func TestInitRejectsExistingRoot(t *testing.T) {
	root := t.TempDir()
	if _, err := Init(root, "one", discardLogger()); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	_, err := Init(root, "two", discardLogger())
	if plan.CodeOf(err) != plan.CodeAlreadyExists {
		t.Fatalf("second Init error = %v, want already_exists", err)
	}
}

func TestOpenRejectsSecondWriter(t *testing.T) {
	root := t.TempDir()
	if _, err := Init(root, "locked", discardLogger()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	first, err := Open(root, Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer first.Close()

	_, err = Open(root, Options{Logger: discardLogger()})
	if plan.CodeOf(err) != plan.CodeAlreadyExists {
		t.Fatalf("second Open error = %v, want already_exists", err)
	}
}

func TestOpenSkipsCorruptEntityFiles(t *testing.T) {
	root := t.TempDir()
	if _, err := Init(root, "corrupt", discardLogger()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	{
		s, err := Open(root, Options{Logger: discardLogger()})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		epic := mustEpic(t, s, "Real epic")
		mustTask(t, s, epic.ID, "Real task")
		s.Close()
	}

	badPath := filepath.Join(root, TasksDir, "task-bad.json")
	if err := os.WriteFile(badPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	s, err := Open(root, Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("reopen with corrupt file: %v", err)
	}
	defer s.Close()

	snap := s.Snapshot()
	if len(snap.Epics) != 1 || len(snap.Tasks) != 1 {
		t.Fatalf("snapshot = %d epics, %d tasks; want 1 and 1", len(snap.Epics), len(snap.Tasks))
	}
}

func TestOpenDropsStaleWorkers(t *testing.T) {
	root := t.TempDir()
	if _, err := Init(root, "stale", discardLogger()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	{
		s, err := Open(root, Options{Logger: discardLogger()})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		epic := mustEpic(t, s, "Epic")
		mustWorker(t, s, epic.ID)
		s.Close()
	}

	s, err := Open(root, Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if snap := s.Snapshot(); len(snap.Workers) != 0 {
		t.Fatalf("snapshot has %d workers after restart, want 0", len(snap.Workers))
	}
	entries, err := os.ReadDir(filepath.Join(root, WorkersDir))
	if err != nil {
		t.Fatalf("reading workers dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("workers dir has %d files after restart, want 0", len(entries))
	}
}

func TestMigrateLegacyProject(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{EpicsDir, TasksDir, WorkersDir, TeamsDir, ProposalsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	legacy := `{
		"id": "project-00000001",
		"name": "legacy",
		"forbiddenPhrases": ["rm -rf"],
		"requiredPhrases": ["test plan"],
		"approvalMode": "auto",
		"createdAt": "2024-01-01T00:00:00Z",
		"updatedAt": "2024-01-01T00:00:00Z"
	}`
	if err := os.WriteFile(filepath.Join(root, ProjectFile), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(root, Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Open legacy root: %v", err)
	}
	defer s.Close()

	p := s.Project()
	if p.SchemaVersion != plan.SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", p.SchemaVersion, plan.SchemaVersion)
	}
	if len(p.Rails.Forbidden) != 1 || p.Rails.Forbidden[0] != "rm -rf" {
		t.Errorf("Rails.Forbidden = %v, want [rm -rf]", p.Rails.Forbidden)
	}
	if len(p.Rails.Required) != 1 || p.Rails.Required[0] != "test plan" {
		t.Errorf("Rails.Required = %v, want [test plan]", p.Rails.Required)
	}
	if p.Workflow.ApprovalMode != plan.ApprovalInstantAuto {
		t.Errorf("ApprovalMode = %q, want instant_auto", p.Workflow.ApprovalMode)
	}
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	root := t.TempDir()
	doc := `{"id": "project-ffffffff", "name": "future", "schemaVersion": 99}`
	if err := os.WriteFile(filepath.Join(root, ProjectFile), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(root, Options{Logger: discardLogger()})
	if err == nil || !strings.Contains(err.Error(), "newer") {
		t.Fatalf("Open future schema error = %v, want newer-schema refusal", err)
	}
}

func TestTaskOrderingAndReorder(t *testing.T) {
	s := newTestStore(t)
	epic := mustEpic(t, s, "Ordering")

	a := mustTask(t, s, epic.ID, "first")
	b := mustTask(t, s, epic.ID, "second")
	c := mustTask(t, s, epic.ID, "third")
	if !(a.Order < b.Order && b.Order < c.Order) {
		t.Fatalf("create orders = %v %v %v, want strictly increasing", a.Order, b.Order, c.Order)
	}

	// Move c between a and b.
	moved, err := s.ReorderTask(c.ID, a.ID, b.ID)
	if err != nil {
		t.Fatalf("ReorderTask: %v", err)
	}
	if !(a.Order < moved.Order && moved.Order < b.Order) {
		t.Fatalf("moved order %v not between %v and %v", moved.Order, a.Order, b.Order)
	}

	snap := s.Snapshot()
	got := make([]string, len(snap.Tasks))
	for i, task := range snap.Tasks {
		got[i] = task.Title
	}
	want := []string{"first", "third", "second"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("board order = %v, want %v", got, want)
		}
	}
}

func TestReorderRejectsCrossEpicNeighbor(t *testing.T) {
	s := newTestStore(t)
	e1 := mustEpic(t, s, "One")
	e2 := mustEpic(t, s, "Two")
	a := mustTask(t, s, e1.ID, "a")
	b := mustTask(t, s, e2.ID, "b")

	_, err := s.ReorderTask(a.ID, b.ID, "")
	if plan.CodeOf(err) != plan.CodeInvalidInput {
		t.Fatalf("cross-epic reorder error = %v, want invalid_input", err)
	}
}

func TestWIPLimit(t *testing.T) {
	s := newTestStore(t)
	epic := mustEpic(t, s, "Limits")
	a := mustTask(t, s, epic.ID, "a")
	b := mustTask(t, s, epic.ID, "b")

	if _, err := s.UpdateSettings("", nil, &plan.WorkflowSettings{
		ApprovalMode: plan.ApprovalManual,
		WIPLimits:    map[string]int{string(plan.TaskWorking): 1},
	}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	working := plan.TaskWorking
	if _, err := s.UpdateTask(a.ID, UpdateTaskInput{Status: &working}); err != nil {
		t.Fatalf("first move to WORKING: %v", err)
	}
	_, err := s.UpdateTask(b.ID, UpdateTaskInput{Status: &working})
	if plan.CodeOf(err) != plan.CodeInvalidState {
		t.Fatalf("second move to WORKING error = %v, want invalid_state", err)
	}
	if !strings.Contains(err.Error(), "WIP limit") {
		t.Fatalf("error %q does not mention the WIP limit", err)
	}
}

func TestDeleteTaskClearsWorkerClaim(t *testing.T) {
	s := newTestStore(t)
	epic := mustEpic(t, s, "Claims")
	task := mustTask(t, s, epic.ID, "doomed")
	worker := mustWorker(t, s, epic.ID)

	claimed, err := s.ClaimNextTask(worker.ID, plan.ClassPlanning, false)
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if claimed.ID != task.ID {
		t.Fatalf("claimed %s, want %s", claimed.ID, task.ID)
	}

	if err := s.DeleteTask(task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}

	// The worker outlives the task: claim cleared, back to IDLE.
	w, err := s.GetWorker(worker.ID)
	if err != nil {
		t.Fatalf("GetWorker after delete: %v", err)
	}
	if w.CurrentTaskID != "" || w.Status != plan.WorkerIdle {
		t.Fatalf("worker after task delete = (%q, %s), want cleared and IDLE",
			w.CurrentTaskID, w.Status)
	}
}

func TestDeleteEpicRequiresCascade(t *testing.T) {
	s := newTestStore(t)
	epic := mustEpic(t, s, "Full")
	mustTask(t, s, epic.ID, "t1")
	mustTask(t, s, epic.ID, "t2")

	err := s.DeleteEpic(epic.ID, false)
	if plan.CodeOf(err) != plan.CodeNotAllowed {
		t.Fatalf("DeleteEpic without cascade = %v, want not_allowed", err)
	}
	if err := s.DeleteEpic(epic.ID, true); err != nil {
		t.Fatalf("DeleteEpic with cascade: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Epics) != 0 || len(snap.Tasks) != 0 {
		t.Fatalf("after cascade: %d epics, %d tasks; want 0 and 0", len(snap.Epics), len(snap.Tasks))
	}
}

func TestCommentValidationAndEviction(t *testing.T) {
	s := newTestStore(t)
	epic := mustEpic(t, s, "Comments")
	task := mustTask(t, s, epic.ID, "talkative")

	if _, err := s.AddComment(task.ID, "human", "  "); plan.CodeOf(err) != plan.CodeInvalidInput {
		t.Fatalf("blank comment error = %v, want invalid_input", err)
	}
	huge := strings.Repeat("x", plan.MaxCommentLen+1)
	if _, err := s.AddComment(task.ID, "human", huge); plan.CodeOf(err) != plan.CodeInvalidInput {
		t.Fatalf("oversized comment error = %v, want invalid_input", err)
	}

	for i := 0; i < plan.MaxComments+5; i++ {
		if _, err := s.AddComment(task.ID, "human", strings.Repeat("c", i+1)); err != nil {
			t.Fatalf("AddComment #%d: %v", i, err)
		}
	}
	got, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Comments) != plan.MaxComments {
		t.Fatalf("comment count = %d, want the %d cap", len(got.Comments), plan.MaxComments)
	}
	// Oldest evicted first: comment #0..#4 are gone, #5 (6 chars) survives.
	if len(got.Comments[0].Content) != 6 {
		t.Fatalf("oldest surviving comment has %d chars, want 6", len(got.Comments[0].Content))
	}
}

func TestArchiveDoneTasks(t *testing.T) {
	s := newTestStore(t)
	epic := mustEpic(t, s, "Archive")
	a := mustTask(t, s, epic.ID, "a")
	mustTask(t, s, epic.ID, "b")

	working := plan.TaskWorking
	review := plan.TaskReview
	done := plan.TaskDone
	for _, st := range []*plan.TaskStatus{&working, &review, &done} {
		if _, err := s.UpdateTask(a.ID, UpdateTaskInput{Status: st}); err != nil {
			t.Fatalf("moving to %s: %v", *st, err)
		}
	}

	n, err := s.ArchiveDoneTasks()
	if err != nil {
		t.Fatalf("ArchiveDoneTasks: %v", err)
	}
	if n != 1 {
		t.Fatalf("archived %d tasks, want 1", n)
	}
	// Archived tasks drop out of the snapshot but stay readable by id.
	if snap := s.Snapshot(); len(snap.Tasks) != 1 {
		t.Fatalf("snapshot has %d tasks, want 1 (archived excluded)", len(snap.Tasks))
	}
	got, err := s.GetTask(a.ID)
	if err != nil {
		t.Fatalf("GetTask archived: %v", err)
	}
	if got.Status != plan.TaskArchived {
		t.Fatalf("status = %s, want ARCHIVED", got.Status)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpdateSettings("", nil, &plan.WorkflowSettings{ApprovalMode: "yolo"})
	if plan.CodeOf(err) != plan.CodeInvalidInput {
		t.Fatalf("bad approval mode error = %v, want invalid_input", err)
	}

	_, err = s.UpdateSettings("", nil, &plan.WorkflowSettings{
		ApprovalMode: plan.ApprovalManual,
		WIPLimits:    map[string]int{"NOT_A_STATUS": 3},
	})
	if plan.CodeOf(err) != plan.CodeInvalidInput {
		t.Fatalf("bad WIP status error = %v, want invalid_input", err)
	}

	p, err := s.UpdateSettings("Renamed", &rails.Rails{Forbidden: []string{"force push"}}, nil)
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if p.Name != "Renamed" || len(p.Rails.Forbidden) != 1 {
		t.Fatalf("settings not applied: %+v", p)
	}
}

func TestStatusTransitionErrorsCarryIDs(t *testing.T) {
	s := newTestStore(t)
	epic := mustEpic(t, s, "IDs")
	task := mustTask(t, s, epic.ID, "t")

	done := plan.TaskDone
	_, err := s.UpdateTask(task.ID, UpdateTaskInput{Status: &done})
	var pe *plan.Error
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not a *plan.Error", err)
	}
	if pe.TaskID != task.ID || pe.EpicID != epic.ID {
		t.Fatalf("error ids = (%q, %q), want (%q, %q)", pe.TaskID, pe.EpicID, task.ID, epic.ID)
	}
}
