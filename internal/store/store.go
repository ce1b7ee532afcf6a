// Package store is the durable store and mutation engine: it loads the
// file-per-entity JSON tree under a project root into an in-memory index and
// exposes the mutation operations every protocol channel routes through.
//
// The in-memory index is the source of truth for reads; the on-disk files
// are the durability guarantee. Every mutation runs under one mutex (the
// single-writer invariant) and follows the same sequence: validate, apply
// business rules, mutate the index, write the affected file(s), append one
// activity-log entry.
//
// A flock-held lock file extends the single-writer invariant across
// processes: a second daemon pointed at the same root fails fast instead of
// corrupting the tree.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/HendryAvila/foreman/internal/activity"
	"github.com/HendryAvila/foreman/internal/ident"
	"github.com/HendryAvila/foreman/internal/plan"
)

// Subdirectories of a project root, one per entity kind.
const (
	EpicsDir     = "epics"
	TasksDir     = "tasks"
	WorkersDir   = "workers"
	TeamsDir     = "teams"
	ProposalsDir = "proposals"

	// ProjectFile is the singleton settings document.
	ProjectFile = "project.json"
	// LockFile guards the root against a second writer process.
	LockFile = "foreman.lock"
)

// Store owns one project root.
type Store struct {
	root   string
	lock   *flock.Flock
	log    *activity.Log
	logger *slog.Logger

	mu        sync.Mutex
	project   *plan.Project
	epics     map[string]*plan.Epic
	tasks     map[string]*plan.Task
	workers   map[string]*plan.Worker
	teams     map[string]*plan.Team
	proposals map[string]*plan.RailProposal

	// notify is invoked while mu is held, after any mutation that can
	// unblock a waiting worker, so it must not call back into the store or
	// block. The daemon wires a non-blocking channel signal here.
	notify func()
}

// Options configures Open.
type Options struct {
	Logger      *slog.Logger
	ActivityLog activity.Options
}

// Open acquires the root's writer lock and loads the tree. Individual entity
// files that fail to parse are skipped with a warning: partial corruption
// must not take the whole project down. A missing project.json is a startup
// error: run `foreman init` first.
func Open(root string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("project root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", root)
	}

	lock := flock.New(filepath.Join(root, LockFile))
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking project root: %w", err)
	}
	if !held {
		return nil, plan.Errf(plan.CodeAlreadyExists,
			"project root %s is already served by another daemon", root)
	}

	opts.ActivityLog.Logger = logger
	s := &Store{
		root:      root,
		lock:      lock,
		log:       activity.Open(root, opts.ActivityLog),
		logger:    logger,
		epics:     map[string]*plan.Epic{},
		tasks:     map[string]*plan.Task{},
		workers:   map[string]*plan.Worker{},
		teams:     map[string]*plan.Team{},
		proposals: map[string]*plan.RailProposal{},
		notify:    func() {},
	}

	if err := s.loadAll(); err != nil {
		lock.Unlock()
		return nil, err
	}

	// Workers are ephemeral: any worker file surviving a previous daemon is
	// stale and gets dropped on load.
	for id := range s.workers {
		delete(s.workers, id)
		if err := os.Remove(s.entityPath(WorkersDir, id)); err != nil && !os.IsNotExist(err) {
			logger.Warn("removing stale worker file", "worker", id, "error", err)
		}
	}

	return s, nil
}

// Init creates a fresh project root: the directory tree and a default
// project document. It fails if a project document already exists.
func Init(root, name string, logger *slog.Logger) (*plan.Project, error) {
	if logger == nil {
		logger = slog.Default()
	}
	projectPath := filepath.Join(root, ProjectFile)
	if _, err := os.Stat(projectPath); err == nil {
		return nil, plan.Errf(plan.CodeAlreadyExists, "project already initialized at %s", root)
	}

	for _, dir := range []string{EpicsDir, TasksDir, WorkersDir, TeamsDir, ProposalsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", dir, err)
		}
	}

	now := plan.Now()
	project := &plan.Project{
		ID:   ident.New(ident.KindProject),
		Name: name,
		Workflow: plan.WorkflowSettings{
			ApprovalMode:  plan.ApprovalManual,
			BranchPattern: "task/{id}-{slug}",
		},
		SchemaVersion: plan.SchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := writeJSON(projectPath, project); err != nil {
		return nil, err
	}
	logger.Info("initialized project root", "root", root, "project", project.ID)
	return project, nil
}

// Close releases the writer lock. The store must not be used afterwards.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

// Root returns the project root directory.
func (s *Store) Root() string { return s.root }

// ActivityLog exposes the underlying log for tail queries and shutdown.
func (s *Store) ActivityLog() *activity.Log { return s.log }

// SetNotify installs the post-mutation callback. Must be called before the
// store starts serving requests.
func (s *Store) SetNotify(fn func()) {
	if fn != nil {
		s.notify = fn
	}
}

// --- Loading ---

func (s *Store) loadAll() error {
	raw, err := os.ReadFile(filepath.Join(s.root, ProjectFile))
	if err != nil {
		return fmt.Errorf("reading project document: %w", err)
	}
	project, err := migrateProject(raw, s.logger)
	if err != nil {
		return fmt.Errorf("migrating project document: %w", err)
	}
	s.project = project

	loadDir(s, EpicsDir, s.epics, func(e *plan.Epic) string { return e.ID })
	loadDir(s, TasksDir, s.tasks, func(t *plan.Task) string { return t.ID })
	loadDir(s, WorkersDir, s.workers, func(w *plan.Worker) string { return w.ID })
	loadDir(s, TeamsDir, s.teams, func(t *plan.Team) string { return t.ID })
	loadDir(s, ProposalsDir, s.proposals, func(p *plan.RailProposal) string { return p.ID })
	return nil
}

// loadDir reads every *.json under one entity directory into the index,
// skipping unreadable or unparsable files with a warning.
func loadDir[T any](s *Store, dir string, index map[string]*T, idOf func(*T) string) {
	entries, err := os.ReadDir(filepath.Join(s.root, dir))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("reading entity directory", "dir", dir, "error", err)
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.root, dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable entity file", "path", path, "error", err)
			continue
		}
		var entity T
		if err := json.Unmarshal(raw, &entity); err != nil {
			s.logger.Warn("skipping malformed entity file", "path", path, "error", err)
			continue
		}
		id := idOf(&entity)
		if id == "" {
			s.logger.Warn("skipping entity file without id", "path", path)
			continue
		}
		index[id] = &entity
	}
}

// --- Persistence helpers ---

func (s *Store) entityPath(dir, id string) string {
	return filepath.Join(s.root, dir, id+".json")
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}

// persist writes one entity file; a failure here surfaces as an internal
// error on the mutation that caused it.
func (s *Store) persist(dir, id string, v any) error {
	if err := writeJSON(s.entityPath(dir, id), v); err != nil {
		return plan.Errf(plan.CodeInternal, "persisting %s: %v", id, err)
	}
	return nil
}

func (s *Store) remove(dir, id string) error {
	if err := os.Remove(s.entityPath(dir, id)); err != nil && !os.IsNotExist(err) {
		return plan.Errf(plan.CodeInternal, "deleting %s: %v", id, err)
	}
	return nil
}

// record appends one activity-log entry. Append failures are logged, not
// surfaced: the mutation already committed and losing one log line beats
// failing the request after persistence.
func (s *Store) record(ev activity.Event) {
	if s.project != nil {
		ev.ProjectID = s.project.ID
	}
	if err := s.log.Append(ev); err != nil {
		s.logger.Warn("appending activity event", "event", ev.Event, "error", err)
	}
}

// --- Reads ---

// Snapshot is the full non-archived state pushed to event-channel clients.
type Snapshot struct {
	Project   *plan.Project        `json:"project"`
	Epics     []*plan.Epic         `json:"epics"`
	Tasks     []*plan.Task         `json:"tasks"`
	Workers   []*plan.Worker       `json:"workers"`
	Teams     []*plan.Team         `json:"teams"`
	Proposals []*plan.RailProposal `json:"proposals"`
}

// Snapshot returns a deep-enough copy of the current state: entity structs
// are copied by value so a client marshaling the snapshot never races a
// later mutation. Archived tasks are excluded.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		Epics:     make([]*plan.Epic, 0, len(s.epics)),
		Tasks:     make([]*plan.Task, 0, len(s.tasks)),
		Workers:   make([]*plan.Worker, 0, len(s.workers)),
		Teams:     make([]*plan.Team, 0, len(s.teams)),
		Proposals: make([]*plan.RailProposal, 0, len(s.proposals)),
	}
	if s.project != nil {
		p := *s.project
		snap.Project = &p
	}
	for _, e := range s.epics {
		c := *e
		snap.Epics = append(snap.Epics, &c)
	}
	for _, t := range s.tasks {
		if t.Status == plan.TaskArchived {
			continue
		}
		c := *t
		snap.Tasks = append(snap.Tasks, &c)
	}
	for _, w := range s.workers {
		c := *w
		snap.Workers = append(snap.Workers, &c)
	}
	for _, tm := range s.teams {
		c := *tm
		snap.Teams = append(snap.Teams, &c)
	}
	for _, p := range s.proposals {
		c := *p
		snap.Proposals = append(snap.Proposals, &c)
	}

	sortByOrder(snap.Epics, func(e *plan.Epic) (float64, string, string) { return e.Order, e.CreatedAt, e.ID })
	sortByOrder(snap.Tasks, func(t *plan.Task) (float64, string, string) { return t.Order, t.CreatedAt, t.ID })
	sort.Slice(snap.Workers, func(i, j int) bool { return snap.Workers[i].ID < snap.Workers[j].ID })
	sort.Slice(snap.Teams, func(i, j int) bool { return snap.Teams[i].ID < snap.Teams[j].ID })
	sort.Slice(snap.Proposals, func(i, j int) bool { return snap.Proposals[i].CreatedAt < snap.Proposals[j].CreatedAt })
	return snap
}

// sortByOrder sorts siblings by (order, createdAt, id), the store's one
// comparator, so ties always break the same way.
func sortByOrder[T any](items []T, key func(T) (float64, string, string)) {
	sort.Slice(items, func(i, j int) bool {
		oi, ci, ii := key(items[i])
		oj, cj, ij := key(items[j])
		if oi != oj {
			return oi < oj
		}
		if ci != cj {
			return ci < cj
		}
		return ii < ij
	})
}

// Project returns a copy of the project document.
func (s *Store) Project() *plan.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *s.project
	return &p
}

// GetTask returns a copy of one task.
func (s *Store) GetTask(id string) (*plan.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "task %q not found", id).WithTask(id)
	}
	c := *t
	return &c, nil
}

// GetEpic returns a copy of one epic.
func (s *Store) GetEpic(id string) (*plan.Epic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.epics[id]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "epic %q not found", id).WithEpic(id)
	}
	c := *e
	return &c, nil
}

// GetWorker returns a copy of one worker.
func (s *Store) GetWorker(id string) (*plan.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, plan.Errf(plan.CodeNotFound, "worker %q not found", id).WithWorker(id)
	}
	c := *w
	return &c, nil
}

// TailActivity returns the last n activity events.
func (s *Store) TailActivity(n int) ([]activity.Event, error) {
	return s.log.Tail(n)
}

// epicTasks returns the live task structs of one epic. Caller holds mu.
func (s *Store) epicTasks(epicID string) []*plan.Task {
	var tasks []*plan.Task
	for _, t := range s.tasks {
		if t.EpicID == epicID {
			tasks = append(tasks, t)
		}
	}
	sortByOrder(tasks, func(t *plan.Task) (float64, string, string) { return t.Order, t.CreatedAt, t.ID })
	return tasks
}
