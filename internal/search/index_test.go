package search

import (
	"testing"

	"github.com/HendryAvila/foreman/internal/plan"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(Config{DataDir: t.TempDir(), MaxResults: 10})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func task(id, epicID, title, description string) *plan.Task {
	return &plan.Task{
		ID: id, EpicID: epicID, Title: title, Description: description,
		Status: plan.TaskBacklog,
	}
}

func seed(t *testing.T, idx *Index, tasks ...*plan.Task) {
	t.Helper()
	if err := idx.Rebuild(tasks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
}

func TestIndexAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx,
		task("task-1", "epic-1", "fix parser panic", "nil deref on empty input"),
		task("task-2", "epic-1", "add websocket heartbeat", "ping every 30s"),
	)

	hits, err := idx.Search("parser panic", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].TaskID != "task-1" {
		t.Fatalf("hits = %+v, want just task-1", hits)
	}
}

func TestSearchMatchesPlanText(t *testing.T) {
	idx := newTestIndex(t)
	tk := task("task-3", "epic-1", "refactor config", "")
	tk.Plan = []plan.Step{{Description: "extract the yaml loader into its own package"}}
	seed(t, idx, tk)

	hits, err := idx.Search("yaml loader", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("plan-text search found %d hits, want 1", len(hits))
	}
}

func TestSearchFilters(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx,
		task("task-a", "epic-1", "shared title", ""),
		task("task-b", "epic-2", "shared title", ""),
	)

	hits, err := idx.Search("shared", Options{EpicID: "epic-2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].TaskID != "task-b" {
		t.Fatalf("epic filter hits = %+v, want just task-b", hits)
	}
}

func TestRebuildReplacesPrevious(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx, task("task-stale", "epic-0", "stale", ""))

	seed(t, idx,
		task("task-5", "epic-1", "alpha", ""),
		task("task-6", "epic-1", "beta", ""),
	)
	if hits, _ := idx.Search("stale", Options{}); len(hits) != 0 {
		t.Fatal("rebuild kept a stale entry")
	}
	hits, err := idx.Search("alpha", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].TaskID != "task-5" {
		t.Fatalf("rebuilt entry missing: %+v", hits)
	}
}

func TestEmptyQueryReturnsNothing(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx, task("task-7", "epic-1", "anything", ""))
	hits, err := idx.Search("   ", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if hits != nil {
		t.Fatalf("empty query hits = %+v, want none", hits)
	}
}

func TestQuotesInQueryAreHarmless(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx, task("task-8", "epic-1", "quoted phrase", ""))
	if _, err := idx.Search(`"quoted" AND (phrase`, Options{}); err != nil {
		t.Fatalf("hostile query errored: %v", err)
	}
}
