package ident

import (
	"strings"
	"testing"
)

func TestNew_KindPrefix(t *testing.T) {
	id := New(KindTask)
	if !strings.HasPrefix(id, "task-") {
		t.Errorf("New(KindTask) = %q, want task- prefix", id)
	}
	if len(id) != len("task-")+tokenLen {
		t.Errorf("New(KindTask) length = %d, want %d", len(id), len("task-")+tokenLen)
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New(KindWorker)
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestHasKind(t *testing.T) {
	if !HasKind("epic-1c9f04ab", KindEpic) {
		t.Error("HasKind(epic-1c9f04ab, epic) = false, want true")
	}
	if HasKind("task-1c9f04ab", KindEpic) {
		t.Error("HasKind(task-1c9f04ab, epic) = true, want false")
	}
}

func TestSanitizeTitle_CollapsesWhitespace(t *testing.T) {
	got := SanitizeTitle("  Fix \t the \n login   bug ")
	if got != "Fix the login bug" {
		t.Errorf("SanitizeTitle = %q, want %q", got, "Fix the login bug")
	}
}

func TestSanitizeTitle_BoundsLength(t *testing.T) {
	got := SanitizeTitle(strings.Repeat("a", 500))
	if len(got) != maxTitleLen {
		t.Errorf("SanitizeTitle length = %d, want %d", len(got), maxTitleLen)
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Fix FTS5 empty query crash", "fix-fts5-empty-query-crash"},
		{"  hello__world  ", "hello-world"},
		{"!!!", "untitled"},
		{"", "untitled"},
		{"CamelCase Title", "camelcase-title"},
	}
	for _, c := range cases {
		if got := Slugify(c.in); got != c.want {
			t.Errorf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSlugify_TruncatesAtWordBoundary(t *testing.T) {
	in := strings.Repeat("word ", 30)
	got := Slugify(in)
	if len(got) > maxSlugLen {
		t.Errorf("Slugify length = %d, want <= %d", len(got), maxSlugLen)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("Slugify = %q, trailing hyphen", got)
	}
}
