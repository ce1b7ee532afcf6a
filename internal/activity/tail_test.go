package activity

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// countingReaderAt counts ReadAt calls so tests can assert that a tail query
// does not scan the whole file.
type countingReaderAt struct {
	data  []byte
	reads int
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	c.reads++
	if off >= int64(len(c.data)) {
		return 0, io.EOF
	}
	n := copy(p, c.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func logOf(lines int) []byte {
	var b strings.Builder
	for i := 1; i <= lines; i++ {
		fmt.Fprintf(&b, "line-%03d\n", i)
	}
	return []byte(b.String())
}

func TestTail_LastNInOrder(t *testing.T) {
	data := logOf(400)
	r := &countingReaderAt{data: data}

	got, err := tail(r, int64(len(data)), 25, 512)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 25 {
		t.Fatalf("len = %d, want 25", len(got))
	}
	for i, line := range got {
		want := fmt.Sprintf("line-%03d", 400-25+1+i)
		if line != want {
			t.Errorf("got[%d] = %q, want %q", i, line, want)
		}
	}
}

func TestTail_DoesNotReadWholeFile(t *testing.T) {
	data := logOf(400) // 9 bytes per line → 3600 bytes
	r := &countingReaderAt{data: data}

	if _, err := tail(r, int64(len(data)), 25, 512); err != nil {
		t.Fatalf("tail: %v", err)
	}
	// 25 lines fit comfortably in one 512-byte block; allow a little slack
	// for boundary spill but nothing close to the 8 reads a full scan costs.
	if r.reads > 2 {
		t.Errorf("tail cost %d reads, want <= 2", r.reads)
	}
}

func TestTail_FastPathSingleRead(t *testing.T) {
	data := logOf(10)
	r := &countingReaderAt{data: data}

	got, err := tail(r, int64(len(data)), 5, 8192)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 5 || got[4] != "line-010" {
		t.Errorf("fast path tail = %v", got)
	}
	if r.reads != 1 {
		t.Errorf("fast path cost %d reads, want 1", r.reads)
	}
}

func TestTail_LineSpanningBlockBoundary(t *testing.T) {
	// A long line straddling two blocks must be reassembled, not split.
	long := strings.Repeat("x", 600)
	data := []byte("first\n" + long + "\nlast\n")
	r := &countingReaderAt{data: data}

	got, err := tail(r, int64(len(data)), 3, 512)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0] != "first" || got[1] != long || got[2] != "last" {
		t.Errorf("boundary-spanning line mangled: lens = %d/%d/%d",
			len(got[0]), len(got[1]), len(got[2]))
	}
}

func TestTail_MoreThanAvailable(t *testing.T) {
	data := logOf(3)
	r := &countingReaderAt{data: data}
	got, err := tail(r, int64(len(data)), 10, 512)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestTail_EmptyAndZero(t *testing.T) {
	r := &countingReaderAt{}
	if got, _ := tail(r, 0, 5, 512); got != nil {
		t.Errorf("tail of empty file = %v, want nil", got)
	}
	if got, _ := tail(r, 100, 0, 512); got != nil {
		t.Errorf("tail of 0 lines = %v, want nil", got)
	}
}

func TestTailLines_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "activity.log")
	if err := os.WriteFile(path, logOf(40), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := TailLines(path, 4)
	if err != nil {
		t.Fatalf("TailLines: %v", err)
	}
	want := []string{"line-037", "line-038", "line-039", "line-040"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
