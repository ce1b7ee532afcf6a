package activity

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

func testLog(t *testing.T, opts Options) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	return Open(dir, opts), dir
}

func TestAppendAndTail(t *testing.T) {
	l, _ := testLog(t, Options{})
	for _, evt := range []string{"TASK_CREATED", "TASK_UPDATED", "TASK_APPROVED"} {
		err := l.Append(Event{Event: evt, TaskID: "task-123", Payload: map[string]any{"by": "qa"}})
		if err != nil {
			t.Fatalf("Append(%s): %v", evt, err)
		}
	}

	events, err := l.Tail(2)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Event != "TASK_UPDATED" || events[1].Event != "TASK_APPROVED" {
		t.Errorf("tail order wrong: %s, %s", events[0].Event, events[1].Event)
	}
	if events[1].Timestamp == "" {
		t.Error("Append should stamp events")
	}
}

func TestTail_MissingFile(t *testing.T) {
	l, _ := testLog(t, Options{})
	events, err := l.Tail(10)
	if err != nil || events != nil {
		t.Errorf("Tail of missing file = (%v, %v), want (nil, nil)", events, err)
	}
}

func TestTail_SkipsMalformedLines(t *testing.T) {
	l, _ := testLog(t, Options{})
	if err := l.Append(Event{Event: "EPIC_CREATED"}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(l.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n")
	f.Close()
	if err := l.Append(Event{Event: "EPIC_UPDATED"}); err != nil {
		t.Fatal(err)
	}

	events, err := l.Tail(10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2 (corrupt line skipped)", len(events))
	}
}

func TestRotate_CompressesAndResetsLive(t *testing.T) {
	l, dir := testLog(t, Options{MaxBytes: 1 << 20})
	for i := 0; i < 20; i++ {
		if err := l.Append(Event{Event: "PING", WorkerID: "worker-abc"}); err != nil {
			t.Fatal(err)
		}
	}
	original, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}

	if err := l.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	// Generation 1 must be a valid gzip of the original content.
	gzPath := filepath.Join(dir, FileName+".1.gz")
	raw, err := os.ReadFile(gzPath)
	if err != nil {
		t.Fatalf("reading generation 1: %v", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("generation 1 is not valid gzip: %v", err)
	}
	decompressed, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompressing: %v", err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Error("decompressed content differs from the original log")
	}

	// The live file was renamed away; no snapshot lingers; the next append
	// starts a fresh file.
	if _, err := os.Stat(l.Path()); !os.IsNotExist(err) {
		t.Errorf("live log should be gone after rotation, stat err = %v", err)
	}
	if _, err := os.Stat(l.Path() + ".rotating"); !os.IsNotExist(err) {
		t.Errorf("rotation snapshot should be removed, stat err = %v", err)
	}
	if err := l.Append(Event{Event: "PONG"}); err != nil {
		t.Fatal(err)
	}
	events, err := l.Tail(10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(events) != 1 || events[0].Event != "PONG" {
		t.Errorf("fresh live log = %v, want just PONG", events)
	}
}

func TestRotate_ConcurrentAppendsNeverLost(t *testing.T) {
	l, dir := testLog(t, Options{MaxBytes: 1 << 30, Retain: 100})

	const appends = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < appends; i++ {
			if err := l.Append(Event{Event: "TASK_UPDATED", TaskID: "task-race"}); err != nil {
				t.Errorf("Append: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := l.Rotate(); err != nil {
				t.Errorf("Rotate: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	// Every append survives somewhere: the live file or a generation.
	total := 0
	if data, err := os.ReadFile(l.Path()); err == nil {
		total += strings.Count(string(data), "\n")
	}
	for gen := 1; gen <= 100; gen++ {
		path := filepath.Join(dir, fmt.Sprintf("%s.%d.gz", FileName, gen))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		total += strings.Count(gunzip(t, path), "\n")
	}
	if total != appends {
		t.Errorf("survivors = %d, want %d", total, appends)
	}
}

func TestRotate_ResumesLeftoverSnapshot(t *testing.T) {
	l, _ := testLog(t, Options{})

	// A previous rotation renamed the live file but died before compressing.
	snap := l.Path() + ".rotating"
	if err := os.WriteFile(snap, []byte(`{"event":"ORPHANED"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(Event{Event: "LIVE_EVENT"}); err != nil {
		t.Fatal(err)
	}

	if err := l.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	if !strings.Contains(gunzip(t, l.Path()+".1.gz"), "ORPHANED") {
		t.Error("generation 1 should hold the orphaned snapshot's events")
	}
	if _, err := os.Stat(snap); !os.IsNotExist(err) {
		t.Error("snapshot should be removed after being compressed")
	}
	// The live file was not rotated by the recovery pass.
	events, err := l.Tail(10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(events) != 1 || events[0].Event != "LIVE_EVENT" {
		t.Errorf("live log = %v, want just LIVE_EVENT", events)
	}
}

func TestRotate_ShiftsGenerationsAndDropsOldest(t *testing.T) {
	l, dir := testLog(t, Options{Retain: 2})

	write := func(marker string) {
		if err := l.Append(Event{Event: marker}); err != nil {
			t.Fatal(err)
		}
	}
	gen := func(n int) string {
		return fmt.Sprintf("%s.%d.gz", filepath.Join(dir, FileName), n)
	}

	write("FIRST")
	if err := l.Rotate(); err != nil {
		t.Fatal(err)
	}
	write("SECOND")
	if err := l.Rotate(); err != nil {
		t.Fatal(err)
	}
	write("THIRD")
	if err := l.Rotate(); err != nil {
		t.Fatal(err)
	}

	// Retain=2: generation 1 holds THIRD, generation 2 holds SECOND, FIRST
	// is gone.
	if !strings.Contains(gunzip(t, gen(1)), "THIRD") {
		t.Error("generation 1 should hold the newest rotation")
	}
	if !strings.Contains(gunzip(t, gen(2)), "SECOND") {
		t.Error("generation 2 should hold the previous rotation")
	}
	if _, err := os.Stat(gen(3)); !os.IsNotExist(err) {
		t.Error("generation beyond the retention count should not exist")
	}
}

func TestRotate_EmptyFileNoop(t *testing.T) {
	l, dir := testLog(t, Options{})
	if err := l.Rotate(); err != nil {
		t.Fatalf("Rotate on missing file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName+".1.gz")); !os.IsNotExist(err) {
		t.Error("rotation of a missing file should produce no generation")
	}
}

func TestAppend_TriggersBackgroundRotation(t *testing.T) {
	l, dir := testLog(t, Options{MaxBytes: 64})
	for i := 0; i < 5; i++ {
		if err := l.Append(Event{Event: "TASK_UPDATED", TaskID: "task-xyz"}); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(filepath.Join(dir, FileName+".1.gz")); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("no rotation generation appeared after exceeding the threshold")
}

func gunzip(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("gzip %s: %v", path, err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress %s: %v", path, err)
	}
	return string(data)
}
