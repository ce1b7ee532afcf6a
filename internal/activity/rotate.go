package activity

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Rotate snapshots the live log and compresses the snapshot into generation
// 1, shifting existing generations up by one and dropping the oldest beyond
// the retention count. The live file is swapped out by rename under the
// append lock, so an event is either in the snapshot or in the fresh live
// file, never lost between the two. Concurrent calls serialize: a rotation
// already in progress makes the second caller wait its turn.
func (l *Log) Rotate() error {
	l.rotateMu.Lock()
	defer l.rotateMu.Unlock()

	snap := l.snapshotPath()

	// A snapshot left behind by an interrupted run is finished first, so the
	// rename below can never clobber unrotated events.
	if _, err := os.Stat(snap); err == nil {
		return l.compressSnapshot(snap)
	}

	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat activity log: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	// Shift generations: .N.gz → .N+1.gz, oldest first. The generation at
	// the retention boundary is deleted rather than shifted.
	oldest := l.generation(l.opts.Retain)
	if _, err := os.Stat(oldest); err == nil {
		if err := os.Remove(oldest); err != nil {
			return fmt.Errorf("dropping oldest generation: %w", err)
		}
	}
	for gen := l.opts.Retain - 1; gen >= 1; gen-- {
		src := l.generation(gen)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, l.generation(gen+1)); err != nil {
			return fmt.Errorf("shifting generation %d: %w", gen, err)
		}
	}

	// Swap the live file out under the append lock. Appenders open the path
	// per append, so the next Append starts a fresh live file while the
	// snapshot is compressed without racing any writer.
	l.mu.Lock()
	err = os.Rename(l.path, snap)
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("snapshotting activity log: %w", err)
	}

	return l.compressSnapshot(snap)
}

// compressSnapshot turns one snapshot into generation 1 and removes it. On
// failure the snapshot stays on disk and the next rotation retries it.
func (l *Log) compressSnapshot(snap string) error {
	if err := l.compress(snap, l.generation(1)); err != nil {
		return err
	}
	if err := os.Remove(snap); err != nil {
		return fmt.Errorf("removing rotated snapshot: %w", err)
	}
	return nil
}

// snapshotPath is where the live file parks between rename and compression.
func (l *Log) snapshotPath() string {
	return l.path + ".rotating"
}

// generation returns the path of the nth rotated generation.
func (l *Log) generation(n int) string {
	return fmt.Sprintf("%s.%d.gz", l.path, n)
}

// compress streams src through gzip into dst, guarded by the configured
// timeout. The pipeline has exactly one teardown path: whichever of
// completion, error, or timeout settles first closes all three stages once,
// so a late failure can never write into an already-released stage.
func (l *Log) compress(src, dst string) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.opts.CompressTimeout)
	defer cancel()

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening log for compression: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		in.Close()
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	gz := gzip.NewWriter(out)

	var teardown sync.Once
	settle := func(keep bool) {
		teardown.Do(func() {
			gz.Close()
			in.Close()
			out.Close()
			if !keep {
				os.Remove(dst)
			}
		})
	}

	done := make(chan error, 1)
	go func() {
		_, copyErr := io.Copy(gz, in)
		if copyErr == nil {
			copyErr = gz.Close() // flush the gzip trailer before settling
		}
		done <- copyErr
	}()

	select {
	case err := <-done:
		if err != nil {
			settle(false)
			return fmt.Errorf("compressing activity log: %w", err)
		}
		settle(true)
		return nil
	case <-ctx.Done():
		settle(false)
		// Drain the copy goroutine; its write will fail fast against the
		// closed stages and must not leak.
		go func() { <-done }()
		return fmt.Errorf("compressing activity log: timeout after %s", l.opts.CompressTimeout)
	}
}

// WaitRotation blocks until no rotation is running, bounded by timeout.
// Used by shutdown so the daemon does not exit with a half-written
// generation.
func (l *Log) WaitRotation(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		l.rotateMu.Lock()
		close(done)
		l.rotateMu.Unlock()
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
