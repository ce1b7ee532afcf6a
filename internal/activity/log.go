// Package activity implements the append-only activity log: one JSON object
// per line, one file per project root.
//
// Appends are synchronous and serialized; rotation (size-triggered gzip
// compression of the live file into numbered generations) runs in the
// background but never concurrently with itself. Tail queries read the file
// backwards in fixed-size blocks so a "last 25 events" question does not pay
// for a multi-megabyte history.
package activity

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the live log file name under a project root.
const FileName = "activity.log"

// Event is one immutable activity record.
type Event struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	ProjectID string         `json:"projectId,omitempty"`
	EpicID    string         `json:"epicId,omitempty"`
	TaskID    string         `json:"taskId,omitempty"`
	WorkerID  string         `json:"workerId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Options tunes rotation behavior. Zero values fall back to defaults.
type Options struct {
	// MaxBytes triggers rotation once the live file exceeds it.
	MaxBytes int64
	// Retain is how many compressed generations to keep.
	Retain int
	// CompressTimeout caps one compression run; a stalled filesystem must
	// not hang the daemon.
	CompressTimeout time.Duration
	Logger          *slog.Logger
}

const (
	defaultMaxBytes        = 5 << 20 // 5 MiB
	defaultRetain          = 3
	defaultCompressTimeout = 30 * time.Second
)

// Log is the append-only activity log for one project root.
type Log struct {
	path    string
	opts    Options
	logger  *slog.Logger
	timeNow func() time.Time

	mu sync.Mutex // serializes appends and size checks

	rotateMu sync.Mutex // serializes rotations; a second trigger waits
	rotating bool       // set under mu; suppresses duplicate triggers
}

// Open prepares the activity log under the given project root. The live file
// is created lazily on first append.
func Open(root string, opts Options) *Log {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Retain <= 0 {
		opts.Retain = defaultRetain
	}
	if opts.CompressTimeout <= 0 {
		opts.CompressTimeout = defaultCompressTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		path:    filepath.Join(root, FileName),
		opts:    opts,
		logger:  logger,
		timeNow: time.Now,
	}
}

// Path returns the live log file path.
func (l *Log) Path() string { return l.path }

// Append writes one event as a single NDJSON line and kicks off a background
// rotation when the file has outgrown the threshold.
func (l *Log) Append(ev Event) error {
	if ev.Timestamp == "" {
		ev.Timestamp = l.timeNow().UTC().Format(time.RFC3339)
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling activity event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	_, werr := f.Write(append(line, '\n'))
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("appending activity event: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("closing activity log: %w", cerr)
	}

	if info, err := os.Stat(l.path); err == nil && info.Size() > l.opts.MaxBytes && !l.rotating {
		l.rotating = true
		go l.rotateAsync()
	}
	return nil
}

// rotateAsync runs one rotation in the background and logs failures instead
// of surfacing them to the append path that triggered it.
func (l *Log) rotateAsync() {
	defer func() {
		l.mu.Lock()
		l.rotating = false
		l.mu.Unlock()
	}()
	if err := l.Rotate(); err != nil {
		l.logger.Warn("activity log rotation failed", "path", l.path, "error", err)
	}
}

// Tail returns the last n events in original (oldest-first) order. Lines
// that fail to parse are skipped with a warning; a corrupt line should cost
// one event, not the whole query.
func (l *Log) Tail(n int) ([]Event, error) {
	lines, err := TailLines(l.path, n)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	events := make([]Event, 0, len(lines))
	for _, line := range lines {
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			l.logger.Warn("skipping malformed activity line", "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
