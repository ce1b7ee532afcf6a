// Package search maintains a full-text index over tasks and epics.
//
// It uses SQLite with FTS5 so queries like "parser panic" rank matching
// tasks by relevance instead of scanning titles for substrings. The index
// is a derived structure: the JSON files under the project root stay the
// source of truth, and the daemon rebuilds the index from a store snapshot
// on startup. Losing or deleting the database costs nothing but a rebuild.
package search

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/HendryAvila/foreman/internal/plan"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Config holds index configuration.
type Config struct {
	DataDir    string
	MaxResults int
}

// DefaultConfig returns the default index configuration rooted under the
// project directory.
func DefaultConfig(root string) Config {
	return Config{
		DataDir:    filepath.Join(root, ".index"),
		MaxResults: 50,
	}
}

// Hit is one ranked search result.
type Hit struct {
	TaskID string  `json:"taskId"`
	EpicID string  `json:"epicId"`
	Title  string  `json:"title"`
	Status string  `json:"status"`
	Rank   float64 `json:"rank"`
}

// Index is the FTS5-backed task index.
type Index struct {
	db  *sql.DB
	cfg Config
}

// Open creates the data directory if needed, opens SQLite with WAL mode,
// and creates the schema.
func Open(cfg Config) (*Index, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("search: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(cfg.DataDir, "search.db"))
	if err != nil {
		return nil, fmt.Errorf("search: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("search: pragma %q: %w", p, err)
		}
	}

	idx := &Index{db: db, cfg: cfg}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("search: migration: %w", err)
	}
	return idx, nil
}

// Close closes the underlying database connection.
func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) migrate() error {
	schema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS tasks_fts USING fts5(
			task_id UNINDEXED,
			epic_id UNINDEXED,
			status  UNINDEXED,
			title,
			description,
			plan_text
		);
	`
	_, err := i.db.Exec(schema)
	return err
}

// Rebuild replaces the whole index with the given tasks. The daemon calls
// this on startup and whenever the store has mutated since the last query,
// so the index can never drift permanently from the files.
func (i *Index) Rebuild(tasks []*plan.Task) error {
	tx, err := i.db.Begin()
	if err != nil {
		return fmt.Errorf("search: rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tasks_fts`); err != nil {
		return fmt.Errorf("search: rebuild clear: %w", err)
	}
	for _, t := range tasks {
		var planText strings.Builder
		for _, step := range t.Plan {
			planText.WriteString(step.Description)
			planText.WriteString("\n")
		}
		if _, err := tx.Exec(
			`INSERT INTO tasks_fts(task_id, epic_id, status, title, description, plan_text)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.EpicID, string(t.Status), t.Title, t.Description, planText.String(),
		); err != nil {
			return fmt.Errorf("search: rebuild task %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// Options filters a search.
type Options struct {
	EpicID string
	Status string
	Limit  int
}

// Search runs an FTS5 match over titles, descriptions, and plan text,
// ranked by relevance. An empty query returns nothing; callers list
// instead of searching when they want everything.
func (i *Index) Search(query string, opts Options) ([]Hit, error) {
	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 || limit > i.cfg.MaxResults {
		limit = i.cfg.MaxResults
	}

	sqlStr := `
		SELECT task_id, epic_id, status, title, rank
		FROM tasks_fts
		WHERE tasks_fts MATCH ?
	`
	args := []any{ftsQuery}
	if opts.EpicID != "" {
		sqlStr += " AND epic_id = ?"
		args = append(args, opts.EpicID)
	}
	if opts.Status != "" {
		sqlStr += " AND status = ?"
		args = append(args, opts.Status)
	}
	sqlStr += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := i.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.TaskID, &h.EpicID, &h.Status, &h.Title, &h.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// sanitizeFTS quotes each word so user input can never break FTS5 query
// syntax.
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.Trim(w, `"`)
		if w == "" {
			continue
		}
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}
