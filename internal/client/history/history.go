// Package history keeps a sqlite log of completed sync runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/notesync/notesync/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TEXT NOT NULL, -- RFC3339
    finished_at TEXT NOT NULL,
    mode TEXT NOT NULL,
    dry_run INTEGER NOT NULL,
    aborted INTEGER NOT NULL,
    abort_reason TEXT NOT NULL DEFAULT '',
    transfers INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    counts TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS sync_run_paths (
    run_id INTEGER NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    outcome TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_run_paths_run ON sync_run_paths(run_id);
CREATE INDEX IF NOT EXISTS idx_run_paths_path ON sync_run_paths(path);
`

var ErrNotOpen = errors.New("history not open")

// Run is one finished sync run.
type Run struct {
	ID          int64
	StartedAt   time.Time
	FinishedAt  time.Time
	Mode        string
	DryRun      bool
	Aborted     bool
	AbortReason string
	Transfers   int
	Failed      int
	Counts      map[string]int
}

func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// PathResult is what happened to one path during a run.
type PathResult struct {
	RunID   int64  `db:"run_id"`
	Path    string `db:"path"`
	Outcome string `db:"outcome"`
	Detail  string `db:"detail"`
}

type dbRun struct {
	ID          int64  `db:"id"`
	StartedAt   string `db:"started_at"`
	FinishedAt  string `db:"finished_at"`
	Mode        string `db:"mode"`
	DryRun      bool   `db:"dry_run"`
	Aborted     bool   `db:"aborted"`
	AbortReason string `db:"abort_reason"`
	Transfers   int    `db:"transfers"`
	Failed      int    `db:"failed"`
	Counts      string `db:"counts"`
}

type History struct {
	db *sqlx.DB
}

// Open opens or creates the history database at path. Use ":memory:" in tests.
func Open(path string) (*History, error) {
	conn, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &History{db: conn}, nil
}

func (h *History) Close() error {
	if h.db == nil {
		return ErrNotOpen
	}
	err := h.db.Close()
	h.db = nil
	return err
}

// Record stores a run and its per-path results and returns the run id.
func (h *History) Record(ctx context.Context, run *Run, paths []PathResult) (int64, error) {
	if h.db == nil {
		return 0, ErrNotOpen
	}

	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return 0, fmt.Errorf("encode counts: %w", err)
	}

	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, `INSERT INTO sync_runs
		(started_at, finished_at, mode, dry_run, aborted, abort_reason, transfers, failed, counts)
		VALUES (:started_at, :finished_at, :mode, :dry_run, :aborted, :abort_reason, :transfers, :failed, :counts)`,
		dbRun{
			StartedAt:   run.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt:  run.FinishedAt.UTC().Format(time.RFC3339),
			Mode:        run.Mode,
			DryRun:      run.DryRun,
			Aborted:     run.Aborted,
			AbortReason: run.AbortReason,
			Transfers:   run.Transfers,
			Failed:      run.Failed,
			Counts:      string(counts),
		})
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	for _, p := range paths {
		p.RunID = id
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO sync_run_paths (run_id, path, outcome, detail)
			VALUES (:run_id, :path, :outcome, :detail)`, p); err != nil {
			return 0, fmt.Errorf("insert path %s: %w", p.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	run.ID = id
	slog.Debug("history recorded", "run", id, "paths", len(paths))
	return id, nil
}

// Recent returns up to limit runs, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]*Run, error) {
	if h.db == nil {
		return nil, ErrNotOpen
	}

	var rows []dbRun
	if err := h.db.SelectContext(ctx, &rows, `SELECT id, started_at, finished_at, mode, dry_run, aborted,
		abort_reason, transfers, failed, counts FROM sync_runs ORDER BY id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	runs := make([]*Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toRun()
		if err != nil {
			slog.Warn("skipping corrupt history row", "run", row.ID, "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Last returns the newest run, or nil when nothing was recorded yet.
func (h *History) Last(ctx context.Context) (*Run, error) {
	runs, err := h.Recent(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// Paths returns the per-path results of a run.
func (h *History) Paths(ctx context.Context, runID int64) ([]PathResult, error) {
	if h.db == nil {
		return nil, ErrNotOpen
	}

	var paths []PathResult
	err := h.db.SelectContext(ctx, &paths,
		"SELECT run_id, path, outcome, detail FROM sync_run_paths WHERE run_id = ? ORDER BY path", runID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query paths of run %d: %w", runID, err)
	}
	return paths, nil
}

// Prune deletes everything but the newest keep runs.
func (h *History) Prune(ctx context.Context, keep int) (int64, error) {
	if h.db == nil {
		return 0, ErrNotOpen
	}

	res, err := h.db.ExecContext(ctx,
		"DELETE FROM sync_runs WHERE id NOT IN (SELECT id FROM sync_runs ORDER BY id DESC LIMIT ?)", keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func (r dbRun) toRun() (*Run, error) {
	started, err := time.Parse(time.RFC3339, r.StartedAt)
	if err != nil {
		return nil, err
	}
	finished, err := time.Parse(time.RFC3339, r.FinishedAt)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	if err := json.Unmarshal([]byte(r.Counts), &counts); err != nil {
		return nil, err
	}

	return &Run{
		ID:          r.ID,
		StartedAt:   started,
		FinishedAt:  finished,
		Mode:        r.Mode,
		DryRun:      r.DryRun,
		Aborted:     r.Aborted,
		AbortReason: r.AbortReason,
		Transfers:   r.Transfers,
		Failed:      r.Failed,
		Counts:      counts,
	}, nil
}
