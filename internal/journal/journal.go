// Package journal persists a history of filter runs to SQLite.
//
// Each completed session appends one row: when it ran, why it ended,
// the headline counters, and the full final report as JSON. The journal
// is what lets "is this keyboard getting worse?" be answered weeks later.
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"dechatter/internal/stats"
)

// Schema for the run-history journal.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    started_ns    INTEGER NOT NULL,
    finished_ns   INTEGER NOT NULL,
    exit_reason   TEXT NOT NULL,
    window_us     INTEGER NOT NULL,
    near_miss_us  INTEGER NOT NULL,
    runtime_us    INTEGER,
    processed     INTEGER NOT NULL,
    passed        INTEGER NOT NULL,
    dropped       INTEGER NOT NULL,
    report_json   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_ns);
`

// Run is one completed filter session.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	ExitReason string
	WindowUS   uint64
	NearMissUS uint64
	RuntimeUS  *uint64
	Processed  uint64
	Passed     uint64
	Dropped    uint64
	ReportJSON string
}

// FromSnapshot builds a Run record from a final stats snapshot.
func FromSnapshot(startedAt, finishedAt time.Time, exitReason string, snap stats.Snapshot) (Run, error) {
	report, err := json.Marshal(snap)
	if err != nil {
		return Run{}, fmt.Errorf("marshal report: %w", err)
	}

	run := Run{
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		ExitReason: exitReason,
		WindowUS:   snap.Meta.WindowUS,
		NearMissUS: snap.Meta.NearMissUS,
		Processed:  snap.Processed,
		Passed:     snap.Passed,
		Dropped:    snap.Dropped,
		ReportJSON: string(report),
	}
	if snap.RuntimeUS != nil {
		rt := *snap.RuntimeUS
		run.RuntimeUS = &rt
	}
	return run, nil
}

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// Journal is the SQLite run-history store. It is safe for concurrent
// use; the recording path and the shutdown path may touch it from
// different goroutines.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the journal database at the given path.
func Open(path string) (*Journal, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection. Further calls are no-ops.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Append inserts a run record and returns its ID.
func (j *Journal) Append(run Run) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return 0, ErrClosed
	}

	var runtimeUS sql.NullInt64
	if run.RuntimeUS != nil {
		runtimeUS = sql.NullInt64{Int64: int64(*run.RuntimeUS), Valid: true}
	}

	result, err := j.db.Exec(`
		INSERT INTO runs (started_ns, finished_ns, exit_reason, window_us, near_miss_us, runtime_us, processed, passed, dropped, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.ExitReason,
		int64(run.WindowUS), int64(run.NearMissUS), runtimeUS,
		int64(run.Processed), int64(run.Passed), int64(run.Dropped), run.ReportJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// Recent returns the most recent runs, newest first.
func (j *Journal) Recent(limit int) ([]Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil, ErrClosed
	}

	rows, err := j.db.Query(`
		SELECT id, started_ns, finished_ns, exit_reason, window_us, near_miss_us, runtime_us, processed, passed, dropped, report_json
		FROM runs
		ORDER BY started_ns DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedNs, finishedNs int64
		var windowUS, nearMissUS, processed, passed, dropped int64
		var runtimeUS sql.NullInt64
		if err := rows.Scan(&run.ID, &startedNs, &finishedNs, &run.ExitReason,
			&windowUS, &nearMissUS, &runtimeUS,
			&processed, &passed, &dropped, &run.ReportJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		run.StartedAt = time.Unix(0, startedNs)
		run.FinishedAt = time.Unix(0, finishedNs)
		run.WindowUS = uint64(windowUS)
		run.NearMissUS = uint64(nearMissUS)
		if runtimeUS.Valid {
			rt := uint64(runtimeUS.Int64)
			run.RuntimeUS = &rt
		}
		run.Processed = uint64(processed)
		run.Passed = uint64(passed)
		run.Dropped = uint64(dropped)

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
