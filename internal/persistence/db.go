// Package persistence provides SQLite-based run history storage: one row
// per run, per-step statistics, and periodic grid snapshots for external
// renderers.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/schelling/internal/sim"
)

// DB wraps a SQLite connection for run history persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		nx INTEGER NOT NULL,
		ny INTEGER NOT NULL,
		ngroups INTEGER NOT NULL,
		breakdown_json TEXT NOT NULL,
		threshold REAL NOT NULL,
		seed INTEGER NOT NULL,
		max_steps INTEGER NOT NULL,
		steps INTEGER NOT NULL DEFAULT 0,
		final_moved INTEGER NOT NULL DEFAULT 0,
		converged INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS steps (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		unhappy INTEGER NOT NULL,
		moved INTEGER NOT NULL,
		unmovable INTEGER NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		grid_json TEXT NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id);
	CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is one recorded simulation run.
type Run struct {
	ID            string  `db:"id" json:"id"`
	CreatedAt     string  `db:"created_at" json:"created_at"`
	NX            int     `db:"nx" json:"nx"`
	NY            int     `db:"ny" json:"ny"`
	NGroups       int     `db:"ngroups" json:"ngroups"`
	BreakdownJSON string  `db:"breakdown_json" json:"-"`
	Threshold     float64 `db:"threshold" json:"threshold"`
	Seed          int64   `db:"seed" json:"seed"`
	MaxSteps      int     `db:"max_steps" json:"max_steps"`
	Steps         int     `db:"steps" json:"steps"`
	FinalMoved    int     `db:"final_moved" json:"final_moved"`
	Converged     bool    `db:"converged" json:"converged"`
}

// StepRow is one recorded step of a run.
type StepRow struct {
	RunID     string `db:"run_id" json:"-"`
	Step      int    `db:"step" json:"step"`
	Unhappy   int    `db:"unhappy" json:"unhappy"`
	Moved     int    `db:"moved" json:"moved"`
	Unmovable int    `db:"unmovable" json:"unmovable"`
}

// CreateRun registers a new run and returns its generated ID.
func (db *DB) CreateRun(p sim.Params, seed int64) (string, error) {
	id := uuid.NewString()
	breakdown, err := json.Marshal(p.Breakdown)
	if err != nil {
		return "", fmt.Errorf("marshal breakdown: %w", err)
	}

	_, err = db.conn.Exec(`INSERT INTO runs
		(id, created_at, nx, ny, ngroups, breakdown_json, threshold, seed, max_steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), p.NX, p.NY, p.NGroups,
		string(breakdown), p.Threshold, seed, p.MaxSteps,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	slog.Info("run registered", "run_id", id, "grid", fmt.Sprintf("%dx%d", p.NX, p.NY), "seed", seed)
	return id, nil
}

// SaveStep records one step's statistics.
func (db *DB) SaveStep(runID string, st sim.StepStats) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO steps (run_id, step, unhappy, moved, unmovable) VALUES (?, ?, ?, ?, ?)",
		runID, st.Step, st.Unhappy, st.Moved, st.Unmovable,
	)
	if err != nil {
		return fmt.Errorf("insert step %d: %w", st.Step, err)
	}
	return nil
}

// SaveSnapshot stores a grid snapshot as JSON.
func (db *DB) SaveSnapshot(runID string, snap sim.Snapshot) error {
	payload := struct {
		NX    int                `json:"nx"`
		NY    int                `json:"ny"`
		Step  int                `json:"step"`
		Cells []sim.SnapshotCell `json:"cells"`
	}{snap.NX, snap.NY, snap.Step, snap.Cells()}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = db.conn.Exec(
		"INSERT OR REPLACE INTO snapshots (run_id, step, grid_json) VALUES (?, ?, ?)",
		runID, snap.Step, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot step %d: %w", snap.Step, err)
	}
	return nil
}

// FinishRun records the run outcome.
func (db *DB) FinishRun(runID string, res sim.RunResult) error {
	converged := 0
	if res.Converged {
		converged = 1
	}
	_, err := db.conn.Exec(
		"UPDATE runs SET steps = ?, final_moved = ?, converged = ? WHERE id = ?",
		res.Steps, res.FinalMoved, converged, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun loads one run by ID.
func (db *DB) GetRun(runID string) (*Run, error) {
	var run Run
	if err := db.conn.Get(&run, "SELECT * FROM runs WHERE id = ?", runID); err != nil {
		return nil, err
	}
	return &run, nil
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT * FROM runs ORDER BY created_at DESC LIMIT ?", limit)
	return runs, err
}

// StepHistory returns a run's per-step statistics in order.
func (db *DB) StepHistory(runID string) ([]StepRow, error) {
	var rows []StepRow
	err := db.conn.Select(&rows,
		"SELECT * FROM steps WHERE run_id = ? ORDER BY step", runID)
	return rows, err
}

// LoadSnapshot returns the stored snapshot JSON for a run step.
func (db *DB) LoadSnapshot(runID string, step int) ([]byte, error) {
	var data string
	err := db.conn.Get(&data,
		"SELECT grid_json FROM snapshots WHERE run_id = ? AND step = ?", runID, step)
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// LatestSnapshot returns the most recent stored snapshot for a run.
func (db *DB) LatestSnapshot(runID string) ([]byte, error) {
	var data string
	err := db.conn.Get(&data,
		"SELECT grid_json FROM snapshots WHERE run_id = ? ORDER BY step DESC LIMIT 1", runID)
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}
