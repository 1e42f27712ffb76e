package persistence

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/talgya/schelling/internal/sim"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testRunParams() sim.Params {
	return sim.Params{
		NX:        10,
		NY:        10,
		NGroups:   2,
		Breakdown: []float64{0.4, 0.5},
		Threshold: 0.3,
		MaxSteps:  100,
		Seed:      42,
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	id, err := db.CreateRun(testRunParams(), 42)
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if id == "" {
		t.Fatal("CreateRun() returned empty id")
	}

	steps := []sim.StepStats{
		{Step: 1, Unhappy: 30, Moved: 30},
		{Step: 2, Unhappy: 12, Moved: 12},
		{Step: 3, Unhappy: 0, Moved: 0},
	}
	for _, st := range steps {
		if err := db.SaveStep(id, st); err != nil {
			t.Fatalf("SaveStep(%d) error = %v", st.Step, err)
		}
	}

	if err := db.FinishRun(id, sim.RunResult{Steps: 3, FinalMoved: 0, Converged: true}); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	run, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Steps != 3 || !run.Converged {
		t.Errorf("run = steps %d converged %v, want 3 true", run.Steps, run.Converged)
	}
	if run.NX != 10 || run.NGroups != 2 || run.Seed != 42 {
		t.Errorf("run params not persisted: %+v", run)
	}

	history, err := db.StepHistory(id)
	if err != nil {
		t.Fatalf("StepHistory() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].Unhappy != 30 || history[2].Moved != 0 {
		t.Errorf("history rows wrong: %+v", history)
	}

	runs, err := db.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id {
		t.Errorf("RecentRuns() = %+v, want the one run", runs)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)

	s, err := sim.New(testRunParams())
	if err != nil {
		t.Fatalf("sim.New() error = %v", err)
	}
	id, err := db.CreateRun(testRunParams(), s.Seed())
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	snap := s.Snapshot()
	if err := db.SaveSnapshot(id, snap); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	data, err := db.LatestSnapshot(id)
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}

	var decoded struct {
		NX    int                `json:"nx"`
		NY    int                `json:"ny"`
		Step  int                `json:"step"`
		Cells []sim.SnapshotCell `json:"cells"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("stored snapshot is not valid JSON: %v", err)
	}
	if decoded.NX != 10 || decoded.NY != 10 {
		t.Errorf("snapshot size = %dx%d, want 10x10", decoded.NX, decoded.NY)
	}
	if len(decoded.Cells) != len(s.Agents) {
		t.Errorf("snapshot cells = %d, want %d", len(decoded.Cells), len(s.Agents))
	}

	if _, err := db.LoadSnapshot(id, snap.Step); err != nil {
		t.Errorf("LoadSnapshot(step=%d) error = %v", snap.Step, err)
	}
	if _, err := db.LoadSnapshot(id, 999); err == nil {
		t.Error("LoadSnapshot(missing step) = nil error, want error")
	}
}
