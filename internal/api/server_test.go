package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/talgya/schelling/internal/sim"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, err := sim.New(sim.Params{
		NX:        10,
		NY:        10,
		NGroups:   2,
		Breakdown: []float64{0.4, 0.4},
		Threshold: 0.3,
		MaxSteps:  100,
		Seed:      42,
	})
	if err != nil {
		t.Fatalf("sim.New() error = %v", err)
	}
	srv := &Server{Sim: s, AdminKey: "secret"}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d, want 200", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestHandleStatus(t *testing.T) {
	_, ts := newTestServer(t)

	var status struct {
		Step      int  `json:"step"`
		Converged bool `json:"converged"`
		Agents    int  `json:"agents"`
		Vacant    int  `json:"vacant"`
	}
	getJSON(t, ts.URL+"/api/v1/status", &status)

	if status.Step != 0 {
		t.Errorf("step = %d, want 0 before any stepping", status.Step)
	}
	if status.Agents != 80 {
		t.Errorf("agents = %d, want 80", status.Agents)
	}
	if status.Vacant != 20 {
		t.Errorf("vacant = %d, want 20", status.Vacant)
	}
}

func TestHandleSnapshot(t *testing.T) {
	_, ts := newTestServer(t)

	var snap struct {
		NX    int `json:"nx"`
		NY    int `json:"ny"`
		Cells []struct {
			X     int `json:"x"`
			Y     int `json:"y"`
			Group int `json:"group"`
		} `json:"cells"`
	}
	getJSON(t, ts.URL+"/api/v1/snapshot", &snap)

	if snap.NX != 10 || snap.NY != 10 {
		t.Errorf("snapshot size = %dx%d, want 10x10", snap.NX, snap.NY)
	}
	if len(snap.Cells) != 80 {
		t.Errorf("snapshot cells = %d, want 80", len(snap.Cells))
	}
	for _, c := range snap.Cells {
		if c.Group != 0 && c.Group != 1 {
			t.Fatalf("cell (%d,%d) has group %d, want 0 or 1", c.X, c.Y, c.Group)
		}
	}
}

func TestHandleStepRequiresAuth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/step", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated POST /step status = %d, want 401", resp.StatusCode)
	}
}

func TestHandleStepAdvancesSimulation(t *testing.T) {
	srv, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/step", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /step status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Step int `json:"step"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Step != 1 {
		t.Errorf("step after one POST = %d, want 1", body.Step)
	}
	if srv.Sim.StepCount() != 1 {
		t.Errorf("simulation step count = %d, want 1", srv.Sim.StepCount())
	}
}

func TestHandleSpeedValidatesBody(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Runner = nil

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/speed", strings.NewReader(`{"speed": 2}`))
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("POST /speed with no runner status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleHistoryWithoutDB(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/history")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /history with no db status = %d, want 404", resp.StatusCode)
	}
}
