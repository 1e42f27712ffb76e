// Package api provides the HTTP API for observing and driving a running
// simulation. GET endpoints are public (read-only observation); POST
// endpoints require a bearer token.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/talgya/schelling/internal/engine"
	"github.com/talgya/schelling/internal/observability"
	"github.com/talgya/schelling/internal/persistence"
	"github.com/talgya/schelling/internal/sim"
)

// Server serves simulation state over HTTP and orchestrates stepping: the
// run loop and the manual step endpoint both go through StepOnce, which is
// the only writer of simulation state while serving.
type Server struct {
	Sim     *sim.Simulation
	Runner  *engine.Runner
	DB      *persistence.DB           // Optional; nil disables history endpoints.
	Metrics *observability.Collector  // Optional.
	RunID   string

	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// SnapshotEvery persists a snapshot every N steps (0 = final only).
	SnapshotEvery int

	// mu serializes simulation access: the core is single-threaded, so
	// HTTP readers and the stepping goroutine take turns.
	mu sync.Mutex
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/step", s.adminOnly(s.handleStep))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}
	return mux
}

// StepOnce advances the simulation by one step, recording statistics and
// snapshots. Returns true when the run is finished (converged or out of
// steps). Wired as the Runner's step callback.
func (s *Server) StepOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Sim.Converged() || s.Sim.StepCount() >= s.Sim.MaxSteps() {
		return true
	}

	st := s.Sim.Step()
	slog.Info("step complete",
		"step", st.Step,
		"unhappy", st.Unhappy,
		"moved", st.Moved,
		"unmovable", st.Unmovable,
	)
	s.Metrics.ObserveStep(st.Unhappy, st.Moved, st.Unmovable, s.Sim.VacantCount())
	s.Metrics.SetConverged(s.Sim.Converged())

	if s.DB != nil {
		if err := s.DB.SaveStep(s.RunID, st); err != nil {
			slog.Error("save step failed", "error", err)
		}
		if s.SnapshotEvery > 0 && st.Step%s.SnapshotEvery == 0 {
			if err := s.DB.SaveSnapshot(s.RunID, s.Sim.Snapshot()); err != nil {
				slog.Error("save snapshot failed", "error", err)
			}
		}
	}

	done := s.Sim.Converged() || s.Sim.StepCount() >= s.Sim.MaxSteps()
	if done {
		s.finishLocked(st)
	}
	return done
}

// finishLocked records the run outcome. Caller holds mu.
func (s *Server) finishLocked(last sim.StepStats) {
	res := sim.RunResult{
		Steps:      s.Sim.StepCount(),
		FinalMoved: last.Moved,
		Converged:  s.Sim.Converged(),
	}
	slog.Info("run finished", "steps", res.Steps, "converged", res.Converged)
	if s.DB != nil {
		if err := s.DB.SaveSnapshot(s.RunID, s.Sim.Snapshot()); err != nil {
			slog.Error("save final snapshot failed", "error", err)
		}
		if err := s.DB.FinishRun(s.RunID, res); err != nil {
			slog.Error("finish run failed", "error", err)
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := map[string]any{
		"run_id":    s.RunID,
		"step":      s.Sim.StepCount(),
		"max_steps": s.Sim.MaxSteps(),
		"converged": s.Sim.Converged(),
		"agents":    len(s.Sim.Agents),
		"vacant":    s.Sim.VacantCount(),
		"unhappy":   s.Sim.UnhappyCount(),
		"seed":      s.Sim.Seed(),
	}
	s.mu.Unlock()

	if s.Runner != nil {
		status["speed"] = s.Runner.Speed
		status["running"] = s.Runner.Running
	}
	writeJSON(w, status)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snap := s.Sim.Snapshot()
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"nx":    snap.NX,
		"ny":    snap.NY,
		"step":  snap.Step,
		"cells": snap.Cells(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "no database configured", http.StatusNotFound)
		return
	}
	rows, err := s.DB.StepHistory(s.RunID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "no database configured", http.StatusNotFound)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.DB.RecentRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

// handleStep advances the simulation one step on demand, for driving a
// paused run manually.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	done := s.StepOnce()
	s.mu.Lock()
	step := s.Sim.StepCount()
	converged := s.Sim.Converged()
	s.mu.Unlock()
	writeJSON(w, map[string]any{
		"step":      step,
		"converged": converged,
		"done":      done,
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Runner == nil {
		http.Error(w, "no run loop active", http.StatusNotFound)
		return
	}

	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 100 {
		http.Error(w, "speed out of range [0, 100]", http.StatusBadRequest)
		return
	}

	s.Runner.Speed = req.Speed
	slog.Info("speed changed", "speed", req.Speed)
	writeJSON(w, map[string]any{"speed": req.Speed})
}

// checkBearerToken returns true if the request has a valid admin bearer
// token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
