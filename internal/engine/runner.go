// Package engine provides the paced run loop that drives a simulation
// step-by-step in serve mode.
package engine

import (
	"log/slog"
	"time"
)

// Runner repeatedly invokes a step callback at a configurable pace until
// the callback reports completion or Stop is called.
type Runner struct {
	Speed    float64       // Multiplier: 1.0 = one step per Interval, 0 = paused.
	Interval time.Duration // Base step interval (default 1 second).
	Running  bool

	// OnStep advances the simulation by one step and returns true when
	// the run is finished (converged or step budget exhausted).
	OnStep func() (done bool)

	stop chan struct{}
}

// NewRunner creates a runner with default pacing.
func NewRunner() *Runner {
	return &Runner{
		Speed:    1.0,
		Interval: time.Second,
		stop:     make(chan struct{}, 1),
	}
}

// Run starts the run loop. Blocks until the step callback reports
// completion or Stop is called.
func (r *Runner) Run() {
	r.Running = true
	slog.Info("run loop started", "interval", r.Interval, "speed", r.Speed)

	for r.Running {
		select {
		case <-r.stop:
			r.Running = false
			continue
		default:
		}

		if r.Speed <= 0 {
			// Paused. Check again shortly.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		if done := r.OnStep(); done {
			r.Running = false
			continue
		}

		// Sleep for the remainder of the step interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(r.Interval) / r.Speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("run loop stopped")
}

// Stop halts the run loop.
func (r *Runner) Stop() {
	select {
	case r.stop <- struct{}{}:
	default:
	}
}
