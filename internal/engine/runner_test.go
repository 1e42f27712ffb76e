package engine

import (
	"testing"
	"time"
)

func TestRunnerStopsWhenStepReportsDone(t *testing.T) {
	r := NewRunner()
	r.Interval = time.Millisecond

	calls := 0
	r.OnStep = func() bool {
		calls++
		return calls >= 3
	}

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after step callback reported done")
	}
	if calls != 3 {
		t.Errorf("step callback called %d times, want 3", calls)
	}
	if r.Running {
		t.Error("Running = true after loop exit")
	}
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	r.Interval = time.Millisecond
	r.OnStep = func() bool { return false }

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop()")
	}
}

func TestRunnerPausedDoesNotStep(t *testing.T) {
	r := NewRunner()
	r.Interval = time.Millisecond
	r.Speed = 0

	calls := 0
	r.OnStep = func() bool {
		calls++
		return false
	}

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop()")
	}
	if calls != 0 {
		t.Errorf("paused runner stepped %d times, want 0", calls)
	}
}
