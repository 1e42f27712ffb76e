package sim

import (
	"fmt"
	"log/slog"
	"math/rand"
)

// DefaultMaxSteps bounds the step loop when the configuration does not say
// otherwise.
const DefaultMaxSteps = 100

// Params holds everything needed to construct a Simulation.
type Params struct {
	NX      int // Grid width.
	NY      int // Grid height.
	NGroups int // Number of population groups.

	// Breakdown[i] is the fraction of all cells seeded with group i agents.
	// Must have NGroups entries summing to at most 1; the remainder of the
	// grid stays vacant.
	Breakdown []float64

	// Threshold is the uniform happiness threshold, used when Thresholds
	// is nil.
	Threshold float64

	// Thresholds optionally assigns per-agent thresholds by seeding
	// position. Overrides Threshold when set.
	Thresholds ThresholdField

	// MaxSteps bounds the step loop. Zero means DefaultMaxSteps.
	MaxSteps int

	// Seed initializes the simulation's random source. Zero picks a
	// random seed.
	Seed int64
}

// breakdownSumSlack absorbs float accumulation error when checking that the
// breakdown fractions sum to at most 1.
const breakdownSumSlack = 1e-9

// Validate checks the parameters, returning the first configuration error.
func (p Params) Validate() error {
	if p.NX <= 0 || p.NY <= 0 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", p.NX, p.NY)
	}
	if p.NGroups <= 0 {
		return fmt.Errorf("ngroups must be positive, got %d", p.NGroups)
	}
	if len(p.Breakdown) != p.NGroups {
		return fmt.Errorf("breakdown has %d entries, want %d", len(p.Breakdown), p.NGroups)
	}
	sum := 0.0
	for i, f := range p.Breakdown {
		if f < 0 || f > 1 {
			return fmt.Errorf("breakdown[%d] = %g out of range [0,1]", i, f)
		}
		sum += f
	}
	if sum > 1+breakdownSumSlack {
		return fmt.Errorf("breakdown sums to %g, must not exceed 1", sum)
	}
	if p.Thresholds == nil && (p.Threshold < 0 || p.Threshold > 1) {
		return fmt.Errorf("happiness threshold %g out of range [0,1]", p.Threshold)
	}
	if p.MaxSteps < 0 {
		return fmt.Errorf("max steps must be positive, got %d", p.MaxSteps)
	}
	return nil
}

// StepStats summarizes one pass over the population.
type StepStats struct {
	Step      int `json:"step"`
	Unhappy   int `json:"unhappy"`   // Agents that wanted to move.
	Moved     int `json:"moved"`     // Agents actually relocated.
	Unmovable int `json:"unmovable"` // Unhappy agents with no vacant cell to take.
}

// RunResult reports the outcome of running the step loop to termination.
type RunResult struct {
	Steps      int  `json:"steps"`       // Total steps executed.
	FinalMoved int  `json:"final_moved"` // Relocations in the last step.
	Converged  bool `json:"converged"`   // True if a step moved nobody.
}

// Simulation owns the grid, the agent population, and the vacancy pool, and
// drives the relocation loop. It is single-threaded: one step completes
// fully before the next begins, and callers serialize access themselves.
type Simulation struct {
	Grid   *Grid
	Agents []*Agent

	// vacant holds every unoccupied cell. Together with the occupied
	// cells it partitions the grid; every relocation re-establishes the
	// partition within the same step.
	vacant []*Cell

	params    Params
	rng       *rand.Rand
	seed      int64
	step      int
	converged bool
}

// New validates the parameters, builds the grid, precomputes adjacency, and
// seeds the population. A configuration error means no simulation is
// created.
func New(p Params) (*Simulation, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.MaxSteps == 0 {
		p.MaxSteps = DefaultMaxSteps
	}

	seed := p.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	s := &Simulation{
		Grid:   NewGrid(p.NX, p.NY),
		params: p,
		rng:    rand.New(rand.NewSource(seed)),
		seed:   seed,
	}

	// Every cell starts vacant, in coordinate order so a fixed seed
	// reproduces the same draws.
	s.vacant = make([]*Cell, 0, s.Grid.CellCount())
	for x := 0; x < p.NX; x++ {
		for y := 0; y < p.NY; y++ {
			s.vacant = append(s.vacant, s.Grid.Get(Coord{X: x, Y: y}))
		}
	}

	if err := s.seedPopulation(); err != nil {
		return nil, err
	}

	slog.Info("simulation created",
		"grid", s.Grid.String(),
		"agents", len(s.Agents),
		"vacant", len(s.vacant),
		"seed", seed,
	)
	return s, nil
}

// seedPopulation places floor(breakdown[i] * cells) agents of each group in
// turn, each into a cell drawn uniformly without replacement from the
// vacancy pool.
func (s *Simulation) seedPopulation() error {
	total := s.Grid.CellCount()
	thresholds := s.params.Thresholds
	if thresholds == nil {
		thresholds = UniformThreshold(s.params.Threshold)
	}

	for g, frac := range s.params.Breakdown {
		count := int(frac * float64(total))
		if count > len(s.vacant) {
			return fmt.Errorf("group %d needs %d cells but only %d are vacant", g, count, len(s.vacant))
		}
		for i := 0; i < count; i++ {
			cell := s.drawVacant()
			a := &Agent{
				ID:        AgentID(len(s.Agents) + 1),
				Group:     Group(g),
				Threshold: thresholds.At(cell.Coord),
			}
			a.MoveTo(cell)
			s.Agents = append(s.Agents, a)
		}
	}
	return nil
}

// drawVacant removes and returns a uniformly random cell from the vacancy
// pool. The caller must ensure the pool is non-empty.
func (s *Simulation) drawVacant() *Cell {
	i := s.rng.Intn(len(s.vacant))
	cell := s.vacant[i]
	s.vacant[i] = s.vacant[len(s.vacant)-1]
	s.vacant = s.vacant[:len(s.vacant)-1]
	return cell
}

// Step advances the simulation by one pass over the population, in a fixed
// order. Each unhappy agent is relocated to a random vacant cell; moves
// made earlier in the pass are visible to agents evaluated later, since
// they change which cells are vacant. An unhappy agent facing an empty
// vacancy pool stays put and is counted unmovable.
func (s *Simulation) Step() StepStats {
	s.step++
	st := StepStats{Step: s.step}

	for _, a := range s.Agents {
		if !a.Unhappy() {
			continue
		}
		st.Unhappy++
		if len(s.vacant) == 0 {
			st.Unmovable++
			continue
		}
		i := s.rng.Intn(len(s.vacant))
		dest := s.vacant[i]
		old := a.Home
		a.MoveTo(dest)
		// The vacated cell takes the destination's pool slot, keeping the
		// occupied/vacant partition exact within the step.
		s.vacant[i] = old
		st.Moved++
	}

	if st.Moved == 0 {
		s.converged = true
	}
	return st
}

// Run drives the step loop until convergence (a step that moves nobody) or
// until the step budget is exhausted.
func (s *Simulation) Run() RunResult {
	var last StepStats
	for !s.converged && s.step < s.params.MaxSteps {
		last = s.Step()
		slog.Debug("step complete",
			"step", last.Step,
			"unhappy", last.Unhappy,
			"moved", last.Moved,
			"unmovable", last.Unmovable,
		)
	}
	res := RunResult{
		Steps:      s.step,
		FinalMoved: last.Moved,
		Converged:  s.converged,
	}
	slog.Info("run finished",
		"steps", res.Steps,
		"final_moved", res.FinalMoved,
		"converged", res.Converged,
	)
	return res
}

// Converged reports whether a full step has produced zero relocations.
func (s *Simulation) Converged() bool {
	return s.converged
}

// StepCount returns the number of steps executed so far.
func (s *Simulation) StepCount() int {
	return s.step
}

// MaxSteps returns the step budget the run loop honors.
func (s *Simulation) MaxSteps() int {
	return s.params.MaxSteps
}

// Seed returns the seed actually used by the random source, which differs
// from the configured seed only when that was zero.
func (s *Simulation) Seed() int64 {
	return s.seed
}

// VacantCount returns the current size of the vacancy pool.
func (s *Simulation) VacantCount() int {
	return len(s.vacant)
}

// UnhappyCount re-evaluates every agent against the current state without
// moving anyone. Useful for reporting between steps.
func (s *Simulation) UnhappyCount() int {
	n := 0
	for _, a := range s.Agents {
		if a.Unhappy() {
			n++
		}
	}
	return n
}
