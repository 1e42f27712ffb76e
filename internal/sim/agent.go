package sim

// AgentID is a unique identifier for an agent within one simulation.
type AgentID uint64

// Group identifies which population group an agent belongs to.
// Groups are numbered 0..ngroups-1; GroupVacant marks an empty cell in
// snapshots.
type Group int

// GroupVacant is the snapshot value for a cell with no occupant.
const GroupVacant Group = -1

// Agent is a simulated resident: it belongs to one group, holds a happiness
// threshold, and occupies exactly one cell at a time.
type Agent struct {
	ID        AgentID
	Group     Group
	Threshold float64 // Minimum same-group fraction among occupied neighbors.

	// Home is the currently occupied cell. Never nil once the agent has
	// been placed; Home.Occupant always points back at the agent.
	Home *Cell
}

// Unhappy reports whether the agent wants to move, based on the group
// make-up of its occupied neighbor cells. Vacant neighbors are ignored.
// An agent with no occupied neighbors has no basis for dissatisfaction and
// counts as happy.
func (a *Agent) Unhappy() bool {
	same := 0
	diff := 0
	for _, n := range a.Home.Neighbors {
		if n.Occupant == nil {
			continue
		}
		if n.Occupant.Group == a.Group {
			same++
		} else {
			diff++
		}
	}
	if same+diff == 0 {
		return false
	}
	ratio := float64(same) / float64(same+diff)
	return ratio < a.Threshold
}

// MoveTo relocates the agent to a new cell: the old home (if any) is
// vacated, the new cell's occupant is set, and the agent's home reference
// is updated. The caller keeps the vacancy pool consistent.
func (a *Agent) MoveTo(cell *Cell) {
	if a.Home != nil {
		a.Home.Occupant = nil
	}
	cell.Occupant = a
	a.Home = cell
}
