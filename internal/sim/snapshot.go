package sim

// Snapshot is a read-only view of the grid occupancy after some step: for
// every coordinate, either the occupant's group or vacancy. It is all an
// external renderer or reporter needs.
type Snapshot struct {
	NX   int `json:"nx"`
	NY   int `json:"ny"`
	Step int `json:"step"`

	// Occupants maps occupied coordinates to the occupant's group.
	// Coordinates absent from the map are vacant.
	Occupants map[Coord]Group `json:"-"`
}

// Snapshot captures the current occupancy of every cell. The returned value
// is detached from the simulation and stays valid across later steps.
func (s *Simulation) Snapshot() Snapshot {
	snap := Snapshot{
		NX:        s.Grid.NX,
		NY:        s.Grid.NY,
		Step:      s.step,
		Occupants: make(map[Coord]Group, len(s.Agents)),
	}
	for _, a := range s.Agents {
		snap.Occupants[a.Home.Coord] = a.Group
	}
	return snap
}

// GroupAt returns the group occupying a coordinate, or GroupVacant and
// false when the cell is empty.
func (sn Snapshot) GroupAt(coord Coord) (Group, bool) {
	g, ok := sn.Occupants[coord]
	if !ok {
		return GroupVacant, false
	}
	return g, true
}

// SnapshotCell is one occupied coordinate in a serialized snapshot.
type SnapshotCell struct {
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Group Group `json:"group"`
}

// Cells lists the occupied coordinates in deterministic x-major order, for
// JSON encoding and storage.
func (sn Snapshot) Cells() []SnapshotCell {
	cells := make([]SnapshotCell, 0, len(sn.Occupants))
	for x := 0; x < sn.NX; x++ {
		for y := 0; y < sn.NY; y++ {
			if g, ok := sn.Occupants[Coord{X: x, Y: y}]; ok {
				cells = append(cells, SnapshotCell{X: x, Y: y, Group: g})
			}
		}
	}
	return cells
}
