// Package sim implements the Schelling segregation model: a bounded
// rectangular grid of cells, a population of group-tagged agents, and the
// step loop that relocates unhappy agents until the city settles.
package sim

import "fmt"

// Coord represents a position on the rectangular grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Cell is a single addressable grid location. It holds at most one occupant
// and a neighbor list computed once at grid construction.
type Cell struct {
	Coord Coord

	// Neighbors are the cells within Chebyshev distance 1, excluding the
	// cell itself. Populated by linkNeighbors and immutable afterwards.
	Neighbors []*Cell

	// Occupant is the agent living here, or nil when the cell is vacant.
	// Maintained by Agent.MoveTo.
	Occupant *Agent
}

// Vacant returns true if no agent occupies the cell.
func (c *Cell) Vacant() bool {
	return c.Occupant == nil
}

// Grid holds the complete cell lattice keyed by coordinate.
type Grid struct {
	Cells map[Coord]*Cell
	NX    int
	NY    int
}

// NewGrid creates an nx × ny grid with neighbor lists precomputed.
// Non-positive dimensions yield an empty grid.
func NewGrid(nx, ny int) *Grid {
	g := &Grid{
		Cells: make(map[Coord]*Cell, nx*ny),
		NX:    nx,
		NY:    ny,
	}
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			coord := Coord{X: x, Y: y}
			g.Cells[coord] = &Cell{Coord: coord}
		}
	}
	g.linkNeighbors()
	return g
}

// linkNeighbors fills each cell's neighbor list with the existing cells in
// its 8-neighborhood. Runs once, after all cells exist, so the lists can
// reference the final cell objects. Boundary cells simply get fewer
// neighbors; there is no wraparound.
func (g *Grid) linkNeighbors() {
	for x := 0; x < g.NX; x++ {
		for y := 0; y < g.NY; y++ {
			cell := g.Cells[Coord{X: x, Y: y}]
			for dx := -1; dx <= 1; dx++ {
				for dy := -1; dy <= 1; dy++ {
					if dx == 0 && dy == 0 {
						continue
					}
					if n, ok := g.Cells[Coord{X: x + dx, Y: y + dy}]; ok {
						cell.Neighbors = append(cell.Neighbors, n)
					}
				}
			}
		}
	}
}

// Get returns the cell at the given coordinate, or nil if out of bounds.
func (g *Grid) Get(coord Coord) *Cell {
	return g.Cells[coord]
}

// CellCount returns the total number of cells in the grid.
func (g *Grid) CellCount() int {
	return len(g.Cells)
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, cells=%d)", g.NX, g.NY, g.CellCount())
}
