package sim

import "testing"

func TestGridAdjacencyCounts(t *testing.T) {
	g := NewGrid(3, 3)

	tests := []struct {
		name  string
		coord Coord
		want  int
	}{
		{"center", Coord{X: 1, Y: 1}, 8},
		{"corner", Coord{X: 0, Y: 0}, 3},
		{"edge", Coord{X: 1, Y: 0}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell := g.Get(tt.coord)
			if cell == nil {
				t.Fatalf("Get(%v) = nil", tt.coord)
			}
			if len(cell.Neighbors) != tt.want {
				t.Errorf("neighbors = %d, want %d", len(cell.Neighbors), tt.want)
			}
		})
	}
}

func TestGridAdjacencyExcludesSelfAndOutOfBounds(t *testing.T) {
	g := NewGrid(3, 3)

	for coord, cell := range g.Cells {
		for _, n := range cell.Neighbors {
			if n == cell {
				t.Errorf("cell %v lists itself as a neighbor", coord)
			}
			if n.Coord.X < 0 || n.Coord.X >= 3 || n.Coord.Y < 0 || n.Coord.Y >= 3 {
				t.Errorf("cell %v has out-of-bounds neighbor %v", coord, n.Coord)
			}
			dx := n.Coord.X - coord.X
			dy := n.Coord.Y - coord.Y
			if dx < -1 || dx > 1 || dy < -1 || dy > 1 {
				t.Errorf("cell %v has non-adjacent neighbor %v", coord, n.Coord)
			}
		}
	}
}

func TestGridCellCount(t *testing.T) {
	if got := NewGrid(10, 10).CellCount(); got != 100 {
		t.Errorf("CellCount() = %d, want 100", got)
	}
}

func TestGridNonPositiveDimensionsAreEmpty(t *testing.T) {
	for _, g := range []*Grid{NewGrid(0, 5), NewGrid(5, 0), NewGrid(-1, -1)} {
		if g.CellCount() != 0 {
			t.Errorf("%s: CellCount() = %d, want 0", g, g.CellCount())
		}
	}
}
