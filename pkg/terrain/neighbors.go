package terrain

import "math"

// Neighbor is one cell of a Moore neighborhood together with the Euclidean
// distance between the two cell centers in meters. On flat ground cardinal
// neighbors are CellSize apart and diagonals CellSize*sqrt(2); on a slope
// the vertical offset lengthens the distance.
type Neighbor struct {
	I, J     int
	Distance float64
}

// mooreOffsets enumerates the 8 surrounding cells, row-major order.
var mooreOffsets = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// AppendNeighbors appends the in-bounds Moore neighbors of (i, j) to buf and
// returns the extended slice. Callers reuse buf across cells to avoid
// per-cell allocation:
//
//	buf = buf[:0]
//	buf = t.AppendNeighbors(buf, i, j)
func (t *Terrain) AppendNeighbors(buf []Neighbor, i, j int) []Neighbor {
	p := t.PositionOf(i, j)
	for _, off := range mooreOffsets {
		ni, nj := i+off[0], j+off[1]
		if !t.InBounds(ni, nj) {
			continue
		}
		q := t.PositionOf(ni, nj)
		dx, dy, dz := q.X-p.X, q.Y-p.Y, q.Z-p.Z
		buf = append(buf, Neighbor{
			I:        ni,
			J:        nj,
			Distance: math.Sqrt(dx*dx + dy*dy + dz*dz),
		})
	}
	return buf
}

// CellAt maps a continuous position in meters to the cell whose center is
// nearest. ok is false when the position falls outside the grid.
func (t *Terrain) CellAt(x, y float64) (i, j int, ok bool) {
	j = int(math.Round(x / t.spec.CellSize))
	i = int(math.Round(y / t.spec.CellSize))
	if !t.InBounds(i, j) {
		return 0, 0, false
	}
	return i, j, true
}
