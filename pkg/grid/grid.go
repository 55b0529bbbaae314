package grid

import (
	"errors"
	"fmt"
	"iter"

	"firegrid/pkg/terrain"
)

// ErrInvalidTransition reports an attempt to move a cell backwards (or
// sideways) in the state machine. It signals a scheduler bug, not a bad
// input, and aborts the run.
var ErrInvalidTransition = errors.New("invalid state transition")

// Grid owns the cell arena for one simulation. All cells start Unburned
// with the same initial fuel and moisture; everything after that is
// mutation through the methods below.
type Grid struct {
	t     *terrain.Terrain
	w, h  int
	cells []Cell
}

// New allocates a grid over t with uniform initial fuel (kg/m2) and
// moisture (fraction).
func New(t *terrain.Terrain, initialFuel, initialMoisture float64) *Grid {
	w, h := t.Size()
	g := &Grid{
		t:     t,
		w:     w,
		h:     h,
		cells: make([]Cell, w*h),
	}
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			g.cells[i*w+j] = Cell{
				I:         i,
				J:         j,
				Fuel:      initialFuel,
				Moisture:  initialMoisture,
				State:     StateUnburned,
				Layers:    LayerSurface,
				IgnitedAt: -1,
			}
		}
	}
	return g
}

// Size returns the grid dimensions in cells (columns, rows).
func (g *Grid) Size() (w, h int) { return g.w, g.h }

// Len returns the total number of cells.
func (g *Grid) Len() int { return len(g.cells) }

// Terrain returns the geometry the grid was built over.
func (g *Grid) Terrain() *terrain.Terrain { return g.t }

// Index converts cell coordinates to the flat arena index.
func (g *Grid) Index(i, j int) int { return i*g.w + j }

// At returns the cell at (i, j), or nil when out of bounds.
func (g *Grid) At(i, j int) *Cell {
	if i < 0 || i >= g.h || j < 0 || j >= g.w {
		return nil
	}
	return &g.cells[i*g.w+j]
}

// AtIndex returns the cell at flat index k.
func (g *Grid) AtIndex(k int) *Cell { return &g.cells[k] }

// Burning returns a lazy sequence over the cells currently in StateBurning,
// in arena order. The arena is re-scanned on every use, so the sequence is
// restartable and always reflects current state.
func (g *Grid) Burning() iter.Seq[*Cell] {
	return func(yield func(*Cell) bool) {
		for k := range g.cells {
			c := &g.cells[k]
			if c.State != StateBurning {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// ApplyTransition moves c to next, enforcing the forward-only state order.
// Entering StateBurning records now as the cell's ignition time. A backward
// or repeated transition returns an error wrapping ErrInvalidTransition.
func (g *Grid) ApplyTransition(c *Cell, next State, now int) error {
	if next <= c.State || next > StateBurnedOut {
		return fmt.Errorf("cell (%d, %d): %v -> %v: %w", c.I, c.J, c.State, next, ErrInvalidTransition)
	}
	c.State = next
	if next == StateBurning {
		c.IgnitedAt = now
	}
	return nil
}

// ConsumeFuel burns rate*dt of fuel from c, clamping at zero. A burning
// cell whose fuel is exhausted transitions to StateBurnedOut in the same
// step; burnedOut reports that transition.
func (g *Grid) ConsumeFuel(c *Cell, rate, dt float64, now int) (burnedOut bool, err error) {
	c.Fuel -= rate * dt
	if c.Fuel > 0 {
		return false, nil
	}
	c.Fuel = 0
	if c.State != StateBurning {
		return false, nil
	}
	if err := g.ApplyTransition(c, StateBurnedOut, now); err != nil {
		return false, err
	}
	return true, nil
}
