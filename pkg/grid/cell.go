// Package grid holds the cell arena for a simulation: per-cell fuel,
// moisture, accumulated energy and burn state, plus the monotonic state
// machine every cell moves through. Cells are stored in a flat row-major
// slice and addressed by index; neighbor relations live in pkg/terrain.
package grid

import "fmt"

// State is the burn state of a cell. States only move forward, skipping
// allowed: a directly ignited cell goes straight from Unburned to Burning.
type State uint8

const (
	StateUnburned State = iota
	StateIgniting
	StateBurning
	StateBurnedOut
)

func (s State) String() string {
	switch s {
	case StateUnburned:
		return "unburned"
	case StateIgniting:
		return "igniting"
	case StateBurning:
		return "burning"
	case StateBurnedOut:
		return "burned_out"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Layer is a bitmask of fire layers active in a cell. Every cell carries
// surface fuel; the crown layer activates when fire-line intensity crosses
// the critical threshold and never deactivates.
type Layer uint8

const (
	LayerSurface Layer = 1 << iota
	LayerCrown
)

// Cell is one grid cell. Fuel is kg/m2, Moisture is a fraction in [0, 1],
// Energy is accumulated thermal energy in kJ, IgnitedAt is the simulation
// minute the cell entered StateBurning (-1 before then). Cells hold no
// neighbor pointers.
type Cell struct {
	I, J      int
	Fuel      float64
	Moisture  float64
	Energy    float64
	State     State
	Layers    Layer
	IgnitedAt int
}

// CrownActive reports whether the crown layer has been triggered.
func (c *Cell) CrownActive() bool {
	return c.Layers&LayerCrown != 0
}

// ActivateCrown turns the crown layer on. There is no way to turn it off.
func (c *Cell) ActivateCrown() {
	c.Layers |= LayerCrown
}
