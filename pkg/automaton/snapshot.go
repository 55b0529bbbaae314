package automaton

import "firegrid/pkg/grid"

// Snapshot cell encoding: the low two bits carry the burn state, bit 2 the
// crown layer. One byte per cell keeps long histories cheap and makes
// byte-for-byte comparison of runs trivial.
const (
	snapStateMask uint8 = 0x03
	snapCrownBit  uint8 = 0x04
)

func packCell(c *grid.Cell) uint8 {
	v := uint8(c.State) & snapStateMask
	if c.CrownActive() {
		v |= snapCrownBit
	}
	return v
}

// UnpackCell decodes one snapshot cell byte into its burn state and crown
// flag.
func UnpackCell(b uint8) (state grid.State, crown bool) {
	return grid.State(b & snapStateMask), b&snapCrownBit != 0
}

// Snapshot is the recorded state of one save point. Cells holds one packed
// byte per cell in arena order.
type Snapshot struct {
	Time  int    `json:"time"`
	Stats Stats  `json:"stats"`
	Cells []byte `json:"cells"`
}

// record appends the current state to the snapshot history.
func (a *Automaton) record() {
	a.history = append(a.history, a.Snapshot())
}

// Snapshot captures the current grid state without recording it.
func (a *Automaton) Snapshot() Snapshot {
	cells := make([]byte, a.g.Len())
	for k := range cells {
		cells[k] = packCell(a.g.AtIndex(k))
	}
	return Snapshot{Time: a.clock, Stats: a.stats, Cells: cells}
}

// Snapshots returns the recorded history in time order: the initial state,
// every save point hit, and the terminal step. Callers must not modify the
// returned slice.
func (a *Automaton) Snapshots() []Snapshot {
	return a.history
}
