package automaton

import "firegrid/pkg/grid"

// LayerCounts tallies cells by burn state.
type LayerCounts struct {
	Unburned  int `json:"unburned"`
	Igniting  int `json:"igniting"`
	Burning   int `json:"burning"`
	BurnedOut int `json:"burned_out"`
}

func (lc *LayerCounts) tally(s grid.State) {
	switch s {
	case grid.StateUnburned:
		lc.Unburned++
	case grid.StateIgniting:
		lc.Igniting++
	case grid.StateBurning:
		lc.Burning++
	case grid.StateBurnedOut:
		lc.BurnedOut++
	}
}

// Stats is the aggregate view of a step. Surface counts every cell; Crown
// counts only cells whose crown layer has activated. BurnedArea covers all
// cells touched by fire (igniting, burning or burned out). FirePerimeter
// measures the active front: burning cells with at least one unburned
// cardinal neighbor. MaxFireIntensity is the current step's peak, not a
// running maximum.
type Stats struct {
	Surface           LayerCounts `json:"surface"`
	Crown             LayerCounts `json:"crown"`
	BurnedArea        float64     `json:"burned_area_m2"`
	FirePerimeter     float64     `json:"fire_perimeter_m"`
	TotalFuelConsumed float64     `json:"total_fuel_consumed_kg"`
	MaxFireIntensity  float64     `json:"max_fire_intensity_kw_m"`
}

func (a *Automaton) refreshStats() {
	var s Stats
	cellArea := a.cfg.Terrain.CellSize * a.cfg.Terrain.CellSize
	initialFuel := a.cfg.Environment.InitialFuelLoad

	var consumed float64
	for k := 0; k < a.g.Len(); k++ {
		c := a.g.AtIndex(k)
		s.Surface.tally(c.State)
		if c.CrownActive() {
			s.Crown.tally(c.State)
		}
		consumed += initialFuel - c.Fuel
	}
	s.BurnedArea = float64(s.Surface.Igniting+s.Surface.Burning+s.Surface.BurnedOut) * cellArea
	s.TotalFuelConsumed = consumed * cellArea

	frontCells := 0
	for c := range a.g.Burning() {
		if a.onFront(c) {
			frontCells++
		}
		if in := a.fireLineIntensity(c); in > s.MaxFireIntensity {
			s.MaxFireIntensity = in
		}
	}
	s.FirePerimeter = float64(frontCells) * a.cfg.Terrain.CellSize

	a.stats = s
}

// onFront reports whether a burning cell still faces unburned fuel in a
// cardinal direction.
func (a *Automaton) onFront(c *grid.Cell) bool {
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		if n := a.g.At(c.I+d[0], c.J+d[1]); n != nil && n.State == grid.StateUnburned {
			return true
		}
	}
	return false
}
