// Package fire implements the spread physics: slope, wind and moisture
// factors composed into directed spread rates, energy transfer between
// neighbors, ignition thresholds, crown-fire triggering and ember spotting.
// The engine is pure with respect to simulation time; it never mutates
// cells and never draws randomness except through an explicitly passed RNG.
package fire

import (
	"math"

	"firegrid/pkg/core"
	"firegrid/pkg/grid"
	"firegrid/pkg/terrain"
)

// epsilon guards the degenerate wind cases: near-zero wind and projections
// of wind vectors nearly perpendicular to the surface.
const epsilon = 1e-9

// Engine evaluates the spread model over one terrain. Wind is the ambient
// wind vector; pass the zero vector to run without wind.
type Engine struct {
	params Params
	t      *terrain.Terrain
	wind   core.Vec3
}

// NewEngine builds an engine for t with the given coefficients and ambient
// wind.
func NewEngine(t *terrain.Terrain, params Params, wind core.Vec3) *Engine {
	return &Engine{params: params, t: t, wind: wind}
}

// Params returns the engine's coefficient set.
func (e *Engine) Params() Params { return e.params }

// Wind returns the ambient wind vector.
func (e *Engine) Wind() core.Vec3 { return e.wind }

// SlopeEffect returns the slope factor exp(a*phi) for a signed local slope
// angle in radians, positive uphill. The magnitude of the angle is clipped
// at MaxSlopeDeg before the exponential, so rates stop growing past the
// cap instead of extrapolating without bound.
func (e *Engine) SlopeEffect(slopeRad float64) float64 {
	maxRad := e.params.MaxSlopeDeg * math.Pi / 180
	clipped := slopeRad
	if clipped > maxRad {
		clipped = maxRad
	} else if clipped < -maxRad {
		clipped = -maxRad
	}
	return math.Exp(e.params.SlopeFactorA * clipped)
}

// WindEffect returns the wind factor 1 + c*|Vw|^d * k*cos(alpha), where
// alpha is the angle between the spread direction and the wind projected
// onto the surface with unit normal n. Degenerate inputs (no wind, wind
// perpendicular to the surface, zero spread direction) are neutral.
func (e *Engine) WindEffect(spreadDir, n core.Vec3) float64 {
	windSpeed := e.wind.Len()
	if windSpeed < epsilon {
		return 1
	}
	proj := e.wind.ProjectOntoPlane(n)
	projLen := proj.Len()
	if projLen < epsilon {
		return 1
	}
	spreadLen := spreadDir.Len()
	if spreadLen < epsilon {
		return 1
	}
	cosAlpha := proj.Dot(spreadDir) / (projLen * spreadLen)
	if cosAlpha > 1 {
		cosAlpha = 1
	} else if cosAlpha < -1 {
		cosAlpha = -1
	}
	return 1 + e.params.WindSpeedFactorC*math.Pow(windSpeed, e.params.WindSpeedPowerD)*
		e.params.WindDirectionFactorK*cosAlpha
}

// MoistureEffect returns the moisture damping exp(-b*m) for a moisture
// fraction m.
func (e *Engine) MoistureEffect(moisture float64) float64 {
	return math.Exp(-e.params.MoistureFactorB * moisture)
}

// SpreadRate returns the directed spread rate from src toward dst in m/min:
// R0 * Ks * wind * moisture * slope, scaled by the crown multiplier when
// the source's crown layer is active, clamped at zero. The local slope is
// the inclination of the 3D spread vector; the wind effect always uses the
// target cell's surface normal, so edges crossing the flat/slope dividing
// line switch crisply to the target's geometry. Moisture is the target's.
func (e *Engine) SpreadRate(src, dst *grid.Cell) float64 {
	from := e.t.PositionOf(src.I, src.J)
	to := e.t.PositionOf(dst.I, dst.J)
	spreadDir := to.Sub(from)

	horizontal := math.Hypot(spreadDir.X, spreadDir.Y)
	var slopeRad float64
	if horizontal > 0 {
		slopeRad = math.Atan(spreadDir.Z / horizontal)
	}

	rate := e.params.BaseSpreadRate * e.params.FuelCoefficient *
		e.WindEffect(spreadDir, e.t.NormalOf(dst.I, dst.J)) *
		e.MoistureEffect(dst.Moisture) *
		e.SlopeEffect(slopeRad)
	if src.CrownActive() {
		rate *= e.params.CrownFireMultiplier
	}
	return math.Max(0, rate)
}

// EnergyTransfer returns the energy in kJ delivered from src to a neighbor
// at the given distance during dt minutes, for a directed spread rate
// already computed by SpreadRate. The heat flux couples the source's
// remaining fuel with its heat content, so transfers fade as the source
// burns down; distances under one meter do not amplify. The result never
// falls below MinEnergyTransfer*dt.
func (e *Engine) EnergyTransfer(src *grid.Cell, rate, distance, dt float64) float64 {
	flux := src.Fuel * e.params.HeatContent / 1000 * rate
	transfer := flux / math.Max(1, distance) * e.params.EnergyTransferMultiplier * dt
	return math.Max(transfer, e.params.MinEnergyTransfer*dt)
}

// IgnitionThreshold returns the accumulated energy in kJ a cell with the
// given moisture needs before it ignites: base * (1 + factor*m).
func (e *Engine) IgnitionThreshold(moisture float64) float64 {
	return e.params.BaseIgnitionEnergy * (1 + e.params.IgnitionMoistureFactor*moisture)
}

// ShouldIgnite reports whether the accumulated energy meets the ignition
// threshold for the given moisture.
func (e *Engine) ShouldIgnite(energy, moisture float64) bool {
	return energy >= e.IgnitionThreshold(moisture)
}

// FireLineIntensity returns the fire-line intensity of a burning cell in
// kW/m given its mean spread rate toward unburned neighbors:
// heat * avgRate * fuel / 1000.
func (e *Engine) FireLineIntensity(c *grid.Cell, avgSpreadRate float64) float64 {
	return e.params.HeatContent * avgSpreadRate * c.Fuel / 1000
}

// ShouldCrownTransition reports whether a fire-line intensity is past the
// configured critical intensity.
func (e *Engine) ShouldCrownTransition(intensity float64) bool {
	return intensity > e.params.CriticalFireIntensity
}

// SampleSpot draws this step's ember candidate for a burning cell. With
// probability SpottingProbability it returns a landing position: distance
// uniform in [0, MaxSpottingDistance), bearing within 30 degrees of the
// wind when wind is blowing, uniform otherwise. The draw order (gate,
// distance, bearing) is fixed so runs replay byte for byte.
func (e *Engine) SampleSpot(src *grid.Cell, rng *core.RNG) (x, y float64, ok bool) {
	if rng.Float64() >= e.params.SpottingProbability {
		return 0, 0, false
	}
	dist := rng.Between(0, e.params.MaxSpottingDistance)
	var bearing float64
	if e.wind.Len() > epsilon {
		bearing = math.Atan2(e.wind.Y, e.wind.X) + rng.Between(-math.Pi/6, math.Pi/6)
	} else {
		bearing = rng.Between(0, 2*math.Pi)
	}
	p := e.t.PositionOf(src.I, src.J)
	return p.X + dist*math.Cos(bearing), p.Y + dist*math.Sin(bearing), true
}
