package fire

import (
	"math"
	"testing"

	"firegrid/pkg/core"
	"firegrid/pkg/grid"
	"firegrid/pkg/terrain"
)

// flatWorld builds a 12x12 all-flat terrain and grid with the reference
// fuel bed.
func flatWorld(t *testing.T) (*terrain.Terrain, *grid.Grid) {
	t.Helper()
	tr, err := terrain.Build(terrain.Spec{
		Kind:                 terrain.KindIdeal,
		Width:                12,
		Height:               12,
		CellSize:             10,
		SlopeAngleDeg:        0,
		IntersectionDistance: 1e6,
	})
	if err != nil {
		t.Fatalf("terrain.Build: %v", err)
	}
	return tr, grid.New(tr, 2.0, 0.12)
}

func TestSlopeEffectMonotonicAndClipped(t *testing.T) {
	tr, _ := flatWorld(t)
	e := NewEngine(tr, DefaultParams(), core.Vec3{})

	deg := func(d float64) float64 { return d * math.Pi / 180 }

	if e.SlopeEffect(0) != 1 {
		t.Fatalf("flat slope effect = %v, want 1", e.SlopeEffect(0))
	}
	if !(e.SlopeEffect(deg(10)) < e.SlopeEffect(deg(30))) ||
		!(e.SlopeEffect(deg(30)) < e.SlopeEffect(deg(55))) {
		t.Fatal("slope effect not monotonic below the cap")
	}
	if e.SlopeEffect(deg(55)) != e.SlopeEffect(deg(70)) {
		t.Fatalf("slope effect past the cap: 55deg = %v, 70deg = %v",
			e.SlopeEffect(deg(55)), e.SlopeEffect(deg(70)))
	}
	if e.SlopeEffect(deg(-55)) != e.SlopeEffect(deg(-70)) {
		t.Fatal("downhill clip differs from uphill clip")
	}
	if !(e.SlopeEffect(deg(-20)) < 1) {
		t.Fatalf("downhill effect = %v, want < 1", e.SlopeEffect(deg(-20)))
	}
}

func TestWindEffectDirectionOrdering(t *testing.T) {
	tr, _ := flatWorld(t)
	e := NewEngine(tr, DefaultParams(), core.Vec3{X: 8})
	up := core.Vec3{Z: 1}

	downwind := e.WindEffect(core.Vec3{X: 10}, up)
	crosswind := e.WindEffect(core.Vec3{Y: 10}, up)
	upwind := e.WindEffect(core.Vec3{X: -10}, up)

	if !(downwind > crosswind && crosswind > upwind) {
		t.Fatalf("wind ordering violated: downwind=%v crosswind=%v upwind=%v",
			downwind, crosswind, upwind)
	}
	if math.Abs(crosswind-1) > 1e-9 {
		t.Fatalf("crosswind factor = %v, want neutral 1", crosswind)
	}
}

func TestWindEffectDegenerateCasesAreNeutral(t *testing.T) {
	tr, _ := flatWorld(t)
	up := core.Vec3{Z: 1}

	calm := NewEngine(tr, DefaultParams(), core.Vec3{})
	if got := calm.WindEffect(core.Vec3{X: 1}, up); got != 1 {
		t.Fatalf("no wind: factor = %v, want 1", got)
	}

	windy := NewEngine(tr, DefaultParams(), core.Vec3{X: 8})
	if got := windy.WindEffect(core.Vec3{}, up); got != 1 {
		t.Fatalf("zero spread direction: factor = %v, want 1", got)
	}

	// Wind parallel to the surface normal projects to nothing.
	vertical := NewEngine(tr, DefaultParams(), core.Vec3{Z: 8})
	if got := vertical.WindEffect(core.Vec3{X: 1}, up); got != 1 {
		t.Fatalf("perpendicular wind: factor = %v, want 1", got)
	}
}

func TestMoistureEffect(t *testing.T) {
	tr, _ := flatWorld(t)
	e := NewEngine(tr, DefaultParams(), core.Vec3{})

	if e.MoistureEffect(0) != 1 {
		t.Fatalf("dry moisture effect = %v, want 1", e.MoistureEffect(0))
	}
	want := math.Exp(-8.0 * 0.3)
	if math.Abs(e.MoistureEffect(0.3)-want) > 1e-12 {
		t.Fatalf("moisture effect = %v, want %v", e.MoistureEffect(0.3), want)
	}
	if !(e.MoistureEffect(0.5) < e.MoistureEffect(0.1)) {
		t.Fatal("wetter fuel should damp spread harder")
	}
}

func TestSpreadRateComposition(t *testing.T) {
	tr, g := flatWorld(t)
	e := NewEngine(tr, DefaultParams(), core.Vec3{})

	src, dst := g.At(5, 5), g.At(5, 6)
	want := 0.5 * 1.2 * math.Exp(-8.0*0.12)
	if got := e.SpreadRate(src, dst); math.Abs(got-want) > 1e-12 {
		t.Fatalf("flat calm spread rate = %v, want %v", got, want)
	}
}

func TestSpreadRateCrownMultiplier(t *testing.T) {
	tr, g := flatWorld(t)
	e := NewEngine(tr, DefaultParams(), core.Vec3{})

	src, dst := g.At(5, 5), g.At(5, 6)
	base := e.SpreadRate(src, dst)
	src.ActivateCrown()
	if got := e.SpreadRate(src, dst); math.Abs(got-3*base) > 1e-12 {
		t.Fatalf("crown spread rate = %v, want %v", got, 3*base)
	}
}

func TestSpreadRateNeverNegative(t *testing.T) {
	tr, g := flatWorld(t)
	// A strong headwind with a large direction factor drives the linear
	// wind term below zero; the rate must clamp instead.
	p := DefaultParams()
	p.WindDirectionFactorK = 50
	e := NewEngine(tr, p, core.Vec3{X: 10})

	src, dst := g.At(5, 5), g.At(5, 4)
	if got := e.SpreadRate(src, dst); got != 0 {
		t.Fatalf("headwind spread rate = %v, want clamped 0", got)
	}
}

func TestSpreadRateUphillBeatsDownhill(t *testing.T) {
	tr, err := terrain.Build(terrain.Spec{
		Kind:                 terrain.KindIdeal,
		Width:                8,
		Height:               8,
		CellSize:             10,
		SlopeAngleDeg:        30,
		IntersectionDistance: 0,
	})
	if err != nil {
		t.Fatalf("terrain.Build: %v", err)
	}
	g := grid.New(tr, 2.0, 0.12)
	e := NewEngine(tr, DefaultParams(), core.Vec3{})

	mid := g.At(4, 4)
	uphill := e.SpreadRate(mid, g.At(5, 4))
	downhill := e.SpreadRate(mid, g.At(3, 4))
	level := e.SpreadRate(mid, g.At(4, 5))
	if !(uphill > level && level > downhill) {
		t.Fatalf("slope ordering violated: uphill=%v level=%v downhill=%v",
			uphill, level, downhill)
	}
}

func TestEnergyTransferFluxAndFloor(t *testing.T) {
	tr, g := flatWorld(t)
	e := NewEngine(tr, DefaultParams(), core.Vec3{})
	src := g.At(5, 5)

	// flux = fuel * heat/1000 * rate = 2 * 18.5 * 2 = 74 kJ/min per meter.
	got := e.EnergyTransfer(src, 2, 10, 1)
	if math.Abs(got-7.4) > 1e-9 {
		t.Fatalf("transfer = %v, want 7.4", got)
	}

	// Sub-meter distances do not amplify the flux.
	near := e.EnergyTransfer(src, 2, 0.5, 1)
	unit := e.EnergyTransfer(src, 2, 1, 1)
	if near != unit {
		t.Fatalf("sub-meter transfer = %v, unit = %v; want equal", near, unit)
	}

	// The floor applies even when the rate is zero, scaled by dt.
	p := DefaultParams()
	p.MinEnergyTransfer = 5
	floor := NewEngine(tr, p, core.Vec3{})
	if got := floor.EnergyTransfer(src, 0, 10, 2); got != 10 {
		t.Fatalf("floored transfer = %v, want 10", got)
	}
}

func TestIgnitionThresholdRisesWithMoisture(t *testing.T) {
	tr, _ := flatWorld(t)
	e := NewEngine(tr, DefaultParams(), core.Vec3{})

	if got := e.IgnitionThreshold(0); got != 100 {
		t.Fatalf("dry threshold = %v, want base 100", got)
	}
	if got := e.IgnitionThreshold(0.5); got != 200 {
		t.Fatalf("threshold at m=0.5 = %v, want 200", got)
	}
	if e.ShouldIgnite(199, 0.5) {
		t.Fatal("ignited below threshold")
	}
	if !e.ShouldIgnite(200, 0.5) {
		t.Fatal("failed to ignite at threshold")
	}
}

func TestFireLineIntensityAndCrownTrigger(t *testing.T) {
	tr, g := flatWorld(t)
	e := NewEngine(tr, DefaultParams(), core.Vec3{})
	c := g.At(5, 5)

	// heat * rate * fuel / 1000 = 18500 * 2 * 2 / 1000 = 74 kW/m.
	if got := e.FireLineIntensity(c, 2); math.Abs(got-74) > 1e-9 {
		t.Fatalf("intensity = %v, want 74", got)
	}
	if e.ShouldCrownTransition(500) {
		t.Fatal("crown triggered at exactly the critical intensity")
	}
	if !e.ShouldCrownTransition(500.01) {
		t.Fatal("crown failed to trigger past the critical intensity")
	}
}

func TestSampleSpotProbabilityGate(t *testing.T) {
	tr, g := flatWorld(t)
	src := g.At(5, 5)

	never := DefaultParams()
	never.SpottingProbability = 0
	e := NewEngine(tr, never, core.Vec3{})
	rng := core.NewRNG(1)
	for i := 0; i < 100; i++ {
		if _, _, ok := e.SampleSpot(src, rng); ok {
			t.Fatal("spot launched with probability 0")
		}
	}

	always := DefaultParams()
	always.SpottingProbability = 1
	e = NewEngine(tr, always, core.Vec3{})
	rng = core.NewRNG(1)
	for i := 0; i < 100; i++ {
		if _, _, ok := e.SampleSpot(src, rng); !ok {
			t.Fatal("spot failed with probability 1")
		}
	}
}

func TestSampleSpotFollowsWind(t *testing.T) {
	tr, g := flatWorld(t)
	src := g.At(5, 5)
	p := DefaultParams()
	p.SpottingProbability = 1
	p.MaxSpottingDistance = 50
	e := NewEngine(tr, p, core.Vec3{X: 8})
	rng := core.NewRNG(99)

	origin := tr.PositionOf(5, 5)
	for i := 0; i < 200; i++ {
		x, y, ok := e.SampleSpot(src, rng)
		if !ok {
			t.Fatal("spot failed with probability 1")
		}
		dx, dy := x-origin.X, y-origin.Y
		dist := math.Hypot(dx, dy)
		if dist >= 50 {
			t.Fatalf("spot distance = %v, want < 50", dist)
		}
		if dist > 1e-9 {
			bearing := math.Atan2(dy, dx)
			if math.Abs(bearing) > math.Pi/6+1e-9 {
				t.Fatalf("spot bearing = %v rad, want within 30deg of +x wind", bearing)
			}
		}
	}
}

func TestSampleSpotDeterministic(t *testing.T) {
	tr, g := flatWorld(t)
	src := g.At(5, 5)
	p := DefaultParams()
	p.SpottingProbability = 0.5
	e := NewEngine(tr, p, core.Vec3{X: 8})

	a, b := core.NewRNG(7), core.NewRNG(7)
	for i := 0; i < 100; i++ {
		ax, ay, aok := e.SampleSpot(src, a)
		bx, by, bok := e.SampleSpot(src, b)
		if ax != bx || ay != by || aok != bok {
			t.Fatalf("draw %d diverged: (%v, %v, %v) vs (%v, %v, %v)",
				i, ax, ay, aok, bx, by, bok)
		}
	}
}

func TestWindFromSpeedDirection(t *testing.T) {
	v := WindFromSpeedDirection(8, 90)
	if math.Abs(v.X) > 1e-9 || math.Abs(v.Y-8) > 1e-9 || v.Z != 0 {
		t.Fatalf("wind at 90deg = %+v, want (0, 8, 0)", v)
	}
	v = WindFromSpeedDirection(5, 0)
	if math.Abs(v.X-5) > 1e-9 || math.Abs(v.Y) > 1e-9 {
		t.Fatalf("wind at 0deg = %+v, want (5, 0, 0)", v)
	}
}
