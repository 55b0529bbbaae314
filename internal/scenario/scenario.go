// Package scenario loads simulation runs from HCL files. A scenario file
// describes one experiment: the terrain, the physics coefficients, the
// environment, the feature switches, one or more ignition points and where
// the results go. Times are integer minutes; the constants minute, hour and
// day are in scope inside every file, so `max_time = 3 * day` reads the way
// the experiment is described.
package scenario

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"firegrid/internal/ctxlog"
	"firegrid/pkg/automaton"
	"firegrid/pkg/core"
	"firegrid/pkg/fire"
	"firegrid/pkg/terrain"
)

// effectivelyInfiniteIntensity is past any fire-line intensity the model can
// produce. A critical intensity at or above it means the crown layer can
// never activate, which is worth a warning when the crown feature is on.
const effectivelyInfiniteIntensity = 999999

// Scenario is a fully resolved scenario file: a validated automaton config
// plus the output sinks the run should feed.
type Scenario struct {
	Name   string
	Config automaton.Config
	Output Output
}

// Output names the sinks for a run's snapshots. Empty fields are disabled.
type Output struct {
	// JSONLPath appends a meta line and one snapshot per line to a file.
	JSONLPath string
	// PostgresDSN persists the run and its snapshots to Postgres.
	PostgresDSN string
	// Listen serves live snapshots over WebSocket on this address.
	Listen string
}

// fileRoot decodes the top-level blocks of a scenario file.
type fileRoot struct {
	Name        string            `hcl:"name,optional"`
	Simulation  *simulationBlock  `hcl:"simulation,block"`
	Terrain     *terrainBlock     `hcl:"terrain,block"`
	Physics     *physicsBlock     `hcl:"physics,block"`
	Environment *environmentBlock `hcl:"environment,block"`
	Features    *featuresBlock    `hcl:"features,block"`
	Ignitions   []*ignitionBlock  `hcl:"ignition,block"`
	Output      *outputBlock      `hcl:"output,block"`
	Remain      hcl.Body          `hcl:",remain"`
}

type simulationBlock struct {
	TimeStep     *int   `hcl:"time_step,optional"`
	MaxTime      *int   `hcl:"max_time,optional"`
	SaveInterval *int   `hcl:"save_interval,optional"`
	SaveTimes    []int  `hcl:"save_times,optional"`
	Seed         *int64 `hcl:"seed,optional"`
	Workers      *int   `hcl:"workers,optional"`
}

type terrainBlock struct {
	Kind     string  `hcl:"kind,optional"`
	Width    int     `hcl:"width"`
	Height   int     `hcl:"height"`
	CellSize float64 `hcl:"cell_size"`
	// SlopeAngleDeg defaults to 0 (a flat world); IntersectionDistance
	// places the flat/slope dividing line and only matters with a slope.
	SlopeAngleDeg        *float64 `hcl:"slope_angle_deg,optional"`
	IntersectionDistance *float64 `hcl:"intersection_distance,optional"`
}

type physicsBlock struct {
	BaseSpreadRate           *float64 `hcl:"base_spread_rate,optional"`
	FuelCoefficient          *float64 `hcl:"fuel_coefficient,optional"`
	SlopeFactorA             *float64 `hcl:"slope_factor_a,optional"`
	MaxSlopeDeg              *float64 `hcl:"max_slope_deg,optional"`
	WindSpeedFactorC         *float64 `hcl:"wind_speed_factor_c,optional"`
	WindSpeedPowerD          *float64 `hcl:"wind_speed_power_d,optional"`
	WindDirectionFactorK     *float64 `hcl:"wind_direction_factor_k,optional"`
	MoistureFactorB          *float64 `hcl:"moisture_factor_b,optional"`
	EvaporationCoefficient   *float64 `hcl:"evaporation_coefficient,optional"`
	HeatContent              *float64 `hcl:"heat_content,optional"`
	BaseIgnitionEnergy       *float64 `hcl:"base_ignition_energy,optional"`
	IgnitionMoistureFactor   *float64 `hcl:"ignition_moisture_factor,optional"`
	EnergyTransferMultiplier *float64 `hcl:"energy_transfer_multiplier,optional"`
	MinEnergyTransfer        *float64 `hcl:"min_energy_transfer,optional"`
	CrownFireMultiplier      *float64 `hcl:"crown_fire_multiplier,optional"`
	CriticalFireIntensity    *float64 `hcl:"critical_fire_intensity,optional"`
	SpottingProbability      *float64 `hcl:"spotting_probability,optional"`
	MaxSpottingDistance      *float64 `hcl:"max_spotting_distance,optional"`
}

type environmentBlock struct {
	// Wind is given either as wind_speed (m/s) plus wind_direction_deg, or
	// as an explicit wind_vector; never both.
	WindSpeed           *float64  `hcl:"wind_speed,optional"`
	WindDirectionDeg    *float64  `hcl:"wind_direction_deg,optional"`
	WindVector          []float64 `hcl:"wind_vector,optional"`
	InitialFuelLoad     *float64  `hcl:"initial_fuel_load,optional"`
	InitialMoisture     *float64  `hcl:"initial_moisture,optional"`
	FuelConsumptionRate *float64  `hcl:"fuel_consumption_rate,optional"`
}

type featuresBlock struct {
	Wind            *bool `hcl:"wind,optional"`
	CrownFire       *bool `hcl:"crown_fire,optional"`
	Spotting        *bool `hcl:"spotting,optional"`
	DynamicMoisture *bool `hcl:"dynamic_moisture,optional"`
}

type ignitionBlock struct {
	Name   string  `hcl:"name,label"`
	X      float64 `hcl:"x"`
	Y      float64 `hcl:"y"`
	Radius float64 `hcl:"radius"`
}

type outputBlock struct {
	JSONL       string `hcl:"jsonl,optional"`
	PostgresDSN string `hcl:"postgres_dsn,optional"`
	Listen      string `hcl:"listen,optional"`
}

// evalContext exposes the time unit constants to scenario expressions.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"minute": cty.NumberIntVal(1),
			"hour":   cty.NumberIntVal(60),
			"day":    cty.NumberIntVal(1440),
		},
	}
}

// Load parses and resolves one scenario file. Structural problems (missing
// blocks, contradictory wind settings, unsupported terrain kinds) fail here;
// numeric range checks stay with automaton.New so they have a single home.
func Load(ctx context.Context, path string) (*Scenario, error) {
	log := ctxlog.FromContext(ctx)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("scenario: parse %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &root); diags.HasErrors() {
		return nil, fmt.Errorf("scenario: decode %s: %w", path, diags)
	}

	sc, err := build(ctx, &root)
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}

	log.Debug("scenario loaded",
		"path", path,
		"name", sc.Name,
		"grid", fmt.Sprintf("%dx%d", sc.Config.Terrain.Width, sc.Config.Terrain.Height),
		"ignitions", len(sc.Config.Ignitions))
	return sc, nil
}

func build(ctx context.Context, root *fileRoot) (*Scenario, error) {
	cfg := automaton.DefaultConfig()

	if root.Terrain == nil {
		return nil, fmt.Errorf("missing required terrain block")
	}
	t, err := buildTerrain(root.Terrain)
	if err != nil {
		return nil, err
	}
	cfg.Terrain = t

	if s := root.Simulation; s != nil {
		set(&cfg.TimeStep, s.TimeStep)
		set(&cfg.MaxSimulationTime, s.MaxTime)
		set(&cfg.SaveInterval, s.SaveInterval)
		set(&cfg.Seed, s.Seed)
		set(&cfg.Workers, s.Workers)
		cfg.SaveTimes = s.SaveTimes
	}

	if p := root.Physics; p != nil {
		applyPhysics(&cfg.Physics, p)
	}

	if f := root.Features; f != nil {
		set(&cfg.Features.Wind, f.Wind)
		set(&cfg.Features.CrownFire, f.CrownFire)
		set(&cfg.Features.Spotting, f.Spotting)
		set(&cfg.Features.DynamicMoisture, f.DynamicMoisture)
	}

	if e := root.Environment; e != nil {
		set(&cfg.Environment.InitialFuelLoad, e.InitialFuelLoad)
		set(&cfg.Environment.InitialMoisture, e.InitialMoisture)
		set(&cfg.Environment.FuelConsumptionRate, e.FuelConsumptionRate)
		wind, err := resolveWind(e)
		if err != nil {
			return nil, err
		}
		cfg.Environment.WindVector = wind
	}

	if len(root.Ignitions) == 0 {
		return nil, fmt.Errorf("no ignition blocks; a scenario needs at least one fire")
	}
	seen := make(map[string]struct{}, len(root.Ignitions))
	for _, ig := range root.Ignitions {
		if _, dup := seen[ig.Name]; dup {
			return nil, fmt.Errorf("duplicate ignition %q", ig.Name)
		}
		seen[ig.Name] = struct{}{}
		cfg.Ignitions = append(cfg.Ignitions, automaton.IgnitionPoint{X: ig.X, Y: ig.Y, Radius: ig.Radius})
	}

	if cfg.Features.CrownFire && cfg.Physics.CriticalFireIntensity >= effectivelyInfiniteIntensity {
		ctxlog.FromContext(ctx).Warn("crown fire is enabled but the critical intensity is unreachable; the crown layer will never activate",
			"critical_fire_intensity", cfg.Physics.CriticalFireIntensity)
	}

	var out Output
	if o := root.Output; o != nil {
		out = Output{JSONLPath: o.JSONL, PostgresDSN: o.PostgresDSN, Listen: o.Listen}
	}
	return &Scenario{Name: root.Name, Config: cfg, Output: out}, nil
}

func buildTerrain(b *terrainBlock) (terrain.Spec, error) {
	kind := terrain.Kind(b.Kind)
	if b.Kind == "" {
		kind = terrain.KindIdeal
	}
	// KindReal needs an in-process height field, which a file cannot carry.
	if kind != terrain.KindIdeal {
		return terrain.Spec{}, fmt.Errorf("terrain kind %q is not supported in scenario files", b.Kind)
	}
	spec := terrain.Spec{
		Kind:     kind,
		Width:    b.Width,
		Height:   b.Height,
		CellSize: b.CellSize,
	}
	set(&spec.SlopeAngleDeg, b.SlopeAngleDeg)
	set(&spec.IntersectionDistance, b.IntersectionDistance)
	return spec, nil
}

func applyPhysics(p *fire.Params, b *physicsBlock) {
	set(&p.BaseSpreadRate, b.BaseSpreadRate)
	set(&p.FuelCoefficient, b.FuelCoefficient)
	set(&p.SlopeFactorA, b.SlopeFactorA)
	set(&p.MaxSlopeDeg, b.MaxSlopeDeg)
	set(&p.WindSpeedFactorC, b.WindSpeedFactorC)
	set(&p.WindSpeedPowerD, b.WindSpeedPowerD)
	set(&p.WindDirectionFactorK, b.WindDirectionFactorK)
	set(&p.MoistureFactorB, b.MoistureFactorB)
	set(&p.EvaporationCoefficient, b.EvaporationCoefficient)
	set(&p.HeatContent, b.HeatContent)
	set(&p.BaseIgnitionEnergy, b.BaseIgnitionEnergy)
	set(&p.IgnitionMoistureFactor, b.IgnitionMoistureFactor)
	set(&p.EnergyTransferMultiplier, b.EnergyTransferMultiplier)
	set(&p.MinEnergyTransfer, b.MinEnergyTransfer)
	set(&p.CrownFireMultiplier, b.CrownFireMultiplier)
	set(&p.CriticalFireIntensity, b.CriticalFireIntensity)
	set(&p.SpottingProbability, b.SpottingProbability)
	set(&p.MaxSpottingDistance, b.MaxSpottingDistance)
}

// resolveWind turns the environment block's wind attributes into a vector.
// Speed+direction and an explicit vector are mutually exclusive.
func resolveWind(e *environmentBlock) (core.Vec3, error) {
	hasPolar := e.WindSpeed != nil || e.WindDirectionDeg != nil
	hasVector := e.WindVector != nil

	switch {
	case hasPolar && hasVector:
		return core.Vec3{}, fmt.Errorf("wind_vector conflicts with wind_speed/wind_direction_deg; give one form")
	case hasPolar:
		if e.WindSpeed == nil || e.WindDirectionDeg == nil {
			return core.Vec3{}, fmt.Errorf("wind_speed and wind_direction_deg must be given together")
		}
		return fire.WindFromSpeedDirection(*e.WindSpeed, *e.WindDirectionDeg), nil
	case hasVector:
		switch len(e.WindVector) {
		case 2:
			return core.Vec3{X: e.WindVector[0], Y: e.WindVector[1]}, nil
		case 3:
			return core.Vec3{X: e.WindVector[0], Y: e.WindVector[1], Z: e.WindVector[2]}, nil
		default:
			return core.Vec3{}, fmt.Errorf("wind_vector needs 2 or 3 components, got %d", len(e.WindVector))
		}
	default:
		return core.Vec3{}, nil
	}
}

// set copies an optional scenario attribute over its default.
func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
