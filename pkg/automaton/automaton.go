// Package automaton drives the multi-layer fire simulation: it owns the
// clock, the cell grid and the physics engine, advances the world in fixed
// time steps through an ordered sequence of phases, and records statistics
// and snapshots along the way. All randomness flows through one seeded RNG,
// so a run is fully determined by its Config.
package automaton

import (
	"context"
	"errors"
	"fmt"

	"firegrid/internal/ctxlog"
	"firegrid/pkg/core"
	"firegrid/pkg/fire"
	"firegrid/pkg/grid"
	"firegrid/pkg/terrain"
)

// ErrTerminated is returned by Step once the run has reached a terminal
// status.
var ErrTerminated = errors.New("simulation already terminated")

// Status is the lifecycle state of a run.
type Status uint8

const (
	StatusInitialized Status = iota
	StatusRunning
	// StatusTerminatedBoundary: fire reached the grid edge; results past
	// this point would be clipped by the modeled domain.
	StatusTerminatedBoundary
	// StatusTerminatedNaturally: no cell is burning or igniting anymore.
	StatusTerminatedNaturally
	// StatusTerminatedTimeout: the clock reached MaxSimulationTime.
	StatusTerminatedTimeout
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusRunning:
		return "running"
	case StatusTerminatedBoundary:
		return "terminated_boundary"
	case StatusTerminatedNaturally:
		return "terminated_naturally"
	case StatusTerminatedTimeout:
		return "terminated_timeout"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether the run has ended.
func (s Status) Terminal() bool {
	return s == StatusTerminatedBoundary || s == StatusTerminatedNaturally || s == StatusTerminatedTimeout
}

// IgnitionPoint starts a fire: every cell whose center lies within Radius
// meters (2D distance) of (X, Y) begins the run in StateBurning.
type IgnitionPoint struct {
	X, Y   float64
	Radius float64
}

// Config fully determines a run. Times are integer minutes.
type Config struct {
	// TimeStep is dt; MaxSimulationTime caps the clock.
	TimeStep          int
	MaxSimulationTime int

	// SaveInterval > 0 records a snapshot whenever the clock is a multiple
	// of it; SaveTimes records at the listed minutes. The initial state and
	// the terminal step are always recorded.
	SaveInterval int
	SaveTimes    []int

	// Seed drives all stochastic phases. Workers > 1 fans the energy
	// transfer pass out over goroutines; output is identical across runs
	// with the same worker count.
	Seed    int64
	Workers int

	Terrain terrain.Spec
	// HeightField supplies elevation for terrain of KindReal; ignored
	// otherwise.
	HeightField terrain.HeightField

	Physics     fire.Params
	Features    fire.Features
	Environment fire.Environment
	Ignitions   []IgnitionPoint
}

// DefaultConfig returns a small calm-air run with the reference physics,
// all features enabled and no ignition points.
func DefaultConfig() Config {
	return Config{
		TimeStep:          1,
		MaxSimulationTime: 4320,
		SaveInterval:      60,
		Seed:              1,
		Workers:           1,
		Terrain: terrain.Spec{
			Kind:                 terrain.KindIdeal,
			Width:                200,
			Height:               200,
			CellSize:             10,
			SlopeAngleDeg:        30,
			IntersectionDistance: 1000,
		},
		Physics:     fire.DefaultParams(),
		Features:    fire.DefaultFeatures(),
		Environment: fire.DefaultEnvironment(),
	}
}

// Automaton is one running simulation.
type Automaton struct {
	cfg    Config
	t      *terrain.Terrain
	g      *grid.Grid
	engine *fire.Engine
	rng    *core.RNG

	clock  int
	status Status
	stats  Stats

	// incoming buffers this step's energy transfers per target cell; the
	// grid itself is not written during the transfer pass.
	incoming    []float64
	workerBufs  [][]float64
	burning     []int
	neighborBuf []terrain.Neighbor

	saveAt      map[int]struct{}
	history     []Snapshot
	boundaryHit bool
}

// New validates cfg, builds the terrain, grid and engine, applies the
// ignition points and records the initial snapshot.
func New(cfg Config) (*Automaton, error) {
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	var (
		t   *terrain.Terrain
		err error
	)
	if cfg.Terrain.Kind == terrain.KindReal {
		t, err = terrain.BuildReal(cfg.Terrain, cfg.HeightField)
	} else {
		t, err = terrain.Build(cfg.Terrain)
	}
	if err != nil {
		return nil, err
	}

	g := grid.New(t, cfg.Environment.InitialFuelLoad, cfg.Environment.InitialMoisture)

	// With the wind feature off the engine sees calm air; no formula
	// carries its own feature branch.
	wind := cfg.Environment.WindVector
	if !cfg.Features.Wind {
		wind = core.Vec3{}
	}

	a := &Automaton{
		cfg:      cfg,
		t:        t,
		g:        g,
		engine:   fire.NewEngine(t, cfg.Physics, wind),
		rng:      core.NewRNG(cfg.Seed),
		status:   StatusInitialized,
		incoming: make([]float64, g.Len()),
		saveAt:   make(map[int]struct{}, len(cfg.SaveTimes)),
	}
	for _, st := range cfg.SaveTimes {
		a.saveAt[st] = struct{}{}
	}
	if cfg.Workers > 1 {
		a.workerBufs = make([][]float64, cfg.Workers)
		for w := range a.workerBufs {
			a.workerBufs[w] = make([]float64, g.Len())
		}
	}

	for _, p := range cfg.Ignitions {
		if err := a.ignite(p); err != nil {
			return nil, err
		}
	}

	a.refreshStats()
	a.record()
	return a, nil
}

func validate(cfg *Config) error {
	if cfg.TimeStep <= 0 {
		return fmt.Errorf("automaton: time step %d must be positive", cfg.TimeStep)
	}
	if cfg.MaxSimulationTime < cfg.TimeStep {
		return fmt.Errorf("automaton: max simulation time %d shorter than one step", cfg.MaxSimulationTime)
	}
	if cfg.SaveInterval < 0 {
		return fmt.Errorf("automaton: negative save interval %d", cfg.SaveInterval)
	}
	for _, st := range cfg.SaveTimes {
		if st < 0 {
			return fmt.Errorf("automaton: negative save time %d", st)
		}
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("automaton: negative worker count %d", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}

	p := cfg.Physics
	switch {
	case p.BaseSpreadRate < 0:
		return fmt.Errorf("automaton: negative base spread rate %v", p.BaseSpreadRate)
	case p.FuelCoefficient < 0:
		return fmt.Errorf("automaton: negative fuel coefficient %v", p.FuelCoefficient)
	case p.MaxSlopeDeg <= 0 || p.MaxSlopeDeg > 90:
		return fmt.Errorf("automaton: max slope %v deg outside (0, 90]", p.MaxSlopeDeg)
	case p.MoistureFactorB < 0:
		return fmt.Errorf("automaton: negative moisture factor %v", p.MoistureFactorB)
	case p.EvaporationCoefficient < 0:
		return fmt.Errorf("automaton: negative evaporation coefficient %v", p.EvaporationCoefficient)
	case p.HeatContent <= 0:
		return fmt.Errorf("automaton: heat content %v must be positive", p.HeatContent)
	case p.BaseIgnitionEnergy <= 0:
		return fmt.Errorf("automaton: base ignition energy %v must be positive", p.BaseIgnitionEnergy)
	case p.IgnitionMoistureFactor < 0:
		return fmt.Errorf("automaton: negative ignition moisture factor %v", p.IgnitionMoistureFactor)
	case p.EnergyTransferMultiplier < 0:
		return fmt.Errorf("automaton: negative energy transfer multiplier %v", p.EnergyTransferMultiplier)
	case p.MinEnergyTransfer < 0:
		return fmt.Errorf("automaton: negative minimum energy transfer %v", p.MinEnergyTransfer)
	case p.CrownFireMultiplier < 1:
		return fmt.Errorf("automaton: crown fire multiplier %v below 1", p.CrownFireMultiplier)
	case p.CriticalFireIntensity <= 0:
		return fmt.Errorf("automaton: critical fire intensity %v must be positive", p.CriticalFireIntensity)
	case p.SpottingProbability < 0 || p.SpottingProbability > 1:
		return fmt.Errorf("automaton: spotting probability %v outside [0, 1]", p.SpottingProbability)
	case p.MaxSpottingDistance < 0:
		return fmt.Errorf("automaton: negative max spotting distance %v", p.MaxSpottingDistance)
	}

	env := cfg.Environment
	if env.InitialFuelLoad < 0 {
		return fmt.Errorf("automaton: negative initial fuel load %v", env.InitialFuelLoad)
	}
	if env.InitialMoisture < 0 || env.InitialMoisture > 1 {
		return fmt.Errorf("automaton: initial moisture %v outside [0, 1]", env.InitialMoisture)
	}
	if env.FuelConsumptionRate <= 0 {
		return fmt.Errorf("automaton: fuel consumption rate %v must be positive", env.FuelConsumptionRate)
	}

	maxX := float64(cfg.Terrain.Width-1) * cfg.Terrain.CellSize
	maxY := float64(cfg.Terrain.Height-1) * cfg.Terrain.CellSize
	for n, ip := range cfg.Ignitions {
		if ip.Radius < 0 {
			return fmt.Errorf("automaton: ignition %d: negative radius %v", n, ip.Radius)
		}
		if ip.X < 0 || ip.X > maxX || ip.Y < 0 || ip.Y > maxY {
			return fmt.Errorf("automaton: ignition %d: point (%v, %v) outside the %vx%v m grid",
				n, ip.X, ip.Y, maxX, maxY)
		}
	}
	return nil
}

// ignite transitions every unburned cell within the point's radius straight
// to StateBurning. Overlapping ignition areas are fine; already burning
// cells are left alone.
func (a *Automaton) ignite(p IgnitionPoint) error {
	s := a.cfg.Terrain.CellSize
	minI := int((p.Y - p.Radius) / s)
	maxI := int((p.Y+p.Radius)/s) + 1
	minJ := int((p.X - p.Radius) / s)
	maxJ := int((p.X+p.Radius)/s) + 1

	for i := minI; i <= maxI; i++ {
		for j := minJ; j <= maxJ; j++ {
			c := a.g.At(i, j)
			if c == nil || c.State != grid.StateUnburned {
				continue
			}
			pos := a.t.PositionOf(i, j)
			dx, dy := pos.X-p.X, pos.Y-p.Y
			if dx*dx+dy*dy > p.Radius*p.Radius {
				continue
			}
			if err := a.g.ApplyTransition(c, grid.StateBurning, a.clock); err != nil {
				return err
			}
			a.noteBurning(c)
		}
	}
	return nil
}

// noteBurning latches the boundary flag when a cell on the grid edge
// catches fire.
func (a *Automaton) noteBurning(c *grid.Cell) {
	w, h := a.g.Size()
	if c.I == 0 || c.I == h-1 || c.J == 0 || c.J == w-1 {
		a.boundaryHit = true
	}
}

// Step advances the simulation by one time step. The phase order is fixed:
// energy transfer (reading only pre-step state), spotting, ignition
// transitions, fuel consumption, crown-fire triggers, moisture evaporation,
// statistics, then clock advance with termination checks and snapshot
// recording. Step returns ErrTerminated once the run is over; any other
// error means a broken invariant and aborts the run.
func (a *Automaton) Step() error {
	if a.status.Terminal() {
		return ErrTerminated
	}
	a.status = StatusRunning
	dt := float64(a.cfg.TimeStep)

	a.transferPass(dt)
	if a.cfg.Features.Spotting {
		a.spottingPass()
	}
	if err := a.promoteIgniting(); err != nil {
		return err
	}
	if err := a.igniteFromEnergy(); err != nil {
		return err
	}
	if err := a.consumeFuel(dt); err != nil {
		return err
	}
	if a.cfg.Features.CrownFire {
		a.crownPass()
	}
	if a.cfg.Features.DynamicMoisture {
		a.evaporate(dt)
	}
	a.refreshStats()

	a.clock += a.cfg.TimeStep
	a.checkTermination()
	if a.status.Terminal() || a.savePoint() {
		a.record()
	}
	return nil
}

// promoteIgniting moves every cell that finished its igniting step into
// StateBurning. Cells staged by this step's ignition checks are untouched;
// they burn from the next step on.
func (a *Automaton) promoteIgniting() error {
	for k := 0; k < a.g.Len(); k++ {
		c := a.g.AtIndex(k)
		if c.State != grid.StateIgniting {
			continue
		}
		if err := a.g.ApplyTransition(c, grid.StateBurning, a.clock); err != nil {
			return err
		}
		a.noteBurning(c)
	}
	return nil
}

// igniteFromEnergy folds this step's transfer buffer into the cells'
// accumulated energy, then stages every unburned cell whose energy passed
// its moisture-adjusted threshold. Energy is spent on ignition.
func (a *Automaton) igniteFromEnergy() error {
	for k := 0; k < a.g.Len(); k++ {
		c := a.g.AtIndex(k)
		if in := a.incoming[k]; in > 0 {
			c.Energy += in
			a.incoming[k] = 0
		}
		if c.State != grid.StateUnburned || c.Energy <= 0 {
			continue
		}
		if !a.engine.ShouldIgnite(c.Energy, c.Moisture) {
			continue
		}
		if err := a.g.ApplyTransition(c, grid.StateIgniting, a.clock); err != nil {
			return err
		}
		c.Energy = 0
	}
	return nil
}

func (a *Automaton) consumeFuel(dt float64) error {
	rate := a.cfg.Environment.FuelConsumptionRate
	for c := range a.g.Burning() {
		if _, err := a.g.ConsumeFuel(c, rate, dt, a.clock); err != nil {
			return err
		}
	}
	return nil
}

// crownPass activates the crown layer on burning cells whose fire-line
// intensity exceeds the critical threshold. Activation is permanent and
// feeds back into spread rates from the next transfer pass on.
func (a *Automaton) crownPass() {
	for c := range a.g.Burning() {
		if c.CrownActive() {
			continue
		}
		if a.engine.ShouldCrownTransition(a.fireLineIntensity(c)) {
			c.ActivateCrown()
		}
	}
}

// fireLineIntensity computes the Byram-style intensity of a burning cell
// from its mean spread rate toward unburned neighbors. No unburned
// neighbors means no fire line, intensity 0.
func (a *Automaton) fireLineIntensity(c *grid.Cell) float64 {
	var sum float64
	count := 0
	buf := a.neighborBuf[:0]
	buf = a.t.AppendNeighbors(buf, c.I, c.J)
	a.neighborBuf = buf
	for _, n := range buf {
		dst := a.g.At(n.I, n.J)
		if dst.State != grid.StateUnburned {
			continue
		}
		sum += a.engine.SpreadRate(c, dst)
		count++
	}
	if count == 0 {
		return 0
	}
	return a.engine.FireLineIntensity(c, sum/float64(count))
}

func (a *Automaton) evaporate(dt float64) {
	loss := a.cfg.Physics.EvaporationCoefficient * dt
	if loss <= 0 {
		return
	}
	for k := 0; k < a.g.Len(); k++ {
		c := a.g.AtIndex(k)
		if c.State == grid.StateBurnedOut {
			continue
		}
		c.Moisture -= loss
		if c.Moisture < 0 {
			c.Moisture = 0
		}
	}
}

// checkTermination resolves the run status at the end of a step. Boundary
// contact outranks the other reasons; a fire that is simply out ends the
// run naturally; otherwise the clock cap applies.
func (a *Automaton) checkTermination() {
	switch {
	case a.boundaryHit:
		a.status = StatusTerminatedBoundary
	case a.stats.Surface.Burning == 0 && a.stats.Surface.Igniting == 0:
		a.status = StatusTerminatedNaturally
	case a.clock >= a.cfg.MaxSimulationTime:
		a.status = StatusTerminatedTimeout
	}
}

func (a *Automaton) savePoint() bool {
	if a.cfg.SaveInterval > 0 && a.clock%a.cfg.SaveInterval == 0 {
		return true
	}
	_, ok := a.saveAt[a.clock]
	return ok
}

// Clock returns the simulated minutes elapsed.
func (a *Automaton) Clock() int { return a.clock }

// Status returns the run status.
func (a *Automaton) Status() Status { return a.status }

// Stats returns the statistics computed at the end of the last step.
func (a *Automaton) Stats() Stats { return a.stats }

// Grid exposes the live cell arena. Callers must treat it as read-only.
func (a *Automaton) Grid() *grid.Grid { return a.g }

// Terrain returns the geometry the run was built over.
func (a *Automaton) Terrain() *terrain.Terrain { return a.t }

// Result summarizes a finished run.
type Result struct {
	Status    Status
	FinalTime int
	Stats     Stats
}

// Run steps the simulation until it terminates or ctx is canceled, logging
// progress once per simulated hour.
func (a *Automaton) Run(ctx context.Context) (Result, error) {
	log := ctxlog.FromContext(ctx)
	for !a.status.Terminal() {
		select {
		case <-ctx.Done():
			return a.result(), ctx.Err()
		default:
		}
		if err := a.Step(); err != nil {
			return a.result(), err
		}
		if a.clock%60 == 0 {
			log.Debug("simulation progress",
				"minutes", a.clock,
				"burning", a.stats.Surface.Burning,
				"burned_area_m2", a.stats.BurnedArea)
		}
	}
	log.Info("simulation finished",
		"status", a.status.String(),
		"minutes", a.clock,
		"burned_area_m2", a.stats.BurnedArea,
		"fuel_consumed_kg", a.stats.TotalFuelConsumed)
	return a.result(), nil
}

func (a *Automaton) result() Result {
	return Result{Status: a.status, FinalTime: a.clock, Stats: a.stats}
}
