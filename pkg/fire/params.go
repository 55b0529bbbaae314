package fire

import (
	"math"

	"firegrid/pkg/core"
)

// Params are the physical coefficients of the spread model. Zero values are
// not meaningful; start from DefaultParams and override.
type Params struct {
	// BaseSpreadRate is R0, the no-wind no-slope spread rate in m/min.
	BaseSpreadRate float64
	// FuelCoefficient is Ks, the fuel-type scaling factor.
	FuelCoefficient float64

	// SlopeFactorA scales the exponential slope effect; MaxSlopeDeg clips
	// the slope angle fed into it, in degrees.
	SlopeFactorA float64
	MaxSlopeDeg  float64

	// Wind coupling: factor = 1 + c*|Vw|^d * k*cos(alpha).
	WindSpeedFactorC     float64
	WindSpeedPowerD      float64
	WindDirectionFactorK float64

	// MoistureFactorB scales the exponential moisture damping.
	MoistureFactorB float64
	// EvaporationCoefficient is moisture lost per minute under dynamic
	// moisture, as an absolute fraction.
	EvaporationCoefficient float64

	// HeatContent is the fuel heat of combustion in kJ/kg.
	HeatContent float64

	// BaseIgnitionEnergy is the threshold for a bone-dry cell in kJ;
	// IgnitionMoistureFactor raises it linearly with moisture.
	BaseIgnitionEnergy     float64
	IgnitionMoistureFactor float64

	// EnergyTransferMultiplier scales every transfer; MinEnergyTransfer is
	// the per-minute transfer floor in kJ that keeps a front creeping.
	EnergyTransferMultiplier float64
	MinEnergyTransfer        float64

	// Crown fire: outgoing spread from a crown-active cell is multiplied by
	// CrownFireMultiplier; the crown layer triggers when fire-line intensity
	// exceeds CriticalFireIntensity (kW/m).
	CrownFireMultiplier   float64
	CriticalFireIntensity float64

	// Spotting: per burning cell per step, an ember launches with
	// SpottingProbability and lands at most MaxSpottingDistance meters away.
	SpottingProbability float64
	MaxSpottingDistance float64
}

// DefaultParams returns the reference coefficient set for pine-like surface
// fuel.
func DefaultParams() Params {
	return Params{
		BaseSpreadRate:           0.5,
		FuelCoefficient:          1.2,
		SlopeFactorA:             0.3,
		MaxSlopeDeg:              55,
		WindSpeedFactorC:         0.4,
		WindSpeedPowerD:          1.5,
		WindDirectionFactorK:     3.0,
		MoistureFactorB:          8.0,
		EvaporationCoefficient:   0.001,
		HeatContent:              18500,
		BaseIgnitionEnergy:       100,
		IgnitionMoistureFactor:   2.0,
		EnergyTransferMultiplier: 1.0,
		MinEnergyTransfer:        0,
		CrownFireMultiplier:      3.0,
		CriticalFireIntensity:    500,
		SpottingProbability:      0.1,
		MaxSpottingDistance:      500,
	}
}

// Features are capability switches. They gate whole scheduler phases, never
// individual formula branches: with Wind off the engine simply receives a
// zero wind vector, with Spotting off the spotting phase is skipped, and so
// on.
type Features struct {
	Wind            bool
	CrownFire       bool
	Spotting        bool
	DynamicMoisture bool
}

// DefaultFeatures enables the full model.
func DefaultFeatures() Features {
	return Features{Wind: true, CrownFire: true, Spotting: true, DynamicMoisture: true}
}

// Environment is the initial condition of the fuel bed plus the ambient
// wind.
type Environment struct {
	// WindVector is the ambient wind in m/s. Z is ignored by the ideal
	// terrain kinds but kept for height-field terrains.
	WindVector core.Vec3
	// InitialFuelLoad (kg/m2) and InitialMoisture (fraction) seed every
	// cell.
	InitialFuelLoad float64
	InitialMoisture float64
	// FuelConsumptionRate is kg/m2 burned per minute in a burning cell.
	FuelConsumptionRate float64
}

// DefaultEnvironment returns calm air over the reference fuel bed.
func DefaultEnvironment() Environment {
	return Environment{
		InitialFuelLoad:     2.0,
		InitialMoisture:     0.12,
		FuelConsumptionRate: 0.1,
	}
}

// WindFromSpeedDirection builds a horizontal wind vector from a speed and a
// compass-free direction in degrees (0 along +x, counterclockwise).
func WindFromSpeedDirection(speed, directionDeg float64) core.Vec3 {
	rad := directionDeg * math.Pi / 180
	return core.Vec3{X: speed * math.Cos(rad), Y: speed * math.Sin(rad)}
}
