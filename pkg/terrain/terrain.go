// Package terrain models the ground a fire spreads over: cell positions in
// meters, per-cell elevation and surface normal, and the Moore neighborhood
// with physical distances. A Terrain is immutable once built.
package terrain

import (
	"fmt"
	"math"

	"firegrid/pkg/core"
)

// Kind selects how a terrain is constructed.
type Kind string

const (
	// KindIdeal is the analytic two-region terrain: a flat plane meeting an
	// inclined plane along a dividing line of constant y.
	KindIdeal Kind = "ideal"
	// KindReal samples elevation and normals from an external height field.
	KindReal Kind = "real"
)

// Region classifies a cell as lying on flat ground or on a slope.
type Region uint8

const (
	RegionFlat Region = iota
	RegionSlope
)

func (r Region) String() string {
	switch r {
	case RegionFlat:
		return "flat"
	case RegionSlope:
		return "slope"
	default:
		return fmt.Sprintf("region(%d)", uint8(r))
	}
}

// Spec describes a terrain to build. Width counts columns (x), Height counts
// rows (y). CellSize and IntersectionDistance are meters; SlopeAngleDeg is
// the incline of the sloped region for the ideal kind.
type Spec struct {
	Kind                 Kind
	Width                int
	Height               int
	CellSize             float64
	SlopeAngleDeg        float64
	IntersectionDistance float64
}

// HeightField supplies elevation and unit surface normal at a continuous
// position, for terrains of KindReal. Implementations must be safe for
// concurrent reads.
type HeightField interface {
	Sample(x, y float64) (elevation float64, normal core.Vec3)
}

// Terrain is an immutable grid geometry: per-cell elevation, unit normal and
// region tag, plus the cell-size metric used for distances and areas.
type Terrain struct {
	spec    Spec
	elev    []float64
	normals []core.Vec3
	regions []Region
}

// Build constructs a terrain of KindIdeal from spec. Row i sits at
// y = i*CellSize, column j at x = j*CellSize. Cells with y at or before
// IntersectionDistance lie on the flat region (elevation 0, normal straight
// up); cells beyond it lie on the slope, rising at SlopeAngleDeg with
// constant normal (0, -sin, cos).
func Build(spec Spec) (*Terrain, error) {
	if spec.Kind == KindReal {
		return nil, fmt.Errorf("terrain: kind %q requires a height field, use BuildReal", spec.Kind)
	}
	if spec.Kind != KindIdeal {
		return nil, fmt.Errorf("terrain: unknown kind %q", spec.Kind)
	}
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	if spec.SlopeAngleDeg < 0 || spec.SlopeAngleDeg >= 90 {
		return nil, fmt.Errorf("terrain: slope angle %v deg outside [0, 90)", spec.SlopeAngleDeg)
	}
	if spec.IntersectionDistance < 0 {
		return nil, fmt.Errorf("terrain: intersection distance %v is negative", spec.IntersectionDistance)
	}

	t := newTerrain(spec)
	slopeRad := spec.SlopeAngleDeg * math.Pi / 180
	tanSlope := math.Tan(slopeRad)
	slopeNormal := core.Vec3{X: 0, Y: -math.Sin(slopeRad), Z: math.Cos(slopeRad)}
	up := core.Vec3{X: 0, Y: 0, Z: 1}

	for i := 0; i < spec.Height; i++ {
		y := float64(i) * spec.CellSize
		for j := 0; j < spec.Width; j++ {
			idx := i*spec.Width + j
			if y <= spec.IntersectionDistance {
				t.elev[idx] = 0
				t.normals[idx] = up
				t.regions[idx] = RegionFlat
			} else {
				t.elev[idx] = (y - spec.IntersectionDistance) * tanSlope
				t.normals[idx] = slopeNormal
				t.regions[idx] = RegionSlope
			}
		}
	}
	return t, nil
}

// BuildReal constructs a terrain of KindReal by sampling hf at every cell
// center. Cells whose normal is not vertical (within a small tolerance) are
// tagged RegionSlope.
func BuildReal(spec Spec, hf HeightField) (*Terrain, error) {
	if spec.Kind != KindReal {
		return nil, fmt.Errorf("terrain: BuildReal requires kind %q, got %q", KindReal, spec.Kind)
	}
	if hf == nil {
		return nil, fmt.Errorf("terrain: nil height field")
	}
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	const flatTolerance = 1e-9

	t := newTerrain(spec)
	for i := 0; i < spec.Height; i++ {
		for j := 0; j < spec.Width; j++ {
			idx := i*spec.Width + j
			elev, n := hf.Sample(float64(j)*spec.CellSize, float64(i)*spec.CellSize)
			n = n.Normalize()
			if n.IsZero() {
				return nil, fmt.Errorf("terrain: height field returned zero normal at cell (%d, %d)", i, j)
			}
			t.elev[idx] = elev
			t.normals[idx] = n
			if math.Abs(n.X) < flatTolerance && math.Abs(n.Y) < flatTolerance {
				t.regions[idx] = RegionFlat
			} else {
				t.regions[idx] = RegionSlope
			}
		}
	}
	return t, nil
}

func validateSpec(spec Spec) error {
	if spec.Width <= 0 || spec.Height <= 0 {
		return fmt.Errorf("terrain: nonpositive dimensions %dx%d", spec.Width, spec.Height)
	}
	if spec.CellSize <= 0 {
		return fmt.Errorf("terrain: nonpositive cell size %v", spec.CellSize)
	}
	return nil
}

func newTerrain(spec Spec) *Terrain {
	total := spec.Width * spec.Height
	return &Terrain{
		spec:    spec,
		elev:    make([]float64, total),
		normals: make([]core.Vec3, total),
		regions: make([]Region, total),
	}
}

// Size returns the grid dimensions in cells (columns, rows).
func (t *Terrain) Size() (w, h int) { return t.spec.Width, t.spec.Height }

// CellSize returns the cell edge length in meters.
func (t *Terrain) CellSize() float64 { return t.spec.CellSize }

// Spec returns the Spec the terrain was built from.
func (t *Terrain) Spec() Spec { return t.spec }

func (t *Terrain) index(i, j int) int { return i*t.spec.Width + j }

// InBounds reports whether (i, j) addresses a cell.
func (t *Terrain) InBounds(i, j int) bool {
	return i >= 0 && i < t.spec.Height && j >= 0 && j < t.spec.Width
}

// ElevationAt returns the elevation of cell (i, j) in meters.
func (t *Terrain) ElevationAt(i, j int) float64 {
	return t.elev[t.index(i, j)]
}

// NormalOf returns the unit surface normal of cell (i, j).
func (t *Terrain) NormalOf(i, j int) core.Vec3 {
	return t.normals[t.index(i, j)]
}

// RegionOf returns the region tag of cell (i, j).
func (t *Terrain) RegionOf(i, j int) Region {
	return t.regions[t.index(i, j)]
}

// PositionOf returns the 3D position of the cell center in meters.
func (t *Terrain) PositionOf(i, j int) core.Vec3 {
	return core.Vec3{
		X: float64(j) * t.spec.CellSize,
		Y: float64(i) * t.spec.CellSize,
		Z: t.elev[t.index(i, j)],
	}
}
