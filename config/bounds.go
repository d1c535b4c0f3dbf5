package config

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Axis identifies one spatial coordinate.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return "?"
}

// Coordinates selects how the combined distance constraint is applied.
type Coordinates string

const (
	CoordCartesian   Coordinates = "cartesian"
	CoordCylindrical Coordinates = "cylindrical"
	CoordSpherical   Coordinates = "spherical"
)

// StageBounds is the authoritative clamp applied to every position
// update before it reaches parameter state, regardless of which
// transport or protocol produced it.
type StageBounds struct {
	XMin        float32     `yaml:"x-min"`
	XMax        float32     `yaml:"x-max"`
	YMin        float32     `yaml:"y-min"`
	YMax        float32     `yaml:"y-max"`
	ZMax        float32     `yaml:"z-max"`
	MaxDistance float32     `yaml:"max-distance"`
	Coordinates Coordinates `yaml:"coordinates"`
}

// DefaultStageBounds matches a 20x20m stage with a 10m ceiling.
var DefaultStageBounds = StageBounds{
	XMin: -10, XMax: 10,
	YMin: -10, YMax: 10,
	ZMax:        10,
	MaxDistance: 14,
	Coordinates: CoordCartesian,
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp bounds a single coordinate. Z has no configured floor; zero is
// the stage plane.
func (s StageBounds) Clamp(axis Axis, v float32) float32 {
	switch axis {
	case AxisX:
		return clamp(v, s.XMin, s.XMax)
	case AxisY:
		return clamp(v, s.YMin, s.YMax)
	case AxisZ:
		return clamp(v, 0, s.ZMax)
	}
	return v
}

// ClampDistance applies the combined distance constraint for
// cylindrical and spherical coordinate modes, scaling the point back
// onto the bounding circle/sphere when it lies outside. Cartesian mode
// leaves the point alone; the per-axis clamps already bound it.
func (s StageBounds) ClampDistance(x, y, z float32) (float32, float32, float32) {
	if s.Coordinates == CoordCartesian || s.MaxDistance <= 0 {
		return x, y, z
	}
	var d float64
	switch s.Coordinates {
	case CoordCylindrical:
		d = math.Hypot(float64(x), float64(y))
	case CoordSpherical:
		d = math.Sqrt(float64(x)*float64(x) + float64(y)*float64(y) + float64(z)*float64(z))
	}
	if d <= float64(s.MaxDistance) || d == 0 {
		return x, y, z
	}
	k := float32(float64(s.MaxDistance) / d)
	if s.Coordinates == CoordCylindrical {
		return x * k, y * k, z
	}
	return x * k, y * k, z * k
}
