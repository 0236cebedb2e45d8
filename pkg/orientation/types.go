// Package orientation implements the anatomical axis-code and rotation math
// behind multi-planar reconstruction: validating 3-letter axcodes, building
// basis transforms between them, single-axis Euler rotations, 4x4 reslice
// matrices and direction resets for axis-aligned images.
//
// All physical coordinates are DICOM LPS.
package orientation

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidAxcode is returned for any axis code that fails IsValidAxcode
	ErrInvalidAxcode = errors.New("invalid axcode")

	// ErrNotAxisAligned is returned when a direction reset is requested for an oblique image
	ErrNotAxisAligned = errors.New("image direction is not axis-aligned")

	// ErrInvalidAxis is returned for rotation axes other than X, Y or Z
	ErrInvalidAxis = errors.New("invalid euler axis")

	// ErrInvalidUnits is returned for angle units other than degrees or radians
	ErrInvalidUnits = errors.New("invalid angle units")

	// ErrInvalidConvention is returned for axis conventions other than itk or roma
	ErrInvalidConvention = errors.New("invalid axis convention")
)

// EulerAxis is the coordinate axis a single rotation step turns about
type EulerAxis string

const (
	AxisX EulerAxis = "X"
	AxisY EulerAxis = "Y"
	AxisZ EulerAxis = "Z"
)

// ParseEulerAxis accepts "X", "Y" or "Z" (case-insensitive)
func ParseEulerAxis(s string) (EulerAxis, error) {
	switch EulerAxis(strings.ToUpper(s)) {
	case AxisX:
		return AxisX, nil
	case AxisY:
		return AxisY, nil
	case AxisZ:
		return AxisZ, nil
	}
	return "", errors.Wrapf(ErrInvalidAxis, "%q", s)
}

// AngleUnits declares how a stored angle value is to be read
type AngleUnits string

const (
	Degrees AngleUnits = "degrees"
	Radians AngleUnits = "radians"
)

// ParseAngleUnits accepts "degrees" or "radians" (case-insensitive)
func ParseAngleUnits(s string) (AngleUnits, error) {
	switch AngleUnits(strings.ToLower(s)) {
	case Degrees:
		return Degrees, nil
	case Radians:
		return Radians, nil
	}
	return "", errors.Wrapf(ErrInvalidUnits, "%q", s)
}

// ToRadians converts an angle expressed in u into radians
func (u AngleUnits) ToRadians(angle float64) float64 {
	if u == Degrees {
		return angle * math.Pi / 180
	}
	return angle
}

// FromRadians converts an angle in radians into u
func (u AngleUnits) FromRadians(angle float64) float64 {
	if u == Degrees {
		return angle * 180 / math.Pi
	}
	return angle
}

// Convert rescales angle from u into target
func (u AngleUnits) Convert(angle float64, target AngleUnits) float64 {
	if u == target {
		return angle
	}
	return target.FromRadians(u.ToRadians(angle))
}

// AxisConvention names the axis labelling scheme rotation steps are written in
type AxisConvention string

const (
	ITK  AxisConvention = "itk"
	ROMA AxisConvention = "roma"
)

// ParseAxisConvention accepts "itk" or "roma" (case-insensitive)
func ParseAxisConvention(s string) (AxisConvention, error) {
	switch AxisConvention(strings.ToLower(s)) {
	case ITK:
		return ITK, nil
	case ROMA:
		return ROMA, nil
	}
	return "", errors.Wrapf(ErrInvalidConvention, "%q", s)
}

// SwapXZ is the fixed ITK<->ROMA axis pairing: X<->Z, Y unchanged
func SwapXZ(axis EulerAxis) EulerAxis {
	switch axis {
	case AxisX:
		return AxisZ
	case AxisZ:
		return AxisX
	}
	return axis
}
