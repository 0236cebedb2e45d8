package mpr

import (
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// OriginPolicy decides what happens when the MPR origin is moved outside the
// volume's physical bounds
type OriginPolicy string

const (
	// Unbounded lets the origin pan past the edge of the volume
	Unbounded OriginPolicy = "unbounded"

	// Clamp keeps every origin component within the volume bounds
	Clamp OriginPolicy = "clamp"
)

// ParseOriginPolicy accepts "unbounded" or "clamp". An empty string is Unbounded.
func ParseOriginPolicy(s string) (OriginPolicy, error) {
	switch OriginPolicy(strings.ToLower(s)) {
	case "", Unbounded:
		return Unbounded, nil
	case Clamp:
		return Clamp, nil
	}
	return "", errors.Errorf("invalid origin policy %q", s)
}

// Apply returns origin adjusted by the policy. bounds is
// [xmin, xmax, ymin, ymax, zmin, zmax].
func (p OriginPolicy) Apply(origin r3.Vec, bounds [6]float64) r3.Vec {
	if p != Clamp {
		return origin
	}
	return r3.Vec{
		X: clamp(origin.X, bounds[0], bounds[1]),
		Y: clamp(origin.Y, bounds[2], bounds[3]),
		Z: clamp(origin.Z, bounds[4], bounds[5]),
	}
}

func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
