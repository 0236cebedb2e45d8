package rotation

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sudomakeinstall/cardio/pkg/orientation"
)

// ConvertConvention re-expresses every step and the origin in target. Moving
// between ITK and ROMA swaps X<->Z on each step axis, negates each angle and
// swaps origin components 0 and 2. The converted state is built aside and
// swapped in with one assignment, so no partial conversion is observable.
func (s *Sequence) ConvertConvention(target orientation.AxisConvention) error {
	target, err := orientation.ParseAxisConvention(string(target))
	if err != nil {
		return err
	}
	if s.Metadata.IndexOrder == target {
		return nil
	}
	*s = *convertedConvention(s, target)
	return nil
}

// ConvertUnits rescales every stored angle into target
func (s *Sequence) ConvertUnits(target orientation.AngleUnits) error {
	target, err := orientation.ParseAngleUnits(string(target))
	if err != nil {
		return err
	}
	if s.Metadata.AngleUnits == target {
		return nil
	}
	*s = *convertedUnits(s, target)
	return nil
}

func convertedUnits(s *Sequence, target orientation.AngleUnits) *Sequence {
	out := s.Clone()
	for i := range out.Steps {
		out.Steps[i].Angle = s.Metadata.AngleUnits.Convert(s.Steps[i].Angle, target)
	}
	out.Metadata.AngleUnits = target
	return out
}

// Normalized returns a copy expressed in the ITK convention, units unchanged.
// The MPR pipeline only ever consumes normalized sequences.
func (s *Sequence) Normalized() *Sequence {
	if s.Metadata.IndexOrder == orientation.ITK {
		return s.Clone()
	}
	return convertedConvention(s, orientation.ITK)
}

// ITKOrigin returns the origin in ITK/LPS component order
func (s *Sequence) ITKOrigin() r3.Vec {
	if s.Metadata.IndexOrder == orientation.ROMA {
		return swapOrigin(s.Origin)
	}
	return s.Origin
}

// SetITKOrigin stores an origin given in ITK/LPS component order
func (s *Sequence) SetITKOrigin(o r3.Vec) {
	if s.Metadata.IndexOrder == orientation.ROMA {
		o = swapOrigin(o)
	}
	s.Origin = o
}

func convertedConvention(s *Sequence, target orientation.AxisConvention) *Sequence {
	out := s.Clone()
	for i, step := range s.Steps {
		out.Steps[i].Axis = orientation.SwapXZ(step.Axis)
		out.Steps[i].Angle = -step.Angle
	}
	out.Origin = swapOrigin(s.Origin)
	out.Metadata.IndexOrder = target
	return out
}

func swapOrigin(o r3.Vec) r3.Vec {
	return r3.Vec{X: o.Z, Y: o.Y, Z: o.X}
}
