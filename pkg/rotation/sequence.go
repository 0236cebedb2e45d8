// Package rotation models the user-composed MPR rotation sequence: an ordered
// list of single-axis rotation steps, the convention and units their values are
// expressed in, and the MPR origin. Sequences round-trip losslessly through TOML.
package rotation

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sudomakeinstall/cardio/pkg/orientation"
)

// CoordinateSystem is the only physical coordinate system sequences are stored in
const CoordinateSystem = "LPS"

var (
	// ErrInvalidStep marks malformed rotation step data
	ErrInvalidStep = errors.New("invalid rotation step")

	// ErrInvalidMetadata marks missing or unrecognized sequence metadata
	ErrInvalidMetadata = errors.New("invalid rotation metadata")

	// ErrInvalidOrigin marks an MPR origin that is not 3 finite numbers
	ErrInvalidOrigin = errors.New("invalid mpr origin")

	// ErrNotDeletable is returned when removing a step marked non-deletable
	ErrNotDeletable = errors.New("rotation step is not deletable")

	// ErrNameNotEditable is returned when renaming a step whose name is fixed
	ErrNameNotEditable = errors.New("rotation step name is not editable")
)

// Step is one single-axis rotation. Axis and Angle are read under the owning
// sequence's Metadata.
type Step struct {
	Axis         orientation.EulerAxis `json:"axis"`
	Angle        float64               `json:"angle"`
	Visible      bool                  `json:"visible"`
	Name         string                `json:"name"`
	NameEditable bool                  `json:"name_editable"`
	Deletable    bool                  `json:"deletable"`
}

// NewStep returns a visible, editable, deletable zero-angle step about axis
func NewStep(axis orientation.EulerAxis) Step {
	return Step{
		Axis:         axis,
		Visible:      true,
		NameEditable: true,
		Deletable:    true,
	}
}

// Metadata declares how every step's axis and angle are to be interpreted
type Metadata struct {
	// CoordinateSystem is always "LPS"
	CoordinateSystem string `json:"coordinate_system"`

	// IndexOrder is the axis convention the steps are written in
	IndexOrder orientation.AxisConvention `json:"index_order"`

	// AngleUnits is the unit of every step angle
	AngleUnits orientation.AngleUnits `json:"angle_units"`

	// Timestamp is an ISO-8601 creation time, also used as the file name
	Timestamp string `json:"timestamp"`

	// VolumeLabel identifies the volume the sequence belongs to
	VolumeLabel string `json:"volume_label"`
}

// Sequence is the complete rotation state of a viewing session
type Sequence struct {
	Metadata Metadata `json:"metadata"`
	Steps    []Step   `json:"angles_list"`

	// Origin is the MPR origin in LPS physical coordinates, with components
	// ordered according to Metadata.IndexOrder
	Origin r3.Vec `json:"mpr_origin"`
}

// TimestampFormat is the ISO-8601 layout used for new sequences, to the
// millisecond so saves within one second get distinct files
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// NewSequence creates an empty sequence in ITK convention, radians, zero origin
func NewSequence(volumeLabel string) *Sequence {
	return NewSequenceAt(volumeLabel, time.Now())
}

// NewSequenceAt is NewSequence with an explicit creation time
func NewSequenceAt(volumeLabel string, created time.Time) *Sequence {
	return &Sequence{
		Metadata: Metadata{
			CoordinateSystem: CoordinateSystem,
			IndexOrder:       orientation.ITK,
			AngleUnits:       orientation.Radians,
			Timestamp:        created.UTC().Format(TimestampFormat),
			VolumeLabel:      volumeLabel,
		},
		Steps: []Step{},
	}
}

// Clone returns a deep copy
func (s *Sequence) Clone() *Sequence {
	out := *s
	out.Steps = make([]Step, len(s.Steps))
	copy(out.Steps, s.Steps)
	return &out
}

// Validate checks metadata, every step and the origin
func (s *Sequence) Validate() error {
	if s.Metadata.CoordinateSystem != CoordinateSystem {
		return errors.Wrapf(ErrInvalidMetadata, "coordinate_system must be %q, got %q", CoordinateSystem, s.Metadata.CoordinateSystem)
	}
	if _, err := orientation.ParseAxisConvention(string(s.Metadata.IndexOrder)); err != nil {
		return errors.Wrap(ErrInvalidMetadata, err.Error())
	}
	if _, err := orientation.ParseAngleUnits(string(s.Metadata.AngleUnits)); err != nil {
		return errors.Wrap(ErrInvalidMetadata, err.Error())
	}
	for i, step := range s.Steps {
		if _, err := orientation.ParseEulerAxis(string(step.Axis)); err != nil {
			return errors.Wrapf(ErrInvalidStep, "step %d: %v", i, err)
		}
		if math.IsNaN(step.Angle) || math.IsInf(step.Angle, 0) {
			return errors.Wrapf(ErrInvalidStep, "step %d: angle %v is not finite", i, step.Angle)
		}
	}
	for _, v := range []float64{s.Origin.X, s.Origin.Y, s.Origin.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInvalidOrigin, "%v", s.Origin)
		}
	}
	return nil
}

// StepAngles maps a step index to a replacement angle, in the sequence's
// units. It stands in for per-index slider state.
type StepAngles map[int]float64

// WithAngles returns a copy of s with the angle of each indexed step replaced.
// Indices outside the sequence are ignored.
func (s *Sequence) WithAngles(angles StepAngles) *Sequence {
	out := s.Clone()
	for i, a := range angles {
		if i >= 0 && i < len(out.Steps) {
			out.Steps[i].Angle = a
		}
	}
	return out
}

// Equal reports whether two sequences match, with angles and origin compared
// within tol
func (s *Sequence) Equal(o *Sequence, tol float64) bool {
	if s.Metadata != o.Metadata || len(s.Steps) != len(o.Steps) {
		return false
	}
	for i := range s.Steps {
		a, b := s.Steps[i], o.Steps[i]
		if a.Axis != b.Axis || a.Visible != b.Visible || a.Name != b.Name ||
			a.NameEditable != b.NameEditable || a.Deletable != b.Deletable {
			return false
		}
		if math.Abs(a.Angle-b.Angle) > tol {
			return false
		}
	}
	return r3.Norm(r3.Sub(s.Origin, o.Origin)) <= tol
}
