// Package mpr computes the three orthogonal reslice planes (axial, sagittal,
// coronal) of a volume from the current rotation sequence and MPR origin, and
// caches the per-frame plane state a cine loop needs.
package mpr

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sudomakeinstall/cardio/pkg/orientation"
	"github.com/sudomakeinstall/cardio/pkg/rotation"
)

// ErrInvalidView is returned for view names other than axial, sagittal or coronal
var ErrInvalidView = errors.New("invalid mpr view")

// View names one of the three reslice planes
type View string

const (
	Axial    View = "axial"
	Sagittal View = "sagittal"
	Coronal  View = "coronal"
)

// Views lists every view in display order
var Views = []View{Axial, Sagittal, Coronal}

func ParseView(s string) (View, error) {
	switch View(strings.ToLower(s)) {
	case Axial:
		return Axial, nil
	case Sagittal:
		return Sagittal, nil
	case Coronal:
		return Coronal, nil
	}
	return "", errors.Wrapf(ErrInvalidView, "%q", s)
}

var targetAxcodes = map[View]string{
	Axial:    "LAS",
	Sagittal: "ASL",
	Coronal:  "LSA",
}

// Unit plane normals in LPS before any rotation
var baseNormals = map[View]r3.Vec{
	Axial:    {X: 0, Y: 0, Z: 1},
	Sagittal: {X: 1, Y: 0, Z: 0},
	Coronal:  {X: 0, Y: 1, Z: 0},
}

// baseTransforms never change after init
var baseTransforms = map[View]*mat.Dense{}

func init() {
	for view, code := range targetAxcodes {
		baseTransforms[view] = orientation.MustAxcodeTransformMatrix("LPS", code)
	}
}

// BaseTransform returns a copy of the fixed LPS->view basis transform
func BaseTransform(view View) (*mat.Dense, error) {
	base, ok := baseTransforms[view]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidView, "%q", view)
	}
	return mat.DenseCopyOf(base), nil
}

// ViewMatrices holds one 4x4 reslice matrix per view
type ViewMatrices map[View]*mat.Dense

// normalize is the single place a sequence is brought into the ITK
// convention before any matrix is built. A nil sequence means no rotation.
func normalize(seq *rotation.Sequence) (*rotation.Sequence, error) {
	if seq == nil {
		return rotation.NewSequence(""), nil
	}
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	return seq.Normalized(), nil
}

func cumulativeRotation(n *rotation.Sequence) *mat.Dense {
	c := orientation.Identity3()
	for _, step := range n.Steps {
		if !step.Visible {
			continue
		}
		r := orientation.EulerAngleToRotationMatrix(step.Axis, step.Angle, n.Metadata.AngleUnits)
		var next mat.Dense
		next.Mul(c, r)
		c = &next
	}
	return c
}

// CumulativeRotation composes the rotation of every visible step in sequence
// order, C = C * R(step). Invisible steps contribute nothing but keep their
// index. The result is the identity for an empty or nil sequence.
func CumulativeRotation(seq *rotation.Sequence) (*mat.Dense, error) {
	n, err := normalize(seq)
	if err != nil {
		return nil, err
	}
	return cumulativeRotation(n), nil
}

// ComputeViews builds the reslice matrix of every view. origin is given in
// the sequence's own component order and is swapped into ITK order for ROMA
// sequences. All three views share the origin.
func ComputeViews(seq *rotation.Sequence, origin r3.Vec) (ViewMatrices, error) {
	n, err := normalize(seq)
	if err != nil {
		return nil, err
	}
	c := cumulativeRotation(n)
	lps := itkOrigin(seq, origin)

	views := ViewMatrices{}
	for _, view := range Views {
		var final mat.Dense
		final.Mul(c, baseTransforms[view])
		views[view] = orientation.CreateResliceMatrix(&final, lps)
	}
	return views, nil
}

// ScrollVector is the LPS direction the view's slice moves in when scrolled
func ScrollVector(view View, seq *rotation.Sequence) (r3.Vec, error) {
	normal, ok := baseNormals[view]
	if !ok {
		return r3.Vec{}, errors.Wrapf(ErrInvalidView, "%q", view)
	}
	c, err := CumulativeRotation(seq)
	if err != nil {
		return r3.Vec{}, err
	}
	return orientation.MulVec3(c, normal), nil
}

// Drag moves origin by delta along the view's scroll vector and applies the
// origin policy. origin and the result use the sequence's component order;
// bounds are physical LPS.
func Drag(origin r3.Vec, view View, delta float64, seq *rotation.Sequence, policy OriginPolicy, bounds [6]float64) (r3.Vec, error) {
	scroll, err := ScrollVector(view, seq)
	if err != nil {
		return r3.Vec{}, err
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return r3.Vec{}, errors.Wrapf(rotation.ErrInvalidOrigin, "drag delta %v is not finite", delta)
	}

	moved := r3.Add(itkOrigin(seq, origin), r3.Scale(delta, scroll))
	moved = policy.Apply(moved, bounds)
	return fromITKOrigin(seq, moved), nil
}

func isROMA(seq *rotation.Sequence) bool {
	return seq != nil && seq.Metadata.IndexOrder == orientation.ROMA
}

func itkOrigin(seq *rotation.Sequence, origin r3.Vec) r3.Vec {
	if isROMA(seq) {
		return r3.Vec{X: origin.Z, Y: origin.Y, Z: origin.X}
	}
	return origin
}

// The ITK/ROMA origin swap is its own inverse
func fromITKOrigin(seq *rotation.Sequence, origin r3.Vec) r3.Vec {
	return itkOrigin(seq, origin)
}
