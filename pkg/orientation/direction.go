package orientation

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"

	"github.com/sudomakeinstall/cardio/internal/models"
)

// alignTolerance is the absolute tolerance used to decide whether a direction
// entry is zero or ±1
const alignTolerance = 1e-6

// IsAxisAligned reports whether every column of a 3x3 direction matrix has
// exactly one nonzero entry and that entry is ±1
func IsAxisAligned(direction mat.Matrix) bool {
	rows, cols := direction.Dims()
	for c := 0; c < cols; c++ {
		nonZero := 0
		for r := 0; r < rows; r++ {
			v := direction.At(r, c)
			if scalar.EqualWithinAbs(v, 0, alignTolerance) {
				continue
			}
			nonZero++
			if !scalar.EqualWithinAbs(math.Abs(v), 1, alignTolerance) {
				return false
			}
		}
		if nonZero != 1 {
			return false
		}
	}
	return true
}

// axisMapping describes where each input index axis lands physically
type axisMapping struct {
	// row[c] is the physical axis index axis c points along
	row [3]int

	// flip[c] is true when index axis c points along the negative physical axis
	flip [3]bool

	// source[r] is the index axis that points along physical axis r
	source [3]int
}

func mappingFor(direction [3][3]float64) (axisMapping, error) {
	var m axisMapping
	claimed := [3]bool{}
	for c := 0; c < 3; c++ {
		found := -1
		for r := 0; r < 3; r++ {
			if !scalar.EqualWithinAbs(direction[r][c], 0, alignTolerance) {
				found = r
				break
			}
		}
		if found < 0 || claimed[found] {
			return m, errors.Wrapf(ErrNotAxisAligned, "index axis %d has no unique physical axis", c)
		}
		claimed[found] = true
		m.row[c] = found
		m.flip[c] = direction[found][c] < 0
		m.source[found] = c
	}
	return m, nil
}

// ResetDirection returns a copy of img with an identity direction matrix.
// The voxel array is permuted and flipped, and origin/spacing adjusted, so that
// each voxel keeps its physical location and the physical extent is unchanged.
// img must be axis-aligned; an oblique image is an error, never resampled.
func ResetDirection(img *models.Image) (*models.Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if !IsAxisAligned(img.DirectionMatrix()) {
		return nil, errors.Wrapf(ErrNotAxisAligned, "direction %v", img.Direction)
	}
	m, err := mappingFor(img.Direction)
	if err != nil {
		return nil, err
	}

	out := &models.Image{
		Direction: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
	for r := 0; r < 3; r++ {
		out.Size[r] = img.Size[m.source[r]]
		out.Spacing[r] = img.Spacing[m.source[r]]
	}

	// A flipped axis starts at the far corner of the input along that axis.
	origin := img.Origin
	for c := 0; c < 3; c++ {
		if !m.flip[c] {
			continue
		}
		extent := float64(img.Size[c]-1) * img.Spacing[c]
		for r := 0; r < 3; r++ {
			origin[r] += img.Direction[r][c] * extent
		}
	}
	out.Origin = origin

	out.Voxels = make([]float64, len(img.Voxels))
	var in [3]int
	var o [3]int
	for o[2] = 0; o[2] < out.Size[2]; o[2]++ {
		for o[1] = 0; o[1] < out.Size[1]; o[1]++ {
			for o[0] = 0; o[0] < out.Size[0]; o[0]++ {
				for c := 0; c < 3; c++ {
					v := o[m.row[c]]
					if m.flip[c] {
						v = img.Size[c] - 1 - v
					}
					in[c] = v
				}
				out.Set(o[0], o[1], o[2], img.At(in[0], in[1], in[2]))
			}
		}
	}

	return out, nil
}
