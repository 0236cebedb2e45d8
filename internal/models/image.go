package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Image represents one frame of a 3D scalar volume with its physical geometry
type Image struct {
	// Voxels holds the scalar data as a 1D array with x varying fastest,
	// i.e. index = k*Size[0]*Size[1] + j*Size[0] + i
	Voxels []float64

	// Size is the number of voxels along each index axis
	Size [3]int

	// Spacing is the physical distance between voxel centres along each index axis in mm
	Spacing [3]float64

	// Origin is the physical position of voxel (0,0,0) in LPS coordinates
	Origin [3]float64

	// Direction maps index axes to physical axes. Column j is the unit
	// physical direction of index axis j (row-major storage).
	Direction [3][3]float64
}

// NewImage creates a zero-filled image with identity direction
func NewImage(size [3]int, spacing, origin [3]float64) *Image {
	return &Image{
		Voxels:    make([]float64, size[0]*size[1]*size[2]),
		Size:      size,
		Spacing:   spacing,
		Origin:    origin,
		Direction: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
}

// Validate checks that the voxel buffer matches the declared size
func (img *Image) Validate() error {
	for axis, n := range img.Size {
		if n <= 0 {
			return fmt.Errorf("image size along axis %d must be positive, got %d", axis, n)
		}
		if img.Spacing[axis] <= 0 {
			return fmt.Errorf("image spacing along axis %d must be positive, got %g", axis, img.Spacing[axis])
		}
	}
	if want := img.Size[0] * img.Size[1] * img.Size[2]; len(img.Voxels) != want {
		return fmt.Errorf("image has %d voxels, size %v needs %d", len(img.Voxels), img.Size, want)
	}
	return nil
}

// Index returns the flat voxel index of (i, j, k)
func (img *Image) Index(i, j, k int) int {
	return k*img.Size[0]*img.Size[1] + j*img.Size[0] + i
}

// Contains reports whether (i, j, k) lies inside the voxel grid
func (img *Image) Contains(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < img.Size[0] && j < img.Size[1] && k < img.Size[2]
}

// At returns the voxel value at (i, j, k)
func (img *Image) At(i, j, k int) float64 {
	return img.Voxels[img.Index(i, j, k)]
}

// Set stores v at (i, j, k)
func (img *Image) Set(i, j, k int, v float64) {
	img.Voxels[img.Index(i, j, k)] = v
}

// DirectionMatrix returns the direction as a gonum matrix
func (img *Image) DirectionMatrix() *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			d.Set(r, c, img.Direction[r][c])
		}
	}
	return d
}

// IndexToPhysical maps a (possibly fractional) voxel index to LPS coordinates:
// p = origin + D * diag(spacing) * idx
func (img *Image) IndexToPhysical(idx [3]float64) r3.Vec {
	var p [3]float64
	for r := 0; r < 3; r++ {
		p[r] = img.Origin[r]
		for c := 0; c < 3; c++ {
			p[r] += img.Direction[r][c] * img.Spacing[c] * idx[c]
		}
	}
	return r3.Vec{X: p[0], Y: p[1], Z: p[2]}
}

// PhysicalToIndex maps an LPS point to a continuous voxel index. The returned
// error is non-nil only when the direction matrix is singular.
func (img *Image) PhysicalToIndex(p r3.Vec) ([3]float64, error) {
	m := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, img.Direction[r][c]*img.Spacing[c])
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return [3]float64{}, fmt.Errorf("image direction is not invertible: %w", err)
	}

	d := mat.NewVecDense(3, []float64{p.X - img.Origin[0], p.Y - img.Origin[1], p.Z - img.Origin[2]})
	var idx mat.VecDense
	idx.MulVec(&inv, d)
	return [3]float64{idx.AtVec(0), idx.AtVec(1), idx.AtVec(2)}, nil
}

// Center returns the physical position of the centre of the voxel grid
func (img *Image) Center() r3.Vec {
	return img.IndexToPhysical([3]float64{
		float64(img.Size[0]-1) / 2,
		float64(img.Size[1]-1) / 2,
		float64(img.Size[2]-1) / 2,
	})
}

// Bounds returns the physical bounding box of the voxel centres as
// [xmin, xmax, ymin, ymax, zmin, zmax]
func (img *Image) Bounds() [6]float64 {
	var b [6]float64
	first := true
	for corner := 0; corner < 8; corner++ {
		var idx [3]float64
		for axis := 0; axis < 3; axis++ {
			if corner&(1<<axis) != 0 {
				idx[axis] = float64(img.Size[axis] - 1)
			}
		}
		p := img.IndexToPhysical(idx)
		coords := [3]float64{p.X, p.Y, p.Z}
		for axis, v := range coords {
			if first || v < b[2*axis] {
				b[2*axis] = v
			}
			if first || v > b[2*axis+1] {
				b[2*axis+1] = v
			}
		}
		first = false
	}
	return b
}

// Clone returns a deep copy of the image
func (img *Image) Clone() *Image {
	out := *img
	out.Voxels = make([]float64, len(img.Voxels))
	copy(out.Voxels, img.Voxels)
	return &out
}
