package orientation

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// CreateResliceMatrix builds the 4x4 reslice matrix for a cutting plane:
// transform in the upper-left 3x3 block, origin in the first three rows of
// the last column, 1 at [3,3] and zero elsewhere.
func CreateResliceMatrix(transform mat.Matrix, origin r3.Vec) *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, transform.At(i, j))
		}
	}
	m.Set(0, 3, origin.X)
	m.Set(1, 3, origin.Y)
	m.Set(2, 3, origin.Z)
	m.Set(3, 3, 1)
	return m
}

// ResliceOrigin extracts the translation column of a 4x4 reslice matrix
func ResliceOrigin(m mat.Matrix) r3.Vec {
	return r3.Vec{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
}

// ResliceRotation extracts the upper-left 3x3 block of a 4x4 reslice matrix
func ResliceRotation(m mat.Matrix) *mat.Dense {
	out := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, m.At(i, j))
		}
	}
	return out
}

// MulVec3 returns m * v for a 3x3 matrix
func MulVec3(m mat.Matrix, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}
