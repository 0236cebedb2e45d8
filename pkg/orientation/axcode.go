package orientation

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// axcodeVectors is the canonical LPS unit vector for each anatomical letter
var axcodeVectors = map[byte]r3.Vec{
	'L': {X: 1, Y: 0, Z: 0},
	'R': {X: -1, Y: 0, Z: 0},
	'P': {X: 0, Y: 1, Z: 0},
	'A': {X: 0, Y: -1, Z: 0},
	'S': {X: 0, Y: 0, Z: 1},
	'I': {X: 0, Y: 0, Z: -1},
}

// IsValidAxcode reports whether code is a 3-letter anatomical axis code:
// exactly one of L/R, one of A/P and one of S/I, no repeats and no other
// characters.
func IsValidAxcode(code string) bool {
	if len(code) != 3 {
		return false
	}

	var hasLR, hasAP, hasSI int
	seen := map[byte]bool{}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if seen[c] {
			return false
		}
		seen[c] = true

		switch c {
		case 'L', 'R':
			hasLR++
		case 'A', 'P':
			hasAP++
		case 'S', 'I':
			hasSI++
		default:
			return false
		}
	}

	return hasLR == 1 && hasAP == 1 && hasSI == 1
}

// IsRightHandedAxcode reports whether the cross product of the first two axes
// of code equals the third. code must be valid.
func IsRightHandedAxcode(code string) (bool, error) {
	if !IsValidAxcode(code) {
		return false, errors.Wrapf(ErrInvalidAxcode, "%q", code)
	}

	v1 := axcodeVectors[code[0]]
	v2 := axcodeVectors[code[1]]
	v3 := axcodeVectors[code[2]]

	return r3.Cross(v1, v2) == v3, nil
}

// basisMatrix returns the 3x3 matrix whose columns are the canonical vectors
// of the letters of code, in order
func basisMatrix(code string) *mat.Dense {
	b := mat.NewDense(3, 3, nil)
	for col := 0; col < 3; col++ {
		v := axcodeVectors[code[col]]
		b.Set(0, col, v.X)
		b.Set(1, col, v.Y)
		b.Set(2, col, v.Z)
	}
	return b
}

// AxcodeTransformMatrix returns T such that new_coords = T * old_coords when
// moving from the from coordinate system to the to system:
// T = to_basis * inverse(from_basis).
func AxcodeTransformMatrix(from, to string) (*mat.Dense, error) {
	if !IsValidAxcode(from) {
		return nil, errors.Wrapf(ErrInvalidAxcode, "source %q", from)
	}
	if !IsValidAxcode(to) {
		return nil, errors.Wrapf(ErrInvalidAxcode, "target %q", to)
	}

	// Basis matrices are signed permutations, so the inverse is the transpose.
	fromBasis := basisMatrix(from)
	toBasis := basisMatrix(to)

	var t mat.Dense
	t.Mul(toBasis, fromBasis.T())
	return &t, nil
}

// MustAxcodeTransformMatrix is AxcodeTransformMatrix for codes fixed at compile time
func MustAxcodeTransformMatrix(from, to string) *mat.Dense {
	t, err := AxcodeTransformMatrix(from, to)
	if err != nil {
		panic(err)
	}
	return t
}
