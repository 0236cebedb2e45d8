package orientation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// EulerAngleToRotationMatrix returns the right-hand rotation about a single
// coordinate axis. angle is read in units. Unknown axes give the identity;
// axes are validated when sequences are parsed.
func EulerAngleToRotationMatrix(axis EulerAxis, angle float64, units AngleUnits) *mat.Dense {
	rad := units.ToRadians(angle)
	c, s := math.Cos(rad), math.Sin(rad)

	switch axis {
	case AxisX:
		return mat.NewDense(3, 3, []float64{
			1, 0, 0,
			0, c, -s,
			0, s, c,
		})
	case AxisY:
		return mat.NewDense(3, 3, []float64{
			c, 0, s,
			0, 1, 0,
			-s, 0, c,
		})
	case AxisZ:
		return mat.NewDense(3, 3, []float64{
			c, -s, 0,
			s, c, 0,
			0, 0, 1,
		})
	}
	return Identity3()
}

// Identity3 returns a fresh 3x3 identity matrix
func Identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}
