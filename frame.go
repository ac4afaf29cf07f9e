package cvxkerb

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Frame is a right-handed orthonormal reference frame whose axes are the rows
// of an orthonormal basis expressed in the parent frame. The guidance frame is
// built so that its z axis points along the local vertical of the landing
// target.
type Frame struct {
	rot *mat.Dense // rows are the frame's x, y, z axes in parent coordinates
}

// NewTargetFrame builds the landing frame from the target position expressed
// in the parent (body-centered) frame. The frame z axis is the unit target
// vector; x is seeded with the parent X axis and re-orthogonalized against z
// (Gram-Schmidt), falling back to parent Y when the target is nearly parallel
// to X.
func NewTargetFrame(target []float64) (Frame, error) {
	z := unit(target)
	if norm(z) == 0 {
		return Frame{}, fmt.Errorf("cannot build a frame from a nil target vector")
	}
	seed := []float64{1, 0, 0}
	if math.Abs(dot(z, seed)) > 1-1e-9 {
		seed = []float64{0, 1, 0}
	}
	y := unit(cross(z, seed))
	x := unit(cross(y, z))
	return Frame{rot: mat.NewDense(3, 3, []float64{
		x[0], x[1], x[2],
		y[0], y[1], y[2],
		z[0], z[1], z[2],
	})}, nil
}

// ToFrame expresses a parent-frame direction in this frame.
func (f Frame) ToFrame(v []float64) []float64 {
	var r mat.VecDense
	r.MulVec(f.rot, mat.NewVecDense(3, v))
	return []float64{r.AtVec(0), r.AtVec(1), r.AtVec(2)}
}

// FromFrame expresses a direction of this frame in the parent frame.
func (f Frame) FromFrame(v []float64) []float64 {
	var r mat.VecDense
	r.MulVec(f.rot.T(), mat.NewVecDense(3, v))
	return []float64{r.AtVec(0), r.AtVec(1), r.AtVec(2)}
}

// Axis returns the i-th axis (0=x, 1=y, 2=z) of the frame in parent coordinates.
func (f Frame) Axis(i int) []float64 {
	return []float64{f.rot.At(i, 0), f.rot.At(i, 1), f.rot.At(i, 2)}
}

// Quaternion returns the frame rotation as a unit quaternion (x, y, z, w),
// extracted from the rotation matrix with the largest-pivot method to stay
// numerically stable near 180 degree rotations.
func (f Frame) Quaternion() [4]float64 {
	// The attitude of the frame maps parent coordinates into frame
	// coordinates, i.e. the transpose of the row basis.
	m := f.rot.T()
	m00, m11, m22 := m.At(0, 0), m.At(1, 1), m.At(2, 2)
	tr := m00 + m11 + m22
	var q [4]float64
	switch {
	case tr > 0:
		s := 2 * math.Sqrt(1+tr)
		q[3] = s / 4
		q[0] = (m.At(2, 1) - m.At(1, 2)) / s
		q[1] = (m.At(0, 2) - m.At(2, 0)) / s
		q[2] = (m.At(1, 0) - m.At(0, 1)) / s
	case m00 >= m11 && m00 >= m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q[0] = s / 4
		q[3] = (m.At(2, 1) - m.At(1, 2)) / s
		q[1] = (m.At(0, 1) + m.At(1, 0)) / s
		q[2] = (m.At(0, 2) + m.At(2, 0)) / s
	case m11 >= m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q[1] = s / 4
		q[3] = (m.At(0, 2) - m.At(2, 0)) / s
		q[0] = (m.At(0, 1) + m.At(1, 0)) / s
		q[2] = (m.At(1, 2) + m.At(2, 1)) / s
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q[2] = s / 4
		q[3] = (m.At(1, 0) - m.At(0, 1)) / s
		q[0] = (m.At(0, 2) + m.At(2, 0)) / s
		q[1] = (m.At(1, 2) + m.At(2, 1)) / s
	}
	return q
}
