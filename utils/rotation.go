package utils

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

const (
	// OrthonormalityTolerance bounds the Frobenius norm of RᵗR - I for a matrix to count as a rotation.
	OrthonormalityTolerance = 1e-6
	// GimbalLockThreshold is the sy value below which the singular Euler branch is used.
	GimbalLockThreshold = 1e-6
)

// ErrNotRotationMatrix is returned when a matrix that must be a proper rotation is not orthonormal.
var ErrNotRotationMatrix = errors.New("matrix is not a valid rotation matrix")

// EulerAngles are the roll (x), pitch (y) and yaw (z) angles in radians of R = Rz(yaw)·Ry(pitch)·Rx(roll).
type EulerAngles struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Degrees returns the angles converted to degrees.
func (e EulerAngles) Degrees() EulerAngles {
	return EulerAngles{
		Roll:  RadiansToDegrees(e.Roll),
		Pitch: RadiansToDegrees(e.Pitch),
		Yaw:   RadiansToDegrees(e.Yaw),
	}
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// skew returns the cross-product matrix [k]x.
func skew(k r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -k.Z, k.Y,
		k.Z, 0, -k.X,
		-k.Y, k.X, 0,
	})
}

// Rodrigues converts a rotation vector (axis scaled by angle in radians) to a 3x3 rotation matrix.
// The zero vector maps to the identity.
func Rodrigues(rvec r3.Vector) *mat.Dense {
	theta := rvec.Norm()
	if theta < 1e-12 {
		return identity3()
	}
	k := skew(rvec.Mul(1.0 / theta))

	var k2 mat.Dense
	k2.Mul(k, k)

	r := identity3()
	var term mat.Dense
	term.Scale(math.Sin(theta), k)
	r.Add(r, &term)
	term.Scale(1-math.Cos(theta), &k2)
	r.Add(r, &term)
	return r
}

// RotationVector is the inverse of Rodrigues: it returns the axis-angle vector of a rotation
// matrix with the angle in [0, pi].
func RotationVector(r mat.Matrix) (r3.Vector, error) {
	if !IsRotationMatrix(r) {
		return r3.Vector{}, ErrNotRotationMatrix
	}
	trace := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	cosTheta := Clamp((trace-1)/2, -1, 1)
	theta := math.Acos(cosTheta)

	if theta < 1e-9 {
		return r3.Vector{}, nil
	}

	if math.Pi-theta > 1e-6 {
		sinTheta := math.Sin(theta)
		axis := r3.Vector{
			X: r.At(2, 1) - r.At(1, 2),
			Y: r.At(0, 2) - r.At(2, 0),
			Z: r.At(1, 0) - r.At(0, 1),
		}.Mul(1 / (2 * sinTheta))
		return axis.Mul(theta), nil
	}

	// Near pi the antisymmetric part vanishes; recover the axis from R = 2kkᵗ - I.
	xx := math.Sqrt(math.Max(0, (r.At(0, 0)+1)/2))
	yy := math.Sqrt(math.Max(0, (r.At(1, 1)+1)/2))
	zz := math.Sqrt(math.Max(0, (r.At(2, 2)+1)/2))
	var axis r3.Vector
	switch {
	case xx >= yy && xx >= zz:
		axis = r3.Vector{X: xx, Y: r.At(0, 1) / (2 * xx), Z: r.At(0, 2) / (2 * xx)}
	case yy >= zz:
		axis = r3.Vector{X: r.At(0, 1) / (2 * yy), Y: yy, Z: r.At(1, 2) / (2 * yy)}
	default:
		axis = r3.Vector{X: r.At(0, 2) / (2 * zz), Y: r.At(1, 2) / (2 * zz), Z: zz}
	}
	return axis.Normalize().Mul(theta), nil
}

// OrthonormalityError returns ‖RᵗR − I‖ (Frobenius). Non-3x3 input yields +Inf.
func OrthonormalityError(r mat.Matrix) float64 {
	rows, cols := r.Dims()
	if rows != 3 || cols != 3 {
		return math.Inf(1)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if v := r.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return math.Inf(1)
			}
		}
	}
	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	rtr.Sub(&rtr, identity3())
	return mat.Norm(&rtr, 2)
}

// IsRotationMatrix reports whether r is orthonormal within OrthonormalityTolerance.
func IsRotationMatrix(r mat.Matrix) bool {
	return OrthonormalityError(r) < OrthonormalityTolerance
}

// EulerFromRotationMatrix decomposes R into roll/pitch/yaw with the atan2 extraction.
// At gimbal lock (sy < GimbalLockThreshold) yaw is pinned to zero.
func EulerFromRotationMatrix(r mat.Matrix) (EulerAngles, error) {
	if !IsRotationMatrix(r) {
		return EulerAngles{}, fmt.Errorf("euler decomposition: %w (orthonormality error %g)", ErrNotRotationMatrix, OrthonormalityError(r))
	}
	return eulerFromRotation(r), nil
}

func eulerFromRotation(r mat.Matrix) EulerAngles {
	sy := math.Sqrt(r.At(0, 0)*r.At(0, 0) + r.At(1, 0)*r.At(1, 0))
	if sy >= GimbalLockThreshold {
		return regularEuler(r, sy)
	}
	return singularEuler(r, sy)
}

func regularEuler(r mat.Matrix, sy float64) EulerAngles {
	return EulerAngles{
		Roll:  math.Atan2(r.At(2, 1), r.At(2, 2)),
		Pitch: math.Atan2(-r.At(2, 0), sy),
		Yaw:   math.Atan2(r.At(1, 0), r.At(0, 0)),
	}
}

// singularEuler folds yaw into roll; at pitch = ±90° only their combination is observable.
func singularEuler(r mat.Matrix, sy float64) EulerAngles {
	return EulerAngles{
		Roll:  math.Atan2(-r.At(1, 2), r.At(1, 1)),
		Pitch: math.Atan2(-r.At(2, 0), sy),
		Yaw:   0,
	}
}

// RotationFromEuler rebuilds R = Rz(yaw)·Ry(pitch)·Rx(roll).
func RotationFromEuler(e EulerAngles) *mat.Dense {
	cx, sx := math.Cos(e.Roll), math.Sin(e.Roll)
	cy, sy := math.Cos(e.Pitch), math.Sin(e.Pitch)
	cz, sz := math.Cos(e.Yaw), math.Sin(e.Yaw)

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cx, -sx,
		0, sx, cx,
	})
	ry := mat.NewDense(3, 3, []float64{
		cy, 0, sy,
		0, 1, 0,
		-sy, 0, cy,
	})
	rz := mat.NewDense(3, 3, []float64{
		cz, -sz, 0,
		sz, cz, 0,
		0, 0, 1,
	})

	var zy, out mat.Dense
	zy.Mul(rz, ry)
	out.Mul(&zy, rx)
	return &out
}

// MulVec applies a 3x3 matrix to a vector.
func MulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// Diagonal3 builds diag(a, b, c).
func Diagonal3(d r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		d.X, 0, 0,
		0, d.Y, 0,
		0, 0, d.Z,
	})
}
