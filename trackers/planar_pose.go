package trackers

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"markertracker/utils"
)

// ErrDegenerateCorners is returned when the four corners do not span a quadrilateral.
var ErrDegenerateCorners = errors.New("marker corners are degenerate")

// PlanarPose is the pose of a square marker relative to the camera.
type PlanarPose struct {
	Rotation    r3.Vector // axis-angle
	Translation r3.Vector
	RMS         float64 // reprojection error in normalized image units
}

// MarkerObjectPoints returns the marker corners in the marker frame, in detector order
// (top-left, top-right, bottom-right, bottom-left), with +Y up and the marker in the Z=0 plane.
func MarkerObjectPoints(size float64) [4]r3.Vector {
	h := size / 2
	return [4]r3.Vector{
		{X: -h, Y: h},
		{X: h, Y: h},
		{X: h, Y: -h},
		{X: -h, Y: -h},
	}
}

// ProjectPoint projects a marker-frame point to normalized image coordinates.
func ProjectPoint(rvec, tvec, p r3.Vector) r2.Point {
	return projectWith(utils.Rodrigues(rvec), tvec, p)
}

func projectWith(r mat.Matrix, tvec, p r3.Vector) r2.Point {
	c := utils.MulVec(r, p).Add(tvec)
	return r2.Point{X: c.X / c.Z, Y: c.Y / c.Z}
}

// ProjectMarkerCorners projects the four marker corners to normalized image coordinates.
func ProjectMarkerCorners(rvec, tvec r3.Vector, size float64) [4]r2.Point {
	r := utils.Rodrigues(rvec)
	var out [4]r2.Point
	for i, p := range MarkerObjectPoints(size) {
		out[i] = projectWith(r, tvec, p)
	}
	return out
}

// reprojectionResiduals holds the observations for refining a marker pose.
type reprojectionResiduals struct {
	object   [4]r3.Vector
	observed [4]r2.Point
}

// Func returns the sum of squared reprojection errors for params = [rx ry rz tx ty tz].
func (r *reprojectionResiduals) Func(params []float64) float64 {
	rvec := r3.Vector{X: params[0], Y: params[1], Z: params[2]}
	tvec := r3.Vector{X: params[3], Y: params[4], Z: params[5]}
	rot := utils.Rodrigues(rvec)

	total := 0.0
	for i, p := range r.object {
		c := utils.MulVec(rot, p).Add(tvec)
		if c.Z <= 0 {
			return math.Inf(1)
		}
		dx := c.X/c.Z - r.observed[i].X
		dy := c.Y/c.Z - r.observed[i].Y
		total += dx*dx + dy*dy
	}
	return total
}

func (r *reprojectionResiduals) rms(params []float64) float64 {
	return math.Sqrt(r.Func(params) / float64(2*len(r.object)))
}

// SolvePlanarPose estimates the pose of a square marker of the given side length from its four
// undistorted, normalized image corners. The initial estimate comes from the plane homography and
// is refined by minimizing the reprojection error.
func SolvePlanarPose(corners [4]r2.Point, size float64) (PlanarPose, error) {
	if size <= 0 {
		return PlanarPose{}, fmt.Errorf("marker size must be positive, got %f", size)
	}
	if math.Abs(polygonArea(corners)) < 1e-12 {
		return PlanarPose{}, ErrDegenerateCorners
	}

	object := MarkerObjectPoints(size)
	rvec, tvec, err := poseFromHomography(object, corners)
	if err != nil {
		return PlanarPose{}, err
	}

	rf := &reprojectionResiduals{object: object, observed: corners}
	x0 := []float64{rvec.X, rvec.Y, rvec.Z, tvec.X, tvec.Y, tvec.Z}
	best := x0
	bestErr := rf.Func(x0)

	problem := optimize.Problem{
		Func: rf.Func,
	}
	settings := &optimize.Settings{
		FuncEvaluations: 5000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-16,
			Relative:   1e-12,
			Iterations: 50,
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err == nil && result.F < bestErr {
		best = result.X
	}

	return PlanarPose{
		Rotation:    r3.Vector{X: best[0], Y: best[1], Z: best[2]},
		Translation: r3.Vector{X: best[3], Y: best[4], Z: best[5]},
		RMS:         rf.rms(best),
	}, nil
}

// poseFromHomography fits the plane-to-image homography with the DLT and factors it into R|t.
func poseFromHomography(object [4]r3.Vector, image [4]r2.Point) (r3.Vector, r3.Vector, error) {
	a := mat.NewDense(8, 9, nil)
	for i := range object {
		X, Y := object[i].X, object[i].Y
		x, y := image[i].X, image[i].Y
		a.SetRow(2*i, []float64{-X, -Y, -1, 0, 0, 0, x * X, x * Y, x})
		a.SetRow(2*i+1, []float64{0, 0, 0, -X, -Y, -1, y * X, y * Y, y})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return r3.Vector{}, r3.Vector{}, errors.New("homography factorization failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	h := mat.Col(nil, 8, &v)

	h1 := r3.Vector{X: h[0], Y: h[3], Z: h[6]}
	h2 := r3.Vector{X: h[1], Y: h[4], Z: h[7]}
	h3 := r3.Vector{X: h[2], Y: h[5], Z: h[8]}

	norm := (h1.Norm() + h2.Norm()) / 2
	if norm < 1e-12 {
		return r3.Vector{}, r3.Vector{}, ErrDegenerateCorners
	}
	lambda := 1 / norm
	if h3.Z < 0 {
		lambda = -lambda
	}

	r1 := h1.Mul(lambda)
	r2v := h2.Mul(lambda)
	t := h3.Mul(lambda)
	r3v := r1.Cross(r2v)

	rot := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})
	rot, err := nearestRotation(rot)
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	rvec, err := utils.RotationVector(rot)
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	return rvec, t, nil
}

// nearestRotation projects m onto SO(3) in the Frobenius sense.
func nearestRotation(m mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, errors.New("rotation orthonormalization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		d := utils.Diagonal3(r3.Vector{X: 1, Y: 1, Z: -1})
		var ud mat.Dense
		ud.Mul(&u, d)
		r.Mul(&ud, v.T())
	}
	return &r, nil
}

// polygonArea is the signed shoelace area of the corner quadrilateral.
func polygonArea(p [4]r2.Point) float64 {
	area := 0.0
	for i := range p {
		j := (i + 1) % len(p)
		area += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return area / 2
}
