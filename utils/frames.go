package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// AxisConvention describes how camera-frame axes map to the world/ground frame.
//
// Flip is the diagonal of the matrix applied to the target-to-camera rotation before the Euler
// decomposition. The camera looks down +Z with +Y pointing down; the ground frame has +Y up and +Z
// backward, hence diag(1, -1, -1).
//
// OutputSigns multiplies the negated, rotated translation component-wise. The default negates X
// only, which matches a pad mounted with its X axis mirrored relative to the camera.
type AxisConvention struct {
	Flip        r3.Vector `json:"flip"`
	OutputSigns r3.Vector `json:"output_signs"`
}

// DefaultAxisConvention is the landing-pad convention: F = diag(1,-1,-1), signs (-1, 1, 1).
var DefaultAxisConvention = AxisConvention{
	Flip:        r3.Vector{X: 1, Y: -1, Z: -1},
	OutputSigns: r3.Vector{X: -1, Y: 1, Z: 1},
}

// Validate checks that every component is +1 or -1.
func (c AxisConvention) Validate() error {
	for _, v := range []float64{c.Flip.X, c.Flip.Y, c.Flip.Z, c.OutputSigns.X, c.OutputSigns.Y, c.OutputSigns.Z} {
		if v != 1 && v != -1 {
			return fmt.Errorf("axis convention components must be +1 or -1, got %v", v)
		}
	}
	return nil
}

// String renders the output signs as "-x,+y,+z".
func (c AxisConvention) String() string {
	sign := func(v float64, axis string) string {
		if v < 0 {
			return "-" + axis
		}
		return "+" + axis
	}
	return strings.Join([]string{sign(c.OutputSigns.X, "x"), sign(c.OutputSigns.Y, "y"), sign(c.OutputSigns.Z, "z")}, ",")
}

// ParseOutputSigns parses "-1,1,1" (or "-x,+y,+z") into a sign vector.
func ParseOutputSigns(s string) (r3.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vector{}, fmt.Errorf("expected three comma separated signs, got %q", s)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimRight(p, "xyzXYZ")
		switch p {
		case "+", "":
			vals[i] = 1
		case "-":
			vals[i] = -1
		default:
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return r3.Vector{}, fmt.Errorf("invalid sign %q: %w", parts[i], err)
			}
			if v != 1 && v != -1 {
				return r3.Vector{}, fmt.Errorf("invalid sign %q: must be +1 or -1", parts[i])
			}
			vals[i] = v
		}
	}
	return r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// GlobalPose is the marker pose expressed in the world frame.
type GlobalPose struct {
	Position r3.Vector   `json:"position"`
	Euler    EulerAngles `json:"euler"`
}

// PoseFrameConverter turns camera-frame marker poses into world-frame positions.
type PoseFrameConverter struct {
	convention AxisConvention
	flip       *mat.Dense
}

// NewPoseFrameConverter returns a converter for the given convention.
func NewPoseFrameConverter(convention AxisConvention) (*PoseFrameConverter, error) {
	if err := convention.Validate(); err != nil {
		return nil, err
	}
	return &PoseFrameConverter{
		convention: convention,
		flip:       Diagonal3(convention.Flip),
	}, nil
}

// Convention returns the axis convention in use.
func (c *PoseFrameConverter) Convention() AxisConvention {
	return c.convention
}

// ConvertToGlobal converts a rotation vector and translation vector, both in camera coordinates,
// into the marker's world-frame position and orientation.
func (c *PoseFrameConverter) ConvertToGlobal(rvec, tvec r3.Vector) (GlobalPose, error) {
	rCT := Rodrigues(rvec)
	rTC := mat.DenseCopyOf(rCT.T())

	var r mat.Dense
	r.Mul(c.flip, rTC)

	euler, err := EulerFromRotationMatrix(&r)
	if err != nil {
		return GlobalPose{}, fmt.Errorf("convert pose to global frame: %w", err)
	}

	tWorld := MulVec(rTC, tvec).Mul(-1)
	signs := c.convention.OutputSigns
	return GlobalPose{
		Position: r3.Vector{
			X: signs.X * tWorld.X,
			Y: signs.Y * tWorld.Y,
			Z: signs.Z * tWorld.Z,
		},
		Euler: euler,
	}, nil
}

// IsInvalidRotation reports whether err came from a rotation that failed the orthonormality check.
func IsInvalidRotation(err error) bool {
	return errors.Is(err, ErrNotRotationMatrix)
}
