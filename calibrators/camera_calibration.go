package calibrators

import (
	"encoding/json"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/rimage/transform"
)

const undistortIterations = 20

// CameraCalibration holds the pinhole intrinsics and Brown-Conrady distortion of a camera.
type CameraCalibration struct {
	Intrinsics transform.PinholeCameraIntrinsics
	Distortion transform.BrownConrady
}

// CalibrationFile is the on-disk JSON layout, matching what OpenCV calibration tools export:
// a row-major 3x3 camera matrix and distortion coefficients k1 k2 p1 p2 [k3].
type CalibrationFile struct {
	CameraMatrix []float64 `json:"camera_matrix"`
	DistCoeffs   []float64 `json:"dist_coeffs"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
}

// ToCalibration converts the file layout into a CameraCalibration.
func (f *CalibrationFile) ToCalibration() (*CameraCalibration, error) {
	if len(f.CameraMatrix) != 9 {
		return nil, errors.Errorf("camera_matrix must have 9 values, got %d", len(f.CameraMatrix))
	}
	if n := len(f.DistCoeffs); n != 0 && n != 4 && n != 5 {
		return nil, errors.Errorf("dist_coeffs must have 4 or 5 values, got %d", n)
	}
	c := &CameraCalibration{
		Intrinsics: transform.PinholeCameraIntrinsics{
			Width:  f.Width,
			Height: f.Height,
			Fx:     f.CameraMatrix[0],
			Fy:     f.CameraMatrix[4],
			Ppx:    f.CameraMatrix[2],
			Ppy:    f.CameraMatrix[5],
		},
	}
	d := append(append([]float64(nil), f.DistCoeffs...), make([]float64, 5)...)
	c.Distortion = transform.BrownConrady{
		RadialK1:     d[0],
		RadialK2:     d[1],
		TangentialP1: d[2],
		TangentialP2: d[3],
		RadialK3:     d[4],
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ToFile converts back to the JSON layout.
func (c *CameraCalibration) ToFile() CalibrationFile {
	in := c.Intrinsics
	d := c.Distortion
	return CalibrationFile{
		CameraMatrix: []float64{in.Fx, 0, in.Ppx, 0, in.Fy, in.Ppy, 0, 0, 1},
		DistCoeffs:   []float64{d.RadialK1, d.RadialK2, d.TangentialP1, d.TangentialP2, d.RadialK3},
		Width:        in.Width,
		Height:       in.Height,
	}
}

// LoadCalibration reads a calibration JSON file.
func LoadCalibration(path string) (*CameraCalibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading calibration %q", path)
	}
	var f CalibrationFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "parsing calibration %q", path)
	}
	c, err := f.ToCalibration()
	if err != nil {
		return nil, errors.Wrapf(err, "invalid calibration %q", path)
	}
	return c, nil
}

// SaveCalibration writes c as indented JSON.
func SaveCalibration(path string, c *CameraCalibration) error {
	data, err := json.MarshalIndent(c.ToFile(), "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "writing calibration %q", path)
}

// FromProperties builds a calibration from a camera's reported properties.
func FromProperties(props camera.Properties) (*CameraCalibration, error) {
	if props.IntrinsicParams == nil {
		return nil, errors.New("camera does not report intrinsic parameters")
	}
	c := &CameraCalibration{Intrinsics: *props.IntrinsicParams}
	if bc, ok := props.DistortionParams.(*transform.BrownConrady); ok && bc != nil {
		c.Distortion = *bc
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Properties returns the calibration as camera properties.
func (c *CameraCalibration) Properties() camera.Properties {
	intrinsics := c.Intrinsics
	distortion := c.Distortion
	return camera.Properties{
		IntrinsicParams:  &intrinsics,
		DistortionParams: &distortion,
	}
}

func (c *CameraCalibration) Validate() error {
	in := c.Intrinsics
	if in.Fx <= 0 || in.Fy <= 0 {
		return errors.Errorf("focal lengths must be positive, got fx=%f fy=%f", in.Fx, in.Fy)
	}
	if in.Width < 0 || in.Height < 0 {
		return errors.Errorf("image size must not be negative, got %dx%d", in.Width, in.Height)
	}
	for _, v := range []float64{in.Fx, in.Fy, in.Ppx, in.Ppy,
		c.Distortion.RadialK1, c.Distortion.RadialK2, c.Distortion.RadialK3,
		c.Distortion.TangentialP1, c.Distortion.TangentialP2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("calibration contains non-finite values")
		}
	}
	return nil
}

// Distort applies the lens model to a normalized, undistorted image point.
func (c *CameraCalibration) Distort(p r2.Point) r2.Point {
	d := c.Distortion
	x, y := p.X, p.Y
	rsq := x*x + y*y
	radial := 1 + rsq*(d.RadialK1+rsq*(d.RadialK2+rsq*d.RadialK3))
	return r2Point(
		x*radial+2*d.TangentialP1*x*y+d.TangentialP2*(rsq+2*x*x),
		y*radial+d.TangentialP1*(rsq+2*y*y)+2*d.TangentialP2*x*y,
	)
}

// Normalize maps a pixel to undistorted normalized image coordinates by inverting the lens model
// with fixed-point iteration.
func (c *CameraCalibration) Normalize(px r2.Point) r2.Point {
	in := c.Intrinsics
	d := c.Distortion
	x0 := (px.X - in.Ppx) / in.Fx
	y0 := (px.Y - in.Ppy) / in.Fy

	x, y := x0, y0
	for i := 0; i < undistortIterations; i++ {
		rsq := x*x + y*y
		icdist := 1 / (1 + ((d.RadialK3*rsq+d.RadialK2)*rsq+d.RadialK1)*rsq)
		deltaX := 2*d.TangentialP1*x*y + d.TangentialP2*(rsq+2*x*x)
		deltaY := d.TangentialP1*(rsq+2*y*y) + 2*d.TangentialP2*x*y
		x = (x0 - deltaX) * icdist
		y = (y0 - deltaY) * icdist
	}
	return r2Point(x, y)
}

// NormalizeAll normalizes the four corners of a marker.
func (c *CameraCalibration) NormalizeAll(corners [4]r2.Point) [4]r2.Point {
	var out [4]r2.Point
	for i, p := range corners {
		out[i] = c.Normalize(p)
	}
	return out
}

// ToPixel maps a normalized, undistorted point to pixel coordinates.
func (c *CameraCalibration) ToPixel(p r2.Point) r2.Point {
	d := c.Distort(p)
	return r2Point(c.Intrinsics.Fx*d.X+c.Intrinsics.Ppx, c.Intrinsics.Fy*d.Y+c.Intrinsics.Ppy)
}

// Project maps a point in camera coordinates to pixel coordinates. ok is false for points behind
// the camera.
func (c *CameraCalibration) Project(p r3.Vector) (r2.Point, bool) {
	if p.Z <= 0 {
		return r2.Point{}, false
	}
	return c.ToPixel(r2Point(p.X/p.Z, p.Y/p.Z)), true
}

func r2Point(x, y float64) r2.Point {
	return r2.Point{X: x, Y: y}
}
