package calibrators

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/rimage/transform"
)

func testCalibration() *CameraCalibration {
	return &CameraCalibration{
		Intrinsics: transform.PinholeCameraIntrinsics{
			Width: 1280, Height: 720,
			Fx: 906.07, Fy: 905.12,
			Ppx: 646.95, Ppy: 374.47,
		},
		Distortion: transform.BrownConrady{
			RadialK1:     -0.21,
			RadialK2:     0.06,
			RadialK3:     -0.004,
			TangentialP1: 0.0012,
			TangentialP2: -0.0007,
		},
	}
}

func TestLoadCalibration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	data := `{
  "camera_matrix": [600, 0, 320, 0, 610, 240, 0, 0, 1],
  "dist_coeffs": [0.1, -0.05, 0.001, 0.002],
  "width": 640,
  "height": 480
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	c, err := LoadCalibration(path)
	require.NoError(t, err)
	assert.Equal(t, 600.0, c.Intrinsics.Fx)
	assert.Equal(t, 610.0, c.Intrinsics.Fy)
	assert.Equal(t, 320.0, c.Intrinsics.Ppx)
	assert.Equal(t, 240.0, c.Intrinsics.Ppy)
	assert.Equal(t, 640, c.Intrinsics.Width)
	assert.Equal(t, 0.1, c.Distortion.RadialK1)
	assert.Equal(t, -0.05, c.Distortion.RadialK2)
	assert.Equal(t, 0.001, c.Distortion.TangentialP1)
	assert.Equal(t, 0.002, c.Distortion.TangentialP2)
	assert.Equal(t, 0.0, c.Distortion.RadialK3)
}

func TestSaveCalibrationRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	want := testCalibration()
	require.NoError(t, SaveCalibration(path, want))

	got, err := LoadCalibration(path)
	require.NoError(t, err)
	assert.Equal(t, *want, *got)
}

func TestLoadCalibrationErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadCalibration(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	cases := map[string]string{
		"bad_json.json":     `{"camera_matrix": [`,
		"short_matrix.json": `{"camera_matrix": [1, 0, 0], "dist_coeffs": []}`,
		"bad_dist.json":     `{"camera_matrix": [600, 0, 320, 0, 600, 240, 0, 0, 1], "dist_coeffs": [1, 2]}`,
		"zero_focal.json":   `{"camera_matrix": [0, 0, 320, 0, 600, 240, 0, 0, 1]}`,
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := LoadCalibration(path)
		assert.Error(t, err, name)
	}
}

func TestNormalizeInvertsDistortion(t *testing.T) {
	c := testCalibration()
	for _, p := range []r2.Point{
		{X: 0, Y: 0},
		{X: 0.1, Y: -0.05},
		{X: -0.35, Y: 0.2},
		{X: 0.5, Y: 0.3},
	} {
		px := c.ToPixel(p)
		back := c.Normalize(px)
		assert.InDelta(t, p.X, back.X, 1e-8)
		assert.InDelta(t, p.Y, back.Y, 1e-8)
	}
}

func TestNormalizeWithoutDistortion(t *testing.T) {
	c := &CameraCalibration{Intrinsics: transform.PinholeCameraIntrinsics{Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}}
	p := c.Normalize(r2.Point{X: 420, Y: 190})
	assert.InDelta(t, 0.2, p.X, 1e-12)
	assert.InDelta(t, -0.1, p.Y, 1e-12)

	corners := c.NormalizeAll([4]r2.Point{{X: 320, Y: 240}, {X: 820, Y: 240}, {X: 820, Y: 740}, {X: 320, Y: 740}})
	assert.Equal(t, r2.Point{X: 1, Y: 1}, corners[2])
}

func TestProject(t *testing.T) {
	c := &CameraCalibration{Intrinsics: transform.PinholeCameraIntrinsics{Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}}
	px, ok := c.Project(r3.Vector{X: 1, Y: -0.5, Z: 5})
	require.True(t, ok)
	assert.InDelta(t, 420, px.X, 1e-9)
	assert.InDelta(t, 190, px.Y, 1e-9)

	_, ok = c.Project(r3.Vector{Z: -1})
	assert.False(t, ok)
}

func TestFromProperties(t *testing.T) {
	want := testCalibration()
	got, err := FromProperties(want.Properties())
	require.NoError(t, err)
	assert.Equal(t, *want, *got)

	_, err = FromProperties(camera.Properties{})
	assert.Error(t, err)

	// Cameras without a distortion model are treated as distortion free.
	intrinsics := want.Intrinsics
	got, err = FromProperties(camera.Properties{IntrinsicParams: &intrinsics})
	require.NoError(t, err)
	assert.Equal(t, transform.BrownConrady{}, got.Distortion)
}
