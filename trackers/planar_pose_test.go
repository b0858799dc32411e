package trackers

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"markertracker/utils"
)

func rotationDistance(a, b r3.Vector) float64 {
	var diff mat.Dense
	diff.Sub(utils.Rodrigues(a), utils.Rodrigues(b))
	return mat.Norm(&diff, 2)
}

func syntheticPose(t *testing.T, e utils.EulerAngles) r3.Vector {
	t.Helper()
	rvec, err := utils.RotationVector(utils.RotationFromEuler(e))
	require.NoError(t, err)
	return rvec
}

func TestSolvePlanarPoseRecoversSyntheticPose(t *testing.T) {
	const size = 0.1
	cases := []struct {
		name  string
		euler utils.EulerAngles
		tvec  r3.Vector
	}{
		{"frontal", utils.EulerAngles{Roll: math.Pi}, r3.Vector{Z: 0.5}},
		{"tilted", utils.EulerAngles{Roll: math.Pi - 0.3, Pitch: 0.2, Yaw: 0.1}, r3.Vector{X: 0.05, Y: -0.03, Z: 0.8}},
		{"rotated in plane", utils.EulerAngles{Roll: math.Pi + 0.15, Pitch: -0.25, Yaw: 1.3}, r3.Vector{X: -0.1, Y: 0.08, Z: 1.2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rvec := syntheticPose(t, tc.euler)
			corners := ProjectMarkerCorners(rvec, tc.tvec, size)

			pose, err := SolvePlanarPose(corners, size)
			require.NoError(t, err)
			assert.Less(t, rotationDistance(pose.Rotation, rvec), 1e-6)
			assert.InDelta(t, tc.tvec.X, pose.Translation.X, 1e-6)
			assert.InDelta(t, tc.tvec.Y, pose.Translation.Y, 1e-6)
			assert.InDelta(t, tc.tvec.Z, pose.Translation.Z, 1e-6)
			assert.Less(t, pose.RMS, 1e-8)
		})
	}
}

func TestSolvePlanarPoseWithNoise(t *testing.T) {
	const size = 0.1
	rvec := syntheticPose(t, utils.EulerAngles{Roll: math.Pi - 0.2, Pitch: 0.1})
	tvec := r3.Vector{X: 0.02, Y: 0.01, Z: 0.6}
	corners := ProjectMarkerCorners(rvec, tvec, size)
	noise := []r2.Point{{X: 1e-4, Y: -5e-5}, {X: -8e-5, Y: 6e-5}, {X: 5e-5, Y: 1e-4}, {X: -1e-4, Y: -7e-5}}
	for i := range corners {
		corners[i] = corners[i].Add(noise[i])
	}

	pose, err := SolvePlanarPose(corners, size)
	require.NoError(t, err)
	assert.InDelta(t, tvec.Z, pose.Translation.Z, 0.02)
	assert.Less(t, rotationDistance(pose.Rotation, rvec), 0.2)
	assert.Less(t, pose.RMS, 5e-4)
	assert.Greater(t, pose.Translation.Z, 0.0)
}

func TestSolvePlanarPoseRejectsBadInput(t *testing.T) {
	_, err := SolvePlanarPose([4]r2.Point{}, 0.1)
	assert.True(t, errors.Is(err, ErrDegenerateCorners))

	corners := ProjectMarkerCorners(r3.Vector{X: math.Pi}, r3.Vector{Z: 1}, 0.1)
	_, err = SolvePlanarPose(corners, 0)
	assert.Error(t, err)

	collinear := [4]r2.Point{{X: 0, Y: 0}, {X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.2}, {X: 0.3, Y: 0.3}}
	_, err = SolvePlanarPose(collinear, 0.1)
	assert.True(t, errors.Is(err, ErrDegenerateCorners))
}

func TestMarkerObjectPointsOrder(t *testing.T) {
	pts := MarkerObjectPoints(2)
	assert.Equal(t, r3.Vector{X: -1, Y: 1}, pts[0])
	assert.Equal(t, r3.Vector{X: 1, Y: 1}, pts[1])
	assert.Equal(t, r3.Vector{X: 1, Y: -1}, pts[2])
	assert.Equal(t, r3.Vector{X: -1, Y: -1}, pts[3])

	// A marker facing the camera projects its top-left corner to the upper left of the image.
	img := ProjectMarkerCorners(r3.Vector{X: math.Pi}, r3.Vector{Z: 1}, 2)
	assert.Less(t, img[0].X, img[1].X)
	assert.Less(t, img[0].Y, img[3].Y)
}
