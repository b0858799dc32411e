package utils

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// Clamp clamps a value between min and max
func Clamp(value, min, max float64) float64 {
	return math.Max(min, math.Min(max, value))
}

func DegreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func RadiansToDegrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// WrapAngleRad wraps an angle into [-pi, pi)
func WrapAngleRad(radians float64) float64 {
	wrapped := math.Mod(radians+math.Pi, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}

// GlobalPoseToPose builds a spatialmath pose from a world-frame position and its Euler angles.
func GlobalPoseToPose(gp GlobalPose) spatialmath.Pose {
	return spatialmath.NewPose(gp.Position, &spatialmath.EulerAngles{
		Roll:  gp.Euler.Roll,
		Pitch: gp.Euler.Pitch,
		Yaw:   gp.Euler.Yaw,
	})
}

// Helper to convert spatialmath.Pose to a user-friendly map
func PoseToMap(pose spatialmath.Pose) map[string]interface{} {
	if pose == nil {
		return nil
	}
	pos := pose.Point()
	ori := pose.Orientation().Quaternion()
	return map[string]interface{}{
		"translation": map[string]float64{
			"x": pos.X,
			"y": pos.Y,
			"z": pos.Z,
		},
		"orientation": map[string]float64{
			"Imag": ori.Imag,
			"Jmag": ori.Jmag,
			"Kmag": ori.Kmag,
			"Real": ori.Real,
		},
	}
}

// VectorToMap flattens a vector for DoCommand responses.
func VectorToMap(v r3.Vector) map[string]interface{} {
	return map[string]interface{}{
		"x": v.X,
		"y": v.Y,
		"z": v.Z,
	}
}

// TransformPointToFrame expresses a point given in a child frame in the parent frame that
// framePose is defined in.
func TransformPointToFrame(framePose spatialmath.Pose, point r3.Vector) r3.Vector {
	return spatialmath.Compose(framePose, spatialmath.NewPoseFromPoint(point)).Point()
}
