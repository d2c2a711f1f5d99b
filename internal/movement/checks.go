package movement

import (
	"math"
	"strings"

	"rom-stream-go/internal/angles"
)

// ShoulderWidthThreshold is the shoulder span, in pixels, separating a
// camera-facing subject from a side-on one.
const ShoulderWidthThreshold = 50.0

// PositionOK is the message returned when every check passes.
const PositionOK = "Position is correct"

// Check is a single position predicate. It returns false and a user-facing
// message when the subject is not in a measurable position.
type Check func(kp angles.Keypoints, def *Definition, side string) (bool, string)

// RequirePresence fails when any required landmark is missing.
func RequirePresence() Check {
	return func(kp angles.Keypoints, def *Definition, side string) (bool, string) {
		missing := kp.Missing(def.RequiredKeypointsFor(side)...)
		if len(missing) > 0 {
			return false, "Cannot detect: " + strings.Join(missing, ", ")
		}
		return true, ""
	}
}

// RequirePlaneView uses the shoulder span to decide whether the subject faces
// the camera or stands side-on, and compares that with the movement's plane.
func RequirePlaneView() Check {
	return func(kp angles.Keypoints, def *Definition, _ string) (bool, string) {
		if def.Plane == AnyPlane {
			return true, ""
		}
		width, err := angles.Distance(kp, "LShoulder", "RShoulder")
		if err != nil {
			return true, ""
		}
		switch def.Plane {
		case Frontal:
			if width < ShoulderWidthThreshold {
				return false, "Please face the camera directly"
			}
		case Sagittal:
			if width > ShoulderWidthThreshold {
				return false, "Please turn sideways to the camera"
			}
		}
		return true, ""
	}
}

// PrimaryAtLeast fails when the transformed primary angle is below min.
func PrimaryAtLeast(min float64, msg string) Check {
	return func(kp angles.Keypoints, def *Definition, side string) (bool, string) {
		if v, ok := def.PrimaryValue(kp, side); ok && v < min {
			return false, msg
		}
		return true, ""
	}
}

// UprightTrunk fails when the trunk leans more than maxLean degrees from vertical.
func UprightTrunk(maxLean float64, msg string) Check {
	return func(kp angles.Keypoints, _ *Definition, _ string) (bool, string) {
		lean, err := angles.Measure(kp, "lateral_trunk")
		if err != nil {
			return true, ""
		}
		if math.Abs(lean) > maxLean {
			return false, msg
		}
		return true, ""
	}
}
