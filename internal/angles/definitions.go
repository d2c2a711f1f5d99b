package angles

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// Kind selects how a named angle is derived from its points.
type Kind int

const (
	// Segment is the directed angle of Points[0]->Points[1] against Reference.
	Segment Kind = iota
	// Joint is the interior angle at Points[1] between Points[0] and Points[2].
	Joint
	// LineDifference is the directed angle of Points[0]->Points[1] minus that
	// of Points[2]->Points[3], both against the horizontal.
	LineDifference
)

// Def describes one named angle.
type Def struct {
	Kind       Kind
	Points     []string
	Reference  Reference
	FullCircle bool
}

// Definitions is the named angle table shared by every movement.
var Definitions = map[string]Def{
	// Upright trunk reads 180; bending forward of a subject facing image-right lowers it.
	"trunk":         {Kind: Segment, Points: []string{"Neck", "Hip"}, Reference: Vertical, FullCircle: true},
	"lateral_trunk": {Kind: Segment, Points: []string{"Hip", "Neck"}, Reference: Vertical},
	"pelvis":        {Kind: Segment, Points: []string{"RHip", "LHip"}, Reference: Horizontal},
	"shoulders":     {Kind: Segment, Points: []string{"RShoulder", "LShoulder"}, Reference: Horizontal},
	"shoulder_line": {Kind: Segment, Points: []string{"LShoulder", "RShoulder"}, Reference: Horizontal},
	"hip_line":      {Kind: Segment, Points: []string{"LHip", "RHip"}, Reference: Horizontal},
	"trunk_rotation": {
		Kind:   LineDifference,
		Points: []string{"LShoulder", "RShoulder", "LHip", "RHip"},
	},

	"right shoulder": {Kind: Joint, Points: []string{"RHip", "RShoulder", "RElbow"}},
	"left shoulder":  {Kind: Joint, Points: []string{"LHip", "LShoulder", "LElbow"}},
	"right elbow":    {Kind: Joint, Points: []string{"RShoulder", "RElbow", "RWrist"}},
	"left elbow":     {Kind: Joint, Points: []string{"LShoulder", "LElbow", "LWrist"}},
	"right hip":      {Kind: Joint, Points: []string{"RShoulder", "RHip", "RKnee"}},
	"left hip":       {Kind: Joint, Points: []string{"LShoulder", "LHip", "LKnee"}},
	"right knee":     {Kind: Joint, Points: []string{"RHip", "RKnee", "RAnkle"}},
	"left knee":      {Kind: Joint, Points: []string{"LHip", "LKnee", "LAnkle"}},
	"right ankle":    {Kind: Joint, Points: []string{"RKnee", "RAnkle", "RBigToe"}},
	"left ankle":     {Kind: Joint, Points: []string{"LKnee", "LAnkle", "LBigToe"}},
}

// Points returns the landmarks the named angle needs, or nil for unknown names.
func Points(name string) []string {
	def, ok := Definitions[name]
	if !ok {
		return nil
	}
	return append([]string(nil), def.Points...)
}

// Measure evaluates a single named angle.
func Measure(kp Keypoints, name string) (float64, error) {
	def, ok := Definitions[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAngle, name)
	}
	pts, err := lookup(kp, def.Points...)
	if err != nil {
		return 0, err
	}
	for _, p := range pts[1:] {
		if d := r2.Sub(p, pts[0]); !isFinite(d.X) || !isFinite(d.Y) {
			return 0, fmt.Errorf("%w: angle %q spans too far", ErrNonFinite, name)
		}
	}

	var deg float64
	switch def.Kind {
	case Segment:
		deg = Direction(r2.Sub(pts[1], pts[0]), def.Reference)
	case Joint:
		deg = Interior(pts[0], pts[1], pts[2])
	case LineDifference:
		a := Direction(r2.Sub(pts[1], pts[0]), Horizontal)
		b := Direction(r2.Sub(pts[3], pts[2]), Horizontal)
		deg = Normalize(a - b)
	default:
		return 0, fmt.Errorf("angle %q: unsupported kind %d", name, def.Kind)
	}
	if def.FullCircle {
		deg = FullCircle(deg)
	}
	if !isFinite(deg) {
		return 0, fmt.Errorf("%w: angle %q", ErrNonFinite, name)
	}
	return deg, nil
}

// Compute evaluates every name it can. Angles whose landmarks are absent, or
// whose names are unknown, are left out of the result.
func Compute(kp Keypoints, names []string) Set {
	out := make(Set, len(names))
	for _, name := range names {
		if _, done := out[name]; done {
			continue
		}
		deg, err := Measure(kp, name)
		if err != nil {
			continue
		}
		out[name] = deg
	}
	return out
}
