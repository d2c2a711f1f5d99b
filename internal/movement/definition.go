// Package movement holds the catalog of measurable body-part movements and the
// registry that resolves them by their (body_part, movement_type) wire key.
package movement

import (
	"encoding/json"
	"fmt"
	"strings"

	"rom-stream-go/internal/angles"
)

// Side values accepted by side-aware lookups. Anything else is treated as right.
const (
	SideRight = "right"
	SideLeft  = "left"
)

// Range is an inclusive angle interval in degrees.
type Range struct {
	Low  float64
	High float64
}

func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// MarshalJSON encodes the range as [low, high].
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.Low, r.High})
}

func (r *Range) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	r.Low, r.High = pair[0], pair[1]
	return nil
}

// Plane is the anatomical plane a movement is measured in, which fixes the
// camera view the subject has to present.
type Plane int

const (
	AnyPlane Plane = iota
	// Frontal movements need the subject facing the camera.
	Frontal
	// Sagittal movements need the subject side-on to the camera.
	Sagittal
)

func (p Plane) String() string {
	switch p {
	case Frontal:
		return "frontal"
	case Sagittal:
		return "sagittal"
	default:
		return "any"
	}
}

// Movement is the behaviour every catalog entry offers.
type Movement interface {
	RequiredKeypoints() []string
	PrimaryAngleName() string
	NormalRange() Range
	ComputeAngles(kp angles.Keypoints) angles.Set
	ValidatePosition(kp angles.Keypoints) (bool, string)
}

// Definition is one immutable catalog entry.
type Definition struct {
	BodyPart        string
	MovementType    string
	PrimaryAngle    string
	SecondaryAngles []string
	Transform       Transform
	Normal          Range
	Safe            Range
	Plane           Plane
	// Keypoints overrides the landmark list derived from the angles.
	Keypoints []string
	// Checks run after the presence and plane checks, in order.
	Checks []Check
}

var _ Movement = (*Definition)(nil)

// Key returns the stable "body_part/movement_type" identifier.
func (d *Definition) Key() string {
	return Key(d.BodyPart, d.MovementType)
}

// Key joins a body part and movement type into a registry key.
func Key(bodyPart, movementType string) string {
	return bodyPart + "/" + movementType
}

func (d *Definition) PrimaryAngleName() string { return d.PrimaryAngle }

func (d *Definition) NormalRange() Range { return d.Normal }

func (d *Definition) SafeRange() Range { return d.Safe }

// PrimaryFor returns the primary angle name qualified for side. Only the
// primary angle is side-qualified; secondaries are measured as configured.
func (d *Definition) PrimaryFor(side string) string {
	if side == SideLeft && strings.Contains(d.PrimaryAngle, "right") {
		return strings.Replace(d.PrimaryAngle, "right", "left", 1)
	}
	return d.PrimaryAngle
}

func (d *Definition) RequiredKeypoints() []string {
	return d.RequiredKeypointsFor(SideRight)
}

// RequiredKeypointsFor lists the landmarks needed to measure the movement on side.
func (d *Definition) RequiredKeypointsFor(side string) []string {
	if len(d.Keypoints) > 0 {
		return append([]string(nil), d.Keypoints...)
	}
	seen := make(map[string]bool)
	var out []string
	for _, name := range d.angleNames(side) {
		for _, p := range angles.Points(name) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

func (d *Definition) ComputeAngles(kp angles.Keypoints) angles.Set {
	return d.ComputeAnglesFor(kp, SideRight)
}

// ComputeAnglesFor measures the primary and secondary angles and applies the
// movement transform to the primary angle only.
func (d *Definition) ComputeAnglesFor(kp angles.Keypoints, side string) angles.Set {
	primary := d.PrimaryFor(side)
	set := angles.Compute(kp, d.angleNames(side))
	if raw, ok := set[primary]; ok {
		set[primary] = d.Transform.Apply(raw)
	}
	return set
}

// PrimaryValue returns the transformed primary angle, if measurable.
func (d *Definition) PrimaryValue(kp angles.Keypoints, side string) (float64, bool) {
	primary := d.PrimaryFor(side)
	raw, err := angles.Measure(kp, primary)
	if err != nil {
		return 0, false
	}
	return d.Transform.Apply(raw), true
}

func (d *Definition) ValidatePosition(kp angles.Keypoints) (bool, string) {
	return d.ValidatePositionFor(kp, SideRight)
}

// ValidatePositionFor runs the presence check, the plane visibility check and
// then the movement's own checks. The first failure wins.
func (d *Definition) ValidatePositionFor(kp angles.Keypoints, side string) (bool, string) {
	checks := make([]Check, 0, len(d.Checks)+2)
	checks = append(checks, RequirePresence(), RequirePlaneView())
	checks = append(checks, d.Checks...)
	for _, check := range checks {
		if ok, msg := check(kp, d, side); !ok {
			return false, msg
		}
	}
	return true, PositionOK
}

func (d *Definition) angleNames(side string) []string {
	names := make([]string, 0, len(d.SecondaryAngles)+1)
	names = append(names, d.PrimaryFor(side))
	return append(names, d.SecondaryAngles...)
}

func (d *Definition) validate() error {
	switch {
	case d.BodyPart == "" || d.MovementType == "":
		return fmt.Errorf("movement definition needs body_part and movement_type")
	case strings.ContainsAny(d.BodyPart+d.MovementType, ":/"):
		return fmt.Errorf("movement %s: names may not contain ':' or '/'", d.Key())
	case d.PrimaryAngle == "":
		return fmt.Errorf("movement %s: missing primary angle", d.Key())
	case d.Normal.Low > d.Normal.High || d.Safe.Low > d.Safe.High:
		return fmt.Errorf("movement %s: inverted range", d.Key())
	}
	if _, ok := angles.Definitions[d.PrimaryAngle]; !ok {
		return fmt.Errorf("movement %s: %w: %q", d.Key(), angles.ErrUnknownAngle, d.PrimaryAngle)
	}
	return nil
}

// Info is the discovery view of a definition.
type Info struct {
	BodyPart          string    `json:"body_part"`
	MovementType      string    `json:"movement_type"`
	PrimaryAngle      string    `json:"primary_angle"`
	SecondaryAngles   []string  `json:"secondary_angles"`
	RequiredKeypoints []string  `json:"required_keypoints"`
	Transform         Transform `json:"transform"`
	NormalRange       Range     `json:"normal_range"`
	MaxRange          Range     `json:"max_range"`
	Plane             string    `json:"plane"`
}

func (d *Definition) Info() Info {
	secondary := append([]string{}, d.SecondaryAngles...)
	return Info{
		BodyPart:          d.BodyPart,
		MovementType:      d.MovementType,
		PrimaryAngle:      d.PrimaryAngle,
		SecondaryAngles:   secondary,
		RequiredKeypoints: d.RequiredKeypoints(),
		Transform:         d.Transform,
		NormalRange:       d.Normal,
		MaxRange:          d.Safe,
		Plane:             d.Plane.String(),
	}
}
