package analysis

import (
	"slices"

	"rom-stream-go/internal/rom"
)

// band reports whether an angle falls in a guidance row.
type band func(v float64) bool

func below(x float64) band        { return func(v float64) bool { return v < x } }
func above(x float64) band        { return func(v float64) bool { return v > x } }
func between(lo, hi float64) band { return func(v float64) bool { return v >= lo && v <= hi } }
func anyAngle(float64) bool       { return true }

// guidanceRule matches a body part and movement ("" matches any), an angle
// band and, optionally, a set of validation outcomes.
type guidanceRule struct {
	BodyPart     string
	MovementType string
	Band         band
	Outcomes     []rom.Outcome
	Instruction  string
	Improvement  string
}

// guidanceRules is evaluated top to bottom; the first match wins.
var guidanceRules = []guidanceRule{
	{
		Band:        anyAngle,
		Outcomes:    []rom.Outcome{rom.UnsafeLow, rom.UnsafeHigh},
		Instruction: "Ease back towards a comfortable range",
		Improvement: "Don't push beyond your safe range",
	},

	{BodyPart: "lower_back", MovementType: "flexion", Band: below(10),
		Instruction: "Bend forward slowly from your hips",
		Improvement: "Try to increase your forward bend"},
	{BodyPart: "lower_back", MovementType: "flexion", Band: above(60),
		Instruction: "You've reached good flexion",
		Improvement: "Hold this position or slowly return"},
	{BodyPart: "lower_back", MovementType: "flexion", Band: anyAngle,
		Instruction: "Good position, continue the movement",
		Improvement: "Maintain smooth, controlled motion"},

	{BodyPart: "lower_back", MovementType: "extension", Band: above(-5),
		Instruction: "Lean backward slowly",
		Improvement: "Engage your core for support"},
	{BodyPart: "lower_back", MovementType: "extension", Band: below(-30),
		Instruction: "Maximum extension reached",
		Improvement: "Don't push beyond comfort"},
	{BodyPart: "lower_back", MovementType: "extension", Band: anyAngle,
		Instruction: "Good extension position",
		Improvement: "Keep the movement controlled"},

	{BodyPart: "lower_back", MovementType: "lateral_flexion", Band: between(-5, 5),
		Instruction: "Slide one hand down the side of your leg",
		Improvement: "Keep your hips level and facing the camera"},
	{BodyPart: "lower_back", MovementType: "lateral_flexion", Band: anyAngle,
		Instruction: "Good side bend, return slowly to upright",
		Improvement: "Avoid leaning forward or back"},

	{BodyPart: "lower_back", MovementType: "rotation", Band: between(-5, 5),
		Instruction: "Turn your shoulders while keeping your hips still",
		Improvement: "Cross your arms over your chest"},
	{BodyPart: "lower_back", MovementType: "rotation", Band: anyAngle,
		Instruction: "Good rotation, return to the centre",
		Improvement: "Keep your hips facing the camera"},

	{BodyPart: "shoulder", MovementType: "flexion", Band: below(90),
		Instruction: "Raise your arm forward and up",
		Improvement: "Keep your elbow straight"},
	{BodyPart: "shoulder", MovementType: "abduction", Band: below(90),
		Instruction: "Raise your arm out to the side",
		Improvement: "Keep your palm facing forward"},

	{BodyPart: "elbow", MovementType: "flexion", Band: below(30),
		Instruction: "Bend your elbow, bringing your hand towards your shoulder",
		Improvement: "Keep your upper arm still"},
	{BodyPart: "knee", MovementType: "flexion", Band: below(30),
		Instruction: "Bend your knee slowly",
		Improvement: "Keep your thigh still"},
	{BodyPart: "hip", MovementType: "flexion", Band: below(30),
		Instruction: "Lift your knee towards your chest",
		Improvement: "Keep your back straight"},
}

// Guide picks guidance for a measured primary angle. Feedback is always the
// validation message; unmatched combinations leave the other fields empty.
func Guide(bodyPart, movementType string, value float64, v rom.Validation) Guidance {
	g := Guidance{Feedback: v.Message}
	for _, r := range guidanceRules {
		if r.BodyPart != "" && r.BodyPart != bodyPart {
			continue
		}
		if r.MovementType != "" && r.MovementType != movementType {
			continue
		}
		if !r.Band(value) {
			continue
		}
		if len(r.Outcomes) > 0 && !slices.Contains(r.Outcomes, v.Outcome) {
			continue
		}
		g.Instruction = r.Instruction
		g.Improvement = r.Improvement
		return g
	}
	return g
}
