package analysis

import (
	"math"

	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/rom"
)

// Result is the per-frame analysis output sent to clients.
type Result struct {
	Timestamp           string           `json:"timestamp"`
	FrameID             string           `json:"frame_id"`
	FrameNumber         *int             `json:"frame_number,omitempty"`
	BodyPart            string           `json:"body_part"`
	MovementType        string           `json:"movement_type"`
	PoseDetected        bool             `json:"pose_detected"`
	Message             string           `json:"message,omitempty"`
	Angles              angles.Set       `json:"angles"`
	ROM                 rom.Snapshot     `json:"rom"`
	PoseConfidence      float64          `json:"pose_confidence"`
	Validation          *rom.Validation  `json:"validation,omitempty"`
	Position            *Position        `json:"position,omitempty"`
	FrameMetrics        *FrameMetrics    `json:"frame_metrics,omitempty"`
	Keypoints           angles.Keypoints `json:"keypoints,omitempty"`
	SkeletonConnections [][2]string      `json:"skeleton_connections,omitempty"`
	Guidance            *Guidance        `json:"guidance,omitempty"`
	PersistError        string           `json:"persist_error,omitempty"`
}

type Position struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

type FrameMetrics struct {
	KeypointsDetected int     `json:"keypoints_detected"`
	AnglesCalculated  int     `json:"angles_calculated"`
	ProcessingTimeMS  float64 `json:"processing_time_ms"`
}

type Guidance struct {
	Instruction string `json:"instruction"`
	Feedback    string `json:"feedback"`
	Improvement string `json:"improvement"`
}

// SkeletonConnections lists the landmark pairs drawn by clients.
var SkeletonConnections = [][2]string{
	{"LShoulder", "RShoulder"},
	{"LShoulder", "LElbow"},
	{"LElbow", "LWrist"},
	{"RShoulder", "RElbow"},
	{"RElbow", "RWrist"},
	{"LShoulder", "LHip"},
	{"RShoulder", "RHip"},
	{"LHip", "RHip"},
	{"LHip", "LKnee"},
	{"LKnee", "LAnkle"},
	{"RHip", "RKnee"},
	{"RKnee", "RAnkle"},
	{"Neck", "Hip"},
	{"Neck", "Head"},
	{"LAnkle", "LBigToe"},
	{"RAnkle", "RBigToe"},
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func roundSet(set angles.Set) angles.Set {
	out := make(angles.Set, len(set))
	for k, v := range set {
		out[k] = round(v, 1)
	}
	return out
}

func roundSnapshot(s rom.Snapshot) rom.Snapshot {
	return rom.Snapshot{
		Current: round(s.Current, 1),
		Min:     round(s.Min, 1),
		Max:     round(s.Max, 1),
		Range:   round(s.Range, 1),
	}
}
