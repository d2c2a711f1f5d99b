package rom

import (
	"math"

	"rom-stream-go/internal/angles"
)

// State of a tracker's lifecycle.
type State int

const (
	Unseen State = iota
	Tracking
)

func (s State) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "unseen"
}

// Tracker accumulates the extremes of one primary angle for a
// (session, body part, movement) triple. Min and max are only meaningful
// once ValidFrameCount > 0.
type Tracker struct {
	BodyPart        string  `cbor:"body_part" json:"body_part"`
	MovementType    string  `cbor:"movement_type" json:"movement_type"`
	MinAngle        float64 `cbor:"min_angle" json:"min_angle"`
	MaxAngle        float64 `cbor:"max_angle" json:"max_angle"`
	FrameCount      int     `cbor:"frame_count" json:"frame_count"`
	ValidFrameCount int     `cbor:"valid_frame_count" json:"valid_frame_count"`
}

// Snapshot is the per-frame ROM view.
type Snapshot struct {
	Current float64 `json:"current"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Range   float64 `json:"range"`
}

func NewTracker(bodyPart, movementType string) *Tracker {
	return &Tracker{BodyPart: bodyPart, MovementType: movementType}
}

func (t *Tracker) State() State {
	if t.FrameCount > 0 {
		return Tracking
	}
	return Unseen
}

// Update counts the frame and, when primaryKey is in set with a finite
// value, widens the observed extremes with it.
func (t *Tracker) Update(set angles.Set, primaryKey string) Snapshot {
	t.FrameCount++
	current, ok := set[primaryKey]
	if math.IsNaN(current) || math.IsInf(current, 0) {
		ok = false
	}
	if ok {
		if t.ValidFrameCount == 0 {
			t.MinAngle, t.MaxAngle = current, current
		} else {
			t.MinAngle = min(t.MinAngle, current)
			t.MaxAngle = max(t.MaxAngle, current)
		}
		t.ValidFrameCount++
	}
	snap := t.Snapshot()
	if ok {
		snap.Current = current
	}
	return snap
}

// Snapshot returns min, max and range without a current value.
func (t *Tracker) Snapshot() Snapshot {
	if t.ValidFrameCount == 0 {
		return Snapshot{}
	}
	return Snapshot{
		Min:   t.MinAngle,
		Max:   t.MaxAngle,
		Range: t.MaxAngle - t.MinAngle,
	}
}

// Range is max - min, or 0 before any valid frame.
func (t *Tracker) Range() float64 {
	return t.Snapshot().Range
}
