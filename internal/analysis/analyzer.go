// Package analysis composes keypoints, the movement catalog, ROM tracking and
// validation into one result per frame.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/rom"
	"rom-stream-go/internal/session"
)

// ErrAnalysis wraps failures that are neither bad input nor an unknown movement.
var ErrAnalysis = errors.New("analysis failed")

const noPersonMessage = "No person detected in frame"

// Options are per-request presentation switches.
type Options struct {
	IncludeKeypoints bool   `json:"include_keypoints"`
	Side             string `json:"side,omitempty"`
}

// Input is one frame worth of work.
type Input struct {
	Keypoints    angles.Keypoints
	Confidence   float64
	SessionID    string
	BodyPart     string
	MovementType string
	Options      Options
}

// Analyzer is stateless apart from its collaborators; trackers come from
// and go back to the session manager.
type Analyzer struct {
	Calc     *rom.Calculator
	Sessions *session.Manager
	Now      func() time.Time
}

func NewAnalyzer(calc *rom.Calculator, sessions *session.Manager) *Analyzer {
	return &Analyzer{Calc: calc, Sessions: sessions, Now: time.Now}
}

// Analyze runs one frame through the engine. The returned tracker has been
// updated but not saved; it is nil when no person was detected.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (Result, *rom.Tracker, error) {
	start := a.Now()
	res := Result{
		Timestamp:    start.UTC().Format(time.RFC3339Nano),
		FrameID:      frameID(in.SessionID),
		BodyPart:     in.BodyPart,
		MovementType: in.MovementType,
	}

	if len(in.Keypoints) == 0 {
		res.Message = noPersonMessage
		res.Angles = angles.Set{}
		return res, nil, nil
	}

	def, err := a.Calc.Definition(in.BodyPart, in.MovementType)
	if err != nil {
		return Result{}, nil, err
	}
	side := in.Options.Side
	set := def.ComputeAnglesFor(in.Keypoints, side)
	primary := def.PrimaryFor(side)

	tracker, err := a.Sessions.GetOrCreateTracker(ctx, in.SessionID, in.BodyPart, in.MovementType)
	if err != nil {
		if errors.Is(err, session.ErrInvalidSessionID) {
			return Result{}, nil, err
		}
		return Result{}, nil, fmt.Errorf("%w: load tracker: %v", ErrAnalysis, err)
	}
	snap := tracker.Update(set, primary)

	valid, posMsg := def.ValidatePositionFor(in.Keypoints, side)
	res.Position = &Position{Valid: valid, Message: posMsg}

	if value, ok := set[primary]; ok {
		v := rom.Classify(value, def.Normal, def.Safe)
		g := Guide(in.BodyPart, in.MovementType, value, v)
		res.Validation = &v
		res.Guidance = &g
	} else {
		res.Guidance = &Guidance{Feedback: posMsg}
	}

	res.PoseDetected = true
	res.Angles = roundSet(set)
	res.ROM = roundSnapshot(snap)
	if !math.IsNaN(in.Confidence) && !math.IsInf(in.Confidence, 0) {
		res.PoseConfidence = round(in.Confidence, 3)
	}
	if in.Options.IncludeKeypoints {
		res.Keypoints = in.Keypoints
		res.SkeletonConnections = SkeletonConnections
	}
	res.FrameMetrics = &FrameMetrics{
		KeypointsDetected: len(in.Keypoints),
		AnglesCalculated:  len(set),
		ProcessingTimeMS:  round(float64(a.Now().Sub(start).Microseconds())/1000, 3),
	}
	return res, tracker, nil
}

func frameID(sessionID string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return sessionID + "_" + id[:8]
}
