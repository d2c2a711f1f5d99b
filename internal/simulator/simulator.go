// Package simulator produces a synthetic side-view subject moving through a
// repeating flexion cycle. It stands in for the pose worker and for ingest
// producers when the server runs with -debug.
package simulator

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/types"
)

// Peak bends, in degrees, reached at the middle of each cycle.
const (
	peakTrunk = 70.0
	peakArm   = 150.0
	peakKnee  = 110.0
	peakElbow = 120.0
)

// Pose returns the subject at phase in [0, 1): 0 and 1 are upright, 0.5 is
// the deepest bend. jitter adds Gaussian pixel noise.
func Pose(phase, jitter float64, rng *rand.Rand) angles.Keypoints {
	s := math.Sin(math.Pi * phase)
	amount := s * s

	hip := angles.Point{X: 320, Y: 300}
	trunk := peakTrunk * amount * math.Pi / 180
	neck := along(hip, 150, trunk)

	arm := peakArm * amount * math.Pi / 180
	elbow := along(neck, 70, math.Pi-arm+trunk)
	elbowBend := peakElbow * amount * math.Pi / 180
	wrist := along(elbow, 65, math.Pi-arm+trunk-elbowBend)

	knee := angles.Point{X: hip.X, Y: hip.Y + 120}
	kneeBend := peakKnee * amount * math.Pi / 180
	ankle := along(knee, 110, math.Pi+kneeBend)
	toe := angles.Point{X: ankle.X + 35, Y: ankle.Y}

	kp := angles.Keypoints{
		"Head": along(neck, 40, trunk),
		"Neck": neck,
		"Hip":  hip,
	}
	// Left and right chains are the same limb shifted sideways, so the
	// subject reads as side-on.
	for prefix, dx := range map[string]float64{"L": -4, "R": 4} {
		for name, p := range map[string]angles.Point{
			"Shoulder": neck,
			"Elbow":    elbow,
			"Wrist":    wrist,
			"Hip":      hip,
			"Knee":     knee,
			"Ankle":    ankle,
			"BigToe":   toe,
		} {
			kp[prefix+name] = angles.Point{X: p.X + dx, Y: p.Y}
		}
	}
	if jitter > 0 && rng != nil {
		for name, p := range kp {
			kp[name] = angles.Point{X: p.X + rng.NormFloat64()*jitter, Y: p.Y + rng.NormFloat64()*jitter}
		}
	}
	return kp
}

// along walks length pixels from p at angle rad, measured from straight up
// and increasing towards image-right.
func along(p angles.Point, length, rad float64) angles.Point {
	return angles.Point{X: p.X + length*math.Sin(rad), Y: p.Y - length*math.Cos(rad)}
}

// Detector ignores the image and returns the next pose of the cycle.
type Detector struct {
	CycleFrames int
	Jitter      float64
	Confidence  float64

	frame atomic.Uint64
	mu    sync.Mutex
	rng   *rand.Rand
}

func NewDetector(cycleFrames int, jitter float64) *Detector {
	if cycleFrames < 2 {
		cycleFrames = 60
	}
	return &Detector{
		CycleFrames: cycleFrames,
		Jitter:      jitter,
		Confidence:  0.92,
		rng:         rand.New(rand.NewSource(1)),
	}
}

func (d *Detector) Detect(ctx context.Context, _ []byte) (angles.Keypoints, float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	n := d.frame.Add(1) - 1
	phase := float64(n%uint64(d.CycleFrames)) / float64(d.CycleFrames)
	d.mu.Lock()
	defer d.mu.Unlock()
	return Pose(phase, d.Jitter, d.rng), d.Confidence, nil
}

// Stream emits keypoint frames for one session at rate frames per second.
func Stream(ctx context.Context, sessionID, bodyPart, movementType string, rate float64) <-chan types.KeypointFrame {
	out := make(chan types.KeypointFrame)
	go func() {
		defer close(out)

		if rate <= 0 {
			rate = 30
		}
		ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
		defer ticker.Stop()

		det := NewDetector(int(rate*2), 0)
		frameIndex := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				kp, conf, err := det.Detect(ctx, nil)
				if err != nil {
					return
				}
				frameIndex++
				frame := types.KeypointFrame{
					SessionID:    sessionID,
					BodyPart:     bodyPart,
					MovementType: movementType,
					FrameIndex:   frameIndex,
					Timestamp:    float64(time.Now().UnixNano()) / 1e9,
					Confidence:   conf,
					Keypoints:    types.PairsFrom(kp),
				}
				select {
				case <-ctx.Done():
					return
				case out <- frame:
				}
			}
		}
	}()

	return out
}
