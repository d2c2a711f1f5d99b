package types

import "rom-stream-go/internal/angles"

// KeypointFrame is one pose observation produced outside the server and
// pushed over the ingest socket or replayed from a raw log.
type KeypointFrame struct {
	SessionID    string                `json:"session_id" cbor:"session_id"`
	BodyPart     string                `json:"body_part" cbor:"body_part"`
	MovementType string                `json:"movement_type" cbor:"movement_type"`
	Side         string                `json:"side,omitempty" cbor:"side,omitempty"`
	FrameIndex   int                   `json:"frame_index" cbor:"frame_index"`
	Timestamp    float64               `json:"timestamp" cbor:"timestamp"`
	Confidence   float64               `json:"confidence" cbor:"confidence"`
	Keypoints    map[string][2]float64 `json:"keypoints" cbor:"keypoints"`
}

// Points converts the wire pairs into angle-library keypoints.
func (f KeypointFrame) Points() angles.Keypoints {
	return KeypointsFrom(f.Keypoints)
}

// KeypointsFrom converts name -> [x, y] pairs as sent by clients. Pairs
// with a NaN or infinite coordinate are dropped.
func KeypointsFrom(pairs map[string][2]float64) angles.Keypoints {
	out := make(angles.Keypoints, len(pairs))
	for name, xy := range pairs {
		p := angles.Point{X: xy[0], Y: xy[1]}
		if !p.Finite() {
			continue
		}
		out[name] = p
	}
	return out
}

// PairsFrom is the inverse of Points.
func PairsFrom(kp angles.Keypoints) map[string][2]float64 {
	out := make(map[string][2]float64, len(kp))
	for name, p := range kp {
		out[name] = [2]float64{p.X, p.Y}
	}
	return out
}
