// Package pose is the client side of the external pose-estimation worker.
// It turns detector output into named keypoints for the angle library.
package pose

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"

	"rom-stream-go/internal/angles"
)

// ErrDecode is returned for frames that are not valid base64.
var ErrDecode = errors.New("failed to decode frame")

// Defaults applied by Filter callers when no configuration is given.
const (
	DefaultConfidenceThreshold = 0.3
	DefaultMinKeypointsRatio   = 0.5
)

// Detector finds the first person in an encoded image. An empty keypoint map
// means nobody usable was found.
type Detector interface {
	Detect(ctx context.Context, image []byte) (angles.Keypoints, float64, error)
}

// HALPE26 is the landmark order of the body-with-feet model.
var HALPE26 = []string{
	"Nose", "LEye", "REye", "LEar", "REar",
	"LShoulder", "RShoulder", "LElbow", "RElbow",
	"LWrist", "RWrist", "LHip", "RHip",
	"LKnee", "RKnee", "LAnkle", "RAnkle",
	"Head", "Neck", "Hip", "LBigToe", "RBigToe",
	"LSmallToe", "RSmallToe", "LHeel", "RHeel",
}

// Person is one detected skeleton: parallel name, point and score slices.
type Person struct {
	Names  []string
	Points [][2]float64
	Scores []float64
}

// Filter drops keypoints scoring below threshold, and those with a
// non-finite score or position. When fewer than minRatio
// of them survive the person is discarded. Neck and Hip are synthesised
// from the shoulder and hip midpoints when missing. The returned confidence
// is the mean score of the kept keypoints.
func Filter(p Person, threshold, minRatio float64) (angles.Keypoints, float64) {
	n := min(len(p.Names), len(p.Points), len(p.Scores))
	if n == 0 {
		return angles.Keypoints{}, 0
	}

	kp := make(angles.Keypoints, n+2)
	var sum float64
	kept := 0
	for i := 0; i < n; i++ {
		score := p.Scores[i]
		if math.IsNaN(score) || math.IsInf(score, 0) || score < threshold {
			continue
		}
		pt := angles.Point{X: p.Points[i][0], Y: p.Points[i][1]}
		if !pt.Finite() {
			continue
		}
		kp[p.Names[i]] = pt
		sum += score
		kept++
	}
	if float64(kept)/float64(n) < minRatio {
		return angles.Keypoints{}, 0
	}

	addMidpoint(kp, "Neck", "LShoulder", "RShoulder")
	addMidpoint(kp, "Hip", "LHip", "RHip")
	return kp, sum / float64(kept)
}

func addMidpoint(kp angles.Keypoints, name, a, b string) {
	if kp.Has(name) || !kp.Has(a, b) {
		return
	}
	kp[name] = angles.Midpoint(kp[a], kp[b])
}

// DecodeBase64 decodes a base64 frame, accepting an optional
// "data:image/...;base64," prefix.
func DecodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, rest, ok := strings.Cut(s, ","); ok {
			s = rest
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty frame", ErrDecode)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return data, nil
}
