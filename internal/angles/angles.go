// Package angles computes anatomical angles, in degrees, from named 2D keypoints.
//
// Coordinates are image pixels: x grows to the right and y grows downward.
// Directed angles are measured counter-clockwise as seen on screen.
package angles

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

var (
	// ErrMissingKeypoint is returned when an angle needs a landmark the frame does not have.
	ErrMissingKeypoint = errors.New("missing keypoint")
	// ErrUnknownAngle is returned for names absent from Definitions.
	ErrUnknownAngle = errors.New("unknown angle")
	// ErrNonFinite is returned when a coordinate or a result is NaN or infinite.
	ErrNonFinite = errors.New("non-finite value")
)

// Point is a landmark position in image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Vec() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// Finite reports whether both coordinates are finite numbers.
func (p Point) Finite() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Keypoints maps landmark names (Neck, LShoulder, RHip, ...) to positions.
type Keypoints map[string]Point

// Has reports whether every named landmark is present.
func (k Keypoints) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := k[name]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the names not present in k, preserving order.
func (k Keypoints) Missing(names ...string) []string {
	var out []string
	for _, name := range names {
		if _, ok := k[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Set maps angle names to degrees for a single frame.
type Set map[string]float64

// Reference selects the axis a directed angle is measured from.
type Reference int

const (
	// Vertical points up the image.
	Vertical Reference = iota
	// Horizontal points right.
	Horizontal
)

func (r Reference) String() string {
	switch r {
	case Vertical:
		return "vertical"
	case Horizontal:
		return "horizontal"
	default:
		return fmt.Sprintf("reference(%d)", int(r))
	}
}

// AngleBetween returns the directed angle of the vector from p to q relative
// to ref, in (-180, 180]. A zero-length vector yields 0.
func AngleBetween(kp Keypoints, p, q string, ref Reference) (float64, error) {
	pts, err := lookup(kp, p, q)
	if err != nil {
		return 0, err
	}
	return Direction(r2.Sub(pts[1], pts[0]), ref), nil
}

// Direction returns the directed angle of v relative to ref, in (-180, 180].
func Direction(v r2.Vec, ref Reference) float64 {
	if r2.Norm(v) == 0 {
		return 0
	}
	// Flip y so counter-clockwise on screen is positive.
	deg := math.Atan2(-v.Y, v.X) * 180 / math.Pi
	if ref == Vertical {
		deg -= 90
	}
	return Normalize(deg)
}

// Interior returns the unsigned angle at vertex between the rays towards a
// and c, in [0, 180]. Degenerate rays yield 0.
func Interior(a, vertex, c r2.Vec) float64 {
	u := r2.Sub(a, vertex)
	w := r2.Sub(c, vertex)
	if r2.Norm(u) == 0 || r2.Norm(w) == 0 {
		return 0
	}
	return math.Atan2(math.Abs(r2.Cross(u, w)), r2.Dot(u, w)) * 180 / math.Pi
}

// Normalize wraps deg into (-180, 180].
func Normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg <= -180 {
		deg += 360
	} else if deg > 180 {
		deg -= 360
	}
	return deg
}

// FullCircle wraps deg into [0, 360).
func FullCircle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Distance returns the pixel distance between two landmarks.
func Distance(kp Keypoints, p, q string) (float64, error) {
	pts, err := lookup(kp, p, q)
	if err != nil {
		return 0, err
	}
	return r2.Norm(r2.Sub(pts[1], pts[0])), nil
}

// Midpoint returns the point halfway between p and q.
func Midpoint(p, q Point) Point {
	m := r2.Scale(0.5, r2.Add(p.Vec(), q.Vec()))
	return Point{X: m.X, Y: m.Y}
}

func lookup(kp Keypoints, names ...string) ([]r2.Vec, error) {
	out := make([]r2.Vec, len(names))
	for i, name := range names {
		p, ok := kp[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingKeypoint, name)
		}
		if !p.Finite() {
			return nil, fmt.Errorf("%w: keypoint %s", ErrNonFinite, name)
		}
		out[i] = p.Vec()
	}
	return out, nil
}
