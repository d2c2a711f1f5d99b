package angles

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestAngleBetween(t *testing.T) {
	t.Parallel()

	kp := Keypoints{
		"O":     {X: 100, Y: 100},
		"Up":    {X: 100, Y: 50},
		"Down":  {X: 100, Y: 150},
		"Left":  {X: 50, Y: 100},
		"Right": {X: 150, Y: 100},
	}

	cases := []struct {
		name string
		to   string
		ref  Reference
		want float64
	}{
		{"up from vertical", "Up", Vertical, 0},
		{"left from vertical", "Left", Vertical, 90},
		{"down from vertical", "Down", Vertical, 180},
		{"right from vertical", "Right", Vertical, -90},
		{"right from horizontal", "Right", Horizontal, 0},
		{"up from horizontal", "Up", Horizontal, 90},
		{"left from horizontal", "Left", Horizontal, 180},
		{"down from horizontal", "Down", Horizontal, -90},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AngleBetween(kp, "O", tc.to, tc.ref)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestAngleBetweenMissingPoint(t *testing.T) {
	t.Parallel()

	_, err := AngleBetween(Keypoints{"Neck": {X: 1, Y: 1}}, "Neck", "Hip", Vertical)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingKeypoint)
	assert.Contains(t, err.Error(), "Hip")
}

func TestAngleBetweenDegenerateVector(t *testing.T) {
	t.Parallel()

	kp := Keypoints{"A": {X: 3, Y: 4}, "B": {X: 3, Y: 4}}
	got, err := AngleBetween(kp, "A", "B", Horizontal)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestDirectionRange(t *testing.T) {
	t.Parallel()

	for deg := -720.0; deg <= 720; deg += 7.5 {
		rad := deg * math.Pi / 180
		v := r2.Vec{X: math.Cos(rad), Y: -math.Sin(rad)}
		got := Direction(v, Horizontal)
		assert.Greater(t, got, -180.0)
		assert.LessOrEqual(t, got, 180.0)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 180.0, Normalize(-180))
	assert.Equal(t, 180.0, Normalize(180))
	assert.Equal(t, -170.0, Normalize(190))
	assert.Equal(t, 10.0, Normalize(370))
	assert.Equal(t, 0.0, Normalize(-360))
}

func TestInterior(t *testing.T) {
	t.Parallel()

	vertex := r2.Vec{X: 0, Y: 0}
	assert.InDelta(t, 90, Interior(r2.Vec{X: 1, Y: 0}, vertex, r2.Vec{X: 0, Y: 1}), 1e-9)
	assert.InDelta(t, 180, Interior(r2.Vec{X: -1, Y: 0}, vertex, r2.Vec{X: 1, Y: 0}), 1e-9)
	assert.InDelta(t, 45, Interior(r2.Vec{X: 1, Y: 0}, vertex, r2.Vec{X: 1, Y: 1}), 1e-9)
	assert.Equal(t, 0.0, Interior(vertex, vertex, r2.Vec{X: 1, Y: 1}))
}

func TestMidpointAndDistance(t *testing.T) {
	t.Parallel()

	kp := Keypoints{"A": {X: 0, Y: 0}, "B": {X: 30, Y: 40}}
	d, err := Distance(kp, "A", "B")
	require.NoError(t, err)
	assert.InDelta(t, 50, d, 1e-9)
	assert.Equal(t, Point{X: 15, Y: 20}, Midpoint(kp["A"], kp["B"]))
}
