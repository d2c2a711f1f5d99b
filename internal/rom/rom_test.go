package rom

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/movement"
)

func bentTrunk(bendDeg float64) angles.Keypoints {
	rad := bendDeg * math.Pi / 180
	hip := angles.Point{X: 200, Y: 300}
	neck := angles.Point{X: hip.X + 100*math.Sin(rad), Y: hip.Y - 100*math.Cos(rad)}
	return angles.Keypoints{
		"Neck":      neck,
		"Hip":       hip,
		"LShoulder": {X: neck.X - 4, Y: neck.Y},
		"RShoulder": {X: neck.X + 4, Y: neck.Y},
		"LHip":      {X: hip.X - 4, Y: hip.Y},
		"RHip":      {X: hip.X + 4, Y: hip.Y},
	}
}

func newCalc(t *testing.T) *Calculator {
	t.Helper()
	reg, err := movement.NewCatalog()
	require.NoError(t, err)
	return NewCalculator(reg)
}

func TestLowerBackFlexionThirtyDegrees(t *testing.T) {
	t.Parallel()

	c := newCalc(t)
	set, err := c.ComputeMovementAngles(bentTrunk(30), "lower_back", "flexion", "right")
	require.NoError(t, err)
	assert.InDelta(t, 30, set["trunk"], 1e-6)

	v, err := c.ValidateROM(set["trunk"], "lower_back", "flexion")
	require.NoError(t, err)
	assert.Equal(t, Normal, v.Outcome)
	assert.True(t, v.InNormalRange)
	assert.True(t, v.InMaxRange)
	assert.Equal(t, "Angle is within normal range", v.Message)
}

func TestLowerBackExtensionLeaningBack(t *testing.T) {
	t.Parallel()

	c := newCalc(t)
	set, err := c.ComputeMovementAngles(bentTrunk(-20), "lower_back", "extension", "right")
	require.NoError(t, err)
	assert.InDelta(t, 20, set["trunk"], 1e-6)

	v, err := c.ValidateROM(set["trunk"], "lower_back", "extension")
	require.NoError(t, err)
	assert.Equal(t, UnsafeHigh, v.Outcome)
	assert.False(t, v.InNormalRange)
	assert.False(t, v.InMaxRange)
	assert.Equal(t, "Angle 20.0° exceeds maximum safe range", v.Message)
}

func TestJointExtensionReadsNonPositive(t *testing.T) {
	t.Parallel()

	c := newCalc(t)
	leg := func(bendDeg float64) angles.Keypoints {
		rad := bendDeg * math.Pi / 180
		knee := angles.Point{X: 100, Y: 200}
		return angles.Keypoints{
			"RHip":   {X: 100, Y: 100},
			"RKnee":  knee,
			"RAnkle": {X: knee.X + 100*math.Sin(rad), Y: knee.Y + 100*math.Cos(rad)},
		}
	}
	cases := []struct {
		bend float64
		want Outcome
	}{
		{0, Normal},
		{5, OutOfNormal},
		{-5, OutOfNormal},
		{20, UnsafeLow},
	}
	for _, tc := range cases {
		set, err := c.ComputeMovementAngles(leg(tc.bend), "knee", "extension", "right")
		require.NoError(t, err)
		value := set["right knee"]
		assert.LessOrEqual(t, value, 1e-9, "bend %v", tc.bend)
		assert.InDelta(t, -math.Abs(tc.bend), value, 1e-6, "bend %v", tc.bend)

		v, err := c.ValidateROM(value, "knee", "extension")
		require.NoError(t, err)
		assert.Equal(t, tc.want, v.Outcome, "bend %v", tc.bend)
	}
}

func TestInvalidMovement(t *testing.T) {
	t.Parallel()

	c := newCalc(t)
	_, err := c.ComputeMovementAngles(bentTrunk(0), "wrist", "flexion", "right")
	assert.ErrorIs(t, err, ErrInvalidMovement)
	assert.ErrorIs(t, err, movement.ErrNotFound)

	_, err = c.ValidateROM(10, "lower_back", "twist")
	assert.ErrorIs(t, err, ErrInvalidMovement)
	_, err = c.PrimaryAngleKey("neck", "flexion", "left")
	assert.ErrorIs(t, err, ErrInvalidMovement)
	_, err = c.RequiredKeypoints("neck", "flexion")
	assert.ErrorIs(t, err, ErrInvalidMovement)
}

func TestPrimaryAngleKeySide(t *testing.T) {
	t.Parallel()

	c := newCalc(t)
	key, err := c.PrimaryAngleKey("knee", "flexion", "left")
	require.NoError(t, err)
	assert.Equal(t, "left knee", key)

	key, err = c.PrimaryAngleKey("lower_back", "flexion", "left")
	require.NoError(t, err)
	assert.Equal(t, "trunk", key)
}

func TestComputeLeftSideTransformsLeftPrimary(t *testing.T) {
	t.Parallel()

	c := newCalc(t)
	kp := angles.Keypoints{
		"LHip":   {X: 100, Y: 100},
		"LKnee":  {X: 100, Y: 200},
		"LAnkle": {X: 200, Y: 200},
	}
	set, err := c.ComputeMovementAngles(kp, "knee", "flexion", "left")
	require.NoError(t, err)
	assert.InDelta(t, 90, set["left knee"], 1e-9)
	assert.NotContains(t, set, "right knee")
}

func TestClassifyPartition(t *testing.T) {
	t.Parallel()

	normal := movement.Range{Low: 0, High: 60}
	safe := movement.Range{Low: 0, High: 90}
	cases := []struct {
		value float64
		want  Outcome
	}{
		{-0.1, UnsafeLow},
		{0, Normal},
		{60, Normal},
		{60.1, OutOfNormal},
		{90, OutOfNormal},
		{90.1, UnsafeHigh},
	}
	for _, tc := range cases {
		v := Classify(tc.value, normal, safe)
		assert.Equal(t, tc.want, v.Outcome, "value %v", tc.value)
		assert.Equal(t, tc.want == Normal, v.InNormalRange, "value %v", tc.value)
	}
}

func TestClassifySafeDoesNotContainNormal(t *testing.T) {
	t.Parallel()

	// Normal extends past the safe range on the low side.
	v := Classify(-5, movement.Range{Low: -10, High: 10}, movement.Range{Low: 0, High: 20})
	assert.Equal(t, UnsafeLow, v.Outcome)
	assert.True(t, v.InNormalRange)
	assert.False(t, v.InMaxRange)
	assert.Equal(t, "Angle -5.0° is below minimum safe range", v.Message)
}

func TestTrackerMonotonic(t *testing.T) {
	t.Parallel()

	tr := NewTracker("lower_back", "flexion")
	assert.Equal(t, Unseen, tr.State())
	assert.Equal(t, Snapshot{}, tr.Snapshot())

	values := []float64{30, 10, 45, 20}
	prevMin, prevMax := math.Inf(1), math.Inf(-1)
	for i, v := range values {
		snap := tr.Update(angles.Set{"trunk": v}, "trunk")
		assert.Equal(t, v, snap.Current)
		assert.LessOrEqual(t, snap.Min, prevMin)
		assert.GreaterOrEqual(t, snap.Max, prevMax)
		assert.GreaterOrEqual(t, snap.Range, 0.0)
		assert.Equal(t, i+1, tr.ValidFrameCount)
		prevMin, prevMax = snap.Min, snap.Max
	}
	assert.Equal(t, Tracking, tr.State())

	if diff := cmp.Diff(Snapshot{Min: 10, Max: 45, Range: 35}, tr.Snapshot()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackerMissingPrimary(t *testing.T) {
	t.Parallel()

	tr := NewTracker("knee", "flexion")
	snap := tr.Update(angles.Set{"pelvis": 3}, "right knee")
	assert.Equal(t, Snapshot{}, snap)
	assert.Equal(t, 1, tr.FrameCount)
	assert.Equal(t, 0, tr.ValidFrameCount)
	assert.Equal(t, Tracking, tr.State())

	tr.Update(angles.Set{"right knee": -4}, "right knee")
	snap = tr.Update(angles.Set{}, "right knee")
	assert.Equal(t, Snapshot{Current: 0, Min: -4, Max: -4, Range: 0}, snap)
	assert.Equal(t, 3, tr.FrameCount)
	assert.Equal(t, 1, tr.ValidFrameCount)
}

func TestTrackerIgnoresNonFinite(t *testing.T) {
	t.Parallel()

	tr := NewTracker("knee", "flexion")
	snap := tr.Update(angles.Set{"right knee": math.NaN()}, "right knee")
	assert.Equal(t, Snapshot{}, snap)
	tr.Update(angles.Set{"right knee": math.Inf(1)}, "right knee")
	snap = tr.Update(angles.Set{"right knee": 40}, "right knee")

	if diff := cmp.Diff(Snapshot{Current: 40, Min: 40, Max: 40}, snap); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, tr.FrameCount)
	assert.Equal(t, 1, tr.ValidFrameCount)
}

func TestNonFiniteKeypointsLeavePrimaryUnmeasured(t *testing.T) {
	t.Parallel()

	c := newCalc(t)
	kp := angles.Keypoints{
		"RHip":   {X: 1e308, Y: 1e308},
		"RKnee":  {X: -1e308, Y: -1e308},
		"RAnkle": {X: 1e308, Y: 1e308},
	}
	set, err := c.ComputeMovementAngles(kp, "knee", "flexion", "right")
	require.NoError(t, err)
	assert.NotContains(t, set, "right knee")

	tr := NewTracker("knee", "flexion")
	tr.Update(set, "right knee")
	snap := tr.Update(angles.Set{"right knee": 40}, "right knee")
	assert.Equal(t, Snapshot{Current: 40, Min: 40, Max: 40}, snap)
}
