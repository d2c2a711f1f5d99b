package pose

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/monitoring"
	"rom-stream-go/internal/types"
)

func TestFilterDropsLowConfidence(t *testing.T) {
	p := Person{
		Names:  []string{"LShoulder", "RShoulder", "LHip", "RHip", "Nose"},
		Points: [][2]float64{{10, 0}, {30, 0}, {12, 100}, {28, 100}, {20, -20}},
		Scores: []float64{0.9, 0.7, 0.8, 0.6, 0.1},
	}
	kp, conf := Filter(p, DefaultConfidenceThreshold, DefaultMinKeypointsRatio)

	assert.NotContains(t, kp, "Nose")
	assert.Equal(t, angles.Point{X: 20, Y: 0}, kp["Neck"])
	assert.Equal(t, angles.Point{X: 20, Y: 100}, kp["Hip"])
	assert.InDelta(t, 0.75, conf, 1e-9)
}

func TestFilterKeepsDetectedNeck(t *testing.T) {
	p := Person{
		Names:  []string{"LShoulder", "RShoulder", "Neck"},
		Points: [][2]float64{{0, 0}, {10, 0}, {7, -3}},
		Scores: []float64{1, 1, 1},
	}
	kp, _ := Filter(p, 0.3, 0.5)
	assert.Equal(t, angles.Point{X: 7, Y: -3}, kp["Neck"])
	assert.NotContains(t, kp, "Hip")
}

func TestFilterLowValidRatioIsNoPerson(t *testing.T) {
	p := Person{
		Names:  []string{"LShoulder", "RShoulder", "LHip", "RHip"},
		Points: make([][2]float64, 4),
		Scores: []float64{0.9, 0.1, 0.1, 0.1},
	}
	kp, conf := Filter(p, 0.3, 0.5)
	assert.Empty(t, kp)
	assert.Zero(t, conf)

	kp, conf = Filter(Person{}, 0.3, 0.5)
	assert.Empty(t, kp)
	assert.Zero(t, conf)
}

func TestFilterDropsNonFinite(t *testing.T) {
	p := Person{
		Names:  []string{"LShoulder", "RShoulder", "LHip", "RHip"},
		Points: [][2]float64{{10, 0}, {30, 0}, {math.Inf(1), 100}, {28, 100}},
		Scores: []float64{0.9, math.NaN(), 0.8, math.Inf(1)},
	}
	kp, conf := Filter(p, 0.3, 0.25)
	assert.Equal(t, angles.Keypoints{"LShoulder": {X: 10, Y: 0}}, kp)
	assert.InDelta(t, 0.9, conf, 1e-9)

	// Three of four unusable is below a 0.5 ratio.
	kp, _ = Filter(p, 0.3, 0.5)
	assert.Empty(t, kp)
}

func TestDecodeBase64(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff, 0xe0}
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeBase64(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeBase64("data:image/jpeg;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = DecodeBase64("not base64!!")
	assert.ErrorIs(t, err, ErrDecode)
	_, err = DecodeBase64("  ")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeDetectReply(t *testing.T) {
	msg, err := cbor.Marshal(map[string]any{
		"type":      "pose",
		"names":     []string{"LHip", "RHip"},
		"keypoints": types.Float32Matrix([][]float64{{1, 2}, {3, 4}}),
		"scores":    types.Float32Array([]float64{0.5, 0.25}),
	})
	require.NoError(t, err)

	p, err := decodeDetectReply(msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"LHip", "RHip"}, p.Names)
	assert.Equal(t, [][2]float64{{1, 2}, {3, 4}}, p.Points)
	assert.Equal(t, []float64{0.5, 0.25}, p.Scores)
}

func TestDecodeDetectReplyDefaultsToHALPE(t *testing.T) {
	msg, err := cbor.Marshal(map[string]any{
		"type":      "pose",
		"keypoints": types.Float32Matrix([][]float64{{1, 2}}),
		"scores":    []float64{0.9},
	})
	require.NoError(t, err)
	p, err := decodeDetectReply(msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nose"}, p.Names)
}

func TestDecodeDetectReplyVariants(t *testing.T) {
	empty, _ := cbor.Marshal(map[string]any{"type": "pose", "people": 0})
	p, err := decodeDetectReply(empty)
	require.NoError(t, err)
	assert.Empty(t, p.Names)

	failed, _ := cbor.Marshal(map[string]any{"type": "error", "message": "model not loaded"})
	_, err = decodeDetectReply(failed)
	assert.ErrorContains(t, err, "model not loaded")

	mismatched, _ := cbor.Marshal(map[string]any{
		"type":      "pose",
		"keypoints": types.Float32Matrix([][]float64{{1, 2}, {3, 4}}),
		"scores":    []float64{0.9},
	})
	_, err = decodeDetectReply(mismatched)
	assert.Error(t, err)

	_, err = decodeDetectReply([]byte{0xff})
	assert.Error(t, err)
}

type fakePinger struct {
	fail atomic.Bool
	hits atomic.Int32
}

func (f *fakePinger) Ping(context.Context) error {
	f.hits.Add(1)
	if f.fail.Load() {
		return errors.New("timeout")
	}
	return nil
}

func TestMonitorTracksStatus(t *testing.T) {
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = orig })

	p := &fakePinger{}
	m := NewMonitor(p, 10*time.Millisecond)
	assert.Equal(t, "unknown", m.Status().State)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return m.Status().State == "ok" }, time.Second, 5*time.Millisecond)
	p.fail.Store(true)
	require.Eventually(t, func() bool { return m.Status().State == "error" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "timeout", m.Status().Error)
}
