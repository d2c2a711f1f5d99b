package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rom-stream-go/internal/analysis"
	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/movement"
	"rom-stream-go/internal/rom"
	"rom-stream-go/internal/session"
	"rom-stream-go/internal/storage"
)

type stubDetector struct{}

func (stubDetector) Detect(_ context.Context, image []byte) (angles.Keypoints, float64, error) {
	if string(image) == "broken" {
		return nil, 0, errors.New("cannot decode image")
	}
	if string(image) == "empty" {
		return angles.Keypoints{}, 0, nil
	}
	return angles.Keypoints{
		"RHip":   {X: 0, Y: 0},
		"RKnee":  {X: 0, Y: 100},
		"RAnkle": {X: 100, Y: 100},
	}, 0.9, nil
}

func newRunner(t *testing.T) (*Runner, *session.Manager) {
	t.Helper()
	store := storage.NewMemory()
	calc := rom.NewCalculator(movement.MustCatalog())
	sessions := session.NewManager(store)
	svc := analysis.NewService(analysis.NewAnalyzer(calc, sessions), stubDetector{})
	return NewRunner(context.Background(), store, svc, calc), sessions
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestSubmitProcessesFrames(t *testing.T) {
	r, sessions := newRunner(t)
	ctx := context.Background()

	job, err := r.Submit(ctx, Batch{
		SessionID:    "s1",
		BodyPart:     "knee",
		MovementType: "flexion",
		Frames:       []string{b64("ok"), "%%%", b64("broken"), b64("empty")},
	})
	require.NoError(t, err)
	assert.Equal(t, Pending, job.Status)
	assert.Equal(t, 4, job.TotalFrames)
	r.Wait()

	got, err := r.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, Completed, got.Status)
	require.Len(t, got.Results, 4)
	assert.Equal(t, 4, got.ProcessedFrames)

	require.NotNil(t, got.Results[0].Result)
	assert.Equal(t, 90.0, got.Results[0].Result.Angles["right knee"])
	assert.NotEmpty(t, got.Results[0].Result.Keypoints)
	assert.Contains(t, got.Results[1].Error, "failed to decode frame")
	assert.Equal(t, 1, got.Results[1].FrameIndex)
	assert.Contains(t, got.Results[2].Error, "cannot decode image")
	require.NotNil(t, got.Results[3].Result)
	assert.False(t, got.Results[3].Result.PoseDetected)

	view, err := sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, view["knee"]["flexion"].FrameCount)
}

func TestSubmitKeypoints(t *testing.T) {
	r, _ := newRunner(t)
	ctx := context.Background()

	job, err := r.Submit(ctx, Batch{
		SessionID: "s2", BodyPart: "knee", MovementType: "flexion",
		Keypoints: []map[string][2]float64{
			{"RHip": {0, 0}, "RKnee": {0, 100}, "RAnkle": {0, 200}},
		},
	})
	require.NoError(t, err)
	r.Wait()

	got, err := r.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.Equal(t, 0.0, got.Results[0].Result.Angles["right knee"])
}

func TestSubmitRejectsBadInput(t *testing.T) {
	r, _ := newRunner(t)
	ctx := context.Background()

	_, err := r.Submit(ctx, Batch{SessionID: "s1", BodyPart: "wrist", MovementType: "flexion"})
	assert.ErrorIs(t, err, rom.ErrInvalidMovement)
	_, err = r.Submit(ctx, Batch{SessionID: "", BodyPart: "knee", MovementType: "flexion"})
	assert.ErrorIs(t, err, session.ErrInvalidSessionID)
}

func TestGetUnknownJob(t *testing.T) {
	r, _ := newRunner(t)
	_, err := r.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestEntryJSON(t *testing.T) {
	data, err := json.Marshal(Entry{Error: "boom", FrameIndex: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"boom","frame_index":3}`, string(data))

	data, err = json.Marshal(Entry{Result: &analysis.Result{FrameID: "s1_abcd1234", Angles: angles.Set{}}})
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "s1_abcd1234", decoded["frame_id"])
	assert.NotContains(t, decoded, "error")
}
