package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rom-stream-go/internal/session"
	"rom-stream-go/internal/types"
)

func TestRawLogRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewRawLogWriter(dir, "ingest")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(w.Path(), "_ingest.bin"))

	before := time.Now()
	payloads := [][]byte{[]byte("first"), {}, bytes.Repeat([]byte{0xa1}, 300)}
	for _, p := range payloads {
		require.NoError(t, w.Record(p))
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Error(t, w.Record([]byte("late")))

	var got []RawRecord
	require.NoError(t, ReadRawLog(w.Path(), func(r RawRecord) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, len(payloads[i]), len(r.Payload))
		assert.False(t, r.Time.Before(before.Add(-time.Second)))
	}
	assert.Equal(t, []byte("first"), got[0].Payload)
}

func TestReadRawLogStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	w, err := NewRawLogWriter(t.TempDir(), "x")
	require.NoError(t, err)
	require.NoError(t, w.Record([]byte("a")))
	require.NoError(t, w.Record([]byte("b")))
	require.NoError(t, w.Close())

	stop := errors.New("stop")
	calls := 0
	err = ReadRawLog(w.Path(), func(RawRecord) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestReadRawLogRejectsBadInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(bad, []byte("OTHERLOG"), 0o644))
	assert.ErrorIs(t, ReadRawLog(bad, func(RawRecord) error { return nil }), ErrBadMagic)

	empty := filepath.Join(dir, "empty.bin")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.ErrorIs(t, ReadRawLog(empty, func(RawRecord) error { return nil }), ErrBadMagic)

	// Header promises 10 bytes, only 2 follow.
	truncated := append([]byte(rawLogMagic), 0, 0, 0, 0, 0, 0, 0, 0, 10, 0, 0, 0, 'h', 'i')
	err := readRawLog(bytes.NewReader(truncated), func(RawRecord) error { return nil })
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWriteSessionReport(t *testing.T) {
	t.Parallel()

	view := session.View{
		"lower_back": {
			"flexion":   {ROM: session.Bounds{Min: 2, Max: 58.4, Range: 56.4}, FrameCount: 12, ValidFrameCount: 10},
			"extension": {ROM: session.Bounds{Min: 0, Max: 18, Range: 18}, FrameCount: 4, ValidFrameCount: 4},
		},
		"knee": {
			"flexion": {ROM: session.Bounds{Min: 5, Max: 120, Range: 115}, FrameCount: 3, ValidFrameCount: 3},
		},
	}
	dir := filepath.Join(t.TempDir(), "reports")
	name, err := WriteSessionReport(dir, "20260101_120000", "s1", view)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260101_120000_s1_rom.csv"), name)

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"body_part, movement_type, min, max, range, frames, valid_frames",
		"knee, flexion, 5.0, 120.0, 115.0, 3, 3",
		"lower_back, extension, 0.0, 18.0, 18.0, 4, 4",
		"lower_back, flexion, 2.0, 58.4, 56.4, 12, 10",
		"",
	}, "\n"), string(data))
}

func TestWriteSessionReportRejectsUnsafeID(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "a", "b")
	_, err := WriteSessionReport(dir, "20260101_120000", "x/../../escaped", session.View{})
	assert.ErrorIs(t, err, session.ErrInvalidSessionID)

	matches, err := filepath.Glob(filepath.Join(root, "*escaped*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestNormalizeJSONValue(t *testing.T) {
	t.Parallel()

	in := map[any]any{
		"type":   "keypoints",
		"points": types.Float32Matrix([][]float64{{1, 2}, {3, 4}}),
		"blob":   []byte{1, 2, 3},
	}
	in[uint64(7)] = []any{map[any]any{"x": 1.5}}
	got := NormalizeJSONValue(in)
	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "keypoints",
		"7": [{"x": 1.5}],
		"points": [[1, 2], [3, 4]],
		"blob": "<3 bytes>"
	}`, string(data))
}
