// Package ingest receives keypoint frames from external pose producers over
// ZeroMQ and feeds them through the analysis service.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	"rom-stream-go/internal/monitoring"
	"rom-stream-go/internal/types"
)

// RawRecorder receives every message before it is decoded.
type RawRecorder interface {
	Record(payload []byte) error
}

var (
	decodeFailures atomic.Uint64
	decodeCount    atomic.Uint64
	decodeNanos    atomic.Uint64
)

// DecodeFailures counts messages that could not be turned into frames.
func DecodeFailures() uint64 { return decodeFailures.Load() }

// DecodeTiming returns the number of decode attempts and their total time.
func DecodeTiming() (uint64, uint64) { return decodeCount.Load(), decodeNanos.Load() }

var decMode = mustDecMode()

func mustDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// Stream connects a PULL socket to endpoint and returns decoded frames.
// Messages are CBOR maps with type "keypoints", session_id, body_part,
// movement_type, frame_index, confidence and keypoints as {"Neck": [x, y]},
// or with "names" plus a tag-40 [N, 2] "keypoints" array.
func Stream(ctx context.Context, endpoint string, logEvery int, recorder RawRecorder) (<-chan types.KeypointFrame, error) {
	if logEvery < 1 {
		logEvery = 1
	}
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	// Bounded receive so cancellation is noticed between messages.
	if err := socket.SetRcvtimeo(500 * time.Millisecond); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}

	out := make(chan types.KeypointFrame, 128)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
					continue
				}
				logEveryN(logEvery, "ingest recv error: %v", err)
				continue
			}
			if recorder != nil {
				if err := recorder.Record(msg); err != nil {
					logEveryN(logEvery, "ingest raw log error: %v", err)
				}
			}

			frame, err := DecodeFrame(msg)
			if err != nil {
				logEveryN(logEvery, "ingest decode skipped message: %v", err)
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- frame:
			}
		}
	}()

	return out, nil
}

type keypointMessage struct {
	Type         string   `cbor:"type"`
	SessionID    string   `cbor:"session_id"`
	BodyPart     string   `cbor:"body_part"`
	MovementType string   `cbor:"movement_type"`
	Side         string   `cbor:"side"`
	FrameIndex   int      `cbor:"frame_index"`
	Timestamp    float64  `cbor:"timestamp"`
	Confidence   float64  `cbor:"confidence"`
	Names        []string `cbor:"names"`
	Keypoints    any      `cbor:"keypoints"`
}

// DecodeFrame parses one ingest message. Failures are counted.
func DecodeFrame(msg []byte) (types.KeypointFrame, error) {
	start := time.Now()
	defer func() {
		decodeCount.Add(1)
		decodeNanos.Add(uint64(time.Since(start).Nanoseconds()))
	}()

	frame, err := decodeFrame(msg)
	if err != nil {
		decodeFailures.Add(1)
	}
	return frame, err
}

func decodeFrame(msg []byte) (types.KeypointFrame, error) {
	var m keypointMessage
	if err := decMode.Unmarshal(msg, &m); err != nil {
		return types.KeypointFrame{}, fmt.Errorf("CBOR decode: %w", err)
	}
	if m.Type != "keypoints" {
		return types.KeypointFrame{}, fmt.Errorf("ignoring message type %q", m.Type)
	}
	if m.SessionID == "" || m.BodyPart == "" || m.MovementType == "" {
		return types.KeypointFrame{}, errors.New("session_id, body_part and movement_type are required")
	}

	if !finite(m.Confidence) {
		return types.KeypointFrame{}, errors.New("confidence is not finite")
	}
	points, err := decodeKeypoints(m.Keypoints, m.Names)
	if err != nil {
		return types.KeypointFrame{}, err
	}
	ts := m.Timestamp
	if ts == 0 || !finite(ts) {
		ts = float64(time.Now().UnixNano()) / 1e9
	}
	return types.KeypointFrame{
		SessionID:    m.SessionID,
		BodyPart:     m.BodyPart,
		MovementType: m.MovementType,
		Side:         m.Side,
		FrameIndex:   m.FrameIndex,
		Timestamp:    ts,
		Confidence:   m.Confidence,
		Keypoints:    points,
	}, nil
}

func decodeKeypoints(value any, names []string) (map[string][2]float64, error) {
	switch v := value.(type) {
	case nil:
		return map[string][2]float64{}, nil
	case map[string]any:
		out := make(map[string][2]float64, len(v))
		for name, raw := range v {
			xy, err := types.DecodeVector(raw)
			if err != nil {
				return nil, fmt.Errorf("keypoint %q: %w", name, err)
			}
			if len(xy) < 2 {
				return nil, fmt.Errorf("keypoint %q: need x and y", name)
			}
			if !finite(xy[0]) || !finite(xy[1]) {
				return nil, fmt.Errorf("keypoint %q: coordinates are not finite", name)
			}
			out[name] = [2]float64{xy[0], xy[1]}
		}
		return out, nil
	case cbor.Tag:
		rows, err := types.DecodeMatrix(v)
		if err != nil {
			return nil, err
		}
		if len(rows) != len(names) {
			return nil, fmt.Errorf("got %d keypoint rows for %d names", len(rows), len(names))
		}
		out := make(map[string][2]float64, len(rows))
		for i, row := range rows {
			if len(row) < 2 {
				return nil, errors.New("keypoint rows need x and y")
			}
			if !finite(row[0]) || !finite(row[1]) {
				return nil, fmt.Errorf("keypoint %q: coordinates are not finite", names[i])
			}
			out[names[i]] = [2]float64{row[0], row[1]}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported keypoints field %T", value)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

var logCounter atomic.Uint64

func logEveryN(n int, format string, args ...any) {
	if logCounter.Add(1)%uint64(n) == 0 {
		monitoring.Logf(format, args...)
	}
}
