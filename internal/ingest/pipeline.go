package ingest

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"rom-stream-go/internal/analysis"
	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/types"
)

// Processor is the part of analysis.Service the pipeline needs.
type Processor interface {
	ProcessKeypoints(ctx context.Context, kp angles.Keypoints, confidence float64, req analysis.Request) (analysis.Result, error)
}

// Stats are the pipeline counters exported on /status.
type Stats struct {
	framesIn     atomic.Uint64
	framesOK     atomic.Uint64
	framesFailed atomic.Uint64
	eventsDrop   atomic.Uint64
}

func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"ingest_frames_total":         s.framesIn.Load(),
		"ingest_frames_ok_total":      s.framesOK.Load(),
		"ingest_frames_failed_total":  s.framesFailed.Load(),
		"ingest_events_dropped_total": s.eventsDrop.Load(),
		"ingest_decode_failures":      DecodeFailures(),
	}
}

// Process analyses frames with a pool of workers. Frames are sharded by
// session so each session is handled in arrival order by one worker.
// Every outcome is offered to events without blocking; a full events
// channel drops the event. Process returns when frames is closed or ctx
// is done, after all workers have finished.
func Process(ctx context.Context, frames <-chan types.KeypointFrame, proc Processor, workers int, events chan<- any, stats *Stats) {
	if workers < 1 {
		workers = 1
	}
	if stats == nil {
		stats = &Stats{}
	}

	shards := make([]chan types.KeypointFrame, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := range shards {
		shards[i] = make(chan types.KeypointFrame, 32)
		go func(in <-chan types.KeypointFrame) {
			defer wg.Done()
			for frame := range in {
				handle(ctx, frame, proc, events, stats)
			}
		}(shards[i])
	}

	defer func() {
		for _, ch := range shards {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			stats.framesIn.Add(1)
			select {
			case <-ctx.Done():
				return
			case shards[shardFor(frame.SessionID, workers)] <- frame:
			}
		}
	}
}

func shardFor(sessionID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(n))
}

func handle(ctx context.Context, frame types.KeypointFrame, proc Processor, events chan<- any, stats *Stats) {
	req := analysis.Request{
		SessionID:    frame.SessionID,
		BodyPart:     frame.BodyPart,
		MovementType: frame.MovementType,
		Options:      analysis.Options{Side: frame.Side},
	}
	event := types.MonitorEvent{
		Type:       types.EventResult,
		SessionID:  frame.SessionID,
		FrameIndex: frame.FrameIndex,
	}
	res, err := proc.ProcessKeypoints(ctx, frame.Points(), frame.Confidence, req)
	if err != nil {
		stats.framesFailed.Add(1)
		logEveryN(1, "ingest session %s frame %d: %v", frame.SessionID, frame.FrameIndex, err)
		event.Type = types.EventError
		event.Error = err.Error()
	} else {
		stats.framesOK.Add(1)
		res.FrameNumber = &frame.FrameIndex
		event.Result = res
	}

	if events == nil {
		return
	}
	select {
	case events <- event:
	default:
		stats.eventsDrop.Add(1)
	}
}
