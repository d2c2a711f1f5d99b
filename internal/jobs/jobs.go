// Package jobs runs batches of frames through the analysis service in the
// background and records progress in the shared key-value store.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"rom-stream-go/internal/analysis"
	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/monitoring"
	"rom-stream-go/internal/pose"
	"rom-stream-go/internal/rom"
	"rom-stream-go/internal/session"
	"rom-stream-go/internal/storage"
	"rom-stream-go/internal/types"
)

var ErrJobNotFound = errors.New("job not found")

type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Completed  Status = "completed"
)

// Entry is one processed frame: either a result or an error.
type Entry struct {
	Result     *analysis.Result `cbor:"result,omitempty"`
	Error      string           `cbor:"error,omitempty"`
	FrameIndex int              `cbor:"frame_index"`
}

// MarshalJSON emits the bare result, or {error, frame_index} for failures.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Error != "" || e.Result == nil {
		return json.Marshal(struct {
			Error      string `json:"error"`
			FrameIndex int    `json:"frame_index"`
		}{e.Error, e.FrameIndex})
	}
	return json.Marshal(e.Result)
}

type Job struct {
	ID              string  `cbor:"job_id" json:"job_id"`
	Status          Status  `cbor:"status" json:"status"`
	SessionID       string  `cbor:"session_id" json:"session_id"`
	BodyPart        string  `cbor:"body_part" json:"body_part"`
	MovementType    string  `cbor:"movement_type" json:"movement_type"`
	TotalFrames     int     `cbor:"total_frames" json:"total_frames"`
	ProcessedFrames int     `cbor:"processed_frames" json:"processed_frames"`
	Results         []Entry `cbor:"results" json:"results"`
}

// Batch is a submission. Frames are base64 images; Keypoints, when set,
// are analysed directly and Frames is ignored.
type Batch struct {
	SessionID    string                  `json:"session_id"`
	BodyPart     string                  `json:"body_part"`
	MovementType string                  `json:"movement_type"`
	Frames       []string                `json:"frames"`
	Keypoints    []map[string][2]float64 `json:"keypoints,omitempty"`
	Side         string                  `json:"side,omitempty"`
}

func (b Batch) size() int {
	if len(b.Keypoints) > 0 {
		return len(b.Keypoints)
	}
	return len(b.Frames)
}

// FrameProcessor is the part of analysis.Service a runner drives.
type FrameProcessor interface {
	ProcessImage(ctx context.Context, image []byte, req analysis.Request) (analysis.Result, error)
	ProcessKeypoints(ctx context.Context, kp angles.Keypoints, confidence float64, req analysis.Request) (analysis.Result, error)
}

// Runner owns background batch processing.
type Runner struct {
	ctx   context.Context
	store storage.Store
	proc  FrameProcessor
	calc  *rom.Calculator
	wg    sync.WaitGroup
}

// NewRunner returns a runner whose jobs stop when ctx is cancelled.
func NewRunner(ctx context.Context, store storage.Store, proc FrameProcessor, calc *rom.Calculator) *Runner {
	return &Runner{ctx: ctx, store: store, proc: proc, calc: calc}
}

func key(id string) string { return "job:" + id }

// Submit validates the batch, stores a pending job and starts processing.
func (r *Runner) Submit(ctx context.Context, b Batch) (Job, error) {
	if err := session.ValidateSessionID(b.SessionID); err != nil {
		return Job{}, err
	}
	if _, err := r.calc.Definition(b.BodyPart, b.MovementType); err != nil {
		return Job{}, err
	}
	job := Job{
		ID:           uuid.NewString(),
		Status:       Pending,
		SessionID:    b.SessionID,
		BodyPart:     b.BodyPart,
		MovementType: b.MovementType,
		TotalFrames:  b.size(),
		Results:      []Entry{},
	}
	if err := r.save(ctx, job); err != nil {
		return Job{}, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(job, b)
	}()
	return job, nil
}

func (r *Runner) run(job Job, b Batch) {
	ctx := r.ctx
	job.Status = Processing
	r.saveOrLog(ctx, job)

	req := analysis.Request{
		SessionID:    b.SessionID,
		BodyPart:     b.BodyPart,
		MovementType: b.MovementType,
		Options:      analysis.Options{IncludeKeypoints: true, Side: b.Side},
	}
	for i := 0; i < b.size(); i++ {
		if ctx.Err() != nil {
			monitoring.Logf("job %s: stopped after %d/%d frames", job.ID, job.ProcessedFrames, job.TotalFrames)
			return
		}
		res, err := r.processFrame(ctx, b, i, req)
		if err != nil {
			job.Results = append(job.Results, Entry{Error: err.Error(), FrameIndex: i})
		} else {
			job.Results = append(job.Results, Entry{Result: &res, FrameIndex: i})
			job.ProcessedFrames = i + 1
		}
		r.saveOrLog(ctx, job)
	}

	job.Status = Completed
	r.saveOrLog(ctx, job)
}

func (r *Runner) processFrame(ctx context.Context, b Batch, i int, req analysis.Request) (analysis.Result, error) {
	if len(b.Keypoints) > 0 {
		return r.proc.ProcessKeypoints(ctx, types.KeypointsFrom(b.Keypoints[i]), 1, req)
	}
	image, err := pose.DecodeBase64(b.Frames[i])
	if err != nil {
		return analysis.Result{}, err
	}
	return r.proc.ProcessImage(ctx, image, req)
}

func (r *Runner) save(ctx context.Context, job Job) error {
	data, err := cbor.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return r.store.Set(ctx, key(job.ID), data)
}

func (r *Runner) saveOrLog(ctx context.Context, job Job) {
	if err := r.save(ctx, job); err != nil {
		monitoring.Logf("job %s: save progress: %v", job.ID, err)
	}
}

// Get returns the stored job.
func (r *Runner) Get(ctx context.Context, id string) (Job, error) {
	data, err := r.store.Get(ctx, key(id))
	if errors.Is(err, storage.ErrNotFound) {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return Job{}, err
	}
	var job Job
	if err := cbor.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

// Wait blocks until every submitted job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
