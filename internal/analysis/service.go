package analysis

import (
	"context"
	"fmt"
	"sync/atomic"

	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/monitoring"
	"rom-stream-go/internal/pose"
	"rom-stream-go/internal/session"
)

// Request identifies the movement a frame is analysed against.
type Request struct {
	SessionID    string
	BodyPart     string
	MovementType string
	Options      Options
}

// Service runs detection, analysis and persistence for one frame while
// holding the per-triple session lock.
type Service struct {
	Analyzer *Analyzer
	Detector pose.Detector
	Sessions *session.Manager

	frames          atomic.Uint64
	persistFailures atomic.Uint64
}

func NewService(a *Analyzer, det pose.Detector) *Service {
	return &Service{Analyzer: a, Detector: det, Sessions: a.Sessions}
}

// ProcessImage detects the pose in an encoded image and analyses it.
func (s *Service) ProcessImage(ctx context.Context, image []byte, req Request) (Result, error) {
	if s.Detector == nil {
		return Result{}, fmt.Errorf("%w: no pose detector configured", ErrAnalysis)
	}
	kp, conf, err := s.Detector.Detect(ctx, image)
	if err != nil {
		return Result{}, fmt.Errorf("%w: pose detection: %v", ErrAnalysis, err)
	}
	return s.ProcessKeypoints(ctx, kp, conf, req)
}

// ProcessKeypoints analyses already detected keypoints. A failed save is
// logged and reported in the result; the analysis itself stands.
func (s *Service) ProcessKeypoints(ctx context.Context, kp angles.Keypoints, confidence float64, req Request) (Result, error) {
	unlock := s.Sessions.Lock(req.SessionID, req.BodyPart, req.MovementType)
	defer unlock()

	res, tracker, err := s.Analyzer.Analyze(ctx, Input{
		Keypoints:    kp,
		Confidence:   confidence,
		SessionID:    req.SessionID,
		BodyPart:     req.BodyPart,
		MovementType: req.MovementType,
		Options:      req.Options,
	})
	if err != nil {
		return Result{}, err
	}
	s.frames.Add(1)

	if tracker != nil {
		if err := s.Sessions.SaveTracker(ctx, req.SessionID, tracker); err != nil {
			s.persistFailures.Add(1)
			monitoring.Logf("session %s: save %s/%s tracker: %v", req.SessionID, req.BodyPart, req.MovementType, err)
			res.PersistError = err.Error()
		}
	}
	return res, nil
}

// FramesAnalyzed counts successful analyses.
func (s *Service) FramesAnalyzed() uint64 { return s.frames.Load() }

// PersistFailures counts tracker saves that failed.
func (s *Service) PersistFailures() uint64 { return s.persistFailures.Load() }
