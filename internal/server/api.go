package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"rom-stream-go/internal/analysis"
	"rom-stream-go/internal/jobs"
	"rom-stream-go/internal/movement"
	"rom-stream-go/internal/pose"
	"rom-stream-go/internal/session"
	"rom-stream-go/internal/types"
)

type analyzeRequest struct {
	FrameBase64      string                `json:"frame_base64"`
	Keypoints        map[string][2]float64 `json:"keypoints"`
	Confidence       *float64              `json:"confidence"`
	SessionID        string                `json:"session_id"`
	BodyPart         string                `json:"body_part"`
	MovementType     string                `json:"movement_type"`
	IncludeKeypoints bool                  `json:"include_keypoints"`
	Side             string                `json:"side"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Public())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{}
	if s.deps.StatusFn != nil {
		payload = s.deps.StatusFn()
	}
	if metrics, ok := payload["metrics"].(map[string]any); ok {
		metrics["ws_clients"] = s.clientCount()
	} else {
		payload["ws_clients"] = s.clientCount()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleMovements(w http.ResponseWriter, r *http.Request) {
	bodyPart := r.URL.Query().Get("body_part")
	reg := s.deps.Calc.Registry
	list := reg.List(bodyPart)
	if bodyPart != "" && len(list) == 0 {
		writeJSONError(w, http.StatusNotFound, "unknown body part "+bodyPart)
		return
	}
	defs := []movement.Info{}
	for _, def := range reg.Definitions() {
		if bodyPart == "" || def.BodyPart == bodyPart {
			defs = append(defs, def.Info())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"movements":   list,
		"definitions": defs,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BodyPart == "" || req.MovementType == "" {
		writeJSONError(w, http.StatusBadRequest, msgFieldsRequired)
		return
	}
	areq := analysis.Request{
		SessionID:    req.SessionID,
		BodyPart:     req.BodyPart,
		MovementType: req.MovementType,
		Options:      analysis.Options{IncludeKeypoints: req.IncludeKeypoints, Side: req.Side},
	}

	var (
		res analysis.Result
		err error
	)
	if req.Keypoints != nil {
		res, err = s.deps.Service.ProcessKeypoints(r.Context(), types.KeypointsFrom(req.Keypoints), confidenceOr(req.Confidence, 1), areq)
	} else {
		var image []byte
		image, err = pose.DecodeBase64(req.FrameBase64)
		if err == nil {
			res, err = s.deps.Service.ProcessImage(r.Context(), image, areq)
		}
	}
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	view, err := s.deps.Service.Sessions.GetSession(r.Context(), sessionID)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, session.ErrInvalidSessionID):
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"movements":  view,
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	err := s.deps.Service.Sessions.ClearSession(r.Context(), sessionID)
	switch {
	case errors.Is(err, session.ErrInvalidSessionID):
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"status":     "cleared",
	})
}

func (s *Server) handleBatchSubmit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "batch processing is disabled")
		return
	}
	var batch jobs.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	job, err := s.deps.Jobs.Submit(r.Context(), batch)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": "accepted",
	})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "batch processing is disabled")
		return
	}
	job, err := s.deps.Jobs.Get(r.Context(), r.PathValue("job_id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeJSONError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}
