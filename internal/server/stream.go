package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"rom-stream-go/internal/analysis"
	"rom-stream-go/internal/monitoring"
	"rom-stream-go/internal/movement"
	"rom-stream-go/internal/pose"
	"rom-stream-go/internal/session"
	"rom-stream-go/internal/types"
)

const (
	msgHandshakeFields = "First message must include body_part and movement_type"
	msgInvalidJSON     = "Invalid JSON format"
	msgFrameRequired   = "frame_base64 is required"
	msgFieldsRequired  = "body_part and movement_type are required"
)

var errInvalidJSON = errors.New(msgInvalidJSON)

// streamConfig is the handshake message and the READY echo.
type streamConfig struct {
	BodyPart         string `json:"body_part"`
	MovementType     string `json:"movement_type"`
	IncludeKeypoints bool   `json:"include_keypoints"`
	Side             string `json:"side"`
}

// frameEnvelope is a JSON frame on the streaming channel. Keypoints take
// precedence over Frame.
type frameEnvelope struct {
	Frame      string                `json:"frame"`
	Keypoints  map[string][2]float64 `json:"keypoints"`
	Confidence *float64              `json:"confidence"`
}

// frameMessage is one self-describing request on /ws/{session_id}.
type frameMessage struct {
	FrameBase64      *string               `json:"frame_base64"`
	Keypoints        map[string][2]float64 `json:"keypoints"`
	Confidence       *float64              `json:"confidence"`
	BodyPart         string                `json:"body_part"`
	MovementType     string                `json:"movement_type"`
	IncludeKeypoints bool                  `json:"include_keypoints"`
	Side             string                `json:"side"`
}

// handleStream runs the handshake variant: one configuration message, then
// a sequence of frames answered one by one in order.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	conn, c, done, err := s.accept(w, r, false)
	if err != nil {
		return
	}
	defer done()

	cfg, err := s.handshake(conn, sessionID)
	if err != nil {
		if errors.Is(err, errConnClosed) {
			return
		}
		monitoring.Logf("stream %s: handshake rejected: %v", sessionID, err)
		_ = s.writeError(conn, c, err.Error())
		_ = s.writeClose(conn, c, websocket.ClosePolicyViolation, "")
		return
	}
	if err := s.writeJSON(conn, c, map[string]any{"status": "ready", "config": cfg}); err != nil {
		return
	}
	monitoring.Logf("stream %s: ready for %s/%s", sessionID, cfg.BodyPart, cfg.MovementType)

	req := analysis.Request{
		SessionID:    sessionID,
		BodyPart:     cfg.BodyPart,
		MovementType: cfg.MovementType,
		Options:      analysis.Options{IncludeKeypoints: cfg.IncludeKeypoints, Side: cfg.Side},
	}
	frameNumber := 0
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			logClosed("stream", sessionID, err)
			monitoring.Logf("stream %s: ended after %d frames", sessionID, frameNumber)
			return
		}
		if messageType == websocket.TextMessage && string(payload) == "ping" {
			if err := s.writeMessage(conn, c, websocket.TextMessage, []byte("pong")); err != nil {
				return
			}
			continue
		}

		res, err := s.analyzeStreamFrame(r.Context(), messageType, payload, req)
		var reply any
		switch {
		case errors.Is(err, errInvalidJSON):
			reply = map[string]string{"error": msgInvalidJSON}
		case err != nil:
			monitoring.Logf("stream %s: frame: %v", sessionID, err)
			reply = map[string]string{"error": "Analysis failed: " + err.Error()}
		default:
			n := frameNumber
			res.FrameNumber = &n
			frameNumber++
			reply = res
		}
		if err := s.writeReply(conn, c, reply); err != nil {
			return
		}
	}
}

var errConnClosed = errors.New("connection closed")

func (s *Server) handshake(conn *websocket.Conn, sessionID string) (streamConfig, error) {
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return streamConfig{}, errConnClosed
	}
	var cfg streamConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return streamConfig{}, errInvalidJSON
	}
	if cfg.BodyPart == "" || cfg.MovementType == "" {
		return streamConfig{}, errors.New(msgHandshakeFields)
	}
	if _, err := s.deps.Calc.Definition(cfg.BodyPart, cfg.MovementType); err != nil {
		return streamConfig{}, fmt.Errorf("Unsupported movement %s/%s", cfg.BodyPart, cfg.MovementType)
	}
	if err := session.ValidateSessionID(sessionID); err != nil {
		return streamConfig{}, fmt.Errorf("Invalid session id %q", sessionID)
	}
	if cfg.Side != movement.SideLeft {
		cfg.Side = movement.SideRight
	}
	return cfg, nil
}

func (s *Server) analyzeStreamFrame(ctx context.Context, messageType int, payload []byte, req analysis.Request) (analysis.Result, error) {
	if messageType == websocket.BinaryMessage {
		return s.deps.Service.ProcessImage(ctx, payload, req)
	}
	text := string(payload)
	if !strings.HasPrefix(text, "{") {
		image, err := pose.DecodeBase64(text)
		if err != nil {
			return analysis.Result{}, err
		}
		return s.deps.Service.ProcessImage(ctx, image, req)
	}

	var env frameEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return analysis.Result{}, errInvalidJSON
	}
	if env.Keypoints != nil {
		return s.deps.Service.ProcessKeypoints(ctx, types.KeypointsFrom(env.Keypoints), confidenceOr(env.Confidence, 1), req)
	}
	image, err := pose.DecodeBase64(env.Frame)
	if err != nil {
		return analysis.Result{}, err
	}
	return s.deps.Service.ProcessImage(ctx, image, req)
}

// handleFrames serves the per-message variant: every message names its
// movement and carries its own frame.
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	conn, c, done, err := s.accept(w, r, false)
	if err != nil {
		return
	}
	defer done()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			logClosed("session", sessionID, err)
			return
		}
		var reply any
		var msg frameMessage
		switch {
		case json.Unmarshal(payload, &msg) != nil:
			reply = map[string]string{"error": msgInvalidJSON}
		case msg.FrameBase64 == nil && msg.Keypoints == nil:
			reply = map[string]string{"error": msgFrameRequired}
		case msg.BodyPart == "" || msg.MovementType == "":
			reply = map[string]string{"error": msgFieldsRequired}
		default:
			res, err := s.analyzeMessage(r.Context(), sessionID, msg)
			if err != nil {
				monitoring.Logf("session %s: frame: %v", sessionID, err)
				reply = map[string]string{"error": "Analysis failed: " + err.Error()}
			} else {
				reply = res
			}
		}
		if err := s.writeReply(conn, c, reply); err != nil {
			return
		}
	}
}

func (s *Server) analyzeMessage(ctx context.Context, sessionID string, msg frameMessage) (analysis.Result, error) {
	req := analysis.Request{
		SessionID:    sessionID,
		BodyPart:     msg.BodyPart,
		MovementType: msg.MovementType,
		Options:      analysis.Options{IncludeKeypoints: msg.IncludeKeypoints, Side: msg.Side},
	}
	if msg.Keypoints != nil {
		return s.deps.Service.ProcessKeypoints(ctx, types.KeypointsFrom(msg.Keypoints), confidenceOr(msg.Confidence, 1), req)
	}
	image, err := pose.DecodeBase64(*msg.FrameBase64)
	if err != nil {
		return analysis.Result{}, err
	}
	return s.deps.Service.ProcessImage(ctx, image, req)
}

// handleMonitor subscribes the connection to the ingest broadcast. Inbound
// messages are discarded.
func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	conn, _, done, err := s.accept(w, r, true)
	if err != nil {
		return
	}
	defer done()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			logClosed("monitor", r.RemoteAddr, err)
			return
		}
	}
}

func confidenceOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
