// Package server exposes the analysis engine over websocket and HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rom-stream-go/internal/analysis"
	"rom-stream-go/internal/config"
	"rom-stream-go/internal/jobs"
	"rom-stream-go/internal/monitoring"
	"rom-stream-go/internal/rom"
)

// Deps are the collaborators the handlers drive.
type Deps struct {
	Service  *analysis.Service
	Calc     *rom.Calculator
	Jobs     *jobs.Runner
	StatusFn func() map[string]any
}

type client struct {
	writeMu sync.Mutex
	monitor bool
}

type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*client
	mu       sync.Mutex
	cfg      config.AppConfig
	deps     Deps
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

func New(cfg config.AppConfig, deps Deps) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*client),
		cfg:     cfg,
		deps:    deps,
	}
}

// Handler routes every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/stream/{session_id}", s.handleStream)
	mux.HandleFunc("GET /ws/monitor", s.handleMonitor)
	mux.HandleFunc("GET /ws/{session_id}", s.handleFrames)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /config", s.handleConfig)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/movements", s.handleMovements)
	mux.HandleFunc("POST /api/v1/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/v1/sessions/{session_id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{session_id}", s.handleClearSession)
	mux.HandleFunc("POST /api/v1/batch/submit", s.handleBatchSubmit)
	mux.HandleFunc("GET /api/v1/batch/status/{job_id}", s.handleBatchStatus)
	return mux
}

// Run serves until ctx is done, fanning messages out to /ws/monitor
// subscribers. Open websocket connections are closed on shutdown.
func Run(ctx context.Context, srv *Server, messages <-chan any) error {
	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(srv.cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		srv.CloseAll()
	}()

	go srv.broadcast(ctx, messages)

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// accept upgrades the request, registers the connection and starts its
// keepalive. The returned func stops the keepalive and unregisters.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, monitor bool) (*websocket.Conn, *client, func(), error) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	conn.SetReadLimit(s.readLimit())
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := &client{monitor: monitor}
	s.mu.Lock()
	s.clients[conn] = c
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := s.writeMessage(conn, c, websocket.PingMessage, nil); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			close(done)
			s.removeClient(conn)
		})
	}
	return conn, c, cleanup, nil
}

func (s *Server) readLimit() int64 {
	if s.cfg.ReadLimit > 0 {
		return s.cfg.ReadLimit
	}
	return 8 << 20
}

func (s *Server) broadcast(ctx context.Context, messages <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			s.Broadcast(message)
		}
	}
}

// Broadcast sends message to every /ws/monitor subscriber. Messages that
// cannot be encoded are dropped.
func (s *Server) Broadcast(message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		monitoring.Logf("broadcast: encode: %v", err)
		return
	}

	s.mu.Lock()
	monitors := make(map[*websocket.Conn]*client)
	for conn, c := range s.clients {
		if c.monitor {
			monitors[conn] = c
		}
	}
	s.mu.Unlock()

	var stale []*websocket.Conn
	for conn, c := range monitors {
		if err := s.writeMessage(conn, c, websocket.TextMessage, payload); err != nil {
			stale = append(stale, conn)
		}
	}
	for _, conn := range stale {
		s.removeClient(conn)
	}
}

// CloseAll sends a going-away close frame to every connection and drops it.
func (s *Server) CloseAll() {
	s.mu.Lock()
	conns := make(map[*websocket.Conn]*client, len(s.clients))
	for conn, c := range s.clients {
		conns[conn] = c
	}
	s.mu.Unlock()
	for conn, c := range conns {
		_ = s.writeClose(conn, c, websocket.CloseGoingAway, "server shutting down")
		s.removeClient(conn)
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(conn *websocket.Conn, c *client, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

// writeReply answers a frame. A reply that cannot be encoded becomes an
// error message so the connection stays usable.
func (s *Server) writeReply(conn *websocket.Conn, c *client, reply any) error {
	payload, err := json.Marshal(reply)
	if err != nil {
		monitoring.Logf("encode reply: %v", err)
		payload, _ = json.Marshal(map[string]string{"error": "Analysis failed: " + err.Error()})
	}
	return s.writeMessage(conn, c, websocket.TextMessage, payload)
}

func (s *Server) writeMessage(conn *websocket.Conn, c *client, messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}

func (s *Server) writeClose(conn *websocket.Conn, c *client, code int, reason string) error {
	return s.writeMessage(conn, c, websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

func (s *Server) writeError(conn *websocket.Conn, c *client, msg string) error {
	return s.writeJSON(conn, c, map[string]string{"error": msg})
}

func logClosed(kind, sessionID string, err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		monitoring.Logf("%s %s: read: %v", kind, sessionID, err)
	}
}
