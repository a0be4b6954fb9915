package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/roach88/quizarena/internal/matchmaking"
	"github.com/roach88/quizarena/internal/protocol"
	"github.com/roach88/quizarena/internal/quiz"
	"github.com/roach88/quizarena/internal/session"
	"github.com/roach88/quizarena/internal/store"
)

// Engine is the part of *engine.Engine the gateway drives.
type Engine interface {
	Join(connID, name string) bool
	Leave(connID string) bool
	Submit(connID, sessionID string, answer float64) bool
	Disconnect(connID string) bool
	ForceEnd(sessionID, winner string) bool
	QueueStatus() matchmaking.Status
	Registry() *session.Registry
}

// Scores is the part of *store.Store the HTTP API reads and writes.
type Scores interface {
	Upsert(ctx context.Context, r store.Result) (store.PlayerRecord, error)
	Ranked(ctx context.Context, limit, offset int) (store.Page, error)
	RankOf(ctx context.Context, name string) (store.Rank, error)
	TopStats(ctx context.Context) (store.Stats, error)
}

// Server serves the WebSocket endpoint and the HTTP API.
type Server struct {
	hub      *Hub
	engine   Engine
	scores   Scores
	problems quiz.Source
	ids      session.IDGenerator
	origins  []string
	timeout  time.Duration
	upgrader websocket.Upgrader
	router   *httprouter.Router
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins restricts WebSocket upgrades to the listed Origin
// values. Empty allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithConnIDs overrides connection id generation (default UUIDv7).
func WithConnIDs(g session.IDGenerator) Option {
	return func(s *Server) { s.ids = g }
}

// WithStoreTimeout bounds every store call made by the HTTP API.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// NewServer wires the routes. hub must be the Transport the engine delivers to.
func NewServer(hub *Hub, eng Engine, scores Scores, problems quiz.Source, opts ...Option) *Server {
	s := &Server{
		hub:      hub,
		engine:   eng,
		scores:   scores,
		problems: problems,
		ids:      session.UUIDv7Generator{},
		timeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	r := httprouter.New()
	r.GET("/ws", s.serveWS)
	r.GET("/api/queue", s.getQueue)
	r.GET("/api/sessions/:id", s.getSession)
	r.POST("/api/sessions/:id/end", s.endSession)
	r.GET("/api/problem", s.getProblem)
	r.POST("/api/score", s.postScore)
	r.GET("/api/leaderboard", s.getLeaderboard)
	r.GET("/api/leaderboard/:name", s.getRank)
	r.GET("/api/stats", s.getStats)
	s.router = r
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.origins, origin)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(s.ids.Generate(), conn)
	s.hub.register(c)
	slog.Info("connection opened", "conn_id", c.id, "remote", r.RemoteAddr)

	go c.writePump()
	s.readPump(c)
}

// readPump runs on the request goroutine until the connection fails.
func (s *Server) readPump(c *client) {
	defer func() {
		s.hub.unregister(c.id)
		s.engine.Disconnect(c.id)
		_ = c.conn.Close()
		slog.Info("connection closed", "conn_id", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		s.dispatch(c.id, data)
	}
}

// dispatch routes one inbound frame to the engine.
func (s *Server) dispatch(connID string, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		slog.Debug("inbound message rejected", "conn_id", connID, "error", err)
		s.hub.Deliver(connID, protocol.ErrorFor(err))
		return
	}

	switch m := msg.(type) {
	case protocol.JoinMatchmaking:
		s.engine.Join(connID, m.PlayerName)
	case protocol.LeaveMatchmaking:
		s.engine.Leave(connID)
	case protocol.SubmitAnswer:
		s.engine.Submit(connID, m.SessionID, m.Answer)
	}
}
