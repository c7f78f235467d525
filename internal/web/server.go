// Package web serves the scoreboard page, the JSON status and the websocket
// snapshot stream for viewers.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sweeney/foosball-sensor/internal/status"
)

// Upgrade budget across all clients: sustained per second, and burst.
const (
	upgradeRate  = 5
	upgradeBurst = 20
)

// Server serves HTTP and websocket viewers.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	hub        *Hub
	upgrader   websocket.Upgrader
	limiter    *rate.Limiter
	logger     *log.Logger
}

// New creates a Server that reads state from tracker and registers viewers
// with hub.
func New(addr string, tracker *status.Tracker, hub *Hub, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		tracker: tracker,
		hub:     hub,
		upgrader: websocket.Upgrader{
			// Scoreboards are embedded in arbitrary pages.
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		limiter: rate.NewLimiter(upgradeRate, upgradeBurst),
		logger:  logger.WithPrefix("web"),
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.accessLog)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	return r
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
// Hijacked websocket connections are closed by the hub, not here.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Viewers may subscribe on the bare address as well as /ws.
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Error("render index", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(status.FormatJSON(snap))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	v := newViewer(conn, s.logger)
	if !s.hub.join(v) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		_ = conn.Close()
		return
	}
	go v.writePump()
	go v.readPump(s.hub)
}
