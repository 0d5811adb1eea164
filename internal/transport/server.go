// Package transport delivers discrete named events per WebSocket connection
// and carries the engine's outbound events back. It knows nothing about
// matching or sessions; the engine plugs in through Handler.
package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Muhammd-hafeef-th/Us/internal/metrics"
	"github.com/Muhammd-hafeef-th/Us/internal/origin"
)

// Options are the per-connection hardening knobs, taken from config.
type Options struct {
	IdleTimeout          time.Duration
	PingInterval         time.Duration
	WriteTimeout         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueBytes       int
}

// Handler receives connection lifecycle callbacks. HandleConnect runs before
// any frame is read, so event handlers bound there never miss an event;
// HandleDisconnect runs exactly once after the read pump exits.
type Handler interface {
	HandleConnect(c *Conn)
	HandleDisconnect(id string)
}

// Server upgrades HTTP requests at the WebSocket mount and runs each
// connection's pumps.
type Server struct {
	log            *slog.Logger
	opts           Options
	allowedOrigins []string
	handler        Handler
	mets           *metrics.Metrics
	upgrader       websocket.Upgrader
}

func NewServer(opts Options, allowedOrigins []string, handler Handler, mets *metrics.Metrics, log *slog.Logger) *Server {
	s := &Server{
		log:            log.With("component", "transport"),
		opts:           opts,
		allowedOrigins: allowedOrigins,
		handler:        handler,
		mets:           mets,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s
}

// checkOrigin admits requests without an Origin header (non-browser clients)
// and browser origins passing the allowlist or, with no allowlist configured,
// the same-host policy.
func (s *Server) checkOrigin(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		return true
	}
	o, ok := origin.Normalize(header)
	if !ok {
		return false
	}
	return o.Allowed(r.Host, s.allowedOrigins)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Debug("websocket upgrade rejected", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	conn := newConn(uuid.NewString(), sock, s.opts, s.log, s.mets)
	go conn.writePump()

	s.handler.HandleConnect(conn)
	conn.readPump()
	s.handler.HandleDisconnect(conn.ID())
	conn.Close()
}
