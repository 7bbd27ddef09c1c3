package signaling

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/galkyn/video-calling-app/internal/config"
	"github.com/galkyn/video-calling-app/internal/metrics"
	"github.com/galkyn/video-calling-app/internal/origin"
	"github.com/galkyn/video-calling-app/internal/ratelimit"
)

// How many times to retry a colliding client ID before giving up.
const registerAttempts = 4

// Server accepts websocket connections, assigns IDs and pumps each
// connection's inbound messages through the router.
type Server struct {
	cfg      config.Config
	registry *Registry
	router   *Router
	log      *slog.Logger
	metrics  *metrics.Metrics
	clock    ratelimit.Clock

	upgrader websocket.Upgrader

	connMu sync.Mutex
	conns  map[*clientConn]struct{}
}

func NewServer(cfg config.Config, registry *Registry, router *Router, log *slog.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		router:   router,
		log:      log,
		metrics:  m,
		clock:    ratelimit.RealClock{},
		conns:    make(map[*clientConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		// Non-browser clients send no Origin; only browsers need the
		// cross-site protection this check provides.
		return true
	}
	normalized, ok := origin.Normalize(header)
	if !ok {
		return false
	}
	return origin.Allowed(normalized, s.cfg.AllowedOrigins)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	conn, ok := s.registerConn(ws)
	if !ok {
		ws.Close()
		return
	}
	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()

	s.metrics.Inc(metrics.ClientConnected)
	s.log.Info("client connected", "client_id", conn.id, "remote", r.RemoteAddr)

	go conn.writePump(s.cfg.SignalingWSPingInterval)

	s.sendClientID(conn)
	s.broadcastUserList()

	s.readLoop(conn)

	s.registry.Unregister(conn.id)
	s.router.ClientClosed(conn.id)
	conn.close()
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
	s.metrics.Inc(metrics.ClientDisconnected)
	s.log.Info("client disconnected", "client_id", conn.id)
	s.broadcastUserList()
}

// Close tears down every live client connection. Called during process
// shutdown after the HTTP listener stops accepting new upgrades.
func (s *Server) Close() {
	s.connMu.Lock()
	conns := make([]*clientConn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.connMu.Unlock()
	for _, conn := range conns {
		conn.close()
	}
}

// registerConn assigns a fresh ID, retrying the rare collisions.
func (s *Server) registerConn(ws *websocket.Conn) (*clientConn, bool) {
	for attempt := 0; attempt < registerAttempts; attempt++ {
		id := newClientID()
		conn := newClientConn(id, ws, s.log)
		err := s.registry.Register(id, conn)
		if err == nil {
			return conn, true
		}
		s.metrics.Inc(metrics.DuplicateClientID)
		s.log.Warn("client id collision, retrying", "client_id", id)
	}
	s.log.Error("could not allocate a client id")
	return nil, false
}

func (s *Server) sendClientID(conn *clientConn) {
	data, err := json.Marshal(Envelope{
		Type: MessageTypeClientID,
		Data: &EnvelopeData{ClientID: conn.id},
	})
	if err != nil {
		return
	}
	if err := conn.Enqueue(data); err != nil {
		s.log.Warn("could not send client id", "client_id", conn.id, "err", err)
	}
}

// broadcastUserList pushes the roster to every client. Each recipient
// gets a list that excludes itself.
func (s *Server) broadcastUserList() {
	ids := s.registry.IDs()
	for id, sink := range s.registry.Snapshot() {
		data, err := json.Marshal(userListEnvelope(ids, id))
		if err != nil {
			continue
		}
		if err := sink.Enqueue(data); err != nil {
			s.log.Debug("roster push dropped", "client_id", id, "err", err)
		}
	}
}

func (s *Server) readLoop(conn *clientConn) {
	ws := conn.ws
	ws.SetReadLimit(int64(s.cfg.MaxSignalingMessageBytes))
	ws.SetReadDeadline(time.Now().Add(s.cfg.SignalingWSIdleTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.SignalingWSIdleTimeout))
	})

	perSec := int64(s.cfg.MaxSignalingMessagesPerSecond)
	limiter := ratelimit.NewTokenBucket(s.clock, perSec, perSec)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read ended", "client_id", conn.id, "err", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(s.cfg.SignalingWSIdleTimeout))
		if !limiter.Allow(1) {
			s.metrics.Inc(metrics.RateLimited)
			s.log.Warn("closing connection for exceeding message rate", "client_id", conn.id)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.router.Route(conn.id, data)
	}
}
