package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/videomesh/signal-relay/internal/config"
	"github.com/videomesh/signal-relay/internal/metrics"
	"github.com/videomesh/signal-relay/internal/origin"
	"github.com/videomesh/signal-relay/internal/ratelimit"
	"github.com/videomesh/signal-relay/internal/registry"
)

// Config wires together the runtime dependencies for the signaling relay.
type Config struct {
	Registry *registry.Registry
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// AllowedOrigins restricts which browser origins may open the WebSocket.
	// Entries are normalized origins, "*" or "null". Empty means same-host
	// origins only.
	AllowedOrigins []string

	// IdleTimeout closes connections that have produced no read (message or
	// pong) for this duration. PingInterval must be shorter.
	IdleTimeout  time.Duration
	PingInterval time.Duration

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
}

// Server terminates signaling WebSockets and routes frames between room
// members. It trusts roomCode/username values; room passwords and membership
// records are checked by the REST API before the socket is opened.
type Server struct {
	registry *registry.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger

	allowedOrigins []string
	idleTimeout    time.Duration
	pingInterval   time.Duration

	maxMessageBytes      int64
	maxMessagesPerSecond int

	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = config.DefaultWSIdleTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.IdleTimeout {
		cfg.PingInterval = cfg.IdleTimeout / 3
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = config.DefaultMaxMessageBytes
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = config.DefaultMaxMessagesPerSecond
	}

	s := &Server{
		registry:       cfg.Registry,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		allowedOrigins: cfg.AllowedOrigins,
		idleTimeout:    cfg.IdleTimeout,
		pingInterval:   cfg.PingInterval,

		maxMessageBytes:      cfg.MaxMessageBytes,
		maxMessagesPerSecond: cfg.MaxMessagesPerSecond,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s
}

func (s *Server) Registry() *registry.Registry { return s.registry }

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/signaling", s.handleSignaling)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	originHeader := strings.TrimSpace(r.Header.Get("Origin"))
	if originHeader == "" {
		// Non-browser clients.
		return true
	}
	normalized, host, ok := origin.NormalizeHeader(originHeader)
	if !ok {
		return false
	}
	return origin.IsAllowed(normalized, host, r.Host, s.allowedOrigins)
}

func (s *Server) handleSignaling(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := newPeer(conn)
	defer p.Close()

	s.metrics.Inc(metrics.WSConnections)
	s.logger.Info("websocket connection established", "conn", p.ID(), "remote", r.RemoteAddr)

	conn.SetReadLimit(s.maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(p, pingDone)

	limiter := ratelimit.NewTokenBucket(
		ratelimit.RealClock{},
		int64(s.maxMessagesPerSecond),
		int64(s.maxMessagesPerSecond),
	)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				s.metrics.Inc(metrics.DropOversized)
				s.logger.Warn("closing connection: message exceeds read limit", "conn", p.ID())
			} else if isTimeout(err) {
				s.logger.Info("closing idle connection", "conn", p.ID())
				p.closeWith(websocket.CloseNormalClosure, "idle timeout")
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))

		// Consume the frame before enforcing the rate limit so the close frame
		// is not preempted by an abortive TCP reset on unread data.
		if !limiter.Allow(1) {
			s.metrics.Inc(metrics.DropRateLimited)
			s.logger.Warn("closing connection: rate limit exceeded", "conn", p.ID())
			p.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			break
		}

		if msgType != websocket.TextMessage {
			s.metrics.Inc(metrics.DropBadMessage)
			s.logger.Warn("ignoring non-text frame", "conn", p.ID())
			continue
		}

		msg, err := ParseSignalMessage(data)
		if err != nil {
			if errors.Is(err, ErrUnknownMessageType) {
				s.metrics.Inc(metrics.DropUnknownType)
			} else {
				s.metrics.Inc(metrics.DropBadMessage)
			}
			s.logger.Warn("ignoring undecodable frame", "conn", p.ID(), "err", err)
			continue
		}

		switch msg.Type {
		case MessageTypeJoin:
			s.handleJoin(p, msg)
		case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
			s.relay(p, msg, data)
		case MessageTypeLeave:
			s.handleLeave(p, msg)
		}
	}

	s.teardown(p)
}

func (s *Server) pingLoop(p *peer, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := p.ping(); err != nil {
				return
			}
		}
	}
}

// handleJoin registers the participant, announces the arrival to the rest of
// the room and answers the joiner with the post-join roster.
func (s *Server) handleJoin(p *peer, msg SignalMessage) {
	s.registry.Register(msg.RoomCode, msg.Username, p)
	s.metrics.Inc(metrics.Joins)

	s.broadcast(msg.RoomCode, SignalMessage{
		Type:     MessageTypeUserJoined,
		Username: msg.Username,
	}, msg.Username)

	users := s.registry.Members(msg.RoomCode)
	sort.Strings(users)
	roster, err := json.Marshal(SignalMessage{
		Type:  MessageTypeParticipants,
		Users: users,
	})
	if err != nil {
		s.logger.Error("encoding roster", "room", msg.RoomCode, "err", err)
		return
	}
	if err := p.Send(roster); err != nil {
		s.metrics.Inc(metrics.DropSendFailure)
		s.logger.Warn("sending roster", "room", msg.RoomCode, "user", msg.Username, "err", err)
	}

	s.logger.Info("participant joined", "room", msg.RoomCode, "user", msg.Username, "conn", p.ID())
}

// relay forwards the original frame bytes to the target participant. An
// absent target is a silent drop; the sender gets no feedback.
func (s *Server) relay(p *peer, msg SignalMessage, frame []byte) {
	target := s.registry.Lookup(msg.RoomCode, msg.Target)
	if target == nil {
		s.metrics.Inc(metrics.DropNoTarget)
		s.logger.Debug("relay target not in room", "room", msg.RoomCode, "target", msg.Target, "type", msg.Type)
		return
	}

	if err := target.Send(frame); err != nil {
		s.metrics.Inc(metrics.DropSendFailure)
		s.logger.Warn("relaying message", "room", msg.RoomCode, "target", msg.Target, "type", msg.Type, "err", err)
		return
	}
	s.metrics.Inc(metrics.Relays)
}

func (s *Server) handleLeave(p *peer, msg SignalMessage) {
	pruned := s.registry.Unregister(msg.RoomCode, msg.Username)
	s.metrics.Inc(metrics.Leaves)

	s.broadcast(msg.RoomCode, SignalMessage{
		Type:     MessageTypeUserLeft,
		Username: msg.Username,
	}, "")
	if pruned {
		s.metrics.Inc(metrics.RoomsPruned)
	}

	s.logger.Info("participant left", "room", msg.RoomCode, "user", msg.Username, "conn", p.ID())
}

// teardown reconciles the registry with a closed connection: every membership
// held by the connection is removed and announced as a departure.
func (s *Server) teardown(p *peer) {
	removed, prunedRooms := s.registry.UnregisterChannel(p)
	for _, m := range removed {
		s.metrics.Inc(metrics.Leaves)
		s.broadcast(m.Room, SignalMessage{
			Type:     MessageTypeUserLeft,
			Username: m.Participant,
		}, "")
		s.logger.Info("participant disconnected", "room", m.Room, "user", m.Participant, "conn", p.ID())
	}
	for range prunedRooms {
		s.metrics.Inc(metrics.RoomsPruned)
	}

	s.metrics.Inc(metrics.WSDisconnects)
	s.logger.Info("websocket connection closed", "conn", p.ID())
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// broadcast encodes event once and delivers it to every current member of the
// room except exclude. Sends are independent; one dead recipient does not
// abort the rest and never mutates the registry.
func (s *Server) broadcast(roomCode string, event SignalMessage, exclude string) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("encoding broadcast", "room", roomCode, "type", event.Type, "err", err)
		return
	}

	recipients := s.registry.Snapshot(roomCode, exclude)
	if len(recipients) == 0 {
		return
	}
	for participant, ch := range recipients {
		if err := ch.Send(data); err != nil {
			s.metrics.Inc(metrics.DropSendFailure)
			s.logger.Warn("broadcasting to participant", "room", roomCode, "user", participant, "type", event.Type, "err", err)
		}
	}
	s.metrics.Inc(metrics.Broadcasts)
}
