package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tallerco/shopcore/pkg/logger"
	"github.com/tallerco/shopcore/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB

	sendBufferSize = 64
)

// Session is one live websocket connection for one authenticated user. Each
// session owns its socket and group list; inbound frames are processed
// strictly in arrival order by a single read loop.
type Session struct {
	bus    Bus
	socket *websocket.Conn
	userID string
	groups []string
	send   chan Envelope
	once   sync.Once
	log    *zap.Logger

	// mu orders enqueue against teardown: closed flips before send is closed,
	// so no goroutine can write to a closed channel.
	mu     sync.Mutex
	closed bool
}

// UserID returns the authenticated user this session belongs to.
func (s *Session) UserID() string {
	return s.userID
}

// enqueue offers an envelope to the write loop without blocking. A full buffer
// marks the consumer as too slow and the caller tears the session down.
// Returns false once the session is closed.
func (s *Session) enqueue(env Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.send <- env:
		return true
	default:
		return false
	}
}

// Close deregisters the session from every group and closes the socket.
// Idempotent; safe to call from any goroutine, including concurrently with
// enqueue from the read loop or a bus publish.
func (s *Session) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		// Group discards take the bus lock, so they stay outside mu. Any
		// enqueue past this point observes closed and never touches send.
		for _, group := range s.groups {
			s.bus.GroupDiscard(group, s)
		}
		close(s.send)
		_ = s.socket.Close()
		metrics.ActiveSessions.Dec()
	})
}

// inbound control frames are JSON objects with a type discriminator. The
// timestamp is opaque: whatever the client sent is echoed back verbatim.
type controlFrame struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func (s *Session) readLoop() {
	defer s.Close()

	s.socket.SetReadLimit(maxMessageSize)
	_ = s.socket.SetReadDeadline(time.Now().Add(pongWait))
	s.socket.SetPongHandler(func(string) error {
		_ = s.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := s.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Debug("unexpected close", zap.String("user_id", s.userID), zap.Error(err))
			}
			return
		}

		if len(payload) == 0 {
			continue
		}

		var frame controlFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			// Malformed input is recoverable: report it, keep the connection.
			s.enqueue(Envelope{Type: TypeError, Message: "Invalid JSON"})
			continue
		}

		switch frame.Type {
		case TypePing:
			s.enqueue(Envelope{Type: TypePong, Timestamp: frame.Timestamp})
		default:
			// Unrecognised frame types are silently ignored.
		}
	}
}

func (s *Session) writeLoop() {
	defer s.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-s.send:
			_ = s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.socket.WriteJSON(env); err != nil {
				// Dead socket: treated as an implicit disconnect.
				return
			}
		case <-ticker.C:
			_ = s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub upgrades HTTP requests into managed websocket sessions registered with
// the fan-out layer.
type Hub struct {
	bus      Bus
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a Hub bound to the supplied bus.
func NewHub(bus Bus) *Hub {
	return &Hub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and explicit localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return hostWithoutPort(origin) == hostWithoutPort(r.Host) || isLoopback(hostWithoutPort(origin))
			},
		},
		log: logger.WithModule("realtime"),
	}
}

// Serve upgrades the connection, registers the session under the supplied
// groups, emits the hello frame, and blocks until the client disconnects.
// Authentication and access checks must happen before calling Serve.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string, groups []string, hello Envelope) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	session := &Session{
		bus:    h.bus,
		socket: conn,
		userID: userID,
		groups: groups,
		send:   make(chan Envelope, sendBufferSize),
		log:    h.log,
	}

	for _, group := range groups {
		h.bus.GroupAdd(group, session)
	}
	metrics.ActiveSessions.Inc()

	session.enqueue(hello)

	go session.writeLoop()
	session.readLoop()
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	if idx := strings.IndexByte(host, '/'); idx >= 0 {
		host = host[:idx]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
