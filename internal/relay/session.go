package relay

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ConsistentClient/ccsswebsockets/internal/contextkey"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 65536 // 64KB

	// Outbound frame buffer per connection. Fan-out drops frames when full.
	sendBufferSize = 256
)

// newSessionToken generates the opaque per-session credential: 32 random
// bytes, URL-safe base64 without padding.
func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Session is one live connection and its per-connection state machine:
// Unregistered until a successful Register, then Registered until the peer
// goes away. Identity fields are written only by the owning read loop; the
// registry and fan-out read them under the mutex.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	id   uuid.UUID
	send chan []byte

	closeOnce sync.Once

	mu             sync.RWMutex
	registered     bool
	userID         int64
	username       string
	organizationID int64
	sessionToken   string
}

func newSession(hub *Hub, conn *websocket.Conn) *Session {
	return &Session{
		hub:  hub,
		conn: conn,
		id:   uuid.New(),
		send: make(chan []byte, sendBufferSize),
	}
}

// UserID implements presence.Conn.
func (s *Session) UserID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.registered
}

// Enqueue implements presence.Conn: non-blocking offer to the send buffer.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		// Peer is too slow; drop the frame rather than stall fan-out.
		return false
	}
}

func (s *Session) register(userID int64, username string, organizationID int64, token string) {
	s.mu.Lock()
	s.registered = true
	s.userID = userID
	s.username = username
	s.organizationID = organizationID
	s.sessionToken = token
	s.mu.Unlock()
	s.hub.registry.Promote(s, userID)
}

// identity returns a consistent snapshot of the registered identity.
func (s *Session) identity() (userID int64, username string, organizationID int64, token string, registered bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.username, s.organizationID, s.sessionToken, s.registered
}

// reply marshals and enqueues a frame for this session's peer.
func (s *Session) reply(ctx context.Context, v interface{}) {
	if !s.Enqueue(mustMarshal(v)) {
		s.hub.logger.Debug(ctx, "send buffer full, reply dropped")
	}
}

// logContext tags the context with the connection id and, once registered,
// the user id, for the structured logger.
func (s *Session) logContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, contextkey.ContextKeyConnectionID, s.id)
	if uid, ok := s.UserID(); ok {
		ctx = context.WithValue(ctx, contextkey.ContextKeyUserID, uid)
	}
	return ctx
}

// Run attaches the session to the registry and pumps the connection until
// the peer disconnects. It blocks until the read loop ends; cleanup always
// detaches the session.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.hub.registry.Attach(s)
	defer func() {
		s.hub.registry.Detach(s)
		cancel()
		s.close()
	}()

	go s.writePump(ctx)
	s.readPump(ctx)
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}

// readPump processes inbound frames strictly in order. Handlers run on this
// goroutine, so a connection never has two handlers in flight.
func (s *Session) readPump(ctx context.Context) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.hub.logger.Debug(s.logContext(ctx), "read error: %v", err)
			}
			return
		}
		s.dispatch(s.logContext(ctx), raw)
	}
}

// writePump drains the send buffer to the peer and keeps the connection
// alive with pings.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
