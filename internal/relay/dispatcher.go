package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ConsistentClient/ccsswebsockets/internal/presence"
	"github.com/ConsistentClient/ccsswebsockets/internal/utils"
)

var (
	framesHandled     metric.Int64Counter
	messagesBroadcast metric.Int64Counter
)

func init() {
	meter := otel.Meter("relay")
	framesHandled, _ = meter.Int64Counter("relay.frames.handled")
	messagesBroadcast, _ = meter.Int64Counter("relay.messages.broadcast")
}

// Hub holds the dependencies shared by every session: the repository, the
// push gateway, and the live-connection registry.
type Hub struct {
	store    Store
	sender   Sender
	registry *presence.Registry
	logger   *utils.Logger

	// now is injectable for cooldown tests.
	now func() time.Time
}

func NewHub(store Store, sender Sender, registry *presence.Registry, logger *utils.Logger) *Hub {
	return &Hub{
		store:    store,
		sender:   sender,
		registry: registry,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewSession wraps an upgraded connection in a session. The caller runs it
// with Session.Run.
func (h *Hub) NewSession(conn *websocket.Conn) *Session {
	return newSession(h, conn)
}

// handlers is the dispatch table for registered sessions. Unknown event
// names are ignored without a reply.
var handlers = map[string]func(*Session, context.Context, *envelope, *eventData){
	EventNotification:          (*Session).handleNotification,
	EventGetRooms:              (*Session).handleGetRooms,
	EventUpdateOrMakeRoom:      (*Session).handleUpdateOrMakeRoom,
	EventGetUsersInRoom:        (*Session).handleGetUsersInRoom,
	EventLeaveRoom:             (*Session).handleLeaveRoom,
	EventSilentRoom:            (*Session).handleSilentRoom,
	EventUnSilentRoom:          (*Session).handleUnSilentRoom,
	EventClearLastMessageSeen:  (*Session).handleClearLastSeen,
	EventLastSeenMsg:           (*Session).handleLastSeenMsg,
	EventGetLastMessagesInRoom: (*Session).handleGetLastMessages,
	EventGetMessagesInRoom:     (*Session).handleGetMessages,
	EventGetPrevMessagesInRoom: (*Session).handleGetPrevMessages,
	EventDeleteMessageInRoom:   (*Session).handleDeleteMessage,
	EventEditMessageInRoom:     (*Session).handleEditMessage,
	EventBroadcastMessage:      (*Session).handleBroadcast,
	EventPing:                  (*Session).handlePing,
	EventGetUserStatus:         (*Session).handleGetUserStatus,
}

// dispatch decodes one inbound frame and routes it. Handler panics are
// contained here: they are logged and the frame dropped, the session
// survives.
func (s *Session) dispatch(ctx context.Context, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.reply(ctx, errorReply{Error: "Invalid JSON"})
		return
	}

	framesHandled.Add(ctx, 1, metric.WithAttributes(attribute.String("event", env.Event)))

	defer func() {
		if r := recover(); r != nil {
			s.hub.logger.Error(ctx, "handler panic on event %q: %v", env.Event, r)
		}
	}()

	if _, registered := s.UserID(); !registered {
		s.handleRegister(ctx, &env)
		return
	}

	h, ok := handlers[env.Event]
	if !ok {
		// Unknown events are silently ignored.
		return
	}

	var data eventData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			s.reply(ctx, errorReply{Error: "Invalid JSON"})
			return
		}
	}

	if !s.checkSessionToken(ctx, env.Event, data.SessionToken) {
		return
	}

	h(s, ctx, &env, &data)
}

// checkSessionToken enforces the per-frame token. Ping and GetUserStatus
// distinguish a missing token from a wrong one; every other event treats
// both as a mismatch.
func (s *Session) checkSessionToken(ctx context.Context, event, token string) bool {
	_, _, _, want, _ := s.identity()
	if token == "" && (event == EventPing || event == EventGetUserStatus) {
		s.reply(ctx, errorReply{Error: "invalid token", Data: "Session token is missing"})
		return false
	}
	if token != want {
		s.hub.logger.Debug(ctx, "invalid session token on event %q", event)
		s.reply(ctx, errorReply{Error: "invalid token", Data: "Session token is invalid"})
		return false
	}
	return true
}
