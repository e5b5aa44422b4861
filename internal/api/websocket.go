package api

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin more strictly
		return true
	},
}

// WebSocketHandler upgrades the connection and runs its session until the
// peer goes away. Authentication happens in-band via the Register event, not
// here.
func (r *Router) WebSocketHandler(w http.ResponseWriter, req *http.Request) {
	ctx, span := otel.Tracer("websocket-server").Start(req.Context(), "WebSocketConnection")
	defer span.End()

	clientIP := ClientIP(req)
	span.SetAttributes(attribute.String("client.ip", clientIP))

	if r.rateLimiter != nil && !r.rateLimiter.Allow(ctx, clientIP) {
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		span.SetStatus(codes.Error, "Connection rate limit exceeded")
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to upgrade WebSocket connection")
		return
	}

	span.SetStatus(codes.Ok, "WebSocket connection established")
	r.logger.Info(ctx, "%s: New socket connection", clientIP)

	session := r.hub.NewSession(conn)
	session.Run(ctx)
}
