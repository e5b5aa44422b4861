package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ConsistentClient/ccsswebsockets/internal/contextkey"
)

// ConnectionIDMiddleware assigns a fresh uuid to every inbound request so
// log lines from one connection can be correlated.
func ConnectionIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := context.WithValue(req.Context(), contextkey.ContextKeyConnectionID, uuid.New())
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}
