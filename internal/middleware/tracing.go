package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// TracingMiddleware opens a span per HTTP request. WebSocket upgrades keep
// the span open for the lifetime of the connection.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, span := otel.Tracer("http-server").Start(req.Context(), req.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.target", req.URL.Path),
		)

		next.ServeHTTP(w, req.WithContext(ctx))
	})
}
