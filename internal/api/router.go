package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ConsistentClient/ccsswebsockets/internal/config"
	"github.com/ConsistentClient/ccsswebsockets/internal/db"
	"github.com/ConsistentClient/ccsswebsockets/internal/middleware"
	"github.com/ConsistentClient/ccsswebsockets/internal/relay"
	"github.com/ConsistentClient/ccsswebsockets/internal/utils"
)

type Router struct {
	mux         *http.ServeMux
	db          *db.Database
	hub         *relay.Hub
	rateLimiter *middleware.RateLimiter
	logger      *utils.Logger
	cfg         *config.Config
}

// NewRouter creates the HTTP surface: the socket listener plus health and
// metrics endpoints. The rate limiter may be nil (disabled).
func NewRouter(database *db.Database, hub *relay.Hub, rateLimiter *middleware.RateLimiter, logger *utils.Logger, cfg *config.Config) http.Handler {
	r := &Router{
		mux:         http.NewServeMux(),
		db:          database,
		hub:         hub,
		rateLimiter: rateLimiter,
		logger:      logger,
		cfg:         cfg,
	}

	r.mux.HandleFunc("/ws", r.WebSocketHandler)
	r.mux.HandleFunc("/healthz", r.HealthHandler)
	r.mux.Handle("/metrics", promhttp.Handler())

	return middleware.ConnectionIDMiddleware(middleware.TracingMiddleware(r.mux))
}

// HealthHandler reports liveness of the relay and its database.
func (r *Router) HealthHandler(w http.ResponseWriter, req *http.Request) {
	if err := r.db.Health(req.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
