// Package httptransport assembles the HTTP API: middleware chain, public
// endpoints, and the authenticated surface. Domain handlers register their
// own routes; this package only decides where the auth boundary sits.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	grouphandler "dinemate/internal/group/handler"
	"dinemate/internal/platform/metrics"
	"dinemate/internal/platform/middleware"
	preferencehandler "dinemate/internal/preference/handler"
	restauranthandler "dinemate/internal/restaurant/handler"
	userhandler "dinemate/internal/user/handler"
)

// defaultRequestTimeout bounds request handling end to end.
const defaultRequestTimeout = 30 * time.Second

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	JWT     middleware.JWTValidator

	Users       *userhandler.Handler
	Groups      *grouphandler.Handler
	Preferences *preferencehandler.Handler
	Restaurants *restauranthandler.Handler

	RequestTimeout time.Duration
}

// NewRouter wires the full API surface.
func NewRouter(cfg RouterConfig) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Latency(cfg.Metrics))
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	cfg.Users.RegisterPublic(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(cfg.JWT, cfg.Logger))
		cfg.Users.RegisterProtected(r)
		cfg.Groups.Register(r)
		cfg.Preferences.Register(r)
		cfg.Restaurants.Register(r)
	})

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
