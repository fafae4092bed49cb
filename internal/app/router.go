package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/authz"
	"github.com/pulseboard/pulseboard/internal/observability"
	"github.com/pulseboard/pulseboard/internal/posts"
	"github.com/pulseboard/pulseboard/internal/shared"
	"github.com/pulseboard/pulseboard/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	AuthzMiddleware authz.Middleware
	AuthHandler     *auth.Handler
	AuthzHandler    *authz.Handler
	PostsHandler    *posts.Handler
	UsersHandler    *users.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Pulseboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.AuthzMiddleware.ResolveActor)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	params.AuthHandler.MountRoutes(r)
	params.PostsHandler.MountRoutes(r)
	params.UsersHandler.MountRoutes(r)
	r.Route("/admin", func(r chi.Router) {
		params.AuthzHandler.MountRoutes(r)
	})

	return r
}
