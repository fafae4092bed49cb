package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pulseboard/pulseboard/internal/authz"
	"github.com/pulseboard/pulseboard/internal/platform/httpx"
)

// Handler manages account endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users/{userID}", h.profile)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(authz.RoleAdmin))
		r.Get("/users", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAuthenticated)
		r.Put("/users/{userID}/block", h.block)
		r.Delete("/users/{userID}/block", h.unblock)
	})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	profile, err := h.service.Profile(r.Context(), authz.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.List(r.Context(), authz.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if accounts == nil {
		accounts = []User{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": accounts})
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

func (h *Handler) unblock(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	id, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.SetBlocked(r.Context(), authz.ActorFromContext(r.Context()), id, blocked); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
