package authz

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pulseboard/pulseboard/internal/platform/httpx"
)

// Handler exposes the capability catalog and grant administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers capability and role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireCapability(CapEditPermissions))
		r.Get("/capabilities", h.listCapabilities)
		r.Get("/users/{userID}/grants", h.listGrants)
		r.Put("/users/{userID}/grants", h.setGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(RoleAdmin))
		r.Put("/users/{userID}/role", h.setRole)
	})
}

func (h *Handler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"capabilities": h.service.ListCapabilities()})
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	keys, err := h.service.Grants(r.Context(), ActorFromContext(r.Context()), targetID)
	if err != nil {
		h.logger.Error("list grants", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": keys})
}

func (h *Handler) setGrants(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.SetGrants(r.Context(), ActorFromContext(r.Context()), targetID, req.Keys); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.SetRole(r.Context(), ActorFromContext(r.Context()), targetID, Role(req.Role)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
