package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/pulseboard/pulseboard/internal/platform/httpx"
	"github.com/pulseboard/pulseboard/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sessions *shared.SessionManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager) *Handler {
	return &Handler{logger: logger, service: service, sessions: sessions}
}

// MountRoutes registers auth routes on provided router. Login and the reset
// request carry their own tighter rate limit on top of the global one.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Get("/auth/activate/{token}", h.activate)
	r.Post("/auth/logout", h.logout)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/auth/login", h.login)
		r.Post("/auth/password-reset", h.requestReset)
		r.Post("/auth/password-reset/confirm", h.confirmReset)
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	acct, err := h.service.Register(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":       acct.ID,
		"username": acct.Username,
		"status":   "activation email sent",
	})
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Activate(r.Context(), chi.URLParam(r, "token")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "activated"})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	acct, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrAccountNotActivated):
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "account is not activated")
		case errors.Is(err, shared.ErrAccountBlocked):
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "account is blocked")
		default:
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		}
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "session unavailable")
		return
	}
	sess.SetUser(strconv.FormatInt(acct.ID, 10))
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":       acct.ID,
		"username": acct.Username,
		"role":     acct.Role,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessions.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "logged out"})
}

func (h *Handler) requestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.logger.Error("request password reset", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	// Identical response whether or not the account exists.
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "reset email sent if the account exists"})
}

// LoginForTest exposes the login handler for tests.
func (h *Handler) LoginForTest(w http.ResponseWriter, r *http.Request) {
	h.login(w, r)
}

// LogoutForTest exposes the logout handler for tests.
func (h *Handler) LogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r)
}

func (h *Handler) confirmReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "password updated"})
}
