package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/pulseboard/pulseboard/internal/platform/httpx"
	"github.com/pulseboard/pulseboard/internal/shared"
)

type actorContextKey struct{}

// ContextWithActor stores the resolved actor in context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor, nil when unauthenticated.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}

// Middleware resolves the session user into an Actor on every request. The
// lookup is fresh each time so a revoked grant or role change takes effect on
// the very next request.
type Middleware struct {
	Directory *Directory
	Guard     *Guard
	Logger    *slog.Logger
}

// ResolveActor loads the actor for the session user, if any, into context.
// Sessions pointing at deleted users resolve to no actor and fail closed.
func (m Middleware) ResolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimSpace(sess.User())
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("authz parse user id", slog.String("value", raw))
			}
			next.ServeHTTP(w, r)
			return
		}
		actor, err := m.Directory.Resolve(r.Context(), id)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("authz resolve actor", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		if actor == nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}

// RequireAuthenticated refuses requests with no resolved actor.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ActorFromContext(r.Context()) == nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole refuses requests whose actor is not in the accepted set.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := m.Guard.Require(ActorFromContext(r.Context()), roles...).Err(); err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCapability refuses requests whose actor lacks the capability.
func (m Middleware) RequireCapability(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := m.Guard.RequireCapability(ActorFromContext(r.Context()), key).Err(); err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
