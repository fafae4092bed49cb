package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/shared"
)

type failingRepo struct {
	Repository
}

func (failingRepo) FetchActor(context.Context, int64) (*Actor, error) {
	return nil, errors.New("connection refused")
}

func requestWithSessionUser(id string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/posts", nil)
	sess := &shared.Session{}
	sess.SetUser(id)
	return r.WithContext(shared.ContextWithSession(r.Context(), sess))
}

func nextRecorder(called *bool) http.Handler {
	return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		*called = true
	})
}

func TestResolveActor_RepoFailureIsProblemResponse(t *testing.T) {
	mw := Middleware{Directory: NewDirectory(failingRepo{})}

	var called bool
	rec := httptest.NewRecorder()
	mw.ResolveActor(nextRecorder(&called)).ServeHTTP(rec, requestWithSessionUser("7"))

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(rec.Body.String(), `"title"`), rec.Body.String())
}

func TestRequireCapability_DenialsAreProblemResponses(t *testing.T) {
	guard := NewGuard(NewDirectory(newMemoryRepo()))
	mw := Middleware{Guard: guard}
	gate := mw.RequireCapability(CapBanUser)

	var called bool

	// No actor in context.
	rec := httptest.NewRecorder()
	gate(nextRecorder(&called)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	// Actor without the capability.
	actor := &Actor{ID: 3, Role: RoleModerator, Grants: map[string]struct{}{}}
	r := httptest.NewRequest(http.MethodGet, "/users", nil)
	r = r.WithContext(ContextWithActor(r.Context(), actor))
	rec = httptest.NewRecorder()
	gate(nextRecorder(&called)).ServeHTTP(rec, r)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestResolveActor_MissingUserStaysAnonymous(t *testing.T) {
	mw := Middleware{Directory: NewDirectory(newMemoryRepo())}

	var sawActor *Actor
	called := false
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		called = true
		sawActor = ActorFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	mw.ResolveActor(next).ServeHTTP(rec, requestWithSessionUser("404"))

	require.True(t, called)
	assert.Nil(t, sawActor)
	assert.Equal(t, http.StatusOK, rec.Code)
}
