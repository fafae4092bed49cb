package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/shared"
)

type memoryRepo struct {
	roles  map[int64]Role
	grants map[int64]map[string]struct{}
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:  make(map[int64]Role),
		grants: make(map[int64]map[string]struct{}),
	}
}

func (m *memoryRepo) addUser(id int64, role Role, keys ...string) {
	m.roles[id] = role
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	m.grants[id] = set
}

func (m *memoryRepo) FetchActor(ctx context.Context, userID int64) (*Actor, error) {
	role, ok := m.roles[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	grants := make(map[string]struct{}, len(m.grants[userID]))
	for k := range m.grants[userID] {
		grants[k] = struct{}{}
	}
	return &Actor{ID: userID, Role: role, Grants: grants}, nil
}

func (m *memoryRepo) ListGrants(ctx context.Context, userID int64) ([]string, error) {
	var keys []string
	for k := range m.grants[userID] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memoryRepo) ReplaceGrants(ctx context.Context, userID int64, keys []string) error {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	m.grants[userID] = set
	return nil
}

func (m *memoryRepo) UpdateRole(ctx context.Context, userID int64, role Role, clearGrants bool) error {
	if _, ok := m.roles[userID]; !ok {
		return shared.ErrNotFound
	}
	m.roles[userID] = role
	if clearGrants {
		m.grants[userID] = map[string]struct{}{}
	}
	return nil
}

func newGuard(repo Repository) (*Guard, *Directory) {
	dir := NewDirectory(repo)
	return NewGuard(dir), dir
}

func TestRequire_RoleGate(t *testing.T) {
	guard, _ := newGuard(newMemoryRepo())

	assert.False(t, guard.Require(nil, RoleAdmin).Allowed)
	assert.Equal(t, DenyUnauthenticated, guard.Require(nil, RoleAdmin).Reason)

	mod := &Actor{ID: 7, Role: RoleModerator}
	assert.True(t, guard.Require(mod, RoleModerator, RoleAdmin).Allowed)
	denied := guard.Require(mod, RoleAdmin)
	assert.False(t, denied.Allowed)
	assert.Equal(t, DenyForbidden, denied.Reason)
}

func TestRequireCapability_AdminWildcard(t *testing.T) {
	guard, _ := newGuard(newMemoryRepo())
	admin := &Actor{ID: 1, Role: RoleAdmin}

	// Every catalog key passes for admin with zero grant rows.
	for _, c := range Catalog() {
		assert.True(t, guard.RequireCapability(admin, c.Key).Allowed, c.Key)
	}
}

func TestRequireCapability_PlainUserWithoutGrants(t *testing.T) {
	guard, _ := newGuard(newMemoryRepo())
	user := &Actor{ID: 2, Role: RoleUser, Grants: map[string]struct{}{}}

	for _, c := range Catalog() {
		assert.False(t, guard.RequireCapability(user, c.Key).Allowed, c.Key)
	}
}

func TestRequireCapability_ModeratorNeedsExplicitGrant(t *testing.T) {
	guard, _ := newGuard(newMemoryRepo())

	// Moderator role alone confers nothing.
	mod := &Actor{ID: 3, Role: RoleModerator, Grants: map[string]struct{}{}}
	assert.False(t, guard.RequireCapability(mod, CapBanUser).Allowed)

	granted := &Actor{ID: 3, Role: RoleModerator, Grants: map[string]struct{}{CapBanUser: {}}}
	assert.True(t, guard.RequireCapability(granted, CapBanUser).Allowed)
	assert.False(t, guard.RequireCapability(granted, CapDeleteAnyPost).Allowed)
}

func TestRequireOwnerAction_OwnerAdminCapability(t *testing.T) {
	guard, _ := newGuard(newMemoryRepo())

	owner := &Actor{ID: 10, Role: RoleUser}
	assert.True(t, guard.RequireOwnerAction(owner, 10, CapDeleteAnyPost, false).Allowed)

	stranger := &Actor{ID: 11, Role: RoleUser}
	assert.False(t, guard.RequireOwnerAction(stranger, 10, CapDeleteAnyPost, false).Allowed)

	admin := &Actor{ID: 12, Role: RoleAdmin}
	assert.True(t, guard.RequireOwnerAction(admin, 10, CapDeleteAnyPost, false).Allowed)

	mod := &Actor{ID: 13, Role: RoleModerator, Grants: map[string]struct{}{CapDeleteAnyPost: {}}}
	assert.True(t, guard.RequireOwnerAction(mod, 10, CapDeleteAnyPost, false).Allowed)
}

func TestRequireOwnerAction_SelfDeniedBeatsEverything(t *testing.T) {
	guard, _ := newGuard(newMemoryRepo())

	// Even an admin may not target themselves when the action is self-denied.
	admin := &Actor{ID: 5, Role: RoleAdmin}
	decision := guard.RequireOwnerAction(admin, 5, CapBanUser, true)
	require.False(t, decision.Allowed)
	assert.Equal(t, DenyForbidden, decision.Reason)

	granted := &Actor{ID: 6, Role: RoleModerator, Grants: map[string]struct{}{CapBanUser: {}}}
	assert.False(t, guard.RequireOwnerAction(granted, 6, CapBanUser, true).Allowed)

	// Targeting someone else still works.
	assert.True(t, guard.RequireOwnerAction(granted, 7, CapBanUser, true).Allowed)
}

func TestRequireOwnerAction_Unauthenticated(t *testing.T) {
	guard, _ := newGuard(newMemoryRepo())
	decision := guard.RequireOwnerAction(nil, 1, CapDeleteAnyPost, false)
	require.False(t, decision.Allowed)
	assert.Equal(t, DenyUnauthenticated, decision.Reason)
}

func TestDecisionErr(t *testing.T) {
	assert.NoError(t, Allow.Err())
	assert.Error(t, Deny(DenyForbidden).Err())
	assert.Error(t, Deny(DenyUnauthenticated).Err())
}
