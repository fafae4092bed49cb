package authz

import (
	"context"
	"errors"

	"github.com/pulseboard/pulseboard/internal/shared"
)

// Repository is the narrow query contract the directory needs. Implementations
// must return role and grants as currently stored; the directory never caches
// across calls.
type Repository interface {
	// FetchActor loads role and grant keys for one user. Returns
	// shared.ErrNotFound when the user does not exist.
	FetchActor(ctx context.Context, userID int64) (*Actor, error)
	// ListGrants returns the grant keys for one user, sorted.
	ListGrants(ctx context.Context, userID int64) ([]string, error)
	// ReplaceGrants swaps the full grant set in one transaction.
	ReplaceGrants(ctx context.Context, userID int64, keys []string) error
	// UpdateRole sets the role and, when clearGrants is true, deletes all
	// grant rows in the same transaction.
	UpdateRole(ctx context.Context, userID int64, role Role, clearGrants bool) error
}

// Directory resolves an actor's effective capability set. The admin wildcard
// is implemented here and nowhere else; callers use Has and never special-case
// the admin role themselves.
type Directory struct {
	repo Repository
}

// NewDirectory constructs a Directory.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

// Resolve fetches the actor's current role and grants. A missing user fails
// closed: callers treat the nil actor as unauthenticated.
func (d *Directory) Resolve(ctx context.Context, userID int64) (*Actor, error) {
	actor, err := d.repo.FetchActor(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return actor, nil
}

// Has reports whether the actor holds the capability. Admins hold every key
// in the catalog unconditionally, independent of grant rows.
func (d *Directory) Has(actor *Actor, key string) bool {
	if actor == nil {
		return false
	}
	if actor.Role == RoleAdmin {
		return true
	}
	return actor.HasGrant(key)
}

// Effective returns the actor's effective capability keys: the whole catalog
// for admins, the explicit grant set otherwise.
func (d *Directory) Effective(actor *Actor) []string {
	if actor == nil {
		return nil
	}
	if actor.Role == RoleAdmin {
		keys := make([]string, 0, len(catalog))
		for _, c := range catalog {
			keys = append(keys, c.Key)
		}
		return keys
	}
	keys := make([]string, 0, len(actor.Grants))
	for k := range actor.Grants {
		keys = append(keys, k)
	}
	return keys
}
