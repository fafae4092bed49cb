package authz

import "fmt"

// Role is the closed set of account tiers. Roles are exclusive; capabilities
// are granted per user on top of the role, except that admin implies every
// capability.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a stored string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("authz: unknown role %q", s)
	}
	return r, nil
}

// Capability keys. The catalog is closed: keys are compiled in and never
// created at runtime.
const (
	CapBanUser          = "ban_user"
	CapDeleteAnyPost    = "delete_any_post"
	CapDeleteAnyComment = "delete_any_comment"
	CapEditPermissions  = "edit_permissions"
)

// Capability pairs a stable key with a human description.
type Capability struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

var catalog = []Capability{
	{Key: CapBanUser, Description: "Block and unblock user accounts"},
	{Key: CapDeleteAnyPost, Description: "Soft-delete and recover any post"},
	{Key: CapDeleteAnyComment, Description: "Soft-delete any comment"},
	{Key: CapEditPermissions, Description: "View and assign per-user capabilities"},
}

// Catalog returns the full capability catalog.
func Catalog() []Capability {
	out := make([]Capability, len(catalog))
	copy(out, catalog)
	return out
}

// KnownCapability reports whether key belongs to the catalog.
func KnownCapability(key string) bool {
	for _, c := range catalog {
		if c.Key == key {
			return true
		}
	}
	return false
}

// Actor is the authenticated entity performing a request. It is resolved
// fresh per request and never cached across requests, so a revoked grant
// takes effect on the next call.
type Actor struct {
	ID     int64
	Role   Role
	Grants map[string]struct{}
}

// HasGrant reports whether an explicit grant row exists for key. It does not
// apply the admin wildcard; that lives in Directory.Has.
func (a *Actor) HasGrant(key string) bool {
	if a == nil {
		return false
	}
	_, ok := a.Grants[key]
	return ok
}
