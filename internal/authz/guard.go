package authz

// Guard is the single decision function for every mutating action. It is pure
// over the actor value handed to it; resolving that value fresh per request is
// the caller's job (see Middleware).
type Guard struct {
	dir *Directory
}

// NewGuard constructs a Guard over the directory.
func NewGuard(dir *Directory) *Guard {
	return &Guard{dir: dir}
}

// Require is the role gate: the actor must be present and hold one of the
// accepted roles.
func (g *Guard) Require(actor *Actor, roles ...Role) Decision {
	if actor == nil {
		return Deny(DenyUnauthenticated)
	}
	for _, r := range roles {
		if actor.Role == r {
			return Allow
		}
	}
	return Deny(DenyForbidden)
}

// RequireAuthenticated passes for any present actor.
func (g *Guard) RequireAuthenticated(actor *Actor) Decision {
	if actor == nil {
		return Deny(DenyUnauthenticated)
	}
	return Allow
}

// RequireCapability is the capability gate.
func (g *Guard) RequireCapability(actor *Actor, key string) Decision {
	if actor == nil {
		return Deny(DenyUnauthenticated)
	}
	if g.dir.Has(actor, key) {
		return Allow
	}
	return Deny(DenyForbidden)
}

// RequireOwnerAction decides an owner-or-privileged action: allowed to the
// resource owner, to admins, and to holders of the capability. When
// selfDenied is set, an actor targeting itself is refused before any of
// those checks run, so not even an admin may ban or demote themselves.
func (g *Guard) RequireOwnerAction(actor *Actor, ownerID int64, key string, selfDenied bool) Decision {
	if actor == nil {
		return Deny(DenyUnauthenticated)
	}
	if selfDenied && actor.ID == ownerID {
		return Deny(DenyForbidden)
	}
	if !selfDenied && actor.ID == ownerID {
		return Allow
	}
	if g.dir.Has(actor, key) {
		return Allow
	}
	return Deny(DenyForbidden)
}

// RequirePrivileged is the owner-action variant with no owner exception:
// only admins and capability holders pass. Used for transitions the owner may
// not self-serve, such as recovering a deleted post.
func (g *Guard) RequirePrivileged(actor *Actor, key string) Decision {
	return g.RequireCapability(actor, key)
}
