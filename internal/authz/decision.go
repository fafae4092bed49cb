package authz

import "github.com/pulseboard/pulseboard/internal/platform/httpx"

// DenyReason distinguishes the two failure modes of an authorization check.
type DenyReason string

const (
	// DenyUnauthenticated means no actor was present.
	DenyUnauthenticated DenyReason = "unauthenticated"
	// DenyForbidden means the actor is present but lacks the required
	// role, capability, or is self-targeting a self-denied action.
	DenyForbidden DenyReason = "forbidden"
)

// Decision is the tagged result of an authorization check. Every mutating
// action resolves exactly one Decision before any side effect.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow is the approving decision.
var Allow = Decision{Allowed: true}

// Deny constructs a denying decision.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Err maps a denial onto the transport-level sentinel errors. Allowed
// decisions return nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == DenyUnauthenticated {
		return httpx.ErrUnauthorized
	}
	return httpx.ErrForbidden
}
