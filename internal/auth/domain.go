package auth

import "time"

// Account is the full credentials row. Only the auth package sees password
// hashes and tokens; everything else works with users.User or authz.Actor.
type Account struct {
	ID                  int64
	Username            string
	UsernameFold        string
	Email               string
	PasswordHash        string
	Role                string
	IsActivated         bool
	IsBlocked           bool
	ActivationToken     *string
	ActivationExpiresAt *time.Time
	ResetToken          *string
	ResetExpiresAt      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RegisterInput is the validated registration payload. The username charset
// is closed so display names and casefolded lookups stay unambiguous.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=30,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,password"`
}

const (
	activationTTL = 48 * time.Hour
	resetTTL      = 2 * time.Hour
)
