package users

import "context"

// Repository defines data access methods for accounts.
type Repository interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetProfile(ctx context.Context, id int64) (*Profile, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetBlocked(ctx context.Context, id int64, blocked bool) error
}
