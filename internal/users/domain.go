package users

import "time"

// User is an account row as the admin surface sees it.
type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	IsActivated bool      `json:"is_activated"`
	IsBlocked   bool      `json:"is_blocked"`
	CreatedAt   time.Time `json:"created_at"`
}

// Profile is the public view of an account. Email never appears here.
type Profile struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	IsBlocked bool      `json:"is_blocked"`
	PostCount int64     `json:"post_count"`
	CreatedAt time.Time `json:"created_at"`
}
