package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulseboard/pulseboard/internal/shared"
)

// SQLRepository provides PostgreSQL backed persistence.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewSQLRepository constructs a repository.
func NewSQLRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

// GetUser returns one account row.
func (r *SQLRepository) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, email, role, is_activated, is_blocked, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.IsActivated, &user.IsBlocked, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetProfile returns the public view with a live post count.
func (r *SQLRepository) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	var profile Profile
	err := r.pool.QueryRow(ctx,
		`SELECT u.id, u.username, u.role, u.is_blocked, u.created_at,
		        (SELECT COUNT(*) FROM posts WHERE author_id = u.id AND NOT is_deleted)
		   FROM users u WHERE u.id = $1`,
		id,
	).Scan(&profile.ID, &profile.Username, &profile.Role, &profile.IsBlocked, &profile.CreatedAt, &profile.PostCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// ListUsers returns all accounts ordered by id.
func (r *SQLRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, username, email, role, is_activated, is_blocked, created_at FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.IsActivated, &user.IsBlocked, &user.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// SetBlocked flips the block flag. The update is a no-op filter so a repeated
// block reads as not found rather than succeeding twice.
func (r *SQLRepository) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_blocked = $2, updated_at = NOW() WHERE id = $1 AND is_blocked <> $2`,
		id, blocked,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
