package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulseboard/pulseboard/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	CreateAccount(ctx context.Context, acct Account) (int64, error)
	FindByLogin(ctx context.Context, usernameFold string) (*Account, error)
	FindByActivationToken(ctx context.Context, token string) (*Account, error)
	Activate(ctx context.Context, id int64) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	SetResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error
	FindByResetToken(ctx context.Context, token string) (*Account, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

const accountColumns = `id, username, username_fold, email, password_hash, role,
	is_activated, is_blocked, activation_token, activation_expires_at,
	reset_token, reset_expires_at, created_at, updated_at`

// SQLRepository implements Repository using PostgreSQL.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewSQLRepository constructs a repository.
func NewSQLRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

var _ Repository = (*SQLRepository)(nil)

func scanAccount(row pgx.Row) (*Account, error) {
	var acct Account
	err := row.Scan(
		&acct.ID, &acct.Username, &acct.UsernameFold, &acct.Email, &acct.PasswordHash, &acct.Role,
		&acct.IsActivated, &acct.IsBlocked, &acct.ActivationToken, &acct.ActivationExpiresAt,
		&acct.ResetToken, &acct.ResetExpiresAt, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// CreateAccount inserts a new account. Unique violations on the casefolded
// username or the email map to shared.ErrDuplicate.
func (r *SQLRepository) CreateAccount(ctx context.Context, acct Account) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, username_fold, email, password_hash, role, activation_token, activation_expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		acct.Username, acct.UsernameFold, acct.Email, acct.PasswordHash, acct.Role,
		acct.ActivationToken, acct.ActivationExpiresAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, shared.ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

// FindByLogin fetches an account by its casefolded username.
func (r *SQLRepository) FindByLogin(ctx context.Context, usernameFold string) (*Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM users WHERE username_fold = $1`, usernameFold))
}

// FindByActivationToken fetches the account holding an activation token.
func (r *SQLRepository) FindByActivationToken(ctx context.Context, token string) (*Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM users WHERE activation_token = $1`, token))
}

// Activate flips the activation flag and burns the token.
func (r *SQLRepository) Activate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_activated = TRUE, activation_token = NULL, activation_expires_at = NULL, updated_at = NOW()
		  WHERE id = $1 AND NOT is_activated`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByEmail fetches an account by email.
func (r *SQLRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM users WHERE email = $1`, email))
}

// SetResetToken stores a fresh password-reset token.
func (r *SQLRepository) SetResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET reset_token = $2, reset_expires_at = $3, updated_at = NOW() WHERE id = $1`,
		id, token, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByResetToken fetches the account holding a reset token.
func (r *SQLRepository) FindByResetToken(ctx context.Context, token string) (*Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM users WHERE reset_token = $1`, token))
}

// UpdatePassword replaces the hash and burns any reset token.
func (r *SQLRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, reset_token = NULL, reset_expires_at = NULL, updated_at = NOW() WHERE id = $1`,
		id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
