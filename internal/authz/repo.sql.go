package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulseboard/pulseboard/internal/platform/db"
	"github.com/pulseboard/pulseboard/internal/shared"
)

// SQLRepository provides PostgreSQL backed persistence for roles and grants.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewSQLRepository constructs a repository.
func NewSQLRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

// FetchActor loads role and grants in one round trip.
func (r *SQLRepository) FetchActor(ctx context.Context, userID int64) (*Actor, error) {
	const query = `
		SELECT u.role,
		       COALESCE(array_agg(uc.capability_key) FILTER (WHERE uc.capability_key IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_capabilities uc ON uc.user_id = u.id
		WHERE u.id = $1
		GROUP BY u.role`

	var roleRaw string
	var keys []string
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&roleRaw, &keys); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("authz: fetch actor %d: %w", userID, err)
	}

	role, err := ParseRole(roleRaw)
	if err != nil {
		return nil, err
	}

	grants := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		grants[k] = struct{}{}
	}
	return &Actor{ID: userID, Role: role, Grants: grants}, nil
}

// ListGrants returns the grant keys for one user, sorted by key.
func (r *SQLRepository) ListGrants(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT capability_key FROM user_capabilities WHERE user_id = $1 ORDER BY capability_key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ReplaceGrants swaps the full grant set atomically. The uniqueness of
// (user_id, capability_key) is enforced by the table constraint; the delete
// plus insert in one transaction keeps the batch all-or-nothing.
func (r *SQLRepository) ReplaceGrants(ctx context.Context, userID int64, keys []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_capabilities WHERE user_id = $1`, userID); err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Exec(ctx, `INSERT INTO user_capabilities (user_id, capability_key) VALUES ($1, $2)`, userID, key); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateRole sets the role, clearing grant rows in the same transaction when
// requested. Returns shared.ErrNotFound when the user does not exist.
func (r *SQLRepository) UpdateRole(ctx context.Context, userID int64, role Role, clearGrants bool) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, userID, string(role))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if clearGrants {
			if _, err := tx.Exec(ctx, `DELETE FROM user_capabilities WHERE user_id = $1`, userID); err != nil {
				return err
			}
		}
		return nil
	})
}
