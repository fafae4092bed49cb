package posts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulseboard/pulseboard/internal/platform/db"
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

const postColumns = `
	p.id, p.author_id, u.username, p.title, p.body,
	p.is_deleted, p.deleted_at, p.deleted_by, p.created_at,
	COALESCE(v.score, 0), COALESCE(c.cnt, 0),
	m.kind, m.category, m.storage_name, m.original_filename, m.size_bytes`

const postJoins = `
	FROM posts p
	JOIN users u ON u.id = p.author_id
	LEFT JOIN post_media m ON m.post_id = p.id
	LEFT JOIN LATERAL (
		SELECT SUM(value) AS score FROM post_votes WHERE post_id = p.id
	) v ON TRUE
	LEFT JOIN LATERAL (
		SELECT COUNT(*) AS cnt FROM comments WHERE post_id = p.id AND NOT is_deleted
	) c ON TRUE`

func scanPost(row pgx.Row) (*Post, error) {
	var (
		post                  Post
		kind, category        *string
		storageName, origName *string
		sizeBytes             *int64
	)
	err := row.Scan(
		&post.ID, &post.AuthorID, &post.AuthorUsername, &post.Title, &post.Body,
		&post.IsDeleted, &post.DeletedAt, &post.DeletedBy, &post.CreatedAt,
		&post.Score, &post.CommentCount,
		&kind, &category, &storageName, &origName, &sizeBytes,
	)
	if err != nil {
		return nil, err
	}
	if storageName != nil {
		post.Media = &Attachment{
			Kind:             *kind,
			Category:         *category,
			StorageName:      *storageName,
			OriginalFilename: *origName,
			SizeBytes:        *sizeBytes,
		}
	}
	return &post, nil
}

// CreatePost inserts the post and its optional media row in one transaction.
func (r *SQLRepository) CreatePost(ctx context.Context, post Post, media *Attachment) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO posts (author_id, title, body) VALUES ($1, $2, $3) RETURNING id`,
			post.AuthorID, post.Title, post.Body,
		).Scan(&id)
		if err != nil {
			return err
		}
		if media == nil {
			return nil
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO post_media (post_id, kind, category, storage_name, original_filename, size_bytes)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, media.Kind, media.Category, media.StorageName, media.OriginalFilename, media.SizeBytes,
		)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetPost returns a post regardless of deletion state. Visibility is the
// service's decision.
func (r *SQLRepository) GetPost(ctx context.Context, id int64) (*Post, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+postColumns+postJoins+` WHERE p.id = $1`, id)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return post, nil
}

// ListFeed returns non-deleted posts, newest first.
func (r *SQLRepository) ListFeed(ctx context.Context, limit, offset int) ([]Post, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+postColumns+postJoins+` WHERE NOT p.is_deleted ORDER BY p.created_at DESC, p.id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *post)
	}
	return out, rows.Err()
}

// MarkDeleted soft-deletes. A post already deleted reports not found so the
// caller cannot distinguish it from a missing one.
func (r *SQLRepository) MarkDeleted(ctx context.Context, id, deletedBy int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE posts SET is_deleted = TRUE, deleted_at = NOW(), deleted_by = $2 WHERE id = $1 AND NOT is_deleted`,
		id, deletedBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkRecovered clears the deletion triple.
func (r *SQLRepository) MarkRecovered(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE posts SET is_deleted = FALSE, deleted_at = NULL, deleted_by = NULL WHERE id = $1 AND is_deleted`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ToggleVote is one atomic statement keyed on the (post_id, user_id) unique
// constraint. A first vote inserts, a changed vote updates, the same value
// twice deletes the row.
//
// Snapshot reasoning: the whole statement runs against one snapshot. The
// conditional DO UPDATE fires only when the existing value differs, so `up`
// RETURNING is non-empty exactly when a row was inserted or flipped. The
// outer DELETE's snapshot of post_votes predates the CTE's write (data-
// modifying CTE effects are invisible to sibling reads of the table), so it
// matches the pre-existing row with the same value, and NOT EXISTS (... up)
// suppresses it whenever the CTE wrote. Net effect per case: no row →
// insert; different value → update; same value → delete. That same
// invisibility rule is why Score is a separate query.
func (r *SQLRepository) ToggleVote(ctx context.Context, postID, userID int64, value int) error {
	_, err := r.pool.Exec(ctx, `
		WITH up AS (
			INSERT INTO post_votes (post_id, user_id, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (post_id, user_id) DO UPDATE
				SET value = EXCLUDED.value, created_at = NOW()
				WHERE post_votes.value <> EXCLUDED.value
			RETURNING 1
		)
		DELETE FROM post_votes
		 WHERE post_id = $1 AND user_id = $2 AND value = $3
		   AND NOT EXISTS (SELECT 1 FROM up)`,
		postID, userID, value,
	)
	return err
}

// Score sums the votes for a post.
func (r *SQLRepository) Score(ctx context.Context, postID int64) (int64, error) {
	var score int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(value), 0) FROM post_votes WHERE post_id = $1`, postID,
	).Scan(&score)
	return score, err
}

// AddComment inserts one comment.
func (r *SQLRepository) AddComment(ctx context.Context, comment Comment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO comments (post_id, user_id, parent_id, body) VALUES ($1, $2, $3, $4) RETURNING id`,
		comment.PostID, comment.UserID, comment.ParentID, comment.Body,
	).Scan(&id)
	return id, err
}

// GetComment returns a non-deleted comment.
func (r *SQLRepository) GetComment(ctx context.Context, id int64) (*Comment, error) {
	var comment Comment
	err := r.pool.QueryRow(ctx,
		`SELECT c.id, c.post_id, c.user_id, u.username, c.parent_id, c.body, c.created_at
		   FROM comments c JOIN users u ON u.id = c.user_id
		  WHERE c.id = $1 AND NOT c.is_deleted`,
		id,
	).Scan(&comment.ID, &comment.PostID, &comment.UserID, &comment.Username, &comment.ParentID, &comment.Body, &comment.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &comment, nil
}

// ListComments returns the non-deleted comments of a post, oldest first.
func (r *SQLRepository) ListComments(ctx context.Context, postID int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.post_id, c.user_id, u.username, c.parent_id, c.body, c.created_at
		   FROM comments c JOIN users u ON u.id = c.user_id
		  WHERE c.post_id = $1 AND NOT c.is_deleted
		  ORDER BY c.created_at, c.id`,
		postID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Comment
	for rows.Next() {
		var comment Comment
		if err := rows.Scan(&comment.ID, &comment.PostID, &comment.UserID, &comment.Username, &comment.ParentID, &comment.Body, &comment.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, comment)
	}
	return out, rows.Err()
}

// DeleteComment soft-deletes; there is no recover path for comments.
func (r *SQLRepository) DeleteComment(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE comments SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted`, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListMediaNames returns every storage name referenced by a post_media row.
// The sweep job diffs this against the files on disk.
func (r *SQLRepository) ListMediaNames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT storage_name FROM post_media`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
