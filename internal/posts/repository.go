package posts

import "context"

// Repository defines the persistence contract for posts, comments and votes.
type Repository interface {
	CreatePost(ctx context.Context, post Post, media *Attachment) (int64, error)
	GetPost(ctx context.Context, id int64) (*Post, error)
	ListFeed(ctx context.Context, limit, offset int) ([]Post, error)
	MarkDeleted(ctx context.Context, id, deletedBy int64) error
	MarkRecovered(ctx context.Context, id int64) error

	ToggleVote(ctx context.Context, postID, userID int64, value int) error
	Score(ctx context.Context, postID int64) (int64, error)

	AddComment(ctx context.Context, comment Comment) (int64, error)
	GetComment(ctx context.Context, id int64) (*Comment, error)
	ListComments(ctx context.Context, postID int64) ([]Comment, error)
	DeleteComment(ctx context.Context, id int64) error
}
