package posts

import (
	"io"
	"time"
)

// Post is a feed entry. AuthorID is fixed at creation; after that only the
// deletion triple mutates.
type Post struct {
	ID             int64      `json:"id"`
	AuthorID       int64      `json:"author_id"`
	AuthorUsername string     `json:"author_username"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	IsDeleted      bool       `json:"is_deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	DeletedBy      *int64     `json:"deleted_by,omitempty"`
	Score          int64      `json:"score"`
	CommentCount   int64      `json:"comment_count"`
	CreatedAt      time.Time  `json:"created_at"`
	Media          *Attachment `json:"media,omitempty"`
}

// Attachment mirrors the stored post_media row.
type Attachment struct {
	Kind             string `json:"kind"`
	Category         string `json:"category"`
	StorageName      string `json:"storage_name"`
	OriginalFilename string `json:"original_filename"`
	SizeBytes        int64  `json:"size_bytes"`
}

// Comment belongs to exactly one post; ParentID, when set, references a
// comment on the same post.
type Comment struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// CreatePostInput is the validated post payload.
type CreatePostInput struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"required,max=20000"`
}

// Upload carries one optional media file alongside a post. The reader must be
// seekable so the pipeline can sniff and rewind.
type Upload struct {
	File     io.ReadSeeker
	Filename string
}

// CommentInput is the validated comment payload.
type CommentInput struct {
	Body     string `json:"body" validate:"required,max=5000"`
	ParentID *int64 `json:"parent_id"`
}
