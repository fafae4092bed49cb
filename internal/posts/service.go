package posts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pulseboard/pulseboard/internal/authz"
	"github.com/pulseboard/pulseboard/internal/media"
	"github.com/pulseboard/pulseboard/internal/platform/httpx"
	"github.com/pulseboard/pulseboard/internal/shared"
)

var validate = validator.New()

// UploadObserver counts upload outcomes for the metrics endpoint.
type UploadObserver interface {
	UploadOutcome(outcome string)
}

// Service provides the post, comment and vote operations. Every mutation
// decides authorization before any side effect runs.
type Service struct {
	repo      Repository
	guard     *authz.Guard
	pipeline  *media.Pipeline
	store     media.BlobStore
	audit     *shared.AuditLogger
	observer  UploadObserver
	logger    *slog.Logger
}

// NewService constructs a Service. audit and observer may be nil.
func NewService(
	repo Repository,
	guard *authz.Guard,
	pipeline *media.Pipeline,
	store media.BlobStore,
	audit *shared.AuditLogger,
	observer UploadObserver,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		guard:    guard,
		pipeline: pipeline,
		store:    store,
		audit:    audit,
		observer: observer,
		logger:   logger,
	}
}

// Create publishes a post, ingesting the optional upload through the media
// pipeline first. A rejected upload rejects the whole post with nothing
// stored; a failed insert removes the already-written blob.
func (s *Service) Create(ctx context.Context, actor *authz.Actor, input CreatePostInput, upload *Upload) (*Post, error) {
	if err := s.guard.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Body = strings.TrimSpace(input.Body)
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}

	var attachment *Attachment
	if upload != nil {
		artifact, err := s.pipeline.Ingest(ctx, upload.File, upload.Filename)
		if err != nil {
			s.observeUpload("rejected")
			if errors.Is(err, media.ErrRejected) {
				return nil, fmt.Errorf("%w: %s", httpx.ErrRejected, err)
			}
			return nil, err
		}
		s.observeUpload("accepted")
		attachment = &Attachment{
			Kind:             string(artifact.Kind),
			Category:         string(artifact.Category),
			StorageName:      artifact.StorageName,
			OriginalFilename: artifact.OriginalFilename,
			SizeBytes:        artifact.SizeBytes,
		}
	}

	post := Post{AuthorID: actor.ID, Title: input.Title, Body: input.Body}
	id, err := s.repo.CreatePost(ctx, post, attachment)
	if err != nil {
		if attachment != nil {
			if rerr := s.store.Remove(attachment.StorageName); rerr != nil && s.logger != nil {
				s.logger.Warn("remove orphaned blob", slog.String("name", attachment.StorageName), slog.Any("error", rerr))
			}
		}
		return nil, err
	}
	return s.repo.GetPost(ctx, id)
}

// Feed returns the public feed. Deleted posts never appear here regardless of
// the viewer.
func (s *Service) Feed(ctx context.Context, limit, offset int) ([]Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListFeed(ctx, limit, offset)
}

// Get returns one post. A deleted post is visible only to its owner, admins
// and delete_any_post holders; everyone else sees not found.
func (s *Service) Get(ctx context.Context, actor *authz.Actor, id int64) (*Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if post.IsDeleted && !s.guard.RequireOwnerAction(actor, post.AuthorID, authz.CapDeleteAnyPost, false).Allowed {
		return nil, httpx.ErrNotFound
	}
	return post, nil
}

// Delete soft-deletes a post. Owner, admin or delete_any_post; the deleting
// actor is recorded.
func (s *Service) Delete(ctx context.Context, actor *authz.Actor, id int64) error {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return mapNotFound(err)
	}
	if post.IsDeleted {
		return httpx.ErrNotFound
	}
	if err := s.guard.RequireOwnerAction(actor, post.AuthorID, authz.CapDeleteAnyPost, false).Err(); err != nil {
		return err
	}
	if err := s.repo.MarkDeleted(ctx, id, actor.ID); err != nil {
		return mapNotFound(err)
	}
	s.recordAudit(ctx, actor.ID, shared.AuditPostDelete, "post", id, nil)
	return nil
}

// Recover undoes a soft delete. Deliberately narrower than Delete: only
// admins and delete_any_post holders qualify, ownership alone does not.
func (s *Service) Recover(ctx context.Context, actor *authz.Actor, id int64) error {
	if err := s.guard.RequirePrivileged(actor, authz.CapDeleteAnyPost).Err(); err != nil {
		return err
	}
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return mapNotFound(err)
	}
	if !post.IsDeleted {
		return fmt.Errorf("%w: post is not deleted", httpx.ErrRejected)
	}
	if err := s.repo.MarkRecovered(ctx, id); err != nil {
		return mapNotFound(err)
	}
	s.recordAudit(ctx, actor.ID, shared.AuditPostRecover, "post", id, nil)
	return nil
}

// ToggleVote casts, flips or retracts a vote. Casting the same value twice
// removes the vote; the repository performs the transition as one atomic
// statement. Returns the post's score after the toggle.
func (s *Service) ToggleVote(ctx context.Context, actor *authz.Actor, postID int64, value int) (int64, error) {
	if err := s.guard.RequireAuthenticated(actor).Err(); err != nil {
		return 0, err
	}
	if value != 1 && value != -1 {
		return 0, fmt.Errorf("%w: vote value must be +1 or -1", httpx.ErrValidation)
	}
	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return 0, mapNotFound(err)
	}
	if post.IsDeleted {
		return 0, httpx.ErrNotFound
	}
	if err := s.repo.ToggleVote(ctx, postID, actor.ID, value); err != nil {
		return 0, err
	}
	return s.repo.Score(ctx, postID)
}

// Comments lists a post's comments under the same visibility rule as Get.
func (s *Service) Comments(ctx context.Context, actor *authz.Actor, postID int64) ([]Comment, error) {
	if _, err := s.Get(ctx, actor, postID); err != nil {
		return nil, err
	}
	return s.repo.ListComments(ctx, postID)
}

// AddComment attaches a comment to a live post. A parent, when given, must be
// a live comment on the same post.
func (s *Service) AddComment(ctx context.Context, actor *authz.Actor, postID int64, input CommentInput) (*Comment, error) {
	if err := s.guard.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}
	input.Body = strings.TrimSpace(input.Body)
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}
	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if post.IsDeleted {
		return nil, httpx.ErrNotFound
	}
	if input.ParentID != nil {
		parent, err := s.repo.GetComment(ctx, *input.ParentID)
		if err != nil {
			return nil, fmt.Errorf("%w: parent comment not found", httpx.ErrValidation)
		}
		if parent.PostID != postID {
			return nil, fmt.Errorf("%w: parent comment belongs to another post", httpx.ErrValidation)
		}
	}
	id, err := s.repo.AddComment(ctx, Comment{
		PostID:   postID,
		UserID:   actor.ID,
		ParentID: input.ParentID,
		Body:     input.Body,
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetComment(ctx, id)
}

// DeleteComment soft-deletes a comment. Owner, admin or delete_any_comment.
// Comments have no recover path.
func (s *Service) DeleteComment(ctx context.Context, actor *authz.Actor, commentID int64) error {
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return mapNotFound(err)
	}
	if err := s.guard.RequireOwnerAction(actor, comment.UserID, authz.CapDeleteAnyComment, false).Err(); err != nil {
		return err
	}
	if err := s.repo.DeleteComment(ctx, commentID); err != nil {
		return mapNotFound(err)
	}
	s.recordAudit(ctx, actor.ID, shared.AuditCommentDelete, "comment", commentID, map[string]any{"post_id": comment.PostID})
	return nil
}

func (s *Service) observeUpload(outcome string) {
	if s.observer != nil {
		s.observer.UploadOutcome(outcome)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return httpx.ErrNotFound
	}
	return err
}
